package discovery

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/playto-hub-go/internal/api"
)

// RegisterRoutes wires discovery routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	// Scans run in the background; sessions appear as renderers answer.
	router.Method(http.MethodPost, "/v1/discovery/scan", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		go service.Scan()
		return api.WriteAction(w, http.StatusAccepted, map[string]any{
			"object": "discovery_scan",
			"status": "started",
		})
	}))
}
