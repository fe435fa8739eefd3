package profiles

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/playto-hub-go/internal/api"
	"github.com/strefethen/playto-hub-go/internal/apperrors"
)

// RegisterRoutes wires device profile routes to the router.
func RegisterRoutes(router chi.Router, store *Store) {
	router.Method(http.MethodGet, "/v1/profiles", api.Handler(listProfiles(store)))
	router.Method(http.MethodGet, "/v1/profiles/{name}", api.Handler(getProfile(store)))
}

// listProfiles returns the loaded profiles plus the built-in default.
// GET /v1/profiles
func listProfiles(store *Store) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		profiles := append([]*DeviceProfile{store.Default()}, store.Profiles()...)
		return api.WriteList(w, "/v1/profiles", profiles, false)
	}
}

// getProfile returns a profile by name.
// GET /v1/profiles/{name}
func getProfile(store *Store) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		name := chi.URLParam(r, "name")
		profile := store.ByName(name)
		if profile == nil {
			return apperrors.NewAppError(apperrors.ErrorCodeProfileNotFound, "Profile not found", 404, map[string]any{
				"name": name,
			}, nil)
		}
		return api.WriteResource(w, http.StatusOK, profile)
	}
}
