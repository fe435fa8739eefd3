package server

import (
	"context"
	"net/http"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/strefethen/playto-hub-go/internal/activity"
	"github.com/strefethen/playto-hub-go/internal/api"
	"github.com/strefethen/playto-hub-go/internal/auth"
	"github.com/strefethen/playto-hub-go/internal/config"
	"github.com/strefethen/playto-hub-go/internal/db"
	"github.com/strefethen/playto-hub-go/internal/discovery"
	"github.com/strefethen/playto-hub-go/internal/events"
	"github.com/strefethen/playto-hub-go/internal/library"
	"github.com/strefethen/playto-hub-go/internal/playto"
	"github.com/strefethen/playto-hub-go/internal/profiles"
	"github.com/strefethen/playto-hub-go/internal/upnp"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// requestLoggerMiddleware logs all incoming HTTP requests
func requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		log.Printf("%s %s %d %s", r.Method, r.URL.Path, wrapped.status, time.Since(start).Round(time.Millisecond))
	})
}

// Options controls server wiring.
type Options struct {
	DisableDiscovery bool
}

// NewHandler builds the HTTP handler and returns a shutdown function.
func NewHandler(cfg config.Config, options Options) (http.Handler, func(context.Context) error, error) {
	log.Printf("Using database: %s", cfg.SQLiteDBPath)
	dbPair, err := db.Init(cfg.SQLiteDBPath)
	if err != nil {
		return nil, nil, err
	}

	profileStore, err := profiles.NewStore(cfg.ProfilesDir)
	if err != nil {
		dbPair.Close()
		return nil, nil, err
	}

	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Use(requestLoggerMiddleware)
	router.Use(api.RequestIDMiddleware)
	router.Use(api.RecovererMiddleware)
	router.Use(auth.Middleware(cfg))

	registerHealthRoutes(router)

	pairingStore := auth.NewPairingStore(5 * time.Minute)
	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	pairingStore.StartCleanup(shutdownCtx, time.Minute)
	auth.RegisterRoutes(router, pairingStore, cfg)

	lib := library.NewService()
	library.RegisterRoutes(router, lib)
	profiles.RegisterRoutes(router, profileStore)

	activityService := activity.NewService(dbPair)
	activity.RegisterRoutes(router, activityService)
	activityService.StartPruneJob()

	hub := events.NewHub()
	events.RegisterRoutes(router, hub)

	discoveryService := discovery.NewService(discovery.Options{
		Passes:          cfg.SSDPDiscoveryPasses,
		PassInterval:    time.Duration(cfg.SSDPPassIntervalMs) * time.Millisecond,
		ResponseTimeout: time.Duration(cfg.SSDPDiscoveryTimeoutMs) * time.Millisecond,
		RescanSchedule:  cfg.SSDPRescanSchedule,
	})
	discovery.RegisterRoutes(router, discoveryService)

	upnpClient := upnp.NewClient(time.Duration(cfg.DeviceTimeoutMs) * time.Millisecond)
	manager := playto.NewManager(
		upnpClient,
		discoveryService,
		profileStore,
		lib,
		hub,
		activityService,
		playto.ManagerConfig{
			Session: playto.SessionConfig{
				ServerBaseURL:       cfg.ServerBaseURL,
				APIKey:              cfg.StreamAPIKey,
				WaitForPlayingBound: time.Duration(cfg.WaitForPlayingMs) * time.Millisecond,
			},
			Device: upnp.DeviceOptions{
				PollInterval:     time.Duration(cfg.DevicePollIntervalMs) * time.Millisecond,
				FailureThreshold: cfg.DeviceFailureThreshold,
			},
		},
	)
	playto.RegisterRoutes(router, manager)

	manager.Start()
	// Discovery only starts when wanted; tests wire sessions directly.
	if !options.DisableDiscovery {
		discoveryService.Start()
	}

	shutdown := func(ctx context.Context) error {
		shutdownCancel()
		if !options.DisableDiscovery {
			discoveryService.Stop()
		}
		manager.Stop()
		hub.Close()
		activityService.StopPruneJob()
		if ctx == nil {
			ctx = context.Background()
		}
		return dbPair.Close()
	}

	return router, shutdown, nil
}

func registerHealthRoutes(router chi.Router) {
	router.Method(http.MethodGet, "/v1/health", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		response := map[string]any{
			"status":    "healthy",
			"service":   "playto-hub",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		return api.WriteJSON(w, http.StatusOK, response)
	}))
	router.Method(http.MethodGet, "/v1/health/live", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}))
	router.Method(http.MethodGet, "/v1/health/ready", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	}))
}
