// Package router assembles the HTTP surface: middleware chain, API routes,
// health, metrics and the websocket stream.
package router

import (
	"net/http"

	"badgehub/internal/cache"
	"badgehub/internal/config"
	"badgehub/internal/database"
	"badgehub/internal/events"
	"badgehub/internal/handlers"
	"badgehub/internal/middleware"
	"badgehub/internal/monitoring"
	"badgehub/internal/registry"
	"badgehub/internal/response"
	"badgehub/internal/services"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Deps carries everything the router mounts.
type Deps struct {
	Config   *config.Config
	Services *services.Collection
	Registry *registry.Registry
	Bus      *events.Bus
	DB       *database.Manager
	Cache    cache.Cache
	Metrics  *monitoring.Metrics
	Logger   *zap.Logger
}

// New builds the root handler. The returned stream must be closed on
// shutdown so websocket clients disconnect cleanly.
func New(d Deps) (http.Handler, *handlers.UnlockStream, error) {
	respond := response.NewWriter(d.Logger)
	api := handlers.NewAPI(d.Services, d.Registry, respond, d.Logger)
	health := handlers.NewHealth(d.DB, d.Cache, respond)

	stream, err := handlers.NewUnlockStream(d.Bus, d.Logger)
	if err != nil {
		return nil, nil, err
	}

	root := mux.NewRouter()
	root.Use(
		middleware.RequestID(d.Logger),
		middleware.Recovery(d.Logger),
		middleware.RequestLogger(d.Logger, d.Metrics),
	)

	root.Handle("/health", health).Methods(http.MethodGet)
	root.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	root.Handle("/ws/unlocks", stream).Methods(http.MethodGet)

	v1 := root.PathPrefix("/api/v1").Subrouter()
	api.Register(v1)
	api.RegisterAdmin(v1, middleware.AdminAuth(&d.Config.Auth, d.Logger))

	root.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond.Error(r.Context(), w, services.NewNotFoundError("route not found"))
	})
	root.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = w.Write([]byte(`{"success":false,"error":{"type":"METHOD_NOT_ALLOWED","message":"method not allowed"}}`))
	})

	return root, stream, nil
}
