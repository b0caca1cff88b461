package handlers

import (
	"net/http"
	"time"

	"badgehub/internal/cache"
	"badgehub/internal/database"
	"badgehub/internal/response"
)

// Health reports liveness and dependency status.
type Health struct {
	db      *database.Manager
	cache   cache.Cache
	respond *response.Writer
	started time.Time
}

// NewHealth creates the health handler.
func NewHealth(db *database.Manager, c cache.Cache, respond *response.Writer) *Health {
	return &Health{
		db:      db,
		cache:   c,
		respond: respond,
		started: time.Now(),
	}
}

// ServeHTTP checks the database and cache. A broken database degrades the
// status to 503; a broken cache is reported but keeps the service healthy,
// matching the runtime behavior where cache failures fall through to reads.
func (h *Health) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	checks := map[string]string{
		"database": "ok",
		"cache":    "ok",
	}
	status := http.StatusOK
	overall := "healthy"

	if err := h.db.Health(ctx); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
		overall = "unhealthy"
	}
	if err := h.cache.Health(ctx); err != nil {
		checks["cache"] = err.Error()
		if overall == "healthy" {
			overall = "degraded"
		}
	}

	h.respond.JSON(ctx, w, status, map[string]interface{}{
		"status":         overall,
		"checks":         checks,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	})
}
