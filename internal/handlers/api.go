// Package handlers exposes the HTTP API over the service layer.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"badgehub/internal/middleware"
	"badgehub/internal/models"
	"badgehub/internal/registry"
	"badgehub/internal/response"
	"badgehub/internal/services"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// API serves the versioned JSON endpoints.
type API struct {
	services *services.Collection
	registry *registry.Registry
	respond  *response.Writer
	logger   *zap.Logger
}

// NewAPI creates the API handler set.
func NewAPI(svcs *services.Collection, reg *registry.Registry, respond *response.Writer, logger *zap.Logger) *API {
	return &API{
		services: svcs,
		registry: reg,
		respond:  respond,
		logger:   logger,
	}
}

// Register mounts the public routes. Admin routes are mounted separately so
// the auth middleware wraps only them.
func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/events", a.EnqueueEvent).Methods(http.MethodPost)
	r.HandleFunc("/events/immediate", a.TriggerImmediate).Methods(http.MethodPost)
	r.HandleFunc("/events/types", a.ListEventTypes).Methods(http.MethodGet)
	r.HandleFunc("/queue/stats", a.QueueStats).Methods(http.MethodGet)

	r.HandleFunc("/achievements", a.ListAchievements).Methods(http.MethodGet)
	r.HandleFunc("/achievements/{achievementID:[0-9]+}", a.GetAchievement).Methods(http.MethodGet)

	r.HandleFunc("/users/{userID:[0-9]+}/achievements", a.ListUserAchievements).Methods(http.MethodGet)
	r.HandleFunc("/users/{userID:[0-9]+}/achievements/{achievementID:[0-9]+}/progress", a.GetProgress).Methods(http.MethodGet)
	r.HandleFunc("/users/{userID:[0-9]+}/badge-count", a.BadgeCount).Methods(http.MethodGet)
	r.HandleFunc("/users/{userID:[0-9]+}/history", a.History).Methods(http.MethodGet)
	r.HandleFunc("/users/{userID:[0-9]+}/events", a.RecentEvents).Methods(http.MethodGet)
	r.HandleFunc("/users/{userID:[0-9]+}/featured", a.FeaturedBadge).Methods(http.MethodGet)
	r.HandleFunc("/users/{userID:[0-9]+}/featured/{achievementID:[0-9]+}", a.SetFeatured).Methods(http.MethodPut)

	r.HandleFunc("/leaderboard", a.Leaderboard).Methods(http.MethodGet)
	r.HandleFunc("/unlocks/recent", a.RecentUnlocks).Methods(http.MethodGet)
}

// RegisterAdmin mounts the routes that require an authenticated admin
// actor. Each route is wrapped individually so the auth middleware guards
// exactly these and nothing else under the prefix.
func (a *API) RegisterAdmin(r *mux.Router, guard func(http.Handler) http.Handler) {
	admin := func(h http.HandlerFunc) http.Handler { return guard(h) }

	r.Handle("/achievements", admin(a.CreateAchievement)).Methods(http.MethodPost)
	r.Handle("/achievements/{achievementID:[0-9]+}", admin(a.UpdateAchievement)).Methods(http.MethodPut)
	r.Handle("/achievements/{achievementID:[0-9]+}", admin(a.DeactivateAchievement)).Methods(http.MethodDelete)

	r.Handle("/users/{userID:[0-9]+}/achievements/{achievementID:[0-9]+}/grant", admin(a.GrantAchievement)).Methods(http.MethodPost)
	r.Handle("/users/{userID:[0-9]+}/achievements/{achievementID:[0-9]+}/revoke", admin(a.RevokeAchievement)).Methods(http.MethodPost)

	r.Handle("/admin/recalculate", admin(a.Recalculate)).Methods(http.MethodPost)
}

// ===============================
// EVENT INTAKE
// ===============================

type enqueueRequest struct {
	UserID        int64          `json:"user_id"`
	EventType     string         `json:"event_type"`
	Payload       models.Payload `json:"payload,omitempty"`
	SourceScopeID int64          `json:"source_scope_id,omitempty"`
}

// EnqueueEvent accepts an activity event into the durable queue.
func (a *API) EnqueueEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respond.ValidationError(ctx, w, "invalid request body")
		return
	}

	id, err := a.services.Queue.Enqueue(ctx, req.UserID, req.EventType, req.Payload, req.SourceScopeID)
	if err != nil {
		a.respond.Error(ctx, w, err)
		return
	}
	a.respond.JSON(ctx, w, http.StatusAccepted, map[string]interface{}{
		"event_id": id,
		"status":   "queued",
	})
}

// TriggerImmediate runs an event through the engine synchronously. Nothing
// is persisted in the queue; the response carries the unlock count.
func (a *API) TriggerImmediate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respond.ValidationError(ctx, w, "invalid request body")
		return
	}

	unlocked, err := a.services.Queue.TriggerImmediate(ctx, req.UserID, req.EventType, req.Payload)
	if err != nil {
		a.respond.Error(ctx, w, err)
		return
	}
	a.respond.JSON(ctx, w, http.StatusOK, map[string]interface{}{
		"unlocked": unlocked,
	})
}

// ListEventTypes returns the registered event definitions, optionally
// filtered by category.
func (a *API) ListEventTypes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defs := a.registry.List(r.URL.Query().Get("category"))
	a.respond.List(ctx, w, defs, len(defs), 0)
}

// QueueStats returns queue aggregates.
func (a *API) QueueStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := a.services.Queue.Stats(ctx)
	if err != nil {
		a.respond.Error(ctx, w, err)
		return
	}
	a.respond.JSON(ctx, w, http.StatusOK, stats)
}

// RecentEvents lists a user's latest queued events.
func (a *API) RecentEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := a.pathID(w, r, "userID")
	if !ok {
		return
	}
	limit := queryInt(r, "limit", 20)

	list, err := a.services.Queue.RecentEventsForUser(ctx, userID, limit)
	if err != nil {
		a.respond.Error(ctx, w, err)
		return
	}
	a.respond.List(ctx, w, list, len(list), limit)
}

// ===============================
// ACHIEVEMENT CATALOG
// ===============================

// ListAchievements returns the active definitions.
func (a *API) ListAchievements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := a.services.Catalog.ListActive(ctx)
	if err != nil {
		a.respond.Error(ctx, w, err)
		return
	}
	a.respond.List(ctx, w, list, len(list), 0)
}

// GetAchievement returns one definition by ID.
func (a *API) GetAchievement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := a.pathID(w, r, "achievementID")
	if !ok {
		return
	}

	defn, err := a.services.Catalog.GetByID(ctx, id)
	if err != nil {
		a.respond.Error(ctx, w, err)
		return
	}
	a.respond.JSON(ctx, w, http.StatusOK, defn)
}

// CreateAchievement adds a definition to the catalog.
func (a *API) CreateAchievement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var defn models.Achievement
	if err := json.NewDecoder(r.Body).Decode(&defn); err != nil {
		a.respond.ValidationError(ctx, w, "invalid request body")
		return
	}

	if err := a.services.Catalog.Create(ctx, &defn); err != nil {
		a.respond.Error(ctx, w, err)
		return
	}
	a.respond.JSON(ctx, w, http.StatusCreated, defn)
}

// UpdateAchievement replaces a definition.
func (a *API) UpdateAchievement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := a.pathID(w, r, "achievementID")
	if !ok {
		return
	}

	var defn models.Achievement
	if err := json.NewDecoder(r.Body).Decode(&defn); err != nil {
		a.respond.ValidationError(ctx, w, "invalid request body")
		return
	}
	defn.ID = id

	if err := a.services.Catalog.Update(ctx, &defn); err != nil {
		a.respond.Error(ctx, w, err)
		return
	}
	a.respond.JSON(ctx, w, http.StatusOK, defn)
}

// DeactivateAchievement retires a definition without deleting earned state.
func (a *API) DeactivateAchievement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := a.pathID(w, r, "achievementID")
	if !ok {
		return
	}

	if err := a.services.Catalog.Deactivate(ctx, id); err != nil {
		a.respond.Error(ctx, w, err)
		return
	}
	a.respond.JSON(ctx, w, http.StatusOK, map[string]interface{}{
		"achievement_id": id,
		"status":         "deactivated",
	})
}

// ===============================
// USER STATE
// ===============================

// ListUserAchievements returns a user's achievements with progress.
func (a *API) ListUserAchievements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := a.pathID(w, r, "userID")
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := services.ListFilter{
		Category:     q.Get("category"),
		UnlockedOnly: q.Get("unlocked_only") == "true",
		FeaturedOnly: q.Get("featured_only") == "true",
		Limit:        queryInt(r, "limit", 0),
	}

	list, err := a.services.Progress.ListForUser(ctx, userID, filter)
	if err != nil {
		a.respond.Error(ctx, w, err)
		return
	}
	a.respond.List(ctx, w, list, len(list), filter.Limit)
}

// GetProgress reports one user's progress toward one achievement.
func (a *API) GetProgress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := a.pathID(w, r, "userID")
	if !ok {
		return
	}
	achievementID, ok := a.pathID(w, r, "achievementID")
	if !ok {
		return
	}

	progress, err := a.services.Progress.Progress(ctx, userID, achievementID)
	if err != nil {
		a.respond.Error(ctx, w, err)
		return
	}
	a.respond.JSON(ctx, w, http.StatusOK, progress)
}

// BadgeCount returns the user's unlocked badge count, optionally filtered
// by achievement type and category.
func (a *API) BadgeCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := a.pathID(w, r, "userID")
	if !ok {
		return
	}

	q := r.URL.Query()
	count, err := a.services.Progress.CountForUser(ctx, userID, q.Get("type"), q.Get("category"))
	if err != nil {
		a.respond.Error(ctx, w, err)
		return
	}
	a.respond.JSON(ctx, w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"count":   count,
	})
}

// History returns the user's audit trail, newest first.
func (a *API) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := a.pathID(w, r, "userID")
	if !ok {
		return
	}
	limit := queryInt(r, "limit", 50)

	entries, err := a.services.Progress.History(ctx, userID, limit)
	if err != nil {
		a.respond.Error(ctx, w, err)
		return
	}
	a.respond.List(ctx, w, entries, len(entries), limit)
}

// FeaturedBadge returns the user's featured badge.
func (a *API) FeaturedBadge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := a.pathID(w, r, "userID")
	if !ok {
		return
	}

	badge, err := a.services.Progress.FeaturedBadge(ctx, userID)
	if err != nil {
		a.respond.Error(ctx, w, err)
		return
	}
	a.respond.JSON(ctx, w, http.StatusOK, badge)
}

// SetFeatured makes one unlocked achievement the user's featured badge.
func (a *API) SetFeatured(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := a.pathID(w, r, "userID")
	if !ok {
		return
	}
	achievementID, ok := a.pathID(w, r, "achievementID")
	if !ok {
		return
	}

	if err := a.services.Progress.SetFeatured(ctx, userID, achievementID); err != nil {
		a.respond.Error(ctx, w, err)
		return
	}
	a.respond.JSON(ctx, w, http.StatusOK, map[string]interface{}{
		"user_id":        userID,
		"achievement_id": achievementID,
		"featured":       true,
	})
}

// ===============================
// ADMIN ACTIONS
// ===============================

type adminActionRequest struct {
	Notes string `json:"notes,omitempty"`
}

// GrantAchievement manually unlocks an achievement, attributed to the
// authenticated admin.
func (a *API) GrantAchievement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := a.pathID(w, r, "userID")
	if !ok {
		return
	}
	achievementID, ok := a.pathID(w, r, "achievementID")
	if !ok {
		return
	}
	actorID, ok := middleware.ActorFromContext(ctx)
	if !ok {
		a.respond.Error(ctx, w, services.NewUnauthorizedError("authentication required"))
		return
	}

	var req adminActionRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	unlocked, err := a.services.Progress.Unlock(ctx, userID, achievementID, models.ActionManualGrant, &actorID, req.Notes)
	if err != nil {
		a.respond.Error(ctx, w, err)
		return
	}
	a.respond.JSON(ctx, w, http.StatusOK, map[string]interface{}{
		"user_id":        userID,
		"achievement_id": achievementID,
		"unlocked":       unlocked,
	})
}

// RevokeAchievement reverses an unlock, attributed to the admin.
func (a *API) RevokeAchievement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := a.pathID(w, r, "userID")
	if !ok {
		return
	}
	achievementID, ok := a.pathID(w, r, "achievementID")
	if !ok {
		return
	}
	actorID, ok := middleware.ActorFromContext(ctx)
	if !ok {
		a.respond.Error(ctx, w, services.NewUnauthorizedError("authentication required"))
		return
	}

	var req adminActionRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	revoked, err := a.services.Progress.Revoke(ctx, userID, achievementID, actorID, req.Notes)
	if err != nil {
		a.respond.Error(ctx, w, err)
		return
	}
	a.respond.JSON(ctx, w, http.StatusOK, map[string]interface{}{
		"user_id":        userID,
		"achievement_id": achievementID,
		"revoked":        revoked,
	})
}

type recalculateRequest struct {
	UserID     int64  `json:"user_id,omitempty"`
	TriggerKey string `json:"trigger_key,omitempty"`
	BatchSize  int    `json:"batch_size,omitempty"`
}

// Recalculate repairs earned state from source counts. With a user_id it
// recalculates that user; without one it walks every user with progress.
func (a *API) Recalculate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req recalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respond.ValidationError(ctx, w, "invalid request body")
		return
	}

	if req.UserID > 0 {
		unlocked, err := a.services.Engine.RecalculateUser(ctx, req.UserID, req.TriggerKey)
		if err != nil {
			a.respond.Error(ctx, w, err)
			return
		}
		a.respond.JSON(ctx, w, http.StatusOK, map[string]interface{}{
			"user_id":  req.UserID,
			"unlocked": unlocked,
		})
		return
	}

	summary, err := a.services.Engine.BulkRecalculate(ctx, req.BatchSize)
	if err != nil {
		a.respond.Error(ctx, w, err)
		return
	}
	a.respond.JSON(ctx, w, http.StatusOK, summary)
}

// ===============================
// COMMUNITY VIEWS
// ===============================

// Leaderboard returns users ranked by unlocked badge count.
func (a *API) Leaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := queryInt(r, "limit", 10)

	entries, err := a.services.Stats.Leaderboard(ctx, limit)
	if err != nil {
		a.respond.Error(ctx, w, err)
		return
	}
	a.respond.List(ctx, w, entries, len(entries), limit)
}

// RecentUnlocks returns the latest unlocks across all users.
func (a *API) RecentUnlocks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := queryInt(r, "limit", 5)

	unlocks, err := a.services.Stats.RecentUnlocks(ctx, limit)
	if err != nil {
		a.respond.Error(ctx, w, err)
		return
	}
	a.respond.List(ctx, w, unlocks, len(unlocks), limit)
}

// ===============================
// HELPERS
// ===============================

func (a *API) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		a.respond.ValidationError(r.Context(), w, "invalid "+name)
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
