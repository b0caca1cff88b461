package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"badgehub/internal/cache"
	"badgehub/internal/config"
	"badgehub/internal/events"
	"badgehub/internal/models"
	"badgehub/internal/monitoring"
	"badgehub/internal/registry"
	"badgehub/internal/repositories"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// ===============================
// IN-MEMORY REPOSITORY FAKES
// ===============================

type fakeAchievementRepo struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]*models.Achievement
}

func newFakeAchievementRepo() *fakeAchievementRepo {
	return &fakeAchievementRepo{nextID: 1, items: make(map[int64]*models.Achievement)}
}

func (r *fakeAchievementRepo) GetByID(ctx context.Context, id int64) (*models.Achievement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAchievementRepo) GetByKey(ctx context.Context, key string) (*models.Achievement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.items {
		if a.Key == key {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *fakeAchievementRepo) ListActive(ctx context.Context) ([]*models.Achievement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Achievement
	for _, a := range r.items {
		if a.IsActive {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeAchievementRepo) ListActiveByTrigger(ctx context.Context, triggerType string) ([]*models.Achievement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Achievement
	for _, a := range r.items {
		if a.IsActive && a.TriggerType == triggerType {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Threshold != out[j].Threshold {
			return out[i].Threshold < out[j].Threshold
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *fakeAchievementRepo) Create(ctx context.Context, a *models.Achievement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.ID = r.nextID
	r.nextID++
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	r.items[a.ID] = &cp
	return nil
}

func (r *fakeAchievementRepo) Update(ctx context.Context, a *models.Achievement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[a.ID]; !ok {
		return repositories.ErrNotFound
	}
	cp := *a
	r.items[a.ID] = &cp
	return nil
}

func (r *fakeAchievementRepo) Deactivate(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[id]
	if !ok {
		return repositories.ErrNotFound
	}
	a.IsActive = false
	return nil
}

type progressKey struct {
	userID, achievementID int64
}

type fakeProgressRepo struct {
	mu      sync.Mutex
	nextID  int64
	records map[progressKey]*models.ProgressRecord
	history []*models.HistoryEntry
	achRepo *fakeAchievementRepo
}

func newFakeProgressRepo(achRepo *fakeAchievementRepo) *fakeProgressRepo {
	return &fakeProgressRepo{
		nextID:  1,
		records: make(map[progressKey]*models.ProgressRecord),
		achRepo: achRepo,
	}
}

func (r *fakeProgressRepo) Get(ctx context.Context, userID, achievementID int64) (*models.ProgressRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[progressKey{userID, achievementID}]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *fakeProgressRepo) IncrementProgress(ctx context.Context, userID, achievementID int64, delta int, scopeID int64) (*models.ProgressRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := progressKey{userID, achievementID}
	rec, ok := r.records[key]
	if !ok {
		rec = &models.ProgressRecord{
			ID:            r.nextID,
			UserID:        userID,
			AchievementID: achievementID,
			ScopeID:       scopeID,
		}
		r.nextID++
		r.records[key] = rec
	}
	rec.CurrentCount += delta
	cp := *rec
	return &cp, nil
}

func (r *fakeProgressRepo) SetProgress(ctx context.Context, userID, achievementID int64, count int, scopeID int64) (*models.ProgressRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := progressKey{userID, achievementID}
	rec, ok := r.records[key]
	if !ok {
		rec = &models.ProgressRecord{
			ID:            r.nextID,
			UserID:        userID,
			AchievementID: achievementID,
			ScopeID:       scopeID,
		}
		r.nextID++
		r.records[key] = rec
	}
	rec.CurrentCount = count
	cp := *rec
	return &cp, nil
}

func (r *fakeProgressRepo) Unlock(ctx context.Context, userID, achievementID int64, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[progressKey{userID, achievementID}]
	if !ok || rec.UnlockedAt != nil {
		return false, nil
	}
	t := at
	rec.UnlockedAt = &t
	return true, nil
}

func (r *fakeProgressRepo) Revoke(ctx context.Context, userID, achievementID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[progressKey{userID, achievementID}]
	if !ok || rec.UnlockedAt == nil {
		return false, nil
	}
	rec.UnlockedAt = nil
	rec.IsFeatured = false
	rec.CurrentCount = 0
	return true, nil
}

func (r *fakeProgressRepo) SetFeatured(ctx context.Context, userID, achievementID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	target, ok := r.records[progressKey{userID, achievementID}]
	if !ok || target.UnlockedAt == nil {
		return repositories.ErrNotFound
	}
	for key, rec := range r.records {
		if key.userID == userID {
			rec.IsFeatured = false
		}
	}
	target.IsFeatured = true
	return nil
}

func (r *fakeProgressRepo) FeaturedBadge(ctx context.Context, userID int64) (*models.UserAchievement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, rec := range r.records {
		if key.userID == userID && rec.IsFeatured && rec.UnlockedAt != nil {
			return r.join(rec), nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *fakeProgressRepo) ListForUser(ctx context.Context, userID int64, unlockedOnly bool) ([]*models.UserAchievement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.UserAchievement
	for key, rec := range r.records {
		if key.userID != userID {
			continue
		}
		if unlockedOnly && rec.UnlockedAt == nil {
			continue
		}
		out = append(out, r.join(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AchievementID < out[j].AchievementID })
	return out, nil
}

func (r *fakeProgressRepo) CountUnlocked(ctx context.Context, userID int64, achievementType, category string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for key, rec := range r.records {
		if key.userID != userID || rec.UnlockedAt == nil {
			continue
		}
		defn := r.achRepo.items[key.achievementID]
		if defn == nil {
			continue
		}
		if achievementType != "" && defn.Type != achievementType {
			continue
		}
		if category != "" && defn.Category != category {
			continue
		}
		count++
	}
	return count, nil
}

func (r *fakeProgressRepo) Leaderboard(ctx context.Context, limit int) ([]*models.LeaderboardEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[int64]int)
	for key, rec := range r.records {
		if rec.UnlockedAt != nil {
			counts[key.userID]++
		}
	}
	var out []*models.LeaderboardEntry
	for userID, n := range counts {
		out = append(out, &models.LeaderboardEntry{UserID: userID, BadgeCount: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BadgeCount != out[j].BadgeCount {
			return out[i].BadgeCount > out[j].BadgeCount
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeProgressRepo) RecentUnlocks(ctx context.Context, limit int) ([]*models.UserAchievement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.UserAchievement
	for _, rec := range r.records {
		if rec.UnlockedAt != nil {
			out = append(out, r.join(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnlockedAt.After(*out[j].UnlockedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeProgressRepo) ListUserIDs(ctx context.Context, afterID int64, limit int) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[int64]struct{})
	for key := range r.records {
		if key.userID > afterID {
			seen[key.userID] = struct{}{}
		}
	}
	var ids []int64
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (r *fakeProgressRepo) AppendHistory(ctx context.Context, entry *models.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = int64(len(r.history) + 1)
	entry.CreatedAt = time.Now()
	cp := *entry
	r.history = append(r.history, &cp)
	return nil
}

func (r *fakeProgressRepo) History(ctx context.Context, userID int64, limit int) ([]*models.HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.HistoryEntry
	for i := len(r.history) - 1; i >= 0; i-- {
		if r.history[i].UserID == userID {
			cp := *r.history[i]
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeProgressRepo) historyFor(userID, achievementID int64) []*models.HistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.HistoryEntry
	for _, e := range r.history {
		if e.UserID == userID && e.AchievementID == achievementID {
			out = append(out, e)
		}
	}
	return out
}

// join must be called with the lock held.
func (r *fakeProgressRepo) join(rec *models.ProgressRecord) *models.UserAchievement {
	ua := &models.UserAchievement{ProgressRecord: *rec}
	if defn := r.achRepo.items[rec.AchievementID]; defn != nil {
		ua.Achievement = *defn
	}
	return ua
}

type fakeQueueRepo struct {
	mu     sync.Mutex
	nextID int64
	events []*models.QueuedEvent
}

func newFakeQueueRepo() *fakeQueueRepo {
	return &fakeQueueRepo{nextID: 1}
}

func (r *fakeQueueRepo) Insert(ctx context.Context, event *models.QueuedEvent) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event.ID = r.nextID
	r.nextID++
	if event.EnqueuedAt.IsZero() {
		event.EnqueuedAt = time.Now()
	}
	cp := *event
	r.events = append(r.events, &cp)
	return event.ID, nil
}

func (r *fakeQueueRepo) GetByID(ctx context.Context, id int64) (*models.QueuedEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == id {
			cp := *e
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *fakeQueueRepo) SelectUnprocessed(ctx context.Context, limit int) ([]*models.QueuedEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.QueuedEvent
	for _, e := range r.events {
		if !e.Processed {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EnqueuedAt.Equal(out[j].EnqueuedAt) {
			return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeQueueRepo) MarkProcessed(ctx context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == id && !e.Processed {
			e.Processed = true
			t := at
			e.ProcessedAt = &t
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (r *fakeQueueRepo) Stats(ctx context.Context) (*models.QueueStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &models.QueueStats{}
	var totalSeconds float64
	for _, e := range r.events {
		stats.Total++
		if e.Processed {
			stats.Processed++
			if e.ProcessedAt != nil {
				totalSeconds += e.ProcessedAt.Sub(e.EnqueuedAt).Seconds()
				if stats.LastRunAt == nil || e.ProcessedAt.After(*stats.LastRunAt) {
					stats.LastRunAt = e.ProcessedAt
				}
			}
		} else {
			stats.Pending++
		}
	}
	if stats.Processed > 0 {
		stats.AvgProcessingSeconds = totalSeconds / float64(stats.Processed)
	}
	return stats, nil
}

func (r *fakeQueueRepo) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []*models.QueuedEvent
	var deleted int64
	for _, e := range r.events {
		if e.Processed && e.ProcessedAt != nil && e.ProcessedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	r.events = kept
	return deleted, nil
}

func (r *fakeQueueRepo) RecentForUser(ctx context.Context, userID int64, limit int) ([]*models.QueuedEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.QueuedEvent
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].UserID == userID {
			cp := *r.events[i]
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeQueueRepo) ListByType(ctx context.Context, eventType string, limit int) ([]*models.QueuedEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.QueuedEvent
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].EventType == eventType {
			cp := *r.events[i]
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

type vendorKey struct {
	userID, vendorID int64
	metricType       string
}

type fakeMetricsRepo struct {
	mu      sync.Mutex
	vendor  map[vendorKey]*models.VendorMetric
	content map[string]*models.ContentMetric
}

func newFakeMetricsRepo() *fakeMetricsRepo {
	return &fakeMetricsRepo{
		vendor:  make(map[vendorKey]*models.VendorMetric),
		content: make(map[string]*models.ContentMetric),
	}
}

func (r *fakeMetricsRepo) UpsertVendorMetric(ctx context.Context, userID, vendorID int64, metricType string, delta float64) (*models.VendorMetric, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := vendorKey{userID, vendorID, metricType}
	m, ok := r.vendor[key]
	if !ok {
		m = &models.VendorMetric{UserID: userID, VendorID: vendorID, MetricType: metricType}
		r.vendor[key] = m
	}
	m.CurrentValue += delta
	m.UpdatedAt = time.Now()
	cp := *m
	return &cp, nil
}

func (r *fakeMetricsRepo) GetVendorMetric(ctx context.Context, userID, vendorID int64, metricType string) (*models.VendorMetric, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.vendor[vendorKey{userID, vendorID, metricType}]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMetricsRepo) UpsertContentMetric(ctx context.Context, m *models.ContentMetric) error {
	return nil
}

func (r *fakeMetricsRepo) GetContentMetric(ctx context.Context, userID int64, contentType string, contentID int64, metricType string) (*models.ContentMetric, error) {
	return nil, repositories.ErrNotFound
}

// ===============================
// TEST HARNESS
// ===============================

type testEnv struct {
	achievements *fakeAchievementRepo
	progressRepo *fakeProgressRepo
	queueRepo    *fakeQueueRepo
	metricsRepo  *fakeMetricsRepo
	bus          *events.Bus
	services     *Collection
}

func newTestEnv() *testEnv {
	logger := zap.NewNop()
	achievements := newFakeAchievementRepo()
	progressRepo := newFakeProgressRepo(achievements)
	queueRepo := newFakeQueueRepo()
	metricsRepo := newFakeMetricsRepo()

	repos := &repositories.Collection{
		Achievements: achievements,
		Progress:     progressRepo,
		Queue:        queueRepo,
		Metrics:      metricsRepo,
	}

	cfg := &config.Config{
		Cache: config.CacheConfig{KeyPrefix: "badgehub", DefaultTTL: time.Hour},
		Queue: config.QueueConfig{
			DrainInterval: time.Minute,
			BatchSize:     50,
			RetentionDays: 30,
			StatsCacheTTL: 30 * time.Second,
		},
	}

	bus := events.NewBus(events.DefaultBusConfig(), logger)
	metrics := monitoring.New(prometheus.NewRegistry())
	memCache := cache.NewMemoryCache(time.Hour)

	svcs := NewCollection(repos, memCache, registry.NewDefault(), bus, metrics, cfg, logger)

	return &testEnv{
		achievements: achievements,
		progressRepo: progressRepo,
		queueRepo:    queueRepo,
		metricsRepo:  metricsRepo,
		bus:          bus,
		services:     svcs,
	}
}

func (e *testEnv) addAchievement(a models.Achievement) *models.Achievement {
	a.IsActive = true
	if a.Type == "" {
		a.Type = models.AchievementTypeBadge
	}
	if a.ThresholdType == "" {
		a.ThresholdType = models.ThresholdTypeCount
	}
	_ = e.achievements.Create(context.Background(), &a)
	return &a
}
