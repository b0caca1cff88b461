package services

import (
	"context"
	"fmt"

	"badgehub/internal/models"
	"badgehub/internal/repositories"

	"go.uber.org/zap"
)

// ===============================
// EXTENSION POINTS
// ===============================

// CriteriaExtension lets an integration adjust a criteria verdict. The
// built-in predicates are always evaluated first; the extension receives
// their result and returns the final one.
type CriteriaExtension interface {
	Evaluate(defn *models.Achievement, payload models.Payload, matched bool) bool
}

// CustomThresholdEvaluator decides whether a custom-threshold achievement
// should unlock for this event. Implementations typically consult adapter
// metrics (vendor totals, content milestones).
type CustomThresholdEvaluator interface {
	ShouldUnlock(ctx context.Context, userID int64, defn *models.Achievement, payload models.Payload) (bool, error)
}

// ActivityCounter recomputes a user's true activity count for a trigger from
// ground truth. Only the recalculation path uses it.
type ActivityCounter interface {
	Count(ctx context.Context, userID int64, triggerKey string) (int, error)
}

// ===============================
// ENGINE SERVICE
// ===============================

// RecalculateSummary reports one bulk recalculation run.
type RecalculateSummary struct {
	UsersProcessed int `json:"users_processed"`
	Unlocked       int `json:"unlocked"`
	Errors         int `json:"errors"`
}

// EngineService is the matching and unlock engine. Events come in, unlocks
// come out; everything else is bookkeeping.
type EngineService interface {
	// ProcessEvent evaluates one event against every active definition for
	// its trigger and returns how many achievements it unlocked.
	ProcessEvent(ctx context.Context, userID int64, eventType string, payload models.Payload, sourceScopeID int64) (int, error)
	// MatchesCriteria reports whether the payload satisfies the definition's
	// criteria. Empty criteria match everything.
	MatchesCriteria(defn *models.Achievement, payload models.Payload) bool
	// CheckAndUnlock advances or unlocks one definition for one user.
	CheckAndUnlock(ctx context.Context, userID int64, defn *models.Achievement, payload models.Payload) (bool, error)
	// RecalculateUser repairs a user's progress from ground truth. An empty
	// triggerKey recalculates every trigger the catalog knows.
	RecalculateUser(ctx context.Context, userID int64, triggerKey string) ([]int64, error)
	BulkRecalculate(ctx context.Context, batchSize int) (*RecalculateSummary, error)
	// NextTier returns the next higher-threshold active definition on the
	// same trigger, or nil at the top of the chain.
	NextTier(ctx context.Context, triggerKey string, currentAchievementID int64) (*models.Achievement, error)
	// PreviewUnlocks lists definitions a hypothetical count would unlock.
	PreviewUnlocks(ctx context.Context, userID int64, triggerKey string, hypotheticalCount int) ([]*models.Achievement, error)
}

type engineService struct {
	achievements repositories.AchievementRepository
	progressRepo repositories.ProgressRepository
	progress     ProgressService
	extension    CriteriaExtension
	customEval   CustomThresholdEvaluator
	counter      ActivityCounter
	logger       *zap.Logger
}

// EngineOption customizes engine construction.
type EngineOption func(*engineService)

// WithCriteriaExtension installs a criteria extension.
func WithCriteriaExtension(ext CriteriaExtension) EngineOption {
	return func(e *engineService) { e.extension = ext }
}

// WithCustomThresholdEvaluator installs the custom-threshold strategy.
func WithCustomThresholdEvaluator(eval CustomThresholdEvaluator) EngineOption {
	return func(e *engineService) { e.customEval = eval }
}

// WithActivityCounter installs the recalculation ground-truth source.
func WithActivityCounter(counter ActivityCounter) EngineOption {
	return func(e *engineService) { e.counter = counter }
}

// NewEngineService creates the engine.
func NewEngineService(
	achievements repositories.AchievementRepository,
	progressRepo repositories.ProgressRepository,
	progress ProgressService,
	logger *zap.Logger,
	opts ...EngineOption,
) EngineService {
	e := &engineService{
		achievements: achievements,
		progressRepo: progressRepo,
		progress:     progress,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *engineService) ProcessEvent(ctx context.Context, userID int64, eventType string, payload models.Payload, sourceScopeID int64) (int, error) {
	defns, err := e.achievements.ListActiveByTrigger(ctx, eventType)
	if err != nil {
		return 0, NewInternalError("failed to load achievement definitions")
	}
	if len(defns) == 0 {
		return 0, nil
	}

	unlocked := 0
	for _, defn := range defns {
		if !e.MatchesCriteria(defn, payload) {
			continue
		}
		didUnlock, err := e.checkAndUnlockScoped(ctx, userID, defn, payload, sourceScopeID)
		if err != nil {
			// One broken definition must not block the rest of the chain.
			e.logger.Error("Failed to evaluate achievement",
				zap.Int64("user_id", userID),
				zap.Int64("achievement_id", defn.ID),
				zap.String("event_type", eventType),
				zap.Error(err),
			)
			continue
		}
		if didUnlock {
			unlocked++
		}
	}
	return unlocked, nil
}

func (e *engineService) MatchesCriteria(defn *models.Achievement, payload models.Payload) bool {
	matched := e.matchesBuiltins(defn.Criteria, payload)
	if e.extension != nil {
		matched = e.extension.Evaluate(defn, payload, matched)
	}
	return matched
}

// matchesBuiltins evaluates the structured predicates. Every configured
// field must hold; a predicate whose payload field is absent fails.
func (e *engineService) matchesBuiltins(c *models.Criteria, payload models.Payload) bool {
	if c.IsEmpty() {
		return true
	}

	if c.VendorID != nil {
		vendorID, ok := payload.VendorID()
		if !ok || vendorID != *c.VendorID {
			return false
		}
	}

	if c.MinAmount != nil {
		amount, ok := payload.Amount()
		if !ok || amount < *c.MinAmount {
			return false
		}
	}

	if c.ProductCategory != nil {
		categories := payload.ProductCategories()
		found := false
		for _, cat := range categories {
			if cat == *c.ProductCategory {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if c.EventSeries != nil {
		series, ok := payload.EventSeries()
		if !ok || series != *c.EventSeries {
			return false
		}
	}

	return true
}

func (e *engineService) CheckAndUnlock(ctx context.Context, userID int64, defn *models.Achievement, payload models.Payload) (bool, error) {
	return e.checkAndUnlockScoped(ctx, userID, defn, payload, 0)
}

func (e *engineService) checkAndUnlockScoped(ctx context.Context, userID int64, defn *models.Achievement, payload models.Payload, scopeID int64) (bool, error) {
	switch defn.ThresholdType {
	case models.ThresholdTypeBoolean:
		// First match unlocks; the count is never touched.
		return e.progress.Unlock(ctx, userID, defn.ID, models.ActionUnlocked, nil, "")

	case models.ThresholdTypeCustom:
		if e.customEval == nil {
			e.logger.Warn("Custom achievement has no evaluator installed",
				zap.Int64("achievement_id", defn.ID),
				zap.String("key", defn.Key),
			)
			return false, nil
		}
		shouldUnlock, err := e.customEval.ShouldUnlock(ctx, userID, defn, payload)
		if err != nil {
			return false, err
		}
		if !shouldUnlock {
			return false, nil
		}
		return e.progress.Unlock(ctx, userID, defn.ID, models.ActionUnlocked, nil, "")

	default: // count
		existing, err := e.progressRepo.Get(ctx, userID, defn.ID)
		if err != nil && !repositories.IsNotFound(err) {
			return false, err
		}
		if existing.Unlocked() {
			// Unlocked count achievements stop accumulating.
			return false, nil
		}

		// Flat +1 per matching event regardless of payload magnitude, then
		// re-read so concurrent increments are all observed.
		record, err := e.progress.UpdateProgress(ctx, userID, defn.ID, 1, scopeID)
		if err != nil {
			return false, err
		}
		if record.CurrentCount < defn.Threshold {
			return false, nil
		}
		return e.progress.Unlock(ctx, userID, defn.ID, models.ActionUnlocked, nil, "")
	}
}

func (e *engineService) RecalculateUser(ctx context.Context, userID int64, triggerKey string) ([]int64, error) {
	if e.counter == nil {
		return nil, NewInternalError("no activity counter installed")
	}

	var defns []*models.Achievement
	var err error
	if triggerKey != "" {
		defns, err = e.achievements.ListActiveByTrigger(ctx, triggerKey)
	} else {
		defns, err = e.achievements.ListActive(ctx)
	}
	if err != nil {
		return nil, NewInternalError("failed to load achievement definitions")
	}

	trueCounts := make(map[string]int)
	var unlockedIDs []int64

	for _, defn := range defns {
		if defn.ThresholdType != models.ThresholdTypeCount {
			continue
		}

		count, ok := trueCounts[defn.TriggerType]
		if !ok {
			count, err = e.counter.Count(ctx, userID, defn.TriggerType)
			if err != nil {
				e.logger.Error("Activity counter failed",
					zap.Int64("user_id", userID),
					zap.String("trigger", defn.TriggerType),
					zap.Error(err),
				)
				continue
			}
			trueCounts[defn.TriggerType] = count
		}

		if _, err := e.progressRepo.SetProgress(ctx, userID, defn.ID, count, 0); err != nil {
			e.logger.Error("Failed to repair progress count",
				zap.Int64("user_id", userID),
				zap.Int64("achievement_id", defn.ID),
				zap.Error(err),
			)
			continue
		}

		if count >= defn.Threshold {
			didUnlock, err := e.progress.Unlock(ctx, userID, defn.ID, models.ActionUnlocked, nil, "recalculated")
			if err != nil {
				e.logger.Error("Failed to unlock during recalculation",
					zap.Int64("user_id", userID),
					zap.Int64("achievement_id", defn.ID),
					zap.Error(err),
				)
				continue
			}
			if didUnlock {
				unlockedIDs = append(unlockedIDs, defn.ID)
			}
		}
	}
	return unlockedIDs, nil
}

func (e *engineService) BulkRecalculate(ctx context.Context, batchSize int) (*RecalculateSummary, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	summary := &RecalculateSummary{}
	var afterID int64

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		userIDs, err := e.progressRepo.ListUserIDs(ctx, afterID, batchSize)
		if err != nil {
			return summary, NewInternalError("failed to list users for recalculation")
		}
		if len(userIDs) == 0 {
			break
		}

		for _, userID := range userIDs {
			unlocked, err := e.RecalculateUser(ctx, userID, "")
			if err != nil {
				summary.Errors++
				continue
			}
			summary.UsersProcessed++
			summary.Unlocked += len(unlocked)
		}
		afterID = userIDs[len(userIDs)-1]
	}

	e.logger.Info("Bulk recalculation finished",
		zap.Int("users_processed", summary.UsersProcessed),
		zap.Int("unlocked", summary.Unlocked),
		zap.Int("errors", summary.Errors),
	)
	return summary, nil
}

func (e *engineService) NextTier(ctx context.Context, triggerKey string, currentAchievementID int64) (*models.Achievement, error) {
	current, err := e.achievements.GetByID(ctx, currentAchievementID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, NewNotFoundError(fmt.Sprintf("achievement %d not found", currentAchievementID))
		}
		return nil, NewInternalError("failed to load achievement")
	}

	defns, err := e.achievements.ListActiveByTrigger(ctx, triggerKey)
	if err != nil {
		return nil, NewInternalError("failed to load achievement definitions")
	}

	// Definitions arrive threshold-ascending; the first strictly above the
	// current threshold is the next tier.
	for _, defn := range defns {
		if defn.Threshold > current.Threshold {
			return defn, nil
		}
	}
	return nil, nil
}

func (e *engineService) PreviewUnlocks(ctx context.Context, userID int64, triggerKey string, hypotheticalCount int) ([]*models.Achievement, error) {
	defns, err := e.achievements.ListActiveByTrigger(ctx, triggerKey)
	if err != nil {
		return nil, NewInternalError("failed to load achievement definitions")
	}

	var out []*models.Achievement
	for _, defn := range defns {
		if defn.ThresholdType != models.ThresholdTypeCount {
			continue
		}
		if hypotheticalCount < defn.Threshold {
			continue
		}
		record, err := e.progressRepo.Get(ctx, userID, defn.ID)
		if err != nil && !repositories.IsNotFound(err) {
			return nil, NewInternalError("failed to load progress")
		}
		if record.Unlocked() {
			continue
		}
		out = append(out, defn)
	}
	return out, nil
}
