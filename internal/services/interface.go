package services

import (
	"badgehub/internal/cache"
	"badgehub/internal/config"
	"badgehub/internal/events"
	"badgehub/internal/monitoring"
	"badgehub/internal/registry"
	"badgehub/internal/repositories"

	"go.uber.org/zap"
)

// Collection bundles every service for one-shot wiring in main.
type Collection struct {
	Catalog  CatalogService
	Progress ProgressService
	Engine   EngineService
	Queue    QueueService
	Stats    StatsService

	BadgeCache *BadgeCache
}

// NewCollection wires the full service graph in dependency order.
func NewCollection(
	repos *repositories.Collection,
	c cache.Cache,
	reg *registry.Registry,
	bus *events.Bus,
	metrics *monitoring.Metrics,
	cfg *config.Config,
	logger *zap.Logger,
	engineOpts ...EngineOption,
) *Collection {
	badgeCache := NewBadgeCache(c, cfg.Cache.KeyPrefix, logger)

	catalog := NewCatalogService(repos.Achievements, reg, logger)
	progress := NewProgressService(repos.Progress, repos.Achievements, badgeCache, bus, logger)

	// The stock vendor tier evaluator is installed unless the caller brings
	// their own strategies.
	opts := engineOpts
	if len(opts) == 0 {
		opts = []EngineOption{
			WithCustomThresholdEvaluator(NewVendorTierEvaluator(repos.Metrics, logger)),
		}
	}
	engine := NewEngineService(repos.Achievements, repos.Progress, progress, logger, opts...)

	queue := NewQueueService(repos.Queue, engine, reg, badgeCache, bus, metrics, &cfg.Queue, logger)
	stats := NewStatsService(repos.Progress, badgeCache, logger)

	return &Collection{
		Catalog:    catalog,
		Progress:   progress,
		Engine:     engine,
		Queue:      queue,
		Stats:      stats,
		BadgeCache: badgeCache,
	}
}
