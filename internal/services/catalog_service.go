package services

import (
	"context"
	"fmt"

	"badgehub/internal/models"
	"badgehub/internal/registry"
	"badgehub/internal/repositories"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ===============================
// CATALOG SERVICE
// ===============================

// CatalogService exposes achievement definitions. The catalog is read-mostly:
// the engine only reads, the external admin surface writes through Create and
// Update.
type CatalogService interface {
	GetByID(ctx context.Context, id int64) (*models.Achievement, error)
	GetByKey(ctx context.Context, key string) (*models.Achievement, error)
	ListActive(ctx context.Context) ([]*models.Achievement, error)
	ListActiveByTrigger(ctx context.Context, triggerType string) ([]*models.Achievement, error)
	Create(ctx context.Context, a *models.Achievement) error
	Update(ctx context.Context, a *models.Achievement) error
	Deactivate(ctx context.Context, id int64) error
}

type catalogService struct {
	repo     repositories.AchievementRepository
	registry *registry.Registry
	validate *validator.Validate
	logger   *zap.Logger
}

// NewCatalogService creates the catalog service.
func NewCatalogService(repo repositories.AchievementRepository, reg *registry.Registry, logger *zap.Logger) CatalogService {
	return &catalogService{
		repo:     repo,
		registry: reg,
		validate: validator.New(),
		logger:   logger,
	}
}

func (s *catalogService) GetByID(ctx context.Context, id int64) (*models.Achievement, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, NewNotFoundError(fmt.Sprintf("achievement %d not found", id))
		}
		return nil, NewInternalError("failed to load achievement")
	}
	return a, nil
}

func (s *catalogService) GetByKey(ctx context.Context, key string) (*models.Achievement, error) {
	a, err := s.repo.GetByKey(ctx, key)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, NewNotFoundError(fmt.Sprintf("achievement %q not found", key))
		}
		return nil, NewInternalError("failed to load achievement")
	}
	return a, nil
}

func (s *catalogService) ListActive(ctx context.Context) ([]*models.Achievement, error) {
	return s.repo.ListActive(ctx)
}

func (s *catalogService) ListActiveByTrigger(ctx context.Context, triggerType string) ([]*models.Achievement, error) {
	return s.repo.ListActiveByTrigger(ctx, triggerType)
}

func (s *catalogService) Create(ctx context.Context, a *models.Achievement) error {
	if err := s.validateDefinition(a); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, a); err != nil {
		s.logger.Error("Failed to create achievement", zap.String("key", a.Key), zap.Error(err))
		return NewInternalError("failed to create achievement")
	}
	s.logger.Info("Achievement created",
		zap.Int64("id", a.ID),
		zap.String("key", a.Key),
		zap.String("trigger_type", a.TriggerType),
	)
	return nil
}

func (s *catalogService) Update(ctx context.Context, a *models.Achievement) error {
	if err := s.validateDefinition(a); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, a); err != nil {
		if repositories.IsNotFound(err) {
			return NewNotFoundError(fmt.Sprintf("achievement %d not found", a.ID))
		}
		return NewInternalError("failed to update achievement")
	}
	return nil
}

func (s *catalogService) Deactivate(ctx context.Context, id int64) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		if repositories.IsNotFound(err) {
			return NewNotFoundError(fmt.Sprintf("achievement %d not found", id))
		}
		return NewInternalError("failed to deactivate achievement")
	}
	return nil
}

func (s *catalogService) validateDefinition(a *models.Achievement) error {
	if err := s.validate.Struct(a); err != nil {
		return NewValidationError("invalid achievement definition", err)
	}
	if !s.registry.IsRegistered(a.TriggerType) {
		return NewValidationError(fmt.Sprintf("unknown trigger type %q", a.TriggerType), nil)
	}
	if a.ThresholdType == models.ThresholdTypeBoolean && a.Threshold != 1 {
		return NewValidationError("boolean achievements must have threshold 1", nil)
	}
	return nil
}
