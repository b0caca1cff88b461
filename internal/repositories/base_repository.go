package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// IsNotFound reports whether err is a missing-row error from any layer.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, sql.ErrNoRows)
}

// baseRepository carries the shared database handle and logger.
type baseRepository struct {
	db     DB
	logger *zap.Logger
}

// WithTransaction runs fn inside a transaction, rolling back on error or
// panic.
func (r *baseRepository) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Error("Transaction rollback failed", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// NewCollection wires every repository against the shared handle.
func NewCollection(db DB, logger *zap.Logger) *Collection {
	return &Collection{
		Achievements: NewAchievementRepository(db, logger),
		Progress:     NewProgressRepository(db, logger),
		Queue:        NewQueueRepository(db, logger),
		Metrics:      NewMetricsRepository(db, logger),
	}
}
