package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"badgehub/internal/models"

	"go.uber.org/zap"
)

type queueRepository struct {
	baseRepository
}

// NewQueueRepository creates the durable event queue repository.
func NewQueueRepository(db DB, logger *zap.Logger) QueueRepository {
	return &queueRepository{baseRepository{db: db, logger: logger}}
}

const queueColumns = `id, user_id, event_type, payload, source_scope_id, processed, processed_at, enqueued_at`

func (r *queueRepository) Insert(ctx context.Context, event *models.QueuedEvent) (int64, error) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	err = r.db.QueryRowContext(ctx,
		`INSERT INTO event_queue (user_id, event_type, payload, source_scope_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, enqueued_at`,
		event.UserID, event.EventType, payload, event.SourceScopeID,
	).Scan(&event.ID, &event.EnqueuedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue event: %w", err)
	}
	return event.ID, nil
}

func (r *queueRepository) GetByID(ctx context.Context, id int64) (*models.QueuedEvent, error) {
	row := r.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM event_queue WHERE id = $1`, queueColumns), id)
	return scanQueuedEventRow(row)
}

func (r *queueRepository) SelectUnprocessed(ctx context.Context, limit int) ([]*models.QueuedEvent, error) {
	// Enqueue order with id as tiebreaker keeps the batch strictly FIFO.
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM event_queue
			WHERE processed = FALSE
			ORDER BY enqueued_at ASC, id ASC
			LIMIT $1`, queueColumns), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select unprocessed events: %w", err)
	}
	defer rows.Close()
	return scanQueuedEvents(rows)
}

func (r *queueRepository) MarkProcessed(ctx context.Context, id int64, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE event_queue SET processed = TRUE, processed_at = $2
		 WHERE id = $1 AND processed = FALSE`, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *queueRepository) Stats(ctx context.Context) (*models.QueueStats, error) {
	var stats models.QueueStats
	var avg sql.NullFloat64
	var lastRun sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE processed = FALSE),
			COUNT(*) FILTER (WHERE processed = TRUE),
			MAX(processed_at),
			AVG(EXTRACT(EPOCH FROM (processed_at - enqueued_at))) FILTER (WHERE processed = TRUE)
		 FROM event_queue`,
	).Scan(&stats.Total, &stats.Pending, &stats.Processed, &lastRun, &avg)
	if err != nil {
		return nil, fmt.Errorf("failed to load queue stats: %w", err)
	}

	if lastRun.Valid {
		stats.LastRunAt = &lastRun.Time
	}
	if avg.Valid {
		stats.AvgProcessingSeconds = avg.Float64
	}
	return &stats, nil
}

func (r *queueRepository) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM event_queue WHERE processed = TRUE AND processed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up processed events: %w", err)
	}
	return result.RowsAffected()
}

func (r *queueRepository) RecentForUser(ctx context.Context, userID int64, limit int) ([]*models.QueuedEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM event_queue
			WHERE user_id = $1
			ORDER BY enqueued_at DESC, id DESC
			LIMIT $2`, queueColumns), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent events: %w", err)
	}
	defer rows.Close()
	return scanQueuedEvents(rows)
}

func (r *queueRepository) ListByType(ctx context.Context, eventType string, limit int) ([]*models.QueuedEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM event_queue
			WHERE event_type = $1
			ORDER BY enqueued_at DESC, id DESC
			LIMIT $2`, queueColumns), eventType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events by type: %w", err)
	}
	defer rows.Close()
	return scanQueuedEvents(rows)
}

func scanQueuedEventRow(row *sql.Row) (*models.QueuedEvent, error) {
	var e models.QueuedEvent
	var payload []byte
	err := row.Scan(&e.ID, &e.UserID, &e.EventType, &payload,
		&e.SourceScopeID, &e.Processed, &e.ProcessedAt, &e.EnqueuedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan queued event: %w", err)
	}
	decodePayload(&e, payload)
	return &e, nil
}

func scanQueuedEvents(rows *sql.Rows) ([]*models.QueuedEvent, error) {
	var out []*models.QueuedEvent
	for rows.Next() {
		var e models.QueuedEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.UserID, &e.EventType, &payload,
			&e.SourceScopeID, &e.Processed, &e.ProcessedAt, &e.EnqueuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan queued event row: %w", err)
		}
		decodePayload(&e, payload)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// decodePayload tolerates malformed payload columns: the engine treats a nil
// payload as matching nothing with criteria, so a bad row degrades instead of
// wedging the queue.
func decodePayload(e *models.QueuedEvent, raw []byte) {
	if len(raw) == 0 {
		return
	}
	var p models.Payload
	if err := json.Unmarshal(raw, &p); err == nil {
		e.Payload = p
	}
}
