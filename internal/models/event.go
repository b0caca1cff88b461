package models

import (
	"encoding/json"
	"time"
)

// Payload is the structured event payload carried through the queue. It is
// opaque to the queue itself and decoded only by the matching engine.
type Payload map[string]interface{}

// Amount returns the payload amount field if present and numeric.
func (p Payload) Amount() (float64, bool) {
	v, ok := p["amount"]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// VendorID returns the payload vendor_id field if present.
func (p Payload) VendorID() (int64, bool) {
	v, ok := p["vendor_id"]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

// ProductCategories returns the payload's category set, if any.
func (p Payload) ProductCategories() []string {
	v, ok := p["product_categories"]
	if !ok {
		return nil
	}
	switch cats := v.(type) {
	case []string:
		return cats
	case []interface{}:
		out := make([]string, 0, len(cats))
		for _, c := range cats {
			if s, ok := c.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// EventSeries returns the payload event_series field if present.
func (p Payload) EventSeries() (string, bool) {
	s, ok := p["event_series"].(string)
	return s, ok
}

// QueuedEvent is one durable row in the event queue. Once processed the row
// is immutable except for deletion by the retention cleanup job.
type QueuedEvent struct {
	ID            int64      `json:"id" db:"id"`
	UserID        int64      `json:"user_id" db:"user_id"`
	EventType     string     `json:"event_type" db:"event_type"`
	Payload       Payload    `json:"payload" db:"payload"`
	SourceScopeID int64      `json:"source_scope_id" db:"source_scope_id"`
	Processed     bool       `json:"processed" db:"processed"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty" db:"processed_at"`
	EnqueuedAt    time.Time  `json:"enqueued_at" db:"enqueued_at"`
}

// QueueStats is the derived read view over the event queue.
type QueueStats struct {
	Total                int64      `json:"total"`
	Pending              int64      `json:"pending"`
	Processed            int64      `json:"processed"`
	LastRunAt            *time.Time `json:"last_run_at,omitempty"`
	AvgProcessingSeconds float64    `json:"avg_processing_seconds"`
}
