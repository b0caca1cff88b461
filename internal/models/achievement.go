package models

import (
	"encoding/json"
	"time"
)

// Achievement types.
const (
	AchievementTypeBadge = "badge"
	AchievementTypeAward = "award"
)

// Threshold types controlling how the engine evaluates an achievement.
const (
	ThresholdTypeCount   = "count"
	ThresholdTypeBoolean = "boolean"
	ThresholdTypeCustom  = "custom"
)

// Achievement represents a single achievement definition. Definitions are
// authored by the external admin surface and are read-only to the engine.
type Achievement struct {
	ID            int64     `json:"id" db:"id"`
	Key           string    `json:"key" db:"achievement_key" validate:"required,max=100"`
	Type          string    `json:"type" db:"achievement_type" validate:"required,oneof=badge award"`
	Category      string    `json:"category" db:"category" validate:"required,max=50"`
	Name          string    `json:"name" db:"name" validate:"required,max=255"`
	Description   *string   `json:"description,omitempty" db:"description"`
	Threshold     int       `json:"threshold" db:"threshold" validate:"min=1"`
	ThresholdType string    `json:"threshold_type" db:"threshold_type" validate:"required,oneof=count boolean custom"`
	TriggerType   string    `json:"trigger_type" db:"trigger_type" validate:"required,max=100"`
	Criteria      *Criteria `json:"criteria,omitempty" db:"criteria"`
	SortOrder     int       `json:"sort_order" db:"sort_order"`
	IsActive      bool      `json:"is_active" db:"is_active"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// Criteria is the structured predicate attached to an achievement definition.
// Every configured field must hold for an event to match (logical AND).
// A nil or zero-value Criteria matches every event of the trigger type.
type Criteria struct {
	VendorID        *int64   `json:"vendor_id,omitempty"`
	MinAmount       *float64 `json:"min_amount,omitempty"`
	ProductCategory *string  `json:"product_category,omitempty"`
	EventSeries     *string  `json:"event_series,omitempty"`
}

// IsEmpty reports whether no predicate is configured.
func (c *Criteria) IsEmpty() bool {
	if c == nil {
		return true
	}
	return c.VendorID == nil && c.MinAmount == nil && c.ProductCategory == nil && c.EventSeries == nil
}

// ParseCriteria decodes the stored criteria column. A NULL or empty column
// yields nil (match-all), mirroring how definitions without predicates behave.
func ParseCriteria(raw []byte) (*Criteria, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var c Criteria
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	if c.IsEmpty() {
		return nil, nil
	}
	return &c, nil
}
