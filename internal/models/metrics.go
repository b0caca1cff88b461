package models

import "time"

// Vendor metric types pre-aggregated by commerce adapters.
const (
	VendorMetricPurchaseCount = "purchase_count"
	VendorMetricTotalSpent    = "total_spent"
	VendorMetricOrdersOverX   = "orders_over_x"
)

// VendorMetric is an adapter-maintained running total for one user and
// vendor. The core never writes these; criteria and custom-threshold
// extensions read them when evaluating vendor tier achievements.
type VendorMetric struct {
	ID           int64     `json:"id" db:"id"`
	UserID       int64     `json:"user_id" db:"user_id"`
	VendorID     int64     `json:"vendor_id" db:"vendor_id"`
	MetricType   string    `json:"metric_type" db:"metric_type"`
	CurrentValue float64   `json:"current_value" db:"current_value"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Content metric types pre-aggregated by content adapters.
const (
	ContentMetricLikes    = "likes"
	ContentMetricComments = "comments"
	ContentMetricShares   = "shares"
)

// ContentMetric tracks engagement milestones on a single piece of content.
type ContentMetric struct {
	ID               int64  `json:"id" db:"id"`
	UserID           int64  `json:"user_id" db:"user_id"`
	ContentType      string `json:"content_type" db:"content_type"`
	ContentID        int64  `json:"content_id" db:"content_id"`
	MetricType       string `json:"metric_type" db:"metric_type"`
	CurrentCount     int    `json:"current_count" db:"current_count"`
	MilestoneReached int    `json:"milestone_reached" db:"milestone_reached"`
}
