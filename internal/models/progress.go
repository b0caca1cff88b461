package models

import "time"

// History action types. These are the only values ever written to the
// achievement history log.
const (
	ActionUnlocked     = "unlocked"
	ActionManualGrant  = "manual_grant"
	ActionManualRevoke = "manual_revoke"
)

// ProgressRecord is one user's progress toward one achievement. A record is
// created lazily on first progress update or unlock and is never physically
// deleted in normal operation. UnlockedAt is non-null iff the achievement is
// unlocked; only an explicit revoke transitions it back to null.
type ProgressRecord struct {
	ID            int64      `json:"id" db:"id"`
	UserID        int64      `json:"user_id" db:"user_id"`
	AchievementID int64      `json:"achievement_id" db:"achievement_id"`
	CurrentCount  int        `json:"current_count" db:"current_count"`
	UnlockedAt    *time.Time `json:"unlocked_at,omitempty" db:"unlocked_at"`
	IsFeatured    bool       `json:"is_featured" db:"is_featured"`
	ScopeID       int64      `json:"scope_id" db:"scope_id"`
}

// Unlocked reports whether the record represents an unlocked achievement.
func (p *ProgressRecord) Unlocked() bool {
	return p != nil && p.UnlockedAt != nil
}

// Progress is the read model returned to callers asking "how far along is
// user U on achievement A". Absence of a progress row is reported as zero
// progress, not as an error.
type Progress struct {
	Current    int     `json:"current"`
	Threshold  int     `json:"threshold"`
	Percentage float64 `json:"percentage"`
	Unlocked   bool    `json:"unlocked"`
}

// HistoryEntry is one append-only row in the unlock/grant/revoke audit log.
// Entries are write-once and serve as the reconstruction source of truth.
type HistoryEntry struct {
	ID            int64     `json:"id" db:"id"`
	UserID        int64     `json:"user_id" db:"user_id"`
	AchievementID int64     `json:"achievement_id" db:"achievement_id"`
	ActionType    string    `json:"action_type" db:"action_type"`
	ActorID       *int64    `json:"actor_id,omitempty" db:"actor_id"`
	Notes         string    `json:"notes" db:"notes"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	ScopeID       int64     `json:"scope_id" db:"scope_id"`
}

// UserAchievement joins a progress record with its definition for list views.
type UserAchievement struct {
	ProgressRecord
	Achievement Achievement `json:"achievement"`
}

// LeaderboardEntry is one row of the badge-count leaderboard.
type LeaderboardEntry struct {
	UserID     int64 `json:"user_id" db:"user_id"`
	BadgeCount int   `json:"badge_count" db:"badge_count"`
}
