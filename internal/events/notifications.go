package events

import (
	"time"

	"github.com/gofrs/uuid"
)

// Notification types published by the pipeline.
const (
	TypeEventQueued        = "event.queued"
	TypeEventProcessed     = "event.processed"
	TypeAchievementUnlock  = "achievement.unlocked"
	TypeAchievementRevoked = "achievement.revoked"
	TypeFeaturedBadgeSet   = "achievement.featured"
)

// Notification is an in-process message about something the pipeline did.
type Notification interface {
	NotificationID() string
	NotificationType() string
	OccurredAt() time.Time
}

// BaseNotification carries the fields every notification shares.
type BaseNotification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func (n BaseNotification) NotificationID() string   { return n.ID }
func (n BaseNotification) NotificationType() string { return n.Type }
func (n BaseNotification) OccurredAt() time.Time    { return n.Timestamp }

func newBase(notificationType string) BaseNotification {
	return BaseNotification{
		ID:        newNotificationID(),
		Type:      notificationType,
		Timestamp: time.Now().UTC(),
	}
}

func newNotificationID() string {
	id, err := uuid.NewV4()
	if err != nil {
		// NewV4 only fails when the entropy source does; fall back to a
		// timestamp-derived ID rather than dropping the notification.
		return uuid.Must(uuid.NewV1()).String()
	}
	return id.String()
}

// EventQueued is published when an event is accepted into the durable queue.
type EventQueued struct {
	BaseNotification
	QueueID   int64  `json:"queue_id"`
	UserID    int64  `json:"user_id"`
	EventType string `json:"event_type"`
	Immediate bool   `json:"immediate"`
}

// NewEventQueued builds an EventQueued notification.
func NewEventQueued(queueID, userID int64, eventType string, immediate bool) *EventQueued {
	return &EventQueued{
		BaseNotification: newBase(TypeEventQueued),
		QueueID:          queueID,
		UserID:           userID,
		EventType:        eventType,
		Immediate:        immediate,
	}
}

// EventProcessed is published after an event has run through the engine.
type EventProcessed struct {
	BaseNotification
	QueueID       int64  `json:"queue_id"`
	UserID        int64  `json:"user_id"`
	EventType     string `json:"event_type"`
	UnlockedCount int    `json:"unlocked_count"`
}

// NewEventProcessed builds an EventProcessed notification.
func NewEventProcessed(queueID, userID int64, eventType string, unlockedCount int) *EventProcessed {
	return &EventProcessed{
		BaseNotification: newBase(TypeEventProcessed),
		QueueID:          queueID,
		UserID:           userID,
		EventType:        eventType,
		UnlockedCount:    unlockedCount,
	}
}

// AchievementUnlocked is published when a user earns an achievement, whether
// through the engine or a manual grant.
type AchievementUnlocked struct {
	BaseNotification
	UserID           int64   `json:"user_id"`
	AchievementID    int64   `json:"achievement_id"`
	AchievementKey   string  `json:"achievement_key"`
	AchievementTitle string  `json:"achievement_title"`
	ActorID          *int64  `json:"actor_id,omitempty"`
	Reason           string  `json:"reason,omitempty"`
}

// NewAchievementUnlocked builds an unlock notification.
func NewAchievementUnlocked(userID, achievementID int64, key, title string) *AchievementUnlocked {
	return &AchievementUnlocked{
		BaseNotification: newBase(TypeAchievementUnlock),
		UserID:           userID,
		AchievementID:    achievementID,
		AchievementKey:   key,
		AchievementTitle: title,
	}
}

// AchievementRevoked is published when a manual revoke removes an unlock.
type AchievementRevoked struct {
	BaseNotification
	UserID         int64  `json:"user_id"`
	AchievementID  int64  `json:"achievement_id"`
	AchievementKey string `json:"achievement_key"`
	ActorID        *int64 `json:"actor_id,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// NewAchievementRevoked builds a revoke notification.
func NewAchievementRevoked(userID, achievementID int64, key string) *AchievementRevoked {
	return &AchievementRevoked{
		BaseNotification: newBase(TypeAchievementRevoked),
		UserID:           userID,
		AchievementID:    achievementID,
		AchievementKey:   key,
	}
}

// FeaturedBadgeSet is published when a user picks their featured badge.
type FeaturedBadgeSet struct {
	BaseNotification
	UserID        int64 `json:"user_id"`
	AchievementID int64 `json:"achievement_id"`
}

// NewFeaturedBadgeSet builds a featured-badge notification.
func NewFeaturedBadgeSet(userID, achievementID int64) *FeaturedBadgeSet {
	return &FeaturedBadgeSet{
		BaseNotification: newBase(TypeFeaturedBadgeSet),
		UserID:           userID,
		AchievementID:    achievementID,
	}
}
