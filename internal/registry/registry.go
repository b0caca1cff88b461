// Package registry tracks the trigger keys the pipeline accepts. Integrations
// register their events at startup; the queue rejects anything unknown.
package registry

import (
	"fmt"
	"sort"
	"sync"
)

// Event categories.
const (
	CategorySocial   = "social"
	CategoryGroups   = "groups"
	CategoryContent  = "content"
	CategoryLearning = "learning"
	CategoryCommerce = "commerce"
	CategoryEvents   = "events"
	CategoryForums   = "forums"
)

// Core event keys.
const (
	EventFriendsAdded          = "friends_added"
	EventFollowersGained       = "followers_gained"
	EventGroupsJoined          = "groups_joined"
	EventGroupsCreated         = "groups_created"
	EventActivityPosted        = "activity_posted"
	EventCourseCompleted       = "course_completed"
	EventProductPurchased      = "product_purchased"
	EventVendorPurchase        = "vendor_purchase"
	EventAttended              = "event_attended"
	EventAnnualEventAttendance = "annual_event_attendance"
)

// EventDefinition describes one trackable event type.
type EventDefinition struct {
	Key               string `json:"key"`
	Label             string `json:"label"`
	Category          string `json:"category"`
	SupportsThreshold bool   `json:"supports_threshold"`
	Description       string `json:"description,omitempty"`
}

// Registry holds the set of registered event definitions. It is constructed
// explicitly and injected where needed; there is no package-level state.
type Registry struct {
	mu     sync.RWMutex
	events map[string]EventDefinition
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{events: make(map[string]EventDefinition)}
}

// NewDefault returns a registry seeded with the core event set.
func NewDefault() *Registry {
	r := New()
	for _, def := range coreEvents() {
		// Core keys are unique by construction.
		_ = r.Register(def)
	}
	return r
}

// Register adds an event definition. Duplicate keys and incomplete
// definitions are rejected.
func (r *Registry) Register(def EventDefinition) error {
	if def.Key == "" || def.Label == "" {
		return fmt.Errorf("event definition requires key and label")
	}
	if def.Category == "" {
		def.Category = CategorySocial
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.events[def.Key]; exists {
		return fmt.Errorf("event %q is already registered", def.Key)
	}
	r.events[def.Key] = def
	return nil
}

// IsRegistered reports whether key is a known event type.
func (r *Registry) IsRegistered(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.events[key]
	return ok
}

// Get returns the definition for key.
func (r *Registry) Get(key string) (EventDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.events[key]
	return def, ok
}

// List returns registered events sorted by key, optionally filtered by
// category. An empty category returns everything.
func (r *Registry) List(category string) []EventDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]EventDefinition, 0, len(r.events))
	for _, def := range r.events {
		if category == "" || def.Category == category {
			defs = append(defs, def)
		}
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Key < defs[j].Key })
	return defs
}

// Categories returns the distinct categories currently in use, sorted.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, def := range r.events {
		seen[def.Category] = struct{}{}
	}
	categories := make([]string, 0, len(seen))
	for c := range seen {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	return categories
}

func coreEvents() []EventDefinition {
	return []EventDefinition{
		{
			Key:               EventFriendsAdded,
			Label:             "Friend Added",
			Category:          CategorySocial,
			SupportsThreshold: true,
			Description:       "Triggered when a user adds a friend",
		},
		{
			Key:               EventFollowersGained,
			Label:             "Follower Gained",
			Category:          CategorySocial,
			SupportsThreshold: true,
			Description:       "Triggered when a user gains a follower",
		},
		{
			Key:               EventGroupsJoined,
			Label:             "Group Joined",
			Category:          CategoryGroups,
			SupportsThreshold: true,
			Description:       "Triggered when a user joins a group",
		},
		{
			Key:               EventGroupsCreated,
			Label:             "Group Created",
			Category:          CategoryGroups,
			SupportsThreshold: true,
			Description:       "Triggered when a user creates a group",
		},
		{
			Key:               EventActivityPosted,
			Label:             "Activity Post Created",
			Category:          CategoryContent,
			SupportsThreshold: true,
			Description:       "Triggered when a user posts an activity update",
		},
		{
			Key:               EventCourseCompleted,
			Label:             "Course Completed",
			Category:          CategoryLearning,
			SupportsThreshold: true,
			Description:       "Triggered when a user completes a course",
		},
		{
			Key:               EventProductPurchased,
			Label:             "Product Purchased",
			Category:          CategoryCommerce,
			SupportsThreshold: true,
			Description:       "Triggered when an order is completed",
		},
		{
			Key:               EventVendorPurchase,
			Label:             "Vendor Purchase",
			Category:          CategoryCommerce,
			SupportsThreshold: true,
			Description:       "Triggered for vendor-specific purchase milestones",
		},
		{
			Key:               EventAttended,
			Label:             "Event Attended",
			Category:          CategoryEvents,
			SupportsThreshold: true,
			Description:       "Triggered when a user attends an event",
		},
		{
			Key:               EventAnnualEventAttendance,
			Label:             "Annual Event Attendance",
			Category:          CategoryEvents,
			SupportsThreshold: true,
			Description:       "Triggered for multi-year attendance of the same annual event",
		},
	}
}
