package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TriggerType of a scheduled follow-up condition check.
type TriggerType string

const (
	TriggerTimeBased           TriggerType = "time_based"
	TriggerEngagementThreshold TriggerType = "engagement_threshold"
	TriggerDateEvent           TriggerType = "date_event"
	TriggerExternalUpdate      TriggerType = "external_update"
	TriggerResolutionCheck     TriggerType = "resolution_check"
	TriggerScheduledSearch     TriggerType = "scheduled_search"
)

// TriggerStatus lifecycle: pending → triggered → completed | expired | cancelled.
type TriggerStatus string

const (
	TriggerPending   TriggerStatus = "pending"
	TriggerTriggered TriggerStatus = "triggered"
	TriggerCompleted TriggerStatus = "completed"
	TriggerExpired   TriggerStatus = "expired"
	TriggerCancelled TriggerStatus = "cancelled"
)

// TriggerCondition is the typed condition payload per trigger type.
type TriggerCondition struct {
	EngagementThreshold int64      `bson:"engagement_threshold,omitempty" json:"engagement_threshold,omitempty"`
	EventDate           *time.Time `bson:"event_date,omitempty" json:"event_date,omitempty"`
	SearchQuery         string     `bson:"search_query,omitempty" json:"search_query,omitempty"`
	Note                string     `bson:"note,omitempty" json:"note,omitempty"`
}

// FollowUpTrigger is a scheduled condition check tied to a thread.
// Collection: follow_up_triggers
// A trigger past expires_at or past max_checks is forced to expired and
// never re-evaluated.
type FollowUpTrigger struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`

	ThreadID  primitive.ObjectID `bson:"thread_id" json:"thread_id"`
	Type      TriggerType        `bson:"type" json:"type"`
	Condition TriggerCondition   `bson:"condition" json:"condition"`
	Status    TriggerStatus      `bson:"status" json:"status"`

	CheckCount  int        `bson:"check_count" json:"check_count"`
	MaxChecks   int        `bson:"max_checks" json:"max_checks"`
	NextCheckAt time.Time  `bson:"next_check_at" json:"next_check_at"`
	ExpiresAt   *time.Time `bson:"expires_at,omitempty" json:"expires_at,omitempty"`
}

// Exhausted reports whether the trigger must be forced to expired.
func (t *FollowUpTrigger) Exhausted(now time.Time) bool {
	if t.MaxChecks > 0 && t.CheckCount >= t.MaxChecks {
		return true
	}
	if t.ExpiresAt != nil && now.After(*t.ExpiresAt) {
		return true
	}
	return false
}
