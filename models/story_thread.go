package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ThreadStatus of a longitudinal story grouping.
type ThreadStatus string

const (
	ThreadDeveloping ThreadStatus = "developing"
	ThreadMonitoring ThreadStatus = "monitoring"
	ThreadResolved   ThreadStatus = "resolved"
	ThreadDormant    ThreadStatus = "dormant"
	ThreadArchived   ThreadStatus = "archived"
)

// NarrativeRole of one article within a thread.
type NarrativeRole string

const (
	RoleOrigin      NarrativeRole = "origin"
	RoleDevelopment NarrativeRole = "development"
	RoleUpdate      NarrativeRole = "update"
	RoleResolution  NarrativeRole = "resolution"
)

// EngagementSnapshot is recomputed by an external analytics collaborator.
// The pipeline reads it, never owns it.
type EngagementSnapshot struct {
	Views      int64     `bson:"views" json:"views"`
	Comments   int64     `bson:"comments" json:"comments"`
	Shares     int64     `bson:"shares" json:"shares"`
	MeasuredAt time.Time `bson:"measured_at" json:"measured_at"`
}

// Total is the aggregate used against engagement-threshold triggers.
func (e EngagementSnapshot) Total() int64 {
	return e.Views + e.Comments + e.Shares
}

// Resolution records why a thread was explicitly resolved.
type Resolution struct {
	Type    string    `bson:"type" json:"type"`
	Summary string    `bson:"summary" json:"summary"`
	At      time.Time `bson:"at" json:"at"`
}

// StoryThread groups articles describing one evolving situation.
// Collection: story_threads
type StoryThread struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`

	CommunityID string       `bson:"community_id" json:"community_id"`
	Title       string       `bson:"title" json:"title"`
	Status      ThreadStatus `bson:"status" json:"status"`
	Priority    int          `bson:"priority" json:"priority"`

	KeyEntities    EntitySet          `bson:"key_entities" json:"key_entities"`
	PredictedBeats []string           `bson:"predicted_beats,omitempty" json:"predicted_beats,omitempty"`
	Engagement     EngagementSnapshot `bson:"engagement" json:"engagement"`
	Resolution     *Resolution        `bson:"resolution,omitempty" json:"resolution,omitempty"`

	LastDevelopmentAt time.Time `bson:"last_development_at" json:"last_development_at"`
}

// StoryThreadArticle links one article into a thread.
// Collection: story_thread_articles
// Unique indexes: (thread_id, article_id) and (thread_id, sequence_number).
// Sequence numbers are strictly increasing per thread.
type StoryThreadArticle struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`

	ThreadID       primitive.ObjectID `bson:"thread_id" json:"thread_id"`
	ArticleID      primitive.ObjectID `bson:"article_id" json:"article_id"`
	NarrativeRole  NarrativeRole      `bson:"narrative_role" json:"narrative_role"`
	SequenceNumber int                `bson:"sequence_number" json:"sequence_number"`
}
