package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SourceKind identifies where a raw item came from.
type SourceKind string

const (
	SourceRSS    SourceKind = "rss"
	SourceEmail  SourceKind = "email"
	SourceWire   SourceKind = "wire"
	SourceScrape SourceKind = "scrape"
)

// ClassificationStatus of a raw item.
type ClassificationStatus string

const (
	ClassificationPending    ClassificationStatus = "pending"
	ClassificationClassified ClassificationStatus = "classified"
	ClassificationFailed     ClassificationStatus = "failed"
)

// ProcessingStatus of a raw item across the whole pipeline.
type ProcessingStatus string

const (
	ProcessingPending    ProcessingStatus = "pending"
	ProcessingProcessing ProcessingStatus = "processing"
	ProcessingProcessed  ProcessingStatus = "processed"
	ProcessingSkipped    ProcessingStatus = "skipped"
	ProcessingFailed     ProcessingStatus = "failed"
)

// Skip reasons persisted on terminally skipped items.
const (
	SkipClassificationExhausted = "classification_exhausted"
	SkipBelowRelevanceFloor     = "below_relevance_floor"
	SkipValidationFailed        = "validation_failed"
	SkipDraftRejected           = "draft_rejected"
	SkipRetriesExhausted        = "retries_exhausted"
)

// GeographicScope is the classifier's judgement of how local the item is.
type GeographicScope string

const (
	ScopeNeighborhood GeographicScope = "neighborhood"
	ScopeCitywide     GeographicScope = "citywide"
	ScopeRegional     GeographicScope = "regional"
	ScopeNational     GeographicScope = "national"
)

// IsLocal reports whether the scope sits inside the community. An empty
// scope counts as local: older rows predate the field.
func (g GeographicScope) IsLocal() bool {
	return g == "" || g == ScopeNeighborhood || g == ScopeCitywide
}

// SourceRef carries the per-source identity of an ingested unit.
// Only the fields matching Kind are set.
type SourceRef struct {
	Kind            SourceKind `bson:"kind" json:"kind"`
	FeedID          string     `bson:"feed_id,omitempty" json:"feed_id,omitempty"`
	FeedName        string     `bson:"feed_name,omitempty" json:"feed_name,omitempty"`
	GUID            string     `bson:"guid,omitempty" json:"guid,omitempty"`
	Mailbox         string     `bson:"mailbox,omitempty" json:"mailbox,omitempty"`
	From            string     `bson:"from,omitempty" json:"from,omitempty"`
	ServiceProvider string     `bson:"service_provider,omitempty" json:"service_provider,omitempty"`
	Dateline        string     `bson:"dateline,omitempty" json:"dateline,omitempty"`
	SourceURL       string     `bson:"source_url,omitempty" json:"source_url,omitempty"`
}

// EntitySet holds the structured entities the classifier extracted.
type EntitySet struct {
	People        []string `bson:"people" json:"people"`
	Organizations []string `bson:"organizations" json:"organizations"`
	Locations     []string `bson:"locations" json:"locations"`
	Dates         []string `bson:"dates" json:"dates"`
	Businesses    []string `bson:"businesses" json:"businesses"`
}

// IsEmpty reports whether no entities were extracted.
func (e EntitySet) IsEmpty() bool {
	return len(e.People) == 0 && len(e.Organizations) == 0 &&
		len(e.Locations) == 0 && len(e.Dates) == 0 && len(e.Businesses) == 0
}

// ContentScores holds the scorer output. Nil means not yet scored.
type ContentScores struct {
	LocalRelevance *int   `bson:"local_relevance,omitempty" json:"local_relevance,omitempty"`
	NewsValue      *int   `bson:"news_value,omitempty" json:"news_value,omitempty"`
	Rationale      string `bson:"rationale,omitempty" json:"rationale,omitempty"`
}

// RoutedOutput is one publication this item was turned into.
type RoutedOutput struct {
	Kind ContentKind        `bson:"kind" json:"kind"`
	ID   primitive.ObjectID `bson:"id" json:"id"`
}

// RawContentItem is one normalized unit of ingested source material.
// Collection: raw_content_items
// Unique index: (content_hash, community_id); re-ingesting identical content
// for the same community is a no-op.
type RawContentItem struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
	CommunityID string             `bson:"community_id" json:"community_id"`
	Source      SourceRef          `bson:"source" json:"source"`

	Title       string    `bson:"title" json:"title"`
	Body        string    `bson:"body" json:"body"`
	RawHTML     string    `bson:"raw_html,omitempty" json:"raw_html,omitempty"`
	Excerpt     string    `bson:"excerpt,omitempty" json:"excerpt,omitempty"`
	ContentHash string    `bson:"content_hash" json:"content_hash"`
	CollectedAt time.Time `bson:"collected_at" json:"collected_at"`

	ClassificationStatus   ClassificationStatus `bson:"classification_status" json:"classification_status"`
	ClassificationError    string               `bson:"classification_error,omitempty" json:"classification_error,omitempty"`
	ClassificationAttempts int                  `bson:"classification_attempts" json:"classification_attempts"`
	ProcessingStatus       ProcessingStatus     `bson:"processing_status" json:"processing_status"`
	SkipReason             string               `bson:"skip_reason,omitempty" json:"skip_reason,omitempty"`

	ContentType     string          `bson:"content_type,omitempty" json:"content_type,omitempty"`
	Categories      []string        `bson:"categories,omitempty" json:"categories,omitempty"`
	Entities        EntitySet       `bson:"entities" json:"entities"`
	HasEvent        bool            `bson:"has_event" json:"has_event"`
	GeographicScope GeographicScope `bson:"geographic_scope,omitempty" json:"geographic_scope,omitempty"`
	Scores          ContentScores   `bson:"scores" json:"scores"`

	RoutedOutputs []RoutedOutput `bson:"routed_outputs" json:"routed_outputs"`
}

// HasRoutedKind reports whether the item was already routed to kind.
func (r *RawContentItem) HasRoutedKind(kind ContentKind) bool {
	for _, out := range r.RoutedOutputs {
		if out.Kind == kind {
			return true
		}
	}
	return false
}
