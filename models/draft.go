package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DraftStatus is the workflow state of a candidate article.
type DraftStatus string

const (
	DraftShortlisted        DraftStatus = "shortlisted"
	DraftOutlineGenerated   DraftStatus = "outline_generated"
	DraftReadyForGeneration DraftStatus = "ready_for_generation"
	DraftReadyForPublishing DraftStatus = "ready_for_publishing"
	DraftPublished          DraftStatus = "published"
	DraftRejected           DraftStatus = "rejected"
)

// RejectionQualityBelowThreshold is recorded when the quality gate fails twice.
const RejectionQualityBelowThreshold = "quality_below_threshold"

// TransitionLogEntry records one status change with the score and threshold
// that justified it.
type TransitionLogEntry struct {
	From      DraftStatus `bson:"from" json:"from"`
	To        DraftStatus `bson:"to" json:"to"`
	Score     *int        `bson:"score,omitempty" json:"score,omitempty"`
	Threshold *int        `bson:"threshold,omitempty" json:"threshold,omitempty"`
	Note      string      `bson:"note,omitempty" json:"note,omitempty"`
	At        time.Time   `bson:"at" json:"at"`
}

// NewsArticleDraft is a candidate article tied to exactly one raw item.
// Collection: news_article_drafts (unique index on raw_item_id)
type NewsArticleDraft struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`

	RawItemID   primitive.ObjectID `bson:"raw_item_id" json:"raw_item_id"`
	CommunityID string             `bson:"community_id" json:"community_id"`

	Status          DraftStatus `bson:"status" json:"status"`
	RejectionReason string      `bson:"rejection_reason,omitempty" json:"rejection_reason,omitempty"`
	HeldForReview   bool        `bson:"held_for_review" json:"held_for_review"`

	RelevanceScore      *int `bson:"relevance_score,omitempty" json:"relevance_score,omitempty"`
	QualityScore        *int `bson:"quality_score,omitempty" json:"quality_score,omitempty"`
	FactCheckConfidence *int `bson:"fact_check_confidence,omitempty" json:"fact_check_confidence,omitempty"`

	Outline   string   `bson:"outline,omitempty" json:"outline,omitempty"`
	Title     string   `bson:"title,omitempty" json:"title,omitempty"`
	Body      string   `bson:"body,omitempty" json:"body,omitempty"`
	Excerpt   string   `bson:"excerpt,omitempty" json:"excerpt,omitempty"`
	TopicTags []string `bson:"topic_tags,omitempty" json:"topic_tags,omitempty"`

	GenerationAttempts int                  `bson:"generation_attempts" json:"generation_attempts"`
	Transitions        []TransitionLogEntry `bson:"transitions" json:"transitions"`
}
