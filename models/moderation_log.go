package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ModerationDecision outcome of one policy check.
type ModerationDecision string

const (
	ModerationApproved    ModerationDecision = "approved"
	ModerationRejected    ModerationDecision = "rejected"
	ModerationNeedsReview ModerationDecision = "needs_review"
	ModerationFlagged     ModerationDecision = "flagged"
)

// ContentModerationLog is an immutable audit record of one moderation
// decision. Collection: moderation_logs. Append-only: a re-moderation
// appends a new row with Supersedes pointing at the prior one.
type ContentModerationLog struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`

	ContentKind ContentKind        `bson:"content_kind" json:"content_kind"`
	ContentID   primitive.ObjectID `bson:"content_id" json:"content_id"`

	Decision         ModerationDecision  `bson:"decision" json:"decision"`
	ViolationSection string              `bson:"violation_section,omitempty" json:"violation_section,omitempty"`
	Explanation      string              `bson:"explanation,omitempty" json:"explanation,omitempty"`
	Confidence       int                 `bson:"confidence" json:"confidence"`
	ModelName        string              `bson:"model_name,omitempty" json:"model_name,omitempty"`
	LatencyMs        int64               `bson:"latency_ms" json:"latency_ms"`
	Supersedes       *primitive.ObjectID `bson:"supersedes,omitempty" json:"supersedes,omitempty"`
}
