package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// VerificationResult of one claim.
type VerificationResult string

const (
	ClaimVerified     VerificationResult = "verified"
	ClaimUnverified   VerificationResult = "unverified"
	ClaimContradicted VerificationResult = "contradicted"
)

// FactCheckResult is one verification outcome per extracted claim.
// Collection: fact_check_results
// A draft's fact_check_confidence is the mean of its claims' confidence and
// is always recomputed from these rows, never incremented in place.
type FactCheckResult struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`

	DraftID    primitive.ObjectID `bson:"draft_id" json:"draft_id"`
	ClaimText  string             `bson:"claim_text" json:"claim_text"`
	Result     VerificationResult `bson:"result" json:"result"`
	Confidence int                `bson:"confidence" json:"confidence"`
	SourceURLs []string           `bson:"source_urls,omitempty" json:"source_urls,omitempty"`
	ModelName  string             `bson:"model_name,omitempty" json:"model_name,omitempty"`
}
