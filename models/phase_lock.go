package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PhaseLock is a per-item advisory lock guaranteeing at most one active
// worker per (resource, phase). Collection: phase_locks, unique index on
// (resource_id, phase) plus a TTL index on expires_at so crashed workers
// cannot wedge an item forever.
type PhaseLock struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ResourceID primitive.ObjectID `bson:"resource_id" json:"resource_id"`
	Phase      string             `bson:"phase" json:"phase"`
	AcquiredAt time.Time          `bson:"acquired_at" json:"acquired_at"`
	ExpiresAt  time.Time          `bson:"expires_at" json:"expires_at"`
}
