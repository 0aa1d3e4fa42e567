package repositories

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"town-desk/models"
)

// PhaseLockRepository backs the per-(resource, phase) advisory lock. The
// unique index makes Acquire first-writer-wins; the TTL index reaps locks
// left behind by crashed workers.
type PhaseLockRepository struct {
	col *mongo.Collection
	ttl time.Duration
}

func NewPhaseLockRepository(db *mongo.Database, ttl time.Duration) *PhaseLockRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PhaseLockRepository{col: db.Collection("phase_locks"), ttl: ttl}
}

func (r *PhaseLockRepository) Acquire(ctx context.Context, resourceID primitive.ObjectID, phase string) error {
	now := time.Now()
	lock := models.PhaseLock{
		ResourceID: resourceID,
		Phase:      phase,
		AcquiredAt: now,
		ExpiresAt:  now.Add(r.ttl),
	}
	_, err := r.col.InsertOne(ctx, lock)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("resource %s phase %s: %w", resourceID.Hex(), phase, models.ErrLockHeld)
		}
		return err
	}
	return nil
}

func (r *PhaseLockRepository) Release(ctx context.Context, resourceID primitive.ObjectID, phase string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"resource_id": resourceID, "phase": phase})
	return err
}
