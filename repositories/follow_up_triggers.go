package repositories

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"town-desk/models"
)

type FollowUpTriggerRepository struct {
	col *mongo.Collection
}

func NewFollowUpTriggerRepository(db *mongo.Database) *FollowUpTriggerRepository {
	return &FollowUpTriggerRepository{col: db.Collection("follow_up_triggers")}
}

func (r *FollowUpTriggerRepository) Insert(ctx context.Context, trigger *models.FollowUpTrigger) error {
	now := time.Now()
	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = now
	}
	trigger.UpdatedAt = now

	res, err := r.col.InsertOne(ctx, trigger)
	if err != nil {
		return err
	}
	trigger.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

// ListDue returns pending triggers whose next check is at or before now.
func (r *FollowUpTriggerRepository) ListDue(ctx context.Context, now time.Time) ([]models.FollowUpTrigger, error) {
	filter := bson.M{
		"status":        models.TriggerPending,
		"next_check_at": bson.M{"$lte": now},
	}
	opts := options.Find().SetSort(bson.D{{Key: "next_check_at", Value: 1}})
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.FollowUpTrigger
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *FollowUpTriggerRepository) CountPendingByThread(ctx context.Context, threadID primitive.ObjectID) (int, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{
		"thread_id": threadID,
		"status":    models.TriggerPending,
	})
	return int(n), err
}

func (r *FollowUpTriggerRepository) ReschedulePendingTimeBased(ctx context.Context, threadID primitive.ObjectID, nextCheckAt time.Time) error {
	_, err := r.col.UpdateMany(ctx,
		bson.M{
			"thread_id": threadID,
			"status":    models.TriggerPending,
			"type":      models.TriggerTimeBased,
		},
		bson.M{
			"$set": bson.M{"next_check_at": nextCheckAt, "updated_at": time.Now()},
		},
	)
	return err
}

func (r *FollowUpTriggerRepository) Update(ctx context.Context, trigger *models.FollowUpTrigger) error {
	_, err := r.col.UpdateByID(ctx, trigger.ID, bson.M{
		"$set": bson.M{
			"status":        trigger.Status,
			"check_count":   trigger.CheckCount,
			"next_check_at": trigger.NextCheckAt,
			"updated_at":    trigger.UpdatedAt,
		},
	})
	return err
}

func (r *FollowUpTriggerRepository) CancelPendingByThread(ctx context.Context, threadID primitive.ObjectID) error {
	_, err := r.col.UpdateMany(ctx,
		bson.M{"thread_id": threadID, "status": models.TriggerPending},
		bson.M{"$set": bson.M{"status": models.TriggerCancelled, "updated_at": time.Now()}},
	)
	return err
}

func (r *FollowUpTriggerRepository) ListByThread(ctx context.Context, threadID primitive.ObjectID) ([]models.FollowUpTrigger, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cur, err := r.col.Find(ctx, bson.M{"thread_id": threadID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.FollowUpTrigger
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
