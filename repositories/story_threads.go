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

type StoryThreadRepository struct {
	col *mongo.Collection
}

func NewStoryThreadRepository(db *mongo.Database) *StoryThreadRepository {
	return &StoryThreadRepository{col: db.Collection("story_threads")}
}

func (r *StoryThreadRepository) Insert(ctx context.Context, thread *models.StoryThread) (*models.StoryThread, error) {
	now := time.Now()
	if thread.CreatedAt.IsZero() {
		thread.CreatedAt = now
	}
	thread.UpdatedAt = now

	res, err := r.col.InsertOne(ctx, thread)
	if err != nil {
		return nil, err
	}
	thread.ID = res.InsertedID.(primitive.ObjectID)
	return thread, nil
}

func (r *StoryThreadRepository) FindByID(ctx context.Context, threadID primitive.ObjectID) (*models.StoryThread, error) {
	var thread models.StoryThread
	if err := r.col.FindOne(ctx, bson.M{"_id": threadID}).Decode(&thread); err != nil {
		return nil, err
	}
	return &thread, nil
}

func (r *StoryThreadRepository) ListActiveByCommunity(ctx context.Context, communityID string) ([]models.StoryThread, error) {
	filter := bson.M{
		"community_id": communityID,
		"status": bson.M{"$in": []models.ThreadStatus{
			models.ThreadDeveloping, models.ThreadMonitoring, models.ThreadDormant,
		}},
	}
	opts := options.Find().SetSort(bson.D{{Key: "last_development_at", Value: -1}})
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.StoryThread
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *StoryThreadRepository) ListByCommunity(ctx context.Context, communityID string, limit int64) ([]models.StoryThread, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_development_at", Value: -1}}).SetLimit(limit)
	cur, err := r.col.Find(ctx, bson.M{"community_id": communityID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.StoryThread
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *StoryThreadRepository) UpdateStatus(ctx context.Context, threadID primitive.ObjectID, status models.ThreadStatus) error {
	_, err := r.col.UpdateByID(ctx, threadID, bson.M{
		"$set": bson.M{"status": status, "updated_at": time.Now()},
	})
	return err
}

func (r *StoryThreadRepository) SetResolution(ctx context.Context, threadID primitive.ObjectID, resolution models.Resolution) error {
	_, err := r.col.UpdateByID(ctx, threadID, bson.M{
		"$set": bson.M{"resolution": resolution, "updated_at": time.Now()},
	})
	return err
}

// RecordDevelopment merges the new article's entities into the thread
// snapshot, bumps last_development_at and reactivates the thread.
func (r *StoryThreadRepository) RecordDevelopment(ctx context.Context, threadID primitive.ObjectID, entities models.EntitySet, at time.Time) error {
	update := bson.M{
		"$set": bson.M{
			"status":              models.ThreadDeveloping,
			"last_development_at": at,
			"updated_at":          at,
		},
	}
	addToSet := bson.M{}
	for field, values := range map[string][]string{
		"key_entities.people":        entities.People,
		"key_entities.organizations": entities.Organizations,
		"key_entities.locations":     entities.Locations,
		"key_entities.dates":         entities.Dates,
		"key_entities.businesses":    entities.Businesses,
	} {
		if len(values) > 0 {
			addToSet[field] = bson.M{"$each": values}
		}
	}
	if len(addToSet) > 0 {
		update["$addToSet"] = addToSet
	}
	_, err := r.col.UpdateByID(ctx, threadID, update)
	return err
}

func (r *StoryThreadRepository) ListStale(ctx context.Context, cutoff time.Time) ([]models.StoryThread, error) {
	filter := bson.M{
		"status": bson.M{"$in": []models.ThreadStatus{
			models.ThreadDeveloping, models.ThreadMonitoring,
		}},
		"last_development_at": bson.M{"$lt": cutoff},
	}
	cur, err := r.col.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.StoryThread
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
