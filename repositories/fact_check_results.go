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

type FactCheckResultRepository struct {
	col *mongo.Collection
}

func NewFactCheckResultRepository(db *mongo.Database) *FactCheckResultRepository {
	return &FactCheckResultRepository{col: db.Collection("fact_check_results")}
}

func (r *FactCheckResultRepository) Insert(ctx context.Context, result *models.FactCheckResult) error {
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now()
	}
	res, err := r.col.InsertOne(ctx, result)
	if err != nil {
		return err
	}
	result.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *FactCheckResultRepository) DeleteByDraft(ctx context.Context, draftID primitive.ObjectID) error {
	_, err := r.col.DeleteMany(ctx, bson.M{"draft_id": draftID})
	return err
}

func (r *FactCheckResultRepository) ListByDraft(ctx context.Context, draftID primitive.ObjectID) ([]models.FactCheckResult, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cur, err := r.col.Find(ctx, bson.M{"draft_id": draftID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.FactCheckResult
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
