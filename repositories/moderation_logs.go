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

// ModerationLogRepository is append-only on purpose: there is no update or
// delete method, matching the audit-trail invariant of moderation_logs.
type ModerationLogRepository struct {
	col *mongo.Collection
}

func NewModerationLogRepository(db *mongo.Database) *ModerationLogRepository {
	return &ModerationLogRepository{col: db.Collection("moderation_logs")}
}

func (r *ModerationLogRepository) Insert(ctx context.Context, log *models.ContentModerationLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	res, err := r.col.InsertOne(ctx, log)
	if err != nil {
		return err
	}
	log.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *ModerationLogRepository) LatestFor(ctx context.Context, kind models.ContentKind, contentID primitive.ObjectID) (*models.ContentModerationLog, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	var log models.ContentModerationLog
	err := r.col.FindOne(ctx, bson.M{"content_kind": kind, "content_id": contentID}, opts).Decode(&log)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &log, nil
}

// ListFor returns the full decision history for one content ref, newest first.
func (r *ModerationLogRepository) ListFor(ctx context.Context, kind models.ContentKind, contentID primitive.ObjectID) ([]models.ContentModerationLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := r.col.Find(ctx, bson.M{"content_kind": kind, "content_id": contentID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.ContentModerationLog
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
