package repositories

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"town-desk/classifier"
	"town-desk/models"
)

type RawContentItemRepository struct {
	col *mongo.Collection
}

func NewRawContentItemRepository(db *mongo.Database) *RawContentItemRepository {
	return &RawContentItemRepository{col: db.Collection("raw_content_items")}
}

// InsertIfAbsent inserts the item unless one with the same
// (content_hash, community_id) already exists; the unique index decides.
// Returns the stored item and whether a new row was created.
func (r *RawContentItemRepository) InsertIfAbsent(ctx context.Context, item *models.RawContentItem) (*models.RawContentItem, bool, error) {
	now := time.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	res, err := r.col.InsertOne(ctx, item)
	if err == nil {
		item.ID = res.InsertedID.(primitive.ObjectID)
		return item, true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return nil, false, err
	}

	var existing models.RawContentItem
	filter := bson.M{"content_hash": item.ContentHash, "community_id": item.CommunityID}
	if err := r.col.FindOne(ctx, filter).Decode(&existing); err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

func (r *RawContentItemRepository) FindByID(ctx context.Context, itemID primitive.ObjectID) (*models.RawContentItem, error) {
	var item models.RawContentItem
	if err := r.col.FindOne(ctx, bson.M{"_id": itemID}).Decode(&item); err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateClassification stores the classifier output and marks the item classified.
func (r *RawContentItemRepository) UpdateClassification(ctx context.Context, itemID primitive.ObjectID, result classifier.ClassificationResult) error {
	_, err := r.col.UpdateByID(ctx, itemID, bson.M{
		"$set": bson.M{
			"classification_status": models.ClassificationClassified,
			"classification_error":  "",
			"content_type":          result.ContentType,
			"categories":            result.Categories,
			"entities":              result.Entities,
			"has_event":             result.HasEvent,
			"geographic_scope":      result.GeographicScope,
			"updated_at":            time.Now(),
		},
	})
	return err
}

// MarkClassificationFailed records the error, bumps the attempt counter and
// returns the new attempt count.
func (r *RawContentItemRepository) MarkClassificationFailed(ctx context.Context, itemID primitive.ObjectID, errMsg string) (int, error) {
	var item models.RawContentItem
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": itemID},
		bson.M{
			"$set": bson.M{
				"classification_status": models.ClassificationFailed,
				"classification_error":  errMsg,
				"updated_at":            time.Now(),
			},
			"$inc": bson.M{"classification_attempts": 1},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&item)
	if err != nil {
		return 0, err
	}
	return item.ClassificationAttempts, nil
}

// MarkSkipped tombstones the item with a terminal skip reason.
func (r *RawContentItemRepository) MarkSkipped(ctx context.Context, itemID primitive.ObjectID, reason string) error {
	_, err := r.col.UpdateByID(ctx, itemID, bson.M{
		"$set": bson.M{
			"processing_status": models.ProcessingSkipped,
			"skip_reason":       reason,
			"updated_at":        time.Now(),
		},
	})
	return err
}

func (r *RawContentItemRepository) UpdateScores(ctx context.Context, itemID primitive.ObjectID, scores models.ContentScores) error {
	_, err := r.col.UpdateByID(ctx, itemID, bson.M{
		"$set": bson.M{
			"scores":     scores,
			"updated_at": time.Now(),
		},
	})
	return err
}

// ListDraftCandidates returns classified, scored, still-pending items for one
// community, newest first. The daily shortlist is selected from these.
func (r *RawContentItemRepository) ListDraftCandidates(ctx context.Context, communityID string, limit int64) ([]models.RawContentItem, error) {
	filter := bson.M{
		"community_id":          communityID,
		"classification_status": models.ClassificationClassified,
		"processing_status":     bson.M{"$in": []models.ProcessingStatus{models.ProcessingPending, models.ProcessingProcessing}},
		"scores.news_value":     bson.M{"$ne": nil},
	}
	opts := options.Find().SetSort(bson.D{{Key: "collected_at", Value: -1}}).SetLimit(limit)
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var items []models.RawContentItem
	if err := cur.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// AppendRoutedOutput appends the output unless the item already carries that
// kind. The kind guard lives in the filter so concurrent routing cannot
// append the same kind twice.
func (r *RawContentItemRepository) AppendRoutedOutput(ctx context.Context, itemID primitive.ObjectID, output models.RoutedOutput) (bool, error) {
	res, err := r.col.UpdateOne(ctx,
		bson.M{
			"_id":                 itemID,
			"routed_outputs.kind": bson.M{"$ne": output.Kind},
		},
		bson.M{
			"$push": bson.M{"routed_outputs": output},
			"$set":  bson.M{"updated_at": time.Now()},
		},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func (r *RawContentItemRepository) MarkProcessed(ctx context.Context, itemID primitive.ObjectID) error {
	_, err := r.col.UpdateByID(ctx, itemID, bson.M{
		"$set": bson.M{
			"processing_status": models.ProcessingProcessed,
			"updated_at":        time.Now(),
		},
	})
	return err
}
