package repositories

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"town-desk/drafts"
	"town-desk/models"
)

type DraftRepository struct {
	col *mongo.Collection
}

func NewDraftRepository(db *mongo.Database) *DraftRepository {
	return &DraftRepository{col: db.Collection("news_article_drafts")}
}

// Insert creates the draft. The unique raw_item_id index makes shortlisting
// idempotent: a second insert for the same item fails with a duplicate key
// and the existing draft is returned instead.
func (r *DraftRepository) Insert(ctx context.Context, draft *models.NewsArticleDraft) (*models.NewsArticleDraft, error) {
	now := time.Now()
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = now
	}
	draft.UpdatedAt = now

	res, err := r.col.InsertOne(ctx, draft)
	if err == nil {
		draft.ID = res.InsertedID.(primitive.ObjectID)
		return draft, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return nil, err
	}
	return r.FindByRawItemID(ctx, draft.RawItemID)
}

func (r *DraftRepository) FindByID(ctx context.Context, draftID primitive.ObjectID) (*models.NewsArticleDraft, error) {
	var draft models.NewsArticleDraft
	if err := r.col.FindOne(ctx, bson.M{"_id": draftID}).Decode(&draft); err != nil {
		return nil, err
	}
	return &draft, nil
}

func (r *DraftRepository) FindByRawItemID(ctx context.Context, rawItemID primitive.ObjectID) (*models.NewsArticleDraft, error) {
	var draft models.NewsArticleDraft
	if err := r.col.FindOne(ctx, bson.M{"raw_item_id": rawItemID}).Decode(&draft); err != nil {
		return nil, err
	}
	return &draft, nil
}

// Transition moves the draft from → to with optimistic concurrency: the
// status is part of the filter, so a draft that moved on since it was read
// fails with drafts.ErrStatusConflict instead of being overwritten.
func (r *DraftRepository) Transition(ctx context.Context, draftID primitive.ObjectID, from, to models.DraftStatus, entry models.TransitionLogEntry, set map[string]any) error {
	setDoc := bson.M{
		"status":     to,
		"updated_at": time.Now(),
	}
	for k, v := range set {
		setDoc[k] = v
	}

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": draftID, "status": from},
		bson.M{
			"$set":  setDoc,
			"$push": bson.M{"transitions": entry},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("draft %s no longer in status %s: %w", draftID.Hex(), from, drafts.ErrStatusConflict)
	}
	return nil
}

// Publish moves ready_for_publishing → published. Only the content router
// calls this.
func (r *DraftRepository) Publish(ctx context.Context, draftID primitive.ObjectID, at time.Time) error {
	entry := models.TransitionLogEntry{
		From: models.DraftReadyForPublishing,
		To:   models.DraftPublished,
		Note: "routed",
		At:   at,
	}
	return r.Transition(ctx, draftID, models.DraftReadyForPublishing, models.DraftPublished, entry, map[string]any{
		"held_for_review": false,
	})
}

func (r *DraftRepository) SetHeldForReview(ctx context.Context, draftID primitive.ObjectID, held bool) error {
	_, err := r.col.UpdateByID(ctx, draftID, bson.M{
		"$set": bson.M{"held_for_review": held, "updated_at": time.Now()},
	})
	return err
}

// HoldForFactReview parks the draft for manual fact review, recording the
// aggregate confidence that fell short so the review queue can show it.
func (r *DraftRepository) HoldForFactReview(ctx context.Context, draftID primitive.ObjectID, confidence int) error {
	_, err := r.col.UpdateByID(ctx, draftID, bson.M{
		"$set": bson.M{
			"held_for_review":       true,
			"fact_check_confidence": confidence,
			"updated_at":            time.Now(),
		},
	})
	return err
}

// IncrementGenerationAttempts returns the attempt count including this one.
func (r *DraftRepository) IncrementGenerationAttempts(ctx context.Context, draftID primitive.ObjectID) (int, error) {
	var draft models.NewsArticleDraft
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": draftID},
		bson.M{
			"$inc": bson.M{"generation_attempts": 1},
			"$set": bson.M{"updated_at": time.Now()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&draft)
	if err != nil {
		return 0, err
	}
	return draft.GenerationAttempts, nil
}

func (r *DraftRepository) ListByStatus(ctx context.Context, status models.DraftStatus, limit int64) ([]models.NewsArticleDraft, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}).SetLimit(limit)
	cur, err := r.col.Find(ctx, bson.M{"status": status}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.NewsArticleDraft
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListHeldForReview returns drafts waiting on a human fact review.
func (r *DraftRepository) ListHeldForReview(ctx context.Context, limit int64) ([]models.NewsArticleDraft, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}).SetLimit(limit)
	cur, err := r.col.Find(ctx, bson.M{"held_for_review": true}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.NewsArticleDraft
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
