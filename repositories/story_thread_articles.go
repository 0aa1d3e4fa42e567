package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"town-desk/models"
)

type StoryThreadArticleRepository struct {
	col *mongo.Collection
}

func NewStoryThreadArticleRepository(db *mongo.Database) *StoryThreadArticleRepository {
	return &StoryThreadArticleRepository{col: db.Collection("story_thread_articles")}
}

// Insert adds one link row. The two unique indexes carry the linking
// invariants; their violations are translated into the domain sentinels.
func (r *StoryThreadArticleRepository) Insert(ctx context.Context, link *models.StoryThreadArticle) error {
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now()
	}
	res, err := r.col.InsertOne(ctx, link)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			if strings.Contains(err.Error(), "uniq_thread_article") {
				return fmt.Errorf("thread %s article %s: %w",
					link.ThreadID.Hex(), link.ArticleID.Hex(), models.ErrDuplicateThreadArticle)
			}
			return fmt.Errorf("thread %s sequence %d: %w",
				link.ThreadID.Hex(), link.SequenceNumber, models.ErrSequenceConflict)
		}
		return err
	}
	link.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

// MaxSequence returns the highest sequence number in the thread, 0 when the
// thread has no links yet.
func (r *StoryThreadArticleRepository) MaxSequence(ctx context.Context, threadID primitive.ObjectID) (int, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "sequence_number", Value: -1}})
	var link models.StoryThreadArticle
	err := r.col.FindOne(ctx, bson.M{"thread_id": threadID}, opts).Decode(&link)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return 0, nil
		}
		return 0, err
	}
	return link.SequenceNumber, nil
}

func (r *StoryThreadArticleRepository) CountByThread(ctx context.Context, threadID primitive.ObjectID) (int, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{"thread_id": threadID})
	return int(n), err
}

func (r *StoryThreadArticleRepository) ListByThread(ctx context.Context, threadID primitive.ObjectID) ([]models.StoryThreadArticle, error) {
	opts := options.Find().SetSort(bson.D{{Key: "sequence_number", Value: 1}})
	cur, err := r.col.Find(ctx, bson.M{"thread_id": threadID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.StoryThreadArticle
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
