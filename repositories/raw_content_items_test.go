package repositories_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"town-desk/models"
	"town-desk/repositories"
)

// The normalizer drops items reported as duplicates and only queues fresh
// ones for classification, so the created flag must mean "a new row was
// written", never the other way around.
func TestInsertIfAbsentFreshItemReportsCreated(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("fresh insert", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		repo := repositories.NewRawContentItemRepository(mt.DB)
		item := &models.RawContentItem{
			CommunityID: "riverbend",
			Title:       "Bridge closed for repairs",
			ContentHash: "abc123",
		}
		stored, created, err := repo.InsertIfAbsent(context.Background(), item)
		require.NoError(mt, err)
		assert.True(mt, created)
		assert.False(mt, stored.ID.IsZero())
	})
}

func TestInsertIfAbsentDuplicateReturnsExistingRow(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("duplicate key", func(mt *mtest.T) {
		existingID := primitive.NewObjectID()
		mt.AddMockResponses(
			mtest.CreateWriteErrorsResponse(mtest.WriteError{
				Index:   0,
				Code:    11000,
				Message: "E11000 duplicate key error collection: raw_content_items index: uniq_hash_community",
			}),
			mtest.CreateCursorResponse(1, "town_desk.raw_content_items", mtest.FirstBatch, bson.D{
				{Key: "_id", Value: existingID},
				{Key: "community_id", Value: "riverbend"},
				{Key: "content_hash", Value: "abc123"},
			}),
		)

		repo := repositories.NewRawContentItemRepository(mt.DB)
		item := &models.RawContentItem{
			CommunityID: "riverbend",
			Title:       "Bridge closed for repairs",
			ContentHash: "abc123",
		}
		stored, created, err := repo.InsertIfAbsent(context.Background(), item)
		require.NoError(mt, err)
		assert.False(mt, created)
		assert.Equal(mt, existingID, stored.ID)
	})
}
