package moderation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"town-desk/config"
	"town-desk/moderation"
	"town-desk/models"
)

type fakeGenerator struct {
	response string
}

func (g *fakeGenerator) Generate(_ context.Context, purpose, _, _ string) (string, models.AILog, error) {
	return g.response, models.AILog{Purpose: purpose}, nil
}

type fakeLogStore struct {
	rows []models.ContentModerationLog
}

func (s *fakeLogStore) Insert(_ context.Context, log *models.ContentModerationLog) error {
	log.ID = primitive.NewObjectID()
	s.rows = append(s.rows, *log)
	return nil
}

func (s *fakeLogStore) LatestFor(_ context.Context, kind models.ContentKind, contentID primitive.ObjectID) (*models.ContentModerationLog, error) {
	for i := len(s.rows) - 1; i >= 0; i-- {
		if s.rows[i].ContentKind == kind && s.rows[i].ContentID == contentID {
			row := s.rows[i]
			return &row, nil
		}
	}
	return nil, nil
}

func testAppConfig() config.AppConfig {
	return config.AppConfig{GeminiModel: "gemini-2.0-flash"}
}

func TestModerateApproves(t *testing.T) {
	gen := &fakeGenerator{response: `{"decision":"approved","confidence":92}`}
	logs := &fakeLogStore{}
	gate := moderation.NewGate(gen, logs, nil, testAppConfig())

	contentID := primitive.NewObjectID()
	row, err := gate.Moderate(context.Background(), models.KindArticle, contentID, "Park budget approved", "The council voted 6-1.")
	require.NoError(t, err)
	assert.Equal(t, models.ModerationApproved, row.Decision)
	assert.Equal(t, 92, row.Confidence)
	assert.Nil(t, row.Supersedes)
	assert.Equal(t, "gemini-2.0-flash", row.ModelName)
	require.Len(t, logs.rows, 1)
}

func TestModerateRejectsWithSection(t *testing.T) {
	gen := &fakeGenerator{response: `{"decision":"rejected","violation_section":"P2","explanation":"unverified allegation against a named person","confidence":88}`}
	logs := &fakeLogStore{}
	gate := moderation.NewGate(gen, logs, nil, testAppConfig())

	row, err := gate.Moderate(context.Background(), models.KindArticle, primitive.NewObjectID(), "t", "b")
	require.NoError(t, err)
	assert.Equal(t, models.ModerationRejected, row.Decision)
	assert.Equal(t, "P2", row.ViolationSection)
}

func TestModerateInvalidDecisionNeverPasses(t *testing.T) {
	gen := &fakeGenerator{response: `{"decision":"fine i guess","confidence":70}`}
	gate := moderation.NewGate(gen, &fakeLogStore{}, nil, testAppConfig())

	row, err := gate.Moderate(context.Background(), models.KindArticle, primitive.NewObjectID(), "t", "b")
	require.NoError(t, err)
	assert.Equal(t, models.ModerationNeedsReview, row.Decision)
}

func TestModerateClampsConfidence(t *testing.T) {
	gen := &fakeGenerator{response: `{"decision":"flagged","confidence":240}`}
	gate := moderation.NewGate(gen, &fakeLogStore{}, nil, testAppConfig())

	row, err := gate.Moderate(context.Background(), models.KindArticle, primitive.NewObjectID(), "t", "b")
	require.NoError(t, err)
	assert.Equal(t, 100, row.Confidence)
}

func TestReModerationAppendsWithSupersedes(t *testing.T) {
	gen := &fakeGenerator{response: `{"decision":"approved","confidence":90}`}
	logs := &fakeLogStore{}
	gate := moderation.NewGate(gen, logs, nil, testAppConfig())

	contentID := primitive.NewObjectID()
	first, err := gate.Moderate(context.Background(), models.KindArticle, contentID, "t", "b")
	require.NoError(t, err)
	second, err := gate.Moderate(context.Background(), models.KindArticle, contentID, "t", "b (corrected)")
	require.NoError(t, err)

	// history is append-only
	require.Len(t, logs.rows, 2)
	require.NotNil(t, second.Supersedes)
	assert.Equal(t, first.ID, *second.Supersedes)
	assert.Nil(t, first.Supersedes)
}

func TestModerateMalformedVerdictFails(t *testing.T) {
	gen := &fakeGenerator{response: "no json here"}
	gate := moderation.NewGate(gen, &fakeLogStore{}, nil, testAppConfig())

	_, err := gate.Moderate(context.Background(), models.KindArticle, primitive.NewObjectID(), "t", "b")
	assert.Error(t, err)
}
