package factcheck_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"town-desk/config"
	"town-desk/factcheck"
	"town-desk/models"
)

type purposeGenerator struct {
	responses map[string]string
}

func (g *purposeGenerator) Generate(_ context.Context, purpose, _, _ string) (string, models.AILog, error) {
	response, ok := g.responses[purpose]
	if !ok {
		return "", models.AILog{}, errors.New("no canned response for " + purpose)
	}
	return response, models.AILog{Purpose: purpose}, nil
}

type fakeResultStore struct {
	rows    []models.FactCheckResult
	deletes int
}

func (s *fakeResultStore) Insert(_ context.Context, result *models.FactCheckResult) error {
	s.rows = append(s.rows, *result)
	return nil
}

func (s *fakeResultStore) ListByDraft(_ context.Context, draftID primitive.ObjectID) ([]models.FactCheckResult, error) {
	out := []models.FactCheckResult{}
	for _, r := range s.rows {
		if r.DraftID == draftID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeResultStore) DeleteByDraft(_ context.Context, draftID primitive.ObjectID) error {
	s.deletes++
	kept := s.rows[:0]
	for _, r := range s.rows {
		if r.DraftID != draftID {
			kept = append(kept, r)
		}
	}
	s.rows = kept
	return nil
}

type fakeFetcher struct {
	text string
	err  error
	urls []string
}

func (f *fakeFetcher) FetchText(_ context.Context, url string) (string, error) {
	f.urls = append(f.urls, url)
	return f.text, f.err
}

func testAppConfig() config.AppConfig {
	return config.AppConfig{
		GeminiModel: "gemini-2.0-flash",
		Pipeline:    config.PipelineConfig{NeutralFactConfidence: 60, FactCheckConfidenceThreshold: 75},
	}
}

func row(confidence int) models.FactCheckResult {
	return models.FactCheckResult{Confidence: confidence}
}

func TestMeanConfidence(t *testing.T) {
	rows := []models.FactCheckResult{row(90), row(70), row(50)}
	assert.Equal(t, 70, factcheck.MeanConfidence(rows, 60))
}

func TestMeanConfidenceRounds(t *testing.T) {
	assert.Equal(t, 76, factcheck.MeanConfidence([]models.FactCheckResult{row(90), row(61)}, 60))
	assert.Equal(t, 85, factcheck.MeanConfidence([]models.FactCheckResult{row(85)}, 60))
}

func TestMeanConfidenceEmptyYieldsNeutral(t *testing.T) {
	assert.Equal(t, 60, factcheck.MeanConfidence(nil, 60))
}

func TestVerifyClaimClampsAndDefaultsResult(t *testing.T) {
	gen := &purposeGenerator{responses: map[string]string{
		"fact_check_verdict": `{"result":"maybe","confidence":140,"reasoning":"unsure"}`,
	}}
	checker := factcheck.New(gen, &fakeResultStore{}, nil, nil, testAppConfig())

	result, confidence, err := checker.VerifyClaim(context.Background(), "The bridge closed Monday.", "evidence text")
	require.NoError(t, err)
	assert.Equal(t, models.ClaimUnverified, result)
	assert.Equal(t, 100, confidence)
}

func TestCheckDraftStoresOneRowPerClaim(t *testing.T) {
	gen := &purposeGenerator{responses: map[string]string{
		"fact_check_claims":  `{"claims":["The council voted 6-1.","The budget is 1.2 million dollars."]}`,
		"fact_check_verdict": `{"result":"verified","confidence":85,"reasoning":"stated in source"}`,
	}}
	results := &fakeResultStore{}
	fetcher := &fakeFetcher{text: "Minutes of the meeting."}
	checker := factcheck.New(gen, results, nil, fetcher, testAppConfig())

	draft := &models.NewsArticleDraft{ID: primitive.NewObjectID(), Outline: "1. The vote"}
	item := &models.RawContentItem{
		ID:     primitive.NewObjectID(),
		Body:   "The city council approved the parks budget.",
		Source: models.SourceRef{Kind: models.SourceScrape, SourceURL: "https://example.org/minutes"},
	}

	aggregate, err := checker.CheckDraft(context.Background(), draft, item)
	require.NoError(t, err)
	assert.Equal(t, 85, aggregate)

	require.Len(t, results.rows, 2)
	assert.Equal(t, draft.ID, results.rows[0].DraftID)
	assert.Equal(t, models.ClaimVerified, results.rows[0].Result)
	assert.Equal(t, []string{"https://example.org/minutes"}, results.rows[0].SourceURLs)
	assert.Equal(t, "gemini-2.0-flash", results.rows[0].ModelName)
	assert.Equal(t, []string{"https://example.org/minutes"}, fetcher.urls)
}

func TestCheckDraftReplacesPriorRows(t *testing.T) {
	gen := &purposeGenerator{responses: map[string]string{
		"fact_check_claims":  `{"claims":["The council voted 6-1."]}`,
		"fact_check_verdict": `{"result":"verified","confidence":80,"reasoning":"stated"}`,
	}}
	results := &fakeResultStore{}
	checker := factcheck.New(gen, results, nil, nil, testAppConfig())

	draft := &models.NewsArticleDraft{ID: primitive.NewObjectID(), Outline: "1. The vote"}
	item := &models.RawContentItem{ID: primitive.NewObjectID(), Body: "source text"}

	_, err := checker.CheckDraft(context.Background(), draft, item)
	require.NoError(t, err)
	_, err = checker.CheckDraft(context.Background(), draft, item)
	require.NoError(t, err)

	assert.Equal(t, 2, results.deletes)
	assert.Len(t, results.rows, 1)
}

func TestCheckDraftNoClaimsYieldsNeutral(t *testing.T) {
	gen := &purposeGenerator{responses: map[string]string{
		"fact_check_claims": `{"claims":[]}`,
	}}
	results := &fakeResultStore{}
	checker := factcheck.New(gen, results, nil, nil, testAppConfig())

	draft := &models.NewsArticleDraft{ID: primitive.NewObjectID(), Outline: "1. Background color piece"}
	item := &models.RawContentItem{ID: primitive.NewObjectID(), Body: "opinion text"}

	aggregate, err := checker.CheckDraft(context.Background(), draft, item)
	require.NoError(t, err)
	assert.Equal(t, 60, aggregate)
	assert.Empty(t, results.rows)
}

func TestCheckDraftSurvivesEvidenceFetchFailure(t *testing.T) {
	gen := &purposeGenerator{responses: map[string]string{
		"fact_check_claims":  `{"claims":["The library expanded hours."]}`,
		"fact_check_verdict": `{"result":"unverified","confidence":50,"reasoning":"not in evidence"}`,
	}}
	results := &fakeResultStore{}
	fetcher := &fakeFetcher{err: errors.New("connection refused")}
	checker := factcheck.New(gen, results, nil, fetcher, testAppConfig())

	draft := &models.NewsArticleDraft{ID: primitive.NewObjectID(), Outline: "1. Hours"}
	item := &models.RawContentItem{
		ID:     primitive.NewObjectID(),
		Body:   "The library announced new hours.",
		Source: models.SourceRef{SourceURL: "https://example.org/library"},
	}

	aggregate, err := checker.CheckDraft(context.Background(), draft, item)
	require.NoError(t, err)
	assert.Equal(t, 50, aggregate)
	require.Len(t, results.rows, 1)
	assert.Equal(t, models.ClaimUnverified, results.rows[0].Result)
}
