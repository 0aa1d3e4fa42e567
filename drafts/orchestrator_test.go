package drafts_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"town-desk/config"
	"town-desk/drafts"
	"town-desk/models"
)

type purposeGenerator struct {
	responses map[string][]string
	index     map[string]int
}

func newPurposeGenerator() *purposeGenerator {
	return &purposeGenerator{responses: map[string][]string{}, index: map[string]int{}}
}

func (g *purposeGenerator) on(purpose string, responses ...string) {
	g.responses[purpose] = append(g.responses[purpose], responses...)
}

func (g *purposeGenerator) Generate(_ context.Context, purpose, _, _ string) (string, models.AILog, error) {
	queue := g.responses[purpose]
	if len(queue) == 0 {
		return "", models.AILog{}, errors.New("no canned response for " + purpose)
	}
	i := g.index[purpose]
	if i >= len(queue) {
		i = len(queue) - 1
	}
	g.index[purpose]++
	return queue[i], models.AILog{Purpose: purpose}, nil
}

type fakeDraftStore struct {
	drafts map[primitive.ObjectID]*models.NewsArticleDraft
}

func newFakeDraftStore() *fakeDraftStore {
	return &fakeDraftStore{drafts: map[primitive.ObjectID]*models.NewsArticleDraft{}}
}

func (s *fakeDraftStore) Insert(_ context.Context, draft *models.NewsArticleDraft) (*models.NewsArticleDraft, error) {
	draft.ID = primitive.NewObjectID()
	s.drafts[draft.ID] = draft
	return draft, nil
}

func (s *fakeDraftStore) FindByID(_ context.Context, draftID primitive.ObjectID) (*models.NewsArticleDraft, error) {
	draft, ok := s.drafts[draftID]
	if !ok {
		return nil, errors.New("not found")
	}
	return draft, nil
}

func (s *fakeDraftStore) Transition(_ context.Context, draftID primitive.ObjectID, from, to models.DraftStatus, entry models.TransitionLogEntry, set map[string]any) error {
	draft, ok := s.drafts[draftID]
	if !ok || draft.Status != from {
		return drafts.ErrStatusConflict
	}
	draft.Status = to
	draft.Transitions = append(draft.Transitions, entry)
	for key, value := range set {
		switch key {
		case "outline":
			draft.Outline = value.(string)
		case "title":
			draft.Title = value.(string)
		case "body":
			draft.Body = value.(string)
		case "excerpt":
			draft.Excerpt = value.(string)
		case "topic_tags":
			draft.TopicTags = value.([]string)
		case "quality_score":
			v := value.(int)
			draft.QualityScore = &v
		case "fact_check_confidence":
			v := value.(int)
			draft.FactCheckConfidence = &v
		case "held_for_review":
			draft.HeldForReview = value.(bool)
		case "rejection_reason":
			draft.RejectionReason = value.(string)
		}
	}
	return nil
}

func (s *fakeDraftStore) SetHeldForReview(_ context.Context, draftID primitive.ObjectID, held bool) error {
	s.drafts[draftID].HeldForReview = held
	return nil
}

func (s *fakeDraftStore) HoldForFactReview(_ context.Context, draftID primitive.ObjectID, confidence int) error {
	s.drafts[draftID].HeldForReview = true
	s.drafts[draftID].FactCheckConfidence = &confidence
	return nil
}

func (s *fakeDraftStore) IncrementGenerationAttempts(_ context.Context, draftID primitive.ObjectID) (int, error) {
	s.drafts[draftID].GenerationAttempts++
	return s.drafts[draftID].GenerationAttempts, nil
}

type fakeItemStore struct {
	skipped map[primitive.ObjectID]string
}

func newFakeItemStore() *fakeItemStore {
	return &fakeItemStore{skipped: map[primitive.ObjectID]string{}}
}

func (s *fakeItemStore) MarkSkipped(_ context.Context, itemID primitive.ObjectID, reason string) error {
	s.skipped[itemID] = reason
	return nil
}

func testCfg() config.PipelineConfig {
	return config.PipelineConfig{
		FactCheckConfidenceThreshold: 75,
		QualityThreshold:             70,
	}
}

func scoredItem() *models.RawContentItem {
	relevance, newsValue := 80, 72
	return &models.RawContentItem{
		ID:          primitive.NewObjectID(),
		CommunityID: "springfield",
		Title:       "Council approves park budget",
		Body:        "The city council approved the 2026 parks budget on Tuesday.",
		CollectedAt: time.Now(),
		Scores:      models.ContentScores{LocalRelevance: &relevance, NewsValue: &newsValue},
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to models.DraftStatus
		want     bool
	}{
		{models.DraftShortlisted, models.DraftOutlineGenerated, true},
		{models.DraftOutlineGenerated, models.DraftReadyForGeneration, true},
		{models.DraftReadyForGeneration, models.DraftReadyForPublishing, true},
		{models.DraftReadyForPublishing, models.DraftPublished, true},
		{models.DraftShortlisted, models.DraftReadyForGeneration, false},
		{models.DraftOutlineGenerated, models.DraftShortlisted, false},
		{models.DraftShortlisted, models.DraftRejected, true},
		{models.DraftReadyForPublishing, models.DraftRejected, true},
		{models.DraftPublished, models.DraftRejected, false},
		{models.DraftRejected, models.DraftOutlineGenerated, false},
		{models.DraftPublished, models.DraftPublished, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, drafts.CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestShortlistCreatesDraftWithScores(t *testing.T) {
	store := newFakeDraftStore()
	o := drafts.NewOrchestrator(store, newFakeItemStore(), nil, testCfg())

	item := scoredItem()
	draft, err := o.Shortlist(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, models.DraftShortlisted, draft.Status)
	assert.Equal(t, item.ID, draft.RawItemID)
	require.NotNil(t, draft.RelevanceScore)
	assert.Equal(t, 80, *draft.RelevanceScore)
	require.Len(t, draft.Transitions, 1)
	assert.Equal(t, models.DraftShortlisted, draft.Transitions[0].To)
}

func TestGenerateOutlineAdvancesDraft(t *testing.T) {
	gen := newPurposeGenerator()
	gen.on("draft_outline", "1. What happened\n2. Who is affected")

	store := newFakeDraftStore()
	o := drafts.NewOrchestrator(store, newFakeItemStore(), drafts.NewGenerator(gen, nil, testCfg()), testCfg())

	item := scoredItem()
	draft, err := o.Shortlist(context.Background(), item)
	require.NoError(t, err)

	require.NoError(t, o.GenerateOutline(context.Background(), draft, item))
	stored := store.drafts[draft.ID]
	assert.Equal(t, models.DraftOutlineGenerated, stored.Status)
	assert.Contains(t, stored.Outline, "What happened")
}

func TestGenerateOutlineRequiresRelevanceScore(t *testing.T) {
	store := newFakeDraftStore()
	o := drafts.NewOrchestrator(store, newFakeItemStore(), nil, testCfg())

	draft := &models.NewsArticleDraft{Status: models.DraftShortlisted}
	err := o.GenerateOutline(context.Background(), draft, scoredItem())
	assert.True(t, errors.Is(err, drafts.ErrRelevanceScoreMissing))
}

func TestGenerateOutlineRejectsWrongStatus(t *testing.T) {
	o := drafts.NewOrchestrator(newFakeDraftStore(), newFakeItemStore(), nil, testCfg())

	draft := &models.NewsArticleDraft{Status: models.DraftReadyForGeneration}
	err := o.GenerateOutline(context.Background(), draft, scoredItem())
	assert.True(t, errors.Is(err, drafts.ErrStatusConflict))
}

func TestApplyFactCheckHoldsBelowThreshold(t *testing.T) {
	store := newFakeDraftStore()
	o := drafts.NewOrchestrator(store, newFakeItemStore(), nil, testCfg())

	draft := &models.NewsArticleDraft{Status: models.DraftOutlineGenerated}
	draft, err := store.Insert(context.Background(), draft)
	require.NoError(t, err)

	advanced, err := o.ApplyFactCheck(context.Background(), draft, 60)
	require.NoError(t, err)
	assert.False(t, advanced)

	stored := store.drafts[draft.ID]
	assert.True(t, stored.HeldForReview)
	assert.Equal(t, models.DraftOutlineGenerated, stored.Status)
	// the review queue shows the confidence that parked the draft
	require.NotNil(t, stored.FactCheckConfidence)
	assert.Equal(t, 60, *stored.FactCheckConfidence)
}

func TestApplyFactCheckAdvancesAtThreshold(t *testing.T) {
	store := newFakeDraftStore()
	o := drafts.NewOrchestrator(store, newFakeItemStore(), nil, testCfg())

	draft, err := store.Insert(context.Background(), &models.NewsArticleDraft{Status: models.DraftOutlineGenerated})
	require.NoError(t, err)

	advanced, err := o.ApplyFactCheck(context.Background(), draft, 75)
	require.NoError(t, err)
	assert.True(t, advanced)

	stored := store.drafts[draft.ID]
	assert.Equal(t, models.DraftReadyForGeneration, stored.Status)
	require.NotNil(t, stored.FactCheckConfidence)
	assert.Equal(t, 75, *stored.FactCheckConfidence)
	assert.False(t, stored.HeldForReview)
}

func TestGenerateArticlePassesQualityGate(t *testing.T) {
	gen := newPurposeGenerator()
	gen.on("draft_article", `{"title":"Park budget approved","body":"The council voted 6-1.","excerpt":"The council voted.","topic_tags":["city-council"]}`)
	gen.on("draft_quality_review", `{"quality_score":85,"issues":[]}`)

	store := newFakeDraftStore()
	o := drafts.NewOrchestrator(store, newFakeItemStore(), drafts.NewGenerator(gen, nil, testCfg()), testCfg())

	draft, err := store.Insert(context.Background(), &models.NewsArticleDraft{
		Status:  models.DraftReadyForGeneration,
		Outline: "1. The vote",
	})
	require.NoError(t, err)

	require.NoError(t, o.GenerateArticle(context.Background(), draft, scoredItem()))
	stored := store.drafts[draft.ID]
	assert.Equal(t, models.DraftReadyForPublishing, stored.Status)
	assert.Equal(t, "Park budget approved", stored.Title)
	require.NotNil(t, stored.QualityScore)
	assert.Equal(t, 85, *stored.QualityScore)
}

func TestGenerateArticleLoopsBackOnceThenRejects(t *testing.T) {
	gen := newPurposeGenerator()
	gen.on("draft_article",
		`{"title":"Weak first pass","body":"Thin body."}`,
		`{"title":"Weak second pass","body":"Still thin."}`)
	gen.on("draft_quality_review",
		`{"quality_score":40,"issues":["missing attribution"]}`,
		`{"quality_score":45,"issues":["missing attribution"]}`)

	store := newFakeDraftStore()
	items := newFakeItemStore()
	o := drafts.NewOrchestrator(store, items, drafts.NewGenerator(gen, nil, testCfg()), testCfg())

	item := scoredItem()
	draft, err := store.Insert(context.Background(), &models.NewsArticleDraft{
		RawItemID: item.ID,
		Status:    models.DraftReadyForGeneration,
		Outline:   "1. The vote",
	})
	require.NoError(t, err)

	// first failure loops back: the error schedules a redelivery
	err = o.GenerateArticle(context.Background(), draft, item)
	require.Error(t, err)
	assert.Equal(t, models.DraftReadyForGeneration, store.drafts[draft.ID].Status)
	assert.Equal(t, 1, store.drafts[draft.ID].GenerationAttempts)

	// second failure is terminal and tombstones the source item
	require.NoError(t, o.GenerateArticle(context.Background(), draft, item))
	stored := store.drafts[draft.ID]
	assert.Equal(t, models.DraftRejected, stored.Status)
	assert.Equal(t, models.RejectionQualityBelowThreshold, stored.RejectionReason)
	assert.Equal(t, models.SkipDraftRejected, items.skipped[item.ID])
}

func TestGenerateArticleTransientErrorKeepsLoopBack(t *testing.T) {
	gen := newPurposeGenerator()
	// no canned article response yet: the first delivery fails in the LLM call

	store := newFakeDraftStore()
	o := drafts.NewOrchestrator(store, newFakeItemStore(), drafts.NewGenerator(gen, nil, testCfg()), testCfg())

	draft, err := store.Insert(context.Background(), &models.NewsArticleDraft{
		Status:  models.DraftReadyForGeneration,
		Outline: "1. The vote",
	})
	require.NoError(t, err)
	item := scoredItem()

	require.Error(t, o.GenerateArticle(context.Background(), draft, item))
	assert.Equal(t, 0, store.drafts[draft.ID].GenerationAttempts)

	// with the LLM back, a quality failure is still only the first attempt
	gen.on("draft_article", `{"title":"Weak pass","body":"Thin body."}`)
	gen.on("draft_quality_review", `{"quality_score":40,"issues":["missing attribution"]}`)

	require.Error(t, o.GenerateArticle(context.Background(), draft, item))
	assert.Equal(t, models.DraftReadyForGeneration, store.drafts[draft.ID].Status)
	assert.Equal(t, 1, store.drafts[draft.ID].GenerationAttempts)
}

func TestRejectGuardsTerminalStates(t *testing.T) {
	o := drafts.NewOrchestrator(newFakeDraftStore(), newFakeItemStore(), nil, testCfg())

	published := &models.NewsArticleDraft{Status: models.DraftPublished}
	assert.True(t, errors.Is(o.Reject(context.Background(), published, "late objection"), drafts.ErrDraftTerminal))

	rejected := &models.NewsArticleDraft{Status: models.DraftRejected}
	assert.True(t, errors.Is(o.Reject(context.Background(), rejected, "again"), drafts.ErrDraftTerminal))
}

func TestRejectRecordsReason(t *testing.T) {
	store := newFakeDraftStore()
	o := drafts.NewOrchestrator(store, newFakeItemStore(), nil, testCfg())

	draft, err := store.Insert(context.Background(), &models.NewsArticleDraft{Status: models.DraftOutlineGenerated})
	require.NoError(t, err)

	require.NoError(t, o.Reject(context.Background(), draft, "moderation rejected (section P2)"))
	stored := store.drafts[draft.ID]
	assert.Equal(t, models.DraftRejected, stored.Status)
	assert.Equal(t, "moderation rejected (section P2)", stored.RejectionReason)
}

func TestRejectTombstonesSourceItem(t *testing.T) {
	store := newFakeDraftStore()
	items := newFakeItemStore()
	o := drafts.NewOrchestrator(store, items, nil, testCfg())

	itemID := primitive.NewObjectID()
	draft, err := store.Insert(context.Background(), &models.NewsArticleDraft{
		RawItemID: itemID,
		Status:    models.DraftReadyForPublishing,
	})
	require.NoError(t, err)

	require.NoError(t, o.Reject(context.Background(), draft, "moderation rejected (section P1)"))
	// the item must stop competing for daily draft slots
	assert.Equal(t, models.SkipDraftRejected, items.skipped[itemID])
}
