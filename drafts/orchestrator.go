package drafts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"town-desk/config"
	"town-desk/models"
)

var (
	// ErrRelevanceScoreMissing blocks shortlisted → outline_generated when the
	// item was never scored.
	ErrRelevanceScoreMissing = errors.New("local relevance score is absent")
	// ErrStatusConflict is returned when a guarded transition lost a race or
	// was attempted from the wrong state.
	ErrStatusConflict = errors.New("draft status conflict")
	// ErrDraftTerminal is returned when mutating a published or rejected draft.
	ErrDraftTerminal = errors.New("draft is in a terminal state")
)

// statusRank defines the forward order of the draft workflow. rejected is
// terminal and reachable from every non-published state.
var statusRank = map[models.DraftStatus]int{
	models.DraftShortlisted:        0,
	models.DraftOutlineGenerated:   1,
	models.DraftReadyForGeneration: 2,
	models.DraftReadyForPublishing: 3,
	models.DraftPublished:          4,
}

// CanTransition reports whether from → to is a legal draft status change.
func CanTransition(from, to models.DraftStatus) bool {
	if from == models.DraftPublished || from == models.DraftRejected {
		return false
	}
	if to == models.DraftRejected {
		return true
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank == fromRank+1
}

// DraftStore is the persistence surface of the orchestrator.
type DraftStore interface {
	Insert(ctx context.Context, draft *models.NewsArticleDraft) (*models.NewsArticleDraft, error)
	FindByID(ctx context.Context, draftID primitive.ObjectID) (*models.NewsArticleDraft, error)
	// Transition atomically moves the draft from → to, appends the log entry
	// and applies extra field updates. Implementations must fail with
	// ErrStatusConflict when the draft is no longer in the from status.
	Transition(ctx context.Context, draftID primitive.ObjectID, from, to models.DraftStatus, entry models.TransitionLogEntry, set map[string]any) error
	SetHeldForReview(ctx context.Context, draftID primitive.ObjectID, held bool) error
	// HoldForFactReview parks the draft and records the aggregate
	// confidence that fell short of the threshold.
	HoldForFactReview(ctx context.Context, draftID primitive.ObjectID, confidence int) error
	IncrementGenerationAttempts(ctx context.Context, draftID primitive.ObjectID) (int, error)
}

// ItemStore is the raw-item surface the orchestrator needs to tombstone the
// source of a rejected draft.
type ItemStore interface {
	MarkSkipped(ctx context.Context, itemID primitive.ObjectID, reason string) error
}

// Orchestrator drives a draft through its generation state machine. It never
// publishes: ready_for_publishing → published belongs to the content router.
type Orchestrator struct {
	store     DraftStore
	items     ItemStore
	generator *Generator
	cfg       config.PipelineConfig
}

func NewOrchestrator(store DraftStore, items ItemStore, generator *Generator, cfg config.PipelineConfig) *Orchestrator {
	return &Orchestrator{store: store, items: items, generator: generator, cfg: cfg}
}

// Shortlist creates the draft for a scored item that won a daily slot.
func (o *Orchestrator) Shortlist(ctx context.Context, item *models.RawContentItem) (*models.NewsArticleDraft, error) {
	now := time.Now()
	draft := &models.NewsArticleDraft{
		RawItemID:      item.ID,
		CommunityID:    item.CommunityID,
		Status:         models.DraftShortlisted,
		RelevanceScore: item.Scores.LocalRelevance,
		CreatedAt:      now,
		UpdatedAt:      now,
		Transitions: []models.TransitionLogEntry{{
			From:  "",
			To:    models.DraftShortlisted,
			Score: item.Scores.NewsValue,
			Note:  "won daily draft slot",
			At:    now,
		}},
	}
	return o.store.Insert(ctx, draft)
}

// GenerateOutline moves shortlisted → outline_generated. Blocked when the
// local relevance score is absent.
func (o *Orchestrator) GenerateOutline(ctx context.Context, draft *models.NewsArticleDraft, item *models.RawContentItem) error {
	if draft.Status != models.DraftShortlisted {
		return fmt.Errorf("%w: outline requested in status %s", ErrStatusConflict, draft.Status)
	}
	if draft.RelevanceScore == nil {
		return ErrRelevanceScoreMissing
	}

	outline, err := o.generator.Outline(ctx, item)
	if err != nil {
		return err
	}

	entry := models.TransitionLogEntry{
		From:  models.DraftShortlisted,
		To:    models.DraftOutlineGenerated,
		Score: draft.RelevanceScore,
		At:    time.Now(),
	}
	return o.store.Transition(ctx, draft.ID, models.DraftShortlisted, models.DraftOutlineGenerated, entry, map[string]any{
		"outline": outline,
	})
}

// ApplyFactCheck moves outline_generated → ready_for_generation when the
// aggregate fact-check confidence clears the threshold; otherwise the draft
// is held in outline_generated and flagged for manual fact review.
// Returns whether the draft advanced.
func (o *Orchestrator) ApplyFactCheck(ctx context.Context, draft *models.NewsArticleDraft, confidence int) (bool, error) {
	if draft.Status != models.DraftOutlineGenerated {
		return false, fmt.Errorf("%w: fact check applied in status %s", ErrStatusConflict, draft.Status)
	}

	threshold := o.cfg.FactCheckConfidenceThreshold
	if confidence < threshold {
		config.Logger.Infof("draft %s held for manual fact review (confidence %d < %d)",
			draft.ID.Hex(), confidence, threshold)
		if err := o.store.HoldForFactReview(ctx, draft.ID, confidence); err != nil {
			return false, err
		}
		return false, nil
	}

	entry := models.TransitionLogEntry{
		From:      models.DraftOutlineGenerated,
		To:        models.DraftReadyForGeneration,
		Score:     &confidence,
		Threshold: &threshold,
		At:        time.Now(),
	}
	err := o.store.Transition(ctx, draft.ID, models.DraftOutlineGenerated, models.DraftReadyForGeneration, entry, map[string]any{
		"fact_check_confidence": confidence,
		"held_for_review":       false,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// GenerateArticle runs the generation and quality gate in
// ready_for_generation. A draft failing the quality gate loops back to
// generation exactly once; the second failure rejects it.
func (o *Orchestrator) GenerateArticle(ctx context.Context, draft *models.NewsArticleDraft, item *models.RawContentItem) error {
	if draft.Status != models.DraftReadyForGeneration {
		return fmt.Errorf("%w: generation requested in status %s", ErrStatusConflict, draft.Status)
	}

	article, err := o.generator.Article(ctx, item, draft.Outline)
	if err != nil {
		return err
	}

	quality, err := o.generator.ReviewQuality(ctx, article)
	if err != nil {
		return err
	}

	threshold := o.cfg.QualityThreshold
	if quality < threshold {
		// Only a completed quality evaluation consumes the loop-back; a
		// transient LLM error above never reaches this counter.
		attempts, err := o.store.IncrementGenerationAttempts(ctx, draft.ID)
		if err != nil {
			return err
		}
		if attempts < 2 {
			config.Logger.Warnf("draft %s quality %d below %d, looping back to generation (attempt %d)",
				draft.ID.Hex(), quality, threshold, attempts)
			return fmt.Errorf("quality %d below threshold %d, regeneration scheduled", quality, threshold)
		}
		config.Logger.Warnf("draft %s failed quality gate twice, rejecting", draft.ID.Hex())
		return o.reject(ctx, draft, models.RejectionQualityBelowThreshold, &quality, &threshold)
	}

	entry := models.TransitionLogEntry{
		From:      models.DraftReadyForGeneration,
		To:        models.DraftReadyForPublishing,
		Score:     &quality,
		Threshold: &threshold,
		At:        time.Now(),
	}
	return o.store.Transition(ctx, draft.ID, models.DraftReadyForGeneration, models.DraftReadyForPublishing, entry, map[string]any{
		"title":         article.Title,
		"body":          article.Body,
		"excerpt":       article.Excerpt,
		"topic_tags":    article.TopicTags,
		"quality_score": quality,
	})
}

// Reject moves the draft to the rejected terminal state from any
// non-terminal status.
func (o *Orchestrator) Reject(ctx context.Context, draft *models.NewsArticleDraft, reason string) error {
	if draft.Status == models.DraftPublished || draft.Status == models.DraftRejected {
		return ErrDraftTerminal
	}
	return o.reject(ctx, draft, reason, nil, nil)
}

func (o *Orchestrator) reject(ctx context.Context, draft *models.NewsArticleDraft, reason string, score, threshold *int) error {
	entry := models.TransitionLogEntry{
		From:      draft.Status,
		To:        models.DraftRejected,
		Score:     score,
		Threshold: threshold,
		Note:      reason,
		At:        time.Now(),
	}
	if err := o.store.Transition(ctx, draft.ID, draft.Status, models.DraftRejected, entry, map[string]any{
		"rejection_reason": reason,
	}); err != nil {
		return err
	}

	// The source item would otherwise stay a draft candidate and hold one of
	// the community's daily slots forever.
	if o.items != nil && !draft.RawItemID.IsZero() {
		if err := o.items.MarkSkipped(ctx, draft.RawItemID, models.SkipDraftRejected); err != nil {
			config.Logger.Errorf("failed to tombstone item %s for rejected draft %s: %v",
				draft.RawItemID.Hex(), draft.ID.Hex(), err)
		}
	}
	return nil
}
