package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"town-desk/classifier"
	"town-desk/config"
	draftsvc "town-desk/drafts"
	"town-desk/eventbus"
	"town-desk/events"
	"town-desk/factcheck"
	"town-desk/models"
	"town-desk/moderation"
	"town-desk/repositories"
	"town-desk/routing"
	"town-desk/scorer"
	"town-desk/threads"
	"town-desk/workflow"
)

// PhaseLocker is the advisory lock surface of the phase handlers.
type PhaseLocker interface {
	Acquire(ctx context.Context, resourceID primitive.ObjectID, phase string) error
	Release(ctx context.Context, resourceID primitive.ObjectID, phase string) error
}

// PhaseHandlers wires the phase queue events to the pipeline services. Every
// handler is idempotent: it reloads the record, checks its status, and does
// nothing when a previous delivery already finished the phase.
type PhaseHandlers struct {
	bus        eventbus.EventBus
	items      *repositories.RawContentItemRepository
	draftRepo  *repositories.DraftRepository
	locks      PhaseLocker
	classifier *classifier.Classifier
	scorer     *scorer.Scorer
	drafter    *draftsvc.Orchestrator
	checker    *factcheck.Checker
	router     *routing.Router
	gate       *moderation.Gate
	threadMgr  *threads.Manager
	tracker    *workflow.Tracker
	cfg        config.AppConfig
}

func NewPhaseHandlers(
	bus eventbus.EventBus,
	items *repositories.RawContentItemRepository,
	draftRepo *repositories.DraftRepository,
	locks PhaseLocker,
	cls *classifier.Classifier,
	sc *scorer.Scorer,
	drafter *draftsvc.Orchestrator,
	checker *factcheck.Checker,
	router *routing.Router,
	gate *moderation.Gate,
	threadMgr *threads.Manager,
	tracker *workflow.Tracker,
	cfg config.AppConfig,
) *PhaseHandlers {
	return &PhaseHandlers{
		bus:        bus,
		items:      items,
		draftRepo:  draftRepo,
		locks:      locks,
		classifier: cls,
		scorer:     sc,
		drafter:    drafter,
		checker:    checker,
		router:     router,
		gate:       gate,
		threadMgr:  threadMgr,
		tracker:    tracker,
		cfg:        cfg,
	}
}

// withLock runs fn under the (resource, phase) advisory lock. A held lock is
// reported as a deferral so the redelivery does not consume retry budget.
func (h *PhaseHandlers) withLock(ctx context.Context, resourceID primitive.ObjectID, phase models.PipelinePhase, fn func(ctx context.Context) error) error {
	if err := h.locks.Acquire(ctx, resourceID, string(phase)); err != nil {
		if errors.Is(err, models.ErrLockHeld) {
			return fmt.Errorf("%w: %s lock on %s busy", eventbus.ErrDeferred, phase, resourceID.Hex())
		}
		return err
	}
	defer func() {
		if err := h.locks.Release(ctx, resourceID, string(phase)); err != nil {
			config.Logger.Warnf("failed to release %s lock on %s: %v", phase, resourceID.Hex(), err)
		}
	}()
	return fn(ctx)
}

// tracked brackets fn with a workflow run row.
func (h *PhaseHandlers) tracked(ctx context.Context, phase models.PipelinePhase, fn func(ctx context.Context) (int, error)) error {
	runID, err := h.tracker.Start(ctx, phase)
	if err != nil {
		return err
	}
	processed, err := fn(ctx)
	if err != nil {
		if failErr := h.tracker.Fail(ctx, runID, processed, err); failErr != nil {
			config.Logger.Errorf("failed to record failed run %s: %v", runID, failErr)
		}
		return err
	}
	return h.tracker.Complete(ctx, runID, processed)
}

func (h *PhaseHandlers) publish(ctx context.Context, topic eventbus.Topic, event any) error {
	evt, err := eventbus.NewJSONEvent("", event, h.cfg.Pipeline.MaxRetriesPerPhase)
	if err != nil {
		return err
	}
	return h.bus.Publish(ctx, topic.Base(), evt)
}

// HandleItemIngested runs the classification phase for one item.
func (h *PhaseHandlers) HandleItemIngested(ctx context.Context, ev *events.ItemIngestedEvent) error {
	return h.withLock(ctx, ev.ItemID, models.PhaseClassify, func(ctx context.Context) error {
		return h.tracked(ctx, models.PhaseClassify, func(ctx context.Context) (int, error) {
			item, err := h.items.FindByID(ctx, ev.ItemID)
			if err != nil {
				return 0, err
			}
			if item.ClassificationStatus == models.ClassificationClassified {
				return 0, nil
			}
			if item.ProcessingStatus == models.ProcessingSkipped {
				return 0, nil
			}

			if err := h.classifier.Process(ctx, item); err != nil {
				return 0, err
			}

			// Process returns nil both on success and on terminal skip;
			// only classified items move on to scoring.
			item, err = h.items.FindByID(ctx, ev.ItemID)
			if err != nil {
				return 1, err
			}
			if item.ClassificationStatus != models.ClassificationClassified {
				return 1, nil
			}

			next := events.ItemClassifiedEvent{
				BaseEvent:   events.NewBaseEvent(events.ItemClassified, "worker"),
				ItemID:      item.ID,
				CommunityID: item.CommunityID,
				ContentType: item.ContentType,
				HasEvent:    item.HasEvent,
			}
			return 1, h.publish(ctx, eventbus.TopicScore, next)
		})
	})
}

// HandleItemClassified runs the scoring phase for one item.
func (h *PhaseHandlers) HandleItemClassified(ctx context.Context, ev *events.ItemClassifiedEvent) error {
	return h.withLock(ctx, ev.ItemID, models.PhaseScore, func(ctx context.Context) error {
		return h.tracked(ctx, models.PhaseScore, func(ctx context.Context) (int, error) {
			item, err := h.items.FindByID(ctx, ev.ItemID)
			if err != nil {
				return 0, err
			}
			if item.Scores.NewsValue != nil || item.ProcessingStatus == models.ProcessingSkipped {
				return 0, nil
			}

			if _, err := h.scorer.Process(ctx, item); err != nil {
				return 0, err
			}
			// shortlist selection happens in the periodic shortlist job so
			// the daily slots compete across the whole scored pool
			return 1, nil
		})
	})
}

// RunShortlist selects the daily draft slots per community and creates the
// drafts. Invoked on a schedule, not per event.
func (h *PhaseHandlers) RunShortlist(ctx context.Context) error {
	return h.tracked(ctx, models.PhaseDraft, func(ctx context.Context) (int, error) {
		created := 0
		for _, community := range h.cfg.Communities {
			candidates, err := h.items.ListDraftCandidates(ctx, community.ID, 200)
			if err != nil {
				return created, err
			}
			picked := scorer.SelectForDrafting(candidates, h.cfg.Pipeline.DailyDraftSlots)
			for i := range picked {
				item := &picked[i]
				draft, err := h.drafter.Shortlist(ctx, item)
				if err != nil {
					return created, err
				}
				// Shortlist is idempotent per raw item; a draft already past
				// shortlisted belongs to an earlier run.
				if draft.Status != models.DraftShortlisted {
					continue
				}

				localRelevance := 0
				if item.Scores.LocalRelevance != nil {
					localRelevance = *item.Scores.LocalRelevance
				}
				newsValue := 0
				if item.Scores.NewsValue != nil {
					newsValue = *item.Scores.NewsValue
				}
				next := events.ItemShortlistedEvent{
					BaseEvent:      events.NewBaseEvent(events.ItemShortlisted, "worker"),
					ItemID:         item.ID,
					DraftID:        draft.ID,
					CommunityID:    item.CommunityID,
					LocalRelevance: localRelevance,
					NewsValue:      newsValue,
				}
				if err := h.publish(ctx, eventbus.TopicDraft, next); err != nil {
					return created, err
				}
				created++
			}
		}
		return created, nil
	})
}

// HandleItemShortlisted runs outline generation for one draft.
func (h *PhaseHandlers) HandleItemShortlisted(ctx context.Context, ev *events.ItemShortlistedEvent) error {
	return h.withLock(ctx, ev.DraftID, models.PhaseDraft, func(ctx context.Context) error {
		return h.tracked(ctx, models.PhaseDraft, func(ctx context.Context) (int, error) {
			draft, err := h.draftRepo.FindByID(ctx, ev.DraftID)
			if err != nil {
				return 0, err
			}
			if draft.Status != models.DraftShortlisted {
				return 0, nil
			}
			item, err := h.items.FindByID(ctx, ev.ItemID)
			if err != nil {
				return 0, err
			}

			if err := h.drafter.GenerateOutline(ctx, draft, item); err != nil {
				return 0, err
			}

			next := events.DraftOutlineGeneratedEvent{
				BaseEvent:   events.NewBaseEvent(events.DraftOutlineGenerated, "worker"),
				DraftID:     draft.ID,
				ItemID:      item.ID,
				CommunityID: item.CommunityID,
			}
			return 1, h.publish(ctx, eventbus.TopicFactCheck, next)
		})
	})
}

// HandleDraftOutlineGenerated runs the fact-check phase for one draft.
func (h *PhaseHandlers) HandleDraftOutlineGenerated(ctx context.Context, ev *events.DraftOutlineGeneratedEvent) error {
	return h.withLock(ctx, ev.DraftID, models.PhaseFactCheck, func(ctx context.Context) error {
		return h.tracked(ctx, models.PhaseFactCheck, func(ctx context.Context) (int, error) {
			draft, err := h.draftRepo.FindByID(ctx, ev.DraftID)
			if err != nil {
				return 0, err
			}
			if draft.Status != models.DraftOutlineGenerated {
				return 0, nil
			}
			item, err := h.items.FindByID(ctx, ev.ItemID)
			if err != nil {
				return 0, err
			}

			confidence, err := h.checker.CheckDraft(ctx, draft, item)
			if err != nil {
				return 0, err
			}
			advanced, err := h.drafter.ApplyFactCheck(ctx, draft, confidence)
			if err != nil {
				return 0, err
			}
			if !advanced {
				// held for manual fact review
				return 1, nil
			}

			next := events.DraftApprovedForGenerationEvent{
				BaseEvent:   events.NewBaseEvent(events.DraftApprovedForGeneration, "worker"),
				DraftID:     draft.ID,
				ItemID:      item.ID,
				CommunityID: item.CommunityID,
			}
			return 1, h.publish(ctx, eventbus.TopicDraft, next)
		})
	})
}

// HandleDraftApprovedForGeneration runs article generation and the quality
// gate for one draft. A below-threshold first attempt returns an error so
// the eventbus redelivers for the single loop-back.
func (h *PhaseHandlers) HandleDraftApprovedForGeneration(ctx context.Context, ev *events.DraftApprovedForGenerationEvent) error {
	return h.withLock(ctx, ev.DraftID, models.PhaseDraft, func(ctx context.Context) error {
		return h.tracked(ctx, models.PhaseDraft, func(ctx context.Context) (int, error) {
			draft, err := h.draftRepo.FindByID(ctx, ev.DraftID)
			if err != nil {
				return 0, err
			}
			if draft.Status != models.DraftReadyForGeneration {
				return 0, nil
			}
			item, err := h.items.FindByID(ctx, ev.ItemID)
			if err != nil {
				return 0, err
			}

			if err := h.drafter.GenerateArticle(ctx, draft, item); err != nil {
				return 0, err
			}

			draft, err = h.draftRepo.FindByID(ctx, ev.DraftID)
			if err != nil {
				return 1, err
			}
			if draft.Status != models.DraftReadyForPublishing {
				// rejected by the quality gate
				return 1, nil
			}

			next := events.DraftReadyForPublishingEvent{
				BaseEvent:   events.NewBaseEvent(events.DraftReadyForPublishing, "worker"),
				DraftID:     draft.ID,
				ItemID:      item.ID,
				CommunityID: item.CommunityID,
			}
			return 1, h.publish(ctx, eventbus.TopicRoute, next)
		})
	})
}

// HandleDraftReadyForPublishing runs moderation, routing and thread linking
// for one draft.
func (h *PhaseHandlers) HandleDraftReadyForPublishing(ctx context.Context, ev *events.DraftReadyForPublishingEvent) error {
	return h.withLock(ctx, ev.ItemID, models.PhaseRoute, func(ctx context.Context) error {
		return h.tracked(ctx, models.PhaseRoute, func(ctx context.Context) (int, error) {
			draft, err := h.draftRepo.FindByID(ctx, ev.DraftID)
			if err != nil {
				return 0, err
			}
			if draft.Status != models.DraftReadyForPublishing {
				return 0, nil
			}
			item, err := h.items.FindByID(ctx, ev.ItemID)
			if err != nil {
				return 0, err
			}

			decision, err := h.moderate(ctx, draft)
			if err != nil {
				return 0, err
			}
			switch decision {
			case models.ModerationRejected:
				return 1, nil
			case models.ModerationNeedsReview:
				return 1, h.draftRepo.SetHeldForReview(ctx, draft.ID, true)
			}

			outputs, err := h.router.Route(ctx, item, draft)
			if err != nil {
				return 0, err
			}
			routedEv := events.ItemRoutedEvent{
				BaseEvent: events.NewBaseEvent(events.ItemRouted, "worker"),
				ItemID:    item.ID,
				Outputs:   outputs,
			}
			if err := h.publish(ctx, eventbus.TopicRoute, routedEv); err != nil {
				return 1, err
			}

			if err := h.linkThread(ctx, draft, item); err != nil {
				return 1, err
			}
			return 1, nil
		})
	})
}

// moderate runs the gate on the draft snapshot and applies a terminal
// rejection. flagged content passes with an editor-visible warning.
func (h *PhaseHandlers) moderate(ctx context.Context, draft *models.NewsArticleDraft) (models.ModerationDecision, error) {
	row, err := h.gate.Moderate(ctx, models.KindDraft, draft.ID, draft.Title, draft.Body)
	if err != nil {
		return "", err
	}

	moderatedEv := events.ContentModeratedEvent{
		BaseEvent:   events.NewBaseEvent(events.ContentModerated, "worker"),
		ContentKind: models.KindDraft,
		ContentID:   draft.ID,
		Decision:    row.Decision,
	}
	if err := h.publish(ctx, eventbus.TopicRoute, moderatedEv); err != nil {
		return "", err
	}

	if row.Decision == models.ModerationRejected {
		reason := fmt.Sprintf("moderation rejected (section %s)", row.ViolationSection)
		if err := h.drafter.Reject(ctx, draft, reason); err != nil {
			return "", err
		}
	}
	return row.Decision, nil
}

func (h *PhaseHandlers) linkThread(ctx context.Context, draft *models.NewsArticleDraft, item *models.RawContentItem) error {
	if item.Entities.IsEmpty() {
		return nil
	}
	candidate, err := h.threadMgr.SuggestThread(ctx, item.CommunityID, item.Entities)
	if err != nil {
		return err
	}
	_, _, err = h.threadMgr.LinkOrCreate(ctx, draft, item, candidate, "")
	if err != nil {
		// a redelivered routing event may have linked already
		if errors.Is(err, models.ErrDuplicateThreadArticle) {
			return nil
		}
		return err
	}
	return nil
}

// RunThreadScan evaluates due follow-up triggers and the dormancy window.
// Invoked on a schedule.
func (h *PhaseHandlers) RunThreadScan(ctx context.Context) error {
	return h.tracked(ctx, models.PhaseThreadScan, func(ctx context.Context) (int, error) {
		return h.threadMgr.ScanDueTriggers(ctx, time.Now())
	})
}
