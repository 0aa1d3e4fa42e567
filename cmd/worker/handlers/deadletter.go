package handlers

import (
	"context"
	"encoding/json"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"town-desk/config"
	draftsvc "town-desk/drafts"
	"town-desk/eventbus"
	"town-desk/events"
	"town-desk/models"
)

// TombstoneStore marks a raw item terminally skipped.
type TombstoneStore interface {
	MarkSkipped(ctx context.Context, itemID primitive.ObjectID, reason string) error
}

// DeadDraftStore loads the draft referenced by an exhausted event.
type DeadDraftStore interface {
	FindByID(ctx context.Context, draftID primitive.ObjectID) (*models.NewsArticleDraft, error)
}

// DraftRejecter is the rejection surface of the draft orchestrator.
type DraftRejecter interface {
	Reject(ctx context.Context, draft *models.NewsArticleDraft, reason string) error
}

// DeadLetterReaper reconciles exhausted events against their records: an
// event that used up its retries must leave the item or draft in a terminal
// state with a persisted reason, never parked mid-pipeline.
type DeadLetterReaper struct {
	items   TombstoneStore
	drafts  DeadDraftStore
	drafter DraftRejecter
}

func NewDeadLetterReaper(items TombstoneStore, drafts DeadDraftStore, drafter DraftRejecter) *DeadLetterReaper {
	return &DeadLetterReaper{items: items, drafts: drafts, drafter: drafter}
}

// Handle tombstones the record behind one dead-lettered event.
func (r *DeadLetterReaper) Handle(ctx context.Context, ev eventbus.Event) error {
	var peek struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(ev.Payload, &peek); err != nil {
		return err
	}

	reason := models.SkipRetriesExhausted
	if ev.LastError != "" {
		reason += ": " + ev.LastError
	}

	switch events.EventType(peek.Type) {
	case events.ItemIngested:
		v, err := eventbus.DecodeJSON[events.ItemIngestedEvent](ev)
		if err != nil {
			return err
		}
		return r.skipItem(ctx, v.ItemID, reason)
	case events.ItemClassified:
		v, err := eventbus.DecodeJSON[events.ItemClassifiedEvent](ev)
		if err != nil {
			return err
		}
		return r.skipItem(ctx, v.ItemID, reason)
	case events.ItemShortlisted:
		v, err := eventbus.DecodeJSON[events.ItemShortlistedEvent](ev)
		if err != nil {
			return err
		}
		return r.rejectDraft(ctx, v.DraftID, reason)
	case events.DraftOutlineGenerated:
		v, err := eventbus.DecodeJSON[events.DraftOutlineGeneratedEvent](ev)
		if err != nil {
			return err
		}
		return r.rejectDraft(ctx, v.DraftID, reason)
	case events.DraftApprovedForGeneration:
		v, err := eventbus.DecodeJSON[events.DraftApprovedForGenerationEvent](ev)
		if err != nil {
			return err
		}
		return r.rejectDraft(ctx, v.DraftID, reason)
	case events.DraftReadyForPublishing:
		v, err := eventbus.DecodeJSON[events.DraftReadyForPublishingEvent](ev)
		if err != nil {
			return err
		}
		return r.rejectDraft(ctx, v.DraftID, reason)
	default:
		// observability events carry no pipeline state
		return nil
	}
}

func (r *DeadLetterReaper) skipItem(ctx context.Context, itemID primitive.ObjectID, reason string) error {
	config.Logger.Warnf("dead-lettered item %s, tombstoning: %s", itemID.Hex(), reason)
	return r.items.MarkSkipped(ctx, itemID, reason)
}

func (r *DeadLetterReaper) rejectDraft(ctx context.Context, draftID primitive.ObjectID, reason string) error {
	draft, err := r.drafts.FindByID(ctx, draftID)
	if err != nil {
		return err
	}
	config.Logger.Warnf("dead-lettered draft %s, rejecting: %s", draftID.Hex(), reason)
	err = r.drafter.Reject(ctx, draft, reason)
	if errors.Is(err, draftsvc.ErrDraftTerminal) {
		return nil
	}
	return err
}
