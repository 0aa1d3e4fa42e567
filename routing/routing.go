package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"town-desk/config"
	"town-desk/models"
)

// ErrNotReady is returned when routing a draft that is not ready_for_publishing.
var ErrNotReady = errors.New("draft is not ready for publishing")

// ItemStore is the raw-item persistence surface the router needs.
type ItemStore interface {
	// AppendRoutedOutput adds the output unless the item already carries one
	// of the same kind. Returns whether a row was appended.
	AppendRoutedOutput(ctx context.Context, itemID primitive.ObjectID, output models.RoutedOutput) (bool, error)
	MarkProcessed(ctx context.Context, itemID primitive.ObjectID) error
}

// DraftStore is the draft persistence surface the router needs.
type DraftStore interface {
	// Publish moves the draft ready_for_publishing → published, appending
	// the transition log row.
	Publish(ctx context.Context, draftID primitive.ObjectID, at time.Time) error
}

// RouteKinds maps the classified shape of an item to its publication kinds.
// Deterministic: the same (contentType, categories, scope, hasEvent) tuple
// always yields the same kinds, in the same order, so re-routing after a
// retry is idempotent.
func RouteKinds(contentType string, categories []string, scope models.GeographicScope, hasEvent bool) []models.ContentKind {
	var kinds []models.ContentKind

	switch contentType {
	case "news":
		kinds = append(kinds, models.KindArticle)
	case "announcement":
		kinds = append(kinds, models.KindAnnouncement)
	case "event":
		kinds = append(kinds, models.KindEvent)
	case "legal_notice":
		kinds = append(kinds, models.KindLegalNotice)
	case "obituary":
		kinds = append(kinds, models.KindMemorial)
	case "press_release":
		// a press release yields both the announcement and a news article
		kinds = append(kinds, models.KindAnnouncement, models.KindArticle)
	case "business_update":
		kinds = append(kinds, models.KindAnnouncement)
	default:
		kinds = append(kinds, models.KindArticle)
	}

	for _, category := range categories {
		switch category {
		case "obituaries", "memorials":
			kinds = appendKind(kinds, models.KindMemorial)
		case "legal", "public-notices":
			kinds = appendKind(kinds, models.KindLegalNotice)
		}
	}

	// The community calendar only carries local happenings; regional and
	// national items keep their primary kinds but gain no event listing.
	if hasEvent && scope.IsLocal() {
		kinds = appendKind(kinds, models.KindEvent)
	}
	return kinds
}

func appendKind(kinds []models.ContentKind, kind models.ContentKind) []models.ContentKind {
	for _, k := range kinds {
		if k == kind {
			return kinds
		}
	}
	return append(kinds, kind)
}

// Router turns a ready draft into routed outputs and publishes it.
type Router struct {
	items  ItemStore
	drafts DraftStore
}

func NewRouter(items ItemStore, drafts DraftStore) *Router {
	return &Router{items: items, drafts: drafts}
}

// Route appends one routed output per publication kind the item maps to,
// skipping kinds already present, then publishes the draft and marks the
// item processed. Safe to re-run: the append is conditional on kind absence
// and the publish transition is guarded by the draft status.
func (r *Router) Route(ctx context.Context, item *models.RawContentItem, draft *models.NewsArticleDraft) ([]models.RoutedOutput, error) {
	if draft.Status != models.DraftReadyForPublishing {
		return nil, fmt.Errorf("routing draft %s in status %s: %w", draft.ID.Hex(), draft.Status, ErrNotReady)
	}

	kinds := RouteKinds(item.ContentType, item.Categories, item.GeographicScope, item.HasEvent)
	routed := make([]models.RoutedOutput, 0, len(kinds))
	for _, kind := range kinds {
		output := models.RoutedOutput{Kind: kind, ID: draft.ID}
		added, err := r.items.AppendRoutedOutput(ctx, item.ID, output)
		if err != nil {
			return routed, err
		}
		if !added {
			config.Logger.Debugf("item %s already routed to %s, skipping", item.ID.Hex(), kind)
			continue
		}
		routed = append(routed, output)
	}

	if err := r.drafts.Publish(ctx, draft.ID, time.Now()); err != nil {
		return routed, err
	}
	if err := r.items.MarkProcessed(ctx, item.ID); err != nil {
		return routed, err
	}

	config.Logger.Infof("item %s routed to %d output(s), draft %s published",
		item.ID.Hex(), len(routed), draft.ID.Hex())
	return routed, nil
}
