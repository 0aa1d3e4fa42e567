package normalizer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"town-desk/extractor"
	"town-desk/models"
)

// ErrValidation marks malformed input. Items failing validation are never
// retried.
var ErrValidation = errors.New("validation failed")

// ItemStore is the persistence surface the normalizer needs.
type ItemStore interface {
	// InsertIfAbsent inserts the item unless one with the same
	// (content_hash, community_id) exists. Returns the stored item and
	// whether a new row was created.
	InsertIfAbsent(ctx context.Context, item *models.RawContentItem) (*models.RawContentItem, bool, error)
}

// IngestResult reports the dedup outcome of one ingestion call.
type IngestResult struct {
	Item      *models.RawContentItem
	Duplicate bool
}

// RSSItem is one entry of a feed poll result.
type RSSItem struct {
	FeedID      string
	FeedName    string
	GUID        string
	Title       string
	Link        string
	Description string
	PubDate     time.Time
}

// InboundEmail is one message received on an ingestion mailbox.
type InboundEmail struct {
	Mailbox    string
	From       string
	Subject    string
	ReceivedAt time.Time
	BodyText   string
	BodyHTML   string
}

// WireItem is one wire-service press release.
type WireItem struct {
	ServiceProvider string
	Headline        string
	Body            string
	Dateline        string
	ReleaseDate     time.Time
}

// ScrapedPage is one crawled page or business record.
type ScrapedPage struct {
	SourceURL     string
	Title         string
	HTML          string
	ExtractedText string
}

// Normalizer converts heterogeneous source payloads into RawContentItems and
// performs idempotent, hash-keyed ingestion.
type Normalizer struct {
	store ItemStore
}

func New(store ItemStore) *Normalizer {
	return &Normalizer{store: store}
}

// IngestRSS normalizes and stores one RSS item for a community.
func (n *Normalizer) IngestRSS(ctx context.Context, communityID string, item RSSItem) (*IngestResult, error) {
	if item.Title == "" && item.Description == "" {
		return nil, fmt.Errorf("%w: rss item has neither title nor description", ErrValidation)
	}

	raw := newItem(communityID, models.SourceRef{
		Kind:     models.SourceRSS,
		FeedID:   item.FeedID,
		FeedName: item.FeedName,
		GUID:     item.GUID,
		SourceURL: item.Link,
	})
	raw.Title = strings.TrimSpace(item.Title)
	raw.Body = strings.TrimSpace(item.Description)
	raw.Excerpt = excerpt(raw.Body)
	if !item.PubDate.IsZero() {
		raw.CollectedAt = item.PubDate
	}

	return n.ingest(ctx, raw)
}

// IngestEmail normalizes and stores one inbound email.
func (n *Normalizer) IngestEmail(ctx context.Context, communityID string, mail InboundEmail) (*IngestResult, error) {
	if mail.Subject == "" && mail.BodyText == "" && mail.BodyHTML == "" {
		return nil, fmt.Errorf("%w: email has no subject or body", ErrValidation)
	}

	body := strings.TrimSpace(mail.BodyText)
	if body == "" && mail.BodyHTML != "" {
		flat, err := extractor.FlattenEmailHTML(mail.BodyHTML)
		if err != nil {
			return nil, fmt.Errorf("%w: unparseable email html: %v", ErrValidation, err)
		}
		body = flat
	}

	raw := newItem(communityID, models.SourceRef{
		Kind:    models.SourceEmail,
		Mailbox: mail.Mailbox,
		From:    mail.From,
	})
	raw.Title = strings.TrimSpace(mail.Subject)
	raw.Body = body
	raw.RawHTML = mail.BodyHTML
	raw.Excerpt = excerpt(body)
	if !mail.ReceivedAt.IsZero() {
		raw.CollectedAt = mail.ReceivedAt
	}

	return n.ingest(ctx, raw)
}

// IngestWire normalizes and stores one wire-service item.
func (n *Normalizer) IngestWire(ctx context.Context, communityID string, item WireItem) (*IngestResult, error) {
	if item.Headline == "" || item.Body == "" {
		return nil, fmt.Errorf("%w: wire item requires headline and body", ErrValidation)
	}

	body := item.Body
	// Wire bodies frequently arrive as HTML fragments.
	if strings.Contains(body, "<") && strings.Contains(body, ">") {
		if page, err := extractor.ExtractWithGoose(body); err == nil && page.PlainTextContent != "" {
			body = page.PlainTextContent
		}
	}

	raw := newItem(communityID, models.SourceRef{
		Kind:            models.SourceWire,
		ServiceProvider: item.ServiceProvider,
		Dateline:        item.Dateline,
	})
	raw.Title = strings.TrimSpace(item.Headline)
	raw.Body = strings.TrimSpace(body)
	raw.Excerpt = excerpt(raw.Body)
	if !item.ReleaseDate.IsZero() {
		raw.CollectedAt = item.ReleaseDate
	}

	return n.ingest(ctx, raw)
}

// IngestScrape normalizes and stores one scraped page.
func (n *Normalizer) IngestScrape(ctx context.Context, communityID string, page ScrapedPage) (*IngestResult, error) {
	if page.SourceURL == "" {
		return nil, fmt.Errorf("%w: scraped page requires source_url", ErrValidation)
	}

	title := strings.TrimSpace(page.Title)
	text := strings.TrimSpace(page.ExtractedText)
	if text == "" && page.HTML != "" {
		extracted, err := extractor.ExtractArticle(page.HTML)
		if err != nil {
			return nil, fmt.Errorf("%w: unextractable page html: %v", ErrValidation, err)
		}
		text = strings.TrimSpace(extracted.PlainTextContent)
		if title == "" {
			title = extracted.Title
		}
	}
	if title == "" && page.HTML != "" {
		if meta, err := extractor.ExtractMeta(page.HTML); err == nil {
			title = meta.Title
		}
	}
	if text == "" {
		return nil, fmt.Errorf("%w: scraped page has no extractable text", ErrValidation)
	}

	raw := newItem(communityID, models.SourceRef{
		Kind:      models.SourceScrape,
		SourceURL: page.SourceURL,
	})
	raw.Title = title
	raw.Body = text
	raw.RawHTML = page.HTML
	raw.Excerpt = excerpt(text)

	return n.ingest(ctx, raw)
}

func (n *Normalizer) ingest(ctx context.Context, raw *models.RawContentItem) (*IngestResult, error) {
	raw.ContentHash = ContentHash(raw.Title, raw.Body)

	stored, created, err := n.store.InsertIfAbsent(ctx, raw)
	if err != nil {
		return nil, err
	}
	return &IngestResult{Item: stored, Duplicate: !created}, nil
}

func newItem(communityID string, source models.SourceRef) *models.RawContentItem {
	now := time.Now()
	return &models.RawContentItem{
		CommunityID:          communityID,
		Source:               source,
		CollectedAt:          now,
		CreatedAt:            now,
		UpdatedAt:            now,
		ClassificationStatus: models.ClassificationPending,
		ProcessingStatus:     models.ProcessingPending,
		RoutedOutputs:        []models.RoutedOutput{},
	}
}

// ContentHash computes the dedup fingerprint: sha256 over the
// whitespace-collapsed, lower-cased title and body.
func ContentHash(title, body string) string {
	normalized := normalizeText(title) + "\n" + normalizeText(body)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func excerpt(body string) string {
	const maxLen = 280
	rs := []rune(strings.TrimSpace(body))
	if len(rs) <= maxLen {
		return string(rs)
	}
	return string(rs[:maxLen])
}
