package normalizer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"town-desk/models"
	"town-desk/normalizer"
)

type fakeItemStore struct {
	byHash map[string]*models.RawContentItem
}

func newFakeItemStore() *fakeItemStore {
	return &fakeItemStore{byHash: map[string]*models.RawContentItem{}}
}

func (s *fakeItemStore) InsertIfAbsent(_ context.Context, item *models.RawContentItem) (*models.RawContentItem, bool, error) {
	key := item.ContentHash + "|" + item.CommunityID
	if existing, ok := s.byHash[key]; ok {
		return existing, false, nil
	}
	item.ID = primitive.NewObjectID()
	s.byHash[key] = item
	return item, true, nil
}

func TestContentHashNormalizesCaseAndWhitespace(t *testing.T) {
	a := normalizer.ContentHash("City Council Meets", "The   council met\non Tuesday.")
	b := normalizer.ContentHash("city council MEETS", " the council met on tuesday. ")
	assert.Equal(t, a, b)

	c := normalizer.ContentHash("City Council Meets", "The council adjourned.")
	assert.NotEqual(t, a, c)
}

func TestIngestRSSDeduplicatesByContentHash(t *testing.T) {
	store := newFakeItemStore()
	n := normalizer.New(store)

	item := normalizer.RSSItem{
		FeedID:      "https://example.org/feed.xml",
		FeedName:    "Example Gazette",
		GUID:        "guid-1",
		Title:       "Bridge repair starts Monday",
		Description: "The Oak Street bridge closes for repairs.",
		PubDate:     time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}

	first, err := n.IngestRSS(context.Background(), "springfield", item)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.Equal(t, models.SourceRSS, first.Item.Source.Kind)
	assert.Equal(t, "springfield", first.Item.CommunityID)
	assert.Equal(t, item.PubDate, first.Item.CollectedAt)

	// second poll returns the same entry under a different guid
	item.GUID = "guid-2"
	second, err := n.IngestRSS(context.Background(), "springfield", item)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Item.ID, second.Item.ID)
}

func TestIngestRSSSameContentDifferentCommunity(t *testing.T) {
	store := newFakeItemStore()
	n := normalizer.New(store)

	item := normalizer.RSSItem{Title: "County fair dates announced", Description: "The fair runs in July."}

	first, err := n.IngestRSS(context.Background(), "springfield", item)
	require.NoError(t, err)
	second, err := n.IngestRSS(context.Background(), "shelbyville", item)
	require.NoError(t, err)

	assert.False(t, first.Duplicate)
	assert.False(t, second.Duplicate)
	assert.NotEqual(t, first.Item.ID, second.Item.ID)
}

func TestIngestRSSRejectsEmptyItems(t *testing.T) {
	n := normalizer.New(newFakeItemStore())

	_, err := n.IngestRSS(context.Background(), "springfield", normalizer.RSSItem{GUID: "guid-3"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, normalizer.ErrValidation))
}

func TestIngestWireRequiresHeadlineAndBody(t *testing.T) {
	n := normalizer.New(newFakeItemStore())

	_, err := n.IngestWire(context.Background(), "springfield", normalizer.WireItem{Headline: "Headline only"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, normalizer.ErrValidation))
}

func TestIngestEmailUsesTextBody(t *testing.T) {
	store := newFakeItemStore()
	n := normalizer.New(store)

	res, err := n.IngestEmail(context.Background(), "springfield", normalizer.InboundEmail{
		Mailbox:  "tips@example.org",
		From:     "reader@example.org",
		Subject:  "Pothole on Main Street",
		BodyText: "There is a large pothole near the bakery.",
	})
	require.NoError(t, err)
	assert.Equal(t, models.SourceEmail, res.Item.Source.Kind)
	assert.Equal(t, "Pothole on Main Street", res.Item.Title)
	assert.Equal(t, "There is a large pothole near the bakery.", res.Item.Body)
	assert.Equal(t, models.ClassificationPending, res.Item.ClassificationStatus)
}

func TestIngestScrapeRequiresSourceURL(t *testing.T) {
	n := normalizer.New(newFakeItemStore())

	_, err := n.IngestScrape(context.Background(), "springfield", normalizer.ScrapedPage{ExtractedText: "text"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, normalizer.ErrValidation))
}

func TestIngestScrapeUsesExtractedText(t *testing.T) {
	store := newFakeItemStore()
	n := normalizer.New(store)

	res, err := n.IngestScrape(context.Background(), "springfield", normalizer.ScrapedPage{
		SourceURL:     "https://example.org/news/1",
		Title:         "Library expands hours",
		ExtractedText: "The public library is open until nine on weekdays.",
	})
	require.NoError(t, err)
	assert.Equal(t, models.SourceScrape, res.Item.Source.Kind)
	assert.Equal(t, "https://example.org/news/1", res.Item.Source.SourceURL)
	assert.NotEmpty(t, res.Item.ContentHash)
}
