package main

import (
	"context"

	"town-desk/config"
	"town-desk/eventbus"
	"town-desk/events"
	"town-desk/extractor"
	"town-desk/feeder"
	"town-desk/models"
	"town-desk/normalizer"
	"town-desk/workflow"
)

// IngestService polls each community's sources and feeds new items into the
// classification queue.
type IngestService struct {
	normalizer *normalizer.Normalizer
	bus        eventbus.EventBus
	tracker    *workflow.Tracker
	cfg        config.AppConfig
}

func NewIngestService(n *normalizer.Normalizer, bus eventbus.EventBus, tracker *workflow.Tracker, cfg config.AppConfig) *IngestService {
	return &IngestService{normalizer: n, bus: bus, tracker: tracker, cfg: cfg}
}

// RunCollection executes one full ingestion cycle across all communities.
// Ingestion is idempotent, so overlapping or repeated cycles are safe.
func (s *IngestService) RunCollection(ctx context.Context) error {
	if len(s.cfg.Communities) == 0 {
		config.Logger.Warn("no communities configured in config.yaml (key: communities)")
		return nil
	}

	runID, err := s.tracker.Start(ctx, models.PhaseIngest)
	if err != nil {
		return err
	}

	ingested := 0
	for _, community := range s.cfg.Communities {
		n, err := s.collectFeeds(ctx, community)
		ingested += n
		if err != nil {
			config.Logger.Errorf("feed collection failed for community %s: %v", community.ID, err)
		}

		n, err = s.collectScrapes(ctx, community)
		ingested += n
		if err != nil {
			config.Logger.Errorf("scrape collection failed for community %s: %v", community.ID, err)
		}
	}

	if err := s.tracker.Complete(ctx, runID, ingested); err != nil {
		return err
	}
	config.Logger.Infof("ingestion cycle done: %d new item(s)", ingested)
	return nil
}

func (s *IngestService) collectFeeds(ctx context.Context, community config.Community) (int, error) {
	limit := s.cfg.Pipeline.FeedFetchLimit
	if limit <= 0 {
		limit = 20
	}

	ingested := 0
	for _, feed := range community.Feeds {
		rssItems, err := feeder.FetchRssFeeds(feed.RSSURL, limit)
		if err != nil {
			config.Logger.Errorf("failed to fetch feed %s (%s): %v", feed.Name, feed.RSSURL, err)
			continue
		}

		for _, ri := range rssItems {
			result, err := s.normalizer.IngestRSS(ctx, community.ID, normalizer.RSSItem{
				FeedID:      feed.RSSURL,
				FeedName:    feed.Name,
				GUID:        ri.GUID,
				Title:       ri.Title,
				Link:        ri.Link,
				Description: ri.Description,
				PubDate:     ri.PublishedAt,
			})
			if err != nil {
				config.Logger.Errorf("failed to ingest feed item %q: %v", ri.Title, err)
				continue
			}
			if result.Duplicate {
				continue
			}
			if err := s.publishIngested(ctx, result.Item); err != nil {
				return ingested, err
			}
			ingested++
		}
	}
	return ingested, nil
}

func (s *IngestService) collectScrapes(ctx context.Context, community config.Community) (int, error) {
	ingested := 0
	for _, url := range community.ScrapeURLs {
		html, err := extractor.FetchHTML(ctx, url)
		if err != nil {
			// client-rendered pages need the headless fallback
			html, err = extractor.RenderHTML(ctx, url)
			if err != nil {
				config.Logger.Errorf("failed to fetch scrape target %s: %v", url, err)
				continue
			}
		}

		page, err := extractor.ExtractArticle(html)
		if err != nil {
			config.Logger.Errorf("failed to extract scrape target %s: %v", url, err)
			continue
		}

		result, err := s.normalizer.IngestScrape(ctx, community.ID, normalizer.ScrapedPage{
			SourceURL:     url,
			Title:         page.Title,
			HTML:          html,
			ExtractedText: page.PlainTextContent,
		})
		if err != nil {
			config.Logger.Errorf("failed to ingest scrape target %s: %v", url, err)
			continue
		}
		if result.Duplicate {
			continue
		}
		if err := s.publishIngested(ctx, result.Item); err != nil {
			return ingested, err
		}
		ingested++
	}
	return ingested, nil
}

func (s *IngestService) publishIngested(ctx context.Context, item *models.RawContentItem) error {
	event := events.ItemIngestedEvent{
		BaseEvent:   events.NewBaseEvent(events.ItemIngested, "ingest"),
		ItemID:      item.ID,
		CommunityID: item.CommunityID,
		SourceKind:  item.Source.Kind,
		Title:       item.Title,
	}
	evt, err := eventbus.NewJSONEvent("", event, s.cfg.Pipeline.MaxRetriesPerPhase)
	if err != nil {
		return err
	}
	return s.bus.Publish(ctx, eventbus.TopicClassify.Base(), evt)
}
