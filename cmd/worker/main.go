package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"town-desk/classifier"
	"town-desk/cmd/worker/handlers"
	"town-desk/config"
	"town-desk/db"
	draftsvc "town-desk/drafts"
	"town-desk/eventbus"
	"town-desk/events"
	"town-desk/extractor"
	"town-desk/factcheck"
	"town-desk/llm"
	"town-desk/moderation"
	"town-desk/repositories"
	"town-desk/routing"
	"town-desk/scorer"
	"town-desk/threads"
	"town-desk/workflow"
)

// shortlistInterval is how often the daily-slot selection runs. Idempotent
// per item, so running it more often than daily only fills slots earlier.
const shortlistInterval = 1 * time.Hour

const threadScanInterval = 1 * time.Hour

// webEvidenceFetcher backs fact-check evidence gathering with plain HTTP
// fetch + article extraction.
type webEvidenceFetcher struct{}

func (webEvidenceFetcher) FetchText(ctx context.Context, url string) (string, error) {
	html, err := extractor.FetchHTML(ctx, url)
	if err != nil {
		return "", err
	}
	page, err := extractor.ExtractArticle(html)
	if err != nil {
		return "", err
	}
	return page.PlainTextContent, nil
}

func main() {
	config.InitApp()
	cfg := config.GetConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.Init(ctx); err != nil {
		config.Logger.Errorf("failed to initialize MongoDB: %v", err)
		os.Exit(1)
	}

	brokers := eventbus.GetBrokers()
	for _, topic := range eventbus.AllTopics {
		if err := eventbus.EnsureTopics(brokers, topic, 3); err != nil {
			config.Logger.Errorf("failed to ensure topics for %s: %v", topic.Base(), err)
		}
	}

	bus, err := eventbus.NewKafkaEventBus(brokers)
	if err != nil {
		config.Logger.Errorf("failed to create event bus: %v", err)
		os.Exit(1)
	}
	defer bus.Close()

	database := db.Database()
	items := repositories.NewRawContentItemRepository(database)
	draftRepo := repositories.NewDraftRepository(database)
	factRepo := repositories.NewFactCheckResultRepository(database)
	threadRepo := repositories.NewStoryThreadRepository(database)
	linkRepo := repositories.NewStoryThreadArticleRepository(database)
	triggerRepo := repositories.NewFollowUpTriggerRepository(database)
	moderationRepo := repositories.NewModerationLogRepository(database)
	runRepo := repositories.NewWorkflowRunRepository(database)
	aiLogs := repositories.NewAILogRepository(database)
	locks := repositories.NewPhaseLockRepository(database, 2*cfg.Pipeline.PhaseTimeout())

	gemini := llm.NewGeminiClient(cfg)
	cls := classifier.New(gemini, items, aiLogs, cfg.Pipeline)
	sc := scorer.New(gemini, items, aiLogs, cfg.Pipeline)
	generator := draftsvc.NewGenerator(gemini, aiLogs, cfg.Pipeline)
	drafter := draftsvc.NewOrchestrator(draftRepo, items, generator, cfg.Pipeline)
	checker := factcheck.New(gemini, factRepo, aiLogs, webEvidenceFetcher{}, cfg)
	router := routing.NewRouter(items, draftRepo)
	gate := moderation.NewGate(gemini, moderationRepo, aiLogs, cfg)
	threadMgr := threads.NewManager(threadRepo, linkRepo, triggerRepo, locks, cfg.Pipeline)
	tracker := workflow.NewTracker(runRepo)

	phaseHandlers := handlers.NewPhaseHandlers(
		bus, items, draftRepo, locks,
		cls, sc, drafter, checker, router, gate, threadMgr, tracker, cfg,
	)

	reaper := handlers.NewDeadLetterReaper(items, draftRepo, drafter)

	groupID := eventbus.GetGroupID()

	dispatch := func(ctx context.Context, ev eventbus.Event) error {
		// peek the type tag first; the full payload decodes per type
		var peek struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(ev.Payload, &peek); err != nil {
			return err
		}
		switch events.EventType(peek.Type) {
		case events.ItemIngested:
			v, err := eventbus.DecodeJSON[events.ItemIngestedEvent](ev)
			if err != nil {
				return err
			}
			return phaseHandlers.HandleItemIngested(ctx, &v)
		case events.ItemClassified:
			v, err := eventbus.DecodeJSON[events.ItemClassifiedEvent](ev)
			if err != nil {
				return err
			}
			return phaseHandlers.HandleItemClassified(ctx, &v)
		case events.ItemShortlisted:
			v, err := eventbus.DecodeJSON[events.ItemShortlistedEvent](ev)
			if err != nil {
				return err
			}
			return phaseHandlers.HandleItemShortlisted(ctx, &v)
		case events.DraftOutlineGenerated:
			v, err := eventbus.DecodeJSON[events.DraftOutlineGeneratedEvent](ev)
			if err != nil {
				return err
			}
			return phaseHandlers.HandleDraftOutlineGenerated(ctx, &v)
		case events.DraftApprovedForGeneration:
			v, err := eventbus.DecodeJSON[events.DraftApprovedForGenerationEvent](ev)
			if err != nil {
				return err
			}
			return phaseHandlers.HandleDraftApprovedForGeneration(ctx, &v)
		case events.DraftReadyForPublishing:
			v, err := eventbus.DecodeJSON[events.DraftReadyForPublishingEvent](ev)
			if err != nil {
				return err
			}
			return phaseHandlers.HandleDraftReadyForPublishing(ctx, &v)
		default:
			// observability events and unknown types are committed untouched
			return nil
		}
	}

	config.Logger.Info("starting pipeline worker...")

	var wg sync.WaitGroup
	for _, topic := range eventbus.AllTopics {
		topic := topic

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bus.Subscribe(ctx, groupID, topic, dispatch); err != nil && err != context.Canceled {
				config.Logger.Errorf("subscribe error on %s: %v", topic.Base(), err)
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bus.StartRetryReinjector(ctx, groupID+".retry", topic); err != nil && err != context.Canceled {
				config.Logger.Errorf("retry reinjector error on %s: %v", topic.Base(), err)
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bus.SubscribeDLQ(ctx, groupID+".dlq", topic, reaper.Handle); err != nil && err != context.Canceled {
				config.Logger.Errorf("dlq consumer error on %s: %v", topic.Base(), err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		runOnTicker(ctx, shortlistInterval, "shortlist", phaseHandlers.RunShortlist)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runOnTicker(ctx, threadScanInterval, "thread scan", phaseHandlers.RunThreadScan)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	config.Logger.Info("received shutdown signal, shutting down worker...")

	cancel()
	wg.Wait()

	config.Logger.Info("worker stopped")
}

func runOnTicker(ctx context.Context, interval time.Duration, name string, job func(ctx context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := job(ctx); err != nil {
				config.Logger.Errorf("%s job failed: %v", name, err)
			}
		}
	}
}
