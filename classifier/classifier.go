package classifier

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"town-desk/config"
	"town-desk/llm"
	"town-desk/models"
)

// ClassificationResult is the structured classifier output.
type ClassificationResult struct {
	ContentType     string                 `json:"content_type"`
	Categories      []string               `json:"categories"`
	Entities        models.EntitySet       `json:"entities"`
	HasEvent        bool                   `json:"has_event"`
	GeographicScope models.GeographicScope `json:"geographic_scope"`
}

// ItemStore is the persistence surface the classifier needs.
type ItemStore interface {
	UpdateClassification(ctx context.Context, itemID primitive.ObjectID, result ClassificationResult) error
	MarkClassificationFailed(ctx context.Context, itemID primitive.ObjectID, errMsg string) (attempts int, err error)
	MarkSkipped(ctx context.Context, itemID primitive.ObjectID, reason string) error
}

// AILogStore persists LLM usage rows.
type AILogStore interface {
	Insert(ctx context.Context, log models.AILog) error
}

const SYSTEM_INSTRUCTION = `
You are a content classifier for a local-news pipeline. Analyze the provided text and respond with a single JSON object:
1.  content_type: one of "news", "announcement", "event", "press_release", "legal_notice", "obituary", "business_update", "other".
2.  categories: an array of short lowercase topic tags (e.g. ["city-council", "parks"]). May be empty.
3.  entities: an object with string arrays "people", "organizations", "locations", "dates", "businesses". Use empty arrays when nothing was found.
4.  has_event: boolean, true if the text describes a specific upcoming or recent event with a date or venue.
5.  geographic_scope: one of "neighborhood", "citywide", "regional", "national", judging how local the subject matter is.
You MUST NOT wrap the JSON output in a markdown code block. The response should contain ONLY the raw JSON string.
`

// Classifier assigns content type, categories and entities to raw items.
type Classifier struct {
	gen        llm.Generator
	store      ItemStore
	logs       AILogStore
	maxRetries int
	timeout    time.Duration
}

func New(gen llm.Generator, store ItemStore, logs AILogStore, cfg config.PipelineConfig) *Classifier {
	maxRetries := cfg.MaxRetriesPerPhase
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Classifier{
		gen:        gen,
		store:      store,
		logs:       logs,
		maxRetries: maxRetries,
		timeout:    cfg.PhaseTimeout(),
	}
}

// Classify produces the classification for one item without persisting it.
func (c *Classifier) Classify(ctx context.Context, item *models.RawContentItem) (*ClassificationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := fmt.Sprintf("Title: %s\n\n%s", item.Title, item.Body)
	text, reqLog, err := c.gen.Generate(ctx, "classification", SYSTEM_INSTRUCTION, prompt)
	if c.logs != nil {
		if logErr := c.logs.Insert(ctx, reqLog); logErr != nil {
			config.Logger.Warnf("failed to insert ai log: %v", logErr)
		}
	}
	if err != nil {
		return nil, err
	}

	var result ClassificationResult
	if err := llm.UnmarshalResponse(text, &result); err != nil {
		return nil, fmt.Errorf("classifier returned malformed JSON: %w", err)
	}
	if result.ContentType == "" {
		result.ContentType = "other"
	}
	return &result, nil
}

// Process classifies one item and persists the outcome. A returned error
// means the phase should be retried; exhausted items are terminally skipped
// and return nil so the queue commits.
func (c *Classifier) Process(ctx context.Context, item *models.RawContentItem) error {
	result, err := c.Classify(ctx, item)
	if err != nil {
		attempts, storeErr := c.store.MarkClassificationFailed(ctx, item.ID, err.Error())
		if storeErr != nil {
			return fmt.Errorf("classification failed and status write failed: %v (original: %w)", storeErr, err)
		}
		if attempts >= c.maxRetries {
			config.Logger.Warnf("item %s exhausted classification retries (%d), skipping", item.ID.Hex(), attempts)
			if skipErr := c.store.MarkSkipped(ctx, item.ID, models.SkipClassificationExhausted); skipErr != nil {
				return skipErr
			}
			return nil
		}
		return err
	}

	if err := c.store.UpdateClassification(ctx, item.ID, *result); err != nil {
		return err
	}

	config.Logger.Infof("item %s classified as %s (categories: %v)", item.ID.Hex(), result.ContentType, result.Categories)
	return nil
}
