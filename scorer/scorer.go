package scorer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"town-desk/config"
	"town-desk/llm"
	"town-desk/models"
)

// ScoreResult is the structured scorer output.
type ScoreResult struct {
	LocalRelevance int    `json:"local_relevance"`
	NewsValue      int    `json:"news_value"`
	Rationale      string `json:"rationale"`
}

// ItemStore is the persistence surface the scorer needs.
type ItemStore interface {
	UpdateScores(ctx context.Context, itemID primitive.ObjectID, scores models.ContentScores) error
	MarkSkipped(ctx context.Context, itemID primitive.ObjectID, reason string) error
}

// AILogStore persists LLM usage rows.
type AILogStore interface {
	Insert(ctx context.Context, log models.AILog) error
}

const SYSTEM_INSTRUCTION = `
You are a newsworthiness scorer for a local-news pipeline serving one specific community. Analyze the provided text and respond with a single JSON object:
1.  local_relevance: integer 0-100, how relevant this content is to residents of the named community.
2.  news_value: integer 0-100, how newsworthy the content is regardless of locality.
3.  rationale: one or two sentences explaining the scores.
You MUST NOT wrap the JSON output in a markdown code block. The response should contain ONLY the raw JSON string.
`

// Scorer produces relevance and news-value scores that gate the pipeline.
type Scorer struct {
	gen     llm.Generator
	store   ItemStore
	logs    AILogStore
	floor   int
	timeout time.Duration
}

func New(gen llm.Generator, store ItemStore, logs AILogStore, cfg config.PipelineConfig) *Scorer {
	return &Scorer{
		gen:     gen,
		store:   store,
		logs:    logs,
		floor:   cfg.RelevanceFloor,
		timeout: cfg.PhaseTimeout(),
	}
}

// Score produces scores for one item without persisting them.
func (s *Scorer) Score(ctx context.Context, item *models.RawContentItem) (*ScoreResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	prompt := fmt.Sprintf("Community: %s\nContent type: %s\nTitle: %s\n\n%s",
		item.CommunityID, item.ContentType, item.Title, item.Body)
	text, reqLog, err := s.gen.Generate(ctx, "scoring", SYSTEM_INSTRUCTION, prompt)
	if s.logs != nil {
		if logErr := s.logs.Insert(ctx, reqLog); logErr != nil {
			config.Logger.Warnf("failed to insert ai log: %v", logErr)
		}
	}
	if err != nil {
		return nil, err
	}

	var result ScoreResult
	if err := llm.UnmarshalResponse(text, &result); err != nil {
		return nil, fmt.Errorf("scorer returned malformed JSON: %w", err)
	}
	result.LocalRelevance = clamp(result.LocalRelevance)
	result.NewsValue = clamp(result.NewsValue)
	return &result, nil
}

// Process scores one item and persists the outcome. Items below the
// relevance floor are filed to the filler path and never reach drafting.
// Returns whether the item stays eligible for drafting.
func (s *Scorer) Process(ctx context.Context, item *models.RawContentItem) (bool, error) {
	result, err := s.Score(ctx, item)
	if err != nil {
		return false, err
	}

	scores := models.ContentScores{
		LocalRelevance: &result.LocalRelevance,
		NewsValue:      &result.NewsValue,
		Rationale:      result.Rationale,
	}
	if err := s.store.UpdateScores(ctx, item.ID, scores); err != nil {
		return false, err
	}

	if result.LocalRelevance < s.floor {
		config.Logger.Infof("item %s below relevance floor (%d < %d), filing to filler path",
			item.ID.Hex(), result.LocalRelevance, s.floor)
		if err := s.store.MarkSkipped(ctx, item.ID, models.SkipBelowRelevanceFloor); err != nil {
			return false, err
		}
		return false, nil
	}

	return true, nil
}

// SelectForDrafting picks the items winning the community's limited daily
// draft slots: higher news value wins, equal news value breaks by earlier
// collected_at.
func SelectForDrafting(items []models.RawContentItem, slots int) []models.RawContentItem {
	eligible := make([]models.RawContentItem, 0, len(items))
	for _, it := range items {
		if it.Scores.NewsValue != nil && it.Scores.LocalRelevance != nil {
			eligible = append(eligible, it)
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		ni, nj := *eligible[i].Scores.NewsValue, *eligible[j].Scores.NewsValue
		if ni != nj {
			return ni > nj
		}
		return eligible[i].CollectedAt.Before(eligible[j].CollectedAt)
	})

	if slots > 0 && len(eligible) > slots {
		eligible = eligible[:slots]
	}
	return eligible
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
