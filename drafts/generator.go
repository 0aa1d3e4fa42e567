package drafts

import (
	"context"
	"fmt"
	"time"

	"town-desk/config"
	"town-desk/llm"
	"town-desk/models"
)

// AILogStore persists LLM usage rows.
type AILogStore interface {
	Insert(ctx context.Context, log models.AILog) error
}

const OUTLINE_SYSTEM_INSTRUCTION = `
You are a local-news editor planning an article for a small community publication. Given the source material, produce a reporting outline as plain text:
- a working headline on the first line
- 3 to 6 numbered sections, each a single sentence describing what that section covers
- a final line "Open questions:" listing facts a reporter should confirm, or "none"
Stay strictly within the facts present in the source material. Do not invent names, numbers or quotes.
Respond with the outline text only, no markdown code block.
`

const ARTICLE_SYSTEM_INSTRUCTION = `
You are a local-news writer for a small community publication. Write a complete article from the provided outline and source material, and respond with a single JSON object:
1.  title: the headline, under 90 characters.
2.  body: the full article text in plain paragraphs separated by blank lines, 300-700 words.
3.  excerpt: a 1-2 sentence summary for listings, under 280 characters.
4.  topic_tags: an array of 2-5 short lowercase topic tags.
Write in neutral, factual newspaper style. Every fact must come from the source material; attribute where the source does.
You MUST NOT wrap the JSON output in a markdown code block. The response should contain ONLY the raw JSON string.
`

const QUALITY_SYSTEM_INSTRUCTION = `
You are a copy desk editor reviewing a local-news article before publication. Score the article and respond with a single JSON object:
1.  quality_score: integer 0-100 combining clarity, structure, factual grounding and newspaper style.
2.  issues: an array of short strings naming concrete problems, empty when none.
Penalize invented details, editorializing, missing attribution and broken structure heavily.
You MUST NOT wrap the JSON output in a markdown code block. The response should contain ONLY the raw JSON string.
`

// GeneratedArticle is the structured output of article generation.
type GeneratedArticle struct {
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Excerpt   string   `json:"excerpt"`
	TopicTags []string `json:"topic_tags"`
}

type qualityReview struct {
	QualityScore int      `json:"quality_score"`
	Issues       []string `json:"issues"`
}

// Generator produces outlines, article text and quality reviews via the LLM.
type Generator struct {
	gen     llm.Generator
	logs    AILogStore
	timeout time.Duration
}

func NewGenerator(gen llm.Generator, logs AILogStore, cfg config.PipelineConfig) *Generator {
	return &Generator{gen: gen, logs: logs, timeout: cfg.PhaseTimeout()}
}

func (g *Generator) generate(ctx context.Context, purpose, system, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	text, reqLog, err := g.gen.Generate(ctx, purpose, system, prompt)
	if g.logs != nil {
		if logErr := g.logs.Insert(ctx, reqLog); logErr != nil {
			config.Logger.Warnf("failed to insert ai log: %v", logErr)
		}
	}
	return text, err
}

// Outline produces the reporting outline for a shortlisted item.
func (g *Generator) Outline(ctx context.Context, item *models.RawContentItem) (string, error) {
	prompt := fmt.Sprintf("Source title: %s\nCommunity: %s\n\nSource material:\n%s",
		item.Title, item.CommunityID, item.Body)
	text, err := g.generate(ctx, "draft_outline", OUTLINE_SYSTEM_INSTRUCTION, prompt)
	if err != nil {
		return "", err
	}
	return text, nil
}

// Article writes the full article from the outline and the source item.
func (g *Generator) Article(ctx context.Context, item *models.RawContentItem, outline string) (*GeneratedArticle, error) {
	prompt := fmt.Sprintf("Outline:\n%s\n\nSource material:\n%s", outline, item.Body)
	text, err := g.generate(ctx, "draft_article", ARTICLE_SYSTEM_INSTRUCTION, prompt)
	if err != nil {
		return nil, err
	}
	var article GeneratedArticle
	if err := llm.UnmarshalResponse(text, &article); err != nil {
		return nil, fmt.Errorf("article generation returned malformed JSON: %w", err)
	}
	if article.Title == "" || article.Body == "" {
		return nil, fmt.Errorf("article generation returned empty title or body")
	}
	return &article, nil
}

// ReviewQuality scores a generated article 0-100.
func (g *Generator) ReviewQuality(ctx context.Context, article *GeneratedArticle) (int, error) {
	prompt := fmt.Sprintf("Title: %s\n\n%s", article.Title, article.Body)
	text, err := g.generate(ctx, "draft_quality_review", QUALITY_SYSTEM_INSTRUCTION, prompt)
	if err != nil {
		return 0, err
	}
	var review qualityReview
	if err := llm.UnmarshalResponse(text, &review); err != nil {
		return 0, fmt.Errorf("quality review returned malformed JSON: %w", err)
	}
	score := review.QualityScore
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	if len(review.Issues) > 0 {
		config.Logger.Infof("quality review issues for %q: %v", article.Title, review.Issues)
	}
	return score, nil
}
