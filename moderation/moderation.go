package moderation

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"town-desk/config"
	"town-desk/llm"
	"town-desk/models"
)

const SYSTEM_INSTRUCTION = `
You are the moderation gate of a local-news publication. Judge the provided content against the policy sections below and respond with a single JSON object:
1.  decision: one of "approved" (publishable), "rejected" (clear violation, never publish), "needs_review" (borderline, hold for a human), "flagged" (publishable but worth editor attention).
2.  violation_section: the policy section id when decision is not "approved", otherwise an empty string.
3.  explanation: one sentence.
4.  confidence: integer 0-100.
Policy sections:
- P1 personal attacks, harassment or doxxing of private individuals
- P2 unverified criminal allegations against named people
- P3 medical, legal or financial claims presented as professional advice
- P4 graphic violence or explicit content
- P5 commercial spam disguised as news
- P6 privacy: minors named without clear public-interest grounds
You MUST NOT wrap the JSON output in a markdown code block. The response should contain ONLY the raw JSON string.
`

type moderationVerdict struct {
	Decision         string `json:"decision"`
	ViolationSection string `json:"violation_section"`
	Explanation      string `json:"explanation"`
	Confidence       int    `json:"confidence"`
}

// LogStore is append-only: implementations must never update or delete rows.
type LogStore interface {
	Insert(ctx context.Context, log *models.ContentModerationLog) error
	// LatestFor returns the newest decision row for the content ref, nil
	// when it was never moderated.
	LatestFor(ctx context.Context, kind models.ContentKind, contentID primitive.ObjectID) (*models.ContentModerationLog, error)
}

// AILogStore persists LLM usage rows.
type AILogStore interface {
	Insert(ctx context.Context, log models.AILog) error
}

// Gate is the final policy check before content becomes publicly visible.
type Gate struct {
	gen       llm.Generator
	logs      LogStore
	aiLogs    AILogStore
	modelName string
	timeout   time.Duration
}

func NewGate(gen llm.Generator, logs LogStore, aiLogs AILogStore, cfg config.AppConfig) *Gate {
	return &Gate{
		gen:       gen,
		logs:      logs,
		aiLogs:    aiLogs,
		modelName: cfg.GeminiModel,
		timeout:   cfg.Pipeline.PhaseTimeout(),
	}
}

// Moderate judges one content snapshot and appends the decision row. A
// re-moderation of the same content ref appends a new row with Supersedes
// pointing at the prior one; history is never rewritten.
func (g *Gate) Moderate(ctx context.Context, kind models.ContentKind, contentID primitive.ObjectID, title, body string) (*models.ContentModerationLog, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	started := time.Now()
	prompt := fmt.Sprintf("Content kind: %s\nTitle: %s\n\n%s", kind, title, body)
	text, reqLog, err := g.gen.Generate(ctx, "moderation", SYSTEM_INSTRUCTION, prompt)
	if g.aiLogs != nil {
		if logErr := g.aiLogs.Insert(ctx, reqLog); logErr != nil {
			config.Logger.Warnf("failed to insert ai log: %v", logErr)
		}
	}
	if err != nil {
		return nil, err
	}

	var verdict moderationVerdict
	if err := llm.UnmarshalResponse(text, &verdict); err != nil {
		return nil, fmt.Errorf("moderation returned malformed JSON: %w", err)
	}

	decision := models.ModerationDecision(verdict.Decision)
	switch decision {
	case models.ModerationApproved, models.ModerationRejected, models.ModerationNeedsReview, models.ModerationFlagged:
	default:
		// an unparseable decision is never a pass
		decision = models.ModerationNeedsReview
	}
	confidence := verdict.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}

	prior, err := g.logs.LatestFor(ctx, kind, contentID)
	if err != nil {
		return nil, err
	}

	row := &models.ContentModerationLog{
		CreatedAt:        time.Now(),
		ContentKind:      kind,
		ContentID:        contentID,
		Decision:         decision,
		ViolationSection: verdict.ViolationSection,
		Explanation:      verdict.Explanation,
		Confidence:       confidence,
		ModelName:        g.modelName,
		LatencyMs:        time.Since(started).Milliseconds(),
	}
	if prior != nil {
		row.Supersedes = &prior.ID
	}
	if err := g.logs.Insert(ctx, row); err != nil {
		return nil, err
	}

	if decision == models.ModerationApproved {
		config.Logger.Infof("content %s/%s moderation: approved", kind, contentID.Hex())
	} else {
		config.Logger.Warnf("content %s/%s moderation: %s (section %s): %s",
			kind, contentID.Hex(), decision, row.ViolationSection, row.Explanation)
	}
	return row, nil
}
