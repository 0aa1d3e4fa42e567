package factcheck

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"town-desk/config"
	"town-desk/llm"
	"town-desk/models"
)

const CLAIM_EXTRACTION_SYSTEM_INSTRUCTION = `
You are a fact-checking assistant for a local-news pipeline. Extract the discrete, checkable factual claims from the provided outline and source material, and respond with a single JSON object:
1.  claims: an array of short declarative sentences, one per claim. Include names, numbers, dates and attributions exactly as stated. Skip opinions, predictions and vague statements. May be empty.
You MUST NOT wrap the JSON output in a markdown code block. The response should contain ONLY the raw JSON string.
`

const CLAIM_VERIFICATION_SYSTEM_INSTRUCTION = `
You are a fact-checking assistant. Judge the claim strictly against the provided evidence and respond with a single JSON object:
1.  result: one of "verified" (evidence supports it), "unverified" (evidence neither supports nor contradicts it), "contradicted" (evidence contradicts it).
2.  confidence: integer 0-100, how certain you are in the result.
3.  reasoning: one sentence.
Use ONLY the evidence text. Absence of evidence means "unverified", never "verified".
You MUST NOT wrap the JSON output in a markdown code block. The response should contain ONLY the raw JSON string.
`

type claimExtraction struct {
	Claims []string `json:"claims"`
}

type claimVerdict struct {
	Result     string `json:"result"`
	Confidence int    `json:"confidence"`
	Reasoning  string `json:"reasoning"`
}

// ResultStore persists per-claim verification rows.
type ResultStore interface {
	Insert(ctx context.Context, result *models.FactCheckResult) error
	ListByDraft(ctx context.Context, draftID primitive.ObjectID) ([]models.FactCheckResult, error)
	// DeleteByDraft clears prior rows so a re-verification replaces them
	// instead of skewing the mean.
	DeleteByDraft(ctx context.Context, draftID primitive.ObjectID) error
}

// AILogStore persists LLM usage rows.
type AILogStore interface {
	Insert(ctx context.Context, log models.AILog) error
}

// EvidenceFetcher retrieves readable text for a source URL. Fetch failures
// degrade to source-material-only evidence.
type EvidenceFetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// MeanConfidence recomputes a draft's aggregate fact-check confidence from
// its claim rows. Zero rows yield the configured neutral value.
func MeanConfidence(rows []models.FactCheckResult, neutral int) int {
	if len(rows) == 0 {
		return neutral
	}
	sum := 0
	for _, r := range rows {
		sum += r.Confidence
	}
	return (sum + len(rows)/2) / len(rows)
}

// Checker verifies a draft's claims and aggregates its confidence.
type Checker struct {
	gen       llm.Generator
	results   ResultStore
	logs      AILogStore
	fetcher   EvidenceFetcher
	modelName string
	neutral   int
	timeout   time.Duration
}

func New(gen llm.Generator, results ResultStore, logs AILogStore, fetcher EvidenceFetcher, cfg config.AppConfig) *Checker {
	return &Checker{
		gen:       gen,
		results:   results,
		logs:      logs,
		fetcher:   fetcher,
		modelName: cfg.GeminiModel,
		neutral:   cfg.Pipeline.NeutralFactConfidence,
		timeout:   cfg.Pipeline.PhaseTimeout(),
	}
}

func (c *Checker) generate(ctx context.Context, purpose, system, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	text, reqLog, err := c.gen.Generate(ctx, purpose, system, prompt)
	if c.logs != nil {
		if logErr := c.logs.Insert(ctx, reqLog); logErr != nil {
			config.Logger.Warnf("failed to insert ai log: %v", logErr)
		}
	}
	return text, err
}

// ExtractClaims pulls checkable claims out of the outline and source text.
func (c *Checker) ExtractClaims(ctx context.Context, outline, sourceText string) ([]string, error) {
	prompt := fmt.Sprintf("Outline:\n%s\n\nSource material:\n%s", outline, sourceText)
	text, err := c.generate(ctx, "fact_check_claims", CLAIM_EXTRACTION_SYSTEM_INSTRUCTION, prompt)
	if err != nil {
		return nil, err
	}
	var out claimExtraction
	if err := llm.UnmarshalResponse(text, &out); err != nil {
		return nil, fmt.Errorf("claim extraction returned malformed JSON: %w", err)
	}
	return out.Claims, nil
}

// VerifyClaim judges one claim against the gathered evidence.
func (c *Checker) VerifyClaim(ctx context.Context, claim, evidence string) (models.VerificationResult, int, error) {
	prompt := fmt.Sprintf("Claim: %s\n\nEvidence:\n%s", claim, evidence)
	text, err := c.generate(ctx, "fact_check_verdict", CLAIM_VERIFICATION_SYSTEM_INSTRUCTION, prompt)
	if err != nil {
		return "", 0, err
	}
	var verdict claimVerdict
	if err := llm.UnmarshalResponse(text, &verdict); err != nil {
		return "", 0, fmt.Errorf("claim verification returned malformed JSON: %w", err)
	}

	result := models.VerificationResult(verdict.Result)
	switch result {
	case models.ClaimVerified, models.ClaimUnverified, models.ClaimContradicted:
	default:
		result = models.ClaimUnverified
	}
	confidence := verdict.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}
	return result, confidence, nil
}

// CheckDraft verifies every claim in the draft's outline, stores one row per
// claim, and returns the recomputed aggregate confidence.
func (c *Checker) CheckDraft(ctx context.Context, draft *models.NewsArticleDraft, item *models.RawContentItem) (int, error) {
	claims, err := c.ExtractClaims(ctx, draft.Outline, item.Body)
	if err != nil {
		return 0, err
	}

	// a retried phase re-verifies from scratch
	if err := c.results.DeleteByDraft(ctx, draft.ID); err != nil {
		return 0, err
	}

	evidence := item.Body
	sourceURLs := []string{}
	if item.Source.SourceURL != "" {
		sourceURLs = append(sourceURLs, item.Source.SourceURL)
		if c.fetcher != nil {
			fetched, fetchErr := c.fetcher.FetchText(ctx, item.Source.SourceURL)
			if fetchErr != nil {
				config.Logger.Warnf("evidence fetch failed for %s: %v", item.Source.SourceURL, fetchErr)
			} else if fetched != "" {
				evidence = evidence + "\n\n" + fetched
			}
		}
	}

	for _, claim := range claims {
		result, confidence, err := c.VerifyClaim(ctx, claim, evidence)
		if err != nil {
			return 0, fmt.Errorf("verifying claim %q: %w", claim, err)
		}
		row := &models.FactCheckResult{
			CreatedAt:  time.Now(),
			DraftID:    draft.ID,
			ClaimText:  claim,
			Result:     result,
			Confidence: confidence,
			SourceURLs: sourceURLs,
			ModelName:  c.modelName,
		}
		if err := c.results.Insert(ctx, row); err != nil {
			return 0, err
		}
	}

	rows, err := c.results.ListByDraft(ctx, draft.ID)
	if err != nil {
		return 0, err
	}
	aggregate := MeanConfidence(rows, c.neutral)
	config.Logger.Infof("draft %s fact-checked: %d claims, aggregate confidence %d",
		draft.ID.Hex(), len(rows), aggregate)
	return aggregate, nil
}
