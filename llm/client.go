package llm

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"google.golang.org/genai"

	"town-desk/config"
	"town-desk/models"
)

// Generator is the minimal LLM capability the pipeline stages depend on:
// submit a prompt, receive a completion plus latency/cost metadata.
type Generator interface {
	Generate(ctx context.Context, purpose, systemInstruction, prompt string) (string, models.AILog, error)
}

// GeminiClient implements Generator against the Gemini API.
type GeminiClient struct {
	model  string
	apiKey string
}

func NewGeminiClient(cfg config.AppConfig) *GeminiClient {
	return &GeminiClient{
		model:  cfg.GeminiModel,
		apiKey: cfg.GeminiApiKey,
	}
}

// Generate issues one completion call. The returned AILog is filled even on
// failure so callers can persist the attempt.
func (c *GeminiClient) Generate(ctx context.Context, purpose, systemInstruction, prompt string) (string, models.AILog, error) {
	requestedAt := time.Now()
	reqLog := models.AILog{
		Purpose:     purpose,
		ModelName:   c.model,
		InputPrompt: prompt,
		RequestedAt: requestedAt,
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: c.apiKey,
	})
	if err != nil {
		msg := err.Error()
		reqLog.ErrorMessage = &msg
		reqLog.CompletedAt = time.Now()
		return "", reqLog, err
	}

	result, err := client.Models.GenerateContent(
		ctx,
		c.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}},
		},
	)
	reqLog.CompletedAt = time.Now()
	reqLog.DurationMs = reqLog.CompletedAt.Sub(requestedAt).Milliseconds()
	if err != nil {
		msg := err.Error()
		reqLog.ErrorMessage = &msg
		return "", reqLog, err
	}

	text := result.Text()
	reqLog.OutputResponse = text
	if result.UsageMetadata != nil {
		reqLog.InputTokens = int64(result.UsageMetadata.PromptTokenCount)
		reqLog.OutputTokens = int64(result.UsageMetadata.CandidatesTokenCount)
		reqLog.TotalTokens = int64(result.UsageMetadata.TotalTokenCount)
	}

	return text, reqLog, nil
}

// UnmarshalResponse decodes a model completion that is expected to be a raw
// JSON object. Markdown code fences are stripped if the model added them
// despite the instruction.
func UnmarshalResponse[T any](text string, out *T) error {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	return json.Unmarshal([]byte(s), out)
}
