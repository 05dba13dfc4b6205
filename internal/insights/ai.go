package insights

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/studystack/sentinel/internal/config"
	"github.com/studystack/sentinel/pkg/models"
)

// AIEnricher asks an OpenAI-compatible model for a short root-cause analysis.
// It is best effort: any failure is reported to the caller, which logs and
// moves on.
type AIEnricher struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewAIEnricher builds an enricher from config, or returns nil when AI
// enrichment is disabled or unconfigured.
func NewAIEnricher(cfg config.InsightsConfig) *AIEnricher {
	if !cfg.AIEnabled || cfg.AIAPIKey == "" {
		return nil
	}
	clientCfg := openai.DefaultConfig(cfg.AIAPIKey)
	if cfg.AIBaseURL != "" {
		clientCfg.BaseURL = cfg.AIBaseURL
	}
	return &AIEnricher{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.AIModel,
		maxTokens:   cfg.AIMaxTokens,
		temperature: cfg.AITemp,
	}
}

// Enrich returns a concise root-cause hypothesis for the insight.
func (e *AIEnricher) Enrich(ctx context.Context, insight *models.PerformanceInsight, recent []models.Metric) (string, error) {
	var values []string
	for _, m := range recent {
		values = append(values, fmt.Sprintf("%.2f", m.Value))
	}
	prompt := fmt.Sprintf(
		"An operations monitor for a tutoring platform detected: %s. %s Recent samples (oldest first): %s. "+
			"In at most three sentences, give the most likely root cause and one concrete check to confirm it.",
		insight.Title, insight.Description, strings.Join(values, ", "))

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		MaxTokens:   e.maxTokens,
		Temperature: e.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a site reliability analyst. Be brief and specific."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
