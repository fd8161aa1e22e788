package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// DefaultModelName is the default Gemini model used for synthesis.
const DefaultModelName = "gemini-2.5-flash"

// GeminiModel calls Gemini through the genai SDK. Credentials come from the
// environment (GOOGLE_API_KEY or Vertex AI application default credentials).
type GeminiModel struct {
	client *genai.Client
	name   string
	log    zerolog.Logger
}

// NewGeminiModel creates a Gemini-backed Model.
func NewGeminiModel(ctx context.Context, name, apiVersion string, log zerolog.Logger) (*GeminiModel, error) {
	if name == "" {
		name = DefaultModelName
	}
	if apiVersion == "" {
		apiVersion = "v1"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: apiVersion},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiModel: create genai client: %w", err)
	}
	return &GeminiModel{client: client, name: name, log: log}, nil
}

// Complete implements Model.
func (g *GeminiModel) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	cfg := &genai.GenerateContentConfig{}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.name, contents, cfg)
	ModelLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			ModelRequestsTotal.WithLabelValues("timeout").Inc()
			return "", fmt.Errorf("GeminiModel.Complete: %v: %w", err, domain.ErrModelTimeout)
		}
		ModelRequestsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("GeminiModel.Complete: generate content: %v: %w", err, domain.ErrModelError)
	}

	text := resp.Text()
	if text == "" {
		ModelRequestsTotal.WithLabelValues("empty").Inc()
		return "", fmt.Errorf("GeminiModel.Complete: empty response from model: %w", domain.ErrModelError)
	}

	ModelRequestsTotal.WithLabelValues("ok").Inc()
	g.log.Debug().
		Str("model", g.name).
		Int("response_chars", len(text)).
		Dur("latency", time.Since(start)).
		Msg("Model call completed")
	return text, nil
}

var _ Model = (*GeminiModel)(nil)
