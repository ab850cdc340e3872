// Package advisor analyzes a hair profile and an optional photo and recommends a product line.
package advisor

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/hair-advisor/internal/config"
)

// Provider names accepted in configuration.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// ErrEmptyResponse is returned when a model answers with no text.
var ErrEmptyResponse = errors.New("empty model response")

// Completion is one model answer with the tokens it consumed.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Provider defines the interface for AI backends.
type Provider interface {
	Name() string
	Model() string
	// DescribeImage asks the model to describe the hair visible in a JPEG image.
	DescribeImage(ctx context.Context, jpegData []byte, instruction string) (Completion, error)
	// Generate completes a text-only prompt.
	Generate(ctx context.Context, prompt string) (Completion, error)
	Embedder
}

// Embedder turns texts into embedding vectors, one per text and in the same order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// NewProvider creates the provider selected by cfg.Advisor.Provider.
func NewProvider(ctx context.Context, cfg *config.Config) (Provider, error) {
	switch cfg.Advisor.Provider {
	case ProviderGemini:
		if cfg.Gemini.APIKey == "" {
			return nil, errors.New("GEMINI_API_KEY environment variable is required")
		}
		return NewGeminiProvider(ctx, GeminiOptions{
			APIKey:         cfg.Gemini.APIKey,
			Model:          cfg.Gemini.Model,
			EmbeddingModel: cfg.Gemini.EmbeddingModel,
		})
	case ProviderOpenAI:
		if cfg.OpenAI.Token == "" {
			return nil, errors.New("OPENAI_TOKEN environment variable is required")
		}
		return NewOpenAIProvider(OpenAIOptions{
			APIKey:         cfg.OpenAI.Token,
			Model:          cfg.OpenAI.Model,
			EmbeddingModel: cfg.OpenAI.EmbeddingModel,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Advisor.Provider)
	}
}
