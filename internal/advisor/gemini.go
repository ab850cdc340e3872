package advisor

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const (
	defaultGeminiModel          = "gemini-2.5-flash"
	defaultGeminiEmbeddingModel = "gemini-embedding-001"
	geminiEmbedBatch            = 100
)

// GeminiOptions configure the Gemini provider. BaseURL is only set against a stub server.
type GeminiOptions struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	BaseURL        string
}

type GeminiProvider struct {
	client     *genai.Client
	model      string
	embedModel string
}

func NewGeminiProvider(ctx context.Context, opts GeminiOptions) (*GeminiProvider, error) {
	cc := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = defaultGeminiModel
	}
	embedModel := opts.EmbeddingModel
	if embedModel == "" {
		embedModel = defaultGeminiEmbeddingModel
	}
	return &GeminiProvider{client: client, model: model, embedModel: embedModel}, nil
}

func (p *GeminiProvider) Name() string {
	return ProviderGemini
}

func (p *GeminiProvider) Model() string {
	return p.model
}

func (p *GeminiProvider) DescribeImage(ctx context.Context, jpegData []byte, instruction string) (Completion, error) {
	return p.generate(ctx, []*genai.Part{
		{Text: instruction},
		{InlineData: &genai.Blob{Data: jpegData, MIMEType: "image/jpeg"}},
	})
}

func (p *GeminiProvider) Generate(ctx context.Context, prompt string) (Completion, error) {
	return p.generate(ctx, []*genai.Part{{Text: prompt}})
}

func (p *GeminiProvider) generate(ctx context.Context, parts []*genai.Part) (Completion, error) {
	contents := []*genai.Content{{Role: "user", Parts: parts}}

	result, err := p.client.Models.GenerateContent(ctx, p.model, contents, nil)
	if err != nil {
		return Completion{}, fmt.Errorf("gemini API error: %w", err)
	}

	var c Completion
	if result.UsageMetadata != nil {
		c.InputTokens = int(result.UsageMetadata.PromptTokenCount)
		c.OutputTokens = int(result.UsageMetadata.CandidatesTokenCount)
	}

	c.Text = result.Text()
	if c.Text == "" {
		return c, fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}
	return c, nil
}

// Embed embeds texts in batches the Gemini API accepts.
func (p *GeminiProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiEmbedBatch {
		batch := texts[start:min(start+geminiEmbedBatch, len(texts))]
		contents := make([]*genai.Content, len(batch))
		for i, t := range batch {
			contents[i] = genai.NewContentFromText(t, genai.RoleUser)
		}

		result, err := p.client.Models.EmbedContent(ctx, p.embedModel, contents, nil)
		if err != nil {
			return nil, fmt.Errorf("gemini embedding error: %w", err)
		}
		if len(result.Embeddings) != len(batch) {
			return nil, fmt.Errorf("gemini: got %d embeddings for %d texts", len(result.Embeddings), len(batch))
		}
		for _, e := range result.Embeddings {
			out = append(out, e.Values)
		}
	}
	return out, nil
}
