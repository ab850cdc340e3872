package advisor

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const (
	defaultOpenAIModel          = openai.ChatModelGPT4_1Mini
	defaultOpenAIEmbeddingModel = string(openai.EmbeddingModelTextEmbedding3Small)
	openAIMaxTokens             = 800
)

// OpenAIOptions configure the OpenAI provider. BaseURL is only set against a stub server.
type OpenAIOptions struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	BaseURL        string
}

type OpenAIProvider struct {
	client     *openai.Client
	model      string
	embedModel string
}

func NewOpenAIProvider(opts OpenAIOptions) *OpenAIProvider {
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := openai.NewClient(reqOpts...)

	model := opts.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	embedModel := opts.EmbeddingModel
	if embedModel == "" {
		embedModel = defaultOpenAIEmbeddingModel
	}
	return &OpenAIProvider{client: &client, model: model, embedModel: embedModel}
}

func (p *OpenAIProvider) Name() string {
	return ProviderOpenAI
}

func (p *OpenAIProvider) Model() string {
	return p.model
}

func (p *OpenAIProvider) DescribeImage(ctx context.Context, jpegData []byte, instruction string) (Completion, error) {
	imageURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegData)

	return p.complete(ctx, openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
					openai.TextContentPart(instruction),
					openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
						URL:    imageURL,
						Detail: "low",
					}),
				},
			},
		},
	})
}

func (p *OpenAIProvider) Generate(ctx context.Context, prompt string) (Completion, error) {
	return p.complete(ctx, openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfString: openai.String(prompt),
			},
		},
	})
}

func (p *OpenAIProvider) complete(ctx context.Context, msg openai.ChatCompletionMessageParamUnion) (Completion, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     shared.ChatModel(p.model),
		Messages:  []openai.ChatCompletionMessageParamUnion{msg},
		MaxTokens: openai.Int(openAIMaxTokens),
	})
	if err != nil {
		return Completion{}, fmt.Errorf("OpenAI API error: %w", err)
	}

	c := Completion{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return c, fmt.Errorf("openai: %w", ErrEmptyResponse)
	}
	c.Text = resp.Choices[0].Message.Content
	return c, nil
}

func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(p.embedModel),
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI embedding error: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai: got %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(texts) {
			return nil, fmt.Errorf("openai: embedding index %d out of range", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	return out, nil
}
