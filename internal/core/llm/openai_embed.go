package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/temiloluwa-oss/arkiva/internal/core"
)

type OpenAIEmbedder struct {
	client    openai.Client
	modelName string
	dim       int
}

var _ core.EmbeddingProvider = (*OpenAIEmbedder)(nil)

func NewOpenAIEmbedder(apiKey, modelName string, dim int) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key is empty")
	}
	if modelName == "" {
		modelName = "text-embedding-3-small"
	}
	return &OpenAIEmbedder{
		client:    openai.NewClient(option.WithAPIKey(apiKey)),
		modelName: modelName,
		dim:       dim,
	}, nil
}

func (o *OpenAIEmbedder) Model() string  { return o.modelName }
func (o *OpenAIEmbedder) Dimension() int { return o.dim }

func (o *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(o.modelName),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	})
	if err != nil {
		return nil, classifyOpenAIErr(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	return out, nil
}

func classifyOpenAIErr(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return fmt.Errorf("openai embed: %w: %v", core.ErrRateLimited, err)
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			return fmt.Errorf("openai embed: %w: %v", core.ErrInvalidInput, err)
		}
	}
	return fmt.Errorf("openai embed: %w", err)
}
