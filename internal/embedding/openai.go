package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIEncoder computes embeddings with the OpenAI embeddings API. It is the
// "real model" counterpart of MockEncoder behind the same contract.
type OpenAIEncoder struct {
	client    openai.Client
	model     openai.EmbeddingModel
	dimension int
}

// NewOpenAIEncoder creates an encoder using the given API key. The requested
// dimension is passed through to the API so stored vectors stay compatible
// with the mock mode.
func NewOpenAIEncoder(apiKey string, dimension int) (*OpenAIEncoder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai encoder: API key not set")
	}
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &OpenAIEncoder{
		client:    openai.NewClient(option.WithAPIKey(apiKey)),
		model:     openai.EmbeddingModelTextEmbedding3Small,
		dimension: dimension,
	}, nil
}

// Name identifies the encoder mode.
func (o *OpenAIEncoder) Name() string { return "openai" }

// Dimension returns the vector size.
func (o *OpenAIEncoder) Dimension() int { return o.dimension }

// Encode requests one embedding per input text.
func (o *OpenAIEncoder) Encode(ctx context.Context, texts []string) ([][]float64, error) {
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:      o.model,
		Input:      openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Dimensions: openai.Int(int64(o.dimension)),
	})
	if err != nil {
		return nil, fmt.Errorf("openai encoder: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai encoder: got %d embeddings for %d texts", len(resp.Data), len(texts))
	}
	out := make([][]float64, len(resp.Data))
	for _, item := range resp.Data {
		if int(item.Index) >= len(out) {
			return nil, fmt.Errorf("openai encoder: embedding index %d out of range", item.Index)
		}
		out[item.Index] = item.Embedding
	}
	slog.Debug("OpenAI encoder produced embeddings", "count", len(out), "model", o.model)
	return out, nil
}
