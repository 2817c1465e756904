package ltm

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/openai/openai-go"
)

// OpenAIEmbedder embeds fact text and queries via an OpenAI embeddings
// model, trimmed to VectorSize dimensions (spec §4.8: "384-dim sentence
// encoder").
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

// NewOpenAIEmbedder builds an Embedder against an already-configured OpenAI
// client. model should be an embeddings-capable model id.
func NewOpenAIEmbedder(client *openai.Client, model string) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: client, model: model}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("ltm: embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("ltm: embed: empty response")
	}
	raw := resp.Data[0].Embedding
	vec := make([]float32, VectorSize)
	for i := 0; i < VectorSize && i < len(raw); i++ {
		vec[i] = float32(raw[i])
	}
	return vec, nil
}

// DeterministicEmbedder is a pure, hash-based stand-in for the real
// embedding model, used in tests and local development where no embeddings
// endpoint is configured (spec §4.8: "the embedding function is pure and
// deterministic for testing").
type DeterministicEmbedder struct{}

func (DeterministicEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, VectorSize)
	h := fnv.New64a()
	for i := range vec {
		h.Reset()
		h.Write([]byte(text))
		h.Write([]byte{byte(i), byte(i >> 8)})
		sum := h.Sum64()
		vec[i] = float32(math.Sin(float64(sum)))
	}
	return vec, nil
}
