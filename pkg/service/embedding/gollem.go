// Package embedding provides EmbeddingProvider implementations: hosted
// models through gollem LLM clients and local models through an
// Ollama-compatible HTTP endpoint.
package embedding

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/zettel-lab/kasten/pkg/domain/interfaces"
	"github.com/zettel-lab/kasten/pkg/domain/model"
)

// MaxContentChars is the input size accepted before the provider call.
// Inputs beyond this are rejected as permanent failures instead of burning
// retries on a request the provider will always refuse.
const MaxContentChars = 32000

// GollemProvider adapts a gollem LLM client to the EmbeddingProvider
// contract.
type GollemProvider struct {
	client  gollem.LLMClient
	modelID string
}

var _ interfaces.EmbeddingProvider = &GollemProvider{}

// NewGollem creates a provider backed by a gollem LLM client. modelID is
// recorded on embedded notes so vectors from different models are never
// compared.
func NewGollem(client gollem.LLMClient, modelID string) (*GollemProvider, error) {
	if client == nil {
		return nil, goerr.New("LLM client is required")
	}
	if modelID == "" {
		return nil, goerr.New("embedding model ID is required")
	}

	return &GollemProvider{
		client:  client,
		modelID: modelID,
	}, nil
}

func (p *GollemProvider) Model() string {
	return p.modelID
}

func (p *GollemProvider) Generate(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, goerr.Wrap(interfaces.ErrInvalidInput, "empty text")
	}
	if len(text) > MaxContentChars {
		return nil, goerr.Wrap(interfaces.ErrContentTooLong, "input too large",
			goerr.V("chars", len(text)), goerr.V("max", MaxContentChars))
	}

	embeddings, err := p.client.GenerateEmbedding(ctx, model.EmbeddingDimension, []string{text})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, goerr.Wrap(interfaces.ErrProviderUnavailable, "embedding call failed",
			goerr.V("model", p.modelID), goerr.V("cause", err.Error()))
	}
	if len(embeddings) == 0 {
		return nil, goerr.Wrap(interfaces.ErrProviderUnavailable, "no embedding returned",
			goerr.V("model", p.modelID))
	}

	result := make([]float32, len(embeddings[0]))
	for i, v := range embeddings[0] {
		result[i] = float32(v)
	}

	return result, nil
}
