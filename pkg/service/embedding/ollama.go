package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/zettel-lab/kasten/pkg/domain/interfaces"
	"github.com/zettel-lab/kasten/pkg/utils/safe"
)

const (
	defaultOllamaBaseURL = "http://localhost:11434"
	defaultOllamaModel   = "nomic-embed-text"
	ollamaEmbedPath      = "/api/embed"
)

// OllamaProvider talks to an Ollama-compatible embedding endpoint so the
// pipeline can run fully local.
type OllamaProvider struct {
	baseURL string
	modelID string
	client  *http.Client
}

var _ interfaces.EmbeddingProvider = &OllamaProvider{}

// OllamaOption configures an OllamaProvider
type OllamaOption func(*OllamaProvider)

// WithOllamaBaseURL sets the inference server URL, e.g.
// http://localhost:11434. The embed API path is appended by the provider.
func WithOllamaBaseURL(url string) OllamaOption {
	return func(p *OllamaProvider) { p.baseURL = url }
}

// WithOllamaModel sets the model name
func WithOllamaModel(modelID string) OllamaOption {
	return func(p *OllamaProvider) { p.modelID = modelID }
}

// WithOllamaHTTPClient overrides the HTTP client, mainly for tests
func WithOllamaHTTPClient(client *http.Client) OllamaOption {
	return func(p *OllamaProvider) { p.client = client }
}

// NewOllama creates a local embedding provider. Defaults to localhost:11434
// with nomic-embed-text. Request timeouts come from the caller's context,
// not the HTTP client, so the worker's deadline policy stays in one place.
func NewOllama(opts ...OllamaOption) *OllamaProvider {
	p := &OllamaProvider{
		baseURL: defaultOllamaBaseURL,
		modelID: defaultOllamaModel,
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *OllamaProvider) Model() string {
	return p.modelID
}

func (p *OllamaProvider) endpoint() string {
	return strings.TrimRight(p.baseURL, "/") + ollamaEmbedPath
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (p *OllamaProvider) Generate(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, goerr.Wrap(interfaces.ErrInvalidInput, "empty text")
	}
	if len(text) > MaxContentChars {
		return nil, goerr.Wrap(interfaces.ErrContentTooLong, "input too large",
			goerr.V("chars", len(text)), goerr.V("max", MaxContentChars))
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: p.modelID, Input: text})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal embed request")
	}

	endpoint := p.endpoint()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build embed request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, goerr.Wrap(interfaces.ErrProviderUnavailable, "embed request failed",
			goerr.V("url", endpoint), goerr.V("cause", err.Error()))
	}
	defer safe.Close(ctx, resp.Body)

	switch {
	case resp.StatusCode >= 500:
		return nil, goerr.Wrap(interfaces.ErrProviderUnavailable, "embed server error",
			goerr.V("status", resp.StatusCode))
	case resp.StatusCode >= 400:
		return nil, goerr.Wrap(interfaces.ErrInvalidInput, "embed request rejected",
			goerr.V("status", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(interfaces.ErrProviderUnavailable, "failed to read embed response",
			goerr.V("cause", err.Error()))
	}

	var parsed ollamaEmbedResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, goerr.Wrap(interfaces.ErrProviderUnavailable, "failed to parse embed response",
			goerr.V("cause", err.Error()))
	}
	if len(parsed.Embeddings) == 0 || len(parsed.Embeddings[0]) == 0 {
		return nil, goerr.Wrap(interfaces.ErrProviderUnavailable, "no embedding returned")
	}

	return parsed.Embeddings[0], nil
}
