package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem/llm/gemini"
	"github.com/m-mizutani/gollem/llm/openai"
	"github.com/urfave/cli/v3"
	"github.com/zettel-lab/kasten/pkg/domain/interfaces"
	"github.com/zettel-lab/kasten/pkg/service/embedding"
)

// Embedding holds CLI flags for embedding provider selection. One provider
// is resolved at startup; all of them satisfy the same Generate contract.
type Embedding struct {
	provider string
	modelID  string

	geminiProject  string
	geminiLocation string

	openaiAPIKey string `masq:"secret"`

	ollamaBaseURL string
}

// Flags returns CLI flags for embedding provider configuration
func (e *Embedding) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "embedding-provider",
			Usage:       "Embedding provider (gemini, openai or ollama)",
			Value:       "ollama",
			Sources:     cli.EnvVars("KASTEN_EMBEDDING_PROVIDER"),
			Destination: &e.provider,
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Usage:       "Embedding model identifier (provider default when empty)",
			Sources:     cli.EnvVars("KASTEN_EMBEDDING_MODEL"),
			Destination: &e.modelID,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini API",
			Sources:     cli.EnvVars("KASTEN_GEMINI_PROJECT"),
			Destination: &e.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini API",
			Value:       "us-central1",
			Sources:     cli.EnvVars("KASTEN_GEMINI_LOCATION"),
			Destination: &e.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "OpenAI API key",
			Sources:     cli.EnvVars("KASTEN_OPENAI_API_KEY"),
			Destination: &e.openaiAPIKey,
		},
		&cli.StringFlag{
			Name:        "ollama-base-url",
			Usage:       "Base URL of the Ollama server",
			Value:       "http://localhost:11434",
			Sources:     cli.EnvVars("KASTEN_OLLAMA_BASE_URL"),
			Destination: &e.ollamaBaseURL,
		},
	}
}

// LogAttrs returns log attributes for the embedding configuration
func (e *Embedding) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("provider", e.provider),
		slog.String("model", e.modelID),
	}
}

// Configure creates the embedding provider selected by the flags
func (e *Embedding) Configure(ctx context.Context) (interfaces.EmbeddingProvider, error) {
	switch e.provider {
	case "gemini":
		if e.geminiProject == "" {
			return nil, goerr.New("gemini-project is required when using the gemini provider")
		}
		client, err := gemini.New(ctx, e.geminiProject, e.geminiLocation)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create Gemini client")
		}
		modelID := e.modelID
		if modelID == "" {
			modelID = "text-embedding-004"
		}
		return embedding.NewGollem(client, modelID)

	case "openai":
		if e.openaiAPIKey == "" {
			return nil, goerr.New("openai-api-key is required when using the openai provider")
		}
		client, err := openai.New(ctx, e.openaiAPIKey)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create OpenAI client")
		}
		modelID := e.modelID
		if modelID == "" {
			modelID = "text-embedding-3-small"
		}
		return embedding.NewGollem(client, modelID)

	case "ollama":
		opts := []embedding.OllamaOption{
			embedding.WithOllamaBaseURL(e.ollamaBaseURL),
		}
		if e.modelID != "" {
			opts = append(opts, embedding.WithOllamaModel(e.modelID))
		}
		return embedding.NewOllama(opts...), nil

	default:
		return nil, goerr.New("invalid embedding provider", goerr.V("provider", e.provider))
	}
}
