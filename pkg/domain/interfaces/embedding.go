package interfaces

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
)

// EmbeddingProvider converts text into a fixed-dimension vector. Local
// models, hosted APIs and managed inference services are interchangeable
// behind this single contract; selection happens once at startup.
type EmbeddingProvider interface {
	// Model returns the identifier of the underlying embedding model
	Model() string

	// Generate embeds the given text. Implementations must honor ctx
	// cancellation and deadlines.
	Generate(ctx context.Context, text string) ([]float32, error)
}

// Embedding failure classification. Providers wrap their errors with one of
// these sentinels; anything unclassified is treated as transient and retried.
var (
	// ErrContentTooLong marks input that exceeds the provider's context
	// window. Never retried.
	ErrContentTooLong = goerr.New("content exceeds provider context window")

	// ErrInvalidInput marks malformed input. Never retried.
	ErrInvalidInput = goerr.New("invalid embedding input")

	// ErrProviderUnavailable marks provider-side outages and timeouts.
	// Retried with backoff.
	ErrProviderUnavailable = goerr.New("embedding provider unavailable")
)

// IsPermanentEmbeddingError reports whether the failure must not be retried
func IsPermanentEmbeddingError(err error) bool {
	return errors.Is(err, ErrContentTooLong) || errors.Is(err, ErrInvalidInput)
}
