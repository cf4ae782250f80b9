package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"
)

// Tuning is the optional TOML file of behavior tunables. Every value is a
// default the code already carries; the file only overrides. Zero values
// mean "keep the default".
type Tuning struct {
	path string

	Worker  WorkerTuning  `toml:"worker"`
	Search  SearchTuning  `toml:"search"`
	Health  HealthTuning  `toml:"health"`
	Capture CaptureTuning `toml:"capture"`
}

// WorkerTuning tunes the embedding worker
type WorkerTuning struct {
	PoolSize        int           `toml:"pool_size"`
	MaxRetries      int           `toml:"max_retries"`
	BackoffBase     time.Duration `toml:"backoff_base"`
	BackoffCap      time.Duration `toml:"backoff_cap"`
	ProviderTimeout time.Duration `toml:"provider_timeout"`
}

// SearchTuning tunes hybrid search
type SearchTuning struct {
	RRFK         float64 `toml:"rrf_k"`
	MinRelevance float64 `toml:"min_relevance"`
}

// HealthTuning tunes the knowledge-graph health engine
type HealthTuning struct {
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	DuplicateThreshold  float64 `toml:"duplicate_threshold"`
	SplitThreshold      int     `toml:"split_threshold"`
}

// CaptureTuning tunes the capture poller
type CaptureTuning struct {
	FetchLimit   int `toml:"fetch_limit"`
	DedupeWindow int `toml:"dedupe_window"`
}

// Flags returns CLI flags for tuning configuration
func (t *Tuning) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "Path to the TOML tuning file",
			Sources:     cli.EnvVars("KASTEN_CONFIG"),
			Destination: &t.path,
		},
	}
}

// Load reads and validates the tuning file. A missing --config flag leaves
// all defaults in place; a named file that does not exist is an error.
func (t *Tuning) Load() error {
	if t.path == "" {
		return nil
	}

	data, err := os.ReadFile(t.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return goerr.Wrap(ErrConfigNotFound, "tuning file does not exist", goerr.V("path", t.path))
		}
		return goerr.Wrap(err, "failed to read tuning file", goerr.V("path", t.path))
	}

	if err := toml.Unmarshal(data, t); err != nil {
		return goerr.Wrap(ErrInvalidConfig, "failed to parse tuning file",
			goerr.V("path", t.path), goerr.V("parse_error", err.Error()))
	}

	return t.Validate()
}

// Validate checks the loaded values for contradictions
func (t *Tuning) Validate() error {
	if t.Worker.PoolSize < 0 {
		return goerr.Wrap(ErrInvalidConfig, "worker.pool_size must be positive")
	}
	if t.Worker.MaxRetries < 0 {
		return goerr.Wrap(ErrInvalidConfig, "worker.max_retries must be positive")
	}
	if t.Search.RRFK < 0 {
		return goerr.Wrap(ErrInvalidConfig, "search.rrf_k must be positive")
	}
	if t.Search.MinRelevance < 0 || t.Search.MinRelevance > 1 {
		return goerr.Wrap(ErrInvalidConfig, "search.min_relevance must be within [0, 1]")
	}
	if t.Health.SimilarityThreshold < 0 || t.Health.SimilarityThreshold > 1 {
		return goerr.Wrap(ErrInvalidConfig, "health.similarity_threshold must be within [0, 1]")
	}
	if t.Health.DuplicateThreshold < 0 || t.Health.DuplicateThreshold > 1 {
		return goerr.Wrap(ErrInvalidConfig, "health.duplicate_threshold must be within [0, 1]")
	}
	if t.Health.DuplicateThreshold > 0 && t.Health.SimilarityThreshold > 0 &&
		t.Health.DuplicateThreshold < t.Health.SimilarityThreshold {
		return goerr.Wrap(ErrInvalidConfig, "health.duplicate_threshold must not be below health.similarity_threshold")
	}
	return nil
}
