// Package embedding is the boundary to the embedding pipeline: a batch
// provider interface with per-item failures, plus the OpenAI-compatible
// HTTP implementation used by default.
package embedding

import (
	"context"
	"fmt"
)

// Embedding is one produced vector.
type Embedding struct {
	Vector     []float32
	Dimensions int
	Model      string
}

// Result pairs an input index with its embedding or error. Errors are
// per-item: one bad text never fails the batch.
type Result struct {
	Index     int
	Embedding Embedding
	Err       error
}

// Provider produces embeddings for batches of texts.
type Provider interface {
	ID() string
	Model() string
	EmbedBatch(ctx context.Context, texts []string) ([]Result, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider string `json:"provider" mapstructure:"provider"`
	APIKey   string `json:"-" mapstructure:"api-key"`
	BaseURL  string `json:"base_url" mapstructure:"base-url"`
	Model    string `json:"model" mapstructure:"model"`
}

// NewProvider builds the configured provider. An empty provider name
// means embeddings are disabled.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "openai":
		return NewOpenAIProvider(OpenAIOptions{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
