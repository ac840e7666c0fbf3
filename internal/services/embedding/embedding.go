package embedding

import (
	"context"
	"fmt"
	"time"

	"quire/internal/config"
	"quire/internal/services"
)

// Embedder produces a vector for a piece of text.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float64, error)
}

// New builds the embedder selected by cfg. dimension sizes the hashing
// provider; remote vectors are resized by the store.
func New(cfg config.Embedding, dimension int) (Embedder, error) {
	switch cfg.Provider {
	case "", ProviderHash:
		return NewHasher(dimension), nil
	case ProviderOpenAI:
		client, err := NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "", "embedding", fmt.Sprintf("unknown provider %q", cfg.Provider), nil)
	}
}

const (
	ProviderHash   = "hash"
	ProviderOpenAI = "openai"
)
