package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateEmbedding(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStore() error {
	if c.Store.Dimension <= 0 {
		return errors.New("store.dimension must be positive")
	}
	if c.Store.EmbedAttempts <= 0 {
		return errors.New("store.embed_attempts must be positive")
	}
	if c.Store.EmbedBackoffMS < 0 {
		return errors.New("store.embed_backoff_ms must be non-negative")
	}
	if c.Store.PersistAttempts <= 0 {
		return errors.New("store.persist_attempts must be positive")
	}
	if c.Store.TopK <= 0 {
		return errors.New("store.top_k must be positive")
	}
	if c.Store.MinSimilarity < 0 || c.Store.MinSimilarity > 1 {
		return errors.New("store.min_similarity must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateEmbedding() error {
	switch c.Embedding.Provider {
	case embeddingProviderHash:
		return nil
	case embeddingProviderOpenAI:
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("embedding.api_key is required for provider %q. Set %s or edit the config", embeddingProviderOpenAI, envOpenAIAPIKey)
		}
		return nil
	default:
		return fmt.Errorf("embedding.provider: unsupported value %q (want %q or %q)", c.Embedding.Provider, embeddingProviderOpenAI, embeddingProviderHash)
	}
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.DefaultUnits <= 0 {
		return errors.New("workflow.default_units must be positive")
	}
	if c.Workflow.FanoutStart < 0 || c.Workflow.FanoutEnd > 100 || c.Workflow.FanoutStart >= c.Workflow.FanoutEnd {
		return fmt.Errorf("workflow fan-out window %d..%d must satisfy 0 <= start < end <= 100", c.Workflow.FanoutStart, c.Workflow.FanoutEnd)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
