package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"quire/internal/services"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "text-embedding-3-small"
	defaultOpenAITimeout = 30 * time.Second
)

// OpenAIConfig configures the OpenAI-compatible embeddings client.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAIClient is an OpenAI-compatible embeddings client.
type OpenAIClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewOpenAIClient creates a client using the provided configuration.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, services.Wrap(services.ErrConfiguration, "", "embedding", "openai provider requires an api key", nil)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultOpenAIModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultOpenAITimeout
	}
	return &OpenAIClient{
		baseURL: baseURL,
		apiKey:  key,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *OpenAIClient) Name() string { return ProviderOpenAI }

// Embed returns an embedding vector for the given text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(map[string]string{
		"input":  text,
		"prompt": text,
		"model":  c.model,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedding request: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrTransient, "", "embedding", "http error", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "", "embedding", "read body", err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, services.Wrap(services.ErrTransient, "", "embedding", resp.Status, nil)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, services.Wrap(services.ErrConfiguration, "", "embedding", resp.Status, nil)
	case resp.StatusCode >= http.StatusMultipleChoices:
		return nil, services.Wrap(services.ErrExternalTool, "", "embedding", resp.Status+": "+strings.TrimSpace(string(payload)), nil)
	}
	return decodeVector(payload)
}

func decodeVector(payload []byte) ([]float64, error) {
	var openaiOut struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &openaiOut); err == nil {
		if len(openaiOut.Data) > 0 && len(openaiOut.Data[0].Embedding) > 0 {
			return openaiOut.Data[0].Embedding, nil
		}
	}
	// Ollama-native shape: {"embedding": [...]}
	var ollamaOut struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.Unmarshal(payload, &ollamaOut); err == nil && len(ollamaOut.Embedding) > 0 {
		return ollamaOut.Embedding, nil
	}
	return nil, services.Wrap(services.ErrTransient, "", "embedding", "response carried no vector", nil)
}
