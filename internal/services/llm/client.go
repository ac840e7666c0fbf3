package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"quire/internal/services"
)

const (
	defaultBaseURL  = "https://api.openai.com/v1/chat/completions"
	defaultTimeout  = 120 * time.Second
	healthSystem    = "You must respond with JSON only."
	healthUser      = `Respond with {"ok":true}`
	opGenerate      = "generate"
	opGenerateJSON  = "generate json"
	opHealth        = "generation health"
	credentialsHint = "api key required for the hosted endpoint"
)

// Config captures the runtime settings required to talk to the generation service.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Temperature    float64
	TimeoutSeconds int
}

// Client talks to an OpenAI-compatible chat completions endpoint and turns
// prompts into manuscript text or JSON planning payloads.
type Client struct {
	cfg   Config
	http  *http.Client
	retry retryPolicy
}

// Option customizes the client.
type Option func(*Client)

// WithRetryMaxAttempts sets how many requests a single generation may make.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) { c.retry.attempts = attempts }
}

// WithRetryBackoff sets the first retry delay and the ceiling it doubles towards.
func WithRetryBackoff(base, ceiling time.Duration) Option {
	return func(c *Client) {
		c.retry.base = base
		c.retry.ceiling = ceiling
	}
}

// WithSleeper replaces the timer used between attempts.
func WithSleeper(sleep func(time.Duration)) Option {
	return func(c *Client) { c.retry.sleep = sleep }
}

// NewClient constructs a client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: timeout},
		retry: defaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Configured reports whether the client has the credentials it needs.
// Self-hosted endpoints may run without a key; the hosted default may not.
func (c *Client) Configured() bool {
	return c != nil && (c.cfg.APIKey != "" || c.cfg.BaseURL != defaultBaseURL)
}

// Complete generates free-form prose for the given prompts.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req, err := c.request(opGenerate, systemPrompt, userPrompt, false)
	if err != nil {
		return "", err
	}
	return c.generate(ctx, opGenerate, req)
}

// CompleteJSON asks the model for a JSON object and returns the raw payload.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req, err := c.request(opGenerateJSON, systemPrompt, userPrompt, true)
	if err != nil {
		return "", err
	}
	return c.generate(ctx, opGenerateJSON, req)
}

// HealthCheck sends a tiny JSON-mode prompt to prove the endpoint, key and
// model all work.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := c.request(opHealth, healthSystem, healthUser, true)
	if err != nil {
		return err
	}
	req.Temperature = 0
	content, err := c.generate(ctx, opHealth, req)
	if err != nil {
		return err
	}
	var ack struct {
		OK bool `json:"ok"`
	}
	if err := DecodeLLMJSON(content, &ack); err != nil {
		return fmt.Errorf("%s: parse payload: %w", opHealth, err)
	}
	if !ack.OK {
		return fmt.Errorf("%s: model did not acknowledge", opHealth)
	}
	return nil
}

func (c *Client) request(op, systemPrompt, userPrompt string, jsonMode bool) (chatRequest, error) {
	systemPrompt = strings.TrimSpace(systemPrompt)
	userPrompt = strings.TrimSpace(userPrompt)
	switch {
	case systemPrompt == "":
		return chatRequest{}, services.Wrap(services.ErrValidation, "", op, "system prompt required", nil)
	case userPrompt == "":
		return chatRequest{}, services.Wrap(services.ErrValidation, "", op, "user prompt required", nil)
	case !c.Configured():
		return chatRequest{}, services.Wrap(services.ErrConfiguration, "", op, credentialsHint, nil)
	}
	req := chatRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}
	if jsonMode {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return req, nil
}

// classify tags a terminal generation failure with a services marker.
func classify(op string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var status *statusError
	if errors.As(err, &status) {
		switch status.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return services.Wrap(services.ErrConfiguration, "", op, "credentials rejected", err)
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return services.Wrap(services.ErrTimeout, "", op, "", err)
		}
	}
	return services.Wrap(services.ErrExternalTool, "", op, "", err)
}
