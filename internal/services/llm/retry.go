package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"quire/internal/metrics"
)

type retryPolicy struct {
	attempts int
	base     time.Duration
	ceiling  time.Duration
	sleep    func(time.Duration)
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{attempts: 5, base: time.Second, ceiling: 10 * time.Second}
}

// delay is base doubled once per prior attempt, never above the ceiling.
func (p retryPolicy) delay(attempt int) time.Duration {
	if p.base <= 0 {
		return 0
	}
	d := p.base
	for i := 1; i < attempt && (p.ceiling <= 0 || d < p.ceiling); i++ {
		d *= 2
	}
	return p.clamp(d)
}

func (p retryPolicy) clamp(d time.Duration) time.Duration {
	if p.ceiling > 0 && d > p.ceiling {
		return p.ceiling
	}
	return max(d, 0)
}

// next decides whether err is worth another attempt and how long to wait.
// Rate limits, server errors, timeouts and empty output are retried; any
// other client error is final.
func (p retryPolicy) next(ctx context.Context, err error, attempt int) (time.Duration, bool) {
	if attempt >= max(p.attempts, 1) || ctx.Err() != nil ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}
	var status *statusError
	var empty *emptyOutputError
	var netErr net.Error
	switch {
	case errors.As(err, &status):
		if status.Code != http.StatusRequestTimeout && status.Code != http.StatusTooManyRequests && status.Code < 500 {
			return 0, false
		}
		if status.RetryAfter > 0 {
			return p.clamp(status.RetryAfter), true
		}
		return p.delay(attempt), true
	case errors.As(err, &empty):
		return p.delay(attempt), true
	case errors.As(err, &netErr) && netErr.Timeout():
		return p.delay(attempt), true
	}
	return 0, false
}

func (p retryPolicy) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if p.sleep != nil {
		p.sleep(d)
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// generate posts req until it yields text or the retry policy gives up.
func (c *Client) generate(ctx context.Context, op string, req chatRequest) (string, error) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		text, err := c.attempt(ctx, op, req)
		if err == nil {
			metrics.GenerationRequests.WithLabelValues("ok").Inc()
			return text, nil
		}
		lastErr = err
		d, again := c.retry.next(ctx, err, attempt)
		if !again {
			break
		}
		metrics.GenerationRequests.WithLabelValues("retried").Inc()
		if err := c.retry.wait(ctx, d); err != nil {
			return "", err
		}
	}
	metrics.GenerationRequests.WithLabelValues("failed").Inc()
	return "", classify(op, lastErr)
}

func (c *Client) attempt(ctx context.Context, op string, req chatRequest) (string, error) {
	resp, raw, err := c.post(ctx, req)
	if err != nil {
		return "", err
	}
	if resp.Usage != nil {
		metrics.GenerationTokens.WithLabelValues("prompt").Add(float64(resp.Usage.PromptTokens))
		metrics.GenerationTokens.WithLabelValues("completion").Add(float64(resp.Usage.CompletionTokens))
	}
	text, finish := resp.text()
	if text != "" {
		return text, nil
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: response has no choices", op)
	}
	return "", &emptyOutputError{Op: op, Finish: finish, Refusal: resp.refusal(), Snippet: summarizePayloadSnippet(string(raw))}
}

func (c *Client) post(ctx context.Context, req chatRequest) (chatResponse, []byte, error) {
	var out chatResponse
	body, err := json.Marshal(req)
	if err != nil {
		return out, nil, fmt.Errorf("encode generation request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return out, nil, fmt.Errorf("build generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return out, nil, fmt.Errorf("send generation request (timeout %s): %w", c.http.Timeout, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, nil, fmt.Errorf("read generation response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return out, raw, &statusError{
			Code:       resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, raw, fmt.Errorf("decode generation response: %w", err)
	}
	if out.Error != nil {
		return out, raw, fmt.Errorf("generation service error: %s", strings.TrimSpace(out.Error.Message))
	}
	return out, raw, nil
}

// retryAfter reads a Retry-After header given either as seconds or as an
// HTTP date.
func retryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		return max(time.Until(when), 0)
	}
	return 0
}
