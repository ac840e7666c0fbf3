package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quire/internal/services"
)

func completionServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(server.Close)
	return server
}

func writeContent(t *testing.T, w http.ResponseWriter, choice map[string]any) {
	t.Helper()
	payload := map[string]any{"choices": []any{choice}}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}

func noSleep() []Option {
	return []Option{WithRetryBackoff(0, 0), WithSleeper(func(time.Duration) {})}
}

func TestClientHealthCheck(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test" {
			t.Fatalf("unexpected authorization header %q", got)
		}
		writeContent(t, w, map[string]any{"message": map[string]any{"content": `{"ok":true}`}})
	})

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientHealthCheckCodeFence(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeContent(t, w, map[string]any{"message": map[string]any{"content": "```json\n{\"ok\":true}\n```"}})
	})

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientUnauthorizedIsConfigurationError(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
	})

	client := NewClient(Config{APIKey: "bad", BaseURL: server.URL, Model: "demo"})
	err := client.HealthCheck(context.Background())
	if err == nil {
		t.Fatal("expected health check to fail")
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration marker, got %v", err)
	}
}

func TestCompleteRequiresAPIKey(t *testing.T) {
	client := NewClient(Config{Model: "demo"})
	_, err := client.Complete(context.Background(), "system", "user")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if client.Configured() {
		t.Fatal("expected client without key to be unconfigured")
	}
}

func TestCompleteSendsPromptsWithoutJSONMode(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.ResponseFormat != nil {
			t.Fatalf("expected no response_format, got %v", req.ResponseFormat)
		}
		if len(req.Messages) != 2 || req.Messages[0].Content != "be a novelist" || req.Messages[1].Content != "write chapter 1" {
			t.Fatalf("unexpected messages %+v", req.Messages)
		}
		if req.Temperature != 0.7 {
			t.Fatalf("expected temperature 0.7, got %v", req.Temperature)
		}
		writeContent(t, w, map[string]any{"message": map[string]any{"content": "It was a dark night."}})
	})

	client := NewClient(Config{APIKey: "k", BaseURL: server.URL, Model: "m", Temperature: 0.7})
	text, err := client.Complete(context.Background(), "be a novelist", "write chapter 1")
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if text != "It was a dark night." {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestCompleteKeylessCustomEndpoint(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "" {
			t.Errorf("expected no authorization header, got %q", auth)
		}
		payload := map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": "Rain again."}}},
			"usage":   map[string]any{"prompt_tokens": 9, "completion_tokens": 3},
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Errorf("encode response: %v", err)
		}
	})

	client := NewClient(Config{BaseURL: server.URL, Model: "local"})
	if !client.Configured() {
		t.Fatal("custom endpoint without key should be configured")
	}
	text, err := client.Complete(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if text != "Rain again." {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestCompleteJSONToolCallsArguments(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeContent(t, w, map[string]any{
			"finish_reason": "tool_calls",
			"message": map[string]any{
				"content": "",
				"tool_calls": []any{
					map[string]any{
						"type": "function",
						"id":   "call_1",
						"function": map[string]any{
							"name":      "emit",
							"arguments": `{"title":"Ash"}`,
						},
					},
				},
			},
		})
	})

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	content, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	var parsed struct {
		Title string `json:"title"`
	}
	if err := DecodeLLMJSON(content, &parsed); err != nil || parsed.Title != "Ash" {
		t.Fatalf("unexpected payload %q (%v)", content, err)
	}
}

func TestCompleteJSONDeltaAndLegacyText(t *testing.T) {
	for name, choice := range map[string]map[string]any{
		"delta": {"delta": map[string]any{"content": `{"title":"Delta"}`}},
		"text":  {"finish_reason": "stop", "text": `{"title":"Delta"}`},
	} {
		t.Run(name, func(t *testing.T) {
			server := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeContent(t, w, choice)
			})
			client := NewClient(Config{APIKey: "test", BaseURL: server.URL})
			content, err := client.CompleteJSON(context.Background(), "system", "user")
			if err != nil {
				t.Fatalf("CompleteJSON returned error: %v", err)
			}
			if !strings.Contains(content, "Delta") {
				t.Fatalf("unexpected content %q", content)
			}
		})
	}
}

func TestClientEmptyContentHasSnippet(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeContent(t, w, map[string]any{"finish_reason": "stop", "message": map[string]any{"content": ""}})
	})

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"}, noSleep()...)
	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if err == nil {
		t.Fatal("expected completion to fail")
	}
	if !strings.Contains(err.Error(), "empty content") || !strings.Contains(err.Error(), "response_snippet=") {
		t.Fatalf("expected empty-content error to include snippet, got %v", err)
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool marker, got %v", err)
	}
}

func TestClientRetriesOnHTTP429(t *testing.T) {
	var calls int
	server := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limited"})
			return
		}
		writeContent(t, w, map[string]any{"message": map[string]any{"content": `{"ok":true}`}})
	})

	var slept []time.Duration
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		WithRetryBackoff(0, 10*time.Second),
		WithRetryMaxAttempts(5),
	)
	if _, err := client.CompleteJSON(context.Background(), "system", "user"); err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected single sleep of 1s, got %v", slept)
	}
}

func TestClientRetriesOnEmptyContentThenSucceeds(t *testing.T) {
	var calls int
	server := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		content := ""
		if calls >= 3 {
			content = "final text"
		}
		writeContent(t, w, map[string]any{"finish_reason": "stop", "message": map[string]any{"content": content}})
	})

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		append(noSleep(), WithRetryMaxAttempts(5))...,
	)
	text, err := client.Complete(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if text != "final text" || calls != 3 {
		t.Fatalf("expected final text after 3 calls, got %q after %d", text, calls)
	}
}

func TestClientDoesNotRetryBadRequest(t *testing.T) {
	var calls int
	server := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	})

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL}, noSleep()...)
	if _, err := client.Complete(context.Background(), "system", "user"); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestBackoffDelayDoublesAndCaps(t *testing.T) {
	client := NewClient(Config{}, WithRetryBackoff(time.Second, 5*time.Second))
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}
	for i, expected := range want {
		if got := client.retry.delay(i + 1); got != expected {
			t.Fatalf("attempt %d: got %s want %s", i+1, got, expected)
		}
	}
}

func TestDecodeLLMJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"plain", `{"name":"Ada"}`, false},
		{"fenced", "```json\n{\"name\":\"Ada\"}\n```", false},
		{"prose", "Here you go: {\"name\":\"Ada\"} hope it helps", false},
		{"empty", "   ", true},
		{"garbage", "no json here", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var parsed struct {
				Name string `json:"name"`
			}
			err := DecodeLLMJSON(tt.content, &parsed)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeLLMJSON returned error: %v", err)
			}
			if parsed.Name != "Ada" {
				t.Fatalf("unexpected name %q", parsed.Name)
			}
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	if got := StripCodeFence("```markdown\n# Chapter\ntext\n```"); got != "# Chapter\ntext" {
		t.Fatalf("unexpected strip result %q", got)
	}
	if got := StripCodeFence("plain prose"); got != "plain prose" {
		t.Fatalf("unexpected passthrough %q", got)
	}
}
