package preflight_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"quire/internal/config"
	"quire/internal/preflight"
)

func TestCheckDirectoryAccess(t *testing.T) {
	base := t.TempDir()
	file := filepath.Join(base, "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		path       string
		wantPassed bool
		wantDetail string
	}{
		{"temp dir", base, true, "read/write ok"},
		{"missing", filepath.Join(base, "nope"), false, "does not exist"},
		{"file", file, false, "is not a directory"},
		{"empty", " ", false, "not configured"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := preflight.CheckDirectoryAccess("test", tc.path)
			if result.Passed != tc.wantPassed {
				t.Fatalf("expected passed=%v, got %+v", tc.wantPassed, result)
			}
			if !strings.Contains(result.Detail, tc.wantDetail) {
				t.Fatalf("detail %q missing %q", result.Detail, tc.wantDetail)
			}
		})
	}
}

func TestCheckInstructions(t *testing.T) {
	if result := preflight.CheckInstructions(""); !result.Passed || result.Detail != "built-in" {
		t.Fatalf("built-in pack should pass, got %+v", result)
	}

	bad := filepath.Join(t.TempDir(), "pack.yaml")
	if err := os.WriteFile(bad, []byte("stages: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := preflight.CheckInstructions(bad); result.Passed {
		t.Fatalf("invalid pack should fail, got %+v", result)
	}
	if result := preflight.CheckInstructions(filepath.Join(t.TempDir(), "missing.yaml")); result.Passed {
		t.Fatalf("missing pack should fail, got %+v", result)
	}
}

func TestCheckEmbedding(t *testing.T) {
	result := preflight.CheckEmbedding(context.Background(), config.Embedding{Provider: "hash"}, 64)
	if !result.Passed || !strings.Contains(result.Detail, "64 dims") {
		t.Fatalf("hash embedder should pass, got %+v", result)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []any{map[string]any{"embedding": []float64{0.1, 0.2, 0.3}}},
		})
	}))
	defer server.Close()

	remote := config.Embedding{Provider: "openai", BaseURL: server.URL, APIKey: "k", TimeoutSeconds: 5}
	result = preflight.CheckEmbedding(context.Background(), remote, 64)
	if !result.Passed || !strings.Contains(result.Detail, "3 dims") {
		t.Fatalf("remote embedder should pass, got %+v", result)
	}

	result = preflight.CheckEmbedding(context.Background(), config.Embedding{Provider: "bogus"}, 64)
	if result.Passed {
		t.Fatalf("unknown provider should fail, got %+v", result)
	}
}

func TestCheckLLM(t *testing.T) {
	t.Run("missing key is skipped", func(t *testing.T) {
		result := preflight.CheckLLM(context.Background(), "Generation service", config.LLM{})
		if result.Passed || !result.Skipped {
			t.Fatalf("expected skipped result, got %+v", result)
		}
	})

	t.Run("healthy", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer good" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"choices": []any{map[string]any{"message": map[string]any{"content": `{"ok":true}`}}},
			})
		}))
		defer server.Close()

		result := preflight.CheckLLM(context.Background(), "Generation service", config.LLM{APIKey: "good", BaseURL: server.URL, Model: "demo"})
		if !result.Passed || result.Detail != "demo reachable" {
			t.Fatalf("expected pass, got %+v", result)
		}
	})

	t.Run("keyless custom endpoint is checked", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "" {
				t.Errorf("unexpected authorization header %q", r.Header.Get("Authorization"))
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"choices": []any{map[string]any{"message": map[string]any{"content": `{"ok":true}`}}},
			})
		}))
		defer server.Close()

		result := preflight.CheckLLM(context.Background(), "Generation service", config.LLM{BaseURL: server.URL, Model: "local"})
		if !result.Passed || result.Skipped {
			t.Fatalf("expected pass, got %+v", result)
		}
	})

	t.Run("rejected key", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		result := preflight.CheckLLM(context.Background(), "Generation service", config.LLM{APIKey: "bad", BaseURL: server.URL, Model: "demo"})
		if result.Passed || result.Skipped {
			t.Fatalf("expected failure, got %+v", result)
		}
		if n := calls.Load(); n != 1 {
			t.Fatalf("expected a single attempt, got %d", n)
		}
	})
}

func TestRunAllAndFailed(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.LLM.APIKey = ""
	cfg.Embedding = config.Embedding{Provider: "hash"}

	results := preflight.RunAll(context.Background(), &cfg)
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	if preflight.Failed(results) {
		t.Fatalf("expected no failures, got %+v", results)
	}

	cfg.Paths.LogDir = filepath.Join(t.TempDir(), "missing")
	if !preflight.Failed(preflight.RunAll(context.Background(), &cfg)) {
		t.Fatal("missing log dir should fail")
	}
	if preflight.RunAll(context.Background(), nil) != nil {
		t.Fatal("nil config should produce no results")
	}
}
