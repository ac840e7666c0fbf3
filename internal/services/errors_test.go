package services_test

import (
	"errors"
	"strings"
	"testing"

	"quire/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "research", "complete", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"research", "complete", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"validation", services.Wrap(services.ErrValidation, "plot", "decode", "bad json", nil), false},
		{"configuration", services.Wrap(services.ErrConfiguration, "llm", "", "missing key", nil), false},
		{"transient", services.Wrap(services.ErrTransient, "embed", "", "", errors.New("io")), true},
		{"plain", errors.New("unclassified"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := services.Retryable(tt.err); got != tt.want {
				t.Fatalf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestHint(t *testing.T) {
	if services.Hint(nil) != "" {
		t.Fatal("expected empty hint for nil")
	}
	err := services.Wrap(services.ErrConfiguration, "llm", "", "", nil)
	if !strings.Contains(services.Hint(err), "config") {
		t.Fatalf("unexpected hint %q", services.Hint(err))
	}
}
