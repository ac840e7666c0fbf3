package testsupport

import (
	"path/filepath"
	"testing"

	"quire/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// TestDimension keeps test embeddings small.
const TestDimension = 64

// NewConfig produces a config seeded with unique temp directories per test.
// It uses the offline hash embedder, no retry backoff and an ephemeral API port.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Store.Dimension = TestDimension
	cfgVal.Store.EmbedBackoffMS = 0
	cfgVal.Embedding.Provider = "hash"
	cfgVal.LLM.APIKey = ""
	cfgVal.API.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithLLM points the generation client at baseURL with a dummy key.
func WithLLM(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.BaseURL = baseURL
		b.cfg.LLM.APIKey = "test"
	}
}

// WithAPIToken sets the daemon bearer token.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.Token = token
	}
}

// WithUnits overrides the default fan-out unit count.
func WithUnits(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.DefaultUnits = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
