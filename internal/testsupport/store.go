package testsupport

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"quire/internal/artifact"
	"quire/internal/config"
	"quire/internal/services/embedding"
)

// MustOpenStore opens the artifact store for projectID under cfg and
// registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, projectID string) *artifact.Store {
	t.Helper()

	store, err := artifact.Open(context.Background(), cfg.ProjectDir(projectID), embedding.NewHasher(cfg.Store.Dimension), artifact.OptionsFromConfig(cfg, nil))
	if err != nil {
		t.Fatalf("artifact.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// MustPut stores entry and fails the test on any error.
func MustPut(t testing.TB, store *artifact.Store, entry artifact.Entry) string {
	t.Helper()

	id, err := store.Put(context.Background(), entry)
	if err != nil {
		t.Fatalf("store.Put: %v", err)
	}
	return id
}

// ErrEmbedUnavailable is returned by FlakyEmbedder while it is failing.
var ErrEmbedUnavailable = errors.New("embedding backend unavailable")

// FlakyEmbedder fails the first Failures calls, then delegates to the hash
// embedder. A negative Failures fails forever.
type FlakyEmbedder struct {
	Failures  int64
	Err       error
	Dimension int

	calls atomic.Int64
}

// Embed implements artifact.Embedder.
func (f *FlakyEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	n := f.calls.Add(1)
	if f.Failures < 0 || n <= f.Failures {
		if f.Err != nil {
			return nil, f.Err
		}
		return nil, ErrEmbedUnavailable
	}
	dim := f.Dimension
	if dim <= 0 {
		dim = TestDimension
	}
	return embedding.NewHasher(dim).Embed(ctx, text)
}

// Calls reports how many times Embed ran.
func (f *FlakyEmbedder) Calls() int64 {
	return f.calls.Load()
}
