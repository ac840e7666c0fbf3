package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"quire/internal/agents"
	"quire/internal/config"
	"quire/internal/services/embedding"
	"quire/internal/services/llm"
)

const (
	llmCheckTimeout       = 30 * time.Second
	embeddingCheckTimeout = 15 * time.Second
)

// CheckLLM verifies that the generation API is reachable and the key is
// valid. It uses a single attempt (no retries). The hosted default endpoint
// without a key is reported as skipped; custom endpoints are checked with or
// without one.
func CheckLLM(ctx context.Context, name string, cfg config.LLM) Result {
	client := llm.NewClient(llm.Config{
		APIKey:         strings.TrimSpace(cfg.APIKey),
		BaseURL:        cfg.BaseURL,
		Model:          cfg.Model,
		TimeoutSeconds: cfg.TimeoutSeconds,
	}, llm.WithRetryMaxAttempts(1))
	if !client.Configured() {
		return Result{Name: name, Skipped: true, Detail: "API key missing; health check skipped"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, llmCheckTimeout)
	defer cancel()

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeRemoteError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", cfg.Model)}
}

// CheckEmbedding builds the configured embedder and embeds a sample text.
func CheckEmbedding(ctx context.Context, cfg config.Embedding, dimension int) Result {
	const name = "Embedding"

	embedder, err := embedding.New(cfg, dimension)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}

	checkCtx, cancel := context.WithTimeout(ctx, embeddingCheckTimeout)
	defer cancel()

	vector, err := embedder.Embed(checkCtx, "quire preflight")
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s: %s", embedder.Name(), summarizeRemoteError(err))}
	}
	if len(vector) == 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%s returned an empty vector", embedder.Name())}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d dims)", embedder.Name(), len(vector))}
}

// CheckInstructions loads and compiles the stage instruction pack.
func CheckInstructions(path string) Result {
	const name = "Instruction pack"

	if _, err := agents.LoadPack(path); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Passed: true, Detail: "built-in"}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "path is not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// summarizeRemoteError produces a human-readable summary for remote check failures.
func summarizeRemoteError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (API unreachable)"
	}
	return err.Error()
}
