package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"quire/internal/agents"
	"quire/internal/config"
	"quire/internal/daemon"
	"quire/internal/daemonctl"
	"quire/internal/logging"
	"quire/internal/project"
	"quire/internal/services/embedding"
	"quire/internal/services/llm"
	"quire/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Runtime bundles the components shared by the daemon and foreground runs.
type Runtime struct {
	Catalog *project.Catalog
	Engine  *workflow.Engine
	Pack    *agents.Pack
}

// Build wires the embedder, generation client, instruction pack, project
// catalog and workflow engine from cfg.
func Build(cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	embedder, err := embedding.New(cfg.Embedding, cfg.Store.Dimension)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}

	pack, err := agents.LoadPack(cfg.Workflow.Instructions)
	if err != nil {
		return nil, fmt.Errorf("load instruction pack: %w", err)
	}

	gen := llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Temperature:    cfg.LLM.Temperature,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	})
	if !gen.Configured() {
		logging.WarnWithContext(logger, "generation service has no api key", "llm_unconfigured",
			logging.Hint("set llm.api_key or QUIRE_LLM_API_KEY unless the endpoint is keyless"),
			logging.String("base_url", cfg.LLM.BaseURL),
		)
	}

	opts := append(workflow.OptionsFromConfig(cfg), workflow.WithLogger(logger))
	return &Runtime{
		Catalog: project.NewCatalog(cfg, embedder, logger),
		Engine:  workflow.NewEngine(agents.New(gen, pack), opts...),
		Pack:    pack,
	}, nil
}

// NewLogger builds the process logger writing to stdout and a per-process
// file under the log directory, and points <log_dir>/quire.log at it.
func NewLogger(cfg *config.Config, opts Options) (*slog.Logger, string, error) {
	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Logging.Level
	}
	if err := os.MkdirAll(cfg.Paths.LogDir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create log directory: %w", err)
	}
	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("quire-%s.log", runID))
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return nil, "", fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update quire.log link: %v\n", err)
	}
	return logger, logPath, nil
}

// Run starts the quire daemon and blocks until cmdCtx ends or the process
// receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, logPath, err := NewLogger(cfg, opts)
	if err != nil {
		return err
	}
	logConfigSnapshot(logger, cfg, logPath)

	pidPath := daemonctl.PIDPath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	rt, err := Build(cfg, logger)
	if err != nil {
		logger.Error("build runtime", logging.Error(err))
		return err
	}

	d, err := daemon.New(cfg, rt.Catalog, rt.Engine, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.Event("daemon_start_failed"),
			logging.Hint("check that no other quire daemon is running and the API bind address is free"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("quire daemon shutting down")
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "quire.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config, logPath string) {
	logger.Info("configuration snapshot",
		logging.Event("config_snapshot"),
		logging.String("data_dir", cfg.Paths.DataDir),
		logging.String("log_path", logPath),
		logging.String("llm_model", cfg.LLM.Model),
		logging.Bool("llm_key_present", strings.TrimSpace(cfg.LLM.APIKey) != ""),
		logging.String("embedding_provider", cfg.Embedding.Provider),
		logging.Int("dimension", cfg.Store.Dimension),
		logging.String("instructions", firstNonEmpty(cfg.Workflow.Instructions, "built-in")),
		logging.String("api_bind", cfg.API.Bind),
		logging.Bool("api_token_set", cfg.API.Token != ""),
	)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
