package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"quire/internal/api"
	"quire/internal/config"
	"quire/internal/hub"
	"quire/internal/logging"
	"quire/internal/notifications"
	"quire/internal/project"
	"quire/internal/workflow"
)

// shutdownGrace bounds how long Stop waits for runs to observe cancellation.
const shutdownGrace = 30 * time.Second

const notifyTimeout = 15 * time.Second

// Daemon owns the project catalog, the run registry and the HTTP API, and
// enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	catalog *project.Catalog
	engine  *workflow.Engine
	notify  notifications.Service

	registry *workflow.Registry
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	startedAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, catalog *project.Catalog, engine *workflow.Engine, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || catalog == nil || engine == nil {
		return nil, errors.New("daemon requires config, catalog, and workflow engine")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.DaemonLockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		catalog:  catalog,
		engine:   engine,
		notify:   notifications.NewService(cfg),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, starts the API server and resumes runs a
// previous process left in the running state.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another quire daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.registry = workflow.NewRegistry(d.ctx, d.engine, d.catalog, d.logger)
	d.registry.OnFinish(d.notifyFinished)
	d.api = newAPIServer(d.cfg, d, d.logger)
	if err := d.api.start(d.ctx); err != nil {
		d.cancel()
		_ = d.registry.Close(context.Background())
		_ = d.lock.Unlock()
		d.ctx, d.cancel = nil, nil
		return err
	}

	d.startedAt = time.Now().UTC()
	d.running.Store(true)
	d.logger.Info("quire daemon started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.api.addr()),
	)
	d.resumeStale(d.ctx)
	return nil
}

// resumeStale relaunches every project whose stored record says running.
// No run can be live this early, so each such record was left behind by a
// process that died mid-run.
func (d *Daemon) resumeStale(ctx context.Context) {
	summaries, err := d.catalog.List(ctx)
	if err != nil {
		d.logger.Warn("project scan failed; stale runs not resumed",
			logging.Error(err),
			logging.Event("resume_scan_failed"),
		)
		return
	}
	for _, s := range summaries {
		if s.Status != hub.StatusRunning {
			continue
		}
		run, err := d.registry.Reset(ctx, s.ID)
		if err != nil {
			logging.WarnWithContext(d.logger, "stale run not resumed", "resume_failed",
				logging.Project(s.ID),
				logging.Error(err),
			)
			continue
		}
		d.logger.Info("stale run resumed",
			logging.Project(s.ID),
			logging.String(logging.FieldRunID, run.ID()),
			logging.Stage(run.Record().CurrentStage),
		)
	}
}

// notifyFinished publishes the outcome of a run that reached a terminal
// status. Interrupted runs stay running and are not reported.
func (d *Daemon) notifyFinished(run *workflow.Run) {
	rec := run.Record()
	if !rec.Terminal() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	var err error
	switch rec.Status {
	case hub.StatusComplete:
		var elapsed time.Duration
		if rec.StartedAt != nil && rec.EndedAt != nil {
			elapsed = rec.EndedAt.Sub(*rec.StartedAt)
		}
		title, words := run.Project(), 0
		if m, ok := run.Hub().Manuscript(); ok {
			title, words = m.Title, m.WordCount
		}
		err = d.notify.NotifyRunCompleted(ctx, run.Project(), title, words, elapsed)
	case hub.StatusError:
		err = d.notify.NotifyRunFailed(ctx, run.Project(), rec.Errors)
	}
	if err != nil {
		logging.WarnWithContext(d.logger, "run notification failed", "notify_failed",
			logging.Project(run.Project()),
			logging.Error(err),
		)
	}
}

// Stop interrupts live runs, shuts down the API server and releases the
// daemon lock. Interrupted runs stay resumable.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	waitCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	if err := d.registry.Close(waitCtx); err != nil {
		d.logger.Warn("runs did not stop in time", logging.Error(err))
	}
	cancel()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("quire daemon stopped")
}

// Close stops the daemon and closes every open project store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.catalog.Close()
}

// Running reports whether Start succeeded and Stop has not run.
func (d *Daemon) Running() bool { return d.running.Load() }

// Addr returns the API listener address, or "" when stopped.
func (d *Daemon) Addr() string {
	if !d.running.Load() {
		return ""
	}
	return d.api.addr()
}

// Status returns daemon runtime information.
func (d *Daemon) Status() api.DaemonStatus {
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DataDir:      d.cfg.Paths.DataDir,
		LockFilePath: d.lockPath,
		Runs:         []api.RunInfo{},
	}
	if !status.Running {
		return status
	}
	status.StartedAt = api.FormatTime(d.startedAt)
	for _, run := range d.registry.List() {
		status.Runs = append(status.Runs, api.FromRun(run))
	}
	return status
}
