package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"quire/internal/api"
	"quire/internal/config"
)

// ErrDaemonNotRunning indicates the daemon API is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

const pollInterval = 200 * time.Millisecond

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

// StartState describes how EnsureStarted found or left the daemon.
type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State StartState
	PID   int
}

// StopResult captures daemon stop outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// Dialer builds an API client for the configured daemon.
type Dialer func() (*api.Client, error)

// PIDPath is where a serving daemon records its process id.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, "quire.pid")
}

// Launch starts a detached `quire serve` process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"serve"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// QueryStatus reports the daemon status, or ErrDaemonNotRunning when nothing
// answers.
func QueryStatus(ctx context.Context, dial Dialer) (api.DaemonStatus, error) {
	client, err := dial()
	if err != nil {
		if api.IsUnavailable(err) {
			return api.DaemonStatus{}, ErrDaemonNotRunning
		}
		return api.DaemonStatus{}, err
	}
	status, err := client.Daemon(ctx)
	if err != nil {
		if api.IsUnavailable(err) {
			return api.DaemonStatus{}, ErrDaemonNotRunning
		}
		return api.DaemonStatus{}, err
	}
	return status, nil
}

// WaitForAPI polls until the daemon answers or timeout elapses.
func WaitForAPI(ctx context.Context, dial Dialer, timeout time.Duration) (api.DaemonStatus, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		status, err := QueryStatus(ctx, dial)
		if err == nil && status.Running {
			return status, nil
		}
		lastErr = err
		if !sleep(ctx, pollInterval) {
			return api.DaemonStatus{}, ctx.Err()
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return api.DaemonStatus{}, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches the daemon unless one already answers.
func EnsureStarted(ctx context.Context, dial Dialer, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	if status, err := QueryStatus(ctx, dial); err == nil && status.Running {
		return StartResult{State: StartStateAlreadyRunning, PID: status.PID}, nil
	} else if err != nil && !errors.Is(err, ErrDaemonNotRunning) {
		return StartResult{}, err
	}

	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	status, err := WaitForAPI(ctx, dial, waitTimeout)
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{State: StartStateStarted, PID: status.PID}, nil
}

// WaitForShutdown polls until the daemon API stops answering.
func WaitForShutdown(ctx context.Context, dial Dialer, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := QueryStatus(ctx, dial); errors.Is(err, ErrDaemonNotRunning) {
			return nil
		}
		if !sleep(ctx, pollInterval) {
			return ctx.Err()
		}
	}
	return fmt.Errorf("daemon did not stop within %s", timeout)
}

// Stop sends SIGTERM to the daemon and escalates to SIGKILL when it is
// still answering after gracePeriod.
func Stop(ctx context.Context, dial Dialer, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	status, err := QueryStatus(ctx, dial)
	if err != nil {
		return StopResult{}, err
	}
	pid, err := ReadPID(PIDPath(cfg), status.PID)
	if err != nil {
		return StopResult{}, err
	}
	if err := signalProcess(pid, syscall.SIGTERM); err != nil {
		return StopResult{}, err
	}
	result := StopResult{PID: pid}
	if err := WaitForShutdown(ctx, dial, gracePeriod); err == nil {
		return result, nil
	}

	if err := signalProcess(pid, syscall.SIGKILL); err != nil {
		return result, err
	}
	result.ForcedKill = true
	if err := os.Remove(PIDPath(cfg)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return result, fmt.Errorf("remove pid file: %w", err)
	}
	return result, nil
}

// ReadPID returns the pid recorded at path, or fallback when the file is
// missing or empty.
func ReadPID(path string, fallback int) (int, error) {
	pid := fallback
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if raw := strings.TrimSpace(string(data)); raw != "" {
			parsed, parseErr := strconv.Atoi(raw)
			if parseErr != nil || parsed <= 0 {
				return 0, fmt.Errorf("invalid pid file %q", path)
			}
			pid = parsed
		}
	case !errors.Is(err, os.ErrNotExist):
		return 0, fmt.Errorf("read daemon pid file %q: %w", path, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", path)
	}
	return pid, nil
}

func signalProcess(pid int, sig syscall.Signal) error {
	if pid == os.Getpid() {
		return fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
