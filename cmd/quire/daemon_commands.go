package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"quire/internal/daemonctl"
	"quire/internal/daemonrun"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var serveLogLevel string
	var serveDev bool
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the quire daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    serveLogLevel,
				Development: serveDev,
			})
		},
	}
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "Override logging.level")
	serveCmd.Flags().BoolVar(&serveDev, "dev", false, "Enable development logging")

	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the quire daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.EnsureStarted(cmd.Context(), ctx.dial, exe, daemonctl.LaunchOptions{
				ConfigPath: ctx.configPath,
				LogLevel:   startLogLevel,
			}, 10*time.Second)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch result.State {
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(out, "Daemon already running (pid %d)\n", result.PID)
			default:
				fmt.Fprintf(out, "Daemon started (pid %d)\n", result.PID)
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Override logging.level for the daemon")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the quire daemon; live runs stay resumable",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			result, err := daemonctl.Stop(cmd.Context(), ctx.dial, ctx.configValue(), 40*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(out, "Daemon did not exit in time; killed pid %d\n", result.PID)
				return nil
			}
			fmt.Fprintln(out, "Daemon stopped")
			return nil
		},
	}

	var daemonJSON bool
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Show daemon status and live runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := daemonctl.QueryStatus(cmd.Context(), ctx.dial)
			if err != nil && !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				return wrapDialError(err, ctx.configValue())
			}
			if daemonJSON {
				return writeJSON(cmd, status)
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(out, line)
			}
			if !status.Running {
				fmt.Fprintln(out, renderStatusLine("quire", statusWarn, "Not running", colorize))
				return nil
			}
			fmt.Fprintln(out, renderStatusLine("quire", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
			fmt.Fprintln(out, renderStatusLine("Started", statusInfo, status.StartedAt, colorize))
			fmt.Fprintln(out, renderStatusLine("Data", statusInfo, status.DataDir, colorize))
			if len(status.Runs) == 0 {
				fmt.Fprintln(out, renderStatusLine("Runs", statusInfo, "none", colorize))
				return nil
			}
			fmt.Fprintln(out)
			rows := make([][]string, 0, len(status.Runs))
			for _, run := range status.Runs {
				rows = append(rows, []string{run.ProjectID, run.Status, run.Stage, fmt.Sprintf("%d%%", run.Progress), yesNo(run.Alive)})
			}
			fmt.Fprintln(out, renderTable(
				[]tableColumn{col("Project"), col("Status"), col("Stage"), numCol("Progress"), col("Alive")},
				rows,
			))
			return nil
		},
	}
	daemonCmd.Flags().BoolVar(&daemonJSON, "json", false, "Output as JSON")

	return []*cobra.Command{serveCmd, startCmd, stopCmd, daemonCmd}
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return exe, nil
}
