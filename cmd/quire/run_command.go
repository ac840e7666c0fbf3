package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"quire/internal/agents"
	"quire/internal/config"
	"quire/internal/daemonrun"
	"quire/internal/hub"
	"quire/internal/logging"
	"quire/internal/workflow"
)

const progressPoll = 500 * time.Millisecond

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags projectFlags
	var resumeID, output string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Create and run a project in the foreground without a daemon",
		Long: "Run creates a project from the flags (or resumes one with --resume) and drives it\n" +
			"to completion in this process. Interrupting it leaves the project resumable.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if resumeID == "" && strings.TrimSpace(flags.params.Title) == "" {
				return errors.New("--title is required unless --resume is set")
			}
			return runForeground(cmd, cfg, flags, resumeID, output, verbose)
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&resumeID, "resume", "", "Resume an interrupted project instead of creating one")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the finished manuscript to this markdown file")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Also print log lines to stderr")
	return cmd
}

func runForeground(cmd *cobra.Command, cfg *config.Config, flags projectFlags, resumeID, output string, verbose bool) error {
	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	out := cmd.OutOrStdout()

	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("quire-run-%s.log", time.Now().UTC().Format("20060102T150405")))
	handler, closer, err := logging.NewFileHandler(logPath, logging.Options{Level: cfg.Logging.Level, Format: "json"})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closer.Close()
	logger := slog.New(handler)
	if verbose {
		console, err := logging.New(logging.Options{
			Level:            cfg.Logging.Level,
			Format:           "console",
			OutputPaths:      []string{"stderr"},
			ErrorOutputPaths: []string{"stderr"},
		})
		if err != nil {
			return fmt.Errorf("init console logger: %w", err)
		}
		logger = logging.TeeLogger(console, handler)
	}

	rt, err := daemonrun.Build(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Catalog.Close()

	projectID := resumeID
	if projectID == "" {
		id, saved, err := rt.Catalog.Create(signalCtx, flags.params)
		if err != nil {
			return err
		}
		projectID = id
		fmt.Fprintf(out, "Created project %s (%s, %d words)\n", id, saved.TargetLength, saved.TargetWords)
	}
	h, err := rt.Catalog.Hub(signalCtx, projectID)
	if err != nil {
		return err
	}
	run, err := rt.Engine.Launch(signalCtx, h, resumeID != "")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Run %s started; log at %s\n", run.ID(), logPath)

	followRun(signalCtx, out, run)
	<-run.Done()

	rec := run.Record()
	switch rec.Status {
	case hub.StatusComplete:
		m, ok := h.Manuscript()
		if !ok {
			return errors.New("run completed without a manuscript")
		}
		fmt.Fprintf(out, "Complete: %q, %d chapters, %d words\n", m.Title, len(m.Chapters), m.WordCount)
		if output != "" {
			if err := writeManuscript(output, agents.Render(m)); err != nil {
				return err
			}
			fmt.Fprintf(out, "Manuscript written to %s\n", output)
		}
		return nil
	case hub.StatusError:
		for _, e := range rec.Errors {
			fmt.Fprintf(out, "error: %s\n", e)
		}
		return fmt.Errorf("run %s failed", run.ID())
	default:
		fmt.Fprintf(out, "Interrupted at %s; resume with `quire run --resume %s`\n", workflow.StageLabel(rec.CurrentStage), projectID)
		return context.Canceled
	}
}

// followRun prints a line whenever the run's stage or progress changes and
// returns once it exits or ctx ends.
func followRun(ctx context.Context, out io.Writer, run *workflow.Run) {
	ticker := time.NewTicker(progressPoll)
	defer ticker.Stop()
	last := ""
	report := func() {
		rec := run.Record()
		line := fmt.Sprintf("[%3d%%] %s", rec.Progress, workflow.StageLabel(rec.CurrentStage))
		if n := len(rec.CompletedUnits); n > 0 {
			line += fmt.Sprintf(" (%d units written)", n)
		}
		if line != last {
			fmt.Fprintln(out, line)
			last = line
		}
	}
	for {
		report()
		select {
		case <-run.Done():
			report()
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
