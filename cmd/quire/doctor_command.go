package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"quire/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, instruction pack and remote services",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			results := preflight.RunAll(cmd.Context(), cfg)
			for _, line := range renderSectionHeader("Readiness", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, r := range results {
				fmt.Fprintln(out, renderStatusLine(r.Name, preflightKind(r), r.Detail, colorize))
			}
			if preflight.Failed(results) {
				return fmt.Errorf("readiness checks failed")
			}
			return nil
		},
	}
}

func preflightKind(r preflight.Result) statusKind {
	switch {
	case r.Skipped:
		return statusWarn
	case r.Passed:
		return statusOK
	default:
		return statusError
	}
}
