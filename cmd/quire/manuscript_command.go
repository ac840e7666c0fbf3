package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"quire/internal/api"
	"quire/internal/projectaccess"
	"quire/internal/textutil"
)

func newManuscriptCommand(ctx *commandContext) *cobra.Command {
	var output string
	var toStdout, asJSON bool

	cmd := &cobra.Command{
		Use:   "manuscript <project>",
		Short: "Export the assembled manuscript as markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd.Context(), func(access projectaccess.Access) error {
				resp, err := access.Manuscript(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch {
				case asJSON:
					return writeJSON(cmd, resp)
				case toStdout:
					_, err := fmt.Fprint(out, resp.Markdown)
					return err
				}
				target := output
				if target == "" {
					target = manuscriptFileName(resp, args[0])
				}
				if err := writeManuscript(target, resp.Markdown); err != nil {
					return err
				}
				fmt.Fprintf(out, "Wrote %d chapters (%d words) to %s\n", len(resp.Manuscript.Chapters), resp.Manuscript.WordCount, target)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (default: <title>.md)")
	cmd.Flags().BoolVar(&toStdout, "stdout", false, "Print markdown instead of writing a file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the structured manuscript as JSON")
	return cmd
}

func manuscriptFileName(resp api.ManuscriptResponse, projectID string) string {
	name := textutil.SanitizeFileName(resp.Manuscript.Title)
	if name == "" {
		name = projectID
	}
	return name + ".md"
}

func writeManuscript(path, markdown string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(markdown), 0o644); err != nil {
		return fmt.Errorf("write manuscript: %w", err)
	}
	return nil
}

func newTimelineCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var limit int

	cmd := &cobra.Command{
		Use:   "timeline <project>",
		Short: "List a project's document history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd.Context(), func(access projectaccess.Access) error {
				events, err := access.Timeline(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if limit > 0 && len(events) > limit {
					events = events[len(events)-limit:]
				}
				if asJSON {
					return writeJSON(cmd, api.TimelineResponse{Events: events})
				}
				out := cmd.OutOrStdout()
				if len(events) == 0 {
					fmt.Fprintln(out, "No events")
					return nil
				}
				rows := make([][]string, 0, len(events))
				for _, e := range events {
					rows = append(rows, []string{e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Agent, e.Type, e.Description})
				}
				fmt.Fprintln(out, renderTable([]tableColumn{col("Time"), col("Agent"), col("Event"), wrapCol("Description", 60)}, rows))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show only the newest N events")
	return cmd
}
