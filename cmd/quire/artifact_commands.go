package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"quire/internal/api"
	"quire/internal/artifact"
	"quire/internal/projectaccess"
)

func newArtifactsCommand(ctx *commandContext) *cobra.Command {
	artifactsCmd := &cobra.Command{
		Use:     "artifacts",
		Aliases: []string{"docs"},
		Short:   "Inspect a project's stored documents",
	}

	var listQuery api.ArtifactQuery
	var listJSON bool
	listCmd := &cobra.Command{
		Use:   "list <project>",
		Short: "List stored documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd.Context(), func(access projectaccess.Access) error {
				docs, err := access.Artifacts(cmd.Context(), args[0], listQuery)
				if err != nil {
					return err
				}
				return printArtifacts(cmd, docs, listJSON, false)
			})
		},
	}
	listCmd.Flags().StringVar(&listQuery.Partition, "partition", "", "Only this partition")
	listCmd.Flags().StringVar(&listQuery.Type, "type", "", "Only this document type")
	listCmd.Flags().IntVarP(&listQuery.Limit, "limit", "n", 0, "Keep the newest N documents")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")

	var searchQuery api.ArtifactQuery
	var searchJSON bool
	searchCmd := &cobra.Command{
		Use:   "search <project> <query>",
		Short: "Similarity search, or an exact key:value attribute filter",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			searchQuery.Query = strings.Join(args[1:], " ")
			return ctx.withAccess(cmd.Context(), func(access projectaccess.Access) error {
				docs, err := access.Artifacts(cmd.Context(), args[0], searchQuery)
				if err != nil {
					return err
				}
				return printArtifacts(cmd, docs, searchJSON, true)
			})
		},
	}
	searchCmd.Flags().StringVar(&searchQuery.Partition, "partition", "", "Only this partition")
	searchCmd.Flags().StringVar(&searchQuery.Type, "type", "", "Only this document type")
	searchCmd.Flags().IntVarP(&searchQuery.Limit, "limit", "n", 0, "Maximum number of matches")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output as JSON")

	var showJSON bool
	showCmd := &cobra.Command{
		Use:   "show <project> <document>",
		Short: "Print one document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd.Context(), func(access projectaccess.Access) error {
				doc, err := access.Artifact(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if showJSON {
					return writeJSON(cmd, api.ArtifactResponse{Artifact: doc})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ID:        %s\n", doc.ID)
				fmt.Fprintf(out, "Partition: %s\n", doc.Partition)
				fmt.Fprintf(out, "Schema:    %s\n", doc.Schema)
				fmt.Fprintf(out, "Created:   %s\n", doc.CreatedAt)
				keys := make([]string, 0, len(doc.Attributes))
				for k := range doc.Attributes {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Fprintf(out, "  %s = %s\n", k, doc.Attributes[k])
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, doc.Text)
				return nil
			})
		},
	}
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output as JSON")

	deleteCmd := &cobra.Command{
		Use:   "delete <project> <document>",
		Short: "Delete one document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd.Context(), func(access projectaccess.Access) error {
				deleted, err := access.DeleteArtifact(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if deleted {
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[1])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "No document %s\n", args[1])
				}
				return nil
			})
		},
	}

	var statsJSON bool
	statsCmd := &cobra.Command{
		Use:   "stats <project>",
		Short: "Show store statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd.Context(), func(access projectaccess.Access) error {
				stats, err := access.Stats(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if statsJSON {
					return writeJSON(cmd, api.StatsResponse{Stats: stats})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderStats(stats))
				return nil
			})
		},
	}
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output as JSON")

	backupCmd := &cobra.Command{
		Use:   "backup <project> <destination>",
		Short: "Copy a project's store snapshot (daemon must be stopped)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := ctx.openCatalog()
			if err != nil {
				return err
			}
			defer catalog.Close()
			h, err := catalog.Hub(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := h.Store().Backup(cmd.Context(), args[1]); err != nil {
				return fmt.Errorf("backup %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backed up %s to %s\n", args[0], args[1])
			return nil
		},
	}

	artifactsCmd.AddCommand(listCmd, searchCmd, showCmd, deleteCmd, statsCmd, backupCmd)
	return artifactsCmd
}

func printArtifacts(cmd *cobra.Command, docs []api.Artifact, asJSON, scored bool) error {
	if asJSON {
		return writeJSON(cmd, api.ArtifactListResponse{Artifacts: docs})
	}
	out := cmd.OutOrStdout()
	if len(docs) == 0 {
		fmt.Fprintln(out, "No documents")
		return nil
	}
	columns := []tableColumn{col("ID"), col("Partition"), col("Type"), col("Created"), numCol("Size")}
	if scored {
		columns = append(columns, numCol("Score"))
	}
	rows := make([][]string, 0, len(docs))
	for _, d := range docs {
		row := []string{d.ID, d.Partition, d.Type, shortTime(d.CreatedAt), fmt.Sprintf("%d", d.Size)}
		if scored {
			row = append(row, fmt.Sprintf("%.3f", d.Score))
		}
		rows = append(rows, row)
	}
	fmt.Fprintln(out, renderTable(columns, rows))
	return nil
}

func renderStats(stats artifact.Stats) string {
	names := make([]string, 0, len(stats.Partitions))
	for name := range stats.Partitions {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := make([][]string, 0, len(names)+1)
	for _, name := range names {
		rows = append(rows, []string{name, fmt.Sprintf("%d", stats.Partitions[name])})
	}
	rows = append(rows, []string{"total", fmt.Sprintf("%d", stats.Documents)})
	table := renderTable([]tableColumn{col("Partition"), numCol("Documents")}, rows)

	lines := []string{table, fmt.Sprintf("Approx size: %d bytes, dimension %d", stats.ApproxBytes, stats.Dimension)}
	if !stats.LatestCreatedAt.IsZero() {
		lines = append(lines, "Latest document: "+stats.LatestCreatedAt.Local().Format(time.RFC3339))
	}
	return strings.Join(lines, "\n")
}

func shortTime(value string) string {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
