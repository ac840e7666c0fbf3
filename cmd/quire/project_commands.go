package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"quire/internal/api"
	"quire/internal/project"
	"quire/internal/projectaccess"
)

type projectFlags struct {
	params project.Params
}

func (f *projectFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.params.Title, "title", "t", "", "Working title (required)")
	cmd.Flags().StringVarP(&f.params.Genre, "genre", "g", "", "Genre")
	cmd.Flags().StringVarP(&f.params.TargetLength, "length", "l", "", "Target length: flash_fiction, short_story, novelette, novella or novel")
	cmd.Flags().StringVar(&f.params.Complexity, "complexity", "", "Narrative complexity")
	cmd.Flags().StringVarP(&f.params.InitialPrompt, "prompt", "p", "", "Initial prompt seeding ideation")
}

func newProjectCommands(ctx *commandContext) []*cobra.Command {
	var flags projectFlags
	var noStart, createJSON bool
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project on the daemon and start its run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd.Context(), func(client *api.Client) error {
				start := !noStart
				resp, err := client.CreateProject(cmd.Context(), api.CreateProjectRequest{Params: flags.params, Start: &start})
				if err != nil {
					return err
				}
				if createJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created project %s (%s, %d words)\n", resp.ID, resp.Config.TargetLength, resp.Config.TargetWords)
				if resp.Started {
					fmt.Fprintf(out, "Run %s started; follow it with `quire watch %s`\n", resp.RunID, resp.ID)
				}
				return nil
			})
		},
	}
	flags.bind(createCmd)
	createCmd.Flags().BoolVar(&noStart, "no-start", false, "Create without starting the run")
	createCmd.Flags().BoolVar(&createJSON, "json", false, "Output as JSON")

	var listJSON bool
	projectsCmd := &cobra.Command{
		Use:     "projects",
		Aliases: []string{"ls"},
		Short:   "List projects",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd.Context(), func(access projectaccess.Access) error {
				projects, err := access.Projects(cmd.Context())
				if err != nil {
					return err
				}
				if listJSON {
					return writeJSON(cmd, api.ProjectListResponse{Projects: projects})
				}
				out := cmd.OutOrStdout()
				if len(projects) == 0 {
					fmt.Fprintln(out, "No projects")
					return nil
				}
				rows := make([][]string, 0, len(projects))
				for _, p := range projects {
					updated := ""
					if !p.UpdatedAt.IsZero() {
						updated = p.UpdatedAt.Local().Format("2006-01-02 15:04")
					}
					rows = append(rows, []string{p.ID, p.Title, p.Status, fmt.Sprintf("%d%%", p.Progress), updated})
				}
				fmt.Fprintln(out, renderTable(
					[]tableColumn{col("ID"), wrapCol("Title", 40), col("Status"), numCol("Progress"), col("Updated")},
					rows,
				))
				return nil
			})
		},
	}
	projectsCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status <project>",
		Short: "Show a project's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd.Context(), func(access projectaccess.Access) error {
				view, err := access.Status(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if statusJSON {
					return writeJSON(cmd, api.StatusResponse{Project: view})
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader(args[0], colorize) {
					fmt.Fprintln(out, line)
				}
				for _, line := range projectStatusLines(view, colorize) {
					fmt.Fprintln(out, line)
				}
				return nil
			})
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")

	startCmd := &cobra.Command{
		Use:   "begin <project>",
		Short: "Start a fresh run of an existing project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd.Context(), func(client *api.Client) error {
				view, err := client.Start(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Run %s started for %s\n", view.RunID, args[0])
				return nil
			})
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset <project>",
		Short: "Resume an interrupted run from its last completed stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd.Context(), func(access projectaccess.Access) error {
				view, err := access.Reset(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Run %s resumed at %s (%d%%)\n", view.RunID, view.StageLabel, view.Progress)
				return nil
			})
		},
	}

	return []*cobra.Command{createCmd, projectsCmd, statusCmd, startCmd, resetCmd}
}
