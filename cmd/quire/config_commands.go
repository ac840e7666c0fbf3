package main

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"quire/internal/config"
	"quire/internal/services/llm"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or check the quire configuration file",
	}
	cmd.AddCommand(newConfigValidateCommand(ctx), newConfigInitCommand())
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var (
		targetPath string
		overwrite  bool
	)
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a commented sample configuration",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, err := resolveConfigTarget(targetPath)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if !overwrite {
				switch _, err := os.Stat(target); {
				case err == nil:
					return fmt.Errorf("%s already exists; pass --overwrite to replace it", target)
				case !errors.Is(err, fs.ErrNotExist):
					return fmt.Errorf("check config path: %w", err)
				}
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(cmd.OutOrStdout(), "Set llm.api_key (or QUIRE_LLM_API_KEY) unless llm.base_url points at a keyless endpoint.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

func resolveConfigTarget(path string) (string, error) {
	if path = strings.TrimSpace(path); path == "" {
		target, err := config.DefaultConfigPath()
		if err != nil {
			return "", fmt.Errorf("determine default config path: %w", err)
		}
		return target, nil
	}
	target, err := config.ExpandPath(path)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return target, nil
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the configuration and summarize what quire will use",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			if ctx.configPath != "" {
				fmt.Fprintf(out, "Config path: %s\n", ctx.configPath)
			} else {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			for _, line := range configCheckLines(cfg, shouldColorize(out)) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

type configCheck struct {
	label  string
	kind   statusKind
	detail string
}

func configChecks(cfg *config.Config) []configCheck {
	generation := configCheck{"Generation", statusOK, cfg.LLM.Model}
	gen := llm.NewClient(llm.Config{APIKey: cfg.LLM.APIKey, BaseURL: cfg.LLM.BaseURL, Model: cfg.LLM.Model})
	switch {
	case !gen.Configured():
		generation = configCheck{"Generation", statusWarn, "no api key; the hosted endpoint will reject requests"}
	case strings.TrimSpace(cfg.LLM.APIKey) == "":
		generation.detail += " (keyless endpoint)"
	}
	notifications := configCheck{"Notifications", statusInfo, "disabled"}
	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		notifications = configCheck{"Notifications", statusOK, "ntfy"}
	}
	return []configCheck{
		{"Data directory", statusOK, cfg.Paths.DataDir},
		{"Embedding", statusOK, fmt.Sprintf("%s (dimension %d)", cfg.Embedding.Provider, cfg.Store.Dimension)},
		generation,
		{"Instructions", statusInfo, cmp.Or(cfg.Workflow.Instructions, "built-in")},
		notifications,
		{"API token", statusInfo, yesNo(cfg.API.Token != "")},
	}
}

func configCheckLines(cfg *config.Config, colorize bool) []string {
	checks := configChecks(cfg)
	lines := make([]string, len(checks))
	for i, c := range checks {
		lines[i] = renderStatusLine(c.label, c.kind, c.detail, colorize)
	}
	return lines
}
