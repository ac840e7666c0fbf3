package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"quire/internal/api"
	"quire/internal/config"
	"quire/internal/logging"
	"quire/internal/project"
	"quire/internal/projectaccess"
	"quire/internal/services/embedding"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		if exists {
			c.configPath = resolved
		}
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// dial builds an API client for the configured daemon address.
func (c *commandContext) dial() (*api.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return api.NewClient(cfg.APIBaseURL(), cfg.API.Token)
}

// openCatalog opens project stores directly, bypassing the daemon.
func (c *commandContext) openCatalog() (*project.Catalog, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	embedder, err := embedding.New(cfg.Embedding, cfg.Store.Dimension)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	return project.NewCatalog(cfg, embedder, logging.NewNop()), nil
}

func (c *commandContext) withAccess(ctx context.Context, fn func(projectaccess.Access) error) error {
	session, err := projectaccess.OpenWithFallback(ctx, c.dial, c.openCatalog)
	if err != nil {
		return err
	}
	defer session.Close()
	return fn(session.Access)
}

// withClient requires a live daemon.
func (c *commandContext) withClient(ctx context.Context, fn func(*api.Client) error) error {
	client, err := c.dial()
	if err == nil {
		_, err = client.Daemon(ctx)
	}
	if err != nil {
		return wrapDialError(err, c.configValue())
	}
	return fn(client)
}

func wrapDialError(err error, cfg *config.Config) error {
	addr := ""
	if cfg != nil {
		addr = cfg.API.Bind
	}
	var statusErr *api.StatusError
	switch {
	case api.IsUnavailable(err):
		return fmt.Errorf("connect to daemon at %s: not running; start it with `quire start`", addr)
	case errors.As(err, &statusErr) && statusErr.Code == http.StatusUnauthorized:
		return fmt.Errorf("connect to daemon at %s: unauthorized; check api.token", addr)
	default:
		return fmt.Errorf("connect to daemon: %w", err)
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
