package project

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"quire/internal/artifact"
	"quire/internal/config"
	"quire/internal/hub"
	"quire/internal/logging"
	"quire/internal/services"
	"quire/internal/textutil"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("project catalog closed")

// Params are the creation parameters of a new project.
type Params struct {
	Title         string `json:"title"`
	Genre         string `json:"genre,omitempty"`
	TargetLength  string `json:"target_length,omitempty"`
	Complexity    string `json:"complexity,omitempty"`
	InitialPrompt string `json:"initial_prompt,omitempty"`
}

// Summary describes one project found on disk.
type Summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	Open      bool      `json:"open"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type handle struct {
	store *artifact.Store
	hub   *hub.Hub
}

// Catalog opens and caches project stores.
type Catalog struct {
	cfg      *config.Config
	embedder artifact.Embedder
	logger   *slog.Logger

	mu     sync.Mutex
	open   map[string]*handle
	closed bool
}

// NewCatalog builds a catalog over cfg's projects directory.
func NewCatalog(cfg *config.Config, embedder artifact.Embedder, logger *slog.Logger) *Catalog {
	return &Catalog{
		cfg:      cfg,
		embedder: embedder,
		logger:   logging.NewComponentLogger(logger, "catalog"),
		open:     make(map[string]*handle),
	}
}

// ValidateID rejects ids that are not a single safe path segment.
func ValidateID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return services.Wrap(services.ErrValidation, "", "project id", fmt.Sprintf("invalid project id %q", id), nil)
	}
	return nil
}

// NewID derives a readable unique id from a title.
func NewID(title string) string {
	return textutil.Slug(title, 40) + "-" + uuid.NewString()[:8]
}

// Exists reports whether the project has a directory on disk.
func (c *Catalog) Exists(id string) bool {
	if ValidateID(id) != nil {
		return false
	}
	info, err := os.Stat(c.cfg.ProjectDir(id))
	return err == nil && info.IsDir()
}

// Hub returns the project's hub, opening its store on first use. Unknown
// projects fail with services.ErrNotFound.
func (c *Catalog) Hub(ctx context.Context, id string) (*hub.Hub, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if h, ok := c.open[id]; ok {
		return h.hub, nil
	}
	if !c.Exists(id) {
		return nil, services.Wrap(services.ErrNotFound, "", "open project", fmt.Sprintf("project %s not found", id), nil)
	}
	return c.openLocked(ctx, id)
}

func (c *Catalog) openLocked(ctx context.Context, id string) (*hub.Hub, error) {
	logger := c.logger.With(logging.Project(id))
	store, err := artifact.Open(ctx, c.cfg.ProjectDir(id), c.embedder, artifact.OptionsFromConfig(c.cfg, logger))
	if err != nil {
		return nil, fmt.Errorf("open project %s: %w", id, err)
	}
	h := hub.New(store, c.logger)
	c.open[id] = &handle{store: store, hub: h}
	logger.Debug("project opened", logging.Int("documents", store.Stats().Documents))
	return h, nil
}

// Create makes a new project directory and stores its configuration.
func (c *Catalog) Create(ctx context.Context, p Params) (string, hub.ProjectConfig, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return "", hub.ProjectConfig{}, services.Wrap(services.ErrValidation, "", "create project", "title required", nil)
	}
	if strings.TrimSpace(p.TargetLength) != "" && !hub.KnownTargetLength(p.TargetLength) {
		return "", hub.ProjectConfig{}, services.Wrap(services.ErrValidation, "", "create project", fmt.Sprintf("unknown target length %q", p.TargetLength), nil)
	}

	id := NewID(title)
	if err := os.MkdirAll(c.cfg.ProjectDir(id), 0o755); err != nil {
		return "", hub.ProjectConfig{}, fmt.Errorf("create project directory: %w", err)
	}
	h, err := c.Hub(ctx, id)
	if err != nil {
		return "", hub.ProjectConfig{}, err
	}
	saved, err := h.SaveProjectConfig(ctx, hub.ProjectConfig{
		Title:         title,
		Genre:         strings.TrimSpace(p.Genre),
		TargetLength:  strings.ToLower(strings.TrimSpace(p.TargetLength)),
		Complexity:    strings.TrimSpace(p.Complexity),
		InitialPrompt: strings.TrimSpace(p.InitialPrompt),
	})
	if err != nil {
		return id, saved, fmt.Errorf("store project config: %w", err)
	}
	c.logger.Info("project created",
		logging.Project(id),
		logging.Event("project_created"),
		logging.String("target_length", saved.TargetLength),
	)
	return id, saved, nil
}

// List returns every project on disk ordered by id. Projects this catalog
// has open report their live status; the others are opened briefly to read
// it, and are reported without status when another process holds them.
func (c *Catalog) List(ctx context.Context) ([]Summary, error) {
	entries, err := os.ReadDir(c.cfg.ProjectsDir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list projects: %w", err)
	}
	out := make([]Summary, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || ValidateID(entry.Name()) != nil {
			continue
		}
		out = append(out, c.describe(ctx, entry.Name()))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *Catalog) describe(ctx context.Context, id string) Summary {
	summary := Summary{ID: id, Status: hub.StatusNotStarted}
	c.mu.Lock()
	h, open := c.open[id]
	c.mu.Unlock()
	if open {
		fill(&summary, h.hub)
		summary.Open = true
		return summary
	}

	store, err := artifact.Open(ctx, c.cfg.ProjectDir(id), c.embedder, artifact.OptionsFromConfig(c.cfg, logging.NewNop()))
	if err != nil {
		summary.Status = "unavailable"
		if !errors.Is(err, artifact.ErrLocked) {
			c.logger.Debug("project not readable", logging.Project(id), logging.Error(err))
		}
		return summary
	}
	defer store.Close()
	fill(&summary, hub.New(store, nil))
	return summary
}

func fill(s *Summary, h *hub.Hub) {
	rec := h.Status()
	s.Status = rec.Status
	s.Progress = rec.Progress
	s.UpdatedAt = rec.UpdatedAt
	if cfg, ok := h.ProjectConfig(); ok {
		s.Title = cfg.Title
	}
}

// Release closes one project's store and forgets it.
func (c *Catalog) Release(id string) error {
	c.mu.Lock()
	h, ok := c.open[id]
	delete(c.open, id)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return h.store.Close()
}

// Close closes every open store. The catalog rejects further use.
func (c *Catalog) Close() error {
	c.mu.Lock()
	c.closed = true
	open := c.open
	c.open = map[string]*handle{}
	c.mu.Unlock()

	var errs []error
	for id, h := range open {
		if err := h.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Dir returns the directory backing a project.
func (c *Catalog) Dir(id string) string {
	return filepath.Clean(c.cfg.ProjectDir(id))
}
