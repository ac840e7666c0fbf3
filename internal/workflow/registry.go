package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"quire/internal/hub"
	"quire/internal/logging"
)

// HubOpener resolves a project id to its aggregation view.
type HubOpener interface {
	Hub(ctx context.Context, projectID string) (*hub.Hub, error)
}

// Registry tracks the live run of each project. Runs are inserted on start
// and removed when their goroutine exits.
type Registry struct {
	engine *Engine
	opener HubOpener
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	runs     map[string]*Run
	starting map[string]bool
	onFinish func(*Run)
}

// NewRegistry builds a registry whose runs live until parent is cancelled or
// Close is called.
func NewRegistry(parent context.Context, engine *Engine, opener HubOpener, logger *slog.Logger) *Registry {
	ctx, cancel := context.WithCancel(parent)
	return &Registry{
		engine:   engine,
		opener:   opener,
		logger:   logging.NewComponentLogger(logger, "registry"),
		ctx:      ctx,
		cancel:   cancel,
		runs:     make(map[string]*Run),
		starting: make(map[string]bool),
	}
}

// Start begins a fresh run. It fails with ErrAlreadyRunning while a live
// run exists for the project.
func (g *Registry) Start(ctx context.Context, projectID string) (*Run, error) {
	return g.launch(ctx, projectID, false)
}

// Reset replaces a dead but logically running project with a fresh run that
// resumes from the status record. A healthy live run is returned unchanged.
// A record that is not running yields ErrNotRunning.
func (g *Registry) Reset(ctx context.Context, projectID string) (*Run, error) {
	g.mu.Lock()
	if run, ok := g.runs[projectID]; ok && run.Alive() {
		g.mu.Unlock()
		g.logger.Debug("reset ignored; run is alive", logging.Project(projectID))
		return run, nil
	}
	g.mu.Unlock()
	return g.launch(ctx, projectID, true)
}

func (g *Registry) launch(ctx context.Context, projectID string, resume bool) (*Run, error) {
	if err := g.ctx.Err(); err != nil {
		return nil, fmt.Errorf("registry closed: %w", err)
	}
	h, err := g.opener.Hub(ctx, projectID)
	if err != nil {
		return nil, err
	}

	// Launch runs unlocked; starting keeps the project reserved meanwhile.
	g.mu.Lock()
	if err := g.ctx.Err(); err != nil {
		g.mu.Unlock()
		return nil, fmt.Errorf("registry closed: %w", err)
	}
	if run, ok := g.runs[projectID]; (ok && run.Alive()) || g.starting[projectID] {
		g.mu.Unlock()
		return nil, fmt.Errorf("%w: project %s", ErrAlreadyRunning, projectID)
	}
	g.starting[projectID] = true
	g.wg.Add(1)
	g.mu.Unlock()

	run, err := g.engine.Launch(g.ctx, h, resume)

	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.starting, projectID)
	if err != nil {
		g.wg.Done()
		return nil, err
	}
	g.runs[projectID] = run
	go g.reap(projectID, run)
	return run, nil
}

// OnFinish registers fn to be called from the run's reaper after each run
// exits. A nil fn clears the hook.
func (g *Registry) OnFinish(fn func(*Run)) {
	g.mu.Lock()
	g.onFinish = fn
	g.mu.Unlock()
}

func (g *Registry) reap(projectID string, run *Run) {
	defer g.wg.Done()
	<-run.Done()
	g.mu.Lock()
	if g.runs[projectID] == run {
		delete(g.runs, projectID)
	}
	fn := g.onFinish
	g.mu.Unlock()
	if fn != nil {
		fn(run)
	}
}

// Get returns the project's registered run.
func (g *Registry) Get(projectID string) (*Run, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	run, ok := g.runs[projectID]
	return run, ok
}

// List returns registered runs ordered by project id.
func (g *Registry) List() []*Run {
	g.mu.Lock()
	runs := make([]*Run, 0, len(g.runs))
	for _, run := range g.runs {
		runs = append(runs, run)
	}
	g.mu.Unlock()
	sort.Slice(runs, func(i, j int) bool { return runs[i].Project() < runs[j].Project() })
	return runs
}

// Evict drops the project's entry without touching its goroutine.
func (g *Registry) Evict(projectID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.runs[projectID]; !ok {
		return false
	}
	delete(g.runs, projectID)
	return true
}

// Status reports the project's state, preferring the live run's in-memory
// record over the stored one.
func (g *Registry) Status(ctx context.Context, projectID string) (View, error) {
	if run, ok := g.Get(projectID); ok {
		return NewView(run.Record(), run.Alive()), nil
	}
	h, err := g.opener.Hub(ctx, projectID)
	if err != nil {
		return View{}, err
	}
	return Status(h), nil
}

// Close interrupts every run and waits for their goroutines to exit.
// Interrupted runs keep a running status record and can be resumed later
// with Reset.
func (g *Registry) Close(ctx context.Context) error {
	g.cancel()
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
