package workflow_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"quire/internal/artifact"
	"quire/internal/hub"
	"quire/internal/services/embedding"
	"quire/internal/testsupport"
	"quire/internal/workflow"
)

type staticOpener map[string]*hub.Hub

func (o staticOpener) Hub(_ context.Context, projectID string) (*hub.Hub, error) {
	h, ok := o[projectID]
	if !ok {
		return nil, errors.New("unknown project " + projectID)
	}
	return h, nil
}

// gatedAgents blocks the cast stage until release is closed or the run's
// context ends.
func gatedAgents(s *script, entered chan<- struct{}, release <-chan struct{}) workflow.Agents {
	agents := s.agents()
	agents[workflow.StageCast] = workflow.AgentFunc(func(ctx context.Context, in workflow.Input) ([]string, error) {
		select {
		case entered <- struct{}{}:
		default:
		}
		select {
		case <-release:
			return s.run(ctx, in)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	return agents
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for the gated stage")
	}
}

func waitRun(t *testing.T, run *workflow.Run) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := run.Wait(ctx); err != nil {
		t.Fatalf("run did not finish: %v", err)
	}
}

func TestRegistryRejectsConcurrentStart(t *testing.T) {
	h := newProject(t)
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	s := &script{units: 1}
	reg := workflow.NewRegistry(context.Background(), workflow.NewEngine(gatedAgents(s, entered, release)), staticOpener{"lighthouse": h}, nil)
	t.Cleanup(func() { _ = reg.Close(context.Background()) })

	run, err := reg.Start(context.Background(), "lighthouse")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, entered)

	if _, err := reg.Start(context.Background(), "lighthouse"); !errors.Is(err, workflow.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	same, err := reg.Reset(context.Background(), "lighthouse")
	if err != nil || same != run {
		t.Fatalf("reset of a live run should return it unchanged: %v", err)
	}

	view, err := reg.Status(context.Background(), "lighthouse")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !view.Alive || view.Status != hub.StatusRunning || view.CurrentStage != "cast" {
		t.Fatalf("unexpected live view %+v", view)
	}

	close(release)
	waitRun(t, run)
	if got := h.Status().Status; got != hub.StatusComplete {
		t.Fatalf("status = %s", got)
	}
}

func TestRegistryCloseLeavesRunResumable(t *testing.T) {
	h := newProject(t)
	entered := make(chan struct{}, 1)
	s := &script{units: 2}
	reg := workflow.NewRegistry(context.Background(), workflow.NewEngine(gatedAgents(s, entered, nil)), staticOpener{"lighthouse": h}, nil)

	if _, err := reg.Start(context.Background(), "lighthouse"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, entered)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := reg.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	view := workflow.Status(h)
	if view.Status != hub.StatusRunning || view.Alive || !view.Stale() {
		t.Fatalf("interrupted run should look stale: %+v", view)
	}
	if len(view.CompletedStages) != 2 {
		t.Fatalf("completed stages = %v", view.CompletedStages)
	}

	// A second daemon resumes it.
	release := make(chan struct{})
	close(release)
	next := workflow.NewRegistry(context.Background(), workflow.NewEngine(gatedAgents(s, make(chan struct{}, 1), release)), staticOpener{"lighthouse": h}, nil)
	t.Cleanup(func() { _ = next.Close(context.Background()) })
	run, err := next.Reset(context.Background(), "lighthouse")
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	waitRun(t, run)

	if got := h.Status(); got.Status != hub.StatusComplete || got.Progress != 100 {
		t.Fatalf("resumed run did not complete: %+v", got)
	}
	if n := s.count("ideation"); n != 1 {
		t.Fatalf("ideation ran %d times, want 1", n)
	}
}

func TestRegistryResetWithoutRunningRecord(t *testing.T) {
	h := newProject(t)
	s := &script{units: 1}
	reg := workflow.NewRegistry(context.Background(), workflow.NewEngine(s.agents()), staticOpener{"lighthouse": h}, nil)
	t.Cleanup(func() { _ = reg.Close(context.Background()) })

	if _, err := reg.Reset(context.Background(), "lighthouse"); !errors.Is(err, workflow.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
	if _, err := reg.Start(context.Background(), "missing"); err == nil {
		t.Fatalf("expected an error for an unknown project")
	}

	run, err := reg.Start(context.Background(), "lighthouse")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitRun(t, run)

	// The entry is reaped once the goroutine exits.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := reg.Get("lighthouse"); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("finished run still registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	view, err := reg.Status(context.Background(), "lighthouse")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if view.Status != hub.StatusComplete || view.StageLabel != "Complete" || view.Alive {
		t.Fatalf("unexpected view %+v", view)
	}

	// Finished projects can be started again from scratch.
	again, err := reg.Start(context.Background(), "lighthouse")
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	waitRun(t, again)
	if s.count("ideation") != 2 {
		t.Fatalf("fresh run did not restart from ideation")
	}
}

func TestRegistryOnFinishSeesFinalRecord(t *testing.T) {
	h := newProject(t)
	s := &script{units: 1}
	reg := workflow.NewRegistry(context.Background(), workflow.NewEngine(s.agents()), staticOpener{"lighthouse": h}, nil)
	t.Cleanup(func() { _ = reg.Close(context.Background()) })

	finished := make(chan hub.StatusRecord, 1)
	reg.OnFinish(func(run *workflow.Run) { finished <- run.Record() })

	if _, err := reg.Start(context.Background(), "lighthouse"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case rec := <-finished:
		if rec.Status != hub.StatusComplete || rec.EndedAt == nil {
			t.Fatalf("unexpected final record %+v", rec)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("finish hook never ran")
	}
}

func TestRegistryStaysResponsiveWhileLaunching(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	hasher := embedding.NewHasher(cfg.Store.Dimension)
	var blocked atomic.Bool
	// The first write of the harbor project is the initial status record
	// Launch persists before returning.
	slow := artifact.EmbedderFunc(func(ctx context.Context, text string) ([]float64, error) {
		if blocked.CompareAndSwap(false, true) {
			close(entered)
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return hasher.Embed(ctx, text)
	})
	store, err := artifact.Open(context.Background(), cfg.ProjectDir("harbor"), slow, artifact.OptionsFromConfig(cfg, nil))
	if err != nil {
		t.Fatalf("artifact.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	s := &script{units: 1}
	opener := staticOpener{"harbor": hub.New(store, nil), "lighthouse": newProject(t)}
	reg := workflow.NewRegistry(context.Background(), workflow.NewEngine(s.agents()), opener, nil)
	t.Cleanup(func() { _ = reg.Close(context.Background()) })

	type started struct {
		run *workflow.Run
		err error
	}
	result := make(chan started, 1)
	go func() {
		run, err := reg.Start(context.Background(), "harbor")
		result <- started{run: run, err: err}
	}()
	waitFor(t, entered)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := reg.Status(context.Background(), "lighthouse"); err != nil {
			t.Errorf("Status: %v", err)
		}
		if runs := reg.List(); len(runs) != 0 {
			t.Errorf("List while launching = %d runs, want 0", len(runs))
		}
		if _, err := reg.Start(context.Background(), "harbor"); !errors.Is(err, workflow.ErrAlreadyRunning) {
			t.Errorf("second Start while launching: expected ErrAlreadyRunning, got %v", err)
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("registry calls blocked behind a launching project")
	}

	close(release)
	got := <-result
	if got.err != nil {
		t.Fatalf("Start: %v", got.err)
	}
	waitRun(t, got.run)
	if view, err := reg.Status(context.Background(), "harbor"); err != nil || view.Status != hub.StatusComplete {
		t.Fatalf("final view = %+v, %v", view, err)
	}
}
