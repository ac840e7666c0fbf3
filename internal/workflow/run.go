package workflow

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"quire/internal/hub"
	"quire/internal/logging"
)

// Run coordinates one project's execution. Its goroutine is the only writer
// of the project's status record while it is alive.
type Run struct {
	id      string
	project string
	hub     *hub.Hub
	logger  *slog.Logger
	now     func() time.Time

	done chan struct{}

	mu       sync.Mutex
	rec      hub.StatusRecord
	failures []error
}

// ID returns the run id.
func (r *Run) ID() string { return r.id }

// Project returns the project id.
func (r *Run) Project() string { return r.project }

// Hub returns the project's aggregation view.
func (r *Run) Hub() *hub.Hub { return r.hub }

// Done is closed when the run's goroutine exits.
func (r *Run) Done() <-chan struct{} { return r.done }

// Alive reports whether the goroutine is still executing.
func (r *Run) Alive() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// Running reports the logical running flag.
func (r *Run) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec.Status == hub.StatusRunning
}

// Complete reports whether the run finished successfully.
func (r *Run) Complete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec.Status == hub.StatusComplete
}

// Errors returns the diagnostics collected so far.
func (r *Run) Errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.rec.Errors)
}

// Failures returns the stage errors collected so far, recovered or not.
func (r *Run) Failures() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.failures)
}

// Record returns a copy of the run's in-memory status record.
func (r *Run) Record() hub.StatusRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec.Clone()
}

// Wait blocks until the run exits or ctx is done.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// update applies fn to the record and persists the result. Persistence
// failures are logged; the in-memory record stays authoritative for the run.
func (r *Run) update(ctx context.Context, fn func(rec *hub.StatusRecord)) {
	r.mu.Lock()
	fn(&r.rec)
	r.rec.UpdatedAt = time.Time{}
	rec := r.rec.Clone()
	r.mu.Unlock()

	written, err := r.hub.UpdateStatus(ctx, rec)
	if err != nil {
		r.logger.Warn("status record not persisted",
			logging.Event("status_persist_failed"),
			logging.Hint("the run continues; status readers may see stale progress"),
			logging.Error(err),
		)
	}
	r.mu.Lock()
	r.rec.UpdatedAt = written.UpdatedAt
	r.mu.Unlock()
}

func (r *Run) setStage(ctx context.Context, stage string) {
	r.update(ctx, func(rec *hub.StatusRecord) {
		rec.CurrentStage = stage
	})
}

// advance raises progress; it never lowers it.
func (r *Run) advance(ctx context.Context, progress int) {
	r.update(ctx, func(rec *hub.StatusRecord) {
		rec.Progress = max(rec.Progress, min(progress, 100))
	})
}

func (r *Run) completeStage(ctx context.Context, stage Stage, progress int) {
	r.update(ctx, func(rec *hub.StatusRecord) {
		if !rec.StageDone(string(stage)) {
			rec.CompletedStages = append(rec.CompletedStages, string(stage))
		}
		rec.Progress = max(rec.Progress, min(progress, 100))
	})
}

func (r *Run) completeUnit(ctx context.Context, unit, progress int) {
	r.update(ctx, func(rec *hub.StatusRecord) {
		if !rec.UnitDone(unit) {
			rec.CompletedUnits = append(rec.CompletedUnits, unit)
		}
		rec.Progress = max(rec.Progress, min(progress, 100))
	})
}

// recordFailure keeps the typed error and persists its diagnostic. A
// stage-level failure also moves current_stage to error_<stage>.
func (r *Run) recordFailure(ctx context.Context, serr *StageError) {
	r.mu.Lock()
	r.failures = append(r.failures, serr)
	r.mu.Unlock()
	r.update(ctx, func(rec *hub.StatusRecord) {
		rec.Errors = append(rec.Errors, serr.Error())
		if serr.Unit == 0 {
			rec.CurrentStage = serr.Stage.errorLabel()
		}
	})
}

func (r *Run) finish(ctx context.Context, status string) {
	now := r.now().UTC()
	r.update(ctx, func(rec *hub.StatusRecord) {
		rec.Status = status
		rec.EndedAt = &now
		if status == hub.StatusComplete {
			rec.Progress = 100
			rec.CurrentStage = string(StageComplete)
		}
	})
}
