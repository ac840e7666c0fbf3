package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"quire/internal/artifact"
	"quire/internal/config"
	"quire/internal/hub"
	"quire/internal/logging"
	"quire/internal/metrics"
	"quire/internal/services"
)

// Engine executes the stage sequence for one project at a time per Run.
// It is stateless between runs and safe to share.
type Engine struct {
	agents       Agents
	strategies   Strategies
	logger       *slog.Logger
	tracer       trace.Tracer
	defaultUnits int
	fanoutStart  int
	fanoutEnd    int
	now          func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithStrategies replaces the recovery table.
func WithStrategies(s Strategies) Option {
	return func(e *Engine) { e.strategies = s }
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithDefaultUnits sets the fan-out count used when no plan is readable.
func WithDefaultUnits(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.defaultUnits = n
		}
	}
}

// WithFanoutWindow sets the progress range the fan-out stage interpolates.
func WithFanoutWindow(start, end int) Option {
	return func(e *Engine) {
		if start >= 0 && end <= 100 && start < end {
			e.fanoutStart, e.fanoutEnd = start, end
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine builds an engine around agents.
func NewEngine(agents Agents, opts ...Option) *Engine {
	e := &Engine{
		agents:       agents,
		strategies:   DefaultStrategies(),
		logger:       logging.NewNop(),
		tracer:       metrics.Tracer("workflow"),
		defaultUnits: 12,
		fanoutStart:  stageProgress[StagePlanning],
		fanoutEnd:    90,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.NewComponentLogger(e.logger, "workflow")
	return e
}

// OptionsFromConfig maps the [workflow] section onto engine options.
func OptionsFromConfig(cfg *config.Config) []Option {
	if cfg == nil {
		return nil
	}
	return []Option{
		WithDefaultUnits(cfg.Workflow.DefaultUnits),
		WithFanoutWindow(cfg.Workflow.FanoutStart, cfg.Workflow.FanoutEnd),
	}
}

// Launch starts a run for the project behind h. ctx bounds the run's
// lifetime, not just the call: cancelling it interrupts the run and leaves
// the record running so it can be resumed. A fresh run starts from
// not_started; a resumed run continues a logically running record, skipping
// completed stages and units and keeping progress. Resuming a record that is
// not running returns ErrNotRunning.
func (e *Engine) Launch(ctx context.Context, h *hub.Hub, resume bool) (*Run, error) {
	project := h.Store().Project()
	rec := hub.DefaultStatus()
	if resume {
		rec = h.Status()
		if rec.Status != hub.StatusRunning {
			return nil, fmt.Errorf("%w: project %s is %s", ErrNotRunning, project, rec.Status)
		}
	}

	// A resumed run continues the interrupted run's id so the chapters it
	// already wrote stay part of the manuscript.
	runID := rec.RunID
	if !resume || runID == "" {
		runID = uuid.NewString()
	}
	now := e.now().UTC()
	rec.Status = hub.StatusRunning
	rec.RunID = runID
	rec.EndedAt = nil
	if rec.StartedAt == nil {
		rec.StartedAt = &now
	}

	r := &Run{
		id:      runID,
		project: project,
		hub:     h,
		now:     e.now,
		done:    make(chan struct{}),
		rec:     rec,
	}
	runCtx := services.WithRunID(services.WithProjectID(ctx, project), runID)
	r.logger = logging.WithContext(runCtx, e.logger)
	r.update(runCtx, func(*hub.StatusRecord) {})

	go e.execute(runCtx, r)

	r.logger.Info("workflow started",
		logging.Event("run_start"),
		logging.Bool("resumed", resume),
		logging.Int("progress", rec.Progress),
	)
	return r, nil
}

func (e *Engine) execute(ctx context.Context, r *Run) {
	metrics.RunsActive.Inc()
	defer metrics.RunsActive.Dec()
	defer close(r.done)
	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("workflow panic: %v", p)
			logging.ErrorWithContext(r.logger, "workflow aborted", "run_panic", logging.Error(err))
			r.recordFailure(ctx, &StageError{Stage: Stage(r.Record().CurrentStage), Err: err})
			r.finish(ctx, hub.StatusError)
		}
	}()

	ctx, span := e.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("quire.project_id", r.project),
		attribute.String("quire.run_id", r.id),
	))
	defer span.End()

	start := e.now()
	for _, stage := range stageOrder {
		if ctx.Err() != nil {
			r.logger.Info("workflow interrupted; status left running for resume",
				logging.Event("run_interrupted"),
				logging.Stage(string(stage)),
			)
			return
		}
		if r.Record().StageDone(string(stage)) {
			metrics.StageOutcomes.WithLabelValues(string(stage), "skipped").Inc()
			continue
		}

		var err error
		if stage.FanOut() {
			err = e.runFanOut(ctx, r, stage)
		} else {
			err = e.runLinear(ctx, r, stage)
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			r.logger.Info("workflow interrupted during stage; status left running for resume",
				logging.Event("run_interrupted"),
				logging.Stage(string(stage)),
			)
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.finish(ctx, hub.StatusError)
		logging.ErrorWithContext(r.logger, "workflow failed", "run_failed",
			logging.Stage(string(stage)),
			logging.Hint(services.Hint(err)),
			logging.Duration("run_duration", e.now().Sub(start)),
			logging.Error(err),
		)
		return
	}

	r.finish(ctx, hub.StatusComplete)
	r.logger.Info("workflow complete",
		logging.Event("run_complete"),
		logging.Int("recovered_failures", len(r.Failures())),
		logging.Duration("run_duration", e.now().Sub(start)),
	)
}

// stageLogger tags the engine logger with the ids carried by ctx.
func (e *Engine) stageLogger(ctx context.Context, _ *Run) *slog.Logger {
	return logging.WithContext(ctx, e.logger)
}

// integrate builds the snapshot handed to agents. Failing to store it does
// not block the stage.
func (e *Engine) integrate(ctx context.Context, r *Run) hub.Snapshot {
	snap, err := r.hub.Integrate(ctx)
	if err != nil {
		e.stageLogger(ctx, r).Warn("integrated context not stored",
			logging.Event("integrate_failed"),
			logging.Error(err),
		)
	}
	return snap
}

func (e *Engine) runLinear(ctx context.Context, r *Run, stage Stage) error {
	ctx = services.WithStage(ctx, string(stage))
	logger := e.stageLogger(ctx, r)
	r.setStage(ctx, string(stage))
	logger.Info("stage started", logging.Event("stage_start"))

	started := e.now()
	snap := e.integrate(ctx, r)
	err := e.invoke(ctx, r, Input{Stage: stage, Snapshot: snap})
	if err == nil {
		r.completeStage(ctx, stage, stageProgress[stage])
		metrics.StageOutcomes.WithLabelValues(string(stage), "completed").Inc()
		logger.Info("stage completed",
			logging.Event("stage_complete"),
			logging.Duration("stage_duration", e.now().Sub(started)),
		)
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	serr := &StageError{Stage: stage, Err: err}
	r.recordFailure(ctx, serr)
	logging.ErrorWithContext(logger, "stage failed", "stage_failure",
		logging.Hint(services.Hint(err)),
		logging.Error(err),
	)

	strategy, ok := e.strategies.lookup(stage)
	if !ok {
		metrics.StageOutcomes.WithLabelValues(string(stage), "failed").Inc()
		return serr
	}
	if _, recErr := e.synthesize(ctx, r, strategy, stage, snap, serr); recErr != nil {
		metrics.StageOutcomes.WithLabelValues(string(stage), "failed").Inc()
		return &StageError{Stage: stage, Err: fmt.Errorf("recovery failed: %w (after %w)", recErr, err)}
	}
	r.completeStage(ctx, stage, stageProgress[stage])
	metrics.StageOutcomes.WithLabelValues(string(stage), "recovered").Inc()
	logging.WarnWithContext(logger, "stage recovered with a minimal artifact", "stage_recovered",
		logging.Duration("stage_duration", e.now().Sub(started)),
	)
	return nil
}

func (e *Engine) runFanOut(ctx context.Context, r *Run, stage Stage) error {
	ctx = services.WithStage(ctx, string(stage))
	logger := e.stageLogger(ctx, r)
	r.setStage(ctx, string(stage))

	units := e.unitCount(logger, r.hub)
	logger.Info("stage started",
		logging.Event("stage_start"),
		logging.Int("units", units),
	)
	started := e.now()
	snap := e.integrate(ctx, r)

	succeeded := 0
	for unit := 1; unit <= units; unit++ {
		progress := e.fanoutStart + (e.fanoutEnd-e.fanoutStart)*unit/units
		if r.Record().UnitDone(unit) {
			succeeded++
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		unitCtx := services.WithUnit(ctx, unit)
		err := e.invoke(unitCtx, r, Input{Stage: stage, Unit: unit, Units: units, Snapshot: snap})
		if err == nil {
			succeeded++
			r.completeUnit(ctx, unit, progress)
			metrics.UnitOutcomes.WithLabelValues("completed").Inc()
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.recordFailure(ctx, &StageError{Stage: stage, Unit: unit, Err: err})
		r.advance(ctx, progress)
		metrics.UnitOutcomes.WithLabelValues("failed").Inc()
		logging.WarnWithContext(e.stageLogger(unitCtx, r), "unit failed; skipping", "unit_failed",
			logging.Hint(services.Hint(err)),
			logging.Error(err),
		)
	}

	if succeeded == 0 {
		strategy, ok := e.strategies.lookup(stage)
		if !ok {
			metrics.StageOutcomes.WithLabelValues(string(stage), "failed").Inc()
			return &StageError{Stage: stage, Err: errors.New("every unit failed")}
		}
		cause := &StageError{Stage: stage, Err: fmt.Errorf("all %d units failed", units)}
		if _, err := e.synthesize(ctx, r, strategy, stage, snap, cause); err != nil {
			metrics.StageOutcomes.WithLabelValues(string(stage), "failed").Inc()
			return &StageError{Stage: stage, Err: fmt.Errorf("placeholder unit: %w", err)}
		}
		metrics.UnitOutcomes.WithLabelValues("placeholder").Inc()
		logging.WarnWithContext(logger, "every unit failed; stored a placeholder unit", "unit_placeholder",
			logging.Int("units", units),
		)
	}

	r.completeStage(ctx, stage, e.fanoutEnd)
	outcome := "completed"
	if succeeded < units {
		outcome = "recovered"
	}
	metrics.StageOutcomes.WithLabelValues(string(stage), outcome).Inc()
	logger.Info("stage completed",
		logging.Event("stage_complete"),
		logging.Int("units", units),
		logging.Int("units_succeeded", succeeded),
		logging.Duration("stage_duration", e.now().Sub(started)),
	)
	return nil
}

// unitCount reads the fan-out size from the newest chapter plan and falls
// back to the configured default when no usable plan exists.
func (e *Engine) unitCount(logger *slog.Logger, h *hub.Hub) int {
	if plan, ok := h.ChapterPlan(); ok && len(plan.Units) > 0 {
		return len(plan.Units)
	}
	logging.WarnWithContext(logger, "chapter plan unreadable; using default unit count", "unit_count_fallback",
		logging.Int("units", e.defaultUnits),
		logging.Alert("planning_output_unreadable"),
		logging.Hint("inspect the planning partition; the chapter plan may be missing or malformed"),
	)
	return e.defaultUnits
}

// synthesize stores a recovery artifact tagged with the failure it replaces.
func (e *Engine) synthesize(ctx context.Context, r *Run, strategy Strategy, stage Stage, snap hub.Snapshot, cause error) (string, error) {
	entry, err := strategy.Synthesize(ctx, SynthesisInput{
		ProjectID: r.project,
		Stage:     stage,
		Units:     e.defaultUnits,
		Snapshot:  snap,
		Err:       cause,
	})
	if err != nil {
		return "", err
	}
	entry.Partition = stage.Partition()
	entry = entry.
		With(artifact.AttrRun, r.id).
		With(artifact.AttrRecovery, "true").
		With(artifact.AttrRecovered, string(stage)).
		With(artifact.AttrError, cause.Error())
	id, err := r.hub.Store().Put(ctx, entry)
	if err != nil && !errors.Is(err, artifact.ErrPersist) {
		return "", err
	}
	return id, nil
}

// invoke runs the stage agent in a span, converting panics into errors.
func (e *Engine) invoke(ctx context.Context, r *Run, in Input) (err error) {
	agent := e.agents[in.Stage]
	if agent == nil {
		return services.Wrap(services.ErrConfiguration, string(in.Stage), "invoke agent", "no agent registered", nil)
	}
	in.ProjectID = r.project
	in.RunID = r.id
	in.Store = r.hub.Store()
	in.Hub = r.hub
	in.Logger = e.stageLogger(ctx, r)

	name := "stage." + string(in.Stage)
	attrs := []attribute.KeyValue{attribute.String("quire.stage", string(in.Stage))}
	if in.Unit > 0 {
		attrs = append(attrs, attribute.Int("quire.unit", in.Unit))
		name += ".unit_" + strconv.Itoa(in.Unit)
	}
	ctx, span := e.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	started := e.now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("agent panic: %v", p)
		}
		metrics.StageDuration.WithLabelValues(string(in.Stage)).Observe(e.now().Sub(started).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ids, err := agent.Run(ctx, in)
	if err == nil {
		in.Logger.Debug("agent finished", logging.Int("documents", len(ids)))
	}
	return err
}
