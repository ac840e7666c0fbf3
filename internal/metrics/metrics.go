// Package metrics exposes quire's Prometheus collectors and the tracer used
// for stage and unit spans.
//
// Collectors register on a package-owned registry rather than the global
// default so tests and embedded uses stay isolated. Handler serves that
// registry for the daemon's /metrics endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Registry holds every quire collector.
var Registry = prometheus.NewRegistry()

var (
	ArtifactPuts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quire_artifact_puts_total",
			Help: "Documents written to artifact stores by partition",
		},
		[]string{"partition"},
	)
	EmbedRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quire_artifact_embed_retries_total",
			Help: "Embedding attempts that failed and were retried",
		},
	)
	EmbedFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quire_artifact_embed_failures_total",
			Help: "Writes or searches abandoned after exhausting embedding attempts",
		},
	)
	CheckpointDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quire_artifact_checkpoint_duration_seconds",
			Help:    "Time to write and swap in an artifact store snapshot",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
	)
	CheckpointFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quire_artifact_checkpoint_failures_total",
			Help: "Checkpoints that failed after exhausting persist attempts",
		},
	)
	RunsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quire_workflow_runs_active",
			Help: "Workflow runs whose goroutine is currently alive",
		},
	)
	StageOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quire_workflow_stages_total",
			Help: "Stage executions by stage and outcome (completed, recovered, failed, skipped)",
		},
		[]string{"stage", "outcome"},
	)
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quire_workflow_stage_duration_seconds",
			Help:    "Wall time of stage executions",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 14), // 0.5s to ~68m
		},
		[]string{"stage"},
	)
	UnitOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quire_workflow_units_total",
			Help: "Fan-out unit executions by outcome (completed, failed, placeholder)",
		},
		[]string{"outcome"},
	)
	GenerationRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quire_generation_requests_total",
			Help: "Generation service requests by outcome (ok, retried, failed)",
		},
		[]string{"outcome"},
	)
	GenerationTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quire_generation_tokens_total",
			Help: "Tokens reported by the generation service, by kind (prompt, completion)",
		},
		[]string{"kind"},
	)
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quire_api_requests_total",
			Help: "Daemon API requests by route pattern and status code",
		},
		[]string{"route", "code"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		ArtifactPuts,
		EmbedRetries,
		EmbedFailures,
		CheckpointDuration,
		CheckpointFailures,
		RunsActive,
		StageOutcomes,
		StageDuration,
		UnitOutcomes,
		GenerationRequests,
		GenerationTokens,
		APIRequests,
	)
}

// Handler serves the quire registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// Tracer returns the named tracer from the global provider. Without an SDK
// installed the spans are no-ops.
func Tracer(name string) trace.Tracer {
	return otel.Tracer("quire/" + name)
}
