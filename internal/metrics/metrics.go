// Package metrics provides Prometheus-based recording of pipeline activity.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives pipeline measurements.
type Recorder interface {
	// ObserveStage records one stage invocation and its outcome
	// ("advanced", "accepted", "rejected", "failed", "stopped").
	ObserveStage(stage, provider, outcome string, duration time.Duration)
	// ObserveCost records the USD cost a tool reported for an invocation.
	ObserveCost(stage, provider string, usd float64)
	// ObserveRating records an audit rating.
	ObserveRating(provider string, rating int)
	// ObserveRun records a finished task run by terminal status.
	ObserveRun(status string, hardStop bool)
}

// Nop discards all measurements.
type Nop struct{}

func (Nop) ObserveStage(string, string, string, time.Duration) {}
func (Nop) ObserveCost(string, string, float64)                 {}
func (Nop) ObserveRating(string, int)                           {}
func (Nop) ObserveRun(string, bool)                             {}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stagesTotal   *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	costsTotal    *prometheus.CounterVec
	auditRatings  *prometheus.HistogramVec
	runsTotal     *prometheus.CounterVec
}

// NewPrometheusRecorder registers the pipeline metrics on reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		stagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskflow_stage_runs_total",
				Help: "Stage invocations by stage, provider and outcome",
			},
			[]string{"stage", "provider", "outcome"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskflow_stage_duration_seconds",
				Help:    "Wall-clock duration of stage invocations",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600},
			},
			[]string{"stage", "provider"},
		),
		costsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskflow_cost_usd_total",
				Help: "Total cost in USD reported by agent tools",
			},
			[]string{"stage", "provider"},
		),
		auditRatings: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskflow_audit_rating",
				Help:    "Audit ratings parsed from auditor output",
				Buckets: prometheus.LinearBuckets(1, 1, 10),
			},
			[]string{"provider"},
		),
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskflow_task_runs_total",
				Help: "Finished task runs by terminal status",
			},
			[]string{"status", "hard_stop"},
		),
	}
}

func (p *PrometheusRecorder) ObserveStage(stage, provider, outcome string, duration time.Duration) {
	p.stagesTotal.WithLabelValues(stage, provider, outcome).Inc()
	p.stageDuration.WithLabelValues(stage, provider).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) ObserveCost(stage, provider string, usd float64) {
	if usd > 0 {
		p.costsTotal.WithLabelValues(stage, provider).Add(usd)
	}
}

func (p *PrometheusRecorder) ObserveRating(provider string, rating int) {
	p.auditRatings.WithLabelValues(provider).Observe(float64(rating))
}

func (p *PrometheusRecorder) ObserveRun(status string, hardStop bool) {
	hs := "false"
	if hardStop {
		hs = "true"
	}
	p.runsTotal.WithLabelValues(status, hs).Inc()
}

// NewRegistry returns a registry preloaded with the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Serve exposes reg on addr at /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
