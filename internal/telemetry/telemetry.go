// Package telemetry exposes sitrep's own runtime counters in prometheus
// format: sampling ticks, background action outcomes, and streamed log lines.
package telemetry

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rileyhilliard/sitrep/internal/action"
	"github.com/rileyhilliard/sitrep/internal/errors"
	"github.com/rileyhilliard/sitrep/internal/logger"
)

const namespace = "sitrep"

// Result labels for action outcomes.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds every sitrep collector on a private registry, so tests and
// multiple dashboards never collide on the global one.
type Metrics struct {
	reg *prometheus.Registry

	ticks        prometheus.Counter
	tickDuration prometheus.Histogram
	actions      *prometheus.CounterVec
	actionTime   *prometheus.HistogramVec
	logLines     *prometheus.CounterVec
}

// New creates the registry and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &Metrics{
		reg: reg,
		ticks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Sampling ticks completed",
		}),
		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one sampling tick",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		actions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Background actions finished, by executor, kind and result",
		}, []string{"executor", "kind", "result"}),
		actionTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "Wall time of background actions",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 8),
		}, []string{"executor", "kind"}),
		logLines: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_lines_total",
			Help:      "Log lines drained into view buffers",
		}, []string{"stream"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// ObserveTick records one completed sampling tick. It matches the monitor's
// OnTick hook.
func (m *Metrics) ObserveTick(took time.Duration) {
	m.ticks.Inc()
	m.tickDuration.Observe(took.Seconds())
}

// ObserveAction records a finished background action. It matches the
// executor's observer hook.
func (m *Metrics) ObserveAction(executor string, o action.Outcome) {
	result := ResultOK
	if !o.OK() {
		result = ResultError
	}
	kind := "unknown"
	if o.Request.Kind != "" {
		kind = o.Request.Kind
	}
	m.actions.WithLabelValues(executor, kind, result).Inc()
	m.actionTime.WithLabelValues(executor, kind).Observe(o.Elapsed.Seconds())
}

// LogLines returns a hook that counts lines drained from the named stream.
func (m *Metrics) LogLines(stream string) func(int) {
	counter := m.logLines.WithLabelValues(stream)
	return func(n int) {
		counter.Add(float64(n))
	}
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve listens on addr and serves /metrics until ctx is cancelled. The
// returned address is the one actually bound, which differs from addr when
// it names port 0.
func (m *Metrics) Serve(ctx context.Context, addr string, log logger.Logger) (string, error) {
	if log == nil {
		log = logger.Noop()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't listen on "+addr,
			"Pick a free address for metrics.addr, or leave it empty to disable the endpoint.")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("serving metrics on http://%s/metrics", ln.Addr())
	return ln.Addr().String(), nil
}
