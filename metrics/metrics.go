package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/cnosuke/imgcheck/types"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics collects check instrumentation on its own registry.
type Metrics struct {
	Registry *prometheus.Registry

	checks   *prometheus.CounterVec
	retries  *prometheus.CounterVec
	inFlight prometheus.Gauge
	duration prometheus.Histogram
}

// New registers the imgcheck collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imgcheck_checks_total",
			Help: "Resolved URL checks by status.",
		}, []string{"status"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imgcheck_retries_total",
			Help: "Retries by the outcome that caused them.",
		}, []string{"status", "code"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "imgcheck_inflight_checks",
			Help: "Checks currently holding a concurrency token.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "imgcheck_check_duration_seconds",
			Help:    "Time spent resolving one URL, retries included.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40},
		}),
	}
	reg.MustRegister(m.checks, m.retries, m.inFlight, m.duration)
	return m
}

func (m *Metrics) ObserveResult(r types.CheckResult, d time.Duration) {
	m.checks.WithLabelValues(string(r.Status)).Inc()
	m.duration.Observe(d.Seconds())
}

func (m *Metrics) ObserveRetry(status types.Status, code int) {
	m.retries.WithLabelValues(string(status), strconv.Itoa(code)).Inc()
}

func (m *Metrics) InFlight(delta int) {
	m.inFlight.Add(float64(delta))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.S().Infow("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "metrics server failed")
	}
	return nil
}
