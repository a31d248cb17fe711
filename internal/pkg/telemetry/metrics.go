// Package telemetry holds the process-wide Prometheus metrics and OpenTelemetry tracer.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kshai"

var (
	metricTurns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "turns_total",
		Help:      "Conversation turns by how they ended.",
	}, []string{"outcome"})
	metricGateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gate_decisions_total",
		Help:      "Permission gate decisions by verdict and deciding rule.",
	}, []string{"verdict", "source"})
	metricCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_total",
		Help:      "Dispatched commands by outcome.",
	}, []string{"outcome"})
	metricCommandDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "command_duration_seconds",
		Help:      "Wall time of dispatched commands.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})
	metricProviderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_errors_total",
		Help:      "Fatal provider errors by transport class.",
	}, []string{"provider", "kind"})
	metricHistoryMessages = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "history_messages",
		Help:      "Messages in the active session history.",
	})
)

// RecordTurn counts a finished turn.
func RecordTurn(outcome string) {
	metricTurns.WithLabelValues(outcome).Inc()
}

// RecordGateDecision counts a gate ruling.
func RecordGateDecision(verdict, source string) {
	metricGateDecisions.WithLabelValues(verdict, source).Inc()
}

// RecordCommand counts a dispatched command and its duration.
func RecordCommand(outcome string, d time.Duration) {
	metricCommands.WithLabelValues(outcome).Inc()
	metricCommandDuration.Observe(d.Seconds())
}

// RecordProviderError counts a fatal provider error.
func RecordProviderError(provider, kind string) {
	metricProviderErrors.WithLabelValues(provider, kind).Inc()
}

// SetHistorySize tracks the active history length.
func SetHistorySize(n int) {
	metricHistoryMessages.Set(float64(n))
}

// ServeMetrics exposes /metrics on addr until ctx is done.
func ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
