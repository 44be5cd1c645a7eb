package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	serverLaunches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "server",
			Name:      "launches_total",
			Help:      "Number of server process launches, initial and restart.",
		}, []string{"session"},
	)
	serverRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "server",
			Name:      "restarts_total",
			Help:      "Number of unhealthy-triggered restarts.",
		}, []string{"session"},
	)
	serverStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "server",
			Name:      "stops_total",
			Help:      "Number of stops (graceful or kill).",
		}, []string{"session"},
	)
	healthCheckFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "server",
			Name:      "health_check_failures_total",
			Help:      "Number of failed liveness probes.",
		}, []string{"session"},
	)
	readinessWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "warden",
			Subsystem: "server",
			Name:      "readiness_wait_seconds",
			Help:      "Time between launch and the port accepting connections.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"session"},
	)
	serverUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "warden",
			Subsystem: "server",
			Name:      "up",
			Help:      "Whether a supervised server is currently running (1) or not (0).",
		}, []string{"session"},
	)
	sessionStates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "warden",
			Subsystem: "session",
			Name:      "current_state",
			Help:      "Current monitor state per session (1 = active state, 0 = inactive).",
		}, []string{"session", "state"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{serverLaunches, serverRestarts, serverStops, healthCheckFailures, readinessWait, serverUp, sessionStates}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving Prometheus metrics for the
// DefaultGatherer. The caller wires the route.
func Handler() http.Handler { return promhttp.Handler() }

// Lightweight helpers used by internal packages. They no-op until
// Register has been called.

func IncLaunch(session string) {
	if regOK.Load() {
		serverLaunches.WithLabelValues(session).Inc()
	}
}
func IncRestart(session string) {
	if regOK.Load() {
		serverRestarts.WithLabelValues(session).Inc()
	}
}
func IncStop(session string) {
	if regOK.Load() {
		serverStops.WithLabelValues(session).Inc()
	}
}
func IncHealthCheckFailure(session string) {
	if regOK.Load() {
		healthCheckFailures.WithLabelValues(session).Inc()
	}
}
func ObserveReadinessWait(session string, seconds float64) {
	if regOK.Load() {
		readinessWait.WithLabelValues(session).Observe(seconds)
	}
}
func SetServerUp(session string, up bool) {
	if regOK.Load() {
		var v float64
		if up {
			v = 1
		}
		serverUp.WithLabelValues(session).Set(v)
	}
}
func SetSessionState(session, state string, active bool) {
	if regOK.Load() {
		var v float64
		if active {
			v = 1
		}
		sessionStates.WithLabelValues(session, state).Set(v)
	}
}
