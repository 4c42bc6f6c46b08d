package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"StreakStake/internal/model"
)

var (
	// Registry holds the application collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "streakstake",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "streakstake",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	ledgerEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "streakstake",
			Subsystem: "ledger",
			Name:      "entries_total",
			Help:      "Ledger transactions appended, by kind.",
		},
		[]string{"kind"},
	)

	ledgerVolume = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "streakstake",
			Subsystem: "ledger",
			Name:      "tokens_moved_total",
			Help:      "Absolute tokens moved by ledger entries, by kind.",
		},
		[]string{"kind"},
	)

	contractsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "streakstake",
			Subsystem: "contracts",
			Name:      "created_total",
			Help:      "Contracts created, by duration tier.",
		},
		[]string{"duration_days"},
	)

	contractsSettled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "streakstake",
			Subsystem: "contracts",
			Name:      "settled_total",
			Help:      "Contracts that reached a terminal state, by outcome.",
		},
		[]string{"outcome"},
	)

	missionsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "streakstake",
			Subsystem: "recovery",
			Name:      "missions_completed_total",
			Help:      "Recovery missions completed.",
		},
	)

	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "streakstake",
			Subsystem: "resolution",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of scheduled resolution sweeps.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	sweepErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "streakstake",
			Subsystem: "resolution",
			Name:      "contract_errors_total",
			Help:      "Per-contract failures during resolution sweeps.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		ledgerEntries,
		ledgerVolume,
		contractsCreated,
		contractsSettled,
		missionsCompleted,
		sweepDuration,
		sweepErrors,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler exposes the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler records request counts and latency by chi route pattern.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// LedgerEntry counts one appended transaction.
func LedgerEntry(kind model.TxKind, delta int64) {
	ledgerEntries.WithLabelValues(string(kind)).Inc()
	if delta < 0 {
		delta = -delta
	}
	ledgerVolume.WithLabelValues(string(kind)).Add(float64(delta))
}

// ContractCreated counts a new contract.
func ContractCreated(durationDays int) {
	contractsCreated.WithLabelValues(strconv.Itoa(durationDays)).Inc()
}

// ContractSettled counts a terminal transition.
func ContractSettled(status model.ContractStatus) {
	contractsSettled.WithLabelValues(string(status)).Inc()
}

// MissionCompleted counts a completed recovery mission.
func MissionCompleted() {
	missionsCompleted.Inc()
}

// ObserveSweep records one resolution sweep.
func ObserveSweep(d time.Duration, errors int) {
	sweepDuration.Observe(d.Seconds())
	sweepErrors.Add(float64(errors))
}
