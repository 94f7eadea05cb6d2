package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors for the rewards engine and the HTTP layer.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	ChallengesStarted   *prometheus.CounterVec
	ProgressRecorded    *prometheus.CounterVec
	CompletionsAwarded  *prometheus.CounterVec
	PointsAwarded       prometheus.Counter
	CooldownRejections  *prometheus.CounterVec
	LedgerWrites        *prometheus.CounterVec
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ChallengesStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wellpoints_challenges_started_total",
				Help: "Challenge attempts started, by kind (canonical or ephemeral).",
			},
			[]string{"kind"},
		),
		ProgressRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wellpoints_progress_recorded_total",
				Help: "Daily progress calls, by outcome.",
			},
			[]string{"outcome"},
		),
		CompletionsAwarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wellpoints_completions_awarded_total",
				Help: "Completions that passed the conditional write, by kind.",
			},
			[]string{"kind"},
		),
		PointsAwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wellpoints_points_awarded_total",
			Help: "Points credited to profiles.",
		}),
		CooldownRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wellpoints_cooldown_rejections_total",
				Help: "Completions or starts rejected because the cooldown is active.",
			},
			[]string{"operation"},
		),
		LedgerWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wellpoints_ledger_writes_total",
				Help: "Ledger appends, by result (ok, error, dropped).",
			},
			[]string{"result"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
	}

	reg.MustRegister(
		m.ChallengesStarted,
		m.ProgressRecorded,
		m.CompletionsAwarded,
		m.PointsAwarded,
		m.CooldownRejections,
		m.LedgerWrites,
		m.HTTPRequests,
		m.HTTPRequestDuration,
	)
	return m
}

func (m *Metrics) ChallengeStarted(kind string) {
	if m == nil {
		return
	}
	m.ChallengesStarted.WithLabelValues(kind).Inc()
}

func (m *Metrics) Progress(outcome string) {
	if m == nil {
		return
	}
	m.ProgressRecorded.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Awarded(kind string, points int) {
	if m == nil {
		return
	}
	m.CompletionsAwarded.WithLabelValues(kind).Inc()
	m.PointsAwarded.Add(float64(points))
}

func (m *Metrics) CooldownRejected(operation string) {
	if m == nil {
		return
	}
	m.CooldownRejections.WithLabelValues(operation).Inc()
}

func (m *Metrics) LedgerWrite(result string) {
	if m == nil {
		return
	}
	m.LedgerWrites.WithLabelValues(result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the hijacker for /ws.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Middleware records request counts and latencies. The route label is the
// matched ServeMux pattern so path parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
