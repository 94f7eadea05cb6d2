package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/wellpoints/internal/auth"
	"github.com/dukerupert/wellpoints/internal/engine"
	"github.com/dukerupert/wellpoints/internal/handler"
	"github.com/dukerupert/wellpoints/internal/metrics"
	"github.com/dukerupert/wellpoints/internal/middleware"
	"github.com/dukerupert/wellpoints/internal/store"
	ws "github.com/dukerupert/wellpoints/internal/websocket"
)

// Options carries the optional parts of the HTTP surface.
type Options struct {
	// MetricsUser and MetricsPassHash guard /metrics. The route is not
	// mounted when either is empty.
	MetricsUser     string
	MetricsPassHash string
	Gatherer        prometheus.Gatherer

	// RateLimit is requests per second per user on mutating routes.
	RateLimit float64
	RateBurst int

	// OriginPatterns lists extra browser origins allowed on /ws.
	OriginPatterns []string
}

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	challengeH  *handler.ChallengeHandler
	adminH      *handler.AdminHandler
	tokens      *auth.Tokens
	rateLimiter *middleware.RateLimiter
	metrics     *metrics.Metrics
	opts        Options
	logger      *slog.Logger
}

func New(db *sql.DB, eng *engine.Engine, tokens *auth.Tokens, m *metrics.Metrics, opts Options, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	if opts.RateLimit <= 0 {
		opts.RateLimit = 1
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 10
	}

	return &Server{
		db:          db,
		hub:         hub,
		challengeH:  handler.NewChallengeHandler(eng, hub, logger.With("component", "challenge")),
		adminH:      handler.NewAdminHandler(store.NewCatalogStore(db), eng, hub, logger.With("component", "admin")),
		tokens:      tokens,
		rateLimiter: middleware.NewRateLimiter(opts.RateLimit, opts.RateBurst, 10*time.Minute),
		metrics:     m,
		opts:        opts,
		logger:      logger,
	}
}

// Hub returns the websocket hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public routes (no auth required)
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket"), s.opts.OriginPatterns))
	if s.opts.MetricsUser != "" && s.opts.MetricsPassHash != "" {
		gatherer := s.opts.Gatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		metricsHandler := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
		mux.Handle("GET /metrics", middleware.BasicAuth(s.opts.MetricsUser, s.opts.MetricsPassHash)(metricsHandler))
	}

	s.registerProtectedRoutes(mux)

	var h http.Handler = mux
	h = s.metrics.Middleware(h)
	return middleware.RequestLogger(s.logger.With("component", "http"))(h)
}

// Auth is applied per route rather than on a sub-mux so the outer
// middleware sees the matched pattern.
func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	authed := func(h http.HandlerFunc) http.Handler {
		return middleware.RequireAuth(s.tokens)(h)
	}
	limited := func(h http.HandlerFunc) http.Handler {
		rl := middleware.RateLimit(s.rateLimiter, middleware.UserOrIP)
		return middleware.RequireAuth(s.tokens)(rl(h))
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return middleware.RequireAuth(s.tokens)(middleware.RequireAdmin(h))
	}

	// Challenge API routes
	mux.Handle("GET /api/challenges", authed(s.challengeH.List))
	mux.Handle("POST /api/challenges/start", limited(s.challengeH.Start))
	mux.Handle("POST /api/challenges/progress", limited(s.challengeH.Progress))
	mux.Handle("POST /api/challenges/complete", limited(s.challengeH.Complete))
	mux.Handle("POST /api/challenges/cancel", limited(s.challengeH.Cancel))

	// Profile and ranking
	mux.Handle("GET /api/profile", authed(s.challengeH.Profile))
	mux.Handle("GET /api/leaderboard", authed(s.challengeH.Leaderboard))
	mux.Handle("GET /api/rank", authed(s.challengeH.Rank))

	// Admin routes
	mux.Handle("POST /api/admin/challenges", admin(s.adminH.CreateChallenge))
	mux.Handle("PUT /api/admin/challenges/{key}/active", admin(s.adminH.SetActive))
	mux.Handle("GET /api/admin/reconcile/{user_id}", admin(s.adminH.Reconcile))
	mux.Handle("GET /api/admin/status", admin(s.adminH.Status))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check: database unreachable", "error", err)
		status, code = "degraded", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}
