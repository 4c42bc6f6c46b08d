package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"StreakStake/internal/checkin"
	"StreakStake/internal/commitment"
	"StreakStake/internal/ledger"
	"StreakStake/internal/metrics"
	"StreakStake/internal/model"
	"StreakStake/internal/recovery"
)

// callerHeader carries the account id authenticated by the upstream gateway.
const callerHeader = "X-Account-ID"

// Sweeper runs the resolution job on demand.
type Sweeper interface {
	RunOnce(ctx context.Context) (model.SweepReport, error)
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes the engine over HTTP.
type Server struct {
	Ledger    *ledger.Ledger
	Contracts *commitment.Manager
	Missions  *recovery.Manager
	CheckIns  *checkin.Recorder
	Sweeper   Sweeper
	Health    Pinger

	// AdminToken guards service-to-service routes. Empty disables the check.
	AdminToken string
	RateRPS    float64
	RateBurst  int
	Log        *logrus.Entry
}

// Router builds the chi router with every route mounted. Background
// housekeeping stops when ctx is done.
func (s *Server) Router(ctx context.Context) http.Handler {
	if s.Log == nil {
		s.Log = logrus.WithField("component", "api")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.recoverer)
	r.Use(metrics.InstrumentHandler)
	if s.RateRPS > 0 {
		limiter := newRateLimiter(s.RateRPS, s.RateBurst)
		limiter.startCleanup(ctx, limiterSweepInterval, limiterIdle)
		r.Use(limiter.handler)
	}

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.requireCaller)
			r.Post("/commitments", s.handleCreateCommitment)
			r.Post("/commitments/{id}/cancel", s.handleCancelCommitment)
			r.Post("/missions/{id}/complete", s.handleCompleteMission)
		})

		r.Get("/commitments/{id}", s.handleGetCommitment)
		r.Get("/missions/{id}", s.handleGetMission)
		r.Route("/accounts/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetAccount)
			r.Get("/commitments", s.handleListCommitments)
			r.Get("/tiers/{tier}", s.handleTierUnlocked)
			r.Get("/missions", s.handleListMissions)
			r.Get("/transactions", s.handleListTransactions)
			r.Get("/audit", s.handleAudit)
			r.With(s.requireAdmin).Post("/grants", s.handleGrant)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/accounts", s.handleOpenAccount)
			r.Post("/checkins", s.handleRecordCheckIn)
			r.Post("/admin/resolution", s.handleRunResolution)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				s.Log.WithField("panic", p).WithField("path", r.URL.Path).Error("handler panic")
				writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(r.Header.Get(callerHeader)) == "" {
			writeError(w, r, http.StatusUnauthorized, "unauthenticated", callerHeader+" header is required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.AdminToken != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.AdminToken)) != 1 {
				writeError(w, r, http.StatusUnauthorized, "unauthenticated", "admin token required")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func caller(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(callerHeader))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if s.Health != nil {
		if err := s.Health.Ping(ctx); err != nil {
			writeError(w, r, http.StatusServiceUnavailable, "unavailable", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
