// Package api exposes the verification service over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"memecoin-calls/internal/backfill"
	"memecoin-calls/internal/leaderboard"
	"memecoin-calls/internal/observability"
	"memecoin-calls/internal/pricefeed"
	"memecoin-calls/internal/storage"
	"memecoin-calls/internal/verification"
)

// VerificationRunner is the verifier as seen by the API.
type VerificationRunner interface {
	// TryTrigger starts a background run unless one is in progress.
	TryTrigger(ctx context.Context) bool
	IsRunning() bool
	LastResult() *verification.RunResult
}

// BackfillRunner is the backfill job as seen by the API.
type BackfillRunner interface {
	// TryTrigger starts a background backfill unless one is in progress.
	TryTrigger(ctx context.Context) bool
	IsRunning() bool
}

var (
	_ VerificationRunner = (*verification.Verifier)(nil)
	_ BackfillRunner     = (*backfill.Backfiller)(nil)
)

// LeaderboardReader serves leaderboard pages.
type LeaderboardReader interface {
	Leaderboard(ctx context.Context, q leaderboard.Query) (*leaderboard.Page, error)
}

// Options configures a Server. Verifier, Leaderboard and Calls are required;
// the rest disable their routes' data when nil.
type Options struct {
	Verifier    VerificationRunner
	Backfiller  BackfillRunner
	Leaderboard LeaderboardReader
	Calls       storage.CallStore
	Artifacts   storage.ArtifactStore
	JobRuns     storage.JobRunStore
	Tokens      pricefeed.Provider
	Events      http.Handler // websocket event stream

	// BaseContext bounds background runs started from a request.
	BaseContext context.Context
	// AdminToken, when set, is required as a bearer token on /admin routes.
	AdminToken string

	Logger *zap.Logger
	Now    func() time.Time
}

// Server holds the HTTP handlers.
type Server struct {
	verifier    VerificationRunner
	backfiller  BackfillRunner
	leaderboard LeaderboardReader
	calls       storage.CallStore
	artifacts   storage.ArtifactStore
	jobRuns     storage.JobRunStore
	tokens      pricefeed.Provider
	events      http.Handler

	baseCtx    context.Context
	adminToken string
	startedAt  time.Time
	logger     *zap.Logger
	now        func() time.Time
}

// NewServer creates a new Server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	baseCtx := opts.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Server{
		verifier:    opts.Verifier,
		backfiller:  opts.Backfiller,
		leaderboard: opts.Leaderboard,
		calls:       opts.Calls,
		artifacts:   opts.Artifacts,
		jobRuns:     opts.JobRuns,
		tokens:      opts.Tokens,
		events:      opts.Events,
		baseCtx:     baseCtx,
		adminToken:  opts.AdminToken,
		startedAt:   now(),
		logger:      logger.Named("api"),
		now:         now,
	}
}

// NewRouter returns the router with every route registered.
func (s *Server) NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/health", s.HandleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/status", s.HandleStatus).Methods(http.MethodGet)

	r.HandleFunc("/leaderboard", s.HandleLeaderboard).Methods(http.MethodGet)
	r.HandleFunc("/calls/{id}/price-history", s.HandleCallPriceHistory).Methods(http.MethodGet)
	r.HandleFunc("/artifacts/{key:.+}", s.HandleArtifact).Methods(http.MethodGet)
	r.HandleFunc("/tokens/{id}", s.HandleToken).Methods(http.MethodGet)
	r.HandleFunc("/tokens/{id}/candles", s.HandleCandles).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(s.requireAdmin)
	admin.HandleFunc("/verification/run", s.HandleRunVerification).Methods(http.MethodPost)
	admin.HandleFunc("/backfill/run", s.HandleRunBackfill).Methods(http.MethodPost)

	if s.events != nil {
		r.Handle("/ws/events", s.requireAdmin(s.events)).Methods(http.MethodGet)
	}

	return r
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			// Browsers cannot set headers on websocket upgrades.
			token = r.URL.Query().Get("token")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
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

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws/events" {
			// The upgrader needs the raw writer to hijack.
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}
