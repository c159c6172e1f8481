package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"memecoin-calls/internal/artifact"
	"memecoin-calls/internal/backfill"
	"memecoin-calls/internal/domain"
	"memecoin-calls/internal/leaderboard"
	"memecoin-calls/internal/pricefeed"
	"memecoin-calls/internal/resolution"
	"memecoin-calls/internal/storage"
	"memecoin-calls/internal/verification"
)

// DefaultCandleSpan is the candle window when the request sets no from.
const DefaultCandleSpan = 24 * time.Hour

// HandleHealth reports liveness.
func (s *Server) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// JobStatus describes one batch job.
type JobStatus struct {
	Running bool            `json:"running"`
	LastRun *JobRunResponse `json:"lastRun,omitempty"`
}

// JobRunResponse is a stored job run summary.
type JobRunResponse struct {
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Total      int       `json:"total"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Error      *string   `json:"error,omitempty"`
}

// VerificationStatus adds the in-process result of the last run.
type VerificationStatus struct {
	JobStatus
	LastResult *RunResultResponse `json:"lastResult,omitempty"`
}

// RunResultResponse is the JSON form of verification.RunResult.
type RunResultResponse struct {
	Interrupted bool    `json:"interrupted"`
	Total       int     `json:"total"`
	Succeeded   int     `json:"succeeded"`
	Failed      int     `json:"failed"`
	Deferred    int     `json:"deferred"`
	Errored     int     `json:"errored"`
	DurationSec float64 `json:"durationSec"`
}

// StatusResponse is the JSON response of /status.
type StatusResponse struct {
	Status       string             `json:"status"`
	Uptime       string             `json:"uptime"`
	Verification VerificationStatus `json:"verification"`
	Backfill     JobStatus          `json:"backfill"`
}

// HandleStatus reports job state and the last run of each job.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status: "running",
		Uptime: s.now().Sub(s.startedAt).Round(time.Second).String(),
		Verification: VerificationStatus{
			JobStatus: JobStatus{
				Running: s.verifier.IsRunning(),
				LastRun: s.lastJobRun(r, storage.JobVerification),
			},
		},
		Backfill: JobStatus{
			Running: s.backfiller != nil && s.backfiller.IsRunning(),
			LastRun: s.lastJobRun(r, storage.JobBackfill),
		},
	}
	if res := s.verifier.LastResult(); res != nil {
		resp.Verification.LastResult = &RunResultResponse{
			Interrupted: res.Interrupted,
			Total:       res.Total,
			Succeeded:   res.Succeeded,
			Failed:      res.Failed,
			Deferred:    res.Deferred,
			Errored:     res.Errored,
			DurationSec: res.Duration.Seconds(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) lastJobRun(r *http.Request, job string) *JobRunResponse {
	if s.jobRuns == nil {
		return nil
	}
	run, err := s.jobRuns.GetLast(r.Context(), job)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("load last job run", zap.String("job", job), zap.Error(err))
		}
		return nil
	}
	return &JobRunResponse{
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Total:      run.Total,
		Succeeded:  run.Succeeded,
		Failed:     run.Failed,
		Error:      run.Error,
	}
}

// HandleRunVerification starts a verification run in the background.
func (s *Server) HandleRunVerification(w http.ResponseWriter, _ *http.Request) {
	if !s.verifier.TryTrigger(s.baseCtx) {
		writeError(w, http.StatusConflict, verification.ErrAlreadyRunning.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// HandleRunBackfill starts the backfill job in the background. Its counts
// are reported by /status once it finishes.
func (s *Server) HandleRunBackfill(w http.ResponseWriter, _ *http.Request) {
	if s.backfiller == nil {
		writeError(w, http.StatusServiceUnavailable, "artifact storage is disabled")
		return
	}
	if !s.backfiller.TryTrigger(s.baseCtx) {
		writeError(w, http.StatusConflict, backfill.ErrAlreadyRunning.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// HandleLeaderboard serves one leaderboard page.
// Query: page, limit, sortBy.
func (s *Server) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	var q leaderboard.Query

	if v := qs.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid page")
			return
		}
		q.Page = n
	}
	if v := qs.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		q.Limit = n
	}
	q.SortBy = qs.Get("sortBy")

	page, err := s.leaderboard.Leaderboard(r.Context(), q)
	if err != nil {
		if errors.Is(err, leaderboard.ErrInvalidSortBy) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("leaderboard failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "leaderboard failed")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleCallPriceHistory serves the stored price-history artifact of a call.
func (s *Server) HandleCallPriceHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	call, err := s.calls.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "call not found")
			return
		}
		s.logger.Error("load call", zap.String("call_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "load call failed")
		return
	}
	if !call.HasArtifact() {
		writeError(w, http.StatusNotFound, "price history not stored")
		return
	}
	s.serveArtifact(w, r, artifact.Key(call.ID))
}

// HandleArtifact serves an artifact by key. Artifact references point here.
func (s *Server) HandleArtifact(w http.ResponseWriter, r *http.Request) {
	s.serveArtifact(w, r, mux.Vars(r)["key"])
}

func (s *Server) serveArtifact(w http.ResponseWriter, r *http.Request, key string) {
	if s.artifacts == nil {
		writeError(w, http.StatusNotFound, "artifact storage disabled")
		return
	}
	data, err := s.artifacts.Load(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "artifact not found")
			return
		}
		s.logger.Error("load artifact", zap.String("key", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "load artifact failed")
		return
	}
	w.Header().Set("Content-Type", artifact.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// HandleToken serves the provider's current overview of a token.
func (s *Server) HandleToken(w http.ResponseWriter, r *http.Request) {
	id, ok := s.tokenID(w, r)
	if !ok {
		return
	}
	md, err := s.tokens.GetTokenData(r.Context(), id)
	if err != nil {
		s.writeProviderError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, md)
}

// CandlesResponse is the JSON response of /tokens/{id}/candles.
type CandlesResponse struct {
	TokenID    string          `json:"tokenId"`
	Resolution string          `json:"resolution"`
	From       int64           `json:"from"`
	To         int64           `json:"to"`
	Items      []domain.Candle `json:"items"`
}

// HandleCandles serves OHLCV bars for a token.
// Query: from, to (unix seconds). to defaults to now, from to to-24h.
func (s *Server) HandleCandles(w http.ResponseWriter, r *http.Request) {
	id, ok := s.tokenID(w, r)
	if !ok {
		return
	}

	qs := r.URL.Query()
	to := s.now().UTC()
	if v := qs.Get("to"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to")
			return
		}
		to = time.Unix(n, 0).UTC()
	}
	from := to.Add(-DefaultCandleSpan)
	if v := qs.Get("from"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from")
			return
		}
		from = time.Unix(n, 0).UTC()
	}
	if !from.Before(to) {
		writeError(w, http.StatusBadRequest, "from must be before to")
		return
	}

	res := resolution.ForCandles(from, to, 0)
	candles, err := s.tokens.FetchCandles(r.Context(), id, from, to, res)
	if err != nil {
		s.writeProviderError(w, id, err)
		return
	}
	if candles == nil {
		candles = []domain.Candle{}
	}
	writeJSON(w, http.StatusOK, CandlesResponse{
		TokenID:    id,
		Resolution: res.String(),
		From:       from.Unix(),
		To:         to.Unix(),
		Items:      candles,
	})
}

func (s *Server) tokenID(w http.ResponseWriter, r *http.Request) (string, bool) {
	if s.tokens == nil {
		writeError(w, http.StatusServiceUnavailable, "price provider not configured")
		return "", false
	}
	id := mux.Vars(r)["id"]
	if err := domain.ValidateTokenID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}

func (s *Server) writeProviderError(w http.ResponseWriter, tokenID string, err error) {
	switch {
	case errors.Is(err, pricefeed.ErrTokenNotFound):
		writeError(w, http.StatusNotFound, "token not found")
	case errors.Is(err, pricefeed.ErrRateLimitExceeded):
		writeError(w, http.StatusTooManyRequests, "price provider rate limited")
	default:
		s.logger.Warn("price provider request failed", zap.String("token_id", tokenID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "price provider error")
	}
}
