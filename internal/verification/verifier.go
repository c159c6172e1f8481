package verification

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"memecoin-calls/internal/artifact"
	"memecoin-calls/internal/domain"
	"memecoin-calls/internal/observability"
	"memecoin-calls/internal/pacer"
	"memecoin-calls/internal/pricefeed"
	"memecoin-calls/internal/resolution"
	"memecoin-calls/internal/storage"
)

// DefaultFetchTimeout bounds a single provider request.
const DefaultFetchTimeout = 30 * time.Second

// OutcomePublisher receives every call the verifier persisted.
type OutcomePublisher interface {
	PublishOutcome(call *domain.TokenCall)
}

// RunResult summarizes one verification run.
type RunResult struct {
	Skipped     bool          // another run was in progress
	Interrupted bool          // context canceled before all calls were processed
	Total       int           // due calls loaded
	Succeeded   int           // VERIFIED_SUCCESS
	Failed      int           // VERIFIED_FAIL
	Deferred    int           // left PENDING (no price data yet)
	Errored     int           // moved to ERROR
	Duration    time.Duration // wall time of the run
}

// Processed returns the number of calls handled in this run.
func (r *RunResult) Processed() int {
	return r.Succeeded + r.Failed + r.Deferred + r.Errored
}

// Options configures a Verifier.
type Options struct {
	Calls     storage.CallStore
	Provider  pricefeed.HistoryProvider
	Artifacts storage.ArtifactStore // optional, stores price history while verifying
	JobRuns   storage.JobRunStore   // optional, records run summaries
	Publisher OutcomePublisher      // optional

	// Pacer spaces provider requests; shared with other batch jobs.
	// Nil builds a private pacer from ItemDelay.
	Pacer     *rate.Limiter
	ItemDelay time.Duration

	FetchTimeout time.Duration // per-call provider timeout (default 30s)

	// MaxPendingAge moves a call with no price data to ERROR once
	// now > TargetDate + MaxPendingAge. Zero retries forever.
	MaxPendingAge time.Duration

	Logger *zap.Logger
	Now    func() time.Time
}

// Verifier resolves due PENDING calls. At most one run executes at a time.
type Verifier struct {
	calls         storage.CallStore
	provider      pricefeed.HistoryProvider
	artifacts     storage.ArtifactStore
	jobRuns       storage.JobRunStore
	publisher     OutcomePublisher
	pacer         *rate.Limiter
	fetchTimeout  time.Duration
	maxPendingAge time.Duration
	logger        *zap.Logger
	now           func() time.Time

	running atomic.Bool
	last    atomic.Pointer[RunResult]
}

// NewVerifier creates a new Verifier.
func NewVerifier(opts Options) *Verifier {
	p := opts.Pacer
	if p == nil {
		p = pacer.New(opts.ItemDelay)
	}
	fetchTimeout := opts.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Verifier{
		calls:         opts.Calls,
		provider:      opts.Provider,
		artifacts:     opts.Artifacts,
		jobRuns:       opts.JobRuns,
		publisher:     opts.Publisher,
		pacer:         p,
		fetchTimeout:  fetchTimeout,
		maxPendingAge: opts.MaxPendingAge,
		logger:        logger.Named("verifier"),
		now:           now,
	}
}

// IsRunning reports whether a run is in progress.
func (v *Verifier) IsRunning() bool {
	return v.running.Load()
}

// LastResult returns the summary of the last completed run, or nil.
func (v *Verifier) LastResult() *RunResult {
	return v.last.Load()
}

// TryTrigger starts a run in the background and reports whether it did.
// It returns false without starting anything if a run is in progress.
// ctx must outlive the caller's request; it is only used to cancel the run.
func (v *Verifier) TryTrigger(ctx context.Context) bool {
	if !v.running.CompareAndSwap(false, true) {
		v.logger.Info("verification already running, trigger ignored")
		return false
	}
	go func() {
		defer v.running.Store(false)
		defer func() {
			if r := recover(); r != nil {
				observability.RecordVerificationRun("failed", 0)
				v.logger.Error("triggered verification panicked",
					zap.Any("panic", r),
					zap.Stack("stack"))
			}
		}()
		if _, err := v.run(ctx); err != nil {
			v.logger.Error("triggered verification failed", zap.Error(err))
		}
	}()
	return true
}

// RunExclusive is Run but reports a concurrent run as ErrAlreadyRunning.
func (v *Verifier) RunExclusive(ctx context.Context) (*RunResult, error) {
	res, err := v.Run(ctx)
	if err != nil {
		return nil, err
	}
	if res.Skipped {
		return res, ErrAlreadyRunning
	}
	return res, nil
}

// Run verifies every PENDING call whose target date has passed.
//
// If a run is already in progress the call is skipped, not queued.
// Calls are processed one at a time in the order the store returns them,
// paced by the shared limiter. A failure on one call marks it ERROR and the
// batch continues. Only a failure to load the due calls is returned.
func (v *Verifier) Run(ctx context.Context) (*RunResult, error) {
	if !v.running.CompareAndSwap(false, true) {
		v.logger.Info("verification already running, skipping")
		observability.RecordVerificationRun("skipped", 0)
		return &RunResult{Skipped: true}, nil
	}
	defer v.running.Store(false)
	return v.run(ctx)
}

// run is one verification pass. The caller holds the running flag.
func (v *Verifier) run(ctx context.Context) (*RunResult, error) {
	began := time.Now()
	start := v.now()
	res := &RunResult{}

	calls, err := v.calls.FindPendingPastTarget(ctx, start)
	if err != nil {
		res.Duration = time.Since(began)
		observability.RecordVerificationRun("failed", res.Duration)
		v.recordRun(ctx, start, res, err)
		return nil, fmt.Errorf("find pending calls: %w", err)
	}

	res.Total = len(calls)
	observability.SetPendingCalls(len(calls))
	v.logger.Info("verification started", zap.Int("due_calls", len(calls)))

	for _, call := range calls {
		if err := v.pacer.Wait(ctx); err != nil {
			res.Interrupted = true
			break
		}

		status, err := v.verifyCall(ctx, call)
		if err != nil {
			if ctx.Err() != nil {
				// Shutdown, not a provider failure: leave the call for the next run.
				res.Interrupted = true
				break
			}
			v.logger.Warn("call verification failed",
				zap.String("call_id", call.ID),
				zap.String("token_id", call.TokenID),
				zap.Error(err))
			v.markError(ctx, call)
			status = domain.CallStatusError
		}

		observability.RecordCallOutcome(status.String())
		switch status {
		case domain.CallStatusVerifiedSuccess:
			res.Succeeded++
		case domain.CallStatusVerifiedFail:
			res.Failed++
		case domain.CallStatusPending:
			res.Deferred++
		case domain.CallStatusError:
			res.Errored++
		}
	}

	res.Duration = time.Since(began)
	if res.Interrupted {
		observability.RecordVerificationRun("interrupted", res.Duration)
	} else {
		observability.RecordVerificationRun("completed", res.Duration)
	}
	v.last.Store(res)
	v.recordRun(ctx, start, res, nil)

	v.logger.Info("verification finished",
		zap.Int("total", res.Total),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
		zap.Int("deferred", res.Deferred),
		zap.Int("errored", res.Errored),
		zap.Bool("interrupted", res.Interrupted),
		zap.Duration("duration", res.Duration))

	return res, nil
}

// verifyCall fetches, evaluates and persists one call. A panic anywhere in
// the item is returned as an error.
func (v *Verifier) verifyCall(ctx context.Context, call *domain.TokenCall) (status domain.CallStatus, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic verifying call %s: %v", call.ID, r)
		}
	}()

	res := resolution.ForCall(call)

	fetchCtx, cancel := context.WithTimeout(ctx, v.fetchTimeout)
	history, err := v.provider.FetchPriceHistory(fetchCtx, call.TokenID, call.CallTimestamp, call.TargetDate, res)
	cancel()
	if err != nil {
		return "", fmt.Errorf("fetch price history (%s): %w", res, err)
	}

	now := v.now()
	updated := Evaluate(*call, history, now)

	if len(history) == 0 {
		if v.maxPendingAge > 0 && now.Sub(call.TargetDate) > v.maxPendingAge {
			return "", fmt.Errorf("%w: target date %s", ErrStale, call.TargetDate.Format(time.RFC3339))
		}
		v.logger.Debug("no price history yet, leaving pending", zap.String("call_id", call.ID))
	} else if v.artifacts != nil {
		v.attachArtifact(ctx, &updated, history)
	}

	if err := v.calls.Save(ctx, &updated); err != nil {
		return "", fmt.Errorf("save call: %w", err)
	}

	if v.publisher != nil && updated.Status.IsTerminal() {
		v.publisher.PublishOutcome(&updated)
	}
	return updated.Status, nil
}

// attachArtifact stores history and sets the reference on call. Failures
// leave the reference empty for the backfill job.
func (v *Verifier) attachArtifact(ctx context.Context, call *domain.TokenCall, history domain.PriceHistory) {
	data, err := artifact.Encode(history)
	if err == nil {
		var url string
		url, err = v.artifacts.Store(ctx, artifact.Key(call.ID), data)
		if err == nil {
			call.PriceHistoryURL = &url
			return
		}
	}
	v.logger.Warn("store price history artifact failed",
		zap.String("call_id", call.ID),
		zap.Error(err))
}

// markError persists call as ERROR. A failed save is logged and dropped.
func (v *Verifier) markError(ctx context.Context, call *domain.TokenCall) {
	failed := call.Clone()
	failed.MarkError(v.now())

	if err := v.calls.Save(ctx, failed); err != nil {
		v.logger.Error("persist ERROR status failed",
			zap.String("call_id", call.ID),
			zap.Error(err))
		return
	}
	if v.publisher != nil {
		v.publisher.PublishOutcome(failed)
	}
}

func (v *Verifier) recordRun(ctx context.Context, start time.Time, res *RunResult, runErr error) {
	if v.jobRuns == nil {
		return
	}

	run := &storage.JobRun{
		Job:        storage.JobVerification,
		StartedAt:  start,
		FinishedAt: start.Add(res.Duration),
		Total:      res.Total,
		Succeeded:  res.Succeeded + res.Failed + res.Deferred,
		Failed:     res.Errored,
	}
	if runErr != nil {
		msg := runErr.Error()
		run.Error = &msg
	} else if res.Interrupted {
		msg := context.Canceled.Error()
		if err := ctx.Err(); err != nil {
			msg = err.Error()
		}
		run.Error = &msg
	}

	// The run context may already be canceled on shutdown.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := v.jobRuns.Record(recordCtx, run); err != nil && !errors.Is(err, context.Canceled) {
		v.logger.Warn("record verification run failed", zap.Error(err))
	}
}
