// Package backfill attaches price-history artifacts to verified calls that lack one.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"sort"
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

// ErrAlreadyRunning is returned when a backfill is requested while one is in progress.
var ErrAlreadyRunning = errors.New("backfill already running")

// ErrEmptyHistory marks an item whose window returned no samples.
var ErrEmptyHistory = errors.New("empty price history")

// DefaultFetchTimeout bounds a single provider request.
const DefaultFetchTimeout = 30 * time.Second

// Result contains statistics from a backfill run.
type Result struct {
	Processed int           `json:"processed"` // artifacts stored and attached
	Failed    int           `json:"failed"`    // items skipped on error or empty history
	Duration  time.Duration `json:"-"`
}

// Options contains configuration for creating a Backfiller.
type Options struct {
	Calls     storage.CallStore
	Provider  pricefeed.HistoryProvider
	Artifacts storage.ArtifactStore
	JobRuns   storage.JobRunStore // optional

	Pacer        *rate.Limiter // shared with the verifier; nil builds one from ItemDelay
	ItemDelay    time.Duration
	FetchTimeout time.Duration

	Logger *zap.Logger
	Now    func() time.Time
}

// Backfiller re-fetches price history for verified calls without an artifact.
type Backfiller struct {
	calls        storage.CallStore
	provider     pricefeed.HistoryProvider
	artifacts    storage.ArtifactStore
	jobRuns      storage.JobRunStore
	pacer        *rate.Limiter
	fetchTimeout time.Duration
	logger       *zap.Logger
	now          func() time.Time

	running atomic.Bool
}

// NewBackfiller creates a new Backfiller.
func NewBackfiller(opts Options) *Backfiller {
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

	return &Backfiller{
		calls:        opts.Calls,
		provider:     opts.Provider,
		artifacts:    opts.Artifacts,
		jobRuns:      opts.JobRuns,
		pacer:        p,
		fetchTimeout: fetchTimeout,
		logger:       logger.Named("backfill"),
		now:          now,
	}
}

// IsRunning reports whether a backfill is in progress.
func (b *Backfiller) IsRunning() bool {
	return b.running.Load()
}

// Run backfills every verified call missing a price-history reference,
// oldest call first. Item failures are counted, not returned; only a failure
// to load the work list is an error.
func (b *Backfiller) Run(ctx context.Context) (*Result, error) {
	if !b.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer b.running.Store(false)
	return b.run(ctx)
}

// TryTrigger starts a backfill in the background and reports whether it did.
// It returns false if one is already in progress. The run is bound to ctx,
// not to the caller's request; its counts land in the job-run log.
func (b *Backfiller) TryTrigger(ctx context.Context) bool {
	if !b.running.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer b.running.Store(false)
		defer func() {
			if r := recover(); r != nil {
				observability.RecordBackfillRun("failed", 0, 0)
				b.logger.Error("triggered backfill panicked",
					zap.Any("panic", r),
					zap.Stack("stack"))
			}
		}()
		if _, err := b.run(ctx); err != nil {
			b.logger.Error("triggered backfill failed", zap.Error(err))
		}
	}()
	return true
}

// run is one backfill pass. The caller holds the running flag.
func (b *Backfiller) run(ctx context.Context) (*Result, error) {
	began := time.Now()
	startedAt := b.now()

	calls, err := b.calls.FindVerifiedMissingArtifact(ctx)
	if err != nil {
		observability.RecordBackfillRun("failed", 0, 0)
		b.record(ctx, startedAt, len(calls), &Result{Duration: time.Since(began)}, err)
		return nil, fmt.Errorf("find calls missing artifact: %w", err)
	}

	sort.SliceStable(calls, func(i, j int) bool {
		return calls[i].CallTimestamp.Before(calls[j].CallTimestamp)
	})

	b.logger.Info("backfill started", zap.Int("calls", len(calls)))

	result := &Result{}
	for _, call := range calls {
		if err := b.pacer.Wait(ctx); err != nil {
			break
		}

		if err := b.backfillCall(ctx, call); err != nil {
			if ctx.Err() != nil {
				break
			}
			result.Failed++
			b.logger.Warn("backfill item failed",
				zap.String("call_id", call.ID),
				zap.String("token_id", call.TokenID),
				zap.Error(err))
			continue
		}
		result.Processed++
	}

	result.Duration = time.Since(began)
	outcome := "completed"
	if ctx.Err() != nil {
		outcome = "interrupted"
	}
	observability.RecordBackfillRun(outcome, result.Processed, result.Failed)
	b.record(ctx, startedAt, len(calls), result, ctx.Err())

	b.logger.Info("backfill finished",
		zap.Int("processed", result.Processed),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", result.Duration))

	return result, nil
}

func (b *Backfiller) backfillCall(ctx context.Context, call *domain.TokenCall) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic backfilling call %s: %v", call.ID, r)
		}
	}()

	res := resolution.ForCall(call)

	fetchCtx, cancel := context.WithTimeout(ctx, b.fetchTimeout)
	history, err := b.provider.FetchPriceHistory(fetchCtx, call.TokenID, call.CallTimestamp, call.TargetDate, res)
	cancel()
	if err != nil {
		return fmt.Errorf("fetch price history (%s): %w", res, err)
	}
	if len(history) == 0 {
		return ErrEmptyHistory
	}

	data, err := artifact.Encode(history)
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}

	url, err := b.artifacts.Store(ctx, artifact.Key(call.ID), data)
	if err != nil {
		return fmt.Errorf("store artifact: %w", err)
	}

	updated := call.Clone()
	updated.PriceHistoryURL = &url
	if err := b.calls.Save(ctx, updated); err != nil {
		return fmt.Errorf("save call: %w", err)
	}
	return nil
}

func (b *Backfiller) record(ctx context.Context, startedAt time.Time, total int, res *Result, runErr error) {
	if b.jobRuns == nil {
		return
	}

	run := &storage.JobRun{
		Job:        storage.JobBackfill,
		StartedAt:  startedAt,
		FinishedAt: startedAt.Add(res.Duration),
		Total:      total,
		Succeeded:  res.Processed,
		Failed:     res.Failed,
	}
	if runErr != nil {
		msg := runErr.Error()
		run.Error = &msg
	}

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := b.jobRuns.Record(recordCtx, run); err != nil {
		b.logger.Warn("record backfill run failed", zap.Error(err))
	}
}
