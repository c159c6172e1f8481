package verification

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSchedule runs verification at the top of every hour.
const DefaultSchedule = "0 0 * * * *"

// Runner is a batch job the scheduler can fire.
type Runner interface {
	Run(ctx context.Context) (*RunResult, error)
}

// Scheduler fires a Runner on a cron schedule (seconds field included).
// Overlap protection lives in the Runner: a tick that lands on a running
// batch is skipped by it.
type Scheduler struct {
	cron   *cron.Cron
	spec   string
	logger *zap.Logger
}

// NewScheduler registers runner on spec. ctx bounds every run.
func NewScheduler(ctx context.Context, spec string, runner Runner, logger *zap.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler")

	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cronLogger{logger.Sugar()})))

	_, err := c.AddFunc(spec, func() {
		if _, err := runner.Run(ctx); err != nil {
			logger.Error("scheduled verification failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("add verification schedule %q: %w", spec, err)
	}

	return &Scheduler{cron: c, spec: spec, logger: logger}, nil
}

// Start starts the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("cron started", zap.String("cronSpec", s.spec))
}

// Stop stops scheduling and waits for a running job to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
