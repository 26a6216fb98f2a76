// internal/service/poller.go
package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Poller owns the periodic loops (scheduler, retry, auto-reply). Each loop is
// an explicit job with its own fixed interval; SkipIfStillRunning is the
// run-to-completion guard that keeps one tick from overlapping its next.
// Lifecycle is Start/Stop on the object, so engines stay testable by calling
// their Run methods directly.
type Poller struct {
	cron   *cron.Cron
	cancel context.CancelFunc
	ctx    context.Context
	logger zerolog.Logger
}

func NewPoller(logger zerolog.Logger) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	cl := cronLogger{logger: logger}
	return &Poller{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cl),
			cron.Recover(cl),
		)),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Every registers a named loop on a fixed interval.
func (p *Poller) Every(interval time.Duration, name string, run func(ctx context.Context) error) {
	p.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
		if err := run(p.ctx); err != nil {
			p.logger.Error().Err(err).Str("loop", name).Msg("poll tick failed")
		}
	}))
}

// Start launches the loops in the background.
func (p *Poller) Start() {
	p.cron.Start()
}

// Stop cancels in-flight ticks and waits for running jobs to finish.
func (p *Poller) Stop() {
	p.cancel()
	<-p.cron.Stop().Done()
}

// cronLogger adapts zerolog to cron's logging interface.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
