// Package sweeper periodically drops expired pending codes.
package sweeper

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultInterval is the sweep period used when none is configured.
const DefaultInterval = 30 * time.Second

// Cleaner removes expired codes and reports how many were removed. *service.LinkingService satisfies it.
type Cleaner interface {
	CleanupExpired(ctx context.Context) int
}

// Sweeper runs Cleaner on a fixed schedule. A sweep never overlaps the previous one.
type Sweeper struct {
	cleaner  Cleaner
	interval time.Duration
	cron     *cron.Cron
	log      zerolog.Logger
	runs     atomic.Int64
	started  atomic.Bool
}

// New returns a Sweeper that calls cleaner every interval. Intervals below one second are rounded up.
func New(cleaner Cleaner, interval time.Duration, log zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	l := log.With().Str("component", "sweeper").Logger()
	cl := cronLogger{log: l}
	return &Sweeper{
		cleaner:  cleaner,
		interval: interval,
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		log:      l,
	}
}

// Start schedules the recurring sweep. Calling Start twice returns an error.
func (s *Sweeper) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("sweeper: already started")
	}
	s.cron.Schedule(cron.Every(s.interval), cron.FuncJob(func() { s.RunOnce() }))
	s.cron.Start()
	s.log.Info().Dur("interval", s.interval).Msg("sweeper started")
	return nil
}

// RunOnce performs a single sweep and returns how many codes were removed.
func (s *Sweeper) RunOnce() int {
	n := s.cleaner.CleanupExpired(context.Background())
	s.runs.Add(1)
	return n
}

// Runs returns how many sweeps have completed.
func (s *Sweeper) Runs() int64 {
	return s.runs.Load()
}

// Stop cancels future sweeps and waits for a running one, or until ctx is done.
func (s *Sweeper) Stop(ctx context.Context) error {
	if !s.started.Load() {
		return nil
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info().Msg("sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
