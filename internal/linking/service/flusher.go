package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"linkgate/internal/linking/domain"
	"linkgate/internal/linking/repository"
)

// DefaultFlushTimeout bounds a single background save.
const DefaultFlushTimeout = 30 * time.Second

// Snapshotter produces a consistent copy of the links. *store.Store satisfies it.
type Snapshotter interface {
	Snapshot() domain.Snapshot
}

// Flusher persists snapshots on a single background goroutine. Requests made while a save is
// pending collapse into one save; saves never overlap.
type Flusher struct {
	repo    repository.Repository
	src     Snapshotter
	log     zerolog.Logger
	timeout time.Duration

	dirty     chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	saveMu    sync.Mutex
	startOnce sync.Once
	closeOnce sync.Once

	saves    atomic.Int64
	failures atomic.Int64
}

// NewFlusher returns a Flusher writing snapshots of src to repo. Call Start to run the worker.
func NewFlusher(repo repository.Repository, src Snapshotter, log zerolog.Logger) *Flusher {
	return &Flusher{
		repo:    repo,
		src:     src,
		log:     log.With().Str("component", "flusher").Logger(),
		timeout: DefaultFlushTimeout,
		dirty:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Start launches the worker goroutine. Calling it more than once has no effect.
func (f *Flusher) Start() {
	f.startOnce.Do(func() {
		f.wg.Add(1)
		go f.run()
	})
}

func (f *Flusher) run() {
	defer f.wg.Done()
	for {
		select {
		case <-f.done:
			return
		case <-f.dirty:
			ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
			if err := f.Flush(ctx); err != nil {
				f.log.Error().Err(err).Msg("background save failed; in-memory state remains authoritative")
			}
			cancel()
		}
	}
}

// RequestFlush marks the state dirty without blocking.
func (f *Flusher) RequestFlush() {
	select {
	case f.dirty <- struct{}{}:
	default:
	}
}

// Flush saves a snapshot synchronously.
func (f *Flusher) Flush(ctx context.Context) error {
	f.saveMu.Lock()
	defer f.saveMu.Unlock()
	snap := f.src.Snapshot()
	if err := f.repo.Save(ctx, snap); err != nil {
		f.failures.Add(1)
		return err
	}
	f.saves.Add(1)
	f.log.Debug().Int("links", len(snap.Links)).Msg("links saved")
	return nil
}

// Close stops the worker, waits for an in-flight save, then performs a final synchronous save.
func (f *Flusher) Close(ctx context.Context) error {
	var err error
	f.closeOnce.Do(func() {
		close(f.done)
		f.wg.Wait()
		err = f.Flush(ctx)
	})
	return err
}

// Saves returns the number of successful saves.
func (f *Flusher) Saves() int64 {
	return f.saves.Load()
}

// Failures returns the number of failed saves.
func (f *Flusher) Failures() int64 {
	return f.failures.Load()
}
