// Package autosave triggers periodic saves of a bound document.
package autosave

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/docsave/internal/metrics"
	"github.com/debemdeboas/docsave/internal/persistence"
	"github.com/debemdeboas/docsave/internal/repository"
)

const DefaultInterval = 30 * time.Second

var ErrAlreadyRunning = errors.New("autosave already running")

type Config struct {
	Enabled  bool
	Interval time.Duration
}

func (c Config) Validate() error {
	if c.Enabled && c.Interval <= 0 {
		return fmt.Errorf("autosave interval must be positive, got %s", c.Interval)
	}
	return nil
}

// Saver is the save operation the scheduler drives.
type Saver interface {
	ContentID() repository.ContentID
	Save(ctx context.Context) persistence.Outcome
}

// Scheduler fires Save every Interval, measured from Start. A tick never
// waits for the previous save: slow saves overlap.
type Scheduler struct {
	saver    Saver
	interval time.Duration
	log      zerolog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	saves sync.WaitGroup
}

func New(saver Saver, cfg Config, log zerolog.Logger) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		saver:    saver,
		interval: interval,
		log:      log.With().Str("component", "autosave").Str("content_id", string(saver.ContentID())).Logger(),
	}
}

func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Start begins ticking. The loop ends on Stop or when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(runCtx, s.done)
	s.log.Debug().Dur("interval", s.interval).Msg("Autosave started")
	return nil
}

// Stop halts the ticker and waits for the loop to exit. Saves already
// started keep running. Calling Stop on a stopped scheduler does nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	<-done
	s.log.Debug().Msg("Autosave stopped")
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Wait blocks until every save launched by a tick has returned.
func (s *Scheduler) Wait() {
	s.saves.Wait()
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	id := string(s.saver.ContentID())
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			if s.done == done {
				s.running = false
			}
			s.mu.Unlock()
			return
		case <-ticker.C:
			// A stop racing with the tick wins.
			if ctx.Err() != nil {
				continue
			}
			metrics.AutosaveTicks.WithLabelValues(id).Inc()
			s.saves.Add(1)
			go func() {
				defer s.saves.Done()
				outcome := s.saver.Save(context.WithoutCancel(ctx))
				s.log.Debug().Str("outcome", string(outcome)).Msg("Autosave tick")
			}()
		}
	}
}
