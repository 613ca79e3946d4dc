// Package session ties one editor buffer to its coordinator, save state and
// autosave timer for the lifetime of an editing view.
package session

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/debemdeboas/docsave/internal/autosave"
	"github.com/debemdeboas/docsave/internal/editor"
	"github.com/debemdeboas/docsave/internal/persistence"
	"github.com/debemdeboas/docsave/internal/repository"
	"github.com/debemdeboas/docsave/internal/savestate"
)

type Config struct {
	ContentID repository.ContentID
	Autosave  autosave.Config
}

type Session struct {
	buffer      *editor.Buffer
	publisher   *savestate.Publisher
	coordinator *persistence.Coordinator
	scheduler   *autosave.Scheduler
	log         zerolog.Logger

	mu      sync.Mutex
	open    bool
	closers []io.Closer
}

func New(cfg Config, local repository.LocalRepository, remote repository.RemoteRepository, buf *editor.Buffer, log zerolog.Logger, opts ...persistence.Option) (*Session, error) {
	if err := cfg.Autosave.Validate(); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	publisher, writer := savestate.NewPublisher()
	log = log.With().Str("content_id", string(cfg.ContentID.OrDefault())).Logger()
	opts = append([]persistence.Option{persistence.WithLogger(log)}, opts...)
	coordinator := persistence.New(cfg.ContentID, local, remote, writer, opts...)

	s := &Session{
		buffer:      buf,
		publisher:   publisher,
		coordinator: coordinator,
		log:         log,
	}
	if cfg.Autosave.Enabled {
		s.scheduler = autosave.New(coordinator, cfg.Autosave, log)
	}
	return s, nil
}

// CloseWith registers c to be closed by Close, after autosave has stopped
// and every in-flight save has returned.
func (s *Session) CloseWith(c io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closers = append(s.closers, c)
}

// Bind attaches the buffer without loading, for one-shot saves of a
// document that did not come from the stores.
func (s *Session) Bind() {
	s.coordinator.Bind(s.buffer)
}

// Open binds the buffer, loads the stored document into it and starts
// autosave. On error the session is left closed.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		return nil
	}

	s.coordinator.Bind(s.buffer)
	s.coordinator.Load(ctx)

	if s.scheduler != nil {
		if err := s.scheduler.Start(ctx); err != nil {
			s.coordinator.Unbind()
			return fmt.Errorf("session: start autosave: %w", err)
		}
	}
	s.open = true
	s.log.Info().Bool("autosave", s.scheduler != nil).Msg("Session opened")
	return nil
}

// Close stops autosave, unbinds the buffer and closes registered resources.
// Saves already running finish first.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scheduler != nil {
		s.scheduler.Stop()
		s.scheduler.Wait()
	}
	s.coordinator.Unbind()
	s.open = false

	var err error
	for i := len(s.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, s.closers[i].Close())
	}
	s.closers = nil
	if err != nil {
		s.log.Error().Err(err).Msg("Session closed with errors")
		return err
	}
	s.log.Info().Msg("Session closed")
	return nil
}

func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *Session) ContentID() repository.ContentID {
	return s.coordinator.ContentID()
}

func (s *Session) Buffer() *editor.Buffer {
	return s.buffer
}

func (s *Session) Publisher() *savestate.Publisher {
	return s.publisher
}

func (s *Session) Save(ctx context.Context) persistence.Outcome {
	return s.coordinator.Save(ctx)
}

func (s *Session) Load(ctx context.Context) bool {
	return s.coordinator.Load(ctx)
}

func (s *Session) AutosaveRunning() bool {
	return s.scheduler != nil && s.scheduler.Running()
}
