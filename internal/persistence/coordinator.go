// Package persistence coordinates saving and loading one document across the
// remote and local storage tiers.
//
// Saves go to the remote store first; the local store only receives content
// when the remote write fails. Loads read the local store first, since after
// a degraded save it holds the newest copy, and fall back to the remote.
// Only a remote confirmation ever produces a successful save state.
package persistence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/debemdeboas/docsave/internal/document"
	"github.com/debemdeboas/docsave/internal/metrics"
	"github.com/debemdeboas/docsave/internal/repository"
	"github.com/debemdeboas/docsave/internal/savestate"
	"github.com/debemdeboas/docsave/internal/tracing"
)

// Editor is the document a coordinator is bound to.
type Editor interface {
	Document() document.Document
	ReplaceDocument(document.Document)
}

type Outcome string

const (
	// OutcomeSkipped: nothing serializable was bound; no store was touched.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeSaved: the remote store confirmed the write.
	OutcomeSaved Outcome = "saved"
	// OutcomeFallback: the remote write failed and the local store was tried.
	OutcomeFallback Outcome = "fallback"
	// OutcomeRejected: the content failed validation; no store was touched.
	OutcomeRejected Outcome = "rejected"
)

// FallbackTimeout bounds the local fallback write, which runs detached from
// the caller's context.
const FallbackTimeout = 5 * time.Second

const (
	SourceLocal  = "local"
	SourceRemote = "remote"
	SourceNone   = "none"
)

type Coordinator struct {
	id     repository.ContentID
	local  repository.LocalRepository
	remote repository.RemoteRepository
	state  *savestate.Writer

	now          func() time.Time
	log          zerolog.Logger
	tracer       trace.Tracer
	singleFlight bool

	mu         sync.Mutex
	editor     Editor
	generation uint64
	inflight   *flight
	next       *flight
}

type flight struct {
	done    chan struct{}
	outcome Outcome
}

type Option func(*Coordinator)

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.log = l
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(c *Coordinator) {
		c.tracer = t
	}
}

// WithSingleFlight serializes overlapping saves. A save started while another
// is in flight queues one follow-up cycle that runs once the current one
// returns; further saves arriving before the follow-up starts share its
// outcome.
func WithSingleFlight() Option {
	return func(c *Coordinator) {
		c.singleFlight = true
	}
}

func New(id repository.ContentID, local repository.LocalRepository, remote repository.RemoteRepository, state *savestate.Writer, opts ...Option) *Coordinator {
	c := &Coordinator{
		id:     id.OrDefault(),
		local:  local,
		remote: remote,
		state:  state,
		now:    time.Now,
		log:    zerolog.Nop(),
		tracer: tracing.Tracer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("content_id", string(c.id)).Logger()
	return c
}

func (c *Coordinator) ContentID() repository.ContentID {
	return c.id
}

// Bind attaches the editor whose document is saved and loaded. Any load
// still running for a previous binding will discard its result.
func (c *Coordinator) Bind(e Editor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editor = e
	c.generation++
}

func (c *Coordinator) Unbind() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editor = nil
	c.generation++
}

func (c *Coordinator) binding() (Editor, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editor, c.generation
}

// Save runs one save cycle. It never fails: every outcome is reflected in
// the save state, and the returned Outcome is informational.
func (c *Coordinator) Save(ctx context.Context) Outcome {
	if !c.singleFlight {
		return c.save(ctx)
	}

	c.mu.Lock()
	if f := c.next; f != nil {
		c.mu.Unlock()
		<-f.done
		return f.outcome
	}
	f := &flight{done: make(chan struct{})}
	prev := c.inflight
	if prev != nil {
		c.next = f
	} else {
		c.inflight = f
	}
	c.mu.Unlock()

	if prev != nil {
		<-prev.done
		c.mu.Lock()
		c.next = nil
		c.inflight = f
		c.mu.Unlock()
	}

	defer func() {
		c.mu.Lock()
		if c.inflight == f {
			c.inflight = nil
		}
		c.mu.Unlock()
		close(f.done)
	}()
	f.outcome = c.save(ctx)
	return f.outcome
}

func (c *Coordinator) save(ctx context.Context) Outcome {
	ctx, span := c.tracer.Start(ctx, "persistence.save",
		trace.WithAttributes(attribute.String("content_id", string(c.id))))
	defer span.End()

	started := time.Now()
	outcome, reason := c.saveCycle(ctx)

	span.SetAttributes(attribute.String("outcome", string(outcome)))
	if reason != "" {
		span.SetStatus(codes.Error, reason)
	}
	metrics.Saves.WithLabelValues(string(c.id), string(outcome)).Inc()
	if outcome != OutcomeSkipped {
		metrics.SaveDuration.WithLabelValues(string(c.id)).Observe(time.Since(started).Seconds())
	}
	return outcome
}

// saveCycle returns the outcome and, for failed cycles, the reason published.
func (c *Coordinator) saveCycle(ctx context.Context) (Outcome, string) {
	editor, _ := c.binding()
	if editor == nil {
		c.log.Debug().Msg("No document bound, skipping save")
		return OutcomeSkipped, ""
	}

	// Serializing before entering Saving means a skipped save leaves the
	// published state exactly as it was.
	content, ok := document.Serialize(editor.Document())
	if !ok {
		c.log.Debug().Msg("Document not serializable, skipping save")
		return OutcomeSkipped, ""
	}

	c.state.Begin()

	_, err := c.remote.Save(ctx, c.id, content)
	if err == nil {
		c.state.Succeed(c.now())
		c.log.Debug().Int("bytes", len(content)).Msg("Content saved to remote store")
		return OutcomeSaved, ""
	}

	reason := repository.Reason(err)
	if errors.Is(err, repository.ErrValidation) {
		c.log.Warn().Err(err).Msg("Save rejected")
		c.state.Fail(reason, false)
		return OutcomeRejected, reason
	}

	c.log.Warn().Err(err).Msg("Remote save failed, using local fallback")

	// The remote failure may be the caller's cancellation; the fallback
	// write must not share it.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), FallbackTimeout)
	defer cancel()

	unprotected := false
	if perr := c.local.Put(fctx, c.id, content); perr != nil {
		unprotected = true
		c.log.Error().Err(perr).Msg("Local fallback write failed")
		metrics.FallbackWrites.WithLabelValues(string(c.id), "failed").Inc()
	} else {
		c.log.Info().Str("key", repository.Key(c.id)).Msg("Content saved to local store")
		metrics.FallbackWrites.WithLabelValues(string(c.id), "ok").Inc()
	}

	c.state.Fail(reason, unprotected)
	return OutcomeFallback, reason
}

// Load reads the document from the local store, then the remote store, and
// replaces the bound editor's document with the first usable copy. It
// reports whether a document was applied. Nothing is applied when both
// tiers are empty, when the binding changed while loading, or when nothing
// is bound.
func (c *Coordinator) Load(ctx context.Context) bool {
	editor, generation := c.binding()
	if editor == nil {
		return false
	}

	ctx, span := c.tracer.Start(ctx, "persistence.load",
		trace.WithAttributes(attribute.String("content_id", string(c.id))))
	defer span.End()

	doc, source := c.fetch(ctx)
	span.SetAttributes(attribute.String("source", source))
	metrics.Loads.WithLabelValues(string(c.id), source).Inc()

	if doc == nil {
		c.log.Debug().Msg("No stored content, keeping current document")
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editor != editor || c.generation != generation {
		c.log.Info().Str("source", source).Msg("Binding changed during load, discarding result")
		span.SetAttributes(attribute.Bool("stale", true))
		return false
	}

	editor.ReplaceDocument(doc)
	c.state.Reset()
	c.log.Info().Str("source", source).Int("blocks", len(doc)).Msg("Document loaded")
	return true
}

func (c *Coordinator) fetch(ctx context.Context) (document.Document, string) {
	if content, ok := c.local.Get(ctx, c.id); ok {
		if doc, ok := c.decode(content, SourceLocal); ok {
			return doc, SourceLocal
		}
	}

	content, ok, err := c.remote.Load(ctx, c.id)
	if err != nil {
		c.log.Warn().Err(err).Msg("Remote load failed")
		return nil, SourceNone
	}
	if ok {
		if doc, ok := c.decode(content, SourceRemote); ok {
			return doc, SourceRemote
		}
	}
	return nil, SourceNone
}

// decode treats malformed and empty documents as absent so a bad copy can
// never wipe the editor.
func (c *Coordinator) decode(content, source string) (document.Document, bool) {
	doc, err := document.Deserialize(content)
	if err != nil {
		c.log.Warn().Err(err).Str("source", source).Msg("Ignoring malformed stored content")
		return nil, false
	}
	if len(doc) == 0 {
		c.log.Debug().Str("source", source).Msg("Ignoring empty stored document")
		return nil, false
	}
	return doc, true
}
