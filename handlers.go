package main

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/debemdeboas/docsave/internal/blockcmd"
	"github.com/debemdeboas/docsave/internal/config"
	"github.com/debemdeboas/docsave/internal/document"
	"github.com/debemdeboas/docsave/internal/repository"
	"github.com/debemdeboas/docsave/internal/routes"
	"github.com/debemdeboas/docsave/internal/savestate"
	"github.com/debemdeboas/docsave/internal/session"
	"github.com/debemdeboas/docsave/internal/sse"
)

// server exposes one editing session over HTTP and streams its save state
// and block commands to connected browsers.
type server struct {
	session    *session.Session
	clients    *sse.SSEClients
	dispatcher *blockcmd.Dispatcher
	limiter    *rate.Limiter
	log        zerolog.Logger
	now        func() time.Time

	stop []func()
}

func newServer(sess *session.Session, saveRate float64, saveBurst int, log zerolog.Logger) *server {
	limit := rate.Inf
	if saveRate > 0 {
		limit = rate.Limit(saveRate)
	}
	s := &server{
		session:    sess,
		clients:    sse.NewSSEClients(),
		dispatcher: blockcmd.NewDispatcher(),
		limiter:    rate.NewLimiter(limit, max(saveBurst, 1)),
		log:        log,
		now:        time.Now,
	}

	s.stop = append(s.stop,
		s.dispatcher.Subscribe(blockcmd.ApplyProps(sess.Buffer(), s.propsApplied)),
		s.dispatcher.Subscribe(s.forwardOpen),
	)

	states, unsubscribe := sess.Publisher().Subscribe()
	s.stop = append(s.stop, unsubscribe)
	go s.forwardStates(states)
	return s
}

// Close detaches the server from the session's publisher and dispatcher.
func (s *server) Close() {
	for _, stop := range s.stop {
		stop()
	}
	s.stop = nil
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+routes.APIDocument, s.serveGetDocument)
	mux.HandleFunc("PUT "+routes.APIDocument, s.servePutDocument)
	mux.HandleFunc("POST "+routes.APISave, s.serveSave)
	mux.HandleFunc("POST "+routes.APILoad, s.serveLoad)
	mux.HandleFunc("GET "+routes.APISaveState, s.serveSaveState)
	mux.HandleFunc("POST "+routes.APIBlockOpen, s.serveOpenBlock)
	mux.HandleFunc("PATCH "+routes.APIBlock, s.servePatchBlock)
	mux.HandleFunc("GET "+routes.SSEPath, s.eventsHandler)
	mux.Handle("GET "+routes.MetricsPath, promhttp.Handler())
	mux.HandleFunc("GET "+routes.HealthPath, s.serveHealth)

	h := secureHeaders(noCache(mux.ServeHTTP))
	h = s.withRequestID(h)
	return otelhttp.NewHandler(h, "docsave")
}

func (s *server) contentID() repository.ContentID {
	return s.session.ContentID()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(config.HCType, config.CTypeJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type health struct {
	Status      string `json:"status"`
	ContentID   string `json:"contentId"`
	Autosave    bool   `json:"autosave"`
	Streams     int    `json:"streams"`
	Subscribers int    `json:"subscribers"`
}

func (s *server) serveHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, health{
		Status:      "ok",
		ContentID:   string(s.contentID()),
		Autosave:    s.session.AutosaveRunning(),
		Streams:     s.clients.Len(),
		Subscribers: s.dispatcher.Len(),
	})
}

// serveGetDocument tags the document with the buffer version so clients can
// poll with If-None-Match.
func (s *server) serveGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, version := s.session.Buffer().Snapshot()
	etag := `"` + strconv.FormatUint(version, 10) + `"`
	if r.Header.Get(config.HIfNoneMatch) == etag {
		w.Header().Set(config.HETag, etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	content, ok := document.Serialize(doc)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set(config.HETag, etag)
	w.Header().Set(config.HCType, config.CTypeJSON)
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, content)
}

func (s *server) servePutDocument(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, config.MaxDocumentBytes))
	if err != nil {
		http.Error(w, config.ErrInvalidDocument, http.StatusRequestEntityTooLarge)
		return
	}
	doc, err := document.Deserialize(string(body))
	if err != nil {
		http.Error(w, config.ErrInvalidDocument, http.StatusBadRequest)
		return
	}
	s.session.Buffer().ReplaceDocument(doc)
	w.WriteHeader(http.StatusNoContent)
}

type saveResponse struct {
	Outcome string          `json:"outcome"`
	State   savestate.State `json:"state"`
}

func (s *server) serveSave(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		http.Error(w, config.ErrTooManySaves, http.StatusTooManyRequests)
		return
	}
	outcome := s.session.Save(r.Context())
	writeJSON(w, http.StatusOK, saveResponse{
		Outcome: string(outcome),
		State:   s.session.Publisher().State(),
	})
}

func (s *server) serveLoad(w http.ResponseWriter, r *http.Request) {
	applied := s.session.Load(r.Context())
	if applied {
		s.clients.Broadcast(s.contentID(), sse.Message{Event: sse.EventReload, Data: string(s.contentID())})
	}
	writeJSON(w, http.StatusOK, map[string]bool{"applied": applied})
}

type saveStateResponse struct {
	State savestate.State `json:"state"`
	Label string          `json:"label"`
}

func (s *server) serveSaveState(w http.ResponseWriter, r *http.Request) {
	st := s.session.Publisher().State()
	writeJSON(w, http.StatusOK, saveStateResponse{State: st, Label: label(st, s.now())})
}

// label is the text shown on the save button.
func label(st savestate.State, now time.Time) string {
	switch st.Phase() {
	case savestate.PhaseSaving:
		return "Saving..."
	case savestate.PhaseSucceeded:
		return "Saved"
	case savestate.PhaseFailed:
		if st.Unprotected {
			return "Unsaved, no fallback available"
		}
		return "Save failed"
	}
	if st.LastSaved != nil {
		return "Saved " + st.FormatLastSaved(now)
	}
	return "Save"
}

func (s *server) serveOpenBlock(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := document.FindBlock(s.session.Buffer().Document(), id); !ok {
		http.Error(w, config.ErrBlockNotFound, http.StatusNotFound)
		return
	}
	if err := s.dispatcher.Dispatch(blockcmd.OpenEditor{BlockID: id}); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) servePatchBlock(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body struct {
		Props map[string]any `json:"props"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, config.MaxDocumentBytes)).Decode(&body); err != nil || body.Props == nil {
		http.Error(w, config.ErrInvalidDocument, http.StatusBadRequest)
		return
	}
	if _, ok := document.FindBlock(s.session.Buffer().Document(), id); !ok {
		http.Error(w, config.ErrBlockNotFound, http.StatusNotFound)
		return
	}
	if err := s.dispatcher.Dispatch(blockcmd.UpdateProps{BlockID: id, Props: body.Props}); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type blockEvent struct {
	Command string         `json:"command"`
	BlockID string         `json:"blockId"`
	Props   map[string]any `json:"props,omitempty"`
}

func (s *server) broadcastBlock(ev blockEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.log.Error().Err(err).Str("block_id", ev.BlockID).Msg("Failed to encode block event")
		return
	}
	s.clients.Broadcast(s.contentID(), sse.Message{Event: sse.EventBlock, Data: string(data)})
}

func (s *server) propsApplied(cmd blockcmd.UpdateProps, found bool) {
	if !found {
		s.log.Warn().Str("block_id", cmd.BlockID).Msg("Block vanished before props update")
		return
	}
	s.broadcastBlock(blockEvent{Command: cmd.Name(), BlockID: cmd.BlockID, Props: cmd.Props})
}

func (s *server) forwardOpen(cmd blockcmd.Command) {
	if open, ok := cmd.(blockcmd.OpenEditor); ok {
		s.broadcastBlock(blockEvent{Command: open.Name(), BlockID: open.BlockID})
	}
}

func (s *server) forwardStates(states <-chan savestate.State) {
	for st := range states {
		data, err := json.Marshal(st)
		if err != nil {
			s.log.Error().Err(err).Msg("Failed to encode save state")
			continue
		}
		s.clients.Broadcast(s.contentID(), sse.Message{Event: sse.EventSaveState, Data: string(data)})
	}
}

func (s *server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	id := repository.ContentID(r.URL.Query().Get("id")).OrDefault()
	if id != s.contentID() {
		http.Error(w, "Unknown content id", http.StatusNotFound)
		return
	}

	w.Header().Set(config.HCType, config.CTypeEventStream)
	w.Header().Set(config.HCacheControl, "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Del("X-Content-Type-Options")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, config.ErrStreamUnsupported, http.StatusInternalServerError)
		return
	}

	client := sse.NewClient(id, 8)
	log := s.log.With().Str("client_id", client.ID.String()).Logger()

	sse.Message{Event: sse.EventConnected, Data: client.ID.String()}.WriteTo(w)
	if data, err := json.Marshal(s.session.Publisher().State()); err == nil {
		sse.Message{Event: sse.EventSaveState, Data: string(data)}.WriteTo(w)
	}
	flusher.Flush()

	s.clients.Add(client)
	log.Debug().Msg("New SSE client connected")

	defer func() {
		s.clients.Delete(client)
		log.Debug().Msg("SSE client disconnected")
	}()

	notify := r.Context().Done()
	for {
		select {
		case msg, ok := <-client.Msg:
			if !ok {
				return
			}
			if _, err := msg.WriteTo(w); err != nil {
				return
			}
			flusher.Flush()
		case <-notify:
			return
		}
	}
}

func (s *server) withRequestID(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(config.HRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(config.HRequestID, id)

		l := s.log.With().Str("request_id", id).Logger()
		r = r.WithContext(l.WithContext(r.Context()))

		start := s.now()
		h(w, r)
		l.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", s.now().Sub(start)).
			Msg("Request served")
	}
}

func noCache(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(config.HCacheControl, "no-cache")
		h(w, r)
	}
}

func secureHeaders(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "deny")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-XSS-Protection", "1; mode=block")

		h(w, r)
	}
}
