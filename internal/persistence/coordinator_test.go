package persistence

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/debemdeboas/docsave/internal/db"
	"github.com/debemdeboas/docsave/internal/document"
	"github.com/debemdeboas/docsave/internal/editor"
	"github.com/debemdeboas/docsave/internal/repository"
	"github.com/debemdeboas/docsave/internal/repository/local"
	"github.com/debemdeboas/docsave/internal/repository/remote"
	"github.com/debemdeboas/docsave/internal/repository/remote/remotetest"
	"github.com/debemdeboas/docsave/internal/savestate"
	"github.com/debemdeboas/docsave/internal/util/compression"
)

type fakeRemote struct {
	mu       sync.Mutex
	contents map[repository.ContentID]string
	saveErr  error
	loadErr  error

	// loadGate, when set, blocks Load until it is closed.
	loadGate  chan struct{}
	loadEnter chan struct{}
	saveGate  chan struct{}

	saves atomic.Int32
	loads atomic.Int32
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{contents: make(map[repository.ContentID]string)}
}

func (f *fakeRemote) fail(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if reason == "" {
		f.saveErr = nil
		return
	}
	f.saveErr = repository.NewRemoteUnavailable("save", reason, nil)
}

func (f *fakeRemote) Save(_ context.Context, id repository.ContentID, content string) (repository.SaveResult, error) {
	f.saves.Add(1)
	f.mu.Lock()
	gate := f.saveGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if content == "" {
		return repository.SaveResult{}, repository.ErrContentRequired()
	}
	if f.saveErr != nil {
		return repository.SaveResult{}, f.saveErr
	}
	f.contents[id] = content
	return repository.SaveResult{ID: id, Timestamp: time.Now()}, nil
}

func (f *fakeRemote) Load(_ context.Context, id repository.ContentID) (string, bool, error) {
	f.loads.Add(1)
	f.mu.Lock()
	gate, enter := f.loadGate, f.loadEnter
	f.mu.Unlock()
	if enter != nil {
		close(enter)
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return "", false, f.loadErr
	}
	c, ok := f.contents[id]
	return c, ok, nil
}

func (f *fakeRemote) stored(id repository.ContentID) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.contents[id]
	return c, ok
}

func paragraph(id, text string) document.Block {
	b, _ := json.Marshal(map[string]any{
		"id":      id,
		"type":    "paragraph",
		"content": []map[string]any{{"type": "text", "text": text}},
	})
	return b
}

func doc(blocks ...document.Block) document.Document {
	return document.Document(blocks)
}

func serialize(t *testing.T, d document.Document) string {
	t.Helper()
	s, ok := document.Serialize(d)
	if !ok {
		t.Fatalf("document not serializable")
	}
	return s
}

type harness struct {
	remote *fakeRemote
	local  *local.MemoryRepository
	pub    *savestate.Publisher
	buf    *editor.Buffer
	coord  *Coordinator
}

func newHarness(t *testing.T, initial document.Document, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		remote: newFakeRemote(),
		local:  local.NewMemoryRepository(),
		buf:    editor.NewBuffer(initial),
	}
	pub, w := savestate.NewPublisher()
	h.pub = pub
	h.coord = New("doc-1", h.local, h.remote, w, opts...)
	h.coord.Bind(h.buf)
	return h
}

func TestSaveSuccess(t *testing.T) {
	d := doc(paragraph("a", "hello"))
	h := newHarness(t, d)

	start := time.Now()
	if got := h.coord.Save(context.Background()); got != OutcomeSaved {
		t.Fatalf("Save() = %q, want %q", got, OutcomeSaved)
	}

	st := h.pub.State()
	if st.Phase() != savestate.PhaseSucceeded {
		t.Errorf("phase = %q, want succeeded", st.Phase())
	}
	if st.Error != nil || st.IsLoading {
		t.Errorf("unexpected state %+v", st)
	}
	if st.LastSaved == nil || st.LastSaved.Before(start) {
		t.Errorf("LastSaved = %v, want >= %v", st.LastSaved, start)
	}

	want := serialize(t, d)
	if got, ok := h.remote.stored("doc-1"); !ok || got != want {
		t.Errorf("remote content = %q, want %q", got, want)
	}
	if _, ok := h.local.Get(context.Background(), "doc-1"); ok {
		t.Error("local store written on a successful save")
	}
}

func TestSaveFallback(t *testing.T) {
	ctx := context.Background()
	d1 := doc(paragraph("a", "first"))
	h := newHarness(t, d1)

	if got := h.coord.Save(ctx); got != OutcomeSaved {
		t.Fatalf("first Save() = %q", got)
	}
	saved := *h.pub.State().LastSaved

	d2 := doc(paragraph("a", "second"))
	h.buf.ReplaceDocument(d2)
	h.remote.fail("Failed to save: Internal Server Error")

	if got := h.coord.Save(ctx); got != OutcomeFallback {
		t.Fatalf("Save() = %q, want %q", got, OutcomeFallback)
	}

	st := h.pub.State()
	if st.Phase() != savestate.PhaseFailed {
		t.Errorf("phase = %q, want failed", st.Phase())
	}
	if st.ErrorMessage() != "Failed to save: Internal Server Error" {
		t.Errorf("error = %q", st.ErrorMessage())
	}
	if st.Unprotected {
		t.Error("Unprotected set although the local write succeeded")
	}
	if st.LastSaved == nil || !st.LastSaved.Equal(saved) {
		t.Errorf("LastSaved = %v, want %v", st.LastSaved, saved)
	}

	got, ok := h.local.Get(ctx, "doc-1")
	if !ok || got != serialize(t, d2) {
		t.Errorf("local content = %q, %v", got, ok)
	}
}

func TestSaveFallbackUnprotected(t *testing.T) {
	h := newHarness(t, doc(paragraph("a", "x")))
	h.remote.fail("Failed to save: Bad Gateway")
	h.local.SetDisabled(true)

	if got := h.coord.Save(context.Background()); got != OutcomeFallback {
		t.Fatalf("Save() = %q, want %q", got, OutcomeFallback)
	}
	st := h.pub.State()
	if !st.Unprotected {
		t.Error("expected Unprotected when the local write fails")
	}
	if st.ErrorMessage() != "Failed to save: Bad Gateway" {
		t.Errorf("error = %q, want the remote reason", st.ErrorMessage())
	}
}

func TestSaveSkipsWithoutDocument(t *testing.T) {
	t.Run("unbound", func(t *testing.T) {
		h := newHarness(t, doc(paragraph("a", "x")))
		h.coord.Unbind()

		if got := h.coord.Save(context.Background()); got != OutcomeSkipped {
			t.Fatalf("Save() = %q, want %q", got, OutcomeSkipped)
		}
		if n := h.remote.saves.Load(); n != 0 {
			t.Errorf("remote saves = %d, want 0", n)
		}
		if st := h.pub.State(); st.Phase() != savestate.PhaseIdle {
			t.Errorf("phase = %q, want idle", st.Phase())
		}
	})

	t.Run("nil document", func(t *testing.T) {
		h := newHarness(t, nil)
		before := h.pub.State()

		if got := h.coord.Save(context.Background()); got != OutcomeSkipped {
			t.Fatalf("Save() = %q, want %q", got, OutcomeSkipped)
		}
		if n := h.remote.saves.Load(); n != 0 {
			t.Errorf("remote saves = %d, want 0", n)
		}
		if _, ok := h.local.Get(context.Background(), "doc-1"); ok {
			t.Error("local store written for an empty save")
		}
		if after := h.pub.State(); after.Phase() != before.Phase() || after.LastSaved != nil {
			t.Errorf("state changed: %+v", after)
		}
	})
}

func TestSaveRejected(t *testing.T) {
	h := newHarness(t, doc(paragraph("a", "x")))
	h.remote.mu.Lock()
	h.remote.saveErr = repository.ErrContentRequired()
	h.remote.mu.Unlock()

	if got := h.coord.Save(context.Background()); got != OutcomeRejected {
		t.Fatalf("Save() = %q, want %q", got, OutcomeRejected)
	}
	if _, ok := h.local.Get(context.Background(), "doc-1"); ok {
		t.Error("rejected content written to the local store")
	}
	if msg := h.pub.State().ErrorMessage(); msg != "content: Content is required" {
		t.Errorf("error = %q", msg)
	}
}

func TestSaveUsesClock(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, doc(paragraph("a", "x")), WithClock(func() time.Time { return fixed }))

	h.coord.Save(context.Background())
	if st := h.pub.State(); st.LastSaved == nil || !st.LastSaved.Equal(fixed) {
		t.Errorf("LastSaved = %v, want %v", st.LastSaved, fixed)
	}
}

func TestLoadPrefersLocal(t *testing.T) {
	ctx := context.Background()
	localDoc := doc(paragraph("a", "local"))
	remoteDoc := doc(paragraph("a", "remote"))

	h := newHarness(t, document.Welcome())
	h.local.Put(ctx, "doc-1", serialize(t, localDoc))
	h.remote.contents["doc-1"] = serialize(t, remoteDoc)

	if !h.coord.Load(ctx) {
		t.Fatal("Load() = false")
	}
	if got := h.buf.Document(); !document.Equal(got, localDoc) {
		t.Errorf("document = %s, want the local copy", serialize(t, got))
	}
	if n := h.remote.loads.Load(); n != 0 {
		t.Errorf("remote loads = %d, want 0", n)
	}
}

func TestLoadFallsBackToRemote(t *testing.T) {
	ctx := context.Background()
	remoteDoc := doc(paragraph("a", "remote"))

	h := newHarness(t, document.Welcome())
	h.remote.contents["doc-1"] = serialize(t, remoteDoc)

	if !h.coord.Load(ctx) {
		t.Fatal("Load() = false")
	}
	if got := h.buf.Document(); !document.Equal(got, remoteDoc) {
		t.Errorf("document = %s, want the remote copy", serialize(t, got))
	}
}

func TestLoadMalformedLocalFallsThrough(t *testing.T) {
	ctx := context.Background()
	remoteDoc := doc(paragraph("a", "remote"))

	h := newHarness(t, document.Welcome())
	h.local.Put(ctx, "doc-1", "{not json")
	h.remote.contents["doc-1"] = serialize(t, remoteDoc)

	if !h.coord.Load(ctx) {
		t.Fatal("Load() = false")
	}
	if got := h.buf.Document(); !document.Equal(got, remoteDoc) {
		t.Errorf("document = %s, want the remote copy", serialize(t, got))
	}
}

func TestLoadNothingStored(t *testing.T) {
	ctx := context.Background()
	initial := document.Welcome()
	h := newHarness(t, initial)

	// a previous save leaves LastSaved set; an empty load must not clear it.
	h.coord.Save(ctx)
	h.remote.mu.Lock()
	delete(h.remote.contents, "doc-1")
	h.remote.mu.Unlock()
	before := h.pub.State()

	if h.coord.Load(ctx) {
		t.Fatal("Load() = true with both stores empty")
	}
	if got := h.buf.Document(); !document.Equal(got, initial) {
		t.Error("document replaced although nothing was stored")
	}
	if after := h.pub.State(); after.LastSaved == nil || !after.LastSaved.Equal(*before.LastSaved) {
		t.Errorf("LastSaved = %v, want %v", after.LastSaved, before.LastSaved)
	}
}

func TestLoadRemoteError(t *testing.T) {
	h := newHarness(t, document.Welcome())
	h.remote.loadErr = repository.NewRemoteUnavailable("load", "Failed to load: Service Unavailable", nil)

	if h.coord.Load(context.Background()) {
		t.Fatal("Load() = true on remote failure")
	}
	if got := h.buf.Document(); !document.Equal(got, document.Welcome()) {
		t.Error("document replaced on remote failure")
	}
}

func TestLoadResetsState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, doc(paragraph("a", "x")))
	h.remote.fail("Failed to save: Internal Server Error")
	h.coord.Save(ctx)

	if h.pub.State().Phase() != savestate.PhaseFailed {
		t.Fatal("setup: expected a failed save")
	}
	if !h.coord.Load(ctx) {
		t.Fatal("Load() = false")
	}
	st := h.pub.State()
	if st.Phase() != savestate.PhaseIdle || st.LastSaved != nil {
		t.Errorf("state after load = %+v, want empty idle", st)
	}
}

func TestLoadDiscardsStaleResult(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, document.Welcome())
	h.remote.contents["doc-1"] = serialize(t, doc(paragraph("a", "remote")))

	gate, enter := make(chan struct{}), make(chan struct{})
	h.remote.mu.Lock()
	h.remote.loadGate, h.remote.loadEnter = gate, enter
	h.remote.mu.Unlock()

	result := make(chan bool, 1)
	go func() {
		result <- h.coord.Load(ctx)
	}()

	<-enter
	replacement := editor.NewBuffer(doc(paragraph("b", "new editor")))
	h.coord.Bind(replacement)
	close(gate)

	if <-result {
		t.Fatal("Load() = true after the binding changed")
	}
	if got := replacement.Document(); !document.Equal(got, doc(paragraph("b", "new editor"))) {
		t.Error("stale load replaced the new editor's document")
	}
	if got := h.buf.Document(); !document.Equal(got, document.Welcome()) {
		t.Error("stale load replaced the old editor's document")
	}
}

func TestOverlappingSaves(t *testing.T) {
	h := newHarness(t, doc(paragraph("a", "x")))
	gate := make(chan struct{})
	h.remote.mu.Lock()
	h.remote.saveGate = gate
	h.remote.mu.Unlock()

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.coord.Save(context.Background())
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.remote.saves.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(gate)
	wg.Wait()

	if n := h.remote.saves.Load(); n != 3 {
		t.Errorf("remote saves = %d, want 3", n)
	}
	if st := h.pub.State(); st.Phase() != savestate.PhaseSucceeded {
		t.Errorf("phase = %q, want succeeded", st.Phase())
	}
}

func TestSingleFlight(t *testing.T) {
	h := newHarness(t, doc(paragraph("a", "old")), WithSingleFlight())
	gate := make(chan struct{})
	h.remote.mu.Lock()
	h.remote.saveGate = gate
	h.remote.mu.Unlock()

	first := make(chan Outcome, 1)
	go func() {
		first <- h.coord.Save(context.Background())
	}()

	deadline := time.Now().Add(2 * time.Second)
	for h.remote.saves.Load() < 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	// An edit made while the first save is in flight must still reach the
	// remote store before a later save reports success.
	newer := doc(paragraph("a", "new"))
	h.buf.ReplaceDocument(newer)

	second := make(chan Outcome, 1)
	third := make(chan Outcome, 1)
	go func() {
		second <- h.coord.Save(context.Background())
	}()
	time.Sleep(20 * time.Millisecond)
	go func() {
		third <- h.coord.Save(context.Background())
	}()
	time.Sleep(20 * time.Millisecond)

	if n := h.remote.saves.Load(); n != 1 {
		t.Errorf("remote saves while first in flight = %d, want 1", n)
	}
	close(gate)

	for name, ch := range map[string]chan Outcome{"first": first, "second": second, "third": third} {
		select {
		case got := <-ch:
			if got != OutcomeSaved {
				t.Errorf("%s Save() = %q", name, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("%s Save() did not return", name)
		}
	}
	if n := h.remote.saves.Load(); n != 2 {
		t.Errorf("remote saves = %d, want 2 (one follow-up for both waiters)", n)
	}
	if got, _ := h.remote.stored("doc-1"); got != serialize(t, newer) {
		t.Errorf("remote content = %s, want the edited document", got)
	}
	if st := h.pub.State(); !st.IsSuccess {
		t.Errorf("Expected success state, got %+v", st)
	}
}

func TestSingleFlightSequential(t *testing.T) {
	h := newHarness(t, doc(paragraph("a", "x")), WithSingleFlight())
	ctx := context.Background()

	for i := range 3 {
		if got := h.coord.Save(ctx); got != OutcomeSaved {
			t.Fatalf("Save() #%d = %q", i, got)
		}
	}
	if n := h.remote.saves.Load(); n != 3 {
		t.Errorf("remote saves = %d, want 3", n)
	}
}

// TestSaveFallbackCancelledContext covers a caller that goes away mid-save:
// the remote write fails with the cancellation but the local copy is still
// written.
func TestSaveFallbackCancelledContext(t *testing.T) {
	server := remotetest.NewServer()
	defer server.Close()

	database := db.NewSQLite(db.MemoryPath)
	if err := database.InitDB(); err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	store := local.NewSQLiteRepository(database, compression.NoopCompressor{})
	defer store.Close()

	d := doc(paragraph("a", "kept"))
	pub, w := savestate.NewPublisher()
	coord := New("doc-1", store, remote.NewHTTPClient(server.URL), w)
	coord.Bind(editor.NewBuffer(d))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if got := coord.Save(ctx); got != OutcomeFallback {
		t.Fatalf("Save() = %q, want %q", got, OutcomeFallback)
	}
	st := pub.State()
	if st.Unprotected {
		t.Errorf("Expected the fallback write to succeed, got %+v", st)
	}
	got, ok := store.Get(context.Background(), "doc-1")
	if !ok || got != serialize(t, d) {
		t.Errorf("local content = %q (present=%v), want the document", got, ok)
	}
	if server.Saves() != 0 {
		t.Errorf("Expected no remote write, got %d", server.Saves())
	}
}

// TestDegradedRoundTrip walks a document through a healthy save, an outage
// and two reloads.
func TestDegradedRoundTrip(t *testing.T) {
	ctx := context.Background()
	d1 := doc(paragraph("a", "one"))
	d2 := doc(paragraph("a", "one"), paragraph("b", "two"))

	h := newHarness(t, d1)
	if got := h.coord.Save(ctx); got != OutcomeSaved {
		t.Fatalf("Save(D1) = %q", got)
	}

	fresh := editor.NewBuffer(document.Welcome())
	h.coord.Bind(fresh)
	if !h.coord.Load(ctx) || !document.Equal(fresh.Document(), d1) {
		t.Fatalf("load after D1 = %s", serialize(t, fresh.Document()))
	}

	fresh.ReplaceDocument(d2)
	h.remote.fail("Failed to save: Internal Server Error")
	if got := h.coord.Save(ctx); got != OutcomeFallback {
		t.Fatalf("Save(D2) = %q", got)
	}
	if got, _ := h.local.Get(ctx, "doc-1"); got != serialize(t, d2) {
		t.Fatalf("local content = %q", got)
	}

	again := editor.NewBuffer(document.Welcome())
	h.coord.Bind(again)
	if !h.coord.Load(ctx) || !document.Equal(again.Document(), d2) {
		t.Fatalf("load after D2 = %s", serialize(t, again.Document()))
	}
}

func TestContentIDDefault(t *testing.T) {
	_, w := savestate.NewPublisher()
	c := New("", local.NewMemoryRepository(), newFakeRemote(), w)
	if c.ContentID() != repository.DefaultContentID {
		t.Errorf("ContentID() = %q, want %q", c.ContentID(), repository.DefaultContentID)
	}
}
