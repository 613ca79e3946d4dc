package savestate

import (
	"sync"
	"time"
)

// Publisher is the read side of the save state. Observers get snapshots and
// change notifications; only the paired Writer can change the state.
type Publisher struct {
	mu     sync.RWMutex
	state  State
	subs   map[int]chan State
	nextID int
}

// Writer applies the coordinator's transitions. Each method replaces the
// whole state under one lock, so observers never see a partial update.
type Writer struct {
	p *Publisher
}

func NewPublisher() (*Publisher, *Writer) {
	p := &Publisher{subs: make(map[int]chan State)}
	return p, &Writer{p: p}
}

func (p *Publisher) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.clone()
}

// Subscribe returns a channel that always holds the most recent state not
// yet received. Slow readers skip intermediate states. The returned func
// unsubscribes and closes the channel; it is safe to call more than once.
func (p *Publisher) Subscribe() (<-chan State, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	ch := make(chan State, 1)
	p.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.subs, id)
			close(ch)
		})
	}
}

func (p *Publisher) set(fn func(prev State) State) State {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = fn(p.state)
	for _, ch := range p.subs {
		deliverLatest(ch, p.state.clone())
	}
	return p.state.clone()
}

func deliverLatest(ch chan State, s State) {
	select {
	case ch <- s:
		return
	default:
	}
	// Drop the stale pending value and retry once; only the holder of
	// p.mu sends, so the retry cannot race another sender.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

func (w *Writer) State() State {
	return w.p.State()
}

// Begin enters Saving and clears any error left by a previous cycle.
func (w *Writer) Begin() State {
	return w.p.set(func(prev State) State {
		return State{IsLoading: true, LastSaved: prev.LastSaved}
	})
}

func (w *Writer) Succeed(at time.Time) State {
	return w.p.set(func(State) State {
		return State{IsSuccess: true, LastSaved: &at}
	})
}

func (w *Writer) Fail(reason string, unprotected bool) State {
	return w.p.set(func(prev State) State {
		return State{Error: &reason, LastSaved: prev.LastSaved, Unprotected: unprotected}
	})
}

// Reset returns to the empty Idle state. Used after a fresh load.
func (w *Writer) Reset() State {
	return w.p.set(func(State) State {
		return State{}
	})
}
