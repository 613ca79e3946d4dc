// Package blockcmd routes per-block commands, such as opening the project
// card editor, from the block that raised them to whoever handles them.
package blockcmd

import (
	"errors"
	"sync"
)

var ErrUnhandled = errors.New("no handler subscribed")

type Command interface {
	Name() string
	Block() string
}

// OpenEditor asks the host UI to open the property editor for a block.
type OpenEditor struct {
	BlockID string `json:"blockId"`
}

func (OpenEditor) Name() string    { return "open-editor" }
func (c OpenEditor) Block() string { return c.BlockID }

// UpdateProps replaces props on a block with the values the editor produced.
type UpdateProps struct {
	BlockID string         `json:"blockId"`
	Props   map[string]any `json:"props"`
}

func (UpdateProps) Name() string    { return "update-props" }
func (c UpdateProps) Block() string { return c.BlockID }

type Handler func(Command)

// Dispatcher delivers commands to its subscribers in subscription order.
// There is no process-wide instance: each editor host owns one.
type Dispatcher struct {
	mu     sync.RWMutex
	subs   map[int]Handler
	order  []int
	nextID int
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{subs: make(map[int]Handler)}
}

// Subscribe registers h and returns a func that removes it. The returned
// func may be called more than once.
func (d *Dispatcher) Subscribe(h Handler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextID
	d.nextID++
	d.subs[id] = h
	d.order = append(d.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.subs, id)
			for i, v := range d.order {
				if v == id {
					d.order = append(d.order[:i], d.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Dispatch calls every handler with cmd on the caller's goroutine. Handlers
// subscribed during a dispatch first see the next command.
func (d *Dispatcher) Dispatch(cmd Command) error {
	d.mu.RLock()
	handlers := make([]Handler, 0, len(d.order))
	for _, id := range d.order {
		handlers = append(handlers, d.subs[id])
	}
	d.mu.RUnlock()

	if len(handlers) == 0 {
		return ErrUnhandled
	}
	for _, h := range handlers {
		h(cmd)
	}
	return nil
}

func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs)
}

// PropsUpdater is the part of an editor buffer UpdateProps commands act on.
type PropsUpdater interface {
	UpdateBlockProps(id string, props map[string]any) bool
}

// ApplyProps returns a handler that applies UpdateProps commands to target.
// applied, when non-nil, is told whether the block was found.
func ApplyProps(target PropsUpdater, applied func(UpdateProps, bool)) Handler {
	return func(cmd Command) {
		up, ok := cmd.(UpdateProps)
		if !ok {
			return
		}
		found := target.UpdateBlockProps(up.BlockID, up.Props)
		if applied != nil {
			applied(up, found)
		}
	}
}
