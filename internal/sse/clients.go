// Package sse provides Server-Sent Events client management for real-time communication.
package sse

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/debemdeboas/docsave/internal/repository"
)

const (
	EventConnected = "connected"
	EventSaveState = "save-state"
	EventBlock     = "block"
	EventReload    = "reload"
)

// Message is one event frame.
type Message struct {
	Event string
	Data  string
}

// WriteTo writes m in text/event-stream framing. Multi-line data is split
// into one data field per line.
func (m Message) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	if m.Event != "" {
		fmt.Fprintf(&b, "event: %s\n", m.Event)
	}
	for _, line := range strings.Split(m.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

type Client struct {
	ID        uuid.UUID
	Msg       chan Message
	ContentID repository.ContentID
}

// NewClient creates a client with a buffered message channel.
func NewClient(id repository.ContentID, buffer int) *Client {
	return &Client{
		ID:        uuid.New(),
		Msg:       make(chan Message, buffer),
		ContentID: id.OrDefault(),
	}
}

type SSEClients struct {
	clients map[*Client]bool
	mu      sync.RWMutex
}

func NewSSEClients() *SSEClients {
	return &SSEClients{
		clients: make(map[*Client]bool),
	}
}

func (s *SSEClients) Add(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client] = true
}

func (s *SSEClients) Delete(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[client]; !ok {
		return
	}
	delete(s.clients, client)
	close(client.Msg)
}

func (s *SSEClients) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Broadcast sends msg to every client watching contentID. Clients whose
// buffer is full miss the message.
func (s *SSEClients) Broadcast(contentID repository.ContentID, msg Message) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sent := 0
	for client := range s.clients {
		if client.ContentID == contentID.OrDefault() {
			select {
			case client.Msg <- msg:
				sent++
			default:
			}
		}
	}
	return sent
}
