// Package remotetest provides an in-process save-content server for tests.
package remotetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

const path = "/api/save-content"

// Server implements the save-content wire contract over an in-memory map.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	contents map[string]string
	failing  bool
	saves    int
	loads    int
}

func NewServer() *Server {
	s := &Server{contents: make(map[string]string)}
	mux := http.NewServeMux()
	mux.HandleFunc(path, s.handle)
	s.Server = httptest.NewServer(mux)
	return s
}

// SetFailing makes every request answer 500 until reset.
func (s *Server) SetFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

func (s *Server) Put(id, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contents[id] = content
}

func (s *Server) Content(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contents[id]
	return c, ok
}

// Saves counts accepted save requests.
func (s *Server) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *Server) Loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.Method {
	case http.MethodPost:
		var body struct {
			Content string `json:"content"`
			ID      string `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to save content"})
			return
		}
		if body.Content == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Content is required"})
			return
		}
		if s.failing {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to save content"})
			return
		}
		id := body.ID
		if id == "" {
			id = "default"
		}
		s.contents[id] = body.Content
		s.saves++
		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"message":   "Content saved successfully",
			"id":        id,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	case http.MethodGet:
		if s.failing {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch content"})
			return
		}
		id := r.URL.Query().Get("id")
		if id == "" {
			id = "default"
		}
		s.loads++
		var content *string
		if c, ok := s.contents[id]; ok {
			content = &c
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "content": content})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
