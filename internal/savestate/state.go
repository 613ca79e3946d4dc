// Package savestate holds the save status shown next to the editor and fans
// it out to observers.
package savestate

import (
	"encoding/json"
	"fmt"
	"time"
)

type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseSaving    Phase = "saving"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
)

// State is one consistent snapshot. At most one of IsLoading, IsSuccess and
// Error is set. LastSaved survives failed saves.
type State struct {
	IsLoading bool
	IsSuccess bool
	Error     *string
	LastSaved *time.Time

	// Unprotected is set on a failed save whose local fallback write also
	// failed: the content exists nowhere but in the editor.
	Unprotected bool
}

func (s State) Phase() Phase {
	switch {
	case s.IsLoading:
		return PhaseSaving
	case s.Error != nil:
		return PhaseFailed
	case s.IsSuccess:
		return PhaseSucceeded
	default:
		return PhaseIdle
	}
}

func (s State) ErrorMessage() string {
	if s.Error == nil {
		return ""
	}
	return *s.Error
}

// clone copies the pointed-to values so snapshots never alias.
func (s State) clone() State {
	out := s
	if s.Error != nil {
		e := *s.Error
		out.Error = &e
	}
	if s.LastSaved != nil {
		t := *s.LastSaved
		out.LastSaved = &t
	}
	return out
}

type wireState struct {
	IsLoading   bool       `json:"isLoading"`
	IsSuccess   bool       `json:"isSuccess"`
	Error       *string    `json:"error"`
	LastSaved   *time.Time `json:"lastSaved"`
	Unprotected bool       `json:"unprotected,omitempty"`
	Phase       Phase      `json:"phase"`
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireState{
		IsLoading:   s.IsLoading,
		IsSuccess:   s.IsSuccess,
		Error:       s.Error,
		LastSaved:   s.LastSaved,
		Unprotected: s.Unprotected,
		Phase:       s.Phase(),
	})
}

func (s *State) UnmarshalJSON(data []byte) error {
	var w wireState
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = State{
		IsLoading:   w.IsLoading,
		IsSuccess:   w.IsSuccess,
		Error:       w.Error,
		LastSaved:   w.LastSaved,
		Unprotected: w.Unprotected,
	}
	return nil
}

// FormatLastSaved renders LastSaved relative to now: "12s ago", "4m ago",
// then the wall-clock time after an hour. Empty when never saved.
func (s State) FormatLastSaved(now time.Time) string {
	if s.LastSaved == nil {
		return ""
	}
	diff := now.Sub(*s.LastSaved)
	seconds := int(diff / time.Second)
	minutes := seconds / 60

	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds ago", max(seconds, 0))
	case minutes < 60:
		return fmt.Sprintf("%dm ago", minutes)
	default:
		return s.LastSaved.Local().Format(time.Kitchen)
	}
}
