// Package backend provides Go bindings for the Wails frontend.
package backend

import (
	"errors"
	"time"

	"faltas/internal/sidecar"
)

// State is the backend state shown by the loading page.
type State string

const (
	StateStarting    State = "starting"
	StateReady       State = "ready"
	StateDegraded    State = "degraded"    // running, but did not answer before the deadline
	StateUnavailable State = "unavailable" // could not be launched
	StateDevelopment State = "development" // no packaged backend
	StateStopped     State = "stopped"
)

// StatusEvent is the Wails event carrying Status updates.
const StatusEvent = "backend:status"

// Status represents the backend status.
type Status struct {
	State     State     `json:"state"`
	URL       string    `json:"url,omitempty"`
	Port      int       `json:"port,omitempty"`
	PID       int       `json:"pid,omitempty"`
	LaunchID  string    `json:"launch_id,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// StatusFromLaunch maps the outcome of Supervisor.Launch to a Status.
// devURL is where the window goes when there is no packaged backend.
func StatusFromLaunch(h *sidecar.Handle, err error, devURL string) Status {
	switch {
	case err != nil:
		return Status{State: StateUnavailable, Message: err.Error()}
	case h == nil:
		s := Status{State: StateDevelopment, URL: devURL}
		if devURL == "" {
			s.Message = "no packaged backend and no development URL configured"
		}
		return s
	}

	s := Status{
		State:     StateReady,
		URL:       h.Endpoint().URL(),
		Port:      h.Endpoint().Port,
		PID:       h.PID(),
		LaunchID:  h.LaunchID(),
		StartedAt: h.StartedAt(),
	}
	if !h.Ready() {
		s.State = StateDegraded
		s.Message = sidecar.ErrReadinessTimeout.Error()
	}
	return s
}

// Error definitions.
var (
	ErrInvalidURL        = errors.New("invalid URL")
	ErrUnsupportedScheme = errors.New("only http and https URLs can be opened")
)
