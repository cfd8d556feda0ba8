package backend

import (
	"sync"
)

// StatusBoard holds the latest backend status and publishes every change.
type StatusBoard struct {
	mu      sync.RWMutex
	current Status
	publish func(Status)
}

// NewStatusBoard creates a board in the starting state. publish may be nil.
func NewStatusBoard(publish func(Status)) *StatusBoard {
	return &StatusBoard{
		current: Status{State: StateStarting},
		publish: publish,
	}
}

// Set records s and publishes it.
func (b *StatusBoard) Set(s Status) {
	b.mu.Lock()
	b.current = s
	publish := b.publish
	b.mu.Unlock()

	LogStatus(s)
	if publish != nil {
		publish(s)
	}
}

// Get returns the latest status.
func (b *StatusBoard) Get() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

// Republish sends the latest status again, e.g. once the page has loaded.
func (b *StatusBoard) Republish() {
	b.mu.RLock()
	s, publish := b.current, b.publish
	b.mu.RUnlock()

	if publish != nil {
		publish(s)
	}
}
