package sidecar

import (
	"errors"
	"sync"
)

// ProcessSlot holds at most one live backend process for the lifetime of the
// shell. Taking the process out empties the slot atomically, so concurrent
// terminators see it exactly once.
//
// The first termination request seals the slot: a launch that finishes after
// shutdown began cannot install its process and must kill it instead.
type ProcessSlot struct {
	mu     sync.Mutex
	proc   Process
	sealed bool
}

// NewProcessSlot returns an empty, unsealed slot.
func NewProcessSlot() *ProcessSlot {
	return &ProcessSlot{}
}

// Install stores p in the slot.
func (s *ProcessSlot) Install(p Process) error {
	if p == nil {
		return errors.New("install: nil process")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		return ErrSlotSealed
	}
	if s.proc != nil {
		return ErrSlotOccupied
	}
	s.proc = p
	return nil
}

// Take removes and returns the stored process, or nil.
func (s *ProcessSlot) Take() Process {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.proc
	s.proc = nil
	return p
}

// Present reports whether a process is currently stored.
func (s *ProcessSlot) Present() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc != nil
}

// Sealed reports whether termination has been requested.
func (s *ProcessSlot) Sealed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sealed
}

// TerminateIfPresent takes the stored process out and kills it. It returns
// whether a process was present, plus the kill error if any. Every call
// after the first that found a process is a no-op returning false.
func (s *ProcessSlot) TerminateIfPresent() (bool, error) {
	p, err := s.terminate()
	return p != nil, err
}

func (s *ProcessSlot) terminate() (Process, error) {
	s.mu.Lock()
	p := s.proc
	s.proc = nil
	s.sealed = true
	s.mu.Unlock()

	if p == nil {
		return nil, nil
	}
	return p, p.Kill()
}
