package sidecar

import (
	"errors"
	"fmt"
)

// ErrorKind classifies supervisor failures. None of them abort the shell.
type ErrorKind string

const (
	KindResourceResolution ErrorKind = "resource_resolution"
	KindSpawn              ErrorKind = "spawn"
	KindReadinessTimeout   ErrorKind = "readiness_timeout"
	KindTermination        ErrorKind = "termination"
)

// Error definitions.
var (
	ErrResourceResolution = errors.New("backend resources could not be resolved")
	ErrSpawnFailed        = errors.New("failed to start backend process")
	ErrReadinessTimeout   = errors.New("backend did not become ready before the deadline")
	ErrTerminationFailed  = errors.New("failed to terminate backend process")

	ErrSlotOccupied = errors.New("backend process slot already occupied")
	ErrSlotSealed   = errors.New("backend process slot sealed by shutdown")
)

// Error is a supervisor failure of a given kind wrapping the underlying cause.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error of the same kind.
func (e *Error) Is(target error) bool {
	switch e.Kind {
	case KindResourceResolution:
		return target == ErrResourceResolution
	case KindSpawn:
		return target == ErrSpawnFailed
	case KindReadinessTimeout:
		return target == ErrReadinessTimeout
	case KindTermination:
		return target == ErrTerminationFailed
	}
	return false
}

// KindOf returns the kind of a supervisor error, or "" for anything else.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
