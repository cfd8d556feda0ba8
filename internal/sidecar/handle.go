package sidecar

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

// Process is the part of a running backend the slot needs to shut it down.
type Process interface {
	PID() int
	Kill() error
}

// Handle is the exclusive reference to a spawned backend process. Its
// existence implies a successful spawn. Pass it by pointer; never copy it.
type Handle struct {
	cmd       *exec.Cmd
	endpoint  Endpoint
	launchID  string
	startedAt time.Time
	ready     atomic.Bool
	logger    zerolog.Logger

	relays  conc.WaitGroup
	done    chan struct{}
	exitErr error
}

func newHandle(cmd *exec.Cmd, ep Endpoint, launchID string, logger zerolog.Logger) *Handle {
	return &Handle{
		cmd:       cmd,
		endpoint:  ep,
		launchID:  launchID,
		startedAt: time.Now(),
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// PID returns the OS process id.
func (h *Handle) PID() int {
	return h.cmd.Process.Pid
}

// Endpoint returns the address the backend was told to listen on.
func (h *Handle) Endpoint() Endpoint {
	return h.endpoint
}

// LaunchID correlates every log line of one launch.
func (h *Handle) LaunchID() string {
	return h.launchID
}

// StartedAt returns the spawn time.
func (h *Handle) StartedAt() time.Time {
	return h.startedAt
}

// Ready reports whether the readiness probe succeeded during launch.
func (h *Handle) Ready() bool {
	return h.ready.Load()
}

// Kill sends the kill signal. It does not wait for the process to exit.
// Once the process has been reaped its pid may be reused, so Kill returns
// os.ErrProcessDone instead of signalling.
func (h *Handle) Kill() error {
	if h.exited() {
		return os.ErrProcessDone
	}
	return killProcess(h.cmd.Process)
}

func (h *Handle) exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Done is closed once the process has exited, both relays have drained and
// the process has been reaped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// ExitErr is the result of reaping the process. Only valid after Done.
func (h *Handle) ExitErr() error {
	select {
	case <-h.done:
		return h.exitErr
	default:
		return nil
	}
}

// Wait blocks until Done or timeout and reports whether the process was reaped.
func (h *Handle) Wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.done:
		return true
	case <-timer.C:
		return false
	}
}

// start attaches one relay per stream and reaps the process once both finish.
// The relays must drain before cmd.Wait, which closes the pipes.
func (h *Handle) start(stdout, stderr io.Reader, sink zerolog.Logger) {
	h.relays.Go(func() { Relay(stdout, sink, Stdout) })
	h.relays.Go(func() { Relay(stderr, sink, Stderr) })
	go h.reap()
}

func (h *Handle) reap() {
	if rec := h.relays.WaitAndRecover(); rec != nil {
		h.logger.Error().Err(rec.AsError()).Msg("Sidecar output relay panicked")
	}

	h.exitErr = h.cmd.Wait()

	event := h.logger.Info()
	var exitErr *exec.ExitError
	if errors.As(h.exitErr, &exitErr) {
		event = h.logger.Warn().Int("exit_code", exitErr.ExitCode())
	} else if h.exitErr != nil {
		event = h.logger.Warn().Err(h.exitErr)
	}
	event.Dur("uptime", time.Since(h.startedAt)).Msg("Sidecar process exited")

	close(h.done)
}
