package sidecar

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Event is a shell lifecycle notification that may precede process exit.
type Event string

const (
	// EventCloseRequested is the window close button (Wails OnBeforeClose).
	EventCloseRequested Event = "close_requested"
	// EventWindowDestroyed follows the window going away (Wails OnShutdown).
	EventWindowDestroyed Event = "window_destroyed"
	// EventExitRequested is a host asking to stop, such as a cancelled
	// headless run.
	EventExitRequested Event = "exit_requested"
	// EventExit is the last chance before the process returns.
	EventExit   Event = "exit"
	EventSignal Event = "signal"
)

// DefaultReapTimeout bounds how long termination waits for the killed
// backend to be reaped and its output drained.
const DefaultReapTimeout = 5 * time.Second

// Coordinator owns the backend slot and turns every lifecycle event into a
// single, idempotent termination of the backend.
type Coordinator struct {
	slot        *ProcessSlot
	logger      zerolog.Logger
	reapTimeout time.Duration
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorLogger sets the coordinator logger.
func WithCoordinatorLogger(logger zerolog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithReapTimeout sets how long Handle waits for the process after killing
// it. Zero disables waiting.
func WithReapTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.reapTimeout = d
	}
}

// NewCoordinator creates a coordinator over slot.
func NewCoordinator(slot *ProcessSlot, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		slot:        slot,
		logger:      zerolog.Nop(),
		reapTimeout: DefaultReapTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Slot returns the slot the coordinator terminates through.
func (c *Coordinator) Slot() *ProcessSlot {
	return c.slot
}

// Adopt installs a freshly launched backend. If shutdown already began the
// backend is killed on the spot and ErrSlotSealed is returned.
func (c *Coordinator) Adopt(h *Handle) error {
	err := c.slot.Install(h)
	if err == nil {
		c.logger.Info().Int("pid", h.PID()).Str("launch_id", h.LaunchID()).Msg("Sidecar process installed")
		return nil
	}

	if errors.Is(err, ErrSlotSealed) {
		c.logger.Warn().Int("pid", h.PID()).Msg("Shutdown began during launch, terminating sidecar")
		if kerr := h.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			c.logTerminationFailure(c.logger, kerr)
		}
		c.reap(c.logger, h)
	}
	return err
}

// Handle terminates the backend in response to ev. Only the first call that
// finds a process does any work; it reports true.
func (c *Coordinator) Handle(ev Event) bool {
	p, err := c.slot.terminate()
	if p == nil {
		c.logger.Debug().Str("event", string(ev)).Msg("No sidecar process to terminate")
		return false
	}

	logger := c.logger.With().Str("event", string(ev)).Int("pid", p.PID()).Logger()
	switch {
	case errors.Is(err, os.ErrProcessDone):
		logger.Info().Msg("Sidecar process already exited")
	case err != nil:
		c.logTerminationFailure(logger, err)
	default:
		logger.Info().Msg("Sidecar process killed")
	}

	c.reap(logger, p)
	return true
}

// BeforeClose handles a window close request. Termination completes before
// it returns, so the default close action always runs after the kill.
func (c *Coordinator) BeforeClose(_ context.Context) (prevent bool) {
	c.Handle(EventCloseRequested)
	return false
}

// Shutdown handles the shell's shutdown notification, which arrives once the
// window has been destroyed.
func (c *Coordinator) Shutdown(_ context.Context) {
	c.Handle(EventWindowDestroyed)
}

// WatchSignals terminates the backend on SIGINT or SIGTERM, then calls
// onSignal. It stops watching when ctx is done.
func (c *Coordinator) WatchSignals(ctx context.Context, onSignal func(os.Signal)) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			c.logger.Info().Str("signal", sig.String()).Msg("Signal received")
			c.Handle(EventSignal)
			if onSignal != nil {
				onSignal(sig)
			}
		}
	}()
}

func (c *Coordinator) logTerminationFailure(logger zerolog.Logger, err error) {
	logger.Error().
		Err(&Error{Kind: KindTermination, Op: "kill", Err: err}).
		Msg("Failed to kill sidecar process")
}

func (c *Coordinator) reap(logger zerolog.Logger, p Process) {
	w, ok := p.(interface{ Wait(time.Duration) bool })
	if !ok || c.reapTimeout <= 0 {
		return
	}
	if !w.Wait(c.reapTimeout) {
		logger.Warn().Dur("timeout", c.reapTimeout).Msg("Sidecar process not reaped before timeout")
	}
}
