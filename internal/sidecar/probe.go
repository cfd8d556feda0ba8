package sidecar

import (
	"net"
	"time"
)

// Readiness polling defaults.
const (
	DefaultProbeInterval = 200 * time.Millisecond
	DefaultReadyTimeout  = 20 * time.Second

	maxDialTimeout = time.Second
)

// WaitUntilReady polls ep with plain TCP connects every DefaultProbeInterval
// until one succeeds or timeout elapses. It blocks the calling goroutine.
func WaitUntilReady(ep Endpoint, timeout time.Duration) bool {
	return waitUntilReady(ep, time.Now().Add(timeout), DefaultProbeInterval, nil)
}

// waitUntilReady returns true on the first successful connect before deadline.
// The probe connection is closed immediately. A close of stop ends polling
// early with false; a nil stop never fires.
func waitUntilReady(ep Endpoint, deadline time.Time, interval time.Duration, stop <-chan struct{}) bool {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	addr := ep.Address()

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}

		conn, err := net.DialTimeout("tcp", addr, min(remaining, maxDialTimeout))
		if err == nil {
			_ = conn.Close()
			return true
		}

		remaining = time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		timer := time.NewTimer(min(interval, remaining))
		select {
		case <-stop:
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}
