// Package sidecar launches, supervises and terminates the packaged HTTP backend
// that serves the shell's web UI.
package sidecar

import (
	"net"
	"strconv"
)

// LoopbackHost is the only address the backend is ever bound to.
const LoopbackHost = "127.0.0.1"

// Port policy defaults.
const (
	DefaultPreferredPort = 34425
	DefaultFallbackPort  = 3000
)

// Endpoint is the address the backend listens on. It is chosen once per
// launch and never changes afterwards.
type Endpoint struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Address returns host:port suitable for net.Dial.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// URL returns the local URL the shell window is pointed at.
func (e Endpoint) URL() string {
	return "http://" + e.Address()
}

// ChoosePort returns preferred when it can be bound on host right now,
// otherwise fallback. The probe listener is released before returning, so the
// port may be taken by someone else before the backend binds it; that case
// surfaces later as a failed launch. The fallback is not probed.
func ChoosePort(host string, preferred, fallback int) int {
	if preferred <= 0 || preferred > 65535 {
		return fallback
	}
	if portAvailable(host, preferred) {
		return preferred
	}
	return fallback
}

func portAvailable(host string, port int) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
