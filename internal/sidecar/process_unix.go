//go:build !windows

package sidecar

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configurePlatformProcess puts the backend in its own process group so the
// runtime and anything it forks can be killed together.
func configurePlatformProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcess sends SIGKILL to the backend's process group, falling back to
// the single process when the group is already gone.
//
// The group id is the leader's pid. It stays reserved while the leader is
// unreaped, and os.Process reports ErrProcessDone once Wait has released it.
func killProcess(p *os.Process) error {
	if err := p.Signal(syscall.Signal(0)); errors.Is(err, os.ErrProcessDone) {
		return err
	}
	if err := unix.Kill(-p.Pid, unix.SIGKILL); err == nil {
		return nil
	}
	return p.Kill()
}
