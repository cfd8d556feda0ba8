//go:build windows

package sidecar

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// configurePlatformProcess keeps the backend from opening a console window.
func configurePlatformProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: windows.CREATE_NO_WINDOW,
	}
}

// killProcess terminates the backend; Windows has no SIGKILL.
func killProcess(p *os.Process) error {
	return p.Kill()
}
