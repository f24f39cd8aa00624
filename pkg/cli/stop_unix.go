//go:build !windows

package cli

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

// Signals for Unix systems
var (
	signalTerm = syscall.SIGTERM
	signalKill = syscall.SIGKILL
)

// signalTermName returns the name of the graceful shutdown signal.
func signalTermName() string {
	return "SIGTERM"
}

// signalKillName returns the name of the force kill signal.
func signalKillName() string {
	return "SIGKILL"
}

// checkProcessRunning probes pid with signal 0. EPERM means the process
// exists but belongs to another user.
func checkProcessRunning(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// detachAttrs starts the background child in its own session so it
// survives the terminal.
func detachAttrs() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
