//go:build windows

package cli

import (
	"os"
	"syscall"

	"golang.org/x/sys/windows"
)

// Signals for Windows systems
// Windows doesn't have SIGTERM, so we use os.Interrupt for graceful and os.Kill for force
var (
	signalTerm = os.Interrupt
	signalKill = os.Kill
)

// signalTermName returns the name of the graceful shutdown signal.
func signalTermName() string {
	return "interrupt"
}

// signalKillName returns the name of the force kill signal.
func signalKillName() string {
	return "kill"
}

// checkProcessRunning checks if a process is running on Windows.
func checkProcessRunning(pid int) bool {
	handle, err := windows.OpenProcess(windows.SYNCHRONIZE|windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(handle)

	// WAIT_TIMEOUT means the process is still running
	event, err := windows.WaitForSingleObject(handle, 0)
	if err != nil {
		return false
	}
	return event == uint32(windows.WAIT_TIMEOUT)
}

// detachAttrs starts the background child without a console.
func detachAttrs() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP | windows.DETACHED_PROCESS}
}
