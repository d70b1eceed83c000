//go:build windows

package daemon

import (
	"fmt"
	"os"
	"syscall"
)

// processAlive sends a zero signal; FindProcess alone succeeds for any PID.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// signalProcess always ends in a hard kill on Windows, whatever sig is.
func signalProcess(pid int, sig syscall.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find server process %d: %w", pid, err)
	}
	return proc.Signal(sig)
}
