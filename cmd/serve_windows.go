//go:build windows

package cmd

import (
	"os"
	"os/exec"
	"syscall"
)

// detachServer has no session to create on Windows.
func detachServer(_ *exec.Cmd) {}

func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// stopSignals returns the pair used by `serve stop`. Both end the server
// immediately on Windows.
func stopSignals() (term, kill syscall.Signal) {
	return syscall.SIGTERM, syscall.SIGKILL
}
