//go:build !windows

package cmd

import (
	"os"
	"os/exec"
	"syscall"
)

// detachServer starts the background API server in a new session so it
// outlives the terminal that launched it.
func detachServer(child *exec.Cmd) {
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

func shutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// stopSignals returns the polite and the forced signal used by `serve stop`.
func stopSignals() (term, kill syscall.Signal) {
	return syscall.SIGTERM, syscall.SIGKILL
}
