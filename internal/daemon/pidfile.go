// Package daemon tracks the background API server through a PID file.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

var (
	// ErrAlreadyRunning is returned by Acquire when a live process owns the file.
	ErrAlreadyRunning = errors.New("server already running")
	// ErrNotRunning is returned by Stop when no live process owns the file.
	ErrNotRunning = errors.New("server not running")
)

const pollInterval = 100 * time.Millisecond

// PIDFile manages a PID file for daemon process tracking.
type PIDFile struct {
	Path string
}

// NewPIDFile creates a PIDFile manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Write writes the current process's PID to the file.
func (p *PIDFile) Write() error {
	return p.WritePID(os.Getpid())
}

// WritePID writes the given PID to the file, creating its directory.
func (p *PIDFile) WritePID(pid int) error {
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("create PID directory: %w", err)
	}
	return os.WriteFile(p.Path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// Read reads the PID from the file.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}
	return pid, nil
}

// IsRunning reports the recorded PID and whether that process is still alive.
func (p *PIDFile) IsRunning() (int, bool) {
	pid, err := p.Read()
	if err != nil {
		return 0, false
	}
	return pid, processAlive(pid)
}

// Signal delivers sig to the recorded server process.
func (p *PIDFile) Signal(sig syscall.Signal) error {
	pid, err := p.Read()
	if err != nil {
		return fmt.Errorf("read PID file: %w", err)
	}
	return signalProcess(pid, sig)
}

// Remove deletes the PID file.
func (p *PIDFile) Remove() error {
	return os.Remove(p.Path)
}

// Acquire records the current process as the owner. A stale file left by a
// dead process is replaced.
func (p *PIDFile) Acquire() error {
	if pid, running := p.IsRunning(); running && pid != os.Getpid() {
		return fmt.Errorf("%w (PID %d)", ErrAlreadyRunning, pid)
	}
	return p.Write()
}

// Release removes the file if the current process still owns it.
func (p *PIDFile) Release() error {
	pid, err := p.Read()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if pid != os.Getpid() {
		return nil
	}
	return p.Remove()
}

// Stop sends term to the owning process and waits up to grace for it to exit,
// then sends kill. The file is removed once the process is gone.
func (p *PIDFile) Stop(term, kill syscall.Signal, grace time.Duration) (int, error) {
	pid, running := p.IsRunning()
	if !running {
		if pid != 0 {
			_ = p.Remove()
		}
		return 0, ErrNotRunning
	}

	if err := p.Signal(term); err != nil {
		return pid, fmt.Errorf("signal PID %d: %w", pid, err)
	}
	if !p.waitExit(grace) {
		if err := p.Signal(kill); err != nil {
			return pid, fmt.Errorf("kill PID %d: %w", pid, err)
		}
		p.waitExit(grace)
	}
	if err := p.Remove(); err != nil && !os.IsNotExist(err) {
		return pid, err
	}
	return pid, nil
}

func (p *PIDFile) waitExit(grace time.Duration) bool {
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if _, running := p.IsRunning(); !running {
			return true
		}
		time.Sleep(pollInterval)
	}
	_, running := p.IsRunning()
	return !running
}
