// Package daemon tracks a background server process through a PID file.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// pollInterval is how often WaitForExit checks the process.
var pollInterval = 100 * time.Millisecond

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

// WritePID writes the given PID to the file.
func (p *PIDFile) WritePID(pid int) error {
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
	if pid <= 0 {
		return 0, fmt.Errorf("invalid PID file content: %d", pid)
	}
	return pid, nil
}

// Remove deletes the PID file.
func (p *PIDFile) Remove() error {
	return os.Remove(p.Path)
}

// IsRunning returns the PID in the file and whether that process is alive.
func (p *PIDFile) IsRunning() (int, bool) {
	pid, err := p.Read()
	if err != nil {
		return 0, false
	}
	return pid, processAlive(pid)
}

// RemoveStale deletes the PID file when the process it names is gone.
// A missing file is not an error.
func (p *PIDFile) RemoveStale() error {
	if _, running := p.IsRunning(); running {
		return nil
	}
	if err := p.Remove(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// WaitForExit polls until the process in the PID file is gone or timeout
// passes. It reports whether the process exited.
func (p *PIDFile) WaitForExit(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if _, running := p.IsRunning(); !running {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}

// ErrNotRunning is returned by Stop when no live process is recorded.
var ErrNotRunning = errors.New("process not running")

// Stop terminates the process in the PID file, escalating to a kill when it
// is still alive after grace. The PID file is removed once the process is
// gone. killed reports whether the kill was needed.
func (p *PIDFile) Stop(grace time.Duration) (pid int, killed bool, err error) {
	pid, running := p.IsRunning()
	if !running {
		_ = p.RemoveStale()
		return 0, false, ErrNotRunning
	}

	if err := terminate(pid); err != nil {
		return pid, false, fmt.Errorf("terminate pid %d: %w", pid, err)
	}
	if !p.WaitForExit(grace) {
		if err := kill(pid); err != nil {
			return pid, false, fmt.Errorf("kill pid %d: %w", pid, err)
		}
		killed = true
		p.WaitForExit(grace)
	}

	if err := p.Remove(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return pid, killed, err
	}
	return pid, killed, nil
}
