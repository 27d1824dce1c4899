//go:build windows

package daemon

import (
	"os"
	"syscall"
)

// processAlive reports whether pid names a live process. FindProcess opens
// a handle on Windows, so it fails for exited processes.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	defer proc.Release()
	return proc.Signal(syscall.Signal(0)) == nil
}

// terminate has no graceful form on Windows; the process is killed.
func terminate(pid int) error {
	return kill(pid)
}

func kill(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
