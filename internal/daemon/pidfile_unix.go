//go:build !windows

package daemon

import "syscall"

// processAlive sends signal 0, which checks existence without delivering anything.
func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

// terminate asks the process to shut down gracefully.
func terminate(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}

func kill(pid int) error {
	return syscall.Kill(pid, syscall.SIGKILL)
}
