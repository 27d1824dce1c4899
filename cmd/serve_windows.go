//go:build windows

package cmd

import (
	"os"
	"os/exec"
)

// setDaemonAttrs does nothing on Windows; the child already outlives the parent.
func setDaemonAttrs(_ *exec.Cmd) {}

func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}
