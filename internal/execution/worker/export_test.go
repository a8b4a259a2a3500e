package worker

import (
	"os"
	"syscall"
)

// IsProcessAlive reports whether a process with the pid exists.
func IsProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	return process.Signal(syscall.Signal(0)) == nil
}
