package worker

import (
	"os/exec"
	"syscall"
)

func initCmd(cmd *exec.Cmd) {
	// No-op on Windows.
}

func (p *proc) sendKillSignal(_ syscall.Signal) error {
	return p.process.Kill()
}
