//go:build unix && !linux

package connection

import (
	"os/exec"
	"syscall"
)

// setProcGroup runs the agent in its own process group. Pdeathsig is Linux
// only, so here orphan cleanup relies on the runtime's teardown.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminateProcessGroup(cmd *exec.Cmd) error {
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
}

func killProcessGroup(cmd *exec.Cmd) error {
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
