//go:build linux

package connection

import (
	"os/exec"
	"syscall"
)

// setProcGroup runs the agent in its own process group so it can be
// signalled together with its children. Pdeathsig terminates the agent if
// the thread that started it exits without stopping it.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}

func terminateProcessGroup(cmd *exec.Cmd) error {
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
}

func killProcessGroup(cmd *exec.Cmd) error {
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
