package connection

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/kaname/kaname/internal/common/logger"
)

// agentProcess is the running agent. It is owned by the runtime goroutine.
type agentProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	logger *logger.Logger

	exited  chan struct{}
	waitErr error
}

// launch starts the agent with piped stdin/stdout and inherited stderr.
func launch(cfg Config, log *logger.Logger) (*agentProcess, error) {
	// Not exec.CommandContext: the agent's lifetime is the runtime's, not a request's.
	cmd := exec.Command(cfg.AgentProgram, cfg.AgentArgs...)
	cmd.Dir = cfg.WorkDir
	cmd.Env = cfg.Env
	cmd.Stderr = os.Stderr
	setProcGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &StreamCaptureError{Stream: "stdin", Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, &StreamCaptureError{Stream: "stdout", Err: err}
	}

	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Program: cfg.AgentProgram, Err: err}
	}

	p := &agentProcess{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		logger: log.WithFields(zap.Int("pid", cmd.Process.Pid)),
		exited: make(chan struct{}),
	}
	p.logger.Info("agent process started",
		zap.String("program", cfg.AgentProgram),
		zap.Strings("args", cfg.AgentArgs))
	return p, nil
}

func (p *agentProcess) pid() int {
	return p.cmd.Process.Pid
}

// wait reaps the process. It must run exactly once, on its own goroutine.
func (p *agentProcess) wait() error {
	p.waitErr = p.cmd.Wait()
	close(p.exited)

	var exitErr *exec.ExitError
	if p.waitErr != nil && !errors.As(p.waitErr, &exitErr) {
		p.logger.Warn("agent process wait failed", zap.Error(p.waitErr))
	} else {
		p.logger.Info("agent process exited", zap.Int("exit_code", p.cmd.ProcessState.ExitCode()))
	}
	return nil
}

// stop closes stdin and escalates to SIGTERM then SIGKILL on the process
// group, waiting up to grace after each step. It returns once the process
// has been reaped.
func (p *agentProcess) stop(grace time.Duration) {
	_ = p.stdin.Close()
	if p.waitExit(grace) {
		p.logger.Info("agent process stopped gracefully")
		return
	}

	p.logger.Warn("agent did not exit after stdin closed, terminating")
	if err := terminateProcessGroup(p.cmd); err != nil {
		p.logger.Debug("terminate failed", zap.Error(err))
	}
	if p.waitExit(grace) {
		return
	}

	p.logger.Warn("force killing agent process")
	if err := killProcessGroup(p.cmd); err != nil {
		p.logger.Debug("kill failed", zap.Error(err))
	}
	<-p.exited
}

func (p *agentProcess) waitExit(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-p.exited:
		return true
	case <-timer.C:
		return false
	}
}

// exitSuffix describes how the process ended, or is empty while it runs.
func (p *agentProcess) exitSuffix() string {
	select {
	case <-p.exited:
	default:
		return ""
	}
	if p.waitErr != nil {
		return ": " + p.waitErr.Error()
	}
	return ": agent exited"
}
