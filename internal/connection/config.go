// Package connection manages a single ACP agent subprocess. The protocol
// connection and the process are confined to one runtime goroutine; callers
// talk to it through a Handle.
package connection

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/kaname/kaname/internal/common/config"
	"github.com/kaname/kaname/internal/common/constants"
)

// DefaultClientName is the client identity sent during initialize.
const DefaultClientName = "kaname"

// DefaultClientVersion is the client version sent during initialize.
const DefaultClientVersion = "0.1.0"

// Config describes how to launch the agent and size the command queue.
// Start copies it, so later changes by the caller have no effect.
type Config struct {
	AgentProgram string
	AgentArgs    []string

	// WorkDir is the agent's working directory and the default session cwd.
	// Empty means the caller's. Start makes it absolute.
	WorkDir string
	// Env is the agent's environment. Nil inherits the caller's.
	Env []string

	QueueCapacity int
	ShutdownGrace time.Duration

	ClientName    string
	ClientVersion string
}

// DefaultConfig returns the conventional agent executable with no arguments.
func DefaultConfig() Config {
	return Config{
		AgentProgram:  config.DefaultAgentProgram,
		AgentArgs:     []string{},
		QueueCapacity: constants.DefaultQueueCapacity,
		ShutdownGrace: constants.DefaultShutdownGrace,
		ClientName:    DefaultClientName,
		ClientVersion: DefaultClientVersion,
	}
}

// FromAgentConfig builds a Config from the application's agent section.
func FromAgentConfig(ac config.AgentConfig) Config {
	cfg := DefaultConfig()
	if ac.Program != "" {
		cfg.AgentProgram = ac.Program
	}
	cfg.AgentArgs = slices.Clone(ac.Args)
	cfg.WorkDir = ac.WorkDir
	if ac.QueueCapacity > 0 {
		cfg.QueueCapacity = ac.QueueCapacity
	}
	if ac.ShutdownGraceSeconds > 0 {
		cfg.ShutdownGrace = ac.ShutdownGrace()
	}
	return cfg
}

// normalized returns a deep copy with zero-valued optional fields defaulted.
func (c Config) normalized() Config {
	out := c
	out.AgentArgs = slices.Clone(c.AgentArgs)
	if out.AgentArgs == nil {
		out.AgentArgs = []string{}
	}
	out.Env = slices.Clone(c.Env)
	out.WorkDir = absDir(c.WorkDir)
	if out.QueueCapacity == 0 {
		out.QueueCapacity = constants.DefaultQueueCapacity
	}
	if out.ShutdownGrace == 0 {
		out.ShutdownGrace = constants.DefaultShutdownGrace
	}
	if out.ClientName == "" {
		out.ClientName = DefaultClientName
	}
	if out.ClientVersion == "" {
		out.ClientVersion = DefaultClientVersion
	}
	return out
}

// absDir resolves dir against the current directory; empty means the
// current directory. It returns dir unchanged if that cannot be resolved.
func absDir(dir string) string {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return ""
		}
		return wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	return abs
}

func (c Config) validate() error {
	var errs []error
	if strings.TrimSpace(c.AgentProgram) == "" {
		errs = append(errs, errors.New("agent program is required"))
	}
	if c.QueueCapacity < 1 {
		errs = append(errs, errors.New("queue capacity must be at least 1"))
	}
	if c.ShutdownGrace < 0 {
		errs = append(errs, errors.New("shutdown grace must not be negative"))
	}
	return errors.Join(errs...)
}
