package connection

import (
	"errors"
	"fmt"
)

// ErrRuntimeGone is returned when the runtime exited before replying.
var ErrRuntimeGone = errors.New("connection runtime has exited")

// ErrHandleClosed is returned when a closed Handle is used.
var ErrHandleClosed = errors.New("connection handle is closed")

// SpawnError reports that the agent executable could not be started.
type SpawnError struct {
	Program string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn agent %q: %v", e.Program, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// StreamCaptureError reports that a stdio pipe to the agent could not be created.
type StreamCaptureError struct {
	Stream string
	Err    error
}

func (e *StreamCaptureError) Error() string {
	return fmt.Sprintf("failed to capture agent %s: %v", e.Stream, e.Err)
}

func (e *StreamCaptureError) Unwrap() error { return e.Err }

// HandshakeError reports a failed ACP initialize exchange.
type HandshakeError struct {
	Err error
}

func (e *HandshakeError) Error() string {
	return "ACP initialize failed: " + e.Err.Error()
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// CommandError reports that an accepted command could not be completed.
type CommandError struct {
	Reason string
	Err    error
}

func (e *CommandError) Error() string { return e.Reason }

func (e *CommandError) Unwrap() error { return e.Err }

func commandFailed(err error) *CommandError {
	return &CommandError{Reason: err.Error(), Err: err}
}

func notConnected(startErr error) *CommandError {
	return &CommandError{Reason: "ACP not connected: " + startErr.Error(), Err: startErr}
}
