// Package constants provides application-wide constants and timeouts.
package constants

import "time"

// Timeouts for various operations.
const (
	// HandshakeTimeout bounds the ACP initialize exchange after the agent starts.
	HandshakeTimeout = 30 * time.Second

	// PermissionDecisionTimeout bounds how long a permission policy may take
	// before the request is answered as cancelled.
	PermissionDecisionTimeout = 60 * time.Second

	// DefaultShutdownGrace is how long the agent gets to exit after its stdin
	// is closed, and again after SIGTERM, before it is killed.
	DefaultShutdownGrace = 5 * time.Second

	// EventPublishTimeout bounds a single event bus publish from the runtime.
	EventPublishTimeout = 2 * time.Second
)

// DefaultQueueCapacity is the number of pending commands a connection accepts
// before submitters block.
const DefaultQueueCapacity = 32

// SessionRequestTimeout bounds session/new and session/cancel requests to the agent.
const SessionRequestTimeout = 60 * time.Second
