package connection

import (
	"sync/atomic"
	"time"
)

// ConnectionState is the status plus the active session id. SessionID is
// non-nil only while Status is Connected. The zero value is Disconnected
// with no session.
type ConnectionState struct {
	Status    ConnectionStatus
	SessionID *string
}

// SetStatus changes the status. Any status other than Connected clears the
// session id.
func (s *ConnectionState) SetStatus(status ConnectionStatus) {
	s.Status = status
	if !status.IsConnected() {
		s.SessionID = nil
	}
}

// SetSessionID records id as the active session. It is ignored unless the
// state is Connected; the return value reports whether it was recorded.
func (s *ConnectionState) SetSessionID(id string) bool {
	if !s.Status.IsConnected() {
		return false
	}
	s.SessionID = &id
	return true
}

// ClearSession drops the active session id.
func (s *ConnectionState) ClearSession() {
	s.SessionID = nil
}

// Session returns the active session id, if any.
func (s *ConnectionState) Session() (string, bool) {
	if s.SessionID == nil {
		return "", false
	}
	return *s.SessionID, true
}

// AgentInfo describes the agent as reported during initialize.
type AgentInfo struct {
	Name            string `json:"name" yaml:"name"`
	Version         string `json:"version" yaml:"version"`
	ProtocolVersion int    `json:"protocol_version" yaml:"protocol_version"`
	LoadSession     bool   `json:"load_session" yaml:"load_session"`
}

// Snapshot is an immutable copy of the connection state for callers.
type Snapshot struct {
	Status    ConnectionStatus `json:"status" yaml:"status"`
	SessionID *string          `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Agent     *AgentInfo       `json:"agent,omitempty" yaml:"agent,omitempty"`
	AgentPID  int              `json:"agent_pid,omitempty" yaml:"agent_pid,omitempty"`
	UpdatedAt time.Time        `json:"updated_at" yaml:"updated_at"`
}

// State returns the snapshot's status and session as a ConnectionState.
func (s Snapshot) State() ConnectionState {
	return ConnectionState{Status: s.Status, SessionID: copyString(s.SessionID)}
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// stateCell publishes snapshots from the runtime to any number of readers.
type stateCell struct {
	p atomic.Pointer[Snapshot]
}

func newStateCell(initial ConnectionState) *stateCell {
	c := &stateCell{}
	c.store(initial, nil, 0)
	return c
}

func (c *stateCell) store(state ConnectionState, agent *AgentInfo, pid int) Snapshot {
	snap := Snapshot{
		Status:    state.Status,
		SessionID: copyString(state.SessionID),
		AgentPID:  pid,
		UpdatedAt: time.Now().UTC(),
	}
	if agent != nil {
		a := *agent
		snap.Agent = &a
	}
	c.p.Store(&snap)
	return snap
}

func (c *stateCell) load() Snapshot {
	return *c.p.Load()
}
