package main

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kaname/kaname/internal/connection"
	"github.com/kaname/kaname/internal/events/bus"
)

// statusHistory records the status transitions published on the bus.
type statusHistory struct {
	mu      sync.Mutex
	changed chan struct{}
	seen    []connection.ConnectionStatus
}

func newStatusHistory() *statusHistory {
	return &statusHistory{changed: make(chan struct{}, 1)}
}

// handle decodes through JSON so events from the memory bus and from NATS
// look the same.
func (s *statusHistory) handle(_ context.Context, event *bus.Event) error {
	raw, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}
	var data struct {
		Status connection.ConnectionStatus `json:"status"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return err
	}

	// Session changes republish the current status; keep transitions only.
	s.mu.Lock()
	if n := len(s.seen); n == 0 || s.seen[n-1] != data.Status {
		s.seen = append(s.seen, data.Status)
	}
	s.mu.Unlock()

	select {
	case s.changed <- struct{}{}:
	default:
	}
	return nil
}

// settle waits until the last recorded status is final or timeout passes.
// Delivery is asynchronous, so the final transition can trail the runtime's
// exit.
func (s *statusHistory) settle(final connection.ConnectionStatus, timeout time.Duration) []string {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		s.mu.Lock()
		done := len(s.seen) > 0 && s.seen[len(s.seen)-1] == final
		s.mu.Unlock()
		if done {
			break
		}
		select {
		case <-s.changed:
		case <-timer.C:
			return s.names()
		}
	}
	return s.names()
}

func (s *statusHistory) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.seen))
	for i, status := range s.seen {
		out[i] = status.String()
	}
	return out
}
