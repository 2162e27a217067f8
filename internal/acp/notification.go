// Package acp implements the client side of the Agent Client Protocol that
// the connection runtime hands to the SDK: notification conversion, sinks
// and the permission policy.
package acp

import (
	"context"
	"unicode/utf8"

	"github.com/coder/acp-go-sdk"
	"go.uber.org/zap"

	"github.com/kaname/kaname/internal/common/constants"
	"github.com/kaname/kaname/internal/common/logger"
	"github.com/kaname/kaname/internal/events"
	"github.com/kaname/kaname/internal/events/bus"
)

// NotificationKind identifies the shape of a Notification.
type NotificationKind string

const (
	KindMessageChunk   NotificationKind = "message_chunk"
	KindThoughtChunk   NotificationKind = "thought_chunk"
	KindToolCall       NotificationKind = "tool_call"
	KindToolCallUpdate NotificationKind = "tool_call_update"
	KindPlan           NotificationKind = "plan"
	KindOther          NotificationKind = "other"
)

// Notification is an inbound session update from the agent, flattened to the
// fields this client cares about. Which fields are set depends on Kind.
type Notification struct {
	Kind       NotificationKind
	SessionID  string
	Text       string
	ToolCallID string
	Title      string
	Status     string
	Plan       []PlanEntry
}

// PlanEntry is one step of an agent's execution plan.
type PlanEntry struct {
	Content  string
	Status   string
	Priority string
}

// Sink receives notifications pushed by the agent. Implementations must not
// block for long: they run on the protocol reader's goroutine.
type Sink interface {
	HandleNotification(ctx context.Context, n Notification)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, n Notification)

// HandleNotification calls f.
func (f SinkFunc) HandleNotification(ctx context.Context, n Notification) {
	f(ctx, n)
}

// FromSessionNotification converts an SDK session notification.
func FromSessionNotification(sn acp.SessionNotification) Notification {
	n := Notification{Kind: KindOther, SessionID: string(sn.SessionId)}
	u := sn.Update

	switch {
	case u.AgentMessageChunk != nil:
		n.Kind = KindMessageChunk
		if u.AgentMessageChunk.Content.Text != nil {
			n.Text = u.AgentMessageChunk.Content.Text.Text
		}
	case u.AgentThoughtChunk != nil:
		n.Kind = KindThoughtChunk
		if u.AgentThoughtChunk.Content.Text != nil {
			n.Text = u.AgentThoughtChunk.Content.Text.Text
		}
	case u.ToolCall != nil:
		n.Kind = KindToolCall
		n.ToolCallID = string(u.ToolCall.ToolCallId)
		n.Title = u.ToolCall.Title
		n.Status = string(u.ToolCall.Status)
	case u.ToolCallUpdate != nil:
		n.Kind = KindToolCallUpdate
		n.ToolCallID = string(u.ToolCallUpdate.ToolCallId)
		if u.ToolCallUpdate.Status != nil {
			n.Status = string(*u.ToolCallUpdate.Status)
		}
	case u.Plan != nil:
		n.Kind = KindPlan
		n.Plan = make([]PlanEntry, len(u.Plan.Entries))
		for i, e := range u.Plan.Entries {
			n.Plan[i] = PlanEntry{
				Content:  e.Content,
				Status:   string(e.Status),
				Priority: string(e.Priority),
			}
		}
	}

	return n
}

// LogSink writes notifications to the log.
type LogSink struct {
	logger *logger.Logger
}

// NewLogSink returns a sink that logs every notification.
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{logger: log.WithFields(zap.String("component", "acp-sink"))}
}

// HandleNotification implements Sink.
func (s *LogSink) HandleNotification(_ context.Context, n Notification) {
	fields := []zap.Field{zap.String("session_id", n.SessionID)}

	switch n.Kind {
	case KindMessageChunk, KindThoughtChunk:
		s.logger.Debug(string(n.Kind), append(fields, zap.String("text", truncate(n.Text, 50)))...)
	case KindToolCall:
		s.logger.Info("tool call", append(fields,
			zap.String("tool_call_id", n.ToolCallID),
			zap.String("title", n.Title),
			zap.String("status", n.Status))...)
	case KindToolCallUpdate:
		s.logger.Debug("tool call update", append(fields,
			zap.String("tool_call_id", n.ToolCallID),
			zap.String("status", n.Status))...)
	case KindPlan:
		s.logger.Info("plan update", append(fields, zap.Int("entries", len(n.Plan)))...)
	default:
		s.logger.Debug("session update", fields...)
	}
}

// BusSink publishes notifications on the event bus under events.ACPNotification.
type BusSink struct {
	bus    bus.EventBus
	logger *logger.Logger
}

// NewBusSink returns a sink that publishes to eventBus.
func NewBusSink(eventBus bus.EventBus, log *logger.Logger) *BusSink {
	return &BusSink{bus: eventBus, logger: log}
}

// HandleNotification implements Sink. Publish failures are logged.
func (s *BusSink) HandleNotification(ctx context.Context, n Notification) {
	data := events.NotificationData{
		Kind:       string(n.Kind),
		SessionID:  n.SessionID,
		Text:       n.Text,
		ToolCallID: n.ToolCallID,
		Title:      n.Title,
		Status:     n.Status,
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.EventPublishTimeout)
	defer cancel()

	event := bus.NewEvent(string(n.Kind), events.SourceACPClient, data)
	if err := s.bus.Publish(pubCtx, events.ACPNotification, event); err != nil {
		s.logger.Warn("failed to publish notification",
			zap.String("kind", string(n.Kind)),
			zap.Error(err))
	}
}

// MultiSink fans a notification out to every sink in order.
type MultiSink []Sink

// HandleNotification implements Sink.
func (m MultiSink) HandleNotification(ctx context.Context, n Notification) {
	for _, s := range m {
		if s != nil {
			s.HandleNotification(ctx, n)
		}
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// discardSink drops everything; used when no sink is configured.
type discardSink struct{}

func (discardSink) HandleNotification(context.Context, Notification) {}

