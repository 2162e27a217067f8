package acp

import (
	"context"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/coder/acp-go-sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaname/kaname/internal/common/logger"
	"github.com/kaname/kaname/internal/events"
	"github.com/kaname/kaname/internal/events/bus"
)

func TestFromSessionNotification(t *testing.T) {
	tests := []struct {
		name   string
		update acp.SessionUpdate
		want   Notification
	}{
		{
			name:   "message chunk",
			update: acp.UpdateAgentMessageText("hi"),
			want:   Notification{Kind: KindMessageChunk, SessionID: "s", Text: "hi"},
		},
		{
			name: "tool call",
			update: acp.StartToolCall("t1", "Run ls",
				acp.WithStartStatus(acp.ToolCallStatusPending)),
			want: Notification{Kind: KindToolCall, SessionID: "s", ToolCallID: "t1", Title: "Run ls", Status: "pending"},
		},
		{
			name: "tool call update",
			update: acp.UpdateToolCall("t1",
				acp.WithUpdateStatus(acp.ToolCallStatusCompleted)),
			want: Notification{Kind: KindToolCallUpdate, SessionID: "s", ToolCallID: "t1", Status: "completed"},
		},
		{
			name:   "unknown",
			update: acp.SessionUpdate{},
			want:   Notification{Kind: KindOther, SessionID: "s"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromSessionNotification(acp.SessionNotification{SessionId: "s", Update: tt.update})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMultiSink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	m := MultiSink{a, nil, b, NewLogSink(logger.NewNop())}

	m.HandleNotification(context.Background(), Notification{Kind: KindPlan})

	assert.Len(t, a.items, 1)
	assert.Len(t, b.items, 1)
}

func TestBusSink_Publishes(t *testing.T) {
	eventBus := bus.NewMemoryEventBus(logger.NewNop())
	defer eventBus.Close()

	received := make(chan *bus.Event, 1)
	_, err := eventBus.Subscribe(events.ACPNotification, func(_ context.Context, e *bus.Event) error {
		received <- e
		return nil
	})
	require.NoError(t, err)

	sink := NewBusSink(eventBus, logger.NewNop())
	sink.HandleNotification(context.Background(), Notification{Kind: KindMessageChunk, SessionID: "s", Text: "hello"})

	select {
	case e := <-received:
		assert.Equal(t, string(KindMessageChunk), e.Type)
		assert.Equal(t, events.SourceACPClient, e.Source)
		data, ok := e.Data.(events.NotificationData)
		require.True(t, ok)
		assert.Equal(t, "hello", data.Text)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for notification event")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{in: "short", n: 50, want: "short"},
		{in: "abcdef", n: 3, want: "abc"},
		{in: "héllo", n: 2, want: "h"},
		{in: "héllo", n: 3, want: "hé"},
		{in: "日本語", n: 4, want: "日"},
		{in: "日本語", n: 6, want: "日本"},
		{in: "🙂🙂", n: 5, want: "🙂"},
		{in: "🙂", n: 2, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
			assert.LessOrEqual(t, len(got), tt.n)
		})
	}
}
