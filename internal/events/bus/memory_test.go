package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kaname/kaname/internal/common/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      "debug",
		Format:     "console",
		OutputPath: "stderr",
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return log
}

func TestNewMemoryEventBus(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))

	if bus == nil {
		t.Fatal("Expected non-nil bus")
	}
	if !bus.IsConnected() {
		t.Error("Expected bus to be connected")
	}
}

func TestMemoryEventBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	ctx := context.Background()
	received := make(chan *Event, 1)

	sub, err := bus.Subscribe("acp.status", func(ctx context.Context, event *Event) error {
		received <- event
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()

	event := NewEvent("acp.status", "connection", map[string]any{"status": "Connected"})
	if err := bus.Publish(ctx, "acp.status", event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case e := <-received:
		if e.ID != event.ID {
			t.Errorf("Expected event ID %s, got %s", event.ID, e.ID)
		}
		if e.Type != event.Type {
			t.Errorf("Expected event type %s, got %s", event.Type, e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for event")
	}
}

func TestMemoryEventBus_DeliversInPublishOrder(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	const n = 100
	got := make(chan string, n)
	sub, err := bus.Subscribe("acp.notification", func(ctx context.Context, event *Event) error {
		got <- event.Type
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()

	for i := 0; i < n; i++ {
		if err := bus.Publish(context.Background(), "acp.notification", NewEvent(fmt.Sprintf("chunk_%03d", i), "test", nil)); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	for i := 0; i < n; i++ {
		select {
		case typ := <-got:
			if want := fmt.Sprintf("chunk_%03d", i); typ != want {
				t.Fatalf("position %d: expected %s, got %s", i, want, typ)
			}
		case <-time.After(time.Second):
			t.Fatalf("Timeout waiting for event %d", i)
		}
	}
}

func TestMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	ctx := context.Background()
	var count int32

	sub, err := bus.Subscribe("test.unsub", func(ctx context.Context, event *Event) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	event := NewEvent("test.type", "test-source", nil)
	if err := bus.Publish(ctx, "test.unsub", event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	if sub.IsValid() {
		t.Error("Expected subscription to be invalid after unsubscribe")
	}

	if err := bus.Publish(ctx, "test.unsub", event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if atomic.LoadInt32(&count) != 1 {
		t.Errorf("Expected 1 handler call, got %d", count)
	}
}

func TestMemoryEventBus_Wildcards(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		subject string
		match   bool
	}{
		{name: "exact", pattern: "acp.status", subject: "acp.status", match: true},
		{name: "exact mismatch", pattern: "acp.status", subject: "acp.notification", match: false},
		{name: "single token", pattern: "acp.*", subject: "acp.status", match: true},
		{name: "single token does not span dots", pattern: "acp.*", subject: "acp.status.extra", match: false},
		{name: "single token requires a token", pattern: "events.*.created", subject: "events.created", match: false},
		{name: "multi token one", pattern: "acp.>", subject: "acp.status", match: true},
		{name: "multi token many", pattern: "acp.>", subject: "acp.notification.chunk", match: true},
		{name: "multi token needs one", pattern: "acp.>", subject: "acp", match: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matches(tt.subject, tt.pattern, compilePattern(tt.pattern))
			if got != tt.match {
				t.Errorf("matches(%q, %q) = %v, want %v", tt.subject, tt.pattern, got, tt.match)
			}
		})
	}
}

func TestMemoryEventBus_ConcurrentAccess(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	ctx := context.Background()
	var receivedCount int32
	var publishErrorCount int32
	var wg sync.WaitGroup

	sub, err := bus.Subscribe("test.concurrent", func(ctx context.Context, event *Event) error {
		atomic.AddInt32(&receivedCount, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()

	// Stay below the per-subscription buffer so nothing is dropped.
	numGoroutines := 5
	eventsPerGoroutine := 40

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				event := NewEvent("test.type", "test-source", nil)
				if err := bus.Publish(ctx, "test.concurrent", event); err != nil {
					atomic.AddInt32(&publishErrorCount, 1)
				}
			}
		}()
	}

	wg.Wait()
	if publishErrorCount > 0 {
		t.Errorf("publish errors: %d", publishErrorCount)
	}

	expectedCount := int32(numGoroutines * eventsPerGoroutine)
	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&receivedCount) != expectedCount && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := atomic.LoadInt32(&receivedCount); got != expectedCount {
		t.Errorf("Expected %d events, got %d", expectedCount, got)
	}
}

func TestMemoryEventBus_Close(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))

	sub, err := bus.Subscribe("test.close", func(ctx context.Context, event *Event) error { return nil })
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	bus.Close()
	bus.Close()

	if bus.IsConnected() {
		t.Error("Expected bus to be disconnected after close")
	}
	if sub.IsValid() {
		t.Error("Expected subscription to be invalid after close")
	}
	if err := bus.Publish(context.Background(), "test.close", NewEvent("x", "y", nil)); err == nil {
		t.Error("Expected publish on closed bus to fail")
	}
	if _, err := bus.Subscribe("test.close", func(ctx context.Context, event *Event) error { return nil }); err == nil {
		t.Error("Expected subscribe on closed bus to fail")
	}
}
