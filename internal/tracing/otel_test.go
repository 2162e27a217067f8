package tracing

import (
	"context"
	"errors"
	"testing"
)

func TestEndpointHost(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "strips http prefix", input: "http://localhost:4318", expected: "localhost:4318"},
		{name: "strips https prefix", input: "https://otel.example.com:4318", expected: "otel.example.com:4318"},
		{name: "returns unchanged when no scheme", input: "localhost:4318", expected: "localhost:4318"},
		{name: "handles empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := endpointHost(tt.input); got != tt.expected {
				t.Errorf("endpointHost(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSpansWithoutExporter(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	ctx := context.Background()

	_, launch := TraceLaunch(ctx, "agent", 2)
	EndSpan(launch, nil)

	_, hs := TraceHandshake(ctx, 1)
	EndSpan(hs, errors.New("boom"))

	_, cmd := TraceCommand(ctx, "prompt", "sess-1")
	EndSpan(cmd, nil)

	_, perm := TracePermission(ctx, "sess-1", "tool-1", 2)
	EndSpan(perm, nil)

	if err := Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() = %v, want nil", err)
	}
}
