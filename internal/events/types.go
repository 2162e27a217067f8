// Package events provides event types and utilities for the kaname event system.
package events

// Subjects published by the ACP connection manager.
const (
	// ACPStatusChanged carries a StatusChangedData payload on every
	// connection status transition.
	ACPStatusChanged = "acp.status"

	// ACPNotification carries a NotificationData payload for every
	// notification the agent pushes.
	ACPNotification = "acp.notification"
)

// Source names used on published events.
const (
	SourceConnection = "connection"
	SourceACPClient  = "acp-client"
)

// StatusChangedData is the payload of an ACPStatusChanged event.
type StatusChangedData struct {
	Status    any    `json:"status"`
	SessionID string `json:"session_id,omitempty"`
}

// NotificationData is the payload of an ACPNotification event.
type NotificationData struct {
	Kind       string `json:"kind"`
	SessionID  string `json:"session_id,omitempty"`
	Text       string `json:"text,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	Title      string `json:"title,omitempty"`
	Status     string `json:"status,omitempty"`
}
