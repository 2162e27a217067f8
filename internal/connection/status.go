package connection

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// StatusKind is the tag of a ConnectionStatus. The zero value is
// StatusDisconnected.
type StatusKind int

const (
	StatusDisconnected StatusKind = iota
	StatusConnecting
	StatusConnected
	StatusError
)

var statusKindNames = map[StatusKind]string{
	StatusDisconnected: "Disconnected",
	StatusConnecting:   "Connecting",
	StatusConnected:    "Connected",
	StatusError:        "Error",
}

func (k StatusKind) String() string {
	if name, ok := statusKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("StatusKind(%d)", int(k))
}

// ConnectionStatus is the connection lifecycle state. Message is set only
// for StatusError. The zero value is Disconnected.
//
// The serialized form is the bare tag for unit kinds ("Connected") and an
// object {"type":"Error","message":"..."} for errors, in both JSON and YAML.
type ConnectionStatus struct {
	Kind    StatusKind
	Message string
}

func Disconnected() ConnectionStatus { return ConnectionStatus{Kind: StatusDisconnected} }
func Connecting() ConnectionStatus   { return ConnectionStatus{Kind: StatusConnecting} }
func Connected() ConnectionStatus    { return ConnectionStatus{Kind: StatusConnected} }

// Failed returns an Error status carrying reason.
func Failed(reason string) ConnectionStatus {
	return ConnectionStatus{Kind: StatusError, Message: reason}
}

// IsConnected reports whether the status is Connected.
func (s ConnectionStatus) IsConnected() bool { return s.Kind == StatusConnected }

// IsError reports whether the status is an Error.
func (s ConnectionStatus) IsError() bool { return s.Kind == StatusError }

func (s ConnectionStatus) String() string {
	if s.Kind == StatusError {
		return fmt.Sprintf("Error(%s)", s.Message)
	}
	return s.Kind.String()
}

type taggedStatus struct {
	Type    string `json:"type" yaml:"type"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

func parseKind(name string) (StatusKind, error) {
	for kind, n := range statusKindNames {
		if n == name {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown connection status %q", name)
}

func fromTagged(t taggedStatus) (ConnectionStatus, error) {
	kind, err := parseKind(t.Type)
	if err != nil {
		return ConnectionStatus{}, err
	}
	if kind != StatusError {
		return ConnectionStatus{Kind: kind}, nil
	}
	return Failed(t.Message), nil
}

// MarshalJSON implements json.Marshaler.
func (s ConnectionStatus) MarshalJSON() ([]byte, error) {
	if s.Kind == StatusError {
		return json.Marshal(struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		}{Type: StatusError.String(), Message: s.Message})
	}
	return json.Marshal(s.Kind.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *ConnectionStatus) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var tag string
		if err := json.Unmarshal(data, &tag); err != nil {
			return err
		}
		kind, err := parseKind(tag)
		if err != nil {
			return err
		}
		if kind == StatusError {
			return fmt.Errorf("connection status Error requires a message object")
		}
		*s = ConnectionStatus{Kind: kind}
		return nil
	}

	var t taggedStatus
	if err := json.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("invalid connection status: %w", err)
	}
	parsed, err := fromTagged(t)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (s ConnectionStatus) MarshalYAML() (any, error) {
	if s.Kind == StatusError {
		return struct {
			Type    string `yaml:"type"`
			Message string `yaml:"message"`
		}{Type: StatusError.String(), Message: s.Message}, nil
	}
	return s.Kind.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *ConnectionStatus) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		kind, err := parseKind(node.Value)
		if err != nil {
			return err
		}
		if kind == StatusError {
			return fmt.Errorf("connection status Error requires a message mapping")
		}
		*s = ConnectionStatus{Kind: kind}
		return nil
	case yaml.MappingNode:
		var t taggedStatus
		if err := node.Decode(&t); err != nil {
			return fmt.Errorf("invalid connection status: %w", err)
		}
		parsed, err := fromTagged(t)
		if err != nil {
			return err
		}
		*s = parsed
		return nil
	default:
		return fmt.Errorf("invalid connection status node at line %d", node.Line)
	}
}
