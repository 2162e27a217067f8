package acp

import (
	"context"
	"errors"
)

// PermissionOption is one choice offered by the agent.
type PermissionOption struct {
	ID   string
	Name string
	Kind string
}

// Option kinds as sent by the agent.
const (
	OptionKindAllowOnce    = "allow_once"
	OptionKindAllowAlways  = "allow_always"
	OptionKindRejectOnce   = "reject_once"
	OptionKindRejectAlways = "reject_always"
)

// PermissionRequest asks the client to approve or deny a tool call.
type PermissionRequest struct {
	SessionID  string
	ToolCallID string
	Title      string
	Options    []PermissionOption
}

// PermissionDecision is either a selected option id or a cancellation.
type PermissionDecision struct {
	OptionID  string
	Cancelled bool
}

// Select returns a decision choosing optionID.
func Select(optionID string) PermissionDecision {
	return PermissionDecision{OptionID: optionID}
}

// Deny returns a decision that cancels the request.
func Deny() PermissionDecision {
	return PermissionDecision{Cancelled: true}
}

// PermissionPolicy resolves permission requests. A decision must name one of
// the offered option ids or be a denial; anything else is treated as a denial
// by the client, as is an error or a decision that arrives after the
// response window.
type PermissionPolicy interface {
	Decide(ctx context.Context, req PermissionRequest) (PermissionDecision, error)
}

// PolicyFunc adapts a function to PermissionPolicy.
type PolicyFunc func(ctx context.Context, req PermissionRequest) (PermissionDecision, error)

// Decide calls f.
func (f PolicyFunc) Decide(ctx context.Context, req PermissionRequest) (PermissionDecision, error) {
	return f(ctx, req)
}

// ErrNoOptions is returned by policies asked to decide with nothing offered.
var ErrNoOptions = errors.New("no permission options offered")

// FirstOptionPolicy approves every request by choosing the first offered
// option. It is the default and a placeholder for a real policy.
type FirstOptionPolicy struct{}

// Decide implements PermissionPolicy.
func (FirstOptionPolicy) Decide(_ context.Context, req PermissionRequest) (PermissionDecision, error) {
	if len(req.Options) == 0 {
		return PermissionDecision{}, ErrNoOptions
	}
	return Select(req.Options[0].ID), nil
}

// PreferAllowPolicy chooses the first allow option, falling back to the first
// option when none is offered.
type PreferAllowPolicy struct{}

// Decide implements PermissionPolicy.
func (PreferAllowPolicy) Decide(_ context.Context, req PermissionRequest) (PermissionDecision, error) {
	if len(req.Options) == 0 {
		return PermissionDecision{}, ErrNoOptions
	}
	for _, opt := range req.Options {
		if opt.Kind == OptionKindAllowOnce || opt.Kind == OptionKindAllowAlways {
			return Select(opt.ID), nil
		}
	}
	return Select(req.Options[0].ID), nil
}

// DenyPolicy rejects every request, using the agent's reject option when
// one is offered.
type DenyPolicy struct{}

// Decide implements PermissionPolicy.
func (DenyPolicy) Decide(_ context.Context, req PermissionRequest) (PermissionDecision, error) {
	for _, opt := range req.Options {
		if opt.Kind == OptionKindRejectOnce || opt.Kind == OptionKindRejectAlways {
			return Select(opt.ID), nil
		}
	}
	return Deny(), nil
}

// offered reports whether id names one of req's options.
func offered(req PermissionRequest, id string) bool {
	for _, opt := range req.Options {
		if opt.ID == id {
			return true
		}
	}
	return false
}
