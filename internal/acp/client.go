package acp

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/acp-go-sdk"
	"go.uber.org/zap"

	"github.com/kaname/kaname/internal/common/constants"
	"github.com/kaname/kaname/internal/common/logger"
	"github.com/kaname/kaname/internal/tracing"
)

// Client implements acp.Client. It is the only object the SDK calls back
// into: session updates go to the Sink, permission requests to the policy.
// Filesystem and terminal capabilities are not advertised, so those methods
// return errors.
type Client struct {
	logger          *logger.Logger
	sink            Sink
	policy          PermissionPolicy
	decisionTimeout time.Duration
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithLogger sets the logger
func WithLogger(l *logger.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithSink sets the notification sink
func WithSink(s Sink) ClientOption {
	return func(c *Client) {
		c.sink = s
	}
}

// WithPolicy sets the permission policy
func WithPolicy(p PermissionPolicy) ClientOption {
	return func(c *Client) {
		c.policy = p
	}
}

// WithDecisionTimeout bounds how long the policy may take per request
func WithDecisionTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.decisionTimeout = d
	}
}

// NewClient creates a new ACP client implementation
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		logger:          logger.NewNop(),
		sink:            discardSink{},
		policy:          FirstOptionPolicy{},
		decisionTimeout: constants.PermissionDecisionTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sink == nil {
		c.sink = discardSink{}
	}
	if c.policy == nil {
		c.policy = FirstOptionPolicy{}
	}
	return c
}

// SessionUpdate forwards session update notifications to the sink.
func (c *Client) SessionUpdate(ctx context.Context, n acp.SessionNotification) error {
	c.sink.HandleNotification(ctx, FromSessionNotification(n))
	return nil
}

// RequestPermission resolves a permission request through the policy.
// The response always names an offered option or is a cancellation.
func (c *Client) RequestPermission(ctx context.Context, p acp.RequestPermissionRequest) (acp.RequestPermissionResponse, error) {
	req := toPermissionRequest(p)

	ctx, span := tracing.TracePermission(ctx, req.SessionID, req.ToolCallID, len(req.Options))
	defer span.End()

	log := c.logger.WithFields(
		zap.String("session_id", req.SessionID),
		zap.String("tool_call_id", req.ToolCallID))
	log.Info("received permission request",
		zap.String("title", req.Title),
		zap.Int("num_options", len(req.Options)))

	if len(req.Options) == 0 {
		log.Warn("no options available, cancelling permission request")
		return cancelled(), nil
	}

	decision, err := c.decide(ctx, req)
	if err != nil {
		log.Warn("permission policy failed, cancelling", zap.Error(err))
		return cancelled(), nil
	}
	if decision.Cancelled {
		log.Info("permission request denied by policy")
		return cancelled(), nil
	}
	if !offered(req, decision.OptionID) {
		log.Warn("permission policy chose an option that was not offered, cancelling",
			zap.String("option_id", decision.OptionID))
		return cancelled(), nil
	}

	log.Info("permission request approved", zap.String("option_id", decision.OptionID))
	return acp.RequestPermissionResponse{
		Outcome: acp.RequestPermissionOutcome{
			Selected: &acp.RequestPermissionOutcomeSelected{
				OptionId: acp.PermissionOptionId(decision.OptionID),
			},
		},
	}, nil
}

// decide runs the policy bounded by the decision timeout. A policy that
// ignores its context is abandoned when the window closes.
func (c *Client) decide(ctx context.Context, req PermissionRequest) (PermissionDecision, error) {
	ctx, cancel := context.WithTimeout(ctx, c.decisionTimeout)
	defer cancel()

	type result struct {
		decision PermissionDecision
		err      error
	}
	done := make(chan result, 1)
	go func() {
		d, err := c.policy.Decide(ctx, req)
		done <- result{decision: d, err: err}
	}()

	select {
	case r := <-done:
		return r.decision, r.err
	case <-ctx.Done():
		return PermissionDecision{}, fmt.Errorf("permission decision: %w", ctx.Err())
	}
}

func toPermissionRequest(p acp.RequestPermissionRequest) PermissionRequest {
	req := PermissionRequest{
		SessionID:  string(p.SessionId),
		ToolCallID: string(p.ToolCall.ToolCallId),
		Options:    make([]PermissionOption, len(p.Options)),
	}
	if p.ToolCall.Title != nil {
		req.Title = *p.ToolCall.Title
	}
	for i, opt := range p.Options {
		req.Options[i] = PermissionOption{
			ID:   string(opt.OptionId),
			Name: opt.Name,
			Kind: string(opt.Kind),
		}
	}
	return req
}

func cancelled() acp.RequestPermissionResponse {
	return acp.RequestPermissionResponse{
		Outcome: acp.RequestPermissionOutcome{
			Cancelled: &acp.RequestPermissionOutcomeCancelled{},
		},
	}
}

func unsupported(method string) error {
	return fmt.Errorf("%s is not supported by this client", method)
}

// ReadTextFile is not supported.
func (c *Client) ReadTextFile(ctx context.Context, p acp.ReadTextFileRequest) (acp.ReadTextFileResponse, error) {
	c.logger.Debug("rejecting file read", zap.String("path", p.Path))
	return acp.ReadTextFileResponse{}, unsupported("fs/read_text_file")
}

// WriteTextFile is not supported.
func (c *Client) WriteTextFile(ctx context.Context, p acp.WriteTextFileRequest) (acp.WriteTextFileResponse, error) {
	c.logger.Debug("rejecting file write", zap.String("path", p.Path))
	return acp.WriteTextFileResponse{}, unsupported("fs/write_text_file")
}

// CreateTerminal is not supported.
func (c *Client) CreateTerminal(ctx context.Context, p acp.CreateTerminalRequest) (acp.CreateTerminalResponse, error) {
	c.logger.Debug("rejecting terminal", zap.String("command", p.Command))
	return acp.CreateTerminalResponse{}, unsupported("terminal/create")
}

// KillTerminalCommand is not supported.
func (c *Client) KillTerminalCommand(ctx context.Context, p acp.KillTerminalCommandRequest) (acp.KillTerminalCommandResponse, error) {
	return acp.KillTerminalCommandResponse{}, unsupported("terminal/kill")
}

// TerminalOutput is not supported.
func (c *Client) TerminalOutput(ctx context.Context, p acp.TerminalOutputRequest) (acp.TerminalOutputResponse, error) {
	return acp.TerminalOutputResponse{}, unsupported("terminal/output")
}

// ReleaseTerminal is not supported.
func (c *Client) ReleaseTerminal(ctx context.Context, p acp.ReleaseTerminalRequest) (acp.ReleaseTerminalResponse, error) {
	return acp.ReleaseTerminalResponse{}, unsupported("terminal/release")
}

// WaitForTerminalExit is not supported.
func (c *Client) WaitForTerminalExit(ctx context.Context, p acp.WaitForTerminalExitRequest) (acp.WaitForTerminalExitResponse, error) {
	return acp.WaitForTerminalExitResponse{}, unsupported("terminal/wait_for_exit")
}

// Verify interface implementation
var _ acp.Client = (*Client)(nil)
