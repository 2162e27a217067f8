// Package mockagent implements a minimal ACP agent for tests and local
// experiments. It echoes prompts back as message chunks; prompts starting
// with a slash select scripted behaviour:
//
//	/slow        stream a chunk, then wait until cancelled or SlowDelay elapses
//	/permission  ask the client for permission before answering
//	/tool        report a tool call that completes immediately
//	/cwd         reply with the session's working directory
//	/error       fail the prompt
//	/exit        terminate the agent process
package mockagent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/coder/acp-go-sdk"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kaname/kaname/internal/common/logger"
)

// Options configures an Agent.
type Options struct {
	Name      string
	Version   string
	SlowDelay time.Duration
	Logger    *logger.Logger
	// Exit is called for /exit. Defaults to os.Exit.
	Exit func(code int)
}

// Agent is a scripted ACP agent.
type Agent struct {
	opts   Options
	logger *logger.Logger

	mu       sync.Mutex
	conn     *acp.AgentSideConnection
	sessions map[string]*session
}

type session struct {
	cwd    string
	cancel context.CancelFunc
}

// New creates an agent.
func New(opts Options) *Agent {
	if opts.Name == "" {
		opts.Name = "mock-agent"
	}
	if opts.Version == "" {
		opts.Version = "0.0.0"
	}
	if opts.SlowDelay == 0 {
		opts.SlowDelay = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}
	return &Agent{
		opts:     opts,
		logger:   opts.Logger.WithFields(zap.String("component", "mock-agent")),
		sessions: make(map[string]*session),
	}
}

// Serve speaks ACP over r and w until the peer disconnects or ctx ends.
func (a *Agent) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	conn := acp.NewAgentSideConnection(a, w, r)
	conn.SetLogger(slog.Default().With("component", "mock-agent-conn"))

	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()

	a.logger.Info("mock agent serving")
	select {
	case <-conn.Done():
		a.logger.Info("mock agent connection closed")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run serves on the process's stdin and stdout.
func Run(ctx context.Context, opts Options) error {
	return New(opts).Serve(ctx, os.Stdin, os.Stdout)
}

func (a *Agent) connection() *acp.AgentSideConnection {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn
}

// Initialize implements acp.Agent
func (a *Agent) Initialize(ctx context.Context, params acp.InitializeRequest) (acp.InitializeResponse, error) {
	client := "unknown"
	if params.ClientInfo != nil {
		client = params.ClientInfo.Name
	}
	a.logger.Info("initialize", zap.String("client", client))

	return acp.InitializeResponse{
		ProtocolVersion: acp.ProtocolVersionNumber,
		AgentCapabilities: acp.AgentCapabilities{
			LoadSession: false,
		},
		AgentInfo: &acp.Implementation{
			Name:    a.opts.Name,
			Version: a.opts.Version,
		},
	}, nil
}

// Authenticate implements acp.Agent
func (a *Agent) Authenticate(ctx context.Context, params acp.AuthenticateRequest) (acp.AuthenticateResponse, error) {
	return acp.AuthenticateResponse{}, nil
}

// NewSession implements acp.Agent
func (a *Agent) NewSession(ctx context.Context, params acp.NewSessionRequest) (acp.NewSessionResponse, error) {
	id := "mock-" + uuid.New().String()

	a.mu.Lock()
	a.sessions[id] = &session{cwd: params.Cwd}
	a.mu.Unlock()

	a.logger.Info("session created", zap.String("session_id", id), zap.String("cwd", params.Cwd))
	return acp.NewSessionResponse{SessionId: acp.SessionId(id)}, nil
}

// LoadSession implements acp.AgentLoader
func (a *Agent) LoadSession(ctx context.Context, params acp.LoadSessionRequest) (acp.LoadSessionResponse, error) {
	return acp.LoadSessionResponse{}, fmt.Errorf("session loading not supported")
}

// SetSessionMode implements acp.Agent
func (a *Agent) SetSessionMode(ctx context.Context, params acp.SetSessionModeRequest) (acp.SetSessionModeResponse, error) {
	return acp.SetSessionModeResponse{}, nil
}

// SetSessionModel implements acp.AgentExperimental
func (a *Agent) SetSessionModel(ctx context.Context, params acp.SetSessionModelRequest) (acp.SetSessionModelResponse, error) {
	return acp.SetSessionModelResponse{}, nil
}

// Cancel implements acp.Agent
func (a *Agent) Cancel(ctx context.Context, params acp.CancelNotification) error {
	sessionID := string(params.SessionId)

	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[sessionID]
	if !ok {
		a.logger.Warn("cancel for unknown session", zap.String("session_id", sessionID))
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	a.logger.Info("prompt cancelled", zap.String("session_id", sessionID))
	return nil
}

// Prompt implements acp.Agent
func (a *Agent) Prompt(ctx context.Context, params acp.PromptRequest) (acp.PromptResponse, error) {
	sessionID := string(params.SessionId)

	promptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.mu.Lock()
	s, ok := a.sessions[sessionID]
	if ok {
		s.cancel = cancel
	}
	a.mu.Unlock()
	if !ok {
		return acp.PromptResponse{}, fmt.Errorf("session %s not found", sessionID)
	}
	defer func() {
		a.mu.Lock()
		s.cancel = nil
		a.mu.Unlock()
	}()

	var text strings.Builder
	for _, block := range params.Prompt {
		if block.Text != nil {
			text.WriteString(block.Text.Text)
		}
	}
	prompt := strings.TrimSpace(text.String())
	a.logger.Debug("prompt", zap.String("session_id", sessionID), zap.String("text", prompt))

	switch {
	case prompt == "/error":
		return acp.PromptResponse{}, fmt.Errorf("mock agent error")
	case prompt == "/exit":
		a.opts.Exit(3)
		return acp.PromptResponse{StopReason: acp.StopReasonEndTurn}, nil
	case prompt == "/slow":
		return a.slow(promptCtx, params.SessionId)
	case prompt == "/permission":
		return a.permission(promptCtx, params.SessionId)
	case prompt == "/tool":
		return a.tool(promptCtx, params.SessionId)
	case prompt == "/cwd":
		if err := a.say(promptCtx, params.SessionId, "cwd: "+s.cwd); err != nil {
			return acp.PromptResponse{}, err
		}
		return acp.PromptResponse{StopReason: acp.StopReasonEndTurn}, nil
	default:
		if err := a.say(promptCtx, params.SessionId, prompt); err != nil {
			return acp.PromptResponse{}, err
		}
		return acp.PromptResponse{StopReason: acp.StopReasonEndTurn}, nil
	}
}

func (a *Agent) say(ctx context.Context, sessionID acp.SessionId, text string) error {
	return a.connection().SessionUpdate(ctx, acp.SessionNotification{
		SessionId: sessionID,
		Update:    acp.UpdateAgentMessageText(text),
	})
}

func (a *Agent) slow(ctx context.Context, sessionID acp.SessionId) (acp.PromptResponse, error) {
	if err := a.say(ctx, sessionID, "working..."); err != nil {
		return acp.PromptResponse{}, err
	}

	timer := time.NewTimer(a.opts.SlowDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return acp.PromptResponse{StopReason: acp.StopReasonEndTurn}, nil
	case <-ctx.Done():
		return acp.PromptResponse{StopReason: acp.StopReasonCancelled}, nil
	}
}

func (a *Agent) permission(ctx context.Context, sessionID acp.SessionId) (acp.PromptResponse, error) {
	resp, err := a.connection().RequestPermission(ctx, acp.RequestPermissionRequest{
		SessionId: sessionID,
		ToolCall: acp.RequestPermissionToolCall{
			ToolCallId: acp.ToolCallId("perm-" + uuid.New().String()),
			Title:      acp.Ptr("Run mock command"),
			Kind:       acp.Ptr(acp.ToolKindExecute),
			Status:     acp.Ptr(acp.ToolCallStatusPending),
		},
		Options: []acp.PermissionOption{
			{Kind: acp.PermissionOptionKindAllowOnce, Name: "Allow", OptionId: acp.PermissionOptionId("allow")},
			{Kind: acp.PermissionOptionKindRejectOnce, Name: "Deny", OptionId: acp.PermissionOptionId("deny")},
		},
	})
	if err != nil {
		return acp.PromptResponse{}, fmt.Errorf("permission request failed: %w", err)
	}

	answer := "permission cancelled"
	if resp.Outcome.Selected != nil {
		answer = "permission " + string(resp.Outcome.Selected.OptionId)
	}
	if err := a.say(ctx, sessionID, answer); err != nil {
		return acp.PromptResponse{}, err
	}
	return acp.PromptResponse{StopReason: acp.StopReasonEndTurn}, nil
}

func (a *Agent) tool(ctx context.Context, sessionID acp.SessionId) (acp.PromptResponse, error) {
	conn := a.connection()
	toolID := acp.ToolCallId("tool-" + uuid.New().String())

	if err := conn.SessionUpdate(ctx, acp.SessionNotification{
		SessionId: sessionID,
		Update: acp.StartToolCall(toolID, "Read mock file",
			acp.WithStartKind(acp.ToolKindRead),
			acp.WithStartStatus(acp.ToolCallStatusPending)),
	}); err != nil {
		return acp.PromptResponse{}, err
	}
	if err := conn.SessionUpdate(ctx, acp.SessionNotification{
		SessionId: sessionID,
		Update: acp.UpdateToolCall(toolID,
			acp.WithUpdateStatus(acp.ToolCallStatusCompleted)),
	}); err != nil {
		return acp.PromptResponse{}, err
	}
	return acp.PromptResponse{StopReason: acp.StopReasonEndTurn}, nil
}

var _ acp.Agent = (*Agent)(nil)
