package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/coder/acp-go-sdk"
	"go.uber.org/zap"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	acpclient "github.com/kaname/kaname/internal/acp"
	"github.com/kaname/kaname/internal/common/constants"
	"github.com/kaname/kaname/internal/common/logger"
	"github.com/kaname/kaname/internal/events"
	"github.com/kaname/kaname/internal/events/bus"
	"github.com/kaname/kaname/internal/tracing"
)

// Option configures Start.
type Option func(*options)

type options struct {
	logger *logger.Logger
	sink   acpclient.Sink
	policy acpclient.PermissionPolicy
	bus    bus.EventBus
}

// WithLogger sets the logger
func WithLogger(l *logger.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithSink sets where agent notifications are delivered. Defaults to a LogSink.
func WithSink(s acpclient.Sink) Option {
	return func(o *options) {
		o.sink = s
	}
}

// WithPolicy sets the permission policy. Defaults to FirstOptionPolicy.
func WithPolicy(p acpclient.PermissionPolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithEventBus publishes status transitions on b.
func WithEventBus(b bus.EventBus) Option {
	return func(o *options) {
		o.bus = b
	}
}

// Start validates cfg and starts the connection runtime, which launches the
// agent and performs the handshake in the background. Start fails only for
// an invalid config; launch and handshake failures show up in Status and in
// the replies to later commands.
//
// ctx supplies values for logging and tracing. The runtime lives until it
// processes Shutdown, the agent connection fails and every Handle is closed,
// or every Handle is closed.
func Start(ctx context.Context, cfg Config, opts ...Option) (*Handle, error) {
	cfg = cfg.normalized()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid connection config: %w", err)
	}

	o := options{logger: logger.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sink == nil {
		o.sink = acpclient.NewLogSink(o.logger)
	}
	if o.policy == nil {
		o.policy = acpclient.FirstOptionPolicy{}
	}

	queue := make(chan request, cfg.QueueCapacity)
	r := &runner{
		cfg:        cfg,
		logger:     o.logger.WithFields(zap.String("component", "acp-connection"), zap.String("agent", cfg.AgentProgram)),
		sink:       o.sink,
		policy:     o.policy,
		bus:        o.bus,
		queue:      queue,
		done:       make(chan struct{}),
		promptDone: make(chan struct{}, 1),
	}
	r.state.SetStatus(Connecting())
	r.cell = newStateCell(r.state)
	r.publishStatus(ctx)

	go r.run(context.WithoutCancel(ctx))

	return newHandle(queue, r.cell, r.done), nil
}

// runner is the confinement runtime. Fields after the confined marker are
// touched only by the goroutine executing run.
type runner struct {
	cfg    Config
	logger *logger.Logger
	sink   acpclient.Sink
	policy acpclient.PermissionPolicy
	bus    bus.EventBus
	queue  <-chan request
	cell   *stateCell
	done   chan struct{}

	// confined
	group      *errgroup.Group
	proc       *agentProcess
	conn       *acp.ClientSideConnection
	state      ConnectionState
	agent      *AgentInfo
	prompt     *inflightPrompt
	promptDone chan struct{}
}

type inflightPrompt struct {
	sessionID string
	cancel    context.CancelFunc
}

func (r *runner) run(ctx context.Context) {
	// The ACP connection and the process stay on one OS thread for their
	// whole life. The thread is discarded when run returns.
	runtime.LockOSThread()
	defer close(r.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.group, ctx = errgroup.WithContext(ctx)

	if err := r.connect(ctx); err != nil {
		r.logger.Error("failed to establish ACP connection", zap.Error(err))
		r.setStatus(ctx, Failed(err.Error()))
		r.teardown(ctx)
		r.drain(err)
		return
	}

	if err := r.serve(ctx); err != nil {
		r.teardown(ctx)
		r.drain(err)
		return
	}
	r.teardown(ctx)
}

func (r *runner) connect(ctx context.Context) (err error) {
	launchCtx, span := tracing.TraceLaunch(ctx, r.cfg.AgentProgram, len(r.cfg.AgentArgs))
	r.proc, err = launch(r.cfg, r.logger)
	tracing.EndSpan(span, err)
	if err != nil {
		return err
	}
	r.group.Go(r.proc.wait)
	r.publish()

	client := acpclient.NewClient(
		acpclient.WithLogger(r.logger),
		acpclient.WithSink(r.sink),
		acpclient.WithPolicy(r.policy),
	)
	r.conn = acp.NewClientSideConnection(client, r.proc.stdin, r.proc.stdout)
	r.conn.SetLogger(slog.Default().With("component", "acp-conn"))

	info, err := handshake(launchCtx, r.conn, r.cfg, r.logger)
	if err != nil {
		return err
	}
	r.agent = info
	r.setStatus(ctx, Connected())
	return nil
}

// serve processes commands until Shutdown, queue closure or a connection
// failure. It returns the failure, if any.
func (r *runner) serve(ctx context.Context) error {
	for {
		select {
		case req, ok := <-r.queue:
			if !ok {
				r.logger.Info("all handles closed, shutting down")
				return nil
			}
			if stop := r.dispatch(ctx, req); stop {
				return nil
			}

		case <-r.promptDone:
			r.prompt = nil

		case <-r.conn.Done():
			err := fmt.Errorf("agent connection closed%s", r.proc.exitSuffix())
			r.logger.Error("ACP connection lost", zap.Error(err))
			r.setStatus(ctx, Failed(err.Error()))
			return err
		}
	}
}

// drain answers every remaining command with the failure until all handles
// are closed.
func (r *runner) drain(cause error) {
	for req := range r.queue {
		r.logger.Debug("rejecting command on failed connection",
			zap.String("command", req.cmd.commandName()))
		req.respond(Reply{Err: notConnected(cause)})
	}
}

func (r *runner) teardown(ctx context.Context) {
	if r.prompt != nil {
		r.prompt.cancel()
	}
	if r.proc != nil {
		r.proc.stop(r.cfg.ShutdownGrace)
	}
	if r.group != nil {
		_ = r.group.Wait()
	}
	r.prompt = nil

	if r.state.Status.IsError() {
		r.state.ClearSession()
		r.publish()
		return
	}
	r.setStatus(ctx, Disconnected())
}

func (r *runner) dispatch(ctx context.Context, req request) bool {
	select {
	case <-r.promptDone:
		r.prompt = nil
	default:
	}

	sessionID, _ := r.state.Session()
	ctx, span := tracing.TraceCommand(ctx, req.cmd.commandName(), sessionID)

	switch cmd := req.cmd.(type) {
	case Shutdown:
		r.logger.Info("shutdown requested")
		req.respond(Reply{})
		tracing.EndSpan(span, nil)
		return true

	case NewSession:
		id, err := r.newSession(ctx, cmd.Cwd)
		tracing.EndSpan(span, err)
		if err != nil {
			req.respond(Reply{Err: commandFailed(err)})
			return false
		}
		req.respond(Reply{SessionID: id})

	case Prompt:
		// The span is ended by the prompt goroutine.
		r.startPrompt(ctx, span, req, cmd.Text)

	case Cancel:
		err := r.cancel(ctx)
		tracing.EndSpan(span, err)
		if err != nil {
			req.respond(Reply{Err: commandFailed(err)})
			return false
		}
		req.respond(Reply{SessionID: sessionID})

	default:
		err := fmt.Errorf("unsupported command %T", cmd)
		tracing.EndSpan(span, err)
		req.respond(Reply{Err: commandFailed(err)})
	}
	return false
}

var (
	errNoSession        = errors.New("no active session")
	errPromptInProgress = errors.New("prompt already in progress")
)

func (r *runner) newSession(ctx context.Context, cwd string) (string, error) {
	if r.prompt != nil {
		return "", errPromptInProgress
	}
	if cwd == "" {
		cwd = r.cfg.WorkDir
	}
	cwd = absDir(cwd)
	if cwd == "" {
		return "", errors.New("no working directory for session")
	}

	ctx, cancel := context.WithTimeout(ctx, constants.SessionRequestTimeout)
	defer cancel()

	resp, err := r.conn.NewSession(ctx, acp.NewSessionRequest{
		Cwd:        cwd,
		McpServers: []acp.McpServer{},
	})
	if err != nil {
		return "", fmt.Errorf("session/new failed: %w", err)
	}

	id := string(resp.SessionId)
	r.state.SetSessionID(id)
	r.publish()
	r.publishStatus(ctx)
	r.logger.Info("ACP session created", zap.String("session_id", id), zap.String("cwd", cwd))
	return id, nil
}

// startPrompt runs the prompt on a goroutine owned by the runtime so that a
// Cancel can be processed while the agent works. The goroutine replies.
func (r *runner) startPrompt(ctx context.Context, span trace.Span, req request, text string) {
	fail := func(err error) {
		tracing.EndSpan(span, err)
		req.respond(Reply{Err: commandFailed(err)})
	}
	if r.prompt != nil {
		fail(errPromptInProgress)
		return
	}
	sessionID, ok := r.state.Session()
	if !ok {
		fail(errNoSession)
		return
	}

	promptCtx, cancel := context.WithCancel(ctx)
	r.prompt = &inflightPrompt{sessionID: sessionID, cancel: cancel}
	conn := r.conn

	r.group.Go(func() error {
		defer cancel()

		resp, err := conn.Prompt(promptCtx, acp.PromptRequest{
			SessionId: acp.SessionId(sessionID),
			Prompt:    []acp.ContentBlock{acp.TextBlock(text)},
		})
		reply := Reply{SessionID: sessionID}
		if err != nil {
			err = fmt.Errorf("session/prompt failed: %w", err)
			reply.Err = commandFailed(err)
		} else {
			reply.StopReason = string(resp.StopReason)
		}
		tracing.EndSpan(span, err)

		// Signal completion before replying so the caller's next command
		// never sees this prompt as still running.
		r.promptDone <- struct{}{}
		req.respond(reply)
		return nil
	})
}

func (r *runner) cancel(ctx context.Context) error {
	sessionID, ok := r.state.Session()
	if !ok {
		return errNoSession
	}

	ctx, cancel := context.WithTimeout(ctx, constants.SessionRequestTimeout)
	defer cancel()

	if err := r.conn.Cancel(ctx, acp.CancelNotification{SessionId: acp.SessionId(sessionID)}); err != nil {
		return fmt.Errorf("session/cancel failed: %w", err)
	}
	r.logger.Info("cancel sent", zap.String("session_id", sessionID), zap.Bool("prompt_in_flight", r.prompt != nil))
	return nil
}

func (r *runner) setStatus(ctx context.Context, status ConnectionStatus) {
	prev := r.state.Status
	r.state.SetStatus(status)
	r.publish()
	if prev != status {
		r.logger.Info("connection status changed",
			zap.String("from", prev.String()),
			zap.String("to", status.String()))
		r.publishStatus(ctx)
	}
}

// publish makes the current state visible to Handle.Status.
func (r *runner) publish() {
	pid := 0
	if r.proc != nil {
		pid = r.proc.pid()
	}
	r.cell.store(r.state, r.agent, pid)
}

func (r *runner) publishStatus(ctx context.Context) {
	if r.bus == nil {
		return
	}
	data := events.StatusChangedData{Status: r.state.Status}
	if id, ok := r.state.Session(); ok {
		data.SessionID = id
	}

	ctx, cancel := context.WithTimeout(ctx, constants.EventPublishTimeout)
	defer cancel()
	event := bus.NewEvent(events.ACPStatusChanged, events.SourceConnection, data)
	if err := r.bus.Publish(ctx, events.ACPStatusChanged, event); err != nil {
		r.logger.Warn("failed to publish status event", zap.Error(err))
	}
}
