package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	acpclient "github.com/kaname/kaname/internal/acp"
	"github.com/kaname/kaname/internal/common/config"
	"github.com/kaname/kaname/internal/common/constants"
	"github.com/kaname/kaname/internal/common/logger"
	"github.com/kaname/kaname/internal/connection"
	"github.com/kaname/kaname/internal/events"
	"github.com/kaname/kaname/internal/tracing"
)

type connectOptions struct {
	configPath *string
	agent      string
	args       []string
	cwd        string
	prompts    []string
	policy     string
	format     string
	wait       bool
}

func newConnectCommand(configPath *string) *cobra.Command {
	opts := connectOptions{configPath: configPath}

	cmd := &cobra.Command{
		Use:   "connect [-- agent-args...]",
		Short: "Launch the agent, run prompts and print the connection state",
		Long: `connect launches the configured ACP agent and performs the initialize
handshake. With --prompt it creates a session and sends each prompt in order.
It prints the final connection state, then shuts the agent down.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				opts.args = args
			}
			return runConnect(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.agent, "agent", "", "agent executable (overrides agent.program)")
	cmd.Flags().StringVar(&opts.cwd, "cwd", "", "session working directory (default: agent working directory)")
	cmd.Flags().StringArrayVarP(&opts.prompts, "prompt", "p", nil, "prompt to send; repeatable")
	cmd.Flags().StringVar(&opts.policy, "policy", "first", "permission policy: first, allow or deny")
	cmd.Flags().StringVarP(&opts.format, "output", "o", formatJSON, "output format: json or yaml")
	cmd.Flags().BoolVar(&opts.wait, "wait", false, "stay connected until interrupted")
	return cmd
}

func runConnect(cmd *cobra.Command, opts connectOptions) error {
	cfg, err := config.LoadWithPath(*opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.agent != "" {
		cfg.Agent.Program = opts.agent
	}
	if opts.args != nil {
		cfg.Agent.Args = opts.args
	}
	policy, err := parsePolicy(opts.policy)
	if err != nil {
		return err
	}

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	logger.SetDefault(log)
	defer func() { _ = log.Sync() }()

	tracing.Init(cfg.Tracing.Endpoint)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(ctx); err != nil {
			log.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	provided, closeBus, err := events.Provide(cfg.Events, log)
	if err != nil {
		return err
	}
	defer func() { _ = closeBus() }()

	history := newStatusHistory()
	sub, err := provided.Bus.Subscribe(events.ACPStatusChanged, history.handle)
	if err != nil {
		return fmt.Errorf("subscribe to status events: %w", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h, err := connection.Start(ctx, connection.FromAgentConfig(cfg.Agent),
		connection.WithLogger(log),
		connection.WithPolicy(policy),
		connection.WithEventBus(provided.Bus),
		connection.WithSink(acpclient.MultiSink{
			acpclient.NewLogSink(log),
			acpclient.NewBusSink(provided.Bus, log),
		}),
	)
	if err != nil {
		return err
	}
	defer h.Close()

	var out report
	runErr := drive(ctx, h, opts, &out)

	if opts.wait && runErr == nil {
		log.Info("connected; waiting for interrupt")
		select {
		case <-ctx.Done():
		case <-h.Done():
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultShutdownGrace*3)
	defer cancel()
	if err := h.Shutdown(shutdownCtx); err != nil && !errors.Is(err, connection.ErrRuntimeGone) {
		log.Debug("shutdown", zap.Error(err))
	}
	h.Close()
	select {
	case <-h.Done():
	case <-shutdownCtx.Done():
		log.Warn("timed out waiting for the agent to stop")
	}

	out.Connection = h.Status()
	out.History = history.settle(out.Connection.Status, time.Second)
	if err := writeReport(cmd.OutOrStdout(), opts.format, out); err != nil {
		return err
	}
	return runErr
}

// drive waits for the handshake and runs the requested prompts.
func drive(ctx context.Context, h *connection.Handle, opts connectOptions, out *report) error {
	snap, err := awaitHandshake(ctx, h)
	if err != nil {
		return err
	}
	if snap.Status.IsError() {
		return fmt.Errorf("agent connection failed: %s", snap.Status.Message)
	}
	if len(opts.prompts) == 0 {
		return nil
	}

	if _, err := h.NewSession(ctx, opts.cwd); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	for _, text := range opts.prompts {
		reason, err := h.Prompt(ctx, text)
		t := turn{Prompt: text, StopReason: reason}
		if err != nil {
			t.Error = err.Error()
		}
		out.Turns = append(out.Turns, t)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// awaitHandshake polls the status until the runtime leaves Connecting.
func awaitHandshake(ctx context.Context, h *connection.Handle) (connection.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.HandshakeTimeout+constants.DefaultShutdownGrace)
	defer cancel()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		snap := h.Status()
		if snap.Status.Kind != connection.StatusConnecting {
			return snap, nil
		}
		select {
		case <-ticker.C:
		case <-h.Done():
			return h.Status(), nil
		case <-ctx.Done():
			return snap, fmt.Errorf("waiting for agent handshake: %w", ctx.Err())
		}
	}
}

func parsePolicy(name string) (acpclient.PermissionPolicy, error) {
	switch name {
	case "", "first":
		return acpclient.FirstOptionPolicy{}, nil
	case "allow":
		return acpclient.PreferAllowPolicy{}, nil
	case "deny":
		return acpclient.DenyPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown permission policy %q (want first, allow or deny)", name)
	}
}

