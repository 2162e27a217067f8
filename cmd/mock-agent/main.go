// Package main runs the scripted ACP agent on stdin/stdout. It is useful for
// trying kaname without a real agent installed:
//
//	kaname connect --agent mock-agent --prompt /tool
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kaname/kaname/internal/common/logger"
	"github.com/kaname/kaname/internal/mockagent"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "mock-agent: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		name     string
		delay    time.Duration
		logLevel string
	)

	cmd := &cobra.Command{
		Use:           "mock-agent",
		Short:         "Scripted ACP agent speaking over stdin/stdout",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// stdout carries the protocol, so logs must go to stderr.
			log, err := logger.NewLogger(logger.LoggingConfig{
				Level:      logLevel,
				Format:     "console",
				OutputPath: "stderr",
			})
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			err = mockagent.Run(ctx, mockagent.Options{
				Name:      name,
				SlowDelay: delay,
				Logger:    log,
			})
			if err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "mock-agent", "agent name reported during initialize")
	cmd.Flags().DurationVar(&delay, "delay", 10*time.Second, "how long /slow prompts run unless cancelled")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	return cmd
}
