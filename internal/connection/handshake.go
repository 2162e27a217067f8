package connection

import (
	"context"
	"errors"
	"fmt"

	"github.com/coder/acp-go-sdk"
	"go.uber.org/zap"

	"github.com/kaname/kaname/internal/common/constants"
	"github.com/kaname/kaname/internal/common/logger"
	"github.com/kaname/kaname/internal/tracing"
)

var errAgentExited = errors.New("agent exited before completing initialize")

// handshake performs the ACP initialize exchange. It fails when the agent
// closes the connection, the response does not arrive in time, or the agent
// speaks a newer protocol than this client.
func handshake(ctx context.Context, conn *acp.ClientSideConnection, cfg Config, log *logger.Logger) (info *AgentInfo, err error) {
	ctx, span := tracing.TraceHandshake(ctx, int(acp.ProtocolVersionNumber))
	defer func() { tracing.EndSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, constants.HandshakeTimeout)
	defer cancel()

	type result struct {
		resp acp.InitializeResponse
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := conn.Initialize(ctx, acp.InitializeRequest{
			ProtocolVersion: acp.ProtocolVersionNumber,
			ClientInfo: &acp.Implementation{
				Name:    cfg.ClientName,
				Version: cfg.ClientVersion,
			},
			ClientCapabilities: acp.ClientCapabilities{
				Fs: acp.FileSystemCapability{
					ReadTextFile:  false,
					WriteTextFile: false,
				},
				Terminal: false,
			},
		})
		done <- result{resp: resp, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-conn.Done():
		return nil, &HandshakeError{Err: errAgentExited}
	case <-ctx.Done():
		return nil, &HandshakeError{Err: fmt.Errorf("timed out waiting for initialize response: %w", ctx.Err())}
	}
	if res.err != nil {
		return nil, &HandshakeError{Err: res.err}
	}

	if got, want := int(res.resp.ProtocolVersion), int(acp.ProtocolVersionNumber); got > want {
		return nil, &HandshakeError{Err: fmt.Errorf("protocol mismatch: agent speaks version %d, client supports %d", got, want)}
	}

	info = &AgentInfo{
		Name:            "unknown",
		Version:         "unknown",
		ProtocolVersion: int(res.resp.ProtocolVersion),
		LoadSession:     res.resp.AgentCapabilities.LoadSession,
	}
	if res.resp.AgentInfo != nil {
		info.Name = res.resp.AgentInfo.Name
		info.Version = res.resp.AgentInfo.Version
	}

	log.Info("ACP connection initialized",
		zap.String("agent_name", info.Name),
		zap.String("agent_version", info.Version),
		zap.Int("protocol_version", info.ProtocolVersion),
		zap.Bool("supports_load_session", info.LoadSession))
	return info, nil
}
