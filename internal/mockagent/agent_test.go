package mockagent

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/coder/acp-go-sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	acpclient "github.com/kaname/kaname/internal/acp"
	"github.com/kaname/kaname/internal/common/logger"
)

type chunks struct {
	mu    sync.Mutex
	texts []string
	kinds []acpclient.NotificationKind
}

func (c *chunks) HandleNotification(_ context.Context, n acpclient.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds = append(c.kinds, n.Kind)
	if n.Kind == acpclient.KindMessageChunk {
		c.texts = append(c.texts, n.Text)
	}
}

func (c *chunks) snapshot() ([]string, []acpclient.NotificationKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...), append([]acpclient.NotificationKind(nil), c.kinds...)
}

// connect wires a client connection to a mock agent over in-memory pipes.
func connect(t *testing.T, opts Options, clientOpts ...acpclient.ClientOption) (*acp.ClientSideConnection, *chunks) {
	t.Helper()

	clientToAgentR, clientToAgentW := io.Pipe()
	agentToClientR, agentToClientW := io.Pipe()

	opts.Logger = logger.NewNop()
	agent := New(opts)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = agent.Serve(ctx, clientToAgentR, agentToClientW) }()

	sink := &chunks{}
	client := acpclient.NewClient(append([]acpclient.ClientOption{acpclient.WithSink(sink)}, clientOpts...)...)
	conn := acp.NewClientSideConnection(client, clientToAgentW, agentToClientR)

	t.Cleanup(func() {
		cancel()
		_ = clientToAgentW.Close()
		_ = agentToClientW.Close()
	})
	return conn, sink
}

func newSession(t *testing.T, conn *acp.ClientSideConnection) acp.SessionId {
	t.Helper()
	ctx := context.Background()

	initResp, err := conn.Initialize(ctx, acp.InitializeRequest{ProtocolVersion: acp.ProtocolVersionNumber})
	require.NoError(t, err)
	require.NotNil(t, initResp.AgentInfo)
	assert.Equal(t, "mock-agent", initResp.AgentInfo.Name)

	sess, err := conn.NewSession(ctx, acp.NewSessionRequest{Cwd: "/tmp", McpServers: []acp.McpServer{}})
	require.NoError(t, err)
	require.NotEmpty(t, sess.SessionId)
	return sess.SessionId
}

func prompt(conn *acp.ClientSideConnection, id acp.SessionId, text string) (acp.PromptResponse, error) {
	return conn.Prompt(context.Background(), acp.PromptRequest{
		SessionId: id,
		Prompt:    []acp.ContentBlock{acp.TextBlock(text)},
	})
}

func TestAgent_Echo(t *testing.T) {
	conn, sink := connect(t, Options{})
	id := newSession(t, conn)

	resp, err := prompt(conn, id, "hello there")
	require.NoError(t, err)
	assert.Equal(t, acp.StopReasonEndTurn, resp.StopReason)

	require.Eventually(t, func() bool {
		texts, _ := sink.snapshot()
		return len(texts) == 1
	}, time.Second, 10*time.Millisecond)
	texts, _ := sink.snapshot()
	assert.Equal(t, []string{"hello there"}, texts)
}

func TestAgent_ReportsSessionCwd(t *testing.T) {
	conn, sink := connect(t, Options{})
	id := newSession(t, conn)

	_, err := prompt(conn, id, "/cwd")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		texts, _ := sink.snapshot()
		return len(texts) == 1
	}, time.Second, 10*time.Millisecond)
	texts, _ := sink.snapshot()
	assert.Equal(t, []string{"cwd: /tmp"}, texts)
}

func TestAgent_Permission(t *testing.T) {
	tests := []struct {
		name   string
		policy acpclient.PermissionPolicy
		want   string
	}{
		{name: "first option", policy: acpclient.FirstOptionPolicy{}, want: "permission allow"},
		{name: "deny", policy: acpclient.DenyPolicy{}, want: "permission deny"},
		{name: "fabricated id", policy: acpclient.PolicyFunc(func(context.Context, acpclient.PermissionRequest) (acpclient.PermissionDecision, error) {
			return acpclient.Select("sudo"), nil
		}), want: "permission cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, sink := connect(t, Options{}, acpclient.WithPolicy(tt.policy))
			id := newSession(t, conn)

			_, err := prompt(conn, id, "/permission")
			require.NoError(t, err)

			require.Eventually(t, func() bool {
				texts, _ := sink.snapshot()
				return len(texts) == 1
			}, time.Second, 10*time.Millisecond)
			texts, _ := sink.snapshot()
			assert.Equal(t, tt.want, texts[0])
		})
	}
}

func TestAgent_SlowPromptCancelled(t *testing.T) {
	conn, _ := connect(t, Options{SlowDelay: time.Minute})
	id := newSession(t, conn)

	result := make(chan acp.StopReason, 1)
	go func() {
		resp, err := prompt(conn, id, "/slow")
		if err == nil {
			result <- resp.StopReason
		}
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, conn.Cancel(context.Background(), acp.CancelNotification{SessionId: id}))

	select {
	case reason := <-result:
		assert.Equal(t, acp.StopReasonCancelled, reason)
	case <-time.After(2 * time.Second):
		t.Fatal("slow prompt was not cancelled")
	}
}

func TestAgent_ToolAndError(t *testing.T) {
	conn, sink := connect(t, Options{})
	id := newSession(t, conn)

	_, err := prompt(conn, id, "/tool")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, kinds := sink.snapshot()
		return len(kinds) == 2
	}, time.Second, 10*time.Millisecond)
	_, kinds := sink.snapshot()
	assert.ElementsMatch(t, []acpclient.NotificationKind{acpclient.KindToolCall, acpclient.KindToolCallUpdate}, kinds)

	_, err = prompt(conn, id, "/error")
	assert.Error(t, err)
}

func TestAgent_Exit(t *testing.T) {
	exited := make(chan int, 1)
	conn, _ := connect(t, Options{Exit: func(code int) { exited <- code }})
	id := newSession(t, conn)

	_, err := prompt(conn, id, "/exit")
	require.NoError(t, err)
	assert.Equal(t, 3, <-exited)
}
