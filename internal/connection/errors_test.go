package connection

import (
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	cause := errors.New("cause")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "spawn", err: &SpawnError{Program: "agent", Err: cause}, want: `failed to spawn agent "agent": cause`},
		{name: "stream", err: &StreamCaptureError{Stream: "stdout", Err: cause}, want: "failed to capture agent stdout: cause"},
		{name: "handshake", err: &HandshakeError{Err: cause}, want: "ACP initialize failed: cause"},
		{name: "command", err: commandFailed(cause), want: "cause"},
		{name: "not connected", err: notConnected(&HandshakeError{Err: cause}), want: "ACP not connected: ACP initialize failed: cause"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
			assert.ErrorIs(t, tt.err, cause)
		})
	}
}

func TestNotConnectedKeepsStartupError(t *testing.T) {
	spawn := &SpawnError{Program: "missing", Err: exec.ErrNotFound}
	err := error(notConnected(spawn))

	var got *SpawnError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, "missing", got.Program)
	assert.ErrorIs(t, err, exec.ErrNotFound)
}
