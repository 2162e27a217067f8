package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	acpclient "github.com/kaname/kaname/internal/acp"
	"github.com/kaname/kaname/internal/connection"
)

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		name    string
		want    acpclient.PermissionPolicy
		wantErr bool
	}{
		{name: "", want: acpclient.FirstOptionPolicy{}},
		{name: "first", want: acpclient.FirstOptionPolicy{}},
		{name: "allow", want: acpclient.PreferAllowPolicy{}},
		{name: "deny", want: acpclient.DenyPolicy{}},
		{name: "yolo", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePolicy(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteReport(t *testing.T) {
	id := "sess-1"
	r := report{
		Connection: connection.Snapshot{Status: connection.Connected(), SessionID: &id},
		Turns:      []turn{{Prompt: "hi", StopReason: "end_turn"}},
	}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeReport(&buf, formatJSON, r))

		var decoded struct {
			Connection struct {
				Status    string `json:"status"`
				SessionID string `json:"session_id"`
			} `json:"connection"`
			Turns []turn `json:"turns"`
		}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, "Connected", decoded.Connection.Status)
		assert.Equal(t, "sess-1", decoded.Connection.SessionID)
		assert.Equal(t, r.Turns, decoded.Turns)
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeReport(&buf, formatYAML, r))

		var decoded report
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, connection.Connected(), decoded.Connection.Status)
		require.NotNil(t, decoded.Connection.SessionID)
		assert.Equal(t, "sess-1", *decoded.Connection.SessionID)
	})

	t.Run("unknown", func(t *testing.T) {
		assert.Error(t, writeReport(&bytes.Buffer{}, "xml", r))
	})
}

func TestConnect_UnspawnableAgent(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"connect", "--config", t.TempDir(), "--agent", "/nonexistent/kaname-agent", "-p", "hello"})

	err := cmd.ExecuteContext(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to spawn agent")

	var decoded struct {
		Connection struct {
			Status struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"status"`
		} `json:"connection"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, "Error", decoded.Connection.Status.Type)
	assert.Contains(t, decoded.Connection.Status.Message, "failed to spawn agent")
}
