package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaname/kaname/internal/common/config"
	"github.com/kaname/kaname/internal/common/logger"
)

func TestProvide_DefaultsToMemoryBus(t *testing.T) {
	provided, cleanup, err := Provide(config.EventsConfig{}, logger.NewNop())
	require.NoError(t, err)

	assert.NotNil(t, provided.Memory)
	assert.Nil(t, provided.NATS)
	assert.True(t, provided.Bus.IsConnected())

	require.NoError(t, cleanup())
	assert.False(t, provided.Bus.IsConnected())
}

func TestProvide_UnreachableNATS(t *testing.T) {
	_, _, err := Provide(config.EventsConfig{NATSURL: "nats://127.0.0.1:1", ClientID: "test"}, logger.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NATS")
}
