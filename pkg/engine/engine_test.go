package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/shadowd/pkg/config"
	"github.com/cuemby/shadowd/pkg/types"
)

type noopTransport struct{ connected bool }

func (t *noopTransport) Connected() bool                               { return t.connected }
func (t *noopTransport) Publish(string, []byte) error                  { return nil }
func (t *noopTransport) Subscribe(string, func([]byte)) error          { return nil }
func (t *noopTransport) Unsubscribe(string) error                      { return nil }
func (t *noopTransport) OnConnectionChange(handler func(bool))         {}

func TestNewEngineWiresSubsystems(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()

	e, err := New(cfg, &noopTransport{})
	require.NoError(t, err)
	defer e.Stop()

	require.NoError(t, e.Start())
	assert.NotNil(t, e.Shadow)
	assert.NotNil(t, e.Control)
	assert.NotNil(t, e.GRPC)
}

func TestSyncSetResolvesConfiguredDirection(t *testing.T) {
	cfg := config.Default()
	cfg.SyncSet = []config.SyncShadow{{Thing: "bulb-1", Direction: "device_to_cloud", Owner: "local"}}
	snapshot := config.NewSnapshot(cfg)
	set := newSyncSet(snapshot)

	id := types.ShadowIdentity{Thing: "bulb-1"}
	assert.True(t, set.InSyncSet(id))
	direction, owner := set.Direction(id)
	assert.Equal(t, types.SyncDirectionDeviceToCloud, direction)
	assert.Equal(t, types.DataOwnerLocal, owner)

	other := types.ShadowIdentity{Thing: "bulb-2"}
	assert.False(t, set.InSyncSet(other))
	direction, owner = set.Direction(other)
	assert.Equal(t, types.SyncDirectionBetween, direction)
	assert.Equal(t, types.DataOwnerCloud, owner)
}
