package daemon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryo/wabridge/pkg/connection"
)

func TestNew(t *testing.T) {
	d := testDaemon(t)

	assert.NotNil(t, d.store)
	assert.NotNil(t, d.manager)
	assert.NotNil(t, d.gatewayServer)
	assert.NotNil(t, d.lifecycle)
}

func TestStatusWhenNotRunning(t *testing.T) {
	d := testDaemon(t)

	status := d.Status()
	assert.False(t, status.Running)
	assert.Zero(t, status.Uptime)
	assert.Zero(t, status.Observers)
}

func TestStopWhenNotRunning(t *testing.T) {
	d := testDaemon(t)

	err := d.Stop()
	assert.ErrorContains(t, err, "not running")
}

func TestManagerSnapshotBeforeStart(t *testing.T) {
	d := testDaemon(t)

	snap := d.managerSnapshot()
	assert.Equal(t, connection.StateInitializing, snap.State)
	assert.Equal(t, connection.StatusInitializing, snap.Status)
}

func TestGetConfig(t *testing.T) {
	d := testDaemon(t)

	cfg := d.GetConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, "qr", cfg.Bootstrap.Mode)
}
