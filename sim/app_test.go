package sim

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/estc-blue/config"
	"github.com/user/estc-blue/push"
	"github.com/user/estc-blue/trace"
	"github.com/user/estc-blue/wire"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Simulation.Seed = 1
	cfg.Simulation.ConnectionInterval = 10 * time.Millisecond
	cfg.App.HelloInterval = 5 * time.Millisecond
	cfg.App.Char1Interval = 5 * time.Millisecond
	return cfg
}

func TestAppManualFlow(t *testing.T) {
	app, err := New(testConfig(t))
	require.NoError(t, err)
	defer app.Close()

	require.NoError(t, app.Connect())
	require.NoError(t, app.Service.HelloNotify())
	require.NoError(t, app.Service.HelloNotify())
	assert.ErrorIs(t, app.Service.HelloNotify(), push.ErrOutOfCredits)

	app.Tick(1)
	assert.Equal(t, []string{"Hello", "olleH"}, app.Peer.ReceivedValues(app.Service.Hello().Value))
	assert.Equal(t, uint32(2), app.Service.Dispatcher().Credits())

	require.NoError(t, app.Disconnect())
	assert.ErrorIs(t, app.Service.HelloNotify(), push.ErrNoActiveConnection)
}

func TestAppRunWritesTrace(t *testing.T) {
	cfg := testConfig(t)
	cfg.Trace.Enabled = true
	cfg.Trace.Path = filepath.Join(t.TempDir(), "link.cbor")

	app, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, app.Connect())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, app.Run(ctx))
	require.NoError(t, app.Close())

	assert.NotEmpty(t, app.Peer.ReceivedValues(app.Service.Hello().Value))
	got, err := app.Service.Characteristic1()
	require.NoError(t, err)
	assert.NotZero(t, got)

	events, err := trace.ReadFile(cfg.Trace.Path)
	require.NoError(t, err)
	summary := trace.Summarize(events)
	assert.Equal(t, 1, summary.Connects)
	assert.Greater(t, summary.PushesOK, 0)
	assert.Greater(t, summary.TransmitCompletes, 0)
	for _, e := range events {
		assert.Equal(t, app.Session(), e.Session)
	}
}

func TestAppRunSurvivesMalformedCCCD(t *testing.T) {
	app, err := New(testConfig(t))
	require.NoError(t, err)
	defer app.Close()

	require.NoError(t, app.Connect())
	h, ok := app.Stack.Connection()
	require.True(t, ok)
	app.Stack.Subscriptions().RestoreSystemAttributes(uint16(h), map[uint16][]byte{app.Service.Hello().CCCD: {0x01}})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	require.NoError(t, app.Run(ctx))
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)

	assert.Greater(t, app.Service.Dispatcher().Stats().SubscriptionErrors, uint64(1))
	assert.Empty(t, app.Peer.ReceivedValues(app.Service.Hello().Value))
}

func TestAppTimeoutDisconnects(t *testing.T) {
	cfg := testConfig(t)
	cfg.Push.DisconnectOnTimeout = true

	app, err := New(cfg)
	require.NoError(t, err)
	defer app.Close()

	require.NoError(t, app.Connect())
	h, _ := app.Stack.Connection()
	app.Service.OnEvent(push.TimeoutEvent(h, push.TimeoutATT))

	_, ok := app.Stack.Connection()
	assert.False(t, ok)
	assert.Equal(t, wire.ReasonConnectionTimeout, app.Stack.LastDisconnectReason())
	_, ok = app.Service.Dispatcher().Connection()
	assert.False(t, ok)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Simulation.QueueSize = 0
	_, err := New(cfg)
	assert.Error(t, err)
}
