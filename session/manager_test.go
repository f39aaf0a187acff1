package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWiredSuspendAndEnable(t *testing.T) {
	m := New(nil, Hooks{}, nil)
	assert.Equal(t, Active, m.Power())

	m.WiredSuspend()
	assert.Equal(t, Standby, m.Power())

	m.WiredEnable()
	assert.Equal(t, Active, m.Power())
	assert.Equal(t, Disconnected, m.Transport())
}

func TestHomePressedOutsideStandbyIsNoop(t *testing.T) {
	m := New(nil, Hooks{}, nil)
	m.HomePressed(context.Background())
	assert.Equal(t, Active, m.Power())
}

func TestWakeSucceedsAndPulsesHome(t *testing.T) {
	var pulses int32
	hooks := Hooks{
		ConnectWireless: func(ctx context.Context) ConnectResult { return ConnectOK },
		SendHomePulse:   func() { atomic.AddInt32(&pulses, 1) },
	}
	m := New(nil, hooks, nil)
	m.WiredSuspend()
	require.Equal(t, Standby, m.Power())

	m.HomePressed(context.Background())
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&pulses) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, Connecting, m.Transport())
}

func TestWakeExhaustsAndReturnsToStandby(t *testing.T) {
	var attempts int32
	hooks := Hooks{
		ConnectWireless: func(ctx context.Context) ConnectResult {
			atomic.AddInt32(&attempts, 1)
			return ConnectRefused
		},
	}
	m := New(nil, hooks, nil)
	m.WiredSuspend()
	m.HomePressed(context.Background())

	require.Eventually(t, func() bool {
		return m.Power() == Standby && atomic.LoadInt32(&attempts) == wakeMaxTries
	}, 10*time.Second, 20*time.Millisecond)
}

func TestAdvanceTransportRejectsOutOfOrder(t *testing.T) {
	m := New(nil, Hooks{}, nil)
	assert.False(t, m.AdvanceTransport(Ready))
	assert.True(t, m.AdvanceTransport(Connecting))
	assert.True(t, m.AdvanceTransport(ControlConnected))
	assert.False(t, m.AdvanceTransport(Enabled))
	assert.True(t, m.AdvanceTransport(InterruptConnected))
	assert.True(t, m.AdvanceTransport(Ready))
	assert.True(t, m.AdvanceTransport(Enabled))
}

func TestReadyWatchdogAutoPromotes(t *testing.T) {
	m := New(nil, Hooks{}, nil)
	require.True(t, m.AdvanceTransport(Connecting))
	require.True(t, m.AdvanceTransport(ControlConnected))
	require.True(t, m.AdvanceTransport(InterruptConnected))
	require.True(t, m.AdvanceTransport(Ready))

	require.Eventually(t, func() bool {
		return m.Transport() == Enabled
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCanAutoConnectWireless(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir + "/pairing.txt")
	require.NoError(t, err)

	m := New(store, Hooks{}, nil)
	assert.False(t, m.CanAutoConnectWireless())

	require.NoError(t, store.SetConsoleMAC([6]byte{1, 2, 3, 4, 5, 6}, [6]byte{6, 5, 4, 3, 2, 1}))
	assert.True(t, m.CanAutoConnectWireless())
}
