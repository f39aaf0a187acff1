package wired

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rosettapad/rosettapad/snapshot"
	"github.com/rosettapad/rosettapad/state"
)

func newTestTransport(cb Callbacks) *Transport {
	return &Transport{
		flags: state.NewFlags(),
		cb:    cb,
	}
}

func TestHandleEventEnableSetsUSBEnabledAndFiresCallback(t *testing.T) {
	var fired bool
	tr := newTestTransport(Callbacks{OnEnable: func() { fired = true }})

	tr.handleEvent([]byte{ffsEnable})

	require.True(t, fired)
	require.True(t, tr.flags.USBEnabled())
}

func TestHandleEventDisableClearsUSBEnabledAndFiresCallback(t *testing.T) {
	var fired bool
	tr := newTestTransport(Callbacks{OnDisable: func() { fired = true }})
	tr.flags.SetUSBEnabled(true)

	tr.handleEvent([]byte{ffsDisable})

	require.True(t, fired)
	require.False(t, tr.flags.USBEnabled())
}

func TestHandleEventDisableZeroesRumble(t *testing.T) {
	tr := newTestTransport(Callbacks{})
	tr.output = &state.OutputSlot{}
	tr.output.Set(snapshot.OutputSnapshot{RumbleLeft: 0xFF, RumbleRight: 0x80, PlayerLEDs: 0x01})
	tr.rumbleActive.set(true)

	tr.handleEvent([]byte{ffsDisable})

	require.False(t, tr.rumbleActive.get())
	out := tr.output.Get()
	require.Zero(t, out.RumbleLeft)
	require.Zero(t, out.RumbleRight)
	require.Equal(t, uint8(0x01), out.PlayerLEDs, "disable must only zero rumble, not the rest of output state")
}

func TestHandleEventUnbindClearsUSBEnabledWithoutDisableCallback(t *testing.T) {
	var disableFired, unbindFired bool
	tr := newTestTransport(Callbacks{
		OnDisable: func() { disableFired = true },
		OnUnbind:  func() { unbindFired = true },
	})
	tr.flags.SetUSBEnabled(true)

	tr.handleEvent([]byte{ffsUnbind})

	require.False(t, disableFired)
	require.True(t, unbindFired)
	require.False(t, tr.flags.USBEnabled())
}

func TestHandleEventSuspendFiresCallback(t *testing.T) {
	var fired bool
	tr := newTestTransport(Callbacks{OnSuspend: func() { fired = true }})

	tr.handleEvent([]byte{ffsSuspend})

	require.True(t, fired)
}

func TestHandleEventEmptyRecordIsNoop(t *testing.T) {
	tr := newTestTransport(Callbacks{})
	require.NotPanics(t, func() { tr.handleEvent(nil) })
}

func TestAtomic32RoundTrip(t *testing.T) {
	var a atomic32
	require.False(t, a.get())
	a.set(true)
	require.True(t, a.get())
	a.set(false)
	require.False(t, a.get())
}
