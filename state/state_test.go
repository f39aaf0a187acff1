package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosettapad/rosettapad/snapshot"
)

func TestFlagsDefaults(t *testing.T) {
	f := NewFlags()
	assert.True(t, f.Running())
	assert.False(t, f.USBEnabled())
	assert.False(t, f.PairingComplete())
	f.Stop()
	assert.False(t, f.Running())
}

func TestInputSlotRoundTrip(t *testing.T) {
	var slot InputSlot
	_, seen := slot.Get()
	assert.False(t, seen)

	s := snapshot.Neutral()
	s.Buttons = snapshot.South
	slot.Set(s)

	got, seen := slot.Get()
	require.True(t, seen)
	assert.Equal(t, snapshot.South, got.Buttons)
}

func TestThrottlerEmitsOnChange(t *testing.T) {
	var slot OutputSlot
	flags := NewFlags()

	var calls int32
	emit := func(o snapshot.OutputSnapshot) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}

	th := NewThrottler(&slot, flags, emit, func() bool { return false }, "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go th.Run(ctx)

	slot.Set(snapshot.OutputSnapshot{RumbleLeft: 200})
	time.Sleep(60 * time.Millisecond)
	cancel()

	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(1))
}

func TestReadLightbarOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lightbar.json")

	body, err := json.Marshal(lightbarFile{R: 10, G: 20, B: 30, PlayerLEDs: 0x03, PlayerLEDBrightness: 0.5})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, body, 0o644))

	override, ok := readLightbarOverride(path)
	require.True(t, ok)
	assert.EqualValues(t, 10, override.r)
	assert.EqualValues(t, 20, override.g)
	assert.EqualValues(t, 30, override.b)
	assert.EqualValues(t, 0x03, override.playerLEDs)
	assert.InDelta(t, 0.5, override.playerLEDBrightness, 0.001)
}

func TestReadLightbarOverrideMissingFile(t *testing.T) {
	_, ok := readLightbarOverride(filepath.Join(t.TempDir(), "missing.json"))
	assert.False(t, ok)
}
