package state

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/rosettapad/rosettapad/snapshot"
)

const (
	throttlerPeriod  = 10 * time.Millisecond // ~100 Hz
	forcedRefresh    = 100 * time.Millisecond
	lightbarRecheck  = 500 * time.Millisecond
)

// EmitFunc is the active driver's output path, called whenever the
// throttler decides the driver needs a fresh OutputSnapshot.
type EmitFunc func(snapshot.OutputSnapshot) error

// PowerStateFunc reports whether the session is currently in standby; the
// lightbar IPC file is not re-read in that state (spec.md §4.6).
type PowerStateFunc func() (standby bool)

// Throttler polls the output slot at ~100 Hz, forwarding changes (or a
// forced periodic refresh) to the active driver's emit path, and folds in
// lightbar overrides read from a well-known IPC file (spec.md §4.6).
type Throttler struct {
	slot         *OutputSlot
	flags        *Flags
	emit         EmitFunc
	inStandby    PowerStateFunc
	lightbarPath string
	logger       *slog.Logger

	last       snapshot.OutputSnapshot
	haveLast   bool
	lastForced time.Time
	lastIPC    time.Time
}

// NewThrottler constructs a throttler; lightbarPath may be empty to disable
// the IPC override entirely.
func NewThrottler(slot *OutputSlot, flags *Flags, emit EmitFunc, inStandby PowerStateFunc, lightbarPath string, logger *slog.Logger) *Throttler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Throttler{
		slot:         slot,
		flags:        flags,
		emit:         emit,
		inStandby:    inStandby,
		lightbarPath: lightbarPath,
		logger:       logger,
	}
}

// Run blocks, polling until ctx is cancelled or flags.Running() goes false.
func (t *Throttler) Run(ctx context.Context) {
	ticker := time.NewTicker(throttlerPeriod)
	defer ticker.Stop()

	t.lastForced = time.Now()
	t.lastIPC = time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if t.flags != nil && !t.flags.Running() {
			return
		}
		t.tick()
	}
}

func (t *Throttler) tick() {
	now := time.Now()

	if t.lightbarPath != "" && (t.inStandby == nil || !t.inStandby()) && now.Sub(t.lastIPC) >= lightbarRecheck {
		t.lastIPC = now
		if override, ok := readLightbarOverride(t.lightbarPath); ok {
			cur := t.slot.Get()
			cur.LightbarRed, cur.LightbarGreen, cur.LightbarBlue = override.r, override.g, override.b
			cur.PlayerLEDs = override.playerLEDs
			cur.PlayerLEDBrightness = override.playerLEDBrightness
			t.slot.Set(cur)
		}
	}

	out := t.slot.Get()
	changed := !t.haveLast || out != t.last
	forceDue := now.Sub(t.lastForced) >= forcedRefresh

	if !changed && !forceDue {
		return
	}

	if t.emit != nil {
		if err := t.emit(out); err != nil {
			t.logger.Warn("output throttler: emit failed", "error", err)
		}
	}
	t.last = out
	t.haveLast = true
	if forceDue {
		t.lastForced = now
	}
}

type lightbarOverride struct {
	r, g, b              uint8
	playerLEDs           uint8
	playerLEDBrightness  float32
}

// lightbarFile is the on-disk JSON shape (spec.md §6).
type lightbarFile struct {
	R                 uint8   `json:"r"`
	G                 uint8   `json:"g"`
	B                 uint8   `json:"b"`
	PlayerLEDs        uint8   `json:"player_leds"`
	PlayerLEDBrightness float32 `json:"player_led_brightness"`
}

func readLightbarOverride(path string) (lightbarOverride, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return lightbarOverride{}, false
	}
	var f lightbarFile
	if err := json.Unmarshal(data, &f); err != nil {
		return lightbarOverride{}, false
	}
	return lightbarOverride{
		r: f.R, g: f.G, b: f.B,
		playerLEDs:          f.PlayerLEDs,
		playerLEDBrightness: f.PlayerLEDBrightness,
	}, true
}
