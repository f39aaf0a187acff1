// Package state holds the process-wide shared slots and flags described in
// spec.md §4.6/§5: the input/output snapshot slots, the boolean flags every
// worker consults, and the output throttler that reconciles the output slot
// with the active driver. Each slot owns its own mutex; there is no
// coarse-grained global lock (spec.md §9 "avoid coarse one-mutex-for-
// everything patterns").
package state

import (
	"sync"

	"github.com/rosettapad/rosettapad/snapshot"
)

// InputSlot holds the most recent InputSnapshot, written by the active
// driver and read by console emulators. Readers get a copy; nothing here
// ever hands out a reference into the slot's storage.
type InputSlot struct {
	mu   sync.Mutex
	val  snapshot.InputSnapshot
	seen bool
}

func (s *InputSlot) Set(v snapshot.InputSnapshot) {
	s.mu.Lock()
	s.val = v
	s.seen = true
	s.mu.Unlock()
}

func (s *InputSlot) Get() (snapshot.InputSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.val, s.seen
}

// OutputSlot holds the most recent OutputSnapshot, written by whichever
// emulator (or the lightbar IPC poller) last received/overrode output
// state, and read by the output throttler.
type OutputSlot struct {
	mu  sync.Mutex
	val snapshot.OutputSnapshot
}

func (s *OutputSlot) Set(v snapshot.OutputSnapshot) {
	s.mu.Lock()
	s.val = v
	s.mu.Unlock()
}

func (s *OutputSlot) Get() snapshot.OutputSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.val
}

// Flags is the small collection of process-wide booleans named in
// spec.md §4.6, each read far more often than written.
type Flags struct {
	mu                   sync.Mutex
	running              bool
	usbEnabled           bool
	pairingComplete      bool
	modeSwitching        bool
	touchpadAsRightStick bool
}

// NewFlags returns a Flags with Running true and every other flag false.
func NewFlags() *Flags {
	return &Flags{running: true}
}

func (f *Flags) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Stop clears Running; every worker loop observes this at its next wake
// (spec.md §5 "Cancellation").
func (f *Flags) Stop() {
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
}

func (f *Flags) USBEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usbEnabled
}

func (f *Flags) SetUSBEnabled(v bool) {
	f.mu.Lock()
	f.usbEnabled = v
	f.mu.Unlock()
}

func (f *Flags) PairingComplete() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pairingComplete
}

func (f *Flags) SetPairingComplete(v bool) {
	f.mu.Lock()
	f.pairingComplete = v
	f.mu.Unlock()
}

// ModeSwitching suppresses shutdown on an orderly transport unbind that is
// part of a deliberate wired<->wireless handoff rather than a real
// disconnect.
func (f *Flags) ModeSwitching() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.modeSwitching
}

func (f *Flags) SetModeSwitching(v bool) {
	f.mu.Lock()
	f.modeSwitching = v
	f.mu.Unlock()
}

func (f *Flags) TouchpadAsRightStick() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.touchpadAsRightStick
}

func (f *Flags) SetTouchpadAsRightStick(v bool) {
	f.mu.Lock()
	f.touchpadAsRightStick = v
	f.mu.Unlock()
}
