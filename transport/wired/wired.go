// Package wired implements the wired transport: a Linux USB FunctionFS
// gadget endpoint set (ep0 control, ep1 IN, ep2 OUT) presenting the exact
// DualShock 3 identity described in spec.md §6, driven by the DS3 emulator
// in package ds3. It never touches session policy directly; it reports
// bus events (ENABLE/DISABLE/SUSPEND/UNBIND) and setup traffic through
// callbacks and pumps snapshots through the slots it's given.
package wired

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/rosettapad/rosettapad/ds3"
	"github.com/rosettapad/rosettapad/internal/log"
	"github.com/rosettapad/rosettapad/state"
)

// USB standard control-request codes relevant to a HID gadget's ep0.
const (
	reqGetReport = 0x01
	reqGetIdle   = 0x02
	reqGetProto  = 0x03
	reqSetReport = 0x09
	reqSetIdle   = 0x0A
	reqSetProto  = 0x0B
)

// FunctionFS event types read from ep0 (linux/usb/functionfs.h).
const (
	ffsBind byte = iota
	ffsUnbind
	ffsEnable
	ffsDisable
	ffsSetup
	ffsSuspend
	ffsResume
)

const (
	inputPumpPeriod = 4 * time.Millisecond // ~250 Hz
	pollTimeoutMs   = 100
)

// Endpoints is the already-opened FunctionFS endpoint file set. Discovery
// and descriptor writing (mounting the gadget, writing descriptors to ep0)
// is a deployment concern handled by the composition root; this package
// only drives the open files.
type Endpoints struct {
	EP0 *os.File // control, events + setup
	EP1 *os.File // interrupt IN (reports to the console)
	EP2 *os.File // interrupt OUT (reports from the console)
}

// Callbacks are the transport's outward signals; all may be nil.
type Callbacks struct {
	OnEnable    func()
	OnDisable   func()
	OnSuspend   func()
	OnUnbind    func()
	OnSetReport func(id uint8, payload []byte)
}

// Transport drives one FunctionFS gadget instance end-to-end: the ep0
// setup/event reactor, the ~250 Hz input pump, and the blocking output pump.
type Transport struct {
	ep     Endpoints
	emu    *ds3.Emulator
	input  *state.InputSlot
	output *state.OutputSlot
	flags  *state.Flags
	cb     Callbacks
	logger *slog.Logger
	raw    log.RawLogger

	sendMu sync.Mutex

	rumbleActive atomic32
}

// atomic32 avoids importing sync/atomic's Bool (Go 1.19+) only for one
// field's sake; kept as a tiny mutex-guarded bool for clarity alongside the
// rest of this package's plain mutex discipline.
type atomic32 struct {
	mu sync.Mutex
	v  bool
}

func (a *atomic32) set(v bool) { a.mu.Lock(); a.v = v; a.mu.Unlock() }
func (a *atomic32) get() bool  { a.mu.Lock(); defer a.mu.Unlock(); return a.v }

// New builds a wired transport over already-opened FunctionFS endpoints.
func New(ep Endpoints, emu *ds3.Emulator, input *state.InputSlot, output *state.OutputSlot, flags *state.Flags, cb Callbacks, logger *slog.Logger, raw log.RawLogger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	if raw == nil {
		raw = log.NewRaw(nil)
	}
	return &Transport{ep: ep, emu: emu, input: input, output: output, flags: flags, cb: cb, logger: logger, raw: raw}
}

// Run starts the setup reactor, the input pump, and the output pump, and
// blocks until ctx is cancelled or flags.Running() goes false.
func (t *Transport) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(3)

	var firstErr error
	var errMu sync.Mutex
	record := func(err error) {
		if err == nil {
			return
		}
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		errMu.Unlock()
	}

	go func() { defer wg.Done(); record(t.setupLoop(ctx)) }()
	go func() { defer wg.Done(); record(t.inputPump(ctx)) }()
	go func() { defer wg.Done(); record(t.outputPump(ctx)) }()

	wg.Wait()
	return firstErr
}

func (t *Transport) running(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if t.flags != nil && !t.flags.Running() {
		return false
	}
	return true
}

// setupLoop reads FunctionFS events (bind/unbind/enable/disable/setup/
// suspend/resume) off ep0 and answers control-transfer setup packets
// (GET_REPORT/SET_REPORT/SET_IDLE) against the DS3 emulator.
func (t *Transport) setupLoop(ctx context.Context) error {
	if t.ep.EP0 == nil {
		return nil
	}
	fd := int(t.ep.EP0.Fd())
	buf := make([]byte, 4096)

	for t.running(ctx) {
		ready, err := pollReadable(fd, pollTimeoutMs)
		if err != nil {
			return fmt.Errorf("wired: poll ep0: %w", err)
		}
		if !ready {
			continue
		}
		n, err := t.ep.EP0.Read(buf)
		if err != nil {
			if isWouldBlock(err) {
				continue
			}
			return fmt.Errorf("wired: read ep0: %w", err)
		}
		t.handleEvent(buf[:n])
	}
	return nil
}

// handleEvent dispatches one functionfs_event record (1-byte type tag
// followed by a union; only the setup packet's 8-byte header is used here).
func (t *Transport) handleEvent(rec []byte) {
	if len(rec) == 0 {
		return
	}
	switch rec[0] {
	case ffsEnable:
		if t.flags != nil {
			t.flags.SetUSBEnabled(true)
		}
		if t.cb.OnEnable != nil {
			t.cb.OnEnable()
		}
	case ffsDisable, ffsUnbind:
		if t.flags != nil {
			t.flags.SetUSBEnabled(false)
		}
		if rec[0] == ffsDisable {
			t.zeroRumble()
			if t.cb.OnDisable != nil {
				t.cb.OnDisable()
			}
		}
		if rec[0] == ffsUnbind && t.cb.OnUnbind != nil {
			t.cb.OnUnbind()
		}
	case ffsSuspend:
		if t.cb.OnSuspend != nil {
			t.cb.OnSuspend()
		}
	case ffsSetup:
		if len(rec) < 9 {
			return
		}
		t.handleSetup(rec[1:9])
	}
}

// handleSetup answers one 8-byte USB setup packet (bmRequestType,
// bRequest, wValue, wIndex, wLength).
func (t *Transport) handleSetup(setup []byte) {
	bRequest := setup[1]
	wValue := binary.LittleEndian.Uint16(setup[2:4])
	reportType := uint8(wValue >> 8)
	reportID := uint8(wValue)

	switch bRequest {
	case reqGetReport:
		t.answerGetReport(reportType, reportID)
	case reqSetReport:
		t.answerSetReport(reportID)
	case reqGetIdle, reqGetProto:
		_, _ = t.ep.EP0.Write([]byte{0x00})
	case reqSetIdle, reqSetProto:
		var zero [0]byte
		_, _ = t.ep.EP0.Write(zero[:])
	}
}

func (t *Transport) answerGetReport(reportType, reportID uint8) {
	if reportType == 0x03 { // feature
		if data, ok := t.emu.GetFeature(reportID); ok {
			_, _ = t.ep.EP0.Write(data)
			return
		}
		_, _ = t.ep.EP0.Write(nil) // stall/NAK: nothing we answer with here
		return
	}
	if reportType == 0x01 { // input
		if data := t.emu.LastInput(); data != nil {
			_, _ = t.ep.EP0.Write(data)
			return
		}
	}
	_, _ = t.ep.EP0.Write(nil)
}

func (t *Transport) answerSetReport(reportID uint8) {
	payload := make([]byte, 64)
	n, err := t.ep.EP0.Read(payload)
	if err != nil {
		return
	}
	payload = payload[:n]
	_ = t.emu.HandleSetReport(reportID, payload)
	if t.cb.OnSetReport != nil {
		t.cb.OnSetReport(reportID, payload)
	}
}

// inputPump renders the input slot into a DS3 report at ~250 Hz and writes
// it to ep1.
func (t *Transport) inputPump(ctx context.Context) error {
	if t.ep.EP1 == nil {
		return nil
	}
	ticker := time.NewTicker(inputPumpPeriod)
	defer ticker.Stop()

	for t.running(ctx) {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		snap, seen := t.input.Get()
		if !seen {
			continue
		}
		report := t.emu.BuildInput(snap, ds3.TransportWired, t.rumbleActive.get())

		t.sendMu.Lock()
		_, err := t.ep.EP1.Write(report)
		t.sendMu.Unlock()
		t.raw.Log(false, report)
		if err != nil && !isWouldBlock(err) {
			return fmt.Errorf("wired: write ep1: %w", err)
		}
	}
	return nil
}

// outputPump blocks on ep2 reads (the console only writes output reports
// when it has something to say, so a blocking read is appropriate here
// unlike the send side).
func (t *Transport) outputPump(ctx context.Context) error {
	if t.ep.EP2 == nil {
		return nil
	}
	buf := make([]byte, 64)
	fd := int(t.ep.EP2.Fd())

	for t.running(ctx) {
		ready, err := pollReadable(fd, pollTimeoutMs)
		if err != nil {
			return fmt.Errorf("wired: poll ep2: %w", err)
		}
		if !ready {
			continue
		}
		n, err := t.ep.EP2.Read(buf)
		if err != nil {
			if isWouldBlock(err) || errors.Is(err, io.EOF) {
				continue
			}
			return fmt.Errorf("wired: read ep2: %w", err)
		}
		t.raw.Log(true, buf[:n])
		out, err := t.emu.ParseOutput(buf[:n])
		if err != nil {
			continue
		}
		t.rumbleActive.set(out.RumbleLeft != 0 || out.RumbleRight != 0)
		t.output.Set(out)
	}
	return nil
}

// zeroRumble clears both motors on DISABLE (spec.md §4.2): the host's
// driver is gone, so any rumble it left running must stop immediately
// rather than wait for a fresh output report that may never arrive.
func (t *Transport) zeroRumble() {
	t.rumbleActive.set(false)
	if t.output == nil {
		return
	}
	out := t.output.Get()
	out.RumbleLeft = 0
	out.RumbleRight = 0
	t.output.Set(out)
}

func pollReadable(fd int, timeoutMs int) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, timeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return false, nil
		}
		return false, err
	}
	return n > 0 && fds[0].Revents&unix.POLLIN != 0, nil
}

func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}
