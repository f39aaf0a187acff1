// Package wireless implements the wireless transport: two Bluetooth L2CAP
// sequenced-packet sockets (control PSM 0x11, interrupt PSM 0x13) carrying
// HID-over-wire framed DS3 reports, described in spec.md §4.3/§6. It reports
// connection lifecycle through Callbacks and otherwise behaves like the
// wired transport: an emulator-backed setup handshake, an input pump, and
// an output pump, but driven over sockets instead of FunctionFS endpoints.
package wireless

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/rosettapad/rosettapad/ds3"
	"github.com/rosettapad/rosettapad/internal/log"
	"github.com/rosettapad/rosettapad/state"
)

const (
	psmControl   = 0x0011
	psmInterrupt = 0x0013

	// HID-over-wire transaction type nibbles (spec.md §6), shifted into the
	// high nibble of the framing byte; report-type occupies the low nibble.
	txHandshake   byte = 0x00
	txGetReport   byte = 0x40
	txSetReport   byte = 0x50
	txSetProtocol byte = 0x70
	txData        byte = 0xA0

	reportTypeInput   byte = 0x01
	reportTypeOutput  byte = 0x02
	reportTypeFeature byte = 0x03

	handshakeOK            byte = 0x00
	handshakeInvalidReport byte = 0x02
	handshakeUnsupported   byte = 0x03

	connectTimeout = 10 * time.Second
	pollTimeoutMs  = 100

	// Send cadence (spec.md §4.3): pre-enable is a slow keepalive, enabled
	// mode targets ~25 payloads/sec gated by the kernel's outstanding-bytes
	// count rather than a blind ~250 Hz tick (that cadence is the wired
	// transport's, not the radio's).
	initSendPeriod     = 100 * time.Millisecond
	enabledSendPeriod  = 45 * time.Millisecond // fixed fallback when outstanding-bytes isn't queryable
	outstandingRecheck = 5 * time.Millisecond
	forceEnableAfter   = 60 * time.Second
	sendBackoff        = 10 * time.Millisecond
	enableAckWait      = 300 * time.Millisecond

	// L2CAP socket tuning (spec.md §4.3): minimum buffers plus a one-slot
	// flush timeout so the radio drops late packets instead of queuing
	// them, matching BlueZ's bluetooth/l2cap.h ABI.
	solL2CAP       = 6    // SOL_L2CAP
	l2capOptionsID = 0x01 // L2CAP_OPTIONS
	l2capLMID      = 0x03 // L2CAP_LM
	l2capLMMaster  = 0x0001

	minSockBuf     = 256 // bytes; refuse to let the kernel queue more than a report or two
	outputMTU      = 50
	inputMTU       = 64
	oneSlotFlushMs = 1 // one Bluetooth baseband slot is ~0.625 ms, rounded up
)

// l2capOptions mirrors the kernel's struct l2cap_options (bluetooth/l2cap.h):
// omtu/imtu bound the report size, flush_to is the link-flush timeout in ms.
type l2capOptions struct {
	OMTU      uint16
	IMTU      uint16
	FlushTo   uint16
	Mode      uint8
	FCS       uint8
	MaxTx     uint8
	TxWinSize uint16
}

// ConnectOutcome classifies a connection attempt the way spec.md §7 asks
// ("actionable diagnostics: power-on, pairing-lost, out-of-range").
type ConnectOutcome int

const (
	ConnectOK ConnectOutcome = iota
	ConnectTimedOut
	ConnectRefused
	ConnectHostDown
)

// Callbacks are the transport's outward signals; all may be nil.
type Callbacks struct {
	OnControlConnected   func()
	OnInterruptConnected func()
	// OnReady fires once both sockets are open and the bridge has sent its
	// SET_REPORT 0xF4 "enable-me" (spec.md §4.3): the session's READY
	// substate, which starts the 500 ms READY->ENABLED watchdog.
	OnReady func()
	// OnEnableAck fires if the console answers the enable-me send with
	// HANDSHAKE_ok, advancing straight to ENABLED instead of waiting on
	// the watchdog.
	OnEnableAck    func()
	OnDisconnected func()
	OnSetReport    func(id uint8, payload []byte)
}

// Transport drives one wireless DS3 session over two L2CAP sockets.
type Transport struct {
	localAdapter int // HCI device index, e.g. 0 for hci0
	peerAddr     [6]byte

	controlFD   int
	interruptFD int

	emu    *ds3.Emulator
	input  *state.InputSlot
	output *state.OutputSlot
	flags  *state.Flags
	cb     Callbacks
	logger *slog.Logger
	raw    log.RawLogger

	sendMu  sync.Mutex
	enabled boolFlag
}

type boolFlag struct {
	mu sync.Mutex
	v  bool
}

func (b *boolFlag) set(v bool) { b.mu.Lock(); b.v = v; b.mu.Unlock() }
func (b *boolFlag) get() bool  { b.mu.Lock(); defer b.mu.Unlock(); return b.v }

// New builds a wireless transport targeting peerAddr over the given local
// HCI adapter index. Sockets are opened by Connect, not here.
func New(localAdapter int, peerAddr [6]byte, emu *ds3.Emulator, input *state.InputSlot, output *state.OutputSlot, flags *state.Flags, cb Callbacks, logger *slog.Logger, raw log.RawLogger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	if raw == nil {
		raw = log.NewRaw(nil)
	}
	return &Transport{
		localAdapter: localAdapter,
		peerAddr:     peerAddr,
		controlFD:    -1,
		interruptFD:  -1,
		emu:          emu,
		input:        input,
		output:       output,
		flags:        flags,
		cb:           cb,
		logger:       logger,
		raw:          raw,
	}
}

// Connect opens the control socket, then the interrupt socket, each with a
// 10 s timeout (spec.md §5). Classifies failures per spec.md §7.
func (t *Transport) Connect(ctx context.Context) ConnectOutcome {
	ctrl, outcome := t.connectPSM(ctx, psmControl)
	if outcome != ConnectOK {
		return outcome
	}
	t.controlFD = ctrl
	if t.cb.OnControlConnected != nil {
		t.cb.OnControlConnected()
	}

	intr, outcome := t.connectPSM(ctx, psmInterrupt)
	if outcome != ConnectOK {
		_ = unix.Close(ctrl)
		t.controlFD = -1
		return outcome
	}
	t.interruptFD = intr
	if t.cb.OnInterruptConnected != nil {
		t.cb.OnInterruptConnected()
	}

	if t.cb.OnReady != nil {
		t.cb.OnReady()
	}
	t.sendEnableMe()
	return ConnectOK
}

func (t *Transport) connectPSM(ctx context.Context, psm uint16) (int, ConnectOutcome) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_SEQPACKET, unix.BTPROTO_L2CAP)
	if err != nil {
		t.logger.Error("wireless: socket create failed", "error", err)
		return -1, ConnectHostDown
	}
	if err := tuneL2CAPSocket(fd); err != nil {
		t.logger.Warn("wireless: l2cap socket tuning failed, continuing with kernel defaults", "error", err)
	}

	sa := &unix.SockaddrL2{PSM: psm, Addr: t.peerAddr}

	done := make(chan error, 1)
	go func() { done <- unix.Connect(fd, sa) }()

	select {
	case err := <-done:
		if err != nil {
			_ = unix.Close(fd)
			return -1, classifyConnectErr(err)
		}
		// Steady-state IO is poll-driven and non-blocking (spec.md §4.3
		// "send non-blocking"); the blocking mode above is only needed for
		// the one-shot Connect call.
		if err := unix.SetNonblock(fd, true); err != nil {
			t.logger.Warn("wireless: set non-blocking failed", "error", err)
		}
		return fd, ConnectOK
	case <-time.After(connectTimeout):
		_ = unix.Close(fd)
		return -1, ConnectTimedOut
	case <-ctx.Done():
		_ = unix.Close(fd)
		return -1, ConnectTimedOut
	}
}

// tuneL2CAPSocket applies spec.md §4.3's minimum-buffer, minimum-flush-
// timeout posture: best effort only, since not every kernel/controller
// combination honors every option.
func tuneL2CAPSocket(fd int) error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	record(unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, minSockBuf))
	record(unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, minSockBuf))
	record(unix.SetsockoptInt(fd, solL2CAP, l2capLMID, l2capLMMaster))
	record(setL2CAPOptions(fd, l2capOptions{
		OMTU:    outputMTU,
		IMTU:    inputMTU,
		FlushTo: oneSlotFlushMs,
	}))
	return firstErr
}

func setL2CAPOptions(fd int, opts l2capOptions) error {
	_, _, errno := unix.Syscall6(unix.SYS_SETSOCKOPT, uintptr(fd), uintptr(solL2CAP), uintptr(l2capOptionsID), uintptr(unsafe.Pointer(&opts)), unsafe.Sizeof(opts), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func classifyConnectErr(err error) ConnectOutcome {
	switch {
	case errors.Is(err, unix.ECONNREFUSED):
		return ConnectRefused
	case errors.Is(err, unix.EHOSTDOWN), errors.Is(err, unix.EHOSTUNREACH):
		return ConnectHostDown
	case errors.Is(err, unix.ETIMEDOUT):
		return ConnectTimedOut
	default:
		return ConnectHostDown
	}
}

// Close tears down both sockets.
func (t *Transport) Close() {
	if t.controlFD >= 0 {
		_ = unix.Close(t.controlFD)
		t.controlFD = -1
	}
	if t.interruptFD >= 0 {
		_ = unix.Close(t.interruptFD)
		t.interruptFD = -1
	}
	if t.cb.OnDisconnected != nil {
		t.cb.OnDisconnected()
	}
}

// Run drives the control-channel reactor and the interrupt-channel send/
// receive pumps until ctx is cancelled, flags.Running() goes false, or a
// fatal transport error occurs.
func (t *Transport) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)

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

	go func() { defer wg.Done(); record(t.controlLoop(ctx)) }()
	go func() { defer wg.Done(); record(t.interruptLoop(ctx)) }()
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

// controlLoop answers GET_REPORT/SET_REPORT/SET_PROTOCOL on the control
// channel against the DS3 emulator, exactly mirroring the wired setup
// handler's semantics but framed with HID-over-wire transaction bytes.
func (t *Transport) controlLoop(ctx context.Context) error {
	if t.controlFD < 0 {
		return nil
	}
	buf := make([]byte, 4096)
	for t.running(ctx) {
		ready, err := pollReadable(t.controlFD, pollTimeoutMs)
		if err != nil {
			return fmt.Errorf("wireless: poll control: %w", err)
		}
		if !ready {
			continue
		}
		n, err := unix.Read(t.controlFD, buf)
		if err != nil {
			if isWouldBlock(err) {
				continue
			}
			return fmt.Errorf("wireless: read control: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("wireless: control channel closed")
		}
		t.raw.Log(true, buf[:n])
		t.handleControlFrame(buf[:n])
	}
	return nil
}

func (t *Transport) handleControlFrame(frame []byte) {
	if len(frame) == 0 {
		return
	}
	txType := frame[0] & 0xF0
	reportType := frame[0] & 0x0F

	switch txType {
	case txGetReport:
		if len(frame) < 2 {
			return
		}
		t.answerGetReport(reportType, frame[1])
	case txSetReport:
		if len(frame) < 2 {
			return
		}
		t.answerSetReport(frame[1], frame[2:])
	case txSetProtocol:
		t.sendHandshake(handshakeOK)
	}
}

func (t *Transport) answerGetReport(reportType, reportID byte) {
	var resp []byte
	switch reportType {
	case reportTypeFeature:
		data, ok := t.emu.GetFeature(reportID)
		if !ok {
			t.sendHandshake(handshakeInvalidReport)
			return
		}
		resp = append([]byte{txData | reportTypeFeature}, data...)
	case reportTypeInput:
		data := t.emu.LastInput()
		if data == nil {
			t.sendHandshake(handshakeUnsupported)
			return
		}
		resp = append([]byte{txData | reportTypeInput}, data...)
	default:
		t.sendHandshake(handshakeUnsupported)
		return
	}
	t.writeControl(resp)
}

func (t *Transport) answerSetReport(reportID byte, payload []byte) {
	_ = t.emu.HandleSetReport(reportID, payload)
	if reportID == ds3.FeatureEnable {
		// The console's own SET_REPORT 0xF4 is the authoritative cadence
		// gate (spec.md §4.1 "gates the input-report cadence from
		// slow-init to full-rate"); our outbound enable-me probe and its
		// ack are the READY->ENABLED session signal, a separate concern.
		t.enabled.set(true)
	}
	if t.cb.OnSetReport != nil {
		t.cb.OnSetReport(reportID, payload)
	}
	t.sendHandshake(handshakeOK)
}

func (t *Transport) sendHandshake(code byte) {
	t.writeControl([]byte{txHandshake | code})
}

// sendEnableMe sends the SET_REPORT 0xF4 "enable-me" command real DS3
// hardware also emits once both sockets are open (spec.md §4.3). If the
// console answers HANDSHAKE_ok we advance straight to ENABLED; otherwise
// the READY->ENABLED watchdog covers consoles that never answer.
func (t *Transport) sendEnableMe() {
	frame := []byte{txSetReport | reportTypeFeature, ds3.FeatureEnable, 0x42, 0x03, 0x00, 0x00}
	t.writeControl(frame)

	if t.awaitHandshakeOK(enableAckWait) {
		if t.cb.OnEnableAck != nil {
			t.cb.OnEnableAck()
		}
		return
	}
	t.logger.Debug("wireless: enable-me unanswered, deferring to READY watchdog")
}

// awaitHandshakeOK polls the control channel for a HANDSHAKE frame for up
// to timeout, returning whether it was HANDSHAKE_ok.
func (t *Transport) awaitHandshakeOK(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 4)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		ms := int(remaining / time.Millisecond)
		if ms <= 0 {
			ms = 1
		}
		ready, err := pollReadable(t.controlFD, ms)
		if err != nil || !ready {
			if err != nil {
				return false
			}
			continue
		}
		n, err := unix.Read(t.controlFD, buf)
		if err != nil {
			if isWouldBlock(err) {
				continue
			}
			return false
		}
		if n == 0 {
			return false
		}
		t.raw.Log(true, buf[:n])
		if buf[0]&0xF0 == txHandshake {
			return buf[0]&0x0F == handshakeOK
		}
	}
}

func (t *Transport) writeControl(b []byte) {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	_, _ = unix.Write(t.controlFD, b)
	t.raw.Log(false, b)
}

// interruptLoop sends DS3 input reports on the interrupt channel and
// concurrently drains output reports the console writes there. Two send
// cadences apply (spec.md §4.3): a sparse ~100 ms pre-enable keepalive
// until SET_REPORT 0xF4 arrives (or ~60 s elapses, forcing enable), and an
// outstanding-bytes-gated ~25/sec cadence once enabled.
func (t *Transport) interruptLoop(ctx context.Context) error {
	if t.interruptFD < 0 {
		return nil
	}
	readBuf := make([]byte, 64)
	start := time.Now()

	for t.running(ctx) {
		if !t.enabled.get() && time.Since(start) >= forceEnableAfter {
			t.logger.Warn("wireless: console never answered enable-me within 60s, forcing enable")
			t.enabled.set(true)
		}

		var wait time.Duration
		var err error
		if t.enabled.get() {
			wait, err = t.sendEnabledCycle()
		} else {
			err = t.sendInputReport()
			wait = initSendPeriod
		}
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}

		ready, err := pollReadable(t.interruptFD, 0)
		if err != nil {
			return fmt.Errorf("wireless: poll interrupt: %w", err)
		}
		if !ready {
			continue
		}
		n, err := unix.Read(t.interruptFD, readBuf)
		if err != nil {
			if !isWouldBlock(err) {
				return fmt.Errorf("wireless: read interrupt: %w", err)
			}
			continue
		}
		if n <= 1 {
			continue
		}
		t.raw.Log(true, readBuf[:n])
		if readBuf[0]&0x0F == reportTypeOutput {
			if out, perr := t.emu.ParseOutput(readBuf[1:n]); perr == nil {
				t.output.Set(out)
			}
		}
	}
	return nil
}

// sendEnabledCycle implements spec.md §4.3's enabled-mode flow control:
// refuse to send while a prior report is still outstanding in the kernel
// socket buffer, and fall back to a fixed cadence if the kernel can't
// report outstanding bytes at all.
func (t *Transport) sendEnabledCycle() (time.Duration, error) {
	pending, err := unix.IoctlGetInt(t.interruptFD, unix.SIOCOUTQ)
	if err != nil {
		return enabledSendPeriod, t.sendInputReport()
	}
	if pending > 0 {
		return outstandingRecheck, nil
	}
	return outstandingRecheck, t.sendInputReport()
}

func (t *Transport) sendInputReport() error {
	snap, seen := t.input.Get()
	if !seen {
		return nil
	}
	report := t.emu.BuildInput(snap, ds3.TransportWireless, false)
	frame := append([]byte{txData | reportTypeInput}, report...)

	t.sendMu.Lock()
	_, err := unix.Write(t.interruptFD, frame)
	t.sendMu.Unlock()
	t.raw.Log(false, frame)
	if err == nil {
		return nil
	}
	if isWouldBlock(err) {
		t.logger.Debug("wireless: interrupt send would block, backing off")
		time.Sleep(sendBackoff)
		return nil
	}
	return fmt.Errorf("wireless: interrupt send failed: %w", err)
}

// SetEnabled directly overrides the input-report cadence gate; normally
// this flips automatically on the console's inbound SET_REPORT 0xF4 (see
// answerSetReport), callers use this for out-of-band cases like the wake
// loop's HOME pulse.
func (t *Transport) SetEnabled(v bool) {
	t.enabled.set(v)
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
