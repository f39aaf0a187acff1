package wireless

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/rosettapad/rosettapad/ds3"
	"github.com/rosettapad/rosettapad/state"
)

func newTestTransport(cb Callbacks) *Transport {
	var mac [6]byte
	return &Transport{
		controlFD:   -1,
		interruptFD: -1,
		emu:         ds3.New(mac),
		cb:          cb,
	}
}

func TestClassifyConnectErr(t *testing.T) {
	cases := []struct {
		err  error
		want ConnectOutcome
	}{
		{unix.ECONNREFUSED, ConnectRefused},
		{unix.EHOSTDOWN, ConnectHostDown},
		{unix.EHOSTUNREACH, ConnectHostDown},
		{unix.ETIMEDOUT, ConnectTimedOut},
		{errors.New("weird"), ConnectHostDown},
	}
	for _, c := range cases {
		require.Equal(t, c.want, classifyConnectErr(c.err))
	}
}

func TestHandleControlFrameSetProtocolSendsHandshake(t *testing.T) {
	tr := newTestTransport(Callbacks{})
	// writeControl needs a real fd; redirect by overriding controlFD to a
	// pipe so the handshake write doesn't panic on an invalid descriptor.
	r, w, err := osPipe(t)
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()
	tr.controlFD = int(w.Fd())

	tr.handleControlFrame([]byte{txSetProtocol})

	buf := make([]byte, 1)
	n, err := r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, txHandshake|handshakeOK, buf[0])
}

func TestHandleControlFrameSetReportInvokesEmulatorAndCallback(t *testing.T) {
	var gotID uint8
	var gotPayload []byte
	tr := newTestTransport(Callbacks{
		OnSetReport: func(id uint8, payload []byte) {
			gotID = id
			gotPayload = append([]byte(nil), payload...)
		},
	})
	r, w, err := osPipe(t)
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()
	tr.controlFD = int(w.Fd())

	payload := make([]byte, 48)
	payload[0] = 0xAB
	frame := append([]byte{txSetReport, ds3.FeaturePairing}, payload...)

	tr.handleControlFrame(frame)

	require.Equal(t, uint8(ds3.FeaturePairing), gotID)
	require.Equal(t, payload, gotPayload)
}

func TestHandleControlFrameEmptyIsNoop(t *testing.T) {
	tr := newTestTransport(Callbacks{})
	require.NotPanics(t, func() { tr.handleControlFrame(nil) })
}

func TestAnswerSetReportFeatureEnableGatesCadence(t *testing.T) {
	tr := newTestTransport(Callbacks{})
	r, w, err := osPipe(t)
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()
	tr.controlFD = int(w.Fd())

	require.False(t, tr.enabled.get())
	tr.answerSetReport(ds3.FeaturePairing, make([]byte, 48))
	require.False(t, tr.enabled.get(), "an unrelated report must not gate the cadence")

	tr.answerSetReport(ds3.FeatureEnable, make([]byte, 48))
	require.True(t, tr.enabled.get())
}

func TestSendEnableMeWritesEnableFrameAndAcksOnHandshakeOK(t *testing.T) {
	var acked bool
	tr := newTestTransport(Callbacks{OnEnableAck: func() { acked = true }})
	transportFD, peerFD := socketPair(t)
	tr.controlFD = transportFD

	done := make(chan struct{})
	go func() {
		defer close(done)
		tr.sendEnableMe()
	}()

	buf := make([]byte, 6)
	n, err := unix.Read(peerFD, buf)
	require.NoError(t, err)
	require.Equal(t, []byte{txSetReport | reportTypeFeature, ds3.FeatureEnable, 0x42, 0x03, 0x00, 0x00}, buf[:n])

	_, err = unix.Write(peerFD, []byte{txHandshake | handshakeOK})
	require.NoError(t, err)

	<-done
	require.True(t, acked)
}

func TestSendEnableMeNoAckLeavesCadenceToWatchdog(t *testing.T) {
	var acked bool
	tr := newTestTransport(Callbacks{OnEnableAck: func() { acked = true }})
	transportFD, _ := socketPair(t)
	tr.controlFD = transportFD

	start := time.Now()
	tr.sendEnableMe()
	require.GreaterOrEqual(t, time.Since(start), enableAckWait)
	require.False(t, acked)
}

func TestSendInputReportNoSnapshotIsNoop(t *testing.T) {
	tr := newTestTransport(Callbacks{})
	tr.input = &state.InputSlot{}
	r, w, err := osPipe(t)
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()
	tr.interruptFD = int(w.Fd())

	require.NoError(t, tr.sendInputReport())
}
