package ds3

import (
	"testing"

	"github.com/rosettapad/rosettapad/snapshot"
	"github.com/stretchr/testify/require"
)

func TestBuildInputFixedBytes(t *testing.T) {
	s := snapshot.Neutral()
	report := BuildInput(s, TransportWired, false)

	require.Len(t, report, InputReportSize)
	require.Equal(t, uint8(0x01), report[0])
	require.Equal(t, uint8(0x02), report[InputReportSize-1])
	require.Equal(t, Signature[:], report[OffSignature:OffSignature+4])
}

func TestBuildInputNeutral(t *testing.T) {
	s := snapshot.Neutral()
	report := BuildInput(s, TransportWired, false)

	require.Equal(t, uint8(0), report[OffButtons1])
	require.Equal(t, uint8(0), report[OffButtons2])
	require.Equal(t, uint8(0), report[OffHome])
	require.Equal(t, uint8(0x80), report[OffStickLX])
	require.Equal(t, uint8(0x80), report[OffStickLY])
	require.Equal(t, uint8(0x80), report[OffStickRX])
	require.Equal(t, uint8(0x80), report[OffStickRY])
}

func TestBuildInputDeterministic(t *testing.T) {
	s := snapshot.Neutral()
	s.Buttons |= snapshot.South | snapshot.Home
	s.L2 = 200

	a := BuildInput(s, TransportWired, false)
	b := BuildInput(s, TransportWired, false)
	require.Equal(t, a, b)
}

func TestScenarioS1NeutralFrame(t *testing.T) {
	s := snapshot.Neutral()
	s.BatteryPercent = 100
	s.Full = true

	report := BuildInput(s, TransportWired, false)
	require.Equal(t, uint8(0x02), report[OffPlugged])
	require.Equal(t, uint8(0xEF), report[OffBattery])
	require.Equal(t, uint8(0x12), report[OffConnection])
}

func TestScenarioS2HomeCrossTrigger(t *testing.T) {
	s := snapshot.Neutral()
	s.Buttons |= snapshot.South | snapshot.Home
	s.L2 = 200

	report := BuildInput(s, TransportWired, false)
	require.Equal(t, uint8(0x00), report[OffButtons1])
	require.Equal(t, uint8(0x40), report[OffButtons2])
	require.Equal(t, uint8(0x01), report[OffHome])
	require.Equal(t, uint8(200), report[OffTriggerL2])
	require.Equal(t, uint8(0xFF), report[OffCross])
}

func TestScenarioS3FullDPadDownRight(t *testing.T) {
	s := snapshot.Neutral()
	s.Buttons |= snapshot.DPadDown | snapshot.DPadRight

	report := BuildInput(s, TransportWired, false)
	require.Equal(t, uint8(0x60), report[OffButtons1])
	require.Equal(t, uint8(0xFF), report[OffDPadRight])
	require.Equal(t, uint8(0xFF), report[OffDPadDown])
}

func TestScenarioS4WirelessFraming(t *testing.T) {
	s := snapshot.Neutral()
	s.Buttons |= snapshot.South | snapshot.Home
	s.L2 = 200
	s.AccelX = 4096

	wired := BuildInput(s, TransportWired, false)
	wireless := BuildInput(s, TransportWireless, false)

	require.Equal(t, uint8(0x16), wireless[OffConnection])
	for i := 0; i < 4; i++ {
		off := OffMotion + i*2
		require.Equal(t, wired[off], wireless[off+1], "byte %d should be swapped", off)
		require.Equal(t, wired[off+1], wireless[off], "byte %d should be swapped", off+1)
	}
}

func TestParseOutputDoesNotPanic(t *testing.T) {
	inputs := [][]byte{
		nil,
		{},
		{0x01, 0x02, 0x03},
		make([]byte, 6),
		make([]byte, 11),
	}
	for _, b := range inputs {
		_, _ = ParseOutput(b)
	}
}

func TestParseOutputRumble(t *testing.T) {
	b := make([]byte, 11)
	b[3] = 1
	b[5] = 0x7F
	b[10] = 0x03

	out, err := ParseOutput(b)
	require.NoError(t, err)
	require.Equal(t, uint8(0x7F), out.RumbleLeft)
	require.Equal(t, uint8(0xFF), out.RumbleRight)
	require.Equal(t, uint8(0x03), out.PlayerLEDs)
}

func TestPairingRoundTrip(t *testing.T) {
	e := New([6]byte{1, 2, 3, 4, 5, 6})
	var captured [6]byte
	e.OnPairing = func(mac [6]byte) { captured = mac }

	payload := []byte{0x01, 0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66}
	require.NoError(t, e.HandleSetReport(FeaturePairing, payload))

	row, ok := e.GetFeature(FeaturePairing)
	require.True(t, ok)
	require.Equal(t, payload[2:8], row[2:8])
	require.Equal(t, [6]byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}, captured)
}

func TestConfigEchoRoundTrip(t *testing.T) {
	e := New([6]byte{})
	payload := make([]byte, 40)
	for i := range payload {
		payload[i] = byte(i + 1)
	}
	require.NoError(t, e.HandleSetReport(FeatureConfigEcho, payload))

	row, ok := e.GetFeature(FeatureConfigEcho)
	require.True(t, ok)
	require.Equal(t, uint8(FeatureConfigEcho), row[0])
	n := len(payload)
	if n > len(row)-1 {
		n = len(row) - 1
	}
	require.Equal(t, payload[:n], row[1:1+n])
}

func TestUnknownGetFeatureIsAbsent(t *testing.T) {
	e := New([6]byte{})
	_, ok := e.GetFeature(0x99)
	require.False(t, ok)
}

func TestUnknownSetReportIsAcknowledged(t *testing.T) {
	e := New([6]byte{})
	require.NoError(t, e.HandleSetReport(0x99, []byte{1, 2, 3}))
}
