package transport

import (
	"bytes"
	"errors"
	"testing"

	"github.com/heliosracing/bpms-controller/telem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFrame(t *testing.T) {
	frame, err := EncodeFrame(0x11, []byte{0x00, 0x00, 0xA4, 0x00, 0x00, 0x00, 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x7E, 0x11, 0x08,
		0x00, 0x00, 0xA4, 0x00, 0x00, 0x00, 0x00, 0x00,
		0xD4, 0x9C,
	}, frame)

	frame, err = EncodeFrame(0x0B, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x7E, 0x0B, 0x00, 0xC1, 0xF5}, frame)

	_, err = EncodeFrame(0x0B, make([]byte, 256))
	assert.Error(t, err)
}

func TestFrameRoundTrip(t *testing.T) {
	payload := make([]byte, 30)
	for i := range payload {
		payload[i] = byte(0xE0 + i)
	}
	frame, err := EncodeFrame(0x0B, payload)
	require.NoError(t, err)

	id, got, err := DecodeFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, byte(0x0B), id)
	assert.Equal(t, payload, got)
}

func TestDecodeFrameRejectsDamage(t *testing.T) {
	good, err := EncodeFrame(0x0D, []byte{1, 2, 3})
	require.NoError(t, err)

	_, _, err = DecodeFrame(good[:3])
	assert.ErrorContains(t, err, "too short")

	badSync := append([]byte{}, good...)
	badSync[0] = 0x7D
	_, _, err = DecodeFrame(badSync)
	assert.ErrorContains(t, err, "bad sync")

	badLen := append([]byte{}, good...)
	badLen[2] = 7
	_, _, err = DecodeFrame(badLen)
	assert.ErrorContains(t, err, "declares")

	flipped := append([]byte{}, good...)
	flipped[4] ^= 0x10
	_, _, err = DecodeFrame(flipped)
	assert.ErrorContains(t, err, "CRC mismatch")
}

func TestRadioSendPages(t *testing.T) {
	reg, err := telem.NewRegistry()
	require.NoError(t, err)
	a := telem.NewAssembler(reg)
	require.NoError(t, a.PackVoltages([]uint16{0x8010, 0x8020}))
	a.PackCurrentAndBalance(0x42)

	var buf bytes.Buffer
	r := &Radio{w: &buf}
	require.NoError(t, r.SendPages(reg))

	// Three frames, one per telemetry packet, in declaration order.
	data := buf.Bytes()
	for _, d := range reg.TelemetryPackets() {
		frameLen := d.Len + frameOverhead
		require.GreaterOrEqual(t, len(data), frameLen)
		id, payload, err := DecodeFrame(data[:frameLen])
		require.NoError(t, err)
		assert.Equal(t, byte(d.ID), id)
		assert.Equal(t, d.Data, payload)
		data = data[frameLen:]
	}
	assert.Empty(t, data)
}

type failingWriter struct {
	err error
	n   int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	return w.n, nil
}

func TestRadioSendPagesWriteFailures(t *testing.T) {
	reg, err := telem.NewRegistry()
	require.NoError(t, err)

	r := &Radio{w: &failingWriter{err: errors.New("modem unplugged")}}
	assert.ErrorContains(t, r.SendPages(reg), "modem unplugged")

	r = &Radio{w: &failingWriter{n: 1}}
	assert.ErrorContains(t, r.SendPages(reg), "wrote 1 bytes")
}
