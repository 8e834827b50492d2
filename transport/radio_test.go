package transport

import (
	"bytes"
	"testing"

	"github.com/heliosracing/bpms-controller/telem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type shortWriter struct {
	n int
}

func (w *shortWriter) Write(p []byte) (int, error) {
	return w.n, nil
}

func TestRadioSendPagesFramesEveryTelemetryPacket(t *testing.T) {
	reg, err := telem.NewRegistry()
	require.NoError(t, err)
	a := telem.NewAssembler(reg)
	require.NoError(t, a.PackVoltages([]uint16{33000, 33100, 32900, 32800}))
	a.PackCurrentAndBalance(0xA4)

	buf := &bytes.Buffer{}
	r := &Radio{w: buf}
	require.NoError(t, r.SendPages(reg))

	// The stream is the telemetry packets in registry order, each one
	// framed for the radio link.
	stream := buf.Bytes()
	for _, d := range reg.TelemetryPackets() {
		frameLen := d.Len + frameOverhead
		require.GreaterOrEqual(t, len(stream), frameLen, d.Name)
		id, payload, err := DecodeFrame(stream[:frameLen])
		require.NoError(t, err, d.Name)
		assert.Equal(t, byte(d.ID), id, d.Name)
		assert.Equal(t, d.Data, payload, d.Name)
		stream = stream[frameLen:]
	}
	assert.Empty(t, stream)
}

func TestRadioSendPagesShortWrite(t *testing.T) {
	reg, err := telem.NewRegistry()
	require.NoError(t, err)

	r := &Radio{w: &shortWriter{n: 3}}
	assert.ErrorContains(t, r.SendPages(reg), "wrote 3 bytes")
}

func TestRadioCloseWithoutPort(t *testing.T) {
	r := &Radio{}
	assert.NoError(t, r.Close())
}
