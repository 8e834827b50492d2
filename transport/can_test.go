package transport

import (
	"errors"
	"testing"

	"github.com/brutella/can"
	"github.com/heliosracing/bpms-controller/telem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	frames []can.Frame
	err    error
}

func (p *recordingPublisher) Publish(frm can.Frame) error {
	if p.err != nil {
		return p.err
	}
	p.frames = append(p.frames, frm)
	return nil
}

func TestPackFrame(t *testing.T) {
	d := telem.Descriptor{
		Name: "CAN_BPS_VOLTAGE4",
		ID:   0x603,
		Len:  6,
		Data: []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06},
	}
	frm := packFrame(d)
	assert.Equal(t, uint32(0x603), frm.ID)
	assert.Equal(t, uint8(6), frm.Length)
	assert.Equal(t, [8]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x00, 0x00}, frm.Data)
}

func TestSendPagesPublishesEveryBusPacket(t *testing.T) {
	reg, err := telem.NewRegistry()
	require.NoError(t, err)
	a := telem.NewAssembler(reg)
	require.NoError(t, a.PackVoltages([]uint16{33000, 33100, 32900, 32800}))
	a.PackCurrentAndBalance(0xA4)

	pub := &recordingPublisher{}
	link := &CANLink{pub: pub}
	require.NoError(t, link.SendPages(reg))

	busPackets := reg.BusPackets()
	require.Len(t, pub.frames, len(busPackets))
	for i, d := range busPackets {
		assert.Equal(t, d.ID, pub.frames[i].ID, d.Name)
		assert.Equal(t, uint8(d.Len), pub.frames[i].Length, d.Name)
		assert.Equal(t, d.Data, pub.frames[i].Data[:d.Len], d.Name)
	}

	// The first voltage frame carries cells 0 and 1 little endian.
	assert.Equal(t, uint32(0x600), pub.frames[0].ID)
	assert.Equal(t, []byte{0xE8, 0x80, 0x4C, 0x81}, pub.frames[0].Data[:4])
}

func TestSendPagesStopsOnPublishError(t *testing.T) {
	reg, err := telem.NewRegistry()
	require.NoError(t, err)

	link := &CANLink{pub: &recordingPublisher{err: errors.New("interface down")}}
	assert.ErrorContains(t, link.SendPages(reg), "interface down")
}

func TestHandleFrameEnableBalancing(t *testing.T) {
	calls := 0
	link := &CANLink{onEnableBalancing: func() { calls++ }}

	link.handleFrame(can.Frame{ID: telem.CAN_BPS_VOLTAGE1})
	assert.Equal(t, 0, calls)

	link.handleFrame(can.Frame{ID: telem.COMMAND_ENABLE_BALANCING})
	assert.Equal(t, 1, calls)

	// A link without a callback ignores the command.
	quiet := &CANLink{}
	quiet.handleFrame(can.Frame{ID: telem.COMMAND_ENABLE_BALANCING})
}
