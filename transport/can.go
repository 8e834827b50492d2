package transport

import (
	"fmt"

	"github.com/brutella/can"
	"github.com/heliosracing/bpms-controller/logging"
	"github.com/heliosracing/bpms-controller/telem"
)

var log = logging.NewLogger("info")

type framePublisher interface {
	Publish(can.Frame) error
}

// CANLink publishes the bus packets on the vehicle CAN interface and
// listens for the balancing enable command.
type CANLink struct {
	bus               *can.Bus
	pub               framePublisher
	onEnableBalancing func()
}

// OpenCAN connects to the named SocketCAN interface. onEnableBalancing
// runs from the receive goroutine whenever the enable balancing command
// appears on the bus.
func OpenCAN(ifaceName string, onEnableBalancing func()) (*CANLink, error) {
	bus, err := can.NewBusForInterfaceWithName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open CAN interface %s: %w", ifaceName, err)
	}
	link := &CANLink{
		bus:               bus,
		pub:               bus,
		onEnableBalancing: onEnableBalancing,
	}
	bus.SubscribeFunc(link.handleFrame)
	go func() {
		if err := bus.ConnectAndPublish(); err != nil {
			log.Errorf("CAN receive loop stopped: %v", err)
		}
	}()
	return link, nil
}

func (l *CANLink) handleFrame(frm can.Frame) {
	if frm.ID == telem.COMMAND_ENABLE_BALANCING && l.onEnableBalancing != nil {
		log.Info("Balancing enable command received on CAN")
		l.onEnableBalancing()
	}
}

// SendPages publishes one frame per bus packet descriptor.
func (l *CANLink) SendPages(reg *telem.Registry) error {
	for _, d := range reg.BusPackets() {
		if err := l.pub.Publish(packFrame(d)); err != nil {
			return fmt.Errorf("%s: %w", d.Name, err)
		}
	}
	return nil
}

func packFrame(d telem.Descriptor) can.Frame {
	var data [8]byte
	copy(data[:], d.Data)
	return can.Frame{
		ID:     d.ID,
		Length: uint8(d.Len),
		Data:   data,
	}
}

func (l *CANLink) Close() error {
	return l.bus.Disconnect()
}
