package transport

import (
	"fmt"
	"io"
	"time"

	"github.com/heliosracing/bpms-controller/telem"
	"github.com/tarm/serial"
)

// Radio sends telemetry packets to the chase car modem over its serial
// line. The link is one way; the modem handles addressing and retries.
type Radio struct {
	w io.Writer
	c io.Closer
}

// OpenRadio opens the modem serial device.
func OpenRadio(device string, baud int) (*Radio, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open radio device %s: %w", device, err)
	}
	return &Radio{w: port, c: port}, nil
}

// SendPages frames and writes every telemetry packet in the registry.
func (r *Radio) SendPages(reg *telem.Registry) error {
	for _, d := range reg.TelemetryPackets() {
		frame, err := EncodeFrame(byte(d.ID), d.Data)
		if err != nil {
			return fmt.Errorf("%s: %w", d.Name, err)
		}
		n, err := r.w.Write(frame)
		if err != nil {
			return fmt.Errorf("%s: %w", d.Name, err)
		}
		if n != len(frame) {
			return fmt.Errorf("%s: wrote %d bytes, expected %d", d.Name, n, len(frame))
		}
	}
	return nil
}

func (r *Radio) Close() error {
	if r.c == nil {
		return nil
	}
	return r.c.Close()
}
