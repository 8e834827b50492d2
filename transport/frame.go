// Package transport publishes assembled telemetry pages on the vehicle
// CAN bus and the chase car radio link.
package transport

import (
	"fmt"

	"github.com/sigurn/crc16"
)

// FrameSync marks the start of every radio frame.
const FrameSync = 0x7E

// frame overhead: sync, id, length, two checksum bytes
const frameOverhead = 5

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// EncodeFrame wraps one telemetry packet for the radio link as
// <sync><id><length><payload...><crc16>. The big endian checksum covers
// the id, length and payload, so a trashed sync byte alone cannot pass a
// frame through.
func EncodeFrame(id byte, payload []byte) ([]byte, error) {
	if len(payload) > 0xFF {
		return nil, fmt.Errorf("payload of %d bytes does not fit a frame", len(payload))
	}
	frame := make([]byte, 0, len(payload)+frameOverhead)
	frame = append(frame, FrameSync, id, byte(len(payload)))
	frame = append(frame, payload...)
	crc := crc16.Checksum(frame[1:], crcTable)
	return append(frame, byte(crc>>8), byte(crc)), nil
}

// DecodeFrame unwraps a radio frame, verifying the sync byte, declared
// length and checksum.
func DecodeFrame(frame []byte) (id byte, payload []byte, err error) {
	if len(frame) < frameOverhead {
		return 0, nil, fmt.Errorf("frame of %d bytes is too short", len(frame))
	}
	if frame[0] != FrameSync {
		return 0, nil, fmt.Errorf("bad sync byte 0x%02X", frame[0])
	}
	if int(frame[2]) != len(frame)-frameOverhead {
		return 0, nil, fmt.Errorf("frame declares %d payload bytes but carries %d", frame[2], len(frame)-frameOverhead)
	}
	calculated := crc16.Checksum(frame[1:len(frame)-2], crcTable)
	received := uint16(frame[len(frame)-2])<<8 | uint16(frame[len(frame)-1])
	if calculated != received {
		return 0, nil, fmt.Errorf("CRC mismatch: received 0x%04X, calculated 0x%04X", received, calculated)
	}
	return frame[1], frame[3 : len(frame)-2], nil
}
