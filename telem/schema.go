package telem

import "fmt"

// Packet identifiers, verbatim from the pack's wire protocol. Together
// with the record lengths below these are a compatibility surface; any
// receiver built against the original firmware expects them unchanged.
const (
	CAN_BPS_VOLTAGE1     uint32 = 0x600
	CAN_BPS_VOLTAGE2     uint32 = 0x601
	CAN_BPS_VOLTAGE3     uint32 = 0x602
	CAN_BPS_VOLTAGE4     uint32 = 0x603
	CAN_BPS_TEMPERATURE1 uint32 = 0x608
	CAN_BPS_TEMPERATURE2 uint32 = 0x609
	CAN_BPS_TEMPERATURE3 uint32 = 0x60A
	CAN_BPS_CUR_BAL_STAT uint32 = 0x60B

	TELEM_BPS_VOLTAGE      uint32 = 0x0B
	TELEM_BPS_TEMPERATURE  uint32 = 0x0D
	TELEM_BPS_CUR_BAL_STAT uint32 = 0x11

	COMMAND_BPS_TRIP_SIGNAL       uint32 = 0x303
	COMMAND_EVDC_DRIVE            uint32 = 0x501
	RESPONSE_MPPT1                uint32 = 0x771
	RESPONSE_MPPT2                uint32 = 0x772
	RESPONSE_MPPT3                uint32 = 0x773
	RESPONSE_MPPT4                uint32 = 0x774
	COMMAND_PMS_DISCONNECT_ARRAY  uint32 = 0x777
	RESPONSE_PMS_DISCONNECT_ARRAY uint32 = 0x778
	COMMAND_ENABLE_BALANCING      uint32 = 0x888
)

// Page lengths in bytes.
const (
	VoltagePageLen     = 30
	TemperaturePageLen = 24
	CurBalPageLen      = 8
)

// Descriptor is one packet schema entry. Data aliases the registry's
// backing page, so assembly mutates the packet payload in place. Command
// and response descriptors are signal only and carry nil Data.
type Descriptor struct {
	Name string
	ID   uint32
	Len  int
	Data []byte
}

// Registry is the static packet schema table. It is built once at
// startup, owns the backing pages and must not be copied.
type Registry struct {
	voltage     [VoltagePageLen]byte
	temperature [TemperaturePageLen]byte
	curBal      [CurBalPageLen]byte

	bus       []Descriptor
	telemetry []Descriptor
	commands  []Descriptor
}

// NewRegistry builds the schema table and checks its construction
// invariants. A duplicate identifier or a length that does not match the
// backing buffer is a configuration fault the caller should treat as
// fatal.
func NewRegistry() (*Registry, error) {
	r := &Registry{}
	r.bus = []Descriptor{
		{"CAN_BPS_VOLTAGE1", CAN_BPS_VOLTAGE1, 8, r.voltage[0:8]},
		{"CAN_BPS_VOLTAGE2", CAN_BPS_VOLTAGE2, 8, r.voltage[8:16]},
		{"CAN_BPS_VOLTAGE3", CAN_BPS_VOLTAGE3, 8, r.voltage[16:24]},
		{"CAN_BPS_VOLTAGE4", CAN_BPS_VOLTAGE4, 6, r.voltage[24:30]},
		{"CAN_BPS_TEMPERATURE1", CAN_BPS_TEMPERATURE1, 8, r.temperature[0:8]},
		{"CAN_BPS_TEMPERATURE2", CAN_BPS_TEMPERATURE2, 8, r.temperature[8:16]},
		{"CAN_BPS_TEMPERATURE3", CAN_BPS_TEMPERATURE3, 8, r.temperature[16:24]},
		{"CAN_BPS_CUR_BAL_STAT", CAN_BPS_CUR_BAL_STAT, 8, r.curBal[0:8]},
	}
	r.telemetry = []Descriptor{
		{"TELEM_BPS_VOLTAGE", TELEM_BPS_VOLTAGE, VoltagePageLen, r.voltage[:]},
		{"TELEM_BPS_TEMPERATURE", TELEM_BPS_TEMPERATURE, TemperaturePageLen, r.temperature[:]},
		{"TELEM_BPS_CUR_BAL_STAT", TELEM_BPS_CUR_BAL_STAT, CurBalPageLen, r.curBal[:]},
	}
	r.commands = []Descriptor{
		{"COMMAND_BPS_TRIP_SIGNAL", COMMAND_BPS_TRIP_SIGNAL, 0, nil},
		{"COMMAND_EVDC_DRIVE", COMMAND_EVDC_DRIVE, 0, nil},
		{"RESPONSE_MPPT1", RESPONSE_MPPT1, 0, nil},
		{"RESPONSE_MPPT2", RESPONSE_MPPT2, 0, nil},
		{"RESPONSE_MPPT3", RESPONSE_MPPT3, 0, nil},
		{"RESPONSE_MPPT4", RESPONSE_MPPT4, 0, nil},
		{"COMMAND_PMS_DISCONNECT_ARRAY", COMMAND_PMS_DISCONNECT_ARRAY, 0, nil},
		{"RESPONSE_PMS_DISCONNECT_ARRAY", RESPONSE_PMS_DISCONNECT_ARRAY, 0, nil},
		{"COMMAND_ENABLE_BALANCING", COMMAND_ENABLE_BALANCING, 0, nil},
	}

	for _, sub := range []struct {
		name    string
		entries []Descriptor
	}{
		{"bus", r.bus},
		{"telemetry", r.telemetry},
		{"command", r.commands},
	} {
		if err := validate(sub.name, sub.entries); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func validate(table string, entries []Descriptor) error {
	seen := make(map[uint32]string)
	for _, d := range entries {
		if prev, ok := seen[d.ID]; ok {
			return fmt.Errorf("%s table: id 0x%X used by both %s and %s", table, d.ID, prev, d.Name)
		}
		seen[d.ID] = d.Name
		if d.Len != len(d.Data) {
			return fmt.Errorf("%s table: %s declares %d bytes but backs %d", table, d.Name, d.Len, len(d.Data))
		}
	}
	return nil
}

// Bus looks up a bus packet descriptor by identifier.
func (r *Registry) Bus(id uint32) (*Descriptor, bool) {
	return find(r.bus, id)
}

// Telemetry looks up a telemetry packet descriptor by identifier.
func (r *Registry) Telemetry(id uint32) (*Descriptor, bool) {
	return find(r.telemetry, id)
}

// Command looks up a command or response descriptor by identifier.
func (r *Registry) Command(id uint32) (*Descriptor, bool) {
	return find(r.commands, id)
}

func find(entries []Descriptor, id uint32) (*Descriptor, bool) {
	for i := range entries {
		if entries[i].ID == id {
			return &entries[i], true
		}
	}
	return nil, false
}

// BusPackets returns the bus sub-table in declaration order.
func (r *Registry) BusPackets() []Descriptor {
	return r.bus
}

// TelemetryPackets returns the telemetry sub-table in declaration order.
func (r *Registry) TelemetryPackets() []Descriptor {
	return r.telemetry
}

// CommandPackets returns the command sub-table in declaration order.
func (r *Registry) CommandPackets() []Descriptor {
	return r.commands
}
