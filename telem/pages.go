package telem

import (
	"encoding/binary"
	"fmt"
)

// VoltageEntries is the number of uint16 cell slots in the voltage page.
const VoltageEntries = VoltagePageLen / 2

// Assembler packs semantic values into the registry's fixed layout pages.
// All multi byte fields are little endian.
type Assembler struct {
	r *Registry
}

func NewAssembler(r *Registry) *Assembler {
	return &Assembler{r: r}
}

// PackVoltages writes averaged cell voltages into the voltage page in
// logical cell order starting at entry 0. Entries past the supplied cells
// are left alone, which keeps unpopulated slots at zero.
func (a *Assembler) PackVoltages(avgs []uint16) error {
	if len(avgs) > VoltageEntries {
		return fmt.Errorf("%d cell voltages will not fit %d page entries", len(avgs), VoltageEntries)
	}
	for i, v := range avgs {
		binary.LittleEndian.PutUint16(a.r.voltage[2*i:], v)
	}
	return nil
}

// PackTemperatures writes one signed byte per ADC channel starting at
// entry 0, truncating each Celsius value toward zero and clamping it to
// the int8 range.
func (a *Assembler) PackTemperatures(tempsC []float64) error {
	if len(tempsC) > TemperaturePageLen {
		return fmt.Errorf("%d channels will not fit %d page entries", len(tempsC), TemperaturePageLen)
	}
	for i, t := range tempsC {
		a.r.temperature[i] = byte(clampTemp(t))
	}
	return nil
}

func clampTemp(t float64) int8 {
	switch {
	case t >= 127:
		return 127
	case t <= -128:
		return -128
	default:
		return int8(t)
	}
}

// PackCurrentAndBalance writes the current and balance page: a zero
// current placeholder until a current sensor exists, then the discharge
// state word whose low byte is the combined group mask. The trailing
// status bytes are never written here.
func (a *Assembler) PackCurrentAndBalance(combined byte) {
	binary.LittleEndian.PutUint16(a.r.curBal[0:2], 0)
	binary.LittleEndian.PutUint32(a.r.curBal[2:6], uint32(combined))
}

// DecodeVoltagePage unpacks a voltage page into its cell entries.
func DecodeVoltagePage(data []byte) ([VoltageEntries]uint16, error) {
	var out [VoltageEntries]uint16
	if len(data) != VoltagePageLen {
		return out, fmt.Errorf("voltage page is %d bytes, got %d", VoltagePageLen, len(data))
	}
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(data[2*i:])
	}
	return out, nil
}

// DecodeTemperaturePage unpacks a temperature page into per channel
// Celsius values.
func DecodeTemperaturePage(data []byte) ([TemperaturePageLen]int8, error) {
	var out [TemperaturePageLen]int8
	if len(data) != TemperaturePageLen {
		return out, fmt.Errorf("temperature page is %d bytes, got %d", TemperaturePageLen, len(data))
	}
	for i := range out {
		out[i] = int8(data[i])
	}
	return out, nil
}

// DecodeCurBalPage unpacks the current and balance page.
func DecodeCurBalPage(data []byte) (current int16, discharge uint32, err error) {
	if len(data) != CurBalPageLen {
		return 0, 0, fmt.Errorf("current and balance page is %d bytes, got %d", CurBalPageLen, len(data))
	}
	current = int16(binary.LittleEndian.Uint16(data[0:2]))
	discharge = binary.LittleEndian.Uint32(data[2:6])
	return current, discharge, nil
}
