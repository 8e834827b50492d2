package afe

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/heliosracing/bpms-controller/iorequest"
)

// Command codes. The conversion commands carry the normal ADC mode in
// their MD bits.
const (
	cmdWRCFG  uint16 = 0x0001
	cmdRDCVA  uint16 = 0x0004
	cmdRDCVB  uint16 = 0x0006
	cmdRDAUXA uint16 = 0x000C
	cmdRDAUXB uint16 = 0x000E
	cmdADCV   uint16 = 0x0360 // all cells, discharge off during conversion
	cmdADAX   uint16 = 0x0560 // all GPIOs
)

const (
	regGroupLen      = 6 // data bytes per register group
	wordsPerRegGroup = 3

	// CFGR0: GPIO pull downs off, reference on between conversions.
	cfgr0 = 0xFC

	txTimeout = 500 // ms, includes time queued at the gateway

	wakeupWait     = 400 * time.Microsecond
	conversionWait = 3 * time.Millisecond
)

// CellsPerChain is the number of cells populated on each monitor chain.
const CellsPerChain = 4

// MaxAuxChannels is the number of GPIO ADC inputs per monitor.
const MaxAuxChannels = 5

// Swappable so driver tests run without conversion delays.
var sleepFn = time.Sleep

// LTC6804 is one cell monitor chain, addressed by its chip select index
// at the bpms-io gateway. Voltages and GPIO ADC counts are in 100 uV
// units.
type LTC6804 struct {
	cs int
}

func NewLTC6804(cs int) *LTC6804 {
	return &LTC6804{cs: cs}
}

// wake brings the monitor core out of sleep. A dummy byte starts it,
// then it needs t_wake before the first command.
func (l *LTC6804) wake() error {
	if _, err := iorequest.SpiTx(l.cs, []byte{0xFF}, 0, txTimeout); err != nil {
		return err
	}
	sleepFn(wakeupWait)
	return nil
}

// command sends a broadcast command with no payload.
func (l *LTC6804) command(cmd uint16) error {
	_, err := iorequest.SpiTx(l.cs, cmdBytes(cmd), 0, txTimeout)
	return err
}

// readRegGroup sends a read command and returns the six data bytes after
// verifying the appended PEC.
func (l *LTC6804) readRegGroup(cmd uint16) ([]byte, error) {
	data, err := iorequest.SpiTx(l.cs, cmdBytes(cmd), regGroupLen+2, txTimeout)
	if err != nil {
		return nil, err
	}
	if len(data) != regGroupLen+2 {
		return nil, fmt.Errorf("register group read returned %d bytes", len(data))
	}
	received := uint16(data[6])<<8 | uint16(data[7])
	if calculated := PEC15(data[:regGroupLen]); received != calculated {
		return nil, fmt.Errorf("PEC mismatch: received 0x%04X, calculated 0x%04X", received, calculated)
	}
	return data[:regGroupLen], nil
}

func cmdBytes(cmd uint16) []byte {
	return appendPEC([]byte{byte(cmd >> 8), byte(cmd)})
}

// ReadCellVoltages triggers a conversion and reads back the chain's cell
// voltages. Cells 1 to 3 come from register group A, cell 4 from group B.
func (l *LTC6804) ReadCellVoltages() ([CellsPerChain]uint16, error) {
	var cells [CellsPerChain]uint16
	if err := l.wake(); err != nil {
		return cells, err
	}
	if err := l.command(cmdADCV); err != nil {
		return cells, err
	}
	sleepFn(conversionWait)

	groupA, err := l.readRegGroup(cmdRDCVA)
	if err != nil {
		return cells, fmt.Errorf("cells 1-3: %w", err)
	}
	groupB, err := l.readRegGroup(cmdRDCVB)
	if err != nil {
		return cells, fmt.Errorf("cell 4: %w", err)
	}
	for i := 0; i < wordsPerRegGroup; i++ {
		cells[i] = binary.LittleEndian.Uint16(groupA[2*i:])
	}
	cells[3] = binary.LittleEndian.Uint16(groupB)
	return cells, nil
}

// ReadAuxCounts triggers a GPIO ADC conversion and reads back the first
// n thermistor channels.
func (l *LTC6804) ReadAuxCounts(n int) ([]uint16, error) {
	if n < 0 || n > MaxAuxChannels {
		return nil, fmt.Errorf("monitor has %d aux channels, asked for %d", MaxAuxChannels, n)
	}
	if n == 0 {
		return nil, nil
	}
	if err := l.wake(); err != nil {
		return nil, err
	}
	if err := l.command(cmdADAX); err != nil {
		return nil, err
	}
	sleepFn(conversionWait)

	counts := make([]uint16, 0, n)
	group, err := l.readRegGroup(cmdRDAUXA)
	if err != nil {
		return nil, fmt.Errorf("aux group A: %w", err)
	}
	for i := 0; i < wordsPerRegGroup && len(counts) < n; i++ {
		counts = append(counts, binary.LittleEndian.Uint16(group[2*i:]))
	}
	if len(counts) < n {
		group, err = l.readRegGroup(cmdRDAUXB)
		if err != nil {
			return nil, fmt.Errorf("aux group B: %w", err)
		}
		for i := 0; i < wordsPerRegGroup && len(counts) < n; i++ {
			counts = append(counts, binary.LittleEndian.Uint16(group[2*i:]))
		}
	}
	return counts, nil
}

// WriteDischargeMask rewrites the configuration register group with the
// chain's discharge bits, one per cell in the low nibble. The VUV and
// VOV comparator thresholds stay zero.
func (l *LTC6804) WriteDischargeMask(mask uint8) error {
	if err := l.wake(); err != nil {
		return err
	}
	cfg := []byte{cfgr0, 0x00, 0x00, 0x00, mask & 0x0F, 0x00}
	write := append(cmdBytes(cmdWRCFG), appendPEC(cfg)...)
	_, err := iorequest.SpiTx(l.cs, write, 0, txTimeout)
	return err
}
