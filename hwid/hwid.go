// Package hwid manages the pack identity record: which battery pack this
// is, the interface board hardware version and when the pack was
// commissioned. The record lives on the interface board EEPROM with a
// JSON copy on disk for boards built before the chip was fitted.
package hwid

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/heliosracing/bpms-controller/iorequest"
	"github.com/heliosracing/bpms-controller/logging"
	"github.com/sigurn/crc8"
)

const (
	chipAddress = 0x50
	recordMagic = 0xB5
	fileName    = "pack-id.json"

	// The chip transfers at most one page per transaction.
	pageLen = 16

	txTimeout = 1000 // ms

	// magic 1, layout 1, hardware version 3, pack id 8, time 4, crc 1
	recordLen = 18
)

var log = logging.NewLogger("info")

var crcTable = crc8.MakeTable(crc8.Params{
	Poly:   0x31, // Polynomial 1 + x^4 + x^5 + x^8
	Init:   0xFF,
	RefIn:  false,
	RefOut: false,
	XorOut: 0x00,
})

var (
	errChipEmpty = errors.New("no identity record on chip")
	errBadCRC    = errors.New("identity record CRC check failed")
)

// Record identifies one battery pack and its interface board.
type Record struct {
	Layout       byte      `json:"layout"`
	Major        byte      `json:"major"`
	Minor        byte      `json:"minor"`
	Patch        byte      `json:"patch"`
	PackID       uint64    `json:"packId"`
	Commissioned time.Time `json:"commissioned"`
}

// newRecord makes a commissioning record for a pack that has never been
// provisioned, with a random identity and the current board revision.
func newRecord() *Record {
	return &Record{
		Layout:       1,
		Major:        1,
		Minor:        0,
		Patch:        0,
		PackID:       randomPackID(),
		Commissioned: time.Now().Truncate(time.Second),
	}
}

func randomPackID() uint64 {
	var id [8]byte
	if _, err := rand.Read(id[:]); err != nil {
		log.Fatal(err)
	}
	return binary.BigEndian.Uint64(id[:])
}

func (r *Record) Equal(other *Record) bool {
	return r.Layout == other.Layout &&
		r.Major == other.Major &&
		r.Minor == other.Minor &&
		r.Patch == other.Patch &&
		r.PackID == other.PackID &&
		r.Commissioned.Equal(other.Commissioned)
}

func (r *Record) String() string {
	return fmt.Sprintf("pack %016X, board v%d.%d.%d, commissioned %s",
		r.PackID, r.Major, r.Minor, r.Patch, r.Commissioned.Format(time.DateOnly))
}

// Bytes lays the record out as stored on the chip. The commissioning
// time is kept as a 32 bit unix timestamp.
func (r *Record) Bytes() []byte {
	data := make([]byte, 0, recordLen)
	data = append(data, recordMagic, r.Layout, r.Major, r.Minor, r.Patch)
	data = binary.BigEndian.AppendUint64(data, r.PackID)
	data = binary.BigEndian.AppendUint32(data, uint32(r.Commissioned.Unix()))
	return append(data, crc8.Checksum(data, crcTable))
}

func parseRecord(data []byte) (*Record, error) {
	if len(data) != recordLen {
		return nil, fmt.Errorf("identity record is %d bytes, got %d", recordLen, len(data))
	}
	if data[0] != recordMagic {
		return nil, fmt.Errorf("invalid first byte: %#02X, expecting %#02X", data[0], recordMagic)
	}
	if crc8.Checksum(data[:recordLen-1], crcTable) != data[recordLen-1] {
		return nil, errBadCRC
	}
	return &Record{
		Layout:       data[1],
		Major:        data[2],
		Minor:        data[3],
		Patch:        data[4],
		PackID:       binary.BigEndian.Uint64(data[5:13]),
		Commissioned: time.Unix(int64(binary.BigEndian.Uint32(data[13:17])), 0),
	}, nil
}

// HasChip reports whether the identity EEPROM answers on the bus.
func HasChip() bool {
	return iorequest.CheckI2cAddress(chipAddress, txTimeout) == nil
}

func readChip() (*Record, error) {
	data := []byte{}
	for i := 0; i < recordLen; i += pageLen {
		readLen := min(pageLen, recordLen-i)
		pageData, err := iorequest.I2cTx(chipAddress, []byte{byte(i)}, readLen, txTimeout)
		if err != nil {
			return nil, err
		}
		data = append(data, pageData...)
	}
	if len(data) != recordLen {
		return nil, fmt.Errorf("expected %d bytes, got %d", recordLen, len(data))
	}

	erased := true
	for _, b := range data {
		if b != 0xFF {
			erased = false
			break
		}
	}
	if erased {
		return nil, errChipEmpty
	}
	return parseRecord(data)
}

func writeChip(r *Record) error {
	data := r.Bytes()
	for i := 0; i < len(data); i += pageLen {
		writeLen := min(pageLen, len(data)-i)
		page := append([]byte{byte(i)}, data[i:i+writeLen]...)
		if _, err := iorequest.I2cTx(chipAddress, page, 0, txTimeout); err != nil {
			return err
		}
	}

	// Read the record back so a worn or write protected chip is caught
	// at commissioning rather than on a later boot.
	readBack, err := readChip()
	if err != nil {
		return fmt.Errorf("failed to read back identity record: %w", err)
	}
	if !bytes.Equal(readBack.Bytes(), data) {
		return errors.New("identity record read back does not match what was written")
	}
	return nil
}

func readFile(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pack identity file: %w", err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pack identity file: %w", err)
	}
	r.Commissioned = r.Commissioned.Truncate(time.Second)
	return &r, nil
}

func writeFile(path string, r *Record) error {
	r.Commissioned = r.Commissioned.Truncate(time.Second)
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal pack identity: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Init reconciles the identity record between the EEPROM chip and the
// file copy under dir, provisioning a fresh record the first time a pack
// boots. It returns the record the controller should report.
func Init(dir string) (*Record, error) {
	filePath := filepath.Join(dir, fileName)

	_, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		if !HasChip() {
			log.Info("No identity chip and no identity file. Creating the file with a fresh record.")
			r := newRecord()
			return r, writeFile(filePath, r)
		}
		r, err := readChip()
		if err == errChipEmpty {
			log.Info("Identity chip is blank. Commissioning a fresh record.")
			r = newRecord()
			if err := writeChip(r); err != nil {
				return nil, err
			}
			return r, writeFile(filePath, r)
		} else if err != nil {
			return nil, fmt.Errorf("failed to read identity record from chip: %w", err)
		}
		log.Info("No identity file. Creating it from the chip record.")
		return r, writeFile(filePath, r)
	} else if err != nil {
		return nil, err
	}

	fromFile, err := readFile(filePath)
	if err != nil {
		return nil, err
	}
	if !HasChip() {
		log.Info("No identity chip, using the identity file.")
		return fromFile, nil
	}

	fromChip, err := readChip()
	if err == errChipEmpty {
		log.Info("Identity chip is blank, writing the file record to it.")
		return fromFile, writeChip(fromFile)
	} else if err != nil {
		return nil, fmt.Errorf("failed to read identity record from chip: %w", err)
	}

	if !fromChip.Equal(fromFile) {
		return nil, fmt.Errorf("identity mismatch: chip has %s, file has %s", fromChip, fromFile)
	}
	return fromChip, nil
}
