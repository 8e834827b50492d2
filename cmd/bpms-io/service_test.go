package main

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

// fakeSpi answers transactions with canned bytes and notices when two
// transfers run at once.
type fakeSpi struct {
	mu       sync.Mutex
	busy     bool
	overlap  bool
	delay    time.Duration
	failures int
	response []byte
	txs      [][]byte
}

func (f *fakeSpi) Tx(w, r []byte) error {
	f.mu.Lock()
	if f.busy {
		f.overlap = true
	}
	f.busy = true
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = false

	if len(w) != len(r) {
		return fmt.Errorf("full duplex transfer needs matching buffers, got %d and %d", len(w), len(r))
	}
	f.txs = append(f.txs, append([]byte{}, w...))
	if f.failures > 0 {
		f.failures--
		return errors.New("transfer failed")
	}
	copy(r[len(r)-len(f.response):], f.response)
	return nil
}

type fakeI2c struct {
	addrs    []uint16
	writes   [][]byte
	response []byte
	err      error
}

func (f *fakeI2c) Tx(addr uint16, w, r []byte) error {
	if f.err != nil {
		return f.err
	}
	f.addrs = append(f.addrs, addr)
	f.writes = append(f.writes, append([]byte{}, w...))
	copy(r, f.response)
	return nil
}

func newTestService(f *fakeSpi, b *fakeI2c) (*service, []*gpiotest.Pin) {
	pins := []*gpiotest.Pin{
		{N: "CS0", Num: 8, L: gpio.High},
		{N: "CS1", Num: 7, L: gpio.High},
	}
	return newService(f, []gpio.PinIO{pins[0], pins[1]}, b), pins
}

func TestSpiTxPadsWriteAndReturnsReadBytes(t *testing.T) {
	f := &fakeSpi{response: []byte{0xAA, 0xBB, 0xCC}}
	s, pins := newTestService(f, nil)

	data, derr := s.SpiTx(1, []byte{0x00, 0x04}, 3, 1000)
	require.Nil(t, derr)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, data)

	// The command bytes go out first, then idle bytes clock the
	// response out.
	require.Len(t, f.txs, 1)
	assert.Equal(t, []byte{0x00, 0x04, 0xFF, 0xFF, 0xFF}, f.txs[0])

	// The chain is deselected again afterwards.
	assert.Equal(t, gpio.High, pins[1].L)
}

func TestSpiTxWriteOnly(t *testing.T) {
	f := &fakeSpi{}
	s, _ := newTestService(f, nil)

	data, derr := s.SpiTx(0, []byte{0x00, 0x01, 0x3D, 0x6E}, 0, 1000)
	require.Nil(t, derr)
	assert.Empty(t, data)
	require.Len(t, f.txs, 1)
	assert.Equal(t, []byte{0x00, 0x01, 0x3D, 0x6E}, f.txs[0])
}

func TestSpiTxRetries(t *testing.T) {
	f := &fakeSpi{failures: 2, response: []byte{0x42}}
	s, pins := newTestService(f, nil)

	data, derr := s.SpiTx(0, []byte{0x00}, 1, 1000)
	require.Nil(t, derr)
	assert.Equal(t, []byte{0x42}, data)
	assert.Len(t, f.txs, 3)
	assert.Equal(t, gpio.High, pins[0].L)
}

func TestSpiTxRetriesExhausted(t *testing.T) {
	f := &fakeSpi{failures: 3}
	s, _ := newTestService(f, nil)

	_, derr := s.SpiTx(0, []byte{0x00}, 1, 1000)
	require.NotNil(t, derr)
	assert.Equal(t, dbusName+".ErrorUsingSpiBus", derr.Name)
	assert.Len(t, f.txs, 3)
}

func TestSpiTxBadChipSelect(t *testing.T) {
	f := &fakeSpi{}
	s, _ := newTestService(f, nil)

	_, derr := s.SpiTx(2, []byte{0x00}, 0, 1000)
	require.NotNil(t, derr)
	assert.Equal(t, dbusName+".BadChipSelect", derr.Name)

	_, derr = s.SpiTx(-1, []byte{0x00}, 0, 1000)
	require.NotNil(t, derr)
	assert.Empty(t, f.txs)
}

func TestI2cTx(t *testing.T) {
	b := &fakeI2c{response: []byte{0xB5, 0x01}}
	s, _ := newTestService(&fakeSpi{}, b)

	data, derr := s.I2cTx(0x50, []byte{0x00}, 2, 1000)
	require.Nil(t, derr)
	assert.Equal(t, []byte{0xB5, 0x01}, data)
	assert.Equal(t, []uint16{0x50}, b.addrs)
	assert.Equal(t, [][]byte{{0x00}}, b.writes)
}

func TestI2cTxFailure(t *testing.T) {
	b := &fakeI2c{err: errors.New("no ack")}
	s, _ := newTestService(&fakeSpi{}, b)

	_, derr := s.I2cTx(0x50, []byte{0x00}, 1, 1000)
	require.NotNil(t, derr)
	assert.Equal(t, dbusName+".ErrorUsingI2cBus", derr.Name)
}

func TestQueueTimeout(t *testing.T) {
	s, _ := newTestService(&fakeSpi{}, nil)

	// A request that sat in the queue past its budget is dropped before
	// touching the bus.
	resp := s.processTransaction(Request{
		RequestTime: time.Now().Add(-50 * time.Millisecond),
		CS:          0,
		Write:       []byte{0x00},
		Timeout:     10,
	})
	require.NotNil(t, resp.Err)
	assert.Equal(t, dbusName+".QueueTimeout", resp.Err.Name)
}

func TestRequestsNeverInterleave(t *testing.T) {
	f := &fakeSpi{delay: 2 * time.Millisecond, response: []byte{0x00}}
	s, _ := newTestService(f, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(cs int) {
			defer wg.Done()
			_, derr := s.SpiTx(cs, []byte{0x00}, 1, 1000)
			assert.Nil(t, derr)
		}(i % 2)
	}
	wg.Wait()

	assert.False(t, f.overlap, "transactions overlapped on the shared bus")
	assert.Len(t, f.txs, 10)
}
