package main

import (
	"errors"
	"sync"
	"time"

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"
	"periph.io/x/conn/v3/gpio"
)

const (
	dbusName = "org.helios.bpmsio"
	dbusPath = "/org/helios/bpmsio"

	requestQueueLen = 20
	txRetries       = 2
	retryInterval   = 20 * time.Millisecond
)

// Narrow views of the periph bus types so the queue can be exercised
// against fakes.
type spiConn interface {
	Tx(w, r []byte) error
}

type i2cBus interface {
	Tx(addr uint16, w, r []byte) error
}

// service owns the SPI port, the chip select lines and the I2C bus.
// Requests from all clients funnel through one queue so transactions
// never interleave on the shared wires.
type service struct {
	requests     chan Request
	spi          spiConn
	chipSelects  []gpio.PinIO
	i2c          i2cBus
	mu           sync.Mutex
	requestCount int
}

type Request struct {
	RequestTime time.Time
	RequestID   int
	CS          int // SPI chip select index, -1 for I2C
	Address     byte
	Write       []byte
	ReadLen     int
	Timeout     int // ms the request may spend queued
	Response    chan Response
}

type Response struct {
	Data []byte
	Err  *dbus.Error
}

func newService(spi spiConn, chipSelects []gpio.PinIO, bus i2cBus) *service {
	s := &service{
		requests:    make(chan Request, requestQueueLen),
		spi:         spi,
		chipSelects: chipSelects,
		i2c:         bus,
	}

	// Process requests sequentially.
	go func() {
		for req := range s.requests {
			req.Response <- s.processTransaction(req)
		}
	}()
	return s
}

func startService(s *service) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("name already taken")
	}

	conn.Export(s, dbusPath, dbusName)
	conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable")
	return nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

func (s *service) enqueue(req Request) ([]byte, *dbus.Error) {
	s.mu.Lock()
	req.RequestID = s.requestCount
	s.requestCount++
	s.mu.Unlock()
	req.RequestTime = time.Now()
	req.Response = make(chan Response, 1)

	log.Debugf("Adding request '%d' to the queue", req.RequestID)
	s.requests <- req

	response := <-req.Response
	return response.Data, response.Err
}

/*
// SPI example to read cell voltage register group A from chain 0.
// Write: RDCVA command word with its PEC.
dbus-send --system --print-reply --dest=org.helios.bpmsio /org/helios/bpmsio org.helios.bpmsio.SpiTx \
int32:0 \
array:byte:0x00,0x04,0x07,0xC2 \
int32:8 \
int32:500
*/

// SpiTx runs one transaction on the monitor chain behind chip select
// index cs: write the given bytes, then clock readLen bytes back.
func (s *service) SpiTx(cs int, write []byte, readLen, timeout int) ([]byte, *dbus.Error) {
	if cs < 0 || cs >= len(s.chipSelects) {
		return nil, dbus.NewError(dbusName+".BadChipSelect", nil)
	}
	return s.enqueue(Request{CS: cs, Write: write, ReadLen: readLen, Timeout: timeout})
}

// I2cTx runs one transaction with the device at the given address.
func (s *service) I2cTx(address byte, write []byte, readLen, timeout int) ([]byte, *dbus.Error) {
	return s.enqueue(Request{CS: -1, Address: address, Write: write, ReadLen: readLen, Timeout: timeout})
}

func (s *service) processTransaction(req Request) Response {
	waited := time.Since(req.RequestTime)
	log.Debugf("Request '%d' waited %s in the queue", req.RequestID, waited)
	if req.Timeout > 0 && waited > time.Duration(req.Timeout)*time.Millisecond {
		log.Infof("Request '%d' spent %s queued, over its %dms budget", req.RequestID, waited, req.Timeout)
		return Response{Err: dbus.NewError(dbusName+".QueueTimeout", nil)}
	}
	if req.CS >= 0 {
		return s.processSpi(req)
	}
	return s.processI2c(req)
}

func (s *service) processSpi(req Request) Response {
	// Full duplex transfer: pad the write with idle bytes while the
	// response is clocked out.
	n := len(req.Write) + req.ReadLen
	w := make([]byte, n)
	copy(w, req.Write)
	for i := len(req.Write); i < n; i++ {
		w[i] = 0xFF
	}
	r := make([]byte, n)

	pin := s.chipSelects[req.CS]
	for attempt := 0; attempt <= txRetries; attempt++ {
		if err := pin.Out(gpio.Low); err != nil {
			return Response{Err: dbus.NewError(dbusName+".ErrorUsingChipSelect", nil)}
		}
		txErr := s.spi.Tx(w, r)
		if err := pin.Out(gpio.High); err != nil {
			return Response{Err: dbus.NewError(dbusName+".ErrorUsingChipSelect", nil)}
		}
		if txErr == nil {
			log.Debugf("SPI Tx succeeded after %d retries", attempt)
			return Response{Data: r[len(req.Write):]}
		}
		if attempt < txRetries {
			log.Debugf("SPI Tx failed, retrying %d more times: %s", txRetries-attempt, txErr)
			time.Sleep(retryInterval)
		}
	}
	log.Errorf("SPI Tx failed. CS %d, write %v, readLen %d", req.CS, req.Write, req.ReadLen)
	return Response{Err: dbus.NewError(dbusName+".ErrorUsingSpiBus", nil)}
}

func (s *service) processI2c(req Request) Response {
	read := make([]byte, req.ReadLen)
	for attempt := 0; attempt <= txRetries; attempt++ {
		err := s.i2c.Tx(uint16(req.Address), req.Write, read)
		if err == nil {
			log.Debugf("I2C Tx succeeded after %d retries", attempt)
			return Response{Data: read}
		}
		if attempt < txRetries {
			log.Debugf("I2C Tx failed, retrying %d more times: %s", txRetries-attempt, err)
			time.Sleep(retryInterval)
		}
	}
	log.Errorf("I2C Tx failed. Address 0x%X, write %v, readLen %d", req.Address, req.Write, req.ReadLen)
	return Response{Err: dbus.NewError(dbusName+".ErrorUsingI2cBus", nil)}
}
