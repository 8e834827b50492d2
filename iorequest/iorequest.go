package iorequest

import (
	"github.com/godbus/dbus"
)

const (
	dbusName = "org.helios.bpmsio"
	dbusPath = "/org/helios/bpmsio"
)

// TxResponse is one canned transaction result used when mocking the
// gateway in tests.
type TxResponse struct {
	Response []byte
	Err      error
}

// TxRequest records one mocked transaction so tests can check the bytes
// a driver put on the wire. CS is -1 for I2C transactions.
type TxRequest struct {
	CS      int
	Address byte
	Write   []byte
	ReadLen int
}

var (
	mockResponses []TxResponse
	mockRequests  []TxRequest
)

// MockTxResponses queues canned responses. While any remain, SpiTx and
// I2cTx pop from the queue instead of calling the gateway. The request
// log starts fresh.
func MockTxResponses(responses []TxResponse) {
	mockResponses = responses
	mockRequests = nil
}

// MockedRequests returns the transactions served from the mock queue
// since MockTxResponses was last called.
func MockedRequests() []TxRequest {
	return mockRequests
}

func popMock(req TxRequest) (TxResponse, bool) {
	if len(mockResponses) == 0 {
		return TxResponse{}, false
	}
	r := mockResponses[0]
	mockResponses = mockResponses[1:]
	mockRequests = append(mockRequests, req)
	return r, true
}

// SpiTx runs one SPI transaction on the monitor chain behind chip select
// index cs: write the given bytes, then clock readLen bytes back.
// timeout is in milliseconds.
func SpiTx(cs int, write []byte, readLen, timeout int) ([]byte, error) {
	if r, ok := popMock(TxRequest{CS: cs, Write: write, ReadLen: readLen}); ok {
		return r.Response, r.Err
	}
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	obj := conn.Object(dbusName, dbusPath)

	var response []byte
	if err := obj.Call(dbusName+".SpiTx", 0, cs, write, readLen, timeout).Store(&response); err != nil {
		return nil, err
	}
	return response, nil
}

// I2cTx runs one I2C transaction with the device at the given address.
func I2cTx(address byte, write []byte, readLen, timeout int) ([]byte, error) {
	if r, ok := popMock(TxRequest{CS: -1, Address: address, Write: write, ReadLen: readLen}); ok {
		return r.Response, r.Err
	}
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	obj := conn.Object(dbusName, dbusPath)

	var response []byte
	if err := obj.Call(dbusName+".I2cTx", 0, address, write, readLen, timeout).Store(&response); err != nil {
		return nil, err
	}
	return response, nil
}

// CheckI2cAddress probes for a device at the given address.
func CheckI2cAddress(address byte, timeout int) error {
	_, err := I2cTx(address, []byte{0x00}, 1, timeout)
	return err
}
