// Package mhz provides a driver for the Winsen MH-Z14/MH-Z19 NDIR CO2
// sensors over their 9600 baud UART protocol.
//
// Every exchange is a 9-byte command followed by a 9-byte reply:
//
//	FF 01 86 00 00 00 00 00 79   read concentration
//	FF 86 HH LL .. .. .. .. CS   reply, ppm = HH*256 + LL
package mhz

import (
	"errors"
	"io"
	"time"
)

// Baud is the fixed line rate.
const Baud = 9600

const (
	frameLen   = 9
	startByte  = 0xFF
	sensorNum  = 0x01
	cmdReadCO2 = 0x86
	cmdZero    = 0x87
	cmdABC     = 0x79
)

var (
	ErrTimeout  = errors.New("mhz: reply timeout")
	ErrChecksum = errors.New("mhz: checksum mismatch")
	ErrReply    = errors.New("mhz: unexpected reply")
)

// Port is the serial line. A Read that times out returns (0, nil).
type Port interface {
	io.ReadWriter
}

// inputResetter is implemented by ports that can drop stale input.
type inputResetter interface {
	ResetInput() error
}

// Device talks to one sensor.
type Device struct {
	port Port
	buf  [frameLen]byte
}

func New(port Port) *Device {
	return &Device{port: port}
}

// Checksum is the two's complement of bytes 1..7.
func Checksum(f []byte) byte {
	var s byte
	for _, b := range f[1:8] {
		s += b
	}
	return ^s + 1
}

// Command builds a request frame.
func Command(cmd byte, args ...byte) [frameLen]byte {
	f := [frameLen]byte{startByte, sensorNum, cmd}
	copy(f[3:8], args)
	f[8] = Checksum(f[:])
	return f
}

// SetABC enables or disables automatic baseline correction.
func (d *Device) SetABC(on bool) error {
	arg := byte(0x00)
	if on {
		arg = 0xA0
	}
	f := Command(cmdABC, arg)
	_, err := d.port.Write(f[:])
	return err
}

// CO2 requests a reading and waits up to timeout for the reply.
func (d *Device) CO2(timeout time.Duration) (uint16, error) {
	if r, ok := d.port.(inputResetter); ok {
		_ = r.ResetInput()
	}
	req := Command(cmdReadCO2)
	if _, err := d.port.Write(req[:]); err != nil {
		return 0, err
	}
	f, err := d.readReply(time.Now().Add(timeout))
	if err != nil {
		return 0, err
	}
	if f[1] != cmdReadCO2 {
		return 0, ErrReply
	}
	return uint16(f[2])<<8 | uint16(f[3]), nil
}

// readReply scans for a start byte then fills a frame, giving up at deadline.
func (d *Device) readReply(deadline time.Time) ([]byte, error) {
	f := d.buf[:]
	n := 0
	var one [1]byte
	for n < frameLen {
		if time.Now().After(deadline) {
			return nil, ErrTimeout
		}
		m, err := d.port.Read(one[:])
		if err != nil {
			return nil, err
		}
		if m == 0 {
			continue
		}
		if n == 0 && one[0] != startByte {
			continue
		}
		f[n] = one[0]
		n++
	}
	if Checksum(f) != f[8] {
		return nil, ErrChecksum
	}
	return f, nil
}
