// Package sps30 provides a driver for the Sensirion SPS30 particulate matter
// sensor over its UART (SHDLC) interface at 115200 baud.
//
// Frames are delimited by 0x7E and byte-stuffed:
//
//	MOSI: 7E ADR CMD L data... CHK 7E
//	MISO: 7E ADR CMD STATE L data... CHK 7E
//
// CHK is the inverted low byte of the sum of every byte between the
// delimiters.
package sps30

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// Baud is the fixed line rate.
const Baud = 115200

const (
	flag   = 0x7E
	escape = 0x7D
	xorBit = 0x20

	addr = 0x00

	cmdStart      = 0x00
	cmdStop       = 0x01
	cmdRead       = 0x03
	cmdFanClean   = 0x56
	cmdDeviceInfo = 0xD0
	cmdReset      = 0xD3

	floatFormat   = 0x03
	sampleLen     = 40
	maxFrameBytes = 2*(5+255+1) + 2
)

var (
	ErrTimeout  = errors.New("sps30: reply timeout")
	ErrChecksum = errors.New("sps30: checksum mismatch")
	ErrFrame    = errors.New("sps30: malformed frame")
	ErrReply    = errors.New("sps30: unexpected reply")
)

// StateError is a non-zero SHDLC state byte.
type StateError byte

func (e StateError) Error() string {
	return "sps30: device state 0x" + strconv.FormatUint(uint64(e), 16)
}

// Port is the serial line. A Read that times out returns (0, nil).
type Port interface {
	io.ReadWriter
}

type inputResetter interface {
	ResetInput() error
}

// Device talks to one sensor.
type Device struct {
	port    Port
	Timeout time.Duration // per-exchange bound, default 100 ms
	rx      []byte
}

func New(port Port) *Device {
	return &Device{port: port, Timeout: 100 * time.Millisecond}
}

// Sample is one measurement in the sensor's native units.
type Sample struct {
	MassPM1_0, MassPM2_5, MassPM4_0, MassPM10       float32 // µg/m³
	NumPM0_5, NumPM1_0, NumPM2_5, NumPM4_0, NumPM10 float32 // #/cm³
	TypicalSize                                     float32 // µm
}

// -----------------------------------------------------------------------------
// Commands
// -----------------------------------------------------------------------------

// ProductType returns the device's product type string ("00080000").
func (d *Device) ProductType() (string, error) {
	data, err := d.exchange(cmdDeviceInfo, []byte{0x00}, d.Timeout)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\x00"), nil
}

// Start enters measurement mode with IEEE754 float output.
func (d *Device) Start() error {
	_, err := d.exchange(cmdStart, []byte{0x01, floatFormat}, d.Timeout)
	return err
}

func (d *Device) Stop() error {
	_, err := d.exchange(cmdStop, nil, d.Timeout)
	return err
}

// Reset reboots the sensor; it needs ~100 ms before accepting commands.
func (d *Device) Reset() error {
	_, err := d.exchange(cmdReset, nil, d.Timeout)
	return err
}

// FanClean starts a manual fan cleaning cycle.
func (d *Device) FanClean() error {
	_, err := d.exchange(cmdFanClean, nil, d.Timeout)
	return err
}

// Read fetches the latest measurement. ok is false when the sensor has no new
// data since the previous read.
func (d *Device) Read(timeout time.Duration) (s Sample, ok bool, err error) {
	data, err := d.exchange(cmdRead, nil, timeout)
	if err != nil {
		return Sample{}, false, err
	}
	if len(data) == 0 {
		return Sample{}, false, nil
	}
	if len(data) != sampleLen {
		return Sample{}, false, ErrReply
	}
	f := func(i int) float32 { return math.Float32frombits(binary.BigEndian.Uint32(data[4*i:])) }
	return Sample{
		MassPM1_0: f(0), MassPM2_5: f(1), MassPM4_0: f(2), MassPM10: f(3),
		NumPM0_5: f(4), NumPM1_0: f(5), NumPM2_5: f(6), NumPM4_0: f(7), NumPM10: f(8),
		TypicalSize: f(9),
	}, true, nil
}

// -----------------------------------------------------------------------------
// SHDLC framing
// -----------------------------------------------------------------------------

// Checksum inverts the low byte of the sum of b.
func Checksum(b []byte) byte {
	var s byte
	for _, x := range b {
		s += x
	}
	return ^s
}

// EncodeRequest builds a stuffed MOSI frame.
func EncodeRequest(cmd byte, data []byte) []byte {
	raw := append([]byte{addr, cmd, byte(len(data))}, data...)
	return frame(raw)
}

// EncodeResponse builds a stuffed MISO frame (used by simulators and tests).
func EncodeResponse(cmd, state byte, data []byte) []byte {
	raw := append([]byte{addr, cmd, state, byte(len(data))}, data...)
	return frame(raw)
}

func frame(raw []byte) []byte {
	raw = append(raw, Checksum(raw))
	out := make([]byte, 0, 2*len(raw)+2)
	out = append(out, flag)
	for _, b := range raw {
		switch b {
		case flag, escape, 0x11, 0x13:
			out = append(out, escape, b^xorBit)
		default:
			out = append(out, b)
		}
	}
	return append(out, flag)
}

// DecodeResponse unstuffs and validates the body of a MISO frame (without
// delimiters) and returns its command, state and data.
func DecodeResponse(body []byte) (cmd, state byte, data []byte, err error) {
	raw := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		b := body[i]
		if b == escape {
			i++
			if i == len(body) {
				return 0, 0, nil, ErrFrame
			}
			b = body[i] ^ xorBit
		}
		raw = append(raw, b)
	}
	if len(raw) < 5 {
		return 0, 0, nil, ErrFrame
	}
	if Checksum(raw[:len(raw)-1]) != raw[len(raw)-1] {
		return 0, 0, nil, ErrChecksum
	}
	n := int(raw[3])
	if len(raw) != 5+n {
		return 0, 0, nil, ErrFrame
	}
	return raw[1], raw[2], raw[4 : 4+n], nil
}

func (d *Device) exchange(cmd byte, data []byte, timeout time.Duration) ([]byte, error) {
	if r, ok := d.port.(inputResetter); ok {
		_ = r.ResetInput()
	}
	if _, err := d.port.Write(EncodeRequest(cmd, data)); err != nil {
		return nil, err
	}
	body, err := d.readFrame(time.Now().Add(timeout))
	if err != nil {
		return nil, err
	}
	gotCmd, state, payload, err := DecodeResponse(body)
	if err != nil {
		return nil, err
	}
	if gotCmd != cmd {
		return nil, ErrReply
	}
	if state != 0 {
		return nil, StateError(state)
	}
	return payload, nil
}

// readFrame returns the bytes between an opening and closing flag.
func (d *Device) readFrame(deadline time.Time) ([]byte, error) {
	d.rx = d.rx[:0]
	inFrame := false
	var one [1]byte
	for {
		if time.Now().After(deadline) {
			return nil, ErrTimeout
		}
		n, err := d.port.Read(one[:])
		if err != nil {
			return nil, err
		}
		if n == 0 {
			continue
		}
		b := one[0]
		switch {
		case b == flag && !inFrame:
			inFrame = true
		case b == flag && len(d.rx) == 0:
			// Back-to-back flags: treat the second as the opener.
		case b == flag:
			return d.rx, nil
		case inFrame:
			if len(d.rx) >= maxFrameBytes {
				return nil, ErrFrame
			}
			d.rx = append(d.rx, b)
		}
	}
}
