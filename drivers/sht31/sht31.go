// Package sht31 provides a driver for the Sensirion SHT3x temperature and
// humidity sensors. It exposes a two-phase single-shot API:
//
//	d.Trigger()            // start a conversion (fast, no clock stretching)
//	s, err := d.Collect()  // fetch once the conversion time has elapsed
//
// Collect returns ErrNotReady while the conversion is still running (the
// device NACKs the read).
package sht31

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"
)

// I2C addresses (ADDR low / high).
const (
	Address    = 0x44
	AddressAlt = 0x45
)

// Repeatability selects the single-shot mode (no clock stretching).
type Repeatability uint8

const (
	RepeatabilityHigh Repeatability = iota
	RepeatabilityMedium
	RepeatabilityLow
)

var singleShot = [...][2]byte{
	RepeatabilityHigh:   {0x24, 0x00},
	RepeatabilityMedium: {0x24, 0x0B},
	RepeatabilityLow:    {0x24, 0x16},
}

var conversion = [...]time.Duration{
	RepeatabilityHigh:   16 * time.Millisecond,
	RepeatabilityMedium: 7 * time.Millisecond,
	RepeatabilityLow:    5 * time.Millisecond,
}

var (
	cmdSoftReset   = []byte{0x30, 0xA2}
	cmdReadStatus  = []byte{0xF3, 0x2D}
	cmdClearStatus = []byte{0x30, 0x41}
)

var (
	ErrCRC      = errors.New("sht31: crc mismatch")
	ErrNotReady = errors.New("sht31: not ready")
)

// Device wraps an I2C connection to an SHT3x.
type Device struct {
	bus     drivers.I2C
	Address uint16
	Repeat  Repeatability

	triggered time.Time
	buf       [6]byte
}

func New(bus drivers.I2C) *Device {
	return &Device{bus: bus, Address: Address}
}

// Configure soft-resets the sensor and checks that its status word is
// readable and intact.
func (d *Device) Configure() error {
	if err := d.bus.Tx(d.Address, cmdSoftReset, nil); err != nil {
		return err
	}
	time.Sleep(2 * time.Millisecond)
	if _, err := d.Status(); err != nil {
		return err
	}
	return d.bus.Tx(d.Address, cmdClearStatus, nil)
}

// Status reads the 16-bit status register.
func (d *Device) Status() (uint16, error) {
	b := d.buf[:3]
	if err := d.bus.Tx(d.Address, cmdReadStatus, b); err != nil {
		return 0, err
	}
	if CRC8(b[:2]) != b[2] {
		return 0, ErrCRC
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}

// Trigger starts a single-shot conversion.
func (d *Device) Trigger() error {
	cmd := singleShot[d.Repeat]
	if err := d.bus.Tx(d.Address, cmd[:], nil); err != nil {
		return err
	}
	d.triggered = time.Now()
	return nil
}

// ConversionTime is the nominal wait between Trigger and Collect.
func (d *Device) ConversionTime() time.Duration { return conversion[d.Repeat] }

// Collect reads the result of the last Trigger.
func (d *Device) Collect() (Sample, error) {
	if d.triggered.IsZero() {
		return Sample{}, ErrNotReady
	}
	b := d.buf[:6]
	if err := d.bus.Tx(d.Address, nil, b); err != nil {
		if time.Since(d.triggered) < d.ConversionTime() {
			return Sample{}, ErrNotReady
		}
		return Sample{}, err
	}
	if CRC8(b[0:2]) != b[2] || CRC8(b[3:5]) != b[5] {
		return Sample{}, ErrCRC
	}
	d.triggered = time.Time{}
	return Sample{
		RawTemp:     uint16(b[0])<<8 | uint16(b[1]),
		RawHumidity: uint16(b[3])<<8 | uint16(b[4]),
	}, nil
}

// Sample holds the raw words of one conversion.
type Sample struct {
	RawTemp     uint16
	RawHumidity uint16
}

// Celsius converts the raw temperature word.
func (s Sample) Celsius() float32 {
	return -45 + 175*float32(s.RawTemp)/65535
}

// RelHumidity converts the raw humidity word to %RH.
func (s Sample) RelHumidity() float32 {
	return 100 * float32(s.RawHumidity) / 65535
}

// CRC8 is the Sensirion checksum (poly 0x31, init 0xFF).
func CRC8(data []byte) byte {
	crc := byte(0xFF)
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
