// Package max44009 provides a driver for the MAX44009 ambient light sensor.
//
// The device is put in continuous mode by Configure; each Lux call then reads
// the latest conversion from the two lux registers.
//
// NOTE: I2C.Tx MUST perform a write followed by a repeated-start read when both
// w and r are provided, without releasing the bus. The MAX44009 only latches
// the high and low lux bytes consistently under a repeated start.
package max44009

import (
	"errors"
	"math"

	"tinygo.org/x/drivers"
)

// I2C addresses (A0 low / high).
const (
	Address    = 0x4A
	AddressAlt = 0x4B
)

const (
	regIntStatus = 0x00
	regConfig    = 0x02
	regLuxHigh   = 0x03
	regLuxLow    = 0x04

	cfgContinuous = 0x80
	cfgManual     = 0x40
)

// MaxLux is the largest representable value (exponent 14, full mantissa).
const MaxLux = 188006.4

var (
	ErrOverrange = errors.New("max44009: overrange")
	ErrProtocol  = errors.New("max44009: config readback mismatch")
)

// Device wraps an I2C connection to a MAX44009.
type Device struct {
	bus     drivers.I2C
	Address uint16
	buf     [2]byte
}

// New creates a Device. It does not touch the hardware.
func New(bus drivers.I2C) *Device {
	return &Device{bus: bus, Address: Address}
}

// Configure selects continuous 800 ms-integration automatic mode and verifies
// the write by reading the register back.
func (d *Device) Configure() error {
	if err := d.bus.Tx(d.Address, []byte{regConfig, cfgContinuous}, nil); err != nil {
		return err
	}
	got := d.buf[:1]
	if err := d.bus.Tx(d.Address, []byte{regConfig}, got); err != nil {
		return err
	}
	if got[0]&(cfgContinuous|cfgManual) != cfgContinuous {
		return ErrProtocol
	}
	return nil
}

// RawLux returns the two lux register bytes.
func (d *Device) RawLux() (hi, lo byte, err error) {
	if err = d.bus.Tx(d.Address, []byte{regLuxHigh}, d.buf[:1]); err != nil {
		return 0, 0, err
	}
	hi = d.buf[0]
	if err = d.bus.Tx(d.Address, []byte{regLuxLow}, d.buf[:1]); err != nil {
		return 0, 0, err
	}
	return hi, d.buf[0], nil
}

// Lux reads the current illuminance.
func (d *Device) Lux() (float32, error) {
	hi, lo, err := d.RawLux()
	if err != nil {
		return 0, err
	}
	return Decode(hi, lo)
}

// Decode converts the lux register pair to lux. An exponent of 15 marks an
// overrange condition.
func Decode(hi, lo byte) (float32, error) {
	exp := hi >> 4
	if exp == 0x0F {
		return 0, ErrOverrange
	}
	mant := uint32(hi&0x0F)<<4 | uint32(lo&0x0F)
	return float32(math.Ldexp(float64(mant)*0.045, int(exp))), nil
}
