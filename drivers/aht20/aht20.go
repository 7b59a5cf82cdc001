// Package aht20 provides a driver for the AHT20 temperature/humidity sensor.
// It exposes a two-phase measurement API:
//
//	d.Trigger()            // start a measurement (fast)
//	s, err := d.Collect()  // fetch when ready; returns ErrNotReady while busy
//
// NOTE: I2C.Tx MUST perform a write followed by a repeated-start read when both
// w and r are provided, without releasing the bus.
package aht20

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"
)

// I2C address.
const Address = 0x38

const (
	cmdTrigger    = 0xAC
	cmdInitialize = 0xBE
	cmdSoftReset  = 0xBA
	cmdStatus     = 0x71

	statusBusy       = 0x80
	statusCalibrated = 0x08
)

// TriggerHint is the nominal conversion time.
const TriggerHint = 80 * time.Millisecond

var (
	ErrNotReady      = errors.New("aht20: not ready")
	ErrNotCalibrated = errors.New("aht20: calibration not loaded")
	ErrCRC           = errors.New("aht20: crc mismatch")
)

// Device wraps an I2C connection to an AHT20 device.
type Device struct {
	bus     drivers.I2C
	Address uint16
	buf     [7]byte
}

// New creates a Device. It does not touch the hardware.
func New(bus drivers.I2C) *Device {
	return &Device{bus: bus, Address: Address}
}

// Configure loads the calibration if the status word says it is missing.
func (d *Device) Configure() error {
	st, err := d.Status()
	if err != nil {
		return err
	}
	if st&statusCalibrated != 0 {
		return nil
	}
	if err := d.bus.Tx(d.Address, []byte{cmdInitialize, 0x08, 0x00}, nil); err != nil {
		return err
	}
	time.Sleep(10 * time.Millisecond)
	if st, err = d.Status(); err != nil {
		return err
	}
	if st&statusCalibrated == 0 {
		return ErrNotCalibrated
	}
	return nil
}

// Reset issues a soft reset. Give the device ~20 ms before using it.
func (d *Device) Reset() error {
	return d.bus.Tx(d.Address, []byte{cmdSoftReset}, nil)
}

// Status reads the status byte.
func (d *Device) Status() (byte, error) {
	data := d.buf[:1]
	if err := d.bus.Tx(d.Address, []byte{cmdStatus}, data); err != nil {
		return 0, err
	}
	return data[0], nil
}

// Trigger starts a measurement.
func (d *Device) Trigger() error {
	return d.bus.Tx(d.Address, []byte{cmdTrigger, 0x33, 0x00}, nil)
}

// Collect reads one measurement. ErrNotReady is returned while the device is
// still converting.
func (d *Device) Collect() (Sample, error) {
	data := d.buf[:]
	if err := d.bus.Tx(d.Address, nil, data); err != nil {
		return Sample{}, err
	}
	if data[0]&statusBusy != 0 {
		return Sample{}, ErrNotReady
	}
	if data[0]&statusCalibrated == 0 {
		return Sample{}, ErrNotCalibrated
	}
	if crc8(data[:6]) != data[6] {
		return Sample{}, ErrCRC
	}
	return Sample{
		RawHumidity: uint32(data[1])<<12 | uint32(data[2])<<4 | uint32(data[3])>>4,
		RawTemp:     uint32(data[3]&0x0F)<<16 | uint32(data[4])<<8 | uint32(data[5]),
	}, nil
}

// Sample holds the raw 20-bit words of one measurement.
type Sample struct {
	RawHumidity uint32
	RawTemp     uint32
}

// RelHumidity returns %RH.
func (s Sample) RelHumidity() float32 {
	return float32(s.RawHumidity) * 100 / 0x100000
}

// Celsius returns °C.
func (s Sample) Celsius() float32 {
	return float32(s.RawTemp)*200/0x100000 - 50
}

// crc8 uses poly 0x31, init 0xFF.
func crc8(data []byte) byte {
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
