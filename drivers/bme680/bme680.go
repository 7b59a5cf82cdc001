// Package bme680 provides a driver for the Bosch BME680 gas, pressure,
// temperature and humidity sensor in forced mode.
//
//	d.Configure()          // reset, load calibration, program heater profile
//	d.Trigger()            // start one TPHG conversion
//	s, err := d.Collect()  // ErrNotReady until new data is flagged
//
// Compensation uses the floating-point formulas from the Bosch reference API.
package bme680

import (
	"encoding/binary"
	"errors"
	"time"

	"tinygo.org/x/drivers"

	"sensenode/x/mathx"
)

// I2C addresses (SDO low / high).
const (
	Address    = 0x76
	AddressAlt = 0x77
)

const (
	regStatus    = 0x1D
	regResHeat0  = 0x5A
	regGasWait0  = 0x64
	regCtrlGas1  = 0x71
	regCtrlHum   = 0x72
	regCtrlMeas  = 0x74
	regConfig    = 0x75
	regCoeff1    = 0x89
	regChipID    = 0xD0
	regReset     = 0xE0
	regCoeff2    = 0xE1
	regResHeatV  = 0x00
	regResHeatR  = 0x02
	regRangeSwEr = 0x04

	chipID       = 0x61
	resetCmd     = 0xB6
	runGas       = 0x10
	modeForced   = 0x01
	newDataBit   = 0x80
	gasValidBit  = 0x20
	heatStabBit  = 0x10
	fieldLen     = 15
	coeff1Len    = 25
	coeff2Len    = 16
	osrsT2x      = 0x02
	osrsP4x      = 0x03
	osrsH1x      = 0x01
	filterSize3  = 0x02
	maxHeaterC   = 400
	maxWaitCode  = 0xFF
	waitFactorMs = 0x3F
)

var (
	ErrChipID   = errors.New("bme680: unexpected chip id")
	ErrNotReady = errors.New("bme680: no new data")
)

// Config controls the heater profile. Zero fields take defaults.
type Config struct {
	Address        uint16
	HeaterTempC    uint16        // default 320
	HeaterDuration time.Duration // default 150 ms
	AmbientC       float64       // default 25
}

type calib struct {
	t1             float64
	t2, t3         float64
	p1, p2, p3, p4 float64
	p5, p6, p7, p8 float64
	p9, p10        float64
	gh1, gh2, gh3  float64

	resHeatRange float64
	resHeatVal   float64
	rangeSwErr   float64
}

// Device wraps an I2C connection to a BME680.
type Device struct {
	bus drivers.I2C
	cfg Config
	cal calib
	buf [coeff1Len + coeff2Len]byte
}

func New(bus drivers.I2C) *Device {
	return &Device{bus: bus, cfg: Config{Address: Address}}
}

// Configure resets the device, checks its identity, reads the calibration and
// programs oversampling and heater set-point 0.
func (d *Device) Configure(cfgs ...Config) error {
	if len(cfgs) > 0 {
		d.cfg = cfgs[0]
	}
	if d.cfg.Address == 0 {
		d.cfg.Address = Address
	}
	if d.cfg.HeaterTempC == 0 {
		d.cfg.HeaterTempC = 320
	}
	if d.cfg.HeaterDuration <= 0 {
		d.cfg.HeaterDuration = 150 * time.Millisecond
	}
	if d.cfg.AmbientC == 0 {
		d.cfg.AmbientC = 25
	}

	if err := d.write(regReset, resetCmd); err != nil {
		return err
	}
	time.Sleep(10 * time.Millisecond)

	id, err := d.read(regChipID, 1)
	if err != nil {
		return err
	}
	if id[0] != chipID {
		return ErrChipID
	}
	if err := d.readCalibration(); err != nil {
		return err
	}

	res := d.heaterResistance(d.cfg.HeaterTempC)
	wait := gasWait(d.cfg.HeaterDuration)
	for _, rv := range [][2]byte{
		{regCtrlHum, osrsH1x},
		{regConfig, filterSize3 << 2},
		{regResHeat0, res},
		{regGasWait0, wait},
		{regCtrlGas1, runGas},
		{regCtrlMeas, osrsT2x<<5 | osrsP4x<<2},
	} {
		if err := d.write(rv[0], rv[1]); err != nil {
			return err
		}
	}
	return nil
}

// ConversionTime is the nominal time from Trigger to new data.
func (d *Device) ConversionTime() time.Duration {
	return d.cfg.HeaterDuration + 40*time.Millisecond
}

// Trigger starts one forced-mode conversion.
func (d *Device) Trigger() error {
	return d.write(regCtrlMeas, osrsT2x<<5|osrsP4x<<2|modeForced)
}

// Collect reads and compensates the field data of the last conversion.
func (d *Device) Collect() (Sample, error) {
	b, err := d.read(regStatus, fieldLen)
	if err != nil {
		return Sample{}, err
	}
	if b[0]&newDataBit == 0 {
		return Sample{}, ErrNotReady
	}
	adcP := uint32(b[2])<<12 | uint32(b[3])<<4 | uint32(b[4])>>4
	adcT := uint32(b[5])<<12 | uint32(b[6])<<4 | uint32(b[7])>>4
	adcG := uint32(b[13])<<2 | uint32(b[14])>>6
	gasRange := b[14] & 0x0F

	tFine := d.cal.tFine(float64(adcT))
	s := Sample{
		Celsius:  tFine / 5120,
		Pascal:   d.cal.pressure(tFine, float64(adcP)),
		GasValid: b[14]&gasValidBit != 0 && b[14]&heatStabBit != 0,
	}
	if s.GasValid {
		s.GasOhms = d.cal.gasResistance(float64(adcG), gasRange)
	}
	return s, nil
}

// Sample is one compensated measurement.
type Sample struct {
	Celsius  float64
	Pascal   float64
	GasOhms  float64
	GasValid bool // heater reached its set-point and the gas reading is usable
}

func (d *Device) readCalibration() error {
	c1, err := d.read(regCoeff1, coeff1Len)
	if err != nil {
		return err
	}
	copy(d.buf[:], c1)
	c2, err := d.read(regCoeff2, coeff2Len)
	if err != nil {
		return err
	}
	copy(d.buf[coeff1Len:], c2)
	d.cal = parseCalib(d.buf[:])

	v, err := d.read(regResHeatV, 1)
	if err != nil {
		return err
	}
	d.cal.resHeatVal = float64(int8(v[0]))
	r, err := d.read(regResHeatR, 1)
	if err != nil {
		return err
	}
	d.cal.resHeatRange = float64((r[0] & 0x30) >> 4)
	e, err := d.read(regRangeSwEr, 1)
	if err != nil {
		return err
	}
	d.cal.rangeSwErr = float64(int8(e[0]&0xF0) >> 4)
	return nil
}

func parseCalib(c []byte) calib {
	u16 := func(i int) float64 { return float64(binary.LittleEndian.Uint16(c[i:])) }
	s16 := func(i int) float64 { return float64(int16(binary.LittleEndian.Uint16(c[i:]))) }
	s8 := func(i int) float64 { return float64(int8(c[i])) }
	return calib{
		t2:  s16(1),
		t3:  s8(3),
		p1:  u16(5),
		p2:  s16(7),
		p3:  s8(9),
		p4:  s16(11),
		p5:  s16(13),
		p7:  s8(15),
		p6:  s8(16),
		p8:  s16(19),
		p9:  s16(21),
		p10: float64(c[23]),
		t1:  u16(33),
		gh2: s16(35),
		gh1: s8(37),
		gh3: s8(38),
	}
}

func (c *calib) tFine(adcT float64) float64 {
	v1 := (adcT/16384 - c.t1/1024) * c.t2
	x := adcT/131072 - c.t1/8192
	v2 := x * x * c.t3 * 16
	return v1 + v2
}

func (c *calib) pressure(tFine, adcP float64) float64 {
	v1 := tFine/2 - 64000
	v2 := v1 * v1 * (c.p6 / 131072)
	v2 += v1 * c.p5 * 2
	v2 = v2/4 + c.p4*65536
	v1 = (c.p3*v1*v1/16384 + c.p2*v1) / 524288
	v1 = (1 + v1/32768) * c.p1
	if v1 == 0 {
		return 0
	}
	p := 1048576 - adcP
	p = (p - v2/4096) * 6250 / v1
	v1 = c.p9 * p * p / 2147483648
	v2 = p * (c.p8 / 32768)
	q := p / 256
	v3 := q * q * q * (c.p10 / 131072)
	return p + (v1+v2+v3+c.p7*128)/16
}

var (
	k1Range = [16]float64{0, 0, 0, 0, 0, -1, 0, -0.8, 0, 0, -0.2, -0.5, 0, -1, 0, 0}
	k2Range = [16]float64{0, 0, 0, 0, 0.1, 0.7, 0, -0.8, -0.1, 0, 0, 0, 0, 0, 0, 0}
)

func (c *calib) gasResistance(adcG float64, gasRange byte) float64 {
	v1 := 1340 + 5*c.rangeSwErr
	v2 := v1 * (1 + k1Range[gasRange]/100)
	v3 := 1 + k2Range[gasRange]/100
	return 1 / (v3 * 0.000000125 * float64(uint32(1)<<gasRange) * ((adcG-512)/v2 + 1))
}

func (d *Device) heaterResistance(targetC uint16) byte {
	t := float64(mathx.Min(targetC, maxHeaterC))
	c := &d.cal
	v1 := c.gh1/16 + 49
	v2 := c.gh2/32768*0.0005 + 0.00235
	v3 := c.gh3 / 1024
	v4 := v1 * (1 + v2*t)
	v5 := v4 + v3*d.cfg.AmbientC
	r := 3.4 * (v5*(4/(4+c.resHeatRange))*(1/(1+c.resHeatVal*0.002)) - 25)
	return byte(mathx.Clamp(r, 0, 255))
}

// gasWait encodes a heater duration as a 6-bit value and a ×4 multiplier.
func gasWait(dur time.Duration) byte {
	ms := dur.Milliseconds()
	if ms >= 0xFC0 {
		return maxWaitCode
	}
	factor := int64(0)
	for ms > waitFactorMs {
		ms /= 4
		factor++
	}
	return byte(ms + factor*64)
}

func (d *Device) write(reg, val byte) error {
	return d.bus.Tx(d.cfg.Address, []byte{reg, val}, nil)
}

func (d *Device) read(reg byte, n int) ([]byte, error) {
	b := make([]byte, n)
	if err := d.bus.Tx(d.cfg.Address, []byte{reg}, b); err != nil {
		return nil, err
	}
	return b, nil
}
