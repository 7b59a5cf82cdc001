package sim

import (
	"errors"
	"math"
	"sync"

	"sensenode/drivers/sht31"
)

// ErrNack is returned for transactions to absent or failing addresses.
var ErrNack = errors.New("sim: i2c nack")

// Bus is a simulated I²C bus carrying a MAX44009, an SHT31 and an AHT20 at
// their default addresses.
type Bus struct {
	mu      sync.Mutex
	env     *Environment
	failing map[uint16]bool

	maxPtr  byte
	maxCfg  byte
	shtOut  []byte
	ahtOut  []byte
	present map[uint16]bool
}

const (
	addrMax44009 = 0x4A
	addrSht31    = 0x44
	addrAht20    = 0x38
)

func NewBus(env *Environment) *Bus {
	return &Bus{
		env:     env,
		failing: map[uint16]bool{},
		present: map[uint16]bool{addrMax44009: true, addrSht31: true, addrAht20: true},
	}
}

// SetFailing makes every transaction to addr NACK until cleared.
func (b *Bus) SetFailing(addr uint16, fail bool) {
	b.mu.Lock()
	b.failing[addr] = fail
	b.mu.Unlock()
}

func (b *Bus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.present[addr] || b.failing[addr] {
		return ErrNack
	}
	switch addr {
	case addrMax44009:
		return b.max44009(w, r)
	case addrSht31:
		return b.sht31(w, r)
	default:
		return b.aht20(w, r)
	}
}

func (b *Bus) max44009(w, r []byte) error {
	if len(w) > 0 {
		b.maxPtr = w[0]
		if len(w) > 1 && w[0] == 0x02 {
			b.maxCfg = w[1]
		}
	}
	if len(r) == 0 {
		return nil
	}
	hi, lo := encodeLux(b.env.Lux())
	for i := range r {
		switch b.maxPtr + byte(i) {
		case 0x02:
			r[i] = b.maxCfg
		case 0x03:
			r[i] = hi
		case 0x04:
			r[i] = lo
		default:
			r[i] = 0
		}
	}
	return nil
}

func (b *Bus) sht31(w, r []byte) error {
	if len(w) >= 2 {
		switch {
		case w[0] == 0x24:
			t, h := b.env.Climate()
			tw := uint16(math.Round(float64((t + 45) / 175 * 65535)))
			hw := uint16(math.Round(float64(h / 100 * 65535)))
			b.shtOut = appendWord(appendWord(nil, tw), hw)
		case w[0] == 0xF3 && w[1] == 0x2D:
			copy(r, appendWord(nil, 0x0000))
		}
		return nil
	}
	if len(r) > 0 {
		if b.shtOut == nil {
			return ErrNack
		}
		copy(r, b.shtOut)
		b.shtOut = nil
	}
	return nil
}

func (b *Bus) aht20(w, r []byte) error {
	if len(w) > 0 {
		switch w[0] {
		case 0x71:
			if len(r) > 0 {
				r[0] = 0x18
			}
		case 0xAC:
			t, h := b.env.Climate()
			hr := uint32(float64(h) / 100 * 0x100000)
			tr := uint32(float64(t+50) / 200 * 0x100000)
			f := []byte{
				0x18,
				byte(hr >> 12), byte(hr >> 4),
				byte(hr<<4) | byte(tr>>16)&0x0F,
				byte(tr >> 8), byte(tr),
			}
			b.ahtOut = append(f, sht31.CRC8(f))
		}
		return nil
	}
	copy(r, b.ahtOut)
	return nil
}

func appendWord(dst []byte, v uint16) []byte {
	w := []byte{byte(v >> 8), byte(v)}
	return append(dst, w[0], w[1], sht31.CRC8(w))
}

// encodeLux is the inverse of max44009.Decode, choosing the smallest exponent
// whose mantissa fits in 8 bits.
func encodeLux(lux float32) (hi, lo byte) {
	if lux < 0 {
		lux = 0
	}
	for e := 0; e < 15; e++ {
		m := math.Round(float64(lux) / (0.045 * math.Ldexp(1, e)))
		if m <= 255 {
			mant := byte(m)
			return byte(e)<<4 | mant>>4, mant & 0x0F
		}
	}
	return 0xEF, 0x0F
}
