package bme680

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type regBus struct {
	regs [256]byte
}

func (b *regBus) Tx(addr uint16, w, r []byte) error {
	if len(w) == 2 {
		if w[0] != regReset {
			b.regs[w[0]] = w[1]
		}
		return nil
	}
	if len(w) == 1 {
		copy(r, b.regs[w[0]:])
	}
	return nil
}

func newCalibratedBus() *regBus {
	b := &regBus{}
	b.regs[regChipID] = chipID
	c := b.regs[regCoeff1:]
	put16 := func(i int, v int) { binary.LittleEndian.PutUint16(c[i:], uint16(int16(v))) }
	put16(1, 26519) // t2
	c[3] = 3        // t3
	binary.LittleEndian.PutUint16(c[5:], 36477)
	put16(7, -10685)
	c[9] = 88
	put16(11, 7136)
	put16(13, -101)
	c[15] = 38 // p7
	c[16] = 30 // p6
	put16(19, -1398)
	put16(21, -2864)
	c[23] = 30
	// Indices 25+ live in the second block.
	c2 := b.regs[regCoeff2-coeff1Len:]
	binary.LittleEndian.PutUint16(c2[33:], 26203) // t1
	return b
}

func setField(b *regBus, adcT, adcP, adcG uint32, gasRange byte, status byte, gasFlags byte) {
	f := b.regs[regStatus:]
	f[0] = status
	f[2] = byte(adcP >> 12)
	f[3] = byte(adcP >> 4)
	f[4] = byte(adcP << 4)
	f[5] = byte(adcT >> 12)
	f[6] = byte(adcT >> 4)
	f[7] = byte(adcT << 4)
	f[13] = byte(adcG >> 2)
	f[14] = byte(adcG<<6) | gasFlags | gasRange
}

func TestConfigure_ChipIDAndHeater(t *testing.T) {
	b := newCalibratedBus()
	d := New(b)
	require.NoError(t, d.Configure())

	require.Equal(t, byte(runGas), b.regs[regCtrlGas1])
	require.Equal(t, gasWait(150*time.Millisecond), b.regs[regGasWait0])
	require.NotZero(t, b.regs[regResHeat0])
	require.Equal(t, 26203.0, d.cal.t1)
	require.Equal(t, -10685.0, d.cal.p2)

	b.regs[regChipID] = 0x55
	require.ErrorIs(t, New(b).Configure(), ErrChipID)
}

func TestCollect_Compensation(t *testing.T) {
	b := newCalibratedBus()
	d := New(b)
	require.NoError(t, d.Configure())
	require.NoError(t, d.Trigger())
	require.Equal(t, byte(osrsT2x<<5|osrsP4x<<2|modeForced), b.regs[regCtrlMeas])

	setField(b, 500000, 380000, 600, 5, newDataBit, gasValidBit|heatStabBit)
	s, err := d.Collect()
	require.NoError(t, err)
	require.InDelta(t, 25.53, s.Celsius, 0.01)
	require.InDelta(t, 95104.5, s.Pascal, 1)
	require.True(t, s.GasValid)
	require.InDelta(t, 232818.2, s.GasOhms, 1)
}

func TestCollect_NotReadyAndUnstableHeater(t *testing.T) {
	b := newCalibratedBus()
	d := New(b)
	require.NoError(t, d.Configure())

	setField(b, 500000, 380000, 600, 5, 0, 0)
	_, err := d.Collect()
	require.ErrorIs(t, err, ErrNotReady)

	setField(b, 500000, 380000, 600, 5, newDataBit, gasValidBit)
	s, err := d.Collect()
	require.NoError(t, err)
	require.False(t, s.GasValid)
	require.Zero(t, s.GasOhms)
}

func TestGasWait(t *testing.T) {
	require.Equal(t, byte(63), gasWait(63*time.Millisecond))
	require.Equal(t, byte(64+37), gasWait(150*time.Millisecond))
	require.Equal(t, byte(0xFF), gasWait(5*time.Second))
}
