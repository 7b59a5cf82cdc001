package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sensenode/drivers/aht20"
	"sensenode/drivers/max44009"
	"sensenode/drivers/mhz"
	"sensenode/drivers/sht31"
	"sensenode/drivers/sps30"
	"sensenode/services/hal"
)

func newPlatform(t *testing.T) *Platform {
	t.Helper()
	p := New(hal.Config{
		Name:   "sim",
		I2C:    map[string]string{"i2c0": "sim"},
		Serial: map[string]string{"uart0": "mhz14", "uart1": "sps30"},
		Inputs: map[string]string{"top_left": "sim"},
		Seed:   0,
	}, zap.NewNop())
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestRegistered(t *testing.T) {
	require.Contains(t, hal.Platforms(), "sim")
}

func TestI2CSensorsRespondToRealDrivers(t *testing.T) {
	p := newPlatform(t)
	bus, err := p.I2C("i2c0")
	require.NoError(t, err)

	p.Env.SetLight(812.5)
	light := max44009.New(bus)
	require.NoError(t, light.Configure())
	lux, err := light.Lux()
	require.NoError(t, err)
	require.InEpsilon(t, 812.5, lux, 0.01)

	sht := sht31.New(bus)
	require.NoError(t, sht.Configure())
	require.NoError(t, sht.Trigger())
	s, err := sht.Collect()
	require.NoError(t, err)
	require.InDelta(t, 21.5, s.Celsius(), 2)

	aht := aht20.New(bus)
	require.NoError(t, aht.Configure())
	require.NoError(t, aht.Trigger())
	a, err := aht.Collect()
	require.NoError(t, err)
	require.InDelta(t, 45, a.RelHumidity(), 6)

	_, err = p.I2C("i2c9")
	require.Error(t, err)
}

func TestFailingAddressNacks(t *testing.T) {
	p := newPlatform(t)
	raw, err := p.I2C("i2c0")
	require.NoError(t, err)
	b, _ := p.Bus("i2c0")
	b.SetFailing(0x44, true)
	require.ErrorIs(t, sht31.New(raw).Trigger(), ErrNack)
	b.SetFailing(0x44, false)
	require.NoError(t, sht31.New(raw).Trigger())
}

func TestSerialSensors(t *testing.T) {
	p := newPlatform(t)

	port, err := p.Serial("uart0", mhz.Baud)
	require.NoError(t, err)
	ppm, err := mhz.New(port).CO2(50 * time.Millisecond)
	require.NoError(t, err)
	require.Greater(t, ppm, uint16(300))

	port, err = p.Serial("uart1", sps30.Baud)
	require.NoError(t, err)
	d := sps30.New(port)
	require.NoError(t, d.Start())
	smp, ok, err := d.Read(50 * time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	require.Greater(t, smp.MassPM2_5, float32(0))
}

func TestInputEdges(t *testing.T) {
	p := newPlatform(t)
	in, err := p.Input("top_left")
	require.NoError(t, err)
	btn, _ := p.Button("top_left")

	go btn.Press(5 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, in.WaitForRisingEdge(ctx))
	require.NoError(t, in.WaitForFallingEdge(ctx))
}

func TestSoftWatchdogExpires(t *testing.T) {
	w := NewWatchdog(zap.NewNop())
	fired := make(chan struct{}, 1)
	w.OnExpire = func() { fired <- struct{}{} }

	require.NoError(t, w.Arm(30*time.Millisecond))
	for i := 0; i < 3; i++ {
		time.Sleep(10 * time.Millisecond)
		require.NoError(t, w.Pet())
	}
	select {
	case <-fired:
		t.Fatal("fired while being petted")
	default:
	}

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("watchdog did not fire once petting stopped")
	}
	require.Equal(t, 3, w.Pets())
}
