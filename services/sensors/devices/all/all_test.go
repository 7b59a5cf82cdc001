package all

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sensenode/errcode"
	"sensenode/mailbox"
	"sensenode/services/hal"
	"sensenode/services/hal/sim"
	"sensenode/services/sensors"
	"sensenode/types"
)

func TestAllBuildersRegistered(t *testing.T) {
	require.Equal(t, []string{
		"aht20", "bme280", "bme680", "max44009", "mhz14", "sht31", "shtc3", "sps30",
	}, sensors.Types())
}

func simPlatform(t *testing.T) *sim.Platform {
	t.Helper()
	p := sim.New(hal.Config{
		Name:   "sim",
		I2C:    map[string]string{"i2c0": "sim"},
		Serial: map[string]string{"uart0": "mhz14", "uart1": "sps30"},
		Inputs: map[string]string{"top_left": "sim"},
	}, zap.NewNop())
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestPipelineOnSimulatedBoard(t *testing.T) {
	plat := simPlatform(t)
	box := mailbox.New[types.Item](64)
	pl, err := sensors.Build(sensors.Options{
		Config: sensors.Config{
			Light: &sensors.LightConfig{
				SensorConfig: sensors.SensorConfig{Type: "max44009", Bus: "i2c0"},
				Period:       5 * time.Millisecond,
			},
			Sensors: []sensors.SensorConfig{
				{Type: "sht31", Bus: "i2c0"},
				{Type: "aht20", Bus: "i2c0"},
				{Type: "mhz14", Port: "uart0"},
				{Type: "sps30", Port: "uart1"},
			},
			Buttons: []sensors.ButtonConfig{{Button: "top_left", Input: "top_left"}},
			Settle:  10 * time.Millisecond,
		},
		Platform:  plat,
		Publisher: box,
		Log:       zap.NewNop(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- pl.Run(ctx) }()

	want := map[types.Kind]bool{
		types.KindBrightness: false, types.KindTemperature: false, types.KindHumidity: false,
		types.KindCO2: false, types.KindMassPM2_5: false, types.KindTypicalParticleSize: false,
		types.KindButtonPress: false,
	}
	btn, _ := plat.Button("top_left")
	go func() {
		time.Sleep(50 * time.Millisecond)
		btn.Press(30 * time.Millisecond)
	}()

	missing := len(want)
	for missing > 0 {
		it, err := box.Receive(ctx)
		require.NoError(t, err, "still missing %d kinds", missing)
		if f, ok := it.Payload.(types.Fault); ok {
			t.Fatalf("unexpected fault %v", f)
		}
		r := it.Payload.(types.Reading)
		if seen, tracked := want[r.Kind]; tracked && !seen {
			want[r.Kind] = true
			missing--
		}
	}
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestPipelineFailsSetupOnMissingPart(t *testing.T) {
	plat := simPlatform(t)
	box := mailbox.New[types.Item](8)
	// The simulated bus has no BME680 at 0x76.
	pl, err := sensors.Build(sensors.Options{
		Config: sensors.Config{
			Sensors: []sensors.SensorConfig{{Type: "bme680", Bus: "i2c0", SetupTimeout: time.Second}},
		},
		Platform:  plat,
		Publisher: box,
	})
	require.NoError(t, err)

	err = pl.Run(context.Background())
	var se *sensors.SetupError
	require.ErrorAs(t, err, &se)
	require.Equal(t, types.DeviceBme680, se.Device)
	require.Equal(t, errcode.SetupFailure, errcode.Of(err))
}

func TestAllFaultedEndsPipeline(t *testing.T) {
	plat := simPlatform(t)
	box := mailbox.New[types.Item](64)
	pl, err := sensors.Build(sensors.Options{
		Config: sensors.Config{
			Sensors: []sensors.SensorConfig{{Type: "sht31", Bus: "i2c0"}},
			Settle:  5 * time.Millisecond,
		},
		Platform:  plat,
		Publisher: box,
	})
	require.NoError(t, err)
	require.True(t, pl.Tracker().Tracks(types.DeviceSht31))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- pl.Run(ctx) }()

	// Let setup finish, then pull the part off the bus.
	_, err = box.Receive(ctx)
	require.NoError(t, err)
	bus, ok := plat.Bus("i2c0")
	require.True(t, ok)
	bus.SetFailing(0x44, true)

	err = <-done
	require.True(t, errcode.Is(err, errcode.AllBusesFaulted), "got %v", err)
}
