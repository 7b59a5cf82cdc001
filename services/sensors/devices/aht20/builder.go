package aht20dev

import (
	"context"
	"time"

	"sensenode/drivers/aht20"
	"sensenode/errcode"
	"sensenode/services/sensors"
	"sensenode/types"
	"sensenode/x/mathx"
)

func init() { sensors.RegisterBuilder("aht20", builder{}) }

type Params struct {
	Addr uint16 `mapstructure:"addr"` // defaults to aht20.Address (0x38)
}

type builder struct{}

func (builder) Build(in sensors.BuildInput) (sensors.BuildOutput, error) {
	var p Params
	if err := sensors.DecodeParams(in.Params, &p); err != nil {
		return sensors.BuildOutput{}, err
	}
	if in.Bus == "" {
		return sensors.BuildOutput{}, errcode.New(errcode.InvalidParams, "aht20.Build", "bus required")
	}
	bus, err := in.Buses.ByID(in.Bus)
	if err != nil {
		return sensors.BuildOutput{}, err
	}
	drv := aht20.New(bus)
	if p.Addr != 0 {
		drv.Address = p.Addr
	}
	return sensors.BuildOutput{Sensor: &Device{drv: drv}, Shared: true}, nil
}

type Device struct {
	drv *aht20.Device
}

var _ sensors.Armer = (*Device)(nil)

func (d *Device) Device() types.Device { return types.DeviceAht20 }

// Init calibrates the part if needed; it takes up to a few tens of ms.
func (d *Device) Init(ctx context.Context) error { return d.drv.Configure() }

func (d *Device) Arm(ctx context.Context) error { return d.drv.Trigger() }

func (d *Device) Read(ctx context.Context) ([]types.Reading, error) {
	s, err := sensors.Poll(ctx, 10*time.Millisecond, aht20.ErrNotReady, d.drv.Collect)
	if err != nil {
		return nil, err
	}
	return []types.Reading{
		types.R(types.KindTemperature, mathx.Clamp(s.Celsius(), -50, 150)),
		types.R(types.KindHumidity, mathx.Clamp(s.RelHumidity(), 0, 100)),
	}, nil
}
