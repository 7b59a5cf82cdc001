package max44009dev

import (
	"context"

	"sensenode/drivers/max44009"
	"sensenode/errcode"
	"sensenode/services/sensors"
	"sensenode/types"
)

func init() { sensors.RegisterBuilder("max44009", builder{}) }

type Params struct {
	Addr uint16 `mapstructure:"addr"` // defaults to max44009.Address (0x4A)
}

type builder struct{}

func (builder) Build(in sensors.BuildInput) (sensors.BuildOutput, error) {
	var p Params
	if err := sensors.DecodeParams(in.Params, &p); err != nil {
		return sensors.BuildOutput{}, err
	}
	if in.Bus == "" {
		return sensors.BuildOutput{}, errcode.New(errcode.InvalidParams, "max44009.Build", "bus required")
	}
	bus, err := in.Buses.ByID(in.Bus)
	if err != nil {
		return sensors.BuildOutput{}, err
	}
	drv := max44009.New(bus)
	if p.Addr != 0 {
		drv.Address = p.Addr
	}
	return sensors.BuildOutput{Sensor: &Device{drv: drv}, Shared: true}, nil
}

// Device is the ambient light sensor. It serves the fast path through Lux
// and can also be polled as a slow sensor.
type Device struct {
	drv *max44009.Device
}

var _ sensors.Light = (*Device)(nil)

func (d *Device) Device() types.Device { return types.DeviceMax44009 }

// Init puts the part in continuous mode.
func (d *Device) Init(ctx context.Context) error { return d.drv.Configure() }

func (d *Device) Lux(ctx context.Context) (float32, error) { return d.drv.Lux() }

func (d *Device) Read(ctx context.Context) ([]types.Reading, error) {
	lux, err := d.drv.Lux()
	if err != nil {
		return nil, err
	}
	return []types.Reading{types.R(types.KindBrightness, lux)}, nil
}
