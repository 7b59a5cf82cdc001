package sht31dev

import (
	"context"
	"time"

	"sensenode/drivers/sht31"
	"sensenode/errcode"
	"sensenode/services/sensors"
	"sensenode/types"
	"sensenode/x/mathx"
)

func init() { sensors.RegisterBuilder("sht31", builder{}) }

type Params struct {
	Addr   uint16 `mapstructure:"addr"`   // defaults to sht31.Address (0x44)
	Repeat string `mapstructure:"repeat"` // "high" (default), "medium" or "low"
}

type builder struct{}

func (builder) Build(in sensors.BuildInput) (sensors.BuildOutput, error) {
	var p Params
	if err := sensors.DecodeParams(in.Params, &p); err != nil {
		return sensors.BuildOutput{}, err
	}
	if in.Bus == "" {
		return sensors.BuildOutput{}, errcode.New(errcode.InvalidParams, "sht31.Build", "bus required")
	}
	bus, err := in.Buses.ByID(in.Bus)
	if err != nil {
		return sensors.BuildOutput{}, err
	}
	drv := sht31.New(bus)
	if p.Addr != 0 {
		drv.Address = p.Addr
	}
	switch p.Repeat {
	case "", "high":
		drv.Repeat = sht31.RepeatabilityHigh
	case "medium":
		drv.Repeat = sht31.RepeatabilityMedium
	case "low":
		drv.Repeat = sht31.RepeatabilityLow
	default:
		return sensors.BuildOutput{}, errcode.New(errcode.InvalidParams, "sht31.Build", "repeat "+p.Repeat)
	}
	return sensors.BuildOutput{Sensor: &Device{drv: drv}, Shared: true}, nil
}

// Device is a two-phase climate sensor: Arm starts a single-shot conversion,
// Read collects it.
type Device struct {
	drv *sht31.Device
}

var _ sensors.Armer = (*Device)(nil)

func (d *Device) Device() types.Device { return types.DeviceSht31 }

func (d *Device) Init(ctx context.Context) error { return d.drv.Configure() }

func (d *Device) Arm(ctx context.Context) error { return d.drv.Trigger() }

func (d *Device) Read(ctx context.Context) ([]types.Reading, error) {
	s, err := sensors.Poll(ctx, 5*time.Millisecond, sht31.ErrNotReady, d.drv.Collect)
	if err != nil {
		return nil, err
	}
	return []types.Reading{
		types.R(types.KindTemperature, s.Celsius()),
		types.R(types.KindHumidity, mathx.Clamp(s.RelHumidity(), 0, 100)),
	}, nil
}
