package shtc3dev

import (
	"context"

	"tinygo.org/x/drivers/shtc3"

	"sensenode/errcode"
	"sensenode/services/sensors"
	"sensenode/types"
	"sensenode/x/mathx"
)

func init() { sensors.RegisterBuilder("shtc3", builder{}) }

type builder struct{}

func (builder) Build(in sensors.BuildInput) (sensors.BuildOutput, error) {
	if in.Bus == "" {
		return sensors.BuildOutput{}, errcode.New(errcode.InvalidParams, "shtc3.Build", "bus required")
	}
	bus, err := in.Buses.ByID(in.Bus)
	if err != nil {
		return sensors.BuildOutput{}, err
	}
	return sensors.BuildOutput{Sensor: &Device{drv: shtc3.New(bus)}, Shared: true}, nil
}

// Device wraps the tinygo SHTC3 driver. The part sleeps between reads.
type Device struct {
	drv shtc3.Device
}

func (d *Device) Device() types.Device { return types.DeviceShtc3 }

func (d *Device) Init(ctx context.Context) error {
	if err := d.drv.WakeUp(); err != nil {
		return err
	}
	return d.drv.Sleep()
}

func (d *Device) Read(ctx context.Context) ([]types.Reading, error) {
	if err := d.drv.WakeUp(); err != nil {
		return nil, err
	}
	defer func() { _ = d.drv.Sleep() }()

	tmc, rhx100, err := d.drv.ReadTemperatureHumidity()
	if err != nil {
		return nil, err
	}
	// tmc is milli-°C, rhx100 hundredths of a percent.
	return []types.Reading{
		types.R(types.KindTemperature, float32(tmc)/1000),
		types.R(types.KindHumidity, float32(mathx.Clamp(rhx100, 0, 10000))/100),
	}, nil
}
