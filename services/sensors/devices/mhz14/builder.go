package mhz14dev

import (
	"context"
	"time"

	"sensenode/drivers/mhz"
	"sensenode/errcode"
	"sensenode/services/hal"
	"sensenode/services/sensors"
	"sensenode/types"
)

func init() { sensors.RegisterBuilder("mhz14", builder{}) }

type Params struct {
	// ABC sets automatic baseline correction at start-up; unset leaves the
	// sensor's stored setting alone.
	ABC *bool `mapstructure:"abc"`
}

type builder struct{}

func (builder) Build(in sensors.BuildInput) (sensors.BuildOutput, error) {
	var p Params
	if err := sensors.DecodeParams(in.Params, &p); err != nil {
		return sensors.BuildOutput{}, err
	}
	if in.Port == "" {
		return sensors.BuildOutput{}, errcode.New(errcode.InvalidParams, "mhz14.Build", "port required")
	}
	port, err := in.Platform.Serial(in.Port, mhz.Baud)
	if err != nil {
		return sensors.BuildOutput{}, err
	}
	return sensors.BuildOutput{Sensor: &Device{port: port, drv: mhz.New(port), abc: p.ABC}}, nil
}

// Device is the NDIR CO2 sensor on its own UART.
type Device struct {
	port hal.Serial
	drv  *mhz.Device
	abc  *bool
}

func (d *Device) Device() types.Device { return types.DeviceMhz14 }

func (d *Device) Init(ctx context.Context) error {
	if err := d.port.SetReadTimeout(10 * time.Millisecond); err != nil {
		return err
	}
	if err := d.port.ResetInput(); err != nil {
		return err
	}
	if d.abc != nil {
		return d.drv.SetABC(*d.abc)
	}
	return nil
}

func (d *Device) Read(ctx context.Context) ([]types.Reading, error) {
	ppm, err := d.drv.CO2(sensors.Budget(ctx, 100*time.Millisecond))
	if err != nil {
		return nil, err
	}
	return []types.Reading{types.R(types.KindCO2, float32(ppm))}, nil
}
