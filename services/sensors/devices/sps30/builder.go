package sps30dev

import (
	"context"
	"time"

	"sensenode/drivers/sps30"
	"sensenode/errcode"
	"sensenode/services/hal"
	"sensenode/services/sensors"
	"sensenode/types"
)

func init() { sensors.RegisterBuilder("sps30", builder{}) }

type builder struct{}

func (builder) Build(in sensors.BuildInput) (sensors.BuildOutput, error) {
	if in.Port == "" {
		return sensors.BuildOutput{}, errcode.New(errcode.InvalidParams, "sps30.Build", "port required")
	}
	port, err := in.Platform.Serial(in.Port, sps30.Baud)
	if err != nil {
		return sensors.BuildOutput{}, err
	}
	return sensors.BuildOutput{Sensor: &Device{port: port, drv: sps30.New(port)}}, nil
}

// Device is the particulate matter sensor on its own UART.
type Device struct {
	port hal.Serial
	drv  *sps30.Device
}

func (d *Device) Device() types.Device { return types.DeviceSps30 }

// Init starts continuous measurement with float output.
func (d *Device) Init(ctx context.Context) error {
	if err := d.port.SetReadTimeout(10 * time.Millisecond); err != nil {
		return err
	}
	return d.drv.Start()
}

// Read returns no readings, and no error, when the sensor has nothing new.
func (d *Device) Read(ctx context.Context) ([]types.Reading, error) {
	s, ok, err := d.drv.Read(sensors.Budget(ctx, 100*time.Millisecond))
	if err != nil || !ok {
		return nil, err
	}
	return Readings(s), nil
}

// Readings flattens a sample in datasheet order.
func Readings(s sps30.Sample) []types.Reading {
	return []types.Reading{
		types.R(types.KindMassPM1_0, s.MassPM1_0),
		types.R(types.KindMassPM2_5, s.MassPM2_5),
		types.R(types.KindMassPM4_0, s.MassPM4_0),
		types.R(types.KindMassPM10, s.MassPM10),
		types.R(types.KindNumberPM0_5, s.NumPM0_5),
		types.R(types.KindNumberPM1_0, s.NumPM1_0),
		types.R(types.KindNumberPM2_5, s.NumPM2_5),
		types.R(types.KindNumberPM4_0, s.NumPM4_0),
		types.R(types.KindNumberPM10, s.NumPM10),
		types.R(types.KindTypicalParticleSize, s.TypicalSize),
	}
}
