package bme280dev

import (
	"context"

	"github.com/cockroachdb/errors"
	"tinygo.org/x/drivers/bme280"

	"sensenode/errcode"
	"sensenode/services/sensors"
	"sensenode/types"
)

func init() { sensors.RegisterBuilder("bme280", builder{}) }

var ErrNotFound = errors.New("bme280: device not found")

type Params struct {
	Addr     uint16 `mapstructure:"addr"`     // defaults to the driver's 0x77
	Humidity bool   `mapstructure:"humidity"` // also publish temperature and humidity
}

type builder struct{}

func (builder) Build(in sensors.BuildInput) (sensors.BuildOutput, error) {
	var p Params
	if err := sensors.DecodeParams(in.Params, &p); err != nil {
		return sensors.BuildOutput{}, err
	}
	if in.Bus == "" {
		return sensors.BuildOutput{}, errcode.New(errcode.InvalidParams, "bme280.Build", "bus required")
	}
	bus, err := in.Buses.ByID(in.Bus)
	if err != nil {
		return sensors.BuildOutput{}, err
	}
	d := &Device{drv: bme280.New(bus), climate: p.Humidity}
	if p.Addr != 0 {
		d.drv.Address = p.Addr
	}
	return sensors.BuildOutput{Sensor: d, Shared: true}, nil
}

// Device is a pressure sensor, optionally doubling as the climate sensor.
type Device struct {
	drv     bme280.Device
	climate bool
}

func (d *Device) Device() types.Device { return types.DeviceBme280 }

func (d *Device) Init(ctx context.Context) error {
	if !d.drv.Connected() {
		return ErrNotFound
	}
	d.drv.Configure()
	return nil
}

func (d *Device) Read(ctx context.Context) ([]types.Reading, error) {
	mpa, err := d.drv.ReadPressure()
	if err != nil {
		return nil, err
	}
	out := []types.Reading{types.R(types.KindPressure, float32(mpa)/1000)}
	if !d.climate {
		return out, nil
	}
	tmc, err := d.drv.ReadTemperature()
	if err != nil {
		return nil, err
	}
	rh, err := d.drv.ReadHumidity()
	if err != nil {
		return nil, err
	}
	return append(out,
		types.R(types.KindTemperature, float32(tmc)/1000),
		types.R(types.KindHumidity, float32(rh)/100),
	), nil
}
