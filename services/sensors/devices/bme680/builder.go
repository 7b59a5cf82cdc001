package bme680dev

import (
	"context"
	"time"

	"go.uber.org/zap"

	"sensenode/drivers/bme680"
	"sensenode/errcode"
	"sensenode/services/sensors"
	"sensenode/types"
)

func init() { sensors.RegisterBuilder("bme680", builder{}) }

type Params struct {
	Addr           uint16        `mapstructure:"addr"` // defaults to bme680.Address (0x76)
	HeaterTempC    uint16        `mapstructure:"heater_temp_c"`
	HeaterDuration time.Duration `mapstructure:"heater_duration"`
	AmbientC       float64       `mapstructure:"ambient_c"`
}

type builder struct{}

func (builder) Build(in sensors.BuildInput) (sensors.BuildOutput, error) {
	var p Params
	if err := sensors.DecodeParams(in.Params, &p); err != nil {
		return sensors.BuildOutput{}, err
	}
	if in.Bus == "" {
		return sensors.BuildOutput{}, errcode.New(errcode.InvalidParams, "bme680.Build", "bus required")
	}
	bus, err := in.Buses.ByID(in.Bus)
	if err != nil {
		return sensors.BuildOutput{}, err
	}
	d := &Device{
		drv: bme680.New(bus),
		cfg: bme680.Config{
			Address:        p.Addr,
			HeaterTempC:    p.HeaterTempC,
			HeaterDuration: p.HeaterDuration,
			AmbientC:       p.AmbientC,
		},
		log: in.Log,
	}
	// The reset, calibration readout and first heater cycle are slow.
	return sensors.BuildOutput{
		Sensor:       d,
		Shared:       true,
		SetupTimeout: 12 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
	}, nil
}

// Device reports barometric pressure and gas resistance. Temperature is
// left to the dedicated climate sensor.
type Device struct {
	drv *bme680.Device
	cfg bme680.Config
	log *zap.Logger
}

var _ sensors.Armer = (*Device)(nil)

func (d *Device) Device() types.Device { return types.DeviceBme680 }

func (d *Device) Init(ctx context.Context) error { return d.drv.Configure(d.cfg) }

// Arm starts a forced-mode conversion, heater cycle included.
func (d *Device) Arm(ctx context.Context) error { return d.drv.Trigger() }

func (d *Device) Read(ctx context.Context) ([]types.Reading, error) {
	s, err := sensors.Poll(ctx, 20*time.Millisecond, bme680.ErrNotReady, d.drv.Collect)
	if err != nil {
		return nil, err
	}
	out := []types.Reading{types.R(types.KindPressure, float32(s.Pascal))}
	if s.GasValid {
		out = append(out, types.R(types.KindGasResistance, float32(s.GasOhms)))
	} else {
		d.log.Debug("gas reading not valid, heater not stable")
	}
	return out, nil
}
