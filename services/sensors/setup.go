package sensors

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"sensenode/errcode"
	"sensenode/logger"
	"sensenode/types"
)

// unit is a built sensor with its resolved timeouts.
type unit struct {
	name         string
	sensor       Sensor
	shared       bool
	setupTimeout time.Duration
	readTimeout  time.Duration
}

// SetupError reports a sensor that could not be brought up. It ends the
// pipeline; setup is never retried.
type SetupError struct {
	Device types.Device
	Class  types.FaultClass // FaultSetupTimeout or FaultSetupFailure
	Err    error
}

func (e *SetupError) Error() string {
	s := "sensors: " + e.Class.String() + " on " + e.Device.String()
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *SetupError) Unwrap() error { return e.Err }

// Code maps the class onto the error taxonomy.
func (e *SetupError) Code() errcode.Code {
	if e.Class == types.FaultSetupTimeout {
		return errcode.SetupTimeout
	}
	return errcode.SetupFailure
}

// Fault is the telemetry form of the error.
func (e *SetupError) Fault() types.Fault {
	f := types.Fault{Device: e.Device, Class: e.Class}
	if e.Err != nil {
		f.Cause = e.Err.Error()
	}
	return f
}

// setup initialises every unit in order, each bounded by its setup timeout.
// The first failure stops setup.
func setup(ctx context.Context, log *zap.Logger, units []unit) error {
	for _, u := range units {
		dev := u.sensor.Device()
		start := time.Now()
		err := Bounded(ctx, u.setupTimeout, u.sensor.Init)
		switch {
		case err == nil:
			log.Info("sensor ready",
				zap.String(logger.FieldDevice, dev.String()),
				zap.String("sensor", u.name),
				zap.Duration(logger.FieldDuration, time.Since(start)))
			continue
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, ErrTimeout):
			return &SetupError{Device: dev, Class: types.FaultSetupTimeout, Err: err}
		default:
			return &SetupError{Device: dev, Class: types.FaultSetupFailure, Err: err}
		}
	}
	return nil
}
