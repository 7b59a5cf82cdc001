package sensors

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"go.uber.org/zap"

	"sensenode/errcode"
	"sensenode/services/hal"
)

// BuildInput is handed to a builder to construct one sensor.
type BuildInput struct {
	Name   string
	Type   string
	Bus    string // I²C bus id, for bus-attached parts
	Port   string // serial port id, for UART parts
	Params map[string]any

	Buses    *hal.Buses
	Platform hal.Platform
	Log      *zap.Logger
}

// BuildOutput is returned by a builder.
type BuildOutput struct {
	Sensor Sensor
	// Shared marks sensors on a shared I²C bus; they are members of the
	// bus fault tracker.
	Shared bool
	// Defaults used when the configuration leaves them unset.
	SetupTimeout time.Duration
	ReadTimeout  time.Duration
}

// Builder constructs a Sensor from configuration and platform resources.
type Builder interface {
	Build(in BuildInput) (BuildOutput, error)
}

var (
	muBuilders sync.RWMutex
	builders   = map[string]Builder{}
)

// RegisterBuilder installs a builder for a sensor type string.
// It panics on duplicate registration to catch mistakes at start-up.
func RegisterBuilder(sensorType string, b Builder) {
	muBuilders.Lock()
	defer muBuilders.Unlock()
	if sensorType == "" {
		panic("sensors: empty sensor type for builder")
	}
	if _, exists := builders[sensorType]; exists {
		panic(fmt.Sprintf("sensors: builder already registered for type %q", sensorType))
	}
	builders[sensorType] = b
}

func findBuilder(sensorType string) (Builder, bool) {
	muBuilders.RLock()
	defer muBuilders.RUnlock()
	b, ok := builders[sensorType]
	return b, ok
}

// Types lists registered sensor types.
func Types() []string {
	muBuilders.RLock()
	defer muBuilders.RUnlock()
	out := make([]string, 0, len(builders))
	for t := range builders {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// DecodeParams decodes a free-form params map into out. Durations may be
// given as strings ("150ms") and numbers as strings.
func DecodeParams(params map[string]any, out any) error {
	if len(params) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(params); err != nil {
		return errcode.Wrap(errcode.InvalidParams, "sensors.DecodeParams", err)
	}
	return nil
}

// build resolves and runs the builder for c.
func build(c SensorConfig, buses *hal.Buses, p hal.Platform, log *zap.Logger) (unit, error) {
	b, ok := findBuilder(c.Type)
	if !ok {
		return unit{}, errcode.New(errcode.UnknownSensorType, "sensors.build", c.Type)
	}
	name := c.Name
	if name == "" {
		name = c.Type
	}
	out, err := b.Build(BuildInput{
		Name:     name,
		Type:     c.Type,
		Bus:      c.Bus,
		Port:     c.Port,
		Params:   c.Params,
		Buses:    buses,
		Platform: p,
		Log:      log.With(zap.String("sensor", name)),
	})
	if err != nil {
		return unit{}, err
	}
	u := unit{
		name:         name,
		sensor:       out.Sensor,
		shared:       out.Shared,
		setupTimeout: firstNonZero(c.SetupTimeout, out.SetupTimeout),
		readTimeout:  firstNonZero(c.ReadTimeout, out.ReadTimeout),
	}
	return u, nil
}

func firstNonZero(ds ...time.Duration) time.Duration {
	for _, d := range ds {
		if d > 0 {
			return d
		}
	}
	return 0
}
