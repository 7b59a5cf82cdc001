package sensors

import "time"

// Defaults.
const (
	DefaultSettle         = time.Second
	DefaultReadTimeout    = 100 * time.Millisecond
	DefaultSetupTimeout   = 250 * time.Millisecond
	DefaultNoiseFloor     = 5 * time.Millisecond
	DefaultLightPeriod    = 50 * time.Millisecond
	DefaultChangeRatio    = 0.05
	DefaultReportInterval = time.Second
	DefaultFaultHoldoff   = time.Second
)

// SensorConfig describes one sensor instance.
type SensorConfig struct {
	Name         string         `mapstructure:"name"`
	Type         string         `mapstructure:"type"`
	Bus          string         `mapstructure:"bus"`
	Port         string         `mapstructure:"port"`
	SetupTimeout time.Duration  `mapstructure:"setup_timeout"`
	ReadTimeout  time.Duration  `mapstructure:"read_timeout"`
	Params       map[string]any `mapstructure:"params"`
}

// LightConfig is the fast-path light sensor and its report filter.
type LightConfig struct {
	SensorConfig `mapstructure:",squash"`

	Period         time.Duration `mapstructure:"period"`
	ChangeRatio    float32       `mapstructure:"change_ratio"`
	ReportInterval time.Duration `mapstructure:"report_interval"`
	FaultHoldoff   time.Duration `mapstructure:"fault_holdoff"`
}

// ButtonConfig binds a button identity to a platform input.
type ButtonConfig struct {
	Button string `mapstructure:"button"`
	Input  string `mapstructure:"input"`
}

// Config is the acquisition pipeline configuration.
type Config struct {
	Light   *LightConfig   `mapstructure:"light"`
	Buttons []ButtonConfig `mapstructure:"buttons"`
	Sensors []SensorConfig `mapstructure:"sensors"`

	Settle       time.Duration `mapstructure:"settle"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	SetupTimeout time.Duration `mapstructure:"setup_timeout"`
	NoiseFloor   time.Duration `mapstructure:"noise_floor"`
}

// WithDefaults fills zero fields.
func (c Config) WithDefaults() Config {
	if c.Settle <= 0 {
		c.Settle = DefaultSettle
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.SetupTimeout <= 0 {
		c.SetupTimeout = DefaultSetupTimeout
	}
	if c.NoiseFloor <= 0 {
		c.NoiseFloor = DefaultNoiseFloor
	}
	if c.Light != nil {
		l := *c.Light
		if l.Period <= 0 {
			l.Period = DefaultLightPeriod
		}
		if l.ChangeRatio <= 0 {
			l.ChangeRatio = DefaultChangeRatio
		}
		if l.ReportInterval <= 0 {
			l.ReportInterval = DefaultReportInterval
		}
		if l.FaultHoldoff <= 0 {
			l.FaultHoldoff = DefaultFaultHoldoff
		}
		c.Light = &l
	}
	return c
}
