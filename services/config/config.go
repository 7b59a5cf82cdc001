// Package config resolves the node and collector configuration. Each board
// has an embedded YAML default; a config file, SENSENODE_* environment
// variables and command-line flags are layered on top with viper.
package config

import (
	"bytes"
	"os"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"sensenode/errcode"
	"sensenode/logger"
	"sensenode/services/collector"
	"sensenode/services/forward"
	"sensenode/services/hal"
	"sensenode/services/network"
	"sensenode/services/sensors"
	"sensenode/services/watchdog"
)

const (
	EnvPrefix    = "SENSENODE"
	DefaultBoard = "sim"
)

// EmbeddedConfigLookup allows overriding how board defaults are resolved.
var EmbeddedConfigLookup = func(board string) ([]byte, bool) {
	b, ok := embeddedConfigs[board]
	return b, ok
}

// Boards lists the boards with an embedded default.
func Boards() []string {
	out := make([]string, 0, len(embeddedConfigs))
	for k := range embeddedConfigs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Node is the sensing node configuration.
type Node struct {
	Node     string          `mapstructure:"node"`
	Log      logger.Config   `mapstructure:"log"`
	Platform hal.Config      `mapstructure:"platform"`
	Sensors  sensors.Config  `mapstructure:"sensors"`
	Network  network.Config  `mapstructure:"network"`
	Watchdog watchdog.Config `mapstructure:"watchdog"`
	Mailbox  Mailbox         `mapstructure:"mailbox"`
	Metrics  Metrics         `mapstructure:"metrics"`

	// DisarmOnShutdown disarms the watchdog on an operator stop.
	DisarmOnShutdown bool `mapstructure:"disarm_on_shutdown"`
}

type Mailbox struct {
	Capacity int `mapstructure:"capacity"`
}

type Metrics struct {
	Listen string `mapstructure:"listen"`
}

// Options selects the sources Load reads.
type Options struct {
	Board string
	File  string
	// Flags whose name is a configuration key ("network.address") override
	// that key when set.
	Flags *pflag.FlagSet
}

// Load resolves the node configuration for opts.Board.
func Load(opts Options) (Node, error) {
	board := opts.Board
	if board == "" {
		board = DefaultBoard
	}
	raw, ok := EmbeddedConfigLookup(board)
	if !ok || len(raw) == 0 {
		return Node{}, errcode.New(errcode.InvalidConfig, "config.Load", "no embedded config for board "+board)
	}

	var cfg Node
	if err := resolve(raw, opts, &cfg); err != nil {
		return Node{}, err
	}
	if cfg.Node == "" {
		host, err := os.Hostname()
		if err != nil {
			return Node{}, errcode.Wrap(errcode.InvalidConfig, "config.Load", err)
		}
		cfg.Node = host
	}
	if cfg.Network.Node == "" {
		cfg.Network.Node = cfg.Node
	}
	if cfg.Mailbox.Capacity <= 0 {
		cfg.Mailbox.Capacity = DefaultMailboxCapacity
	}
	return cfg, cfg.Validate()
}

// DefaultMailboxCapacity is the priority channel depth.
const DefaultMailboxCapacity = 20

// Validate rejects configurations the node cannot start with.
func (c Node) Validate() error {
	var errs []string
	if c.Platform.Name == "" {
		errs = append(errs, "platform.name is empty")
	}
	if c.Network.Address == "" {
		errs = append(errs, "network.address is empty")
	}
	if c.Sensors.Light == nil && len(c.Sensors.Sensors) == 0 && len(c.Sensors.Buttons) == 0 {
		errs = append(errs, "no sensors or buttons configured")
	}
	if c.Watchdog.Interval > 0 && c.Watchdog.Timeout > 0 && c.Watchdog.Interval >= c.Watchdog.Timeout {
		errs = append(errs, "watchdog.interval must be shorter than watchdog.timeout")
	}
	if len(errs) > 0 {
		return errcode.New(errcode.InvalidConfig, "config.Validate", strings.Join(errs, "; "))
	}
	return nil
}

// Collector is the host-side collector configuration.
type Collector struct {
	Server  collector.Config    `mapstructure:",squash"`
	Log     logger.Config       `mapstructure:"log"`
	Metrics Metrics             `mapstructure:"metrics"`
	MQTT    forward.MQTTConfig  `mapstructure:"mqtt"`
	Kafka   forward.KafkaConfig `mapstructure:"kafka"`
}

// LoadCollector resolves the collector configuration. opts.Board is ignored.
func LoadCollector(opts Options) (Collector, error) {
	var cfg Collector
	if err := resolve([]byte(cfgCollector), opts, &cfg); err != nil {
		return Collector{}, err
	}
	return cfg, nil
}

// resolve layers embedded defaults, file, environment and flags into out.
func resolve(defaults []byte, opts Options, out any) error {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return errcode.Wrap(errcode.InvalidConfig, "config.defaults", err)
	}
	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.MergeInConfig(); err != nil {
			return errcode.Wrap(errcode.InvalidConfig, "config.file", errors.Wrap(err, opts.File))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.Flags != nil {
		var bindErr error
		opts.Flags.VisitAll(func(f *pflag.Flag) {
			if bindErr != nil || !v.IsSet(f.Name) {
				return
			}
			bindErr = v.BindPFlag(f.Name, f)
		})
		if bindErr != nil {
			return errcode.Wrap(errcode.InvalidConfig, "config.flags", bindErr)
		}
	}

	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(out, hook); err != nil {
		return errcode.Wrap(errcode.InvalidConfig, "config.unmarshal", err)
	}
	return nil
}
