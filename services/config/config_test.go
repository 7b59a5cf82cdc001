package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"sensenode/errcode"
	"sensenode/types"
)

func TestEmbeddedBoardsLoad(t *testing.T) {
	require.Equal(t, []string{"rpi", "sim"}, Boards())
	for _, board := range Boards() {
		t.Run(board, func(t *testing.T) {
			cfg, err := Load(Options{Board: board})
			require.NoError(t, err)
			require.NotEmpty(t, cfg.Node)
			require.Equal(t, cfg.Node, cfg.Network.Node)
			require.Equal(t, 20, cfg.Mailbox.Capacity)
			require.Equal(t, 20*time.Second, cfg.Watchdog.Timeout)
			require.Equal(t, 8*time.Second, cfg.Watchdog.Interval)
			require.Equal(t, 200*time.Millisecond, cfg.Network.Window)
			require.Equal(t, types.PrioMedium, cfg.Network.LowThreshold)
			require.NotNil(t, cfg.Sensors.Light)
			require.Equal(t, "max44009", cfg.Sensors.Light.Type)
			require.Equal(t, 50*time.Millisecond, cfg.Sensors.Light.Period)
			require.InDelta(t, 0.05, cfg.Sensors.Light.ChangeRatio, 1e-6)
			require.Len(t, cfg.Sensors.Buttons, 8)
			for _, b := range cfg.Sensors.Buttons {
				_, ok := types.ParseButton(b.Button)
				require.True(t, ok, b.Button)
			}
		})
	}
}

func TestRPiSensorParams(t *testing.T) {
	cfg, err := Load(Options{Board: "rpi"})
	require.NoError(t, err)
	require.Equal(t, "linux", cfg.Platform.Name)
	require.Equal(t, "GPIO5", cfg.Platform.Inputs["top_left"])

	var bme map[string]any
	for _, s := range cfg.Sensors.Sensors {
		if s.Type == "bme680" {
			bme = s.Params
		}
	}
	require.NotNil(t, bme)
	require.EqualValues(t, 0x77, bme["addr"])
}

func TestUnknownBoard(t *testing.T) {
	_, err := Load(Options{Board: "pico"})
	require.True(t, errcode.Is(err, errcode.InvalidConfig))
}

func TestLookupOverride(t *testing.T) {
	old := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(board string) ([]byte, bool) {
		return []byte(`
node: bench
platform: {name: sim}
network: {address: "10.0.0.1:7070"}
`), true
	}
	t.Cleanup(func() { EmbeddedConfigLookup = old })

	_, err := Load(Options{Board: "bench"})
	require.True(t, errcode.Is(err, errcode.InvalidConfig), "no sensors configured")
}

func TestLayering(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "node.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
node: ward-3-bed-7
network:
  address: 192.168.1.10:7070
  window: 300ms
sensors:
  settle: 2s
`), 0o600))

	t.Setenv("SENSENODE_NETWORK_RETRY_INTERVAL", "3s")
	t.Setenv("SENSENODE_WATCHDOG_TIMEOUT", "30s")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("network.address", "", "")
	flags.String("log.level", "", "")
	require.NoError(t, flags.Parse([]string{"--network.address=collector:9000"}))

	cfg, err := Load(Options{Board: "sim", File: file, Flags: flags})
	require.NoError(t, err)

	require.Equal(t, "ward-3-bed-7", cfg.Node, "file")
	require.Equal(t, 300*time.Millisecond, cfg.Network.Window, "file")
	require.Equal(t, 2*time.Second, cfg.Sensors.Settle, "file")
	require.Equal(t, 3*time.Second, cfg.Network.RetryInterval, "env")
	require.Equal(t, 30*time.Second, cfg.Watchdog.Timeout, "env")
	require.Equal(t, "collector:9000", cfg.Network.Address, "flag")
	require.Equal(t, "info", cfg.Log.Level, "unset flag keeps the default")
	require.Equal(t, 10*time.Second, cfg.Network.ConnectTimeout, "embedded")
}

func TestMissingFile(t *testing.T) {
	_, err := Load(Options{File: filepath.Join(t.TempDir(), "absent.yaml")})
	require.True(t, errcode.Is(err, errcode.InvalidConfig))
}

func TestValidate(t *testing.T) {
	cfg, err := Load(Options{})
	require.NoError(t, err)

	bad := cfg
	bad.Network.Address = ""
	bad.Watchdog.Interval = time.Minute
	err = bad.Validate()
	require.ErrorContains(t, err, "network.address")
	require.ErrorContains(t, err, "watchdog.interval")
}

func TestCollectorConfig(t *testing.T) {
	t.Setenv("SENSENODE_KAFKA_BROKERS", "k1:9092,k2:9092")
	cfg, err := LoadCollector(Options{})
	require.NoError(t, err)
	require.Equal(t, ":7070", cfg.Server.Listen)
	require.Equal(t, 2*time.Minute, cfg.Server.ReadTimeout)
	require.False(t, cfg.MQTT.Enabled())
	require.Equal(t, byte(1), cfg.MQTT.QoS)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, "sensenode.telemetry", cfg.Kafka.Topic)
}
