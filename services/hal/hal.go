// Package hal defines the hardware collaborators the node depends on (I²C
// buses, serial ports, digital inputs and the watchdog) and a registry of
// platforms that provide them.
package hal

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"tinygo.org/x/drivers"

	"sensenode/errcode"
)

// -----------------------------------------------------------------------------
// Collaborators
// -----------------------------------------------------------------------------

// I2C is the tinygo driver bus shape; every driver in this module accepts it.
type I2C = drivers.I2C

// Serial is a byte stream to a UART peripheral.
type Serial interface {
	io.ReadWriter
	// SetReadTimeout bounds each Read; a timed-out Read returns (0, nil).
	SetReadTimeout(d time.Duration) error
	// ResetInput discards any unread input.
	ResetInput() error
	Close() error
}

// DigitalInput is an edge-capable input line.
type DigitalInput interface {
	WaitForRisingEdge(ctx context.Context) error
	WaitForFallingEdge(ctx context.Context) error
}

// Watchdog is the hardware reset timer.
type Watchdog interface {
	// Arm starts (or re-times) the watchdog.
	Arm(timeout time.Duration) error
	// Pet resets the countdown.
	Pet() error
	// Disarm stops the watchdog where the hardware allows it.
	Disarm() error
}

// Platform hands out named hardware resources.
type Platform interface {
	I2C(id string) (I2C, error)
	Serial(id string, baud int) (Serial, error)
	Input(name string) (DigitalInput, error)
	Watchdog() (Watchdog, error)
	Close() error
}

// -----------------------------------------------------------------------------
// Platform registry
// -----------------------------------------------------------------------------

// Config names the resources a platform should expose.
type Config struct {
	Name     string            `mapstructure:"name"`
	I2C      map[string]string `mapstructure:"i2c"`    // bus id -> host bus name
	Serial   map[string]string `mapstructure:"serial"` // port id -> device path
	Inputs   map[string]string `mapstructure:"inputs"` // input name -> pin name
	Watchdog string            `mapstructure:"watchdog"`
	Seed     int64             `mapstructure:"seed"`
}

// Factory opens a platform.
type Factory func(cfg Config, log *zap.Logger) (Platform, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// RegisterPlatform makes a platform available under name.
func RegisterPlatform(name string, f Factory) {
	regMu.Lock()
	factories[name] = f
	regMu.Unlock()
}

// Platforms lists registered platform names.
func Platforms() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(factories))
	for n := range factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Open instantiates the platform named in cfg.
func Open(cfg Config, log *zap.Logger) (Platform, error) {
	regMu.RLock()
	f, ok := factories[cfg.Name]
	regMu.RUnlock()
	if !ok {
		return nil, errcode.New(errcode.UnknownPlatform, "hal.Open", cfg.Name)
	}
	return f(cfg, log.Named("hal").With(zap.String("platform", cfg.Name)))
}
