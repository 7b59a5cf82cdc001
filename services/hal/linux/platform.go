// services/hal/linux/platform.go
//go:build linux

// Package linux provides the hardware platform for Linux single-board
// computers: I²C and GPIO through periph.io, UARTs through go.bug.st/serial
// and the kernel watchdog device.
package linux

import (
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"sensenode/errcode"
	"sensenode/services/hal"
)

const defaultWatchdog = "/dev/watchdog"

func init() {
	hal.RegisterPlatform("linux", Open)
}

type platform struct {
	cfg hal.Config
	log *zap.Logger

	mu      sync.Mutex
	buses   []i2c.BusCloser
	ports   []serial.Port
	pins    []gpio.PinIO
	watchdg *watchdog
}

// Open initialises periph host drivers and returns the platform.
func Open(cfg hal.Config, log *zap.Logger) (hal.Platform, error) {
	if _, err := host.Init(); err != nil {
		return nil, errcode.Wrap(errcode.UnknownPlatform, "linux.Open", err)
	}
	return &platform{cfg: cfg, log: log}, nil
}

func (p *platform) I2C(id string) (hal.I2C, error) {
	name, ok := p.cfg.I2C[id]
	if !ok {
		return nil, errcode.New(errcode.UnknownBus, "linux.I2C", id)
	}
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, errcode.Wrap(errcode.UnknownBus, "linux.I2C", err)
	}
	p.mu.Lock()
	p.buses = append(p.buses, b)
	p.mu.Unlock()
	p.log.Info("i2c bus opened", zap.String("id", id), zap.String("bus", b.String()))
	return b, nil
}

func (p *platform) Serial(id string, baud int) (hal.Serial, error) {
	path, ok := p.cfg.Serial[id]
	if !ok {
		return nil, errcode.New(errcode.UnknownBus, "linux.Serial", id)
	}
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, errcode.Wrap(errcode.UnknownBus, "linux.Serial", err)
	}
	p.mu.Lock()
	p.ports = append(p.ports, port)
	p.mu.Unlock()
	p.log.Info("serial port opened", zap.String("id", id), zap.String("path", path), zap.Int("baud", baud))
	return serialPort{port}, nil
}

func (p *platform) Input(name string) (hal.DigitalInput, error) {
	pinName, ok := p.cfg.Inputs[name]
	if !ok {
		pinName = name
	}
	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return nil, errcode.New(errcode.UnknownPin, "linux.Input", pinName)
	}
	if err := pin.In(gpio.PullDown, gpio.BothEdges); err != nil {
		return nil, errcode.Wrap(errcode.UnknownPin, "linux.Input", err)
	}
	p.mu.Lock()
	p.pins = append(p.pins, pin)
	p.mu.Unlock()
	return &edgeInput{pin: pin, poll: edgePoll}, nil
}

func (p *platform) Watchdog() (hal.Watchdog, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watchdg == nil {
		path := p.cfg.Watchdog
		if path == "" {
			path = defaultWatchdog
		}
		p.watchdg = &watchdog{path: path, log: p.log.Named("watchdog")}
	}
	return p.watchdg, nil
}

// Close releases buses, ports and pins. The watchdog is left untouched so a
// pending reset still fires.
func (p *platform) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var first error
	for _, b := range p.buses {
		if err := b.Close(); err != nil && first == nil {
			first = err
		}
	}
	for _, s := range p.ports {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	for _, pin := range p.pins {
		_ = pin.Halt()
	}
	p.buses, p.ports, p.pins = nil, nil, nil
	return first
}

// serialPort adapts go.bug.st/serial to hal.Serial.
type serialPort struct{ serial.Port }

func (s serialPort) SetReadTimeout(d time.Duration) error { return s.Port.SetReadTimeout(d) }
func (s serialPort) ResetInput() error                    { return s.Port.ResetInputBuffer() }
