// Package sim is a hardware-free platform: a simulated I²C bus with light and
// climate sensors, simulated CO2 and particulate UART sensors, scriptable
// buttons and a software watchdog. It lets the whole node run on a laptop.
package sim

import (
	"context"
	"io"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"sensenode/drivers/mhz"
	"sensenode/drivers/sps30"
	"sensenode/errcode"
	"sensenode/services/hal"
)

func init() {
	hal.RegisterPlatform("sim", func(cfg hal.Config, log *zap.Logger) (hal.Platform, error) {
		return New(cfg, log), nil
	})
}

// Platform is the simulated board.
type Platform struct {
	cfg hal.Config
	log *zap.Logger
	Env *Environment

	mu     sync.Mutex
	buses  map[string]*Bus
	inputs map[string]*Input
	wd     *Watchdog

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds the platform. A non-zero cfg.Seed also starts a presser that
// occasionally pushes a random button.
func New(cfg hal.Config, log *zap.Logger) *Platform {
	p := &Platform{
		cfg:    cfg,
		log:    log,
		Env:    NewEnvironment(cfg.Seed),
		buses:  map[string]*Bus{},
		inputs: map[string]*Input{},
		wd:     NewWatchdog(log.Named("watchdog")),
	}
	for name := range cfg.Inputs {
		p.inputs[name] = NewInput()
	}
	if cfg.Seed != 0 && len(p.inputs) > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel
		p.wg.Add(1)
		go p.presser(ctx, rand.New(rand.NewSource(cfg.Seed)))
	}
	return p
}

func (p *Platform) I2C(id string) (hal.I2C, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.cfg.I2C[id]; !ok && len(p.cfg.I2C) > 0 {
		return nil, errcode.New(errcode.UnknownBus, "sim.I2C", id)
	}
	b, ok := p.buses[id]
	if !ok {
		b = NewBus(p.Env)
		p.buses[id] = b
	}
	return b, nil
}

// Bus returns the simulated bus id, if it was opened.
func (p *Platform) Bus(id string) (*Bus, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.buses[id]
	return b, ok
}

// Serial attaches the simulated device named by cfg.Serial[id] ("mhz14" or
// "sps30").
func (p *Platform) Serial(id string, baud int) (hal.Serial, error) {
	switch p.cfg.Serial[id] {
	case "mhz14":
		return &serialPort{ReadWriter: &mhz.Simulator{PPM: p.Env.CO2}}, nil
	case "sps30":
		return &serialPort{ReadWriter: &sps30.Simulator{Next: func() (sps30.Sample, bool) {
			return p.Env.Particulates(), true
		}}}, nil
	default:
		return nil, errcode.New(errcode.UnknownBus, "sim.Serial", id)
	}
}

func (p *Platform) Input(name string) (hal.DigitalInput, error) {
	in, ok := p.Button(name)
	if !ok {
		return nil, errcode.New(errcode.UnknownPin, "sim.Input", name)
	}
	return in, nil
}

// Button returns the scriptable input for name.
func (p *Platform) Button(name string) (*Input, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	in, ok := p.inputs[name]
	return in, ok
}

func (p *Platform) Watchdog() (hal.Watchdog, error) { return p.wd, nil }

// SoftWatchdog exposes the concrete watchdog for tests.
func (p *Platform) SoftWatchdog() *Watchdog { return p.wd }

func (p *Platform) Close() error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return nil
}

func (p *Platform) presser(ctx context.Context, rng *rand.Rand) {
	defer p.wg.Done()
	names := make([]string, 0, len(p.inputs))
	for n := range p.inputs {
		names = append(names, n)
	}
	sort.Strings(names)
	for {
		wait := 20*time.Second + time.Duration(rng.Int63n(int64(20*time.Second)))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		name := names[rng.Intn(len(names))]
		hold := 50*time.Millisecond + time.Duration(rng.Int63n(int64(time.Second)))
		p.log.Debug("simulated press", zap.String("button", name), zap.Duration("hold", hold))
		p.inputs[name].Press(hold)
	}
}

// serialPort adds the hal.Serial control surface to a simulator.
type serialPort struct {
	io.ReadWriter
	timeout time.Duration
}

func (s *serialPort) Read(b []byte) (int, error) {
	n, err := s.ReadWriter.Read(b)
	if n == 0 && err == nil && s.timeout > 0 {
		// Mimic a blocking read that times out.
		time.Sleep(time.Millisecond)
	}
	return n, err
}

func (s *serialPort) SetReadTimeout(d time.Duration) error { s.timeout = d; return nil }
func (s *serialPort) ResetInput() error                    { return nil }
func (s *serialPort) Close() error                         { return nil }
