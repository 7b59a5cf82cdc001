package sensors

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sensenode/errcode"
	"sensenode/faults"
	"sensenode/logger"
	"sensenode/metrics"
	"sensenode/services/hal"
	"sensenode/types"
)

// Options wires a Pipeline to its collaborators.
type Options struct {
	Config    Config
	Platform  hal.Platform
	Publisher Publisher
	Metrics   *metrics.Metrics // optional
	Log       *zap.Logger
}

type button struct {
	id    types.ButtonID
	input hal.DigitalInput
}

// Pipeline is the node's acquisition side: setup, fast path and slow path.
type Pipeline struct {
	cfg     Config
	pub     Publisher
	metrics *metrics.Metrics
	log     *zap.Logger
	tracker *faults.Tracker
	now     func() time.Time

	light   *unit
	slow    []unit
	buttons []button
}

func newPipeline(cfg Config, pub Publisher, m *metrics.Metrics, log *zap.Logger) *Pipeline {
	return &Pipeline{
		cfg:     cfg.WithDefaults(),
		pub:     pub,
		metrics: m,
		log:     log,
		tracker: faults.NewTracker(),
		now:     time.Now,
	}
}

// Build resolves every configured sensor and input against the platform.
// Nothing touches the hardware until Run.
func Build(opts Options) (*Pipeline, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	p := newPipeline(opts.Config, opts.Publisher, opts.Metrics, log.Named("sensors"))
	buses := hal.NewBuses(opts.Platform)

	if lc := p.cfg.Light; lc != nil {
		u, err := build(lc.SensorConfig, buses, opts.Platform, p.log)
		if err != nil {
			return nil, errors.Wrapf(err, "light sensor %q", lc.Type)
		}
		if _, ok := u.sensor.(Light); !ok {
			return nil, errcode.New(errcode.InvalidParams, "sensors.Build", lc.Type+" cannot serve as the light sensor")
		}
		p.light = &u
	}
	for _, sc := range p.cfg.Sensors {
		u, err := build(sc, buses, opts.Platform, p.log)
		if err != nil {
			return nil, errors.Wrapf(err, "sensor %q", sc.Type)
		}
		p.slow = append(p.slow, u)
	}
	for _, bc := range p.cfg.Buttons {
		id, ok := types.ParseButton(bc.Button)
		if !ok {
			return nil, errcode.New(errcode.InvalidParams, "sensors.Build", "unknown button "+bc.Button)
		}
		in, err := opts.Platform.Input(bc.Input)
		if err != nil {
			return nil, err
		}
		p.buttons = append(p.buttons, button{id: id, input: in})
	}
	p.finish()
	return p, nil
}

// finish applies default timeouts and builds the fault tracker.
func (p *Pipeline) finish() {
	var shared []types.Device
	fix := func(u *unit) {
		if u.setupTimeout <= 0 {
			u.setupTimeout = p.cfg.SetupTimeout
		}
		if u.readTimeout <= 0 {
			u.readTimeout = p.cfg.ReadTimeout
		}
		if u.shared {
			shared = append(shared, u.sensor.Device())
		}
	}
	if p.light != nil {
		fix(p.light)
	}
	for i := range p.slow {
		fix(&p.slow[i])
	}
	p.tracker = faults.NewTracker(shared...)
}

// Tracker exposes the bus fault tracker.
func (p *Pipeline) Tracker() *faults.Tracker { return p.tracker }

// Run sets every sensor up, then runs the light loop, one loop per button and
// the slow cycle until one of them fails or ctx ends. It never returns nil.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := setup(ctx, p.log, p.setupOrder()); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if p.light != nil {
		g.Go(func() error { return p.runLight(gctx) })
	}
	for _, b := range p.buttons {
		g.Go(func() error { return p.runButton(gctx, b) })
	}
	g.Go(func() error { return p.runSlow(gctx) })

	err := g.Wait()
	if err == nil {
		err = errcode.New(errcode.AcquisitionStopped, "sensors.Run", "all loops returned")
	}
	return err
}

func (p *Pipeline) setupOrder() []unit {
	out := make([]unit, 0, len(p.slow)+1)
	if p.light != nil {
		out = append(out, *p.light)
	}
	return append(out, p.slow...)
}

// emit hands an item to the publisher without blocking.
func (p *Pipeline) emit(it types.Item) {
	if p.pub.TryPublish(it) {
		p.metrics.ItemAccepted(it.Priority)
		p.metrics.Payload(it.Payload)
		return
	}
	p.metrics.ItemDropped(it.Priority)
}

// fault reports a failed read of dev; an abandoned read is a ReadTimeout.
func (p *Pipeline) fault(dev types.Device, err error) {
	class := types.FaultRunning
	if errors.Is(err, ErrTimeout) {
		class = types.FaultReadTimeout
	}
	p.faultAs(dev, class, err)
}

func (p *Pipeline) faultAs(dev types.Device, class types.FaultClass, err error) {
	p.log.Warn("sensor fault",
		zap.String(logger.FieldDevice, dev.String()),
		zap.String(logger.FieldClass, class.String()),
		zap.Error(err))
	p.emit(types.FaultItem(dev, class, err.Error()))
}
