package sensors

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"sensenode/logger"
	"sensenode/types"
	"sensenode/x/mathx"
)

// lightFilter decides which light samples are worth reporting: large
// relative changes go out at once, otherwise one report per interval.
type lightFilter struct {
	ratio    float32
	interval time.Duration
	holdoff  time.Duration

	prev float32
	last time.Time // last report
}

func newLightFilter(ratio float32, interval, holdoff time.Duration, start time.Time) *lightFilter {
	return &lightFilter{
		ratio:    ratio,
		interval: interval,
		holdoff:  holdoff,
		prev:     math.MaxFloat32,
		last:     start,
	}
}

// next returns the priority to report lux at, or false to skip it.
func (f *lightFilter) next(lux float32, now time.Time) (types.Priority, bool) {
	var prio types.Priority
	switch {
	case mathx.AbsDiff(lux, f.prev) > f.prev*f.ratio:
		prio = types.PrioHigh
	case now.Sub(f.last) >= f.interval:
		prio = types.PrioMedium
	default:
		return 0, false
	}
	f.prev = lux
	f.last = now
	return prio, true
}

// faultDue reports whether a read failure at now should be published: only
// once no report has gone out for the holdoff.
func (f *lightFilter) faultDue(now time.Time) bool {
	return now.Sub(f.last) >= f.holdoff
}

func (p *Pipeline) runLight(ctx context.Context) error {
	lc := p.cfg.Light
	u := p.light
	light := u.sensor.(Light)
	dev := light.Device()
	f := newLightFilter(lc.ChangeRatio, lc.ReportInterval, lc.FaultHoldoff, p.now())

	t := time.NewTicker(lc.Period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}

		start := time.Now()
		var lux float32
		err := Bounded(ctx, u.readTimeout, func(ctx context.Context) error {
			v, err := light.Lux(ctx)
			lux = v
			return err
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.tracker.Record(dev, err)
		now := p.now()
		if err != nil {
			if f.faultDue(now) {
				p.fault(dev, err)
			}
			continue
		}
		p.metrics.SensorRead(dev, time.Since(start))

		if prio, ok := f.next(lux, now); ok {
			p.emit(types.ReadingItem(prio, types.R(types.KindBrightness, lux)))
		}
	}
}

func (p *Pipeline) runButton(ctx context.Context, b button) error {
	d := Debouncer{NoiseFloor: p.cfg.NoiseFloor}
	for {
		if !d.Pressed() {
			if err := b.input.WaitForRisingEdge(ctx); err != nil {
				return err
			}
			d.Rise(p.now())
			continue
		}
		if err := b.input.WaitForFallingEdge(ctx); err != nil {
			return err
		}
		ms, ok, overflow := d.Fall(p.now())
		switch {
		case overflow:
			p.log.Warn("extremely long button press, skipping", zap.String(logger.FieldButton, b.id.String()))
		case ok:
			p.emit(types.ReadingItem(types.PrioHigh, types.Press(b.id, ms)))
		}
	}
}
