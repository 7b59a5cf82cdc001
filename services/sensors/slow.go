package sensors

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"sensenode/errcode"
	"sensenode/types"
)

type result struct {
	readings []types.Reading
	err      error
}

func (p *Pipeline) runSlow(ctx context.Context) error {
	for {
		if err := p.slowCycle(ctx); err != nil {
			return err
		}
	}
}

// slowCycle arms the two-phase sensors, waits for them to settle, reads every
// slow sensor concurrently and publishes the outcome.
func (p *Pipeline) slowCycle(ctx context.Context) error {
	for _, u := range p.slow {
		a, ok := u.sensor.(Armer)
		if !ok {
			continue
		}
		err := Bounded(ctx, u.readTimeout, a.Arm)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			// A failed trigger is a running fault even when it timed out.
			p.tracker.Set(u.sensor.Device())
			p.faultAs(u.sensor.Device(), types.FaultRunning, err)
		}
	}

	if err := Sleep(ctx, p.cfg.Settle); err != nil {
		return err
	}

	results := p.readAll(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	for i, u := range p.slow {
		dev := u.sensor.Device()
		r := results[i]
		p.tracker.Record(dev, r.err)
		if r.err != nil {
			p.fault(dev, r.err)
			continue
		}
		for _, rd := range r.readings {
			p.emit(types.ReadingItem(types.PrioRoutine, rd))
		}
	}

	if p.tracker.AllFaulted() {
		names := make([]string, 0, len(p.slow))
		for _, d := range p.tracker.Faulted() {
			names = append(names, d.String())
		}
		return errcode.New(errcode.AllBusesFaulted, "sensors.slow", strings.Join(names, ","))
	}
	return nil
}

// readAll reads every slow sensor at once, each under its own timeout, and
// waits for all of them.
func (p *Pipeline) readAll(ctx context.Context) []result {
	results := make([]result, len(p.slow))
	var g errgroup.Group
	for i, u := range p.slow {
		g.Go(func() error {
			start := time.Now()
			var rs []types.Reading
			err := Bounded(ctx, u.readTimeout, func(ctx context.Context) error {
				var err error
				rs, err = u.sensor.Read(ctx)
				return err
			})
			res := result{err: err}
			if err == nil {
				// rs is only safe to read once the read has completed.
				res.readings = rs
				p.metrics.SensorRead(u.sensor.Device(), time.Since(start))
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}
