// Package sensors runs the node's acquisition pipeline: one-off sensor setup,
// the fast light and button loops, and the slow cycle over the climate and air
// quality sensors. Every result goes to a non-blocking publisher.
package sensors

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"sensenode/types"
)

// Sensor is one physical device on the slow (or fast) path.
type Sensor interface {
	Device() types.Device
	// Init brings the device into a measurable state.
	Init(ctx context.Context) error
	// Read returns the readings of one measurement.
	Read(ctx context.Context) ([]types.Reading, error)
}

// Armer is implemented by two-phase sensors that must be told to start a
// conversion before the settle delay of each slow cycle.
type Armer interface {
	Arm(ctx context.Context) error
}

// Light is the fast-path illuminance sensor.
type Light interface {
	Sensor
	Lux(ctx context.Context) (float32, error)
}

// Publisher accepts items without blocking; false means the item was dropped.
type Publisher interface {
	TryPublish(types.Item) bool
}

// ErrTimeout is returned by Bounded when the operation outlives its budget.
var ErrTimeout = errors.New("sensors: operation timed out")

// Bounded runs fn with a deadline of d. If the deadline passes first,
// ErrTimeout is returned immediately and fn is left to finish on its own; its
// result is discarded. Cancellation of ctx itself is reported as ctx.Err().
func Bounded(ctx context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	tctx, cancel := context.WithTimeout(ctx, d)
	done := make(chan error, 1)
	go func() { done <- fn(tctx) }()
	select {
	case err := <-done:
		cancel()
		if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return ErrTimeout
		}
		return err
	case <-tctx.Done():
		cancel()
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrTimeout
	}
}

// Poll calls collect until it stops returning notReady, sleeping every
// between attempts, or ctx ends.
func Poll[T any](ctx context.Context, every time.Duration, notReady error, collect func() (T, error)) (T, error) {
	for {
		v, err := collect()
		if err == nil || !errors.Is(err, notReady) {
			return v, err
		}
		if err := Sleep(ctx, every); err != nil {
			var zero T
			return zero, err
		}
	}
}

// Sleep waits for d or until ctx ends.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Budget returns the time left before ctx's deadline, or fallback when ctx
// has none. Drivers with their own timeout argument use it.
func Budget(ctx context.Context, fallback time.Duration) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left > 0 {
			return left
		}
		return time.Millisecond
	}
	return fallback
}
