//go:build linux

package linux

import (
	"context"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// edgePoll bounds each WaitForEdge so that context cancellation is noticed.
const edgePoll = 50 * time.Millisecond

// levelPin is the slice of gpio.PinIn used for edge waiting.
type levelPin interface {
	WaitForEdge(timeout time.Duration) bool
	Read() gpio.Level
}

// edgeInput turns periph's "any edge" notifications into directional waits by
// sampling the line after each edge.
type edgeInput struct {
	pin  levelPin
	poll time.Duration
}

func (e *edgeInput) WaitForRisingEdge(ctx context.Context) error {
	return e.waitFor(ctx, gpio.High)
}

func (e *edgeInput) WaitForFallingEdge(ctx context.Context) error {
	return e.waitFor(ctx, gpio.Low)
}

func (e *edgeInput) waitFor(ctx context.Context, want gpio.Level) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.pin.WaitForEdge(e.poll) && e.pin.Read() == want {
			return nil
		}
	}
}
