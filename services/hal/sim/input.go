package sim

import (
	"context"
	"sync"
	"time"
)

// Input is a scriptable digital input. Set drives the line; waiters see the
// resulting edges in order.
type Input struct {
	mu    sync.Mutex
	level bool
	edges chan bool // level after each edge
}

func NewInput() *Input {
	return &Input{edges: make(chan bool, 16)}
}

// Set drives the line. Setting the current level produces no edge.
func (in *Input) Set(high bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.level == high {
		return
	}
	in.level = high
	select {
	case in.edges <- high:
	default:
	}
}

// Press holds the line high for d.
func (in *Input) Press(d time.Duration) {
	in.Set(true)
	time.Sleep(d)
	in.Set(false)
}

func (in *Input) WaitForRisingEdge(ctx context.Context) error { return in.wait(ctx, true) }

func (in *Input) WaitForFallingEdge(ctx context.Context) error { return in.wait(ctx, false) }

func (in *Input) wait(ctx context.Context, want bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case lvl := <-in.edges:
			if lvl == want {
				return nil
			}
		}
	}
}
