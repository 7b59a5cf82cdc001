package network

import (
	"context"
	"time"

	"sensenode/types"
)

type batch struct {
	payloads []types.Payload
	critical bool
}

func (b *batch) add(it types.Item) {
	b.payloads = append(b.payloads, it.Payload)
	if it.Priority == types.PrioCritical {
		b.critical = true
	}
}

// nextBatch waits for one item and groups whatever else the policy allows
// with it. Low-priority first items open a collection window that ends early
// on an urgent arrival; urgent first items only take what is already queued.
func (p *Publisher) nextBatch(ctx context.Context) (batch, error) {
	first, err := p.src.Receive(ctx)
	if err != nil {
		return batch{}, err
	}
	b := batch{payloads: make([]types.Payload, 0, p.cfg.BatchSize)}
	b.add(first)

	if !first.Priority.Low(p.cfg.LowThreshold) {
		for len(b.payloads) < p.cfg.BatchSize {
			it, ok := p.src.TryReceive()
			if !ok {
				break
			}
			b.add(it)
		}
		return b, nil
	}

	deadline := time.Now().Add(p.cfg.Window)
	for len(b.payloads) < p.cfg.BatchSize {
		left := time.Until(deadline)
		if left <= 0 {
			break
		}
		wctx, cancel := context.WithTimeout(ctx, left)
		it, err := p.src.Receive(wctx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return batch{}, ctx.Err()
			}
			break
		}
		b.add(it)
		if !it.Priority.Low(p.cfg.LowThreshold) {
			break
		}
	}
	return b, nil
}
