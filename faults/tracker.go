// Package faults tracks which devices on the shared sensor buses are
// currently failing. Each tracked device owns one sticky bit: set on a failed
// read, cleared by the next success. All bits set at once is the signal that
// acquisition as a whole has been lost.
package faults

import (
	"sync/atomic"

	"sensenode/types"
)

// MaxTracked is the number of devices a Tracker can hold.
const MaxTracked = 32

// Tracker is a fixed-size, lock-free fault set keyed by device.
type Tracker struct {
	bits  atomic.Uint32
	all   uint32
	idx   map[types.Device]uint32 // device -> bit; read-only after construction
	order []types.Device          // devices in bit order
}

// NewTracker tracks the given devices. Duplicates are folded; devices beyond
// MaxTracked are ignored.
func NewTracker(devices ...types.Device) *Tracker {
	t := &Tracker{idx: make(map[types.Device]uint32, len(devices))}
	for _, d := range devices {
		if _, ok := t.idx[d]; ok || len(t.idx) >= MaxTracked {
			continue
		}
		bit := uint32(1) << uint(len(t.idx))
		t.idx[d] = bit
		t.all |= bit
		t.order = append(t.order, d)
	}
	return t
}

// Set marks d as faulted. Untracked devices are ignored.
func (t *Tracker) Set(d types.Device) {
	if bit, ok := t.idx[d]; ok {
		t.bits.Or(bit)
	}
}

// Unset clears d's fault. Untracked devices are ignored.
func (t *Tracker) Unset(d types.Device) {
	if bit, ok := t.idx[d]; ok {
		t.bits.And(^bit)
	}
}

// Record sets or clears d according to the outcome of an operation.
func (t *Tracker) Record(d types.Device, err error) {
	if err != nil {
		t.Set(d)
		return
	}
	t.Unset(d)
}

// Tracks reports whether d has a bit in this tracker.
func (t *Tracker) Tracks(d types.Device) bool {
	_, ok := t.idx[d]
	return ok
}

// AllFaulted reports whether every tracked device is currently faulted.
// An empty tracker never reports all-faulted.
func (t *Tracker) AllFaulted() bool {
	return t.all != 0 && t.bits.Load() == t.all
}

// Faulted returns the devices whose bits are currently set, in the order
// they were given to NewTracker.
func (t *Tracker) Faulted() []types.Device {
	cur := t.bits.Load()
	var out []types.Device
	for i, d := range t.order {
		if cur&(1<<uint(i)) != 0 {
			out = append(out, d)
		}
	}
	return out
}
