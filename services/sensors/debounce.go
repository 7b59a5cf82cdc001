package sensors

import (
	"math"
	"time"
)

// Debouncer turns a rising/falling edge pair into a press duration.
// The zero value is Idle with a zero noise floor.
type Debouncer struct {
	NoiseFloor time.Duration

	pressed bool
	since   time.Time
}

// Rise records the start of a press. A second rise while pressed restarts it.
func (d *Debouncer) Rise(t time.Time) {
	d.pressed = true
	d.since = t
}

// Fall ends a press and always returns to Idle. ok is false when there was no
// press in progress or the press was shorter than the noise floor. overflow is
// set when the press was too long to represent in milliseconds.
func (d *Debouncer) Fall(t time.Time) (ms uint16, ok bool, overflow bool) {
	if !d.pressed {
		return 0, false, false
	}
	held := t.Sub(d.since)
	d.pressed = false
	d.since = time.Time{}

	if held < d.NoiseFloor {
		return 0, false, false
	}
	n := held.Milliseconds()
	if n > math.MaxUint16 {
		return 0, false, true
	}
	return uint16(n), true, false
}

// Pressed reports whether a press is in progress.
func (d *Debouncer) Pressed() bool { return d.pressed }
