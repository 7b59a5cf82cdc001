package types

import "strconv"

// ------------------------
// Priorities
// ------------------------

// Priority orders items in the publish channel. Lower values are more urgent.
type Priority uint8

const (
	// PrioCritical is reserved for the terminal broadcast and sorts ahead of
	// everything else.
	PrioCritical Priority = 0
	// PrioFault carries running faults and read timeouts.
	PrioFault Priority = 1
	// PrioHigh carries large light deltas and button presses.
	PrioHigh Priority = 2
	// PrioMedium carries routine light reports.
	PrioMedium Priority = 3
	// PrioRoutine carries slow-path sensor readings.
	PrioRoutine Priority = 4
)

// DefaultLowThreshold is the first priority considered "low" for batching.
const DefaultLowThreshold = PrioMedium

// Low reports whether p is at or below the urgency of threshold.
func (p Priority) Low(threshold Priority) bool { return p >= threshold }

func (p Priority) String() string {
	switch p {
	case PrioCritical:
		return "critical"
	case PrioFault:
		return "fault"
	case PrioHigh:
		return "high"
	case PrioMedium:
		return "medium"
	case PrioRoutine:
		return "routine"
	default:
		return "p" + strconv.Itoa(int(p))
	}
}

// ------------------------
// Faults
// ------------------------

// FaultClass classifies a device error.
type FaultClass uint8

const (
	FaultUnknown FaultClass = iota
	FaultSetupTimeout
	FaultSetupFailure
	FaultRunning
	FaultReadTimeout
)

func (c FaultClass) String() string {
	switch c {
	case FaultSetupTimeout:
		return "setup_timeout"
	case FaultSetupFailure:
		return "setup_failure"
	case FaultRunning:
		return "running_fault"
	case FaultReadTimeout:
		return "read_timeout"
	default:
		return "unknown"
	}
}

// ------------------------
// Payloads
// ------------------------

// Payload is the content of a channel item: a Reading, a Fault or a Critical.
type Payload interface {
	isPayload()
}

// Fault is a non-fatal (or setup) error event reported as telemetry.
type Fault struct {
	Device Device
	Class  FaultClass
	Cause  string
}

// Critical is the terminal, system-level event broadcast before a reset.
type Critical struct {
	Cause string
}

func (Reading) isPayload()  {}
func (Fault) isPayload()    {}
func (Critical) isPayload() {}

func (f Fault) String() string {
	s := f.Class.String() + "(" + f.Device.String() + ")"
	if f.Cause != "" {
		s += ": " + f.Cause
	}
	return s
}

func (c Critical) String() string { return "critical: " + c.Cause }

// ------------------------
// Items
// ------------------------

// Item is a payload annotated with its priority.
type Item struct {
	Priority Priority
	Payload  Payload
}

// Prio implements mailbox.Prioritized.
func (it Item) Prio() Priority { return it.Priority }

// ReadingItem wraps a reading at priority p.
func ReadingItem(p Priority, r Reading) Item { return Item{Priority: p, Payload: r} }

// FaultItem wraps a fault at PrioFault.
func FaultItem(d Device, c FaultClass, cause string) Item {
	return Item{Priority: PrioFault, Payload: Fault{Device: d, Class: c, Cause: cause}}
}

// CriticalItem wraps a critical event at PrioCritical.
func CriticalItem(cause string) Item {
	return Item{Priority: PrioCritical, Payload: Critical{Cause: cause}}
}
