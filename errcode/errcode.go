package errcode

import (
	"github.com/cockroachdb/errors"
)

// Code is a stable, telemetry-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK            Code = "ok"
	Unsupported   Code = "unsupported"
	InvalidParams Code = "invalid_params"
	InvalidConfig Code = "invalid_config"

	UnknownBus        Code = "unknown_bus"
	UnknownPin        Code = "unknown_pin"
	UnknownSensorType Code = "unknown_sensor_type"
	UnknownPlatform   Code = "unknown_platform"

	// Sensor lifecycle.
	SetupTimeout Code = "setup_timeout"
	SetupFailure Code = "setup_failure"

	// Escalation.
	AllBusesFaulted    Code = "all_buses_faulted"
	AcquisitionStopped Code = "acquisition_stopped"
	LinkGroupStopped   Code = "link_group_stopped"

	Error Code = "error" // generic fallback
)

// E keeps context and a cause alongside a Code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Wrap annotates err with a code and operation. A nil err still yields an
// error carrying the code, so callers can use it for sentinel-less failures.
func Wrap(c Code, op string, err error) error {
	if err != nil {
		err = errors.WithStack(err)
	}
	return &E{C: c, Op: op, Err: err}
}

// New returns an error with a code, operation and message.
func New(c Code, op, msg string) error {
	return errors.WithStack(&E{C: c, Op: op, Msg: msg})
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	// Outermost annotation wins over a bare Code deeper in the chain.
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return Error
}

// Is reports whether the code Of extracts from err is c.
func Is(err error, c Code) bool {
	return err != nil && Of(err) == c
}
