// Package logger builds the process logger and holds the field names shared by
// every component so that log lines can be filtered consistently.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
)

// Standard field names.
const (
	FieldComponent = "component"
	FieldDevice    = "device"
	FieldKind      = "kind"
	FieldButton    = "button"
	FieldPriority  = "priority"
	FieldClass     = "class"
	FieldAddress   = "address"
	FieldAttempt   = "attempt"
	FieldBatchSize = "batch_size"
	FieldSeq       = "seq"
	FieldNode      = "node"
	FieldDuration  = "duration_ms"
	FieldErrorCode = "error_code"
)

// Config selects output format and verbosity.
type Config struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
}

// New builds a logger writing to stderr.
func New(cfg Config) (*zap.Logger, error) {
	lvl := zap.InfoLevel
	if cfg.Level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
			return nil, errors.Wrapf(err, "log level %q", cfg.Level)
		}
	}

	var enc zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		ec := zap.NewProductionEncoderConfig()
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(ec)
	case "console":
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(ec)
	default:
		return nil, errors.Newf("unknown log format %q", cfg.Format)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), lvl)
	return zap.New(core, zap.AddCaller()), nil
}

// Limited emits at most one line per interval; the rest are counted and the
// count is attached to the next emitted line.
type Limited struct {
	log        *zap.Logger
	sometimes  rate.Sometimes
	suppressed int
}

// NewLimited wraps log so that it logs at most once per every.
func NewLimited(log *zap.Logger, every time.Duration) *Limited {
	return &Limited{log: log, sometimes: rate.Sometimes{First: 1, Interval: every}}
}

// Warn logs msg unless a line was emitted within the interval.
func (l *Limited) Warn(msg string, fields ...zap.Field) {
	emitted := false
	l.sometimes.Do(func() {
		emitted = true
		if l.suppressed > 0 {
			fields = append(fields, zap.Int("suppressed", l.suppressed))
		}
		l.log.Warn(msg, fields...)
	})
	if emitted {
		l.suppressed = 0
	} else {
		l.suppressed++
	}
}
