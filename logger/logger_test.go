package logger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "defaults", cfg: Config{}},
		{name: "console debug", cfg: Config{Level: "debug", Format: "console"}},
		{name: "json warn", cfg: Config{Level: "WARN", Format: "json"}},
		{name: "bad level", cfg: Config{Level: "loud"}, wantErr: true},
		{name: "bad format", cfg: Config{Format: "xml"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, l)
		})
	}
}

func TestLimited_SuppressesWithinInterval(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewLimited(zap.New(core), time.Hour)

	for i := 0; i < 5; i++ {
		l.Warn("connect failed")
	}
	require.Equal(t, 1, logs.Len())
	require.Equal(t, 4, l.suppressed)
}
