package watchdog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sensenode/services/hal/sim"
)

func TestPetsUntilStoppedThenExpires(t *testing.T) {
	wd := sim.NewWatchdog(zap.NewNop())
	expired := make(chan struct{})
	wd.OnExpire = func() { close(expired) }

	s := New(Config{Timeout: 60 * time.Millisecond, Interval: 15 * time.Millisecond}, wd, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(200 * time.Millisecond)
	select {
	case <-expired:
		t.Fatal("expired while being petted")
	default:
	}
	require.GreaterOrEqual(t, wd.Pets(), 5)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatal("watchdog kept alive after petting stopped")
	}
}

func TestIntervalDefaultsInsideTimeout(t *testing.T) {
	s := New(Config{Timeout: 10 * time.Second, Interval: 30 * time.Second}, sim.NewWatchdog(zap.NewNop()), nil, zap.NewNop())
	require.Equal(t, 4*time.Second, s.cfg.Interval)

	s = New(Config{}, sim.NewWatchdog(zap.NewNop()), nil, zap.NewNop())
	require.Equal(t, DefaultTimeout, s.Timeout())
	require.Equal(t, DefaultInterval, s.cfg.Interval)
}
