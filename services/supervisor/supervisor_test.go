package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sensenode/errcode"
	"sensenode/mailbox"
	"sensenode/services/hal/sim"
	"sensenode/services/sensors"
	"sensenode/services/watchdog"
	"sensenode/types"
)

// fakeLink drains the channel and records what it "sent".
type fakeLink struct {
	box      *mailbox.Channel[types.Item]
	up       chan struct{}
	critical chan struct{}
	delay    time.Duration // before the link comes up

	mu   sync.Mutex
	sent []types.Item
}

func newFakeLink(box *mailbox.Channel[types.Item]) *fakeLink {
	return &fakeLink{box: box, up: make(chan struct{}), critical: make(chan struct{})}
}

func (l *fakeLink) Run(ctx context.Context) error {
	select {
	case <-time.After(l.delay):
		close(l.up)
	case <-ctx.Done():
		return ctx.Err()
	}
	for {
		it, err := l.box.Receive(ctx)
		if err != nil {
			return err
		}
		l.mu.Lock()
		l.sent = append(l.sent, it)
		l.mu.Unlock()
		if it.Priority == types.PrioCritical {
			close(l.critical)
		}
	}
}

func (l *fakeLink) LinkUp() <-chan struct{}       { return l.up }
func (l *fakeLink) CriticalSent() <-chan struct{} { return l.critical }

func (l *fakeLink) items() []types.Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]types.Item(nil), l.sent...)
}

type acqFunc func(ctx context.Context) error

func (f acqFunc) Run(ctx context.Context) error { return f(ctx) }

func newKeeper(t *testing.T) (*watchdog.Service, *sim.Watchdog, chan struct{}) {
	t.Helper()
	wd := sim.NewWatchdog(zap.NewNop())
	expired := make(chan struct{})
	var once sync.Once
	wd.OnExpire = func() { once.Do(func() { close(expired) }) }
	svc := watchdog.New(watchdog.Config{Timeout: 150 * time.Millisecond, Interval: 20 * time.Millisecond}, wd, nil, zap.NewNop())
	return svc, wd, expired
}

func TestSetupFailureBroadcastsCriticalAndStopsPetting(t *testing.T) {
	box := mailbox.New[types.Item](20)
	link := newFakeLink(box)
	keeper, wd, expired := newKeeper(t)

	started := make(chan struct{})
	acq := acqFunc(func(ctx context.Context) error {
		close(started)
		return &sensors.SetupError{Device: types.DeviceBme680, Class: types.FaultSetupTimeout, Err: sensors.ErrTimeout}
	})

	s := New(Options{Link: link, Watchdog: keeper, Acquisition: acq, Out: box, Log: zap.NewNop()})
	err := s.Run(context.Background())
	require.Equal(t, errcode.SetupTimeout, errcode.Of(err))

	select {
	case <-started:
	default:
		t.Fatal("acquisition never started")
	}

	// The critical sorts ahead of the fault, which may still be queued.
	var crit *types.Critical
	for _, it := range link.items() {
		switch v := it.Payload.(type) {
		case types.Critical:
			crit = &v
		case types.Fault:
			require.Equal(t, types.DeviceBme680, v.Device)
			require.Equal(t, types.FaultSetupTimeout, v.Class)
		}
	}
	require.NotNil(t, crit)
	require.Contains(t, crit.Cause, "setup_timeout")

	pets := wd.Pets()
	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatal("watchdog was never left to expire")
	}
	require.Equal(t, pets, wd.Pets(), "no pets after escalation")
}

func TestAcquisitionWaitsForLink(t *testing.T) {
	box := mailbox.New[types.Item](20)
	link := newFakeLink(box)
	link.delay = 80 * time.Millisecond
	keeper, _, _ := newKeeper(t)

	begin := time.Now()
	var startedAt time.Time
	ctx, cancel := context.WithCancel(context.Background())
	acq := acqFunc(func(actx context.Context) error {
		startedAt = time.Now()
		cancel()
		<-actx.Done()
		return actx.Err()
	})

	s := New(Options{Link: link, Watchdog: keeper, Acquisition: acq, Out: box})
	require.ErrorIs(t, s.Run(ctx), context.Canceled)
	require.GreaterOrEqual(t, startedAt.Sub(begin), link.delay)
	require.Empty(t, link.items(), "operator shutdown broadcasts nothing")
}

func TestAllBusesFaultedEscalates(t *testing.T) {
	box := mailbox.New[types.Item](20)
	link := newFakeLink(box)
	keeper, _, _ := newKeeper(t)
	acq := acqFunc(func(ctx context.Context) error {
		return errcode.New(errcode.AllBusesFaulted, "sensors.slow", "sht31,max44009")
	})

	err := New(Options{Link: link, Watchdog: keeper, Acquisition: acq, Out: box}).Run(context.Background())
	require.True(t, errcode.Is(err, errcode.AllBusesFaulted))

	sent := link.items()
	require.Len(t, sent, 1, "no fault payload without a device")
	crit := sent[0].Payload.(types.Critical)
	require.Contains(t, crit.Cause, "all_buses_faulted")
}

func TestLinkGroupExitIsTerminal(t *testing.T) {
	box := mailbox.New[types.Item](20)
	keeper, _, _ := newKeeper(t)
	link := &brokenLink{up: make(chan struct{})}
	acq := acqFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	err := New(Options{Link: link, Watchdog: keeper, Acquisition: acq, Out: box}).Run(context.Background())
	require.True(t, errcode.Is(err, errcode.LinkGroupStopped), "got %v", err)
}

type brokenLink struct{ up chan struct{} }

func (l *brokenLink) Run(ctx context.Context) error { return nil }
func (l *brokenLink) LinkUp() <-chan struct{}       { return l.up }
func (l *brokenLink) CriticalSent() <-chan struct{} { return nil }
