// Package supervisor runs the link group (publisher and watchdog) against the
// acquisition pipeline. When acquisition fails for good it stops feeding the
// watchdog, broadcasts a Critical and leaves the reset to the hardware.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"sensenode/errcode"
	"sensenode/logger"
	"sensenode/metrics"
	"sensenode/types"
)

// Link is the network publisher.
type Link interface {
	Run(ctx context.Context) error
	LinkUp() <-chan struct{}
	CriticalSent() <-chan struct{}
}

// Keeper is the watchdog service.
type Keeper interface {
	Run(ctx context.Context) error
	Timeout() time.Duration
	Disarm() error
}

// Acquisition is the sensor pipeline. Run returns only with an error.
type Acquisition interface {
	Run(ctx context.Context) error
}

// Broadcaster is the blocking producer side of the priority channel.
type Broadcaster interface {
	Publish(ctx context.Context, it types.Item) error
}

type Options struct {
	Link        Link
	Watchdog    Keeper
	Acquisition Acquisition
	Out         Broadcaster
	Metrics     *metrics.Metrics
	Log         *zap.Logger

	// DisarmOnShutdown disarms the watchdog when ctx is cancelled by the
	// operator. The critical path never disarms.
	DisarmOnShutdown bool
}

type Supervisor struct {
	opts Options
	log  *zap.Logger
}

func New(opts Options) *Supervisor {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Supervisor{opts: opts, log: log.Named("supervisor")}
}

type exit struct {
	who string
	err error
}

// Run blocks until the node must stop. It returns ctx.Err() on operator
// shutdown and the terminal error otherwise.
func (s *Supervisor) Run(ctx context.Context) error {
	o := s.opts
	var wg sync.WaitGroup
	defer wg.Wait()

	linkCtx, stopLink := context.WithCancel(ctx)
	defer stopLink()
	wdCtx, stopWatchdog := context.WithCancel(ctx)
	defer stopWatchdog()
	acqCtx, stopAcq := context.WithCancel(ctx)
	defer stopAcq()

	// Group A: link and watchdog. Either one ending ends the group.
	groupA := make(chan exit, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		groupA <- exit{"link", o.Link.Run(linkCtx)}
	}()
	go func() {
		defer wg.Done()
		groupA <- exit{"watchdog", o.Watchdog.Run(wdCtx)}
	}()

	// Group B: acquisition, once the collector is reachable.
	groupB := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-acqCtx.Done():
			groupB <- acqCtx.Err()
			return
		case <-o.Link.LinkUp():
		}
		s.log.Info("link up, starting acquisition")
		groupB <- o.Acquisition.Run(acqCtx)
	}()

	shutdown := func() error {
		stopLink()
		stopWatchdog()
		stopAcq()
		wg.Wait()
		return s.shutdown(ctx)
	}

	select {
	case <-ctx.Done():
		return shutdown()

	case e := <-groupA:
		if ctx.Err() != nil {
			return shutdown()
		}
		err := errcode.Wrap(errcode.LinkGroupStopped, "supervisor", errors.Wrap(nilAsStopped(e.err), e.who))
		s.log.Error("link group stopped unexpectedly", zap.String(logger.FieldComponent, e.who), zap.Error(err))
		return err

	case err := <-groupB:
		if ctx.Err() != nil {
			return shutdown()
		}
		if err == nil {
			err = errcode.New(errcode.AcquisitionStopped, "supervisor", "acquisition returned without error")
			s.log.Error("acquisition returned nil", zap.Error(err))
		}
		stopWatchdog()
		s.escalate(ctx, err, groupA)
		return err
	}
}

// escalate reports the terminal error and waits, bounded by the watchdog
// window, for it to reach the collector. The link stays up meanwhile.
func (s *Supervisor) escalate(ctx context.Context, cause error, groupA <-chan exit) {
	o := s.opts
	s.log.Error("acquisition failed, escalating",
		zap.String(logger.FieldErrorCode, string(errcode.Of(cause))),
		zap.Error(cause))

	bctx, cancel := context.WithTimeout(ctx, o.Watchdog.Timeout())
	defer cancel()

	var fe interface{ Fault() types.Fault }
	if errors.As(cause, &fe) {
		s.publish(bctx, types.Item{Priority: types.PrioFault, Payload: fe.Fault()})
	}
	s.publish(bctx, types.CriticalItem(cause.Error()))

	for {
		select {
		case <-o.Link.CriticalSent():
			s.log.Info("critical delivered, waiting for watchdog reset")
			return
		case e := <-groupA:
			if e.who == "link" {
				s.log.Warn("link stopped before the critical was delivered", zap.Error(e.err))
				return
			}
		case <-bctx.Done():
			s.log.Warn("critical not delivered within watchdog window")
			return
		}
	}
}

func (s *Supervisor) publish(ctx context.Context, it types.Item) {
	if err := s.opts.Out.Publish(ctx, it); err != nil {
		s.opts.Metrics.ItemDropped(it.Priority)
		s.log.Warn("broadcast dropped", zap.Stringer(logger.FieldPriority, it.Priority), zap.Error(err))
		return
	}
	s.opts.Metrics.ItemAccepted(it.Priority)
	s.opts.Metrics.Payload(it.Payload)
}

func (s *Supervisor) shutdown(ctx context.Context) error {
	s.log.Info("shutting down")
	if s.opts.DisarmOnShutdown {
		if err := s.opts.Watchdog.Disarm(); err != nil {
			s.log.Warn("disarm failed", zap.Error(err))
		}
	}
	return ctx.Err()
}

func nilAsStopped(err error) error {
	if err == nil {
		return errors.New("returned without error")
	}
	return err
}
