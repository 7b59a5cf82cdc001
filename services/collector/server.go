// Package collector accepts node connections, decodes their frames and hands
// every batch to the configured sinks.
package collector

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sensenode/codec"
	"sensenode/errcode"
	"sensenode/logger"
	"sensenode/metrics"
	"sensenode/types"
)

const (
	DefaultListen         = ":7070"
	DefaultReadTimeout    = 2 * time.Minute
	DefaultForwardTimeout = 5 * time.Second
)

type Config struct {
	Listen string `mapstructure:"listen"`
	// ReadTimeout closes a connection that sends nothing for this long.
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	ForwardTimeout time.Duration `mapstructure:"forward_timeout"`
}

func (c Config) withDefaults() Config {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.ForwardTimeout <= 0 {
		c.ForwardTimeout = DefaultForwardTimeout
	}
	return c
}

// Sink receives every decoded batch.
type Sink interface {
	Name() string
	Forward(ctx context.Context, b codec.Batch, received time.Time) error
}

type Server struct {
	cfg     Config
	sinks   []Sink
	metrics *metrics.Metrics
	log     *zap.Logger
	limited *logger.Limited
	now     func() time.Time

	mu   sync.Mutex
	last map[string]uint32 // node -> last sequence number seen
}

func New(cfg Config, sinks []Sink, m *metrics.Metrics, log *zap.Logger) *Server {
	log = log.Named("collector")
	return &Server{
		cfg:     cfg.withDefaults(),
		sinks:   sinks,
		metrics: m,
		log:     log,
		limited: logger.NewLimited(log, 10*time.Second),
		now:     time.Now,
		last:    map[string]uint32{},
	}
}

// Run listens on cfg.Listen and serves until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Listen)
	if err != nil {
		return errcode.Wrap(errcode.Error, "collector.Listen", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx ends, then closes ln and every
// open connection and waits for their handlers.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("listening", zap.String(logger.FieldAddress, ln.Addr().String()))
	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() { _ = ln.Close() })
	defer stop()

	g.Go(func() error {
		for {
			c, err := ln.Accept()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				return errcode.Wrap(errcode.Error, "collector.Accept", err)
			}
			g.Go(func() error {
				s.handle(gctx, c)
				return nil
			})
		}
	})
	return g.Wait()
}

func (s *Server) handle(ctx context.Context, c net.Conn) {
	log := s.log.With(zap.String("remote", c.RemoteAddr().String()))
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer func() {
		stop()
		_ = c.Close()
	}()
	log.Info("node connected")

	dec := codec.NewDecoder(c)
	for {
		_ = c.SetReadDeadline(s.now().Add(s.cfg.ReadTimeout))
		b, err := dec.Decode()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), ctx.Err() != nil:
				log.Info("node disconnected")
			case isNetErr(err):
				log.Warn("connection lost", zap.Error(err))
			default:
				// The stream cannot be resynchronised after a bad frame.
				s.metrics.DecodeError()
				log.Warn("bad frame, closing connection", zap.Error(err))
			}
			return
		}
		s.accept(ctx, log, b)
	}
}

func isNetErr(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) || errors.Is(err, net.ErrClosed)
}

func (s *Server) accept(ctx context.Context, log *zap.Logger, b codec.Batch) {
	at := s.now()
	s.metrics.FrameReceived(b.Node)
	if missed := s.track(b.Node, b.Seq); missed > 0 {
		s.metrics.SequenceGap(b.Node, missed)
		log.Warn("frames missing", zap.String(logger.FieldNode, b.Node),
			zap.Uint32(logger.FieldSeq, b.Seq), zap.Uint32("missed", missed))
	}
	for _, p := range b.Payloads {
		switch v := p.(type) {
		case types.Critical:
			log.Error("node critical", zap.String(logger.FieldNode, b.Node), zap.String("cause", v.Cause))
		case types.Fault:
			log.Warn("node fault", zap.String(logger.FieldNode, b.Node),
				zap.Stringer(logger.FieldDevice, v.Device),
				zap.Stringer(logger.FieldClass, v.Class),
				zap.String("cause", v.Cause))
		case types.Reading:
			log.Debug("reading", zap.String(logger.FieldNode, b.Node), zap.Stringer(logger.FieldKind, v.Kind), zap.Stringer("value", v))
		}
	}

	fctx, cancel := context.WithTimeout(ctx, s.cfg.ForwardTimeout)
	defer cancel()
	for _, sink := range s.sinks {
		if err := sink.Forward(fctx, b, at); err != nil {
			s.metrics.ForwardError(sink.Name())
			s.limited.Warn("forward failed", zap.String("sink", sink.Name()), zap.Error(err))
			continue
		}
		s.metrics.Forwarded(sink.Name(), len(b.Payloads))
	}
}

// track records seq for node and returns how many frames were skipped. A
// sequence that does not move forward means the node restarted.
func (s *Server) track(node string, seq uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, seen := s.last[node]
	s.last[node] = seq
	if !seen || seq <= prev {
		return 0
	}
	return seq - prev - 1
}
