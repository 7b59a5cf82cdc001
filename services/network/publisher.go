// Package network drains the priority channel into batches and streams them
// to the collector over one reconnecting connection.
package network

import (
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"sensenode/codec"
	"sensenode/logger"
	"sensenode/metrics"
	"sensenode/types"
)

// Defaults.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultRetryInterval  = time.Second
	DefaultWriteTimeout   = 5 * time.Second
	DefaultWindow         = 200 * time.Millisecond
	DefaultBatchSize      = codec.MaxPayloads
)

// Config controls the link and the batching policy.
type Config struct {
	Transport      string         `mapstructure:"transport"`
	Address        string         `mapstructure:"address"`
	Node           string         `mapstructure:"node"`
	ConnectTimeout time.Duration  `mapstructure:"connect_timeout"`
	RetryInterval  time.Duration  `mapstructure:"retry_interval"`
	WriteTimeout   time.Duration  `mapstructure:"write_timeout"`
	Window         time.Duration  `mapstructure:"window"`
	BatchSize      int            `mapstructure:"batch_size"`
	LowThreshold   types.Priority `mapstructure:"low_threshold"`
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.BatchSize <= 0 || c.BatchSize > codec.MaxPayloads {
		c.BatchSize = DefaultBatchSize
	}
	if c.LowThreshold == 0 {
		c.LowThreshold = types.DefaultLowThreshold
	}
	return c
}

// Source is the consuming side of the priority channel.
type Source interface {
	Receive(ctx context.Context) (types.Item, error)
	TryReceive() (types.Item, bool)
}

// Publisher owns the collector connection.
type Publisher struct {
	cfg     Config
	src     Source
	tr      Transport
	log     *zap.Logger
	limited *logger.Limited
	metrics *metrics.Metrics

	conn     io.ReadWriteCloser
	seq      uint32
	attempts int
	buf      []byte

	linkUp       chan struct{}
	linkOnce     sync.Once
	criticalSent chan struct{}
	criticalOnce sync.Once
}

func New(cfg Config, src Source, tr Transport, m *metrics.Metrics, log *zap.Logger) *Publisher {
	cfg = cfg.withDefaults()
	log = log.Named("network").With(zap.String("transport", tr.String()))
	return &Publisher{
		cfg:          cfg,
		src:          src,
		tr:           tr,
		log:          log,
		limited:      logger.NewLimited(log, 30*time.Second),
		metrics:      m,
		linkUp:       make(chan struct{}),
		criticalSent: make(chan struct{}),
	}
}

// LinkUp is closed after the first successful connect.
func (p *Publisher) LinkUp() <-chan struct{} { return p.linkUp }

// CriticalSent is closed once a batch carrying a Critical has been written.
func (p *Publisher) CriticalSent() <-chan struct{} { return p.criticalSent }

// Run connects, then batches and sends forever. It returns only when ctx
// ends.
func (p *Publisher) Run(ctx context.Context) error {
	defer p.disconnect()
	for {
		if err := p.connect(ctx); err != nil {
			return err
		}
		b, err := p.nextBatch(ctx)
		if err != nil {
			return err
		}
		p.send(b)
	}
}

// connect retries at a fixed interval until a connection is up.
func (p *Publisher) connect(ctx context.Context) error {
	for p.conn == nil {
		p.attempts++
		cctx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
		c, err := p.tr.Open(cctx)
		cancel()
		if err == nil {
			p.conn = c
			p.metrics.Connect(true)
			p.log.Info("connected", zap.Int(logger.FieldAttempt, p.attempts))
			p.attempts = 0
			p.linkOnce.Do(func() { close(p.linkUp) })
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.metrics.Connect(false)
		p.limited.Warn("connect failed, retrying",
			zap.Int(logger.FieldAttempt, p.attempts),
			zap.Duration("retry_in", p.cfg.RetryInterval),
			zap.Error(err))
		if !sleep(ctx, p.cfg.RetryInterval) {
			return ctx.Err()
		}
	}
	return nil
}

func (p *Publisher) disconnect() {
	if p.conn == nil {
		return
	}
	_ = p.conn.Close()
	p.conn = nil
	p.metrics.LinkDown()
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// send encodes b and writes it in one piece. A failed write drops the batch
// and the connection; the next cycle reconnects.
func (p *Publisher) send(b batch) {
	frame, err := codec.Append(p.buf[:0], codec.Batch{Node: p.cfg.Node, Seq: p.seq, Payloads: b.payloads})
	if err != nil {
		p.log.Error("encode failed, dropping batch", zap.Int(logger.FieldBatchSize, len(b.payloads)), zap.Error(err))
		return
	}
	p.buf = frame
	p.seq++

	if wd, ok := p.conn.(writeDeadliner); ok {
		_ = wd.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout))
	}
	if _, err := p.conn.Write(frame); err != nil {
		p.metrics.WriteFailed()
		p.log.Warn("write failed, reconnecting",
			zap.Uint32(logger.FieldSeq, p.seq-1),
			zap.Int(logger.FieldBatchSize, len(b.payloads)),
			zap.Error(err))
		p.disconnect()
		return
	}
	p.metrics.BatchSent(len(b.payloads))
	p.log.Debug("batch sent", zap.Uint32(logger.FieldSeq, p.seq-1), zap.Int(logger.FieldBatchSize, len(b.payloads)))
	if b.critical {
		p.criticalOnce.Do(func() { close(p.criticalSent) })
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
