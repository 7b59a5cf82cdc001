package network

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"sensenode/errcode"
)

// -----------------------------------------------------------------------------
// Transport registry
// -----------------------------------------------------------------------------

// Transport opens the outbound stream to the collector.
type Transport interface {
	Open(ctx context.Context) (io.ReadWriteCloser, error)
	String() string
}

// TransportFactory builds a transport from the link configuration.
type TransportFactory func(Config) (Transport, error)

var (
	regMu    sync.RWMutex
	registry = map[string]TransportFactory{}
)

// RegisterTransport allows other packages to add transports.
func RegisterTransport(name string, f TransportFactory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[name] = f
}

// NewTransport resolves cfg.Transport; "tcp" is built in.
func NewTransport(cfg Config) (Transport, error) {
	regMu.RLock()
	f, ok := registry[cfg.Transport]
	regMu.RUnlock()
	if ok {
		return f(cfg)
	}
	switch cfg.Transport {
	case "", "tcp":
		if cfg.Address == "" {
			return nil, errcode.New(errcode.InvalidParams, "network.NewTransport", "collector address required")
		}
		return &TCP{Address: cfg.Address, KeepAlive: 15 * time.Second}, nil
	default:
		return nil, errcode.New(errcode.Unsupported, "network.NewTransport", cfg.Transport)
	}
}

// TCP dials the collector over TCP.
type TCP struct {
	Address   string
	KeepAlive time.Duration
}

func (t *TCP) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	d := net.Dialer{KeepAlive: t.KeepAlive}
	c, err := d.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return nil, err
	}
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return c, nil
}

func (t *TCP) String() string { return "tcp://" + t.Address }
