// Package watchdog keeps the hardware watchdog fed while the node is healthy.
// Once feeding stops the board resets within the armed timeout.
package watchdog

import (
	"context"
	"time"

	"go.uber.org/zap"

	"sensenode/metrics"
	"sensenode/services/hal"
)

const (
	DefaultTimeout  = 20 * time.Second
	DefaultInterval = 8 * time.Second
)

type Config struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	Interval time.Duration `mapstructure:"interval"`
}

type Service struct {
	cfg     Config
	wd      hal.Watchdog
	log     *zap.Logger
	metrics *metrics.Metrics
}

func New(cfg Config, wd hal.Watchdog, m *metrics.Metrics, log *zap.Logger) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Interval <= 0 || cfg.Interval >= cfg.Timeout {
		cfg.Interval = cfg.Timeout * 2 / 5
	}
	return &Service{cfg: cfg, wd: wd, log: log.Named("watchdog"), metrics: m}
}

// Timeout is the armed reset window.
func (s *Service) Timeout() time.Duration { return s.cfg.Timeout }

// Run arms the watchdog and pets it every interval until ctx ends. It never
// disarms: stopping Run is how the board gets reset.
func (s *Service) Run(ctx context.Context) error {
	if err := s.wd.Arm(s.cfg.Timeout); err != nil {
		return err
	}
	s.log.Info("armed", zap.Duration("timeout", s.cfg.Timeout), zap.Duration("interval", s.cfg.Interval))

	tick := time.NewTicker(s.cfg.Interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("no longer petting")
			return ctx.Err()
		case <-tick.C:
			if err := s.wd.Pet(); err != nil {
				s.log.Warn("pet failed", zap.Error(err))
				continue
			}
			s.metrics.WatchdogPet()
		}
	}
}

// Disarm stops the watchdog for an orderly operator shutdown.
func (s *Service) Disarm() error { return s.wd.Disarm() }
