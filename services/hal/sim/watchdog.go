package sim

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Watchdog is a software reset timer. When it expires OnExpire runs; the
// default logs at fatal level, which exits the process like a board reset.
type Watchdog struct {
	mu      sync.Mutex
	timeout time.Duration
	timer   *time.Timer
	pets    int

	log      *zap.Logger
	OnExpire func()
}

func NewWatchdog(log *zap.Logger) *Watchdog {
	w := &Watchdog{log: log}
	w.OnExpire = func() { w.log.Fatal("watchdog expired, resetting") }
	return w
}

func (w *Watchdog) Arm(timeout time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timeout = timeout
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(timeout, w.expire)
	w.log.Info("watchdog armed", zap.Duration("timeout", timeout))
	return nil
}

func (w *Watchdog) expire() {
	w.mu.Lock()
	f := w.OnExpire
	w.mu.Unlock()
	if f != nil {
		f()
	}
}

func (w *Watchdog) Pet() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer == nil {
		return nil
	}
	w.timer.Reset(w.timeout)
	w.pets++
	return nil
}

// Pets returns the number of keep-alives seen.
func (w *Watchdog) Pets() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pets
}

func (w *Watchdog) Disarm() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	return nil
}
