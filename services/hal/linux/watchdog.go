//go:build linux

package linux

import (
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"sensenode/errcode"
)

// watchdog drives the kernel watchdog character device. Opening the device
// starts the countdown, so it is only opened by Arm.
type watchdog struct {
	path string
	log  *zap.Logger

	mu sync.Mutex
	f  *os.File
}

func (w *watchdog) Arm(timeout time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		f, err := os.OpenFile(w.path, os.O_WRONLY, 0)
		if err != nil {
			return errcode.Wrap(errcode.Unsupported, "watchdog.Arm", err)
		}
		w.f = f
	}
	secs := int(timeout.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	if err := unix.IoctlSetPointerInt(int(w.f.Fd()), unix.WDIOC_SETTIMEOUT, secs); err != nil {
		// Some drivers have a fixed period; the device is still armed.
		w.log.Warn("watchdog timeout not applied", zap.Int("seconds", secs), zap.Error(err))
	}
	w.log.Info("watchdog armed", zap.String("path", w.path), zap.Int("seconds", secs))
	return nil
}

func (w *watchdog) Pet() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return errcode.New(errcode.InvalidParams, "watchdog.Pet", "not armed")
	}
	if _, err := w.f.Write([]byte{'k'}); err != nil {
		return errcode.Wrap(errcode.Error, "watchdog.Pet", err)
	}
	return nil
}

// Disarm performs the magic close. Drivers built with nowayout ignore it.
func (w *watchdog) Disarm() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	_, _ = w.f.Write([]byte{'V'})
	err := w.f.Close()
	w.f = nil
	return err
}
