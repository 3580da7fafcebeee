package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrStalled means no bytes moved within the transfer timeout. It matches
// context.DeadlineExceeded.
var ErrStalled = fmt.Errorf("transfer: no data within the transfer timeout: %w", context.DeadlineExceeded)

// idleWatchdog cancels its context when kick has not been called for d.
// A transfer that keeps moving bytes never expires, however long it runs.
type idleWatchdog struct {
	d      time.Duration
	cancel context.CancelCauseFunc

	mu     sync.Mutex
	timer  *time.Timer
	paused bool
}

// withIdleTimeout returns a context canceled with ErrStalled after d
// without a kick. stop releases the timer and must always be called.
func withIdleTimeout(parent context.Context, d time.Duration) (ctx context.Context, w *idleWatchdog, stop func()) {
	ctx, cancel := context.WithCancelCause(parent)
	w = &idleWatchdog{d: d, cancel: cancel}
	w.timer = time.AfterFunc(d, func() { cancel(ErrStalled) })

	return ctx, w, func() {
		w.mu.Lock()
		w.timer.Stop()
		w.paused = true
		w.mu.Unlock()
		cancel(context.Canceled)
	}
}

// kick restarts the idle period.
func (w *idleWatchdog) kick() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.paused {
		w.timer.Reset(w.d)
	}
}

// pause stops the watchdog for good. The upload uses it once the body is
// fully sent; the wait for the reply is bounded by the HTTP transport.
func (w *idleWatchdog) pause() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.paused = true
	w.timer.Stop()
}

// stallCause replaces a cancellation error with ErrStalled when the
// watchdog fired.
func stallCause(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); errors.Is(cause, ErrStalled) {
		return ErrStalled
	}

	return err
}
