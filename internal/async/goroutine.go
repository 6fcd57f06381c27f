// Package async starts background goroutines that cannot take the process
// down with them.
package async

import (
	"context"
	"runtime/debug"
	"time"
)

// PanicLogger captures panic reports from background goroutines.
type PanicLogger interface {
	Error(format string, args ...any)
}

// Go runs fn in a goroutine guarded by panic recovery.
func Go(logger PanicLogger, name string, fn func()) {
	go func() {
		defer Recover(logger, name)
		fn()
	}()
}

// Detach runs fn in the background with its own context bounded by
// timeout, detached from the caller's cancellation. The returned channel
// closes when fn returns; callers may ignore it.
func Detach(parent context.Context, timeout time.Duration, logger PanicLogger, name string, fn func(ctx context.Context)) <-chan struct{} {
	done := make(chan struct{})
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), timeout)
	go func() {
		defer close(done)
		defer cancel()
		defer Recover(logger, name)
		fn(ctx)
	}()
	return done
}

// Recover logs panic details without crashing the process.
func Recover(logger PanicLogger, name string) {
	if r := recover(); r != nil {
		if logger == nil {
			return
		}
		if name == "" {
			logger.Error("goroutine panic: %v, stack: %s", r, debug.Stack())
			return
		}
		logger.Error("goroutine panic [%s]: %v, stack: %s", name, r, debug.Stack())
	}
}
