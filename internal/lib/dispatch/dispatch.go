// Package dispatch has ready made bus dispatchers.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"fyne.io/fyne/v2"
	"github.com/quintans/eventhub/internal/lib/bus"
	"github.com/quintans/eventhub/internal/lib/fails"
	"golang.org/x/time/rate"
)

var (
	_ bus.Dispatcher = Immediate
	_ bus.Dispatcher = Go
	_ bus.Dispatcher = Fyne
	_ bus.Dispatcher = FyneAndWait
)

// Immediate runs the work in the caller goroutine.
func Immediate(work func()) {
	work()
}

// Go runs every work in its own goroutine.
func Go(work func()) {
	go work()
}

// Fyne queues the work on the fyne UI goroutine and returns without waiting for it.
// The fyne application must be running.
func Fyne(work func()) {
	fyne.Do(work)
}

// FyneAndWait runs the work on the fyne UI goroutine and waits for it to finish.
func FyneAndWait(work func()) {
	fyne.DoAndWait(work)
}

// After runs the work in its own goroutine once delay has elapsed.
func After(delay time.Duration) bus.Dispatcher {
	return func(work func()) {
		time.AfterFunc(delay, work)
	}
}

var ErrInvalidLimiter = errors.New("dispatch: limiter never grants a token")

// Throttle forwards the work to next at the pace allowed by limiter, blocking the publisher
// while it waits for a token. A limiter with a finite rate needs a burst of at least one.
func Throttle(limiter *rate.Limiter, next bus.Dispatcher) (bus.Dispatcher, error) {
	if limiter == nil {
		return nil, fails.NewWithErr(ErrInvalidLimiter, "limiter is nil")
	}
	if next == nil {
		return nil, bus.ErrNilDispatcher
	}
	if limiter.Limit() != rate.Inf && limiter.Burst() < 1 {
		return nil, fails.NewWithErr(ErrInvalidLimiter, "burst must be at least 1", "burst", limiter.Burst())
	}

	return func(work func()) {
		if err := limiter.Wait(context.Background()); err != nil {
			// the burst was lowered after the dispatcher was built. The work must still run.
			slog.Warn("Throttled dispatcher could not wait", "error", err)
		}
		next(work)
	}, nil
}

// Recover forwards the work to next, turning a panic raised by the work into an error
// handed to onPanic. A nil onPanic logs the error.
func Recover(next bus.Dispatcher, onPanic func(error)) bus.Dispatcher {
	if onPanic == nil {
		onPanic = LogPanic
	}
	return func(work func()) {
		next(func() {
			defer func() {
				if r := recover(); r != nil {
					onPanic(panicError(r))
				}
			}()
			work()
		})
	}
}

var ErrPanic = errors.New("dispatch: work panicked")

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fails.NewWithErr(fmt.Errorf("%w: %w", ErrPanic, err), "recovered", "stack", string(debug.Stack()))
	}
	return fails.NewWithErr(ErrPanic, "recovered", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
}

// LogPanic logs an error produced by a recovered work.
func LogPanic(err error) {
	slog.Error("Recovered panic in dispatched work", fails.Attrs(err)...)
}
