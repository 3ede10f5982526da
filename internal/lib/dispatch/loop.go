package dispatch

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"runtime"
	"strconv"
	"sync"
)

var ErrLoopStarted = errors.New("dispatch: loop already started")

type loopState int

const (
	loopIdle loopState = iota
	loopRunning
	loopStopping
	loopStopped
)

type LoopOption func(*Loop)

// WithFaultHandler sets who is told about the panics raised by the work run by the loop.
// By default they are logged.
func WithFaultHandler(fn func(error)) LoopOption {
	return func(l *Loop) {
		if fn != nil {
			l.onPanic = fn
		}
	}
}

func WithLoopLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Loop is a primary execution context for hosts without a UI thread.
// Work is run one at a time, in submission order, by the goroutine calling Run.
type Loop struct {
	mu      sync.Mutex
	state   loopState
	queue   []func()
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	onPanic func(error)
	logger  *slog.Logger
	// goroutine calling Run, guarded by mu
	owner uint64
}

func NewLoop(options ...LoopOption) *Loop {
	l := &Loop{
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		onPanic: LogPanic,
		logger:  slog.Default(),
	}
	for _, o := range options {
		o(l)
	}
	return l
}

// Dispatch queues the work. Work queued before Run is executed once the loop starts.
// Work dispatched after Stop is dropped.
func (l *Loop) Dispatch(work func()) {
	l.mu.Lock()
	if l.state == loopStopping || l.state == loopStopped {
		l.mu.Unlock()
		l.logger.Warn("Dropping work dispatched to a stopped loop")
		return
	}
	l.queue = append(l.queue, work)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued works.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Run executes the queued work until Stop is called, returning nil, or until ctx is done,
// returning the context error and discarding the pending work.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.state != loopIdle {
		l.mu.Unlock()
		return ErrLoopStarted
	}
	l.state = loopRunning
	l.owner = goroutineID()
	l.mu.Unlock()

	defer close(l.done)

	for {
		select {
		case <-ctx.Done():
			l.discard()
			return ctx.Err()
		case <-l.stop:
			l.drain(ctx)
			l.mu.Lock()
			l.state = loopStopped
			l.mu.Unlock()
			return nil
		case <-l.wake:
			l.drain(ctx)
		}
	}
}

// Stop prevents new work from being accepted, waits for the pending work to run and for Run
// to return. Stopping a loop that was never started discards its pending work.
// Called from work running on the loop, Stop returns at once and the pending work runs after
// the calling work returns.
func (l *Loop) Stop() {
	l.mu.Lock()
	switch l.state {
	case loopIdle:
		l.state = loopStopped
		l.mu.Unlock()
		l.discard()
	case loopRunning:
		l.state = loopStopping
		close(l.stop)
		onLoop := l.owner == goroutineID()
		l.mu.Unlock()
		if !onLoop {
			<-l.done
		}
	case loopStopping:
		onLoop := l.owner == goroutineID()
		l.mu.Unlock()
		if !onLoop {
			<-l.done
		}
	default:
		l.mu.Unlock()
	}
}

func (l *Loop) drain(ctx context.Context) {
	for ctx.Err() == nil {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		work := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.run(work)
	}
}

func (l *Loop) run(work func()) {
	defer func() {
		if r := recover(); r != nil {
			l.onPanic(panicError(r))
		}
	}()
	work()
}

func (l *Loop) discard() {
	l.mu.Lock()
	l.state = loopStopped
	dropped := len(l.queue)
	l.queue = nil
	l.mu.Unlock()

	if dropped > 0 {
		l.logger.Warn("Discarded pending work", "count", dropped)
	}
}

// goroutineID parses the id of the calling goroutine from the header of its stack trace,
// "goroutine 18 [running]:".
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
