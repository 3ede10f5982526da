package bus

import "log/slog"

type Option func(*Bus)

// WithPrimary sets the dispatcher used by PublishOnPrimary, usually one that runs the work
// on the UI thread. Without it PublishOnPrimary behaves like Publish.
func WithPrimary(dispatcher Dispatcher) Option {
	return func(b *Bus) {
		if dispatcher != nil {
			b.primary = dispatcher
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func WithObserver(observer Observer) Option {
	return func(b *Bus) {
		if observer != nil {
			b.observer = observer
		}
	}
}

// Observer is notified of the bus activity. Implementations must be safe for concurrent use
// and must not call back into the bus.
type Observer interface {
	// Published is called once per accepted publish.
	Published(kind string)
	// Delivered is called every time a handle method is about to run.
	Delivered(kind string)
	// Pruned is called with the number of collected subscribers removed by a publish.
	Pruned(count int)
	// Subscribers is called with the number of registered subscribers after it changes.
	Subscribers(count int)
}

type nopObserver struct{}

func (nopObserver) Published(string) {}
func (nopObserver) Delivered(string) {}
func (nopObserver) Pruned(int)       {}
func (nopObserver) Subscribers(int)  {}
