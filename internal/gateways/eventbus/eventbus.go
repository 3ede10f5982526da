package eventbus

import (
	"log/slog"

	"github.com/quintans/eventhub/internal/app"
	"github.com/quintans/eventhub/internal/lib/bus"
)

var _ app.EventBus = (*EventBus)(nil)

type EventBus struct {
	bus *bus.Bus
}

func New(bus *bus.Bus) *EventBus {
	return &EventBus{
		bus: bus,
	}
}

func (e *EventBus) Publish(msg app.Message) {
	if err := e.bus.Publish(msg); err != nil {
		slog.Error("Failed to publish", "error", err)
	}
}

func (e *EventBus) PublishOnUI(msg app.Message) {
	if err := e.bus.PublishOnPrimary(msg); err != nil {
		slog.Error("Failed to publish on UI", "error", err)
	}
}

func (e *EventBus) Subscribe(subscriber any, channels ...string) error {
	return e.bus.Subscribe(subscriber, channels...)
}

func (e *EventBus) Unsubscribe(subscriber any, channels ...string) {
	e.bus.Unsubscribe(subscriber, channels...)
}

func (e *EventBus) Success(msg string, args ...any) {
	e.PublishOnUI(app.NewNotifySuccess(msg, args...))
}

func (e *EventBus) Info(msg string, args ...any) {
	e.PublishOnUI(app.NewNotifyInfo(msg, args...))
}

func (e *EventBus) Warn(msg string, args ...any) {
	e.PublishOnUI(app.NewNotifyWarn(msg, args...))
}

func (e *EventBus) Error(msg string, args ...any) {
	e.PublishOnUI(app.NewNotifyError(msg, args...))
}
