package app

const (
	Version = "0.1"
	Name    = "eventhub"
)

type Controller interface {
	OnEnter()
}

type Navigator interface {
	Go(string)
	Back()
}

// Message is what the application publishes on the bus.
type Message interface {
	Kind() string
}

// EventBus is the port the controllers use to talk with the rest of the application.
type EventBus interface {
	// Publish delivers the message in the caller goroutine.
	Publish(m Message)
	// PublishOnUI delivers the message on the UI goroutine.
	PublishOnUI(m Message)
	Subscribe(subscriber any, channels ...string) error
	Unsubscribe(subscriber any, channels ...string)

	Success(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
