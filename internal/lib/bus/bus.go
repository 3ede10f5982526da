// Package bus is an in-process publish/subscribe bus.
//
// A subscriber is any non-nil pointer whose type has methods of the form
//
//	func (s *T) HandleSomething(msg M)
//
// Every such method declares interest in messages assignable to M, so an interface M
// receives all the messages implementing it. The methods are discovered once per type,
// when the first instance of that type subscribes.
//
// The bus only holds weak references to its subscribers. A subscriber that is no longer
// referenced elsewhere is collected and silently removed on a following publish. Subscribers
// must be heap allocated; pointers to package level variables are not supported.
package bus

import (
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sync"
	"weak"
)

// DefaultChannel is used when Subscribe, Unsubscribe or a publish is called without channels.
const DefaultChannel = "DefaultChannel"

// Dispatcher decides where and when a unit of work runs.
// It must eventually run every work it accepts.
type Dispatcher func(work func())

// Kinder can be implemented by messages to name themselves in logs and metrics.
type Kinder interface {
	Kind() string
}

type Bus struct {
	mu       sync.Mutex
	handlers []*handler
	primary  Dispatcher
	logger   *slog.Logger
	observer Observer
}

func New(options ...Option) *Bus {
	b := &Bus{
		primary:  immediate,
		logger:   slog.Default(),
		observer: nopObserver{},
	}
	for _, o := range options {
		o(b)
	}
	return b
}

func immediate(work func()) {
	work()
}

// Subscribe registers the subscriber on the given channels.
// Subscribing an instance that is already registered only adds the channels.
func (b *Bus) Subscribe(subscriber any, channels ...string) error {
	channels = orDefault(channels)

	target, typ, err := weakRef(subscriber)
	if err != nil {
		return err
	}
	invokers, err := invokersFor(typ)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if i := b.indexOf(target, typ); i >= 0 {
		b.handlers[i].subscribeTo(channels)
		return nil
	}

	h := newHandler(target, typ, invokers, channels)
	b.handlers = append(b.handlers, h)
	b.logger.Debug("Subscribed", "subscriber", h.String(), "handles", len(invokers), "channels", channels)
	b.observer.Subscribers(len(b.handlers))

	return nil
}

// Unsubscribe removes the subscriber from the given channels, or from all of them if none is
// given. A subscriber left without channels is removed from the bus.
func (b *Bus) Unsubscribe(subscriber any, channels ...string) {
	target, typ, err := weakRef(subscriber)
	if err != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	i := b.indexOf(target, typ)
	if i < 0 {
		return
	}

	h := b.handlers[i]
	if len(channels) > 0 && !h.unsubscribeFrom(channels) {
		return
	}

	h.removed.Store(true)
	b.handlers = slices.Delete(b.handlers, i, i+1)
	b.logger.Debug("Unsubscribed", "subscriber", h.String())
	b.observer.Subscribers(len(b.handlers))
}

// Publish delivers msg to the matching subscribers before returning, in subscription order.
func (b *Bus) Publish(msg any, channels ...string) error {
	return b.PublishWithDispatcher(msg, immediate, channels...)
}

// PublishOnPrimary delivers msg through the primary dispatcher.
func (b *Bus) PublishOnPrimary(msg any, channels ...string) error {
	return b.PublishWithDispatcher(msg, b.primary, channels...)
}

// PublishWithDispatcher hands one work per matching handle method to the dispatcher.
// The work is submitted after the bus lock is released, so handle methods can call back
// into the bus. Panics raised by handle methods are not recovered.
func (b *Bus) PublishWithDispatcher(msg any, dispatcher Dispatcher, channels ...string) error {
	if msg == nil {
		return ErrNilMessage
	}
	if dispatcher == nil {
		return ErrNilDispatcher
	}
	channels = orDefault(channels)

	kind := kindOf(msg)
	value := reflect.ValueOf(msg)
	deliveries := b.collect(value.Type(), channels)
	b.observer.Published(kind)

	for _, d := range deliveries {
		dispatcher(func() {
			// unsubscribed while the work was pending
			if d.handler.removed.Load() {
				return
			}
			b.observer.Delivered(kind)
			d.invoker.invoke(d.target, value)
		})
	}

	return nil
}

// Len returns the number of registered subscribers, including collected ones that were not
// yet pruned.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers)
}

type delivery struct {
	handler *handler
	target  reflect.Value
	invoker *invoker
}

// collect walks the handlers in subscription order, selecting the handle methods for
// msgType and pruning the handlers whose subscriber was collected.
func (b *Bus) collect(msgType reflect.Type, channels []string) []delivery {
	b.mu.Lock()
	defer b.mu.Unlock()

	var deliveries []delivery
	dead := 0
	for _, h := range b.handlers {
		target, ok := h.resolve()
		if !ok {
			h.removed.Store(true)
			dead++
			continue
		}
		if !h.listensTo(channels) {
			continue
		}
		for _, inv := range h.invokers {
			if inv.accepts(msgType) {
				deliveries = append(deliveries, delivery{handler: h, target: target, invoker: inv})
			}
		}
	}

	if dead > 0 {
		b.handlers = slices.DeleteFunc(b.handlers, func(h *handler) bool {
			return h.removed.Load()
		})
		b.logger.Debug("Pruned collected subscribers", "count", dead, "remaining", len(b.handlers))
		b.observer.Pruned(dead)
		b.observer.Subscribers(len(b.handlers))
	}

	return deliveries
}

// indexOf finds the handler of a subscriber instance. A struct and its first field share an
// address, so the type is part of the identity.
func (b *Bus) indexOf(target weak.Pointer[byte], typ reflect.Type) int {
	return slices.IndexFunc(b.handlers, func(h *handler) bool {
		return h.target == target && h.typ == typ
	})
}

func orDefault(channels []string) []string {
	if len(channels) == 0 {
		return []string{DefaultChannel}
	}
	return channels
}

func kindOf(msg any) string {
	if v := reflect.ValueOf(msg); v.Kind() == reflect.Pointer && v.IsNil() {
		return fmt.Sprintf("%T", msg)
	}
	if k, ok := msg.(Kinder); ok {
		return k.Kind()
	}
	return fmt.Sprintf("%T", msg)
}
