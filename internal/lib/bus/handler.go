package bus

import (
	"fmt"
	"reflect"
	"sync/atomic"
	"unsafe"
	"weak"

	"github.com/google/uuid"
	"github.com/quintans/eventhub/internal/lib/fails"
)

// handler is the registry entry of one subscriber instance.
// The subscriber is only referenced weakly. Its pointer type is kept so that a live
// target can be rebuilt as a typed receiver for the invokers.
type handler struct {
	id       uuid.UUID
	target   weak.Pointer[byte]
	typ      reflect.Type
	invokers []*invoker
	// guarded by Bus.mu
	channels map[string]struct{}
	removed  atomic.Bool
}

func newHandler(target weak.Pointer[byte], typ reflect.Type, invokers []*invoker, channels []string) *handler {
	h := &handler{
		id:       uuid.New(),
		target:   target,
		typ:      typ,
		invokers: invokers,
		channels: make(map[string]struct{}, len(channels)),
	}
	h.subscribeTo(channels)
	return h
}

// weakRef validates the subscriber's shape and returns a weak reference to it.
func weakRef(subscriber any) (weak.Pointer[byte], reflect.Type, error) {
	if subscriber == nil {
		return weak.Pointer[byte]{}, nil, fails.NewWithErr(ErrInvalidSubscriber, "subscriber is nil")
	}

	v := reflect.ValueOf(subscriber)
	typ := v.Type()
	if typ.Kind() != reflect.Pointer {
		return weak.Pointer[byte]{}, nil, fails.NewWithErr(ErrInvalidSubscriber, "subscriber must be a pointer", "type", typ.String())
	}
	if v.IsNil() {
		return weak.Pointer[byte]{}, nil, fails.NewWithErr(ErrInvalidSubscriber, "subscriber is a nil pointer", "type", typ.String())
	}
	// zero sized values all share one address outside of the heap
	if typ.Elem().Size() == 0 {
		return weak.Pointer[byte]{}, nil, fails.NewWithErr(ErrInvalidSubscriber, "subscriber must not be zero sized", "type", typ.String())
	}

	return weak.Make((*byte)(v.UnsafePointer())), typ, nil
}

// resolve returns the subscriber as a typed receiver, or false if it was collected.
func (h *handler) resolve() (reflect.Value, bool) {
	p := h.target.Value()
	if p == nil {
		return reflect.Value{}, false
	}
	return reflect.NewAt(h.typ.Elem(), unsafe.Pointer(p)), true
}

func (h *handler) subscribeTo(channels []string) {
	for _, c := range channels {
		h.channels[c] = struct{}{}
	}
}

// unsubscribeFrom removes the channels and reports whether the handler has none left.
func (h *handler) unsubscribeFrom(channels []string) bool {
	for _, c := range channels {
		delete(h.channels, c)
	}
	return len(h.channels) == 0
}

func (h *handler) listensTo(channels []string) bool {
	for _, c := range channels {
		if _, ok := h.channels[c]; ok {
			return true
		}
	}
	return false
}

func (h *handler) String() string {
	return fmt.Sprintf("%s(%s)", h.typ, h.id)
}
