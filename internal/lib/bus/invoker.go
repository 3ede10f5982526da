package bus

import (
	"reflect"
	"strings"
	"sync"

	"github.com/quintans/eventhub/internal/lib/fails"
)

const handlePrefix = "Handle"

// invoker is the call path from a subscriber type to one of its Handle methods.
// It is built once per subscriber type and shared by every instance of that type.
type invoker struct {
	messageType reflect.Type
	method      string
	fn          reflect.Value // func(*T, M)
	// message types published to this invoker, so it is bounded by the program's types
	accepted sync.Map // map[reflect.Type]bool
}

func (i *invoker) accepts(t reflect.Type) bool {
	if v, ok := i.accepted.Load(t); ok {
		return v.(bool)
	}
	ok := t.AssignableTo(i.messageType)
	i.accepted.Store(t, ok)
	return ok
}

func (i *invoker) invoke(target, msg reflect.Value) {
	i.fn.Call([]reflect.Value{target, msg})
}

type invokerSet struct {
	invokers []*invoker
	err      error
}

var invokersCache sync.Map // map[reflect.Type]*invokerSet

// invokersFor returns the invokers of the pointer type t, scanning its method set only the
// first time t is seen.
func invokersFor(t reflect.Type) ([]*invoker, error) {
	if v, ok := invokersCache.Load(t); ok {
		set := v.(*invokerSet)
		return set.invokers, set.err
	}

	invokers, err := scan(t)
	v, _ := invokersCache.LoadOrStore(t, &invokerSet{invokers: invokers, err: err})
	set := v.(*invokerSet)
	return set.invokers, set.err
}

func scan(t reflect.Type) ([]*invoker, error) {
	var invokers []*invoker
	seen := map[reflect.Type]string{}
	for i := range t.NumMethod() {
		m := t.Method(i)
		if !isHandleMethod(m) {
			continue
		}

		msgType := m.Type.In(1)
		if other, ok := seen[msgType]; ok {
			return nil, fails.NewWithErr(
				ErrInvalidSubscriber,
				"more than one handle method for the same message type",
				"subscriber", t.String(),
				"message", msgType.String(),
				"methods", []string{other, m.Name},
			)
		}
		seen[msgType] = m.Name

		invokers = append(invokers, &invoker{
			messageType: msgType,
			method:      m.Name,
			fn:          m.Func,
		})
	}
	return invokers, nil
}

// isHandleMethod reports whether m has the shape Handle*(M) with no results.
// The receiver counts as the first input of a method obtained from a type.
func isHandleMethod(m reflect.Method) bool {
	if !strings.HasPrefix(m.Name, handlePrefix) {
		return false
	}
	mt := m.Type
	return mt.NumIn() == 2 && mt.NumOut() == 0 && !mt.IsVariadic()
}
