package bus_test

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quintans/eventhub/internal/lib/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Foo struct{ ID int }

type Bar struct{ ID int }

func (Bar) Kind() string {
	return "bar"
}

type Animal interface {
	Name() string
}

type Dog struct{ name string }

func (d Dog) Name() string { return d.name }

type Cat struct{ name string }

func (c Cat) Name() string { return c.name }

type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

func (j *journal) Entries() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type fooHandler struct {
	name string
	j    *journal
}

func (h *fooHandler) HandleFoo(m Foo) {
	h.j.add("%s.Foo(%d)", h.name, m.ID)
}

type fooBarHandler struct {
	name string
	j    *journal
}

func (h *fooBarHandler) HandleFoo(m Foo) {
	h.j.add("%s.Foo(%d)", h.name, m.ID)
}

func (h *fooBarHandler) HandleBar(m Bar) {
	h.j.add("%s.Bar(%d)", h.name, m.ID)
}

type animalLover struct {
	j *journal
}

func (a *animalLover) HandleAnimal(m Animal) {
	a.j.add("Animal(%s)", m.Name())
}

func (a *animalLover) HandleDog(m Dog) {
	a.j.add("Dog(%s)", m.Name())
}

type dogOnly struct {
	j *journal
}

func (d *dogOnly) HandleDog(m Dog) {
	d.j.add("DogOnly(%s)", m.Name())
}

type valueReceiver struct {
	j *journal
}

func (v valueReceiver) Handle(m Foo) {
	v.j.add("Value.Foo(%d)", m.ID)
}

func (v valueReceiver) HandleWithResult(Foo) error { return nil }

func (v valueReceiver) HandleMany(...Foo) {}

func TestPublish_DeliversByMessageType(t *testing.T) {
	j := &journal{}
	b := bus.New()
	a := &fooHandler{name: "A", j: j}
	bb := &fooBarHandler{name: "B", j: j}
	require.NoError(t, b.Subscribe(a))
	require.NoError(t, b.Subscribe(bb))

	require.NoError(t, b.Publish(Foo{ID: 1}))
	assert.Equal(t, []string{"A.Foo(1)", "B.Foo(1)"}, j.Entries())

	require.NoError(t, b.Publish(Bar{ID: 2}))
	assert.Equal(t, []string{"A.Foo(1)", "B.Foo(1)", "B.Bar(2)"}, j.Entries())
}

func TestSubscribe_Twice(t *testing.T) {
	j := &journal{}
	b := bus.New()
	a := &fooHandler{name: "A", j: j}
	require.NoError(t, b.Subscribe(a))
	require.NoError(t, b.Subscribe(a))
	assert.Equal(t, 1, b.Len())

	require.NoError(t, b.Publish(Foo{ID: 1}))
	assert.Equal(t, []string{"A.Foo(1)"}, j.Entries())

	b.Unsubscribe(a)
	assert.Equal(t, 0, b.Len())
}

func TestUnsubscribe(t *testing.T) {
	j := &journal{}
	b := bus.New()
	a := &fooHandler{name: "A", j: j}
	require.NoError(t, b.Subscribe(a))
	b.Unsubscribe(a)

	require.NoError(t, b.Publish(Foo{ID: 1}))
	assert.Empty(t, j.Entries())

	// unknown and invalid subscribers are ignored
	b.Unsubscribe(a)
	b.Unsubscribe(&fooHandler{})
	b.Unsubscribe(nil)
	b.Unsubscribe(fooHandler{})
}

type barHandler struct {
	name string
	j    *journal
}

func (h *barHandler) HandleBar(m Bar) {
	h.j.add("%s.Bar(%d)", h.name, m.ID)
}

// outer starts with a non zero sized field, so outer and &outer.inner have the same address.
type outer struct {
	inner barHandler
	j     *journal
}

func (o *outer) HandleFoo(m Foo) {
	o.j.add("Outer.Foo(%d)", m.ID)
}

func TestSubscribe_SharedAddress(t *testing.T) {
	j := &journal{}
	b := bus.New()
	o := &outer{inner: barHandler{name: "Inner", j: j}, j: j}
	require.NoError(t, b.Subscribe(o))
	require.NoError(t, b.Subscribe(&o.inner))
	assert.Equal(t, 2, b.Len())

	require.NoError(t, b.Publish(Foo{ID: 1}))
	require.NoError(t, b.Publish(Bar{ID: 2}))
	assert.Equal(t, []string{"Outer.Foo(1)", "Inner.Bar(2)"}, j.Entries())

	b.Unsubscribe(&o.inner)
	assert.Equal(t, 1, b.Len())
	require.NoError(t, b.Publish(Foo{ID: 3}))
	require.NoError(t, b.Publish(Bar{ID: 4}))
	assert.Equal(t, []string{"Outer.Foo(1)", "Inner.Bar(2)", "Outer.Foo(3)"}, j.Entries())

	b.Unsubscribe(o)
	assert.Equal(t, 0, b.Len())
}

func TestPublish_InterfaceMessageType(t *testing.T) {
	j := &journal{}
	b := bus.New()
	require.NoError(t, b.Subscribe(&animalLover{j: j}))
	require.NoError(t, b.Subscribe(&dogOnly{j: j}))

	require.NoError(t, b.Publish(Dog{name: "rex"}))
	assert.Equal(t, []string{"Animal(rex)", "Dog(rex)", "DogOnly(rex)"}, j.Entries())

	j.entries = nil
	require.NoError(t, b.Publish(Cat{name: "tom"}))
	assert.Equal(t, []string{"Animal(tom)"}, j.Entries())

	j.entries = nil
	require.NoError(t, b.Publish(Foo{}))
	assert.Empty(t, j.Entries())
}

func TestSubscribe_ValueReceiverMethods(t *testing.T) {
	j := &journal{}
	b := bus.New()
	require.NoError(t, b.Subscribe(&valueReceiver{j: j}))

	require.NoError(t, b.Publish(Foo{ID: 7}))
	assert.Equal(t, []string{"Value.Foo(7)"}, j.Entries())
}

type empty struct{}

func (*empty) HandleFoo(Foo) {}

type ambiguous struct {
	n int
}

func (*ambiguous) HandleFoo(Foo)   {}
func (*ambiguous) HandleOther(Foo) {}

type noHandlers struct {
	n int
}

func TestSubscribe_Invalid(t *testing.T) {
	tests := []struct {
		name       string
		subscriber any
	}{
		{name: "nil", subscriber: nil},
		{name: "not a pointer", subscriber: fooHandler{}},
		{name: "nil pointer", subscriber: (*fooHandler)(nil)},
		{name: "zero sized", subscriber: &empty{}},
		{name: "same message type twice", subscriber: &ambiguous{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := bus.New()
			err := b.Subscribe(tt.subscriber)
			assert.ErrorIs(t, err, bus.ErrInvalidSubscriber)
			assert.Equal(t, 0, b.Len())
		})
	}
}

func TestSubscribe_WithoutHandleMethods(t *testing.T) {
	b := bus.New()
	s := &noHandlers{}
	require.NoError(t, b.Subscribe(s))
	assert.Equal(t, 1, b.Len())
	require.NoError(t, b.Publish(Foo{}))
}

func TestPublish_Preconditions(t *testing.T) {
	b := bus.New()
	j := &journal{}
	require.NoError(t, b.Subscribe(&fooHandler{name: "A", j: j}))

	assert.ErrorIs(t, b.Publish(nil), bus.ErrNilMessage)
	assert.ErrorIs(t, b.PublishWithDispatcher(Foo{}, nil), bus.ErrNilDispatcher)
	assert.Empty(t, j.Entries())
}

func TestPublish_SubscriptionOrder(t *testing.T) {
	j := &journal{}
	b := bus.New()
	subscribers := []*fooHandler{
		{name: "C", j: j},
		{name: "A", j: j},
		{name: "B", j: j},
	}
	for _, s := range subscribers {
		require.NoError(t, b.Subscribe(s))
	}

	require.NoError(t, b.Publish(Foo{ID: 1}))
	require.NoError(t, b.PublishWithDispatcher(Foo{ID: 2}, func(work func()) { work() }))

	assert.Equal(t, []string{
		"C.Foo(1)", "A.Foo(1)", "B.Foo(1)",
		"C.Foo(2)", "A.Foo(2)", "B.Foo(2)",
	}, j.Entries())
}

type queue struct {
	mu    sync.Mutex
	works []func()
}

func (q *queue) dispatch(work func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.works = append(q.works, work)
}

func (q *queue) drain() int {
	q.mu.Lock()
	works := q.works
	q.works = nil
	q.mu.Unlock()

	for _, w := range works {
		w()
	}
	return len(works)
}

func TestPublishWithDispatcher_Deferred(t *testing.T) {
	j := &journal{}
	b := bus.New()
	a := &fooHandler{name: "A", j: j}
	bb := &fooBarHandler{name: "B", j: j}
	require.NoError(t, b.Subscribe(a))
	require.NoError(t, b.Subscribe(bb))

	q := &queue{}
	require.NoError(t, b.PublishWithDispatcher(Foo{ID: 1}, q.dispatch))
	assert.Empty(t, j.Entries())

	// work pending for an unsubscribed handler is skipped
	b.Unsubscribe(a)
	assert.Equal(t, 2, q.drain())
	assert.Equal(t, []string{"B.Foo(1)"}, j.Entries())
}

func TestPublishOnPrimary(t *testing.T) {
	j := &journal{}
	q := &queue{}
	b := bus.New(bus.WithPrimary(q.dispatch))
	require.NoError(t, b.Subscribe(&fooHandler{name: "A", j: j}))

	require.NoError(t, b.PublishOnPrimary(Foo{ID: 3}))
	assert.Empty(t, j.Entries())
	assert.Equal(t, 1, q.drain())
	assert.Equal(t, []string{"A.Foo(3)"}, j.Entries())
}

func TestPublishOnPrimary_DefaultsToImmediate(t *testing.T) {
	j := &journal{}
	b := bus.New()
	require.NoError(t, b.Subscribe(&fooHandler{name: "A", j: j}))

	require.NoError(t, b.PublishOnPrimary(Foo{ID: 4}))
	assert.Equal(t, []string{"A.Foo(4)"}, j.Entries())
}

type counter struct {
	calls *atomic.Int32
}

func (c *counter) HandleFoo(Foo) {
	c.calls.Add(1)
}

func subscribeDetached(t *testing.T, b *bus.Bus, calls *atomic.Int32) {
	t.Helper()
	require.NoError(t, b.Subscribe(&counter{calls: calls}))
}

func TestPublish_PrunesCollectedSubscribers(t *testing.T) {
	obs := &countingObserver{}
	b := bus.New(bus.WithObserver(obs))

	var detached, kept atomic.Int32
	subscribeDetached(t, b, &detached)
	keep := &counter{calls: &kept}
	require.NoError(t, b.Subscribe(keep))
	require.Equal(t, 2, b.Len())

	assert.Eventually(t, func() bool {
		runtime.GC()
		_ = b.Publish(Foo{})
		return b.Len() == 1
	}, 5*time.Second, 10*time.Millisecond)

	before := detached.Load()
	keptBefore := kept.Load()
	require.NoError(t, b.Publish(Foo{}))
	assert.Equal(t, before, detached.Load())
	assert.Equal(t, keptBefore+1, kept.Load())
	assert.Equal(t, int32(1), obs.pruned.Load())

	runtime.KeepAlive(keep)
}

type selfRemover struct {
	b     *bus.Bus
	next  any
	j     *journal
	calls int
}

func (s *selfRemover) HandleFoo(m Foo) {
	s.calls++
	s.j.add("Remover.Foo(%d)", m.ID)
	s.b.Unsubscribe(s)
	s.b.Unsubscribe(s.next)
	_ = s.b.Publish(Bar{ID: m.ID})
	_ = s.b.Subscribe(&fooHandler{name: "Late", j: s.j})
}

func TestPublish_ReentrantCalls(t *testing.T) {
	j := &journal{}
	b := bus.New()
	next := &fooBarHandler{name: "Next", j: j}
	last := &fooBarHandler{name: "Last", j: j}
	remover := &selfRemover{b: b, next: next, j: j}
	require.NoError(t, b.Subscribe(remover))
	require.NoError(t, b.Subscribe(next))
	require.NoError(t, b.Subscribe(last))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Publish(Foo{ID: 1})
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish deadlocked")
	}

	assert.Equal(t, []string{"Remover.Foo(1)", "Last.Bar(1)", "Last.Foo(1)"}, j.Entries())
	assert.Equal(t, 1, remover.calls)
	// last and the subscriber added by the remover
	assert.Equal(t, 2, b.Len())
}

type panicker struct {
	n int
}

func (*panicker) HandleFoo(Foo) {
	panic("boom")
}

func TestPublish_PanicsPropagate(t *testing.T) {
	j := &journal{}
	b := bus.New()
	p := &panicker{}
	require.NoError(t, b.Subscribe(p))

	assert.PanicsWithValue(t, "boom", func() {
		_ = b.Publish(Foo{})
	})

	// the bus is still usable
	b.Unsubscribe(p)
	require.NoError(t, b.Subscribe(&fooHandler{name: "A", j: j}))
	require.NoError(t, b.Publish(Foo{ID: 5}))
	assert.Equal(t, []string{"A.Foo(5)"}, j.Entries())
}

func TestChannels(t *testing.T) {
	j := &journal{}
	b := bus.New()
	a := &fooHandler{name: "A", j: j}
	require.NoError(t, b.Subscribe(a, "a"))

	require.NoError(t, b.Publish(Foo{ID: 1}))
	assert.Empty(t, j.Entries())

	require.NoError(t, b.Publish(Foo{ID: 2}, "a"))
	require.NoError(t, b.Publish(Foo{ID: 3}, "x", "a"))
	assert.Equal(t, []string{"A.Foo(2)", "A.Foo(3)"}, j.Entries())

	// a second subscribe extends the channels
	require.NoError(t, b.Subscribe(a, "b"))
	assert.Equal(t, 1, b.Len())
	require.NoError(t, b.Publish(Foo{ID: 4}, "b"))

	b.Unsubscribe(a, "a")
	require.NoError(t, b.Publish(Foo{ID: 5}, "a"))
	require.NoError(t, b.Publish(Foo{ID: 6}, "b"))
	assert.Equal(t, []string{"A.Foo(2)", "A.Foo(3)", "A.Foo(4)", "A.Foo(6)"}, j.Entries())

	b.Unsubscribe(a, "b")
	assert.Equal(t, 0, b.Len())
}

func TestChannels_DefaultChannel(t *testing.T) {
	j := &journal{}
	b := bus.New()
	require.NoError(t, b.Subscribe(&fooHandler{name: "A", j: j}))

	require.NoError(t, b.Publish(Foo{ID: 1}, bus.DefaultChannel))
	require.NoError(t, b.Publish(Foo{ID: 2}, "other"))
	assert.Equal(t, []string{"A.Foo(1)"}, j.Entries())
}

type countingObserver struct {
	published   atomic.Int32
	delivered   atomic.Int32
	pruned      atomic.Int32
	subscribers atomic.Int32

	mu    sync.Mutex
	kinds []string
}

func (o *countingObserver) Published(kind string) {
	o.published.Add(1)
	o.mu.Lock()
	defer o.mu.Unlock()
	o.kinds = append(o.kinds, kind)
}

func (o *countingObserver) Delivered(string) { o.delivered.Add(1) }
func (o *countingObserver) Pruned(n int)     { o.pruned.Add(int32(n)) }
func (o *countingObserver) Subscribers(n int) {
	o.subscribers.Store(int32(n))
}

func TestObserver(t *testing.T) {
	obs := &countingObserver{}
	j := &journal{}
	b := bus.New(bus.WithObserver(obs))
	require.NoError(t, b.Subscribe(&fooBarHandler{name: "B", j: j}))
	require.NoError(t, b.Subscribe(&fooHandler{name: "A", j: j}))
	assert.Equal(t, int32(2), obs.subscribers.Load())

	require.NoError(t, b.Publish(Foo{}))
	require.NoError(t, b.Publish(Bar{}))
	require.NoError(t, b.Publish("unhandled"))

	assert.Equal(t, int32(3), obs.published.Load())
	assert.Equal(t, int32(3), obs.delivered.Load())
	assert.Equal(t, []string{"bus_test.Foo", "bar", "string"}, obs.kinds)
}

func TestConcurrentUse(t *testing.T) {
	b := bus.New()
	var calls atomic.Int32
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := &counter{calls: &calls}
			for n := range 200 {
				switch (i + n) % 3 {
				case 0:
					_ = b.Subscribe(c)
				case 1:
					_ = b.Publish(Foo{ID: n})
				default:
					b.Unsubscribe(c)
				}
			}
			b.Unsubscribe(c)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, b.Len())
}
