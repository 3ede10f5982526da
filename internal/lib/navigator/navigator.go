package navigator

import (
	"log/slog"
	"sync"

	"github.com/quintans/eventhub/internal/lib/ds"
)

// Channel is the bus channel navigation messages are published on.
const Channel = "navigation"

type To struct {
	Target string
	Back   bool
}

func (To) Kind() string {
	return "to"
}

type Publisher interface {
	Publish(msg any, channels ...string) error
}

// Nav keeps the navigation history and announces every move on Channel.
type Nav struct {
	mu    sync.Mutex
	last  string
	stack *ds.Stack[string]
	pub   Publisher
}

func New(pub Publisher) *Nav {
	return &Nav{
		stack: ds.NewStack[string](),
		pub:   pub,
	}
}

func (n *Nav) Go(view string) {
	n.mu.Lock()
	if n.last == view {
		n.mu.Unlock()
		return
	}
	if n.last != "" {
		n.stack.Push(n.last)
	}
	n.last = view
	n.mu.Unlock()

	n.publish(To{Target: view})
}

func (n *Nav) Back() {
	n.mu.Lock()
	view, ok := n.stack.Pop()
	if !ok {
		n.mu.Unlock()
		return
	}
	n.last = view
	n.mu.Unlock()

	n.publish(To{Target: view, Back: true})
}

// Current returns the view navigated to last.
func (n *Nav) Current() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last
}

func (n *Nav) publish(to To) {
	// the lock is released so that subscribers can navigate again
	if err := n.pub.Publish(to, Channel); err != nil {
		slog.Error("Failed to publish navigation", "target", to.Target, "error", err)
	}
}
