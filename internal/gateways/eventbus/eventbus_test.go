package eventbus_test

import (
	"testing"

	"github.com/quintans/eventhub/internal/app"
	"github.com/quintans/eventhub/internal/gateways/eventbus"
	"github.com/quintans/eventhub/internal/lib/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listener struct {
	notifications []app.Notify
	kinds         []string
}

func (l *listener) HandleNotify(n app.Notify) {
	l.notifications = append(l.notifications, n)
}

func (l *listener) HandleMessage(m app.Message) {
	l.kinds = append(l.kinds, m.Kind())
}

func TestEventBus(t *testing.T) {
	var primary []func()
	b := bus.New(bus.WithPrimary(func(work func()) {
		primary = append(primary, work)
	}))
	eb := eventbus.New(b)
	l := &listener{}
	require.NoError(t, eb.Subscribe(l))

	eb.Publish(app.Loading{Show: true})
	assert.Equal(t, []string{app.KindLoading}, l.kinds)

	eb.Warn("disk at %d%%", 90)
	eb.Error("failed")
	assert.Empty(t, l.notifications)
	// two handle methods per notification
	require.Len(t, primary, 4)
	for _, w := range primary {
		w()
	}
	assert.Equal(t, []app.Notify{
		{Type: app.NotifyWarn, Message: "disk at 90%"},
		{Type: app.NotifyError, Message: "failed"},
	}, l.notifications)

	eb.Unsubscribe(l)
	eb.Publish(nil)
	eb.Publish(app.Tick{})
	assert.Equal(t, []string{app.KindLoading, app.KindNotify, app.KindNotify}, l.kinds)
}
