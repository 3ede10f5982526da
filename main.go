package main

import (
	"context"
	"log/slog"
	"time"

	"fyne.io/fyne/v2"
	fapp "fyne.io/fyne/v2/app"
	"github.com/quintans/eventhub/internal/app"
	"github.com/quintans/eventhub/internal/controller"
	"github.com/quintans/eventhub/internal/gateways/eventbus"
	"github.com/quintans/eventhub/internal/lib/bus"
	"github.com/quintans/eventhub/internal/lib/dispatch"
	"github.com/quintans/eventhub/internal/lib/navigator"
	"github.com/quintans/eventhub/internal/view"
)

const (
	appID        = "com.github.quintans.eventhub"
	tickInterval = time.Second
)

func main() {
	a := fapp.NewWithID(appID)
	w := a.NewWindow("EventHub")
	w.Resize(fyne.NewSize(800, 600))

	b := bus.New(
		bus.WithPrimary(dispatch.Recover(dispatch.Fyne, nil)),
		bus.WithLogger(slog.Default()),
	)
	eventBus := eventbus.New(b)
	nav := navigator.New(b)

	boardCtrl := controller.NewBoard(eventBus, nav)
	boardView, err := view.NewBoard(boardCtrl, eventBus)
	if err != nil {
		panic(err)
	}
	w.SetContent(boardView.Content())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.Lifecycle().SetOnStarted(func() {
		boardCtrl.OnEnter()
		go boardCtrl.Tick(ctx, tickInterval)
	})

	slog.Info("Starting", "name", app.Name, "version", app.Version)
	w.ShowAndRun()

	// the bus only holds the view weakly. Closing it here also keeps it reachable until the window is gone.
	boardView.Close()
}
