package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/quintans/eventhub/internal/app"
)

var ErrBusy = errors.New("work already in progress")

// Board drives the event board: it only talks to the view through the event bus.
type Board struct {
	eventBus app.EventBus
	nav      app.Navigator

	mu      sync.Mutex
	working bool
	seq     int
}

func NewBoard(eventBus app.EventBus, nav app.Navigator) *Board {
	return &Board{
		eventBus: eventBus,
		nav:      nav,
	}
}

func (b *Board) OnEnter() {
	b.nav.Go(BoardNavigation)
	b.eventBus.Info("%s %s ready", app.Name, app.Version)
}

// Notify is called from the UI goroutine so the notification is delivered synchronously.
func (b *Board) Notify(t app.NotifyType, text string) {
	if text == "" {
		logAndPub(b.eventBus, nil, "Nothing to notify", "type", t.String())
		return
	}
	b.eventBus.Publish(app.Notify{Type: t, Message: text})
}

// SimulateWork reports progress of a fake background job. The returned channel is closed
// when the job finishes.
func (b *Board) SimulateWork(steps int, delay time.Duration) <-chan struct{} {
	done := make(chan struct{})

	b.mu.Lock()
	if b.working {
		b.mu.Unlock()
		logAndPub(b.eventBus, ErrBusy, "Failed to start work")
		close(done)
		return done
	}
	b.working = true
	b.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			b.mu.Lock()
			b.working = false
			b.mu.Unlock()
		}()

		for i := 1; i <= steps; i++ {
			b.eventBus.PublishOnUI(app.Loading{Text: stepText(i, steps), Show: true})
			time.Sleep(delay)
		}
		b.eventBus.PublishOnUI(app.Loading{})
		b.eventBus.Success("Work completed in %d steps", steps)
	}()

	return done
}

// Tick publishes a tick every interval until ctx is done.
func (b *Board) Tick(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			b.mu.Lock()
			b.seq++
			seq := b.seq
			b.mu.Unlock()
			b.eventBus.PublishOnUI(app.Tick{Seq: seq, At: now})
		}
	}
}

func (b *Board) ShowActivity() {
	b.nav.Go(ActivityNavigation)
}

func (b *Board) ShowBoard() {
	b.nav.Go(BoardNavigation)
}

func (b *Board) Back() {
	b.nav.Back()
}

func stepText(i, n int) string {
	return fmt.Sprintf("Step %d of %d", i, n)
}
