package view

import (
	"fmt"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/dustin/go-humanize"
	"github.com/quintans/eventhub/internal/app"
	"github.com/quintans/eventhub/internal/controller"
	"github.com/quintans/eventhub/internal/lib/bus"
	"github.com/quintans/eventhub/internal/lib/navigator"
	"github.com/quintans/eventhub/internal/mycontainer"
)

const (
	maxActivity = 100
	workSteps   = 5
	workDelay   = 500 * time.Millisecond
)

type BoardController interface {
	Notify(t app.NotifyType, text string)
	SimulateWork(steps int, delay time.Duration) <-chan struct{}
	ShowActivity()
	ShowBoard()
	Back()
}

type activity struct {
	kind string
	text string
	at   time.Time
}

// Board is the main window content. It is only referenced weakly by the bus, so whoever
// creates it must keep it alive while it is shown.
// Its handlers must run on the UI goroutine.
type Board struct {
	eventBus app.EventBus

	tabs         *container.AppTabs
	boardTab     *container.TabItem
	activityTab  *container.TabItem
	notification *mycontainer.NotificationContainer
	loading      *widget.ProgressBarInfinite
	loadingText  *widget.Label
	tick         *widget.Label
	activityList *widget.List
	activities   []activity

	content fyne.CanvasObject
}

func NewBoard(ctrl BoardController, eventBus app.EventBus) (*Board, error) {
	b := &Board{
		eventBus:     eventBus,
		notification: mycontainer.NewNotification(),
		loading:      widget.NewProgressBarInfinite(),
		loadingText:  widget.NewLabel(""),
		tick:         widget.NewLabel("Waiting for the first tick"),
	}
	b.loading.Stop()
	b.loading.Hide()

	b.activityList = widget.NewList(
		func() int {
			return len(b.activities)
		},
		func() fyne.CanvasObject {
			return container.NewHBox(
				widget.NewLabelWithStyle("kind", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
				widget.NewLabel("text"),
				layout.NewSpacer(),
				widget.NewLabel("when"),
			)
		},
		func(id widget.ListItemID, o fyne.CanvasObject) {
			// newest first
			a := b.activities[len(b.activities)-1-id]
			row := o.(*fyne.Container)
			row.Objects[0].(*widget.Label).SetText(a.kind)
			row.Objects[1].(*widget.Label).SetText(a.text)
			row.Objects[3].(*widget.Label).SetText(humanize.Time(a.at))
		},
	)

	b.boardTab = container.NewTabItemWithIcon("Board", theme.HomeIcon(), b.boardForm(ctrl))
	b.activityTab = container.NewTabItemWithIcon("Activity", theme.HistoryIcon(), b.activityList)
	b.tabs = container.NewAppTabs(b.boardTab, b.activityTab)
	b.tabs.OnSelected = func(ti *container.TabItem) {
		switch ti {
		case b.boardTab:
			ctrl.ShowBoard()
		case b.activityTab:
			ctrl.ShowActivity()
		}
	}

	b.content = container.NewStack(
		b.tabs,
		container.NewPadded(container.NewHBox(
			layout.NewSpacer(),
			container.NewVBox(b.notification.Container()),
		)),
	)

	err := eventBus.Subscribe(b, bus.DefaultChannel, navigator.Channel)
	if err != nil {
		return nil, fmt.Errorf("subscribing board view: %w", err)
	}

	return b, nil
}

func (b *Board) boardForm(ctrl BoardController) fyne.CanvasObject {
	names := []string{
		app.NotifySuccess.String(),
		app.NotifyInfo.String(),
		app.NotifyWarn.String(),
		app.NotifyError.String(),
	}
	kind := widget.NewSelect(names, nil)
	kind.SetSelected(app.NotifyInfo.String())

	text := widget.NewEntry()
	text.SetPlaceHolder("Notification text")

	notify := widget.NewButtonWithIcon("Notify", theme.MailSendIcon(), func() {
		t, err := app.ParseNotifyType(kind.Selected)
		if err != nil {
			b.eventBus.Error("%s", err)
			return
		}
		ctrl.Notify(t, text.Text)
	})
	notify.Importance = widget.HighImportance

	work := widget.NewButtonWithIcon("Simulate work", theme.MediaPlayIcon(), func() {
		ctrl.SimulateWork(workSteps, workDelay)
	})
	back := widget.NewButtonWithIcon("Back", theme.NavigateBackIcon(), ctrl.Back)

	return container.NewVBox(
		widget.NewForm(
			widget.NewFormItem("Type", kind),
			widget.NewFormItem("Text", text),
		),
		container.NewHBox(notify, work, back, layout.NewSpacer()),
		widget.NewSeparator(),
		b.loadingText,
		b.loading,
		widget.NewSeparator(),
		b.tick,
	)
}

func (b *Board) Content() fyne.CanvasObject {
	return b.content
}

// Close stops receiving messages.
func (b *Board) Close() {
	b.eventBus.Unsubscribe(b)
}

func (b *Board) HandleNotify(n app.Notify) {
	b.notification.Show(n)
}

func (b *Board) HandleLoading(l app.Loading) {
	b.loadingText.SetText(l.Text)
	if !l.Show && l.Text == "" {
		b.loading.Stop()
		b.loading.Hide()
		return
	}
	if l.Show {
		b.loading.Show()
		b.loading.Start()
	}
}

func (b *Board) HandleTick(t app.Tick) {
	b.tick.SetText(fmt.Sprintf("Tick #%d at %s", t.Seq, t.At.Format(time.TimeOnly)))
	// relative times are stale
	b.activityList.Refresh()
}

// HandleMessage records every message, whatever its kind.
func (b *Board) HandleMessage(m app.Message) {
	b.activities = append(b.activities, activity{
		kind: m.Kind(),
		text: describe(m),
		at:   time.Now(),
	})
	if len(b.activities) > maxActivity {
		b.activities = b.activities[len(b.activities)-maxActivity:]
	}
	b.activityList.Refresh()
}

func (b *Board) HandleTo(to navigator.To) {
	var target *container.TabItem
	switch to.Target {
	case controller.BoardNavigation:
		target = b.boardTab
	case controller.ActivityNavigation:
		target = b.activityTab
	default:
		return
	}
	if b.tabs.Selected() != target {
		b.tabs.Select(target)
	}
}

func describe(m app.Message) string {
	switch t := m.(type) {
	case app.Notify:
		return fmt.Sprintf("[%s] %s", t.Type, t.Message)
	case app.Loading:
		if !t.Show && t.Text == "" {
			return "done"
		}
		return t.Text
	case app.Tick:
		return fmt.Sprintf("#%d", t.Seq)
	case navigator.To:
		if t.Back {
			return "back to " + t.Target
		}
		return "to " + t.Target
	default:
		return fmt.Sprintf("%v", m)
	}
}
