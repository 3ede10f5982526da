package mycontainer

import (
	"image/color"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"
	"github.com/quintans/eventhub/internal/app"
)

const fadeOut = 300 * time.Millisecond

type style struct {
	title   string
	bg      color.Color
	fg      color.Color
	timeout time.Duration
}

var styles = map[app.NotifyType]style{
	app.NotifySuccess: {title: "Success", bg: color.RGBA{0, 255, 255, 192}, fg: color.Black, timeout: 3 * time.Second},
	app.NotifyInfo:    {title: "Information", bg: color.RGBA{255, 255, 0, 192}, fg: color.Black, timeout: 3 * time.Second},
	app.NotifyWarn:    {title: "Warning", bg: color.RGBA{255, 165, 0, 192}, fg: color.Black, timeout: 5 * time.Second},
	// errors stay until closed
	app.NotifyError: {title: "Error", bg: color.RGBA{255, 0, 0, 192}, fg: color.White},
}

// NotificationContainer stacks notification cards. Its methods must be called on the UI goroutine.
type NotificationContainer struct {
	container *fyne.Container
}

func NewNotification() *NotificationContainer {
	return &NotificationContainer{
		container: container.NewVBox(),
	}
}

func (nc *NotificationContainer) Show(n app.Notify) {
	s, ok := styles[n.Type]
	if !ok {
		s = styles[app.NotifyInfo]
	}

	title := canvas.NewText(s.title, s.fg)
	title.TextStyle = fyne.TextStyle{Bold: true}
	closeLabel := canvas.NewText("x", s.fg)
	closeLabel.TextStyle = fyne.TextStyle{Bold: true}
	message := canvas.NewText(n.Message, s.fg)

	bg := canvas.NewRectangle(s.bg)
	bg.CornerRadius = 5

	closer := newTappable(closeLabel)
	card := container.NewStack(
		bg,
		container.NewPadded(container.NewBorder(
			container.NewHBox(title, layout.NewSpacer(), closer),
			nil, nil, nil,
			message,
		)),
	)
	nc.container.Add(card)

	closer.onTapped = func() {
		nc.container.Remove(card)
	}

	if s.timeout > 0 {
		time.AfterFunc(s.timeout-fadeOut, func() {
			fyne.Do(func() {
				nc.fade(card, bg, []*canvas.Text{title, closeLabel, message})
			})
		})
	}
}

func (nc *NotificationContainer) Container() *fyne.Container {
	return nc.container
}

func (nc *NotificationContainer) Len() int {
	return len(nc.container.Objects)
}

func (nc *NotificationContainer) fade(card fyne.CanvasObject, bg *canvas.Rectangle, texts []*canvas.Text) {
	fadeBg := fader(bg.FillColor)
	fadeTexts := make([]func(float32) color.Color, len(texts))
	for i, t := range texts {
		fadeTexts[i] = fader(t.Color)
	}

	fyne.NewAnimation(fadeOut, func(p float32) {
		bg.FillColor = fadeBg(p)
		bg.Refresh()
		for i, t := range texts {
			t.Color = fadeTexts[i](p)
			t.Refresh()
		}
		if p == 1 {
			nc.container.Remove(card)
		}
	}).Start()
}

func fader(c color.Color) func(done float32) color.Color {
	r, g, b, a := c.RGBA()
	return func(done float32) color.Color {
		alpha := uint8(float32(uint8(a>>8)) * (1 - done))
		return color.NRGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: alpha}
	}
}

type tappable struct {
	widget.BaseWidget

	onTapped func()
	object   fyne.CanvasObject
}

func newTappable(obj fyne.CanvasObject) *tappable {
	t := &tappable{object: obj}
	t.ExtendBaseWidget(t)
	return t
}

func (t *tappable) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(t.object)
}

func (t *tappable) Tapped(*fyne.PointEvent) {
	if t.onTapped != nil {
		t.onTapped()
	}
}
