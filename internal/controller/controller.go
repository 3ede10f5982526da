package controller

import (
	"log/slog"

	"github.com/quintans/eventhub/internal/app"
	"github.com/quintans/eventhub/internal/lib/fails"
)

const (
	BoardNavigation    = "BOARD_NAV"
	ActivityNavigation = "ACTIVITY_NAV"
)

func logAndPub(eb app.EventBus, err error, msg string, args ...any) {
	if err != nil {
		err = fails.NewWithErr(err, msg, args...)
		eb.Error("%s", err)
		slog.Error(msg, fails.Attrs(err)...)
		return
	}

	eb.Warn("%s", fails.New(msg, args...))
	slog.Warn(msg, args...)
}
