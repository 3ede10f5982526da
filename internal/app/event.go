package app

import (
	"fmt"
	"strings"
	"time"
)

const (
	KindLoading = "loading"
	KindNotify  = "notify"
	KindTick    = "tick"
)

type Loading struct {
	// If set, it will update the loading text.
	Text string
	// If it is true, it will show the loading indicator. If false and Text is empty it will hide.
	Show bool
}

func (Loading) Kind() string {
	return KindLoading
}

type NotifyType int

const (
	_                        = iota
	NotifySuccess NotifyType = iota + 1
	NotifyInfo
	NotifyWarn
	NotifyError
)

var notifyTypes = map[NotifyType]string{
	NotifySuccess: "success",
	NotifyInfo:    "info",
	NotifyWarn:    "warn",
	NotifyError:   "error",
}

func (t NotifyType) String() string {
	if s, ok := notifyTypes[t]; ok {
		return s
	}
	return fmt.Sprintf("NotifyType(%d)", int(t))
}

func ParseNotifyType(s string) (NotifyType, error) {
	for t, name := range notifyTypes {
		if strings.EqualFold(name, s) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown notification type %q", s)
}

type Notify struct {
	Type    NotifyType
	Message string
}

func NewNotifyInfo(msg string, args ...any) Notify {
	return Notify{
		Type:    NotifyInfo,
		Message: format(msg, args...),
	}
}

func NewNotifySuccess(msg string, args ...any) Notify {
	return Notify{
		Type:    NotifySuccess,
		Message: format(msg, args...),
	}
}

func NewNotifyWarn(msg string, args ...any) Notify {
	return Notify{
		Type:    NotifyWarn,
		Message: format(msg, args...),
	}
}

func NewNotifyError(msg string, args ...any) Notify {
	return Notify{
		Type:    NotifyError,
		Message: format(msg, args...),
	}
}

func (Notify) Kind() string {
	return KindNotify
}

// Tick is published periodically by the board.
type Tick struct {
	Seq int
	At  time.Time
}

func (Tick) Kind() string {
	return KindTick
}

func format(msg string, args ...any) string {
	if len(args) > 0 {
		// any(msg).(string) tells vet this is a dynamic format string
		return fmt.Sprintf(any(msg).(string), args...)
	}
	return msg
}
