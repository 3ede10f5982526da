// Package replay reads application messages from JSON lines, one message per line:
//
//	{"kind":"notify","type":"warn","message":"disk almost full"}
//	{"kind":"loading","text":"indexing","show":true}
//	{"kind":"tick","seq":3,"at":"2025-01-02T15:04:05Z"}
//
// Blank lines and lines starting with # are ignored.
package replay

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"time"

	"github.com/quintans/eventhub/internal/app"
	"github.com/quintans/eventhub/internal/lib/fails"
	"github.com/tidwall/gjson"
)

var (
	ErrInvalidJSON  = errors.New("replay: invalid json")
	ErrUnknownKind  = errors.New("replay: unknown message kind")
	ErrInvalidField = errors.New("replay: invalid field")
)

// maxLine is the longest line accepted by Decode.
const maxLine = 1024 * 1024

// Decode calls fn for every message read from r, stopping at the first error.
func Decode(r io.Reader, fn func(app.Message) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}

		msg, err := Parse(raw)
		if err != nil {
			return fails.NewWithErr(err, "decoding message", "line", line)
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fails.NewWithErr(err, "reading messages", "line", line)
	}
	return nil
}

// Parse decodes a single JSON message.
func Parse(raw []byte) (app.Message, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrInvalidJSON
	}

	doc := gjson.ParseBytes(raw)
	switch kind := doc.Get("kind").String(); kind {
	case app.KindNotify:
		return parseNotify(doc)
	case app.KindLoading:
		return app.Loading{
			Text: doc.Get("text").String(),
			Show: doc.Get("show").Bool(),
		}, nil
	case app.KindTick:
		return parseTick(doc)
	default:
		return nil, fails.NewWithErr(ErrUnknownKind, "unsupported kind", "kind", kind)
	}
}

func parseNotify(doc gjson.Result) (app.Message, error) {
	typ := app.NotifyInfo
	if v := doc.Get("type"); v.Exists() {
		t, err := app.ParseNotifyType(v.String())
		if err != nil {
			return nil, fails.NewWithErr(ErrInvalidField, err.Error(), "field", "type")
		}
		typ = t
	}

	return app.Notify{
		Type:    typ,
		Message: doc.Get("message").String(),
	}, nil
}

func parseTick(doc gjson.Result) (app.Message, error) {
	tick := app.Tick{
		Seq: int(doc.Get("seq").Int()),
	}
	if v := doc.Get("at"); v.Exists() {
		at, err := time.Parse(time.RFC3339Nano, v.String())
		if err != nil {
			return nil, fails.NewWithErr(ErrInvalidField, err.Error(), "field", "at")
		}
		tick.At = at
	}
	return tick, nil
}
