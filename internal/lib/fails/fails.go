package fails

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

type Valuer interface {
	error
	Values() map[string]any
	WithValues(args ...any) Valuer
}

func New(msg string, args ...any) Valuer {
	return &ValuesError{
		msg:    msg,
		values: toMap(args),
	}
}

func NewWithErr(err error, msg string, args ...any) Valuer {
	return &ValuesError{
		err:    err,
		msg:    msg,
		values: toMap(args),
	}
}

type ValuesError struct {
	err    error
	msg    string
	values map[string]any
}

func (e *ValuesError) Error() string {
	var str strings.Builder
	str.WriteString(e.msg)
	if len(e.values) > 0 {
		str.WriteString(" ")
		str.WriteString(toStr(e.values))
	}

	if e.err != nil {
		str.WriteString(": ")
		str.WriteString(e.err.Error())
	}

	return str.String()
}

func (e *ValuesError) Unwrap() error {
	return e.err
}

// Values returns the values associated with the error and its cause.
func (e *ValuesError) Values() map[string]any {
	m := maps.Clone(e.values)
	var valuer Valuer
	if errors.As(e.err, &valuer) {
		for k, v := range valuer.Values() {
			m[k] = v
		}
	}
	return m
}

func (e *ValuesError) WithValues(args ...any) Valuer {
	maps.Copy(e.values, toMap(args))
	return e
}

// Attrs flattens the values of err, if any, into slog style key/value pairs,
// sorted by key and followed by the error itself.
func Attrs(err error) []any {
	var valuer Valuer
	if !errors.As(err, &valuer) {
		return []any{"error", err}
	}

	values := valuer.Values()
	keys := slices.Sorted(maps.Keys(values))
	args := make([]any, 0, len(keys)*2+2)
	for _, k := range keys {
		args = append(args, k, values[k])
	}
	return append(args, "error", err)
}

const badKey = "!BADKEY"

func toMap(args []any) map[string]any {
	data := make(map[string]any, len(args)/2)
	for len(args) > 0 {
		switch x := args[0].(type) {
		case string:
			if len(args) == 1 {
				data[badKey] = x
				args = nil
				continue
			}
			data[x] = args[1]
			args = args[2:]
		default:
			data[badKey] = x
			args = args[1:]
		}
	}
	return data
}

func toStr(data map[string]any) string {
	buf := &strings.Builder{}
	buf.WriteString("(")
	for i, k := range slices.Sorted(maps.Keys(data)) {
		if i > 0 {
			buf.WriteString("; ")
		}
		switch t := data[k].(type) {
		case string:
			fmt.Fprintf(buf, "%s=%s", k, t)
		case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			fmt.Fprintf(buf, "%s=%v", k, t)
		default:
			jsonData, err := json.Marshal(t)
			if err != nil {
				fmt.Fprintf(buf, "%s=%v", k, t)
			} else {
				fmt.Fprintf(buf, "%s=%s", k, jsonData)
			}
		}
	}
	buf.WriteString(")")

	return buf.String()
}
