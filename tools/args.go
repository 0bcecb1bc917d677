package tools

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/samber/mo"

	"github.com/cyp0633/davmutate/errs"
)

// Args holds the raw named parameters of one invocation. Accessors return None for an absent
// parameter and Some of the zero value for an explicit null, which clears a field on update.
type Args map[string]json.RawMessage

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func decode[T any](a Args, name string, what string) (mo.Option[T], error) {
	raw, ok := a[name]
	if !ok {
		return mo.None[T](), nil
	}
	var v T
	if isNull(raw) {
		return mo.Some(v), nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return mo.None[T](), errs.Validation(name, "must be %s", what)
	}
	return mo.Some(v), nil
}

// String reads a text parameter. Surrounding whitespace is trimmed.
func (a Args) String(name string) (mo.Option[string], error) {
	v, err := decode[string](a, name, "a string")
	if err != nil || v.IsAbsent() {
		return v, err
	}
	return mo.Some(strings.TrimSpace(v.OrEmpty())), nil
}

// Strings reads a list parameter. A single string is accepted as a one-element list.
func (a Args) Strings(name string) (mo.Option[[]string], error) {
	if raw, ok := a[name]; ok && len(bytes.TrimSpace(raw)) > 0 && bytes.TrimSpace(raw)[0] == '"' {
		one, err := a.String(name)
		if err != nil {
			return mo.None[[]string](), err
		}
		if one.OrEmpty() == "" {
			return mo.Some([]string{}), nil
		}
		return mo.Some([]string{one.OrEmpty()}), nil
	}
	v, err := decode[[]string](a, name, "a list of strings")
	if err != nil || v.IsAbsent() {
		return v, err
	}
	out := make([]string, 0, len(v.OrEmpty()))
	for _, s := range v.OrEmpty() {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return mo.Some(out), nil
}

// Bool reads a boolean parameter.
func (a Args) Bool(name string) (mo.Option[bool], error) {
	return decode[bool](a, name, "true or false")
}

// Minutes reads a list of minute offsets as durations.
func (a Args) Minutes(name string) (mo.Option[[]time.Duration], error) {
	v, err := decode[[]int](a, name, "a list of whole minutes")
	if err != nil {
		return mo.None[[]time.Duration](), err
	}
	if v.IsAbsent() {
		return mo.None[[]time.Duration](), nil
	}
	out := make([]time.Duration, 0, len(v.OrEmpty()))
	for _, m := range v.OrEmpty() {
		if m < 0 {
			return mo.None[[]time.Duration](), errs.Validation(name, "minutes must not be negative")
		}
		out = append(out, time.Duration(m)*time.Minute)
	}
	return mo.Some(out), nil
}

// timeLayouts are tried in order; layouts without an offset are read in the configured location.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Time reads a date or date-time parameter.
func (a Args) Time(name string, loc *time.Location) (mo.Option[time.Time], error) {
	text, err := a.String(name)
	if err != nil || text.IsAbsent() {
		return mo.None[time.Time](), err
	}
	if text.OrEmpty() == "" {
		return mo.Some(time.Time{}), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, text.OrEmpty(), loc); err == nil {
			return mo.Some(t), nil
		}
	}
	return mo.None[time.Time](), errs.Validation(name, "must be a date (2006-01-02) or date-time (2006-01-02T15:04:05Z07:00)")
}
