package transform

import (
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
)

const (
	paramValue    = "VALUE"
	paramTZID     = "TZID"
	propRecurID   = "RECURRENCE-ID"
	dateLayout    = "20060102"
	localLayout   = "20060102T150405"
	utcLayout     = "20060102T150405Z"
	valueDate     = "DATE"
	actionDisplay = "DISPLAY"
)

func dateProp(name string, t time.Time) *ical.Prop {
	p := ical.NewProp(name)
	p.Value = t.Format(dateLayout)
	p.Params[paramValue] = []string{valueDate}
	return p
}

func utcProp(name string, t time.Time) *ical.Prop {
	p := ical.NewProp(name)
	p.Value = t.UTC().Format(utcLayout)
	return p
}

// zonedProp writes t as local time in the zone named tzid. An unknown zone falls back to UTC.
func zonedProp(name string, t time.Time, tzid string) *ical.Prop {
	loc, err := time.LoadLocation(tzid)
	if err != nil {
		return utcProp(name, t)
	}
	p := ical.NewProp(name)
	p.Value = t.In(loc).Format(localLayout)
	p.Params[paramTZID] = []string{tzid}
	return p
}

func isDateValue(p *ical.Prop) bool {
	if p == nil {
		return false
	}
	if v := p.Params[paramValue]; len(v) > 0 && strings.EqualFold(v[0], valueDate) {
		return true
	}
	return len(p.Value) == len(dateLayout)
}

func tzidOf(p *ical.Prop) string {
	if p == nil {
		return ""
	}
	if v := p.Params[paramTZID]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// startOfDay keeps the calendar date of t and drops the clock.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// formatTrigger renders a reminder offset as a negative ISO 8601 duration, e.g. -PT15M.
func formatTrigger(before time.Duration) string {
	before = before.Truncate(time.Second)
	if before <= 0 {
		return "PT0S"
	}
	var b strings.Builder
	b.WriteString("-P")
	if before%(24*time.Hour) == 0 {
		fmt.Fprintf(&b, "%dD", before/(24*time.Hour))
		return b.String()
	}
	b.WriteString("T")
	if h := before / time.Hour; h > 0 {
		fmt.Fprintf(&b, "%dH", h)
		before -= h * time.Hour
	}
	if m := before / time.Minute; m > 0 {
		fmt.Fprintf(&b, "%dM", m)
		before -= m * time.Minute
	}
	if s := before / time.Second; s > 0 {
		fmt.Fprintf(&b, "%dS", s)
	}
	return b.String()
}

// parseDuration reads an ISO 8601 duration through go-ical.
func parseDuration(value string) (time.Duration, error) {
	p := ical.NewProp(ical.PropDuration)
	p.Value = value
	return p.Duration()
}
