package availability

import (
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"

	"github.com/cyp0633/davmutate/transform"
)

// DefaultMaxOccurrences bounds the expansion of a single series.
const DefaultMaxOccurrences = 1000

const (
	propRecurrenceID = "RECURRENCE-ID"
	paramTZID        = "TZID"
)

// recurrenceInfo holds the recurrence properties of a master event.
type recurrenceInfo struct {
	rule    string
	rdates  []time.Time
	exdates []time.Time
}

// occurrence is one concrete instance of an event.
type occurrence struct {
	start  time.Time
	end    time.Time
	status Status
}

// Expander turns stored calendar objects into concrete occurrences within a range.
type Expander struct {
	// Location interprets floating and all-day values
	Location       *time.Location
	MaxOccurrences int
}

func (e *Expander) location() *time.Location {
	if e.Location == nil {
		return time.UTC
	}
	return e.Location
}

func (e *Expander) maxOccurrences() int {
	if e.MaxOccurrences <= 0 {
		return DefaultMaxOccurrences
	}
	return e.MaxOccurrences
}

// Occurrences returns the blocking occurrences of every event in cal that overlap rng. Overrides
// replace the master instance they name. Cancelled and transparent events do not block time.
func (e *Expander) Occurrences(cal *ical.Calendar, rng Range) ([]occurrence, error) {
	loc := e.location()

	overridden := make(map[string]map[int64]bool)
	for _, comp := range cal.Children {
		if comp.Name != ical.CompEvent {
			continue
		}
		ridProp := comp.Props.Get(propRecurrenceID)
		if ridProp == nil {
			continue
		}
		rid, err := ridProp.DateTime(loc)
		if err != nil {
			continue
		}
		uid := uidOf(comp)
		if overridden[uid] == nil {
			overridden[uid] = make(map[int64]bool)
		}
		overridden[uid][rid.Unix()] = true
	}

	var out []occurrence
	for _, comp := range cal.Children {
		if comp.Name != ical.CompEvent {
			continue
		}
		status, blocks := eventStatus(comp)
		start, end, allDay := transform.EventSpan(comp, loc)
		if start.IsZero() {
			continue
		}
		if end.Equal(start) {
			// an instant occupies no time
			continue
		}

		if comp.Props.Get(propRecurrenceID) != nil {
			if blocks && overlaps(start, end, rng) {
				out = append(out, occurrence{start: start, end: end, status: status})
			}
			continue
		}

		info := extractRecurrence(comp, loc)
		starts, err := e.expand(start, end, info, rng)
		if err != nil {
			return nil, fmt.Errorf("expand %s: %w", uidOf(comp), err)
		}
		if !blocks {
			continue
		}
		skip := overridden[uidOf(comp)]
		for _, s := range starts {
			if skip[s.Unix()] {
				continue
			}
			occEnd := s.Add(end.Sub(start))
			if allDay {
				occEnd = s.AddDate(0, 0, daysBetween(start, end))
			}
			if overlaps(s, occEnd, rng) {
				out = append(out, occurrence{start: s, end: occEnd, status: status})
			}
		}
	}
	return out, nil
}

// expand lists the instance starts of a master event that may overlap rng. The master start is
// always an instance.
func (e *Expander) expand(start, end time.Time, info recurrenceInfo, rng Range) ([]time.Time, error) {
	set := &rrule.Set{}
	set.RDate(start)
	if info.rule != "" {
		r, err := rrule.StrToRRule(info.rule)
		if err != nil {
			return nil, fmt.Errorf("parse RRULE %q: %w", info.rule, err)
		}
		r.DTStart(start)
		set.RRule(r)
	}
	for _, rdate := range info.rdates {
		set.RDate(rdate)
	}

	// instances starting up to one duration before the range still reach into it
	span := end.Sub(start)
	from := rng.Start.Add(-span).In(start.Location())
	to := rng.End.In(start.Location())
	candidates := set.Between(from, to, true)

	out := make([]time.Time, 0, len(candidates))
	for _, c := range candidates {
		if isExcluded(c, info.exdates) {
			continue
		}
		out = append(out, c)
		if len(out) >= e.maxOccurrences() {
			break
		}
	}
	return out, nil
}

// eventStatus maps an event to the status it contributes. The second result is false for
// events that do not block time.
func eventStatus(comp *ical.Component) (Status, bool) {
	if transp := comp.Props.Get(ical.PropTransparency); transp != nil && strings.EqualFold(transp.Value, "TRANSPARENT") {
		return StatusFree, false
	}
	status := ""
	if p := comp.Props.Get(ical.PropStatus); p != nil {
		status = strings.ToUpper(p.Value)
	}
	switch status {
	case transform.StatusCancelled:
		return StatusFree, false
	case transform.StatusTentative:
		return StatusTentative, true
	}
	if p := comp.Props.Get("X-MICROSOFT-CDO-BUSYSTATUS"); p != nil {
		switch strings.ToUpper(p.Value) {
		case "OOF":
			return StatusBusyUnavailable, true
		case "FREE":
			return StatusFree, false
		case "TENTATIVE":
			return StatusTentative, true
		}
	}
	return StatusBusy, true
}

func extractRecurrence(comp *ical.Component, loc *time.Location) recurrenceInfo {
	info := recurrenceInfo{}
	if p := comp.Props.Get(ical.PropRecurrenceRule); p != nil {
		info.rule = p.Value
	}
	for _, p := range comp.Props.Values(ical.PropRecurrenceDates) {
		info.rdates = append(info.rdates, parseDateList(p, loc)...)
	}
	for _, p := range comp.Props.Values(ical.PropExceptionDates) {
		info.exdates = append(info.exdates, parseDateList(p, loc)...)
	}
	return info
}

// parseDateList reads a comma separated RDATE or EXDATE value. TZID, UTC, floating and DATE
// forms are accepted; unparseable entries are skipped.
func parseDateList(prop ical.Prop, loc *time.Location) []time.Time {
	valueLoc := loc
	if tzid := prop.Params.Get(paramTZID); tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			valueLoc = l
		}
	}

	var out []time.Time
	for _, raw := range strings.Split(prop.Value, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if t, err := time.Parse("20060102T150405Z", raw); err == nil {
			out = append(out, t)
			continue
		}
		if t, err := time.ParseInLocation("20060102T150405", raw, valueLoc); err == nil {
			out = append(out, t)
			continue
		}
		if t, err := time.ParseInLocation("20060102", raw, loc); err == nil {
			out = append(out, t)
		}
	}
	return out
}

// isExcluded matches exact instants; a date-only exclusion removes the instance on that day.
func isExcluded(t time.Time, exdates []time.Time) bool {
	for _, ex := range exdates {
		if t.Equal(ex) {
			return true
		}
		if ex.Hour() == 0 && ex.Minute() == 0 && ex.Second() == 0 {
			y1, m1, d1 := t.In(ex.Location()).Date()
			y2, m2, d2 := ex.Date()
			if y1 == y2 && m1 == m2 && d1 == d2 {
				return true
			}
		}
	}
	return false
}

func overlaps(start, end time.Time, rng Range) bool {
	return start.Before(rng.End) && end.After(rng.Start)
}

func daysBetween(start, end time.Time) int {
	days := int(end.Sub(start).Round(24*time.Hour) / (24 * time.Hour))
	if days < 1 {
		return 1
	}
	return days
}

func uidOf(comp *ical.Component) string {
	if p := comp.Props.Get(ical.PropUID); p != nil {
		return p.Value
	}
	return ""
}
