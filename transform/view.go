package transform

import (
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-vcard"
)

// EventView is the readable form of a stored event.
type EventView struct {
	UID         string    `json:"uid"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"all_day"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Status      string    `json:"status,omitempty"`
	Transparent bool      `json:"transparent,omitempty"`
	Categories  []string  `json:"categories,omitempty"`
	Recurrence  string    `json:"recurrence,omitempty"`
	URL         string    `json:"url,omitempty"`
	Attendees   []string  `json:"attendees,omitempty"`
	Organizer   string    `json:"organizer,omitempty"`
	Reminders   []string  `json:"reminders,omitempty"`
	Sequence    int       `json:"sequence"`
}

// ContactView is the readable form of a stored contact.
type ContactView struct {
	UID          string   `json:"uid"`
	FullName     string   `json:"full_name"`
	GivenName    string   `json:"given_name,omitempty"`
	FamilyName   string   `json:"family_name,omitempty"`
	Emails       []string `json:"emails,omitempty"`
	Phones       []string `json:"phones,omitempty"`
	Organization string   `json:"organization,omitempty"`
	Title        string   `json:"title,omitempty"`
	Note         string   `json:"note,omitempty"`
	Birthday     string   `json:"birthday,omitempty"`
	Categories   []string `json:"categories,omitempty"`
	URL          string   `json:"url,omitempty"`
}

// DescribeEvent reads the master event of a stored record. Floating and all-day values are
// interpreted in loc.
func DescribeEvent(data []byte, loc *time.Location) (*EventView, error) {
	cal, err := ICalGrammar{}.Parse(data)
	if err != nil {
		return nil, err
	}
	master, err := masterEvent(cal)
	if err != nil {
		return nil, err
	}
	return describeComponent(master, loc), nil
}

func describeComponent(comp *ical.Component, loc *time.Location) *EventView {
	if loc == nil {
		loc = time.UTC
	}
	text := func(name string) string {
		v, _ := comp.Props.Text(name)
		return v
	}
	raw := func(name string) string {
		if p := comp.Props.Get(name); p != nil {
			return p.Value
		}
		return ""
	}

	view := &EventView{
		UID:         raw(ical.PropUID),
		Title:       text(ical.PropSummary),
		Description: text(ical.PropDescription),
		Location:    text(ical.PropLocation),
		Status:      text(ical.PropStatus),
		Transparent: strings.EqualFold(raw(ical.PropTransparency), "TRANSPARENT"),
		Recurrence:  raw(ical.PropRecurrenceRule),
		URL:         raw(ical.PropURL),
		Organizer:   strings.TrimPrefix(strings.ToLower(raw(ical.PropOrganizer)), "mailto:"),
		Sequence:    sequenceOf(comp),
	}
	view.Start, view.End, view.AllDay = EventSpan(comp, loc)
	if cats := raw(ical.PropCategories); cats != "" {
		view.Categories = splitEscaped(cats)
	}
	for _, p := range comp.Props[ical.PropAttendee] {
		view.Attendees = append(view.Attendees, strings.TrimPrefix(strings.ToLower(p.Value), "mailto:"))
	}
	for _, child := range comp.Children {
		if child.Name != ical.CompAlarm {
			continue
		}
		if p := child.Props.Get(ical.PropTrigger); p != nil {
			view.Reminders = append(view.Reminders, p.Value)
		}
	}
	return view
}

// EventSpan returns the occupied interval of an event component. A missing end means one day
// for all-day events and an instant for timed ones.
func EventSpan(comp *ical.Component, loc *time.Location) (start, end time.Time, allDay bool) {
	startProp := comp.Props.Get(ical.PropDateTimeStart)
	if startProp == nil {
		return time.Time{}, time.Time{}, false
	}
	allDay = isDateValue(startProp)
	start, err := startProp.DateTime(loc)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}

	if endProp := comp.Props.Get(ical.PropDateTimeEnd); endProp != nil {
		if end, err = endProp.DateTime(loc); err == nil && end.After(start) {
			return start, end, allDay
		}
	}
	if durProp := comp.Props.Get(ical.PropDuration); durProp != nil {
		if d, err := parseDuration(durProp.Value); err == nil && d > 0 {
			return start, start.Add(d), allDay
		}
	}
	if allDay {
		return start, start.AddDate(0, 0, 1), allDay
	}
	return start, start, allDay
}

func splitEscaped(s string) []string {
	var out []string
	var cur strings.Builder
	escaped := false
	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ',':
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(out, cur.String())
}

// DescribeContact reads a stored card.
func DescribeContact(data []byte) (*ContactView, error) {
	card, err := VCardGrammar{}.Parse(data)
	if err != nil {
		return nil, err
	}
	view := &ContactView{
		UID:          card.Value(vcard.FieldUID),
		FullName:     card.PreferredValue(vcard.FieldFormattedName),
		Emails:       card.Values(vcard.FieldEmail),
		Phones:       card.Values(vcard.FieldTelephone),
		Organization: card.Value(vcard.FieldOrganization),
		Title:        card.Value(vcard.FieldTitle),
		Note:         card.Value(vcard.FieldNote),
		Birthday:     card.Value(vcard.FieldBirthday),
		URL:          card.Value(vcard.FieldURL),
	}
	if name := card.Name(); name != nil {
		view.GivenName = name.GivenName
		view.FamilyName = name.FamilyName
	}
	if cats := card.Value(vcard.FieldCategories); cats != "" {
		for _, c := range strings.Split(cats, ",") {
			if c = strings.TrimSpace(c); c != "" {
				view.Categories = append(view.Categories, c)
			}
		}
	}
	return view, nil
}
