package transform

import (
	"fmt"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"github.com/cyp0633/davmutate/errs"
)

// Event statuses accepted on input.
const (
	StatusConfirmed = "CONFIRMED"
	StatusTentative = "TENTATIVE"
	StatusCancelled = "CANCELLED"
)

// EventInput describes a new calendar event.
type EventInput struct {
	Title       string
	Start       time.Time
	End         time.Time
	AllDay      bool
	Description string
	Location    string
	Status      string
	Transparent bool
	Categories  []string
	// Recurrence is an RRULE value such as "FREQ=WEEKLY;BYDAY=MO"
	Recurrence string
	URL        string
	// Reminders are offsets before the start
	Reminders []time.Duration
	Attendees []string
	Organizer string
	// InviteAttendees confirms that attendees may be written and notified by the server
	InviteAttendees bool
}

// EventTransformer builds and patches iCalendar events.
type EventTransformer struct {
	grammar Grammar[*ical.Calendar]
	now     func() time.Time
	newUID  func() string
}

var _ Transformer[EventInput, EventPatch] = (*EventTransformer)(nil)

// NewEventTransformer creates an event transformer. A nil grammar means go-ical.
func NewEventTransformer(grammar Grammar[*ical.Calendar]) *EventTransformer {
	if grammar == nil {
		grammar = ICalGrammar{}
	}
	return &EventTransformer{
		grammar: grammar,
		now:     time.Now,
		newUID:  func() string { return uuid.New().String() },
	}
}

func (t *EventTransformer) ContentType() string { return "text/calendar; charset=utf-8" }

func (t *EventTransformer) Extension() string { return ".ics" }

// Build creates a complete VCALENDAR holding one VEVENT with a fresh identifier.
func (t *EventTransformer) Build(in EventInput) (*Record, error) {
	if err := validateEventInput(&in); err != nil {
		return nil, err
	}

	now := t.now().UTC()
	uid := t.newUID()

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, uid)
	event.Props.Set(utcProp(ical.PropDateTimeStamp, now))
	event.Props.Set(utcProp(ical.PropCreated, now))
	event.Props.Set(utcProp(ical.PropLastModified, now))
	setRaw(event.Component, ical.PropSequence, "0")
	event.Props.SetText(ical.PropSummary, in.Title)

	if in.AllDay {
		event.Props.Set(dateProp(ical.PropDateTimeStart, in.Start))
		event.Props.Set(dateProp(ical.PropDateTimeEnd, in.End))
	} else {
		event.Props.Set(utcProp(ical.PropDateTimeStart, in.Start))
		event.Props.Set(utcProp(ical.PropDateTimeEnd, in.End))
	}

	if in.Description != "" {
		event.Props.SetText(ical.PropDescription, in.Description)
	}
	if in.Location != "" {
		event.Props.SetText(ical.PropLocation, in.Location)
	}
	if in.Status != "" {
		event.Props.SetText(ical.PropStatus, in.Status)
	}
	setTransparency(event.Component, in.Transparent)
	if len(in.Categories) > 0 {
		setCategories(event.Component, in.Categories)
	}
	if in.Recurrence != "" {
		setRaw(event.Component, ical.PropRecurrenceRule, in.Recurrence)
	}
	if in.URL != "" {
		setRaw(event.Component, ical.PropURL, in.URL)
	}
	if in.Organizer != "" {
		setRaw(event.Component, ical.PropOrganizer, "mailto:"+in.Organizer)
	}
	setAttendees(event.Component, in.Attendees)
	setReminders(event.Component, in.Reminders)

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, ProductID)
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Children = append(cal.Children, event.Component)

	data, err := t.grammar.Serialize(cal)
	if err != nil {
		return nil, err
	}
	return &Record{UID: uid, Data: data, Warnings: attendeeWarnings(uid, event.Component)}, nil
}

func validateEventInput(in *EventInput) error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return errs.Validation("title", "is required")
	}
	if in.Start.IsZero() {
		return errs.Validation("start", "is required")
	}

	if in.AllDay {
		in.Start = startOfDay(in.Start)
		if in.End.IsZero() {
			in.End = in.Start.AddDate(0, 0, 1)
		} else {
			in.End = startOfDay(in.End)
		}
		if !in.End.After(in.Start) {
			return errs.Validation("end", "must be at least one day after start for all-day events")
		}
	} else {
		if in.End.IsZero() {
			return errs.Validation("end", "is required for timed events")
		}
		if !in.End.After(in.Start) {
			return errs.Validation("end", "must be after start")
		}
	}

	status, err := normalizeStatus(in.Status)
	if err != nil {
		return err
	}
	in.Status = status

	if err := validateRecurrence(in.Recurrence); err != nil {
		return err
	}
	if err := validateURL(in.URL); err != nil {
		return err
	}
	for _, r := range in.Reminders {
		if r < 0 {
			return errs.Validation("reminders", "offsets must not be negative")
		}
	}
	in.Attendees = append([]string(nil), in.Attendees...)
	if len(in.Attendees) > 0 && !in.InviteAttendees {
		return errs.Validation("attendees", "adding attendees lets the server send them invitations; set invite_attendees to confirm")
	}
	for i, a := range in.Attendees {
		addr, err := normalizeEmail(a)
		if err != nil {
			return errs.Validation("attendees", "%q is not an email address", a)
		}
		in.Attendees[i] = addr
	}
	if in.Organizer != "" {
		addr, err := normalizeEmail(in.Organizer)
		if err != nil {
			return errs.Validation("organizer", "%q is not an email address", in.Organizer)
		}
		in.Organizer = addr
	}
	return nil
}

func normalizeStatus(s string) (string, error) {
	switch up := strings.ToUpper(strings.TrimSpace(s)); up {
	case "", StatusConfirmed, StatusTentative, StatusCancelled:
		return up, nil
	default:
		return "", errs.Validation("status", "must be one of confirmed, tentative or cancelled")
	}
}

func validateRecurrence(rule string) error {
	if rule == "" {
		return nil
	}
	if _, err := rrule.StrToRRule(strings.TrimPrefix(rule, "RRULE:")); err != nil {
		return errs.Validation("recurrence", "%v", err)
	}
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return errs.Validation("url", "must be an absolute URL")
	}
	return nil
}

func normalizeEmail(s string) (string, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "mailto:")
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return "", err
	}
	return addr.Address, nil
}

// setRaw stores a value that must not be text-escaped (RRULE, URI, CAL-ADDRESS).
func setRaw(comp *ical.Component, name, value string) {
	p := ical.NewProp(name)
	p.Value = strings.TrimPrefix(value, name+":")
	comp.Props.Set(p)
}

func setTransparency(comp *ical.Component, transparent bool) {
	value := "OPAQUE"
	if transparent {
		value = "TRANSPARENT"
	}
	comp.Props.SetText(ical.PropTransparency, value)
}

func setCategories(comp *ical.Component, categories []string) {
	escaped := make([]string, 0, len(categories))
	for _, c := range categories {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		c = strings.NewReplacer(`\`, `\\`, ",", `\,`, ";", `\;`).Replace(c)
		escaped = append(escaped, c)
	}
	if len(escaped) == 0 {
		comp.Props.Del(ical.PropCategories)
		return
	}
	setRaw(comp, ical.PropCategories, strings.Join(escaped, ","))
}

func setAttendees(comp *ical.Component, attendees []string) {
	comp.Props.Del(ical.PropAttendee)
	for _, a := range attendees {
		p := ical.NewProp(ical.PropAttendee)
		p.Value = "mailto:" + a
		p.Params["ROLE"] = []string{"REQ-PARTICIPANT"}
		p.Params["PARTSTAT"] = []string{"NEEDS-ACTION"}
		p.Params["RSVP"] = []string{"TRUE"}
		comp.Props.Add(p)
	}
}

func setReminders(comp *ical.Component, reminders []time.Duration) {
	kept := comp.Children[:0]
	for _, child := range comp.Children {
		if child.Name != ical.CompAlarm {
			kept = append(kept, child)
		}
	}
	comp.Children = kept

	for _, before := range reminders {
		alarm := ical.NewComponent(ical.CompAlarm)
		alarm.Props.SetText(ical.PropAction, actionDisplay)
		setRaw(alarm, ical.PropTrigger, formatTrigger(before))
		alarm.Props.SetText(ical.PropDescription, "Reminder")
		comp.Children = append(comp.Children, alarm)
	}
}

func attendeeWarnings(uid string, comp *ical.Component) []errs.SchedulingSideEffectWarning {
	props := comp.Props[ical.PropAttendee]
	if len(props) == 0 {
		return nil
	}
	addrs := make([]string, 0, len(props))
	for _, p := range props {
		addrs = append(addrs, strings.TrimPrefix(strings.ToLower(p.Value), "mailto:"))
	}
	return []errs.SchedulingSideEffectWarning{{UID: uid, Attendees: addrs}}
}

func sequenceOf(comp *ical.Component) int {
	p := comp.Props.Get(ical.PropSequence)
	if p == nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(p.Value))
	if err != nil {
		return 0
	}
	return n
}

// masterEvent returns the VEVENT that carries the series (no RECURRENCE-ID).
func masterEvent(cal *ical.Calendar) (*ical.Component, error) {
	for _, child := range cal.Children {
		if child.Name == ical.CompEvent && child.Props.Get(propRecurID) == nil {
			return child, nil
		}
	}
	return nil, fmt.Errorf("no master VEVENT")
}
