package transform

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/samber/mo"

	"github.com/cyp0633/davmutate/errs"
)

// EventPatch names the fields to change. None leaves a field untouched; Some of the zero value
// clears it where clearing makes sense.
type EventPatch struct {
	Title       mo.Option[string]
	Start       mo.Option[time.Time]
	End         mo.Option[time.Time]
	AllDay      mo.Option[bool]
	Description mo.Option[string]
	Location    mo.Option[string]
	Status      mo.Option[string]
	Transparent mo.Option[bool]
	Categories  mo.Option[[]string]
	Recurrence  mo.Option[string]
	URL         mo.Option[string]
	Reminders   mo.Option[[]time.Duration]
	Attendees   mo.Option[[]string]
	Organizer   mo.Option[string]
	// InviteAttendees confirms a change that adds attendees
	InviteAttendees bool
}

// Patch applies p to the master VEVENT of an existing record and re-serializes the whole
// object. Time zones, overrides, alarms and unknown properties the patch does not name are kept.
// An empty patch only refreshes DTSTAMP, LAST-MODIFIED and SEQUENCE.
func (t *EventTransformer) Patch(existing []byte, p EventPatch) (*Record, error) {
	cal, err := t.grammar.Parse(existing)
	if err != nil {
		return nil, &errs.IntegrityError{Message: fmt.Sprintf("stored record cannot be parsed: %v", err)}
	}
	master, err := masterEvent(cal)
	if err != nil {
		return nil, &errs.IntegrityError{Message: err.Error()}
	}
	uid := ""
	if prop := master.Props.Get(ical.PropUID); prop != nil {
		uid = prop.Value
	}
	hadRule := master.Props.Get(ical.PropRecurrenceRule) != nil
	removesRule := p.Recurrence.OrEmpty() == "" && p.Recurrence.IsPresent()

	if err := applyTiming(master, p); err != nil {
		return nil, err
	}
	if err := applyEventFields(master, p); err != nil {
		return nil, err
	}

	now := t.now().UTC()
	master.Props.Set(utcProp(ical.PropDateTimeStamp, now))
	master.Props.Set(utcProp(ical.PropLastModified, now))
	setRaw(master, ical.PropSequence, strconv.Itoa(sequenceOf(master)+1))

	data, err := t.grammar.Serialize(cal)
	if err != nil {
		return nil, err
	}

	check, err := t.grammar.Parse(data)
	if err != nil {
		return nil, &errs.IntegrityError{Message: fmt.Sprintf("patched record cannot be parsed: %v", err)}
	}
	checkMaster, err := masterEvent(check)
	if err != nil {
		return nil, &errs.IntegrityError{Message: err.Error()}
	}
	if got := checkMaster.Props.Get(ical.PropUID); got == nil || got.Value != uid {
		return nil, &errs.IntegrityError{Message: "the identifier would change"}
	}
	if hadRule && !removesRule && checkMaster.Props.Get(ical.PropRecurrenceRule) == nil {
		return nil, &errs.IntegrityError{Message: "the recurrence rule would be lost"}
	}

	return &Record{UID: uid, Data: data, Warnings: attendeeWarnings(uid, checkMaster)}, nil
}

func applyTiming(master *ical.Component, p EventPatch) error {
	if p.Start.IsAbsent() && p.End.IsAbsent() && p.AllDay.IsAbsent() {
		return nil
	}

	startProp := master.Props.Get(ical.PropDateTimeStart)
	endProp := master.Props.Get(ical.PropDateTimeEnd)
	durationProp := master.Props.Get(ical.PropDuration)

	var curStart, curEnd time.Time
	if startProp != nil {
		curStart, _ = startProp.DateTime(time.UTC)
	}
	if endProp != nil {
		curEnd, _ = endProp.DateTime(time.UTC)
	}
	curAllDay := isDateValue(startProp)
	allDay := p.AllDay.OrElse(curAllDay)
	modeChanged := allDay != curAllDay

	start, startSet := p.Start.Get()
	if startSet && start.IsZero() {
		return errs.Validation("start", "cannot be cleared")
	}
	if !startSet {
		start = curStart
	}
	if start.IsZero() {
		return errs.Validation("start", "is required")
	}
	end, endSet := p.End.Get()

	switch {
	case endSet:
	case modeChanged && allDay:
		end = time.Time{}
	case modeChanged:
		return errs.Validation("end", "is required when changing an all-day event into a timed one")
	case startSet && !curEnd.IsZero() && !curStart.IsZero():
		// keep the original length when only the start moves
		if allDay {
			days := int(startOfDay(curEnd).Sub(startOfDay(curStart)).Hours() / 24)
			end = startOfDay(start).AddDate(0, 0, days)
		} else {
			end = start.Add(curEnd.Sub(curStart))
		}
	default:
		end = curEnd
	}

	if allDay {
		start = startOfDay(start)
		if end.IsZero() && durationProp == nil {
			end = start.AddDate(0, 0, 1)
		} else if !end.IsZero() {
			end = startOfDay(end)
		}
	}
	if !end.IsZero() && !end.After(start) {
		return errs.Validation("end", "must be after start")
	}

	writeEnd := endSet || modeChanged || (startSet && endProp != nil) || (allDay && endProp == nil && durationProp == nil)
	if startSet || modeChanged {
		master.Props.Set(timeProp(ical.PropDateTimeStart, start, allDay, tzidOf(startProp)))
	}
	if writeEnd && !end.IsZero() {
		tz := tzidOf(endProp)
		if tz == "" {
			tz = tzidOf(startProp)
		}
		master.Props.Set(timeProp(ical.PropDateTimeEnd, end, allDay, tz))
		master.Props.Del(ical.PropDuration)
	}
	return nil
}

// timeProp writes a DTSTART/DTEND value keeping the zone the record already used.
func timeProp(name string, t time.Time, allDay bool, tzid string) *ical.Prop {
	switch {
	case allDay:
		return dateProp(name, t)
	case tzid != "":
		return zonedProp(name, t, tzid)
	default:
		return utcProp(name, t)
	}
}

func applyEventFields(master *ical.Component, p EventPatch) error {
	if v, ok := p.Title.Get(); ok {
		v = strings.TrimSpace(v)
		if v == "" {
			return errs.Validation("title", "cannot be cleared")
		}
		master.Props.SetText(ical.PropSummary, v)
	}
	setOrClearText(master, ical.PropDescription, p.Description)
	setOrClearText(master, ical.PropLocation, p.Location)

	if v, ok := p.Status.Get(); ok {
		status, err := normalizeStatus(v)
		if err != nil {
			return err
		}
		if status == "" {
			master.Props.Del(ical.PropStatus)
		} else {
			master.Props.SetText(ical.PropStatus, status)
		}
	}
	if v, ok := p.Transparent.Get(); ok {
		setTransparency(master, v)
	}
	if v, ok := p.Categories.Get(); ok {
		setCategories(master, v)
	}
	if v, ok := p.Recurrence.Get(); ok {
		if v == "" {
			master.Props.Del(ical.PropRecurrenceRule)
		} else {
			if err := validateRecurrence(v); err != nil {
				return err
			}
			setRaw(master, ical.PropRecurrenceRule, v)
		}
	}
	if v, ok := p.URL.Get(); ok {
		if v == "" {
			master.Props.Del(ical.PropURL)
		} else {
			if err := validateURL(v); err != nil {
				return err
			}
			setRaw(master, ical.PropURL, v)
		}
	}
	if v, ok := p.Reminders.Get(); ok {
		for _, r := range v {
			if r < 0 {
				return errs.Validation("reminders", "offsets must not be negative")
			}
		}
		setReminders(master, v)
	}
	if v, ok := p.Attendees.Get(); ok {
		if len(v) > 0 && !p.InviteAttendees {
			return errs.Validation("attendees", "adding attendees lets the server send them invitations; set invite_attendees to confirm")
		}
		addrs := make([]string, 0, len(v))
		for _, a := range v {
			addr, err := normalizeEmail(a)
			if err != nil {
				return errs.Validation("attendees", "%q is not an email address", a)
			}
			addrs = append(addrs, addr)
		}
		setAttendees(master, addrs)
	}
	if v, ok := p.Organizer.Get(); ok {
		if v == "" {
			master.Props.Del(ical.PropOrganizer)
		} else {
			addr, err := normalizeEmail(v)
			if err != nil {
				return errs.Validation("organizer", "%q is not an email address", v)
			}
			setRaw(master, ical.PropOrganizer, "mailto:"+addr)
		}
	}
	return nil
}

func setOrClearText(comp *ical.Component, name string, opt mo.Option[string]) {
	v, ok := opt.Get()
	if !ok {
		return
	}
	if v == "" {
		comp.Props.Del(name)
		return
	}
	comp.Props.SetText(name, v)
}
