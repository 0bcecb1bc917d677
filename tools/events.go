package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/mo"

	"github.com/cyp0633/davmutate/errs"
	"github.com/cyp0633/davmutate/transform"
)

func eventFieldParams() []Param {
	return []Param{
		{Name: "title", Type: TypeString, Description: "Event summary."},
		{Name: "start", Type: TypeTime, Description: "Start as RFC 3339, local date-time or date (all-day)."},
		{Name: "end", Type: TypeTime, Description: "End (exclusive). Required for timed events; all-day events default to one day."},
		{Name: "all_day", Type: TypeBool, Description: "Whole-day event. Implied when start is a plain date."},
		{Name: "description", Type: TypeString, Description: "Free text notes."},
		{Name: "location", Type: TypeString, Description: "Where the event takes place."},
		{Name: "status", Type: TypeString, Description: "CONFIRMED, TENTATIVE or CANCELLED."},
		{Name: "transparent", Type: TypeBool, Description: "True when the event does not block time."},
		{Name: "categories", Type: TypeStrings, Description: "Category labels."},
		{Name: "recurrence", Type: TypeString, Description: "RRULE value such as FREQ=WEEKLY;BYDAY=MO. Empty removes recurrence on update."},
		{Name: "url", Type: TypeString, Description: "Related link."},
		{Name: "reminders_minutes", Type: TypeMinutes, Description: "Display reminders, in minutes before start."},
		{Name: "attendees", Type: TypeStrings, Description: "Attendee e-mail addresses. Requires invite_attendees."},
		{Name: "organizer", Type: TypeString, Description: "Organizer e-mail address."},
		{Name: "invite_attendees", Type: TypeBool, Description: "Confirms that the server may notify attendees."},
	}
}

func registerEventTools(r *Registry, d Deps) {
	r.Register(Metadata{
		Name:        "create_event",
		Description: "Create a calendar event and return its stable identifier.",
		Params:      append([]Param{calendarParam}, requiredTitleStart(eventFieldParams())...),
	}, func(ctx context.Context, args Args) (string, any, error) {
		in, err := eventInput(args, d)
		if err != nil {
			return "", nil, err
		}
		hint, _ := args.String("calendar")
		res, err := d.Events.Create(ctx, in, hint.OrEmpty())
		if err != nil {
			return "", nil, err
		}
		out := newResult(res, describeEvent(res.Handle.Data, d.Location))
		return fmt.Sprintf("Created event %q (uid %s) in %s.", in.Title, out.UID, out.Collection), out, nil
	})

	r.Register(Metadata{
		Name:        "update_event",
		Description: "Change named fields of an existing event. Fields not given are left untouched; null clears a field.",
		Params:      append([]Param{uidParam("event"), calendarParam}, eventFieldParams()...),
		Destructive: true,
	}, func(ctx context.Context, args Args) (string, any, error) {
		uid, err := requireUID(args)
		if err != nil {
			return "", nil, err
		}
		patch, err := eventPatch(args, d)
		if err != nil {
			return "", nil, err
		}
		hint, _ := args.String("calendar")
		res, err := d.Events.Update(ctx, uid, patch, hint.OrEmpty())
		if err != nil {
			return "", nil, err
		}
		view := describeEvent(res.Handle.Data, d.Location)
		out := newResult(res, view)
		if view != nil {
			return fmt.Sprintf("Updated event %q (uid %s).", view.Title, uid), out, nil
		}
		return fmt.Sprintf("Updated event %s.", uid), out, nil
	})

	r.Register(Metadata{
		Name:        "delete_event",
		Description: "Delete an event. A recurring event is deleted with all its occurrences.",
		Params:      []Param{uidParam("event"), calendarParam},
		Destructive: true,
	}, func(ctx context.Context, args Args) (string, any, error) {
		uid, err := requireUID(args)
		if err != nil {
			return "", nil, err
		}
		hint, _ := args.String("calendar")
		res, err := d.Events.Delete(ctx, uid, hint.OrEmpty())
		if err != nil {
			return "", nil, err
		}
		out := newResult(res, nil)
		return fmt.Sprintf("Deleted event %s from %s.", uid, out.Collection), out, nil
	})

	r.Register(Metadata{
		Name:        "get_event",
		Description: "Read the current state of an event.",
		Params:      []Param{uidParam("event"), calendarParam},
		ReadOnly:    true,
	}, func(ctx context.Context, args Args) (string, any, error) {
		uid, err := requireUID(args)
		if err != nil {
			return "", nil, err
		}
		hint, _ := args.String("calendar")
		res, err := d.Events.Get(ctx, uid, hint.OrEmpty())
		if err != nil {
			return "", nil, err
		}
		view := describeEvent(res.Handle.Data, d.Location)
		if view == nil {
			return "", nil, &errs.IntegrityError{ResourceURL: res.Handle.URL, Message: "stored event cannot be read"}
		}
		return fmt.Sprintf("Event %q (uid %s) in %s.", view.Title, uid, collectionName(res.Collection)), newResult(res, view), nil
	})
}

func requiredTitleStart(params []Param) []Param {
	for i := range params {
		if params[i].Name == "title" || params[i].Name == "start" {
			params[i].Required = true
		}
	}
	return params
}

func describeEvent(data string, loc *time.Location) *transform.EventView {
	view, err := transform.DescribeEvent([]byte(data), loc)
	if err != nil {
		return nil
	}
	return view
}

// dateOnly reports whether a time parameter was given as a plain date.
func dateOnly(args Args, name string) bool {
	text, err := args.String(name)
	return err == nil && len(text.OrEmpty()) == len("2006-01-02")
}

func checkInvites(invite bool, attendees []string, d Deps) error {
	if invite && len(attendees) > 0 && !d.AllowInvites {
		return errs.Validation("invite_attendees", "sending invitations is disabled in this deployment")
	}
	return nil
}

func eventInput(args Args, d Deps) (transform.EventInput, error) {
	var in transform.EventInput
	var err error
	fail := func(e error) {
		if err == nil {
			err = e
		}
	}
	str := func(name string) string {
		v, e := args.String(name)
		fail(e)
		return v.OrEmpty()
	}
	list := func(name string) []string {
		v, e := args.Strings(name)
		fail(e)
		return v.OrEmpty()
	}
	flag := func(name string) mo.Option[bool] {
		v, e := args.Bool(name)
		fail(e)
		return v
	}
	when := func(name string) time.Time {
		v, e := args.Time(name, d.Location)
		fail(e)
		return v.OrEmpty()
	}

	in.Title = str("title")
	in.Start = when("start")
	in.End = when("end")
	in.AllDay = flag("all_day").OrElse(dateOnly(args, "start"))
	in.Description = str("description")
	in.Location = str("location")
	in.Status = str("status")
	in.Transparent = flag("transparent").OrEmpty()
	in.Categories = list("categories")
	in.Recurrence = str("recurrence")
	in.URL = str("url")
	reminders, e := args.Minutes("reminders_minutes")
	fail(e)
	in.Reminders = reminders.OrEmpty()
	in.Attendees = list("attendees")
	in.Organizer = str("organizer")
	in.InviteAttendees = flag("invite_attendees").OrEmpty()
	if err != nil {
		return transform.EventInput{}, err
	}
	return in, checkInvites(in.InviteAttendees, in.Attendees, d)
}

func eventPatch(args Args, d Deps) (transform.EventPatch, error) {
	var p transform.EventPatch
	var err error
	fail := func(e error) {
		if err == nil {
			err = e
		}
	}
	str := func(name string) mo.Option[string] {
		v, e := args.String(name)
		fail(e)
		return v
	}
	list := func(name string) mo.Option[[]string] {
		v, e := args.Strings(name)
		fail(e)
		return v
	}
	flag := func(name string) mo.Option[bool] {
		v, e := args.Bool(name)
		fail(e)
		return v
	}
	when := func(name string) mo.Option[time.Time] {
		v, e := args.Time(name, d.Location)
		fail(e)
		return v
	}

	p.Title = str("title")
	p.Start = when("start")
	p.End = when("end")
	p.AllDay = flag("all_day")
	if p.AllDay.IsAbsent() && p.Start.IsPresent() && dateOnly(args, "start") {
		p.AllDay = mo.Some(true)
	}
	p.Description = str("description")
	p.Location = str("location")
	p.Status = str("status")
	p.Transparent = flag("transparent")
	p.Categories = list("categories")
	p.Recurrence = str("recurrence")
	p.URL = str("url")
	reminders, e := args.Minutes("reminders_minutes")
	fail(e)
	p.Reminders = reminders
	p.Attendees = list("attendees")
	p.Organizer = str("organizer")
	p.InviteAttendees = flag("invite_attendees").OrEmpty()
	if err != nil {
		return transform.EventPatch{}, err
	}
	return p, checkInvites(p.InviteAttendees, p.Attendees.OrEmpty(), d)
}
