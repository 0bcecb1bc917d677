package transform

import (
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/davmutate/errs"
)

func TestEventBuildValidation(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		input     EventInput
		wantField string
	}{
		{name: "missing title", input: EventInput{Start: start, End: start.Add(time.Hour)}, wantField: "title"},
		{name: "blank title", input: EventInput{Title: "  ", Start: start, End: start.Add(time.Hour)}, wantField: "title"},
		{name: "missing start", input: EventInput{Title: "x"}, wantField: "start"},
		{name: "timed without end", input: EventInput{Title: "x", Start: start}, wantField: "end"},
		{name: "end before start", input: EventInput{Title: "x", Start: start, End: start.Add(-time.Hour)}, wantField: "end"},
		{name: "bad status", input: EventInput{Title: "x", Start: start, End: start.Add(time.Hour), Status: "maybe"}, wantField: "status"},
		{name: "bad recurrence", input: EventInput{Title: "x", Start: start, End: start.Add(time.Hour), Recurrence: "FREQ=SOMETIMES"}, wantField: "recurrence"},
		{name: "relative url", input: EventInput{Title: "x", Start: start, End: start.Add(time.Hour), URL: "/relative"}, wantField: "url"},
		{name: "negative reminder", input: EventInput{Title: "x", Start: start, End: start.Add(time.Hour), Reminders: []time.Duration{-time.Minute}}, wantField: "reminders"},
		{
			name:      "attendees without confirmation",
			input:     EventInput{Title: "x", Start: start, End: start.Add(time.Hour), Attendees: []string{"bob@example.com"}},
			wantField: "attendees",
		},
		{
			name:      "malformed attendee",
			input:     EventInput{Title: "x", Start: start, End: start.Add(time.Hour), Attendees: []string{"bob"}, InviteAttendees: true},
			wantField: "attendees",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testEventTransformer().Build(tt.input)
			var verr *errs.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestEventBuildTimed(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, berlin)

	rec, err := testEventTransformer().Build(EventInput{
		Title:       "Design review, round 2",
		Start:       start,
		End:         start.Add(90 * time.Minute),
		Description: "Bring notes\nand coffee",
		Location:    "Room 4",
		Status:      "tentative",
		Categories:  []string{"work", "design"},
		Recurrence:  "FREQ=WEEKLY;COUNT=4",
		Reminders:   []time.Duration{15 * time.Minute, 24 * time.Hour},
	})
	require.NoError(t, err)
	assert.Equal(t, "uid-1", rec.UID)
	assert.Empty(t, rec.Warnings)

	data := string(rec.Data)
	assert.Contains(t, data, "PRODID:"+ProductID)
	assert.Contains(t, data, "VERSION:2.0")
	assert.Contains(t, data, "DTSTART:20240301T090000Z")
	assert.Contains(t, data, "DTEND:20240301T103000Z")
	assert.Contains(t, data, "SEQUENCE:0")
	assert.Contains(t, data, "STATUS:TENTATIVE")
	assert.Contains(t, data, "TRANSP:OPAQUE")
	assert.Contains(t, data, "RRULE:FREQ=WEEKLY;COUNT=4")
	assert.Contains(t, data, "TRIGGER:-PT15M")
	assert.Contains(t, data, "TRIGGER:-P1D")
	assert.Equal(t, 2, strings.Count(data, "BEGIN:VALARM"))

	view, err := DescribeEvent(rec.Data, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "Design review, round 2", view.Title)
	assert.Equal(t, "Bring notes\nand coffee", view.Description)
	assert.Equal(t, []string{"work", "design"}, view.Categories)
	assert.True(t, view.Start.Equal(start))
	assert.True(t, view.End.Equal(start.Add(90*time.Minute)))
	assert.False(t, view.AllDay)
}

func TestEventBuildAllDayDefaultsToOneDay(t *testing.T) {
	rec, err := testEventTransformer().Build(EventInput{
		Title:       "Offsite",
		Start:       time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC),
		AllDay:      true,
		Transparent: true,
	})
	require.NoError(t, err)
	data := string(rec.Data)
	assert.Contains(t, data, "DTSTART;VALUE=DATE:20240301")
	assert.Contains(t, data, "DTEND;VALUE=DATE:20240302")
	assert.Contains(t, data, "TRANSP:TRANSPARENT")

	view, err := DescribeEvent(rec.Data, time.UTC)
	require.NoError(t, err)
	assert.True(t, view.AllDay)
	assert.True(t, view.Transparent)
}

func TestEventBuildAttendeesWarn(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	rec, err := testEventTransformer().Build(EventInput{
		Title:           "Kickoff",
		Start:           start,
		End:             start.Add(time.Hour),
		Attendees:       []string{"Bob <bob@example.com>", "mailto:carol@example.com"},
		Organizer:       "alice@example.com",
		InviteAttendees: true,
	})
	require.NoError(t, err)
	require.Len(t, rec.Warnings, 1)
	assert.Equal(t, []string{"bob@example.com", "carol@example.com"}, rec.Warnings[0].Attendees)
	assert.Contains(t, string(rec.Data), "mailto:bob@example.com")
	assert.Contains(t, string(rec.Data), "ORGANIZER:mailto:alice@example.com")
}

func TestEventBuildIdentifiersAreUnique(t *testing.T) {
	tr := NewEventTransformer(nil)
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		rec, err := tr.Build(EventInput{Title: "x", Start: start, End: start.Add(time.Hour)})
		require.NoError(t, err)
		assert.False(t, seen[rec.UID])
		seen[rec.UID] = true
	}
}

func TestEventPatchTitleIsLossless(t *testing.T) {
	rec, err := testEventTransformer().Patch(standupSeries, EventPatch{Title: mo.Some("Daily sync")})
	require.NoError(t, err)
	assert.Equal(t, "standup-1", rec.UID)

	data := string(rec.Data)
	for _, want := range []string{
		"BEGIN:VTIMEZONE",
		"TZID:Europe/Berlin",
		"RRULE:FREQ=WEEKLY;BYDAY=MO,TU,WE,TH,FR",
		"DTSTART;TZID=Europe/Berlin:20240108T093000",
		"X-CUSTOM-FLAG:keep-me",
		"TRIGGER:-PT5M",
		"DESCRIPTION:Standup soon",
		"RECURRENCE-ID;TZID=Europe/Berlin:20240110T093000",
		"SUMMARY:Standup (moved)",
		"SUMMARY:Daily sync",
		"SEQUENCE:3",
		"LAST-MODIFIED:20240201T120000Z",
		"DTSTAMP:20240201T120000Z",
	} {
		assert.Contains(t, data, want)
	}
	assert.NotContains(t, data, "SUMMARY:Standup\r\n")

	// the override keeps its own stamp
	cal, err := ICalGrammar{}.Parse(rec.Data)
	require.NoError(t, err)
	var override *ical.Component
	for _, c := range cal.Children {
		if c.Props.Get(propRecurID) != nil {
			override = c
		}
	}
	require.NotNil(t, override)
	assert.Equal(t, "20240101T080000Z", override.Props.Get(ical.PropDateTimeStamp).Value)
}

func TestEventPatchEmptyOnlyRefreshesRevision(t *testing.T) {
	cal, err := ICalGrammar{}.Parse(standupSeries)
	require.NoError(t, err)
	before, err := ICalGrammar{}.Serialize(cal)
	require.NoError(t, err)

	rec, err := testEventTransformer().Patch(standupSeries, EventPatch{})
	require.NoError(t, err)
	assert.Equal(t, "standup-1", rec.UID)

	revision := []string{"DTSTAMP:", "LAST-MODIFIED:", "SEQUENCE:"}
	assert.Equal(t, linesWithout(before, revision...), linesWithout(rec.Data, revision...))

	data := string(rec.Data)
	assert.Contains(t, data, "SEQUENCE:3")
	assert.Contains(t, data, "LAST-MODIFIED:20240201T120000Z")
	assert.Contains(t, data, "DTSTAMP:20240201T120000Z")
	assert.Contains(t, data, "DTSTAMP:20240101T080000Z", "the override keeps its own stamp")
}

func TestEventPatchMoveStartKeepsZoneAndLength(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	rec, err := testEventTransformer().Patch(standupSeries, EventPatch{
		Start: mo.Some(time.Date(2024, 1, 8, 10, 0, 0, 0, berlin)),
	})
	require.NoError(t, err)
	data := string(rec.Data)
	assert.Contains(t, data, "DTSTART;TZID=Europe/Berlin:20240108T100000")
	assert.Contains(t, data, "DTEND;TZID=Europe/Berlin:20240108T101500")
	assert.Contains(t, data, "RRULE:FREQ=WEEKLY;BYDAY=MO,TU,WE,TH,FR")
}

func TestEventPatchClearsAndSets(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	tr := testEventTransformer()
	built, err := tr.Build(EventInput{Title: "x", Start: start, End: start.Add(time.Hour), Location: "Room 1", Reminders: []time.Duration{time.Hour}})
	require.NoError(t, err)

	rec, err := tr.Patch(built.Data, EventPatch{
		Location:    mo.Some(""),
		Description: mo.Some("agenda"),
		Reminders:   mo.Some([]time.Duration{}),
		Status:      mo.Some("cancelled"),
	})
	require.NoError(t, err)
	view, err := DescribeEvent(rec.Data, time.UTC)
	require.NoError(t, err)
	assert.Empty(t, view.Location)
	assert.Equal(t, "agenda", view.Description)
	assert.Empty(t, view.Reminders)
	assert.Equal(t, StatusCancelled, view.Status)
	assert.Equal(t, 1, view.Sequence)
	assert.Equal(t, built.UID, rec.UID)
}

func TestEventPatchToAllDay(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	tr := testEventTransformer()
	built, err := tr.Build(EventInput{Title: "x", Start: start, End: start.Add(time.Hour)})
	require.NoError(t, err)

	rec, err := tr.Patch(built.Data, EventPatch{AllDay: mo.Some(true)})
	require.NoError(t, err)
	assert.Contains(t, string(rec.Data), "DTSTART;VALUE=DATE:20240301")
	assert.Contains(t, string(rec.Data), "DTEND;VALUE=DATE:20240302")

	_, err = tr.Patch(rec.Data, EventPatch{AllDay: mo.Some(false)})
	assert.ErrorIs(t, err, errs.ErrValidation, "timed events need an explicit end")
}

func TestEventPatchValidation(t *testing.T) {
	tr := testEventTransformer()
	tests := []struct {
		name  string
		patch EventPatch
	}{
		{name: "clear title", patch: EventPatch{Title: mo.Some(" ")}},
		{name: "end before start", patch: EventPatch{End: mo.Some(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))}},
		{name: "attendees need confirmation", patch: EventPatch{Attendees: mo.Some([]string{"bob@example.com"})}},
		{name: "bad rule", patch: EventPatch{Recurrence: mo.Some("FREQ=NEVER")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tr.Patch(standupSeries, tt.patch)
			assert.ErrorIs(t, err, errs.ErrValidation)
		})
	}
}

func TestEventPatchExplicitRecurrenceRemoval(t *testing.T) {
	rec, err := testEventTransformer().Patch(standupSeries, EventPatch{Recurrence: mo.Some("")})
	require.NoError(t, err)
	assert.NotContains(t, string(rec.Data), "RRULE:FREQ=WEEKLY")
	assert.Contains(t, string(rec.Data), "RRULE:FREQ=YEARLY", "time zone rules are untouched")
}

func TestEventPatchUnparseableRecord(t *testing.T) {
	_, err := testEventTransformer().Patch([]byte("not a calendar"), EventPatch{Title: mo.Some("x")})
	assert.ErrorIs(t, err, errs.ErrIntegrity)
}

// lossyGrammar drops the recurrence rule of every event on the way out.
type lossyGrammar struct{ ICalGrammar }

func (g lossyGrammar) Serialize(cal *ical.Calendar) ([]byte, error) {
	for _, c := range cal.Children {
		if c.Name == ical.CompEvent {
			c.Props.Del(ical.PropRecurrenceRule)
		}
	}
	return g.ICalGrammar.Serialize(cal)
}

func TestEventPatchAbortsWhenRecurrenceWouldBeLost(t *testing.T) {
	tr := NewEventTransformer(lossyGrammar{})
	_, err := tr.Patch(standupSeries, EventPatch{Title: mo.Some("Daily sync")})
	var integrity *errs.IntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Contains(t, integrity.Message, "recurrence")
}

func TestFormatTrigger(t *testing.T) {
	assert.Equal(t, "-PT15M", formatTrigger(15*time.Minute))
	assert.Equal(t, "-PT1H30M", formatTrigger(90*time.Minute))
	assert.Equal(t, "-P2D", formatTrigger(48*time.Hour))
	assert.Equal(t, "-PT45S", formatTrigger(45*time.Second))
	assert.Equal(t, "PT0S", formatTrigger(0))

	d, err := parseDuration(formatTrigger(90 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, -90*time.Minute, d)
}
