package transform

import (
	"strings"
	"time"
	_ "time/tzdata"
)

var fixedNow = time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(strings.TrimLeft(s, "\n"), "\n", "\r\n"))
}

// linesWithout splits wire text into lines, dropping the lines that start with any of prefixes.
func linesWithout(data []byte, prefixes ...string) []string {
	var out []string
next:
	for _, line := range strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n") {
		for _, p := range prefixes {
			if strings.HasPrefix(line, p) {
				continue next
			}
		}
		out = append(out, line)
	}
	return out
}

func testEventTransformer() *EventTransformer {
	t := NewEventTransformer(nil)
	t.now = func() time.Time { return fixedNow }
	n := 0
	t.newUID = func() string {
		n++
		return "uid-" + string(rune('0'+n))
	}
	return t
}

func testContactTransformer() *ContactTransformer {
	t := NewContactTransformer(nil)
	t.now = func() time.Time { return fixedNow }
	t.newUID = func() string { return "card-uid" }
	return t
}

// standupSeries is a weekday series in Berlin time with one moved occurrence, an alarm and a
// vendor property.
var standupSeries = crlf(`
BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//Example Corp//Calendar Client//EN
BEGIN:VTIMEZONE
TZID:Europe/Berlin
BEGIN:STANDARD
DTSTART:19701025T030000
TZOFFSETFROM:+0200
TZOFFSETTO:+0100
RRULE:FREQ=YEARLY;BYMONTH=10;BYDAY=-1SU
END:STANDARD
BEGIN:DAYLIGHT
DTSTART:19700329T020000
TZOFFSETFROM:+0100
TZOFFSETTO:+0200
RRULE:FREQ=YEARLY;BYMONTH=3;BYDAY=-1SU
END:DAYLIGHT
END:VTIMEZONE
BEGIN:VEVENT
UID:standup-1
DTSTAMP:20240101T080000Z
DTSTART;TZID=Europe/Berlin:20240108T093000
DTEND;TZID=Europe/Berlin:20240108T094500
SUMMARY:Standup
RRULE:FREQ=WEEKLY;BYDAY=MO,TU,WE,TH,FR
SEQUENCE:2
X-CUSTOM-FLAG:keep-me
BEGIN:VALARM
ACTION:DISPLAY
TRIGGER:-PT5M
DESCRIPTION:Standup soon
END:VALARM
END:VEVENT
BEGIN:VEVENT
UID:standup-1
RECURRENCE-ID;TZID=Europe/Berlin:20240110T093000
DTSTAMP:20240101T080000Z
DTSTART;TZID=Europe/Berlin:20240110T100000
DTEND;TZID=Europe/Berlin:20240110T101500
SUMMARY:Standup (moved)
END:VEVENT
END:VCALENDAR
`)

var adaCard = crlf(`
BEGIN:VCARD
VERSION:3.0
UID:ada-1
FN:Ada Lovelace
N:Lovelace;Ada;;;
EMAIL;TYPE=INTERNET:ada@example.com
TEL:+44 20 7946 0000
X-SOCIALPROFILE:https://example.com/ada
REV:20200101T000000Z
END:VCARD
`)
