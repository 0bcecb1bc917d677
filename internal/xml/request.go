package xml

import (
	"time"

	"github.com/beevik/etree"
)

// TimeFormat is the UTC date-time form used by CalDAV time-range filters
const TimeFormat = "20060102T150405Z"

// BuildPropfind creates a PROPFIND request body asking for the given properties. Unknown property
// names are skipped.
func BuildPropfind(props ...string) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(qualified(DAV, TagPropfind))
	AddNamespaces(doc, DAV, CalDAV, CardDAV, CalendarServer, AppleICal)

	prop := root.CreateElement(qualified(DAV, TagProp))
	for _, name := range props {
		ns, ok := propNamespaces[name]
		if !ok {
			continue
		}
		prop.CreateElement(qualified(ns, name))
	}
	return doc
}

// CalendarQuery narrows a calendar-query REPORT. Zero values mean no restriction.
type CalendarQuery struct {
	// Component defaults to VEVENT
	Component string
	Start     time.Time
	End       time.Time
	UID       string
}

// BuildCalendarQuery creates a calendar-query REPORT body returning getetag and calendar-data.
func BuildCalendarQuery(q CalendarQuery) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(qualified(CalDAV, "calendar-query"))
	AddNamespaces(doc, DAV, CalDAV)

	prop := root.CreateElement(qualified(DAV, TagProp))
	prop.CreateElement(qualified(DAV, TagGetETag))
	prop.CreateElement(qualified(CalDAV, TagCalendarData))

	component := q.Component
	if component == "" {
		component = "VEVENT"
	}
	filter := root.CreateElement(qualified(CalDAV, "filter"))
	calFilter := filter.CreateElement(qualified(CalDAV, "comp-filter"))
	calFilter.CreateAttr("name", "VCALENDAR")
	compFilter := calFilter.CreateElement(qualified(CalDAV, "comp-filter"))
	compFilter.CreateAttr("name", component)

	if !q.Start.IsZero() || !q.End.IsZero() {
		addTimeRange(compFilter, q.Start, q.End)
	}
	if q.UID != "" {
		propFilter := compFilter.CreateElement(qualified(CalDAV, "prop-filter"))
		propFilter.CreateAttr("name", "UID")
		match := propFilter.CreateElement(qualified(CalDAV, "text-match"))
		match.CreateAttr("collation", "i;octet")
		match.SetText(q.UID)
	}
	return doc
}

// BuildAddressbookQuery creates an addressbook-query REPORT body returning getetag and
// address-data. An empty uid matches every card.
func BuildAddressbookQuery(uid string) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(qualified(CardDAV, "addressbook-query"))
	AddNamespaces(doc, DAV, CardDAV)

	prop := root.CreateElement(qualified(DAV, TagProp))
	prop.CreateElement(qualified(DAV, TagGetETag))
	prop.CreateElement(qualified(CardDAV, TagAddressData))

	filter := root.CreateElement(qualified(CardDAV, "filter"))
	if uid != "" {
		propFilter := filter.CreateElement(qualified(CardDAV, "prop-filter"))
		propFilter.CreateAttr("name", "UID")
		match := propFilter.CreateElement(qualified(CardDAV, "text-match"))
		match.CreateAttr("collation", "i;octet")
		match.CreateAttr("match-type", "equals")
		match.SetText(uid)
	}
	return doc
}

// BuildFreeBusyQuery creates a free-busy-query REPORT body for the half-open range [start, end).
func BuildFreeBusyQuery(start, end time.Time) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(qualified(CalDAV, "free-busy-query"))
	AddNamespaces(doc, CalDAV)
	addTimeRange(root, start, end)
	return doc
}

func addTimeRange(parent *etree.Element, start, end time.Time) {
	tr := parent.CreateElement(qualified(CalDAV, "time-range"))
	if !start.IsZero() {
		tr.CreateAttr("start", start.UTC().Format(TimeFormat))
	}
	if !end.IsZero() {
		tr.CreateAttr("end", end.UTC().Format(TimeFormat))
	}
}
