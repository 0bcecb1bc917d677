package xml

import "github.com/beevik/etree"

// Namespace definitions for WebDAV, CalDAV and CardDAV
const (
	// DAV is the WebDAV namespace
	DAV = "DAV:"
	// CalDAV is the CalDAV namespace
	CalDAV = "urn:ietf:params:xml:ns:caldav"
	// CardDAV is the CardDAV namespace
	CardDAV = "urn:ietf:params:xml:ns:carddav"
	// CalendarServer is the Calendar Server namespace (getctag lives here)
	CalendarServer = "http://calendarserver.org/ns/"
	// AppleICal carries calendar-color
	AppleICal = "http://apple.com/ns/ical/"
)

// prefixes maps every namespace to the prefix used in generated request bodies.
var prefixes = map[string]string{
	DAV:            "D",
	CalDAV:         "C",
	CardDAV:        "CR",
	CalendarServer: "CS",
	AppleICal:      "A",
}

// AddNamespaces declares the given namespaces on the document root. With no arguments every
// known namespace is declared.
func AddNamespaces(doc *etree.Document, namespaces ...string) {
	root := doc.Root()
	if root == nil {
		return
	}
	if len(namespaces) == 0 {
		namespaces = []string{DAV, CalDAV, CardDAV, CalendarServer, AppleICal}
	}
	for _, ns := range namespaces {
		if prefix, ok := prefixes[ns]; ok {
			root.CreateAttr("xmlns:"+prefix, ns)
		}
	}
}

// qualified returns "prefix:local" for a namespace known to this package.
func qualified(ns, local string) string {
	return prefixes[ns] + ":" + local
}
