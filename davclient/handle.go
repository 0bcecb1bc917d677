package davclient

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-vcard"
)

// ResourceHandle is a server resource together with the version token it was read at.
type ResourceHandle struct {
	UID  string
	URL  string
	ETag string
	// Data is the complete wire text of the record
	Data string
}

// HasToken reports whether the handle can guard a conditional write.
func (h ResourceHandle) HasToken() bool {
	return h.ETag != ""
}

// IsContact reports whether data is a vCard rather than an iCalendar object.
func IsContact(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) >= len("BEGIN:VCARD") && strings.EqualFold(string(trimmed[:len("BEGIN:VCARD")]), "BEGIN:VCARD")
}

// ParseUID extracts the stable identifier of an iCalendar or vCard record. For calendars the
// UID of the first component that has one is used.
func ParseUID(data []byte) (string, error) {
	if IsContact(data) {
		card, err := vcard.NewDecoder(bytes.NewReader(data)).Decode()
		if err != nil {
			return "", fmt.Errorf("failed to decode vcard: %w", err)
		}
		uid := card.Value(vcard.FieldUID)
		if uid == "" {
			return "", fmt.Errorf("vcard has no UID")
		}
		return uid, nil
	}

	cal, err := ical.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return "", fmt.Errorf("failed to decode calendar: %w", err)
	}
	for _, child := range cal.Children {
		if child.Name == ical.CompTimezone {
			continue
		}
		if prop := child.Props.Get(ical.PropUID); prop != nil && prop.Value != "" {
			return prop.Value, nil
		}
	}
	return "", fmt.Errorf("calendar has no UID")
}

// NewHandle builds a handle from wire data, parsing the UID.
func NewHandle(resourceURL, etag string, data []byte) (ResourceHandle, error) {
	uid, err := ParseUID(data)
	if err != nil {
		return ResourceHandle{}, fmt.Errorf("%s: %w", resourceURL, err)
	}
	return ResourceHandle{UID: uid, URL: resourceURL, ETag: etag, Data: string(data)}, nil
}
