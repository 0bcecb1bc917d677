package transform

import (
	"bytes"
	"fmt"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-vcard"
)

// ICalGrammar reads and writes iCalendar objects with go-ical.
type ICalGrammar struct{}

func (ICalGrammar) Parse(data []byte) (*ical.Calendar, error) {
	cal, err := ical.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode calendar: %w", err)
	}
	return cal, nil
}

func (ICalGrammar) Serialize(cal *ical.Calendar) ([]byte, error) {
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("failed to encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}

// VCardGrammar reads and writes vCards with go-vcard.
type VCardGrammar struct{}

func (VCardGrammar) Parse(data []byte) (vcard.Card, error) {
	card, err := vcard.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode vcard: %w", err)
	}
	return card, nil
}

func (VCardGrammar) Serialize(card vcard.Card) ([]byte, error) {
	var buf bytes.Buffer
	if err := vcard.NewEncoder(&buf).Encode(card); err != nil {
		return nil, fmt.Errorf("failed to encode vcard: %w", err)
	}
	return buf.Bytes(), nil
}
