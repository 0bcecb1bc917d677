package availability

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
)

var errNoFreeBusy = errors.New("response holds no VFREEBUSY component")

// parseFreeBusy reads the FREEBUSY properties of a free-busy report. FBTYPE defaults to BUSY;
// FREE periods are skipped.
func parseFreeBusy(body []byte) ([]Period, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty free-busy response")
	}
	cal, err := ical.NewDecoder(bytes.NewReader(body)).Decode()
	if err != nil {
		return nil, fmt.Errorf("decode free-busy response: %w", err)
	}

	found := false
	var periods []Period
	for _, comp := range cal.Children {
		if comp.Name != ical.CompFreeBusy {
			continue
		}
		found = true
		for _, prop := range comp.Props.Values(ical.PropFreeBusy) {
			status := fbStatus(prop.Params.Get(ical.ParamFreeBusyType))
			if status == StatusFree {
				continue
			}
			for _, raw := range strings.Split(prop.Value, ",") {
				start, end, err := parsePeriod(strings.TrimSpace(raw))
				if err != nil {
					return nil, err
				}
				periods = append(periods, Period{Start: start, End: end, Status: status})
			}
		}
	}
	if !found {
		return nil, errNoFreeBusy
	}
	return periods, nil
}

func fbStatus(fbtype string) Status {
	switch strings.ToUpper(fbtype) {
	case "FREE":
		return StatusFree
	case "BUSY-TENTATIVE":
		return StatusTentative
	case "BUSY-UNAVAILABLE":
		return StatusBusyUnavailable
	default:
		return StatusBusy
	}
}

// parsePeriod reads "start/end" or "start/duration" in UTC form.
func parsePeriod(value string) (time.Time, time.Time, error) {
	startText, endText, ok := strings.Cut(value, "/")
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("malformed period %q", value)
	}
	start, err := time.Parse("20060102T150405Z", startText)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("malformed period start %q: %w", startText, err)
	}
	if strings.HasPrefix(endText, "P") || strings.HasPrefix(endText, "+P") {
		d, err := (&ical.Prop{Name: ical.PropDuration, Value: strings.TrimPrefix(endText, "+")}).Duration()
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("malformed period duration %q: %w", endText, err)
		}
		return start, start.Add(d), nil
	}
	end, err := time.Parse("20060102T150405Z", endText)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("malformed period end %q: %w", endText, err)
	}
	return start, end, nil
}
