// Package availability answers "when is this person busy" for a time range. The server's
// free-busy report is asked first; when the server cannot answer, busy time is computed locally
// from the events overlapping the range.
package availability

import (
	"slices"
	"time"

	"github.com/cyp0633/davmutate/errs"
)

// Status is the occupancy of a period.
type Status string

const (
	StatusFree            Status = "free"
	StatusTentative       Status = "tentative"
	StatusBusy            Status = "busy"
	StatusBusyUnavailable Status = "busy-unavailable"
)

// rank orders statuses by strength; merged periods keep the strongest.
func (s Status) rank() int {
	switch s {
	case StatusBusyUnavailable:
		return 3
	case StatusBusy:
		return 2
	case StatusTentative:
		return 1
	default:
		return 0
	}
}

// Source tells where the periods of a collection came from.
type Source string

const (
	SourceServer Source = "server"
	SourceLocal  Source = "local"
)

// Range is a half-open interval [Start, End).
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate rejects empty and inverted ranges.
func (r Range) Validate() error {
	if r.Start.IsZero() {
		return errs.Validation("start", "is required")
	}
	if r.End.IsZero() {
		return errs.Validation("end", "is required")
	}
	if !r.End.After(r.Start) {
		return errs.Validation("end", "must be after start")
	}
	return nil
}

// Period is an occupied interval [Start, End).
type Period struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Status Status    `json:"status"`
}

// Result holds the merged busy periods of a query, sorted by start, and the source used for each
// collection.
type Result struct {
	Range   Range             `json:"range"`
	Periods []Period          `json:"periods"`
	Sources map[string]Source `json:"sources"`
}

// FreeSlots returns the gaps of the range not covered by any period.
func (r *Result) FreeSlots() []Period {
	var free []Period
	cursor := r.Range.Start
	for _, p := range r.Periods {
		if p.Start.After(cursor) {
			free = append(free, Period{Start: cursor, End: p.Start, Status: StatusFree})
		}
		if p.End.After(cursor) {
			cursor = p.End
		}
	}
	if r.Range.End.After(cursor) {
		free = append(free, Period{Start: cursor, End: r.Range.End, Status: StatusFree})
	}
	return free
}

// Merge clips periods to rng, drops empty ones and joins overlapping intervals. A joined interval
// takes the strongest status of its parts. Touching intervals are joined only when their
// statuses are equal.
func Merge(periods []Period, rng Range) []Period {
	clipped := make([]Period, 0, len(periods))
	for _, p := range periods {
		if p.Status == StatusFree || p.Status == "" {
			continue
		}
		if p.Start.Before(rng.Start) {
			p.Start = rng.Start
		}
		if p.End.After(rng.End) {
			p.End = rng.End
		}
		if !p.End.After(p.Start) {
			continue
		}
		p.Start, p.End = p.Start.UTC(), p.End.UTC()
		clipped = append(clipped, p)
	}
	slices.SortFunc(clipped, func(a, b Period) int { return a.Start.Compare(b.Start) })

	var merged []Period
	for _, p := range clipped {
		if n := len(merged); n > 0 {
			last := &merged[n-1]
			overlapping := p.Start.Before(last.End)
			touching := p.Start.Equal(last.End) && p.Status == last.Status
			if overlapping || touching {
				if p.End.After(last.End) {
					last.End = p.End
				}
				if p.Status.rank() > last.Status.rank() {
					last.Status = p.Status
				}
				continue
			}
		}
		merged = append(merged, p)
	}
	return merged
}
