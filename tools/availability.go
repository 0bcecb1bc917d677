package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cyp0633/davmutate/availability"
)

type availabilityResult struct {
	*availability.Result
	Free []availability.Period `json:"free"`
}

func registerAvailabilityTools(r *Registry, d Deps) {
	r.Register(Metadata{
		Name:        "query_availability",
		Description: "List busy periods and free slots between start and end.",
		Params: []Param{
			{Name: "start", Type: TypeTime, Required: true, Description: "Range start."},
			{Name: "end", Type: TypeTime, Required: true, Description: "Range end (exclusive). A plain date includes that whole day."},
			calendarParam,
		},
		ReadOnly: true,
	}, func(ctx context.Context, args Args) (string, any, error) {
		start, err := args.Time("start", d.Location)
		if err != nil {
			return "", nil, err
		}
		end, err := args.Time("end", d.Location)
		if err != nil {
			return "", nil, err
		}
		rng := availability.Range{Start: start.OrEmpty(), End: end.OrEmpty()}
		if dateOnly(args, "end") && !rng.End.IsZero() {
			// a plain end date includes that whole day
			rng.End = rng.End.AddDate(0, 0, 1)
		}
		hint, _ := args.String("calendar")
		res, err := d.Availability.Query(ctx, rng, hint.OrEmpty())
		if err != nil {
			return "", nil, err
		}
		out := availabilityResult{Result: res, Free: res.FreeSlots()}
		return summarize(res, d), out, nil
	})
}

func summarize(res *availability.Result, d Deps) string {
	if len(res.Periods) == 0 {
		return fmt.Sprintf("Free from %s to %s.", res.Range.Start.In(d.Location).Format("2006-01-02 15:04"),
			res.Range.End.In(d.Location).Format("2006-01-02 15:04"))
	}
	parts := make([]string, 0, len(res.Periods))
	for _, p := range res.Periods {
		parts = append(parts, fmt.Sprintf("%s-%s %s",
			p.Start.In(d.Location).Format("2006-01-02 15:04"), p.End.In(d.Location).Format("15:04"), p.Status))
	}
	return fmt.Sprintf("%d busy period(s): %s.", len(res.Periods), strings.Join(parts, "; "))
}
