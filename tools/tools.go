package tools

import (
	"io"
	"log/slog"
	"time"

	"github.com/cyp0633/davmutate/availability"
	"github.com/cyp0633/davmutate/davclient"
	"github.com/cyp0633/davmutate/errs"
	"github.com/cyp0633/davmutate/mutation"
)

// Deps are the services the tools operate on.
type Deps struct {
	Events       *mutation.CalendarService
	Contacts     *mutation.ContactService
	Availability *availability.Resolver
	// Location reads date-times given without an offset
	Location *time.Location
	// AllowInvites permits writing attendees when the caller confirms invitations
	AllowInvites bool
	Logger       *slog.Logger
}

// MutationResult is returned by every create, update, delete and get tool.
type MutationResult struct {
	UID        string `json:"uid"`
	URL        string `json:"url"`
	ETag       string `json:"etag,omitempty"`
	Collection string `json:"collection"`
	Record     any    `json:"record,omitempty"`

	warnings []string
}

type warner interface{ warningTexts() []string }

func (r *MutationResult) warningTexts() []string { return r.warnings }

func warningsOf(result any) []string {
	if w, ok := result.(warner); ok {
		return w.warningTexts()
	}
	return nil
}

func newResult(res *mutation.Result, record any) *MutationResult {
	out := &MutationResult{
		UID:        res.Handle.UID,
		URL:        res.Handle.URL,
		ETag:       res.Handle.ETag,
		Collection: collectionName(res.Collection),
		Record:     record,
	}
	for _, w := range res.Warnings {
		out.warnings = append(out.warnings, w.String())
	}
	return out
}

func collectionName(info davclient.CollectionInfo) string {
	if info.Name != "" {
		return info.Name
	}
	return info.URL
}

// New builds the registry with every tool whose service is configured.
func New(d Deps) *Registry {
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Logger == nil {
		d.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := NewRegistry(d.Logger)
	if d.Events != nil {
		registerEventTools(r, d)
	}
	if d.Contacts != nil {
		registerContactTools(r, d)
	}
	if d.Availability != nil {
		registerAvailabilityTools(r, d)
	}
	return r
}

func requireUID(args Args) (string, error) {
	uid, err := args.String("uid")
	if err != nil {
		return "", err
	}
	if uid.OrEmpty() == "" {
		return "", errs.Validation("uid", "is required")
	}
	return uid.OrEmpty(), nil
}

var (
	uidParam = func(what string) Param {
		return Param{Name: "uid", Type: TypeString, Required: true, Description: "Stable identifier of the " + what + "."}
	}
	calendarParam = Param{Name: "calendar", Type: TypeString,
		Description: "Calendar URL, path or display name. Defaults to the configured or first writable calendar."}
	addressBookParam = Param{Name: "address_book", Type: TypeString,
		Description: "Address book URL, path or display name. Defaults to the configured or first writable address book."}
)
