package transform

import (
	"strings"
	"time"

	"github.com/emersion/go-vcard"
	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/cyp0633/davmutate/errs"
)

const birthdayLayout = "2006-01-02"

// ContactInput describes a new contact card.
type ContactInput struct {
	FullName     string
	GivenName    string
	FamilyName   string
	Emails       []string
	Phones       []string
	Organization string
	Title        string
	Note         string
	// Birthday is a calendar date in YYYY-MM-DD form
	Birthday   string
	Categories []string
	URL        string
}

// ContactPatch names the contact fields to change.
type ContactPatch struct {
	FullName     mo.Option[string]
	GivenName    mo.Option[string]
	FamilyName   mo.Option[string]
	Emails       mo.Option[[]string]
	Phones       mo.Option[[]string]
	Organization mo.Option[string]
	Title        mo.Option[string]
	Note         mo.Option[string]
	Birthday     mo.Option[string]
	Categories   mo.Option[[]string]
	URL          mo.Option[string]
}

// ContactTransformer builds and patches vCards.
type ContactTransformer struct {
	grammar Grammar[vcard.Card]
	now     func() time.Time
	newUID  func() string
}

var _ Transformer[ContactInput, ContactPatch] = (*ContactTransformer)(nil)

// NewContactTransformer creates a contact transformer. A nil grammar means go-vcard.
func NewContactTransformer(grammar Grammar[vcard.Card]) *ContactTransformer {
	if grammar == nil {
		grammar = VCardGrammar{}
	}
	return &ContactTransformer{
		grammar: grammar,
		now:     time.Now,
		newUID:  func() string { return uuid.New().String() },
	}
}

func (t *ContactTransformer) ContentType() string { return "text/vcard; charset=utf-8" }

func (t *ContactTransformer) Extension() string { return ".vcf" }

// Build creates a vCard 3.0 with a fresh identifier.
func (t *ContactTransformer) Build(in ContactInput) (*Record, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	if in.FullName == "" {
		in.FullName = strings.TrimSpace(strings.Join([]string{in.GivenName, in.FamilyName}, " "))
	}
	if in.FullName == "" {
		return nil, errs.Validation("full_name", "is required")
	}
	emails, err := normalizeEmails(in.Emails)
	if err != nil {
		return nil, err
	}
	if err := validateBirthday(in.Birthday); err != nil {
		return nil, err
	}
	if err := validateURL(in.URL); err != nil {
		return nil, err
	}

	uid := t.newUID()
	card := make(vcard.Card)
	card.SetValue(vcard.FieldVersion, "3.0")
	card.SetValue(vcard.FieldProductID, ProductID)
	card.SetValue(vcard.FieldUID, uid)
	card.SetValue(vcard.FieldFormattedName, in.FullName)
	card.SetName(&vcard.Name{GivenName: in.GivenName, FamilyName: in.FamilyName})
	setValues(card, vcard.FieldEmail, emails)
	setValues(card, vcard.FieldTelephone, in.Phones)
	setOptional(card, vcard.FieldOrganization, in.Organization)
	setOptional(card, vcard.FieldTitle, in.Title)
	setOptional(card, vcard.FieldNote, in.Note)
	setOptional(card, vcard.FieldBirthday, in.Birthday)
	setOptional(card, vcard.FieldCategories, joinCategories(in.Categories))
	setOptional(card, vcard.FieldURL, in.URL)
	card.SetRevision(t.now().UTC())

	data, err := t.grammar.Serialize(card)
	if err != nil {
		return nil, err
	}
	return &Record{UID: uid, Data: data}, nil
}

// Patch applies p to an existing card. Fields the patch does not name, including photos and
// X- extensions, are kept as they were. REV is refreshed, even for an empty patch.
func (t *ContactTransformer) Patch(existing []byte, p ContactPatch) (*Record, error) {
	card, err := t.grammar.Parse(existing)
	if err != nil {
		return nil, &errs.IntegrityError{Message: "stored record cannot be parsed: " + err.Error()}
	}
	uid := card.Value(vcard.FieldUID)

	if v, ok := p.FullName.Get(); ok {
		v = strings.TrimSpace(v)
		if v == "" {
			return nil, errs.Validation("full_name", "cannot be cleared")
		}
		card.SetValue(vcard.FieldFormattedName, v)
	}
	if p.GivenName.IsPresent() || p.FamilyName.IsPresent() {
		name := card.Name()
		if name == nil {
			name = &vcard.Name{}
		}
		name.GivenName = p.GivenName.OrElse(name.GivenName)
		name.FamilyName = p.FamilyName.OrElse(name.FamilyName)
		card.SetName(name)
	}
	if v, ok := p.Emails.Get(); ok {
		emails, err := normalizeEmails(v)
		if err != nil {
			return nil, err
		}
		setValues(card, vcard.FieldEmail, emails)
	}
	if v, ok := p.Phones.Get(); ok {
		setValues(card, vcard.FieldTelephone, v)
	}
	patchOptional(card, vcard.FieldOrganization, p.Organization)
	patchOptional(card, vcard.FieldTitle, p.Title)
	patchOptional(card, vcard.FieldNote, p.Note)
	if v, ok := p.Birthday.Get(); ok {
		if err := validateBirthday(v); err != nil {
			return nil, err
		}
		setOptional(card, vcard.FieldBirthday, v)
	}
	if v, ok := p.Categories.Get(); ok {
		setOptional(card, vcard.FieldCategories, joinCategories(v))
	}
	if v, ok := p.URL.Get(); ok {
		if err := validateURL(v); err != nil {
			return nil, err
		}
		setOptional(card, vcard.FieldURL, v)
	}
	card.SetRevision(t.now().UTC())

	data, err := t.grammar.Serialize(card)
	if err != nil {
		return nil, err
	}
	check, err := t.grammar.Parse(data)
	if err != nil {
		return nil, &errs.IntegrityError{Message: "patched record cannot be parsed: " + err.Error()}
	}
	if check.Value(vcard.FieldUID) != uid {
		return nil, &errs.IntegrityError{Message: "the identifier would change"}
	}
	return &Record{UID: uid, Data: data}, nil
}

func normalizeEmails(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	for _, e := range in {
		addr, err := normalizeEmail(e)
		if err != nil {
			return nil, errs.Validation("emails", "%q is not an email address", e)
		}
		out = append(out, addr)
	}
	return out, nil
}

func validateBirthday(s string) error {
	if s == "" {
		return nil
	}
	if _, err := time.Parse(birthdayLayout, s); err != nil {
		return errs.Validation("birthday", "must be a date in YYYY-MM-DD form")
	}
	return nil
}

func joinCategories(categories []string) string {
	kept := make([]string, 0, len(categories))
	for _, c := range categories {
		if c = strings.TrimSpace(c); c != "" {
			kept = append(kept, c)
		}
	}
	return strings.Join(kept, ",")
}

// setValues replaces every field of key with one field per value.
func setValues(card vcard.Card, key string, values []string) {
	delete(card, key)
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			card.AddValue(key, v)
		}
	}
}

func setOptional(card vcard.Card, key, value string) {
	if value == "" {
		delete(card, key)
		return
	}
	card.SetValue(key, value)
}

func patchOptional(card vcard.Card, key string, opt mo.Option[string]) {
	if v, ok := opt.Get(); ok {
		setOptional(card, key, strings.TrimSpace(v))
	}
}
