package tools

import (
	"context"
	"fmt"

	"github.com/samber/mo"

	"github.com/cyp0633/davmutate/errs"
	"github.com/cyp0633/davmutate/transform"
)

func contactFieldParams() []Param {
	return []Param{
		{Name: "full_name", Type: TypeString, Description: "Display name of the contact."},
		{Name: "given_name", Type: TypeString, Description: "First name."},
		{Name: "family_name", Type: TypeString, Description: "Last name."},
		{Name: "emails", Type: TypeStrings, Description: "E-mail addresses, preferred first."},
		{Name: "phones", Type: TypeStrings, Description: "Phone numbers, preferred first."},
		{Name: "organization", Type: TypeString, Description: "Company or organization."},
		{Name: "title", Type: TypeString, Description: "Job title."},
		{Name: "note", Type: TypeString, Description: "Free text notes."},
		{Name: "birthday", Type: TypeString, Description: "Birthday as YYYY-MM-DD."},
		{Name: "categories", Type: TypeStrings, Description: "Group labels."},
		{Name: "url", Type: TypeString, Description: "Web page."},
	}
}

func registerContactTools(r *Registry, d Deps) {
	createParams := contactFieldParams()
	createParams[0].Required = true

	r.Register(Metadata{
		Name:        "create_contact",
		Description: "Create a contact card and return its stable identifier.",
		Params:      append([]Param{addressBookParam}, createParams...),
	}, func(ctx context.Context, args Args) (string, any, error) {
		patch, err := contactPatch(args)
		if err != nil {
			return "", nil, err
		}
		in := transform.ContactInput{
			FullName:     patch.FullName.OrEmpty(),
			GivenName:    patch.GivenName.OrEmpty(),
			FamilyName:   patch.FamilyName.OrEmpty(),
			Emails:       patch.Emails.OrEmpty(),
			Phones:       patch.Phones.OrEmpty(),
			Organization: patch.Organization.OrEmpty(),
			Title:        patch.Title.OrEmpty(),
			Note:         patch.Note.OrEmpty(),
			Birthday:     patch.Birthday.OrEmpty(),
			Categories:   patch.Categories.OrEmpty(),
			URL:          patch.URL.OrEmpty(),
		}
		hint, _ := args.String("address_book")
		res, err := d.Contacts.Create(ctx, in, hint.OrEmpty())
		if err != nil {
			return "", nil, err
		}
		out := newResult(res, describeContact(res.Handle.Data))
		return fmt.Sprintf("Created contact %q (uid %s) in %s.", in.FullName, out.UID, out.Collection), out, nil
	})

	r.Register(Metadata{
		Name:        "update_contact",
		Description: "Change named fields of an existing contact. Fields not given are left untouched; null clears a field.",
		Params:      append([]Param{uidParam("contact"), addressBookParam}, contactFieldParams()...),
		Destructive: true,
	}, func(ctx context.Context, args Args) (string, any, error) {
		uid, err := requireUID(args)
		if err != nil {
			return "", nil, err
		}
		patch, err := contactPatch(args)
		if err != nil {
			return "", nil, err
		}
		hint, _ := args.String("address_book")
		res, err := d.Contacts.Update(ctx, uid, patch, hint.OrEmpty())
		if err != nil {
			return "", nil, err
		}
		view := describeContact(res.Handle.Data)
		out := newResult(res, view)
		if view != nil {
			return fmt.Sprintf("Updated contact %q (uid %s).", view.FullName, uid), out, nil
		}
		return fmt.Sprintf("Updated contact %s.", uid), out, nil
	})

	r.Register(Metadata{
		Name:        "delete_contact",
		Description: "Delete a contact card.",
		Params:      []Param{uidParam("contact"), addressBookParam},
		Destructive: true,
	}, func(ctx context.Context, args Args) (string, any, error) {
		uid, err := requireUID(args)
		if err != nil {
			return "", nil, err
		}
		hint, _ := args.String("address_book")
		res, err := d.Contacts.Delete(ctx, uid, hint.OrEmpty())
		if err != nil {
			return "", nil, err
		}
		out := newResult(res, nil)
		return fmt.Sprintf("Deleted contact %s from %s.", uid, out.Collection), out, nil
	})

	r.Register(Metadata{
		Name:        "get_contact",
		Description: "Read the current state of a contact.",
		Params:      []Param{uidParam("contact"), addressBookParam},
		ReadOnly:    true,
	}, func(ctx context.Context, args Args) (string, any, error) {
		uid, err := requireUID(args)
		if err != nil {
			return "", nil, err
		}
		hint, _ := args.String("address_book")
		res, err := d.Contacts.Get(ctx, uid, hint.OrEmpty())
		if err != nil {
			return "", nil, err
		}
		view := describeContact(res.Handle.Data)
		if view == nil {
			return "", nil, &errs.IntegrityError{ResourceURL: res.Handle.URL, Message: "stored contact cannot be read"}
		}
		return fmt.Sprintf("Contact %q (uid %s) in %s.", view.FullName, uid, collectionName(res.Collection)), newResult(res, view), nil
	})
}

func describeContact(data string) *transform.ContactView {
	view, err := transform.DescribeContact([]byte(data))
	if err != nil {
		return nil
	}
	return view
}

func contactPatch(args Args) (transform.ContactPatch, error) {
	var p transform.ContactPatch
	var err error
	str := func(name string) mo.Option[string] {
		v, e := args.String(name)
		if err == nil {
			err = e
		}
		return v
	}
	list := func(name string) mo.Option[[]string] {
		v, e := args.Strings(name)
		if err == nil {
			err = e
		}
		return v
	}

	p.FullName = str("full_name")
	p.GivenName = str("given_name")
	p.FamilyName = str("family_name")
	p.Emails = list("emails")
	p.Phones = list("phones")
	p.Organization = str("organization")
	p.Title = str("title")
	p.Note = str("note")
	p.Birthday = str("birthday")
	p.Categories = list("categories")
	p.URL = str("url")
	if err != nil {
		return transform.ContactPatch{}, err
	}
	return p, nil
}
