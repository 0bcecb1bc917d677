package davclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"

	"github.com/cyp0633/davmutate/internal/httpclient"
	davxml "github.com/cyp0633/davmutate/internal/xml"
	"github.com/cyp0633/davmutate/retry"
)

// CollectionInfo describes a discovered calendar or address book.
type CollectionInfo struct {
	URL      string
	Name     string
	Color    string
	ReadOnly bool
	Kind     Kind
}

type discoveryScheme struct {
	srvSecure string
	srvPlain  string
	wellKnown string
	homeSet   string
}

var discoverySchemes = map[Kind]discoveryScheme{
	KindCalendar: {
		srvSecure: "_caldavs._tcp.",
		srvPlain:  "_caldav._tcp.",
		wellKnown: "caldav",
		homeSet:   davxml.TagCalendarHomeSet,
	},
	KindAddressBook: {
		srvSecure: "_carddavs._tcp.",
		srvPlain:  "_carddav._tcp.",
		wellKnown: "carddav",
		homeSet:   davxml.TagAddressbookHomeSet,
	},
}

// candidateLocations lists the places a principal may be found, logic from thunderbird
func (c *davClient) candidateLocations(ctx context.Context, baseURL *url.URL, scheme discoveryScheme) []string {
	possibleLocations := []string{}

	// 1. direct location if path is specified
	if baseURL.Path != "/" && baseURL.Path != "" {
		possibleLocations = append(possibleLocations, baseURL.String())
	}

	// 2. DNS SRV, secure first
	for _, prefix := range []string{scheme.srvSecure, scheme.srvPlain} {
		host := prefix + baseURL.Hostname()
		_, addrs, err := c.resolver.LookupSRV(ctx, "", "", host)
		if err != nil {
			continue
		}

		// TXT records may carry the context path
		var path string
		txts, _ := c.resolver.LookupTXT(ctx, host)
		for _, txt := range txts {
			if len(txt) > 5 && txt[:5] == "path=" {
				path = txt[5:]
				break
			}
		}

		for _, addr := range addrs {
			proto := "http"
			if prefix == scheme.srvSecure {
				proto = "https"
			}
			possibleLocations = append(possibleLocations, fmt.Sprintf("%s://%s:%d%s", proto, addr.Target, addr.Port, path))
		}
	}

	// 3. well-known URL
	possibleLocations = append(possibleLocations, baseURL.JoinPath(".well-known", scheme.wellKnown).String())

	// 4. root path
	possibleLocations = append(possibleLocations, baseURL.JoinPath("/").String())
	return possibleLocations
}

func (c *davClient) DiscoverCollections(ctx context.Context, kind Kind) ([]CollectionInfo, error) {
	scheme, ok := discoverySchemes[kind]
	if !ok {
		return nil, fmt.Errorf("unknown collection kind %q", kind)
	}

	baseURL, err := url.Parse(c.serverURL)
	if err != nil || baseURL.Host == "" || (baseURL.Scheme != "http" && baseURL.Scheme != "https") {
		return nil, fmt.Errorf("invalid server URL %q", c.serverURL)
	}

	// Try each possible location to find the principal URL
	var principalURL string
	for _, location := range c.candidateLocations(ctx, baseURL, scheme) {
		resp, err := c.httpClient.DoPROPFIND(ctx, location, 0, davxml.TagPrincipal)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Debug("principal probe failed", "location", location, "error", err)
			continue
		}
		if resp.CurrentUserPrincipal != "" {
			principalURL = resolveAgainst(location, resp.CurrentUserPrincipal)
			break
		}
	}
	if principalURL == "" {
		return nil, errors.New("could not find current-user-principal")
	}

	propfind := func(target string, depth int, props ...string) (*httpclient.PropfindResponse, error) {
		resp, _, err := retry.Value(ctx, c.executor, "PROPFIND", func(ctx context.Context) (*httpclient.PropfindResponse, error) {
			return c.httpClient.DoPROPFIND(ctx, target, depth, props...)
		})
		return resp, err
	}

	resp, err := propfind(principalURL, 0, scheme.homeSet)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", scheme.homeSet, err)
	}
	homeSet := resp.CalendarHomeSet
	if kind == KindAddressBook {
		homeSet = resp.AddressbookHomeSet
	}
	if homeSet == "" {
		return nil, fmt.Errorf("no %s found", scheme.homeSet)
	}
	homeSet = resolveAgainst(principalURL, homeSet)

	resp, err = propfind(homeSet, 1,
		davxml.TagResourcetype,
		davxml.TagDisplayName,
		davxml.TagCalendarColor,
		davxml.TagPrivilegeSet,
		davxml.TagSupportedCompSet)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}

	collections := make([]CollectionInfo, 0, len(resp.Resources))
	for href, resource := range resp.Resources {
		switch {
		case kind == KindCalendar && resource.IsCalendar && resource.SupportsEvent:
		case kind == KindAddressBook && resource.IsAddressBook:
		default:
			continue
		}
		collections = append(collections, CollectionInfo{
			URL:      resolveAgainst(homeSet, href),
			Name:     resource.DisplayName,
			Color:    resource.Color,
			ReadOnly: !resource.CanWrite,
			Kind:     kind,
		})
	}
	sort.Slice(collections, func(i, j int) bool { return collections[i].URL < collections[j].URL })

	c.logger.Debug("discovered collections", "kind", kind, "count", len(collections))
	return collections, nil
}
