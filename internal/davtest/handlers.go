package davtest

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/emersion/go-ical"
	"github.com/emersion/go-vcard"

	"github.com/cyp0633/davmutate/davclient"
	davxml "github.com/cyp0633/davmutate/internal/xml"
	"github.com/cyp0633/davmutate/transform"
)

func (s *Server) handlePropfind(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	depth := r.Header.Get("Depth")
	ms := newMultistatus()

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case path == "/" || strings.HasPrefix(path, "/.well-known/"):
		ms.response(path).href(davxml.DAV, davxml.TagPrincipal, PrincipalPath)
	case path == PrincipalPath:
		resp := ms.response(path)
		resp.href(davxml.DAV, davxml.TagPrincipal, PrincipalPath)
		resp.href(davxml.CalDAV, davxml.TagCalendarHomeSet, CalendarHomePath)
		resp.href(davxml.CardDAV, davxml.TagAddressbookHomeSet, AddressBookHomePath)
	case path == CalendarHomePath || path == AddressBookHomePath:
		ms.response(path).resourceType()
		if depth == "1" {
			for _, c := range s.sortedCollectionsLocked() {
				if strings.HasPrefix(c.path, path) {
					s.describeCollection(ms, c)
				}
			}
		}
	case s.collections[path] != nil:
		s.describeCollection(ms, s.collections[path])
	default:
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	ms.write(w)
}

func (s *Server) describeCollection(ms *multistatus, c *collection) {
	resp := ms.response(c.path)
	if c.kind == davclient.KindAddressBook {
		resp.resourceType(davxml.CardDAV, davxml.TagAddressbook)
	} else {
		resp.resourceType(davxml.CalDAV, davxml.TagCalendar)
		set := resp.element(davxml.CalDAV, davxml.TagSupportedCompSet)
		comp := set.CreateElement("C:comp")
		comp.CreateAttr("name", "VEVENT")
	}
	resp.text(davxml.DAV, davxml.TagDisplayName, c.name)
	resp.text(davxml.CalendarServer, davxml.TagGetCTag, ctagOf(c))
	privileges := resp.element(davxml.DAV, davxml.TagPrivilegeSet)
	privileges.CreateElement("D:" + davxml.TagPrivilege).CreateElement("D:read")
	if !c.readOnly {
		privileges.CreateElement("D:" + davxml.TagPrivilege).CreateElement("D:" + davxml.TagWrite)
	}
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r.Body); err != nil || doc.Root() == nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	root := doc.Root()

	if root.Tag == "free-busy-query" {
		if s.FreeBusy == nil {
			http.Error(w, "Not Implemented", http.StatusNotImplemented)
			return
		}
		s.FreeBusy(w, r)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collections[r.URL.Path]
	if c == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	var start, end time.Time
	if tr := root.FindElement("//time-range"); tr != nil {
		start, _ = time.Parse(davxml.TimeFormat, tr.SelectAttrValue("start", ""))
		end, _ = time.Parse(davxml.TimeFormat, tr.SelectAttrValue("end", ""))
	}
	uid := ""
	if tm := root.FindElement("//text-match"); tm != nil {
		uid = strings.TrimSpace(tm.Text())
	}

	dataTag := "C:" + davxml.TagCalendarData
	if c.kind == davclient.KindAddressBook {
		dataTag = "CR:" + davxml.TagAddressData
	}

	ms := newMultistatus()
	for _, p := range s.membersLocked(c.path) {
		res := s.resources[p]
		if uid != "" {
			if got, err := davclient.ParseUID(res.data); err != nil || got != uid {
				continue
			}
		}
		if c.kind == davclient.KindCalendar && !overlaps(res.data, start, end) {
			continue
		}
		resp := ms.response(p)
		resp.text(davxml.DAV, davxml.TagGetETag, res.etag)
		resp.prop.CreateElement(dataTag).SetText(string(res.data))
	}
	ms.write(w)
}

// overlaps reports whether any event of a calendar object intersects [start, end). Recurring
// events always match.
func overlaps(data []byte, start, end time.Time) bool {
	if start.IsZero() && end.IsZero() {
		return true
	}
	cal, err := ical.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return false
	}
	for _, comp := range cal.Children {
		if comp.Name != ical.CompEvent {
			continue
		}
		if comp.Props.Get(ical.PropRecurrenceRule) != nil || comp.Props.Get(ical.PropRecurrenceDates) != nil {
			return true
		}
		s, e, _ := transform.EventSpan(comp, time.UTC)
		if e.Equal(s) {
			e = s.Add(time.Nanosecond)
		}
		if (end.IsZero() || s.Before(end)) && (start.IsZero() || e.After(start)) {
			return true
		}
	}
	return false
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	res, ok := s.resources[r.URL.Path]
	var data []byte
	var etag string
	if ok {
		data, etag = append([]byte(nil), res.data...), res.etag
	}
	s.mu.Unlock()

	if !ok {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	if davclient.IsContact(data) {
		w.Header().Set("Content-Type", "text/vcard; charset=utf-8")
	} else {
		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	}
	w.Header().Set("ETag", etag)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.parentLocked(path)
	if c == nil {
		http.Error(w, "Conflict", http.StatusConflict)
		return
	}
	if c.readOnly {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	// preconditions first: an existing object with If-None-Match or a mismatching If-Match is 412
	existing := s.resources[path]
	ifMatch := r.Header.Get("If-Match")
	ifNone := r.Header.Get("If-None-Match")
	if existing != nil {
		if ifMatch != "" && ifMatch != existing.etag {
			http.Error(w, "Precondition Failed", http.StatusPreconditionFailed)
			return
		}
		if ifNone == "*" {
			http.Error(w, "Precondition Failed", http.StatusPreconditionFailed)
			return
		}
	} else if ifMatch != "" {
		http.Error(w, "Precondition Failed", http.StatusPreconditionFailed)
		return
	}

	contentType := r.Header.Get("Content-Type")
	switch c.kind {
	case davclient.KindAddressBook:
		if !strings.HasPrefix(contentType, "text/vcard") {
			http.Error(w, "Unsupported Media Type", http.StatusUnsupportedMediaType)
			return
		}
		if _, err := vcard.NewDecoder(bytes.NewReader(data)).Decode(); err != nil {
			http.Error(w, "Invalid vCard data", http.StatusBadRequest)
			return
		}
	default:
		if !strings.HasPrefix(contentType, "text/calendar") {
			http.Error(w, "Unsupported Media Type", http.StatusUnsupportedMediaType)
			return
		}
		if _, err := ical.NewDecoder(bytes.NewReader(data)).Decode(); err != nil {
			http.Error(w, "Invalid iCalendar data", http.StatusBadRequest)
			return
		}
	}

	etag := s.storeLocked(path, data)
	if !s.OmitETag {
		w.Header().Set("ETag", etag)
	}
	if existing == nil {
		w.Header().Set("Location", path)
		w.WriteHeader(http.StatusCreated)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.resources[path]
	if existing == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	if ifMatch := r.Header.Get("If-Match"); ifMatch != "" && ifMatch != existing.etag {
		http.Error(w, "Precondition Failed", http.StatusPreconditionFailed)
		return
	}
	delete(s.resources, path)
	if c := s.parentLocked(path); c != nil {
		c.ctag++
	}
	w.WriteHeader(http.StatusNoContent)
}
