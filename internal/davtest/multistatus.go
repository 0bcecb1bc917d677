package davtest

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/beevik/etree"

	davxml "github.com/cyp0633/davmutate/internal/xml"
)

var prefixes = map[string]string{
	davxml.DAV:            "D",
	davxml.CalDAV:         "C",
	davxml.CardDAV:        "CR",
	davxml.CalendarServer: "CS",
	davxml.AppleICal:      "A",
}

type multistatus struct {
	doc  *etree.Document
	root *etree.Element
}

type responseBuilder struct {
	prop *etree.Element
}

func newMultistatus() *multistatus {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("D:" + davxml.TagMultistatus)
	davxml.AddNamespaces(doc)
	return &multistatus{doc: doc, root: root}
}

func (m *multistatus) response(href string) *responseBuilder {
	resp := m.root.CreateElement("D:" + davxml.TagResponse)
	resp.CreateElement("D:" + davxml.TagHref).SetText(href)
	ps := resp.CreateElement("D:" + davxml.TagPropstat)
	prop := ps.CreateElement("D:" + davxml.TagProp)
	ps.CreateElement("D:" + davxml.TagStatus).SetText("HTTP/1.1 200 OK")
	return &responseBuilder{prop: prop}
}

func (r *responseBuilder) element(ns, local string) *etree.Element {
	return r.prop.CreateElement(prefixes[ns] + ":" + local)
}

func (r *responseBuilder) text(ns, local, value string) {
	r.element(ns, local).SetText(value)
}

func (r *responseBuilder) href(ns, local, href string) {
	r.element(ns, local).CreateElement("D:" + davxml.TagHref).SetText(href)
}

// resourceType writes a collection resourcetype, optionally with one more child such as
// calendar.
func (r *responseBuilder) resourceType(extra ...string) {
	rt := r.element(davxml.DAV, davxml.TagResourcetype)
	rt.CreateElement("D:collection")
	if len(extra) == 2 {
		rt.CreateElement(prefixes[extra[0]] + ":" + extra[1])
	}
}

func (m *multistatus) write(w http.ResponseWriter) {
	body, err := m.doc.WriteToBytes()
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)
	_, _ = w.Write(body)
}

func ctagOf(c *collection) string {
	return fmt.Sprintf("ctag-%d", c.ctag)
}

func (s *Server) sortedCollectionsLocked() []*collection {
	out := make([]*collection, 0, len(s.collections))
	for _, c := range s.collections {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}
