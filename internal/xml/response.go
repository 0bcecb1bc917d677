package xml

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// Multistatus is a parsed 207 Multi-Status body. Element lookups ignore namespace prefixes so
// servers that pick their own prefixes (or the default namespace) parse the same way.
type Multistatus struct {
	Responses []Response
	SyncToken string
}

// Response is one DAV:response element.
type Response struct {
	Href string
	// Status is set when the server reports a status for the whole resource instead of propstats
	Status    string
	PropStats []PropStat
}

// PropStat groups the properties sharing one status.
type PropStat struct {
	Status string
	Prop   *etree.Element
}

// ParseMultistatus parses a multistatus document.
func ParseMultistatus(data []byte) (*Multistatus, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to parse multistatus: %w", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != TagMultistatus {
		return nil, fmt.Errorf("expected multistatus root element")
	}

	ms := &Multistatus{}
	if st := root.SelectElement(TagSyncToken); st != nil {
		ms.SyncToken = strings.TrimSpace(st.Text())
	}
	for _, respElem := range root.SelectElements(TagResponse) {
		resp := Response{}
		if href := respElem.SelectElement(TagHref); href != nil {
			resp.Href = strings.TrimSpace(href.Text())
		}
		if status := respElem.SelectElement(TagStatus); status != nil {
			resp.Status = strings.TrimSpace(status.Text())
		}
		for _, psElem := range respElem.SelectElements(TagPropstat) {
			ps := PropStat{Prop: psElem.SelectElement(TagProp)}
			if status := psElem.SelectElement(TagStatus); status != nil {
				ps.Status = strings.TrimSpace(status.Text())
			}
			resp.PropStats = append(resp.PropStats, ps)
		}
		ms.Responses = append(ms.Responses, resp)
	}
	return ms, nil
}

// StatusCode extracts the numeric code from a status line such as "HTTP/1.1 200 OK".
// It returns 0 when the line is malformed.
func StatusCode(status string) int {
	fields := strings.Fields(status)
	if len(fields) < 2 {
		return 0
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0
	}
	return code
}

// OK reports whether the response as a whole did not fail. Responses without their own status
// line are judged by their propstats.
func (r Response) OK() bool {
	if r.Status == "" {
		return true
	}
	code := StatusCode(r.Status)
	return code >= 200 && code < 300
}

// Prop returns the first property with the given local name from a successful propstat.
func (r Response) Prop(local string) *etree.Element {
	for _, ps := range r.PropStats {
		if ps.Prop == nil {
			continue
		}
		if code := StatusCode(ps.Status); ps.Status != "" && (code < 200 || code >= 300) {
			continue
		}
		if el := ps.Prop.SelectElement(local); el != nil {
			return el
		}
	}
	return nil
}

// PropText returns the trimmed text of a property, or "" when absent.
func (r Response) PropText(local string) string {
	el := r.Prop(local)
	if el == nil {
		return ""
	}
	return strings.TrimSpace(el.Text())
}

// PropHref returns the href nested inside a property such as current-user-principal.
func (r Response) PropHref(local string) string {
	el := r.Prop(local)
	if el == nil {
		return ""
	}
	if href := el.SelectElement(TagHref); href != nil {
		return strings.TrimSpace(href.Text())
	}
	return ""
}

// HasResourceType reports whether resourcetype contains the given element, for example
// "calendar" or "addressbook".
func (r Response) HasResourceType(local string) bool {
	el := r.Prop(TagResourcetype)
	return el != nil && el.SelectElement(local) != nil
}

// CanWrite reports whether current-user-privilege-set grants write access. A response without
// the property is assumed writable.
func (r Response) CanWrite() bool {
	set := r.Prop(TagPrivilegeSet)
	if set == nil {
		return true
	}
	for _, priv := range set.SelectElements(TagPrivilege) {
		if priv.SelectElement(TagWrite) != nil || priv.SelectElement(TagWriteContent) != nil || priv.SelectElement(TagAll) != nil {
			return true
		}
	}
	return false
}

// SupportsComponent reports whether supported-calendar-component-set lists comp. A missing set
// means every component is supported.
func (r Response) SupportsComponent(comp string) bool {
	set := r.Prop(TagSupportedCompSet)
	if set == nil {
		return true
	}
	for _, c := range set.SelectElements("comp") {
		if strings.EqualFold(c.SelectAttrValue("name", ""), comp) {
			return true
		}
	}
	return false
}
