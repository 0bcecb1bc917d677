package xml

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPropfind(t *testing.T) {
	tests := []struct {
		name  string
		props []string
		want  map[string]string
	}{
		{
			name:  "empty props",
			props: nil,
			want:  map[string]string{},
		},
		{
			name:  "collection token props",
			props: []string{TagGetCTag, TagSyncToken, TagGetETag},
			want:  map[string]string{TagGetCTag: "CS", TagSyncToken: "D", TagGetETag: "D"},
		},
		{
			name:  "home sets",
			props: []string{TagCalendarHomeSet, TagAddressbookHomeSet, TagCalendarColor},
			want:  map[string]string{TagCalendarHomeSet: "C", TagAddressbookHomeSet: "CR", TagCalendarColor: "A"},
		},
		{
			name:  "unknown props are skipped",
			props: []string{"resourcetype", "bogus"},
			want:  map[string]string{TagResourcetype: "D"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := reparse(t, BuildPropfind(tt.props...))
			root := doc.Root()
			require.NotNil(t, root)
			assert.Equal(t, "propfind", root.Tag)
			assert.Equal(t, DAV, root.NamespaceURI())

			prop := root.SelectElement(TagProp)
			require.NotNil(t, prop)
			got := map[string]string{}
			for _, child := range prop.ChildElements() {
				got[child.Tag] = child.Space
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildCalendarQuery(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.FixedZone("CET", 3600))
	end := start.Add(2 * time.Hour)

	t.Run("time range and uid", func(t *testing.T) {
		doc := reparse(t, BuildCalendarQuery(CalendarQuery{Start: start, End: end, UID: "abc-123"}))
		assert.Equal(t, "calendar-query", doc.Root().Tag)
		assert.NotNil(t, doc.FindElement("//prop/getetag"))
		assert.NotNil(t, doc.FindElement("//prop/calendar-data"))

		tr := doc.FindElement("//comp-filter[@name='VCALENDAR']/comp-filter[@name='VEVENT']/time-range")
		require.NotNil(t, tr)
		assert.Equal(t, "20240301T080000Z", tr.SelectAttrValue("start", ""))
		assert.Equal(t, "20240301T100000Z", tr.SelectAttrValue("end", ""))

		match := doc.FindElement("//prop-filter[@name='UID']/text-match")
		require.NotNil(t, match)
		assert.Equal(t, "abc-123", match.Text())
	})

	t.Run("unfiltered", func(t *testing.T) {
		doc := reparse(t, BuildCalendarQuery(CalendarQuery{Component: "VTODO"}))
		assert.NotNil(t, doc.FindElement("//comp-filter[@name='VTODO']"))
		assert.Nil(t, doc.FindElement("//time-range"))
		assert.Nil(t, doc.FindElement("//prop-filter"))
	})
}

func TestBuildAddressbookQuery(t *testing.T) {
	doc := reparse(t, BuildAddressbookQuery("card-1"))
	assert.Equal(t, "addressbook-query", doc.Root().Tag)
	assert.Equal(t, CardDAV, doc.Root().NamespaceURI())
	assert.NotNil(t, doc.FindElement("//prop/address-data"))
	match := doc.FindElement("//filter/prop-filter[@name='UID']/text-match")
	require.NotNil(t, match)
	assert.Equal(t, "equals", match.SelectAttrValue("match-type", ""))
	assert.Equal(t, "card-1", match.Text())

	all := reparse(t, BuildAddressbookQuery(""))
	require.NotNil(t, all.FindElement("//filter"))
	assert.Empty(t, all.FindElement("//filter").ChildElements())
}

func TestBuildFreeBusyQuery(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	doc := BuildFreeBusyQuery(start, start.Add(24*time.Hour))
	out, err := doc.WriteToString()
	require.NoError(t, err)
	assert.Equal(t,
		`<C:free-busy-query xmlns:C="urn:ietf:params:xml:ns:caldav"><C:time-range start="20240301T000000Z" end="20240302T000000Z"/></C:free-busy-query>`,
		normalizeXML(out))
}
