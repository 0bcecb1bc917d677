package xml

import (
	"regexp"
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/require"
)

// normalizeXML removes whitespace differences and the XML declaration for comparisons
func normalizeXML(s string) string {
	s = regexp.MustCompile(`<\?xml[^>]*\?>`).ReplaceAllString(s, "")
	s = regexp.MustCompile(`>\s+<`).ReplaceAllString(s, "><")
	s = regexp.MustCompile(`\s+/>`).ReplaceAllString(s, "/>")
	return strings.TrimSpace(s)
}

// reparse serializes doc and reads it back, so assertions see what a server would see
func reparse(t *testing.T, doc *etree.Document) *etree.Document {
	t.Helper()
	data, err := doc.WriteToBytes()
	require.NoError(t, err)
	out := etree.NewDocument()
	require.NoError(t, out.ReadFromBytes(data))
	return out
}
