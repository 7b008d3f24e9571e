package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePositionalMarkers(t *testing.T) {
	p := Parse("SELECT * FROM t WHERE a = ? AND b = ?")
	assert.Equal(t, 2, p.Markers)
	assert.Equal(t, 3, len(p.Literals))
}

func TestParseIgnoresMarkersInStringsAndComments(t *testing.T) {
	p := Parse("SELECT '?' , \"it's a ? too\", /* ? */ 1 -- ?\n, a = ?")
	assert.Equal(t, 1, p.Markers)
}

func TestParseNamedBindings(t *testing.T) {
	p := Parse("SELECT * FROM t WHERE a = :x AND b = :y AND c = :x")
	assert.Equal(t, 3, p.Markers)
	assert.Equal(t, []int{0, 2}, p.Names["x"])
	assert.Equal(t, []int{1}, p.Names["y"])
}

func TestRenderSubstitutesEscapedValues(t *testing.T) {
	p := Parse("SELECT * FROM t WHERE a = ? AND b = ?")
	out, err := p.Render([]string{"1", "'hi'"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE a = 1 AND b = 'hi'", out)
}

func TestRenderWrongCount(t *testing.T) {
	p := Parse("SELECT ?")
	_, err := p.Render([]string{})
	assert.Error(t, err)
}

func TestEscapeStringBackslashMode(t *testing.T) {
	got := EscapeString("a'b\\c\x00d\x1Ae\nf\rg", false)
	assert.Equal(t, `a''b\\c\0d\Ze\nf\rg`, got)
}

func TestEscapeStringNoBackslashEscapes(t *testing.T) {
	got := EscapeString("a'b\\c", true)
	assert.Equal(t, `a''b\c`, got)
}

func TestQuoteStringRoundTripsQuote(t *testing.T) {
	assert.Equal(t, "'it''s'", QuoteString("it's", false))
}
