package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeIsDeterministic(t *testing.T) {
	doc := Document{Graph: []Node{
		{Type: OperationTypeNS + "CreateNamespace", Fields: map[string]interface{}{"b": 1, "a": "x"}},
	}}
	first, err := Canonicalize(doc)
	require.NoError(t, err)
	second, err := Canonicalize(doc)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCanonicalizeOrdersFieldsAlphabetically(t *testing.T) {
	doc := Document{Graph: []Node{
		{Type: "x", Fields: map[string]interface{}{"zeta": 1, "alpha": 2}},
	}}
	out, err := Canonicalize(doc)
	require.NoError(t, err)
	alphaIdx := indexOf(t, out, `"alpha"`)
	zetaIdx := indexOf(t, out, `"zeta"`)
	assert.Less(t, alphaIdx, zetaIdx)
}

func TestCanonicalizeNormalizesNFC(t *testing.T) {
	decomposed := "é" // e + combining acute accent
	doc := Document{Graph: []Node{
		{Type: "x", Fields: map[string]interface{}{"name": decomposed}},
	}}
	out, err := Canonicalize(doc)
	require.NoError(t, err)
	assert.Contains(t, string(out), "é") // precomposed é
}

func TestRelabelBlankNodesIsDFSOrder(t *testing.T) {
	doc := Document{Graph: []Node{
		{Type: "x", BlankID: "_:orig2", Fields: map[string]interface{}{}},
		{Type: "x", BlankID: "_:orig1", Fields: map[string]interface{}{}},
	}}
	out, err := Canonicalize(doc)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"@id":"b0"`)
	assert.Contains(t, string(out), `"@id":"b1"`)
}

func TestBatchIDStableForSameBytes(t *testing.T) {
	body := []byte(`[{"@type":"x"}]`)
	assert.Equal(t, BatchID(body), BatchID(body))
}

func TestBatchIDDiffersForDifferentBytes(t *testing.T) {
	assert.NotEqual(t, BatchID([]byte("a")), BatchID([]byte("b")))
}

func indexOf(t *testing.T, haystack []byte, needle string) int {
	t.Helper()
	s := string(haystack)
	for i := 0; i+len(needle) <= len(s); i++ {
		if s[i:i+len(needle)] == needle {
			return i
		}
	}
	t.Fatalf("needle %q not found in %q", needle, s)
	return -1
}
