package provenance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeJSONSortsKeys(t *testing.T) {
	canon, err := CanonicalizeJSON(`{"b":1,"a":2}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2,"b":1}`, canon)
	assert.Equal(t, `{"a":2,"b":1}`, canon)
}

func TestCanonicalizeJSONRejectsInvalid(t *testing.T) {
	_, err := CanonicalizeJSON(`{not json`)
	require.Error(t, err)
}

func TestJSONValueEqualIgnoresKeyOrder(t *testing.T) {
	a, err := JSONValue(`{"b":1,"a":2}`)
	require.NoError(t, err)
	b, err := JSONValue(`{"a":2,"b":1}`)
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
}

func TestValueEqualAcrossKinds(t *testing.T) {
	assert.False(t, StringValue("1").Equal(IntValue(1)))
	assert.True(t, IntValue(42).Equal(IntValue(42)))
	assert.True(t, BoolValue(true).Equal(BoolValue(true)))
	assert.False(t, BoolValue(true).Equal(BoolValue(false)))
}
