package identity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalSystemOperator(t *testing.T) {
	data, err := Marshal(SystemOperator())
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, KindSystemOperator, got.Kind)
	assert.True(t, got.Privileged())
}

func TestMarshalUnmarshalAnonymous(t *testing.T) {
	data, err := Marshal(Anonymous())
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, KindAnonymous, got.Kind)
	assert.False(t, got.Privileged())
}

func TestMarshalUnmarshalVerifiableClaims(t *testing.T) {
	raw := json.RawMessage(`{"sub":"did:example:alice"}`)
	claim := NewVerifiableClaims(raw, "did:example:alice")

	data, err := Marshal(claim)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, KindVerifiableClaims, got.Kind)
	assert.Equal(t, "did:example:alice", got.ExternalID)
	assert.JSONEq(t, string(raw), string(got.Claims))
}

func TestUnmarshalRejectsUnknownKind(t *testing.T) {
	_, err := Unmarshal([]byte(`{"kind":"Bogus"}`))
	require.Error(t, err)
}
