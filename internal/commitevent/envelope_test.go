package commitevent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronicleworks/chronicle-tp/internal/signing"
)

func testKey(t *testing.T) *signing.PrivateKey {
	t.Helper()
	key, err := signing.GeneratePrivateKey()
	require.NoError(t, err)
	return key
}

func TestBuildAndVerifyCommitted(t *testing.T) {
	key := testKey(t)
	delta := []byte(`{"@graph":[]}`)

	env, err := Build(key, "batch-1", StatusCommitted, delta, []string{"a7b3c9" + "00"}, nil, "")
	require.NoError(t, err)

	assert.Equal(t, "batch-1", env.BatchID)
	assert.Equal(t, StatusCommitted, env.Status)
	assert.Equal(t, key.PublicKeyHex(), env.TransactorPublicKey)
	assert.True(t, Verify(env))
}

func TestBuildContradictionCarriesEvidence(t *testing.T) {
	key := testKey(t)
	evidence := &ContradictionEvidence{
		Field:     "DomainType",
		Key:       "",
		Prior:     "Report",
		Incoming:  "Dataset",
		OpIndex:   3,
		TargetIRI: "chronicle:entity:default:abc123",
	}

	env, err := Build(key, "batch-2", StatusContradiction, nil, nil, evidence, "domain type conflict")
	require.NoError(t, err)

	assert.Equal(t, StatusContradiction, env.Status)
	assert.Nil(t, env.Delta)
	require.NotNil(t, env.ContradictionEvidence)
	assert.Equal(t, "Dataset", env.ContradictionEvidence.Incoming)
	assert.True(t, Verify(env))
}

func TestVerifyRejectsTamperedEnvelope(t *testing.T) {
	key := testKey(t)
	env, err := Build(key, "batch-3", StatusCommitted, nil, nil, nil, "")
	require.NoError(t, err)

	env.BatchID = "batch-tampered"
	assert.False(t, Verify(env))
}

func TestVerifyRejectsWrongKeyClaim(t *testing.T) {
	key := testKey(t)
	other := testKey(t)
	env, err := Build(key, "batch-4", StatusCommitted, nil, nil, nil, "")
	require.NoError(t, err)

	env.TransactorPublicKey = other.PublicKeyHex()
	assert.False(t, Verify(env))
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	key := testKey(t)
	env, err := Build(key, "batch-5", StatusAuthorizationFailure, nil, nil, nil, "anonymous identity not permitted")
	require.NoError(t, err)

	data, err := Marshal(env)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)

	assert.Equal(t, env.BatchID, got.BatchID)
	assert.Equal(t, env.Status, got.Status)
	assert.Equal(t, env.Signature, got.Signature)
	assert.True(t, Verify(got))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "Committed", StatusCommitted.String())
	assert.Equal(t, "Contradiction", StatusContradiction.String())
	assert.Equal(t, "AuthorizationFailure", StatusAuthorizationFailure.String())
}
