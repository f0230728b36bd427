package apply

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronicleworks/chronicle-tp/internal/canon"
	"github.com/chronicleworks/chronicle-tp/internal/commitevent"
	"github.com/chronicleworks/chronicle-tp/internal/policy"
	"github.com/chronicleworks/chronicle-tp/internal/signing"
)

// mapStateView is an in-memory StateView backed by a plain map, standing in
// for the host-provided synchronous view (spec.md §5).
type mapStateView map[string][]byte

func (m mapStateView) Get(addr string) ([]byte, bool) {
	v, ok := m[addr]
	return v, ok
}

const testNS = `"namespaceExternalId":"default","namespaceUuid":"9b2e9b9a-6c3e-4e3a-9f1d-6b9a2c6e1a10"`

// buildSignedBatch canonicalizes body, signs it with key, and returns the
// header JSON spec.md §6.1 names plus the raw body bytes, ready for Run.
func buildSignedBatch(t *testing.T, key *signing.PrivateKey, claimJSON string, body string) (header []byte, bodyBytes []byte) {
	t.Helper()
	bodyBytes = []byte(body)

	doc, err := ParseDocument(bodyBytes)
	require.NoError(t, err)
	canonical, err := canon.Canonicalize(doc)
	require.NoError(t, err)
	batchID := canon.BatchID(canonical)
	sig := key.Sign(canonical)

	h := map[string]json.RawMessage{
		"transactor-public-key": mustJSON(t, key.PublicKeyHex()),
		"transactor-signature":  mustJSON(t, sig),
		"batch-id":              mustJSON(t, batchID),
		"identity-claim":        json.RawMessage(claimJSON),
	}
	data, err := json.Marshal(h)
	require.NoError(t, err)
	return data, bodyBytes
}

func mustJSON(t *testing.T, v string) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestRunCommitsCreateNamespaceAndAgent(t *testing.T) {
	key, err := signing.GeneratePrivateKey()
	require.NoError(t, err)

	body := `[
		{"@type":"http://btp.works/chronicleoperations/ns#CreateNamespace",` + testNS + `},
		{"@type":"http://btp.works/chronicleoperations/ns#AgentExists",` + testNS + `,"externalId":"alice"}
	]`
	header, bodyBytes := buildSignedBatch(t, key, `{"kind":"SystemOperator"}`, body)

	view := mapStateView{}
	env, out := Run(view, key, header, bodyBytes, policy.AllowAll{})
	require.NotNil(t, out)
	assert.Equal(t, ErrNone, out.Kind)
	require.NotNil(t, env)
	assert.Equal(t, commitevent.StatusCommitted, env.Status)
	assert.True(t, commitevent.Verify(env))
	assert.Len(t, out.Writes, 2)
}

func TestRunRejectsTamperedSignature(t *testing.T) {
	key, err := signing.GeneratePrivateKey()
	require.NoError(t, err)
	other, err := signing.GeneratePrivateKey()
	require.NoError(t, err)

	body := `[{"@type":"http://btp.works/chronicleoperations/ns#CreateNamespace",` + testNS + `}]`
	header, bodyBytes := buildSignedBatch(t, key, `{"kind":"SystemOperator"}`, body)

	// Swap in a signature made by a different key over the same body, so the
	// header's public key no longer verifies it.
	var h map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(header, &h))
	doc, err := ParseDocument(bodyBytes)
	require.NoError(t, err)
	canonical, err := canon.Canonicalize(doc)
	require.NoError(t, err)
	h["transactor-signature"] = mustJSON(t, other.Sign(canonical))
	tampered, err := json.Marshal(h)
	require.NoError(t, err)

	env, out := Run(mapStateView{}, key, tampered, bodyBytes, policy.AllowAll{})
	require.NotNil(t, out)
	assert.Equal(t, ErrUnauthorizedIdentity, out.Kind)
	require.NotNil(t, env)
	assert.Equal(t, commitevent.StatusAuthorizationFailure, env.Status)
}

func TestRunRejectsAnonymousWhenPolicyDenies(t *testing.T) {
	key, err := signing.GeneratePrivateKey()
	require.NoError(t, err)

	body := `[{"@type":"http://btp.works/chronicleoperations/ns#AgentExists",` + testNS + `,"externalId":"bob"}]`
	header, bodyBytes := buildSignedBatch(t, key, `{"kind":"Anonymous"}`, body)

	deny := policy.NewAllowList(false)
	env, out := Run(mapStateView{}, key, header, bodyBytes, deny)
	require.NotNil(t, out)
	assert.Equal(t, ErrUnauthorizedIdentity, out.Kind)
	require.NotNil(t, env)
	assert.Equal(t, commitevent.StatusAuthorizationFailure, env.Status)
}

func TestRunAllowsAnonymousForUndeniedKind(t *testing.T) {
	key, err := signing.GeneratePrivateKey()
	require.NoError(t, err)

	body := `[{"@type":"http://btp.works/chronicleoperations/ns#AgentExists",` + testNS + `,"externalId":"bob"}]`
	header, bodyBytes := buildSignedBatch(t, key, `{"kind":"Anonymous"}`, body)

	allow := policy.NewAllowList(true)
	env, out := Run(mapStateView{}, key, header, bodyBytes, allow)
	require.NotNil(t, out)
	assert.Equal(t, ErrNone, out.Kind)
	require.NotNil(t, env)
	assert.Equal(t, commitevent.StatusCommitted, env.Status)
}

func TestRunDetectsContradiction(t *testing.T) {
	key, err := signing.GeneratePrivateKey()
	require.NoError(t, err)

	body := `[
		{"@type":"http://btp.works/chronicleoperations/ns#SetAttributes",` + testNS + `,
		 "target":"Entity","externalId":"doc-1",
		 "attributes":{"title":{"kind":"string","value":"first"}}}
	]`
	header, bodyBytes := buildSignedBatch(t, key, `{"kind":"SystemOperator"}`, body)

	view := mapStateView{}
	env, out := Run(view, key, header, bodyBytes, policy.AllowAll{})
	require.NotNil(t, out)
	require.Equal(t, ErrNone, out.Kind)
	require.NotNil(t, env)

	// Replay the same batch body with a conflicting value for the same
	// attribute, but with the prior state now present in view.
	for _, w := range out.Writes {
		view[w.Address] = []byte(w.JSON)
	}

	body2 := `[
		{"@type":"http://btp.works/chronicleoperations/ns#SetAttributes",` + testNS + `,
		 "target":"Entity","externalId":"doc-1",
		 "attributes":{"title":{"kind":"string","value":"second"}}}
	]`
	header2, bodyBytes2 := buildSignedBatch(t, key, `{"kind":"SystemOperator"}`, body2)
	env2, out2 := Run(view, key, header2, bodyBytes2, policy.AllowAll{})
	require.NotNil(t, out2)
	assert.Equal(t, ErrContradiction, out2.Kind)
	require.NotNil(t, env2)
	assert.Equal(t, commitevent.StatusContradiction, env2.Status)
	require.NotNil(t, env2.ContradictionEvidence)
	assert.Equal(t, "title", env2.ContradictionEvidence.Key)
}

func TestRunDetectsNoChange(t *testing.T) {
	key, err := signing.GeneratePrivateKey()
	require.NoError(t, err)

	body := `[{"@type":"http://btp.works/chronicleoperations/ns#CreateNamespace",` + testNS + `}]`
	header, bodyBytes := buildSignedBatch(t, key, `{"kind":"SystemOperator"}`, body)

	view := mapStateView{}
	env, out := Run(view, key, header, bodyBytes, policy.AllowAll{})
	require.NotNil(t, out)
	require.Equal(t, ErrNone, out.Kind)
	require.NotNil(t, env)
	for _, w := range out.Writes {
		view[w.Address] = []byte(w.JSON)
	}

	header2, bodyBytes2 := buildSignedBatch(t, key, `{"kind":"SystemOperator"}`, body)
	env2, out2 := Run(view, key, header2, bodyBytes2, policy.AllowAll{})
	assert.Equal(t, ErrNoChange, out2.Kind)
	assert.Nil(t, env2)
}

func TestRunRejectsBatchIDMismatch(t *testing.T) {
	key, err := signing.GeneratePrivateKey()
	require.NoError(t, err)

	body := `[{"@type":"http://btp.works/chronicleoperations/ns#CreateNamespace",` + testNS + `}]`
	header, bodyBytes := buildSignedBatch(t, key, `{"kind":"SystemOperator"}`, body)

	var h map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(header, &h))
	h["batch-id"] = mustJSON(t, "0000000000000000000000000000000000000000000000000000000000000000")
	tampered, err := json.Marshal(h)
	require.NoError(t, err)

	env, out := Run(mapStateView{}, key, tampered, bodyBytes, policy.AllowAll{})
	assert.Equal(t, ErrMalformedPayload, out.Kind)
	assert.Nil(t, env)
}
