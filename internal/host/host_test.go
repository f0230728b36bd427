package host

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronicleworks/chronicle-tp/internal/apply"
	"github.com/chronicleworks/chronicle-tp/internal/canon"
	"github.com/chronicleworks/chronicle-tp/internal/policy"
	"github.com/chronicleworks/chronicle-tp/internal/signing"
)

func mustJSONValue(t *testing.T, v string) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func signedJob(t *testing.T, key *signing.PrivateKey, body string) Job {
	t.Helper()
	bodyBytes := []byte(body)
	doc, err := apply.ParseDocument(bodyBytes)
	require.NoError(t, err)
	canonical, err := canon.Canonicalize(doc)
	require.NoError(t, err)
	batchID := canon.BatchID(canonical)
	sig := key.Sign(canonical)

	h := map[string]json.RawMessage{
		"transactor-public-key": mustJSONValue(t, key.PublicKeyHex()),
		"transactor-signature":  mustJSONValue(t, sig),
		"batch-id":              mustJSONValue(t, batchID),
		"identity-claim":        json.RawMessage(`{"kind":"SystemOperator"}`),
	}
	headerJSON, err := json.Marshal(h)
	require.NoError(t, err)
	return Job{HeaderJSON: headerJSON, BodyJSON: bodyBytes}
}

const nsA = `"namespaceExternalId":"alpha","namespaceUuid":"9b2e9b9a-6c3e-4e3a-9f1d-6b9a2c6e1a10"`
const nsB = `"namespaceExternalId":"beta","namespaceUuid":"0f1e9b9a-6c3e-4e3a-9f1d-6b9a2c6e1a11"`

func TestStoreGetApplySnapshot(t *testing.T) {
	store := NewStore()
	_, ok := store.Get("nope")
	assert.False(t, ok)

	store.Apply(map[string][]byte{"addr-1": []byte(`{"a":1}`)})
	v, ok := store.Get("addr-1")
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(v))

	snap := store.Snapshot()
	assert.Len(t, snap, 1)
}

func TestSchedulerRunOneCommits(t *testing.T) {
	key, err := signing.GeneratePrivateKey()
	require.NoError(t, err)
	store := NewStore()
	sched := NewScheduler(store, key, policy.AllowAll{})

	job := signedJob(t, key, `[{"@type":"http://btp.works/chronicleoperations/ns#CreateNamespace",`+nsA+`}]`)
	result := sched.RunOne(job)
	require.NotNil(t, result.Outcome)
	assert.Equal(t, apply.ErrNone, result.Outcome.Kind)
	assert.NotEmpty(t, store.Snapshot())
}

func TestSchedulerRunConcurrentDisjointNamespacesCommuteAndBothCommit(t *testing.T) {
	key, err := signing.GeneratePrivateKey()
	require.NoError(t, err)
	store := NewStore()
	sched := NewScheduler(store, key, policy.AllowAll{})

	jobA := signedJob(t, key, `[
		{"@type":"http://btp.works/chronicleoperations/ns#CreateNamespace",`+nsA+`},
		{"@type":"http://btp.works/chronicleoperations/ns#AgentExists",`+nsA+`,"externalId":"alice"}
	]`)
	jobB := signedJob(t, key, `[
		{"@type":"http://btp.works/chronicleoperations/ns#CreateNamespace",`+nsB+`},
		{"@type":"http://btp.works/chronicleoperations/ns#AgentExists",`+nsB+`,"externalId":"bob"}
	]`)

	results := sched.RunConcurrent([]Job{jobA, jobB})
	require.Len(t, results, 2)
	for _, r := range results {
		require.NotNil(t, r.Outcome)
		assert.Equal(t, apply.ErrNone, r.Outcome.Kind)
	}
	// Disjoint namespaces: each touches 2 addresses, neither overlapping.
	assert.Len(t, store.Snapshot(), 4)
}

func TestPartitionByFootprintGroupsOverlapIntoSeparateWaves(t *testing.T) {
	key, err := signing.GeneratePrivateKey()
	require.NoError(t, err)

	jobA := signedJob(t, key, `[{"@type":"http://btp.works/chronicleoperations/ns#CreateNamespace",`+nsA+`}]`)
	jobB := signedJob(t, key, `[{"@type":"http://btp.works/chronicleoperations/ns#AgentExists",`+nsA+`,"externalId":"alice"}]`)

	waves, unknown := partitionByFootprint([]Job{jobA, jobB})
	assert.Empty(t, unknown)
	// Both touch the alpha namespace address, so they cannot share a wave.
	assert.Len(t, waves, 2)
}

func TestPartitionByFootprintHandlesMalformedBodySeparately(t *testing.T) {
	key, err := signing.GeneratePrivateKey()
	require.NoError(t, err)

	good := signedJob(t, key, `[{"@type":"http://btp.works/chronicleoperations/ns#CreateNamespace",`+nsA+`}]`)
	bad := Job{HeaderJSON: good.HeaderJSON, BodyJSON: []byte(`not json`)}

	waves, unknown := partitionByFootprint([]Job{good, bad})
	assert.Len(t, waves, 1)
	assert.Equal(t, []int{1}, unknown)
}
