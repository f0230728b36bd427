package apply

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronicleworks/chronicle-tp/internal/identity"
	"github.com/chronicleworks/chronicle-tp/internal/ops"
)

const testNamespaceFields = `"namespaceExternalId":"default","namespaceUuid":"9b2e9b9a-6c3e-4e3a-9f1d-6b9a2c6e1a10"`

func TestParseHeaderSystemOperator(t *testing.T) {
	data := []byte(`{
		"transactor-public-key": "02` + pad66() + `",
		"transactor-signature": "` + pad128() + `",
		"batch-id": "abc123",
		"identity-claim": {"kind":"SystemOperator"}
	}`)

	h, err := ParseHeader(data)
	require.NoError(t, err)
	assert.Equal(t, "abc123", h.BatchID)
	assert.Equal(t, identity.KindSystemOperator, h.Claim.Kind)
}

func TestParseHeaderRejectsBadClaim(t *testing.T) {
	data := []byte(`{"identity-claim": {"kind":"NotAThing"}}`)
	_, err := ParseHeader(data)
	require.Error(t, err)
}

func TestParseDocumentAndDecodeCreateNamespace(t *testing.T) {
	body := []byte(`[{"@type":"http://btp.works/chronicleoperations/ns#CreateNamespace",` + testNamespaceFields + `}]`)
	doc, err := ParseDocument(body)
	require.NoError(t, err)
	require.Len(t, doc.Graph, 1)

	operations, err := DecodeOperations(doc)
	require.NoError(t, err)
	require.Len(t, operations, 1)

	create, ok := operations[0].(ops.CreateNamespace)
	require.True(t, ok)
	assert.Equal(t, "default", create.NS.ExternalID)
}

func TestParseDocumentRejectsMissingType(t *testing.T) {
	_, err := ParseDocument([]byte(`[{"foo":"bar"}]`))
	require.Error(t, err)
}

func TestDecodeUnknownOperationType(t *testing.T) {
	body := []byte(`[{"@type":"http://btp.works/chronicleoperations/ns#Bogus",` + testNamespaceFields + `}]`)
	doc, err := ParseDocument(body)
	require.NoError(t, err)
	_, err = DecodeOperations(doc)
	require.Error(t, err)
}

func TestDecodeAgentExists(t *testing.T) {
	body := []byte(`[{"@type":"http://btp.works/chronicleoperations/ns#AgentExists",` + testNamespaceFields + `,"externalId":"alice"}]`)
	doc, err := ParseDocument(body)
	require.NoError(t, err)
	operations, err := DecodeOperations(doc)
	require.NoError(t, err)
	agent, ok := operations[0].(ops.AgentExists)
	require.True(t, ok)
	assert.Equal(t, "alice", agent.ExternalID)
}

func TestDecodeSetAttributesAllValueKinds(t *testing.T) {
	body := []byte(`[{
		"@type":"http://btp.works/chronicleoperations/ns#SetAttributes",
		` + testNamespaceFields + `,
		"target":"Entity",
		"externalId":"doc-1",
		"domainType":"report",
		"attributes":{
			"title":{"kind":"string","value":"hello"},
			"count":{"kind":"int","value":42},
			"flag":{"kind":"bool","value":true},
			"meta":{"kind":"json","value":{"a":1}}
		}
	}]`)
	doc, err := ParseDocument(body)
	require.NoError(t, err)
	operations, err := DecodeOperations(doc)
	require.NoError(t, err)

	sa, ok := operations[0].(ops.SetAttributes)
	require.True(t, ok)
	assert.Equal(t, ops.TargetEntity, sa.Target)
	assert.Equal(t, "report", sa.DomainType)
	assert.Equal(t, "hello", sa.Attributes["title"].Str)
	assert.Equal(t, int64(42), sa.Attributes["count"].Int)
	assert.True(t, sa.Attributes["flag"].Bool)
	assert.JSONEq(t, `{"a":1}`, sa.Attributes["meta"].JSON)
}

func TestDecodeSetAttributesRejectsUnknownTarget(t *testing.T) {
	body := []byte(`[{"@type":"http://btp.works/chronicleoperations/ns#SetAttributes",` + testNamespaceFields + `,"target":"Bogus","externalId":"x"}]`)
	doc, err := ParseDocument(body)
	require.NoError(t, err)
	_, err = DecodeOperations(doc)
	require.Error(t, err)
}

func TestDecodeWasDerivedFromSubtype(t *testing.T) {
	body := []byte(`[{
		"@type":"http://btp.works/chronicleoperations/ns#WasDerivedFrom",
		` + testNamespaceFields + `,
		"generatedIri":"chronicle:entity:default:v2",
		"usedIri":"chronicle:entity:default:v1",
		"subtype":"revision"
	}]`)
	doc, err := ParseDocument(body)
	require.NoError(t, err)
	operations, err := DecodeOperations(doc)
	require.NoError(t, err)
	wdf, ok := operations[0].(ops.WasDerivedFrom)
	require.True(t, ok)
	assert.Equal(t, ops.DerivationRevision, wdf.Subtype)
}

func TestDecodeWasDerivedFromRejectsBadSubtype(t *testing.T) {
	body := []byte(`[{
		"@type":"http://btp.works/chronicleoperations/ns#WasDerivedFrom",
		` + testNamespaceFields + `,
		"generatedIri":"chronicle:entity:default:v2",
		"usedIri":"chronicle:entity:default:v1",
		"subtype":"bogus"
	}]`)
	doc, err := ParseDocument(body)
	require.NoError(t, err)
	_, err = DecodeOperations(doc)
	require.Error(t, err)
}

func TestDecodeStartActivityRequiresRFC3339Instant(t *testing.T) {
	body := []byte(`[{
		"@type":"http://btp.works/chronicleoperations/ns#StartActivity",
		` + testNamespaceFields + `,
		"activityIri":"chronicle:activity:default:build-1",
		"instant":"not-a-time"
	}]`)
	doc, err := ParseDocument(body)
	require.NoError(t, err)
	_, err = DecodeOperations(doc)
	require.Error(t, err)
}

func TestDecodeRejectsMissingNamespaceUuid(t *testing.T) {
	body := []byte(`[{"@type":"http://btp.works/chronicleoperations/ns#CreateNamespace","namespaceExternalId":"default"}]`)
	doc, err := ParseDocument(body)
	require.NoError(t, err)
	_, err = DecodeOperations(doc)
	require.Error(t, err)
}

func TestDecodeRejectsMalformedNamespaceUuid(t *testing.T) {
	body := []byte(`[{"@type":"http://btp.works/chronicleoperations/ns#CreateNamespace","namespaceExternalId":"default","namespaceUuid":"not-a-uuid"}]`)
	doc, err := ParseDocument(body)
	require.NoError(t, err)
	_, err = DecodeOperations(doc)
	require.Error(t, err)
}

func TestDecodeActedOnBehalfOfOptionalFields(t *testing.T) {
	body := []byte(`[{
		"@type":"http://btp.works/chronicleoperations/ns#ActedOnBehalfOf",
		` + testNamespaceFields + `,
		"responsibleIri":"chronicle:agent:default:manager",
		"delegateIri":"chronicle:agent:default:worker"
	}]`)
	doc, err := ParseDocument(body)
	require.NoError(t, err)
	operations, err := DecodeOperations(doc)
	require.NoError(t, err)
	act, ok := operations[0].(ops.ActedOnBehalfOf)
	require.True(t, ok)
	assert.Empty(t, act.ActivityIRI)
	assert.Empty(t, act.Role)
}

func pad66() string {
	s := ""
	for i := 0; i < 64; i++ {
		s += "a"
	}
	return s
}

func pad128() string {
	s := ""
	for i := 0; i < 128; i++ {
		s += "b"
	}
	return s
}
