package ops

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronicleworks/chronicle-tp/internal/iri"
)

func testNS() iri.Namespace {
	return iri.Namespace{ExternalID: "default", UUID: uuid.MustParse("5a0ab5b8-eeb7-4812-9fe3-6dd69bd20cea")}
}

func TestKindStringIsExhaustive(t *testing.T) {
	for k := KindCreateNamespace; k <= KindHasAttachment; k++ {
		assert.NotEqual(t, "Unknown", k.String(), "kind %d missing a name", k)
	}
}

func TestValidateRejectsEmptyNamespaceExternalID(t *testing.T) {
	op := AgentExists{NS: iri.Namespace{ExternalID: "", UUID: uuid.New()}, ExternalID: "alice"}
	err := Validate(op)
	require.Error(t, err)
}

func TestValidateRejectsNilNamespaceUUID(t *testing.T) {
	op := AgentExists{NS: iri.Namespace{ExternalID: "default"}, ExternalID: "alice"}
	err := Validate(op)
	require.Error(t, err)
}

func TestValidateAcceptsWellFormedOperations(t *testing.T) {
	ns := testNS()
	cases := []Operation{
		CreateNamespace{NS: ns},
		AgentExists{NS: ns, ExternalID: "alice"},
		ActivityExists{NS: ns, ExternalID: "build-1"},
		EntityExists{NS: ns, ExternalID: "artifact-1"},
		SetAttributes{NS: ns, Target: TargetAgent, ExternalID: "alice", Attributes: map[string]AttrValue{
			"email": {Kind: AttrString, Str: "a@x"},
		}},
		StartActivity{NS: ns, ActivityIRI: "chronicle:activity:review", Instant: time.Now()},
		EndActivity{NS: ns, ActivityIRI: "chronicle:activity:review", Instant: time.Now()},
		ActivityUses{NS: ns, ActivityIRI: "chronicle:activity:review", EntityIRI: "chronicle:entity:artifact-1"},
		WasGeneratedBy{NS: ns, ActivityIRI: "chronicle:activity:review", EntityIRI: "chronicle:entity:artifact-1"},
		WasInformedBy{NS: ns, ActivityIRI: "chronicle:activity:review", InformingIRI: "chronicle:activity:draft"},
		WasAssociatedWith{NS: ns, ActivityIRI: "chronicle:activity:review", AgentIRI: "chronicle:agent:alice"},
		WasAttributedTo{NS: ns, EntityIRI: "chronicle:entity:artifact-1", AgentIRI: "chronicle:agent:alice"},
		ActedOnBehalfOf{NS: ns, ResponsibleIRI: "chronicle:agent:alice", DelegateIRI: "chronicle:agent:bob"},
		WasDerivedFrom{NS: ns, GeneratedIRI: "chronicle:entity:v2", UsedIRI: "chronicle:entity:v1", Subtype: DerivationRevision},
		RegisterKey{NS: ns, AgentIRI: "chronicle:agent:alice", PublicKeyHex: "02abc"},
		HasAttachment{NS: ns, EntityIRI: "chronicle:entity:artifact-1", Signature: "deadbeef", SignedAt: time.Now()},
	}
	for _, op := range cases {
		assert.NoError(t, Validate(op), "kind %s", op.Kind())
	}
}

func TestDerivationSubtypeString(t *testing.T) {
	assert.Equal(t, "primary-source", DerivationPrimarySource.String())
	assert.Equal(t, "generic", DerivationGeneric.String())
}

func TestTargetKindString(t *testing.T) {
	assert.Equal(t, "Agent", TargetAgent.String())
	assert.Equal(t, "Entity", TargetEntity.String())
}
