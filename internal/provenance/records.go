package provenance

import "time"

// Attributes is an unordered mapping from type-name to a typed Value
// (spec.md §3.2).
type Attributes map[string]Value

// Clone returns a shallow copy safe to mutate independently of a.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Role is an optional role string attached to several relations; the empty
// string means "no role asserted", distinct from a role explicitly set to
// the empty string (the wire format has no way to distinguish the two, so
// this package treats them as the same case, matching spec.md's silence on
// the distinction).
type Role = string

// AssociationEdge is a was-associated-with / delegation endpoint: an agent
// plus an optional role.
type AssociationEdge struct {
	AgentIRI string
	Role     Role
}

// AttributionEdge is a was-attributed-to endpoint: an agent plus an
// optional role.
type AttributionEdge struct {
	AgentIRI string
	Role     Role
}

// DelegationEdge is an acted-on-behalf-of endpoint.
type DelegationEdge struct {
	ResponsibleIRI string
	DelegateIRI    string
	ActivityIRI    string // empty means not asserted
	Role           Role
}

// DerivationSubtype mirrors ops.DerivationSubtype; duplicated here (rather
// than imported) so the provenance package has no dependency on the
// operation-decoding layer, keeping the object model usable standalone.
type DerivationSubtype int

const (
	DerivationGeneric DerivationSubtype = iota
	DerivationPrimarySource
	DerivationRevision
	DerivationQuotation
)

// DerivationEdge is a was-derived-from endpoint.
type DerivationEdge struct {
	UsedIRI     string
	Subtype     DerivationSubtype
	ActivityIRI string // empty means not asserted
}

// Namespace is the { external-id, uuid } record. Created once, never
// mutated (spec.md §3.2).
type Namespace struct {
	ExternalID string
	UUID       string
}

func (n Namespace) String() string {
	return n.ExternalID + ":" + n.UUID
}

// Identity is a registered public key for an agent.
type Identity struct {
	AgentIRI     string
	PublicKeyHex string
}

// Attachment is a signed claim over an entity.
type Attachment struct {
	EntityIRI   string
	SignedByIRI string
	Signature   string
	SignedAt    time.Time
	Locator     string // empty means not asserted
}

// Agent is the agent record (spec.md §3.2).
type Agent struct {
	NS                   Namespace
	ExternalID           string
	DomainType           string // empty means unset
	Attributes           Attributes
	CurrentIdentity      *Identity
	HistoricalIdentities []Identity
}

// Activity is the activity record (spec.md §3.2).
type Activity struct {
	NS               Namespace
	ExternalID       string
	DomainType       string
	StartedAt        *time.Time
	EndedAt          *time.Time
	Attributes       Attributes
	Used             []string // entity IRIs
	Generated        []string // entity IRIs
	WasInformedBy    []string // activity IRIs
	WasAssociatedWith []AssociationEdge
	Delegation       []DelegationEdge
}

// Entity is the entity record (spec.md §3.2).
type Entity struct {
	NS                   Namespace
	ExternalID           string
	DomainType           string
	Attributes           Attributes
	WasGeneratedBy       []string // activity IRIs
	WasDerivedFrom       []DerivationEdge
	WasAttributedTo      []AttributionEdge
	CurrentAttachment    *Attachment
	HistoricalAttachments []Attachment
}

// NewAgent returns an empty agent stub for the given namespace/external-id,
// as materialized by the apply engine on first reference (invariant 1).
func NewAgent(ns Namespace, externalID string) Agent {
	return Agent{NS: ns, ExternalID: externalID, Attributes: Attributes{}}
}

// NewActivity returns an empty activity stub.
func NewActivity(ns Namespace, externalID string) Activity {
	return Activity{NS: ns, ExternalID: externalID, Attributes: Attributes{}}
}

// NewEntity returns an empty entity stub.
func NewEntity(ns Namespace, externalID string) Entity {
	return Entity{NS: ns, ExternalID: externalID, Attributes: Attributes{}}
}
