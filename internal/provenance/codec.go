// JSON-LD compacted serialization for the four record types (spec.md
// §6.2: "the stored value is the UTF-8 bytes of the canonical JSON-LD
// compacted serialization of the record"). This is a compacted, not
// expanded, representation — field names are the record's Go field names
// lowercased, not full predicate IRIs; internal/canon is responsible for
// the wire batch format's full predicate-IRI canonicalization. Decoding
// keeps only the fields declared on the json* structs below; any other
// field in the stored bytes is dropped, not preserved, so a record written
// with a predicate this code does not know loses it on the next rewrite.
package provenance

import (
	"encoding/json"
	"fmt"
	"time"
)

type jsonAttrValue struct {
	Kind string          `json:"kind"`
	Str  string          `json:"str,omitempty"`
	Int  int64           `json:"int,omitempty"`
	Bool bool            `json:"bool,omitempty"`
	JSON json.RawMessage `json:"json,omitempty"`
}

func valueToJSON(v Value) (jsonAttrValue, error) {
	switch v.Kind {
	case ValueString:
		return jsonAttrValue{Kind: "string", Str: v.Str}, nil
	case ValueInt:
		return jsonAttrValue{Kind: "int", Int: v.Int}, nil
	case ValueBool:
		return jsonAttrValue{Kind: "bool", Bool: v.Bool}, nil
	case ValueJSON:
		return jsonAttrValue{Kind: "json", JSON: json.RawMessage(v.JSON)}, nil
	default:
		return jsonAttrValue{}, fmt.Errorf("provenance: unknown value kind %d", v.Kind)
	}
}

func valueFromJSON(j jsonAttrValue) (Value, error) {
	switch j.Kind {
	case "string":
		return StringValue(j.Str), nil
	case "int":
		return IntValue(j.Int), nil
	case "bool":
		return BoolValue(j.Bool), nil
	case "json":
		return JSONValue(string(j.JSON))
	default:
		return Value{}, fmt.Errorf("provenance: unknown serialized value kind %q", j.Kind)
	}
}

func attributesToJSON(a Attributes) (map[string]jsonAttrValue, error) {
	out := make(map[string]jsonAttrValue, len(a))
	for k, v := range a {
		jv, err := valueToJSON(v)
		if err != nil {
			return nil, err
		}
		out[k] = jv
	}
	return out, nil
}

func attributesFromJSON(m map[string]jsonAttrValue) (Attributes, error) {
	out := make(Attributes, len(m))
	for k, j := range m {
		v, err := valueFromJSON(j)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

type jsonAgent struct {
	Type                 string                   `json:"@type"`
	NS                   Namespace                `json:"ns"`
	ExternalID           string                   `json:"externalId"`
	DomainType           string                   `json:"domainType,omitempty"`
	Attributes           map[string]jsonAttrValue `json:"attributes"`
	CurrentIdentity      *Identity                `json:"currentIdentity,omitempty"`
	HistoricalIdentities []Identity               `json:"historicalIdentities,omitempty"`
}

// MarshalAgent serializes a into its compacted JSON-LD form.
func MarshalAgent(a Agent) ([]byte, error) {
	attrs, err := attributesToJSON(a.Attributes)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jsonAgent{
		Type: "Agent", NS: a.NS, ExternalID: a.ExternalID, DomainType: a.DomainType,
		Attributes: attrs, CurrentIdentity: a.CurrentIdentity, HistoricalIdentities: a.HistoricalIdentities,
	})
}

// UnmarshalAgent parses bytes produced by MarshalAgent.
func UnmarshalAgent(data []byte) (Agent, error) {
	var j jsonAgent
	if err := json.Unmarshal(data, &j); err != nil {
		return Agent{}, fmt.Errorf("provenance: decoding agent: %w", err)
	}
	attrs, err := attributesFromJSON(j.Attributes)
	if err != nil {
		return Agent{}, err
	}
	return Agent{
		NS: j.NS, ExternalID: j.ExternalID, DomainType: j.DomainType, Attributes: attrs,
		CurrentIdentity: j.CurrentIdentity, HistoricalIdentities: j.HistoricalIdentities,
	}, nil
}

type jsonAssociationEdge struct {
	AgentIRI string `json:"agentIri"`
	Role     string `json:"role,omitempty"`
}

type jsonDelegationEdge struct {
	ResponsibleIRI string `json:"responsibleIri"`
	DelegateIRI    string `json:"delegateIri"`
	ActivityIRI    string `json:"activityIri,omitempty"`
	Role           string `json:"role,omitempty"`
}

type jsonActivity struct {
	Type              string                   `json:"@type"`
	NS                Namespace                `json:"ns"`
	ExternalID        string                   `json:"externalId"`
	DomainType        string                   `json:"domainType,omitempty"`
	StartedAt         *time.Time               `json:"startedAt,omitempty"`
	EndedAt           *time.Time               `json:"endedAt,omitempty"`
	Attributes        map[string]jsonAttrValue `json:"attributes"`
	Used              []string                 `json:"used,omitempty"`
	Generated         []string                 `json:"generated,omitempty"`
	WasInformedBy     []string                 `json:"wasInformedBy,omitempty"`
	WasAssociatedWith []jsonAssociationEdge    `json:"wasAssociatedWith,omitempty"`
	Delegation        []jsonDelegationEdge     `json:"delegation,omitempty"`
}

// MarshalActivity serializes a into its compacted JSON-LD form.
func MarshalActivity(a Activity) ([]byte, error) {
	attrs, err := attributesToJSON(a.Attributes)
	if err != nil {
		return nil, err
	}
	assoc := make([]jsonAssociationEdge, len(a.WasAssociatedWith))
	for i, e := range a.WasAssociatedWith {
		assoc[i] = jsonAssociationEdge{AgentIRI: e.AgentIRI, Role: e.Role}
	}
	deleg := make([]jsonDelegationEdge, len(a.Delegation))
	for i, e := range a.Delegation {
		deleg[i] = jsonDelegationEdge{ResponsibleIRI: e.ResponsibleIRI, DelegateIRI: e.DelegateIRI, ActivityIRI: e.ActivityIRI, Role: e.Role}
	}
	return json.Marshal(jsonActivity{
		Type: "Activity", NS: a.NS, ExternalID: a.ExternalID, DomainType: a.DomainType,
		StartedAt: a.StartedAt, EndedAt: a.EndedAt, Attributes: attrs,
		Used: a.Used, Generated: a.Generated, WasInformedBy: a.WasInformedBy,
		WasAssociatedWith: assoc, Delegation: deleg,
	})
}

// UnmarshalActivity parses bytes produced by MarshalActivity.
func UnmarshalActivity(data []byte) (Activity, error) {
	var j jsonActivity
	if err := json.Unmarshal(data, &j); err != nil {
		return Activity{}, fmt.Errorf("provenance: decoding activity: %w", err)
	}
	attrs, err := attributesFromJSON(j.Attributes)
	if err != nil {
		return Activity{}, err
	}
	var assoc []AssociationEdge
	for _, e := range j.WasAssociatedWith {
		assoc = append(assoc, AssociationEdge{AgentIRI: e.AgentIRI, Role: e.Role})
	}
	var deleg []DelegationEdge
	for _, e := range j.Delegation {
		deleg = append(deleg, DelegationEdge{ResponsibleIRI: e.ResponsibleIRI, DelegateIRI: e.DelegateIRI, ActivityIRI: e.ActivityIRI, Role: e.Role})
	}
	return Activity{
		NS: j.NS, ExternalID: j.ExternalID, DomainType: j.DomainType,
		StartedAt: j.StartedAt, EndedAt: j.EndedAt, Attributes: attrs,
		Used: j.Used, Generated: j.Generated, WasInformedBy: j.WasInformedBy,
		WasAssociatedWith: assoc, Delegation: deleg,
	}, nil
}

type jsonDerivationEdge struct {
	UsedIRI     string `json:"usedIri"`
	Subtype     string `json:"subtype"`
	ActivityIRI string `json:"activityIri,omitempty"`
}

type jsonAttributionEdge struct {
	AgentIRI string `json:"agentIri"`
	Role     string `json:"role,omitempty"`
}

type jsonEntity struct {
	Type                  string                   `json:"@type"`
	NS                    Namespace                `json:"ns"`
	ExternalID            string                   `json:"externalId"`
	DomainType            string                   `json:"domainType,omitempty"`
	Attributes            map[string]jsonAttrValue `json:"attributes"`
	WasGeneratedBy        []string                 `json:"wasGeneratedBy,omitempty"`
	WasDerivedFrom        []jsonDerivationEdge     `json:"wasDerivedFrom,omitempty"`
	WasAttributedTo       []jsonAttributionEdge    `json:"wasAttributedTo,omitempty"`
	CurrentAttachment     *Attachment              `json:"currentAttachment,omitempty"`
	HistoricalAttachments []Attachment             `json:"historicalAttachments,omitempty"`
}

func subtypeToString(s DerivationSubtype) string {
	switch s {
	case DerivationPrimarySource:
		return "primary-source"
	case DerivationRevision:
		return "revision"
	case DerivationQuotation:
		return "quotation"
	default:
		return "generic"
	}
}

func subtypeFromString(s string) DerivationSubtype {
	switch s {
	case "primary-source":
		return DerivationPrimarySource
	case "revision":
		return DerivationRevision
	case "quotation":
		return DerivationQuotation
	default:
		return DerivationGeneric
	}
}

// MarshalEntity serializes e into its compacted JSON-LD form.
func MarshalEntity(e Entity) ([]byte, error) {
	attrs, err := attributesToJSON(e.Attributes)
	if err != nil {
		return nil, err
	}
	derived := make([]jsonDerivationEdge, len(e.WasDerivedFrom))
	for i, d := range e.WasDerivedFrom {
		derived[i] = jsonDerivationEdge{UsedIRI: d.UsedIRI, Subtype: subtypeToString(d.Subtype), ActivityIRI: d.ActivityIRI}
	}
	attributed := make([]jsonAttributionEdge, len(e.WasAttributedTo))
	for i, a := range e.WasAttributedTo {
		attributed[i] = jsonAttributionEdge{AgentIRI: a.AgentIRI, Role: a.Role}
	}
	return json.Marshal(jsonEntity{
		Type: "Entity", NS: e.NS, ExternalID: e.ExternalID, DomainType: e.DomainType, Attributes: attrs,
		WasGeneratedBy: e.WasGeneratedBy, WasDerivedFrom: derived, WasAttributedTo: attributed,
		CurrentAttachment: e.CurrentAttachment, HistoricalAttachments: e.HistoricalAttachments,
	})
}

// UnmarshalEntity parses bytes produced by MarshalEntity.
func UnmarshalEntity(data []byte) (Entity, error) {
	var j jsonEntity
	if err := json.Unmarshal(data, &j); err != nil {
		return Entity{}, fmt.Errorf("provenance: decoding entity: %w", err)
	}
	attrs, err := attributesFromJSON(j.Attributes)
	if err != nil {
		return Entity{}, err
	}
	var derived []DerivationEdge
	for _, d := range j.WasDerivedFrom {
		derived = append(derived, DerivationEdge{UsedIRI: d.UsedIRI, Subtype: subtypeFromString(d.Subtype), ActivityIRI: d.ActivityIRI})
	}
	var attributed []AttributionEdge
	for _, a := range j.WasAttributedTo {
		attributed = append(attributed, AttributionEdge{AgentIRI: a.AgentIRI, Role: a.Role})
	}
	return Entity{
		NS: j.NS, ExternalID: j.ExternalID, DomainType: j.DomainType, Attributes: attrs,
		WasGeneratedBy: j.WasGeneratedBy, WasDerivedFrom: derived, WasAttributedTo: attributed,
		CurrentAttachment: j.CurrentAttachment, HistoricalAttachments: j.HistoricalAttachments,
	}, nil
}

type jsonNamespace struct {
	Type       string `json:"@type"`
	ExternalID string `json:"externalId"`
	UUID       string `json:"uuid"`
}

// MarshalNamespace serializes n into its compacted JSON-LD form.
func MarshalNamespace(n Namespace) ([]byte, error) {
	return json.Marshal(jsonNamespace{Type: "Namespace", ExternalID: n.ExternalID, UUID: n.UUID})
}

// UnmarshalNamespace parses bytes produced by MarshalNamespace.
func UnmarshalNamespace(data []byte) (Namespace, error) {
	var j jsonNamespace
	if err := json.Unmarshal(data, &j); err != nil {
		return Namespace{}, fmt.Errorf("provenance: decoding namespace: %w", err)
	}
	return Namespace{ExternalID: j.ExternalID, UUID: j.UUID}, nil
}
