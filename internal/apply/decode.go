package apply

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chronicleworks/chronicle-tp/internal/canon"
	"github.com/chronicleworks/chronicle-tp/internal/identity"
	"github.com/chronicleworks/chronicle-tp/internal/iri"
	"github.com/chronicleworks/chronicle-tp/internal/ops"
)

// Header is the batch header spec.md §6.1 names: transactor public key and
// signature, the batch-id (hex SHA-256 of the canonical body), and the
// identity claim attached to the batch.
type Header struct {
	TransactorPublicKeyHex string
	TransactorSignatureHex string
	BatchID                string
	Claim                  identity.Claim
}

// wireHeader is Header's JSON wire shape.
type wireHeader struct {
	TransactorPublicKey string          `json:"transactor-public-key"`
	TransactorSignature string          `json:"transactor-signature"`
	BatchID             string          `json:"batch-id"`
	IdentityClaim       json.RawMessage `json:"identity-claim"`
}

// ParseHeader decodes a batch header from its wire JSON form.
func ParseHeader(data []byte) (Header, error) {
	var w wireHeader
	if err := json.Unmarshal(data, &w); err != nil {
		return Header{}, fmt.Errorf("apply: decoding header: %w", err)
	}
	claim, err := identity.Unmarshal(w.IdentityClaim)
	if err != nil {
		return Header{}, fmt.Errorf("apply: decoding header identity claim: %w", err)
	}
	return Header{
		TransactorPublicKeyHex: w.TransactorPublicKey,
		TransactorSignatureHex: w.TransactorSignature,
		BatchID:                w.BatchID,
		Claim:                  claim,
	}, nil
}

// wireNode is one @graph entry's raw JSON shape: a type URI, an optional
// blank-node id, and every other key treated as an operation field.
type wireNode struct {
	Type string `json:"@type"`
	ID   string `json:"@id,omitempty"`
}

// ParseDocument decodes the JSON-LD @graph array into a canon.Document,
// preserving field order is not required (canon.Canonicalize re-sorts).
func ParseDocument(data []byte) (canon.Document, error) {
	var raw []map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return canon.Document{}, fmt.Errorf("apply: decoding batch body: %w", err)
	}

	doc := canon.Document{Graph: make([]canon.Node, 0, len(raw))}
	for i, obj := range raw {
		typ, _ := obj["@type"].(string)
		if typ == "" {
			return canon.Document{}, fmt.Errorf("apply: node %d: missing @type", i)
		}
		blankID, _ := obj["@id"].(string)

		fields := make(map[string]interface{}, len(obj))
		for k, v := range obj {
			if k == "@type" || k == "@id" {
				continue
			}
			fields[k] = v
		}
		doc.Graph = append(doc.Graph, canon.Node{Type: typ, Fields: fields, BlankID: blankID})
	}
	return doc, nil
}

// operation type URIs, drawn from canon.OperationTypeNS per spec.md §6.1.
const (
	typeCreateNamespace   = canon.OperationTypeNS + "CreateNamespace"
	typeAgentExists       = canon.OperationTypeNS + "AgentExists"
	typeActivityExists    = canon.OperationTypeNS + "ActivityExists"
	typeEntityExists      = canon.OperationTypeNS + "EntityExists"
	typeSetAttributes     = canon.OperationTypeNS + "SetAttributes"
	typeStartActivity     = canon.OperationTypeNS + "StartActivity"
	typeEndActivity       = canon.OperationTypeNS + "EndActivity"
	typeActivityUses      = canon.OperationTypeNS + "ActivityUses"
	typeWasGeneratedBy    = canon.OperationTypeNS + "WasGeneratedBy"
	typeWasInformedBy     = canon.OperationTypeNS + "WasInformedBy"
	typeWasAssociatedWith = canon.OperationTypeNS + "WasAssociatedWith"
	typeWasAttributedTo   = canon.OperationTypeNS + "WasAttributedTo"
	typeActedOnBehalfOf   = canon.OperationTypeNS + "ActedOnBehalfOf"
	typeWasDerivedFrom    = canon.OperationTypeNS + "WasDerivedFrom"
	typeRegisterKey       = canon.OperationTypeNS + "RegisterKey"
	typeHasAttachment     = canon.OperationTypeNS + "HasAttachment"
)

// DecodeOperations converts a canon.Document's nodes into the typed
// operation set internal/ops defines (spec.md §4.5 step 1). A node whose
// @type is unrecognized, or whose required fields are missing or
// malformed, produces an error that the caller should surface as
// MalformedPayload.
func DecodeOperations(doc canon.Document) ([]ops.Operation, error) {
	out := make([]ops.Operation, 0, len(doc.Graph))
	for i, node := range doc.Graph {
		op, err := decodeNode(node)
		if err != nil {
			return nil, fmt.Errorf("apply: node %d: %w", i, err)
		}
		out = append(out, op)
	}
	return out, nil
}

func decodeNode(node canon.Node) (ops.Operation, error) {
	ns, err := decodeNamespace(node.Fields)
	if err != nil {
		return nil, err
	}

	switch node.Type {
	case typeCreateNamespace:
		return ops.CreateNamespace{NS: ns}, nil
	case typeAgentExists:
		extID, err := fieldString(node.Fields, "externalId")
		if err != nil {
			return nil, err
		}
		return ops.AgentExists{NS: ns, ExternalID: extID}, nil
	case typeActivityExists:
		extID, err := fieldString(node.Fields, "externalId")
		if err != nil {
			return nil, err
		}
		return ops.ActivityExists{NS: ns, ExternalID: extID}, nil
	case typeEntityExists:
		extID, err := fieldString(node.Fields, "externalId")
		if err != nil {
			return nil, err
		}
		return ops.EntityExists{NS: ns, ExternalID: extID}, nil
	case typeSetAttributes:
		return decodeSetAttributes(ns, node.Fields)
	case typeStartActivity:
		activityIRI, err := fieldString(node.Fields, "activityIri")
		if err != nil {
			return nil, err
		}
		instant, err := fieldTime(node.Fields, "instant")
		if err != nil {
			return nil, err
		}
		return ops.StartActivity{NS: ns, ActivityIRI: activityIRI, Instant: instant}, nil
	case typeEndActivity:
		activityIRI, err := fieldString(node.Fields, "activityIri")
		if err != nil {
			return nil, err
		}
		instant, err := fieldTime(node.Fields, "instant")
		if err != nil {
			return nil, err
		}
		return ops.EndActivity{NS: ns, ActivityIRI: activityIRI, Instant: instant}, nil
	case typeActivityUses:
		activityIRI, entityIRI, err := twoIRIFields(node.Fields, "activityIri", "entityIri")
		if err != nil {
			return nil, err
		}
		return ops.ActivityUses{NS: ns, ActivityIRI: activityIRI, EntityIRI: entityIRI}, nil
	case typeWasGeneratedBy:
		activityIRI, entityIRI, err := twoIRIFields(node.Fields, "activityIri", "entityIri")
		if err != nil {
			return nil, err
		}
		return ops.WasGeneratedBy{NS: ns, ActivityIRI: activityIRI, EntityIRI: entityIRI}, nil
	case typeWasInformedBy:
		activityIRI, informingIRI, err := twoIRIFields(node.Fields, "activityIri", "informingIri")
		if err != nil {
			return nil, err
		}
		return ops.WasInformedBy{NS: ns, ActivityIRI: activityIRI, InformingIRI: informingIRI}, nil
	case typeWasAssociatedWith:
		activityIRI, agentIRI, err := twoIRIFields(node.Fields, "activityIri", "agentIri")
		if err != nil {
			return nil, err
		}
		role, _ := fieldStringOpt(node.Fields, "role")
		return ops.WasAssociatedWith{NS: ns, ActivityIRI: activityIRI, AgentIRI: agentIRI, Role: role}, nil
	case typeWasAttributedTo:
		entityIRI, agentIRI, err := twoIRIFields(node.Fields, "entityIri", "agentIri")
		if err != nil {
			return nil, err
		}
		role, _ := fieldStringOpt(node.Fields, "role")
		return ops.WasAttributedTo{NS: ns, EntityIRI: entityIRI, AgentIRI: agentIRI, Role: role}, nil
	case typeActedOnBehalfOf:
		responsibleIRI, delegateIRI, err := twoIRIFields(node.Fields, "responsibleIri", "delegateIri")
		if err != nil {
			return nil, err
		}
		activityIRI, _ := fieldStringOpt(node.Fields, "activityIri")
		role, _ := fieldStringOpt(node.Fields, "role")
		return ops.ActedOnBehalfOf{NS: ns, ResponsibleIRI: responsibleIRI, DelegateIRI: delegateIRI, ActivityIRI: activityIRI, Role: role}, nil
	case typeWasDerivedFrom:
		generatedIRI, usedIRI, err := twoIRIFields(node.Fields, "generatedIri", "usedIri")
		if err != nil {
			return nil, err
		}
		subtypeStr, err := fieldString(node.Fields, "subtype")
		if err != nil {
			return nil, err
		}
		subtype, err := decodeSubtype(subtypeStr)
		if err != nil {
			return nil, err
		}
		activityIRI, _ := fieldStringOpt(node.Fields, "activityIri")
		return ops.WasDerivedFrom{NS: ns, GeneratedIRI: generatedIRI, UsedIRI: usedIRI, Subtype: subtype, ActivityIRI: activityIRI}, nil
	case typeRegisterKey:
		agentIRI, err := fieldString(node.Fields, "agentIri")
		if err != nil {
			return nil, err
		}
		keyHex, err := fieldString(node.Fields, "publicKeyHex")
		if err != nil {
			return nil, err
		}
		return ops.RegisterKey{NS: ns, AgentIRI: agentIRI, PublicKeyHex: keyHex}, nil
	case typeHasAttachment:
		entityIRI, signedByIRI, err := twoIRIFields(node.Fields, "entityIri", "signedByIri")
		if err != nil {
			return nil, err
		}
		signature, err := fieldString(node.Fields, "signature")
		if err != nil {
			return nil, err
		}
		signedAt, err := fieldTime(node.Fields, "signedAt")
		if err != nil {
			return nil, err
		}
		locator, _ := fieldStringOpt(node.Fields, "locator")
		return ops.HasAttachment{NS: ns, EntityIRI: entityIRI, SignedByIRI: signedByIRI, Signature: signature, SignedAt: signedAt, Locator: locator}, nil
	default:
		return nil, fmt.Errorf("apply: unknown operation type %q", node.Type)
	}
}

func decodeNamespace(fields map[string]interface{}) (iri.Namespace, error) {
	extID, err := fieldString(fields, "namespaceExternalId")
	if err != nil {
		return iri.Namespace{}, err
	}
	uuidStr, err := fieldString(fields, "namespaceUuid")
	if err != nil {
		return iri.Namespace{}, err
	}
	u, err := uuid.Parse(uuidStr)
	if err != nil {
		return iri.Namespace{}, fmt.Errorf("apply: invalid namespaceUuid %q: %w", uuidStr, err)
	}
	return iri.Namespace{ExternalID: extID, UUID: u}, nil
}

func decodeSetAttributes(ns iri.Namespace, fields map[string]interface{}) (ops.Operation, error) {
	targetStr, err := fieldString(fields, "target")
	if err != nil {
		return nil, err
	}
	var target ops.TargetKind
	switch targetStr {
	case "Agent":
		target = ops.TargetAgent
	case "Activity":
		target = ops.TargetActivity
	case "Entity":
		target = ops.TargetEntity
	default:
		return nil, fmt.Errorf("apply: SetAttributes: unknown target %q", targetStr)
	}

	extID, err := fieldString(fields, "externalId")
	if err != nil {
		return nil, err
	}

	attrs := make(map[string]ops.AttrValue)
	if raw, ok := fields["attributes"]; ok {
		attrMap, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("apply: SetAttributes: attributes must be an object")
		}
		for key, v := range attrMap {
			entry, ok := v.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("apply: SetAttributes: attribute %q must be an object", key)
			}
			av, err := decodeAttrValue(entry)
			if err != nil {
				return nil, fmt.Errorf("apply: SetAttributes: attribute %q: %w", key, err)
			}
			attrs[key] = av
		}
	}

	domainType, _ := fieldStringOpt(fields, "domainType")

	return ops.SetAttributes{NS: ns, Target: target, ExternalID: extID, Attributes: attrs, DomainType: domainType}, nil
}

func decodeAttrValue(entry map[string]interface{}) (ops.AttrValue, error) {
	kind, _ := entry["kind"].(string)
	switch kind {
	case "string":
		s, _ := entry["value"].(string)
		return ops.AttrValue{Kind: ops.AttrString, Str: s}, nil
	case "int":
		n, ok := entry["value"].(float64)
		if !ok {
			return ops.AttrValue{}, fmt.Errorf("int value is not numeric")
		}
		return ops.AttrValue{Kind: ops.AttrInt, Int: int64(n)}, nil
	case "bool":
		b, _ := entry["value"].(bool)
		return ops.AttrValue{Kind: ops.AttrBool, Bool: b}, nil
	case "json":
		data, err := json.Marshal(entry["value"])
		if err != nil {
			return ops.AttrValue{}, fmt.Errorf("re-marshaling json value: %w", err)
		}
		return ops.AttrValue{Kind: ops.AttrJSON, JSON: string(data)}, nil
	default:
		return ops.AttrValue{}, fmt.Errorf("unknown attribute value kind %q", kind)
	}
}

func decodeSubtype(s string) (ops.DerivationSubtype, error) {
	switch s {
	case "generic":
		return ops.DerivationGeneric, nil
	case "primary-source":
		return ops.DerivationPrimarySource, nil
	case "revision":
		return ops.DerivationRevision, nil
	case "quotation":
		return ops.DerivationQuotation, nil
	default:
		return 0, fmt.Errorf("unknown derivation subtype %q", s)
	}
}

func fieldString(fields map[string]interface{}, key string) (string, error) {
	v, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("missing field %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q must be a string", key)
	}
	if s == "" {
		return "", fmt.Errorf("field %q must not be empty", key)
	}
	return s, nil
}

func fieldStringOpt(fields map[string]interface{}, key string) (string, bool) {
	v, ok := fields[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	return s, true
}

func fieldTime(fields map[string]interface{}, key string) (time.Time, error) {
	s, err := fieldString(fields, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("field %q is not RFC3339: %w", key, err)
	}
	return t, nil
}

func twoIRIFields(fields map[string]interface{}, a, b string) (string, string, error) {
	va, err := fieldString(fields, a)
	if err != nil {
		return "", "", err
	}
	vb, err := fieldString(fields, b)
	if err != nil {
		return "", "", err
	}
	return va, vb, nil
}
