// Package iri builds and parses the canonical IRIs chronicle uses to name
// every provenance term: namespaces, agents, activities, entities,
// identities, attachments, and domain types. Construction and parsing are
// both total — parsing never panics, it reports a typed MalformedIri error.
package iri

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Kind discriminates the seven IRI shapes chronicle understands.
type Kind int

const (
	KindNamespace Kind = iota
	KindAgent
	KindActivity
	KindEntity
	KindIdentity
	KindAttachment
	KindDomainType
)

func (k Kind) String() string {
	switch k {
	case KindNamespace:
		return "namespace"
	case KindAgent:
		return "agent"
	case KindActivity:
		return "activity"
	case KindEntity:
		return "entity"
	case KindIdentity:
		return "identity"
	case KindAttachment:
		return "attachment"
	case KindDomainType:
		return "domaintype"
	default:
		return "unknown"
	}
}

const (
	shortScheme = "chronicle"
	// legacyPrefix is accepted on parse for backward compatibility and
	// normalized to shortScheme on output.
	legacyPrefix = "http://btp.works/chronicle/ns#"
)

// Namespace is a namespace reference: an external-id paired with a UUID.
// Two namespaces are the same universe only if both fields match; an
// external-id collision with a different UUID is a distinct namespace.
type Namespace struct {
	ExternalID string
	UUID       uuid.UUID
}

// Equal compares namespaces structurally by (ExternalID, UUID).
func (n Namespace) Equal(other Namespace) bool {
	return n.ExternalID == other.ExternalID && n.UUID == other.UUID
}

func (n Namespace) String() string {
	return fmt.Sprintf("%s:%s", n.ExternalID, n.UUID.String())
}

// IRI is a parsed chronicle identifier. Only the fields relevant to Kind
// are populated; callers should switch on Kind before reading them.
type IRI struct {
	Kind Kind

	NS Namespace // KindAgent, KindActivity, KindEntity carry the owning namespace via record, not the IRI itself

	ExternalID string // agent/activity/entity/identity(agent-part)/attachment(entity-part) external id
	PublicKey  string // KindIdentity: hex-encoded compressed secp256k1 key
	Signature  string // KindAttachment: hex-encoded signature
	TypeName   string // KindDomainType
}

// MalformedIri reports a failure to parse an IRI. Err is total: Parse never
// panics, it always either returns an IRI or a MalformedIri.
type MalformedIri struct {
	Input  string
	Reason string
}

func (e *MalformedIri) Error() string {
	return fmt.Sprintf("malformed iri %q: %s", e.Input, e.Reason)
}

func malformed(input, reason string, args ...interface{}) error {
	return &MalformedIri{Input: input, Reason: fmt.Sprintf(reason, args...)}
}

// escape applies path-segment percent-encoding to an opaque external-id so
// it can be embedded as one IRI path segment.
func escape(s string) string {
	return url.PathEscape(s)
}

// unescape reverses escape, used while parsing.
func unescape(s string) (string, error) {
	v, err := url.PathUnescape(s)
	if err != nil {
		return "", err
	}
	return v, nil
}

// BuildNamespace constructs chronicle:ns:{external-id}:{uuid}.
func BuildNamespace(ns Namespace) string {
	return fmt.Sprintf("%s:ns:%s:%s", shortScheme, escape(ns.ExternalID), ns.UUID.String())
}

// BuildAgent constructs chronicle:agent:{external-id}.
func BuildAgent(externalID string) string {
	return fmt.Sprintf("%s:agent:%s", shortScheme, escape(externalID))
}

// BuildActivity constructs chronicle:activity:{external-id}.
func BuildActivity(externalID string) string {
	return fmt.Sprintf("%s:activity:%s", shortScheme, escape(externalID))
}

// BuildEntity constructs chronicle:entity:{external-id}.
func BuildEntity(externalID string) string {
	return fmt.Sprintf("%s:entity:%s", shortScheme, escape(externalID))
}

// BuildIdentity constructs chronicle:identity:{agent-external-id}:{public-key-hex}.
func BuildIdentity(agentExternalID, publicKeyHex string) string {
	return fmt.Sprintf("%s:identity:%s:%s", shortScheme, escape(agentExternalID), publicKeyHex)
}

// BuildAttachment constructs chronicle:attachment:{entity-external-id}:{signature-hex}.
func BuildAttachment(entityExternalID, signatureHex string) string {
	return fmt.Sprintf("%s:attachment:%s:%s", shortScheme, escape(entityExternalID), signatureHex)
}

// BuildDomainType constructs chronicle:domaintype:{type-name}.
func BuildDomainType(typeName string) string {
	return fmt.Sprintf("%s:domaintype:%s", shortScheme, escape(typeName))
}

// Parse is total: it never panics and always returns either a valid IRI or
// a *MalformedIri error. The long-form legacy prefix is accepted and
// normalized away before parsing the short form.
func Parse(text string) (IRI, error) {
	normalized := normalizeLegacy(text)

	rest, ok := strings.CutPrefix(normalized, shortScheme+":")
	if !ok {
		return IRI{}, malformed(text, "missing %q scheme prefix", shortScheme)
	}

	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 {
		return IRI{}, malformed(text, "missing term kind segment")
	}
	kindSeg, remainder := parts[0], parts[1]

	switch kindSeg {
	case "ns":
		return parseNamespaceIRI(text, remainder)
	case "agent":
		extID, err := unescape(remainder)
		if err != nil {
			return IRI{}, malformed(text, "invalid agent external-id encoding: %v", err)
		}
		if extID == "" {
			return IRI{}, malformed(text, "empty agent external-id")
		}
		return IRI{Kind: KindAgent, ExternalID: extID}, nil
	case "activity":
		extID, err := unescape(remainder)
		if err != nil {
			return IRI{}, malformed(text, "invalid activity external-id encoding: %v", err)
		}
		if extID == "" {
			return IRI{}, malformed(text, "empty activity external-id")
		}
		return IRI{Kind: KindActivity, ExternalID: extID}, nil
	case "entity":
		extID, err := unescape(remainder)
		if err != nil {
			return IRI{}, malformed(text, "invalid entity external-id encoding: %v", err)
		}
		if extID == "" {
			return IRI{}, malformed(text, "empty entity external-id")
		}
		return IRI{Kind: KindEntity, ExternalID: extID}, nil
	case "identity":
		return parseTwoPart(text, remainder, KindIdentity)
	case "attachment":
		return parseTwoPart(text, remainder, KindAttachment)
	case "domaintype":
		extID, err := unescape(remainder)
		if err != nil {
			return IRI{}, malformed(text, "invalid domaintype encoding: %v", err)
		}
		if extID == "" {
			return IRI{}, malformed(text, "empty domaintype name")
		}
		return IRI{Kind: KindDomainType, TypeName: extID}, nil
	default:
		return IRI{}, malformed(text, "unknown term kind %q", kindSeg)
	}
}

func parseNamespaceIRI(original, remainder string) (IRI, error) {
	parts := strings.SplitN(remainder, ":", 2)
	if len(parts) != 2 {
		return IRI{}, malformed(original, "namespace iri requires external-id and uuid segments")
	}
	extID, err := unescape(parts[0])
	if err != nil {
		return IRI{}, malformed(original, "invalid namespace external-id encoding: %v", err)
	}
	if extID == "" {
		return IRI{}, malformed(original, "empty namespace external-id")
	}
	u, err := uuid.Parse(parts[1])
	if err != nil {
		return IRI{}, malformed(original, "invalid namespace uuid: %v", err)
	}
	return IRI{Kind: KindNamespace, NS: Namespace{ExternalID: extID, UUID: u}}, nil
}

// parseTwoPart parses identity ({agent-external-id}:{public-key-hex}) and
// attachment ({entity-external-id}:{signature-hex}) shapes, which share the
// same "escaped-id : hex" structure.
func parseTwoPart(original, remainder string, kind Kind) (IRI, error) {
	idx := strings.LastIndex(remainder, ":")
	if idx < 0 {
		return IRI{}, malformed(original, "%s iri requires external-id and hex segments", kind)
	}
	extID, err := unescape(remainder[:idx])
	if err != nil {
		return IRI{}, malformed(original, "invalid %s external-id encoding: %v", kind, err)
	}
	hexPart := remainder[idx+1:]
	if extID == "" || hexPart == "" {
		return IRI{}, malformed(original, "empty %s segment", kind)
	}
	if !isHex(hexPart) {
		return IRI{}, malformed(original, "%s hex segment is not valid hex", kind)
	}

	switch kind {
	case KindIdentity:
		return IRI{Kind: KindIdentity, ExternalID: extID, PublicKey: hexPart}, nil
	case KindAttachment:
		return IRI{Kind: KindAttachment, ExternalID: extID, Signature: hexPart}, nil
	default:
		return IRI{}, malformed(original, "unexpected kind %s", kind)
	}
}

func isHex(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// normalizeLegacy rewrites the long-form legacy prefix to the short scheme.
func normalizeLegacy(text string) string {
	if strings.HasPrefix(text, legacyPrefix) {
		return shortScheme + ":" + text[len(legacyPrefix):]
	}
	return text
}

// String reconstructs the canonical short-form IRI text for i.
func (i IRI) String() string {
	switch i.Kind {
	case KindNamespace:
		return BuildNamespace(i.NS)
	case KindAgent:
		return BuildAgent(i.ExternalID)
	case KindActivity:
		return BuildActivity(i.ExternalID)
	case KindEntity:
		return BuildEntity(i.ExternalID)
	case KindIdentity:
		return BuildIdentity(i.ExternalID, i.PublicKey)
	case KindAttachment:
		return BuildAttachment(i.ExternalID, i.Signature)
	case KindDomainType:
		return BuildDomainType(i.TypeName)
	default:
		return ""
	}
}
