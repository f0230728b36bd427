// Package identity models the identity claim attached to every batch
// (spec.md §6.3): a closed sum type of SystemOperator, VerifiableClaims,
// and Anonymous. The transaction processor core only records claims
// verbatim — verifying the bearer token behind a VerifiableClaims is the
// GraphQL layer's job, not this package's (spec.md §6.3, §1 Non-goals).
package identity

import "encoding/json"

// Kind discriminates the three claim variants.
type Kind int

const (
	KindSystemOperator Kind = iota
	KindVerifiableClaims
	KindAnonymous
)

func (k Kind) String() string {
	switch k {
	case KindSystemOperator:
		return "SystemOperator"
	case KindVerifiableClaims:
		return "VerifiableClaims"
	case KindAnonymous:
		return "Anonymous"
	default:
		return "Unknown"
	}
}

// Claim is the identity attached to a batch. Only the fields matching Kind
// are meaningful.
type Claim struct {
	Kind Kind

	// VerifiableClaims fields.
	Claims     json.RawMessage
	ExternalID string
}

// SystemOperator returns the privileged identity reserved for namespace
// creation and bootstrap (no access-control check, per spec.md §6.3).
func SystemOperator() Claim { return Claim{Kind: KindSystemOperator} }

// Anonymous returns the null identity, accepted only if deployment policy
// allows it (internal/policy).
func Anonymous() Claim { return Claim{Kind: KindAnonymous} }

// NewVerifiableClaims wraps an opaque claim bag derived by the GraphQL layer
// from a verified external identity token.
func NewVerifiableClaims(claims json.RawMessage, externalID string) Claim {
	return Claim{Kind: KindVerifiableClaims, Claims: claims, ExternalID: externalID}
}

// Privileged reports whether this claim bypasses the policy hook entirely
// (only SystemOperator does, per spec.md §6.3).
func (c Claim) Privileged() bool {
	return c.Kind == KindSystemOperator
}
