// Package policy implements the authorization decision the apply engine
// calls before folding each batch (spec.md §6.4): Boolean, deterministic,
// seeded by a policy bundle address read from the state view. The bundle
// format, language, and transport are explicitly out of scope (spec.md §1);
// this package ships one concrete, deliberately simple decision —
// deployment-config-driven allow-listing — rather than a bundle evaluator.
// Grounded on the teacher's config.DeployKeys typed-registry idiom
// (internal/config).
package policy

import (
	"strings"

	"github.com/chronicleworks/chronicle-tp/internal/identity"
	"github.com/chronicleworks/chronicle-tp/internal/ops"
)

// Request bundles the four inputs spec.md §6.4 names: operation kind,
// target record kind, identity claim, and a snapshot of the record being
// operated on (nil for operations that create a record, e.g. CreateNamespace).
type Request struct {
	Operation ops.Kind
	Target    ops.TargetKind
	HasTarget bool
	Claim     identity.Claim
	Snapshot  []byte
}

// Decision is the authorization hook the apply engine consults once per
// operation. Implementations must be deterministic for a given Request and
// must not perform I/O or consult wall-clock time (spec.md §4.5
// "Determinism").
type Decision interface {
	Allow(req Request) bool
}

// AllowList is the one concrete Decision this package ships: a
// deployment-configured allow-list keyed by operation kind, evaluated
// against the identity claim's privilege level. It does not interpret a
// policy bundle language (OPA/Rego and similar remain a Non-goal); the
// "bundle" here is just the deployment's AnonymousAllowed flag plus an
// optional per-kind deny set.
type AllowList struct {
	// AnonymousAllowed mirrors deploy.anonymous_identity_allowed: whether an
	// Anonymous identity claim may pass at all.
	AnonymousAllowed bool

	// DeniedForAnonymous names operation kinds an Anonymous claim may never
	// perform even when AnonymousAllowed is true (e.g. RegisterKey).
	DeniedForAnonymous map[ops.Kind]bool
}

// NewAllowList builds an AllowList with the spec's conservative defaults:
// anonymous identities may never register keys, create namespaces, or
// manage attachments, since those operations establish or rotate the trust
// chain the policy hook itself depends on.
func NewAllowList(anonymousAllowed bool) *AllowList {
	return &AllowList{
		AnonymousAllowed: anonymousAllowed,
		DeniedForAnonymous: map[ops.Kind]bool{
			ops.KindCreateNamespace: true,
			ops.KindRegisterKey:     true,
			ops.KindHasAttachment:   true,
		},
	}
}

// Allow implements Decision. SystemOperator claims bypass the hook entirely
// (spec.md §6.3, identity.Claim.Privileged); VerifiableClaims are always
// allowed (bearer-token verification already happened upstream, per
// spec.md §6.3 and §1 Non-goals); Anonymous claims are allowed only when
// configured to be, and never for the denied operation kinds.
func (a *AllowList) Allow(req Request) bool {
	if req.Claim.Privileged() {
		return true
	}
	switch req.Claim.Kind {
	case identity.KindVerifiableClaims:
		return true
	case identity.KindAnonymous:
		if !a.AnonymousAllowed {
			return false
		}
		return !a.DeniedForAnonymous[req.Operation]
	default:
		return false
	}
}

// AllowAll is a permissive Decision used in tests and local tooling where
// authorization is not under test.
type AllowAll struct{}

// Allow always returns true.
func (AllowAll) Allow(Request) bool { return true }

// DescribeDenied renders a human-readable reason an operation kind is
// blocked for anonymous identities, used by the CLI and commit-event
// contradiction evidence.
func (a *AllowList) DescribeDenied(k ops.Kind) string {
	if !a.DeniedForAnonymous[k] {
		return ""
	}
	var b strings.Builder
	b.WriteString("anonymous identities may not perform ")
	b.WriteString(k.String())
	return b.String()
}
