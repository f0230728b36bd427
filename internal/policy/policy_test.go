package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chronicleworks/chronicle-tp/internal/identity"
	"github.com/chronicleworks/chronicle-tp/internal/ops"
)

func TestAllowListSystemOperatorAlwaysAllowed(t *testing.T) {
	a := NewAllowList(false)
	req := Request{Operation: ops.KindRegisterKey, Claim: identity.SystemOperator()}
	assert.True(t, a.Allow(req))
}

func TestAllowListVerifiableClaimsAlwaysAllowed(t *testing.T) {
	a := NewAllowList(false)
	claim := identity.NewVerifiableClaims(nil, "did:example:alice")
	req := Request{Operation: ops.KindCreateNamespace, Claim: claim}
	assert.True(t, a.Allow(req))
}

func TestAllowListAnonymousRejectedWhenDisabled(t *testing.T) {
	a := NewAllowList(false)
	req := Request{Operation: ops.KindAgentExists, Claim: identity.Anonymous()}
	assert.False(t, a.Allow(req))
}

func TestAllowListAnonymousAllowedForUndeniedKind(t *testing.T) {
	a := NewAllowList(true)
	req := Request{Operation: ops.KindAgentExists, Claim: identity.Anonymous()}
	assert.True(t, a.Allow(req))
}

func TestAllowListAnonymousDeniedForTrustChainOps(t *testing.T) {
	a := NewAllowList(true)
	for _, k := range []ops.Kind{ops.KindCreateNamespace, ops.KindRegisterKey, ops.KindHasAttachment} {
		req := Request{Operation: k, Claim: identity.Anonymous()}
		assert.False(t, a.Allow(req), "expected %s to be denied for anonymous", k)
	}
}

func TestAllowListUnknownClaimKindRejected(t *testing.T) {
	a := NewAllowList(true)
	req := Request{Operation: ops.KindAgentExists, Claim: identity.Claim{Kind: identity.Kind(99)}}
	assert.False(t, a.Allow(req))
}

func TestDescribeDenied(t *testing.T) {
	a := NewAllowList(true)
	assert.Contains(t, a.DescribeDenied(ops.KindRegisterKey), "RegisterKey")
	assert.Empty(t, a.DescribeDenied(ops.KindAgentExists))
}

func TestAllowAllAlwaysTrue(t *testing.T) {
	var d Decision = AllowAll{}
	assert.True(t, d.Allow(Request{}))
}
