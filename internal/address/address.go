// Package address computes the deterministic ledger address for a
// provenance IRI: a fixed-width 70-character hex string (6-character family
// prefix + 64-character SHA-256 hex digest of the IRI's canonical bytes).
// Grounded on the teacher's idgen.GenerateHashID, which hashes content with
// crypto/sha256 to derive a short base36 issue ID; here the target is a
// full-width hex address over IRI bytes rather than a short content ID.
package address

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// FamilyPrefix is the constant per-transaction-family address prefix. It is
// not a secret; it exists so downstream consumers (a shared ledger) can
// distinguish chronicle's addresses from other families sharing the same
// keyspace.
const FamilyPrefix = "a7b3c9"

const (
	prefixLen = len(FamilyPrefix)
	digestLen = sha256.Size * 2
	// Len is the fixed width of every address this package produces.
	Len = prefixLen + digestLen
)

// Of computes the ledger address for the given canonical IRI text. The
// input must already be in its canonical short-form representation
// (iri.IRI.String()); addressing is a pure function of those bytes alone —
// no record content or creation time ever enters the computation
// (invariant 8, content address stability).
func Of(canonicalIRI string) string {
	digest := sha256.Sum256([]byte(canonicalIRI))
	return FamilyPrefix + hex.EncodeToString(digest[:])
}

// Valid reports whether s has the shape of an address this package
// produces: fixed width, family prefix, lowercase hex suffix. It does not
// check that any record actually lives at the address.
func Valid(s string) bool {
	if len(s) != Len {
		return false
	}
	if s[:prefixLen] != FamilyPrefix {
		return false
	}
	for _, c := range s[prefixLen:] {
		if !(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

// ErrInvalidAddress is returned by Parse when the input is not a
// well-formed address for this family.
type ErrInvalidAddress struct {
	Address string
}

func (e *ErrInvalidAddress) Error() string {
	return fmt.Sprintf("address: %q is not a valid chronicle address", e.Address)
}

// Parse validates s and returns it unchanged, or a typed error.
func Parse(s string) (string, error) {
	if !Valid(s) {
		return "", &ErrInvalidAddress{Address: s}
	}
	return s, nil
}
