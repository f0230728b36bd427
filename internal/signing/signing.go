// Package signing wraps secp256k1 key handling for the transactor
// signature (spec.md §6.1 header) and identity public keys (spec.md §3.2).
// Uses github.com/decred/dcrd/dcrec/secp256k1 — secp256k1 is attested
// across the retrieval pack (erigon's consensus code, juju's transitive
// dependency graph) as the right curve family; neither pack repo carries a
// reusable pure-Go signer for it, so this substitutes a real, widely used
// ecosystem implementation rather than reaching for a cgo binding unsuited
// to a portable transaction-processor core (see DESIGN.md).
package signing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// PublicKeyHexLen is the length of a hex-encoded 33-byte compressed
// secp256k1 public key.
const PublicKeyHexLen = 66

// SignatureHexLen is the length of a hex-encoded 64-byte compact signature.
const SignatureHexLen = 128

// PrivateKey wraps a secp256k1 signing key.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// GeneratePrivateKey is provided for tests and local tooling; key generation
// and storage for production deployments is explicitly out of scope
// (spec.md §1 Non-goals) and is the host's responsibility.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("signing: generating key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromHex parses a 32-byte hex-encoded scalar.
func PrivateKeyFromHex(hexKey string) (*PrivateKey, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("signing: invalid private key hex: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("signing: private key must be 32 bytes, got %d", len(raw))
	}
	key := secp256k1.PrivKeyFromBytes(raw)
	return &PrivateKey{key: key}, nil
}

// PublicKeyHex returns the 33-byte compressed public key as lowercase hex.
func (p *PrivateKey) PublicKeyHex() string {
	return hex.EncodeToString(p.key.PubKey().SerializeCompressed())
}

// ScalarBytes returns the 32-byte private scalar, the form
// PrivateKeyFromHex parses. Used by local tooling (e.g. a keygen command)
// that needs to display or persist a generated key.
func (p *PrivateKey) ScalarBytes() []byte {
	return p.key.Serialize()
}

// Sign produces a 64-byte compact (R||S) signature over the SHA-256 digest
// of message, hex-encoded. Used for both the transactor batch signature and
// attachment signatures (spec.md §3.2, §6.1). Compact rather than DER form
// is used so the wire length is fixed, matching spec.md §6.1's "64-byte
// hex" header field.
func (p *PrivateKey) Sign(message []byte) string {
	digest := sha256.Sum256(message)
	sig := ecdsa.Sign(p.key, digest[:])
	r := sig.R().Bytes()
	s := sig.S().Bytes()
	compact := make([]byte, 0, 64)
	compact = append(compact, r[:]...)
	compact = append(compact, s[:]...)
	return hex.EncodeToString(compact)
}

// Verify checks that signatureHex is a valid signature over message's
// SHA-256 digest under the compressed public key publicKeyHex. It never
// panics: malformed hex or an invalid key/signature both simply fail
// verification.
func Verify(publicKeyHex string, message []byte, signatureHex string) bool {
	pubBytes, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return false
	}
	pubKey, err := secp256k1.ParsePubKey(pubBytes)
	if err != nil {
		return false
	}
	sigBytes, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	sig, err := parseCompact(sigBytes)
	if err != nil {
		return false
	}
	digest := sha256.Sum256(message)
	return sig.Verify(digest[:], pubKey)
}

func parseCompact(sig []byte) (*ecdsa.Signature, error) {
	if len(sig) != 64 {
		return nil, fmt.Errorf("signing: compact signature must be 64 bytes, got %d", len(sig))
	}
	var rBytes, sBytes [32]byte
	copy(rBytes[:], sig[:32])
	copy(sBytes[:], sig[32:])
	r := new(secp256k1.ModNScalar)
	s := new(secp256k1.ModNScalar)
	r.SetBytes(&rBytes)
	s.SetBytes(&sBytes)
	return ecdsa.NewSignature(r, s), nil
}
