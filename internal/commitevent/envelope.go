// Package commitevent defines the signed envelope the transaction processor
// emits exactly once per batch (spec.md §6.5): { batch-id, status, optional
// delta @graph, optional contradiction-evidence, transactor-public-key,
// signature-over-envelope }. Downstream projections (internal/projection)
// are driven only by this event, never by reading ledger state directly.
package commitevent

import (
	"encoding/json"
	"fmt"

	"github.com/chronicleworks/chronicle-tp/internal/signing"
)

// Status is the closed set of outcomes a commit event can report.
// MalformedPayload never reaches this package: spec.md §7 says a batch that
// fails to decode is dropped before an event can be built at all.
type Status int

const (
	StatusCommitted Status = iota
	StatusContradiction
	StatusAuthorizationFailure
)

func (s Status) String() string {
	switch s {
	case StatusCommitted:
		return "Committed"
	case StatusContradiction:
		return "Contradiction"
	case StatusAuthorizationFailure:
		return "AuthorizationFailure"
	default:
		return "Unknown"
	}
}

// ContradictionEvidence mirrors provenance.Contradiction's fields in wire
// form, so the envelope can be JSON-serialized without importing the
// provenance package's internal Contradiction type directly into the wire
// schema.
type ContradictionEvidence struct {
	Field     string `json:"field"`
	Key       string `json:"key,omitempty"`
	Prior     string `json:"prior"`
	Incoming  string `json:"incoming"`
	OpIndex   int    `json:"opIndex"`
	TargetIRI string `json:"targetIri"`
}

// Envelope is the signed, emitted commit event.
type Envelope struct {
	BatchID             string                 `json:"batchId"`
	Status              Status                 `json:"status"`
	Delta               json.RawMessage        `json:"delta,omitempty"`
	TouchedAddresses    []string               `json:"touchedAddresses,omitempty"`
	ContradictionEvidence *ContradictionEvidence `json:"contradictionEvidence,omitempty"`
	Message             string                 `json:"message,omitempty"`
	TransactorPublicKey string                 `json:"transactorPublicKey"`
	Signature           string                 `json:"signature"`
}

// envelopeBody is the subset of Envelope fields the signature covers:
// everything except the signature itself.
type envelopeBody struct {
	BatchID               string                 `json:"batchId"`
	Status                Status                 `json:"status"`
	Delta                 json.RawMessage        `json:"delta,omitempty"`
	TouchedAddresses      []string               `json:"touchedAddresses,omitempty"`
	ContradictionEvidence *ContradictionEvidence `json:"contradictionEvidence,omitempty"`
	Message               string                 `json:"message,omitempty"`
	TransactorPublicKey   string                 `json:"transactorPublicKey"`
}

// Build assembles and signs a commit event with the given transactor key.
// delta may be nil (Contradiction and AuthorizationFailure carry no delta,
// per spec.md §6.5 "optional delta").
func Build(key *signing.PrivateKey, batchID string, status Status, delta json.RawMessage, touched []string, evidence *ContradictionEvidence, message string) (*Envelope, error) {
	body := envelopeBody{
		BatchID:               batchID,
		Status:                status,
		Delta:                 delta,
		TouchedAddresses:      touched,
		ContradictionEvidence: evidence,
		Message:               message,
		TransactorPublicKey:   key.PublicKeyHex(),
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("commitevent: marshaling envelope body: %w", err)
	}
	sig := key.Sign(bodyBytes)

	return &Envelope{
		BatchID:               body.BatchID,
		Status:                body.Status,
		Delta:                 body.Delta,
		TouchedAddresses:      body.TouchedAddresses,
		ContradictionEvidence: body.ContradictionEvidence,
		Message:               body.Message,
		TransactorPublicKey:   body.TransactorPublicKey,
		Signature:             sig,
	}, nil
}

// Verify checks the envelope's signature against its own transactor public
// key, reconstructing the exact body bytes Build signed.
func Verify(e *Envelope) bool {
	body := envelopeBody{
		BatchID:               e.BatchID,
		Status:                e.Status,
		Delta:                 e.Delta,
		TouchedAddresses:      e.TouchedAddresses,
		ContradictionEvidence: e.ContradictionEvidence,
		Message:               e.Message,
		TransactorPublicKey:   e.TransactorPublicKey,
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return false
	}
	return signing.Verify(e.TransactorPublicKey, bodyBytes, e.Signature)
}

// Marshal serializes the envelope to JSON.
func Marshal(e *Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal parses a JSON-serialized envelope.
func Unmarshal(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("commitevent: unmarshaling envelope: %w", err)
	}
	return &e, nil
}
