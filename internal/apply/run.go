package apply

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chronicleworks/chronicle-tp/internal/address"
	"github.com/chronicleworks/chronicle-tp/internal/canon"
	"github.com/chronicleworks/chronicle-tp/internal/commitevent"
	"github.com/chronicleworks/chronicle-tp/internal/iri"
	"github.com/chronicleworks/chronicle-tp/internal/ops"
	"github.com/chronicleworks/chronicle-tp/internal/policy"
	"github.com/chronicleworks/chronicle-tp/internal/provenance"
	"github.com/chronicleworks/chronicle-tp/internal/signing"
)

// Run is the apply engine's public entry point: it carries out all seven
// steps of spec.md §4.5 over one batch and returns the signed commit event
// (spec.md §6.5) alongside the Outcome describing what happened.
//
// nodeKey signs the emitted commit event; it is the transaction processor's
// own operator key (deploy.transactor_key_hex), distinct from the batch's
// own transactor-public-key/signature in headerJSON, which only
// authenticates the submitter (see DESIGN.md's Open Question decision).
//
// A batch that fails to decode (step 1) never reaches commitevent: per
// spec.md §7, MalformedPayload is dropped before an event can be built, so
// the returned Envelope is nil in that case. Every other outcome --
// UnauthorizedIdentity, Contradiction, committed, and NoChange -- is
// reported back to the caller as an Outcome; NoChange also yields no
// envelope, since spec.md §4.5 says the caller must not submit a no-op
// batch to consensus at all.
func Run(view StateView, nodeKey *signing.PrivateKey, headerJSON, bodyJSON []byte, decision policy.Decision) (*commitevent.Envelope, *Outcome) {
	header, err := ParseHeader(headerJSON)
	if err != nil {
		return nil, &Outcome{Kind: ErrMalformedPayload, Message: err.Error()}
	}

	doc, err := ParseDocument(bodyJSON)
	if err != nil {
		return nil, &Outcome{Kind: ErrMalformedPayload, Message: err.Error()}
	}

	canonicalBody, err := canon.Canonicalize(doc)
	if err != nil {
		return nil, &Outcome{Kind: ErrMalformedPayload, Message: err.Error()}
	}
	if computed := canon.BatchID(canonicalBody); computed != header.BatchID {
		return nil, &Outcome{Kind: ErrMalformedPayload, Message: fmt.Sprintf("apply: batch-id mismatch: header says %s, canonical body is %s", header.BatchID, computed)}
	}

	batch, err := DecodeOperations(doc)
	if err != nil {
		return nil, &Outcome{Kind: ErrMalformedPayload, Message: err.Error()}
	}
	for i, op := range batch {
		if err := ops.Validate(op); err != nil {
			return nil, &Outcome{Kind: ErrMalformedPayload, OpIndex: i, Message: err.Error()}
		}
	}

	// Step 2: verify signature. A batch the submitter never actually signed
	// cannot be attributed to anyone, so this is reported the same way as a
	// policy denial -- UnauthorizedIdentity, with an envelope emitted.
	if !signing.Verify(header.TransactorPublicKeyHex, canonicalBody, header.TransactorSignatureHex) {
		out := &Outcome{Kind: ErrUnauthorizedIdentity, Message: "transactor signature does not verify"}
		env, buildErr := buildEnvelope(nodeKey, header.BatchID, out)
		if buildErr != nil {
			return nil, &Outcome{Kind: ErrMalformedPayload, Message: buildErr.Error()}
		}
		return env, out
	}
	// Whether an Anonymous claim is permitted at all is resolved by the
	// policy hook below (spec.md §6.4), not rejected outright here.

	// Steps 3-4: footprint and load slice. FootprintIndex also hands back
	// each address's source IRI text, since an address is a one-way hash
	// and LoadSlice otherwise has no way to classify what's stored there.
	addrs, index, ferr := FootprintIndex(batch)
	if ferr != nil {
		if out, ok := ferr.(*Outcome); ok {
			return nil, out
		}
		return nil, &Outcome{Kind: ErrMalformedPayload, Message: ferr.Error()}
	}
	kindOf := func(addr string) (recordKind, string) {
		text, ok := index[addr]
		if !ok {
			return recordKindUnknown, ""
		}
		return KindOfIRI(text)
	}
	slice, err := LoadSlice(view, addrs, kindOf)
	if err != nil {
		return nil, &Outcome{Kind: ErrMalformedPayload, Message: err.Error()}
	}

	// Policy hook (spec.md §6.4): consulted once per operation, against the
	// slice as loaded (pre-fold), before any mutation happens.
	for i, op := range batch {
		target, hasTarget, targetAddr := policyTarget(op)
		var snapshot []byte
		if hasTarget {
			snapshot = snapshotFor(slice, targetAddr)
		}
		req := policy.Request{
			Operation: op.Kind(),
			Target:    target,
			HasTarget: hasTarget,
			Claim:     header.Claim,
			Snapshot:  snapshot,
		}
		if !decision.Allow(req) {
			out := &Outcome{Kind: ErrUnauthorizedIdentity, OpIndex: i, Message: fmt.Sprintf("apply: operation %d (%s) denied by policy", i, op.Kind())}
			env, buildErr := buildEnvelope(nodeKey, header.BatchID, out)
			if buildErr != nil {
				return nil, &Outcome{Kind: ErrMalformedPayload, Message: buildErr.Error()}
			}
			return env, out
		}
	}

	// Step 5: fold.
	out := Fold(batch, slice)
	if out.Kind == ErrContradiction {
		env, buildErr := buildEnvelope(nodeKey, header.BatchID, out)
		if buildErr != nil {
			return nil, &Outcome{Kind: ErrMalformedPayload, Message: buildErr.Error()}
		}
		return env, out
	}
	if out.Kind == ErrNoChange {
		return nil, out
	}

	// Step 6: serialize.
	records, err := Serialize(slice, out.TouchedAddrs)
	if err != nil {
		return nil, &Outcome{Kind: ErrMalformedPayload, Message: err.Error()}
	}
	out.Writes = records

	// Step 7: build delta event.
	delta, err := deltaGraph(records)
	if err != nil {
		return nil, &Outcome{Kind: ErrMalformedPayload, Message: err.Error()}
	}
	env, err := commitevent.Build(nodeKey, header.BatchID, commitevent.StatusCommitted, delta, out.TouchedAddrs, nil, "")
	if err != nil {
		return nil, &Outcome{Kind: ErrMalformedPayload, Message: err.Error()}
	}
	return env, out
}

// deltaGraph assembles the JSON-LD @graph array spec.md §4.5 step 7 names:
// exactly the records that changed, in touched-address order.
func deltaGraph(records []AddressedRecord) (json.RawMessage, error) {
	var b strings.Builder
	b.WriteByte('[')
	for i, rec := range records {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(rec.JSON)
	}
	b.WriteByte(']')
	return json.RawMessage(b.String()), nil
}

// buildEnvelope builds the commit event for a non-committed outcome
// (UnauthorizedIdentity or Contradiction); both carry no delta, per
// spec.md §6.5 "optional delta".
func buildEnvelope(nodeKey *signing.PrivateKey, batchID string, out *Outcome) (*commitevent.Envelope, error) {
	var status commitevent.Status
	var evidence *commitevent.ContradictionEvidence

	switch out.Kind {
	case ErrUnauthorizedIdentity:
		status = commitevent.StatusAuthorizationFailure
	case ErrContradiction:
		status = commitevent.StatusContradiction
		if out.Contradiction != nil {
			evidence = &commitevent.ContradictionEvidence{
				Field:     out.Contradiction.Field.String(),
				Key:       out.Contradiction.Key,
				Prior:     out.Contradiction.Prior,
				Incoming:  out.Contradiction.Incoming,
				OpIndex:   out.OpIndex,
				TargetIRI: out.TargetIRI,
			}
		}
	default:
		status = commitevent.StatusAuthorizationFailure
	}

	return commitevent.Build(nodeKey, batchID, status, nil, nil, evidence, out.Message)
}

// policyTarget identifies the record kind (if any) an operation targets,
// for the policy hook's {target record kind} input (spec.md §6.4).
// Relation operations (ActivityUses, WasGeneratedBy, and similar) have no
// single targeted record and report HasTarget=false.
func policyTarget(op ops.Operation) (ops.TargetKind, bool, string) {
	switch v := op.(type) {
	case ops.AgentExists:
		return ops.TargetAgent, true, address.Of(iri.BuildAgent(v.ExternalID))
	case ops.ActivityExists:
		return ops.TargetActivity, true, address.Of(iri.BuildActivity(v.ExternalID))
	case ops.EntityExists:
		return ops.TargetEntity, true, address.Of(iri.BuildEntity(v.ExternalID))
	case ops.SetAttributes:
		return v.Target, true, address.Of(targetIRI(v.Target, v.ExternalID))
	case ops.RegisterKey:
		return ops.TargetAgent, true, address.Of(v.AgentIRI)
	case ops.HasAttachment:
		return ops.TargetEntity, true, address.Of(v.EntityIRI)
	default:
		return 0, false, ""
	}
}

// snapshotFor returns the canonical JSON of whatever record currently
// occupies addr in slice, or nil if none does (policy.Request.Snapshot is
// nil for operations that create a record).
func snapshotFor(slice *Slice, addr string) []byte {
	if a, ok := slice.Agents[addr]; ok {
		data, err := provenance.MarshalAgent(*a)
		if err != nil {
			return nil
		}
		return data
	}
	if a, ok := slice.Activities[addr]; ok {
		data, err := provenance.MarshalActivity(*a)
		if err != nil {
			return nil
		}
		return data
	}
	if e, ok := slice.Entities[addr]; ok {
		data, err := provenance.MarshalEntity(*e)
		if err != nil {
			return nil
		}
		return data
	}
	return nil
}
