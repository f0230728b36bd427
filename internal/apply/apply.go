// Package apply implements the deterministic transaction-processor core:
// decode -> verify signature -> compute footprint -> load slice -> fold ->
// serialize -> build delta event (spec.md §4.5). The fold step's sequential,
// early-exit-on-first-hard-error processing is grounded on the teacher's
// eventbus.Bus.Dispatch shape (ordered handler list, first error recorded,
// loop continues only because handlers are non-fatal there; here a
// Contradiction is fatal and stops the fold immediately, per spec.md step 5).
package apply

import (
	"fmt"

	"github.com/chronicleworks/chronicle-tp/internal/address"
	"github.com/chronicleworks/chronicle-tp/internal/iri"
	"github.com/chronicleworks/chronicle-tp/internal/ops"
	"github.com/chronicleworks/chronicle-tp/internal/provenance"
)

// ErrKind is the closed set of apply outcomes beyond a plain commit
// (spec.md §7).
type ErrKind int

const (
	ErrNone ErrKind = iota
	ErrMalformedPayload
	ErrUnauthorizedIdentity
	ErrContradiction
	ErrNoChange
)

func (k ErrKind) String() string {
	switch k {
	case ErrNone:
		return "none"
	case ErrMalformedPayload:
		return "MalformedPayload"
	case ErrUnauthorizedIdentity:
		return "UnauthorizedIdentity"
	case ErrContradiction:
		return "Contradiction"
	case ErrNoChange:
		return "NoChange"
	default:
		return "unknown"
	}
}

// Outcome is the result of Apply: satisfies error via Error() so callers
// that only want pass/fail can use the standard idiom, but callers that
// need the detail should inspect Kind/Contradiction directly.
type Outcome struct {
	Kind          ErrKind
	Writes        []AddressedRecord
	TouchedAddrs  []string
	OpIndex       int // index of the operation that produced Kind, meaningful for Contradiction/MalformedPayload
	TargetIRI     string
	Contradiction *provenance.Contradiction
	Message       string // detail for MalformedPayload/UnauthorizedIdentity
}

func (o *Outcome) Error() string {
	switch o.Kind {
	case ErrNone:
		return ""
	case ErrContradiction:
		return fmt.Sprintf("apply: contradiction at op %d (%s): %v", o.OpIndex, o.TargetIRI, o.Contradiction)
	default:
		return fmt.Sprintf("apply: %s: %s", o.Kind, o.Message)
	}
}

// Committed reports whether this outcome represents a successful state
// change (as opposed to NoChange, or one of the three error kinds).
func (o *Outcome) Committed() bool {
	return o.Kind == ErrNone
}

// AddressedRecord is one touched ledger address and its serialized record
// after fold, ready for the state-writes set (spec.md §4.5 step 6).
type AddressedRecord struct {
	Address string
	IRI     string
	JSON    string
}

// StateView is the read-only synchronous interface the host provides
// (spec.md §5): get(address) -> optional bytes.
type StateView interface {
	Get(addr string) (value []byte, present bool)
}

// Slice is the in-memory working set loaded from a StateView for the
// addresses in a batch's footprint, and the decoded records folded over
// them. It is intentionally simple: a map keyed by address, because the
// apply engine owns it for the duration of one Apply call only.
type Slice struct {
	Namespaces  map[string]*provenance.Namespace
	Agents      map[string]*provenance.Agent
	Activities  map[string]*provenance.Activity
	Entities    map[string]*provenance.Entity
}

// NewSlice returns an empty Slice ready for Apply to populate via
// materialize-stub-on-first-reference (invariant 1).
func NewSlice() *Slice {
	return &Slice{
		Namespaces: make(map[string]*provenance.Namespace),
		Agents:     make(map[string]*provenance.Agent),
		Activities: make(map[string]*provenance.Activity),
		Entities:   make(map[string]*provenance.Entity),
	}
}

// Footprint enumerates every ledger address a batch reads or writes
// (spec.md §4.3 / §4.5 step 3), before any fold happens.
func Footprint(batch []ops.Operation) ([]string, error) {
	addrs, _, err := FootprintIndex(batch)
	return addrs, err
}

// FootprintIndex is Footprint plus the address-to-canonical-IRI mapping
// LoadSlice needs to classify a stored record's kind: a ledger address is a
// one-way SHA-256 digest (internal/address), so the kind of whatever lives
// there cannot be recovered from the address alone. The index is built once
// here, while the canonical IRI text is still in hand, rather than asking
// callers to guess it back out of the address.
func FootprintIndex(batch []ops.Operation) ([]string, map[string]string, error) {
	seen := make(map[string]struct{})
	index := make(map[string]string)
	var out []string
	add := func(text string) {
		addr := address.Of(text)
		index[addr] = text
		if _, ok := seen[addr]; ok {
			return
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}

	for i, op := range batch {
		if err := ops.Validate(op); err != nil {
			return nil, nil, &Outcome{Kind: ErrMalformedPayload, OpIndex: i, Message: err.Error()}
		}
		ns := op.Namespace()
		add(iri.BuildNamespace(iriNamespace(ns)))

		switch v := op.(type) {
		case ops.AgentExists:
			add(iri.BuildAgent(v.ExternalID))
		case ops.ActivityExists:
			add(iri.BuildActivity(v.ExternalID))
		case ops.EntityExists:
			add(iri.BuildEntity(v.ExternalID))
		case ops.SetAttributes:
			add(targetIRI(v.Target, v.ExternalID))
		case ops.StartActivity:
			add(v.ActivityIRI)
		case ops.EndActivity:
			add(v.ActivityIRI)
		case ops.ActivityUses:
			add(v.ActivityIRI)
			add(v.EntityIRI)
		case ops.WasGeneratedBy:
			add(v.ActivityIRI)
			add(v.EntityIRI)
		case ops.WasInformedBy:
			add(v.ActivityIRI)
			add(v.InformingIRI)
		case ops.WasAssociatedWith:
			add(v.ActivityIRI)
			add(v.AgentIRI)
		case ops.WasAttributedTo:
			add(v.EntityIRI)
			add(v.AgentIRI)
		case ops.ActedOnBehalfOf:
			add(v.ResponsibleIRI)
			add(v.DelegateIRI)
			if v.ActivityIRI != "" {
				add(v.ActivityIRI)
			}
		case ops.WasDerivedFrom:
			add(v.GeneratedIRI)
			add(v.UsedIRI)
			if v.ActivityIRI != "" {
				add(v.ActivityIRI)
			}
		case ops.RegisterKey:
			add(v.AgentIRI)
		case ops.HasAttachment:
			add(v.EntityIRI)
		}
	}
	return out, index, nil
}

func targetIRI(target ops.TargetKind, externalID string) string {
	switch target {
	case ops.TargetAgent:
		return iri.BuildAgent(externalID)
	case ops.TargetActivity:
		return iri.BuildActivity(externalID)
	case ops.TargetEntity:
		return iri.BuildEntity(externalID)
	default:
		return ""
	}
}

func iriNamespace(ns iri.Namespace) iri.Namespace { return ns }
