package apply

import (
	"fmt"

	"github.com/chronicleworks/chronicle-tp/internal/address"
	"github.com/chronicleworks/chronicle-tp/internal/iri"
	"github.com/chronicleworks/chronicle-tp/internal/ops"
	"github.com/chronicleworks/chronicle-tp/internal/provenance"
)

// LoadSlice reads the current record (or absence marker) at every address in
// addrs via view, decoding known record shapes into slice (spec.md §4.5 step
// 4). Addresses with no stored value are simply absent from slice's maps;
// Fold materializes stubs for those on first reference (invariant 1).
func LoadSlice(view StateView, addrs []string, kindOf func(addr string) (recordKind, string)) (*Slice, error) {
	slice := NewSlice()
	for _, addr := range addrs {
		raw, present := view.Get(addr)
		if !present {
			continue
		}
		kind, _ := kindOf(addr)
		switch kind {
		case recordKindNamespace:
			ns, err := provenance.UnmarshalNamespace(raw)
			if err != nil {
				return nil, err
			}
			slice.Namespaces[addr] = &ns
		case recordKindAgent:
			a, err := provenance.UnmarshalAgent(raw)
			if err != nil {
				return nil, err
			}
			slice.Agents[addr] = &a
		case recordKindActivity:
			a, err := provenance.UnmarshalActivity(raw)
			if err != nil {
				return nil, err
			}
			slice.Activities[addr] = &a
		case recordKindEntity:
			e, err := provenance.UnmarshalEntity(raw)
			if err != nil {
				return nil, err
			}
			slice.Entities[addr] = &e
		}
	}
	return slice, nil
}

type recordKind int

const (
	recordKindUnknown recordKind = iota
	recordKindNamespace
	recordKindAgent
	recordKindActivity
	recordKindEntity
)

// KindOfIRI classifies a canonical IRI text by the record kind it names,
// for use as LoadSlice's kindOf callback.
func KindOfIRI(text string) (recordKind, string) {
	parsed, err := iri.Parse(text)
	if err != nil {
		return recordKindUnknown, ""
	}
	switch parsed.Kind {
	case iri.KindNamespace:
		return recordKindNamespace, parsed.ExternalID
	case iri.KindAgent:
		return recordKindAgent, parsed.ExternalID
	case iri.KindActivity:
		return recordKindActivity, parsed.ExternalID
	case iri.KindEntity:
		return recordKindEntity, parsed.ExternalID
	default:
		return recordKindUnknown, ""
	}
}

// foldState tracks per-address dirtiness across the fold so Serialize only
// emits touched records (spec.md §4.5 step 6/7: "unchanged records are not
// echoed").
type foldState struct {
	slice   *Slice
	dirty   map[string]bool
	touched []string // insertion-ordered touched addresses, deduped via dirty
}

func newFoldState(slice *Slice) *foldState {
	return &foldState{slice: slice, dirty: make(map[string]bool)}
}

func (f *foldState) markDirty(addr string) {
	if f.dirty[addr] {
		return
	}
	f.dirty[addr] = true
	f.touched = append(f.touched, addr)
}

func (f *foldState) agent(ns iri.Namespace, externalID string) (*provenance.Agent, string) {
	a, addr, _ := f.agentNew(ns, externalID)
	return a, addr
}

func (f *foldState) agentNew(ns iri.Namespace, externalID string) (*provenance.Agent, string, bool) {
	text := iri.BuildAgent(externalID)
	addr := address.Of(text)
	a, ok := f.slice.Agents[addr]
	if !ok {
		stub := provenance.NewAgent(provenance.Namespace{ExternalID: ns.ExternalID, UUID: ns.UUID.String()}, externalID)
		a = &stub
		f.slice.Agents[addr] = a
		f.markDirty(addr)
		return a, addr, true
	}
	return a, addr, false
}

func (f *foldState) activity(ns iri.Namespace, externalID string) (*provenance.Activity, string) {
	a, addr, _ := f.activityNew(ns, externalID)
	return a, addr
}

func (f *foldState) activityNew(ns iri.Namespace, externalID string) (*provenance.Activity, string, bool) {
	text := iri.BuildActivity(externalID)
	addr := address.Of(text)
	a, ok := f.slice.Activities[addr]
	if !ok {
		stub := provenance.NewActivity(provenance.Namespace{ExternalID: ns.ExternalID, UUID: ns.UUID.String()}, externalID)
		a = &stub
		f.slice.Activities[addr] = a
		f.markDirty(addr)
		return a, addr, true
	}
	return a, addr, false
}

func (f *foldState) entity(ns iri.Namespace, externalID string) (*provenance.Entity, string) {
	e, addr, _ := f.entityNew(ns, externalID)
	return e, addr
}

func (f *foldState) entityNew(ns iri.Namespace, externalID string) (*provenance.Entity, string, bool) {
	text := iri.BuildEntity(externalID)
	addr := address.Of(text)
	e, ok := f.slice.Entities[addr]
	if !ok {
		stub := provenance.NewEntity(provenance.Namespace{ExternalID: ns.ExternalID, UUID: ns.UUID.String()}, externalID)
		e = &stub
		f.slice.Entities[addr] = e
		f.markDirty(addr)
		return e, addr, true
	}
	return e, addr, false
}

// agentByIRI, activityByIRI, entityByIRI materialize a stub for a raw IRI
// string reached via a relation (e.g. ActivityUses's EntityIRI), under the
// operation's own namespace. A record reached this way may already exist
// under a different namespace (records are addressed by external-id alone,
// not by namespace); it is up to the caller to check the resolved record's
// own NS against the operation's namespace (invariant 6) via
// checkNamespace, since these helpers have no Contradiction to return.
func (f *foldState) agentByIRI(ns iri.Namespace, text string) (*provenance.Agent, string, error) {
	parsed, err := iri.Parse(text)
	if err != nil || parsed.Kind != iri.KindAgent {
		return nil, "", fmt.Errorf("apply: expected agent iri, got %q", text)
	}
	a, addr := f.agent(ns, parsed.ExternalID)
	return a, addr, nil
}

func (f *foldState) activityByIRI(ns iri.Namespace, text string) (*provenance.Activity, string, error) {
	parsed, err := iri.Parse(text)
	if err != nil || parsed.Kind != iri.KindActivity {
		return nil, "", fmt.Errorf("apply: expected activity iri, got %q", text)
	}
	a, addr := f.activity(ns, parsed.ExternalID)
	return a, addr, nil
}

func (f *foldState) entityByIRI(ns iri.Namespace, text string) (*provenance.Entity, string, error) {
	parsed, err := iri.Parse(text)
	if err != nil || parsed.Kind != iri.KindEntity {
		return nil, "", fmt.Errorf("apply: expected entity iri, got %q", text)
	}
	e, addr := f.entity(ns, parsed.ExternalID)
	return e, addr, nil
}

// sameNamespace reports whether a stored record's namespace matches the
// namespace a relation operation is asserting it under.
func sameNamespace(recordNS provenance.Namespace, ns iri.Namespace) bool {
	return recordNS.ExternalID == ns.ExternalID && recordNS.UUID == ns.UUID.String()
}

// checkNamespace enforces invariant 6: every relation edge must connect
// records in the same namespace. recordNS is the namespace the endpoint was
// actually created under; ns is the namespace the relation operation itself
// names. A mismatch is a Contradiction, not a MalformedPayload, since both
// records are individually well-formed and it is only their combination
// that is invalid.
func checkNamespace(idx int, targetIRIText string, recordNS provenance.Namespace, ns iri.Namespace) *Outcome {
	if sameNamespace(recordNS, ns) {
		return nil
	}
	return contradictionOutcome(idx, targetIRIText, provenance.NewNamespaceContradiction(recordNS.String(), ns.String()))
}

// Fold applies batch to slice in order (spec.md §4.5 step 5). The first
// Contradiction stops the fold; MalformedPayload from a bad relation IRI
// also stops it immediately (decode-time shape errors, not ledger state
// conflicts). On success, Outcome.Kind is ErrNone if anything changed, or
// ErrNoChange if the post-fold state is byte-identical to the prior slice.
func Fold(batch []ops.Operation, slice *Slice) *Outcome {
	f := newFoldState(slice)

	for i, op := range batch {
		ns := op.Namespace()
		nsAddr := address.Of(iri.BuildNamespace(ns))

		if _, ok := f.slice.Namespaces[nsAddr]; !ok {
			if _, isCreate := op.(ops.CreateNamespace); !isCreate {
				// Every other operation implicitly requires its namespace to
				// exist; synthesize it as a stub too (invariant 1 extends to
				// namespaces referenced transitively through their members).
				created := provenance.Namespace{ExternalID: ns.ExternalID, UUID: ns.UUID.String()}
				f.slice.Namespaces[nsAddr] = &created
				f.markDirty(nsAddr)
			}
		}

		if out := foldOne(f, i, op); out != nil {
			return out
		}
	}

	if len(f.touched) == 0 {
		return &Outcome{Kind: ErrNoChange}
	}
	return &Outcome{Kind: ErrNone, TouchedAddrs: f.touched}
}

func foldOne(f *foldState, idx int, op ops.Operation) *Outcome {
	ns := op.Namespace()
	nsAddr := address.Of(iri.BuildNamespace(ns))

	switch v := op.(type) {
	case ops.CreateNamespace:
		if _, ok := f.slice.Namespaces[nsAddr]; !ok {
			created := provenance.Namespace{ExternalID: v.NS.ExternalID, UUID: v.NS.UUID.String()}
			f.slice.Namespaces[nsAddr] = &created
			f.markDirty(nsAddr)
		}
		return nil

	case ops.AgentExists:
		_, _, _ = f.agentNew(ns, v.ExternalID) // materializes the stub and marks dirty only if newly created
		return nil

	case ops.ActivityExists:
		_, _, _ = f.activityNew(ns, v.ExternalID)
		return nil

	case ops.EntityExists:
		_, _, _ = f.entityNew(ns, v.ExternalID)
		return nil

	case ops.SetAttributes:
		return foldSetAttributes(f, idx, ns, v)

	case ops.StartActivity:
		a, addr, err := f.activityByIRI(ns, v.ActivityIRI)
		if err != nil {
			return &Outcome{Kind: ErrMalformedPayload, OpIndex: idx, Message: err.Error()}
		}
		next, changed, cerr := provenance.MergeInstant(a.StartedAt, v.Instant)
		if cerr != nil {
			return contradictionOutcome(idx, v.ActivityIRI, cerr)
		}
		if changed {
			a.StartedAt = next
			f.markDirty(addr)
		}
		return nil

	case ops.EndActivity:
		a, addr, err := f.activityByIRI(ns, v.ActivityIRI)
		if err != nil {
			return &Outcome{Kind: ErrMalformedPayload, OpIndex: idx, Message: err.Error()}
		}
		next, changed, cerr := provenance.MergeInstant(a.EndedAt, v.Instant)
		if cerr != nil {
			return contradictionOutcome(idx, v.ActivityIRI, cerr)
		}
		if changed {
			a.EndedAt = next
			f.markDirty(addr)
		}
		return nil

	case ops.ActivityUses:
		a, addr, err := f.activityByIRI(ns, v.ActivityIRI)
		if err != nil {
			return &Outcome{Kind: ErrMalformedPayload, OpIndex: idx, Message: err.Error()}
		}
		if out := checkNamespace(idx, v.ActivityIRI, a.NS, ns); out != nil {
			return out
		}
		e, _, err := f.entityByIRI(ns, v.EntityIRI)
		if err != nil {
			return &Outcome{Kind: ErrMalformedPayload, OpIndex: idx, Message: err.Error()}
		}
		if out := checkNamespace(idx, v.EntityIRI, e.NS, ns); out != nil {
			return out
		}
		next, changed := provenance.MergeStringSet(a.Used, v.EntityIRI)
		if changed {
			a.Used = next
			f.markDirty(addr)
		}
		return nil

	case ops.WasGeneratedBy:
		e, entAddr, err := f.entityByIRI(ns, v.EntityIRI)
		if err != nil {
			return &Outcome{Kind: ErrMalformedPayload, OpIndex: idx, Message: err.Error()}
		}
		if out := checkNamespace(idx, v.EntityIRI, e.NS, ns); out != nil {
			return out
		}
		a, _, err := f.activityByIRI(ns, v.ActivityIRI)
		if err != nil {
			return &Outcome{Kind: ErrMalformedPayload, OpIndex: idx, Message: err.Error()}
		}
		if out := checkNamespace(idx, v.ActivityIRI, a.NS, ns); out != nil {
			return out
		}
		next, changed := provenance.MergeStringSet(e.WasGeneratedBy, v.ActivityIRI)
		if changed {
			e.WasGeneratedBy = next
			f.markDirty(entAddr)
		}
		return nil

	case ops.WasInformedBy:
		a, addr, err := f.activityByIRI(ns, v.ActivityIRI)
		if err != nil {
			return &Outcome{Kind: ErrMalformedPayload, OpIndex: idx, Message: err.Error()}
		}
		if out := checkNamespace(idx, v.ActivityIRI, a.NS, ns); out != nil {
			return out
		}
		informing, _, err := f.activityByIRI(ns, v.InformingIRI)
		if err != nil {
			return &Outcome{Kind: ErrMalformedPayload, OpIndex: idx, Message: err.Error()}
		}
		if out := checkNamespace(idx, v.InformingIRI, informing.NS, ns); out != nil {
			return out
		}
		next, changed := provenance.MergeStringSet(a.WasInformedBy, v.InformingIRI)
		if changed {
			a.WasInformedBy = next
			f.markDirty(addr)
		}
		return nil

	case ops.WasAssociatedWith:
		a, addr, err := f.activityByIRI(ns, v.ActivityIRI)
		if err != nil {
			return &Outcome{Kind: ErrMalformedPayload, OpIndex: idx, Message: err.Error()}
		}
		if out := checkNamespace(idx, v.ActivityIRI, a.NS, ns); out != nil {
			return out
		}
		agent, _, err := f.agentByIRI(ns, v.AgentIRI)
		if err != nil {
			return &Outcome{Kind: ErrMalformedPayload, OpIndex: idx, Message: err.Error()}
		}
		if out := checkNamespace(idx, v.AgentIRI, agent.NS, ns); out != nil {
			return out
		}
		edge := provenance.AssociationEdge{AgentIRI: v.AgentIRI, Role: v.Role}
		if !hasAssociationEdge(a.WasAssociatedWith, edge) {
			a.WasAssociatedWith = append(a.WasAssociatedWith, edge)
			f.markDirty(addr)
		}
		return nil

	case ops.WasAttributedTo:
		e, addr, err := f.entityByIRI(ns, v.EntityIRI)
		if err != nil {
			return &Outcome{Kind: ErrMalformedPayload, OpIndex: idx, Message: err.Error()}
		}
		if out := checkNamespace(idx, v.EntityIRI, e.NS, ns); out != nil {
			return out
		}
		agent, _, err := f.agentByIRI(ns, v.AgentIRI)
		if err != nil {
			return &Outcome{Kind: ErrMalformedPayload, OpIndex: idx, Message: err.Error()}
		}
		if out := checkNamespace(idx, v.AgentIRI, agent.NS, ns); out != nil {
			return out
		}
		edge := provenance.AttributionEdge{AgentIRI: v.AgentIRI, Role: v.Role}
		if !hasAttributionEdge(e.WasAttributedTo, edge) {
			e.WasAttributedTo = append(e.WasAttributedTo, edge)
			f.markDirty(addr)
		}
		return nil

	case ops.ActedOnBehalfOf:
		responsible, respAddr, err := f.agentByIRI(ns, v.ResponsibleIRI)
		if err != nil {
			return &Outcome{Kind: ErrMalformedPayload, OpIndex: idx, Message: err.Error()}
		}
		if out := checkNamespace(idx, v.ResponsibleIRI, responsible.NS, ns); out != nil {
			return out
		}
		delegate, _, err := f.agentByIRI(ns, v.DelegateIRI)
		if err != nil {
			return &Outcome{Kind: ErrMalformedPayload, OpIndex: idx, Message: err.Error()}
		}
		if out := checkNamespace(idx, v.DelegateIRI, delegate.NS, ns); out != nil {
			return out
		}
		if v.ActivityIRI != "" {
			act, _, err := f.activityByIRI(ns, v.ActivityIRI)
			if err != nil {
				return &Outcome{Kind: ErrMalformedPayload, OpIndex: idx, Message: err.Error()}
			}
			if out := checkNamespace(idx, v.ActivityIRI, act.NS, ns); out != nil {
				return out
			}
		}
		edge := provenance.DelegationEdge{ResponsibleIRI: v.ResponsibleIRI, DelegateIRI: v.DelegateIRI, ActivityIRI: v.ActivityIRI, Role: v.Role}
		_ = responsible
		found := false
		for _, existing := range f.slice.Agents[respAddr].Delegation {
			if existing == edge {
				found = true
				break
			}
		}
		if !found {
			f.slice.Agents[respAddr].Delegation = append(f.slice.Agents[respAddr].Delegation, edge)
			f.markDirty(respAddr)
		}
		return nil

	case ops.WasDerivedFrom:
		e, addr, err := f.entityByIRI(ns, v.GeneratedIRI)
		if err != nil {
			return &Outcome{Kind: ErrMalformedPayload, OpIndex: idx, Message: err.Error()}
		}
		if out := checkNamespace(idx, v.GeneratedIRI, e.NS, ns); out != nil {
			return out
		}
		used, _, err := f.entityByIRI(ns, v.UsedIRI)
		if err != nil {
			return &Outcome{Kind: ErrMalformedPayload, OpIndex: idx, Message: err.Error()}
		}
		if out := checkNamespace(idx, v.UsedIRI, used.NS, ns); out != nil {
			return out
		}
		if v.ActivityIRI != "" {
			act, _, err := f.activityByIRI(ns, v.ActivityIRI)
			if err != nil {
				return &Outcome{Kind: ErrMalformedPayload, OpIndex: idx, Message: err.Error()}
			}
			if out := checkNamespace(idx, v.ActivityIRI, act.NS, ns); out != nil {
				return out
			}
		}
		edge := provenance.DerivationEdge{UsedIRI: v.UsedIRI, Subtype: provenance.DerivationSubtype(v.Subtype), ActivityIRI: v.ActivityIRI}
		found := false
		for _, existing := range e.WasDerivedFrom {
			if existing == edge {
				found = true
				break
			}
		}
		if !found {
			e.WasDerivedFrom = append(e.WasDerivedFrom, edge)
			f.markDirty(addr)
		}
		return nil

	case ops.RegisterKey:
		a, addr, err := f.agentByIRI(ns, v.AgentIRI)
		if err != nil {
			return &Outcome{Kind: ErrMalformedPayload, OpIndex: idx, Message: err.Error()}
		}
		next, historical, changed, cerr := provenance.RotateIdentity(a.CurrentIdentity, a.HistoricalIdentities, v.AgentIRI, v.PublicKeyHex)
		if cerr != nil {
			return contradictionOutcome(idx, v.AgentIRI, cerr)
		}
		if changed {
			a.CurrentIdentity = next
			a.HistoricalIdentities = historical
			f.markDirty(addr)
		}
		return nil

	case ops.HasAttachment:
		e, addr, err := f.entityByIRI(ns, v.EntityIRI)
		if err != nil {
			return &Outcome{Kind: ErrMalformedPayload, OpIndex: idx, Message: err.Error()}
		}
		incoming := provenance.Attachment{
			EntityIRI: v.EntityIRI, SignedByIRI: v.SignedByIRI, Signature: v.Signature,
			SignedAt: v.SignedAt, Locator: v.Locator,
		}
		next, historical, changed, cerr := provenance.RotateAttachment(e.CurrentAttachment, e.HistoricalAttachments, incoming)
		if cerr != nil {
			return contradictionOutcome(idx, v.EntityIRI, cerr)
		}
		if changed {
			e.CurrentAttachment = next
			e.HistoricalAttachments = historical
			f.markDirty(addr)
		}
		return nil
	}

	return &Outcome{Kind: ErrMalformedPayload, OpIndex: idx, Message: fmt.Sprintf("unrecognized operation %T", op)}
}

func foldSetAttributes(f *foldState, idx int, ns iri.Namespace, v ops.SetAttributes) *Outcome {
	incoming := make(provenance.Attributes, len(v.Attributes))
	for k, av := range v.Attributes {
		val, err := attrValueToProvenance(av)
		if err != nil {
			return &Outcome{Kind: ErrMalformedPayload, OpIndex: idx, Message: err.Error()}
		}
		incoming[k] = val
	}

	targetIRIText := targetIRI(v.Target, v.ExternalID)

	var attrs *provenance.Attributes
	var domainType *string
	var addr string

	switch v.Target {
	case ops.TargetAgent:
		a, aAddr := f.agent(ns, v.ExternalID)
		attrs = &a.Attributes
		domainType = &a.DomainType
		addr = aAddr
	case ops.TargetActivity:
		a, aAddr := f.activity(ns, v.ExternalID)
		attrs = &a.Attributes
		domainType = &a.DomainType
		addr = aAddr
	case ops.TargetEntity:
		e, eAddr := f.entity(ns, v.ExternalID)
		attrs = &e.Attributes
		domainType = &e.DomainType
		addr = eAddr
	default:
		return &Outcome{Kind: ErrMalformedPayload, OpIndex: idx, Message: "unknown SetAttributes target"}
	}

	changed, cerr := provenance.MergeAttributes(*attrs, incoming)
	if cerr != nil {
		return contradictionOutcome(idx, targetIRIText, cerr)
	}
	nextType, typeChanged, cerr := provenance.MergeDomainType(*domainType, v.DomainType)
	if cerr != nil {
		return contradictionOutcome(idx, targetIRIText, cerr)
	}
	if typeChanged {
		*domainType = nextType
	}
	if changed || typeChanged {
		f.markDirty(addr)
	}
	return nil
}

func attrValueToProvenance(v ops.AttrValue) (provenance.Value, error) {
	switch v.Kind {
	case ops.AttrString:
		return provenance.StringValue(v.Str), nil
	case ops.AttrInt:
		return provenance.IntValue(v.Int), nil
	case ops.AttrBool:
		return provenance.BoolValue(v.Bool), nil
	case ops.AttrJSON:
		return provenance.JSONValue(v.JSON)
	default:
		return provenance.Value{}, fmt.Errorf("apply: unknown attribute value kind %d", v.Kind)
	}
}

func contradictionOutcome(idx int, targetIRI string, c *provenance.Contradiction) *Outcome {
	return &Outcome{Kind: ErrContradiction, OpIndex: idx, TargetIRI: targetIRI, Contradiction: c}
}

func hasAssociationEdge(edges []provenance.AssociationEdge, edge provenance.AssociationEdge) bool {
	for _, e := range edges {
		if e == edge {
			return true
		}
	}
	return false
}

func hasAttributionEdge(edges []provenance.AttributionEdge, edge provenance.AttributionEdge) bool {
	for _, e := range edges {
		if e == edge {
			return true
		}
	}
	return false
}
