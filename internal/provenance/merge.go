// Merge logic implementing spec.md §4.4's pseudocode: merge_attributes,
// merge_domain_type, merge_instant, merge_set_relation, rotate_identity.
// Grounded on the teacher's internal/spec delta-comparison shape
// (ComputeDelta: field-by-field compare producing typed Changed entries),
// generalized here from string-diffing to full invariant enforcement with
// typed evidence returned to the caller instead of just logged.
package provenance

import "time"

// FieldKind names the §3.3 invariant a Contradiction violates, echoed back
// to submitters per spec.md §4.5 step 5 and §7.
type FieldKind int

const (
	FieldAttribute FieldKind = iota
	FieldDomainType
	FieldInstant
	FieldIdentityReplay
	FieldNamespace
)

func (f FieldKind) String() string {
	switch f {
	case FieldAttribute:
		return "attribute"
	case FieldDomainType:
		return "domain-type"
	case FieldInstant:
		return "instant"
	case FieldIdentityReplay:
		return "identity-replay"
	case FieldNamespace:
		return "namespace"
	default:
		return "unknown"
	}
}

// Contradiction is the evidence returned when a merge would violate an
// invariant in spec.md §3.3. Prior/Incoming are rendered as strings for
// transport in the commit event (spec.md §6.5); callers that need the
// typed Value can re-derive it from the operation that produced Incoming.
type Contradiction struct {
	Field    FieldKind
	Key      string // attribute key, or empty for domain-type/instant/identity
	Prior    string
	Incoming string
}

func (c *Contradiction) Error() string {
	if c.Key != "" {
		return "contradiction: " + c.Field.String() + " " + c.Key + ": " + c.Prior + " != " + c.Incoming
	}
	return "contradiction: " + c.Field.String() + ": " + c.Prior + " != " + c.Incoming
}

func newContradiction(field FieldKind, key, prior, incoming string) *Contradiction {
	return &Contradiction{Field: field, Key: key, Prior: prior, Incoming: incoming}
}

// NewNamespaceContradiction builds the evidence for invariant 6 (every
// relation edge must connect records in the same namespace): prior is the
// namespace a record was actually created under, incoming is the namespace
// the relation operation itself named.
func NewNamespaceContradiction(prior, incoming string) *Contradiction {
	return newContradiction(FieldNamespace, "", prior, incoming)
}

// MergeAttributes applies invariant 2 (monotone attribute values): for each
// incoming key not yet present, record it; for a key already present with a
// different value, return a Contradiction and leave prior unmodified past
// the conflicting key. Returns whether any change was actually made
// (needed for NoChange detection).
func MergeAttributes(prior Attributes, incoming Attributes) (changed bool, err *Contradiction) {
	for key, value := range incoming {
		existing, present := prior[key]
		if present {
			if !existing.Equal(value) {
				return changed, newContradiction(FieldAttribute, key, renderValue(existing), renderValue(value))
			}
			continue
		}
		prior[key] = value
		changed = true
	}
	return changed, nil
}

func renderValue(v Value) string {
	switch v.Kind {
	case ValueString:
		return v.Str
	case ValueInt:
		return formatInt(v.Int)
	case ValueBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case ValueJSON:
		return v.JSON
	default:
		return ""
	}
}

func formatInt(i int64) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// MergeDomainType applies invariant 4: once set to a non-empty value, a
// domain-type may not change. incoming == "" means "not asserted" and is a
// no-op.
func MergeDomainType(prior string, incoming string) (next string, changed bool, err *Contradiction) {
	if incoming == "" {
		return prior, false, nil
	}
	if prior == "" {
		return incoming, true, nil
	}
	if prior != incoming {
		return prior, false, newContradiction(FieldDomainType, "", prior, incoming)
	}
	return prior, false, nil
}

// MergeInstant applies invariant 3 (monotone timestamps) to a single slot
// (started-at or ended-at). slot == nil means unset.
func MergeInstant(slot *time.Time, incoming time.Time) (next *time.Time, changed bool, err *Contradiction) {
	if slot == nil {
		t := incoming
		return &t, true, nil
	}
	if !slot.Equal(incoming) {
		return slot, false, newContradiction(FieldInstant, "", slot.Format(time.RFC3339Nano), incoming.Format(time.RFC3339Nano))
	}
	return slot, false, nil
}

// MergeStringSet applies invariant 5 (idempotent set-valued relations):
// appends edge to slot unless already present, comparing with ==.
func MergeStringSet(slot []string, edge string) (next []string, changed bool) {
	for _, existing := range slot {
		if existing == edge {
			return slot, false
		}
	}
	return append(slot, edge), true
}

// RotateIdentity applies invariant 7 for agent identity rotation: the
// first key becomes current; re-registering the current key is a no-op;
// registering a key that is already historical is a contradiction
// ("identity-replay"); otherwise the current key is demoted to historical
// (append-only) and newKey becomes current.
func RotateIdentity(current *Identity, historical []Identity, agentIRI, newKeyHex string) (nextCurrent *Identity, nextHistorical []Identity, changed bool, err *Contradiction) {
	if current == nil {
		return &Identity{AgentIRI: agentIRI, PublicKeyHex: newKeyHex}, historical, true, nil
	}
	if current.PublicKeyHex == newKeyHex {
		return current, historical, false, nil
	}
	for _, h := range historical {
		if h.PublicKeyHex == newKeyHex {
			return current, historical, false, newContradiction(FieldIdentityReplay, "", current.PublicKeyHex, newKeyHex)
		}
	}
	nextHistorical = append(append([]Identity{}, historical...), *current)
	return &Identity{AgentIRI: agentIRI, PublicKeyHex: newKeyHex}, nextHistorical, true, nil
}

// RotateAttachment is RotateIdentity's analogue for entity attachments
// (invariant 7, "same rule for entity attachments").
func RotateAttachment(current *Attachment, historical []Attachment, incoming Attachment) (nextCurrent *Attachment, nextHistorical []Attachment, changed bool, err *Contradiction) {
	if current == nil {
		a := incoming
		return &a, historical, true, nil
	}
	if current.Signature == incoming.Signature {
		return current, historical, false, nil
	}
	for _, h := range historical {
		if h.Signature == incoming.Signature {
			return current, historical, false, newContradiction(FieldIdentityReplay, "", current.Signature, incoming.Signature)
		}
	}
	nextHistorical = append(append([]Attachment{}, historical...), *current)
	a := incoming
	return &a, nextHistorical, true, nil
}
