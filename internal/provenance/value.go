package provenance

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ValueKind discriminates the four attribute value shapes spec.md §3.2
// allows: string, signed 64-bit integer, boolean, JSON document. Represented
// as a closed Go sum type rather than interface{} so merge logic is an
// exhaustive switch, matching the teacher's preference for explicit enums
// over any (storage.OrphanHandling).
type ValueKind int

const (
	ValueString ValueKind = iota
	ValueInt
	ValueBool
	ValueJSON
)

func (k ValueKind) String() string {
	switch k {
	case ValueString:
		return "string"
	case ValueInt:
		return "int"
	case ValueBool:
		return "bool"
	case ValueJSON:
		return "json"
	default:
		return "unknown"
	}
}

// Value is a single attribute value. Only the field matching Kind is
// meaningful.
type Value struct {
	Kind ValueKind
	Str  string
	Int  int64
	Bool bool
	// JSON holds a canonicalized JSON document: object keys sorted,
	// numbers in shortest round-trip decimal form. CanonicalizeJSON
	// produces values in this form; construct Value{Kind: ValueJSON} only
	// through it so Equal's byte comparison is meaningful.
	JSON string
}

func StringValue(s string) Value { return Value{Kind: ValueString, Str: s} }
func IntValue(i int64) Value     { return Value{Kind: ValueInt, Int: i} }
func BoolValue(b bool) Value     { return Value{Kind: ValueBool, Bool: b} }

// JSONValue canonicalizes doc (sorted object keys, compact separators) and
// returns the resulting Value, or an error if doc is not valid JSON.
func JSONValue(doc string) (Value, error) {
	canon, err := CanonicalizeJSON(doc)
	if err != nil {
		return Value{}, err
	}
	return Value{Kind: ValueJSON, JSON: canon}, nil
}

// Equal reports structural equality after canonicalization. Two JSON values
// are equal iff their canonical forms are byte-identical.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case ValueString:
		return v.Str == other.Str
	case ValueInt:
		return v.Int == other.Int
	case ValueBool:
		return v.Bool == other.Bool
	case ValueJSON:
		return v.JSON == other.JSON
	default:
		return false
	}
}

// CanonicalizeJSON re-encodes doc with object keys sorted alphabetically and
// numbers in shortest round-trip decimal form: numbers decode to float64 and
// encoding/json writes each back with the fewest digits that parse to the
// same float64, so 1.0, 1e0 and 1 all become 1. Integers beyond 2^53 lose
// precision in the float64 step. json.Marshal sorts map[string]interface{}
// keys alphabetically by definition, so decoding into interface{} and
// re-marshaling is sufficient; no separate key-sort pass is needed. Grounded
// on the teacher's storage.NormalizeMetadataValue validate-then-store idiom.
func CanonicalizeJSON(doc string) (string, error) {
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader([]byte(doc)))
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("provenance: invalid json document: %w", err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("provenance: re-encoding canonical json: %w", err)
	}
	return string(out), nil
}
