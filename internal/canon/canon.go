// Package canon implements the canonicalization algorithm spec.md §6.1
// requires for the wire format: predicate ordering alphabetical by full
// IRI, blank-node labels reassigned in depth-first order, strings
// NFC-normalized, numbers in shortest round-trip decimal form. Two batches
// with the same canonical form share a batch-id.
//
// golang.org/x/text is pulled in transitively across the whole retrieval
// pack (viper/cobra's dependency graph in the teacher); this package
// promotes unicode/norm to a direct, exercised dependency instead of
// leaving it indirect.
package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"golang.org/x/text/unicode/norm"
)

// OperationTypeNS is the namespace operation-type and field-predicate URIs
// are drawn from (spec.md §6.1).
const OperationTypeNS = "http://btp.works/chronicleoperations/ns#"

// ResourceNS is the namespace resource IRIs are drawn from in long form.
const ResourceNS = "http://btp.works/chronicle/ns#"

// Node is one JSON-LD node in a batch's @graph array: an operation type URI
// plus its fields, represented generically so canonicalization doesn't need
// to know the operation schema (that's internal/ops's job on decode).
type Node struct {
	Type   string
	Fields map[string]interface{}
	// BlankID is the node's blank-node label prior to DFS relabeling, empty
	// if the node is not a blank node (has a concrete IRI identity instead).
	BlankID string
}

// Document is a batch body: an ordered @graph array of nodes, prior to
// canonical relabeling.
type Document struct {
	Graph []Node
}

// Canonicalize produces the canonical byte representation of doc: NFC
// normalization of all string values, predicate-alphabetical field
// ordering, shortest round-trip decimal numbers, and depth-first blank-node
// relabeling (b0, b1, b2, ... in first-DFS-visit order).
func Canonicalize(doc Document) ([]byte, error) {
	relabel := relabelBlankNodes(doc.Graph)

	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, node := range doc.Graph {
		if i > 0 {
			buf.WriteByte(',')
		}
		encoded, err := canonicalizeNode(node, relabel)
		if err != nil {
			return nil, fmt.Errorf("canon: node %d: %w", i, err)
		}
		buf.Write(encoded)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// relabelBlankNodes walks graph in order and assigns each distinct BlankID a
// fresh "bN" label in first-visit (depth-first, and since nodes are a flat
// list here, simply list-order) order.
func relabelBlankNodes(graph []Node) map[string]string {
	relabel := make(map[string]string)
	next := 0
	for _, node := range graph {
		if node.BlankID == "" {
			continue
		}
		if _, seen := relabel[node.BlankID]; seen {
			continue
		}
		relabel[node.BlankID] = fmt.Sprintf("b%d", next)
		next++
	}
	return relabel
}

func canonicalizeNode(node Node, relabel map[string]string) ([]byte, error) {
	keys := make([]string, 0, len(node.Fields))
	for k := range node.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	buf.WriteString(`"@type":`)
	typeBytes, err := json.Marshal(node.Type)
	if err != nil {
		return nil, err
	}
	buf.Write(typeBytes)

	if node.BlankID != "" {
		buf.WriteString(`,"@id":`)
		id, err := json.Marshal(relabel[node.BlankID])
		if err != nil {
			return nil, err
		}
		buf.Write(id)
	}

	for _, k := range keys {
		buf.WriteByte(',')
		keyBytes, err := json.Marshal(NFC(k))
		if err != nil {
			return nil, err
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := canonicalizeValue(node.Fields[k])
		if err != nil {
			return nil, err
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func canonicalizeValue(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case string:
		return json.Marshal(NFC(t))
	case map[string]interface{}:
		out := make(map[string]json.RawMessage, len(t))
		for k, e := range t {
			b, err := canonicalizeValue(e)
			if err != nil {
				return nil, err
			}
			out[NFC(k)] = b
		}
		return json.Marshal(out)
	case []interface{}:
		out := make([]json.RawMessage, len(t))
		for i, e := range t {
			b, err := canonicalizeValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = b
		}
		return json.Marshal(out)
	default:
		return json.Marshal(t)
	}
}

// NFC normalizes s to Unicode Normalization Form C, as spec.md §6.1
// requires for every string in the canonical form.
func NFC(s string) string {
	return norm.NFC.String(s)
}

// BatchID computes the batch-id: hex of the SHA-256 digest of the canonical
// JSON-LD body bytes (spec.md §6.1).
func BatchID(canonicalBody []byte) string {
	digest := sha256.Sum256(canonicalBody)
	return hex.EncodeToString(digest[:])
}
