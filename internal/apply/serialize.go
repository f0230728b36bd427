package apply

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/chronicleworks/chronicle-tp/internal/iri"
	"github.com/chronicleworks/chronicle-tp/internal/provenance"
)

// Serialize emits one AddressedRecord per touched address (spec.md §4.5
// step 6): the canonical JSON-LD compacted bytes of the record now stored
// there. Untouched addresses are never emitted (step 7: "unchanged records
// are not echoed").
func Serialize(slice *Slice, touchedAddrs []string) ([]AddressedRecord, error) {
	out := make([]AddressedRecord, 0, len(touchedAddrs))
	for _, addr := range touchedAddrs {
		rec, err := serializeOne(slice, addr)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func serializeOne(slice *Slice, addr string) (AddressedRecord, error) {
	if ns, ok := slice.Namespaces[addr]; ok {
		u, err := uuid.Parse(ns.UUID)
		if err != nil {
			return AddressedRecord{}, fmt.Errorf("apply: serializing namespace at %s: %w", addr, err)
		}
		text := iri.BuildNamespace(iri.Namespace{ExternalID: ns.ExternalID, UUID: u})
		data, err := provenance.MarshalNamespace(*ns)
		if err != nil {
			return AddressedRecord{}, err
		}
		return AddressedRecord{Address: addr, IRI: text, JSON: string(data)}, nil
	}
	if a, ok := slice.Agents[addr]; ok {
		text := iri.BuildAgent(a.ExternalID)
		data, err := provenance.MarshalAgent(*a)
		if err != nil {
			return AddressedRecord{}, err
		}
		return AddressedRecord{Address: addr, IRI: text, JSON: string(data)}, nil
	}
	if a, ok := slice.Activities[addr]; ok {
		text := iri.BuildActivity(a.ExternalID)
		data, err := provenance.MarshalActivity(*a)
		if err != nil {
			return AddressedRecord{}, err
		}
		return AddressedRecord{Address: addr, IRI: text, JSON: string(data)}, nil
	}
	if e, ok := slice.Entities[addr]; ok {
		text := iri.BuildEntity(e.ExternalID)
		data, err := provenance.MarshalEntity(*e)
		if err != nil {
			return AddressedRecord{}, err
		}
		return AddressedRecord{Address: addr, IRI: text, JSON: string(data)}, nil
	}
	return AddressedRecord{}, fmt.Errorf("apply: touched address %s not found in any slice map", addr)
}
