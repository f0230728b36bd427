package identity

import (
	"encoding/json"
	"fmt"
)

// wireClaim is the JSON wire shape for a Claim, used in the batch header
// (spec.md §6.1, §6.3).
type wireClaim struct {
	Kind       string          `json:"kind"`
	Claims     json.RawMessage `json:"claims,omitempty"`
	ExternalID string          `json:"externalId,omitempty"`
}

// Marshal serializes a Claim to its wire form.
func Marshal(c Claim) ([]byte, error) {
	return json.Marshal(wireClaim{
		Kind:       c.Kind.String(),
		Claims:     c.Claims,
		ExternalID: c.ExternalID,
	})
}

// Unmarshal parses a wire-form identity claim.
func Unmarshal(data []byte) (Claim, error) {
	var w wireClaim
	if err := json.Unmarshal(data, &w); err != nil {
		return Claim{}, fmt.Errorf("identity: unmarshaling claim: %w", err)
	}
	switch w.Kind {
	case "SystemOperator":
		return SystemOperator(), nil
	case "VerifiableClaims":
		return NewVerifiableClaims(w.Claims, w.ExternalID), nil
	case "Anonymous":
		return Anonymous(), nil
	default:
		return Claim{}, fmt.Errorf("identity: unknown claim kind %q", w.Kind)
	}
}
