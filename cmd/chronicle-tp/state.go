package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/chronicleworks/chronicle-tp/internal/host"
)

// loadState reads a state file written by saveState into a fresh host.Store.
// A missing file is treated as an empty store, matching config.GetYamlConfig's
// "missing key means zero value" convention in internal/config.
func loadState(path string) (*host.Store, error) {
	store := host.NewStore()
	if path == "" {
		return store, nil
	}

	data, err := os.ReadFile(path) // #nosec G304 - path is operator-supplied CLI input
	if err != nil {
		if os.IsNotExist(err) {
			return store, nil
		}
		return nil, fmt.Errorf("chronicle-tp: reading state file: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("chronicle-tp: parsing state file: %w", err)
	}

	writes := make(map[string][]byte, len(raw))
	for addr, value := range raw {
		writes[addr] = []byte(value)
	}
	store.Apply(writes)
	return store, nil
}

// saveState writes every address in store to path as a JSON object, sorted
// by Go's own map marshaling (not ledger order -- this file is a CLI
// convenience, not a wire format spec.md defines).
func saveState(path string, store *host.Store) error {
	if path == "" {
		return nil
	}

	snap := store.Snapshot()
	raw := make(map[string]json.RawMessage, len(snap))
	for addr, value := range snap {
		raw[addr] = json.RawMessage(value)
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("chronicle-tp: marshaling state file: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("chronicle-tp: writing state file: %w", err)
	}
	return nil
}
