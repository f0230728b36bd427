package main

import (
	"fmt"
	"os"

	"github.com/chronicleworks/chronicle-tp/internal/signing"
)

// resolveNodeKey loads the transaction processor's own signing key (spec.md
// §6.5's "transactor key", distinct from a batch header's own submitter
// transactor-public-key/signature). hexFlag takes precedence over
// deploy.transactor_key_hex's environment mapping; deploy.transactor_key_hex
// is Secret (internal/config.DeployKeys), so it is read directly from its
// environment variable rather than through chronicle.yaml.
func resolveNodeKey(hexFlag string) (*signing.PrivateKey, error) {
	hexKey := hexFlag
	if hexKey == "" {
		hexKey = os.Getenv("CHRONICLE_TRANSACTOR_KEY")
	}
	if hexKey == "" {
		return nil, fmt.Errorf("node key required: pass --node-key or set CHRONICLE_TRANSACTOR_KEY")
	}
	return signing.PrivateKeyFromHex(hexKey)
}
