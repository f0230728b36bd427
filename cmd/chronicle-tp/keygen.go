package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chronicleworks/chronicle-tp/internal/signing"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a secp256k1 keypair for local testing",
	Long:  `Generates a new private key, suitable for CHRONICLE_TRANSACTOR_KEY or a batch header's transactor-public-key/transactor-signature during local development. Production key generation and storage is out of scope here.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := signing.GeneratePrivateKey()
		if err != nil {
			return fmt.Errorf("chronicle-tp: generating key: %w", err)
		}
		fmt.Printf("private-key: %s\n", hex.EncodeToString(key.ScalarBytes()))
		fmt.Printf("public-key:  %s\n", key.PublicKeyHex())
		return nil
	},
}
