package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chronicleworks/chronicle-tp/internal/apply"
	"github.com/chronicleworks/chronicle-tp/internal/canon"
)

var canonicalizeBodyPath string

var canonicalizeCmd = &cobra.Command{
	Use:   "canonicalize",
	Short: "Canonicalize a batch body and print its batch-id",
	Long:  `Parses a JSON-LD @graph batch body, canonicalizes it (predicate-sorted, NFC-normalized, blank nodes relabeled in DFS order), and prints the canonical bytes plus the batch-id a matching header must carry.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := os.ReadFile(canonicalizeBodyPath) // #nosec G304 - operator-supplied CLI input
		if err != nil {
			return fmt.Errorf("chronicle-tp: reading body: %w", err)
		}

		doc, err := apply.ParseDocument(body)
		if err != nil {
			return fmt.Errorf("chronicle-tp: parsing body: %w", err)
		}

		canonical, err := canon.Canonicalize(doc)
		if err != nil {
			return fmt.Errorf("chronicle-tp: canonicalizing: %w", err)
		}

		fmt.Println(string(canonical))
		fmt.Fprintf(os.Stderr, "batch-id: %s\n", canon.BatchID(canonical))
		return nil
	},
}

func init() {
	canonicalizeCmd.Flags().StringVar(&canonicalizeBodyPath, "body", "", "Path to the JSON-LD batch body file")
	_ = canonicalizeCmd.MarkFlagRequired("body")
}
