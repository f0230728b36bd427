package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var inspectStatePath string

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print every ledger address and record in a state file",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadState(inspectStatePath)
		if err != nil {
			return err
		}

		snap := store.Snapshot()
		if jsonOutput {
			out := make(map[string]json.RawMessage, len(snap))
			for addr, value := range snap {
				out[addr] = json.RawMessage(value)
			}
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return fmt.Errorf("chronicle-tp: marshaling snapshot: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		for addr, value := range snap {
			fmt.Printf("%s  %s\n", addr, string(value))
		}
		return nil
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectStatePath, "state", "", "Path to the state file (default: empty store)")
}
