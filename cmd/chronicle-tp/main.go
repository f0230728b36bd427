// Command chronicle-tp is the transaction-processor CLI: it decodes,
// verifies, and applies provenance batches against a local state file, the
// way a deployed transaction processor would apply them against the
// ledger. Grounded on the teacher's cmd/bd/main.go cobra wiring (persistent
// verbosity flags applied in PersistentPreRun before any subcommand runs),
// trimmed to chronicle's much smaller command surface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chronicleworks/chronicle-tp/internal/config"
	"github.com/chronicleworks/chronicle-tp/internal/debug"
)

var (
	verboseFlag bool
	quietFlag   bool
	jsonOutput  bool
)

var rootCmd = &cobra.Command{
	Use:   "chronicle-tp",
	Short: "chronicle-tp - deterministic provenance transaction processor",
	Long:  `Applies signed provenance batches to ledger state and emits the resulting commit event, the way a deployed transaction processor would.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug.SetVerbose(verboseFlag)
		debug.SetQuiet(quietFlag)

		cwd, err := os.Getwd()
		if err == nil {
			if err := config.InitViper(cwd); err != nil {
				debug.Logf("chronicle-tp: config: %v\n", err)
			}
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output machine-readable JSON")

	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(canonicalizeCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(keygenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
