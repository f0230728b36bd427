package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chronicleworks/chronicle-tp/internal/commitevent"
	"github.com/chronicleworks/chronicle-tp/internal/config"
	"github.com/chronicleworks/chronicle-tp/internal/host"
	"github.com/chronicleworks/chronicle-tp/internal/policy"
)

var (
	applyHeaderPath   string
	applyBodyPath     string
	applyStatePath    string
	applyNodeKeyHex   string
	applyAnonymousSet bool
	applyAnonymous    bool
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a signed batch against a local state file",
	Long:  `Runs the apply engine's full seven-step pipeline (decode, verify, footprint, load, fold, serialize, build commit event) against a state file, the way a deployed transaction processor applies a batch to ledger state. On a successful commit the state file is updated in place.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		headerJSON, err := os.ReadFile(applyHeaderPath) // #nosec G304 - operator-supplied CLI input
		if err != nil {
			return fmt.Errorf("chronicle-tp: reading header: %w", err)
		}
		bodyJSON, err := os.ReadFile(applyBodyPath) // #nosec G304 - operator-supplied CLI input
		if err != nil {
			return fmt.Errorf("chronicle-tp: reading body: %w", err)
		}

		nodeKey, err := resolveNodeKey(applyNodeKeyHex)
		if err != nil {
			return err
		}

		store, err := loadState(applyStatePath)
		if err != nil {
			return err
		}

		anonymousAllowed := config.GetYamlConfig(config.ShortKey("deploy.anonymous_identity_allowed")) == "true"
		if applyAnonymousSet {
			anonymousAllowed = applyAnonymous
		}
		decision := policy.NewAllowList(anonymousAllowed)

		sched := host.NewScheduler(store, nodeKey, decision)
		result := sched.RunOne(host.Job{HeaderJSON: headerJSON, BodyJSON: bodyJSON})

		if result.Outcome.Committed() {
			if err := saveState(applyStatePath, store); err != nil {
				return err
			}
		}

		return printApplyResult(result)
	},
}

func printApplyResult(result host.Result) error {
	if result.Envelope != nil {
		data, err := commitevent.Marshal(result.Envelope)
		if err != nil {
			return fmt.Errorf("chronicle-tp: marshaling commit event: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	if jsonOutput {
		out := struct {
			Kind    string `json:"kind"`
			Message string `json:"message,omitempty"`
			OpIndex int    `json:"opIndex,omitempty"`
		}{Kind: result.Outcome.Kind.String(), Message: result.Outcome.Message, OpIndex: result.Outcome.OpIndex}
		data, err := json.Marshal(out)
		if err != nil {
			return fmt.Errorf("chronicle-tp: marshaling outcome: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("%s: %s\n", result.Outcome.Kind, result.Outcome.Message)
	return nil
}

func init() {
	applyCmd.Flags().StringVar(&applyHeaderPath, "header", "", "Path to the batch header JSON file")
	applyCmd.Flags().StringVar(&applyBodyPath, "body", "", "Path to the JSON-LD batch body file")
	applyCmd.Flags().StringVar(&applyStatePath, "state", "", "Path to the state file (created on first commit if missing)")
	applyCmd.Flags().StringVar(&applyNodeKeyHex, "node-key", "", "Hex-encoded transactor private key (default: $CHRONICLE_TRANSACTOR_KEY)")
	applyCmd.Flags().BoolVar(&applyAnonymous, "anonymous-allowed", false, "Override deploy.anonymous_identity_allowed for this run")
	_ = applyCmd.MarkFlagRequired("header")
	_ = applyCmd.MarkFlagRequired("body")

	applyCmd.PreRun = func(cmd *cobra.Command, args []string) {
		applyAnonymousSet = cmd.Flags().Changed("anonymous-allowed")
	}
}
