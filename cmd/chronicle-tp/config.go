package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/chronicleworks/chronicle-tp/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit deployment configuration",
	Long: `Reads and writes the deploy.* configuration surface the transaction
processor is started with: chronicle.yaml for startup-time settings
(family-prefix, nats-url, anonymous-identity-allowed, ...) and
CHRONICLE_* environment variables as overrides. Secrets such as
deploy.transactor_key_hex are never read or written here.`,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		shortKey := key
		if config.IsDeployKey(key) {
			if dk := config.LookupDeployKey(key); dk != nil && dk.Secret {
				return fmt.Errorf("chronicle-tp: %q is a secret and is not read from config", key)
			}
			shortKey = config.ShortKey(key)
		}
		value := config.GetYamlConfig(shortKey)
		if jsonOutput {
			return printJSON(map[string]string{"key": key, "value": value})
		}
		if value == "" {
			fmt.Printf("%s (not set)\n", key)
			return nil
		}
		fmt.Println(value)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in chronicle.yaml",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		shortKey := key
		if config.IsDeployKey(key) {
			if err := config.ValidateDeployKey(key, value); err != nil {
				return fmt.Errorf("chronicle-tp: %w", err)
			}
			shortKey = config.ShortKey(key)
		}
		if !config.IsYamlOnlyKey(shortKey) {
			return fmt.Errorf("chronicle-tp: %q is not a chronicle.yaml-backed key", key)
		}
		if err := config.SetYamlConfig(shortKey, value); err != nil {
			return fmt.Errorf("chronicle-tp: %w", err)
		}
		config.Set(shortKey, value)

		if jsonOutput {
			return printJSON(map[string]string{"key": key, "value": value, "location": "chronicle.yaml"})
		}
		fmt.Printf("Set %s = %s (in chronicle.yaml)\n", key, value)
		return nil
	},
}

var configDeployKeysCmd = &cobra.Command{
	Use:   "deploy-keys",
	Short: "List all valid deploy.* configuration keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOutput {
			return printJSON(config.DeployKeys)
		}
		fmt.Println("Deploy configuration keys:")
		for _, dk := range config.DeployKeys {
			fmt.Printf("  %-32s %s\n", dk.Key, dk.Description)
			var details []string
			if dk.EnvVar != "" {
				details = append(details, "env: "+dk.EnvVar)
			}
			if dk.Default != "" {
				details = append(details, "default: "+dk.Default)
			}
			if dk.Secret {
				details = append(details, "secret")
			}
			if dk.Required {
				details = append(details, "required")
			}
			if len(details) > 0 {
				fmt.Printf("  %-32s (%s)\n", "", joinComma(details))
			}
		}
		return nil
	},
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("chronicle-tp: marshaling config output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// sortedKeys gives map-shaped config (YamlOnlyKeys, listed by yaml-keys) a
// stable ordering for human-readable output.
func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var configListYamlKeysCmd = &cobra.Command{
	Use:   "yaml-keys",
	Short: "List the keys that must be set in chronicle.yaml rather than as deploy.* secrets",
	RunE: func(cmd *cobra.Command, args []string) error {
		keys := sortedKeys(config.YamlOnlyKeys)
		if jsonOutput {
			return printJSON(keys)
		}
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", k, config.GetYamlConfig(k))
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configDeployKeysCmd)
	configCmd.AddCommand(configListYamlKeysCmd)
	rootCmd.AddCommand(configCmd)
}
