// Package config defines chronicle's deployment configuration surface:
// a typed registry of deploy.* keys (env var mapping, required/secret/
// validate fields), loaded via viper and overridable by environment
// variables. Grounded on the teacher's internal/config/deploy.go
// DeployKey registry, kept close to its shape and rewritten for
// chronicle's own keys.
package config

import (
	"fmt"
	"strconv"
	"strings"
)

// DeployKey describes a deploy.* configuration key.
type DeployKey struct {
	Key         string // Full key name (e.g., "deploy.nats_url")
	Description string
	EnvVar      string // empty = no env mapping
	Secret      bool   // if true, value must come from the host's secret store, not config
	Required    bool   // if true, the process cannot start without this
	Default     string
	Validate    func(string) error
}

// DeployKeys defines all valid deploy.* configuration keys for the
// chronicle transaction processor and its ambient services.
var DeployKeys = []DeployKey{
	{
		Key:         "deploy.family_prefix",
		Description: "6-character hex ledger address family prefix",
		EnvVar:      "CHRONICLE_FAMILY_PREFIX",
		Default:     "a7b3c9",
		Validate:    validateHexPrefix,
	},
	{
		Key:         "deploy.transactor_key_hex",
		Description: "32-byte hex-encoded transactor private key",
		EnvVar:      "CHRONICLE_TRANSACTOR_KEY",
		Secret:      true,
		Required:    true,
	},
	{
		Key:         "deploy.policy_bundle_address",
		Description: "Ledger address the policy hook reads its bundle from",
		EnvVar:      "CHRONICLE_POLICY_BUNDLE_ADDRESS",
	},
	{
		Key:         "deploy.anonymous_identity_allowed",
		Description: "Whether batches with an Anonymous identity claim are accepted",
		EnvVar:      "CHRONICLE_ANONYMOUS_ALLOWED",
		Default:     "false",
		Validate:    validateBool,
	},
	{
		Key:         "deploy.nats_url",
		Description: "NATS server URL for commit event publishing",
		EnvVar:      "CHRONICLE_NATS_URL",
		Default:     "nats://127.0.0.1:4222",
	},
	{
		Key:         "deploy.nats_stream",
		Description: "JetStream stream name commit events are published to",
		EnvVar:      "CHRONICLE_NATS_STREAM",
		Default:     "CHRONICLE_COMMITS",
	},
	{
		Key:         "deploy.projection_dsn",
		Description: "SQLite DSN for the commit-event projection store",
		EnvVar:      "CHRONICLE_PROJECTION_DSN",
		Default:     "file:chronicle-projection.db",
	},
	{
		Key:         "deploy.log_level",
		Description: "Log level (debug, info, warn, error)",
		EnvVar:      "CHRONICLE_LOG_LEVEL",
		Default:     "info",
		Validate:    validateLogLevel,
	},
	{
		Key:         "deploy.log_json",
		Description: "Enable JSON structured logging",
		EnvVar:      "CHRONICLE_LOG_JSON",
		Default:     "false",
		Validate:    validateBool,
	},
	{
		Key:         "deploy.max_batch_operations",
		Description: "Host-enforced cap on operations per batch",
		EnvVar:      "CHRONICLE_MAX_BATCH_OPERATIONS",
		Default:     "256",
		Validate:    validatePositiveInt,
	},
}

// deployKeyMap is a lookup table built from DeployKeys.
var deployKeyMap map[string]*DeployKey

func init() {
	deployKeyMap = make(map[string]*DeployKey, len(DeployKeys))
	for i := range DeployKeys {
		deployKeyMap[DeployKeys[i].Key] = &DeployKeys[i]
	}
}

// IsDeployKey returns true if the key is in the deploy.* namespace.
func IsDeployKey(key string) bool {
	return strings.HasPrefix(key, "deploy.")
}

// LookupDeployKey returns the DeployKey definition if key is a known
// deploy.* key, or nil.
func LookupDeployKey(key string) *DeployKey {
	return deployKeyMap[key]
}

// ValidateDeployKey checks whether a deploy.* key is known and the value is
// valid.
func ValidateDeployKey(key, value string) error {
	dk := deployKeyMap[key]
	if dk == nil {
		known := make([]string, 0, len(DeployKeys))
		for _, k := range DeployKeys {
			known = append(known, k.Key)
		}
		return fmt.Errorf("unknown deploy key %q; valid keys: %s", key, strings.Join(known, ", "))
	}
	if dk.Secret {
		return fmt.Errorf("key %q is a secret and must not be stored in config", key)
	}
	if dk.Validate != nil {
		if err := dk.Validate(value); err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
	}
	return nil
}

// DeployKeyEnvMap returns a mapping from deploy.* key to environment
// variable name.
func DeployKeyEnvMap() map[string]string {
	m := make(map[string]string, len(DeployKeys))
	for _, dk := range DeployKeys {
		if dk.EnvVar != "" {
			m[dk.Key] = dk.EnvVar
		}
	}
	return m
}

// Validation helpers

func validateHexPrefix(value string) error {
	if len(value) != 6 {
		return fmt.Errorf("must be 6 hex characters, got %q", value)
	}
	for _, c := range strings.ToLower(value) {
		if !(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'f') {
			return fmt.Errorf("must be hex, got %q", value)
		}
	}
	return nil
}

func validateLogLevel(value string) error {
	switch strings.ToLower(value) {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("must be one of: debug, info, warn, error; got %q", value)
	}
}

func validateBool(value string) error {
	switch strings.ToLower(value) {
	case "true", "false", "1", "0", "yes", "no":
		return nil
	default:
		return fmt.Errorf("must be true or false, got %q", value)
	}
}

func validatePositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be a number, got %q", value)
	}
	if n <= 0 {
		return fmt.Errorf("must be positive, got %d", n)
	}
	return nil
}
