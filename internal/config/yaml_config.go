package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// YamlOnlyKeys are configuration keys that must be stored in chronicle.yaml
// rather than passed as deploy.* secrets. These are startup settings read
// before a batch is processed, as opposed to deploy.transactor_key_hex and
// other Secret DeployKeys which must come from the environment only.
var YamlOnlyKeys = map[string]bool{
	"family-prefix":              true,
	"nats-url":                   true,
	"nats-stream":                true,
	"projection-dsn":             true,
	"anonymous-identity-allowed": true,
	"log-level":                  true,
	"log-json":                   true,
}

// IsYamlOnlyKey returns true if the given key should be stored in
// chronicle.yaml rather than supplied as a deploy.* secret.
func IsYamlOnlyKey(key string) bool {
	if YamlOnlyKeys[key] {
		return true
	}
	return strings.HasPrefix(key, "policy.")
}

// v is the process-wide viper instance backing GetYamlConfig. It is nil
// until InitViper is called, matching the teacher's lazy-init pattern where
// config reads before initialization return zero values rather than panic.
var v *viper.Viper

// ShortKey converts a full deploy.* key (e.g. "deploy.anonymous_identity_allowed")
// to the viper/chronicle.yaml key GetYamlConfig and SetYamlConfig use (e.g.
// "anonymous-identity-allowed"): the "deploy." prefix trimmed, underscores
// replaced with hyphens. Callers outside deploy.* keys may pass their key
// through unchanged.
func ShortKey(fullKey string) string {
	shortKey := strings.TrimPrefix(fullKey, "deploy.")
	return strings.ReplaceAll(shortKey, "_", "-")
}

// InitViper creates the package-level viper instance, binds every
// CHRONICLE_* environment variable named in DeployKeys, seeds defaults from
// the same registry, and reads chronicle.yaml from dir if present. Callers
// (the CLI's root command, typically) invoke this once at startup.
func InitViper(dir string) error {
	vp := viper.New()
	vp.SetConfigName("chronicle")
	vp.SetConfigType("yaml")
	vp.AddConfigPath(dir)

	for _, dk := range DeployKeys {
		shortKey := ShortKey(dk.Key)
		if dk.Default != "" {
			vp.SetDefault(shortKey, dk.Default)
		}
		if dk.EnvVar != "" {
			if err := vp.BindEnv(shortKey, dk.EnvVar); err != nil {
				return fmt.Errorf("config: binding %s to %s: %w", shortKey, dk.EnvVar, err)
			}
		}
	}

	if err := vp.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("config: reading chronicle.yaml: %w", err)
		}
	}

	v = vp
	return nil
}

// GetYamlConfig gets a configuration value from chronicle.yaml or its
// environment override. Returns empty string if v is uninitialized or the
// key is unset.
func GetYamlConfig(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// Set overrides a configuration key in the in-memory viper instance,
// without touching chronicle.yaml on disk. Used by tests and by
// in-process CLI state changes that should take effect immediately.
func Set(key string, value interface{}) {
	if v == nil {
		return
	}
	v.Set(key, value)
}

// SetYamlConfig sets a configuration value in the project's chronicle.yaml
// file. It handles both adding new keys and updating existing (possibly
// commented) keys.
func SetYamlConfig(key, value string) error {
	configPath, err := findProjectConfigYaml()
	if err != nil {
		return err
	}

	content, err := os.ReadFile(configPath) //nolint:gosec // configPath is from findProjectConfigYaml
	if err != nil {
		return fmt.Errorf("failed to read chronicle.yaml: %w", err)
	}

	newContent, err := updateYamlKey(string(content), key, value)
	if err != nil {
		return err
	}

	if err := os.WriteFile(configPath, []byte(newContent), 0600); err != nil { //nolint:gosec // configPath is validated
		return fmt.Errorf("failed to write chronicle.yaml: %w", err)
	}

	return nil
}

// findProjectConfigYaml finds the nearest chronicle.yaml by walking up from
// the current working directory.
func findProjectConfigYaml() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
		configPath := filepath.Join(dir, "chronicle.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
	}

	return "", fmt.Errorf("no chronicle.yaml found in %s or its parents", cwd)
}

// updateYamlKey updates a key in yaml content, handling commented-out keys.
// If the key exists (commented or not), it updates it in place.
// If the key doesn't exist, it appends it at the end.
//
//nolint:unparam // error return kept for future validation
func updateYamlKey(content, key, value string) (string, error) {
	formattedValue := formatYamlValue(value)
	newLine := fmt.Sprintf("%s: %s", key, formattedValue)

	keyPattern := regexp.MustCompile(`^(\s*)(#\s*)?` + regexp.QuoteMeta(key) + `\s*:`)

	found := false
	var result []string

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		if keyPattern.MatchString(line) {
			matches := keyPattern.FindStringSubmatch(line)
			indent := ""
			if len(matches) > 1 {
				indent = matches[1]
			}
			result = append(result, indent+newLine)
			found = true
		} else {
			result = append(result, line)
		}
	}

	if !found {
		if len(result) > 0 && result[len(result)-1] != "" {
			result = append(result, "")
		}
		result = append(result, newLine)
	}

	return strings.Join(result, "\n"), nil
}

// formatYamlValue formats a value appropriately for YAML.
func formatYamlValue(value string) string {
	lower := strings.ToLower(value)
	if lower == "true" || lower == "false" {
		return lower
	}

	if isNumeric(value) {
		return value
	}

	if isDuration(value) {
		return value
	}

	if needsQuoting(value) {
		return fmt.Sprintf("%q", value)
	}

	return value
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		if c == '-' && i == 0 {
			continue
		}
		if c == '.' {
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func isDuration(s string) bool {
	if len(s) < 2 {
		return false
	}
	suffix := s[len(s)-1]
	if suffix != 's' && suffix != 'm' && suffix != 'h' {
		return false
	}
	return isNumeric(s[:len(s)-1])
}

func needsQuoting(s string) bool {
	special := []string{":", "#", "[", "]", "{", "}", ",", "&", "*", "!", "|", ">", "'", "\"", "%", "@", "`"}
	for _, c := range special {
		if strings.Contains(s, c) {
			return true
		}
	}
	if strings.TrimSpace(s) != s {
		return true
	}
	return false
}
