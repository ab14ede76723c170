package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// envRef matches ${VAR} references in the raw YAML. Only the braced
// form is recognized; a bare $ passes through untouched.
var envRef = regexp.MustCompile(`\$\{(\w+)\}`)

// Load reads the YAML file at path into cfg. ${VAR} references are
// replaced with environment variable values before parsing, so the
// client secret and refresh token never have to live in the file
// itself. Callers apply defaults and validate afterwards.
func Load(path string, cfg *BaseConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := expandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// expandEnv substitutes each ${VAR} with its environment value. Unset
// variables expand to the empty string, the same way a shell would.
func expandEnv(content string) string {
	return envRef.ReplaceAllStringFunc(content, func(ref string) string {
		return os.Getenv(ref[2 : len(ref)-1])
	})
}
