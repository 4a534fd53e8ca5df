package token

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config describes how to reach a token. It is passed explicitly to
// Open; nothing in this package reads configuration from the process
// environment except the PIN indirection below.
//
// Example:
//
//	lib: /usr/lib/utimaco/libcs_pkcs11_R3.so
//	token: workflow
//	pin_env: TOKEN_PIN
//	dialect: utimaco
//	label: signing-key
type Config struct {
	// Lib is the path to the PKCS#11 shared library.
	Lib string `yaml:"lib"`

	// Token selects the slot by token label. Ignored when Slot is set.
	Token string `yaml:"token,omitempty"`

	// Slot selects the slot by ID. Optional; label match is the default.
	Slot *uint `yaml:"slot,omitempty"`

	// PinEnv names the environment variable holding the user PIN.
	// The PIN itself never appears in configuration files.
	PinEnv string `yaml:"pin_env"`

	// Dialect is "utimaco" (default) or "standard".
	Dialect string `yaml:"dialect,omitempty"`

	// Label is the default key label for commands that take one.
	Label string `yaml:"label,omitempty"`

	// AuditLog, when set, appends hash-chained audit events to this file.
	AuditLog string `yaml:"audit_log,omitempty"`
}

// LoadConfig reads and validates a YAML token configuration.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse token config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the config is usable.
func (c *Config) Validate() error {
	if c.Lib == "" {
		return fmt.Errorf("token config: lib is required")
	}
	if c.Token == "" && c.Slot == nil {
		return fmt.Errorf("token config: token label or slot is required")
	}
	if c.PinEnv == "" {
		return fmt.Errorf("token config: pin_env is required")
	}
	if _, err := ParseDialect(c.Dialect); err != nil {
		return fmt.Errorf("token config: %w", err)
	}
	return nil
}

// GetPIN resolves the user PIN from the configured environment variable.
func (c *Config) GetPIN() (string, error) {
	pin := os.Getenv(c.PinEnv)
	if pin == "" {
		return "", fmt.Errorf("environment variable %s is not set or empty", c.PinEnv)
	}
	return pin, nil
}
