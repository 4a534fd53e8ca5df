package token

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "token.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestU_LoadConfig(t *testing.T) {
	path := writeConfig(t, `
lib: /usr/lib/softhsm/libsofthsm2.so
token: workflow
pin_env: TOKEN_PIN
dialect: standard
label: signing-key
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Token != "workflow" || cfg.Label != "signing-key" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.Dialect != "standard" {
		t.Errorf("dialect = %q, want standard", cfg.Dialect)
	}
}

func TestU_LoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing lib", "token: t\npin_env: PIN\n"},
		{"missing token and slot", "lib: /lib.so\npin_env: PIN\n"},
		{"missing pin_env", "lib: /lib.so\ntoken: t\n"},
		{"bad dialect", "lib: /lib.so\ntoken: t\npin_env: PIN\ndialect: weird\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tt.content)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestU_GetPIN(t *testing.T) {
	cfg := &Config{PinEnv: "TOKENFORGE_TEST_PIN"}

	if _, err := cfg.GetPIN(); err == nil {
		t.Error("unset PIN variable must be an error")
	}

	t.Setenv("TOKENFORGE_TEST_PIN", "123456")
	pin, err := cfg.GetPIN()
	if err != nil {
		t.Fatalf("GetPIN: %v", err)
	}
	if pin != "123456" {
		t.Errorf("pin = %q", pin)
	}
}
