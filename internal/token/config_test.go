package token

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestU_Config_LoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.yaml")
	yaml := `
module: /usr/lib/softhsm/libsofthsm2.so
token: test-token
pin_env: TEST_TOKEN_PIN
timeout: 3s
recreate_session: true
`
	if err := os.WriteFile(path, []byte(yaml), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TEST_TOKEN_PIN", "1234")
	t.Setenv("PKCS11_MODULE", "")
	t.Setenv("PKCS11_TOKEN", "")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Module != "/usr/lib/softhsm/libsofthsm2.so" {
		t.Errorf("module = %q", cfg.Module)
	}
	if cfg.Token != "test-token" {
		t.Errorf("token = %q", cfg.Token)
	}
	if cfg.PIN != "1234" {
		t.Errorf("PIN not resolved from pin_env: %q", cfg.PIN)
	}
	if cfg.Timeout != 3*time.Second {
		t.Errorf("timeout = %s", cfg.Timeout)
	}
	if !cfg.RecreateSession {
		t.Error("recreate_session not set")
	}
	if cfg.SentinelLabel != SentinelKeyLabel {
		t.Errorf("sentinel label = %q, want default", cfg.SentinelLabel)
	}
}

func TestU_Config_Defaults(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()
	if cfg.Timeout != DefaultTimeout {
		t.Errorf("timeout = %s, want %s", cfg.Timeout, DefaultTimeout)
	}
	if cfg.SentinelLabel != SentinelKeyLabel {
		t.Errorf("sentinel label = %q, want %q", cfg.SentinelLabel, SentinelKeyLabel)
	}
}

func TestU_Config_FromEnv(t *testing.T) {
	t.Setenv("PKCS11_MODULE", "/opt/lib/pkcs11.so")
	t.Setenv("PKCS11_TOKEN", "prod")
	t.Setenv("PKCS11_PIN", "0000")
	t.Setenv("PKCS11_RECREATE_SESSION", "true")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	if cfg.Module != "/opt/lib/pkcs11.so" || cfg.Token != "prod" || cfg.PIN != "0000" {
		t.Errorf("env not applied: %+v", cfg)
	}
	if !cfg.RecreateSession {
		t.Error("PKCS11_RECREATE_SESSION not applied")
	}
}

func TestU_Config_Validate(t *testing.T) {
	t.Setenv("PKCS11_MODULE", "")
	t.Setenv("PKCS11_PIN", "")

	var cfg Config
	cfg.applyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error without module")
	}

	cfg.Module = "/lib/p11.so"
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error without PIN")
	}

	cfg.PIN = "1234"
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid local config rejected: %v", err)
	}

	// A base URL alone is enough for remote mode.
	remote := Config{BaseURL: "http://localhost:8005"}
	if err := remote.Validate(); err != nil {
		t.Errorf("valid remote config rejected: %v", err)
	}
}
