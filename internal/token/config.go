package token

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultTimeout bounds every health probe and forced reopen attempt.
const DefaultTimeout = 10 * time.Second

// SentinelKeyLabel is the label of the throwaway RSA key pair used by the
// health probe. It is generated on first probe and must never be used for
// anything else.
const SentinelKeyLabel = "test_pkcs11_device_do_not_use"

// Config describes how to reach a token. The zero value is not usable;
// load it from YAML or the environment.
type Config struct {
	// Module is the path to the PKCS#11 library (.so/.dylib/.dll).
	Module string `yaml:"module"`

	// Token identifies the token by label. When empty the first slot
	// with a token is used.
	Token string `yaml:"token"`

	// PinEnv names the environment variable holding the user PIN.
	PinEnv string `yaml:"pin_env"`

	// PIN is the resolved PIN. Populated from PinEnv; never stored in
	// the YAML file itself.
	PIN string `yaml:"-"`

	// Timeout bounds each health probe and forced reopen attempt.
	Timeout time.Duration `yaml:"timeout"`

	// RecreateSession enables the health probe and forced reopen before
	// every operation. When false the session is opened once and reused.
	RecreateSession bool `yaml:"recreate_session"`

	// BaseURL switches to remote mode: operations are delegated to an
	// HTTP endpoint instead of a local PKCS#11 module.
	BaseURL string `yaml:"base_url"`

	// SentinelLabel overrides the health probe key label.
	SentinelLabel string `yaml:"sentinel_label"`

	// AuditLog is an optional path for the append-only audit log.
	AuditLog string `yaml:"audit_log"`
}

// LoadConfig reads a YAML config file and applies environment overrides.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

// FromEnv builds a Config from environment variables alone.
func FromEnv() (Config, error) {
	var cfg Config
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PKCS11_MODULE"); v != "" {
		c.Module = v
	}
	if v := os.Getenv("PKCS11_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("PKCS11_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("PKCS11_RECREATE_SESSION"); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			c.RecreateSession = b
		}
	}
	if c.PIN == "" {
		if c.PinEnv != "" {
			c.PIN = os.Getenv(c.PinEnv)
		} else {
			c.PIN = os.Getenv("PKCS11_PIN")
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.SentinelLabel == "" {
		c.SentinelLabel = SentinelKeyLabel
	}
}

// Validate checks that the config identifies a device or a remote endpoint.
func (c *Config) Validate() error {
	if c.BaseURL != "" {
		return nil
	}
	if c.Module == "" {
		return fmt.Errorf("module path is required (set module or PKCS11_MODULE)")
	}
	if c.PIN == "" {
		return fmt.Errorf("PIN is required (set pin_env or PKCS11_PIN)")
	}
	return nil
}
