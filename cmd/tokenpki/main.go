// Command tokenpki manages keys, certificates, CSRs and OCSP messages
// backed by a PKCS#11 token or a remote delegation server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/svlund/tokenpki/internal/audit"
	"github.com/svlund/tokenpki/internal/token"
)

// Build-time variables (injected by GoReleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags
var (
	configPath   string
	auditLogPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tokenpki",
	Short: "PKCS#11-backed certificate and OCSP toolkit",
	Long: `tokenpki manages device-resident keys and builds X.509 artifacts
with them: certification requests, OCSP requests and OCSP responses.

The device is reached either through a local PKCS#11 module or, when
base_url is configured, through a remote delegation server speaking the
same operations over HTTP.

Configuration is read from a YAML file (--config) and the environment:
  PKCS11_MODULE            Path to the PKCS#11 library
  PKCS11_TOKEN             Token label
  PKCS11_PIN               User PIN (or the variable named by pin_env)
  PKCS11_BASE_URL          Remote delegation server URL
  PKCS11_RECREATE_SESSION  Enable the health probe and forced reopen

Examples:
  # Generate a device key pair
  tokenpki keygen --label ca-signing --type secp384r1

  # Build a CA certification request signed by the device
  tokenpki csr --label ca-signing --type secp384r1 --cn "Example CA" --ca --out ca.csr

  # Build an OCSP request for a certificate
  tokenpki ocsp request --cert server.crt --out req.der`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to YAML configuration file (environment overrides apply)")
	rootCmd.PersistentFlags().StringVar(&auditLogPath, "audit-log", "",
		"Path to audit log file (or set audit_log in the config)")
}

// loadConfig resolves the effective configuration from file and
// environment.
func loadConfig() (token.Config, error) {
	if configPath != "" {
		return token.LoadConfig(configPath)
	}
	return token.FromEnv()
}

// newService builds the token service for the effective configuration:
// a RemoteClient when base_url is set, otherwise a SessionManager over
// the local PKCS#11 module.
func newService() (token.Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.BaseURL != "" {
		return token.NewRemoteClient(cfg), nil
	}

	var aud audit.Writer
	path := auditLogPath
	if path == "" {
		path = cfg.AuditLog
	}
	if path != "" {
		fw, err := audit.NewFileWriter(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		aud = fw
	}

	return token.NewSessionManager(cfg, token.OpenPKCS11, aud), nil
}

// withService runs fn with a freshly built token service and closes it
// afterwards.
func withService(fn func(ctx context.Context, svc token.Service) error) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()
	return fn(context.Background(), svc)
}
