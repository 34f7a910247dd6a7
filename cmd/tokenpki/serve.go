package main

import (
	"github.com/spf13/cobra"

	"github.com/svlund/tokenpki/internal/api/server"
)

// Serve command flags
var (
	serveHost    string
	servePort    int
	serveTLSCert string
	serveTLSKey  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the token delegation server",
	Long: `Start the HTTP server that exposes the token operations to
remote clients. A client configured with base_url pointing here uses
the same operations without local PKCS#11 access.

Examples:
  # Serve the local token on the default port
  tokenpki serve --config token.yaml

  # Serve with TLS on a custom address
  tokenpki serve --config token.yaml --host 0.0.0.0 --port 8443 --tls-cert server.crt --tls-key server.key`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "localhost", "Host to bind to")
	serveCmd.Flags().IntVar(&servePort, "port", 8005, "Port to listen on")
	serveCmd.Flags().StringVar(&serveTLSCert, "tls-cert", "", "TLS certificate file")
	serveCmd.Flags().StringVar(&serveTLSKey, "tls-key", "", "TLS private key file")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}

	cfg := server.DefaultConfig()
	cfg.Host = serveHost
	cfg.Port = servePort
	cfg.TLSCert = serveTLSCert
	cfg.TLSKey = serveTLSKey

	return server.New(cfg, svc, version).Start()
}
