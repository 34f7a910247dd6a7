// Package server runs the delegation HTTP server.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/svlund/tokenpki/internal/api/router"
	"github.com/svlund/tokenpki/internal/token"
)

// Server serves the token delegation API.
type Server struct {
	cfg     *Config
	svc     token.Service
	version string
}

// New creates a new Server over the given token service.
func New(cfg *Config, svc token.Service, version string) *Server {
	return &Server{cfg: cfg, svc: svc, version: version}
}

// Start runs the server and blocks until a shutdown signal or error.
func (s *Server) Start() error {
	handler := router.New(&router.Config{Service: s.svc, Version: s.version})

	srv := &http.Server{
		Addr:         s.cfg.Address(),
		Handler:      handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	s.printStartupInfo()

	errChan := make(chan error, 1)
	go func() {
		if s.cfg.TLSCert != "" && s.cfg.TLSKey != "" {
			errChan <- srv.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			errChan <- srv.ListenAndServe()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-sigChan:
		log.Printf("Received signal %v, shutting down...", sig)
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		if err := s.svc.Close(); err != nil {
			return fmt.Errorf("failed to close token session: %w", err)
		}
		log.Println("Server stopped gracefully")
	}

	return nil
}

// printStartupInfo prints server startup information.
func (s *Server) printStartupInfo() {
	fmt.Println()
	fmt.Println("Token Delegation Server")
	fmt.Println("=======================")
	fmt.Printf("  Version:  %s\n", s.version)
	fmt.Printf("  Address:  http://%s\n", s.cfg.Address())
	if s.cfg.TLSCert != "" {
		fmt.Println("  TLS:      enabled")
	}
	fmt.Println()
	fmt.Println("Endpoints:")
	fmt.Println("  GET  /health")
	for _, op := range []string{
		"create_keypair", "import_keypair", "key_labels", "sign", "verify",
		"delete_keypair", "public_key_data", "import_certificate",
		"export_certificate", "delete_certificate",
	} {
		fmt.Printf("  POST /%s\n", op)
	}
	fmt.Println()
	fmt.Println("Use Ctrl+C to stop")
	fmt.Println()
}
