// Package router provides HTTP routing configuration using Chi.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/svlund/tokenpki/internal/api/handler"
	"github.com/svlund/tokenpki/internal/api/middleware"
	"github.com/svlund/tokenpki/internal/token"
)

// Config holds router configuration.
type Config struct {
	Service token.Service
	Version string
}

// New creates a Chi router exposing the delegation protocol. The paths
// are flat POST endpoints so remote clients address operations by name.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	healthHandler := handler.NewHealthHandler(cfg.Version)
	r.Get("/health", healthHandler.Health)

	tokenHandler := handler.NewTokenHandler(cfg.Service)
	r.Post("/create_keypair", tokenHandler.CreateKeyPair)
	r.Post("/import_keypair", tokenHandler.ImportKeyPair)
	r.Post("/key_labels", tokenHandler.KeyLabels)
	r.Post("/sign", tokenHandler.Sign)
	r.Post("/verify", tokenHandler.Verify)
	r.Post("/delete_keypair", tokenHandler.DeleteKeyPair)
	r.Post("/public_key_data", tokenHandler.PublicKeyData)
	r.Post("/import_certificate", tokenHandler.ImportCertificate)
	r.Post("/export_certificate", tokenHandler.ExportCertificate)
	r.Post("/delete_certificate", tokenHandler.DeleteCertificate)

	return r
}
