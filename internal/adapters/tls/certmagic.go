// Package tls serves the API over HTTPS with certificates managed by
// CertMagic.
package tls

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/caddyserver/certmagic"
	"github.com/libdns/azure"

	"github.com/jobrunner/tessera/internal/config"
)

// Server wraps an HTTP server with automatic TLS.
type Server struct {
	cfg       config.TLSConfig
	server    *http.Server
	magic     *certmagic.Config
	tlsConfig *tls.Config
	logger    *slog.Logger
}

// NewServer configures certificate management for cfg.Domains. Without an
// Azure subscription the HTTP-01 and TLS-ALPN challenges are used; with one,
// DNS-01 against Azure DNS.
func NewServer(cfg config.TLSConfig, srv config.ServerConfig, handler http.Handler, logger *slog.Logger) (*Server, error) {
	if len(cfg.Domains) == 0 {
		return nil, fmt.Errorf("TLS enabled but no domains specified")
	}
	if cfg.Email == "" {
		return nil, fmt.Errorf("TLS enabled but no email specified")
	}

	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.Email = cfg.Email
	if cfg.Staging {
		certmagic.DefaultACME.CA = certmagic.LetsEncryptStagingCA
	}
	if cfg.CacheDir != "" {
		certmagic.Default.Storage = &certmagic.FileStorage{Path: cfg.CacheDir}
	}

	if cfg.DNS.SubscriptionID != "" {
		provider := &azure.Provider{
			SubscriptionId:    cfg.DNS.SubscriptionID,
			ResourceGroupName: cfg.DNS.ResourceGroupName,
			ClientId:          cfg.DNS.ClientID, // Empty = System Assigned Managed Identity
		}
		certmagic.DefaultACME.DNS01Solver = &certmagic.DNS01Solver{
			DNSManager: certmagic.DNSManager{DNSProvider: provider},
		}
	}

	magic := certmagic.NewDefault()
	tlsConfig := magic.TLSConfig()
	tlsConfig.NextProtos = append([]string{"h2", "http/1.1"}, tlsConfig.NextProtos...)

	return &Server{
		cfg:       cfg,
		magic:     magic,
		tlsConfig: tlsConfig,
		logger:    logger,
		server: &http.Server{
			Addr:              srv.Address(),
			Handler:           handler,
			TLSConfig:         tlsConfig,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       srv.ReadTimeout,
			WriteTimeout:      srv.WriteTimeout,
		},
	}, nil
}

// ListenAndServe starts certificate management and serves HTTPS until
// Shutdown. Certificates are obtained in the background so the TLS-ALPN
// challenge can be answered by this listener.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.logger.Info("starting HTTPS server",
		"address", s.server.Addr,
		"domains", s.cfg.Domains,
		"dns01", s.cfg.DNS.SubscriptionID != "",
	)

	if err := s.magic.ManageAsync(ctx, s.cfg.Domains); err != nil {
		return fmt.Errorf("managing certificates: %w", err)
	}

	return s.server.ListenAndServeTLS("", "")
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTPS server")
	return s.server.Shutdown(ctx)
}

// TLSConfig returns the TLS configuration.
func (s *Server) TLSConfig() *tls.Config {
	return s.tlsConfig
}
