package tls

import (
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/jobrunner/tessera/internal/config"
)

func TestNewServerRequiresDomainsAndEmail(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name string
		cfg  config.TLSConfig
	}{
		{"no domains", config.TLSConfig{Enabled: true, Email: "ops@example.com"}},
		{"no email", config.TLSConfig{Enabled: true, Domains: []string{"tiles.example.com"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewServer(tt.cfg, config.ServerConfig{Port: 443}, http.NotFoundHandler(), logger)
			if err == nil {
				t.Errorf("NewServer() = %v, want error", s)
			}
		})
	}
}
