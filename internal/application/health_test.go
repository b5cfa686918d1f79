package application

import (
	"context"
	"testing"

	"github.com/jobrunner/tessera/internal/domain"
)

func TestHealthServiceIsHealthy(t *testing.T) {
	service := NewHealthService(newTestRegistry(), nil)

	if !service.IsHealthy(context.Background()) {
		t.Error("IsHealthy should return true")
	}
}

func TestHealthServiceIsReady(t *testing.T) {
	tests := []struct {
		name     string
		profiles []domain.DatasetProfile
		want     bool
	}{
		{
			name: "empty registry is not ready",
			want: false,
		},
		{
			name:     "registered dataset",
			profiles: []domain.DatasetProfile{{Name: "x", Locator: domain.LocatorInline, DataField: "path"}},
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := newTestRegistry()
			for _, p := range tt.profiles {
				if err := registry.Register(p); err != nil {
					t.Fatalf("Register failed: %v", err)
				}
			}
			service := NewHealthService(registry, nil)

			if got := service.IsReady(context.Background()); got != tt.want {
				t.Errorf("IsReady() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHealthServiceGetHealthDetails(t *testing.T) {
	registry := newTestRegistry()
	if err := registry.Load(true, nil); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	reader := newMockReader(map[string]*domain.Catalog{"index.geojson": {}})
	locator := NewIndexLocator(reader, &mockStorage{}, nil, testLogger(), LocatorConfig{})
	profile := domain.DatasetProfile{Name: "x", Locator: domain.LocatorFixed, CatalogPath: "index.geojson"}
	if _, err := locator.Locate(context.Background(), profile, nil, nil); err != nil {
		t.Fatalf("Locate failed: %v", err)
	}

	service := NewHealthService(registry, locator)
	details := service.GetHealthDetails(context.Background())

	if !details.Healthy || !details.Ready {
		t.Errorf("details = %+v, want healthy and ready", details)
	}
	if details.Datasets != len(domain.BuiltinProfiles()) {
		t.Errorf("Datasets = %d, want %d", details.Datasets, len(domain.BuiltinProfiles()))
	}
	if details.CatalogsCached != 1 {
		t.Errorf("CatalogsCached = %d, want 1", details.CatalogsCached)
	}
	if details.Components["registry"] != "ok" {
		t.Errorf("registry component = %q, want ok", details.Components["registry"])
	}
}
