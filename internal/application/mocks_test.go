package application

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/jobrunner/tessera/internal/domain"
	"github.com/jobrunner/tessera/internal/ports/output"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockReader implements output.CatalogReader for testing.
type mockReader struct {
	mu       sync.Mutex
	catalogs map[string]*domain.Catalog
	errs     map[string]error
	opens    map[string]int
	delay    time.Duration
}

func newMockReader(catalogs map[string]*domain.Catalog) *mockReader {
	return &mockReader{
		catalogs: catalogs,
		errs:     make(map[string]error),
		opens:    make(map[string]int),
	}
}

func (m *mockReader) Open(ctx context.Context, key string) (*domain.Catalog, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens[key]++

	if err, ok := m.errs[key]; ok {
		return nil, err
	}
	if c, ok := m.catalogs[key]; ok {
		return c, nil
	}
	return nil, os.ErrNotExist
}

// Decode parses a GeoJSON FeatureCollection.
func (m *mockReader) Decode(_ context.Context, name, _ string, r io.Reader) (*domain.Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, err
	}
	catalog := &domain.Catalog{Path: name, Layer: domain.Layer{Name: name}}
	for i, f := range fc.Features {
		catalog.Features = append(catalog.Features, domain.Feature{
			ID:         int64(i) + 1,
			Geometry:   f.Geometry,
			Properties: map[string]interface{}(f.Properties),
		})
	}
	return catalog, nil
}

func (m *mockReader) openCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens[key]
}

// mockStorage implements output.ObjectStorage for testing.
type mockStorage struct {
	objects []output.StorageObject
	listErr error
}

func (m *mockStorage) List(_ context.Context, prefix string) ([]output.StorageObject, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []output.StorageObject
	for _, o := range m.objects {
		if strings.HasPrefix(o.Key, prefix) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockStorage) Download(_ context.Context, _, _ string) error {
	return errors.New("not supported")
}

func (m *mockStorage) GetReader(_ context.Context, _ string) (io.ReadCloser, error) {
	return nil, errors.New("not supported")
}

func (m *mockStorage) Exists(_ context.Context, key string) (bool, error) {
	for _, o := range m.objects {
		if o.Key == key {
			return true, nil
		}
	}
	return false, nil
}

// recordingMetrics implements output.MetricsCollector and remembers what it
// was told.
type recordingMetrics struct {
	output.NoOpMetrics

	mu       sync.Mutex
	skipped  map[string]int
	outcomes map[string]int
	hits     int
	misses   int
	groups   []int
}

func (m *recordingMetrics) IncSkippedFeatures(_, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.skipped == nil {
		m.skipped = make(map[string]int)
	}
	m.skipped[reason]++
}

func (m *recordingMetrics) IncResolveCount(kind, _ string, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[string]int)
	}
	m.outcomes[kind+":"+outcome]++
}

func (m *recordingMetrics) IncCatalogCache(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

func (m *recordingMetrics) ObserveGroups(_ string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups = append(m.groups, n)
}

func (m *recordingMetrics) outcome(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcomes[key]
}

// featureCollection renders features as an inline GeoJSON catalog.
func featureCollection(features ...*geojson.Feature) []byte {
	fc := geojson.NewFeatureCollection()
	fc.Features = features
	data, err := json.Marshal(fc)
	if err != nil {
		panic(err)
	}
	return data
}
