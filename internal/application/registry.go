// Package application contains the application services.
package application

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/jobrunner/tessera/internal/domain"
)

// DatasetRegistry manages the dataset profiles the server can resolve.
type DatasetRegistry struct {
	mu       sync.RWMutex
	datasets map[string]*datasetEntry
	logger   *slog.Logger
}

type datasetEntry struct {
	Profile domain.DatasetProfile
	Builtin bool
}

// NewDatasetRegistry creates a new, empty dataset registry.
func NewDatasetRegistry(logger *slog.Logger) *DatasetRegistry {
	return &DatasetRegistry{
		datasets: make(map[string]*datasetEntry),
		logger:   logger,
	}
}

// Load registers the built-in profiles (when builtins is set) followed by
// the configured ones. A configured profile replaces a built-in of the same
// name. Invalid profiles are rejected and reported together.
func (r *DatasetRegistry) Load(builtins bool, configured []domain.DatasetProfile) error {
	if builtins {
		for _, p := range domain.BuiltinProfiles() {
			if err := r.register(p, true); err != nil {
				return err
			}
		}
	}

	var firstErr error
	for _, p := range configured {
		if err := r.register(p, false); err != nil {
			r.logger.Error("invalid dataset profile", "dataset", p.Name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	r.logger.Info("datasets registered", "count", r.DatasetCount())
	return firstErr
}

// Register adds or replaces a profile.
func (r *DatasetRegistry) Register(profile domain.DatasetProfile) error {
	return r.register(profile, false)
}

func (r *DatasetRegistry) register(profile domain.DatasetProfile, builtin bool) error {
	if err := profile.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.datasets[profile.Name]; ok && prev.Builtin && !builtin {
		r.logger.Info("configured profile overrides built-in", "dataset", profile.Name)
	}
	r.datasets[profile.Name] = &datasetEntry{Profile: profile, Builtin: builtin}
	return nil
}

// Unregister removes a profile.
func (r *DatasetRegistry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.datasets[name]; !ok {
		return domain.ErrDatasetNotFound
	}
	delete(r.datasets, name)
	return nil
}

// ListDatasets returns all registered profiles sorted by name.
func (r *DatasetRegistry) ListDatasets(_ context.Context) []domain.DatasetProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profiles := make([]domain.DatasetProfile, 0, len(r.datasets))
	for _, entry := range r.datasets {
		profiles = append(profiles, entry.Profile)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles
}

// GetDataset returns a copy of the profile registered under name.
func (r *DatasetRegistry) GetDataset(_ context.Context, name string) (*domain.DatasetProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.datasets[name]
	if !ok {
		return nil, domain.ErrDatasetNotFound
	}
	p := entry.Profile
	return &p, nil
}

// IsBuiltin reports whether name is an unmodified built-in profile.
func (r *DatasetRegistry) IsBuiltin(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.datasets[name]
	return ok && entry.Builtin
}

// DatasetCount returns the number of registered profiles.
func (r *DatasetRegistry) DatasetCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.datasets)
}
