package storage

import (
	"context"
	"io"
	"time"

	"github.com/jobrunner/tessera/internal/ports/output"
)

// Instrumented records operation counts and latencies for another
// ObjectStorage.
type Instrumented struct {
	inner   output.ObjectStorage
	metrics output.MetricsCollector
}

// NewInstrumented wraps inner. A nil metrics collector disables recording.
func NewInstrumented(inner output.ObjectStorage, metrics output.MetricsCollector) *Instrumented {
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}
	return &Instrumented{inner: inner, metrics: metrics}
}

func (s *Instrumented) observe(op string, start time.Time, err error) {
	s.metrics.IncStorageOperations(op, err == nil)
	s.metrics.ObserveStorageDuration(op, time.Since(start))
}

// List implements output.ObjectStorage.
func (s *Instrumented) List(ctx context.Context, prefix string) ([]output.StorageObject, error) {
	start := time.Now()
	objects, err := s.inner.List(ctx, prefix)
	s.observe("list", start, err)
	return objects, err
}

// Download implements output.ObjectStorage.
func (s *Instrumented) Download(ctx context.Context, key string, dest string) error {
	start := time.Now()
	err := s.inner.Download(ctx, key, dest)
	s.observe("download", start, err)
	return err
}

// GetReader implements output.ObjectStorage.
func (s *Instrumented) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	start := time.Now()
	r, err := s.inner.GetReader(ctx, key)
	s.observe("get", start, err)
	return r, err
}

// Exists implements output.ObjectStorage.
func (s *Instrumented) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	ok, err := s.inner.Exists(ctx, key)
	s.observe("exists", start, err)
	return ok, err
}
