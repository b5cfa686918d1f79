package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Base error types (sentinel errors).
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrUnavailable  = errors.New("service unavailable")
)

// ErrResourceEmpty signals a valid request that legitimately selects nothing.
// It is a control-flow outcome, not a failure.
var ErrResourceEmpty = errors.New("empty spatial region")

// Specific errors.
var (
	ErrDatasetNotFound      = fmt.Errorf("dataset: %w", ErrNotFound)
	ErrInvalidGeometry      = fmt.Errorf("geometry: %w", ErrInvalidInput)
	ErrInvalidBand          = fmt.Errorf("band: %w", ErrInvalidInput)
	ErrInvalidDiscriminator = fmt.Errorf("discriminator: %w", ErrInvalidInput)
	ErrInvalidRequest       = fmt.Errorf("request: %w", ErrInvalidInput)
	ErrMalformedFeature     = fmt.Errorf("malformed feature: %w", ErrInvalidInput)
	ErrMissingMarkerToken   = fmt.Errorf("marker token missing: %w", ErrNotFound)
	ErrUnresolvableFile     = fmt.Errorf("unresolvable file: %w", ErrNotFound)
	ErrCatalogOpen          = fmt.Errorf("catalog open: %w", ErrUnavailable)
	ErrMergeFailed          = fmt.Errorf("catalog merge: %w", ErrInternal)
	ErrNotReady             = fmt.Errorf("service not ready: %w", ErrUnavailable)
	ErrStorageUnavailable   = fmt.Errorf("storage: %w", ErrUnavailable)
)

// FeatureError describes why a single catalog feature was skipped.
type FeatureError struct {
	FeatureID int64  // Feature ID within the catalog
	Field     string // Attribute involved, if any
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *FeatureError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("feature %d, field %s: %v", e.FeatureID, e.Field, e.Err)
	}
	return fmt.Sprintf("feature %d: %v", e.FeatureID, e.Err)
}

// Unwrap returns the underlying error.
func (e *FeatureError) Unwrap() error {
	return e.Err
}

// CatalogError represents a failure to open or read a whole catalog.
type CatalogError struct {
	Path string // Catalog path or key
	Err  error  // Underlying error
}

// Error implements the error interface.
func (e *CatalogError) Error() string {
	return fmt.Sprintf("catalog %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *CatalogError) Unwrap() error {
	return e.Err
}

// Is reports catalog errors as ErrCatalogOpen so callers can match the
// failure class without knowing the cause.
func (e *CatalogError) Is(target error) bool {
	return target == ErrCatalogOpen
}

// DiscriminatorError is returned when a selector is not one of the
// dataset's supported values.
type DiscriminatorError struct {
	Value     string
	Supported []string
}

// Error implements the error interface.
func (e *DiscriminatorError) Error() string {
	return fmt.Sprintf("unsupported selector %q (supported: %s)", e.Value, strings.Join(e.Supported, ", "))
}

// Unwrap returns the underlying error type.
func (e *DiscriminatorError) Unwrap() error {
	return ErrInvalidDiscriminator
}

// StorageError represents an error during storage operations.
type StorageError struct {
	Operation string // Operation that failed (download, list, etc.)
	Key       string // Object key
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage error during %s for %s: %v",
			e.Operation, e.Key, e.Err)
	}
	return fmt.Sprintf("storage error during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string // Configuration field
	Message string // Error message
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidInput
}
