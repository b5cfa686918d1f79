package output

import (
	"context"
	"io"

	"github.com/jobrunner/tessera/internal/domain"
)

// CatalogReader opens vector catalogs.
type CatalogReader interface {
	// Open loads the catalog stored under key.
	Open(ctx context.Context, key string) (*domain.Catalog, error)

	// Decode parses a catalog supplied in memory. format is a file
	// extension such as ".geojson".
	Decode(ctx context.Context, name, format string, r io.Reader) (*domain.Catalog, error)
}
