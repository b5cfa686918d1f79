package application

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/paulmach/orb"

	"github.com/jobrunner/tessera/internal/domain"
	"github.com/jobrunner/tessera/internal/ports/output"
)

// Skip reasons reported to metrics.
const (
	skipMalformed  = "malformed"
	skipMarker     = "marker"
	skipUnresolved = "unresolvable"
)

// GroupQuery is one catalog resolution.
type GroupQuery struct {
	Geometry   orb.Geometry
	Bands      []string // Band filter with any selector already removed
	Selector   string   // Discriminator value, if the dataset has one
	DateFields []string // Overrides the profile's date fields when set
	Flags      bool     // Emit FLAGS rasters
}

// CatalogResolver turns catalog features intersecting a query into raster
// groups. It holds no mutable state; one resolver may serve many goroutines
// as long as each passes its own FileDictionary.
type CatalogResolver struct {
	profile domain.DatasetProfile
	metrics output.MetricsCollector
	logger  *slog.Logger
}

// NewCatalogResolver creates a resolver for one dataset. The profile should
// already carry the selector (see DatasetProfile.WithSelector).
func NewCatalogResolver(profile domain.DatasetProfile, metrics output.MetricsCollector, logger *slog.Logger) *CatalogResolver {
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}
	return &CatalogResolver{
		profile: profile,
		metrics: metrics,
		logger:  logger.With("dataset", profile.Name),
	}
}

// FindGroups scans catalog in order and returns one group per intersecting
// feature. Unusable features are logged and skipped; an empty result is not
// an error. Band and selector validation happens before the scan.
func (r *CatalogResolver) FindGroups(catalog *domain.Catalog, q GroupQuery, dict *domain.FileDictionary) ([]domain.RasterGroup, error) {
	if catalog == nil {
		return nil, &domain.CatalogError{Path: r.profile.Name, Err: errors.New("no catalog")}
	}
	if q.Geometry == nil {
		return nil, fmt.Errorf("%w: query geometry is required", domain.ErrInvalidGeometry)
	}

	bands, err := r.bandsFor(q)
	if err != nil {
		return nil, err
	}

	dateFields := q.DateFields
	if len(dateFields) == 0 {
		dateFields = r.profile.DateFields
	}

	var (
		groups  []domain.RasterGroup
		emitted = make(map[domain.FileID]struct{})
	)
	for i := range catalog.Features {
		f := &catalog.Features[i]
		if f.Geometry == nil {
			r.skip(&domain.FeatureError{FeatureID: f.ID, Err: fmt.Errorf("%w: no geometry", domain.ErrMalformedFeature)})
			continue
		}
		if !domain.Intersects(f.Geometry, q.Geometry) {
			continue
		}
		if !r.matchesSelector(f, q.Selector) {
			continue
		}

		group, err := r.buildGroup(f, bands, q.Flags, dict)
		if err != nil {
			r.skip(err)
			continue
		}

		value, _ := group.Value()
		if _, dup := emitted[value.FileID]; dup {
			r.logger.Debug("duplicate raster skipped", "feature", f.ID, "path", dict.Resolve(value.FileID))
			continue
		}
		emitted[value.FileID] = struct{}{}

		group.AcquisitionTime = r.acquisitionTime(f, dateFields)
		groups = append(groups, group)
	}

	return slices.Clip(groups), nil
}

// bandsFor validates the band filter against the profile.
func (r *CatalogResolver) bandsFor(q GroupQuery) ([]string, error) {
	bands, err := r.profile.ExpandBands(q.Bands)
	if err != nil {
		return nil, err
	}
	if r.profile.BandMode == domain.BandFielded {
		values := slices.DeleteFunc(slices.Clone(bands), func(b string) bool { return b == r.profile.FlagsBand })
		if len(values) == 0 {
			return nil, fmt.Errorf("%w: %s needs at least one band", domain.ErrInvalidBand, r.profile.Name)
		}
	}
	return bands, nil
}

func (r *CatalogResolver) matchesSelector(f *domain.Feature, selector string) bool {
	d := r.profile.Discriminator
	if d == nil || d.Field == "" || selector == "" {
		return true
	}
	return f.GetStringProperty(d.Field) == selector
}

func (r *CatalogResolver) buildGroup(f *domain.Feature, bands []string, flags bool, dict *domain.FileDictionary) (domain.RasterGroup, error) {
	group := domain.RasterGroup{ID: r.groupID(f)}

	switch r.profile.BandMode {
	case domain.BandFielded:
		if err := r.fieldedInfos(f, bands, flags, dict, &group); err != nil {
			return group, err
		}
	default:
		primary, err := r.resolveField(f, r.profile.DataField)
		if err != nil {
			return group, err
		}
		id := dict.Intern(primary)

		if r.profile.BandMode == domain.BandLayered && len(bands) > 0 {
			for _, b := range bands {
				group.Infos = append(group.Infos, domain.RasterInfo{
					Tag:        domain.TagValue,
					Band:       b,
					BandNumber: r.profile.BandNumberOf(b),
					FileID:     id,
				})
			}
		} else {
			group.Infos = append(group.Infos, domain.RasterInfo{
				Tag:        domain.TagValue,
				BandNumber: r.bandNumber(),
				FileID:     id,
			})
		}

		if flags {
			if path, ok := r.flagsPath(f, primary); ok {
				group.Infos = append(group.Infos, domain.RasterInfo{
					Tag:        domain.TagFlags,
					BandNumber: 1,
					FileID:     dict.Intern(path),
				})
			}
		}
	}

	if r.profile.MaskField != "" {
		if path, err := r.resolveField(f, r.profile.MaskField); err == nil {
			group.Infos = append(group.Infos, domain.RasterInfo{
				Tag:        domain.TagMask,
				BandNumber: 1,
				FileID:     dict.Intern(path),
			})
		}
	}

	group.Infos = slices.Clip(group.Infos)
	return group, nil
}

// fieldedInfos reads one raster per band from the feature attribute named
// after the band.
func (r *CatalogResolver) fieldedInfos(f *domain.Feature, bands []string, flags bool, dict *domain.FileDictionary, group *domain.RasterGroup) error {
	wantFlags := flags
	for _, b := range bands {
		if b == r.profile.FlagsBand {
			wantFlags = true
			continue
		}
		path, err := r.resolveField(f, b)
		if err != nil {
			r.logger.Debug("band not available", "feature", f.ID, "band", b, "error", err)
			continue
		}
		group.Infos = append(group.Infos, domain.RasterInfo{
			Tag:        domain.TagValue,
			Band:       b,
			BandNumber: 1,
			FileID:     dict.Intern(path),
		})
	}

	if len(group.Infos) == 0 {
		return &domain.FeatureError{FeatureID: f.ID, Err: fmt.Errorf("%w: none of the requested bands", domain.ErrMalformedFeature)}
	}

	if wantFlags && r.profile.FlagsBand != "" {
		if path, err := r.resolveField(f, r.profile.FlagsBand); err == nil {
			group.Infos = append(group.Infos, domain.RasterInfo{
				Tag:        domain.TagFlags,
				Band:       r.profile.FlagsBand,
				BandNumber: 1,
				FileID:     dict.Intern(path),
			})
		}
	}
	return nil
}

// resolveField reads a path attribute and rewrites it onto the storage root.
func (r *CatalogResolver) resolveField(f *domain.Feature, field string) (string, error) {
	raw := f.GetStringProperty(field)
	if raw == "" {
		return "", &domain.FeatureError{FeatureID: f.ID, Field: field, Err: fmt.Errorf("%w: empty path", domain.ErrMalformedFeature)}
	}
	path, err := r.profile.RewritePath(raw)
	if err != nil {
		return "", &domain.FeatureError{FeatureID: f.ID, Field: field, Err: err}
	}
	return path, nil
}

// flagsPath finds the auxiliary raster of a primary file, from the flags
// field when configured and from the suffix rule otherwise.
func (r *CatalogResolver) flagsPath(f *domain.Feature, primary string) (string, bool) {
	if r.profile.FlagsField != "" {
		path, err := r.resolveField(f, r.profile.FlagsField)
		if err != nil {
			r.logger.Debug("flags raster omitted", "feature", f.ID, "error", err)
			return "", false
		}
		return path, true
	}
	return r.profile.FlagsSuffix.Apply(primary)
}

func (r *CatalogResolver) acquisitionTime(f *domain.Feature, fields []string) time.Time {
	times := make([]time.Time, 0, len(fields))
	for _, field := range fields {
		raw := f.GetStringProperty(field)
		t, ok := domain.ParseCatalogTime(raw)
		if !ok {
			r.logger.Debug("unparsable date", "feature", f.ID, "field", field, "value", raw)
			continue
		}
		times = append(times, t)
	}
	return domain.MeanTime(times)
}

func (r *CatalogResolver) groupID(f *domain.Feature) string {
	if r.profile.IDField != "" {
		if id := f.GetStringProperty(r.profile.IDField); id != "" {
			return id
		}
	}
	return strconv.FormatInt(f.ID, 10)
}

func (r *CatalogResolver) bandNumber() int {
	if r.profile.BandNumber > 0 {
		return r.profile.BandNumber
	}
	return 1
}

func (r *CatalogResolver) skip(err error) {
	reason := skipMalformed
	switch {
	case errors.Is(err, domain.ErrMissingMarkerToken):
		reason = skipMarker
	case errors.Is(err, domain.ErrUnresolvableFile):
		reason = skipUnresolved
	}
	r.metrics.IncSkippedFeatures(r.profile.Name, reason)
	r.logger.Debug("feature skipped", "reason", reason, "error", err)
}
