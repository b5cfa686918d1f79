package domain

import (
	"fmt"
	"slices"
	"strings"
)

// LocatorMode selects how the catalog for a dataset is found.
type LocatorMode string

// Locator modes.
const (
	LocatorFixed   LocatorMode = "fixed"   // one well-known catalog path
	LocatorListing LocatorMode = "listing" // the one catalog found by listing a prefix
	LocatorGeocell LocatorMode = "geocell" // per-1°-cell catalogs merged per query
	LocatorInline  LocatorMode = "inline"  // catalog supplied with the request
)

// BandMode selects how requested bands map onto raster files.
type BandMode string

// Band modes.
const (
	BandSingle  BandMode = "single"  // one raster per feature, fixed band number
	BandLayered BandMode = "layered" // bands are numbered layers of one raster
	BandFielded BandMode = "fielded" // every band is its own raster in a named field
)

// SelectorPlaceholder is replaced by the discriminator value in catalog paths.
const SelectorPlaceholder = "{selector}"

// SuffixRule rewrites a file name by replacing the last occurrence of From
// with To.
type SuffixRule struct {
	From string `mapstructure:"from" yaml:"from"`
	To   string `mapstructure:"to" yaml:"to"`
}

// IsZero reports whether the rule is unset.
func (r SuffixRule) IsZero() bool {
	return r.From == ""
}

// Apply returns the rewritten name. It reports false when From does not occur.
func (r SuffixRule) Apply(name string) (string, bool) {
	if r.From == "" {
		return "", false
	}
	pos := strings.LastIndex(name, r.From)
	if pos < 0 {
		return "", false
	}
	return name[:pos] + r.To + name[pos+len(r.From):], true
}

// Discriminator describes a dataset keyed by an external selector such as a
// product-release year.
type Discriminator struct {
	Field   string   `mapstructure:"field" yaml:"field,omitempty" json:"field,omitempty"` // feature attribute matched against the selector
	Values  []string `mapstructure:"values" yaml:"values" json:"values"`
	Default string   `mapstructure:"default" yaml:"default,omitempty" json:"default,omitempty"`
}

// License contains license information for a dataset.
type License struct {
	Name        string `mapstructure:"name" yaml:"name,omitempty" json:"name,omitempty"`                      // License name (e.g., "CC BY 4.0")
	URL         string `mapstructure:"url" yaml:"url,omitempty" json:"url,omitempty"`                         // Link to the license text
	Attribution string `mapstructure:"attribution" yaml:"attribution,omitempty" json:"attribution,omitempty"` // Attribution text to display
}

// IsEmpty returns true if no license information is set.
func (l *License) IsEmpty() bool {
	return l.Name == "" && l.URL == "" && l.Attribution == ""
}

// DatasetProfile is the per-dataset configuration used by the locator and
// the catalog resolver.
type DatasetProfile struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Description string `mapstructure:"description" yaml:"description,omitempty"`

	// Catalog location.
	Locator       LocatorMode `mapstructure:"locator" yaml:"locator"`
	CatalogPath   string      `mapstructure:"catalog_path" yaml:"catalog_path,omitempty"`
	ListingPrefix string      `mapstructure:"listing_prefix" yaml:"listing_prefix,omitempty"`
	CatalogSuffix string      `mapstructure:"catalog_suffix" yaml:"catalog_suffix,omitempty"`
	GeocellDir    string      `mapstructure:"geocell_dir" yaml:"geocell_dir,omitempty"`

	// Raster path resolution.
	StorageRoot string `mapstructure:"storage_root" yaml:"storage_root,omitempty"`
	MarkerToken string `mapstructure:"marker_token" yaml:"marker_token,omitempty"`
	KeepMarker  bool   `mapstructure:"keep_marker" yaml:"keep_marker,omitempty"`
	DataField   string `mapstructure:"data_field" yaml:"data_field,omitempty"`
	IDField     string `mapstructure:"id_field" yaml:"id_field,omitempty"`

	// Auxiliary rasters.
	FlagsField  string     `mapstructure:"flags_field" yaml:"flags_field,omitempty"`
	FlagsSuffix SuffixRule `mapstructure:"flags_suffix" yaml:"flags_suffix,omitempty"`
	MaskField   string     `mapstructure:"mask_field" yaml:"mask_field,omitempty"`

	DateFields []string `mapstructure:"date_fields" yaml:"date_fields,omitempty"`

	// Bands.
	BandMode     BandMode            `mapstructure:"band_mode" yaml:"band_mode"`
	BandNumber   int                 `mapstructure:"band_number" yaml:"band_number,omitempty"`
	Bands        []string            `mapstructure:"bands" yaml:"bands,omitempty"`
	DefaultBands []string            `mapstructure:"default_bands" yaml:"default_bands,omitempty"`
	FlagsBand    string              `mapstructure:"flags_band" yaml:"flags_band,omitempty"`
	Algorithms   map[string][]string `mapstructure:"algorithms" yaml:"algorithms,omitempty"`

	Discriminator *Discriminator `mapstructure:"discriminator" yaml:"discriminator,omitempty"`

	License License `mapstructure:"license" yaml:"license,omitempty"`
}

// Validate checks the profile for inconsistent settings.
func (p *DatasetProfile) Validate() error {
	if p.Name == "" {
		return &ConfigError{Field: "datasets.name", Message: "dataset name is required"}
	}
	field := func(f string) string { return "datasets." + p.Name + "." + f }

	switch p.Locator {
	case LocatorFixed:
		if p.CatalogPath == "" {
			return &ConfigError{Field: field("catalog_path"), Message: "fixed locator needs a catalog path"}
		}
	case LocatorListing:
		if p.CatalogSuffix == "" {
			return &ConfigError{Field: field("catalog_suffix"), Message: "listing locator needs a catalog suffix"}
		}
	case LocatorGeocell:
		if p.GeocellDir == "" {
			return &ConfigError{Field: field("geocell_dir"), Message: "geocell locator needs a geocell directory"}
		}
	case LocatorInline:
	default:
		return &ConfigError{Field: field("locator"), Message: fmt.Sprintf("unknown locator %q", p.Locator)}
	}

	switch p.BandMode {
	case BandSingle, "":
		if p.DataField == "" {
			return &ConfigError{Field: field("data_field"), Message: "data field is required"}
		}
	case BandLayered:
		if p.DataField == "" {
			return &ConfigError{Field: field("data_field"), Message: "data field is required"}
		}
		if len(p.Bands) == 0 {
			return &ConfigError{Field: field("bands"), Message: "layered bands need a band table"}
		}
	case BandFielded:
		if len(p.Bands) == 0 {
			return &ConfigError{Field: field("bands"), Message: "fielded bands need a band table"}
		}
	default:
		return &ConfigError{Field: field("band_mode"), Message: fmt.Sprintf("unknown band mode %q", p.BandMode)}
	}

	if d := p.Discriminator; d != nil {
		if len(d.Values) == 0 {
			return &ConfigError{Field: field("discriminator.values"), Message: "discriminator needs supported values"}
		}
		if d.Default != "" && !slices.Contains(d.Values, d.Default) {
			return &ConfigError{Field: field("discriminator.default"), Message: "default is not a supported value"}
		}
	}
	return nil
}

// ValidBand reports whether name is in the band table.
func (p *DatasetProfile) ValidBand(name string) bool {
	return slices.Contains(p.Bands, name) || (p.FlagsBand != "" && name == p.FlagsBand)
}

// SplitSelector separates a discriminator value from the band filter. It
// fails with a DiscriminatorError when an entry that is not a band is not a
// supported selector either, or when more than one selector is given. The
// returned band list never contains the selector.
func (p *DatasetProfile) SplitSelector(bands []string) ([]string, string, error) {
	if p.Discriminator == nil {
		return bands, "", nil
	}

	var (
		rest     []string
		selector string
	)
	for _, b := range bands {
		if p.ValidBand(b) {
			rest = append(rest, b)
			continue
		}
		if _, isAlgo := p.Algorithms[b]; isAlgo {
			rest = append(rest, b)
			continue
		}
		if !slices.Contains(p.Discriminator.Values, b) {
			return nil, "", &DiscriminatorError{Value: b, Supported: p.Discriminator.Values}
		}
		if selector != "" && selector != b {
			return nil, "", fmt.Errorf("%w: more than one selector (%s, %s)", ErrInvalidDiscriminator, selector, b)
		}
		selector = b
	}

	if selector == "" {
		selector = p.Discriminator.Default
	}
	return rest, selector, nil
}

// ExpandBands validates the requested bands and expands algorithm names into
// the bands they read. Order is preserved and duplicates are dropped. With no
// request the default bands are used.
func (p *DatasetProfile) ExpandBands(requested []string) ([]string, error) {
	if len(requested) == 0 {
		requested = p.DefaultBands
	}

	var out []string
	add := func(b string) {
		if !slices.Contains(out, b) {
			out = append(out, b)
		}
	}

	for _, b := range requested {
		if extra, ok := p.Algorithms[b]; ok {
			for _, e := range extra {
				add(e)
			}
			continue
		}
		if len(p.Bands) > 0 && !p.ValidBand(b) {
			return nil, fmt.Errorf("%w: %q is not a band of %s", ErrInvalidBand, b, p.Name)
		}
		add(b)
	}
	return out, nil
}

// BandNumberOf returns the 1-based layer number of a band in layered mode.
func (p *DatasetProfile) BandNumberOf(name string) int {
	if i := slices.Index(p.Bands, name); i >= 0 {
		return i + 1
	}
	return 0
}

// WithSelector returns a copy of the profile with the selector substituted
// into its catalog and storage paths.
func (p *DatasetProfile) WithSelector(selector string) DatasetProfile {
	out := *p
	if selector == "" {
		return out
	}
	sub := func(s string) string { return strings.ReplaceAll(s, SelectorPlaceholder, selector) }
	out.CatalogPath = sub(out.CatalogPath)
	out.ListingPrefix = sub(out.ListingPrefix)
	out.GeocellDir = sub(out.GeocellDir)
	out.StorageRoot = sub(out.StorageRoot)
	out.MarkerToken = sub(out.MarkerToken)
	return out
}

// GeocellPath returns the catalog key of one geocell.
func (p *DatasetProfile) GeocellPath(c Geocell) string {
	suffix := p.CatalogSuffix
	if suffix == "" {
		suffix = ".geojson"
	}
	return joinKey(p.GeocellDir, c.Key()+suffix)
}

// RewritePath maps a catalog-provided raster path onto the storage root using
// the marker token. Without a marker token the path is joined to the root
// only when it is relative.
func (p *DatasetProfile) RewritePath(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrUnresolvableFile
	}

	if p.MarkerToken == "" {
		if p.StorageRoot == "" || strings.Contains(raw, "://") || strings.HasPrefix(raw, "/") {
			return raw, nil
		}
		return joinKey(p.StorageRoot, raw), nil
	}

	pos := strings.Index(raw, p.MarkerToken)
	if pos < 0 {
		return "", fmt.Errorf("%w: %q not in %q", ErrMissingMarkerToken, p.MarkerToken, raw)
	}
	if !p.KeepMarker {
		pos += len(p.MarkerToken)
	}
	return p.StorageRoot + raw[pos:], nil
}

func joinKey(dir, name string) string {
	if dir == "" {
		return name
	}
	if strings.HasSuffix(dir, "/") {
		return dir + name
	}
	return dir + "/" + name
}
