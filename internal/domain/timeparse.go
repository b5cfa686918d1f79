package domain

import (
	"strings"
	"time"
)

// catalogTimeLayouts are tried in order. Catalogs mix ISO8601 with the
// space-separated "YYYY-MM-DD HH:MM:SS" layout.
var catalogTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006/01/02 15:04:05.999999999",
	"2006-01-02",
}

// ParseCatalogTime parses a catalog date attribute. Results are UTC.
func ParseCatalogTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range catalogTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// MeanTime returns the arithmetic mean of the given times, or the zero time
// when the slice is empty.
func MeanTime(times []time.Time) time.Time {
	if len(times) == 0 {
		return time.Time{}
	}
	base := times[0]
	var offset time.Duration
	for _, t := range times[1:] {
		offset += t.Sub(base) / time.Duration(len(times))
	}
	return base.Add(offset).UTC()
}
