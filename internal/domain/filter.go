package domain

import (
	"strings"
	"time"
)

// GroupFilter narrows a resolved group list. The zero value keeps every group.
type GroupFilter struct {
	// Start and Stop bound the acquisition time (inclusive). Groups without a
	// time are kept.
	Start time.Time
	Stop  time.Time

	// URLSubstring must occur in every raster path of a kept group.
	URLSubstring string

	// DOYStart..DOYEnd is a day-of-year window (1..366). A window with
	// DOYStart > DOYEnd wraps across the new year. Groups without a time are
	// kept.
	DOYStart       int
	DOYEnd         int
	DOYKeepInRange bool

	// ClosestTime keeps only the groups nearest to this instant. Groups
	// without a time have no distance and are dropped.
	ClosestTime time.Time
}

// IsZero reports whether the filter keeps everything.
func (f GroupFilter) IsZero() bool {
	return f.Start.IsZero() && f.Stop.IsZero() && f.URLSubstring == "" &&
		!f.hasDOY() && f.ClosestTime.IsZero()
}

func (f GroupFilter) hasDOY() bool {
	return f.DOYStart > 0 && f.DOYEnd > 0
}

// Apply returns the groups that pass the filter in their original order.
func (f GroupFilter) Apply(groups []RasterGroup, dict *FileDictionary) []RasterGroup {
	if f.IsZero() {
		return groups
	}

	kept := make([]RasterGroup, 0, len(groups))
	for i := range groups {
		if f.keep(&groups[i], dict) {
			kept = append(kept, groups[i])
		}
	}

	if !f.ClosestTime.IsZero() {
		kept = closestGroups(kept, f.ClosestTime)
	}
	return kept
}

func (f GroupFilter) keep(g *RasterGroup, dict *FileDictionary) bool {
	if g.HasTime() {
		if !f.Start.IsZero() && g.AcquisitionTime.Before(f.Start) {
			return false
		}
		if !f.Stop.IsZero() && g.AcquisitionTime.After(f.Stop) {
			return false
		}
	}

	if f.URLSubstring != "" && dict != nil {
		for _, info := range g.Infos {
			if !strings.Contains(dict.Resolve(info.FileID), f.URLSubstring) {
				return false
			}
		}
	}

	if f.hasDOY() && g.HasTime() {
		in := DOYInRange(g.AcquisitionTime, f.DOYStart, f.DOYEnd)
		if in != f.DOYKeepInRange {
			return false
		}
	}
	return true
}

// DOYInRange reports whether t's day of year lies in [start, end], wrapping
// when start > end.
func DOYInRange(t time.Time, start, end int) bool {
	doy := t.YearDay()
	if start <= end {
		return doy >= start && doy <= end
	}
	return doy >= start || doy <= end
}

func closestGroups(groups []RasterGroup, target time.Time) []RasterGroup {
	var (
		best  time.Duration
		found bool
	)
	for i := range groups {
		if !groups[i].HasTime() {
			continue
		}
		if d := absDelta(groups[i].AcquisitionTime, target); !found || d < best {
			best, found = d, true
		}
	}

	out := groups[:0]
	if !found {
		return out
	}
	for i := range groups {
		if groups[i].HasTime() && absDelta(groups[i].AcquisitionTime, target) == best {
			out = append(out, groups[i])
		}
	}
	return out
}

// absDelta returns |a-b|. Sub saturates, so the later instant is always the
// receiver and the result is never negative.
func absDelta(a, b time.Time) time.Duration {
	if a.Before(b) {
		return b.Sub(a)
	}
	return a.Sub(b)
}
