package domain

import (
	"fmt"
	"time"
)

// RasterTag is the role a raster file plays inside a group.
type RasterTag int

const (
	TagValue RasterTag = iota
	TagFlags
	TagMask
)

// String returns the tag name.
func (t RasterTag) String() string {
	switch t {
	case TagValue:
		return "VALUE"
	case TagFlags:
		return "FLAGS"
	case TagMask:
		return "MASK"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t RasterTag) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *RasterTag) UnmarshalText(text []byte) error {
	switch string(text) {
	case "VALUE":
		*t = TagValue
	case "FLAGS":
		*t = TagFlags
	case "MASK":
		*t = TagMask
	default:
		return fmt.Errorf("unknown raster tag %q", text)
	}
	return nil
}

// RasterInfo references one raster file of a group.
type RasterInfo struct {
	Tag        RasterTag
	Band       string // band name for multi-band datasets, empty otherwise
	BandNumber int
	FileID     FileID
}

// RasterGroup is a set of rasters sharing one nominal acquisition time.
type RasterGroup struct {
	ID              string // catalog-provided identifier, if any
	AcquisitionTime time.Time
	Infos           []RasterInfo
}

// HasValue reports whether the group carries at least one VALUE raster.
func (g *RasterGroup) HasValue() bool {
	for _, info := range g.Infos {
		if info.Tag == TagValue {
			return true
		}
	}
	return false
}

// Value returns the first VALUE raster of the group.
func (g *RasterGroup) Value() (RasterInfo, bool) {
	for _, info := range g.Infos {
		if info.Tag == TagValue {
			return info, true
		}
	}
	return RasterInfo{}, false
}

// HasTime reports whether the acquisition time could be derived.
func (g *RasterGroup) HasTime() bool {
	return !g.AcquisitionTime.IsZero()
}
