package application

import (
	"fmt"

	"github.com/jobrunner/tessera/internal/domain"
)

// ResolveArrayRegion computes the part of a geolocation array that falls
// inside region. The scan is single-pass and allocation-free except for the
// raster mask.
//
// Polygon regions select the first contiguous run of "in" elements. Raster
// regions select [first in, last in] plus an inclusion mask when the span has
// holes. A nil region selects the whole array after the reference-id
// prefilter.
//
// When nothing is selected the returned error is domain.ErrResourceEmpty and
// the selection has Count 0.
func ResolveArrayRegion(req domain.SubsetRequest) (domain.WeightedSelection, error) {
	geo := req.Geo
	if err := validateGeolocation(geo, req.RefID != nil); err != nil {
		return domain.WeightedSelection{}, err
	}

	lo, hi := 0, geo.Len()
	if req.RefID != nil {
		var ok bool
		lo, hi, ok = refIDRange(geo.RefIDs, *req.RefID)
		if !ok {
			return domain.WeightedSelection{}, fmt.Errorf("reference id %d not found: %w", *req.RefID, domain.ErrResourceEmpty)
		}
	}

	s := scanner{
		geo:         geo,
		region:      req.Region,
		skipZeroLat: req.SkipZeroLat,
		lo:          lo,
		hi:          hi,
	}

	var sel domain.WeightedSelection
	switch {
	case req.Region == nil:
		sel = s.all()
	case req.Region.Kind() == domain.RegionRaster:
		sel = s.raster()
	default:
		sel = s.polygon()
	}

	if sel.Empty() {
		return domain.WeightedSelection{}, domain.ErrResourceEmpty
	}
	return sel, nil
}

func validateGeolocation(geo domain.Geolocation, needRefIDs bool) error {
	n := len(geo.Lat)
	if len(geo.Lon) != n {
		return fmt.Errorf("%w: %d latitudes but %d longitudes", domain.ErrInvalidRequest, n, len(geo.Lon))
	}
	if geo.Weights != nil && len(geo.Weights) != n {
		return fmt.Errorf("%w: %d weights for %d elements", domain.ErrInvalidRequest, len(geo.Weights), n)
	}
	if needRefIDs && len(geo.RefIDs) != n {
		return fmt.Errorf("%w: reference-id filter needs %d ids, got %d", domain.ErrInvalidRequest, n, len(geo.RefIDs))
	}
	return nil
}

// refIDRange returns [first, last+1) of the elements carrying id.
func refIDRange(ids []int64, id int64) (int, int, bool) {
	first := -1
	last := -1
	for i, v := range ids {
		if v == id {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return 0, 0, false
	}
	return first, last + 1, true
}

type scanner struct {
	geo         domain.Geolocation
	region      domain.RegionTest
	skipZeroLat bool
	lo, hi      int
}

func (s *scanner) weight(i int) int64 {
	if s.geo.Weights == nil {
		return 1
	}
	return s.geo.Weights[i]
}

// countsAsWeighted reports whether element i may start or end a selection.
func (s *scanner) countsAsWeighted(i int) bool {
	return s.geo.Weights == nil || s.geo.Weights[i] != 0
}

// inside tests element i; sentinel records are excluded without testing.
func (s *scanner) inside(i int) bool {
	if s.skipZeroLat && s.geo.Lat[i] == 0 {
		return false
	}
	return s.region.Includes(s.geo.Lon[i], s.geo.Lat[i])
}

// weightBefore sums weights of [0, lo) so offsets stay absolute.
func (s *scanner) weightBefore() int64 {
	if s.geo.Weights == nil {
		return int64(s.lo)
	}
	var sum int64
	for i := 0; i < s.lo; i++ {
		sum += s.geo.Weights[i]
	}
	return sum
}

func (s *scanner) all() domain.WeightedSelection {
	sel := domain.WeightedSelection{
		CompactSelection: domain.CompactSelection{
			FirstIndex: int64(s.lo),
			Count:      int64(s.hi - s.lo),
		},
		FirstWeight: s.weightBefore(),
	}
	for i := s.lo; i < s.hi; i++ {
		sel.WeightCount += s.weight(i)
	}
	return sel
}

// polygon stops at the first "out" element after the first "in" element.
// Zero-weight elements never start or stop the run, but their weight is
// carried in the running totals.
func (s *scanner) polygon() domain.WeightedSelection {
	firstWeight := s.weightBefore()
	var count int64
	first := -1

	i := s.lo
	for ; i < s.hi; i++ {
		w := s.weight(i)
		if first < 0 {
			if s.countsAsWeighted(i) && s.inside(i) {
				first = i
				count = w
			} else {
				firstWeight += w
			}
			continue
		}
		if s.countsAsWeighted(i) && !s.inside(i) {
			break
		}
		count += w
	}

	if first < 0 {
		return domain.WeightedSelection{}
	}
	return domain.WeightedSelection{
		CompactSelection: domain.CompactSelection{
			FirstIndex: int64(first),
			Count:      int64(i - first),
		},
		FirstWeight: firstWeight,
		WeightCount: count,
	}
}

// raster scans the whole range, keeping the span between the first and the
// last "in" element and a mask of the hits inside that span.
func (s *scanner) raster() domain.WeightedSelection {
	n := int64(s.hi - s.lo)
	mask := domain.NewBitSequence(n)

	firstWeight := s.weightBefore()
	var running, count int64
	first, last := -1, -1

	for i := s.lo; i < s.hi; i++ {
		w := s.weight(i)
		in := s.countsAsWeighted(i) && s.inside(i)
		if in {
			mask.Set(int64(i - s.lo))
		}

		if first < 0 {
			if in {
				first, last = i, i
				running, count = w, w
			} else {
				firstWeight += w
			}
			continue
		}

		running += w
		if in {
			last = i
			count = running
		}
	}

	if first < 0 {
		return domain.WeightedSelection{}
	}

	span := int64(last - first + 1)
	sel := domain.WeightedSelection{
		CompactSelection: domain.CompactSelection{
			FirstIndex: int64(first),
			Count:      span,
		},
		FirstWeight: firstWeight,
		WeightCount: count,
	}

	trimmed := mask.Slice(int64(first-s.lo), int64(last-s.lo+1))
	if !trimmed.All() {
		sel.Mask = trimmed
	}
	return sel
}
