package domain

import (
	"github.com/RoaringBitmap/roaring"
)

// BitSequence is a fixed-length sequence of bits backed by a roaring bitmap.
// Only set positions are stored, so sparse masks over long arrays stay small.
type BitSequence struct {
	bits   *roaring.Bitmap
	length int64
}

// NewBitSequence creates an all-false sequence of the given length.
func NewBitSequence(length int64) *BitSequence {
	if length < 0 {
		length = 0
	}
	return &BitSequence{bits: roaring.New(), length: length}
}

// BitSequenceOf builds a sequence from a slice of booleans.
func BitSequenceOf(values []bool) *BitSequence {
	b := NewBitSequence(int64(len(values)))
	for i, v := range values {
		if v {
			b.bits.Add(uint32(i)) //#nosec G115 -- index bounded by slice length
		}
	}
	return b
}

// Len returns the sequence length.
func (b *BitSequence) Len() int64 {
	return b.length
}

// Set marks position i. Out-of-range positions are ignored.
func (b *BitSequence) Set(i int64) {
	if i < 0 || i >= b.length {
		return
	}
	b.bits.Add(uint32(i)) //#nosec G115 -- bounds checked above
}

// Get reports whether position i is set.
func (b *BitSequence) Get(i int64) bool {
	if i < 0 || i >= b.length {
		return false
	}
	return b.bits.Contains(uint32(i)) //#nosec G115 -- bounds checked above
}

// Count returns the number of set positions.
func (b *BitSequence) Count() int64 {
	return int64(b.bits.GetCardinality()) //#nosec G115 -- cardinality bounded by length
}

// All reports whether every position is set.
func (b *BitSequence) All() bool {
	return b.Count() == b.length
}

// Slice returns positions [from, to) as a new sequence indexed from zero.
func (b *BitSequence) Slice(from, to int64) *BitSequence {
	if from < 0 {
		from = 0
	}
	if to > b.length {
		to = b.length
	}
	if to <= from {
		return NewBitSequence(0)
	}

	out := NewBitSequence(to - from)
	it := b.bits.Iterator()
	it.AdvanceIfNeeded(uint32(from)) //#nosec G115 -- from in [0, length)
	for it.HasNext() {
		v := int64(it.Next())
		if v >= to {
			break
		}
		out.bits.Add(uint32(v - from)) //#nosec G115 -- v-from < length
	}
	return out
}

// Bools expands the sequence into a boolean slice.
func (b *BitSequence) Bools() []bool {
	out := make([]bool, b.length)
	it := b.bits.Iterator()
	for it.HasNext() {
		out[it.Next()] = true
	}
	return out
}

// CompactSelection is a contiguous index range over an ordered array plus an
// optional inclusion mask for ranges with holes.
//
// Mask, when non-nil, has length Count and is indexed relative to FirstIndex.
// A nil Mask means every element of [FirstIndex, FirstIndex+Count) is included.
type CompactSelection struct {
	FirstIndex int64
	Count      int64
	Mask       *BitSequence
}

// Empty reports whether the selection covers no elements. Empty selections
// must not be read at all.
func (s CompactSelection) Empty() bool {
	return s.Count <= 0
}

// End returns the exclusive end index of the range.
func (s CompactSelection) End() int64 {
	return s.FirstIndex + s.Count
}

// Includes reports whether absolute index i is selected.
func (s CompactSelection) Includes(i int64) bool {
	if i < s.FirstIndex || i >= s.End() {
		return false
	}
	if s.Mask == nil {
		return true
	}
	return s.Mask.Get(i - s.FirstIndex)
}

// Selected returns the number of included elements.
func (s CompactSelection) Selected() int64 {
	if s.Empty() {
		return 0
	}
	if s.Mask == nil {
		return s.Count
	}
	return s.Mask.Count()
}

// WeightedSelection extends a selection over weighted elements (e.g. segments
// carrying photon counts) with the matching range in the weighted domain.
type WeightedSelection struct {
	CompactSelection
	FirstWeight int64 // sum of weights before FirstIndex
	WeightCount int64 // sum of weights inside the selected range
}
