package accel

import (
	"slices"

	"github.com/df07/go-progressive-volume/pkg/core"
)

// ValueRanges is a caller's set of value intervals of interest. The zero
// value selects everything.
type ValueRanges struct {
	ranges []core.Range
	bound  core.Range
}

// NewValueRanges drops empty ranges, sorts the remainder by lower bound and
// precomputes their union bound.
func NewValueRanges(ranges ...core.Range) ValueRanges {
	kept := make([]core.Range, 0, len(ranges))
	for _, r := range ranges {
		if !r.IsEmpty() {
			kept = append(kept, r)
		}
	}
	slices.SortFunc(kept, func(a, b core.Range) int {
		switch {
		case a.Lower < b.Lower:
			return -1
		case a.Lower > b.Lower:
			return 1
		}
		return 0
	})

	bound := core.EmptyRange()
	for _, r := range kept {
		bound = bound.Union(r)
	}
	return ValueRanges{ranges: kept, bound: bound}
}

// FromValues creates degenerate [v, v] ranges, one per isovalue. NaN values
// are dropped.
func FromValues(values ...float64) ValueRanges {
	ranges := make([]core.Range, 0, len(values))
	for _, v := range values {
		ranges = append(ranges, core.NewRange(v, v))
	}
	return NewValueRanges(ranges...)
}

// IsEmpty reports whether no ranges were given, which means "everything"
func (v ValueRanges) IsEmpty() bool { return len(v.ranges) == 0 }

// Ranges returns the sorted sub-intervals
func (v ValueRanges) Ranges() []core.Range { return slices.Clone(v.ranges) }

// Bound returns the union bound of all sub-intervals
func (v ValueRanges) Bound() core.Range { return v.bound }

// Overlaps reports whether a cell with value range r can contain values of
// interest. With no ranges set every cell qualifies. Otherwise r must
// overlap the union bound and at least one sub-interval.
func (v ValueRanges) Overlaps(r core.Range) bool {
	if len(v.ranges) == 0 {
		return true
	}
	if r.IsEmpty() || !r.Overlaps(v.bound) {
		return false
	}
	for _, sub := range v.ranges {
		if sub.Overlaps(r) {
			return true
		}
	}
	return false
}
