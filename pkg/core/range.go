package core

import "math"

// Range is a closed scalar interval [Lower, Upper]. It is used both for ray
// parameter ranges and for value ranges.
type Range struct {
	Lower float64
	Upper float64
}

// NewRange creates a range from its bounds
func NewRange(lower, upper float64) Range {
	return Range{Lower: lower, Upper: upper}
}

// EmptyRange returns the canonical empty range [+inf, -inf], the identity for Extend
func EmptyRange() Range {
	return Range{Lower: math.Inf(1), Upper: math.Inf(-1)}
}

// IsEmpty reports whether the range contains no values (Lower > Upper).
// A degenerate range [v, v] is not empty.
func (r Range) IsEmpty() bool {
	return !(r.Lower <= r.Upper)
}

// HasExtent reports whether the range has strictly positive width
func (r Range) HasExtent() bool {
	return r.Upper > r.Lower
}

// Size returns Upper - Lower
func (r Range) Size() float64 {
	return r.Upper - r.Lower
}

// Center returns the midpoint of the range
func (r Range) Center() float64 {
	return 0.5 * (r.Lower + r.Upper)
}

// Contains reports whether v lies within the closed range
func (r Range) Contains(v float64) bool {
	return v >= r.Lower && v <= r.Upper
}

// Overlaps reports whether two closed ranges share at least one value
func (r Range) Overlaps(other Range) bool {
	return r.Upper >= other.Lower && r.Lower <= other.Upper
}

// Extend grows the range to include v. NaN values are ignored.
func (r Range) Extend(v float64) Range {
	if math.IsNaN(v) {
		return r
	}
	return Range{Lower: math.Min(r.Lower, v), Upper: math.Max(r.Upper, v)}
}

// Union returns the smallest range covering both ranges
func (r Range) Union(other Range) Range {
	if other.IsEmpty() {
		return r
	}
	if r.IsEmpty() {
		return other
	}
	return Range{Lower: math.Min(r.Lower, other.Lower), Upper: math.Max(r.Upper, other.Upper)}
}

// Intersect returns the overlap of both ranges (possibly empty)
func (r Range) Intersect(other Range) Range {
	return Range{Lower: math.Max(r.Lower, other.Lower), Upper: math.Min(r.Upper, other.Upper)}
}

// Clamp limits v to the range
func (r Range) Clamp(v float64) float64 {
	return math.Max(r.Lower, math.Min(r.Upper, v))
}
