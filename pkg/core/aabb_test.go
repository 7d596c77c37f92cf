package core

import (
	"math"
	"testing"
)

func TestRange_EmptyAndExtent(t *testing.T) {
	tests := []struct {
		name      string
		r         Range
		empty     bool
		hasExtent bool
	}{
		{"canonical empty", EmptyRange(), true, false},
		{"degenerate", NewRange(2, 2), false, false},
		{"regular", NewRange(1, 2), false, true},
		{"inverted", NewRange(3, 1), true, false},
		{"nan", NewRange(math.NaN(), 1), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.IsEmpty(); got != tt.empty {
				t.Errorf("IsEmpty() = %v, expected %v", got, tt.empty)
			}
			if got := tt.r.HasExtent(); got != tt.hasExtent {
				t.Errorf("HasExtent() = %v, expected %v", got, tt.hasExtent)
			}
		})
	}
}

func TestRange_ExtendIgnoresNaN(t *testing.T) {
	r := EmptyRange().Extend(3).Extend(math.NaN()).Extend(-1)
	if r != NewRange(-1, 3) {
		t.Errorf("Expected [-1,3], got %v", r)
	}
}

func TestRange_Overlaps(t *testing.T) {
	tests := []struct {
		a, b     Range
		expected bool
	}{
		{NewRange(0, 1), NewRange(1, 2), true},
		{NewRange(0, 1), NewRange(1.5, 2), false},
		{NewRange(0, 10), NewRange(4, 5), true},
		{NewRange(5, 5), NewRange(5, 5), true},
		{EmptyRange(), NewRange(0, 1), false},
	}
	for _, tt := range tests {
		if got := tt.a.Overlaps(tt.b); got != tt.expected {
			t.Errorf("%v.Overlaps(%v) = %v, expected %v", tt.a, tt.b, got, tt.expected)
		}
	}
}

func TestRange_Intersect(t *testing.T) {
	tests := []struct {
		a, b       Range
		expected   Range
		expectExtent bool
	}{
		{NewRange(0, 2), NewRange(1, 3), NewRange(1, 2), true},
		{NewRange(0, 10), NewRange(4, 5), NewRange(4, 5), true},
		{NewRange(0, 1), NewRange(1, 2), NewRange(1, 1), false},
		{NewRange(0, 1), NewRange(2, 3), NewRange(2, 1), false},
	}
	for _, tt := range tests {
		got := tt.a.Intersect(tt.b)
		if got != tt.expected || got.HasExtent() != tt.expectExtent {
			t.Errorf("%v.Intersect(%v) = %v, expected %v", tt.a, tt.b, got, tt.expected)
		}
	}
}

func TestDivideSafe(t *testing.T) {
	if got := DivideSafe(2); got != 0.5 {
		t.Errorf("DivideSafe(2) = %v", got)
	}
	pos := DivideSafe(0)
	neg := DivideSafe(math.Copysign(0, -1) - 1e-300)
	if math.IsInf(pos, 0) || math.IsNaN(pos) || pos <= 0 {
		t.Errorf("DivideSafe(0) should be large positive and finite, got %v", pos)
	}
	if math.IsInf(neg, 0) || neg >= 0 {
		t.Errorf("DivideSafe(tiny negative) should be large negative and finite, got %v", neg)
	}
}

func TestAABB_IntersectRay(t *testing.T) {
	box := NewAABB(NewVec3(0, 0, 0), NewVec3(1, 1, 1))
	all := NewRange(0, math.Inf(1))

	tests := []struct {
		name      string
		origin    Vec3
		direction Vec3
		limit     Range
		expected  Range
		hit       bool
	}{
		{"through x", NewVec3(-1, 0.5, 0.5), NewVec3(1, 0, 0), all, NewRange(1, 2), true},
		{"scaled direction", NewVec3(-1, 0.5, 0.5), NewVec3(2, 0, 0), all, NewRange(0.5, 1), true},
		{"reverse", NewVec3(2, 0.5, 0.5), NewVec3(-1, 0, 0), all, NewRange(1, 2), true},
		{"inside", NewVec3(0.5, 0.5, 0.5), NewVec3(0, 0, 1), all, NewRange(0, 0.5), true},
		{"clipped by limit", NewVec3(-1, 0.5, 0.5), NewVec3(1, 0, 0), NewRange(1.25, 1.5), NewRange(1.25, 1.5), true},
		{"miss", NewVec3(-1, 2, 0.5), NewVec3(1, 0, 0), all, Range{}, false},
		{"behind", NewVec3(2, 0.5, 0.5), NewVec3(1, 0, 0), all, Range{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := box.IntersectRay(tt.origin, tt.direction, tt.limit)
			if got.HasExtent() != tt.hit {
				t.Fatalf("HasExtent() = %v, expected %v (range %v)", got.HasExtent(), tt.hit, got)
			}
			if tt.hit && (math.Abs(got.Lower-tt.expected.Lower) > 1e-9 || math.Abs(got.Upper-tt.expected.Upper) > 1e-9) {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestAABB_ExtendFromEmpty(t *testing.T) {
	box := NewAABBFromPoints(NewVec3(1, -2, 3), NewVec3(-1, 2, 0))
	if box.Min != NewVec3(-1, -2, 0) || box.Max != NewVec3(1, 2, 3) {
		t.Errorf("Unexpected box %v", box)
	}
	if EmptyAABB().IsValid() {
		t.Error("Empty box should not be valid")
	}
}
