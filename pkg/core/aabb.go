package core

import "math"

// minMagnitude is the smallest magnitude a reciprocal is taken of
const minMagnitude = math.SmallestNonzeroFloat32

// DivideSafe returns 1/f, substituting a signed minimum magnitude when f is
// too close to zero so the result stays finite.
func DivideSafe(f float64) float64 {
	if math.Abs(f) < minMagnitude {
		if f >= 0 {
			return 1.0 / minMagnitude
		}
		return -1.0 / minMagnitude
	}
	return 1.0 / f
}

// DivideSafeVec applies DivideSafe to each component
func DivideSafeVec(v Vec3) Vec3 {
	return Vec3{DivideSafe(v.X), DivideSafe(v.Y), DivideSafe(v.Z)}
}

// AABB represents an axis-aligned bounding box
type AABB struct {
	Min Vec3 // Minimum corner
	Max Vec3 // Maximum corner
}

// NewAABB creates a new AABB from min and max points
func NewAABB(min, max Vec3) AABB {
	return AABB{Min: min, Max: max}
}

// EmptyAABB returns a box that contains nothing and is the identity for Extend
func EmptyAABB() AABB {
	inf := math.Inf(1)
	return AABB{Min: NewVec3(inf, inf, inf), Max: NewVec3(-inf, -inf, -inf)}
}

// NewAABBFromPoints creates an AABB that bounds all given points
func NewAABBFromPoints(points ...Vec3) AABB {
	box := EmptyAABB()
	for _, point := range points {
		box = box.Extend(point)
	}
	return box
}

// Extend returns the box grown to include p
func (aabb AABB) Extend(p Vec3) AABB {
	return AABB{Min: aabb.Min.Min(p), Max: aabb.Max.Max(p)}
}

// IntersectRay clips the ray against the box using the slab method and
// returns the parameter range inside both the box and tLimit. The result has
// no extent when the ray misses or the box is empty.
func (aabb AABB) IntersectRay(origin, direction Vec3, tLimit Range) Range {
	if !aabb.IsValid() {
		return EmptyRange()
	}
	rcp := DivideSafeVec(direction)
	mins := aabb.Min.Subtract(origin).MultiplyVec(rcp)
	maxs := aabb.Max.Subtract(origin).MultiplyVec(rcp)

	near := mins.Min(maxs)
	far := mins.Max(maxs)

	return Range{
		Lower: math.Max(near.MaxComponent(), tLimit.Lower),
		Upper: math.Min(far.MinComponent(), tLimit.Upper),
	}
}

// Contains reports whether p lies inside the closed box
func (aabb AABB) Contains(p Vec3) bool {
	return p.X >= aabb.Min.X && p.X <= aabb.Max.X &&
		p.Y >= aabb.Min.Y && p.Y <= aabb.Max.Y &&
		p.Z >= aabb.Min.Z && p.Z <= aabb.Max.Z
}

// Center returns the center point of the AABB
func (aabb AABB) Center() Vec3 {
	return aabb.Min.Add(aabb.Max).Multiply(0.5)
}

// Size returns the size (extent) of the AABB along each axis
func (aabb AABB) Size() Vec3 {
	return aabb.Max.Subtract(aabb.Min)
}

// IsValid returns true if this is a valid AABB (min <= max for all axes)
func (aabb AABB) IsValid() bool {
	return aabb.Min.X <= aabb.Max.X &&
		aabb.Min.Y <= aabb.Max.Y &&
		aabb.Min.Z <= aabb.Max.Z
}
