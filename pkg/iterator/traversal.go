package iterator

import (
	"math"

	"github.com/df07/go-progressive-volume/pkg/accel"
	"github.com/df07/go-progressive-volume/pkg/core"
)

// tieTolerance is the relative distance within which several axes are
// considered to cross their cell boundary at the same t
const tieTolerance = 1e-9

// traversal walks the macrocells pierced by a ray in increasing t order
// (Amanatides-Woo DDA in macrocell units).
type traversal struct {
	accel     *accel.Accelerator
	origin    core.Vec3
	direction core.Vec3

	// ray expressed in macrocell lattice units
	cellOrigin    core.Vec3
	cellDir       core.Vec3
	invCellDir    core.Vec3
	step          [3]int
	bounds        core.Range // ray ∩ grid bounding box ∩ caller range
	nominalDeltaT float64

	cell      [3]int // (-1,-1,-1) before the first cell
	tEntry    float64
	lastUpper float64
	exhausted bool
}

func newTraversal(a *accel.Accelerator, bbox core.AABB, origin, direction core.Vec3, tRange core.Range) traversal {
	tr := traversal{
		accel:     a,
		origin:    origin,
		direction: direction,
		cell:      [3]int{-1, -1, -1},
	}

	tr.bounds = bbox.IntersectRay(origin, direction, tRange)
	if !tr.bounds.HasExtent() || direction.LengthSquared() == 0 || a.NumCells() == 0 {
		tr.exhausted = true
		return tr
	}

	g := a.Grid()
	spacing := g.Spacing()
	tr.nominalDeltaT = spacing.Abs().MultiplyVec(core.DivideSafeVec(direction.Abs())).MinComponent()

	invWidth := 1.0 / float64(a.CellWidth())
	tr.cellOrigin = g.ObjectToLocal(origin).Multiply(invWidth)
	tr.cellDir = direction.DivideVec(spacing).Multiply(invWidth)
	tr.invCellDir = core.DivideSafeVec(tr.cellDir)
	for axis := range 3 {
		if tr.cellDir.Axis(axis) < 0 {
			tr.step[axis] = -1
		} else {
			tr.step[axis] = 1
		}
	}

	tr.tEntry = tr.bounds.Lower
	tr.lastUpper = tr.bounds.Lower
	return tr
}

// entryCell locates the macrocell containing the clipped entry point,
// clamped into the lattice against rounding at the bounding box faces
func (tr *traversal) entryCell() [3]int {
	p := tr.cellOrigin.Add(tr.cellDir.Multiply(tr.bounds.Lower))
	dims := tr.accel.CellDims()
	var cell [3]int
	for axis := range 3 {
		cell[axis] = max(0, min(dims[axis]-1, int(math.Floor(p.Axis(axis)))))
	}
	return cell
}

// cellRange returns the part of the ray inside a macrocell. It is computed in
// lattice units from the same numbers as entryCell and advance, so a ray lying
// on a macrocell face is never assigned a cell it misses. Axes the ray does not
// move along never constrain the range.
func (tr *traversal) cellRange(cell [3]int) core.Range {
	r := tr.bounds
	for axis := range 3 {
		if tr.cellDir.Axis(axis) == 0 {
			continue
		}
		o, inv := tr.cellOrigin.Axis(axis), tr.invCellDir.Axis(axis)
		t0 := (float64(cell[axis]) - o) * inv
		t1 := (float64(cell[axis]+1) - o) * inv
		r = r.Intersect(core.NewRange(min(t0, t1), max(t0, t1)))
	}
	return r
}

// advance moves to the neighbouring cell across the nearest far boundary.
// All axes reaching their boundary at the same t advance together.
func (tr *traversal) advance() {
	var tFar [3]float64
	tExit := math.Inf(1)
	for axis := range 3 {
		boundary := float64(tr.cell[axis])
		if tr.step[axis] > 0 {
			boundary++
		}
		tFar[axis] = (boundary - tr.cellOrigin.Axis(axis)) * tr.invCellDir.Axis(axis)
		tExit = min(tExit, tFar[axis])
	}

	tolerance := tieTolerance * max(1, math.Abs(tExit))
	for axis := range 3 {
		if tFar[axis]-tExit <= tolerance {
			tr.cell[axis] += tr.step[axis]
		}
	}
	tr.tEntry = tExit
}

// next returns the next macrocell along the ray and the part of the ray
// inside it. Returned ranges are ordered and do not overlap.
func (tr *traversal) next() ([3]int, core.Range, bool) {
	for !tr.exhausted {
		if tr.cell[0] == -1 {
			tr.cell = tr.entryCell()
		} else {
			tr.advance()
		}

		if !tr.accel.InBounds(tr.cell) || tr.tEntry >= tr.bounds.Upper {
			tr.exhausted = true
			break
		}

		r := tr.cellRange(tr.cell)
		r.Lower = max(r.Lower, tr.lastUpper)
		if !r.HasExtent() {
			// grazing a corner or edge; keep stepping
			continue
		}
		tr.lastUpper = r.Upper
		return tr.cell, r, true
	}
	return [3]int{}, core.Range{}, false
}
