// Package accel builds the macrocell acceleration structure over a dense
// structured grid. Each macrocell stores the range of values it covers per
// attribute so traversal can skip space a caller is not interested in.
package accel

import (
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/df07/go-progressive-volume/pkg/core"
	"github.com/df07/go-progressive-volume/pkg/grid"
)

const (
	// DefaultCellWidthBits gives 16-voxel macrocells
	DefaultCellWidthBits = 4
	// BrickWidthBits groups 16×16×16 macrocells into one brick of the flat index
	BrickWidthBits = 4

	brickWidth = 1 << BrickWidthBits
	brickMask  = brickWidth - 1
	brickCells = 1 << (3 * BrickWidthBits)
)

// ErrEmptyGrid is returned by Build for grids with a zero dimension. The
// accelerator returned alongside it is usable and reports empty ranges.
var ErrEmptyGrid = errors.New("cannot build macrocell accelerator for an empty grid")

// Options configures the accelerator
type Options struct {
	CellWidthBits int // macrocell edge is 1<<CellWidthBits voxels
}

// DefaultOptions returns 16-voxel macrocells
func DefaultOptions() Options {
	return Options{CellWidthBits: DefaultCellWidthBits}
}

// Accelerator is an immutable per-macrocell value range index. It is owned by
// the volume that built it and shares the grid's lifetime.
type Accelerator struct {
	grid          *grid.Grid
	cellWidthBits int
	cellWidth     int
	cellDims      [3]int // macrocells per axis
	bricks        [3]int // bricks per axis
	numAttributes int

	// ranges[CellIndex1D(cell)*numAttributes + attribute]
	ranges []core.Range
	// attributeRanges[attribute] is the union over all cells
	attributeRanges []core.Range
}

// Build partitions the grid into macrocells and records, per attribute, the
// value range over all timesteps of the voxels each cell covers. The range
// includes the one-voxel halo on the upper side needed by trilinear
// interpolation. NaN voxels are ignored.
func Build(g *grid.Grid, opts Options) (*Accelerator, error) {
	if opts.CellWidthBits <= 0 {
		opts.CellWidthBits = DefaultCellWidthBits
	}

	a := &Accelerator{
		grid:          g,
		cellWidthBits: opts.CellWidthBits,
		cellWidth:     1 << opts.CellWidthBits,
		numAttributes: g.NumAttributes(),
	}
	a.attributeRanges = make([]core.Range, a.numAttributes)
	for i := range a.attributeRanges {
		a.attributeRanges[i] = core.EmptyRange()
	}

	if g.IsEmpty() {
		return a, ErrEmptyGrid
	}

	start := time.Now()
	dims := g.Dimensions()
	for axis := range 3 {
		a.cellDims[axis] = (dims[axis] + a.cellWidth - 1) / a.cellWidth
		a.bricks[axis] = (a.cellDims[axis] + brickMask) >> BrickWidthBits
	}

	numSlots := a.bricks[0] * a.bricks[1] * a.bricks[2] * brickCells
	a.ranges = make([]core.Range, numSlots*a.numAttributes)
	for i := range a.ranges {
		a.ranges[i] = core.EmptyRange()
	}

	a.buildRanges()

	for cz := range a.cellDims[2] {
		for cy := range a.cellDims[1] {
			for cx := range a.cellDims[0] {
				base := a.CellIndex1D([3]int{cx, cy, cz}) * a.numAttributes
				for attr := range a.numAttributes {
					a.attributeRanges[attr] = a.attributeRanges[attr].Union(a.ranges[base+attr])
				}
			}
		}
	}

	core.Logger().Debug("built macrocell accelerator",
		"cells", a.NumCells(),
		"cellWidth", a.cellWidth,
		"attributes", a.numAttributes,
		"timesteps", g.NumTimesteps(),
		"elapsed", time.Since(start))

	return a, nil
}

// buildRanges scans z-slabs of macrocells in parallel. Each cell writes only
// its own slots so the result does not depend on scheduling.
func (a *Accelerator) buildRanges() {
	slabs := make(chan int)
	var wg sync.WaitGroup
	for range min(runtime.NumCPU(), a.cellDims[2]) {
		wg.Go(func() {
			for cz := range slabs {
				for cy := range a.cellDims[1] {
					for cx := range a.cellDims[0] {
						a.scanCell([3]int{cx, cy, cz})
					}
				}
			}
		})
	}
	for cz := range a.cellDims[2] {
		slabs <- cz
	}
	close(slabs)
	wg.Wait()
}

func (a *Accelerator) scanCell(cell [3]int) {
	dims := a.grid.Dimensions()
	var lo, hi [3]int
	for axis := range 3 {
		lo[axis] = cell[axis] * a.cellWidth
		// inclusive upper voxel, one past the cell for the interpolation halo
		hi[axis] = min((cell[axis]+1)*a.cellWidth, dims[axis]-1)
	}

	base := a.CellIndex1D(cell) * a.numAttributes
	for attr := range a.numAttributes {
		r := core.EmptyRange()
		for step := range a.grid.NumTimesteps() {
			for z := lo[2]; z <= hi[2]; z++ {
				for y := lo[1]; y <= hi[1]; y++ {
					for x := lo[0]; x <= hi[0]; x++ {
						r = r.Extend(float64(a.grid.Voxel(attr, step, x, y, z)))
					}
				}
			}
		}
		a.ranges[base+attr] = r
	}
}

// CellIndex1D maps a macrocell index to its slot in the flat range storage.
//
// The layout with B = BrickWidthBits is
//
//	brickAddress << 3B | (cz & mask) << 2B | (cy & mask) << B | (cx & mask)
//
// where brickAddress = bx + bricksX*(by + bricksY*bz) and b* = c* >> B.
func (a *Accelerator) CellIndex1D(cell [3]int) int {
	bx := cell[0] >> BrickWidthBits
	by := cell[1] >> BrickWidthBits
	bz := cell[2] >> BrickWidthBits
	brickAddress := bx + a.bricks[0]*(by+a.bricks[1]*bz)

	return brickAddress<<(3*BrickWidthBits) |
		(cell[2]&brickMask)<<(2*BrickWidthBits) |
		(cell[1]&brickMask)<<BrickWidthBits |
		cell[0]&brickMask
}

// CellFromIndex1D inverts CellIndex1D
func (a *Accelerator) CellFromIndex1D(index int) [3]int {
	brickAddress := index >> (3 * BrickWidthBits)
	bx := brickAddress % a.bricks[0]
	by := (brickAddress / a.bricks[0]) % a.bricks[1]
	bz := brickAddress / (a.bricks[0] * a.bricks[1])
	return [3]int{
		bx<<BrickWidthBits | index&brickMask,
		by<<BrickWidthBits | (index>>BrickWidthBits)&brickMask,
		bz<<BrickWidthBits | (index>>(2*BrickWidthBits))&brickMask,
	}
}

// Grid returns the grid the accelerator was built over
func (a *Accelerator) Grid() *grid.Grid { return a.grid }

// CellDims returns the number of macrocells per axis
func (a *Accelerator) CellDims() [3]int { return a.cellDims }

// CellWidth returns the macrocell edge length in voxels
func (a *Accelerator) CellWidth() int { return a.cellWidth }

// NumCells returns the number of macrocells covering the grid
func (a *Accelerator) NumCells() int {
	return a.cellDims[0] * a.cellDims[1] * a.cellDims[2]
}

// InBounds reports whether the macrocell index lies inside the lattice
func (a *Accelerator) InBounds(cell [3]int) bool {
	for axis := range 3 {
		if cell[axis] < 0 || cell[axis] >= a.cellDims[axis] {
			return false
		}
	}
	return true
}

// CellBounds returns the object-space bounds of a macrocell. Cells on the
// upper boundary are clipped to the last voxel.
func (a *Accelerator) CellBounds(cell [3]int) core.AABB {
	w := float64(a.cellWidth)
	lo := core.NewVec3(float64(cell[0])*w, float64(cell[1])*w, float64(cell[2])*w)
	hi := lo.Add(core.NewVec3(w, w, w)).Min(a.grid.MaxLocal())
	return a.grid.LocalBoundsToObject(lo, hi)
}

// CellValueRange returns the recorded range of an attribute within a cell.
// Cells outside the lattice report an empty range.
func (a *Accelerator) CellValueRange(cell [3]int, attribute int) core.Range {
	if !a.InBounds(cell) || attribute < 0 || attribute >= a.numAttributes {
		return core.EmptyRange()
	}
	return a.ranges[a.CellIndex1D(cell)*a.numAttributes+attribute]
}

// AttributeRange returns the value range of an attribute over the whole grid
func (a *Accelerator) AttributeRange(attribute int) core.Range {
	if attribute < 0 || attribute >= a.numAttributes {
		return core.EmptyRange()
	}
	return a.attributeRanges[attribute]
}
