// Package volume pairs a structured grid with the macrocell accelerator built
// over it and provides field sampling in object space.
package volume

import (
	"errors"
	"fmt"

	"github.com/df07/go-progressive-volume/pkg/accel"
	"github.com/df07/go-progressive-volume/pkg/core"
	"github.com/df07/go-progressive-volume/pkg/grid"
)

// Volume is an immutable grid plus its accelerator. Updates replace the
// whole volume.
type Volume struct {
	grid        *grid.Grid
	accelerator *accel.Accelerator
	bounds      core.AABB
}

// New builds the accelerator for g. An empty grid yields a valid volume
// whose iterators are exhausted immediately.
func New(g *grid.Grid, opts accel.Options) (*Volume, error) {
	if g == nil {
		return nil, fmt.Errorf("volume: nil grid")
	}
	a, err := accel.Build(g, opts)
	if errors.Is(err, accel.ErrEmptyGrid) {
		core.Logger().Debug("volume has no voxels", "dimensions", g.Dimensions())
	} else if err != nil {
		return nil, fmt.Errorf("building accelerator: %w", err)
	}

	return &Volume{grid: g, accelerator: a, bounds: g.BoundingBox()}, nil
}

// Grid returns the underlying grid
func (v *Volume) Grid() *grid.Grid { return v.grid }

// Accelerator returns the macrocell index
func (v *Volume) Accelerator() *accel.Accelerator { return v.accelerator }

// Kind returns the grid coordinate system
func (v *Volume) Kind() grid.Kind { return v.grid.Kind() }

// BoundingBox returns the object-space bounds, empty for an empty grid
func (v *Volume) BoundingBox() core.AABB { return v.bounds }

// IsEmpty reports whether the volume has no voxels
func (v *Volume) IsEmpty() bool { return v.grid.IsEmpty() }

// NumAttributes returns the number of scalar attributes
func (v *Volume) NumAttributes() int { return v.grid.NumAttributes() }

// ValueRange returns the range of an attribute over all voxels and timesteps
func (v *Volume) ValueRange(attribute int) core.Range {
	return v.accelerator.AttributeRange(attribute)
}
