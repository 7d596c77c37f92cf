// Package grid holds dense structured volume data: per-voxel scalar values
// for one or more attributes and timesteps, plus the mapping between the
// voxel lattice ("local" coordinates) and object space.
package grid

import (
	"errors"
	"fmt"
	"math"

	"github.com/df07/go-progressive-volume/pkg/core"
)

// Kind selects how local lattice coordinates map to object space
type Kind int

const (
	// StructuredRegular maps local coordinates affinely: origin + local*spacing
	StructuredRegular Kind = iota
	// StructuredSpherical interprets local axes as (radius, inclination, azimuth),
	// with angles given in degrees
	StructuredSpherical
)

func (k Kind) String() string {
	switch k {
	case StructuredRegular:
		return "structuredRegular"
	case StructuredSpherical:
		return "structuredSpherical"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind converts a kind name back to a Kind
func ParseKind(name string) (Kind, error) {
	switch name {
	case "structuredRegular", "regular":
		return StructuredRegular, nil
	case "structuredSpherical", "spherical":
		return StructuredSpherical, nil
	}
	return 0, fmt.Errorf("unknown grid kind %q", name)
}

// MarshalText encodes the kind by name
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText accepts any name ParseKind does
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

var (
	ErrInvalidDimensions = errors.New("grid dimensions must be non-negative")
	ErrInvalidSpacing    = errors.New("grid spacing must be non-zero along populated axes")
	ErrStorageSize       = errors.New("voxel buffer size does not match grid dimensions")
	ErrNegativeRadius    = errors.New("spherical grid radius values must be >= 0")
	ErrInclinationRange  = errors.New("spherical grid inclination values must be in [0, 180] degrees")
	ErrAzimuthRange      = errors.New("spherical grid azimuth values must be in [0, 360] degrees")
)

// Config describes grid geometry. For spherical grids Origin and Spacing are
// (radius, inclination°, azimuth°).
type Config struct {
	Kind       Kind
	Dimensions [3]int
	Origin     core.Vec3
	Spacing    core.Vec3
}

// DefaultSphericalSpacing covers the full sphere in inclination and azimuth
// with unit radial spacing.
func DefaultSphericalSpacing(dimensions [3]int) core.Vec3 {
	const epsilon = 1.1920929e-07 // float32 machine epsilon
	return core.NewVec3(
		1,
		180.0/float64(dimensions[1]-1)-epsilon,
		360.0/float64(dimensions[2]-1)-epsilon,
	)
}

// geometry is the validated, pre-transformed part of a Config
type geometry struct {
	kind    Kind
	dims    [3]int
	origin  core.Vec3 // as configured
	spacing core.Vec3 // as configured
	// local-to-object parameters with angles converted to radians
	originRad  core.Vec3
	spacingRad core.Vec3
}

func newGeometry(cfg Config) (geometry, error) {
	for axis, d := range cfg.Dimensions {
		if d < 0 {
			return geometry{}, fmt.Errorf("%w: axis %d has %d voxels", ErrInvalidDimensions, axis, d)
		}
		if d > 1 && cfg.Spacing.Axis(axis) == 0 {
			return geometry{}, fmt.Errorf("%w: axis %d", ErrInvalidSpacing, axis)
		}
	}

	g := geometry{
		kind:       cfg.Kind,
		dims:       cfg.Dimensions,
		origin:     cfg.Origin,
		spacing:    cfg.Spacing,
		originRad:  cfg.Origin,
		spacingRad: cfg.Spacing,
	}

	if cfg.Kind == StructuredSpherical {
		if err := validateSpherical(cfg); err != nil {
			return geometry{}, err
		}
		toRadians := core.NewVec3(1, math.Pi/180, math.Pi/180)
		g.originRad = cfg.Origin.MultiplyVec(toRadians)
		g.spacingRad = cfg.Spacing.MultiplyVec(toRadians)
	}

	return g, nil
}

// axisRange returns the range of configured coordinates covered along an axis.
// Spacing may be negative so the bounds are ordered explicitly.
func axisRange(cfg Config, axis int) core.Range {
	o := cfg.Origin.Axis(axis)
	last := o + float64(max(cfg.Dimensions[axis]-1, 0))*cfg.Spacing.Axis(axis)
	return core.EmptyRange().Extend(o).Extend(last)
}

// validateSpherical requires each object coordinate to correspond to a unique
// logical coordinate.
func validateSpherical(cfg Config) error {
	radius := axisRange(cfg, 0)
	inclination := axisRange(cfg, 1)
	azimuth := axisRange(cfg, 2)

	if radius.Lower < 0 {
		return fmt.Errorf("%w: got %g", ErrNegativeRadius, radius.Lower)
	}
	if inclination.Lower < 0 || inclination.Upper > 180 {
		return fmt.Errorf("%w: got [%g, %g]", ErrInclinationRange, inclination.Lower, inclination.Upper)
	}
	if azimuth.Lower < 0 || azimuth.Upper > 360 {
		return fmt.Errorf("%w: got [%g, %g]", ErrAzimuthRange, azimuth.Lower, azimuth.Upper)
	}
	return nil
}

// Grid is an immutable dense structured volume
type Grid struct {
	geometry
	// data[attribute][timestep][x + dx*(y + dy*z)]
	data [][][]float32
}

// New validates the configuration and voxel buffers and creates a grid.
// data is indexed [attribute][timestep][voxel]; every attribute must carry
// the same number of timesteps. The buffers are retained, not copied.
func New(cfg Config, data [][][]float32) (*Grid, error) {
	geom, err := newGeometry(cfg)
	if err != nil {
		return nil, err
	}

	numVoxels := geom.numVoxels()
	if numVoxels > 0 && len(data) == 0 {
		return nil, fmt.Errorf("%w: no attributes for %d voxels", ErrStorageSize, numVoxels)
	}

	numTimesteps := -1
	for a, steps := range data {
		if len(steps) == 0 {
			return nil, fmt.Errorf("%w: attribute %d has no timesteps", ErrStorageSize, a)
		}
		if numTimesteps >= 0 && len(steps) != numTimesteps {
			return nil, fmt.Errorf("%w: attribute %d has %d timesteps, expected %d",
				ErrStorageSize, a, len(steps), numTimesteps)
		}
		numTimesteps = len(steps)
		for s, voxels := range steps {
			if len(voxels) != numVoxels {
				return nil, fmt.Errorf("%w: attribute %d timestep %d has %d values, expected %d",
					ErrStorageSize, a, s, len(voxels), numVoxels)
			}
		}
	}

	return &Grid{geometry: geom, data: data}, nil
}

func (g geometry) numVoxels() int {
	return g.dims[0] * g.dims[1] * g.dims[2]
}

// Config returns the configuration the grid was built from
func (g *Grid) Config() Config {
	return Config{Kind: g.kind, Dimensions: g.dims, Origin: g.origin, Spacing: g.spacing}
}

// Kind returns the coordinate system of the grid
func (g *Grid) Kind() Kind { return g.kind }

// Dimensions returns the voxel count per axis
func (g *Grid) Dimensions() [3]int { return g.dims }

// Spacing returns the configured spacing (degrees for spherical angles)
func (g *Grid) Spacing() core.Vec3 { return g.spacing }

// Origin returns the configured origin
func (g *Grid) Origin() core.Vec3 { return g.origin }

// NumVoxels returns the number of voxels per attribute and timestep
func (g *Grid) NumVoxels() int { return g.numVoxels() }

// IsEmpty reports whether any axis has zero voxels
func (g *Grid) IsEmpty() bool { return g.numVoxels() == 0 }

// NumAttributes returns the number of scalar attributes per voxel
func (g *Grid) NumAttributes() int { return len(g.data) }

// NumTimesteps returns the number of temporally structured timesteps
func (g *Grid) NumTimesteps() int {
	if len(g.data) == 0 {
		return 0
	}
	return len(g.data[0])
}

// Voxel returns the stored value at integer lattice coordinates
func (g *Grid) Voxel(attribute, timestep, x, y, z int) float32 {
	return g.data[attribute][timestep][x+g.dims[0]*(y+g.dims[1]*z)]
}

// LocalToObject maps continuous lattice coordinates to object space
func (g *Grid) LocalToObject(local core.Vec3) core.Vec3 {
	c := g.originRad.Add(local.MultiplyVec(g.spacingRad))
	if g.kind == StructuredSpherical {
		return sphericalToCartesian(c.X, c.Y, c.Z)
	}
	return c
}

// ObjectToLocal maps an object-space point to continuous lattice coordinates
func (g *Grid) ObjectToLocal(p core.Vec3) core.Vec3 {
	c := p
	if g.kind == StructuredSpherical {
		c = cartesianToSpherical(p)
	}
	return c.Subtract(g.originRad).DivideVec(g.spacingRad)
}

// LocalBoundsToObject returns the object-space bounding box of the local box
// [lo, hi]. For spherical grids the box is exact: it accounts for the angular
// extrema inside the patch, not only its corners.
func (g *Grid) LocalBoundsToObject(lo, hi core.Vec3) core.AABB {
	if g.kind != StructuredSpherical {
		return core.NewAABBFromPoints(g.LocalToObject(lo), g.LocalToObject(hi))
	}
	a := g.originRad.Add(lo.MultiplyVec(g.spacingRad))
	b := g.originRad.Add(hi.MultiplyVec(g.spacingRad))
	return sphericalPatchBounds(
		core.EmptyRange().Extend(a.X).Extend(b.X),
		core.EmptyRange().Extend(a.Y).Extend(b.Y),
		core.EmptyRange().Extend(a.Z).Extend(b.Z),
	)
}

// MaxLocal returns the largest valid lattice coordinate per axis
func (g *Grid) MaxLocal() core.Vec3 {
	return core.NewVec3(float64(g.dims[0]-1), float64(g.dims[1]-1), float64(g.dims[2]-1))
}

// BoundingBox returns the object-space bounds of the voxel lattice. Empty
// grids return an empty box.
func (g *Grid) BoundingBox() core.AABB {
	if g.IsEmpty() {
		return core.EmptyAABB()
	}
	return g.LocalBoundsToObject(core.Vec3{}, g.MaxLocal())
}
