package scene

import (
	"fmt"
	"slices"

	"github.com/df07/go-progressive-volume/pkg/accel"
	"github.com/df07/go-progressive-volume/pkg/core"
	"github.com/df07/go-progressive-volume/pkg/grid"
	"github.com/df07/go-progressive-volume/pkg/integrator"
	"github.com/df07/go-progressive-volume/pkg/loaders"
	"github.com/df07/go-progressive-volume/pkg/volume"
)

// VolumeParams describes a procedural volume. Changing any of them rebuilds
// the grid and its accelerator.
type VolumeParams struct {
	GridKind      grid.Kind
	Dimensions    [3]int
	Origin        core.Vec3 // Regular grids: object position of voxel (0,0,0). Spherical: (r, θ, φ) in degrees
	Spacing       core.Vec3 // Zero means span [-1,1]³ (regular) or the full sphere (spherical)
	Field         string    // One of FieldNames()
	Slices        string    // Glob of image slices; replaces Field and Dimensions when set
	NumTimesteps  int
	CellWidthBits int
	Filter        volume.Filter
}

// DefaultVolumeParams returns a 64³ wavelet over [-1,1]³
func DefaultVolumeParams() VolumeParams {
	return VolumeParams{
		GridKind:      grid.StructuredRegular,
		Dimensions:    [3]int{64, 64, 64},
		Origin:        core.NewVec3(-1, -1, -1),
		Field:         "wavelet",
		NumTimesteps:  1,
		CellWidthBits: accel.DefaultCellWidthBits,
		Filter:        volume.FilterTrilinear,
	}
}

// GridConfig resolves defaults into a grid configuration
func (p VolumeParams) GridConfig() grid.Config {
	cfg := grid.Config{
		Kind:       p.GridKind,
		Dimensions: p.Dimensions,
		Origin:     p.Origin,
		Spacing:    p.Spacing,
	}
	if p.Spacing != (core.Vec3{}) {
		return cfg
	}
	switch p.GridKind {
	case grid.StructuredSpherical:
		cfg.Origin = core.Vec3{}
		cfg.Spacing = grid.DefaultSphericalSpacing(p.Dimensions)
	default:
		var spacing [3]float64
		for axis := range 3 {
			spacing[axis] = 2 / float64(max(1, p.Dimensions[axis]-1))
		}
		cfg.Spacing = core.NewVec3(spacing[0], spacing[1], spacing[2])
	}
	return cfg
}

var fields = map[string]grid.FieldFunc{
	"wavelet":         grid.Wavelet,
	"xyz":             grid.XYZ,
	"sphere":          grid.RotatingSphere(core.Vec3{}, 0),
	"rotating_sphere": grid.RotatingSphere(core.Vec3{}, 0.4),
	"constant":        grid.Constant(1),
}

// FieldNames lists the procedural fields in a stable order
func FieldNames() []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Build generates the grid and its accelerator
func (p VolumeParams) Build() (*volume.Volume, error) {
	if p.Slices != "" {
		return p.buildFromSlices()
	}
	field, ok := fields[p.Field]
	if !ok {
		return nil, fmt.Errorf("unknown field %q (have %v)", p.Field, FieldNames())
	}
	steps := max(1, p.NumTimesteps)
	g, err := grid.Generate(p.GridConfig(), steps, field)
	if err != nil {
		return nil, err
	}
	return volume.New(g, accel.Options{CellWidthBits: p.CellWidthBits})
}

// buildFromSlices loads an image stack. Default spacing maps it onto [-1,1]³.
func (p VolumeParams) buildFromSlices() (*volume.Volume, error) {
	stack, err := loaders.LoadSliceStack(p.Slices)
	if err != nil {
		return nil, err
	}
	p.Dimensions = stack.Dimensions()
	g, err := stack.Grid(p.GridConfig())
	if err != nil {
		return nil, err
	}
	return volume.New(g, accel.Options{CellWidthBits: p.CellWidthBits})
}

// RendererParams selects and configures the integrator. Changing them only
// rebuilds the integrator.
type RendererParams struct {
	Integrator       integrator.Kind
	Params           integrator.Params
	AttributeIndex   int
	Time             float64
	TransferFunction string      // transfer.Preset name
	ValueRange       *core.Range // Transfer function domain; nil means the attribute's full range
	Background       core.Vec3
}

// DefaultRendererParams renders with the density path tracer
func DefaultRendererParams() RendererParams {
	return RendererParams{
		Integrator:       integrator.KindDensityPathTracer,
		Params:           integrator.DefaultParams(),
		TransferFunction: "jet",
		Background:       core.NewVec3(1, 1, 1),
	}
}
