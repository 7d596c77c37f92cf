package grid

import (
	"fmt"
	"math"

	"github.com/df07/go-progressive-volume/pkg/core"
)

// FieldFunc evaluates a procedural field at an object-space point and time
type FieldFunc func(p core.Vec3, time float64) float64

// Wavelet is a smooth oscillating field with many isosurface components
func Wavelet(p core.Vec3, _ float64) float64 {
	const frequency = 3.0
	return math.Sin(frequency*p.X) + math.Sin(frequency*p.Y) + math.Cos(frequency*p.Z)
}

// XYZ is the product of the coordinates, zero on the three coordinate planes
func XYZ(p core.Vec3, _ float64) float64 {
	return p.X * p.Y * p.Z
}

// RotatingSphere returns the distance to a center that orbits the z axis as
// time goes from 0 to 1, so sampled values change between timesteps.
func RotatingSphere(center core.Vec3, orbit float64) FieldFunc {
	return func(p core.Vec3, time float64) float64 {
		angle := 2 * math.Pi * time
		c := center.Add(core.NewVec3(orbit*math.Cos(angle), orbit*math.Sin(angle), 0))
		return p.Subtract(c).Length()
	}
}

// Constant returns the same value everywhere
func Constant(value float64) FieldFunc {
	return func(core.Vec3, float64) float64 { return value }
}

// Generate fills a grid by evaluating one field per attribute at every voxel
// position. Timestep s of n is evaluated at time s/(n-1).
func Generate(cfg Config, numTimesteps int, fields ...FieldFunc) (*Grid, error) {
	if numTimesteps < 1 {
		return nil, fmt.Errorf("%w: need at least one timestep, got %d", ErrStorageSize, numTimesteps)
	}
	geom, err := newGeometry(cfg)
	if err != nil {
		return nil, err
	}
	// transforms only need the geometry
	shape := &Grid{geometry: geom}

	dims := cfg.Dimensions
	data := make([][][]float32, len(fields))
	for a, field := range fields {
		data[a] = make([][]float32, numTimesteps)
		for s := range numTimesteps {
			time := 0.0
			if numTimesteps > 1 {
				time = float64(s) / float64(numTimesteps-1)
			}
			voxels := make([]float32, geom.numVoxels())
			i := 0
			for z := range dims[2] {
				for y := range dims[1] {
					for x := range dims[0] {
						p := shape.LocalToObject(core.NewVec3(float64(x), float64(y), float64(z)))
						voxels[i] = float32(field(p, time))
						i++
					}
				}
			}
			data[a][s] = voxels
		}
	}

	return New(cfg, data)
}

// GenerateFunc fills a single-attribute, single-timestep grid from a function
// of integer voxel coordinates.
func GenerateFunc(cfg Config, value func(x, y, z int) float32) (*Grid, error) {
	geom, err := newGeometry(cfg)
	if err != nil {
		return nil, err
	}
	dims := cfg.Dimensions
	voxels := make([]float32, geom.numVoxels())
	i := 0
	for z := range dims[2] {
		for y := range dims[1] {
			for x := range dims[0] {
				voxels[i] = value(x, y, z)
				i++
			}
		}
	}
	return New(cfg, [][][]float32{{voxels}})
}
