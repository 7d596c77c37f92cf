package volume

import (
	"fmt"
	"math"

	"github.com/df07/go-progressive-volume/pkg/core"
	"github.com/df07/go-progressive-volume/pkg/grid"
)

// Filter selects how values between voxels are reconstructed
type Filter int

const (
	FilterTrilinear Filter = iota
	FilterNearest
)

func (f Filter) String() string {
	switch f {
	case FilterTrilinear:
		return "trilinear"
	case FilterNearest:
		return "nearest"
	default:
		return fmt.Sprintf("Filter(%d)", int(f))
	}
}

// ParseFilter converts a filter name back to a Filter
func ParseFilter(name string) (Filter, error) {
	switch name {
	case "trilinear", "":
		return FilterTrilinear, nil
	case "nearest":
		return FilterNearest, nil
	}
	return 0, fmt.Errorf("unknown filter %q", name)
}

func (f Filter) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Filter) UnmarshalText(text []byte) error {
	parsed, err := ParseFilter(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Sampler evaluates a volume's attributes at object-space points. Points
// outside the grid and invalid attributes sample as NaN. Safe for
// concurrent use.
type Sampler struct {
	volume *Volume
	filter Filter
	// object-space step used for central differences
	gradientStep float64
}

// NewSampler creates a sampler for v
func NewSampler(v *Volume, filter Filter) *Sampler {
	spacing := v.grid.Spacing().Abs()
	step := 0.5 * spacing.MinComponent()
	if v.grid.Kind() == grid.StructuredSpherical {
		step = 0.5 * spacing.X
	}
	if step <= 0 {
		step = 1e-3
	}
	return &Sampler{volume: v, filter: filter, gradientStep: step}
}

// Volume returns the sampled volume
func (s *Sampler) Volume() *Volume { return s.volume }

// Filter returns the reconstruction filter
func (s *Sampler) Filter() Filter { return s.filter }

// Sample returns the attribute value at p and time (clamped to [0, 1]).
// Time-varying grids interpolate linearly between neighbouring timesteps.
func (s *Sampler) Sample(p core.Vec3, attribute int, time float64) float64 {
	g := s.volume.grid
	if attribute < 0 || attribute >= g.NumAttributes() || g.IsEmpty() {
		return math.NaN()
	}

	local := g.ObjectToLocal(p)
	dims := g.Dimensions()
	for axis := range 3 {
		c := local.Axis(axis)
		if !(c >= 0 && c <= float64(dims[axis]-1)) {
			return math.NaN()
		}
	}

	numSteps := g.NumTimesteps()
	if numSteps == 1 {
		return s.sampleTimestep(local, attribute, 0)
	}
	ft := core.ClampTime(time) * float64(numSteps-1)
	s0 := min(int(ft), numSteps-1)
	frac := ft - float64(s0)
	v0 := s.sampleTimestep(local, attribute, s0)
	if frac == 0 {
		return v0
	}
	v1 := s.sampleTimestep(local, attribute, s0+1)
	return v0 + frac*(v1-v0)
}

func (s *Sampler) sampleTimestep(local core.Vec3, attribute, step int) float64 {
	g := s.volume.grid
	dims := g.Dimensions()

	if s.filter == FilterNearest {
		x := min(int(math.Round(local.X)), dims[0]-1)
		y := min(int(math.Round(local.Y)), dims[1]-1)
		z := min(int(math.Round(local.Z)), dims[2]-1)
		return float64(g.Voxel(attribute, step, x, y, z))
	}

	var i0, i1 [3]int
	var f [3]float64
	for axis := range 3 {
		c := local.Axis(axis)
		// the lower corner stays one voxel inside so i1 is valid
		i := min(int(c), max(dims[axis]-2, 0))
		i0[axis] = i
		i1[axis] = min(i+1, dims[axis]-1)
		f[axis] = c - float64(i)
	}

	v := func(x, y, z int) float64 { return float64(g.Voxel(attribute, step, x, y, z)) }
	lerp := func(a, b, t float64) float64 { return a + t*(b-a) }

	c00 := lerp(v(i0[0], i0[1], i0[2]), v(i1[0], i0[1], i0[2]), f[0])
	c10 := lerp(v(i0[0], i1[1], i0[2]), v(i1[0], i1[1], i0[2]), f[0])
	c01 := lerp(v(i0[0], i0[1], i1[2]), v(i1[0], i0[1], i1[2]), f[0])
	c11 := lerp(v(i0[0], i1[1], i1[2]), v(i1[0], i1[1], i1[2]), f[0])
	return lerp(lerp(c00, c10, f[1]), lerp(c01, c11, f[1]), f[2])
}

// Gradient estimates the object-space gradient with central differences,
// falling back to one-sided differences at the grid boundary. Axes with no
// valid neighbour contribute zero.
func (s *Sampler) Gradient(p core.Vec3, attribute int, time float64) core.Vec3 {
	center := s.Sample(p, attribute, time)
	h := s.gradientStep

	var g [3]float64
	for axis := range 3 {
		var offset core.Vec3
		switch axis {
		case 0:
			offset = core.NewVec3(h, 0, 0)
		case 1:
			offset = core.NewVec3(0, h, 0)
		default:
			offset = core.NewVec3(0, 0, h)
		}
		plus := s.Sample(p.Add(offset), attribute, time)
		minus := s.Sample(p.Subtract(offset), attribute, time)

		switch {
		case !math.IsNaN(plus) && !math.IsNaN(minus):
			g[axis] = (plus - minus) / (2 * h)
		case !math.IsNaN(plus) && !math.IsNaN(center):
			g[axis] = (plus - center) / h
		case !math.IsNaN(minus) && !math.IsNaN(center):
			g[axis] = (center - minus) / h
		}
	}
	return core.NewVec3(g[0], g[1], g[2])
}
