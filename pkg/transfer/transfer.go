// Package transfer maps scalar field values to color and opacity.
package transfer

import (
	"fmt"
	"math"

	"github.com/df07/go-progressive-volume/pkg/core"
)

// Function is a piecewise-linear transfer function. Colors and opacities are
// sampled uniformly over ValueRange, independently of each other. Values
// outside the range are clamped. NaN maps to transparent black.
type Function struct {
	ValueRange core.Range
	Colors     []core.Vec3
	Opacities  []float64
}

// New validates the tables and creates a transfer function
func New(valueRange core.Range, colors []core.Vec3, opacities []float64) (*Function, error) {
	if valueRange.IsEmpty() {
		return nil, fmt.Errorf("transfer function value range %v is empty", valueRange)
	}
	if len(colors) == 0 || len(opacities) == 0 {
		return nil, fmt.Errorf("transfer function needs at least one color and one opacity")
	}
	for i, o := range opacities {
		if o < 0 || math.IsNaN(o) {
			return nil, fmt.Errorf("transfer function opacity %d is %v, must be >= 0", i, o)
		}
	}
	return &Function{ValueRange: valueRange, Colors: colors, Opacities: opacities}, nil
}

// Uniform returns a function with one color and one opacity everywhere
func Uniform(valueRange core.Range, color core.Vec3, opacity float64) *Function {
	return &Function{ValueRange: valueRange, Colors: []core.Vec3{color}, Opacities: []float64{opacity}}
}

// Jet returns a blue-cyan-yellow-red color map with a linear opacity ramp
func Jet(valueRange core.Range) *Function {
	return &Function{
		ValueRange: valueRange,
		Colors: []core.Vec3{
			core.NewVec3(0, 0, 0.563),
			core.NewVec3(0, 0, 1),
			core.NewVec3(0, 1, 1),
			core.NewVec3(0.5, 1, 0.5),
			core.NewVec3(1, 1, 0),
			core.NewVec3(1, 0, 0),
			core.NewVec3(0.5, 0, 0),
		},
		Opacities: []float64{0, 1},
	}
}

// Grayscale returns a black-to-white map with a linear opacity ramp
func Grayscale(valueRange core.Range) *Function {
	return &Function{
		ValueRange: valueRange,
		Colors:     []core.Vec3{core.NewVec3(0, 0, 0), core.NewVec3(1, 1, 1)},
		Opacities:  []float64{0, 1},
	}
}

// Preset returns a named transfer function over valueRange
func Preset(name string, valueRange core.Range) (*Function, error) {
	switch name {
	case "jet", "":
		return Jet(valueRange), nil
	case "grayscale":
		return Grayscale(valueRange), nil
	case "uniform":
		return Uniform(valueRange, core.NewVec3(1, 1, 1), 1), nil
	}
	return nil, fmt.Errorf("unknown transfer function %q", name)
}

// normalized maps v into [0, 1] over the value range
func (f *Function) normalized(v float64) float64 {
	size := f.ValueRange.Size()
	if size <= 0 {
		if v < f.ValueRange.Lower {
			return 0
		}
		return 1
	}
	return max(0, min(1, (v-f.ValueRange.Lower)/size))
}

func interpolate[T any](table []T, t float64, lerp func(a, b T, t float64) T) T {
	if len(table) == 1 {
		return table[0]
	}
	x := t * float64(len(table)-1)
	i := min(int(x), len(table)-2)
	return lerp(table[i], table[i+1], x-float64(i))
}

func lerpVec3(a, b core.Vec3, t float64) core.Vec3 {
	return a.Add(b.Subtract(a).Multiply(t))
}

func lerpFloat(a, b, t float64) float64 {
	return a + t*(b-a)
}

// ColorAndOpacity returns (r, g, b, opacity) for a field value
func (f *Function) ColorAndOpacity(v float64) core.Vec4 {
	if math.IsNaN(v) {
		return core.Vec4{}
	}
	t := f.normalized(v)
	c := interpolate(f.Colors, t, lerpVec3)
	return core.NewVec4(c.X, c.Y, c.Z, interpolate(f.Opacities, t, lerpFloat))
}

// ActiveRanges returns the value bands where the opacity is non-zero. Bands
// touching the ends of the table extend to infinity because values are
// clamped.
func (f *Function) ActiveRanges() []core.Range {
	n := len(f.Opacities)
	if n == 1 {
		if f.Opacities[0] > 0 {
			return []core.Range{core.NewRange(math.Inf(-1), math.Inf(1))}
		}
		return nil
	}

	valueAt := func(i int) float64 {
		return f.ValueRange.Lower + float64(i)/float64(n-1)*f.ValueRange.Size()
	}

	var ranges []core.Range
	for i := 0; i < n-1; i++ {
		if f.Opacities[i] <= 0 && f.Opacities[i+1] <= 0 {
			continue
		}
		segment := core.NewRange(valueAt(i), valueAt(i+1))
		if i == 0 && f.Opacities[0] > 0 {
			segment.Lower = math.Inf(-1)
		}
		if i == n-2 && f.Opacities[n-1] > 0 {
			segment.Upper = math.Inf(1)
		}
		if last := len(ranges) - 1; last >= 0 && ranges[last].Upper >= segment.Lower {
			ranges[last].Upper = segment.Upper
			continue
		}
		ranges = append(ranges, segment)
	}
	return ranges
}
