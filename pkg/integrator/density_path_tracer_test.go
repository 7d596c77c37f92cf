package integrator

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/stat"

	"github.com/df07/go-progressive-volume/pkg/accel"
	"github.com/df07/go-progressive-volume/pkg/core"
	"github.com/df07/go-progressive-volume/pkg/grid"
	"github.com/df07/go-progressive-volume/pkg/transfer"
	"github.com/df07/go-progressive-volume/pkg/volume"
)

// scriptedSampler replays a fixed sequence of random numbers
type scriptedSampler struct {
	values []float64
	next   int
}

func (s *scriptedSampler) Get1D() float64 {
	v := s.values[s.next%len(s.values)]
	s.next++
	return v
}

func (s *scriptedSampler) Get2D() core.Vec2 {
	return core.NewVec2(s.Get1D(), s.Get1D())
}

// uniformSetup builds a [0,size]^3 volume of constant value and a transfer
// function mapping everything to color and opacity
func uniformSetup(t *testing.T, size float64, value float64, color core.Vec3, opacity float64) Setup {
	t.Helper()
	cfg := grid.Config{
		Dimensions: [3]int{5, 5, 5},
		Spacing:    core.NewVec3(size/4, size/4, size/4),
	}
	g, err := grid.Generate(cfg, 1, grid.Constant(value))
	if err != nil {
		t.Fatal(err)
	}
	v, err := volume.New(g, accel.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	return Setup{
		Volume:   v,
		Sampler:  volume.NewSampler(v, volume.FilterTrilinear),
		Transfer: transfer.Uniform(core.NewRange(value, value), color, opacity),
	}
}

func TestSampleWoodcock_Vacuum(t *testing.T) {
	setup := uniformSetup(t, 1, 5, core.NewVec3(1, 1, 1), 1)
	params := DefaultDensityPathTracerParams()
	params.SigmaTScale = 0
	pt, err := NewDensityPathTracer(setup, params)
	if err != nil {
		t.Fatal(err)
	}

	sampler := core.NewPixelSampler(0, 0)
	ray := core.NewRay(core.NewVec3(-1, 0.5, 0.5), core.NewVec3(1, 0, 0))
	for i := 0; i < 100; i++ {
		_, _, transmittance, ok := pt.SampleWoodcock(sampler, ray, core.NewRange(1, 2))
		if ok || transmittance != 1 {
			t.Fatalf("Vacuum reported collision=%v transmittance=%v", ok, transmittance)
		}
	}
}

func TestSampleWoodcock_UniformDensityAcceptsFirstCandidate(t *testing.T) {
	setup := uniformSetup(t, 10, 5, core.NewVec3(1, 1, 1), 1)
	pt, err := NewDensityPathTracer(setup, DefaultDensityPathTracerParams())
	if err != nil {
		t.Fatal(err)
	}

	ray := core.NewRay(core.NewVec3(-1, 5, 5), core.NewVec3(1, 0, 0))
	hits := setup.Volume.BoundingBox().IntersectRay(ray.Origin, ray.Direction, ray.TRange)
	if hits != core.NewRange(1, 11) {
		t.Fatalf("Unexpected bounds intersection %v", hits)
	}

	for _, xi := range []float64{0, 0.1, 0.5, 0.9, 0.99} {
		sampler := &scriptedSampler{values: []float64{xi, 0.999, 0.5, 0.5}}
		tHit, sample, transmittance, ok := pt.SampleWoodcock(sampler, ray, hits)
		if !ok {
			t.Fatalf("xi=%v: expected a collision", xi)
		}
		// sigmaT equals sigmaMax, so the first candidate is always accepted
		if expected := 1 - math.Log(1-xi); math.Abs(tHit-expected) > 1e-12 {
			t.Errorf("xi=%v: collision at %v, expected %v", xi, tHit, expected)
		}
		if sample != 5 || transmittance != 0 {
			t.Errorf("xi=%v: sample=%v transmittance=%v", xi, sample, transmittance)
		}
		if sampler.next != 4 {
			t.Errorf("xi=%v: consumed %d random numbers, expected 4", xi, sampler.next)
		}
	}
}

func TestSampleWoodcock_Transmittance(t *testing.T) {
	// opacity 0.5 halves the real extinction: T = exp(-sigmaMax*0.5*L)
	setup := uniformSetup(t, 2, 1, core.NewVec3(1, 1, 1), 0.5)
	params := DefaultDensityPathTracerParams()
	params.SigmaTScale = 1
	pt, err := NewDensityPathTracer(setup, params)
	if err != nil {
		t.Fatal(err)
	}

	ray := core.NewRay(core.NewVec3(-1, 1, 1), core.NewVec3(1, 0, 0))
	hits := core.NewRange(1, 3)
	const n = 20000
	escaped := make([]float64, n)
	sampler := core.NewPixelSampler(1, 99)
	for i := range escaped {
		if _, _, transmittance, ok := pt.SampleWoodcock(sampler, ray, hits); !ok {
			escaped[i] = transmittance
		}
	}

	mean, std := stat.MeanStdDev(escaped, nil)
	expected := math.Exp(-0.5 * 2)
	if tolerance := 4 * std / math.Sqrt(n); math.Abs(mean-expected) > tolerance {
		t.Errorf("Estimated transmittance %v, expected %v ± %v", mean, expected, tolerance)
	}
}

func TestIntegrate_AmbientOnlyOnScatteredRays(t *testing.T) {
	gray := core.NewVec3(0.5, 0.5, 0.5)
	primary := core.NewRay(core.NewVec3(-1, 0.5, 0.5), core.NewVec3(1, 0, 0))

	// 0.3 gives a free flight of about 0.357; 0.999999 leaves the unit volume
	collide := []float64{0.3, 0, 0.5, 0.5}
	collideShort := []float64{0.1, 0, 0.5, 0.5}
	escape := []float64{0.999999, 0, 0.5, 0.5}
	scatterToMinusX := []float64{0.5, 0.5}

	tests := []struct {
		name           string
		maxScatters    int
		script         [][]float64
		expectedLe     float64
		expectedMaxIdx int
	}{
		{"primary escapes", 1, [][]float64{escape}, 0, 0},
		{"single scatter then escape", 1, [][]float64{collide, scatterToMinusX, escape}, 0.5, 1},
		{"scatter limit reached", 0, [][]float64{collide}, 0, 0},
		{"second scatter hits the limit", 1, [][]float64{collide, scatterToMinusX, collideShort}, 0, 1},
		{"albedo accumulates", 2, [][]float64{collide, scatterToMinusX, collideShort, scatterToMinusX, escape}, 0.25, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setup := uniformSetup(t, 1, 5, gray, 1)
			params := DefaultDensityPathTracerParams()
			params.MaxNumScatters = tt.maxScatters
			params.ShowBBox = false
			pt, err := NewDensityPathTracer(setup, params)
			if err != nil {
				t.Fatal(err)
			}

			var values []float64
			for _, chunk := range tt.script {
				values = append(values, chunk...)
			}
			sampler := &scriptedSampler{values: values}

			Le, maxIdx, primaryHit := pt.Integrate(sampler, primary)
			if !primaryHit {
				t.Error("Primary ray should intersect the bounds")
			}
			if maxIdx != tt.expectedMaxIdx {
				t.Errorf("maxScatterIndex = %d, expected %d", maxIdx, tt.expectedMaxIdx)
			}
			if Le.Subtract(core.NewVec3(tt.expectedLe, tt.expectedLe, tt.expectedLe)).Length() > 1e-9 {
				t.Errorf("Le = %v, expected %v", Le, tt.expectedLe)
			}
		})
	}
}

func TestRenderPixel_BoundingBoxBlend(t *testing.T) {
	setup := uniformSetup(t, 1, 5, core.NewVec3(1, 1, 1), 1)
	params := DefaultDensityPathTracerParams()
	params.SigmaTScale = 0
	pt, err := NewDensityPathTracer(setup, params)
	if err != nil {
		t.Fatal(err)
	}
	sampler := core.NewPixelSampler(0, 0)

	hit := pt.RenderPixel(sampler, core.NewRay(core.NewVec3(-1, 0.5, 0.5), core.NewVec3(1, 0, 0)))
	if math.Abs(hit.X-0.2) > 1e-12 || math.Abs(hit.W-0.2) > 1e-12 {
		t.Errorf("Expected 20%% white for a bounding box hit, got %v", hit)
	}

	miss := pt.RenderPixel(sampler, core.NewRay(core.NewVec3(-1, 5, 0.5), core.NewVec3(1, 0, 0)))
	if miss != (core.Vec4{}) {
		t.Errorf("Expected transparent black for a miss, got %v", miss)
	}
}

func TestRenderPixel_AlphaAfterScatter(t *testing.T) {
	setup := uniformSetup(t, 100, 5, core.NewVec3(0.8, 0.8, 0.8), 1)
	params := DefaultDensityPathTracerParams()
	params.ShowBBox = false
	pt, err := NewDensityPathTracer(setup, params)
	if err != nil {
		t.Fatal(err)
	}
	// escaping 100 units of unit extinction is practically impossible
	for pixel := uint64(0); pixel < 32; pixel++ {
		c := pt.RenderPixel(core.NewPixelSampler(0, pixel), core.NewRay(core.NewVec3(50, 50, -1), core.NewVec3(0, 0, 1)))
		if c.W != 1 {
			t.Fatalf("Pixel %d: expected alpha 1 after a scatter, got %v", pixel, c.W)
		}
	}
}

func TestDensityPathTracer_SphericalVolume(t *testing.T) {
	dims := [3]int{8, 16, 32}
	cfg := grid.Config{Kind: grid.StructuredSpherical, Dimensions: dims, Spacing: grid.DefaultSphericalSpacing(dims)}
	g, err := grid.Generate(cfg, 1, grid.Constant(1))
	if err != nil {
		t.Fatal(err)
	}
	v, err := volume.New(g, accel.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	setup := Setup{Volume: v, Sampler: volume.NewSampler(v, volume.FilterTrilinear), Transfer: transfer.Uniform(core.NewRange(0, 2), core.NewVec3(1, 1, 1), 1)}

	pt, err := NewDensityPathTracer(setup, DefaultDensityPathTracerParams())
	if err != nil {
		t.Fatalf("Path tracer should support spherical volumes: %v", err)
	}
	c := pt.RenderPixel(core.NewPixelSampler(0, 0), core.NewRay(core.NewVec3(0, 0, -20), core.NewVec3(0, 0, 1)))
	if c.W <= 0 {
		t.Errorf("Expected the ray through the sphere to hit, got %v", c)
	}
}
