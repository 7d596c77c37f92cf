package iterator

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/df07/go-progressive-volume/pkg/accel"
	"github.com/df07/go-progressive-volume/pkg/core"
	"github.com/df07/go-progressive-volume/pkg/grid"
	"github.com/df07/go-progressive-volume/pkg/volume"
)

var unbounded = core.NewRange(0, math.Inf(1))

func newContext(t *testing.T, cfg grid.Config, opts accel.Options, fields ...grid.FieldFunc) *Context {
	t.Helper()
	g, err := grid.Generate(cfg, 1, fields...)
	if err != nil {
		t.Fatal(err)
	}
	v, err := volume.New(g, opts)
	if err != nil {
		t.Fatal(err)
	}
	return &Context{Volume: v, Sampler: volume.NewSampler(v, volume.FilterTrilinear)}
}

// unitCube spans [0,1]^3 with n voxels per axis
func unitCube(n int) grid.Config {
	s := 1.0 / float64(n-1)
	return grid.Config{Dimensions: [3]int{n, n, n}, Spacing: core.NewVec3(s, s, s)}
}

func collectIntervals(t *testing.T, ctx *Context, origin, dir core.Vec3, tRange core.Range) ([]Interval, core.Range) {
	t.Helper()
	it, err := NewIntervalIterator(ctx, origin, dir, tRange, 0)
	if err != nil {
		t.Fatal(err)
	}
	var intervals []Interval
	for {
		interval, ok := it.Next()
		if !ok {
			break
		}
		intervals = append(intervals, interval)
		if len(intervals) > 10000 {
			t.Fatal("Runaway traversal")
		}
	}
	return intervals, it.Bounds()
}

func randomRay(random *rand.Rand, center core.Vec3, radius float64) (core.Vec3, core.Vec3) {
	origin := center.Add(core.SampleOnUnitSphere(core.NewVec2(random.Float64(), random.Float64())).Multiply(radius))
	target := center.Add(core.NewVec3(random.Float64()-0.5, random.Float64()-0.5, random.Float64()-0.5).Multiply(radius))
	// arbitrary direction length
	return origin, target.Subtract(origin).Multiply(0.1 + 3*random.Float64())
}

func TestIntervalIterator_OrderedDisjointContained(t *testing.T) {
	configs := map[string]grid.Config{
		"unit cube": unitCube(50),
		"anisotropic with negative spacing": {
			Dimensions: [3]int{37, 20, 64},
			Origin:     core.NewVec3(2, -1, 0.5),
			Spacing:    core.NewVec3(-0.1, 0.07, 0.03),
		},
	}

	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			ctx := newContext(t, cfg, accel.Options{CellWidthBits: 3}, grid.Wavelet)
			box := ctx.Volume.BoundingBox()
			random := rand.New(rand.NewPCG(7, uint64(len(name))))

			check := func(label string, origin, dir core.Vec3, tRange core.Range) {
				t.Helper()
				intervals, bounds := collectIntervals(t, ctx, origin, dir, tRange)

				total := 0.0
				for j, interval := range intervals {
					r := interval.TRange
					if !r.HasExtent() {
						t.Fatalf("%s interval %d has no extent: %v", label, j, r)
					}
					if r.Lower < bounds.Lower-1e-9 || r.Upper > bounds.Upper+1e-9 {
						t.Fatalf("%s interval %v outside clipped range %v", label, r, bounds)
					}
					if j > 0 && r.Lower < intervals[j-1].TRange.Upper {
						t.Fatalf("%s intervals overlap: %v then %v", label, intervals[j-1].TRange, r)
					}
					total += r.Size()
				}
				// with no value ranges the intervals cover the whole clipped range
				if bounds.HasExtent() && math.Abs(total-bounds.Size()) > 1e-6*math.Max(1, bounds.Size()) {
					t.Fatalf("%s intervals cover %v of %v in %d intervals", label, total, bounds.Size(), len(intervals))
				}
			}

			for i := 0; i < 500; i++ {
				origin, dir := randomRay(random, box.Center(), box.Size().Length())
				tRange := unbounded
				if i%3 == 0 {
					tRange = core.NewRange(random.Float64(), 0.5+random.Float64())
				}
				check(fmt.Sprintf("Ray %d", i), origin, dir, tRange)
			}

			// axis-parallel rays lying on macrocell faces and edges
			a := ctx.Volume.Accelerator()
			dims := a.CellDims()
			for x := range dims[0] {
				for y := range dims[1] {
					for z := range dims[2] {
						bounds := a.CellBounds([3]int{x, y, z})
						for _, origin := range []core.Vec3{bounds.Min, bounds.Max} {
							for _, dir := range []core.Vec3{core.NewVec3(0, 0, 1), core.NewVec3(0, 0, -1)} {
								check(fmt.Sprintf("Face ray %v from %v", dir, origin), origin, dir, unbounded)
							}
						}
					}
				}
			}
		})
	}
}

func TestIntervalIterator_DiagonalTies(t *testing.T) {
	cfg := grid.Config{Dimensions: [3]int{64, 64, 64}, Spacing: core.NewVec3(1, 1, 1)}
	ctx := newContext(t, cfg, accel.DefaultOptions(), grid.Constant(1))

	intervals, _ := collectIntervals(t, ctx, core.NewVec3(-1, -1, -1), core.NewVec3(1, 1, 1), unbounded)
	expected := []core.Range{
		core.NewRange(1, 17),
		core.NewRange(17, 33),
		core.NewRange(33, 49),
		core.NewRange(49, 64),
	}
	if len(intervals) != len(expected) {
		t.Fatalf("Expected %d intervals along the diagonal, got %d: %v", len(expected), len(intervals), intervals)
	}
	for i, interval := range intervals {
		if math.Abs(interval.TRange.Lower-expected[i].Lower) > 1e-9 ||
			math.Abs(interval.TRange.Upper-expected[i].Upper) > 1e-9 {
			t.Errorf("Interval %d = %v, expected %v", i, interval.TRange, expected[i])
		}
		if interval.NominalDeltaT != 1 {
			t.Errorf("NominalDeltaT = %v, expected 1", interval.NominalDeltaT)
		}
	}
}

func TestIntervalIterator_AxisAlignedReverse(t *testing.T) {
	cfg := grid.Config{Dimensions: [3]int{33, 8, 8}, Spacing: core.NewVec3(1, 1, 1)}
	ctx := newContext(t, cfg, accel.DefaultOptions(), grid.Constant(1))

	intervals, bounds := collectIntervals(t, ctx, core.NewVec3(40, 3.5, 3.5), core.NewVec3(-2, 0, 0), unbounded)
	if bounds != core.NewRange(4, 20) {
		t.Fatalf("Unexpected clipped range %v", bounds)
	}
	// the last macrocell only holds the x=32 voxel plane and has no thickness
	expected := []core.Range{core.NewRange(4, 12), core.NewRange(12, 20)}
	if len(intervals) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, intervals)
	}
	for i := range expected {
		if intervals[i].TRange != expected[i] {
			t.Errorf("Interval %d = %v, expected %v", i, intervals[i].TRange, expected[i])
		}
	}
	if intervals[0].NominalDeltaT != 0.5 {
		t.Errorf("NominalDeltaT = %v, expected 0.5 for direction length 2", intervals[0].NominalDeltaT)
	}
}

func TestIntervalIterator_ValueRangePruning(t *testing.T) {
	cfg := grid.Config{Dimensions: [3]int{64, 4, 4}, Spacing: core.NewVec3(1, 1, 1)}
	step := func(p core.Vec3, _ float64) float64 {
		if p.X >= 40 {
			return 10
		}
		return 0
	}
	ctx := newContext(t, cfg, accel.DefaultOptions(), step)
	ctx.ValueRanges = accel.NewValueRanges(core.NewRange(5, 20))

	intervals, _ := collectIntervals(t, ctx, core.NewVec3(-1, 1, 1), core.NewVec3(1, 0, 0), unbounded)
	// cells [32,48] and [48,63] contain 10
	if len(intervals) != 2 {
		t.Fatalf("Expected 2 intervals, got %v", intervals)
	}
	if intervals[0].TRange.Lower != 33 || intervals[1].TRange.Upper != 64 {
		t.Errorf("Unexpected intervals %v", intervals)
	}
	if intervals[0].ValueRange != core.NewRange(0, 10) || intervals[1].ValueRange != core.NewRange(10, 10) {
		t.Errorf("Unexpected value ranges %v, %v", intervals[0].ValueRange, intervals[1].ValueRange)
	}

	ctx.ValueRanges = accel.NewValueRanges(core.NewRange(20, 30))
	if intervals, _ := collectIntervals(t, ctx, core.NewVec3(-1, 1, 1), core.NewVec3(1, 0, 0), unbounded); len(intervals) != 0 {
		t.Errorf("Expected every cell pruned, got %v", intervals)
	}
}

func TestIntervalIterator_Exhaustion(t *testing.T) {
	ctx := newContext(t, unitCube(16), accel.DefaultOptions(), grid.Wavelet)

	tests := []struct {
		name      string
		origin    core.Vec3
		direction core.Vec3
		tRange    core.Range
		expectAny bool
	}{
		{"miss", core.NewVec3(-1, 5, 0.5), core.NewVec3(1, 0, 0), unbounded, false},
		{"pointing away", core.NewVec3(-1, 0.5, 0.5), core.NewVec3(-1, 0, 0), unbounded, false},
		{"range before the box", core.NewVec3(-1, 0.5, 0.5), core.NewVec3(1, 0, 0), core.NewRange(0, 0.5), false},
		{"zero direction", core.NewVec3(0.5, 0.5, 0.5), core.Vec3{}, unbounded, false},
		{"hit", core.NewVec3(-1, 0.5, 0.5), core.NewVec3(1, 0, 0), unbounded, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it, err := NewIntervalIterator(ctx, tt.origin, tt.direction, tt.tRange, 0)
			if err != nil {
				t.Fatal(err)
			}
			_, ok := it.Next()
			if ok != tt.expectAny {
				t.Fatalf("First Next() = %v, expected %v", ok, tt.expectAny)
			}
			for ok {
				_, ok = it.Next()
			}
			for i := 0; i < 3; i++ {
				if _, again := it.Next(); again {
					t.Fatal("Exhausted iterator produced another interval")
				}
			}
		})
	}
}

func TestIterators_ZeroExtentGrid(t *testing.T) {
	g, err := grid.New(grid.Config{Spacing: core.NewVec3(1, 1, 1)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	v, err := volume.New(g, accel.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	ctx := &Context{Volume: v, Sampler: volume.NewSampler(v, volume.FilterTrilinear)}

	it, err := NewIntervalIterator(ctx, core.NewVec3(-1, 0, 0), core.NewVec3(1, 0, 0), unbounded, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := it.Next(); ok {
		t.Error("Interval iterator over an empty grid should be exhausted")
	}

	hits, err := NewHitIterator(&HitContext{Context: *ctx, Values: []float64{0}}, core.NewVec3(-1, 0, 0), core.NewVec3(1, 0, 0), unbounded, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := hits.Next(); ok {
		t.Error("Hit iterator over an empty grid should be exhausted")
	}
}

func TestIterators_Unsupported(t *testing.T) {
	cfg := grid.Config{
		Kind:       grid.StructuredSpherical,
		Dimensions: [3]int{4, 10, 10},
		Spacing:    grid.DefaultSphericalSpacing([3]int{4, 10, 10}),
	}
	ctx := newContext(t, cfg, accel.DefaultOptions(), grid.Constant(1))

	if _, err := NewIntervalIterator(ctx, core.Vec3{}, core.NewVec3(1, 0, 0), unbounded, 0); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported, got %v", err)
	}
	if _, err := NewHitIterator(&HitContext{Context: *ctx}, core.Vec3{}, core.NewVec3(1, 0, 0), unbounded, 0); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported, got %v", err)
	}

	regular := newContext(t, unitCube(4), accel.DefaultOptions(), grid.Constant(1))
	regular.AttributeIndex = 3
	if _, err := NewIntervalIterator(regular, core.Vec3{}, core.NewVec3(1, 0, 0), unbounded, 0); !errors.Is(err, ErrInvalidAttribute) {
		t.Errorf("Expected ErrInvalidAttribute, got %v", err)
	}
}
