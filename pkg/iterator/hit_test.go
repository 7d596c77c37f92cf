package iterator

import (
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/df07/go-progressive-volume/pkg/accel"
	"github.com/df07/go-progressive-volume/pkg/core"
	"github.com/df07/go-progressive-volume/pkg/grid"
)

func collectHits(t *testing.T, ctx *HitContext, origin, dir core.Vec3, tRange core.Range) []Hit {
	t.Helper()
	it, err := NewHitIterator(ctx, origin, dir, tRange, 0)
	if err != nil {
		t.Fatal(err)
	}
	var hits []Hit
	for {
		hit, ok := it.Next()
		if !ok {
			break
		}
		hits = append(hits, hit)
		if len(hits) > 10000 {
			t.Fatal("Runaway hit iteration")
		}
	}
	return hits
}

func xField(p core.Vec3, _ float64) float64 { return p.X }

func TestHitIterator_LinearField(t *testing.T) {
	ctx := newContext(t, unitCube(33), accel.Options{CellWidthBits: 2}, xField)

	tests := []struct {
		name      string
		values    []float64
		origin    core.Vec3
		direction core.Vec3
		expectedT []float64
	}{
		{"single isovalue", []float64{0.3}, core.NewVec3(-0.5, 0.5, 0.5), core.NewVec3(1, 0, 0), []float64{0.8}},
		{"close isovalues in one bracket", []float64{0.31, 0.3, 0.7}, core.NewVec3(-0.5, 0.5, 0.5), core.NewVec3(1, 0, 0), []float64{0.8, 0.81, 1.2}},
		{"reverse direction", []float64{0.3, 0.7}, core.NewVec3(1.5, 0.5, 0.5), core.NewVec3(-1, 0, 0), []float64{0.8, 1.2}},
		{"long direction", []float64{0.5}, core.NewVec3(-0.5, 0.25, 0.75), core.NewVec3(4, 0, 0), []float64{0.25}},
		{"isovalue on a voxel", []float64{0.5}, core.NewVec3(-0.5, 0.5, 0.5), core.NewVec3(1, 0, 0), []float64{1}},
		{"no crossing", []float64{2}, core.NewVec3(-0.5, 0.5, 0.5), core.NewVec3(1, 0, 0), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits := collectHits(t, &HitContext{Context: *ctx, Values: tt.values}, tt.origin, tt.direction, unbounded)
			if len(hits) != len(tt.expectedT) {
				t.Fatalf("Expected %d hits, got %v", len(tt.expectedT), hits)
			}
			for i, hit := range hits {
				if math.Abs(hit.T-tt.expectedT[i]) > 1e-5 {
					t.Errorf("Hit %d at t=%v, expected %v", i, hit.T, tt.expectedT[i])
				}
				if !slices.Contains(tt.values, hit.Sample) {
					t.Errorf("Hit %d sample %v is not one of the isovalues", i, hit.Sample)
				}
				if hit.Epsilon <= 0 {
					t.Errorf("Hit %d epsilon %v must be positive", i, hit.Epsilon)
				}
			}
		})
	}
}

func zField(p core.Vec3, _ float64) float64 { return p.Z }

func TestHitIterator_RaysOnMacrocellFaces(t *testing.T) {
	cfg := grid.Config{
		Dimensions: [3]int{37, 20, 33},
		Spacing:    core.NewVec3(0.1, 0.07, 1.0/32),
	}
	ctx := newContext(t, cfg, accel.Options{CellWidthBits: 2}, zField)
	hitCtx := &HitContext{Context: *ctx, Values: []float64{0.3}}
	a := ctx.Volume.Accelerator()
	box := ctx.Volume.BoundingBox()
	inside := func(v, lo, hi float64) bool { return v > lo && v < hi }

	dims := a.CellDims()
	for x := range dims[0] {
		for y := range dims[1] {
			bounds := a.CellBounds([3]int{x, y, 0})
			for _, corner := range []core.Vec3{bounds.Min, bounds.Max} {
				if !inside(corner.X, box.Min.X, box.Max.X) || !inside(corner.Y, box.Min.Y, box.Max.Y) {
					continue
				}
				origin := core.NewVec3(corner.X, corner.Y, -0.5)
				hits := collectHits(t, hitCtx, origin, core.NewVec3(0, 0, 1), unbounded)
				if len(hits) != 1 || math.Abs(hits[0].T-0.8) > 1e-5 {
					t.Fatalf("Ray from %v: expected one hit at t=0.8, got %v", origin, hits)
				}
			}
		}
	}
}

func TestHitIterator_Epsilon(t *testing.T) {
	ctx := newContext(t, unitCube(33), accel.DefaultOptions(), xField)
	hits := collectHits(t, &HitContext{Context: *ctx, Values: []float64{0.5}}, core.NewVec3(-1, 0.5, 0.5), core.NewVec3(2, 0, 0), unbounded)
	if len(hits) != 1 {
		t.Fatalf("Expected one hit, got %v", hits)
	}
	// nominal step 1/64, half of it per bracket, an eighth of that times |dir|
	expected := 0.5 * (1.0 / 64) / 8 * 2
	if math.Abs(hits[0].Epsilon-expected) > 1e-15 {
		t.Errorf("Epsilon = %v, expected %v", hits[0].Epsilon, expected)
	}
}

func TestHitIterator_ResumeAfterEpsilon(t *testing.T) {
	ctx := newContext(t, unitCube(33), accel.DefaultOptions(), xField)
	hitCtx := &HitContext{Context: *ctx, Values: []float64{0.5, 0.503}}
	origin := core.NewVec3(-0.5, 0.5, 0.5)

	tests := []struct {
		name      string
		direction core.Vec3
		expectedT []float64
	}{
		// epsilon 1/512, the crossings are 0.003 apart in t
		{"unit direction", core.NewVec3(1, 0, 0), []float64{1, 1.003}},
		// epsilon 1/512 swallows crossings 0.000375 apart in t
		{"long direction", core.NewVec3(8, 0, 0), []float64{0.125}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits := collectHits(t, hitCtx, origin, tt.direction, unbounded)
			if len(hits) != len(tt.expectedT) {
				t.Fatalf("Expected %d hits, got %v", len(tt.expectedT), hits)
			}
			for i, hit := range hits {
				if math.Abs(hit.T-tt.expectedT[i]) > 1e-5 {
					t.Errorf("Hit %d at t=%v, expected %v", i, hit.T, tt.expectedT[i])
				}
			}
		})
	}
}

func TestHitIterator_SphereShell(t *testing.T) {
	center := core.NewVec3(0.5, 0.5, 0.5)
	ctx := newContext(t, unitCube(33), accel.Options{CellWidthBits: 2}, grid.RotatingSphere(center, 0))
	hits := collectHits(t, &HitContext{Context: *ctx, Values: []float64{0.25}}, core.NewVec3(-0.5, 0.5, 0.5), core.NewVec3(1, 0, 0), unbounded)

	expected := []float64{0.75, 1.25}
	if len(hits) != len(expected) {
		t.Fatalf("Expected entry and exit hits, got %v", hits)
	}
	for i := range expected {
		if math.Abs(hits[i].T-expected[i]) > 1e-5 {
			t.Errorf("Hit %d at %v, expected %v", i, hits[i].T, expected[i])
		}
	}
}

func TestHitIterator_OrderedAndDeterministic(t *testing.T) {
	cfg := grid.Config{
		Dimensions: [3]int{40, 35, 30},
		Origin:     core.NewVec3(-2, -2, -2),
		Spacing:    core.NewVec3(0.1, 0.115, 0.13),
	}
	ctx := newContext(t, cfg, accel.Options{CellWidthBits: 3}, grid.Wavelet)
	hitCtx := &HitContext{Context: *ctx, Values: []float64{-1, 0, 0.5, 1.5}}
	box := ctx.Volume.BoundingBox()
	random := rand.New(rand.NewPCG(11, 13))

	totalHits := 0
	for i := 0; i < 200; i++ {
		origin, dir := randomRay(random, box.Center(), box.Size().Length())
		first := collectHits(t, hitCtx, origin, dir, unbounded)
		second := collectHits(t, hitCtx, origin, dir, unbounded)

		if !slices.Equal(first, second) {
			t.Fatalf("Ray %d: hit sequences differ between runs", i)
		}
		for j := 1; j < len(first); j++ {
			if !(first[j].T > first[j-1].T) {
				t.Fatalf("Ray %d: hits not strictly increasing: %v then %v", i, first[j-1].T, first[j].T)
			}
		}
		totalHits += len(first)
	}
	if totalHits == 0 {
		t.Error("Expected the wavelet isosurfaces to be hit at least once")
	}
}

func TestHitIterator_AllBelowIsovalue(t *testing.T) {
	ctx := newContext(t, unitCube(20), accel.Options{CellWidthBits: 2}, grid.Wavelet)
	random := rand.New(rand.NewPCG(5, 5))
	hitCtx := &HitContext{Context: *ctx, Values: []float64{3.5}} // wavelet never exceeds 3

	for i := 0; i < 100; i++ {
		origin, dir := randomRay(random, core.NewVec3(0.5, 0.5, 0.5), 2)
		if hits := collectHits(t, hitCtx, origin, dir, unbounded); len(hits) != 0 {
			t.Fatalf("Ray %d found hits above the field maximum: %v", i, hits)
		}
	}
}

func TestHitIterator_NoValues(t *testing.T) {
	ctx := newContext(t, unitCube(8), accel.DefaultOptions(), xField)
	for _, values := range [][]float64{nil, {math.NaN()}} {
		hits := collectHits(t, &HitContext{Context: *ctx, Values: values}, core.NewVec3(-1, 0.5, 0.5), core.NewVec3(1, 0, 0), unbounded)
		if len(hits) != 0 {
			t.Errorf("Values %v: expected no hits, got %v", values, hits)
		}
	}
}

func TestHitIterator_RespectsTRange(t *testing.T) {
	ctx := newContext(t, unitCube(33), accel.Options{CellWidthBits: 2}, xField)
	hitCtx := &HitContext{Context: *ctx, Values: []float64{0.2, 0.4, 0.6, 0.8}}
	hits := collectHits(t, hitCtx, core.NewVec3(-0.5, 0.5, 0.5), core.NewVec3(1, 0, 0), core.NewRange(0.85, 1.15))

	if len(hits) != 2 {
		t.Fatalf("Expected the 0.4 and 0.6 crossings only, got %v", hits)
	}
	if hits[0].Sample != 0.4 || hits[1].Sample != 0.6 {
		t.Errorf("Unexpected samples %v, %v", hits[0].Sample, hits[1].Sample)
	}
}

func TestHitIterator_ExplicitValueRanges(t *testing.T) {
	ctx := newContext(t, unitCube(33), accel.Options{CellWidthBits: 2}, xField)
	hitCtx := &HitContext{Context: *ctx, Values: []float64{0.25, 0.75}}
	// only cells with values in [0.6, 1] are searched
	hitCtx.ValueRanges = accel.NewValueRanges(core.NewRange(0.6, 1))

	hits := collectHits(t, hitCtx, core.NewVec3(-0.5, 0.5, 0.5), core.NewVec3(1, 0, 0), unbounded)
	if len(hits) != 1 || hits[0].Sample != 0.75 {
		t.Errorf("Expected only the 0.75 crossing, got %v", hits)
	}
}
