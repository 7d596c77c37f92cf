package integrator

import (
	"math"

	"github.com/df07/go-progressive-volume/pkg/accel"
	"github.com/df07/go-progressive-volume/pkg/core"
	"github.com/df07/go-progressive-volume/pkg/iterator"
)

// newIteratorContext builds the shared iterator context and checks that the
// volume supports macrocell traversal
func newIteratorContext(setup Setup, valueRanges accel.ValueRanges) (*iterator.Context, error) {
	if err := setup.validate(); err != nil {
		return nil, err
	}
	ctx := &iterator.Context{
		Volume:         setup.Volume,
		Sampler:        setup.Sampler,
		AttributeIndex: setup.AttributeIndex,
		ValueRanges:    valueRanges,
	}
	// probe once so unsupported volumes fail at construction, not per pixel
	if _, err := iterator.NewIntervalIterator(ctx, core.Vec3{}, core.NewVec3(1, 0, 0), core.NewRange(0, 0), 0); err != nil {
		return nil, err
	}
	return ctx, nil
}

// HitIteratorParams configures isosurface rendering
type HitIteratorParams struct {
	Isovalues []float64
}

// DefaultHitIteratorParams returns a single isovalue at zero
func DefaultHitIteratorParams() HitIteratorParams {
	return HitIteratorParams{Isovalues: []float64{0}}
}

// HitIteratorRenderer shades isosurface crossings with the transfer function
// color and a headlight term, compositing them front to back
type HitIteratorRenderer struct {
	setup Setup
	ctx   *iterator.HitContext
}

// NewHitIteratorRenderer creates an isosurface renderer
func NewHitIteratorRenderer(setup Setup, params HitIteratorParams) (*HitIteratorRenderer, error) {
	ctx, err := newIteratorContext(setup, accel.ValueRanges{})
	if err != nil {
		return nil, err
	}
	return &HitIteratorRenderer{
		setup: setup,
		ctx:   &iterator.HitContext{Context: *ctx, Values: params.Isovalues},
	}, nil
}

// RenderPixel composites every hit along the ray
func (r *HitIteratorRenderer) RenderPixel(_ core.Sampler, ray core.Ray) core.Vec4 {
	it, err := iterator.NewHitIterator(r.ctx, ray.Origin, ray.Direction, ray.TRange, ray.Time)
	if err != nil {
		return core.Vec4{}
	}

	dir := ray.Direction.Normalize()
	var out compositor
	for !out.opaque() {
		hit, ok := it.Next()
		if !ok {
			break
		}
		c := r.setup.Transfer.ColorAndOpacity(hit.Sample)
		shading := 1.0
		if n := r.setup.Sampler.Gradient(ray.At(hit.T), r.setup.AttributeIndex, core.ClampTime(ray.Time)); n.LengthSquared() > 0 {
			shading = math.Abs(n.Normalize().Dot(dir))
		}
		out.add(c.RGB().Multiply(shading), c.W)
	}
	return out.result()
}

// RayMarchParams configures interval ray marching
type RayMarchParams struct {
	// SamplingRate is the number of samples per nominal voxel step
	SamplingRate float64
}

// DefaultRayMarchParams samples once per voxel step
func DefaultRayMarchParams() RayMarchParams {
	return RayMarchParams{SamplingRate: 1}
}

// RayMarchIterator ray-marches only the intervals whose value range overlaps
// the visible part of the transfer function
type RayMarchIterator struct {
	setup  Setup
	params RayMarchParams
	ctx    *iterator.Context
}

// NewRayMarchIterator creates an interval ray marcher
func NewRayMarchIterator(setup Setup, params RayMarchParams) (*RayMarchIterator, error) {
	if params.SamplingRate <= 0 {
		params.SamplingRate = 1
	}
	var ranges accel.ValueRanges
	if setup.Transfer != nil {
		// an all-transparent transfer function still needs a non-empty set,
		// otherwise every cell would be selected
		ranges = accel.NewValueRanges(setup.Transfer.ActiveRanges()...)
		if ranges.IsEmpty() {
			ranges = accel.NewValueRanges(core.NewRange(math.Inf(1), math.Inf(1)))
		}
	}
	ctx, err := newIteratorContext(setup, ranges)
	if err != nil {
		return nil, err
	}
	return &RayMarchIterator{setup: setup, params: params, ctx: ctx}, nil
}

// RenderPixel composites samples taken at a jittered fixed step inside each
// interval, correcting opacity for the step size
func (r *RayMarchIterator) RenderPixel(sampler core.Sampler, ray core.Ray) core.Vec4 {
	it, err := iterator.NewIntervalIterator(r.ctx, ray.Origin, ray.Direction, ray.TRange, ray.Time)
	if err != nil {
		return core.Vec4{}
	}

	time := core.ClampTime(ray.Time)
	exponent := 1 / r.params.SamplingRate
	jitter := sampler.Get1D()

	var out compositor
	for !out.opaque() {
		interval, ok := it.Next()
		if !ok {
			break
		}
		dt := interval.NominalDeltaT / r.params.SamplingRate
		for t := interval.TRange.Lower + jitter*dt; t < interval.TRange.Upper && !out.opaque(); t += dt {
			value := r.setup.Sampler.Sample(ray.At(t), r.setup.AttributeIndex, time)
			c := r.setup.Transfer.ColorAndOpacity(value)
			if c.W <= 0 {
				continue
			}
			opacity := 1 - math.Pow(1-min(c.W, 1), exponent)
			out.add(c.RGB(), opacity)
		}
	}
	return out.result()
}

// IntervalDebugParams configures interval visualization
type IntervalDebugParams struct {
	// IntervalColorScale is the opacity added by a full-cell interval
	IntervalColorScale  float64
	ShowIntervalBorders bool
}

// DefaultIntervalDebugParams returns moderate interval opacity
func DefaultIntervalDebugParams() IntervalDebugParams {
	return IntervalDebugParams{IntervalColorScale: 0.25, ShowIntervalBorders: false}
}

// IntervalIteratorDebug draws every interval the iterator yields, colored by
// the transfer function at the middle of the interval's value range
type IntervalIteratorDebug struct {
	setup     Setup
	params    IntervalDebugParams
	ctx       *iterator.Context
	cellWidth float64
}

// NewIntervalIteratorDebug creates an interval visualizer
func NewIntervalIteratorDebug(setup Setup, params IntervalDebugParams) (*IntervalIteratorDebug, error) {
	ctx, err := newIteratorContext(setup, accel.ValueRanges{})
	if err != nil {
		return nil, err
	}
	return &IntervalIteratorDebug{
		setup:     setup,
		params:    params,
		ctx:       ctx,
		cellWidth: float64(setup.Volume.Accelerator().CellWidth()),
	}, nil
}

// RenderPixel composites one flat layer per interval
func (r *IntervalIteratorDebug) RenderPixel(_ core.Sampler, ray core.Ray) core.Vec4 {
	it, err := iterator.NewIntervalIterator(r.ctx, ray.Origin, ray.Direction, ray.TRange, ray.Time)
	if err != nil {
		return core.Vec4{}
	}

	var out compositor
	for !out.opaque() {
		interval, ok := it.Next()
		if !ok {
			break
		}
		c := r.setup.Transfer.ColorAndOpacity(interval.ValueRange.Center())
		// fraction of a straight traversal through a full macrocell
		fullCell := interval.NominalDeltaT * r.cellWidth
		width := interval.TRange.Size() / fullCell

		color := c.RGB()
		if r.params.ShowIntervalBorders && width < 0.25 {
			color = color.Multiply(0.25)
		}
		out.add(color, min(1, r.params.IntervalColorScale*width))
	}
	return out.result()
}
