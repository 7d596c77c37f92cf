// Package iterator walks rays through a volume's macrocells. IntervalIterator
// yields the ray segments whose cells may contain values of interest and
// HitIterator finds isosurface crossings inside them.
package iterator

import (
	"errors"
	"fmt"
	"math"

	"github.com/df07/go-progressive-volume/pkg/accel"
	"github.com/df07/go-progressive-volume/pkg/core"
	"github.com/df07/go-progressive-volume/pkg/grid"
	"github.com/df07/go-progressive-volume/pkg/volume"
)

var (
	// ErrUnsupported is returned when a volume kind has no iterator support
	ErrUnsupported = errors.New("iterator not supported")
	// ErrInvalidAttribute is returned for an attribute index the volume lacks
	ErrInvalidAttribute = errors.New("invalid attribute index")
)

// Context holds the per-volume state shared by all iterators of a render
type Context struct {
	Volume         *volume.Volume
	Sampler        core.FieldSampler
	AttributeIndex int
	// ValueRanges prunes macrocells; empty selects every cell
	ValueRanges accel.ValueRanges
}

func (c *Context) validate() error {
	if c.Volume == nil {
		return fmt.Errorf("iterator context has no volume")
	}
	if c.Volume.Kind() != grid.StructuredRegular {
		return fmt.Errorf("%w: macrocell traversal of %s volumes", ErrUnsupported, c.Volume.Kind())
	}
	n := c.Volume.NumAttributes()
	if c.AttributeIndex < 0 || (n > 0 && c.AttributeIndex >= n) {
		return fmt.Errorf("%w: %d (volume has %d)", ErrInvalidAttribute, c.AttributeIndex, n)
	}
	return nil
}

// Interval is a ray segment inside one macrocell
type Interval struct {
	TRange     core.Range
	ValueRange core.Range
	// NominalDeltaT is the ray distance covering about one voxel
	NominalDeltaT float64
}

// IntervalIterator yields the macrocells along a ray whose value range
// overlaps the context's ValueRanges, in increasing t order.
type IntervalIterator struct {
	ctx       *Context
	traversal traversal
}

// NewIntervalIterator clips the ray to the volume bounds and tRange. The
// iterator is exhausted immediately if nothing is left. Macrocell ranges
// cover every timestep, so time does not affect the intervals.
func NewIntervalIterator(ctx *Context, origin, direction core.Vec3, tRange core.Range, time float64) (*IntervalIterator, error) {
	if err := ctx.validate(); err != nil {
		return nil, err
	}
	return &IntervalIterator{
		ctx:       ctx,
		traversal: newTraversal(ctx.Volume.Accelerator(), ctx.Volume.BoundingBox(), origin, direction, tRange),
	}, nil
}

// Next returns the next interval, or false once the ray leaves the volume.
// Further calls keep returning false.
func (it *IntervalIterator) Next() (Interval, bool) {
	a := it.ctx.Volume.Accelerator()
	for {
		cell, tRange, ok := it.traversal.next()
		if !ok {
			return Interval{}, false
		}
		valueRange := a.CellValueRange(cell, it.ctx.AttributeIndex)
		if !it.ctx.ValueRanges.Overlaps(valueRange) {
			continue
		}
		return Interval{
			TRange:        tRange,
			ValueRange:    valueRange,
			NominalDeltaT: it.traversal.nominalDeltaT,
		}, true
	}
}

// Bounds returns the ray range clipped to the volume, empty if it missed
func (it *IntervalIterator) Bounds() core.Range { return it.traversal.bounds }

// HitContext adds isovalues to a Context. If ValueRanges is empty it is
// derived from Values.
type HitContext struct {
	Context
	Values []float64
}

// Hit is an isosurface crossing
type Hit struct {
	T      float64
	Sample float64 // the isovalue crossed
	// Epsilon is the distance around the hit point that callers should offset
	// by before spawning new rays. The search for the next hit resumes at
	// T + Epsilon.
	Epsilon float64
}

// HitIterator finds isosurface crossings in increasing t order by bracketing
// the field at fixed steps and interpolating linearly inside a bracket with a
// sign change. Crossings narrower than one step may be missed.
type HitIterator struct {
	ctx         *HitContext
	traversal   traversal
	time        float64
	values      []float64
	valueRanges accel.ValueRanges
	step        float64
	epsilon     float64

	activeCell bool
	cellRange  core.Range
	resumeT    float64
}

// NewHitIterator creates a hit iterator. With no isovalues it is exhausted
// immediately.
func NewHitIterator(ctx *HitContext, origin, direction core.Vec3, tRange core.Range, time float64) (*HitIterator, error) {
	if err := ctx.validate(); err != nil {
		return nil, err
	}

	values := make([]float64, 0, len(ctx.Values))
	for _, v := range ctx.Values {
		if !math.IsNaN(v) {
			values = append(values, v)
		}
	}
	valueRanges := ctx.ValueRanges
	if valueRanges.IsEmpty() {
		valueRanges = accel.FromValues(values...)
	}

	it := &HitIterator{
		ctx:         ctx,
		traversal:   newTraversal(ctx.Volume.Accelerator(), ctx.Volume.BoundingBox(), origin, direction, tRange),
		time:        core.ClampTime(time),
		values:      values,
		valueRanges: valueRanges,
	}
	if len(values) == 0 {
		it.traversal.exhausted = true
	}
	it.step = 0.5 * it.traversal.nominalDeltaT
	it.epsilon = it.step / 8 * direction.Length()
	it.resumeT = it.traversal.bounds.Lower
	return it, nil
}

// Next returns the next crossing, or false when none remain
func (it *HitIterator) Next() (Hit, bool) {
	a := it.ctx.Volume.Accelerator()
	for {
		if !it.activeCell {
			cell, tRange, ok := it.traversal.next()
			if !ok {
				return Hit{}, false
			}
			if !it.valueRanges.Overlaps(a.CellValueRange(cell, it.ctx.AttributeIndex)) {
				continue
			}
			tRange.Lower = max(tRange.Lower, it.resumeT)
			if tRange.IsEmpty() {
				continue
			}
			it.activeCell = true
			it.cellRange = tRange
		}

		hit, found := it.findHit(it.cellRange)
		if !found {
			it.activeCell = false
			continue
		}

		it.resumeT = hit.T + hit.Epsilon
		it.cellRange.Lower = it.resumeT
		if it.cellRange.IsEmpty() {
			it.activeCell = false
		}
		return hit, true
	}
}

func (it *HitIterator) sample(t float64) float64 {
	p := it.traversal.origin.Add(it.traversal.direction.Multiply(t))
	return it.ctx.Sampler.Sample(p, it.ctx.AttributeIndex, it.time)
}

// findHit returns the first crossing inside r. Bracket boundaries sit on
// multiples of the step so neighbouring cells and rays bracket consistently.
func (it *HitIterator) findHit(r core.Range) (Hit, bool) {
	step := it.step
	kStart := math.Floor(r.Lower / step)
	kEnd := math.Ceil(r.Upper / step)

	t0 := kStart * step
	s0 := it.sample(t0)
	for k := kStart; k < kEnd; k++ {
		t1 := (k + 1) * step
		s1 := it.sample(t1)

		if !math.IsNaN(s0) && !math.IsNaN(s1) && s0 != s1 {
			lo := max(t0, r.Lower)
			hi := min(t1, r.Upper)
			best := math.Inf(1)
			bestValue := 0.0
			for _, v := range it.values {
				if (v-s0)*(v-s1) > 0 {
					continue
				}
				tIso := t0 + (v-s0)/(s1-s0)*(t1-t0)
				if tIso >= lo && tIso <= hi && tIso < best {
					best = tIso
					bestValue = v
				}
			}
			if !math.IsInf(best, 1) {
				return Hit{T: best, Sample: bestValue, Epsilon: it.epsilon}, true
			}
		}

		t0, s0 = t1, s1
	}
	return Hit{}, false
}
