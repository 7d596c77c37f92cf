// Package integrator computes per-pixel radiance for a volume: a Woodcock
// density path tracer plus renderers driven by the interval and hit iterators.
package integrator

import (
	"errors"
	"fmt"

	"github.com/df07/go-progressive-volume/pkg/core"
	"github.com/df07/go-progressive-volume/pkg/transfer"
	"github.com/df07/go-progressive-volume/pkg/volume"
)

// Integrator renders one sample of one pixel. Implementations are read-only
// after construction and safe for concurrent use.
type Integrator interface {
	// RenderPixel returns RGB radiance and alpha for a camera ray
	RenderPixel(sampler core.Sampler, ray core.Ray) core.Vec4
}

var ErrIncompleteSetup = errors.New("integrator setup is incomplete")

// Setup bundles the per-frame state every integrator samples from. It is
// treated as an immutable snapshot while a frame renders.
type Setup struct {
	Volume         *volume.Volume
	Sampler        core.FieldSampler
	Transfer       *transfer.Function
	AttributeIndex int
}

func (s Setup) validate() error {
	switch {
	case s.Volume == nil:
		return fmt.Errorf("%w: no volume", ErrIncompleteSetup)
	case s.Sampler == nil:
		return fmt.Errorf("%w: no sampler", ErrIncompleteSetup)
	case s.Transfer == nil:
		return fmt.Errorf("%w: no transfer function", ErrIncompleteSetup)
	}
	if n := s.Volume.NumAttributes(); s.AttributeIndex < 0 || (n > 0 && s.AttributeIndex >= n) {
		return fmt.Errorf("%w: attribute %d out of range (volume has %d)", ErrIncompleteSetup, s.AttributeIndex, n)
	}
	return nil
}

// Kind names an integrator
type Kind string

const (
	KindDensityPathTracer     Kind = "density_pathtracer"
	KindHitIterator           Kind = "hit_iterator"
	KindRayMarchIterator      Kind = "ray_march_iterator"
	KindIntervalIteratorDebug Kind = "interval_iterator_debug"
)

// Kinds lists every available integrator
func Kinds() []Kind {
	return []Kind{KindDensityPathTracer, KindHitIterator, KindRayMarchIterator, KindIntervalIteratorDebug}
}

// Params holds the parameters of every integrator so one struct can be
// edited regardless of which integrator is active
type Params struct {
	DensityPathTracer DensityPathTracerParams
	HitIterator       HitIteratorParams
	RayMarch          RayMarchParams
	IntervalDebug     IntervalDebugParams
}

// DefaultParams returns default parameters for all integrators
func DefaultParams() Params {
	return Params{
		DensityPathTracer: DefaultDensityPathTracerParams(),
		HitIterator:       DefaultHitIteratorParams(),
		RayMarch:          DefaultRayMarchParams(),
		IntervalDebug:     DefaultIntervalDebugParams(),
	}
}

// New creates the named integrator. Iterator-based integrators fail with
// iterator.ErrUnsupported for volumes their iterators cannot traverse.
func New(kind Kind, setup Setup, params Params) (Integrator, error) {
	switch kind {
	case KindDensityPathTracer:
		return NewDensityPathTracer(setup, params.DensityPathTracer)
	case KindHitIterator:
		return NewHitIteratorRenderer(setup, params.HitIterator)
	case KindRayMarchIterator:
		return NewRayMarchIterator(setup, params.RayMarch)
	case KindIntervalIteratorDebug:
		return NewIntervalIteratorDebug(setup, params.IntervalDebug)
	}
	return nil, fmt.Errorf("unknown integrator %q", kind)
}

// compositor accumulates front-to-back alpha blending
type compositor struct {
	color core.Vec3
	alpha float64
}

func (c *compositor) add(color core.Vec3, opacity float64) {
	w := (1 - c.alpha) * opacity
	c.color = c.color.Add(color.Multiply(w))
	c.alpha += w
}

func (c *compositor) opaque() bool {
	return c.alpha >= 0.99
}

func (c *compositor) result() core.Vec4 {
	return core.NewVec4(c.color.X, c.color.Y, c.color.Z, c.alpha)
}
