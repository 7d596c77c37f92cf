package integrator

import (
	"github.com/df07/go-progressive-volume/pkg/core"
)

// bboxBlend is how far pixels whose primary ray hits the bounds are pulled
// toward white when ShowBBox is set
const bboxBlend = 0.2

// DensityPathTracerParams configures the Woodcock path tracer
type DensityPathTracerParams struct {
	SigmaTScale           float64 // majorant extinction sigmaMax
	SigmaSScale           float64
	MaxNumScatters        int
	AmbientLightIntensity float64
	MotionBlur            bool
	Shutter               float64
	ShowBBox              bool
}

// DefaultDensityPathTracerParams returns single-scatter defaults
func DefaultDensityPathTracerParams() DensityPathTracerParams {
	return DensityPathTracerParams{
		SigmaTScale:           1,
		SigmaSScale:           1,
		MaxNumScatters:        1,
		AmbientLightIntensity: 1,
		MotionBlur:            false,
		Shutter:               0,
		ShowBBox:              true,
	}
}

// DensityPathTracer renders the volume as a participating medium lit by a
// uniform ambient environment. Free paths are sampled with Woodcock tracking
// against a single majorant, so it works for every grid kind.
type DensityPathTracer struct {
	setup  Setup
	params DensityPathTracerParams
}

// NewDensityPathTracer creates a density path tracer
func NewDensityPathTracer(setup Setup, params DensityPathTracerParams) (*DensityPathTracer, error) {
	if err := setup.validate(); err != nil {
		return nil, err
	}
	return &DensityPathTracer{setup: setup, params: params}, nil
}

// SampleWoodcock samples a collision along ray within hits. It returns the
// collision distance and field sample with zero transmittance, or ok=false
// with transmittance 1 when the ray leaves hits without colliding.
func (pt *DensityPathTracer) SampleWoodcock(sampler core.Sampler, ray core.Ray, hits core.Range) (t, sample, transmittance float64, ok bool) {
	t = hits.Lower
	sigmaMax := pt.params.SigmaTScale
	if sigmaMax <= 0 {
		return t, 0, 1, false
	}

	for {
		distance := sampler.Get2D()
		jitter := sampler.Get2D()

		t += core.SampleExponential(sigmaMax, distance.X)
		if t > hits.Upper {
			return t, 0, 1, false
		}

		time := ray.Time
		if pt.params.MotionBlur {
			time += (jitter.X - 0.5) * pt.params.Shutter
		}
		time = core.ClampTime(time)

		sample = pt.setup.Sampler.Sample(ray.At(t), pt.setup.AttributeIndex, time)
		opacity := pt.setup.Transfer.ColorAndOpacity(sample).W

		// sigmaT must be monochromatic for Woodcock tracking
		sigmaT := sigmaMax * opacity
		if distance.Y < sigmaT/sigmaMax {
			return t, sample, 0, true
		}
	}
}

// Integrate follows one path through the medium. maxScatterIndex is the
// highest scatter index the loop reached and primaryHit reports whether the
// camera ray intersected the volume bounds.
func (pt *DensityPathTracer) Integrate(sampler core.Sampler, ray core.Ray) (Le core.Vec3, maxScatterIndex int, primaryHit bool) {
	bounds := pt.setup.Volume.BoundingBox()
	throughput := core.NewVec3(1, 1, 1)

	for scatterIndex := 0; ; scatterIndex++ {
		maxScatterIndex = max(maxScatterIndex, scatterIndex)

		hits := bounds.IntersectRay(ray.Origin, ray.Direction, ray.TRange)
		if scatterIndex == 0 && hits.HasExtent() {
			primaryHit = true
		}
		if !hits.HasExtent() {
			break
		}

		t, sample, transmittance, collided := pt.SampleWoodcock(sampler, ray, hits)
		if !collided {
			// only scattered rays see the ambient light
			if scatterIndex > 0 {
				ambient := transmittance * pt.params.AmbientLightIntensity
				Le = Le.Add(throughput.Multiply(ambient))
			}
			break
		}

		if scatterIndex >= pt.params.MaxNumScatters {
			break
		}

		c := pt.setup.Transfer.ColorAndOpacity(sample)
		sigmaS := c.RGB().Multiply(pt.params.SigmaSScale * c.W)
		throughput = throughput.MultiplyVec(sigmaS)

		// isotropic phase function; the new segment is unbounded
		scattered := core.NewRay(ray.At(t), core.SampleOnUnitSphere(sampler.Get2D()))
		scattered.Time = ray.Time
		ray = scattered
	}

	return Le, maxScatterIndex, primaryHit
}

// RenderPixel integrates one path. Alpha is 1 when the path scattered at
// least once.
func (pt *DensityPathTracer) RenderPixel(sampler core.Sampler, ray core.Ray) core.Vec4 {
	color, maxScatterIndex, primaryHit := pt.Integrate(sampler, ray)
	alpha := 0.0
	if maxScatterIndex > 0 {
		alpha = 1
	}
	if pt.params.ShowBBox && primaryHit {
		alpha = (1-bboxBlend)*alpha + bboxBlend
		color = color.Multiply(1 - bboxBlend).Add(core.NewVec3(bboxBlend, bboxBlend, bboxBlend))
	}
	return core.NewVec4(color.X, color.Y, color.Z, alpha)
}
