package grid

import (
	"math"

	"github.com/df07/go-progressive-volume/pkg/core"
)

// sphericalToCartesian converts (radius, inclination, azimuth) in radians
func sphericalToCartesian(r, inclination, azimuth float64) core.Vec3 {
	sinInc, cosInc := math.Sincos(inclination)
	sinAz, cosAz := math.Sincos(azimuth)
	return core.NewVec3(r*sinInc*cosAz, r*sinInc*sinAz, r*cosInc)
}

// cartesianToSpherical returns (radius, inclination, azimuth) with the
// azimuth wrapped into [0, 2π).
func cartesianToSpherical(p core.Vec3) core.Vec3 {
	r := p.Length()
	if r == 0 {
		return core.Vec3{}
	}
	inclination := math.Acos(max(-1, min(1, p.Z/r)))
	azimuth := math.Atan2(p.Y, p.X)
	if azimuth < 0 {
		azimuth += 2 * math.Pi
	}
	return core.NewVec3(r, inclination, azimuth)
}

// sphericalPatchBounds bounds the region radius×inclination×azimuth. Each
// cartesian component is a product of per-axis factors, so its extrema lie
// on the range endpoints or at the interior critical angles.
func sphericalPatchBounds(radius, inclination, azimuth core.Range) core.AABB {
	radii := []float64{radius.Lower, radius.Upper}
	inclinations := criticalAngles(inclination, math.Pi/2)
	azimuths := criticalAngles(azimuth, math.Pi/2)

	box := core.EmptyAABB()
	for _, r := range radii {
		for _, inc := range inclinations {
			for _, az := range azimuths {
				box = box.Extend(sphericalToCartesian(r, inc, az))
			}
		}
	}
	return box
}

// criticalAngles returns the range endpoints plus every multiple of period
// strictly inside the range.
func criticalAngles(r core.Range, period float64) []float64 {
	angles := []float64{r.Lower, r.Upper}
	for k := math.Ceil(r.Lower / period); k*period < r.Upper; k++ {
		if a := k * period; a > r.Lower {
			angles = append(angles, a)
		}
	}
	return angles
}
