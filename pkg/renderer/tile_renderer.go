package renderer

import (
	"image"

	"github.com/df07/go-progressive-volume/pkg/core"
	"github.com/df07/go-progressive-volume/pkg/integrator"
)

// FrameSetup is the immutable per-frame state every tile renders from
type FrameSetup struct {
	Integrator integrator.Integrator
	Time       float64   // Evaluation time in [0,1] for time-varying volumes
	Background core.Vec3 // Color behind the volume when tonemapping
}

// TileRenderer adds one sample per pixel within a tile using an integrator
type TileRenderer struct {
	camera *Camera
	setup  FrameSetup
	frame  uint64
}

// NewTileRenderer creates a tile renderer for one frame
func NewTileRenderer(camera *Camera, setup FrameSetup, frame uint64) *TileRenderer {
	return &TileRenderer{
		camera: camera,
		setup:  setup,
		frame:  frame,
	}
}

// RenderTileBounds renders pixels within bounds into buffer. The caller holds
// the buffer lock; tiles never overlap so workers may share it.
func (tr *TileRenderer) RenderTileBounds(bounds image.Rectangle, buffer *Buffer) RenderStats {
	stats := RenderStats{TotalPixels: bounds.Dx() * bounds.Dy()}
	width := tr.camera.Width()

	for j := bounds.Min.Y; j < bounds.Max.Y; j++ {
		for i := bounds.Min.X; i < bounds.Max.X; i++ {
			sampler := core.NewPixelSampler(tr.frame, uint64(j*width+i))
			ray := tr.camera.GetRay(i, j, sampler.Get2D())
			ray.Time = tr.setup.Time

			c := tr.setup.Integrator.RenderPixel(sampler, ray)
			if c.IsNaN() {
				stats.SkippedSamples++
				continue
			}
			buffer.add(i, j, c, 1)
			stats.TotalSamples++
		}
	}

	return stats
}
