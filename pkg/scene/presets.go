package scene

import (
	"fmt"

	"github.com/df07/go-progressive-volume/pkg/grid"
	"github.com/df07/go-progressive-volume/pkg/integrator"
)

type preset struct {
	info  SceneInfo
	build func() (VolumeParams, RendererParams)
}

var presets = []preset{
	{
		info: SceneInfo{
			ID:          "wavelet",
			DisplayName: "Wavelet",
			Description: "64³ wavelet field rendered as a scattering medium",
			Group:       "Regular Grids",
		},
		build: func() (VolumeParams, RendererParams) {
			return DefaultVolumeParams(), DefaultRendererParams()
		},
	},
	{
		info: SceneInfo{
			ID:          "wavelet-isosurfaces",
			DisplayName: "Wavelet Isosurfaces",
			Description: "Three wavelet isosurfaces found by the hit iterator",
			Group:       "Regular Grids",
		},
		build: func() (VolumeParams, RendererParams) {
			rp := DefaultRendererParams()
			rp.Integrator = integrator.KindHitIterator
			rp.Params.HitIterator.Isovalues = []float64{-1, 0, 1}
			return DefaultVolumeParams(), rp
		},
	},
	{
		info: SceneInfo{
			ID:          "macrocells",
			DisplayName: "Macrocell Intervals",
			Description: "Intervals produced by the macrocell traversal of an xyz field",
			Group:       "Regular Grids",
		},
		build: func() (VolumeParams, RendererParams) {
			vp := DefaultVolumeParams()
			vp.Field = "xyz"
			rp := DefaultRendererParams()
			rp.Integrator = integrator.KindIntervalIteratorDebug
			rp.Params.IntervalDebug.ShowIntervalBorders = true
			return vp, rp
		},
	},
	{
		info: SceneInfo{
			ID:          "rotating-sphere",
			DisplayName: "Rotating Sphere",
			Description: "Time-varying distance field ray-marched through pruned intervals",
			Group:       "Regular Grids",
		},
		build: func() (VolumeParams, RendererParams) {
			vp := DefaultVolumeParams()
			vp.Field = "rotating_sphere"
			vp.NumTimesteps = 8
			rp := DefaultRendererParams()
			rp.Integrator = integrator.KindRayMarchIterator
			rp.TransferFunction = "grayscale"
			return vp, rp
		},
	},
	{
		info: SceneInfo{
			ID:          "spherical-shell",
			DisplayName: "Spherical Shell",
			Description: "Wavelet sampled on a spherical grid, path traced",
			Group:       "Spherical Grids",
		},
		build: func() (VolumeParams, RendererParams) {
			vp := DefaultVolumeParams()
			vp.GridKind = grid.StructuredSpherical
			vp.Dimensions = [3]int{32, 32, 64}
			return vp, DefaultRendererParams()
		},
	},
}

// ListPresets returns the built-in scenes in display order
func ListPresets() []SceneInfo {
	infos := make([]SceneInfo, len(presets))
	for i, p := range presets {
		infos[i] = p.info
		infos[i].Type = "builtin"
	}
	return infos
}

// Preset returns the parameters of a built-in scene
func Preset(id string) (VolumeParams, RendererParams, error) {
	for _, p := range presets {
		if p.info.ID == id {
			vp, rp := p.build()
			return vp, rp, nil
		}
	}
	return VolumeParams{}, RendererParams{}, fmt.Errorf("unknown scene preset %q", id)
}
