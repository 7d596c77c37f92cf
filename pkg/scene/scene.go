// Package scene owns the committed volume and renderer configuration and
// hands immutable per-frame snapshots to the renderer.
package scene

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/df07/go-progressive-volume/pkg/core"
	"github.com/df07/go-progressive-volume/pkg/integrator"
	"github.com/df07/go-progressive-volume/pkg/renderer"
	"github.com/df07/go-progressive-volume/pkg/transfer"
	"github.com/df07/go-progressive-volume/pkg/volume"
)

var ErrNoVolume = errors.New("no volume has been committed")

// committed is one consistent set of objects derived from the parameters
type committed struct {
	volumeParams   VolumeParams
	rendererParams RendererParams
	setup          integrator.Setup
	integrator     integrator.Integrator
}

// Scene holds the volume and integrator that frames render from. Updates are
// all-or-nothing: a failed update keeps the previous state.
type Scene struct {
	mu      sync.RWMutex
	current *committed
}

// New creates an empty scene; FrameSetup fails until a volume is committed
func New() *Scene {
	return &Scene{}
}

// NewFromParams creates a scene and commits the given parameters
func NewFromParams(vp VolumeParams, rp RendererParams) (*Scene, error) {
	s := New()
	if err := s.Update(vp, rp); err != nil {
		return nil, err
	}
	return s, nil
}

// build derives the transfer function, sampler and integrator for a volume
func build(v *volume.Volume, vp VolumeParams, rp RendererParams) (*committed, error) {
	if n := v.NumAttributes(); rp.AttributeIndex < 0 || (n > 0 && rp.AttributeIndex >= n) {
		return nil, fmt.Errorf("attribute %d out of range (volume has %d)", rp.AttributeIndex, n)
	}
	var valueRange core.Range
	if rp.ValueRange != nil {
		valueRange = *rp.ValueRange
	} else {
		valueRange = v.ValueRange(rp.AttributeIndex)
	}
	if valueRange.IsEmpty() {
		// empty grid: any valid range works
		valueRange = core.NewRange(0, 1)
	}
	tf, err := transfer.Preset(rp.TransferFunction, valueRange)
	if err != nil {
		return nil, err
	}

	setup := integrator.Setup{
		Volume:         v,
		Sampler:        volume.NewSampler(v, vp.Filter),
		Transfer:       tf,
		AttributeIndex: rp.AttributeIndex,
	}
	integ, err := integrator.New(rp.Integrator, setup, rp.Params)
	if err != nil {
		return nil, err
	}
	return &committed{volumeParams: vp, rendererParams: rp, setup: setup, integrator: integ}, nil
}

// Update rebuilds the volume and the integrator. On error the previous state
// is kept, the failure is logged and returned.
func (s *Scene) Update(vp VolumeParams, rp RendererParams) error {
	v, err := vp.Build()
	if err == nil {
		var c *committed
		if c, err = build(v, vp, rp); err == nil {
			s.commit(c)
			core.Logger().Info("volume committed",
				"kind", vp.GridKind,
				"dimensions", vp.Dimensions,
				"field", vp.Field,
				"slices", vp.Slices,
				"integrator", rp.Integrator)
			return nil
		}
	}
	core.Logger().Warn("volume update rejected, keeping previous volume", "error", err)
	return err
}

// UpdateVolume rebuilds the volume, keeping the current renderer parameters
func (s *Scene) UpdateVolume(vp VolumeParams) error {
	return s.Update(vp, s.RendererParams())
}

// UpdateRenderer rebuilds only the integrator over the current volume
func (s *Scene) UpdateRenderer(rp RendererParams) error {
	s.mu.RLock()
	current := s.current
	s.mu.RUnlock()
	if current == nil {
		return ErrNoVolume
	}

	c, err := build(current.setup.Volume, current.volumeParams, rp)
	if err != nil {
		core.Logger().Warn("renderer update rejected, keeping previous integrator", "error", err)
		return err
	}
	s.commit(c)
	core.Logger().Info("renderer committed", "integrator", rp.Integrator)
	return nil
}

func (s *Scene) commit(c *committed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = c
}

func (s *Scene) snapshot() (*committed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, ErrNoVolume
	}
	return s.current, nil
}

// FrameSetup returns the state for the next frame
func (s *Scene) FrameSetup() (renderer.FrameSetup, error) {
	c, err := s.snapshot()
	if err != nil {
		return renderer.FrameSetup{}, err
	}
	return renderer.FrameSetup{
		Integrator: c.integrator,
		Time:       c.rendererParams.Time,
		Background: c.rendererParams.Background,
	}, nil
}

// Setup returns the integrator inputs of the committed state
func (s *Scene) Setup() (integrator.Setup, error) {
	c, err := s.snapshot()
	if err != nil {
		return integrator.Setup{}, err
	}
	return c.setup, nil
}

// Volume returns the committed volume, or nil
func (s *Scene) Volume() *volume.Volume {
	c, err := s.snapshot()
	if err != nil {
		return nil
	}
	return c.setup.Volume
}

// VolumeParams returns the committed volume parameters, or the defaults
func (s *Scene) VolumeParams() VolumeParams {
	c, err := s.snapshot()
	if err != nil {
		return DefaultVolumeParams()
	}
	return c.volumeParams
}

// RendererParams returns the committed renderer parameters, or the defaults
func (s *Scene) RendererParams() RendererParams {
	c, err := s.snapshot()
	if err != nil {
		return DefaultRendererParams()
	}
	return c.rendererParams
}

// CameraConfig frames the committed volume's bounding box from the front,
// slightly above and to the right
func (s *Scene) CameraConfig(width int, aspectRatio float64) renderer.CameraConfig {
	config := renderer.DefaultCameraConfig()
	config.Width = width
	config.AspectRatio = aspectRatio

	v := s.Volume()
	if v == nil || v.IsEmpty() {
		return config
	}
	box := v.BoundingBox()
	center := box.Center()
	radius := max(box.Size().Length()/2, 1e-6)
	distance := radius / math.Sin(config.VFov*math.Pi/360) * 1.05

	config.LookAt = center
	config.Center = center.Add(core.NewVec3(0.35, 0.3, 1).Normalize().Multiply(distance))
	return config
}
