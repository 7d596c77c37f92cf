package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/df07/go-progressive-volume/pkg/core"
	"github.com/df07/go-progressive-volume/pkg/integrator"
	"github.com/df07/go-progressive-volume/pkg/iterator"
	"github.com/df07/go-progressive-volume/pkg/renderer"
	"github.com/df07/go-progressive-volume/pkg/scene"
)

// maxInspectItems caps the intervals and hits reported for one ray
const maxInspectItems = 1024

// IntervalInfo is one macrocell interval along the inspected ray
type IntervalInfo struct {
	TRange        [2]float64 `json:"tRange"`
	ValueRange    [2]float64 `json:"valueRange"`
	NominalDeltaT float64    `json:"nominalDeltaT"`
}

// HitInfo is one isosurface crossing along the inspected ray
type HitInfo struct {
	T        float64    `json:"t"`
	Isovalue float64    `json:"isovalue"`
	Point    [3]float64 `json:"point"`
	Sample   float64    `json:"sample"` // field value interpolated at Point
}

// InspectResponse represents the JSON response for ray inspection
type InspectResponse struct {
	Hit        bool           `json:"hit"` // the ray enters the volume
	Supported  bool           `json:"supported"`
	VolumeKind string         `json:"volumeKind"`
	Origin     [3]float64     `json:"origin"`
	Direction  [3]float64     `json:"direction"`
	View       [3]float64     `json:"view"` // camera forward axis
	Bounds     [2]float64     `json:"bounds"` // ray range inside the volume
	Isovalues  []float64      `json:"isovalues"`
	Intervals  []IntervalInfo `json:"intervals"`
	Hits       []HitInfo      `json:"hits"`
	Truncated  bool           `json:"truncated"`
	Message    string         `json:"message,omitempty"`
}

func vecArray(v core.Vec3) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

// inspectRay runs the interval and hit iterators along one ray
func inspectRay(sceneObj *scene.Scene, ray core.Ray, isovalues []float64) (InspectResponse, error) {
	setup, err := sceneObj.Setup()
	if err != nil {
		return InspectResponse{}, err
	}

	response := InspectResponse{
		VolumeKind: setup.Volume.Kind().String(),
		Origin:     vecArray(ray.Origin),
		Direction:  vecArray(ray.Direction),
		Isovalues:  isovalues,
		Intervals:  []IntervalInfo{},
		Hits:       []HitInfo{},
	}

	ctx := &iterator.Context{
		Volume:         setup.Volume,
		Sampler:        setup.Sampler,
		AttributeIndex: setup.AttributeIndex,
	}
	intervals, err := iterator.NewIntervalIterator(ctx, ray.Origin, ray.Direction, ray.TRange, ray.Time)
	if errors.Is(err, iterator.ErrUnsupported) {
		response.Message = err.Error()
		return response, nil
	}
	if err != nil {
		return InspectResponse{}, err
	}
	response.Supported = true

	if bounds := intervals.Bounds(); !bounds.IsEmpty() {
		response.Hit = true
		response.Bounds = [2]float64{bounds.Lower, bounds.Upper}
	}

	for len(response.Intervals) < maxInspectItems {
		interval, ok := intervals.Next()
		if !ok {
			break
		}
		response.Intervals = append(response.Intervals, IntervalInfo{
			TRange:        [2]float64{interval.TRange.Lower, interval.TRange.Upper},
			ValueRange:    [2]float64{jsonSafe(interval.ValueRange.Lower), jsonSafe(interval.ValueRange.Upper)},
			NominalDeltaT: interval.NominalDeltaT,
		})
	}
	if len(response.Intervals) == maxInspectItems {
		response.Truncated = true
	}

	hitCtx := &iterator.HitContext{
		Context: iterator.Context{
			Volume:         setup.Volume,
			Sampler:        setup.Sampler,
			AttributeIndex: setup.AttributeIndex,
		},
		Values: isovalues,
	}
	hits, err := iterator.NewHitIterator(hitCtx, ray.Origin, ray.Direction, ray.TRange, ray.Time)
	if err != nil {
		return InspectResponse{}, err
	}
	for len(response.Hits) < maxInspectItems {
		hit, ok := hits.Next()
		if !ok {
			break
		}
		point := ray.At(hit.T)
		response.Hits = append(response.Hits, HitInfo{
			T:        hit.T,
			Isovalue: hit.Sample,
			Point:    vecArray(point),
			Sample:   jsonSafe(setup.Sampler.Sample(point, setup.AttributeIndex, ray.Time)),
		})
	}
	if len(response.Hits) == maxInspectItems {
		response.Truncated = true
	}
	return response, nil
}

// jsonSafe maps NaN and infinities, which JSON cannot encode, to zero
func jsonSafe(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// handleInspect handles ray inspection requests: it reports the intervals
// and isosurface hits along the ray through one pixel
func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	// Create request object for parameter parsing
	inspectReq := &RenderRequest{}

	// Parse common scene parameters using shared function
	if err := s.parseCommonSceneParams(r, inspectReq); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid scene parameters: " + err.Error()})
		return
	}

	// Parse pixel coordinates
	pixelX, err := strconv.Atoi(r.URL.Query().Get("x"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid x coordinate"})
		return
	}
	pixelY, err := strconv.Atoi(r.URL.Query().Get("y"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid y coordinate"})
		return
	}

	// Validate pixel coordinates
	if pixelX < 0 || pixelX >= inspectReq.Width || pixelY < 0 || pixelY >= inspectReq.Height {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Pixel coordinates out of bounds"})
		return
	}

	sceneObj, err := s.createScene(inspectReq)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	// Ray through the pixel center, matching the renderer's camera
	aspect := float64(inspectReq.Width) / float64(inspectReq.Height)
	camera := renderer.NewCamera(sceneObj.CameraConfig(inspectReq.Width, aspect))
	ray := camera.GetRay(pixelX, pixelY, core.NewVec2(0.5, 0.5))
	ray.Time = inspectReq.Time

	isovalues := sceneObj.RendererParams().Params.HitIterator.Isovalues
	if isovalues == nil {
		isovalues = integrator.DefaultHitIteratorParams().Isovalues
	}

	response, err := inspectRay(sceneObj, ray, isovalues)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	response.View = vecArray(camera.GetCameraForward())
	writeJSON(w, http.StatusOK, response)
}
