// Package renderer drives progressive rendering: it splits frames into tiles,
// renders them on a worker pool into a double-buffered framebuffer and
// exports the result.
package renderer

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/df07/go-progressive-volume/pkg/core"
)

// ProgressiveConfig contains configuration for progressive rendering
type ProgressiveConfig struct {
	TileSize   int // Size of each tile in pixels
	NumWorkers int // Number of parallel workers (0 = use CPU count)
	MaxFrames  int // Frames rendered by RenderProgressive when not overridden
}

// DefaultProgressiveConfig returns sensible default values
func DefaultProgressiveConfig() ProgressiveConfig {
	return ProgressiveConfig{
		TileSize:   16,
		NumWorkers: 0, // Auto-detect CPU count
		MaxFrames:  64,
	}
}

// Scene supplies the state for each new frame
type Scene interface {
	FrameSetup() (FrameSetup, error)
}

// FrameResult contains the result of a single frame
type FrameResult struct {
	Frame    int         // 1-based count of frames accumulated since the last clear
	Image    *image.RGBA // Tonemapped front buffer
	Stats    RenderStats
	Summary  FrameStats
	Duration time.Duration
	IsLast   bool
}

// ProgressiveRenderer accumulates one sample per pixel per frame
type ProgressiveRenderer struct {
	scene       Scene
	config      ProgressiveConfig
	framebuffer *Framebuffer

	// mu guards the fields below and is held for a whole frame. Lock order is
	// mu, then the framebuffer's back and front buffers.
	mu         sync.Mutex
	camera     *Camera
	tiles      []*Tile
	frameIndex uint64 // seeds pixel samplers, never reused
	frameCount int    // frames accumulated since the last clear
}

// NewProgressiveRenderer creates a renderer whose image size follows the camera
func NewProgressiveRenderer(scene Scene, camera CameraConfig, config ProgressiveConfig) *ProgressiveRenderer {
	if config.TileSize <= 0 {
		config.TileSize = DefaultProgressiveConfig().TileSize
	}
	cam := NewCamera(camera)
	return &ProgressiveRenderer{
		scene:       scene,
		config:      config,
		framebuffer: NewFramebuffer(cam.Width(), cam.Height()),
		camera:      cam,
		tiles:       NewTileGrid(cam.Width(), cam.Height(), config.TileSize),
	}
}

// Framebuffer returns the renderer's double buffer
func (pr *ProgressiveRenderer) Framebuffer() *Framebuffer {
	return pr.framebuffer
}

// Config returns the progressive configuration
func (pr *ProgressiveRenderer) Config() ProgressiveConfig {
	return pr.config
}

// Camera returns the current camera
func (pr *ProgressiveRenderer) Camera() *Camera {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.camera
}

// SetCamera replaces the camera, resizing and clearing when needed. It waits
// for a frame in progress to finish.
func (pr *ProgressiveRenderer) SetCamera(config CameraConfig) {
	cam := NewCamera(config)
	pr.mu.Lock()
	defer pr.mu.Unlock()

	if cam.Width() != pr.camera.Width() || cam.Height() != pr.camera.Height() {
		pr.framebuffer.Resize(cam.Width(), cam.Height())
		pr.tiles = NewTileGrid(cam.Width(), cam.Height(), pr.config.TileSize)
		core.Logger().Info("framebuffer resized", "width", cam.Width(), "height", cam.Height())
	} else {
		pr.framebuffer.Clear()
	}
	pr.camera = cam
	pr.frameCount = 0
}

// Resize changes the image size, keeping the camera's view
func (pr *ProgressiveRenderer) Resize(width, height int) {
	config := pr.Camera().Config()
	config.Width = max(1, width)
	config.AspectRatio = float64(config.Width) / float64(max(1, height))
	pr.SetCamera(config)
}

// Clear restarts accumulation after a parameter change
func (pr *ProgressiveRenderer) Clear() {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	pr.framebuffer.Clear()
	pr.frameCount = 0
}

// RenderFrame adds one sample per pixel to the back buffer and presents it.
// A cancelled frame returns ctx.Err() and leaves the front buffer untouched.
func (pr *ProgressiveRenderer) RenderFrame(ctx context.Context) (FrameResult, error) {
	setup, err := pr.scene.FrameSetup()
	if err != nil {
		return FrameResult{}, err
	}
	if setup.Integrator == nil {
		return FrameResult{}, fmt.Errorf("frame setup has no integrator")
	}

	pr.mu.Lock()
	defer pr.mu.Unlock()
	fb := pr.framebuffer
	fb.back.mu.Lock()
	defer fb.back.mu.Unlock()

	startTime := time.Now()
	renderer := NewTileRenderer(pr.camera, setup, pr.frameIndex)
	// seeds must not repeat, even for an abandoned frame
	pr.frameIndex++

	workerPool := NewWorkerPool(pr.config.NumWorkers, len(pr.tiles))
	workers := workerPool.GetNumWorkers()
	workerPool.Start(ctx)
	for taskID, tile := range pr.tiles {
		workerPool.SubmitTask(TileTask{
			Tile:     tile,
			TaskID:   taskID,
			Renderer: renderer,
			Buffer:   fb.back,
		})
	}

	var stats RenderStats
	var frameErr error
	for range pr.tiles {
		result, ok := workerPool.GetResult()
		if !ok {
			frameErr = fmt.Errorf("worker pool closed unexpectedly")
			break
		}
		if result.Error != nil && frameErr == nil {
			frameErr = result.Error
		}
		stats = stats.Add(result.Stats)
		pr.tiles[result.TaskID].FramesCompleted++
	}
	workerPool.Stop()

	if frameErr != nil {
		core.Logger().Debug("frame abandoned", "frame", pr.frameCount+1, "error", frameErr)
		return FrameResult{Stats: stats}, frameErr
	}

	pr.frameCount++
	fb.presentLocked()

	img := fb.front.Tonemap(nil, setup.Background)
	result := FrameResult{
		Frame:    pr.frameCount,
		Image:    img,
		Stats:    stats,
		Summary:  fb.front.Stats(),
		Duration: time.Since(startTime),
	}
	core.Logger().Info("frame completed",
		"frame", result.Frame,
		"samples", stats.TotalSamples,
		"skipped", stats.SkippedSamples,
		"workers", workers,
		"duration", result.Duration)
	return result, nil
}

// RenderProgressive renders up to maxFrames frames (the configured MaxFrames
// when maxFrames <= 0) with channel-based communication. Both channels are
// closed once rendering stops; workers have exited by then.
func (pr *ProgressiveRenderer) RenderProgressive(ctx context.Context, maxFrames int) (<-chan FrameResult, <-chan error) {
	if maxFrames <= 0 {
		maxFrames = pr.config.MaxFrames
	}
	frameChan := make(chan FrameResult, 1)
	errChan := make(chan error, 1)

	go func() {
		defer close(frameChan)
		defer close(errChan)

		core.Logger().Info("starting progressive rendering", "frames", maxFrames)

		for frame := 1; frame <= maxFrames; frame++ {
			// Check if client disconnected before starting this frame
			select {
			case <-ctx.Done():
				core.Logger().Info("rendering cancelled", "before_frame", frame)
				errChan <- ctx.Err()
				return
			default:
			}

			result, err := pr.RenderFrame(ctx)
			if err != nil {
				errChan <- err
				return
			}
			result.IsLast = frame == maxFrames

			select {
			case frameChan <- result:
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			}
		}
	}()

	return frameChan, errChan
}

// Tile represents a rectangular region of the image to be rendered
type Tile struct {
	ID              int             // Unique tile identifier
	Bounds          image.Rectangle // Pixel bounds (x0,y0,x1,y1)
	FramesCompleted int             // Number of frames completed for this tile
}

// NewTileGrid creates a grid of tiles covering the entire image
func NewTileGrid(width, height, tileSize int) []*Tile {
	var tiles []*Tile
	tileID := 0

	// Calculate number of tiles in each dimension
	tilesX := (width + tileSize - 1) / tileSize // Ceiling division
	tilesY := (height + tileSize - 1) / tileSize

	for tileY := 0; tileY < tilesY; tileY++ {
		for tileX := 0; tileX < tilesX; tileX++ {
			x0 := tileX * tileSize
			y0 := tileY * tileSize
			x1 := min(x0+tileSize, width) // Don't exceed image bounds
			y1 := min(y0+tileSize, height)

			tiles = append(tiles, &Tile{ID: tileID, Bounds: image.Rect(x0, y0, x1, y1)})
			tileID++
		}
	}

	return tiles
}
