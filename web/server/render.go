package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"sync"
	"time"

	"golang.org/x/text/language"

	"github.com/df07/go-progressive-volume/pkg/core"
	"github.com/df07/go-progressive-volume/pkg/renderer"
	"github.com/df07/go-progressive-volume/pkg/scene"
)

// FrameUpdate represents a single progressive frame sent via SSE
type FrameUpdate struct {
	Frame          int     `json:"frame"`
	TotalFrames    int     `json:"totalFrames"`
	ImageData      string  `json:"imageData"` // Base64 encoded PNG
	TotalPixels    int     `json:"totalPixels"`
	TotalSamples   int     `json:"totalSamples"`
	SkippedSamples int     `json:"skippedSamples"`
	MeanLuminance  float64 `json:"meanLuminance"`
	Coverage       float64 `json:"coverage"`
	Summary        string  `json:"summary"`
	IsComplete     bool    `json:"isComplete"`
	ElapsedMs      int64   `json:"elapsedMs"`
}

// SSEEvent represents a unified SSE event for thread-safe writing
type SSEEvent struct {
	Type string `json:"type"` // "console", "frame", "error", "complete"
	Data string `json:"data"` // JSON-encoded data
}

// RenderingPipeline contains the configured scene and renderer
type RenderingPipeline struct {
	Key      string // identifies the volume the scene was built from
	Scene    *scene.Scene
	Renderer *renderer.ProgressiveRenderer
}

// pipelineCache keeps the pipeline of the last finished render, so a request
// for the same volume skips the volume build. A taken pipeline belongs to one
// render until it is put back.
type pipelineCache struct {
	mu       sync.Mutex
	pipeline *RenderingPipeline
}

// take removes and returns the cached pipeline if it was built for key
func (c *pipelineCache) take(key string) *RenderingPipeline {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pipeline == nil || c.pipeline.Key != key {
		return nil
	}
	pipeline := c.pipeline
	c.pipeline = nil
	return pipeline
}

func (c *pipelineCache) put(pipeline *RenderingPipeline) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pipeline = pipeline
}

// handleRender handles progressive rendering with real-time frame streaming via SSE
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	// Set SSE headers
	s.setSSEHeaders(w)

	ctx := r.Context()

	// Create unified SSE event channel for thread-safe writing
	sseEventChan := make(chan SSEEvent, 100)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeSSEEvents(ctx, w, sseEventChan)
	}()

	// Setup console streaming for the duration of the render
	consoleCtx, stopConsole := context.WithCancel(ctx)
	consoleChan := s.console.Subscribe(50)
	var consoleWG sync.WaitGroup
	consoleWG.Go(func() {
		s.streamConsoleMessages(consoleCtx, consoleChan, sseEventChan)
	})

	defer func() {
		s.console.Unsubscribe(consoleChan)
		stopConsole()
		consoleWG.Wait()
		// the writer drains what is queued, then exits
		close(sseEventChan)
		<-writerDone
	}()

	// Parse and validate request
	req, err := s.parseRenderRequest(r)
	if err != nil {
		s.handleError(ctx, sseEventChan, fmt.Sprintf("Invalid request: %v", err))
		return
	}

	pipeline, err := s.setupRenderingPipeline(req)
	if err != nil {
		s.handleError(ctx, sseEventChan, err.Error())
		return
	}

	// Start rendering and stream events
	startTime := time.Now()
	frameChan, errChan := pipeline.Renderer.RenderProgressive(ctx, req.MaxFrames)
	s.handleRenderingEvents(ctx, sseEventChan, frameChan, errChan, req, startTime)

	// the renderer has stopped once both channels are drained
	s.pipelines.put(pipeline)
}

// setSSEHeaders sets the required headers for Server-Sent Events
func (s *Server) setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
}

// writeSSEEvents writes all SSE events from a single goroutine until the
// channel is closed. Events queued after the client left are discarded.
func (s *Server) writeSSEEvents(ctx context.Context, w http.ResponseWriter, sseEventChan <-chan SSEEvent) {
	flusher, _ := w.(http.Flusher)
	for event := range sseEventChan {
		// Check if client is still connected before writing
		if ctx.Err() != nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, event.Data); err != nil {
			continue
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// streamConsoleMessages forwards console messages until ctx is done, then
// forwards whatever is still buffered
func (s *Server) streamConsoleMessages(ctx context.Context, consoleChan <-chan ConsoleMessage, sseEventChan chan<- SSEEvent) {
	forward := func(consoleMsg ConsoleMessage) {
		data, err := json.Marshal(consoleMsg)
		if err != nil {
			return
		}
		select {
		case sseEventChan <- SSEEvent{Type: "console", Data: string(data)}:
		default:
			// Channel full, skip message to avoid blocking
		}
	}

	for {
		select {
		case consoleMsg := <-consoleChan:
			forward(consoleMsg)
		case <-ctx.Done():
			for {
				select {
				case consoleMsg := <-consoleChan:
					forward(consoleMsg)
				default:
					return
				}
			}
		}
	}
}

// setupRenderingPipeline reuses the cached pipeline when the request renders
// the same volume, otherwise it creates the scene and the progressive renderer
func (s *Server) setupRenderingPipeline(req *RenderRequest) (*RenderingPipeline, error) {
	vp, rp, err := s.sceneParams(req)
	if err != nil {
		return nil, fmt.Errorf("Scene setup failed: %w", err)
	}
	key, err := json.Marshal(vp)
	if err != nil {
		return nil, fmt.Errorf("Scene setup failed: %w", err)
	}

	if pipeline := s.pipelines.take(string(key)); pipeline != nil {
		if err := pipeline.Scene.UpdateRenderer(rp); err != nil {
			return nil, fmt.Errorf("Scene setup failed: %w", err)
		}
		camera := pipeline.Renderer.Camera()
		aspect := float64(req.Width) / float64(req.Height)
		if next := renderer.NewCamera(pipeline.Scene.CameraConfig(req.Width, aspect)); next.Width() != camera.Width() || next.Height() != camera.Height() {
			pipeline.Renderer.Resize(req.Width, req.Height)
		} else {
			pipeline.Renderer.Clear()
		}
		core.Logger().Debug("reusing volume", "scene", req.Scene, "width", req.Width, "height", req.Height)
		return pipeline, nil
	}

	sceneObj, err := scene.NewFromParams(vp, rp)
	if err != nil {
		return nil, fmt.Errorf("Scene setup failed: %w", err)
	}

	config := renderer.ProgressiveConfig{
		TileSize:   DefaultTileSize,
		NumWorkers: 0, // Auto-detect
		MaxFrames:  req.MaxFrames,
	}
	aspect := float64(req.Width) / float64(req.Height)
	progressive := renderer.NewProgressiveRenderer(sceneObj, sceneObj.CameraConfig(req.Width, aspect), config)
	return &RenderingPipeline{
		Key:      string(key),
		Scene:    sceneObj,
		Renderer: progressive,
	}, nil
}

// handleRenderingEvents processes the main rendering event loop
func (s *Server) handleRenderingEvents(ctx context.Context, sseEventChan chan<- SSEEvent,
	frameChan <-chan renderer.FrameResult, errChan <-chan error, req *RenderRequest, startTime time.Time) {

	for result := range frameChan {
		s.handleFrameComplete(ctx, sseEventChan, result, req, startTime)
	}
	if err := <-errChan; err != nil {
		if ctx.Err() == nil {
			s.handleError(ctx, sseEventChan, fmt.Sprintf("Rendering failed: %v", err))
		}
		return
	}

	// Send completion event
	select {
	case sseEventChan <- SSEEvent{Type: "complete", Data: "Rendering completed"}:
	case <-ctx.Done():
	}
}

// handleFrameComplete encodes and sends one frame
func (s *Server) handleFrameComplete(ctx context.Context, sseEventChan chan<- SSEEvent, result renderer.FrameResult, req *RenderRequest, startTime time.Time) {
	// Check if client is still connected
	if ctx.Err() != nil {
		return
	}

	imageData, err := s.imageToBase64PNG(result.Image)
	if err != nil {
		core.Logger().Error("failed to encode frame", "frame", result.Frame, "error", err)
		return
	}

	elapsed := time.Since(startTime)
	update := FrameUpdate{
		Frame:          result.Frame,
		TotalFrames:    req.MaxFrames,
		ImageData:      imageData,
		TotalPixels:    result.Stats.TotalPixels,
		TotalSamples:   result.Stats.TotalSamples,
		SkippedSamples: result.Stats.SkippedSamples,
		MeanLuminance:  result.Summary.MeanLuminance,
		Coverage:       result.Summary.Coverage,
		Summary:        renderer.FormatStats(language.English, result.Frame, result.Stats, result.Summary, elapsed),
		IsComplete:     result.IsLast,
		ElapsedMs:      elapsed.Milliseconds(),
	}

	data, err := json.Marshal(update)
	if err != nil {
		core.Logger().Error("failed to marshal frame update", "error", err)
		return
	}

	select {
	case sseEventChan <- SSEEvent{Type: "frame", Data: string(data)}:
	case <-ctx.Done():
	}
}

// parseRenderRequest parses request parameters
func (s *Server) parseRenderRequest(r *http.Request) (*RenderRequest, error) {
	req := &RenderRequest{}

	// Parse common scene parameters using shared function
	if err := s.parseCommonSceneParams(r, req); err != nil {
		return nil, err
	}

	var err error
	if req.MaxFrames, err = parseIntParam(r.URL.Query(), "maxFrames", 32, 1, 10000); err != nil {
		return nil, err
	}

	// Performance warning
	if req.Width*req.Height > 800*600 && req.MaxFrames > 256 {
		core.Logger().Warn("large image with many frames may render slowly",
			"width", req.Width, "height", req.Height, "frames", req.MaxFrames)
	}

	return req, nil
}

// imageToBase64PNG converts an image to base64-encoded PNG
func (s *Server) imageToBase64PNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// handleError sends an error event to the SSE channel
func (s *Server) handleError(ctx context.Context, sseEventChan chan<- SSEEvent, message string) {
	select {
	case sseEventChan <- SSEEvent{Type: "error", Data: message}:
	case <-ctx.Done():
		// Client disconnected, don't block
	}
}
