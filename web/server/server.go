package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/df07/go-progressive-volume/pkg/core"
	"github.com/df07/go-progressive-volume/pkg/integrator"
	"github.com/df07/go-progressive-volume/pkg/scene"
)

// DefaultTileSize is the tile edge used for web renders
const DefaultTileSize = 32

// Server handles web requests for the progressive volume renderer
type Server struct {
	port      int
	scenesDir string
	console   *ConsoleHandler
	pipelines pipelineCache
}

// NewServer creates a new web server. Log records go to stderr at level and
// to the browser consoles of active renders.
func NewServer(port int, scenesDir string, level slog.Level) *Server {
	base := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return &Server{
		port:      port,
		scenesDir: scenesDir,
		console:   NewConsoleHandler(base, slog.LevelInfo),
	}
}

// RenderRequest represents a render request from the client
type RenderRequest struct {
	Scene      string    `json:"scene"`      // Scene ID from /api/scenes
	Width      int       `json:"width"`      // Image width
	Height     int       `json:"height"`     // Image height
	MaxFrames  int       `json:"maxFrames"`  // Number of progressive frames
	Integrator string    `json:"integrator"` // Overrides the scene's integrator when set
	Field      string    `json:"field"`      // Overrides the scene's procedural field when set
	Dims       int       `json:"dims"`       // Overrides the voxel count per axis when > 0
	Time       float64   `json:"time"`       // Normalized render time
	Isovalues  []float64 `json:"isovalues"`  // Overrides the hit iterator isovalues when set
}

// Handler returns the routes served by the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Serve static files
	mux.Handle("/", http.FileServer(http.Dir("static/")))

	// API endpoints
	mux.HandleFunc("/api/render", s.handleRender)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/scenes", s.handleScenes)
	mux.HandleFunc("/api/scene-config", s.handleSceneConfig)
	mux.HandleFunc("/api/inspect", s.handleInspect)
	return mux
}

// Start installs the console logger and starts the web server
func (s *Server) Start() error {
	core.SetLogger(slog.New(s.console))

	addr := fmt.Sprintf(":%d", s.port)
	core.Logger().Info("starting web server", "url", "http://localhost"+addr)
	return http.ListenAndServe(addr, s.Handler())
}

// handleHealth provides a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleScenes lists presets and scene files
func (s *Server) handleScenes(w http.ResponseWriter, r *http.Request) {
	response, err := scene.ListAllScenes(s.scenesDir)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, response)
}

// parseCommonSceneParams parses the parameters shared by render and inspect
func (s *Server) parseCommonSceneParams(r *http.Request, req *RenderRequest) error {
	query := r.URL.Query()

	req.Scene = query.Get("scene")
	if req.Scene == "" {
		req.Scene = "wavelet" // Default scene
	}
	req.Integrator = query.Get("integrator")
	req.Field = query.Get("field")

	var err error
	if req.Width, err = parseIntParam(query, "width", 400, 16, 2000); err != nil {
		return err
	}
	if req.Height, err = parseIntParam(query, "height", 400, 16, 2000); err != nil {
		return err
	}
	if req.Dims, err = parseIntParam(query, "dims", 0, 2, 512); err != nil {
		return err
	}
	if req.Time, err = parseFloatParam(query, "time", 0, 0, 1); err != nil {
		return err
	}
	if value := query.Get("isovalues"); value != "" {
		for field := range strings.SplitSeq(value, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("invalid isovalues: %s", value)
			}
			req.Isovalues = append(req.Isovalues, v)
		}
	}
	return nil
}

// parseIntParam parses an integer parameter from URL query with validation
func parseIntParam(values url.Values, key string, defaultValue, min, max int) (int, error) {
	if value := values.Get(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %s", key, value)
		}
		if parsed < min || parsed > max {
			return 0, fmt.Errorf("%s must be between %d and %d, got: %d", key, min, max, parsed)
		}
		return parsed, nil
	}
	return defaultValue, nil
}

// parseFloatParam parses a float parameter from URL query with validation
func parseFloatParam(values url.Values, key string, defaultValue, min, max float64) (float64, error) {
	if value := values.Get(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %s", key, value)
		}
		if parsed < min || parsed > max {
			return 0, fmt.Errorf("%s must be between %g and %g, got: %g", key, min, max, parsed)
		}
		return parsed, nil
	}
	return defaultValue, nil
}

// sceneParams resolves the request's scene and applies its overrides
func (s *Server) sceneParams(req *RenderRequest) (scene.VolumeParams, scene.RendererParams, error) {
	vp, rp, err := scene.Resolve(s.scenesDir, req.Scene)
	if err != nil {
		return vp, rp, err
	}
	if req.Integrator != "" {
		rp.Integrator = integrator.Kind(req.Integrator)
	}
	if req.Field != "" {
		vp.Field = req.Field
	}
	if req.Dims > 0 {
		vp.Dimensions = [3]int{req.Dims, req.Dims, req.Dims}
	}
	if len(req.Isovalues) > 0 {
		rp.Params.HitIterator.Isovalues = req.Isovalues
	}
	rp.Time = req.Time
	return vp, rp, nil
}

// createScene builds and commits the scene for a request
func (s *Server) createScene(req *RenderRequest) (*scene.Scene, error) {
	vp, rp, err := s.sceneParams(req)
	if err != nil {
		return nil, err
	}
	return scene.NewFromParams(vp, rp)
}

// handleSceneConfig returns the parameters of a scene together with the
// request limits
func (s *Server) handleSceneConfig(w http.ResponseWriter, r *http.Request) {
	sceneName := r.URL.Query().Get("scene")
	if sceneName == "" {
		sceneName = "wavelet" // Default scene
	}

	vp, rp, err := scene.Resolve(s.scenesDir, sceneName)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	response := map[string]any{
		"scene":       sceneName,
		"volume":      vp,
		"renderer":    rp,
		"fields":      scene.FieldNames(),
		"integrators": integrator.Kinds(),
		"limits": map[string]any{
			"width":     map[string]int{"min": 16, "max": 2000},
			"height":    map[string]int{"min": 16, "max": 2000},
			"maxFrames": map[string]int{"min": 1, "max": 10000},
			"dims":      map[string]int{"min": 2, "max": 512},
			"time":      map[string]float64{"min": 0, "max": 1},
		},
	}
	writeJSON(w, http.StatusOK, response)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
