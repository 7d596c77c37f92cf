package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/df07/go-progressive-volume/pkg/core"
	"github.com/df07/go-progressive-volume/pkg/grid"
	"github.com/df07/go-progressive-volume/pkg/integrator"
	"github.com/df07/go-progressive-volume/pkg/renderer"
	"github.com/df07/go-progressive-volume/pkg/scene"
	"github.com/df07/go-progressive-volume/pkg/volume"
)

// Config holds the command line options. Zero values keep the scene's own
// settings.
type Config struct {
	Scene      string
	ScenesDir  string
	Integrator string
	Field      string
	Slices     string
	GridKind   string
	Filter     string
	Dims       int
	Timesteps  int
	Time       float64
	Transfer   string
	Isovalues  string

	Frames  int
	Width   int
	Aspect  float64
	Tile    int
	Workers int
	Output  string
	Format  string
	Lang    string
	Verbose bool
	List    bool
}

func parseFlags(args []string, output io.Writer) (Config, error) {
	var cfg Config
	fs := flag.NewFlagSet("volume", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&cfg.Scene, "scene", "wavelet", "Scene preset ID or file:<name> from the scenes directory")
	fs.StringVar(&cfg.ScenesDir, "scenes", "scenes", "Directory holding JSON scene files")
	fs.StringVar(&cfg.Integrator, "integrator", "", "Override the integrator: "+joinKinds())
	fs.StringVar(&cfg.Field, "field", "", "Override the procedural field: "+strings.Join(scene.FieldNames(), ", "))
	fs.StringVar(&cfg.Slices, "slices", "", "Glob of PNG, JPEG, TIFF or BMP z-slices to load instead of a procedural field")
	fs.StringVar(&cfg.GridKind, "grid", "", "Override the grid kind: regular or spherical")
	fs.StringVar(&cfg.Filter, "filter", "", "Override the sampling filter: trilinear or nearest")
	fs.IntVar(&cfg.Dims, "dims", 0, "Override the voxel count along every axis")
	fs.IntVar(&cfg.Timesteps, "timesteps", 0, "Override the number of timesteps")
	fs.Float64Var(&cfg.Time, "time", 0, "Normalized time in [0,1] to render")
	fs.StringVar(&cfg.Transfer, "tf", "", "Override the transfer function: jet, grayscale or uniform")
	fs.StringVar(&cfg.Isovalues, "isovalues", "", "Comma-separated isovalues for the hit iterator")

	fs.IntVar(&cfg.Frames, "frames", 16, "Number of progressive frames (one sample per pixel each)")
	fs.IntVar(&cfg.Width, "width", 400, "Image width in pixels")
	fs.Float64Var(&cfg.Aspect, "aspect", 1, "Image aspect ratio (width / height)")
	fs.IntVar(&cfg.Tile, "tile", renderer.DefaultProgressiveConfig().TileSize, "Tile size in pixels")
	fs.IntVar(&cfg.Workers, "workers", 0, "Number of render workers (0 = CPU count)")
	fs.StringVar(&cfg.Output, "o", "", "Output file (default output/<scene>/render_<timestamp>.<format>)")
	fs.StringVar(&cfg.Format, "format", "png", "Output format when -o is not set: png, tiff or bmp")
	fs.StringVar(&cfg.Lang, "lang", "en", "Language tag used to format statistics")
	fs.BoolVar(&cfg.Verbose, "v", false, "Enable debug logging")
	fs.BoolVar(&cfg.List, "list", false, "List available scenes and exit")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if cfg.Frames < 1 {
		return cfg, fmt.Errorf("frames must be at least 1, got %d", cfg.Frames)
	}
	if cfg.Width < 1 || cfg.Aspect <= 0 {
		return cfg, fmt.Errorf("invalid image size: width %d aspect %g", cfg.Width, cfg.Aspect)
	}
	return cfg, nil
}

func joinKinds() string {
	names := make([]string, 0, len(integrator.Kinds()))
	for _, kind := range integrator.Kinds() {
		names = append(names, string(kind))
	}
	return strings.Join(names, ", ")
}

// sceneParams resolves the scene and applies command line overrides
func sceneParams(cfg Config) (scene.VolumeParams, scene.RendererParams, error) {
	vp, rp, err := scene.Resolve(cfg.ScenesDir, cfg.Scene)
	if err != nil {
		return vp, rp, err
	}

	if cfg.Integrator != "" {
		rp.Integrator = integrator.Kind(cfg.Integrator)
	}
	if cfg.Field != "" {
		vp.Field = cfg.Field
	}
	if cfg.Slices != "" {
		vp.Slices = cfg.Slices
	}
	if cfg.GridKind != "" {
		if vp.GridKind, err = grid.ParseKind(cfg.GridKind); err != nil {
			return vp, rp, err
		}
		// presets size their spacing for their own grid kind
		vp.Origin, vp.Spacing = scene.DefaultVolumeParams().Origin, core.Vec3{}
	}
	if cfg.Filter != "" {
		if vp.Filter, err = volume.ParseFilter(cfg.Filter); err != nil {
			return vp, rp, err
		}
	}
	if cfg.Dims > 0 {
		vp.Dimensions = [3]int{cfg.Dims, cfg.Dims, cfg.Dims}
	}
	if cfg.Timesteps > 0 {
		vp.NumTimesteps = cfg.Timesteps
	}
	if cfg.Transfer != "" {
		rp.TransferFunction = cfg.Transfer
	}
	if cfg.Isovalues != "" {
		if rp.Params.HitIterator.Isovalues, err = parseFloatList(cfg.Isovalues); err != nil {
			return vp, rp, err
		}
	}
	rp.Time = cfg.Time
	return vp, rp, nil
}

func parseFloatList(s string) ([]float64, error) {
	var values []float64
	for field := range strings.SplitSeq(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid isovalue %q", field)
		}
		values = append(values, v)
	}
	return values, nil
}

// createScene builds and commits the requested scene
func createScene(cfg Config) (*scene.Scene, error) {
	vp, rp, err := sceneParams(cfg)
	if err != nil {
		return nil, err
	}
	return scene.NewFromParams(vp, rp)
}

func outputPath(cfg Config, now time.Time) string {
	if cfg.Output != "" {
		return cfg.Output
	}
	dir := strings.NewReplacer(":", "_", "/", "_", "\\", "_").Replace(cfg.Scene)
	ext := "." + strings.TrimPrefix(cfg.Format, ".")
	filename := fmt.Sprintf("render_%s%s", now.Format("20060102_150405"), ext)
	return filepath.Join("output", dir, filename)
}

func listScenes(w io.Writer, dir string) error {
	response, err := scene.ListAllScenes(dir)
	if err != nil {
		return err
	}
	for _, group := range response.Groups {
		fmt.Fprintf(w, "%s:\n", group.Name)
		for _, info := range group.Scenes {
			fmt.Fprintf(w, "  %-24s %s\n", info.ID, info.Description)
		}
	}
	return nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	core.SetLogger(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))
	defer core.SetLogger(nil)

	if cfg.List {
		return listScenes(stdout, cfg.ScenesDir)
	}

	tag, err := language.Parse(cfg.Lang)
	if err != nil {
		return fmt.Errorf("invalid language %q: %w", cfg.Lang, err)
	}

	filename := outputPath(cfg, time.Now())
	if !slices.Contains(renderer.ImageFormats(), strings.ToLower(filepath.Ext(filename))) {
		return fmt.Errorf("%w: %s", renderer.ErrUnsupportedFormat, filename)
	}

	volumeScene, err := createScene(cfg)
	if err != nil {
		return fmt.Errorf("no volume committed: %w", err)
	}

	config := renderer.DefaultProgressiveConfig()
	config.TileSize = cfg.Tile
	config.NumWorkers = cfg.Workers
	config.MaxFrames = cfg.Frames
	progressive := renderer.NewProgressiveRenderer(volumeScene, volumeScene.CameraConfig(cfg.Width, cfg.Aspect), config)

	fmt.Fprintf(stdout, "Rendering %s (%s) at %dx%d...\n", cfg.Scene, volumeScene.RendererParams().Integrator,
		progressive.Camera().Width(), progressive.Camera().Height())

	startTime := time.Now()
	frameChan, errChan := progressive.RenderProgressive(ctx, cfg.Frames)
	var last renderer.FrameResult
	for result := range frameChan {
		last = result
		if cfg.Verbose || result.IsLast {
			fmt.Fprintln(stdout, renderer.FormatStats(tag, result.Frame, result.Stats, result.Summary, time.Since(startTime)))
		}
	}
	if err := <-errChan; err != nil {
		return fmt.Errorf("rendering failed: %w", err)
	}
	if last.Image == nil {
		return errors.New("no frames rendered")
	}

	if err := renderer.SaveImage(filename, last.Image); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Render saved as %s\n", filename)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
