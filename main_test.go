package main

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/df07/go-progressive-volume/pkg/grid"
	"github.com/df07/go-progressive-volume/pkg/integrator"
	"github.com/df07/go-progressive-volume/pkg/renderer"
	"github.com/df07/go-progressive-volume/pkg/volume"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		expectError bool
	}{
		{"defaults", nil, false},
		{"all overrides", []string{"-scene", "macrocells", "-dims", "16", "-frames", "2", "-width", "32", "-aspect", "2"}, false},
		{"zero frames", []string{"-frames", "0"}, true},
		{"zero width", []string{"-width", "0"}, true},
		{"negative aspect", []string{"-aspect", "-1"}, true},
		{"unknown flag", []string{"-bogus"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFlags(tt.args, &bytes.Buffer{})
			if tt.expectError && err == nil {
				t.Errorf("Expected an error for %v", tt.args)
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error for %v: %v", tt.args, err)
			}
		})
	}
}

func TestCreateScene(t *testing.T) {
	scenesDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(scenesDir, "tiny.json"),
		[]byte(`{"volume": {"Dimensions": [6, 6, 6]}}`), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name        string
		mutate      func(cfg *Config)
		expectError bool
	}{
		{"wavelet preset", func(cfg *Config) {}, false},
		{"macrocells preset", func(cfg *Config) { cfg.Scene = "macrocells" }, false},
		{"scene file", func(cfg *Config) { cfg.Scene = "file:tiny"; cfg.Dims = 0 }, false},
		{"integrator override", func(cfg *Config) { cfg.Integrator = string(integrator.KindHitIterator) }, false},
		{"spherical path tracer", func(cfg *Config) { cfg.GridKind = "spherical" }, false},
		{"isovalues", func(cfg *Config) { cfg.Isovalues = "0.1, 0.5" }, false},
		{"missing slices", func(cfg *Config) { cfg.Slices = filepath.Join(scenesDir, "*.png") }, true},

		{"unknown scene", func(cfg *Config) { cfg.Scene = "nonexistent" }, true},
		{"missing scene file", func(cfg *Config) { cfg.Scene = "file:nonexistent" }, true},
		{"empty scene name", func(cfg *Config) { cfg.Scene = "" }, true},
		{"unknown integrator", func(cfg *Config) { cfg.Integrator = "photon_mapper" }, true},
		{"unknown field", func(cfg *Config) { cfg.Field = "mandelbulb" }, true},
		{"unknown grid", func(cfg *Config) { cfg.GridKind = "hexagonal" }, true},
		{"unknown filter", func(cfg *Config) { cfg.Filter = "cubic" }, true},
		{"bad isovalues", func(cfg *Config) { cfg.Isovalues = "0.1,abc" }, true},
		{"spherical hit iterator", func(cfg *Config) {
			cfg.GridKind = "spherical"
			cfg.Integrator = string(integrator.KindHitIterator)
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Scene: "wavelet", ScenesDir: scenesDir, Dims: 8}
			tt.mutate(&cfg)

			volumeScene, err := createScene(cfg)
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error for %+v, but got none", cfg)
				}
				if volumeScene != nil {
					t.Errorf("Expected nil scene on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if volumeScene.Volume() == nil {
				t.Error("Expected a committed volume")
			}
		})
	}
}

func TestSceneParams_Overrides(t *testing.T) {
	cfg := Config{
		Scene:     "wavelet",
		ScenesDir: t.TempDir(),
		GridKind:  "spherical",
		Filter:    "nearest",
		Dims:      12,
		Timesteps: 3,
		Time:      0.25,
		Transfer:  "grayscale",
		Isovalues: "-1,1",
		Slices:    "ct/*.tif",
	}
	vp, rp, err := sceneParams(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if vp.GridKind != grid.StructuredSpherical || vp.Filter != volume.FilterNearest {
		t.Errorf("Expected spherical nearest, got %v %v", vp.GridKind, vp.Filter)
	}
	if vp.Dimensions != [3]int{12, 12, 12} || vp.NumTimesteps != 3 {
		t.Errorf("Expected 12³ with 3 timesteps, got %v %d", vp.Dimensions, vp.NumTimesteps)
	}
	if vp.Slices != "ct/*.tif" {
		t.Errorf("Expected slices glob to pass through, got %q", vp.Slices)
	}
	if rp.Time != 0.25 || rp.TransferFunction != "grayscale" {
		t.Errorf("Renderer overrides not applied: %+v", rp)
	}
	if got := rp.Params.HitIterator.Isovalues; len(got) != 2 || got[0] != -1 || got[1] != 1 {
		t.Errorf("Expected isovalues [-1 1], got %v", got)
	}
}

func TestOutputPath(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	tests := []struct {
		cfg      Config
		expected string
	}{
		{Config{Scene: "wavelet", Format: "png"}, filepath.Join("output", "wavelet", "render_20260304_050607.png")},
		{Config{Scene: "file:mine", Format: ".tiff"}, filepath.Join("output", "file_mine", "render_20260304_050607.tiff")},
		{Config{Scene: "wavelet", Output: "custom.bmp"}, "custom.bmp"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := outputPath(tt.cfg, now); got != tt.expected {
				t.Errorf("outputPath = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestRun_WritesImage(t *testing.T) {
	output := filepath.Join(t.TempDir(), "out", "render.png")
	var stdout, stderr bytes.Buffer
	args := []string{"-scene", "wavelet", "-dims", "8", "-frames", "2", "-width", "16", "-workers", "2", "-o", output}

	if err := run(context.Background(), args, &stdout, &stderr); err != nil {
		t.Fatalf("run failed: %v\nstderr: %s", err, stderr.String())
	}
	if !strings.Contains(stdout.String(), "frame 2:") {
		t.Errorf("Expected the last frame summary, got %q", stdout.String())
	}

	file, err := os.Open(output)
	if err != nil {
		t.Fatalf("Expected output image: %v", err)
	}
	defer file.Close()
	img, err := png.Decode(file)
	if err != nil {
		t.Fatalf("Output is not a PNG: %v", err)
	}
	if img.Bounds().Dx() != 16 || img.Bounds().Dy() != 16 {
		t.Errorf("Expected 16x16 image, got %v", img.Bounds())
	}
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		target error
	}{
		{"no volume committed", []string{"-scene", "nonexistent"}, nil},
		{"unsupported format", []string{"-o", "render.jpg"}, renderer.ErrUnsupportedFormat},
		{"invalid language", []string{"-lang", "!!"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(context.Background(), tt.args, &stdout, &stderr)
			if err == nil {
				t.Fatal("Expected an error")
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("Expected %v, got %v", tt.target, err)
			}
		})
	}
}

func TestRun_ListScenes(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"-list", "-scenes", t.TempDir()}, &stdout, &stderr); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"wavelet", "macrocells", "spherical-shell"} {
		if !strings.Contains(stdout.String(), id) {
			t.Errorf("Expected %q in scene list:\n%s", id, stdout.String())
		}
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	output := filepath.Join(t.TempDir(), "render.png")
	args := []string{"-dims", "8", "-width", "8", "-o", output}
	err := run(ctx, args, &bytes.Buffer{}, &bytes.Buffer{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if _, statErr := os.Stat(output); !os.IsNotExist(statErr) {
		t.Error("Expected no image for a cancelled render")
	}
}
