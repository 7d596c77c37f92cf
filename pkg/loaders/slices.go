package loaders

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/df07/go-progressive-volume/pkg/core"
	"github.com/df07/go-progressive-volume/pkg/grid"
)

var (
	// ErrNoSlices is returned when a slice pattern matches no files
	ErrNoSlices = errors.New("no image slices")
	// ErrSliceSize is returned when the slices of a stack differ in size
	ErrSliceSize = errors.New("image slices differ in size")
)

// SliceStack is a volume assembled from z-ordered image slices
type SliceStack struct {
	Width  int // voxels along x
	Height int // voxels along y
	Depth  int // voxels along z, one per slice
	Files  []string
	Values []float32 // x + Width*(y + Height*z), y up
}

// Dimensions returns the voxel counts of the stack
func (s *SliceStack) Dimensions() [3]int {
	return [3]int{s.Width, s.Height, s.Depth}
}

// LoadSliceStack loads every image matching pattern as one z slice, ordered by
// file name. Image rows are flipped so that the top of an image is +y.
func LoadSliceStack(pattern string) (*SliceStack, error) {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad slice pattern %q: %w", pattern, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %q matches nothing", ErrNoSlices, pattern)
	}
	slices.Sort(files)

	stack := &SliceStack{Depth: len(files), Files: files}
	for z, file := range files {
		slice, err := LoadSlice(file)
		if err != nil {
			return nil, err
		}
		if z == 0 {
			stack.Width, stack.Height = slice.Width, slice.Height
			stack.Values = make([]float32, 0, slice.Width*slice.Height*len(files))
		} else if slice.Width != stack.Width || slice.Height != stack.Height {
			return nil, fmt.Errorf("%w: %s is %dx%d, expected %dx%d",
				ErrSliceSize, file, slice.Width, slice.Height, stack.Width, stack.Height)
		}
		for y := stack.Height - 1; y >= 0; y-- {
			stack.Values = append(stack.Values, slice.Values[y*slice.Width:(y+1)*slice.Width]...)
		}
	}

	core.Logger().Debug("loaded slice stack", "pattern", pattern,
		"width", stack.Width, "height", stack.Height, "depth", stack.Depth)
	return stack, nil
}

// Grid builds a single-attribute, single-timestep grid from the stack. The
// configuration's dimensions are replaced by the stack's.
func (s *SliceStack) Grid(cfg grid.Config) (*grid.Grid, error) {
	if cfg.Kind != grid.StructuredRegular {
		return nil, fmt.Errorf("image slices need a %s grid, got %s", grid.StructuredRegular, cfg.Kind)
	}
	cfg.Dimensions = s.Dimensions()
	return grid.New(cfg, [][][]float32{{s.Values}})
}
