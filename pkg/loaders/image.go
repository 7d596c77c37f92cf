package loaders

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder
	"os"

	_ "golang.org/x/image/bmp"  // BMP decoder
	_ "golang.org/x/image/tiff" // TIFF decoder
)

// Slice is one grayscale image of a volume stack. Values are in [0, 1],
// row-major with row 0 at the top of the image.
type Slice struct {
	Width  int
	Height int
	Values []float32
}

// At returns the value at column x of row y
func (s *Slice) At(x, y int) float32 {
	return s.Values[y*s.Width+x]
}

// LoadSlice loads a PNG, JPEG, TIFF or BMP image and converts it to luminance
func LoadSlice(filename string) (*Slice, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	defer file.Close()

	// Decode image (auto-detects the format from the file header)
	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", filename, err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	values := make([]float32, width*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			// Gray16 keeps 16-bit TIFF precision
			gray := color.Gray16Model.Convert(img.At(x+bounds.Min.X, y+bounds.Min.Y)).(color.Gray16)
			values[y*width+x] = float32(gray.Y) / 65535.0
		}
	}

	return &Slice{
		Width:  width,
		Height: height,
		Values: values,
	}, nil
}
