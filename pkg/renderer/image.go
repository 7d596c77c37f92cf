package renderer

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

var ErrUnsupportedFormat = errors.New("unsupported image format")

// ImageFormats lists the extensions SaveImage understands
func ImageFormats() []string {
	return []string{".png", ".tif", ".tiff", ".bmp"}
}

// EncodeImage writes img in the format named by ext
func EncodeImage(w io.Writer, img image.Image, ext string) error {
	switch strings.ToLower(ext) {
	case ".png":
		return png.Encode(w, img)
	case ".tif", ".tiff":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	case ".bmp":
		return bmp.Encode(w, img)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

// SaveImage writes img to path, choosing the encoder from the file extension
func SaveImage(path string, img image.Image) error {
	ext := filepath.Ext(path)
	// fail before creating the file
	if !isSupportedFormat(ext) {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := EncodeImage(file, img, ext); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return file.Close()
}

func isSupportedFormat(ext string) bool {
	for _, f := range ImageFormats() {
		if strings.EqualFold(ext, f) {
			return true
		}
	}
	return false
}
