package renderer

import (
	"image"
	"image/color"
	"sync"

	"github.com/df07/go-progressive-volume/pkg/core"
)

// Buffer is a width × height array of RGBA accumulators, each with the total
// sample weight it has received. It carries its own mutex.
type Buffer struct {
	mu     sync.Mutex
	width  int
	height int
	rgba   []core.Vec4
	weight []float64
}

func newBuffer(width, height int) *Buffer {
	b := &Buffer{}
	b.resize(width, height)
	return b
}

func (b *Buffer) resize(width, height int) {
	b.width = max(0, width)
	b.height = max(0, height)
	b.rgba = make([]core.Vec4, b.width*b.height)
	b.weight = make([]float64, b.width*b.height)
}

func (b *Buffer) clear() {
	clear(b.rgba)
	clear(b.weight)
}

// add accumulates one weighted sample. The caller holds the lock.
func (b *Buffer) add(x, y int, c core.Vec4, weight float64) {
	i := y*b.width + x
	b.rgba[i] = b.rgba[i].Add(c.Multiply(weight))
	b.weight[i] += weight
}

// resolved returns the weighted mean of pixel i. The caller holds the lock.
func (b *Buffer) resolved(i int) core.Vec4 {
	if b.weight[i] <= 0 {
		return core.Vec4{}
	}
	return b.rgba[i].Multiply(1 / b.weight[i])
}

// Width returns the buffer width in pixels
func (b *Buffer) Width() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.width
}

// Height returns the buffer height in pixels
func (b *Buffer) Height() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.height
}

// Pixel returns the mean RGBA of pixel (x, y), or zero outside the buffer
func (b *Buffer) Pixel(x, y int) core.Vec4 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if x < 0 || y < 0 || x >= b.width || y >= b.height {
		return core.Vec4{}
	}
	return b.resolved(y*b.width + x)
}

// Weight returns the accumulated sample weight of pixel (x, y)
func (b *Buffer) Weight(x, y int) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if x < 0 || y < 0 || x >= b.width || y >= b.height {
		return 0
	}
	return b.weight[y*b.width+x]
}

// Tonemap composites the buffer over a background color, applies gamma 2
// and writes 8-bit pixels into dst. dst is reallocated when its size does
// not match.
func (b *Buffer) Tonemap(dst *image.RGBA, background core.Vec3) *image.RGBA {
	b.mu.Lock()
	defer b.mu.Unlock()

	if dst == nil || dst.Bounds().Dx() != b.width || dst.Bounds().Dy() != b.height {
		dst = image.NewRGBA(image.Rect(0, 0, b.width, b.height))
	}
	for y := 0; y < b.height; y++ {
		for x := 0; x < b.width; x++ {
			c := b.resolved(y*b.width + x)
			alpha := max(0, min(1, c.W))
			rgb := c.RGB().Add(background.Multiply(1 - alpha))
			dst.SetRGBA(x, y, vec3ToColor(rgb))
		}
	}
	return dst
}

// vec3ToColor converts a linear color to 8-bit RGBA with gamma correction
func vec3ToColor(colorVec core.Vec3) color.RGBA {
	colorVec = colorVec.Clamp(0.0, 1.0).GammaCorrect(2.0).Clamp(0.0, 1.0)

	return color.RGBA{
		R: uint8(255 * colorVec.X),
		G: uint8(255 * colorVec.Y),
		B: uint8(255 * colorVec.Z),
		A: 255,
	}
}

// Framebuffer double-buffers progressive output. Frames accumulate into the
// back buffer while readers see the last presented state in the front buffer.
// Locks are always taken back first, then front.
type Framebuffer struct {
	back  *Buffer
	front *Buffer
}

// NewFramebuffer allocates both buffers
func NewFramebuffer(width, height int) *Framebuffer {
	return &Framebuffer{
		back:  newBuffer(width, height),
		front: newBuffer(width, height),
	}
}

// BackBuffer returns the accumulation buffer
func (fb *Framebuffer) BackBuffer() *Buffer {
	return fb.back
}

// FrontBuffer returns the last presented state
func (fb *Framebuffer) FrontBuffer() *Buffer {
	return fb.front
}

// Resize reallocates and clears both buffers
func (fb *Framebuffer) Resize(width, height int) {
	fb.back.mu.Lock()
	defer fb.back.mu.Unlock()
	fb.front.mu.Lock()
	defer fb.front.mu.Unlock()

	fb.back.resize(width, height)
	fb.front.resize(width, height)
}

// Clear drops the accumulated samples. The front buffer keeps showing the
// last presented frame until the next Present.
func (fb *Framebuffer) Clear() {
	fb.back.mu.Lock()
	defer fb.back.mu.Unlock()
	fb.back.clear()
}

// Present copies the normalized back buffer into the front buffer
func (fb *Framebuffer) Present() {
	fb.back.mu.Lock()
	defer fb.back.mu.Unlock()
	fb.presentLocked()
}

// presentLocked is Present for callers already holding the back lock
func (fb *Framebuffer) presentLocked() {
	fb.front.mu.Lock()
	defer fb.front.mu.Unlock()

	for i := range fb.back.rgba {
		if fb.back.weight[i] > 0 {
			fb.front.rgba[i] = fb.back.resolved(i)
			fb.front.weight[i] = 1
		} else {
			fb.front.rgba[i] = core.Vec4{}
			fb.front.weight[i] = 0
		}
	}
}
