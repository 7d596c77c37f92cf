package renderer

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gonum.org/v1/gonum/stat"
)

// RenderStats contains statistics about one rendered frame or tile
type RenderStats struct {
	TotalPixels    int // Pixels covered
	TotalSamples   int // Samples accumulated into the back buffer
	SkippedSamples int // Samples dropped because the integrator returned NaN
}

// Add merges tile statistics
func (s RenderStats) Add(other RenderStats) RenderStats {
	return RenderStats{
		TotalPixels:    s.TotalPixels + other.TotalPixels,
		TotalSamples:   s.TotalSamples + other.TotalSamples,
		SkippedSamples: s.SkippedSamples + other.SkippedSamples,
	}
}

// FrameStats summarizes the presented image
type FrameStats struct {
	MeanLuminance   float64
	StdDevLuminance float64
	Coverage        float64 // Fraction of pixels with non-zero alpha
}

// Stats computes luminance statistics over the buffer
func (b *Buffer) Stats() FrameStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.rgba)
	if n == 0 {
		return FrameStats{}
	}
	luminance := make([]float64, n)
	covered := 0
	for i := range b.rgba {
		c := b.resolved(i)
		luminance[i] = c.RGB().Luminance()
		if c.W > 0 {
			covered++
		}
	}
	mean, std := stat.MeanStdDev(luminance, nil)
	if n == 1 {
		std = 0
	}
	return FrameStats{
		MeanLuminance:   mean,
		StdDevLuminance: std,
		Coverage:        float64(covered) / float64(n),
	}
}

// FormatStats renders a one-line frame summary with locale-aware digit grouping
func FormatStats(tag language.Tag, frame int, stats RenderStats, frameStats FrameStats, elapsed time.Duration) string {
	p := message.NewPrinter(tag)
	return p.Sprintf("frame %d: %d samples over %d pixels (%d skipped), mean luminance %.4f ± %.4f, coverage %.1f%%, %v",
		frame, stats.TotalSamples, stats.TotalPixels, stats.SkippedSamples,
		frameStats.MeanLuminance, frameStats.StdDevLuminance, 100*frameStats.Coverage,
		elapsed.Round(time.Millisecond))
}
