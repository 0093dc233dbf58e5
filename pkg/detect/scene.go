// Package detect holds the two passive boundary detectors the assembler
// queries: color-histogram scene cuts over sampled frames, and lexical
// topic boundaries over transcript words.
package detect

import (
	"fmt"
	"image"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/clipworks/highlighter/pkg/media"
)

const (
	sceneScaleWidth  = 160
	sceneScaleHeight = 90
	histBins         = 32
)

// SceneOptions tunes the scene-cut detector.
type SceneOptions struct {
	Threshold   float64 // Bhattacharyya distance above which a cut fires
	MinSceneLen float64 // seconds that must elapse between cuts
}

// DefaultSceneOptions returns the stock detector tuning.
func DefaultSceneOptions() SceneOptions {
	return SceneOptions{Threshold: 0.5, MinSceneLen: 1.0}
}

// SceneBoundaries scans the sampled frames under frameDir in index order
// and returns sorted cut timestamps in seconds. A cut is emitted at the
// later frame of a pair whose H-S histogram distance exceeds the threshold,
// debounced by MinSceneLen worth of frames.
func SceneBoundaries(frameDir string, fps float64, opts SceneOptions) ([]float64, error) {
	if fps <= 0 {
		return nil, fmt.Errorf("fps must be positive, got %v", fps)
	}

	minGapFrames := int64(math.Round(opts.MinSceneLen * fps))
	if minGapFrames < 1 {
		minGapFrames = 1
	}

	var boundaries []float64
	var prevHist []float64
	lastCut := int64(-1 << 62)
	for idx := int64(0); ; idx++ {
		path := filepath.Join(frameDir, media.FrameFilename(idx))
		if _, err := os.Stat(path); err != nil {
			break
		}
		img, err := media.ReadJPEG(path)
		if err != nil {
			return nil, fmt.Errorf("scene detection failed on frame %d: %w", idx, err)
		}
		hist := hsHistogram(media.Resize(img, sceneScaleWidth, sceneScaleHeight))

		if prevHist != nil {
			d := bhattacharyya(prevHist, hist)
			if d > opts.Threshold && idx-lastCut >= minGapFrames {
				boundaries = append(boundaries, float64(idx)/fps)
				lastCut = idx
			}
		}
		prevHist = hist
	}

	slog.Info("Detected scene boundaries", "dir", frameDir, "count", len(boundaries))
	return boundaries, nil
}

// hsHistogram builds a normalized 32x32 hue/saturation histogram.
func hsHistogram(img *image.RGBA) []float64 {
	hist := make([]float64, histBins*histBins)
	b := img.Bounds()
	total := 0.0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride:]
		for x := 0; x < b.Dx(); x++ {
			h, s := rgbToHueSat(row[x*4], row[x*4+1], row[x*4+2])
			hb := int(h / 360.0 * histBins)
			if hb >= histBins {
				hb = histBins - 1
			}
			sb := int(s * histBins)
			if sb >= histBins {
				sb = histBins - 1
			}
			hist[hb*histBins+sb]++
			total++
		}
	}
	if total > 0 {
		for i := range hist {
			hist[i] /= total
		}
	}
	return hist
}

// rgbToHueSat converts one pixel to hue in [0, 360) and saturation in [0, 1].
func rgbToHueSat(r, g, b uint8) (float64, float64) {
	rf := float64(r) / 255
	gf := float64(g) / 255
	bf := float64(b) / 255

	maxC := math.Max(rf, math.Max(gf, bf))
	minC := math.Min(rf, math.Min(gf, bf))
	delta := maxC - minC

	var hue float64
	switch {
	case delta == 0:
		hue = 0
	case maxC == rf:
		hue = 60 * math.Mod((gf-bf)/delta, 6)
	case maxC == gf:
		hue = 60 * ((bf-rf)/delta + 2)
	default:
		hue = 60 * ((rf-gf)/delta + 4)
	}
	if hue < 0 {
		hue += 360
	}

	var sat float64
	if maxC > 0 {
		sat = delta / maxC
	}
	return hue, sat
}

// bhattacharyya returns the Bhattacharyya distance between two normalized
// histograms of equal length.
func bhattacharyya(p, q []float64) float64 {
	coeff := 0.0
	for i := range p {
		coeff += math.Sqrt(p[i] * q[i])
	}
	if coeff > 1 {
		coeff = 1
	}
	return math.Sqrt(1 - coeff)
}
