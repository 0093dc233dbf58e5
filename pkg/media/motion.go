package media

import (
	"image"
	"math"
)

const (
	// flowScaleWidth bounds the working resolution of the motion estimate.
	flowScaleWidth  = 160
	flowScaleHeight = 90

	flowBlockSize    = 8
	flowSearchRadius = 4
)

// MotionScore returns the mean optical-flow magnitude across consecutive
// frames, estimated by block matching on downscaled grayscale images.
// Fewer than two frames yields 0.
func MotionScore(frames []image.Image) float64 {
	if len(frames) < 2 {
		return 0
	}

	grays := make([]*image.Gray, len(frames))
	for i, f := range frames {
		grays[i] = Grayscale(Resize(f, flowScaleWidth, flowScaleHeight))
	}

	var total float64
	for i := 0; i < len(grays)-1; i++ {
		total += meanFlowMagnitude(grays[i], grays[i+1])
	}
	return total / float64(len(grays)-1)
}

// meanFlowMagnitude estimates per-block displacement from prev to next and
// averages the displacement magnitudes.
func meanFlowMagnitude(prev, next *image.Gray) float64 {
	w := prev.Bounds().Dx()
	h := prev.Bounds().Dy()

	var sum float64
	blocks := 0
	for by := 0; by+flowBlockSize <= h; by += flowBlockSize {
		for bx := 0; bx+flowBlockSize <= w; bx += flowBlockSize {
			dx, dy := matchBlock(prev, next, bx, by)
			sum += math.Hypot(float64(dx), float64(dy))
			blocks++
		}
	}
	if blocks == 0 {
		return 0
	}
	return sum / float64(blocks)
}

// matchBlock finds the displacement within the search radius that minimizes
// the sum of absolute differences for one block. Ties prefer the smaller
// displacement because candidates are scanned outward from zero.
func matchBlock(prev, next *image.Gray, bx, by int) (int, int) {
	w := next.Bounds().Dx()
	h := next.Bounds().Dy()

	bestSAD := blockSAD(prev, next, bx, by, 0, 0)
	bestDX, bestDY := 0, 0
	for r := 1; r <= flowSearchRadius; r++ {
		for dy := -r; dy <= r; dy++ {
			for dx := -r; dx <= r; dx++ {
				if max(abs(dx), abs(dy)) != r {
					continue
				}
				if bx+dx < 0 || by+dy < 0 || bx+dx+flowBlockSize > w || by+dy+flowBlockSize > h {
					continue
				}
				sad := blockSAD(prev, next, bx, by, dx, dy)
				if sad < bestSAD {
					bestSAD = sad
					bestDX, bestDY = dx, dy
				}
			}
		}
	}
	return bestDX, bestDY
}

func blockSAD(prev, next *image.Gray, bx, by, dx, dy int) int {
	sad := 0
	for y := 0; y < flowBlockSize; y++ {
		prow := prev.Pix[(by+y)*prev.Stride+bx:]
		nrow := next.Pix[(by+dy+y)*next.Stride+bx+dx:]
		for x := 0; x < flowBlockSize; x++ {
			d := int(prow[x]) - int(nrow[x])
			if d < 0 {
				d = -d
			}
			sad += d
		}
	}
	return sad
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
