package pipeline

import (
	"encoding/binary"
	"image"
	"math"

	"github.com/clipworks/highlighter/pkg/media"
)

// Saliency combines soft-normalized motion magnitude and audio loudness
// into one score in [0, 1].
func Saliency(frames []image.Image, pcm []byte, alphaMotion, alphaAudio float64) float64 {
	motion := media.MotionScore(frames)
	rms := audioRMS(pcm)
	return alphaMotion*math.Tanh(motion) + alphaAudio*math.Tanh(rms)
}

// audioRMS computes the RMS of s16le PCM normalized to [-1, 1].
func audioRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		v := float64(s) / math.MaxInt16
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
