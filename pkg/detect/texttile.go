package detect

import (
	"math"
	"strings"

	"github.com/clipworks/highlighter/pkg/store"
)

// TilingOptions tunes the lexical topic segmentation.
type TilingOptions struct {
	BlockSize      int     // tokens per comparison window
	Step           int     // token stride between comparisons
	SmoothingWidth int     // moving-average radius over the similarity curve
	CutoffStd      float64 // valley threshold below mean in std units
}

// DefaultTilingOptions returns the stock tiling tuning.
func DefaultTilingOptions() TilingOptions {
	return TilingOptions{BlockSize: 20, Step: 10, SmoothingWidth: 2, CutoffStd: 0.5}
}

// TopicBoundaries segments a flattened transcript word stream into topic
// boundaries by locating cohesion valleys between adjacent bag-of-words
// blocks. Returns a sorted list of seconds, or nil when fewer than two
// full blocks of spoken tokens exist.
func TopicBoundaries(words []store.WordItem, opts TilingOptions) []float64 {
	toks, times := spokenTokens(words)

	n := len(toks)
	if n < 2*opts.BlockSize {
		return nil
	}

	var sims []float64
	var centers []int
	for i := opts.BlockSize; i+opts.BlockSize <= n; i += opts.Step {
		left := bagOfWords(toks[i-opts.BlockSize : i])
		right := bagOfWords(toks[i : i+opts.BlockSize])
		sims = append(sims, cosineSim(left, right))
		centers = append(centers, i)
	}

	if opts.SmoothingWidth > 1 && len(sims) >= 2 {
		sims = smooth(sims, opts.SmoothingWidth)
	}

	mean, std := meanStd(sims)
	cutoff := mean - opts.CutoffStd*std

	var boundaries []float64
	for j := 1; j < len(sims)-1; j++ {
		if sims[j] <= sims[j-1] && sims[j] <= sims[j+1] && sims[j] < cutoff {
			idx := centers[j]
			if idx >= 0 && idx < len(times) {
				boundaries = append(boundaries, round3(times[idx]))
			}
		}
	}

	// dedupe boundaries closer than 0.5s
	var deduped []float64
	for _, b := range boundaries {
		if len(deduped) == 0 || math.Abs(b-deduped[len(deduped)-1]) > 0.5 {
			deduped = append(deduped, b)
		}
	}
	return deduped
}

// spokenTokens keeps pronunciation items, lowercases them, and strips
// everything but letters, digits, and apostrophes.
func spokenTokens(words []store.WordItem) ([]string, []float64) {
	var toks []string
	var times []float64
	for _, w := range words {
		if w.Type != "" && w.Type != "pronunciation" {
			continue
		}
		norm := normalizeToken(w.Content)
		if norm == "" {
			continue
		}
		toks = append(toks, norm)
		times = append(times, w.StartTime)
	}
	return toks, times
}

func normalizeToken(tok string) string {
	tok = strings.ToLower(strings.TrimSpace(tok))
	var b strings.Builder
	for _, r := range tok {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '\'' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func bagOfWords(toks []string) map[string]int {
	bag := make(map[string]int, len(toks))
	for _, t := range toks {
		bag[t]++
	}
	return bag
}

func cosineSim(a, b map[string]int) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	dot := 0.0
	for k, va := range a {
		if vb, ok := b[k]; ok {
			dot += float64(va * vb)
		}
	}
	na := 0.0
	for _, v := range a {
		na += float64(v * v)
	}
	nb := 0.0
	for _, v := range b {
		nb += float64(v * v)
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func smooth(sims []float64, width int) []float64 {
	out := make([]float64, len(sims))
	for j := range sims {
		lo := j - width
		if lo < 0 {
			lo = 0
		}
		hi := j + width + 1
		if hi > len(sims) {
			hi = len(sims)
		}
		sum := 0.0
		for _, v := range sims[lo:hi] {
			sum += v
		}
		out[j] = sum / float64(hi-lo)
	}
	return out
}

// meanStd computes the mean and sample standard deviation.
func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	variance := 0.0
	for _, x := range xs {
		variance += (x - mean) * (x - mean)
	}
	denom := len(xs) - 1
	if denom < 1 {
		denom = 1
	}
	return mean, math.Sqrt(variance / float64(denom))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
