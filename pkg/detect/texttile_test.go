package detect

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipworks/highlighter/pkg/store"
)

// wordStream builds a transcript where each vocabulary repeats for a span
// of tokens, one token every 0.3 seconds.
func wordStream(vocabs [][]string, perVocab int) []store.WordItem {
	var words []store.WordItem
	t := 0.0
	for _, vocab := range vocabs {
		for i := 0; i < perVocab; i++ {
			words = append(words, store.WordItem{
				Content:   vocab[i%len(vocab)],
				StartTime: t,
				EndTime:   t + 0.2,
				Type:      "pronunciation",
			})
			t += 0.3
		}
	}
	return words
}

func TestTopicBoundariesTooFewTokens(t *testing.T) {
	opts := DefaultTilingOptions()
	words := wordStream([][]string{{"ball", "goal", "shot"}}, 2*opts.BlockSize-1)
	assert.Nil(t, TopicBoundaries(words, opts))
}

func TestTopicBoundariesFindsTopicShift(t *testing.T) {
	opts := DefaultTilingOptions()
	words := wordStream([][]string{
		{"ball", "goal", "shot", "keeper", "corner"},
		{"weather", "rain", "cloud", "storm", "wind"},
		{"market", "stock", "price", "trade", "index"},
	}, 60)

	boundaries := TopicBoundaries(words, opts)
	require.NotEmpty(t, boundaries)

	// strictly increasing and non-negative
	for i, b := range boundaries {
		assert.GreaterOrEqual(t, b, 0.0)
		if i > 0 {
			assert.Greater(t, b, boundaries[i-1])
		}
	}

	// at least one valley near each vocabulary change (18s and 36s)
	nearChange := 0
	for _, b := range boundaries {
		if (b > 14 && b < 22) || (b > 32 && b < 40) {
			nearChange++
		}
	}
	assert.Greater(t, nearChange, 0)
}

func TestTopicBoundariesDedupesCloseValleys(t *testing.T) {
	opts := DefaultTilingOptions()
	words := wordStream([][]string{
		{"alpha", "beta", "gamma"},
		{"delta", "epsilon", "zeta"},
		{"eta", "theta", "iota"},
		{"kappa", "lambda", "mu"},
	}, 50)

	boundaries := TopicBoundaries(words, opts)
	for i := 1; i < len(boundaries); i++ {
		assert.Greater(t, boundaries[i]-boundaries[i-1], 0.5)
	}
}

func TestTopicBoundariesIgnoresPunctuation(t *testing.T) {
	opts := DefaultTilingOptions()
	var words []store.WordItem
	for i := 0; i < 3*opts.BlockSize; i++ {
		words = append(words, store.WordItem{
			Content:   ".",
			StartTime: float64(i),
			Type:      "punctuation",
		})
	}
	assert.Nil(t, TopicBoundaries(words, opts))
}

func TestNormalizeToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello,", "hello"},
		{"DON'T", "don't"},
		{"  ok  ", "ok"},
		{"!!!", ""},
		{"a1b2", "a1b2"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeToken(tt.in))
		})
	}
}

func TestCosineSim(t *testing.T) {
	a := map[string]int{"goal": 2, "ball": 1}
	assert.InDelta(t, 1.0, cosineSim(a, a), 1e-9)
	assert.Zero(t, cosineSim(a, map[string]int{"rain": 3}))
	assert.Zero(t, cosineSim(a, map[string]int{}))
}
