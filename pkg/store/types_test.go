package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkRowTranscribed(t *testing.T) {
	tests := []struct {
		name       string
		transcript string
		want       bool
	}{
		{"empty sentinel", TranscriptEmpty, false},
		{"error sentinel", TranscriptError, false},
		{"word list", `[{"content":"hello","start_time":0.1,"end_time":0.4,"type":"pronunciation"}]`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &ChunkRow{Transcript: tt.transcript}
			assert.Equal(t, tt.want, c.Transcribed())
		})
	}
}

func TestChunkRowWords(t *testing.T) {
	c := &ChunkRow{Transcript: `[{"content":"hello","start_time":0.1,"end_time":0.4,"type":"pronunciation"},{"content":".","start_time":0.4,"end_time":0.4,"type":"punctuation"}]`}
	words, err := c.Words()
	require.NoError(t, err)
	require.Len(t, words, 2)
	assert.Equal(t, "hello", words[0].Content)
	assert.Equal(t, "pronunciation", words[0].Type)
	assert.Equal(t, "punctuation", words[1].Type)

	sentinel := &ChunkRow{Transcript: TranscriptEmpty}
	words, err = sentinel.Words()
	require.NoError(t, err)
	assert.Nil(t, words)

	malformed := &ChunkRow{ChunkIndex: 7, Transcript: "{not json"}
	_, err = malformed.Words()
	require.Error(t, err)
}

func TestHighlightsRoundTrip(t *testing.T) {
	list := []Highlight{
		{StartTime: 10, EndTime: 20, Title: "Opening goal", Caption: "a goal", Thumbnail: "frame_000000020.jpg", SnapReason: "start=scene,end=topic"},
		{StartTime: 45, EndTime: 52.5, Caption: "crowd reaction", Thumbnail: "frame_000000090.jpg"},
	}
	raw, err := EncodeHighlights(list)
	require.NoError(t, err)

	decoded, err := DecodeHighlights(raw)
	require.NoError(t, err)
	assert.Equal(t, list, decoded)

	empty, err := DecodeHighlights("")
	require.NoError(t, err)
	assert.Nil(t, empty)

	raw, err = EncodeHighlights(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)
}
