package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipworks/highlighter/pkg/media"
	"github.com/clipworks/highlighter/pkg/store"
)

func TestAudioChunkIndexes(t *testing.T) {
	tests := []struct {
		name       string
		start, end float64
		want       []int64
	}{
		{"first window", 0, 5, []int64{0}},
		{"second window", 5, 10, []int64{1}},
		{"straddles a boundary", 3, 8, []int64{0, 1}},
		{"end exactly on boundary stays left", 7, 10, []int64{1}},
		{"spans three chunks", 4, 11, []int64{0, 1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clip := &CandidateClip{StartTime: tt.start, EndTime: tt.end, ChunkSeconds: 5}
			assert.Equal(t, tt.want, clip.AudioChunkIndexes())
		})
	}
}

func TestFrameIndexes(t *testing.T) {
	clip := &CandidateClip{StartTime: 5, EndTime: 10, FrameRate: 2}
	first, last := clip.FrameIndexes()
	assert.Equal(t, int64(10), first)
	assert.Equal(t, int64(19), last)
}

func TestLoadAudioSegmentCropsToWindow(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "audio_chunks"), 0o755))

	// two mono 1 kHz chunks of 5 seconds each, with recognizable bytes
	rate := 1000
	chunk0 := make([]byte, 5*rate*2)
	chunk1 := make([]byte, 5*rate*2)
	for i := range chunk0 {
		chunk0[i] = 0x11
	}
	for i := range chunk1 {
		chunk1[i] = 0x22
	}
	require.NoError(t, media.WriteWAV(filepath.Join(dir, "audio_chunks", media.ChunkFilename(0)), chunk0, rate, 1))
	require.NoError(t, media.WriteWAV(filepath.Join(dir, "audio_chunks", media.ChunkFilename(1)), chunk1, rate, 1))

	clip := &CandidateClip{BaseDir: dir, StartTime: 4, EndTime: 6, ChunkSeconds: 5}
	pcm, gotRate, channels := clip.LoadAudioSegment()

	require.Equal(t, rate, gotRate)
	assert.Equal(t, 1, channels)
	require.Len(t, pcm, 2*rate*2)
	assert.Equal(t, byte(0x11), pcm[0])
	assert.Equal(t, byte(0x22), pcm[len(pcm)-1])
}

func TestLoadAudioSegmentToleratesMissingChunks(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "audio_chunks"), 0o755))

	clip := &CandidateClip{BaseDir: dir, StartTime: 0, EndTime: 5, ChunkSeconds: 5}
	pcm, rate, _ := clip.LoadAudioSegment()
	assert.Nil(t, pcm)
	assert.Zero(t, rate)
}

func wordsJSON(t *testing.T, words []store.WordItem) string {
	t.Helper()
	data, err := json.Marshal(words)
	require.NoError(t, err)
	return string(data)
}

func TestTranscriptTextFiltersByAbsoluteTime(t *testing.T) {
	chunks := []store.ChunkRow{
		{
			ChunkIndex:     1,
			StartTimestamp: 5,
			Transcript: wordsJSON(t, []store.WordItem{
				{Content: "before", StartTime: 0.1, EndTime: 0.4, Type: "pronunciation"},
				{Content: "hello", StartTime: 1.0, EndTime: 1.4, Type: "pronunciation"},
				{Content: ",", StartTime: 1.4, EndTime: 1.4, Type: "punctuation"},
				{Content: "world", StartTime: 2.0, EndTime: 2.5, Type: "pronunciation"},
				{Content: "straddler", StartTime: 4.8, EndTime: 5.3, Type: "pronunciation"},
			}),
		},
	}

	clip := &CandidateClip{StartTime: 6, EndTime: 10, ChunkSeconds: 5}
	text, err := clip.TranscriptText(chunks)
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestTranscriptTextSkipsSentinelChunks(t *testing.T) {
	chunks := []store.ChunkRow{
		{ChunkIndex: 0, Transcript: store.TranscriptEmpty},
		{ChunkIndex: 1, StartTimestamp: 5, Transcript: store.TranscriptError},
	}
	clip := &CandidateClip{StartTime: 0, EndTime: 10, ChunkSeconds: 5}
	text, err := clip.TranscriptText(chunks)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestTranscriptTextRejectsMalformedTranscript(t *testing.T) {
	chunks := []store.ChunkRow{{ChunkIndex: 0, Transcript: "{not json"}}
	clip := &CandidateClip{StartTime: 0, EndTime: 5, ChunkSeconds: 5}
	_, err := clip.TranscriptText(chunks)
	assert.Error(t, err)
}

func TestAudioRMS(t *testing.T) {
	assert.Zero(t, audioRMS(nil))

	// full-scale square wave has RMS 1
	pcm := make([]byte, 8)
	for i := 0; i < 4; i++ {
		pcm[i*2] = 0xFF
		pcm[i*2+1] = 0x7F
	}
	assert.InDelta(t, 1.0, audioRMS(pcm), 1e-4)

	// silence has RMS 0
	assert.Zero(t, audioRMS(make([]byte, 8)))
}

func TestSaliencyIsBounded(t *testing.T) {
	loud := make([]byte, 8)
	for i := 0; i < 4; i++ {
		loud[i*2] = 0xFF
		loud[i*2+1] = 0x7F
	}
	s := Saliency(nil, loud, 0.7, 0.3)
	assert.Greater(t, s, 0.0)
	assert.LessOrEqual(t, s, 1.0)

	assert.Zero(t, Saliency(nil, nil, 0.7, 0.3))
}
