package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipworks/highlighter/pkg/media"
	"github.com/clipworks/highlighter/pkg/store"
)

type recordingInserter struct {
	rows []store.ChunkRow
}

func (r *recordingInserter) Insert(_ context.Context, row *store.ChunkRow) error {
	r.rows = append(r.rows, *row)
	return nil
}

// feedAudio runs a chunker over synthetic demuxer frames of frameSamples
// samples each and returns the recorded chunk rows.
func feedAudio(t *testing.T, rate, channels, frameSamples, frameCount int, chunkSeconds float64) (*recordingInserter, string) {
	t.Helper()
	dir := t.TempDir()
	inserter := &recordingInserter{}
	frames := make(chan *media.AudioFrame, frameCount)

	bytesPerSample := 2 * channels
	for n := 0; n < frameCount; n++ {
		frames <- &media.AudioFrame{
			Time:     float64(n*frameSamples) / float64(rate),
			Samples:  make([]byte, frameSamples*bytesPerSample),
			Channels: channels,
		}
	}
	close(frames)

	chunker := &Chunker{
		StreamID:     "s1",
		Frames:       frames,
		Store:        inserter,
		Dir:          dir,
		SampleRate:   rate,
		ChunkSeconds: chunkSeconds,
		Done:         &Latch{},
	}
	require.NoError(t, chunker.Run(context.Background()))
	assert.True(t, chunker.Done.IsSet())
	return inserter, dir
}

func TestChunkerAlignsChunksToTargetDuration(t *testing.T) {
	// 1024-sample frames at 16 kHz are 0.064 s, which does not divide the
	// 5 s target; 80 frames = 5.12 s of audio
	inserter, dir := feedAudio(t, 16000, 1, 1024, 80, 5)

	require.Len(t, inserter.rows, 2)
	first, rest := inserter.rows[0], inserter.rows[1]

	assert.Equal(t, int64(0), first.ChunkIndex)
	assert.Equal(t, 0.0, first.StartTimestamp)
	assert.Equal(t, 5.0, first.EndTimestamp)
	assert.Equal(t, store.TranscriptEmpty, first.Transcript)

	assert.Equal(t, int64(1), rest.ChunkIndex)
	assert.Equal(t, 5.0, rest.StartTimestamp)
	assert.InDelta(t, 5.12, rest.EndTimestamp, 1e-9)

	// the WAV artifact holds exactly the target duration of PCM
	pcm, rate, channels, err := media.ReadWAV(filepath.Join(dir, media.ChunkFilename(0)))
	require.NoError(t, err)
	assert.Equal(t, 16000, rate)
	assert.Equal(t, 1, channels)
	assert.Len(t, pcm, 5*16000*2)
}

func TestChunkerStartTimestampsDoNotDrift(t *testing.T) {
	// 790 frames = 50.56 s; every full chunk must start on a 5 s multiple
	inserter, _ := feedAudio(t, 16000, 1, 1024, 790, 5)

	require.Len(t, inserter.rows, 11)
	for _, row := range inserter.rows {
		assert.Equal(t, float64(row.ChunkIndex)*5, row.StartTimestamp, "chunk %d", row.ChunkIndex)
		assert.LessOrEqual(t, row.EndTimestamp-row.StartTimestamp, 5.0, "chunk %d", row.ChunkIndex)
	}
	assert.Equal(t, int64(10), inserter.rows[10].ChunkIndex)
	assert.Equal(t, 50.0, inserter.rows[10].StartTimestamp)
	assert.InDelta(t, 50.56, inserter.rows[10].EndTimestamp, 1e-9)
}

func TestChunkerSplitsStereoFramesAtBoundary(t *testing.T) {
	// 300-sample stereo frames at 1 kHz with a 0.5 s target: each chunk is
	// 500 samples, so every flush lands mid-frame
	inserter, dir := feedAudio(t, 1000, 2, 300, 5, 0.5)

	require.Len(t, inserter.rows, 3)
	assert.Equal(t, 0.0, inserter.rows[0].StartTimestamp)
	assert.Equal(t, 0.5, inserter.rows[0].EndTimestamp)
	assert.Equal(t, 0.5, inserter.rows[1].StartTimestamp)
	assert.Equal(t, 1.0, inserter.rows[1].EndTimestamp)
	assert.Equal(t, 1.0, inserter.rows[2].StartTimestamp)
	assert.Equal(t, 1.5, inserter.rows[2].EndTimestamp)

	pcm, _, channels, err := media.ReadWAV(filepath.Join(dir, media.ChunkFilename(1)))
	require.NoError(t, err)
	assert.Equal(t, 2, channels)
	assert.Len(t, pcm, 500*4)
}
