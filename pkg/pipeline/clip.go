package pipeline

import (
	"image"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/clipworks/highlighter/pkg/media"
	"github.com/clipworks/highlighter/pkg/store"
)

// CandidateClip is a read-only view over one candidate window's artifacts.
// It resolves which chunks and frames cover the window and loads them from
// the stream's artifact directories. Missing files are substituted with
// nothing, never an error.
type CandidateClip struct {
	BaseDir      string // BASE_DIR/<stream_id>
	StartTime    float64
	EndTime      float64
	ChunkSeconds float64
	FrameRate    float64
}

// AudioChunkIndexes returns the chunk indexes the window overlaps. An end
// time exactly on a chunk boundary does not reach into the next chunk.
func (c *CandidateClip) AudioChunkIndexes() []int64 {
	startChunk := int64(math.Floor(c.StartTime / c.ChunkSeconds))
	endChunk := int64(math.Floor(c.EndTime / c.ChunkSeconds))
	if c.EndTime != 0 && math.Mod(c.EndTime, c.ChunkSeconds) == 0 {
		endChunk--
	}

	indexes := make([]int64, 0, endChunk-startChunk+1)
	for i := startChunk; i <= endChunk; i++ {
		indexes = append(indexes, i)
	}
	return indexes
}

// LoadAudioSegment concatenates the overlapping chunks and crops the PCM
// to the window's exact offsets. Returns the samples with the sample rate
// and channel count; missing chunks contribute nothing.
func (c *CandidateClip) LoadAudioSegment() ([]byte, int, int) {
	indexes := c.AudioChunkIndexes()
	var full []byte
	sampleRate := 0
	channels := 1
	for _, idx := range indexes {
		path := filepath.Join(c.BaseDir, "audio_chunks", media.ChunkFilename(idx))
		pcm, rate, ch, err := media.ReadWAV(path)
		if err != nil {
			slog.Warn("Audio chunk missing for window", "path", path, "error", err)
			continue
		}
		sampleRate = rate
		if ch > 0 {
			channels = ch
		}
		full = append(full, pcm...)
	}
	if len(full) == 0 || sampleRate == 0 {
		return nil, sampleRate, channels
	}

	bytesPerSample := 2 * channels
	startOffset := int((c.StartTime-float64(indexes[0])*c.ChunkSeconds)*float64(sampleRate)) * bytesPerSample
	endOffset := startOffset + int((c.EndTime-c.StartTime)*float64(sampleRate))*bytesPerSample
	if startOffset < 0 {
		startOffset = 0
	}
	if startOffset > len(full) {
		startOffset = len(full)
	}
	if endOffset > len(full) {
		endOffset = len(full)
	}
	return full[startOffset:endOffset], sampleRate, channels
}

// FrameIndexes returns the sampled frame indexes covering the window.
func (c *CandidateClip) FrameIndexes() (int64, int64) {
	first := int64(math.Floor(c.StartTime * c.FrameRate))
	last := int64(math.Ceil(c.EndTime*c.FrameRate)) - 1
	return first, last
}

// LoadImages decodes the window's sampled frames, skipping missing files.
func (c *CandidateClip) LoadImages() []image.Image {
	first, last := c.FrameIndexes()
	var images []image.Image
	for i := first; i <= last; i++ {
		path := filepath.Join(c.BaseDir, "frames", media.FrameFilename(i))
		img, err := media.ReadJPEG(path)
		if err != nil {
			slog.Warn("Video frame missing for window", "path", path)
			continue
		}
		images = append(images, img)
	}
	return images
}

// LoadImageBytes reads the window's raw JPEG artifacts for the captioner.
func (c *CandidateClip) LoadImageBytes() [][]byte {
	first, last := c.FrameIndexes()
	var images [][]byte
	for i := first; i <= last; i++ {
		path := filepath.Join(c.BaseDir, "frames", media.FrameFilename(i))
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		images = append(images, data)
	}
	return images
}

// TranscriptText joins the spoken words falling inside the window. Word
// timings are relative to their chunk, so each is shifted by the chunk's
// start timestamp first.
func (c *CandidateClip) TranscriptText(chunks []store.ChunkRow) (string, error) {
	var words []string
	for i := range chunks {
		items, err := chunks[i].Words()
		if err != nil {
			return "", err
		}
		for _, item := range items {
			if item.Type != "pronunciation" {
				continue
			}
			absStart := item.StartTime + chunks[i].StartTimestamp
			absEnd := item.EndTime + chunks[i].StartTimestamp
			if absStart >= c.StartTime && absEnd <= c.EndTime {
				words = append(words, item.Content)
			}
		}
	}
	return strings.Join(words, " "), nil
}
