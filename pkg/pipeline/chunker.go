package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/clipworks/highlighter/pkg/media"
	"github.com/clipworks/highlighter/pkg/storage"
	"github.com/clipworks/highlighter/pkg/store"
)

// ChunkInserter is the chunk repository slice the chunker writes through.
type ChunkInserter interface {
	Insert(ctx context.Context, row *store.ChunkRow) error
}

// Chunker accumulates decoded audio into fixed-duration chunks, encodes
// each chunk as a WAV artifact, and records one chunk row with the EMPTY
// transcript sentinel. Chunk k always starts at k*ChunkSeconds of media
// time; frames arriving across a boundary are split at it.
type Chunker struct {
	StreamID     string
	Frames       <-chan *media.AudioFrame
	Store        ChunkInserter
	Mirror       *storage.Mirror
	Dir          string // audio_chunks artifact directory
	SampleRate   int
	ChunkSeconds float64
	Done         *Latch
}

// Run consumes the audio queue until it closes or the chunker's latch is
// set, flushing the residual buffer on shutdown, then sets the latch.
func (c *Chunker) Run(ctx context.Context) error {
	defer c.Done.Set()
	slog.Info("Started to chunk the audio stream", "stream_id", c.StreamID)

	var buf bytes.Buffer
	chunkIndex := int64(0)
	startTS := 0.0
	endTS := 0.0
	channels := 1

	for frame := range c.Frames {
		if c.Done.IsSet() {
			break
		}
		if frame.Channels > 0 {
			channels = frame.Channels
		}
		bytesPerSample := 2 * channels
		chunkBytes := int(c.ChunkSeconds*float64(c.SampleRate)) * bytesPerSample

		data := frame.Samples
		frameTime := frame.Time
		for len(data) > 0 {
			if buf.Len() == 0 {
				startTS = frameTime
			}
			take := chunkBytes - buf.Len()
			if take > len(data) {
				take = len(data)
			}
			buf.Write(data[:take])
			data = data[take:]
			frameTime += float64(take/bytesPerSample) / float64(c.SampleRate)
			endTS = startTS + float64(buf.Len()/bytesPerSample)/float64(c.SampleRate)

			if buf.Len() >= chunkBytes {
				if err := c.flush(ctx, &buf, chunkIndex, startTS, endTS, channels); err != nil {
					return err
				}
				chunkIndex++
			}
		}
	}

	if buf.Len() > 0 {
		if err := c.flush(ctx, &buf, chunkIndex, startTS, endTS, channels); err != nil {
			return err
		}
		chunkIndex++
	}

	slog.Info("Audio chunker finished", "stream_id", c.StreamID, "chunks", chunkIndex)
	return nil
}

func (c *Chunker) flush(ctx context.Context, buf *bytes.Buffer, chunkIndex int64, startTS, endTS float64, channels int) error {
	filename := media.ChunkFilename(chunkIndex)
	path := filepath.Join(c.Dir, filename)

	pcm := make([]byte, buf.Len())
	copy(pcm, buf.Bytes())
	buf.Reset()

	if err := media.WriteWAV(path, pcm, c.SampleRate, channels); err != nil {
		return err
	}
	c.Mirror.MirrorChunk(ctx, c.StreamID, filename, pcm)

	row := &store.ChunkRow{
		StreamID:       c.StreamID,
		Filename:       filename,
		ChunkIndex:     chunkIndex,
		StartTimestamp: round3(startTS),
		EndTimestamp:   round3(endTS),
		SampleRate:     c.SampleRate,
		CapturedAt:     time.Now().Unix(),
		Transcript:     store.TranscriptEmpty,
	}
	return c.Store.Insert(ctx, row)
}

// writeFileOnce writes data to path unless the file already exists.
func writeFileOnce(path string, data []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
