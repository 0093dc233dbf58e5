package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/clipworks/highlighter/pkg/store"
	"github.com/clipworks/highlighter/pkg/transcribe"
)

// ChunkQueue is the chunk repository slice the transcriber drives.
type ChunkQueue interface {
	ListPending(ctx context.Context, streamID string, limit int) ([]store.ChunkRow, error)
	UpdateTranscript(ctx context.Context, streamID string, chunkIndex int64, transcript string) error
}

// Transcriber polls for chunks whose transcript is still the EMPTY
// sentinel and finalizes each one via a streaming speech-to-text session.
type Transcriber struct {
	StreamID    string
	Chunks      ChunkQueue
	Engine      transcribe.Engine
	Dir         string // audio_chunks artifact directory
	BatchSize   int
	PollDelay   time.Duration
	ChunkerDone *Latch
}

// Run polls until no pending chunks remain and the chunker has finished.
func (t *Transcriber) Run(ctx context.Context) error {
	slog.Info("Started the transcription loop", "stream_id", t.StreamID)
	for {
		pending, err := t.Chunks.ListPending(ctx, t.StreamID, t.BatchSize)
		if err != nil {
			return err
		}

		if len(pending) == 0 {
			if t.ChunkerDone.IsSet() {
				slog.Info("Transcription loop finished", "stream_id", t.StreamID)
				return nil
			}
			select {
			case <-time.After(t.PollDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		for i := range pending {
			if err := t.TranscribeOne(ctx, &pending[i]); err != nil {
				return err
			}
		}
	}
}

// TranscribeOne finalizes a single chunk's transcript. Already-finalized
// chunks are a no-op, so the scorer can safely re-invoke this for chunks
// carrying the ERROR sentinel after resetting them. Session failure after
// retries writes the ERROR sentinel; only the database write can fail.
func (t *Transcriber) TranscribeOne(ctx context.Context, chunk *store.ChunkRow) error {
	if chunk.Transcribed() {
		return nil
	}

	words, err := t.Engine.TranscribeChunk(ctx, filepath.Join(t.Dir, chunk.Filename))
	if err != nil {
		slog.Error("Failed to transcribe audio chunk",
			"stream_id", t.StreamID,
			"chunk_index", chunk.ChunkIndex,
			"error", err)
		return t.Chunks.UpdateTranscript(ctx, t.StreamID, chunk.ChunkIndex, store.TranscriptError)
	}

	if words == nil {
		words = []store.WordItem{}
	}
	raw, err := json.Marshal(words)
	if err != nil {
		return fmt.Errorf("failed to encode transcript for chunk %d: %w", chunk.ChunkIndex, err)
	}
	return t.Chunks.UpdateTranscript(ctx, t.StreamID, chunk.ChunkIndex, string(raw))
}

// Retranscribe re-runs one failed chunk. The ERROR sentinel is treated as
// pending again for this single attempt.
func (t *Transcriber) Retranscribe(ctx context.Context, chunk *store.ChunkRow) error {
	if chunk.Transcript != store.TranscriptError {
		return nil
	}
	slog.Info("Re-transcribing failed audio chunk", "stream_id", t.StreamID, "chunk_index", chunk.ChunkIndex)
	retry := *chunk
	retry.Transcript = store.TranscriptEmpty
	return t.TranscribeOne(ctx, &retry)
}
