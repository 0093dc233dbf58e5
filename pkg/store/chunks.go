package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ChunkStore reads and writes audio_metadata rows. The audio chunker
// inserts; the transcriber is the only updater, and only of transcript.
type ChunkStore struct {
	db *sql.DB
}

// NewChunkStore creates a ChunkStore.
func NewChunkStore(db *sql.DB) *ChunkStore {
	if db == nil {
		panic("NewChunkStore: db must not be nil")
	}
	return &ChunkStore{db: db}
}

// Insert records one encoded audio chunk with the EMPTY transcript sentinel.
func (s *ChunkStore) Insert(ctx context.Context, row *ChunkRow) error {
	transcript := row.Transcript
	if transcript == "" {
		transcript = TranscriptEmpty
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audio_metadata (stream_id, filename, chunk_index, start_timestamp, end_timestamp, sample_rate, captured_at, transcript)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		row.StreamID, row.Filename, row.ChunkIndex, row.StartTimestamp, row.EndTimestamp, row.SampleRate, row.CapturedAt, transcript)
	if err != nil {
		return fmt.Errorf("failed to insert audio chunk %d for stream %s: %w", row.ChunkIndex, row.StreamID, err)
	}
	return nil
}

// ListRange fetches chunk rows with startChunk <= chunk_index <= endChunk,
// ordered by chunk_index.
func (s *ChunkStore) ListRange(ctx context.Context, streamID string, startChunk, endChunk int64) ([]ChunkRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, stream_id, filename, chunk_index, start_timestamp, end_timestamp, sample_rate, COALESCE(captured_at, 0), transcript, created_at
		FROM audio_metadata
		WHERE stream_id = $1 AND chunk_index >= $2 AND chunk_index <= $3
		ORDER BY chunk_index ASC`,
		streamID, startChunk, endChunk)
	if err != nil {
		return nil, fmt.Errorf("failed to list audio chunks for stream %s: %w", streamID, err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// ListPending fetches up to limit chunks whose transcript is still the
// EMPTY sentinel, ordered by chunk_index. The transcriber polls this.
func (s *ChunkStore) ListPending(ctx context.Context, streamID string, limit int) ([]ChunkRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, stream_id, filename, chunk_index, start_timestamp, end_timestamp, sample_rate, COALESCE(captured_at, 0), transcript, created_at
		FROM audio_metadata
		WHERE stream_id = $1 AND transcript = $2
		ORDER BY chunk_index ASC
		LIMIT $3`,
		streamID, TranscriptEmpty, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending audio chunks for stream %s: %w", streamID, err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// UpdateTranscript replaces the transcript field of one chunk.
func (s *ChunkStore) UpdateTranscript(ctx context.Context, streamID string, chunkIndex int64, transcript string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE audio_metadata
		SET transcript = $1
		WHERE stream_id = $2 AND chunk_index = $3`,
		transcript, streamID, chunkIndex)
	if err != nil {
		return fmt.Errorf("failed to update transcript on chunk %d for stream %s: %w", chunkIndex, streamID, err)
	}
	return nil
}

func scanChunks(rows *sql.Rows) ([]ChunkRow, error) {
	var chunks []ChunkRow
	for rows.Next() {
		var c ChunkRow
		if err := rows.Scan(&c.ID, &c.StreamID, &c.Filename, &c.ChunkIndex, &c.StartTimestamp, &c.EndTimestamp, &c.SampleRate, &c.CapturedAt, &c.Transcript, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audio chunk row: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
