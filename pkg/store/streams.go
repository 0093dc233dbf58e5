package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// StreamStore reads and writes stream_metadata rows.
type StreamStore struct {
	db *sql.DB
}

// NewStreamStore creates a StreamStore.
func NewStreamStore(db *sql.DB) *StreamStore {
	if db == nil {
		panic("NewStreamStore: db must not be nil")
	}
	return &StreamStore{db: db}
}

// Get fetches a stream row by its stream_id.
func (s *StreamStore) Get(ctx context.Context, streamID string) (*Stream, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, stream_id, stream_url, status, COALESCE(message, ''), COALESCE(highlights, '')
		FROM stream_metadata
		WHERE stream_id = $1
		LIMIT 1`, streamID)

	var st Stream
	if err := row.Scan(&st.ID, &st.StreamID, &st.StreamURL, &st.Status, &st.Message, &st.Highlights); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStreamNotFound
		}
		return nil, fmt.Errorf("failed to fetch stream %s: %w", streamID, err)
	}
	return &st, nil
}

// Create inserts a stream row in SUBMITTED status. Used when the job
// arrives without a pre-admitted row (local runs).
func (s *StreamStore) Create(ctx context.Context, streamID, streamURL string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stream_metadata (stream_id, stream_url, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (stream_id) DO NOTHING`,
		streamID, streamURL, StatusSubmitted)
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", streamID, err)
	}
	return nil
}

// SetStatus records the stream's lifecycle state. The message replaces any
// previous one; pass "" to clear it.
func (s *StreamStore) SetStatus(ctx context.Context, streamID string, status StreamStatus, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE stream_metadata
		SET status = $1, message = $2
		WHERE stream_id = $3`,
		status, message, streamID)
	if err != nil {
		return fmt.Errorf("failed to set stream %s status to %s: %w", streamID, status, err)
	}
	return nil
}

// ReplaceHighlights atomically overwrites the serialized highlight list.
// Callers load the existing list, append, and pass the whole thing back.
func (s *StreamStore) ReplaceHighlights(ctx context.Context, streamID string, highlights []Highlight) error {
	raw, err := EncodeHighlights(highlights)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE stream_metadata
		SET highlights = $1
		WHERE stream_id = $2`,
		raw, streamID)
	if err != nil {
		return fmt.Errorf("failed to replace highlights for stream %s: %w", streamID, err)
	}
	return nil
}
