package store

import (
	"context"
	"database/sql"
	"fmt"
)

// FrameStore reads and writes video_metadata rows. The video sampler is
// the sole writer; frame_index is strictly increasing per stream.
type FrameStore struct {
	db *sql.DB
}

// NewFrameStore creates a FrameStore.
func NewFrameStore(db *sql.DB) *FrameStore {
	if db == nil {
		panic("NewFrameStore: db must not be nil")
	}
	return &FrameStore{db: db}
}

// Insert records one kept frame.
func (s *FrameStore) Insert(ctx context.Context, row *FrameRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO video_metadata (stream_id, filename, frame_index, timestamp, pts, width, height)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		row.StreamID, row.Filename, row.FrameIndex, row.Timestamp, row.PTS, row.Width, row.Height)
	if err != nil {
		return fmt.Errorf("failed to insert frame %d for stream %s: %w", row.FrameIndex, row.StreamID, err)
	}
	return nil
}

// ListRange fetches frame rows with frame_index >= startFrame, ordered by
// frame_index, up to limit rows (0 = no limit).
func (s *FrameStore) ListRange(ctx context.Context, streamID string, startFrame int64, limit int) ([]FrameRow, error) {
	query := `
		SELECT id, stream_id, filename, frame_index, timestamp, pts, width, height, created_at
		FROM video_metadata
		WHERE stream_id = $1 AND frame_index >= $2
		ORDER BY frame_index ASC`
	args := []any{streamID, startFrame}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list frames for stream %s: %w", streamID, err)
	}
	defer rows.Close()

	var frames []FrameRow
	for rows.Next() {
		var fr FrameRow
		if err := rows.Scan(&fr.ID, &fr.StreamID, &fr.Filename, &fr.FrameIndex, &fr.Timestamp, &fr.PTS, &fr.Width, &fr.Height, &fr.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan frame row: %w", err)
		}
		frames = append(frames, fr)
	}
	return frames, rows.Err()
}

// Count returns the number of frame rows recorded for the stream.
func (s *FrameStore) Count(ctx context.Context, streamID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM video_metadata WHERE stream_id = $1`, streamID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count frames for stream %s: %w", streamID, err)
	}
	return n, nil
}
