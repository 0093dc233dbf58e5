package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ScoreStore reads and writes score_metadata rows. The scorer inserts;
// rows are never updated.
type ScoreStore struct {
	db *sql.DB
}

// NewScoreStore creates a ScoreStore.
func NewScoreStore(db *sql.DB) *ScoreStore {
	if db == nil {
		panic("NewScoreStore: db must not be nil")
	}
	return &ScoreStore{db: db}
}

// Insert records one scored candidate window.
func (s *ScoreStore) Insert(ctx context.Context, row *ScoreRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO score_metadata (stream_id, start_time, end_time, saliency_score, highlight_score, caption)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		row.StreamID, row.StartTime, row.EndTime, row.SaliencyScore, row.HighlightScore, row.Caption)
	if err != nil {
		return fmt.Errorf("failed to insert score row [%v, %v) for stream %s: %w", row.StartTime, row.EndTime, row.StreamID, err)
	}
	return nil
}

// ListBetween fetches score rows whose start_time falls in
// [startTime, endTime), ordered by start_time. Half-open so consecutive
// blocks partition the rows: a window starting exactly at endTime belongs
// to the next block.
func (s *ScoreStore) ListBetween(ctx context.Context, streamID string, startTime, endTime float64) ([]ScoreRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, stream_id, start_time, end_time, saliency_score, highlight_score, COALESCE(caption, '')
		FROM score_metadata
		WHERE stream_id = $1 AND start_time >= $2 AND start_time < $3
		ORDER BY start_time ASC`,
		streamID, startTime, endTime)
	if err != nil {
		return nil, fmt.Errorf("failed to list score rows for stream %s: %w", streamID, err)
	}
	defer rows.Close()

	var scores []ScoreRow
	for rows.Next() {
		var sc ScoreRow
		if err := rows.Scan(&sc.ID, &sc.StreamID, &sc.StartTime, &sc.EndTime, &sc.SaliencyScore, &sc.HighlightScore, &sc.Caption); err != nil {
			return nil, fmt.Errorf("failed to scan score row: %w", err)
		}
		scores = append(scores, sc)
	}
	return scores, rows.Err()
}

// HasMoreAfter reports whether score rows start at or past the given end
// time, i.e. fall into a later block. The assembler uses this to decide
// between another cycle and draining.
func (s *ScoreStore) HasMoreAfter(ctx context.Context, streamID string, endTime float64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1
		FROM score_metadata
		WHERE stream_id = $1 AND start_time >= $2
		LIMIT 1`,
		streamID, endTime).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("failed to probe score rows for stream %s: %w", streamID, err)
	}
	return true, nil
}
