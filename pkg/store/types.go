// Package store provides typed repositories over the relational schema:
// stream, frame, audio-chunk and score rows plus the serialized highlight
// list. Each pipeline stage owns its repository exclusively; the only
// cross-stage write is the transcriber updating chunk transcripts.
package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// Transcript sentinels. A chunk's transcript starts as EMPTY, becomes a
// JSON word-item array on success, or ERROR on permanent failure.
const (
	TranscriptEmpty = "EMPTY"
	TranscriptError = "ERROR"
)

// StreamStatus is the lifecycle state of a stream row.
type StreamStatus string

const (
	StatusSubmitted  StreamStatus = "SUBMITTED"
	StatusInProgress StreamStatus = "IN_PROGRESS"
	StatusCompleted  StreamStatus = "COMPLETED"
	StatusFailed     StreamStatus = "FAILED"
)

// Stream is one row of stream_metadata.
type Stream struct {
	ID         int64
	StreamID   string
	StreamURL  string
	Status     StreamStatus
	Message    string
	Highlights string // JSON list of Highlight records
}

// FrameRow is one row of video_metadata; one per kept frame.
type FrameRow struct {
	ID         int64
	StreamID   string
	Filename   string
	FrameIndex int64
	Timestamp  float64
	PTS        int64
	Width      int
	Height     int
	CreatedAt  time.Time
}

// ChunkRow is one row of audio_metadata; one per encoded audio chunk.
type ChunkRow struct {
	ID             int64
	StreamID       string
	Filename       string
	ChunkIndex     int64
	StartTimestamp float64
	EndTimestamp   float64
	SampleRate     int
	CapturedAt     int64
	Transcript     string
	CreatedAt      time.Time
}

// Transcribed reports whether the chunk carries a finalized word list.
func (c *ChunkRow) Transcribed() bool {
	return c.Transcript != TranscriptEmpty && c.Transcript != TranscriptError
}

// Words decodes the transcript word items. Returns nil for sentinel values.
func (c *ChunkRow) Words() ([]WordItem, error) {
	if !c.Transcribed() {
		return nil, nil
	}
	var words []WordItem
	if err := json.Unmarshal([]byte(c.Transcript), &words); err != nil {
		return nil, fmt.Errorf("malformed transcript on chunk %d: %w", c.ChunkIndex, err)
	}
	return words, nil
}

// WordItem is one finalized speech-to-text item. Times are relative to the
// chunk start; type is "pronunciation" or "punctuation".
type WordItem struct {
	Content   string  `json:"content"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Type      string  `json:"type"`
}

// ScoreRow is one row of score_metadata; one per candidate window.
type ScoreRow struct {
	ID             int64
	StreamID       string
	StartTime      float64
	EndTime        float64
	SaliencyScore  float64
	HighlightScore float64
	Caption        string
}

// Highlight is one refined segment inside the stream's highlight list.
type Highlight struct {
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	Title      string  `json:"title,omitempty"`
	Caption    string  `json:"caption"`
	Thumbnail  string  `json:"thumbnail"`
	SnapReason string  `json:"snap_reason,omitempty"`
}

// DecodeHighlights parses a stream row's highlights column. An empty
// column yields an empty list.
func DecodeHighlights(raw string) ([]Highlight, error) {
	if raw == "" {
		return nil, nil
	}
	var highlights []Highlight
	if err := json.Unmarshal([]byte(raw), &highlights); err != nil {
		return nil, fmt.Errorf("malformed highlights column: %w", err)
	}
	return highlights, nil
}

// EncodeHighlights serializes the full highlight list for atomic replacement.
func EncodeHighlights(highlights []Highlight) (string, error) {
	if highlights == nil {
		highlights = []Highlight{}
	}
	raw, err := json.Marshal(highlights)
	if err != nil {
		return "", fmt.Errorf("failed to encode highlights: %w", err)
	}
	return string(raw), nil
}
