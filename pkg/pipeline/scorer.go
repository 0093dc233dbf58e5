package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/clipworks/highlighter/pkg/config"
	"github.com/clipworks/highlighter/pkg/llm"
	"github.com/clipworks/highlighter/pkg/store"
)

// CaptionerAPI is the captioner contract the scorer depends on.
type CaptionerAPI interface {
	CaptionWindow(ctx context.Context, transcript string, images [][]byte) (*llm.Caption, error)
}

// scorerRetryDelay is the pause before re-checking rows that are not yet
// available or transcribed.
const scorerRetryDelay = 200 * time.Millisecond

// Scorer iterates fixed-length candidate windows, computes a mechanical
// saliency score and a semantic highlight score per window, and inserts
// one score row each.
type Scorer struct {
	StreamID    string
	Cfg         *config.Config
	Scores      *store.ScoreStore
	Chunks      *store.ChunkStore
	Frames      *store.FrameStore
	Captioner   CaptionerAPI
	Transcriber *Transcriber
	Latches     *Latches
	BaseDir     string // BASE_DIR/<stream_id>

	retried map[int64]bool // chunks already given their one recovery attempt
}

// Run scores windows until the producers are done and no full window
// remains, then sets the clip-scorer latch.
func (s *Scorer) Run(ctx context.Context) error {
	defer s.Latches.ClipScorer.Set()
	slog.Info("Started the clip scorer", "stream_id", s.StreamID)

	shouldBreak := false
	i := int64(0)
	for {
		if shouldBreak {
			slog.Info("Clip scorer finished", "stream_id", s.StreamID, "windows", i)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		startTime := float64(i) * s.Cfg.CandidateSlice
		endTime := startTime + s.Cfg.CandidateSlice
		clip := &CandidateClip{
			BaseDir:      s.BaseDir,
			StartTime:    startTime,
			EndTime:      endTime,
			ChunkSeconds: s.Cfg.AudioChunkSeconds,
			FrameRate:    s.Cfg.VideoFrameSampleRate,
		}

		chunkIndexes := clip.AudioChunkIndexes()
		chunks, err := s.Chunks.ListRange(ctx, s.StreamID, chunkIndexes[0], chunkIndexes[len(chunkIndexes)-1])
		if err != nil {
			return err
		}

		if retry, err := s.recoverTranscripts(ctx, chunks); err != nil {
			return err
		} else if retry {
			if err := sleepCtx(ctx, scorerRetryDelay); err != nil {
				return err
			}
			continue
		}

		wantFrames := int(s.Cfg.CandidateSlice * s.Cfg.VideoFrameSampleRate)
		firstFrame, _ := clip.FrameIndexes()
		frames, err := s.Frames.ListRange(ctx, s.StreamID, firstFrame, wantFrames)
		if err != nil {
			return err
		}

		if len(frames) != wantFrames || len(chunks) != len(chunkIndexes) {
			if s.Latches.ProducersDone() {
				shouldBreak = true
				if len(chunks) == 0 || len(frames) == 0 {
					continue
				}
			} else {
				if err := sleepCtx(ctx, scorerRetryDelay); err != nil {
					return err
				}
				continue
			}
		}

		if err := s.scoreWindow(ctx, clip, chunks); err != nil {
			return err
		}
		i++
	}
}

// recoverTranscripts re-runs the transcriber once for ERROR chunks and
// reports whether any chunk in the set still needs waiting on. A chunk
// that stays ERROR after its one recovery attempt is scored without a
// transcript instead of blocking the window.
func (s *Scorer) recoverTranscripts(ctx context.Context, chunks []store.ChunkRow) (bool, error) {
	if s.retried == nil {
		s.retried = make(map[int64]bool)
	}
	wait := false
	for i := range chunks {
		switch chunks[i].Transcript {
		case store.TranscriptError:
			if s.retried[chunks[i].ChunkIndex] {
				continue
			}
			s.retried[chunks[i].ChunkIndex] = true
			if err := s.Transcriber.Retranscribe(ctx, &chunks[i]); err != nil {
				return false, err
			}
			wait = true
		case store.TranscriptEmpty:
			wait = true
		}
	}
	return wait, nil
}

// scoreWindow computes both scores for one window and inserts the row.
// A captioner failure skips the row.
func (s *Scorer) scoreWindow(ctx context.Context, clip *CandidateClip, chunks []store.ChunkRow) error {
	slog.Info("Scoring candidate window",
		"stream_id", s.StreamID,
		"start_time", clip.StartTime,
		"end_time", clip.EndTime)

	pcm, _, _ := clip.LoadAudioSegment()
	images := clip.LoadImages()
	saliency := Saliency(images, pcm, s.Cfg.AlphaMotion, s.Cfg.AlphaAudio)

	transcript, err := clip.TranscriptText(chunks)
	if err != nil {
		slog.Warn("Skipping window with malformed transcript", "stream_id", s.StreamID, "start_time", clip.StartTime, "error", err)
		return nil
	}

	caption, err := s.Captioner.CaptionWindow(ctx, transcript, clip.LoadImageBytes())
	if err != nil {
		slog.Error("Captioner failed, skipping window",
			"stream_id", s.StreamID,
			"start_time", clip.StartTime,
			"error", err)
		return nil
	}

	return s.Scores.Insert(ctx, &store.ScoreRow{
		StreamID:       s.StreamID,
		StartTime:      clip.StartTime,
		EndTime:        clip.EndTime,
		SaliencyScore:  saliency,
		HighlightScore: caption.HighlightScore,
		Caption:        caption.Caption,
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
