package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/clipworks/highlighter/pkg/media"
	"github.com/clipworks/highlighter/pkg/storage"
	"github.com/clipworks/highlighter/pkg/store"
)

// Sampler keeps at most one video frame per 1/rate seconds of media time,
// writes the JPEG artifact, and records one frame row per kept frame.
type Sampler struct {
	StreamID string
	Frames   <-chan *media.VideoFrame
	Store    *store.FrameStore
	Mirror   *storage.Mirror
	Dir      string  // frames artifact directory
	Rate     float64 // kept frames per second
	Done     *Latch
}

// Run consumes the video queue until it closes or the sampler's latch is
// set, then sets the latch itself.
func (s *Sampler) Run(ctx context.Context) error {
	defer s.Done.Set()
	slog.Info("Started to sample the video frames", "stream_id", s.StreamID)

	period := 1.0 / s.Rate
	frameIndex := int64(0)
	lastSaved := -period

	for frame := range s.Frames {
		if s.Done.IsSet() {
			break
		}
		// small tolerance for float accumulation in frame timestamps
		if frame.Time-lastSaved < period-1e-6 {
			continue
		}

		filename := media.FrameFilename(frameIndex)
		data, err := media.EncodeJPEG(frame.ToImage())
		if err != nil {
			return fmt.Errorf("failed to encode frame %d: %w", frameIndex, err)
		}
		path := filepath.Join(s.Dir, filename)
		if err := writeFileOnce(path, data); err != nil {
			return err
		}
		s.Mirror.MirrorFrame(ctx, s.StreamID, filename, data)

		row := &store.FrameRow{
			StreamID:   s.StreamID,
			Filename:   filename,
			FrameIndex: frameIndex,
			Timestamp:  round3(frame.Time),
			PTS:        frame.PTS,
			Width:      frame.Width,
			Height:     frame.Height,
		}
		if err := s.Store.Insert(ctx, row); err != nil {
			return err
		}

		frameIndex++
		lastSaved = frame.Time
	}

	slog.Info("Video sampler finished", "stream_id", s.StreamID, "frames", frameIndex)
	return nil
}
