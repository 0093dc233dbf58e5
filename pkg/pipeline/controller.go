package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/clipworks/highlighter/pkg/config"
	"github.com/clipworks/highlighter/pkg/media"
	"github.com/clipworks/highlighter/pkg/storage"
	"github.com/clipworks/highlighter/pkg/store"
	"github.com/clipworks/highlighter/pkg/transcribe"
)

// Controller owns the queues, latches, and stop flag of one stream run
// and sequences startup, shutdown signaling, drain ordering, and the
// terminal status write.
type Controller struct {
	StreamID  string
	StreamURL string
	Cfg       *config.Config

	Streams *store.StreamStore
	Frames  *store.FrameStore
	Chunks  *store.ChunkStore
	Scores  *store.ScoreStore

	Engine    transcribe.Engine
	Captioner CaptionerAPI
	Grouper   GrouperAPI
	Refiner   RefinerAPI
	Mirror    *storage.Mirror
}

// Run processes one stream end to end and records the terminal status.
// Cancelling ctx requests cooperative shutdown: the demuxer stops, the
// modality workers drain, and every downstream stage finishes whatever
// work the drain produced.
func (c *Controller) Run(ctx context.Context) error {
	streamDir := c.Cfg.StreamDir(c.StreamID)
	for _, sub := range []string{"frames", "audio_chunks"} {
		if err := os.MkdirAll(filepath.Join(streamDir, sub), 0o755); err != nil {
			return fmt.Errorf("failed to create artifact directory: %w", err)
		}
	}

	// stage work must survive the shutdown signal so drains can finish
	workCtx := context.WithoutCancel(ctx)

	if err := c.Streams.SetStatus(workCtx, c.StreamID, store.StatusInProgress, ""); err != nil {
		return err
	}

	stop := &media.StopFlag{}
	latches := &Latches{}
	videoQ := make(chan *media.VideoFrame, c.Cfg.QueueCapacity)
	audioQ := make(chan *media.AudioFrame, c.Cfg.QueueCapacity)

	demuxer := &media.Demuxer{
		URL:         c.StreamURL,
		MaxDuration: c.Cfg.MaxStreamDuration,
		SampleRate:  c.Cfg.TargetSampleRate,
		VideoQ:      videoQ,
		AudioQ:      audioQ,
		Stop:        stop,
	}
	sampler := &Sampler{
		StreamID: c.StreamID,
		Frames:   videoQ,
		Store:    c.Frames,
		Mirror:   c.Mirror,
		Dir:      filepath.Join(streamDir, "frames"),
		Rate:     c.Cfg.VideoFrameSampleRate,
		Done:     &latches.VideoProcessor,
	}
	chunker := &Chunker{
		StreamID:     c.StreamID,
		Frames:       audioQ,
		Store:        c.Chunks,
		Mirror:       c.Mirror,
		Dir:          filepath.Join(streamDir, "audio_chunks"),
		SampleRate:   c.Cfg.TargetSampleRate,
		ChunkSeconds: c.Cfg.AudioChunkSeconds,
		Done:         &latches.AudioProcessor,
	}
	transcriber := &Transcriber{
		StreamID:    c.StreamID,
		Chunks:      c.Chunks,
		Engine:      c.Engine,
		Dir:         filepath.Join(streamDir, "audio_chunks"),
		BatchSize:   c.Cfg.TranscriberBatchSize,
		PollDelay:   c.Cfg.TranscriberPollDelay,
		ChunkerDone: &latches.AudioProcessor,
	}
	scorer := &Scorer{
		StreamID:    c.StreamID,
		Cfg:         c.Cfg,
		Scores:      c.Scores,
		Chunks:      c.Chunks,
		Frames:      c.Frames,
		Captioner:   c.Captioner,
		Transcriber: transcriber,
		Latches:     latches,
		BaseDir:     streamDir,
	}
	assembler := &Assembler{
		StreamID: c.StreamID,
		Cfg:      c.Cfg,
		Scores:   c.Scores,
		Streams:  c.Streams,
		Chunks:   c.Chunks,
		Grouper:  c.Grouper,
		Refiner:  c.Refiner,
		Latches:  latches,
		BaseDir:  streamDir,
	}

	// translate the shutdown signal into the cooperative flags
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			slog.Info("Shutdown requested, draining pipeline", "stream_id", c.StreamID)
			stop.Set()
			latches.VideoProcessor.Set()
			latches.AudioProcessor.Set()
		case <-finished:
		}
	}()

	g, gctx := errgroup.WithContext(workCtx)
	g.Go(func() error { return demuxer.Run(gctx) })
	g.Go(func() error { return sampler.Run(gctx) })
	g.Go(func() error { return chunker.Run(gctx) })
	g.Go(func() error { return transcriber.Run(gctx) })
	g.Go(func() error { return scorer.Run(gctx) })
	g.Go(func() error { return assembler.Run(gctx) })

	if err := g.Wait(); err != nil {
		slog.Error("Stream processing failed", "stream_id", c.StreamID, "error", err)
		if statusErr := c.Streams.SetStatus(workCtx, c.StreamID, store.StatusFailed, err.Error()); statusErr != nil {
			slog.Error("Failed to record FAILED status", "stream_id", c.StreamID, "error", statusErr)
		}
		return err
	}

	frames, err := c.Frames.Count(workCtx, c.StreamID)
	if err != nil {
		slog.Warn("Failed to count recorded frames", "stream_id", c.StreamID, "error", err)
	}
	slog.Info("Stream processing completed", "stream_id", c.StreamID, "frames", frames)
	return c.Streams.SetStatus(workCtx, c.StreamID, store.StatusCompleted, "")
}
