package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
)

// VideoFrame is one decoded video frame with raw RGB24 pixels.
type VideoFrame struct {
	Time   float64 // media time in seconds
	PTS    int64   // presentation timestamp in stream time base units
	Width  int
	Height int
	RGB    []byte // len = Width*Height*3
}

// AudioFrame is one block of decoded PCM audio at the target sample rate.
type AudioFrame struct {
	Time     float64 // media time of the first sample (seconds)
	Samples  []byte  // interleaved signed 16-bit little-endian PCM
	Channels int
}

// StopFlag is a one-way latch shared between the demuxer and the
// lifecycle controller.
type StopFlag struct {
	set atomic.Bool
}

// Set trips the flag. Idempotent.
func (f *StopFlag) Set() { f.set.Store(true) }

// IsSet reports whether the flag has been tripped.
func (f *StopFlag) IsSet() bool { return f.set.Load() }

// audioReadSamples is the number of samples per emitted AudioFrame.
const audioReadSamples = 1024

// Demuxer splits a media container into a video frame stream and an audio
// frame stream, each tagged with media time, and terminates once media
// time passes MaxDuration. It owns the write side of both queues and
// closes them on return.
type Demuxer struct {
	URL         string
	MaxDuration float64
	SampleRate  int // audio resample target (Hz)

	VideoQ chan *VideoFrame
	AudioQ chan *AudioFrame
	Stop   *StopFlag
}

// Run probes the container, launches one decode process per modality, and
// pumps frames into the queues until EOF, stop, or the media-time bound.
// It always sets the stop flag and closes both queues before returning so
// downstream stages drain deterministically.
func (d *Demuxer) Run(ctx context.Context) (err error) {
	defer func() {
		d.Stop.Set()
		close(d.VideoQ)
		close(d.AudioQ)
	}()

	slog.Info("Starting to read the stream", "url", d.URL)

	info, err := Probe(ctx, d.URL)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var videoErr, audioErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		videoErr = d.pumpVideo(ctx, info)
		// either side finishing past the bound stops the other
		if d.Stop.IsSet() {
			cancel()
		}
	}()
	go func() {
		defer wg.Done()
		audioErr = d.pumpAudio(ctx, info)
		if d.Stop.IsSet() {
			cancel()
		}
	}()
	wg.Wait()

	slog.Info("Ending the stream, exiting", "url", d.URL)

	if videoErr != nil && !errors.Is(videoErr, context.Canceled) {
		return fmt.Errorf("video decode failed: %w", videoErr)
	}
	if audioErr != nil && !errors.Is(audioErr, context.Canceled) {
		return fmt.Errorf("audio decode failed: %w", audioErr)
	}
	return nil
}

// pumpVideo decodes the selected video stream to raw RGB24 frames at the
// container frame rate and enqueues them with derived media time.
func (d *Demuxer) pumpVideo(ctx context.Context, info *StreamInfo) error {
	args := []string{
		"-nostdin", "-v", "error",
		"-i", d.URL,
		"-map", fmt.Sprintf("0:%d", info.VideoIndex),
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-vf", fmt.Sprintf("fps=%f", info.FrameRate),
		"-",
	}
	stdout, wait, err := startFFmpeg(ctx, args)
	if err != nil {
		return err
	}
	defer wait()

	frameSize := info.Width * info.Height * 3
	frameNum := int64(0)
	for {
		buf := make([]byte, frameSize)
		if _, err := io.ReadFull(stdout, buf); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to read video frame: %w", err)
		}

		mediaTime := float64(frameNum) / info.FrameRate
		if mediaTime > d.MaxDuration {
			d.Stop.Set()
			return nil
		}

		frame := &VideoFrame{
			Time:   mediaTime,
			PTS:    int64(mediaTime * float64(info.TimeBaseDen)),
			Width:  info.Width,
			Height: info.Height,
			RGB:    buf,
		}
		select {
		case d.VideoQ <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
		if d.Stop.IsSet() {
			return nil
		}
		frameNum++
	}
}

// pumpAudio decodes the selected audio stream to s16le PCM at the target
// sample rate, preserving the source channel layout.
func (d *Demuxer) pumpAudio(ctx context.Context, info *StreamInfo) error {
	args := []string{
		"-nostdin", "-v", "error",
		"-i", d.URL,
		"-map", fmt.Sprintf("0:a:%d", info.AudioIndex),
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", d.SampleRate),
		"-ac", fmt.Sprintf("%d", info.Channels),
		"-",
	}
	stdout, wait, err := startFFmpeg(ctx, args)
	if err != nil {
		return err
	}
	defer wait()

	bytesPerSample := 2 * info.Channels
	readSize := audioReadSamples * bytesPerSample
	sampleNum := int64(0)
	for {
		buf := make([]byte, readSize)
		n, err := io.ReadFull(stdout, buf)
		if n > 0 {
			n -= n % bytesPerSample
			mediaTime := float64(sampleNum) / float64(d.SampleRate)
			if mediaTime > d.MaxDuration {
				d.Stop.Set()
				return nil
			}
			frame := &AudioFrame{Time: mediaTime, Samples: buf[:n], Channels: info.Channels}
			select {
			case d.AudioQ <- frame:
			case <-ctx.Done():
				return ctx.Err()
			}
			sampleNum += int64(n / bytesPerSample)
		}
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to read audio samples: %w", err)
		}
		if d.Stop.IsSet() {
			return nil
		}
	}
}

// startFFmpeg launches ffmpeg with a stdout pipe and a background stderr
// drain. The returned wait function reaps the process.
func startFFmpeg(ctx context.Context, args []string) (io.ReadCloser, func(), error) {
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := stderr.Read(buf)
			if n > 0 {
				slog.Debug("ffmpeg stderr", "output", string(buf[:n]))
			}
			if err != nil {
				return
			}
		}
	}()

	wait := func() {
		_ = stdout.Close()
		_ = cmd.Wait()
	}
	return stdout, wait, nil
}
