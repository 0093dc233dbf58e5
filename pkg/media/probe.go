// Package media converts a container URL into timestamped video and audio
// frame streams, and provides the pixel/PCM helpers the pipeline stages
// share. Decoding runs in ffmpeg subprocesses; ffprobe drives stream
// selection.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

var (
	// ErrNoVideoStream is returned when the container has no video stream.
	ErrNoVideoStream = errors.New("stream does not have a video stream")

	// ErrNoAudioStream is returned when the container has no audio stream.
	ErrNoAudioStream = errors.New("stream does not have an audio stream")
)

// probeStream mirrors the ffprobe JSON fields the demuxer needs.
type probeStream struct {
	Index         int    `json:"index"`
	CodecType     string `json:"codec_type"`
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
	AvgFrameRate  string `json:"avg_frame_rate,omitempty"`
	RFrameRate    string `json:"r_frame_rate,omitempty"`
	TimeBase      string `json:"time_base,omitempty"`
	SampleRate    string `json:"sample_rate,omitempty"`
	Channels      int    `json:"channels,omitempty"`
	ChannelLayout string `json:"channel_layout,omitempty"`
	Disposition   struct {
		Default int `json:"default"`
	} `json:"disposition"`
}

type probeResult struct {
	Streams []probeStream `json:"streams"`
}

// StreamInfo describes the selected elementary streams of a container.
type StreamInfo struct {
	VideoIndex   int
	Width        int
	Height       int
	FrameRate    float64
	TimeBaseDen  int64 // video PTS denominator; media_time = pts / den
	AudioIndex   int   // position among audio streams (0:a:<AudioIndex>)
	SampleRate   int
	Channels     int
}

// Probe inspects the container and selects the one video stream plus the
// default-dispositioned audio stream (first audio otherwise).
func Probe(ctx context.Context, url string) (*StreamInfo, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_streams",
		"-of", "json",
		url)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed for %s: %w (%s)", url, err, strings.TrimSpace(stderr.String()))
	}

	var result probeResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &StreamInfo{VideoIndex: -1, AudioIndex: -1}
	audioPos := 0
	firstAudioPos := -1
	var firstAudio *probeStream
	for i := range result.Streams {
		s := &result.Streams[i]
		switch s.CodecType {
		case "video":
			if info.VideoIndex == -1 {
				info.VideoIndex = s.Index
				info.Width = s.Width
				info.Height = s.Height
				info.FrameRate = parseRational(s.AvgFrameRate)
				if info.FrameRate == 0 {
					info.FrameRate = parseRational(s.RFrameRate)
				}
				info.TimeBaseDen = parseTimeBaseDen(s.TimeBase)
			}
		case "audio":
			if firstAudio == nil {
				firstAudio = s
				firstAudioPos = audioPos
			}
			if s.Disposition.Default == 1 && info.AudioIndex == -1 {
				info.AudioIndex = audioPos
				info.SampleRate = parseInt(s.SampleRate)
				info.Channels = s.Channels
			}
			audioPos++
		}
	}

	if info.AudioIndex == -1 && firstAudio != nil {
		info.AudioIndex = firstAudioPos
		info.SampleRate = parseInt(firstAudio.SampleRate)
		info.Channels = firstAudio.Channels
	}

	if info.VideoIndex == -1 {
		return nil, ErrNoVideoStream
	}
	if info.AudioIndex == -1 {
		return nil, ErrNoAudioStream
	}
	if info.FrameRate <= 0 {
		info.FrameRate = 30
	}
	if info.TimeBaseDen <= 0 {
		info.TimeBaseDen = 90000
	}
	if info.Channels <= 0 {
		info.Channels = 1
	}
	return info, nil
}

// parseRational parses ffprobe fractions like "30000/1001".
func parseRational(s string) float64 {
	if s == "" || s == "0/0" {
		return 0
	}
	parts := strings.SplitN(s, "/", 2)
	num, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0
	}
	if len(parts) == 1 {
		return num
	}
	den, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || den == 0 {
		return 0
	}
	return num / den
}

// parseTimeBaseDen extracts the denominator of a "1/90000" time base.
func parseTimeBaseDen(s string) int64 {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0
	}
	den, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0
	}
	return den
}

func parseInt(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
