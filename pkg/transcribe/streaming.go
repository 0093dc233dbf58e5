// Package transcribe opens one streaming speech-to-text session per audio
// chunk and collects the finalized word items.
package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming/types"
	"github.com/cenkalti/backoff/v4"

	"github.com/clipworks/highlighter/pkg/media"
	"github.com/clipworks/highlighter/pkg/store"
)

const (
	// sendChunkSize is the audio event payload size.
	sendChunkSize = 16 * 1024

	sessionAttempts    = 3
	sessionBackoffBase = time.Second
)

// Engine transcribes one encoded audio chunk into finalized word items.
type Engine interface {
	TranscribeChunk(ctx context.Context, wavPath string) ([]store.WordItem, error)
}

// Streaming drives the managed streaming speech-to-text service.
type Streaming struct {
	client       *transcribestreaming.Client
	languageCode string
	backoffBase  time.Duration
}

// NewStreaming creates a Streaming engine.
func NewStreaming(client *transcribestreaming.Client, languageCode string) *Streaming {
	if client == nil {
		panic("NewStreaming: client must not be nil")
	}
	return &Streaming{client: client, languageCode: languageCode, backoffBase: sessionBackoffBase}
}

// TranscribeChunk opens a session for one WAV chunk and returns the
// finalized word items sorted by start time. Transient failures retry
// with backoff; the error after the final attempt is returned.
func (s *Streaming) TranscribeChunk(ctx context.Context, wavPath string) ([]store.WordItem, error) {
	pcm, sampleRate, _, err := media.ReadWAV(wavPath)
	if err != nil {
		return nil, err
	}

	var words []store.WordItem
	operation := func() error {
		var err error
		words, err = s.session(ctx, pcm, sampleRate)
		if err != nil {
			slog.Warn("Transcription session failed", "path", wavPath, "error", err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.backoffBase
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, sessionAttempts-1), ctx)); err != nil {
		return nil, fmt.Errorf("transcription failed after %d attempts: %w", sessionAttempts, err)
	}

	sort.SliceStable(words, func(i, j int) bool { return words[i].StartTime < words[j].StartTime })
	return words, nil
}

// session runs one send/receive exchange over a fresh event stream.
func (s *Streaming) session(ctx context.Context, pcm []byte, sampleRate int) ([]store.WordItem, error) {
	out, err := s.client.StartStreamTranscription(ctx, &transcribestreaming.StartStreamTranscriptionInput{
		LanguageCode:         types.LanguageCode(s.languageCode),
		MediaEncoding:        types.MediaEncodingPcm,
		MediaSampleRateHertz: aws.Int32(int32(sampleRate)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start transcription stream: %w", err)
	}
	stream := out.GetStream()
	defer stream.Close()

	sendDone := make(chan error, 1)
	go func() {
		for off := 0; off < len(pcm); off += sendChunkSize {
			end := off + sendChunkSize
			if end > len(pcm) {
				end = len(pcm)
			}
			event := &types.AudioStreamMemberAudioEvent{
				Value: types.AudioEvent{AudioChunk: pcm[off:end]},
			}
			if err := stream.Send(ctx, event); err != nil {
				sendDone <- fmt.Errorf("failed to send audio event: %w", err)
				return
			}
		}
		// explicit end-of-input
		sendDone <- stream.Writer.Close()
	}()

	var words []store.WordItem
	for event := range stream.Events() {
		te, ok := event.(*types.TranscriptResultStreamMemberTranscriptEvent)
		if !ok || te.Value.Transcript == nil {
			continue
		}
		for _, result := range te.Value.Transcript.Results {
			if result.IsPartial || len(result.Alternatives) == 0 {
				continue
			}
			for _, item := range result.Alternatives[0].Items {
				words = append(words, store.WordItem{
					Content:   aws.ToString(item.Content),
					StartTime: item.StartTime,
					EndTime:   item.EndTime,
					Type:      string(item.Type),
				})
			}
		}
	}

	if err := <-sendDone; err != nil {
		return nil, err
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("transcription stream failed: %w", err)
	}
	return words, nil
}
