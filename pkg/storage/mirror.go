// Package storage mirrors local pipeline artifacts to the object store.
// Uploads are best effort: a failed mirror never fails the pipeline.
package storage

import (
	"bytes"
	"context"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the slice of the S3 client the mirror uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Mirror copies frame and audio artifacts to a bucket. A nil Mirror
// disables mirroring.
type Mirror struct {
	api         S3API
	bucket      string
	framePrefix string
	audioPrefix string
}

// NewMirror creates a Mirror. Returns nil when bucket is empty so callers
// can pass the result through unconditionally.
func NewMirror(api S3API, bucket, framePrefix, audioPrefix string) *Mirror {
	if bucket == "" {
		return nil
	}
	if api == nil {
		panic("NewMirror: api must not be nil")
	}
	return &Mirror{api: api, bucket: bucket, framePrefix: framePrefix, audioPrefix: audioPrefix}
}

// MirrorFrame uploads one JPEG frame under the frame prefix.
func (m *Mirror) MirrorFrame(ctx context.Context, streamID, filename string, data []byte) {
	if m == nil {
		return
	}
	m.put(ctx, path.Join(m.framePrefix, streamID, filename), "image/jpeg", data)
}

// MirrorChunk uploads one WAV chunk under the audio prefix.
func (m *Mirror) MirrorChunk(ctx context.Context, streamID, filename string, data []byte) {
	if m == nil {
		return
	}
	m.put(ctx, path.Join(m.audioPrefix, streamID, filename), "audio/wav", data)
}

func (m *Mirror) put(ctx context.Context, key, contentType string, data []byte) {
	_, err := m.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		slog.Warn("Failed to mirror artifact", "bucket", m.bucket, "key", key, "error", err)
	}
}
