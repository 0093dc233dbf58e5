package storage

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	keys []string
	err  error
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	if _, err := io.ReadAll(params.Body); err != nil {
		return nil, err
	}
	f.keys = append(f.keys, aws.ToString(params.Key))
	return &s3.PutObjectOutput{}, nil
}

func TestMirrorDisabledWithoutBucket(t *testing.T) {
	m := NewMirror(&fakeS3{}, "", "images/frame/", "audio/streams/")
	require.Nil(t, m)

	// nil mirror is a no-op, not a crash
	m.MirrorFrame(context.Background(), "s1", "frame_000000000.jpg", []byte("x"))
	m.MirrorChunk(context.Background(), "s1", "audio_000000.wav", []byte("x"))
}

func TestMirrorUploadsUnderPrefixes(t *testing.T) {
	api := &fakeS3{}
	m := NewMirror(api, "clip-highlights-bucket", "images/frame/", "audio/streams/")
	require.NotNil(t, m)

	m.MirrorFrame(context.Background(), "s1", "frame_000000007.jpg", []byte("jpeg"))
	m.MirrorChunk(context.Background(), "s1", "audio_000002.wav", []byte("wav"))

	assert.Equal(t, []string{
		"images/frame/s1/frame_000000007.jpg",
		"audio/streams/s1/audio_000002.wav",
	}, api.keys)
}

func TestMirrorSwallowsUploadErrors(t *testing.T) {
	m := NewMirror(&fakeS3{err: errors.New("denied")}, "bucket", "images/frame/", "audio/streams/")
	m.MirrorFrame(context.Background(), "s1", "frame_000000000.jpg", []byte("jpeg"))
}
