package media

import "fmt"

// FrameFilename returns the artifact name for a sampled video frame.
func FrameFilename(index int64) string {
	return fmt.Sprintf("frame_%09d.jpg", index)
}

// ChunkFilename returns the artifact name for an encoded audio chunk.
func ChunkFilename(index int64) string {
	return fmt.Sprintf("audio_%06d.wav", index)
}
