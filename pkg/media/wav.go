package media

import (
	"encoding/binary"
	"fmt"
	"os"
)

// wavHeaderSize is the canonical 44-byte PCM WAV header.
const wavHeaderSize = 44

// WriteWAV writes interleaved s16le PCM samples as a canonical WAV file.
func WriteWAV(path string, pcm []byte, sampleRate, channels int) error {
	header := make([]byte, wavHeaderSize)
	dataLen := uint32(len(pcm))
	byteRate := uint32(sampleRate * channels * 2)
	blockAlign := uint16(channels * 2)

	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], 36+dataLen)
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(header[20:22], 1)  // PCM format
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], byteRate)
	binary.LittleEndian.PutUint16(header[32:34], blockAlign)
	binary.LittleEndian.PutUint16(header[34:36], 16) // bits per sample
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], dataLen)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(header); err != nil {
		return fmt.Errorf("failed to write WAV header: %w", err)
	}
	if _, err := f.Write(pcm); err != nil {
		return fmt.Errorf("failed to write WAV data: %w", err)
	}
	return nil
}

// ReadWAV reads a canonical PCM WAV file and returns the interleaved
// s16le samples with the declared sample rate and channel count.
func ReadWAV(path string) (pcm []byte, sampleRate, channels int, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(raw) < wavHeaderSize || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return nil, 0, 0, fmt.Errorf("%s is not a WAV file", path)
	}

	channels = int(binary.LittleEndian.Uint16(raw[22:24]))
	sampleRate = int(binary.LittleEndian.Uint32(raw[24:28]))
	dataLen := int(binary.LittleEndian.Uint32(raw[40:44]))
	if dataLen > len(raw)-wavHeaderSize {
		dataLen = len(raw) - wavHeaderSize
	}
	return raw[wavHeaderSize : wavHeaderSize+dataLen], sampleRate, channels, nil
}
