package playback

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Sentinel errors for WAV loading.
var (
	ErrNotWAV   = errors.New("playback: not a RIFF/WAVE file")
	ErrNoData   = errors.New("playback: no data chunk")
	ErrFileSize = errors.New("playback: file size out of range")

	ErrUnsupportedFormat = errors.New("playback: unsupported WAV format")
)

// Asset format accepted for playback.
const (
	AssetSampleRate = 16000
	AssetBits       = 16

	// MinFileSize is exclusive, MaxFileSize inclusive.
	MinFileSize = 44
	MaxFileSize = 128 * 1024
)

// FormatError reports a WAV whose format cannot be played.
type FormatError struct {
	SampleRate    uint32
	BitsPerSample uint16
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("playback: need %d Hz %d-bit WAV, got %d Hz %d-bit",
		AssetSampleRate, AssetBits, e.SampleRate, e.BitsPerSample)
}

// Unwrap lets errors.Is match ErrUnsupportedFormat.
func (e *FormatError) Unwrap() error {
	return ErrUnsupportedFormat
}

// WAV is the PCM payload of a parsed file. PCM aliases the input buffer.
type WAV struct {
	SampleRate    uint32
	BitsPerSample uint16
	PCM           []byte
}

// ParseWAV walks the RIFF chunks of buf and returns the first data chunk.
// Sample rate and bit depth come from a preceding fmt chunk of at least 16
// bytes and default to 16000 Hz / 16 bit. The PCM length is rounded down
// to a multiple of 4 bytes. A chunk that runs past the end of buf stops
// the walk.
func ParseWAV(buf []byte) (*WAV, error) {
	if len(buf) < 12 || !bytes.Equal(buf[0:4], []byte("RIFF")) || !bytes.Equal(buf[8:12], []byte("WAVE")) {
		return nil, ErrNotWAV
	}

	sr := uint32(AssetSampleRate)
	bps := uint16(AssetBits)

	pos := 12
	for pos+8 <= len(buf) {
		id := buf[pos : pos+4]
		sz := binary.LittleEndian.Uint32(buf[pos+4 : pos+8])
		if uint64(sz) > uint64(len(buf)-pos-8) {
			break
		}
		n := int(sz)
		body := buf[pos+8 : pos+8+n]

		switch {
		case bytes.Equal(id, []byte("fmt ")) && n >= 16:
			sr = binary.LittleEndian.Uint32(body[4:8])
			bps = binary.LittleEndian.Uint16(body[14:16])
		case bytes.Equal(id, []byte("data")):
			if bps == 0 {
				bps = AssetBits
			}
			return &WAV{
				SampleRate:    sr,
				BitsPerSample: bps,
				PCM:           body[:n&^3],
			}, nil
		}
		pos += 8 + n
	}
	return nil, ErrNoData
}

// CheckFormat returns a *FormatError unless w is 16 kHz 16-bit.
func (w *WAV) CheckFormat() error {
	if w.SampleRate != AssetSampleRate || w.BitsPerSample != AssetBits {
		return &FormatError{SampleRate: w.SampleRate, BitsPerSample: w.BitsPerSample}
	}
	return nil
}

// CheckFileSize validates the size of a WAV file before it is read.
func CheckFileSize(size int64) error {
	if size <= MinFileSize || size > MaxFileSize {
		return fmt.Errorf("%w: %d bytes", ErrFileSize, size)
	}
	return nil
}
