// Package audioio provides audio playback for prompts and alarms.
//
// This package supports multiple backends:
//   - aplay (Linux) - PCM piped to alsa-utils' aplay, volume via amixer
//   - Mock - CI/Testing without hardware
//
// The backend is selected automatically based on the platform, or can be
// explicitly specified via configuration.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto automatically selects the best available backend.
	BackendAuto Backend = "auto"
	// BackendAplay pipes PCM into aplay.
	BackendAplay Backend = "aplay"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// Config holds audio output configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	// Default: "auto"
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the output sample rate in Hz.
	// Default: 48000 (16 kHz assets upsampled 3x)
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels.
	// Default: 1 (mono)
	Channels int `yaml:"channels" json:"channels"`

	// BufferDuration is the device buffer length.
	// Default: 100ms
	BufferDuration time.Duration `yaml:"buffer_duration" json:"buffer_duration"`

	// Device is the ALSA device, e.g. "default" or "plughw:1,0".
	Device string `yaml:"device" json:"device"`

	// MixerControl is the amixer control used for volume and mute.
	MixerControl string `yaml:"mixer_control" json:"mixer_control"`

	// FlushTimeout bounds how long Flush waits for playback to drain.
	FlushTimeout time.Duration `yaml:"flush_timeout" json:"flush_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     48000,
		Channels:       1,
		BufferDuration: 100 * time.Millisecond,
		Device:         "default",
		MixerControl:   "PCM",
		FlushTimeout:   30 * time.Second,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	return nil
}
