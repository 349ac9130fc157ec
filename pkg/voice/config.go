package voice

import (
	"errors"
	"time"
)

// Config holds the recognizer source settings.
type Config struct {
	// Input is the path the recognizer writes to. "-" or empty reads stdin.
	Input string `yaml:"input" json:"input"`

	// WakePrompt is shown while waiting for the wake word.
	WakePrompt string `yaml:"wake_prompt" json:"wake_prompt"`

	// ListenTimeout ends the listening window when no command arrives.
	// Zero leaves timeouts to the recognizer.
	ListenTimeout time.Duration `yaml:"listen_timeout" json:"listen_timeout"`

	// EventBuffer is the depth of the event channel.
	EventBuffer int `yaml:"event_buffer" json:"event_buffer"`
}

// DefaultConfig returns the settings used on the device.
func DefaultConfig() Config {
	return Config{
		Input:         "-",
		WakePrompt:    `Say "Hi Kavach"`,
		ListenTimeout: 6 * time.Second,
		EventBuffer:   8,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.EventBuffer <= 0 {
		return errors.New("event_buffer must be positive")
	}
	if c.ListenTimeout < 0 {
		return errors.New("listen_timeout must not be negative")
	}
	return nil
}
