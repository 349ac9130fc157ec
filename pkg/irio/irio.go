// Package irio connects package ir to infrared hardware.
//
// Backends:
//   - LIRC (Linux) - /dev/lirc* in mode2 for capture, pulse mode for send
//   - Mock - scripted captures and recorded transmissions, no hardware
package irio

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/teslashibe/kavach/pkg/ir"
)

// Backend names an IR hardware backend.
type Backend string

const (
	BackendAuto Backend = "auto"
	BackendLIRC Backend = "lirc"
	BackendMock Backend = "mock"
)

// Config selects and configures the IR backend.
type Config struct {
	Backend Backend `yaml:"backend" json:"backend"`

	// RXDevice and TXDevice are LIRC character devices. They may be the
	// same device when the hardware does both.
	RXDevice string `yaml:"rx_device" json:"rx_device"`
	TXDevice string `yaml:"tx_device" json:"tx_device"`
}

// DefaultConfig returns the auto backend on /dev/lirc0.
func DefaultConfig() Config {
	return Config{
		Backend:  BackendAuto,
		RXDevice: "/dev/lirc0",
		TXDevice: "/dev/lirc0",
	}
}

func (c Config) resolve() Backend {
	if c.Backend != BackendAuto && c.Backend != "" {
		return c.Backend
	}
	if runtime.GOOS == "linux" {
		return BackendLIRC
	}
	return BackendMock
}

// NewOpener returns the receiver opener for the configured backend.
func NewOpener(cfg Config, logger *slog.Logger) (ir.ReceiverOpener, error) {
	if logger == nil {
		logger = slog.Default()
	}
	backend := cfg.resolve()
	logger.Info("creating ir receiver", "backend", backend, "device", cfg.RXDevice)

	switch backend {
	case BackendMock:
		return NewMockOpener(logger), nil
	case BackendLIRC:
		return newLIRCOpener(cfg.RXDevice, logger)
	default:
		return nil, fmt.Errorf("unsupported ir backend: %s", backend)
	}
}

// NewTransmitter returns the transmitter for the configured backend.
func NewTransmitter(cfg Config, logger *slog.Logger) (ir.Transmitter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	backend := cfg.resolve()
	logger.Info("creating ir transmitter", "backend", backend, "device", cfg.TXDevice)

	switch backend {
	case BackendMock:
		return NewMockTransmitter(logger), nil
	case BackendLIRC:
		return newLIRCTransmitter(cfg.TXDevice, logger)
	default:
		return nil, fmt.Errorf("unsupported ir backend: %s", backend)
	}
}
