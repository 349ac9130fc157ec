//go:build !linux

package irio

import (
	"fmt"
	"log/slog"

	"github.com/teslashibe/kavach/pkg/ir"
)

// newLIRCOpener returns an error on non-Linux platforms.
func newLIRCOpener(string, *slog.Logger) (ir.ReceiverOpener, error) {
	return nil, fmt.Errorf("LIRC is only available on Linux")
}

// newLIRCTransmitter returns an error on non-Linux platforms.
func newLIRCTransmitter(string, *slog.Logger) (ir.Transmitter, error) {
	return nil, fmt.Errorf("LIRC is only available on Linux")
}
