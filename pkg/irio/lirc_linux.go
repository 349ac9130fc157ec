//go:build linux

package irio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/teslashibe/kavach/pkg/ir"
)

// ioctl requests from <linux/lirc.h>.
const (
	lircGetFeatures      = 0x80046900
	lircSetSendMode      = 0x40046911
	lircSetRecMode       = 0x40046912
	lircSetSendCarrier   = 0x40046913
	lircSetSendDutyCycle = 0x40046915
	lircSetRecTimeout    = 0x40046918

	lircModePulse = 0x00000002
	lircModeMode2 = 0x00000004

	lircCanSendPulse        = 0x00000002
	lircCanSetSendCarrier   = 0x00000100
	lircCanSetSendDutyCycle = 0x00000200
	lircCanRecMode2         = 0x00040000
	lircCanSetRecTimeout    = 0x10000000
)

type lircOpener struct {
	path   string
	logger *slog.Logger
}

func newLIRCOpener(path string, logger *slog.Logger) (ir.ReceiverOpener, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("lirc receiver: %w", err)
	}
	return &lircOpener{path: path, logger: logger}, nil
}

func (o *lircOpener) OpenReceiver(cfg ir.LearnConfig) (ir.Receiver, error) {
	dev := cfg.Device
	if dev == "" {
		dev = o.path
	}
	f, err := os.OpenFile(dev, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dev, err)
	}
	fd := int(f.Fd())

	features, err := unix.IoctlGetUint32(fd, lircGetFeatures)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: get features: %w", dev, err)
	}
	if features&lircCanRecMode2 == 0 {
		f.Close()
		return nil, fmt.Errorf("%s: device cannot record mode2", dev)
	}
	if err := unix.IoctlSetPointerInt(fd, lircSetRecMode, lircModeMode2); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: set mode2: %w", dev, err)
	}
	if features&lircCanSetRecTimeout != 0 {
		us := int(cfg.FrameGap.Microseconds())
		if err := unix.IoctlSetPointerInt(fd, lircSetRecTimeout, us); err != nil {
			o.logger.Warn("lirc: set receive timeout", "device", dev, "error", err)
		}
	}

	o.logger.Info("lirc receiver open", "device", dev, "features", fmt.Sprintf("%#x", features))
	return newReceiver(cfg, &lircReader{f: f}, o.logger), nil
}

// lircReader decodes the mode2 word stream of an open device.
type lircReader struct {
	f       *os.File
	buf     [4 * 64]byte
	pending []uint32
}

func (r *lircReader) ReadSample() (Sample, error) {
	for len(r.pending) == 0 {
		n, err := r.f.Read(r.buf[:])
		if err != nil {
			return Sample{}, err
		}
		if n == 0 {
			return Sample{}, io.EOF
		}
		for i := 0; i+4 <= n; i += 4 {
			r.pending = append(r.pending, binary.LittleEndian.Uint32(r.buf[i:]))
		}
	}
	w := r.pending[0]
	r.pending = r.pending[1:]
	return DecodeMode2(w), nil
}

func (r *lircReader) Close() error {
	return r.f.Close()
}

type lircTransmitter struct {
	path   string
	logger *slog.Logger
}

func newLIRCTransmitter(path string, logger *slog.Logger) (ir.Transmitter, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("lirc transmitter: %w", err)
	}
	return &lircTransmitter{path: path, logger: logger}, nil
}

func (t *lircTransmitter) OpenChannel(c ir.Carrier) (ir.Channel, error) {
	f, err := os.OpenFile(t.path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", t.path, err)
	}
	fd := int(f.Fd())

	features, err := unix.IoctlGetUint32(fd, lircGetFeatures)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: get features: %w", t.path, err)
	}
	if features&lircCanSendPulse == 0 {
		f.Close()
		return nil, fmt.Errorf("%s: device cannot send pulses", t.path)
	}
	if err := unix.IoctlSetPointerInt(fd, lircSetSendMode, lircModePulse); err != nil {
		t.logger.Debug("lirc: set send mode", "error", err)
	}
	if features&lircCanSetSendCarrier != 0 {
		if err := unix.IoctlSetPointerInt(fd, lircSetSendCarrier, c.FrequencyHz); err != nil {
			f.Close()
			return nil, fmt.Errorf("%s: set carrier: %w", t.path, err)
		}
	}
	if features&lircCanSetSendDutyCycle != 0 {
		duty := int(c.DutyCycle*100 + 0.5)
		if err := unix.IoctlSetPointerInt(fd, lircSetSendDutyCycle, duty); err != nil {
			t.logger.Warn("lirc: set duty cycle", "duty", duty, "error", err)
		}
	}

	return &lircChannel{f: f, resolutionHz: c.ResolutionHz}, nil
}

type lircChannel struct {
	mu           sync.Mutex
	f            *os.File
	resolutionHz int
}

// Transmit writes the pulse list. The driver returns once it is sent.
func (c *lircChannel) Transmit(ctx context.Context, symbols []ir.Symbol) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pulses := EncodePulses(symbols, c.resolutionHz)
	if len(pulses) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(pulses))
	for i, p := range pulses {
		binary.LittleEndian.PutUint32(buf[i*4:], p)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.f.Write(buf)
	return err
}

func (c *lircChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.f.Close()
}
