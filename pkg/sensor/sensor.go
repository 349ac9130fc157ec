// Package sensor reads room temperature and humidity.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrNoDevice is returned when no humidity/temperature device is found.
var ErrNoDevice = errors.New("sensor: no IIO humiture device")

// Reading is one temperature and humidity sample.
type Reading struct {
	TempC    float64   `json:"temp"`
	Humidity float64   `json:"hum"`
	At       time.Time `json:"at"`
}

// Reader returns the current reading.
type Reader interface {
	Read(ctx context.Context) (Reading, error)
}

// Config selects the sensor backend.
type Config struct {
	// Backend is "iio", "mock" or "auto" (iio when a device is found).
	Backend string `yaml:"backend" json:"backend"`

	// Device is the IIO device directory. Empty searches IIORoot.
	Device string `yaml:"device" json:"device"`
}

// IIORoot is where the kernel lists industrial I/O devices.
const IIORoot = "/sys/bus/iio/devices"

// Attribute files, in milli-degrees Celsius and milli-percent.
const (
	tempFile     = "in_temp_input"
	humidityFile = "in_humidityrelative_input"
)

// DefaultConfig returns auto detection.
func DefaultConfig() Config {
	return Config{Backend: "auto"}
}

// New returns the reader selected by cfg.
func New(cfg Config) (Reader, error) {
	switch cfg.Backend {
	case "mock":
		return NewStatic(24.0, 50.0), nil
	case "iio":
		return openIIO(cfg.Device)
	case "auto", "":
		if r, err := openIIO(cfg.Device); err == nil {
			return r, nil
		}
		return NewStatic(24.0, 50.0), nil
	default:
		return nil, fmt.Errorf("unknown sensor backend %q", cfg.Backend)
	}
}

func openIIO(dir string) (*IIO, error) {
	if dir != "" {
		return NewIIO(dir)
	}
	matches, _ := filepath.Glob(filepath.Join(IIORoot, "iio:device*"))
	for _, m := range matches {
		if r, err := NewIIO(m); err == nil {
			return r, nil
		}
	}
	return nil, ErrNoDevice
}

// IIO reads a Linux IIO humiture device such as an SHTC3 or HTS221.
type IIO struct {
	dir string
}

// NewIIO checks dir for temperature and humidity attributes.
func NewIIO(dir string) (*IIO, error) {
	for _, f := range []string{tempFile, humidityFile} {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrNoDevice, dir)
		}
	}
	return &IIO{dir: dir}, nil
}

// Dir returns the device directory.
func (s *IIO) Dir() string { return s.dir }

// Read samples both channels.
func (s *IIO) Read(ctx context.Context) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}
	t, err := readMilli(filepath.Join(s.dir, tempFile))
	if err != nil {
		return Reading{}, err
	}
	h, err := readMilli(filepath.Join(s.dir, humidityFile))
	if err != nil {
		return Reading{}, err
	}
	return Reading{TempC: t, Humidity: h, At: time.Now()}, nil
}

func readMilli(path string) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return float64(v) / 1000, nil
}

// Static is a Reader returning a settable value.
type Static struct {
	mu sync.Mutex
	r  Reading
}

// NewStatic returns a reader fixed at the given values.
func NewStatic(tempC, humidity float64) *Static {
	return &Static{r: Reading{TempC: tempC, Humidity: humidity}}
}

// Set changes the reported values.
func (s *Static) Set(tempC, humidity float64) {
	s.mu.Lock()
	s.r.TempC, s.r.Humidity = tempC, humidity
	s.mu.Unlock()
}

// Read returns the current values.
func (s *Static) Read(ctx context.Context) (Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.r
	r.At = time.Now()
	return r, ctx.Err()
}
