package dispatch

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/teslashibe/kavach/pkg/sensor"
)

// SensorPublisher sends readings to the broker.
type SensorPublisher interface {
	PublishSensor(tempC, humidity float64) error
}

// SensorLoop publishes a temperature and humidity reading every interval
// while resumed. Resume and Pause follow the broker connection.
type SensorLoop struct {
	reader   sensor.Reader
	pub      SensorPublisher
	interval time.Duration
	logger   *slog.Logger

	active atomic.Bool
}

// NewSensorLoop creates a paused loop.
func NewSensorLoop(reader sensor.Reader, pub SensorPublisher, interval time.Duration, logger *slog.Logger) *SensorLoop {
	if logger == nil {
		logger = slog.Default()
	}
	return &SensorLoop{
		reader:   reader,
		pub:      pub,
		interval: interval,
		logger:   logger.With("component", "sensor"),
	}
}

// Resume starts publishing on the next tick.
func (l *SensorLoop) Resume() { l.active.Store(true) }

// Pause stops publishing until Resume.
func (l *SensorLoop) Pause() { l.active.Store(false) }

// Run ticks until ctx is cancelled. A non-positive interval returns at once.
func (l *SensorLoop) Run(ctx context.Context) {
	if l.interval <= 0 {
		return
	}
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if l.active.Load() {
				l.publish(ctx)
			}
		}
	}
}

func (l *SensorLoop) publish(ctx context.Context) {
	r, err := l.reader.Read(ctx)
	if err != nil {
		// skip this tick
		l.logger.Debug("sensor read failed", "error", err)
		return
	}
	if err := l.pub.PublishSensor(r.TempC, r.Humidity); err != nil {
		l.logger.Warn("sensor publish failed", "error", err)
	}
}
