package audioio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// MockSink is a mock audio sink for testing.
// It keeps every written chunk and records mixer calls.
type MockSink struct {
	cfg    Config
	logger *slog.Logger

	// WriteDelay simulates the time a device takes to accept a chunk.
	WriteDelay time.Duration

	mu      sync.Mutex
	running bool
	closed  bool
	chunks  []AudioChunk
	mixer   []string
	volume  int
	muted   bool

	// Stats
	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
}

// NewMockSink creates a new mock audio sink.
func NewMockSink(cfg Config, logger *slog.Logger) *MockSink {
	if logger == nil {
		logger = slog.Default()
	}

	return &MockSink{
		cfg:    cfg,
		logger: logger,
		chunks: make([]AudioChunk, 0, 16),
		volume: 100,
	}
}

// Start begins accepting audio.
func (m *MockSink) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}

	m.running = true
	m.logger.Debug("mock audio sink started")

	return nil
}

// Stop halts audio acceptance.
func (m *MockSink) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.running = false
	return nil
}

// Write accepts an audio chunk.
func (m *MockSink) Write(ctx context.Context, chunk AudioChunk) error {
	if m.WriteDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.WriteDelay):
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || !m.running {
		return io.ErrClosedPipe
	}

	samples := make([]int16, len(chunk.Samples))
	copy(samples, chunk.Samples)
	chunk.Samples = samples
	m.chunks = append(m.chunks, chunk)

	m.chunksWritten.Add(1)
	m.samplesWritten.Add(int64(len(chunk.Samples)))

	return nil
}

// Flush returns immediately.
func (m *MockSink) Flush(ctx context.Context) error {
	return ctx.Err()
}

// Clear drops recorded chunks.
func (m *MockSink) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.chunks = m.chunks[:0]
	return nil
}

// SetVolume records the level.
func (m *MockSink) SetVolume(level int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.volume = level
	m.mixer = append(m.mixer, fmt.Sprintf("volume %d", level))
	return nil
}

// SetMute records the mute state.
func (m *MockSink) SetMute(mute bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.muted = mute
	if mute {
		m.mixer = append(m.mixer, "mute")
	} else {
		m.mixer = append(m.mixer, "unmute")
	}
	return nil
}

// Chunks returns copies of the chunks written so far.
func (m *MockSink) Chunks() []AudioChunk {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]AudioChunk, len(m.chunks))
	copy(out, m.chunks)
	return out
}

// Samples returns every written sample in order.
func (m *MockSink) Samples() []int16 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []int16
	for _, c := range m.chunks {
		out = append(out, c.Samples...)
	}
	return out
}

// MixerLog returns the volume and mute calls in order.
func (m *MockSink) MixerLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.mixer...)
}

// Volume returns the last level set.
func (m *MockSink) Volume() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

// Config returns the audio configuration.
func (m *MockSink) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSink) Name() string {
	return "mock"
}

// Close releases resources.
func (m *MockSink) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	return m.Stop()
}

// Stats returns sink statistics.
func (m *MockSink) Stats() SinkStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	return SinkStats{
		ChunksWritten:  m.chunksWritten.Load(),
		SamplesWritten: m.samplesWritten.Load(),
		Running:        running,
		Backend:        "mock",
	}
}

var (
	_ SinkWithStats    = (*MockSink)(nil)
	_ VolumeController = (*MockSink)(nil)
)
