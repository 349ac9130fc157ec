package irio

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/kavach/pkg/ir"
)

// Codes replayed by the mock receiver for odd (ON) and even (OFF) presses.
const (
	MockOnCode  uint32 = 0x20DF10EF
	MockOffCode uint32 = 0x20DF906F
)

// NECSamples renders a 32-bit code as mode2 samples: 9 ms leader, 4.5 ms
// space, LSB-first pulse-distance bits and a stop pulse, then a timeout.
func NECSamples(code uint32) []Sample {
	out := []Sample{
		{Kind: KindPulse, Micros: 9000},
		{Kind: KindSpace, Micros: 4500},
	}
	for i := 0; i < 32; i++ {
		space := uint32(560)
		if code&(1<<i) != 0 {
			space = 1690
		}
		out = append(out,
			Sample{Kind: KindPulse, Micros: 560},
			Sample{Kind: KindSpace, Micros: space},
		)
	}
	return append(out,
		Sample{Kind: KindPulse, Micros: 560},
		Sample{Kind: KindTimeout},
	)
}

type scriptStep struct {
	delay  time.Duration
	sample Sample
}

// scriptReader replays samples in real time, with optional pauses.
type scriptReader struct {
	steps  []scriptStep
	closed chan struct{}
	once   sync.Once
}

func newScriptReader(steps []scriptStep) *scriptReader {
	return &scriptReader{steps: steps, closed: make(chan struct{})}
}

func (r *scriptReader) ReadSample() (Sample, error) {
	if len(r.steps) == 0 {
		<-r.closed
		return Sample{}, io.EOF
	}
	st := r.steps[0]
	r.steps = r.steps[1:]

	// A device reports a pulse or space once it has ended.
	wait := st.delay
	if st.sample.Kind == KindPulse || st.sample.Kind == KindSpace {
		wait += time.Duration(st.sample.Micros) * time.Microsecond
	}
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-t.C:
		case <-r.closed:
			return Sample{}, io.EOF
		}
	}
	return st.sample, nil
}

func (r *scriptReader) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}

// MockOpener opens receivers that play back a full learn: Count presses
// alternating MockOnCode and MockOffCode.
type MockOpener struct {
	logger *slog.Logger

	// PressDelay is the pause before each press. Zero uses twice the
	// configured press gap.
	PressDelay time.Duration
}

// NewMockOpener creates a mock receiver opener.
func NewMockOpener(logger *slog.Logger) *MockOpener {
	if logger == nil {
		logger = slog.Default()
	}
	return &MockOpener{logger: logger}
}

// OpenReceiver implements ir.ReceiverOpener.
func (m *MockOpener) OpenReceiver(cfg ir.LearnConfig) (ir.Receiver, error) {
	delay := m.PressDelay
	if delay <= 0 {
		delay = 2 * cfg.PressGap
	}
	var steps []scriptStep
	for press := 1; press <= cfg.Count; press++ {
		code := MockOnCode
		if press%2 == 0 {
			code = MockOffCode
		}
		for i, smp := range NECSamples(code) {
			st := scriptStep{sample: smp}
			if i == 0 {
				st.delay = delay
			}
			steps = append(steps, st)
		}
	}
	m.logger.Info("mock ir receiver open", "presses", cfg.Count)
	return newReceiver(cfg, newScriptReader(steps), m.logger), nil
}

// Transmission is one burst recorded by MockTransmitter.
type Transmission struct {
	Carrier ir.Carrier
	Pulses  []uint32
	At      time.Time
}

// MockTransmitter records every burst it is asked to send.
type MockTransmitter struct {
	logger *slog.Logger

	mu   sync.Mutex
	sent []Transmission
}

// NewMockTransmitter creates a recording transmitter.
func NewMockTransmitter(logger *slog.Logger) *MockTransmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MockTransmitter{logger: logger}
}

// OpenChannel implements ir.Transmitter.
func (m *MockTransmitter) OpenChannel(c ir.Carrier) (ir.Channel, error) {
	return &mockChannel{tx: m, carrier: c}, nil
}

// Sent returns a copy of the recorded transmissions.
func (m *MockTransmitter) Sent() []Transmission {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transmission, len(m.sent))
	copy(out, m.sent)
	return out
}

type mockChannel struct {
	tx      *MockTransmitter
	carrier ir.Carrier
}

func (c *mockChannel) Transmit(ctx context.Context, symbols []ir.Symbol) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pulses := EncodePulses(symbols, c.carrier.ResolutionHz)
	c.tx.mu.Lock()
	c.tx.sent = append(c.tx.sent, Transmission{Carrier: c.carrier, Pulses: pulses, At: time.Now()})
	c.tx.mu.Unlock()
	c.tx.logger.Debug("mock ir burst sent", "pulses", len(pulses))
	return nil
}

func (c *mockChannel) Close() error {
	return nil
}
