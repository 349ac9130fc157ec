package ir

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/kavach/pkg/metrics"
)

// Carrier describes the modulation used when transmitting.
type Carrier struct {
	FrequencyHz  int     `yaml:"frequency_hz" json:"frequency_hz"`
	DutyCycle    float64 `yaml:"duty_cycle" json:"duty_cycle"`
	ResolutionHz int     `yaml:"resolution_hz" json:"resolution_hz"`
}

// DefaultCarrier is 38 kHz at 33% duty, 1 MHz ticks.
func DefaultCarrier() Carrier {
	return Carrier{FrequencyHz: 38000, DutyCycle: 0.33, ResolutionHz: ResolutionHz}
}

// Transmitter opens transmit channels on IR hardware.
type Transmitter interface {
	OpenChannel(c Carrier) (Channel, error)
}

// Channel sends symbol runs on an open, modulated output.
type Channel interface {
	// Transmit sends symbols and returns once they are on air.
	Transmit(ctx context.Context, symbols []Symbol) error
	Close() error
}

// TransmitRequest is one command to replay. The pipeline owns it once
// enqueued.
type TransmitRequest struct {
	ID     string
	Slot   Slot
	Bursts []RawBurst
}

// TransmitConfig configures the transmit pipeline.
type TransmitConfig struct {
	Carrier Carrier `yaml:"carrier" json:"carrier"`

	// QueueDepth is the number of requests that may wait.
	QueueDepth int `yaml:"queue_depth" json:"queue_depth"`

	// Tick is the granularity of inter-burst sleeps. Gaps are truncated to
	// a whole number of ticks.
	Tick time.Duration `yaml:"tick" json:"tick"`
}

// DefaultTransmitConfig returns the pipeline defaults.
func DefaultTransmitConfig() TransmitConfig {
	return TransmitConfig{
		Carrier:    DefaultCarrier(),
		QueueDepth: 4,
		Tick:       time.Millisecond,
	}
}

// Validate checks the configuration.
func (c *TransmitConfig) Validate() error {
	if c.Carrier.FrequencyHz <= 0 {
		return fmt.Errorf("carrier frequency must be positive, got %d", c.Carrier.FrequencyHz)
	}
	if c.Carrier.DutyCycle <= 0 || c.Carrier.DutyCycle >= 1 {
		return fmt.Errorf("duty cycle must be in (0,1), got %v", c.Carrier.DutyCycle)
	}
	if c.QueueDepth <= 0 {
		return fmt.Errorf("queue_depth must be positive, got %d", c.QueueDepth)
	}
	return nil
}

// Pipeline replays commands on a single consumer goroutine.
type Pipeline struct {
	cfg    TransmitConfig
	tx     Transmitter
	store  *Store
	logger *slog.Logger

	queue chan *TransmitRequest
	done  chan struct{}

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPipeline creates a transmit pipeline. Call Run to start consuming.
func NewPipeline(cfg TransmitConfig, tx Transmitter, store *Store, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 4
	}
	return &Pipeline{
		cfg:    cfg,
		tx:     tx,
		store:  store,
		logger: logger.With("component", "ir-tx"),
		queue:  make(chan *TransmitRequest, cfg.QueueDepth),
		done:   make(chan struct{}),
		sleep:  sleepCtx,
	}
}

// Run consumes requests until ctx is cancelled or Shutdown is called.
func (p *Pipeline) Run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-p.queue:
			if req == nil {
				p.logger.Debug("transmit consumer stopping")
				return
			}
			p.transmit(ctx, req)
		}
	}
}

// Done is closed when Run returns.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// Enqueue hands req to the consumer without blocking. It returns false
// and drops the request when the queue is full.
func (p *Pipeline) Enqueue(req *TransmitRequest) bool {
	if req == nil {
		return false
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	select {
	case p.queue <- req:
		return true
	default:
		p.logger.Warn("transmit queue full, dropping", "request", req.ID, "slot", req.Slot)
		metrics.IRTransmits.WithLabelValues("dropped").Inc()
		return false
	}
}

// Send loads the stored command for slot and enqueues it. It returns false
// when nothing is stored or the queue is full.
func (p *Pipeline) Send(slot Slot) bool {
	if p.store == nil {
		return false
	}
	bursts, err := p.store.Load(slot)
	if err != nil {
		p.logger.Warn("no command to send", "slot", slot, "error", err)
		metrics.IRTransmits.WithLabelValues("missing").Inc()
		return false
	}
	return p.Enqueue(&TransmitRequest{Slot: slot, Bursts: bursts})
}

// HasCodes reports whether both ON and OFF commands are stored.
func (p *Pipeline) HasCodes() bool {
	return p.store != nil && p.store.Exists()
}

// Shutdown asks the consumer to exit after the requests already queued.
// It blocks while the queue is full.
func (p *Pipeline) Shutdown() {
	select {
	case p.queue <- nil:
	case <-p.done:
	}
}

func (p *Pipeline) transmit(ctx context.Context, req *TransmitRequest) {
	ch, err := p.tx.OpenChannel(p.cfg.Carrier)
	if err != nil {
		p.logger.Error("open transmit channel", "request", req.ID, "error", err)
		metrics.IRTransmits.WithLabelValues("failed").Inc()
		return
	}
	defer func() {
		if err := ch.Close(); err != nil {
			p.logger.Warn("close transmit channel", "error", err)
		}
	}()

	start := time.Now()
	for i, b := range req.Bursts {
		if err := p.sleep(ctx, p.gapDelay(b.Gap)); err != nil {
			return
		}
		if err := ch.Transmit(ctx, b.Symbols); err != nil {
			p.logger.Error("transmit burst", "request", req.ID, "burst", i, "error", err)
			metrics.IRTransmits.WithLabelValues("failed").Inc()
			return
		}
	}

	metrics.IRTransmits.WithLabelValues("sent").Inc()
	p.logger.Info("command sent",
		"request", req.ID,
		"slot", req.Slot,
		"bursts", len(req.Bursts),
		"elapsed", time.Since(start),
	)
}

func (p *Pipeline) gapDelay(gapMicros uint32) time.Duration {
	d := time.Duration(gapMicros) * time.Microsecond
	if p.cfg.Tick > 0 {
		d = d.Truncate(p.cfg.Tick)
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
