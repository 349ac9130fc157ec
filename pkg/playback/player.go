// Package playback plays the assistant's prompt and alarm clips: WAV
// loading, asset lookup and a single consumer goroutine fed by a small
// non-blocking queue.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/kavach/pkg/audioio"
	"github.com/teslashibe/kavach/pkg/metrics"
)

// Kind is the type of a playback request.
type Kind int

const (
	KindBeep Kind = iota
	KindConfirm
	KindAlarm
)

func (k Kind) String() string {
	switch k {
	case KindBeep:
		return "beep"
	case KindConfirm:
		return "confirm"
	case KindAlarm:
		return "alarm"
	default:
		return "unknown"
	}
}

// Request is one queued clip.
type Request struct {
	Kind    Kind
	Confirm Confirm
}

// Config holds playback settings.
type Config struct {
	// Prefixes are the asset directories in lookup order.
	Prefixes []string `yaml:"prefixes" json:"prefixes"`

	// Language selects the confirmation voice ("en" or "cn").
	Language Language `yaml:"language" json:"language"`

	// Volume is restored after every clip (0-100).
	Volume int `yaml:"volume" json:"volume"`

	// VoiceConfirm enables the wake beep and confirmations. The gas alarm
	// always plays.
	VoiceConfirm bool `yaml:"voice_confirm" json:"voice_confirm"`

	QueueDepth     int `yaml:"queue_depth" json:"queue_depth"`
	UpsampleFactor int `yaml:"upsample_factor" json:"upsample_factor"`

	// AlarmChunkBytes is the write size between stop checks.
	AlarmChunkBytes int `yaml:"alarm_chunk_bytes" json:"alarm_chunk_bytes"`
}

// DefaultConfig returns the settings used on the device.
func DefaultConfig() Config {
	return Config{
		Prefixes:        append([]string(nil), DefaultPrefixes...),
		Language:        LangEN,
		Volume:          70,
		VoiceConfirm:    true,
		QueueDepth:      4,
		UpsampleFactor:  3,
		AlarmChunkBytes: 4096,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Volume < 0 || c.Volume > 100 {
		return fmt.Errorf("volume must be 0-100, got %d", c.Volume)
	}
	if c.QueueDepth <= 0 {
		return fmt.Errorf("queue depth must be positive, got %d", c.QueueDepth)
	}
	if c.UpsampleFactor <= 0 {
		return fmt.Errorf("upsample factor must be positive, got %d", c.UpsampleFactor)
	}
	if c.AlarmChunkBytes < 2 || c.AlarmChunkBytes%2 != 0 {
		return fmt.Errorf("alarm chunk must be a positive even byte count, got %d", c.AlarmChunkBytes)
	}
	return nil
}

// Mixer timings around every clip.
const (
	muteHold     = 20 * time.Millisecond
	unmuteSettle = 50 * time.Millisecond
	tailDelay    = 30 * time.Millisecond
)

// Player owns the audio sink. Requests are queued from any goroutine and
// played one at a time by Run.
type Player struct {
	cfg      Config
	sink     audioio.Sink
	resolver *Resolver
	logger   *slog.Logger

	queue chan Request
	done  chan struct{}

	mu   sync.Mutex
	lang Language

	playing   atomic.Bool
	alarmStop atomic.Bool
	handled   atomic.Int64

	sleep func(ctx context.Context, d time.Duration) error
}

// NewPlayer creates a player writing to sink. A nil resolver is built
// from cfg.Prefixes.
func NewPlayer(cfg Config, sink audioio.Sink, resolver *Resolver, logger *slog.Logger) (*Player, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid playback config: %w", err)
	}
	if sink == nil {
		return nil, errors.New("playback: nil sink")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if resolver == nil {
		resolver = NewResolver(cfg.Prefixes, logger)
	}
	return &Player{
		cfg:      cfg,
		sink:     sink,
		resolver: resolver,
		logger:   logger,
		queue:    make(chan Request, cfg.QueueDepth),
		done:     make(chan struct{}),
		lang:     ParseLanguage(string(cfg.Language)),
		sleep:    sleepCtx,
	}, nil
}

// Resolver returns the asset resolver.
func (p *Player) Resolver() *Resolver { return p.resolver }

// Language returns the confirmation voice.
func (p *Player) Language() Language {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lang
}

// IsPlaying reports whether a clip is being written to the sink. Speech
// recognition uses it to ignore the device's own output.
func (p *Player) IsPlaying() bool {
	return p.playing.Load()
}

// Handled returns the number of requests the consumer has finished with,
// whatever their outcome.
func (p *Player) Handled() int64 {
	return p.handled.Load()
}

// PlayWakeBeep queues the wake beep. It never blocks.
func (p *Player) PlayWakeBeep() bool {
	if !p.cfg.VoiceConfirm {
		return false
	}
	return p.enqueue(Request{Kind: KindBeep})
}

// PlayConfirmation queues a spoken confirmation. It never blocks.
func (p *Player) PlayConfirmation(c Confirm) bool {
	if !p.cfg.VoiceConfirm {
		return false
	}
	return p.enqueue(Request{Kind: KindConfirm, Confirm: c})
}

// PlayGasAlarm queues the gas alarm. It never blocks.
func (p *Player) PlayGasAlarm() bool {
	return p.enqueue(Request{Kind: KindAlarm})
}

// StopGasAlarm ends an alarm in progress after the current chunk.
func (p *Player) StopGasAlarm() {
	p.alarmStop.Store(true)
}

func (p *Player) enqueue(req Request) bool {
	select {
	case p.queue <- req:
		return true
	default:
		metrics.Playback.WithLabelValues(req.Kind.String(), "dropped").Inc()
		p.logger.Warn("playback queue full, dropping request", "kind", req.Kind)
		return false
	}
}

// Run starts the sink and plays queued requests until ctx is cancelled.
func (p *Player) Run(ctx context.Context) error {
	defer close(p.done)

	if err := p.sink.Start(ctx); err != nil {
		return fmt.Errorf("start audio sink: %w", err)
	}
	defer p.sink.Stop()

	p.logger.Info("playback started", "backend", p.sink.Name(), "prefixes", p.resolver.Prefixes())

	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-p.queue:
			p.handle(ctx, req)
			p.handled.Add(1)
		}
	}
}

// Done is closed when Run returns.
func (p *Player) Done() <-chan struct{} {
	return p.done
}

func (p *Player) handle(ctx context.Context, req Request) {
	var names []string
	switch req.Kind {
	case KindBeep:
		names = WakeBeepNames()
	case KindConfirm:
		names = ConfirmNames(p.Language(), req.Confirm)
	case KindAlarm:
		p.alarmStop.Store(false)
		names = []string{GasAlarmName}
	default:
		return
	}

	path, w, err := p.resolver.Resolve(names...)
	if err != nil {
		metrics.Playback.WithLabelValues(req.Kind.String(), "missing").Inc()
		p.logger.Warn("no playable asset", "kind", req.Kind, "names", names, "prefixes", p.resolver.Prefixes())
		return
	}

	samples := audioio.Upsample(audioio.BytesToSamples(w.PCM), p.cfg.UpsampleFactor)
	rate := int(w.SampleRate) * p.cfg.UpsampleFactor

	stopped, err := p.play(ctx, req.Kind, samples, rate)
	switch {
	case err != nil:
		metrics.Playback.WithLabelValues(req.Kind.String(), "failed").Inc()
		p.logger.Error("playback failed", "kind", req.Kind, "path", path, "error", err)
	case stopped:
		metrics.Playback.WithLabelValues(req.Kind.String(), "stopped").Inc()
		p.logger.Info("gas alarm stopped", "path", path)
	default:
		metrics.Playback.WithLabelValues(req.Kind.String(), "played").Inc()
		p.logger.Debug("played", "kind", req.Kind, "path", path, "samples", len(samples))
	}
}

// play wraps the write in the mixer sequence and reports whether an alarm
// was cut short.
func (p *Player) play(ctx context.Context, kind Kind, samples []int16, rate int) (bool, error) {
	mixer, _ := p.sink.(audioio.VolumeController)
	if mixer != nil {
		p.mixer(mixer.SetVolume(100))
		p.mixer(mixer.SetMute(true))
		if err := p.sleep(ctx, muteHold); err != nil {
			return false, err
		}
		p.mixer(mixer.SetMute(false))
		if err := p.sleep(ctx, unmuteSettle); err != nil {
			return false, err
		}
	}

	p.playing.Store(true)
	var (
		stopped bool
		err     error
	)
	if kind == KindAlarm {
		stopped, err = p.writeChunked(ctx, samples, rate)
	} else {
		err = p.sink.Write(ctx, audioio.AudioChunk{Samples: samples, SampleRate: rate, Channels: 1})
		if err == nil {
			err = p.sink.Flush(ctx)
		}
	}
	p.playing.Store(false)

	if mixer != nil {
		p.sleep(ctx, tailDelay)
		p.mixer(mixer.SetVolume(p.cfg.Volume))
	}
	return stopped, err
}

func (p *Player) writeChunked(ctx context.Context, samples []int16, rate int) (bool, error) {
	step := p.cfg.AlarmChunkBytes / 2
	for off := 0; off < len(samples); off += step {
		if p.alarmStop.Load() {
			p.sink.Clear()
			return true, nil
		}
		end := min(off+step, len(samples))
		chunk := audioio.AudioChunk{Samples: samples[off:end], SampleRate: rate, Channels: 1}
		if err := p.sink.Write(ctx, chunk); err != nil {
			return false, err
		}
	}
	if p.alarmStop.Load() {
		p.sink.Clear()
		return true, nil
	}
	return false, p.sink.Flush(ctx)
}

func (p *Player) mixer(err error) {
	if err != nil {
		p.logger.Debug("mixer control failed", "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
