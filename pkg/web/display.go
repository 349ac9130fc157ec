package web

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/kavach/pkg/hub"
	"github.com/teslashibe/kavach/pkg/ui"
)

// Overlay durations.
const (
	FlashDuration    = 1200 * time.Millisecond
	GasDuration      = 3 * time.Second
	IntruderDuration = 3 * time.Second
)

// Mode is the screen layout.
type Mode string

const (
	ModeClock Mode = "clock"
	ModeVoice Mode = "voice"
)

// Overlay is a full-screen alert shown over the current mode.
type Overlay string

const (
	OverlayNone     Overlay = ""
	OverlayFlash    Overlay = "flash"
	OverlayGas      Overlay = "gas"
	OverlayIntruder Overlay = "intruder"
)

// State is what the dashboard renders.
type State struct {
	Mode       Mode      `json:"mode"`
	Status     string    `json:"status"`
	Style      string    `json:"style"`
	Light      ui.Light  `json:"light"`
	LightColor string    `json:"light_color"`
	Overlay    Overlay   `json:"overlay,omitempty"`
	Updated    time.Time `json:"updated"`
}

func styleName(s ui.StatusStyle) string {
	switch s {
	case ui.StyleSuccess:
		return "success"
	case ui.StyleWarning:
		return "warning"
	default:
		return "normal"
	}
}

func lightColor(l ui.Light) string {
	return fmt.Sprintf("#%06X", l.Color())
}

// DisplayConfig configures the render loop.
type DisplayConfig struct {
	WakePrompt     string        `yaml:"wake_prompt" json:"wake_prompt"`
	RenderInterval time.Duration `yaml:"render_interval" json:"render_interval"`
	AsyncQueue     int           `yaml:"async_queue" json:"async_queue"`
}

// DefaultDisplayConfig returns the default render settings.
func DefaultDisplayConfig() DisplayConfig {
	return DisplayConfig{
		WakePrompt:     `Say "Hi Kavach"`,
		RenderInterval: 150 * time.Millisecond,
		AsyncQueue:     16,
	}
}

// Display implements ui.Display by keeping dashboard state and pushing it
// to websocket clients. Async updates are applied by Run.
type Display struct {
	cfg    DisplayConfig
	hub    *hub.Hub
	logger *slog.Logger

	pending chan func(*State)

	mu           sync.Mutex
	state        State
	overlayUntil time.Time
	onGasDone    func()

	now func() time.Time
}

var _ ui.Display = (*Display)(nil)

// NewDisplay creates a display in clock mode showing the wake prompt. h may
// be nil when nothing is listening.
func NewDisplay(cfg DisplayConfig, h *hub.Hub, logger *slog.Logger) *Display {
	if cfg.RenderInterval <= 0 {
		cfg.RenderInterval = DefaultDisplayConfig().RenderInterval
	}
	if cfg.AsyncQueue <= 0 {
		cfg.AsyncQueue = DefaultDisplayConfig().AsyncQueue
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Display{
		cfg:     cfg,
		hub:     h,
		logger:  logger.With("component", "display"),
		pending: make(chan func(*State), cfg.AsyncQueue),
		now:     time.Now,
	}
	d.state = State{
		Mode:       ModeClock,
		Status:     cfg.WakePrompt,
		Style:      styleName(ui.StyleNormal),
		Light:      ui.LightIdle,
		LightColor: lightColor(ui.LightIdle),
		Updated:    d.now(),
	}
	return d
}

// OnGasDismissed sets the hook run when the gas overlay goes away.
func (d *Display) OnGasDismissed(fn func()) {
	d.mu.Lock()
	d.onGasDone = fn
	d.mu.Unlock()
}

// Snapshot returns the current state.
func (d *Display) Snapshot() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// WakePrompt returns the idle status text.
func (d *Display) WakePrompt() string { return d.cfg.WakePrompt }

// SetStatus shows text in the normal style.
func (d *Display) SetStatus(text string) {
	d.update(func(s *State) {
		s.Status = text
		s.Style = styleName(ui.StyleNormal)
	})
}

// SetLight sets the status light.
func (d *Display) SetLight(l ui.Light) {
	d.update(func(s *State) { setLight(s, l) })
}

// SetVoiceMode switches between the voice layout and the clock.
func (d *Display) SetVoiceMode(on bool) {
	d.update(func(s *State) {
		if on {
			s.Mode = ModeVoice
		} else {
			s.Mode = ModeClock
		}
	})
}

// SetStatusAsync queues a styled status for the next render. Safe from any
// goroutine; a full queue drops the update.
func (d *Display) SetStatusAsync(text string, style ui.StatusStyle) {
	d.enqueue(func(s *State) {
		s.Status = text
		s.Style = styleName(style)
	})
}

// SetLightAsync queues a light change for the next render.
func (d *Display) SetLightAsync(l ui.Light) {
	d.enqueue(func(s *State) { setLight(s, l) })
}

// TriggerAlertFlash shows the alert flash.
func (d *Display) TriggerAlertFlash() { d.showOverlay(OverlayFlash, FlashDuration) }

// TriggerGasLeakAlert shows the gas leak overlay.
func (d *Display) TriggerGasLeakAlert() { d.showOverlay(OverlayGas, GasDuration) }

// TriggerIntruderAlert shows the intruder overlay.
func (d *Display) TriggerIntruderAlert() { d.showOverlay(OverlayIntruder, IntruderDuration) }

// Run publishes the current state, then applies queued updates and
// expires overlays every render interval until ctx is cancelled.
func (d *Display) Run(ctx context.Context) {
	d.broadcast(d.Snapshot())

	ticker := time.NewTicker(d.cfg.RenderInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.render()
		}
	}
}

// render is one pass of the render loop.
func (d *Display) render() {
	var applied []func(*State)
drain:
	for {
		select {
		case fn := <-d.pending:
			applied = append(applied, fn)
		default:
			break drain
		}
	}

	d.mu.Lock()
	changed := false
	if len(applied) > 0 {
		for _, fn := range applied {
			fn(&d.state)
		}
		// deferred updates come from voice-mode flows
		d.state.Mode = ModeVoice
		changed = true
	}
	dismissed := d.expireOverlayLocked()
	if dismissed != OverlayNone {
		changed = true
	}
	var hook func()
	if dismissed == OverlayGas {
		hook = d.onGasDone
	}
	if changed {
		d.state.Updated = d.now()
	}
	state := d.state
	d.mu.Unlock()

	if dismissed != OverlayNone {
		d.logger.Debug("overlay dismissed", "overlay", dismissed)
	}
	if hook != nil {
		hook()
	}
	if changed {
		d.broadcast(state)
	}
}

// expireOverlayLocked clears an overlay whose time is up and returns it.
func (d *Display) expireOverlayLocked() Overlay {
	if d.state.Overlay == OverlayNone || d.now().Before(d.overlayUntil) {
		return OverlayNone
	}
	o := d.state.Overlay
	d.state.Overlay = OverlayNone
	d.state.Mode = ModeClock
	return o
}

func (d *Display) showOverlay(o Overlay, dur time.Duration) {
	var hook func()
	d.mu.Lock()
	if d.state.Overlay == OverlayGas && o != OverlayGas {
		// replacing the gas overlay dismisses it
		hook = d.onGasDone
	}
	d.state.Overlay = o
	d.overlayUntil = d.now().Add(dur)
	d.state.Updated = d.now()
	state := d.state
	d.mu.Unlock()

	d.logger.Info("overlay shown", "overlay", o, "for", dur)
	if hook != nil {
		hook()
	}
	d.broadcast(state)
}

func (d *Display) update(fn func(*State)) {
	d.mu.Lock()
	fn(&d.state)
	d.state.Updated = d.now()
	state := d.state
	d.mu.Unlock()
	d.broadcast(state)
}

func (d *Display) enqueue(fn func(*State)) {
	select {
	case d.pending <- fn:
	default:
		d.logger.Warn("display update queue full, dropping update")
	}
}

func (d *Display) broadcast(s State) {
	if d.hub == nil {
		return
	}
	if err := d.hub.BroadcastJSON(s); err != nil {
		d.logger.Warn("state broadcast failed", "error", err)
	}
}

func setLight(s *State, l ui.Light) {
	s.Light = l
	s.LightColor = lightColor(l)
}
