package ir

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/kavach/pkg/metrics"
	"github.com/teslashibe/kavach/pkg/ui"
)

// Phase is a receiver progress marker: one of the terminal markers below or
// a learn step counter starting at 1.
type Phase int

const (
	PhaseReady Phase = -1
	PhaseEnd   Phase = -2
	PhaseFail  Phase = -3
	PhaseExit  Phase = -4
)

// IsStep reports whether p is a step counter.
func (p Phase) IsStep() bool {
	return p >= 1
}

func (p Phase) String() string {
	switch p {
	case PhaseReady:
		return "ready"
	case PhaseEnd:
		return "end"
	case PhaseFail:
		return "fail"
	case PhaseExit:
		return "exit"
	default:
		return fmt.Sprintf("step %d", int(p))
	}
}

// Event is one notification from a learning receiver. For step events
// Bursts holds every burst of the current step so far; the newest is last.
type Event struct {
	Phase   Phase
	SubStep int
	Bursts  []RawBurst
}

// Receiver is an open learning receiver. It delivers events until it is
// stopped or reaches a terminal phase, then closes the channel.
// Stop must be safe to call from the goroutine draining Events.
type Receiver interface {
	Events() <-chan Event
	Stop() error
}

// ReceiverOpener creates receivers for learn sessions.
type ReceiverOpener interface {
	OpenReceiver(cfg LearnConfig) (Receiver, error)
}

// LearnConfig configures a learn session and its receiver.
type LearnConfig struct {
	// Count is the number of presses to capture, alternating ON and OFF.
	Count int `yaml:"count" json:"count"`

	// Device is the receiver device, e.g. /dev/lirc0.
	Device string `yaml:"device" json:"device"`

	// ResolutionHz is the tick rate of captured symbols.
	ResolutionHz int `yaml:"resolution_hz" json:"resolution_hz"`

	// PressGap separates presses: bursts closer than this belong to the
	// same press.
	PressGap time.Duration `yaml:"press_gap" json:"press_gap"`

	// FrameGap is the silence that ends one burst.
	FrameGap time.Duration `yaml:"frame_gap" json:"frame_gap"`

	// Timeout bounds the whole session.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	Tolerance Tolerance `yaml:"tolerance" json:"tolerance"`
}

// DefaultLearnConfig returns the settings used for AC remotes.
func DefaultLearnConfig() LearnConfig {
	return LearnConfig{
		Count:        4,
		Device:       "/dev/lirc0",
		ResolutionHz: ResolutionHz,
		PressGap:     300 * time.Millisecond,
		FrameGap:     20 * time.Millisecond,
		Timeout:      60 * time.Second,
		Tolerance:    DefaultTolerance(),
	}
}

// Validate checks the configuration.
func (c *LearnConfig) Validate() error {
	if c.Count < 2 {
		return fmt.Errorf("learn count must be at least 2, got %d", c.Count)
	}
	if c.ResolutionHz <= 0 {
		return fmt.Errorf("resolution_hz must be positive, got %d", c.ResolutionHz)
	}
	if c.FrameGap <= 0 || c.PressGap <= c.FrameGap {
		return fmt.Errorf("press_gap (%v) must exceed frame_gap (%v)", c.PressGap, c.FrameGap)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	return nil
}

// Result is delivered to the completion callback exactly once per session.
type Result struct {
	SessionID string
	OK        bool
	Err       error

	// OnValid and OffValid report whether each slot passed validation.
	// A session can succeed with either false.
	OnValid  bool
	OffValid bool
}

// Callback receives the outcome of a learn session.
type Callback func(Result)

// UI prompts shown while learning.
const (
	PromptOnCaptured  = "AC On received & saved. Now press AC Off."
	PromptOffCaptured = "AC Off received & saved. Finishing..."
)

// Session drives learning of the ON/OFF command pair. At most one learn is
// active at a time; the zero value is not usable, use NewSession.
type Session struct {
	cfg    LearnConfig
	opener ReceiverOpener
	store  *Store
	notify ui.Notifier
	logger *slog.Logger

	mu     sync.Mutex
	active bool
	id     string
	rx     Receiver
	cb     Callback
	on     Capture
	off    Capture
}

// NewSession creates a learn session writing to store. notify may be nil.
func NewSession(cfg LearnConfig, opener ReceiverOpener, store *Store, notify ui.Notifier, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if notify == nil {
		notify = ui.Nop{}
	}
	return &Session{
		cfg:    cfg,
		opener: opener,
		store:  store,
		notify: notify,
		logger: logger.With("component", "ir-learn"),
	}
}

// Active reports whether a learn is in progress.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Start begins learning. If a session is already active, cb is invoked
// with ErrSessionActive and the running session is left untouched.
func (s *Session) Start(cb Callback) error {
	if cb == nil {
		cb = func(Result) {}
	}

	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		cb(Result{Err: ErrSessionActive})
		return ErrSessionActive
	}

	s.on.Reset()
	s.off.Reset()

	rx, err := s.opener.OpenReceiver(s.cfg)
	if err != nil {
		s.mu.Unlock()
		err = fmt.Errorf("open receiver: %w", err)
		s.logger.Error("learn start failed", "error", err)
		metrics.LearnSessions.WithLabelValues("error").Inc()
		cb(Result{Err: err})
		return err
	}

	id := uuid.NewString()
	s.id = id
	s.rx = rx
	s.cb = cb
	s.active = true
	s.mu.Unlock()

	s.logger.Info("learn started", "session", id, "count", s.cfg.Count)
	go s.consume(id, rx)
	return nil
}

// Stop cancels an active session. The callback reports failure with
// ErrCancelled. Stop is a no-op when idle.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	id, rx, cb := s.id, s.rx, s.cb
	s.resetLocked()
	s.mu.Unlock()

	if err := rx.Stop(); err != nil {
		s.logger.Warn("stop receiver", "error", err)
	}
	s.logger.Info("learn cancelled", "session", id)
	metrics.LearnSessions.WithLabelValues("cancelled").Inc()
	cb(Result{SessionID: id, Err: ErrCancelled})
}

// OnBurstClassified records the newest burst of a learn step. Odd steps
// capture ON, even steps OFF; subStep 1 opens a new repetition.
func (s *Session) OnBurstClassified(step, subStep int, bursts []RawBurst) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.classifyLocked(step, subStep, bursts)
}

// OnTerminal finishes the active session on PhaseEnd or PhaseFail. Other
// phases are ignored.
func (s *Session) OnTerminal(phase Phase) {
	if phase != PhaseEnd && phase != PhaseFail {
		return
	}
	s.mu.Lock()
	id := s.id
	s.mu.Unlock()
	s.finish(id, phase)
}

func (s *Session) consume(id string, rx Receiver) {
	for ev := range rx.Events() {
		switch {
		case ev.Phase.IsStep():
			s.mu.Lock()
			if s.active && s.id == id {
				s.classifyLocked(int(ev.Phase), ev.SubStep, ev.Bursts)
			}
			s.mu.Unlock()
		case ev.Phase == PhaseEnd, ev.Phase == PhaseFail:
			s.finish(id, ev.Phase)
		case ev.Phase == PhaseReady:
			s.logger.Debug("receiver ready", "session", id)
		}
	}
	// A receiver that goes away without a terminal phase fails the session.
	s.finish(id, PhaseFail)
}

func (s *Session) classifyLocked(step, subStep int, bursts []RawBurst) {
	if step < 1 || step > s.cfg.Count || len(bursts) == 0 {
		return
	}
	newest := bursts[len(bursts)-1]
	if len(newest.Symbols) == 0 {
		return
	}
	if len(newest.Symbols) > MaxSymbols {
		s.logger.Warn("burst too long, dropped",
			"step", step,
			"symbols", len(newest.Symbols),
			"max", MaxSymbols,
		)
		return
	}

	slot := SlotForStep(step)
	if slot == SlotOn {
		s.on.Append(newest, subStep == 1)
		s.notify.SetStatusAsync(PromptOnCaptured, ui.StyleNormal)
	} else {
		s.off.Append(newest, subStep == 1)
		s.notify.SetStatusAsync(PromptOffCaptured, ui.StyleNormal)
	}
	s.notify.SetLightAsync(ui.LightCommandOK)

	s.logger.Debug("burst captured",
		"step", step,
		"sub_step", subStep,
		"slot", slot,
		"symbols", len(newest.Symbols),
		"gap_us", newest.Gap,
	)
}

func (s *Session) finish(id string, phase Phase) {
	s.mu.Lock()
	if !s.active || s.id != id {
		s.mu.Unlock()
		return
	}
	res := s.evaluateLocked(phase)
	rx, cb := s.rx, s.cb
	s.resetLocked()
	s.mu.Unlock()

	if err := rx.Stop(); err != nil {
		s.logger.Warn("stop receiver", "error", err)
	}
	if res.OK {
		metrics.LearnSessions.WithLabelValues("success").Inc()
	} else {
		metrics.LearnSessions.WithLabelValues("failure").Inc()
	}
	cb(res)
}

func (s *Session) evaluateLocked(phase Phase) Result {
	res := Result{SessionID: s.id}

	onBursts, onValid, onErr := s.on.Resolve(s.cfg.Tolerance)
	offBursts, offValid, offErr := s.off.Resolve(s.cfg.Tolerance)
	haveOn, haveOff := !s.on.Empty(), !s.off.Empty()
	res.OnValid, res.OffValid = onValid, offValid

	if !((onValid && offValid) || (haveOn && haveOff)) {
		s.logger.Warn("learn failed",
			"phase", phase,
			"on_valid", onValid,
			"off_valid", offValid,
			"have_on", haveOn,
			"have_off", haveOff,
		)
		res.Err = fmt.Errorf("%w: on captured=%t, off captured=%t", ErrLearnFailed, haveOn, haveOff)
		return res
	}

	if !onValid || !offValid {
		s.logger.Warn("validation had warnings, saving anyway",
			"on_error", onErr,
			"off_error", offErr,
		)
	}

	if err := s.store.Save(SlotOn, onBursts); err != nil {
		s.logger.Error("save on command", "error", err)
		res.Err = fmt.Errorf("save on command: %w", err)
		return res
	}
	if err := s.store.Save(SlotOff, offBursts); err != nil {
		s.logger.Error("save off command", "error", err)
		res.Err = fmt.Errorf("save off command: %w", err)
		return res
	}

	s.logger.Info("learn ok, on/off saved",
		"session", s.id,
		"on_bursts", len(onBursts),
		"off_bursts", len(offBursts),
	)
	res.OK = true
	return res
}

func (s *Session) resetLocked() {
	s.active = false
	s.id = ""
	s.rx = nil
	s.cb = nil
	s.on.Reset()
	s.off.Reset()
}
