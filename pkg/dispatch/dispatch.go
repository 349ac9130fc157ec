// Package dispatch maps recognised commands, broker alerts and button
// presses onto the display, the broker, audio and the IR transmitter.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/teslashibe/kavach/pkg/ir"
	"github.com/teslashibe/kavach/pkg/journal"
	"github.com/teslashibe/kavach/pkg/metrics"
	"github.com/teslashibe/kavach/pkg/playback"
	"github.com/teslashibe/kavach/pkg/ui"
	"github.com/teslashibe/kavach/pkg/voice"
)

// Publisher sends messages to the broker.
type Publisher interface {
	PublishHelp(phrase string) error
	PublishAppliance(device, state string) error
}

// Audio queues prompt and alarm playback.
type Audio interface {
	PlayWakeBeep() bool
	PlayConfirmation(c playback.Confirm) bool
	PlayGasAlarm() bool
	StopGasAlarm()
}

// Remote replays learned IR commands.
type Remote interface {
	HasCodes() bool
	Send(slot ir.Slot) bool
}

// Learner runs IR learn sessions.
type Learner interface {
	Active() bool
	Start(cb ir.Callback) error
	Stop()
}

// Recorder keeps a history of handled events.
type Recorder interface {
	Record(ctx context.Context, kind journal.Kind, name, detail string) error
}

// UI texts.
const (
	StatusSayCommand = "Say command"
	StatusAlertSent  = "Alert sent"
	StatusHelp       = "Help"

	EmergencyPhrase = "Emergency - home button"

	PromptLearnStart  = "IR learn: press AC On then AC Off"
	PromptLearnOK     = `Remote recorded! Say "Turn on/off the Air" to control AC.`
	PromptLearnFailed = "IR learn failed or cancelled. Long-press home to try again."
)

// Button is a home button gesture.
type Button int

const (
	ButtonShort Button = iota
	ButtonLong
)

func (b Button) String() string {
	if b == ButtonLong {
		return "long"
	}
	return "short"
}

// ParseButton accepts "short" or "long".
func ParseButton(s string) (Button, error) {
	switch s {
	case "short":
		return ButtonShort, nil
	case "long":
		return ButtonLong, nil
	default:
		return 0, fmt.Errorf("unknown button press %q", s)
	}
}

// ErrLearnActive is returned for button presses ignored during a learn.
var ErrLearnActive = errors.New("dispatch: IR learn in progress")

// action is one row of the command table.
type action struct {
	status  string // empty shows the spoken phrase
	light   ui.Light
	confirm playback.Confirm

	help bool

	device string
	state  string

	// remote replays slot when codes are stored, else publishes device/state
	remote bool
	slot   ir.Slot
}

var commandTable = map[voice.CommandID]action{
	voice.CmdHelpAlert:      {status: StatusAlertSent, light: ui.LightAlert, confirm: playback.ConfirmAlerted, help: true},
	voice.CmdCallFamily:     {light: ui.LightCommandOK, confirm: playback.ConfirmCalling, help: true},
	voice.CmdHelp:           {status: StatusHelp, light: ui.LightCommandOK, confirm: playback.ConfirmHelp, help: true},
	voice.CmdLightOn:        {light: ui.LightCommandOK, device: "light1", state: "ON"},
	voice.CmdLightOff:       {light: ui.LightCommandOK, device: "light1", state: "OFF"},
	voice.CmdFanOn:          {light: ui.LightCommandOK, device: "fan1", state: "ON"},
	voice.CmdFanOff:         {light: ui.LightCommandOK, device: "fan1", state: "OFF"},
	voice.CmdACOn:           {light: ui.LightCommandOK, device: "ac1", state: "ON", remote: true, slot: ir.SlotOn},
	voice.CmdACOff:          {light: ui.LightCommandOK, device: "ac1", state: "OFF", remote: true, slot: ir.SlotOff},
	voice.CmdPlay:           {light: ui.LightCommandOK, device: "player", state: "PLAY"},
	voice.CmdPause:          {light: ui.LightCommandOK, device: "player", state: "PAUSE"},
	voice.CmdNext:           {light: ui.LightCommandOK, device: "player", state: "NEXT"},
	voice.CmdSetRed:         {light: ui.LightCommandOK, device: "light1", state: "RED"},
	voice.CmdSetGreen:       {light: ui.LightCommandOK, device: "light1", state: "GREEN"},
	voice.CmdSetBlue:        {light: ui.LightCommandOK, device: "light1", state: "BLUE"},
	voice.CmdCustomizeColor: {light: ui.LightCommandOK, device: "light1", state: "CUSTOMIZE"},
}

var unknownAction = action{light: ui.LightCommandOK, device: "unknown", state: "ON"}

// Deps are the dispatcher's collaborators. Journal may be nil.
type Deps struct {
	Display   ui.Display
	Publisher Publisher
	Audio     Audio
	Remote    Remote
	Learner   Learner
	Journal   Recorder
}

// alertQueueDepth bounds alert journal entries waiting for Run.
const alertQueueDepth = 16

type pendingEntry struct {
	kind   journal.Kind
	name   string
	detail string
}

// Dispatcher handles assistant events. Every method returns without
// waiting for audio, IR or the broker. Alerts arrive on broker callbacks,
// so their journal entries are written by Run.
type Dispatcher struct {
	Deps
	logger  *slog.Logger
	pending chan pendingEntry
}

// New creates a dispatcher.
func New(deps Deps, logger *slog.Logger) (*Dispatcher, error) {
	switch {
	case deps.Display == nil:
		return nil, errors.New("dispatch: display is required")
	case deps.Publisher == nil:
		return nil, errors.New("dispatch: publisher is required")
	case deps.Audio == nil:
		return nil, errors.New("dispatch: audio is required")
	case deps.Remote == nil:
		return nil, errors.New("dispatch: remote is required")
	case deps.Learner == nil:
		return nil, errors.New("dispatch: learner is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		Deps:    deps,
		logger:  logger.With("component", "dispatch"),
		pending: make(chan pendingEntry, alertQueueDepth),
	}, nil
}

// Run handles events from src and writes queued alert entries until src
// closes or ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, src voice.Source) error {
	defer d.flushPending()

	events := src.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-d.pending:
			d.record(ctx, e.kind, e.name, e.detail)
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			d.HandleVoice(ctx, ev)
		}
	}
}

func (d *Dispatcher) flushPending() {
	for {
		select {
		case e := <-d.pending:
			d.record(context.Background(), e.kind, e.name, e.detail)
		default:
			return
		}
	}
}

// HandleVoice handles one recognition event.
func (d *Dispatcher) HandleVoice(ctx context.Context, ev voice.Event) {
	switch ev.Kind {
	case voice.EventTimeout:
		d.Display.SetVoiceMode(false)
		d.Display.SetStatus(d.Display.WakePrompt())
		d.Display.SetLight(ui.LightIdle)
		d.record(ctx, journal.KindVoice, "timeout", "")

	case voice.EventWake:
		d.Audio.PlayWakeBeep()
		d.Display.SetVoiceMode(true)
		d.Display.SetStatus(StatusSayCommand)
		d.Display.SetLight(ui.LightListening)
		d.record(ctx, journal.KindVoice, "wake", "")

	case voice.EventCommand:
		d.HandleCommand(ctx, ev.Command)
	}
}

// HandleCommand runs the table entry for cmd.
func (d *Dispatcher) HandleCommand(ctx context.Context, cmd voice.Command) {
	act, ok := commandTable[cmd.ID]
	if !ok {
		act = unknownAction
	}
	d.logger.Info("command", "command", cmd.ID, "phrase", cmd.Phrase)
	metrics.Commands.WithLabelValues(cmd.ID.String()).Inc()

	status := act.status
	if status == "" {
		status = cmd.Phrase
	}
	d.Display.SetStatus(status)
	d.Display.SetLight(act.light)
	d.Audio.PlayConfirmation(act.confirm)

	detail := ""
	switch {
	case act.help:
		d.publish("help", d.Publisher.PublishHelp(cmd.Phrase))
	case act.remote && d.Remote.HasCodes():
		if !d.Remote.Send(act.slot) {
			d.logger.Warn("IR send not queued", "slot", act.slot)
		}
		detail = "ir:" + act.slot.String()
	default:
		d.publish("appliance", d.Publisher.PublishAppliance(act.device, act.state))
		detail = act.device + ":" + act.state
	}
	d.record(ctx, journal.KindCommand, cmd.ID.String(), detail)
}

// HandleGasLeak shows the gas overlay and sounds the alarm.
func (d *Dispatcher) HandleGasLeak(payload string) {
	d.Display.TriggerGasLeakAlert()
	d.Audio.PlayGasAlarm()
	d.recordLater(journal.KindAlert, "gas", payload)
}

// HandleIntruder shows the intruder overlay.
func (d *Dispatcher) HandleIntruder(payload string) {
	d.Display.TriggerIntruderAlert()
	d.recordLater(journal.KindAlert, "intruder", payload)
}

// GasAlertDismissed stops the alarm when the overlay goes away.
func (d *Dispatcher) GasAlertDismissed() {
	d.Audio.StopGasAlarm()
}

// Press handles a home button gesture. Both gestures are ignored while an
// IR learn is running.
func (d *Dispatcher) Press(ctx context.Context, b Button) error {
	if d.Learner.Active() {
		d.logger.Debug("button ignored during IR learn", "press", b)
		return ErrLearnActive
	}
	d.record(ctx, journal.KindButton, b.String(), "")

	if b == ButtonLong {
		return d.StartLearn(ctx)
	}

	d.logger.Info("home button: sending emergency")
	d.Display.SetStatus(StatusAlertSent)
	d.Display.SetLight(ui.LightAlert)
	d.Display.TriggerAlertFlash()
	d.publish("help", d.Publisher.PublishHelp(EmergencyPhrase))
	return nil
}

// StartLearn begins recording the AC remote and reports the outcome on
// the display.
func (d *Dispatcher) StartLearn(ctx context.Context) error {
	d.logger.Info("starting IR learn")
	d.Display.SetVoiceMode(true)
	d.Display.SetStatusAsync(PromptLearnStart, ui.StyleNormal)
	d.Display.SetLightAsync(ui.LightListening)
	return d.Learner.Start(d.learnDone)
}

// CancelLearn stops a running learn; the display shows the failure prompt.
func (d *Dispatcher) CancelLearn() {
	d.Learner.Stop()
}

func (d *Dispatcher) learnDone(res ir.Result) {
	if errors.Is(res.Err, ir.ErrSessionActive) {
		// the running session reports for itself
		return
	}

	outcome := "success"
	if res.OK {
		d.Display.SetStatusAsync(PromptLearnOK, ui.StyleSuccess)
		d.Display.SetLightAsync(ui.LightCommandOK)
	} else {
		outcome = "failure"
		d.Display.SetStatusAsync(PromptLearnFailed, ui.StyleWarning)
		d.Display.SetLightAsync(ui.LightIdle)
	}

	detail := res.SessionID
	if res.Err != nil {
		detail += ": " + res.Err.Error()
	}
	d.logger.Info("IR learn finished", "ok", res.OK, "session", res.SessionID,
		"on_valid", res.OnValid, "off_valid", res.OffValid, "error", res.Err)
	d.record(context.Background(), journal.KindLearn, outcome, detail)
}

func (d *Dispatcher) publish(what string, err error) {
	if err != nil {
		d.logger.Warn("publish failed", "what", what, "error", err)
	}
}

func (d *Dispatcher) record(ctx context.Context, kind journal.Kind, name, detail string) {
	if d.Journal == nil {
		return
	}
	if err := d.Journal.Record(ctx, kind, name, detail); err != nil {
		d.logger.Warn("journal write failed", "kind", kind, "name", name, "error", err)
	}
}

// recordLater queues an entry for Run. A full queue drops the entry.
func (d *Dispatcher) recordLater(kind journal.Kind, name, detail string) {
	if d.Journal == nil {
		return
	}
	select {
	case d.pending <- pendingEntry{kind: kind, name: name, detail: detail}:
	default:
		d.logger.Warn("journal queue full, entry dropped", "kind", kind, "name", name)
	}
}
