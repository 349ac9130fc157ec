package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/kavach/pkg/ir"
	"github.com/teslashibe/kavach/pkg/journal"
	"github.com/teslashibe/kavach/pkg/playback"
	"github.com/teslashibe/kavach/pkg/sensor"
	"github.com/teslashibe/kavach/pkg/ui"
	"github.com/teslashibe/kavach/pkg/voice"
)

// recorder collects calls from every fake in call order.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
	r.mu.Unlock()
}

func (r *recorder) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.calls
	r.calls = nil
	return out
}

type fakeDisplay struct{ r *recorder }

func (d fakeDisplay) SetStatusAsync(s string, st ui.StatusStyle) { d.r.add("status~ %s [%d]", s, st) }
func (d fakeDisplay) SetLightAsync(l ui.Light)                   { d.r.add("light~ %s", l) }
func (d fakeDisplay) SetStatus(s string)                         { d.r.add("status %s", s) }
func (d fakeDisplay) SetLight(l ui.Light)                        { d.r.add("light %s", l) }
func (d fakeDisplay) SetVoiceMode(on bool)                       { d.r.add("voice %v", on) }
func (d fakeDisplay) WakePrompt() string                         { return "Say Hi Kavach" }
func (d fakeDisplay) TriggerAlertFlash()                         { d.r.add("flash") }
func (d fakeDisplay) TriggerGasLeakAlert()                       { d.r.add("gas overlay") }
func (d fakeDisplay) TriggerIntruderAlert()                      { d.r.add("intruder overlay") }

type fakePublisher struct {
	r   *recorder
	err error
}

func (p fakePublisher) PublishHelp(phrase string) error {
	p.r.add("help %s", phrase)
	return p.err
}

func (p fakePublisher) PublishAppliance(device, state string) error {
	p.r.add("appliance %s %s", device, state)
	return p.err
}

type fakeAudio struct{ r *recorder }

func (a fakeAudio) PlayWakeBeep() bool                       { a.r.add("beep"); return true }
func (a fakeAudio) PlayConfirmation(c playback.Confirm) bool { a.r.add("confirm %s", c); return true }
func (a fakeAudio) PlayGasAlarm() bool                       { a.r.add("alarm"); return true }
func (a fakeAudio) StopGasAlarm()                            { a.r.add("stop alarm") }

type fakeRemote struct {
	r     *recorder
	codes bool
}

func (f fakeRemote) HasCodes() bool { return f.codes }
func (f fakeRemote) Send(slot ir.Slot) bool {
	f.r.add("ir %s", slot)
	return true
}

type fakeLearner struct {
	mu     sync.Mutex
	active bool
	cb     ir.Callback
	starts int
}

func (l *fakeLearner) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

func (l *fakeLearner) Start(cb ir.Callback) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.starts++
	l.active = true
	l.cb = cb
	return nil
}

func (l *fakeLearner) Stop() {
	l.finish(ir.Result{Err: ir.ErrCancelled})
}

func (l *fakeLearner) finish(res ir.Result) {
	l.mu.Lock()
	cb := l.cb
	l.active = false
	l.cb = nil
	l.mu.Unlock()
	if cb != nil {
		cb(res)
	}
}

type memJournal struct {
	mu      sync.Mutex
	entries []string
}

func (j *memJournal) Record(_ context.Context, kind journal.Kind, name, detail string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, string(kind)+"/"+name+"/"+detail)
	return nil
}

func (j *memJournal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// blockingJournal holds every write until release is closed.
type blockingJournal struct {
	memJournal
	release chan struct{}
}

func (j *blockingJournal) Record(ctx context.Context, kind journal.Kind, name, detail string) error {
	<-j.release
	return j.memJournal.Record(ctx, kind, name, detail)
}

type fixture struct {
	d       *Dispatcher
	r       *recorder
	learner *fakeLearner
	journal *memJournal
}

func newFixture(t *testing.T, codes bool, pubErr error) *fixture {
	t.Helper()
	r := &recorder{}
	f := &fixture{r: r, learner: &fakeLearner{}, journal: &memJournal{}}
	d, err := New(Deps{
		Display:   fakeDisplay{r},
		Publisher: fakePublisher{r: r, err: pubErr},
		Audio:     fakeAudio{r},
		Remote:    fakeRemote{r: r, codes: codes},
		Learner:   f.learner,
		Journal:   f.journal,
	}, nil)
	require.NoError(t, err)
	f.d = d
	return f
}

func cmd(id voice.CommandID) voice.Command {
	c, _ := voice.Lookup(id)
	return c
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Deps{}, nil)
	assert.Error(t, err)
}

func TestHandleVoice_WakeAndTimeout(t *testing.T) {
	f := newFixture(t, false, nil)
	ctx := context.Background()

	f.d.HandleVoice(ctx, voice.Event{Kind: voice.EventWake})
	assert.Equal(t, []string{"beep", "voice true", "status Say command", "light listening"}, f.r.take())

	f.d.HandleVoice(ctx, voice.Event{Kind: voice.EventTimeout})
	assert.Equal(t, []string{"voice false", "status Say Hi Kavach", "light idle"}, f.r.take())
}

func TestHandleCommand_Table(t *testing.T) {
	tests := []struct {
		name string
		id   voice.CommandID
		want []string
	}{
		{"help alert", voice.CmdHelpAlert, []string{"status Alert sent", "light alert", "confirm alerted", "help Help me"}},
		{"call family", voice.CmdCallFamily, []string{"status Call my family", "light command_ok", "confirm calling", "help Call my family"}},
		{"help", voice.CmdHelp, []string{"status Help", "light command_ok", "confirm help", "help What can you do"}},
		{"light on", voice.CmdLightOn, []string{"status Turn on the light", "light command_ok", "confirm ok", "appliance light1 ON"}},
		{"fan off", voice.CmdFanOff, []string{"status Turn off the fan", "light command_ok", "confirm ok", "appliance fan1 OFF"}},
		{"ac on without codes", voice.CmdACOn, []string{"status Turn on the Air", "light command_ok", "confirm ok", "appliance ac1 ON"}},
		{"next", voice.CmdNext, []string{"status Next song", "light command_ok", "confirm ok", "appliance player NEXT"}},
		{"green", voice.CmdSetGreen, []string{"status Set to green", "light command_ok", "confirm ok", "appliance light1 GREEN"}},
		{"customize", voice.CmdCustomizeColor, []string{"status Customize color", "light command_ok", "confirm ok", "appliance light1 CUSTOMIZE"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false, nil)
			f.d.HandleCommand(context.Background(), cmd(tt.id))
			assert.Equal(t, tt.want, f.r.take())
		})
	}
}

func TestHandleCommand_ACUsesLearnedCodes(t *testing.T) {
	f := newFixture(t, true, nil)
	f.d.HandleCommand(context.Background(), cmd(voice.CmdACOff))

	assert.Equal(t, []string{"status Turn off the Air", "light command_ok", "confirm ok", "ir off"}, f.r.take())
	assert.Equal(t, []string{"command/ac_off/ir:off"}, f.journal.entries)
}

func TestHandleCommand_Unknown(t *testing.T) {
	f := newFixture(t, false, nil)
	f.d.HandleCommand(context.Background(), voice.Command{ID: voice.CmdUnknown, Phrase: "sing a song"})

	assert.Equal(t, []string{"status sing a song", "light command_ok", "confirm ok", "appliance unknown ON"}, f.r.take())
}

func TestHandleCommand_PublishErrorIsNotFatal(t *testing.T) {
	f := newFixture(t, false, errors.New("not connected"))
	f.d.HandleCommand(context.Background(), cmd(voice.CmdPlay))

	calls := f.r.take()
	require.Len(t, calls, 4)
	assert.Equal(t, "appliance player PLAY", calls[3])
	assert.Len(t, f.journal.entries, 1)
}

func TestAlerts(t *testing.T) {
	f := newFixture(t, false, nil)

	f.d.HandleGasLeak(`{"state":"LEAK"}`)
	assert.Equal(t, []string{"gas overlay", "alarm"}, f.r.take())

	f.d.GasAlertDismissed()
	assert.Equal(t, []string{"stop alarm"}, f.r.take())

	f.d.HandleIntruder(`{"motion":"detected"}`)
	assert.Equal(t, []string{"intruder overlay"}, f.r.take())

	// Alert entries are written by Run, not by the broker callback.
	assert.Empty(t, f.journal.list())
	src := make(chanSource)
	close(src)
	require.NoError(t, f.d.Run(context.Background(), src))

	assert.Equal(t, []string{
		`alert/gas/{"state":"LEAK"}`,
		`alert/intruder/{"motion":"detected"}`,
	}, f.journal.list())
}

func TestAlerts_DoNotWaitForJournal(t *testing.T) {
	r := &recorder{}
	j := &blockingJournal{release: make(chan struct{})}
	d, err := New(Deps{
		Display:   fakeDisplay{r},
		Publisher: fakePublisher{r: r},
		Audio:     fakeAudio{r},
		Remote:    fakeRemote{r: r},
		Learner:   &fakeLearner{},
		Journal:   j,
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, make(chanSource)) }()

	handled := make(chan struct{})
	go func() {
		for i := 0; i < alertQueueDepth+4; i++ {
			d.HandleGasLeak("LEAK")
		}
		close(handled)
	}()
	select {
	case <-handled:
	case <-time.After(time.Second):
		t.Fatal("alert handling blocked on the journal")
	}

	close(j.release)
	cancel()
	require.NoError(t, <-done)
	n := len(j.list())
	assert.GreaterOrEqual(t, n, alertQueueDepth)
	assert.LessOrEqual(t, n, alertQueueDepth+4)
}

func TestPress_ShortSendsEmergency(t *testing.T) {
	f := newFixture(t, false, nil)

	require.NoError(t, f.d.Press(context.Background(), ButtonShort))
	assert.Equal(t, []string{
		"status Alert sent",
		"light alert",
		"flash",
		"help Emergency - home button",
	}, f.r.take())
}

func TestPress_LongStartsLearn(t *testing.T) {
	f := newFixture(t, false, nil)
	ctx := context.Background()

	require.NoError(t, f.d.Press(ctx, ButtonLong))
	assert.Equal(t, []string{
		"voice true",
		fmt.Sprintf("status~ %s [%d]", PromptLearnStart, ui.StyleNormal),
		"light~ listening",
	}, f.r.take())
	assert.True(t, f.learner.Active())

	// both gestures are ignored while learning
	assert.ErrorIs(t, f.d.Press(ctx, ButtonShort), ErrLearnActive)
	assert.ErrorIs(t, f.d.Press(ctx, ButtonLong), ErrLearnActive)
	assert.Empty(t, f.r.take())
	assert.Equal(t, 1, f.learner.starts)

	f.learner.finish(ir.Result{SessionID: "s1", OK: true, OnValid: true, OffValid: true})
	assert.Equal(t, []string{
		fmt.Sprintf("status~ %s [%d]", PromptLearnOK, ui.StyleSuccess),
		"light~ command_ok",
	}, f.r.take())
	assert.Contains(t, f.journal.entries, "learn/success/s1")
}

func TestCancelLearnShowsFailure(t *testing.T) {
	f := newFixture(t, false, nil)
	require.NoError(t, f.d.StartLearn(context.Background()))
	f.r.take()

	f.d.CancelLearn()
	assert.Equal(t, []string{
		fmt.Sprintf("status~ %s [%d]", PromptLearnFailed, ui.StyleWarning),
		"light~ idle",
	}, f.r.take())
}

func TestLearnDone_IgnoresSessionActive(t *testing.T) {
	f := newFixture(t, false, nil)
	f.d.learnDone(ir.Result{Err: ir.ErrSessionActive})
	assert.Empty(t, f.r.take())
	assert.Empty(t, f.journal.entries)
}

func TestParseButton(t *testing.T) {
	b, err := ParseButton("long")
	require.NoError(t, err)
	assert.Equal(t, ButtonLong, b)

	_, err = ParseButton("double")
	assert.Error(t, err)
}

type chanSource chan voice.Event

func (c chanSource) Events() <-chan voice.Event { return c }

func TestRun_ConsumesUntilClosed(t *testing.T) {
	f := newFixture(t, false, nil)
	src := make(chanSource, 2)
	src <- voice.Event{Kind: voice.EventWake}
	src <- voice.Event{Kind: voice.EventCommand, Command: cmd(voice.CmdFanOn)}
	close(src)

	require.NoError(t, f.d.Run(context.Background(), src))
	calls := f.r.take()
	assert.Equal(t, "beep", calls[0])
	assert.Equal(t, "appliance fan1 ON", calls[len(calls)-1])
}

type sensorSink struct {
	mu       sync.Mutex
	payloads []string
}

func (s *sensorSink) PublishSensor(t, h float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, fmt.Sprintf("%.1f/%.0f", t, h))
	return nil
}

func (s *sensorSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

func TestSensorLoop_PublishesOnlyWhileResumed(t *testing.T) {
	sink := &sensorSink{}
	loop := NewSensorLoop(sensor.NewStatic(22.31, 48.6), sink, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, sink.count())

	loop.Resume()
	require.Eventually(t, func() bool { return sink.count() >= 2 }, time.Second, 5*time.Millisecond)

	loop.Pause()
	time.Sleep(10 * time.Millisecond)
	n := sink.count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, sink.count())

	cancel()
	<-done

	sink.mu.Lock()
	assert.Equal(t, "22.3/49", sink.payloads[0])
	sink.mu.Unlock()
}
