package ir

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/kavach/pkg/ui"
)

type fakeReceiver struct {
	events  chan Event
	stopped atomic.Int32
	once    sync.Once
}

func newFakeReceiver() *fakeReceiver {
	return &fakeReceiver{events: make(chan Event, 16)}
}

func (f *fakeReceiver) Events() <-chan Event { return f.events }

func (f *fakeReceiver) Stop() error {
	f.stopped.Add(1)
	f.once.Do(func() { close(f.events) })
	return nil
}

type fakeOpener struct {
	mu    sync.Mutex
	err   error
	opens []*fakeReceiver
}

func (o *fakeOpener) OpenReceiver(LearnConfig) (Receiver, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	rx := newFakeReceiver()
	o.opens = append(o.opens, rx)
	return rx, nil
}

func (o *fakeOpener) last() *fakeReceiver {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens[len(o.opens)-1]
}

type recordingNotifier struct {
	mu       sync.Mutex
	statuses []string
	lights   []ui.Light
}

func (n *recordingNotifier) SetStatusAsync(text string, _ ui.StatusStyle) {
	n.mu.Lock()
	n.statuses = append(n.statuses, text)
	n.mu.Unlock()
}

func (n *recordingNotifier) SetLightAsync(l ui.Light) {
	n.mu.Lock()
	n.lights = append(n.lights, l)
	n.mu.Unlock()
}

func newTestSession(t *testing.T) (*Session, *fakeOpener, *Store, *recordingNotifier) {
	t.Helper()
	opener := &fakeOpener{}
	store := NewStore(t.TempDir())
	notify := &recordingNotifier{}
	return NewSession(DefaultLearnConfig(), opener, store, notify, nil), opener, store, notify
}

func resultChan() (Callback, <-chan Result) {
	ch := make(chan Result, 4)
	return func(r Result) { ch <- r }, ch
}

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for learn result")
		return Result{}
	}
}

var (
	onBurst  = RawBurst{Symbols: []Symbol{Mark(9000, 4500), Mark(560, 1690), Mark(560, 560)}}
	offBurst = RawBurst{Symbols: []Symbol{Mark(9000, 4500), Mark(560, 560), Mark(560, 1690)}}
)

func TestSession_SecondStartFailsWithoutDisturbing(t *testing.T) {
	s, opener, _, _ := newTestSession(t)

	first, firstCh := resultChan()
	require.NoError(t, s.Start(first))
	s.OnBurstClassified(1, 1, []RawBurst{onBurst})

	second, secondCh := resultChan()
	err := s.Start(second)
	assert.ErrorIs(t, err, ErrSessionActive)

	r := waitResult(t, secondCh)
	assert.False(t, r.OK)
	assert.ErrorIs(t, r.Err, ErrSessionActive)

	assert.True(t, s.Active())
	assert.Len(t, opener.opens, 1)
	assert.Empty(t, firstCh)

	s.mu.Lock()
	assert.Len(t, s.on.Reps, 1, "capture state must survive the rejected start")
	s.mu.Unlock()
}

func TestSession_AlternatingStepsSucceed(t *testing.T) {
	s, _, store, notify := newTestSession(t)
	cb, ch := resultChan()
	require.NoError(t, s.Start(cb))

	s.OnBurstClassified(1, 1, []RawBurst{onBurst})
	s.OnBurstClassified(2, 1, []RawBurst{offBurst})
	s.OnBurstClassified(3, 1, []RawBurst{onBurst})
	s.OnBurstClassified(4, 1, []RawBurst{offBurst})
	s.OnTerminal(PhaseEnd)

	r := waitResult(t, ch)
	require.True(t, r.OK, "err: %v", r.Err)
	assert.True(t, r.OnValid)
	assert.True(t, r.OffValid)
	assert.False(t, s.Active())

	on, err := store.Load(SlotOn)
	require.NoError(t, err)
	assert.Equal(t, []RawBurst{onBurst}, on)
	off, err := store.Load(SlotOff)
	require.NoError(t, err)
	assert.Equal(t, []RawBurst{offBurst}, off)

	notify.mu.Lock()
	defer notify.mu.Unlock()
	assert.Equal(t, PromptOnCaptured, notify.statuses[0])
	assert.Equal(t, PromptOffCaptured, notify.statuses[1])
	assert.Equal(t, ui.LightCommandOK, notify.lights[0])
}

func TestSession_OnlyOnFails(t *testing.T) {
	s, opener, store, _ := newTestSession(t)
	cb, ch := resultChan()
	require.NoError(t, s.Start(cb))

	s.OnBurstClassified(1, 1, []RawBurst{onBurst})
	s.OnBurstClassified(3, 1, []RawBurst{onBurst})
	s.OnTerminal(PhaseEnd)

	r := waitResult(t, ch)
	assert.False(t, r.OK)
	assert.ErrorIs(t, r.Err, ErrLearnFailed)
	assert.False(t, s.Active())
	assert.EqualValues(t, 1, opener.last().stopped.Load())

	_, err := os.Stat(store.Path(SlotOn))
	assert.True(t, os.IsNotExist(err), "no file may be written on failure")
	_, err = os.Stat(store.Path(SlotOff))
	assert.True(t, os.IsNotExist(err))
}

func TestSession_FailPhaseWithBothSlotsStillSaves(t *testing.T) {
	s, _, store, _ := newTestSession(t)
	cb, ch := resultChan()
	require.NoError(t, s.Start(cb))

	// Repetitions disagree so neither slot validates.
	s.OnBurstClassified(1, 1, []RawBurst{onBurst})
	s.OnBurstClassified(2, 1, []RawBurst{offBurst})
	s.OnBurstClassified(3, 1, []RawBurst{onBurst})
	s.OnBurstClassified(3, 2, []RawBurst{onBurst, offBurst})
	s.OnTerminal(PhaseFail)

	r := waitResult(t, ch)
	require.True(t, r.OK, "err: %v", r.Err)
	assert.False(t, r.OnValid)
	assert.True(t, store.Exists())

	on, err := store.Load(SlotOn)
	require.NoError(t, err)
	assert.Equal(t, []RawBurst{onBurst, offBurst}, on, "last repetition is kept as captured")
}

func TestSession_KeepsOnlyNewestBurstPerSubStep(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	require.NoError(t, s.Start(nil))
	defer s.Stop()

	a := RawBurst{Symbols: []Symbol{Mark(100, 100)}}
	b := RawBurst{Symbols: []Symbol{Mark(200, 200)}, Gap: 40000}
	s.OnBurstClassified(1, 1, []RawBurst{a})
	s.OnBurstClassified(1, 2, []RawBurst{a, b})
	s.OnBurstClassified(9, 1, []RawBurst{a})

	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.on.Reps, 1)
	assert.Equal(t, Repetition{a, b}, s.on.Reps[0])
	assert.True(t, s.off.Empty())
}

func TestSession_StopReportsCancel(t *testing.T) {
	s, opener, store, _ := newTestSession(t)
	cb, ch := resultChan()
	require.NoError(t, s.Start(cb))
	s.OnBurstClassified(1, 1, []RawBurst{onBurst})

	s.Stop()
	r := waitResult(t, ch)
	assert.False(t, r.OK)
	assert.ErrorIs(t, r.Err, ErrCancelled)
	assert.False(t, s.Active())
	assert.False(t, store.Exists())
	assert.EqualValues(t, 1, opener.last().stopped.Load())

	// Stopping again is a no-op.
	s.Stop()
	assert.Empty(t, ch)
}

func TestSession_OpenFailure(t *testing.T) {
	s, opener, _, _ := newTestSession(t)
	opener.err = errors.New("no device")

	cb, ch := resultChan()
	err := s.Start(cb)
	require.Error(t, err)

	r := waitResult(t, ch)
	assert.False(t, r.OK)
	assert.False(t, s.Active())
}

func TestSession_DrivenByReceiverEvents(t *testing.T) {
	s, opener, store, _ := newTestSession(t)
	cb, ch := resultChan()
	require.NoError(t, s.Start(cb))

	rx := opener.last()
	rx.events <- Event{Phase: PhaseReady}
	rx.events <- Event{Phase: 1, SubStep: 1, Bursts: []RawBurst{onBurst}}
	rx.events <- Event{Phase: 2, SubStep: 1, Bursts: []RawBurst{offBurst}}
	rx.events <- Event{Phase: PhaseEnd}

	r := waitResult(t, ch)
	require.True(t, r.OK, "err: %v", r.Err)
	assert.NotEmpty(t, r.SessionID)
	assert.True(t, store.Exists())
	assert.False(t, s.Active())

	// A new session can start once the previous one completed.
	require.NoError(t, s.Start(nil))
	s.Stop()
}

func TestSession_ReceiverVanishingFailsSession(t *testing.T) {
	s, opener, _, _ := newTestSession(t)
	cb, ch := resultChan()
	require.NoError(t, s.Start(cb))

	rx := opener.last()
	rx.once.Do(func() { close(rx.events) })

	r := waitResult(t, ch)
	assert.False(t, r.OK)
	assert.False(t, s.Active())
}

func TestSession_IgnoresNonTerminalPhases(t *testing.T) {
	s, _, store, _ := newTestSession(t)
	cb, ch := resultChan()
	require.NoError(t, s.Start(cb))

	s.OnBurstClassified(1, 1, []RawBurst{onBurst})
	s.OnBurstClassified(2, 1, []RawBurst{offBurst})
	s.OnTerminal(PhaseReady)
	s.OnTerminal(PhaseExit)
	s.OnTerminal(Phase(3))

	assert.True(t, s.Active())
	assert.False(t, store.Exists())
	select {
	case r := <-ch:
		t.Fatalf("unexpected result %+v", r)
	default:
	}

	s.OnTerminal(PhaseEnd)
	r := waitResult(t, ch)
	assert.True(t, r.OK, "err: %v", r.Err)
}

func TestSession_DropsOverlongBursts(t *testing.T) {
	s, _, store, _ := newTestSession(t)
	cb, ch := resultChan()
	require.NoError(t, s.Start(cb))

	long := RawBurst{Symbols: make([]Symbol, MaxSymbols+1)}
	for i := range long.Symbols {
		long.Symbols[i] = Mark(560, 560)
	}
	s.OnBurstClassified(1, 1, []RawBurst{long})
	s.OnBurstClassified(2, 1, []RawBurst{offBurst})
	s.OnTerminal(PhaseEnd)

	r := waitResult(t, ch)
	assert.False(t, r.OK)
	assert.ErrorIs(t, r.Err, ErrLearnFailed)
	assert.False(t, store.Exists())
}
