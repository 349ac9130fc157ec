package irio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/kavach/pkg/ir"
)

func fastLearnConfig() ir.LearnConfig {
	cfg := ir.DefaultLearnConfig()
	cfg.FrameGap = 10 * time.Millisecond
	cfg.PressGap = 60 * time.Millisecond
	cfg.Timeout = 5 * time.Second
	return cfg
}

func collect(t *testing.T, rx ir.Receiver) []ir.Event {
	t.Helper()
	var events []ir.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-rx.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("receiver did not finish")
			return nil
		}
	}
}

func TestMode2_DecodeEncode(t *testing.T) {
	assert.Equal(t, Sample{Kind: KindPulse, Micros: 9000}, DecodeMode2(0x01000000|9000))
	assert.Equal(t, Sample{Kind: KindSpace, Micros: 4500}, DecodeMode2(4500))
	assert.Equal(t, KindTimeout, DecodeMode2(0x03000000|20000).Kind)
	assert.Equal(t, KindTimeout, DecodeMode2(0x04000000).Kind)
	assert.Equal(t, KindOther, DecodeMode2(0x02000000|38000).Kind)

	assert.Equal(t, uint32(0x01000000|560), EncodeMode2(Sample{Kind: KindPulse, Micros: 560}))
}

func TestEncodePulses(t *testing.T) {
	syms := []ir.Symbol{
		{Duration0: 100, Level0: 0, Duration1: 9000, Level1: 1},
		ir.Mark(0, 4500),
		ir.Mark(560, 560),
		ir.Mark(560, 0),
		{Duration0: 560, Level0: 0, Duration1: 560, Level1: 1},
		ir.Mark(0, 40000),
	}
	got := EncodePulses(syms, ir.ResolutionHz)
	// Leading space dropped, equal levels merged, trailing space removed.
	assert.Equal(t, []uint32{9000, 4500, 560, 560, 560, 560, 560}, got)
	assert.Equal(t, 1, len(got)%2)
}

func TestSegmenter_NECFrame(t *testing.T) {
	seg := NewSegmenter(20*time.Millisecond, ir.ResolutionHz)
	base := time.Unix(1000, 0)

	var frames []Frame
	for i, smp := range NECSamples(MockOnCode) {
		if f, ok := seg.Feed(smp, base.Add(time.Duration(i)*time.Millisecond)); ok {
			frames = append(frames, f)
		}
	}
	require.Len(t, frames, 1)
	f := frames[0]
	require.Len(t, f.Burst.Symbols, 34)
	assert.Equal(t, ir.Mark(9000, 4500), f.Burst.Symbols[0])
	assert.Equal(t, ir.Symbol{Duration0: 560, Level0: 1}, f.Burst.Symbols[33])

	// Bit 0 of the code is set, so the first data bit uses the long space.
	assert.Equal(t, ir.Mark(560, 1690), f.Burst.Symbols[1])
	assert.Equal(t, f.Start.Add(time.Duration(f.Burst.Duration())*time.Microsecond), f.End)
	assert.False(t, seg.Open())
}

func TestSegmenter_LongSpaceEndsBurst(t *testing.T) {
	seg := NewSegmenter(20*time.Millisecond, ir.ResolutionHz)
	now := time.Now()

	_, ok := seg.Feed(Sample{Kind: KindSpace, Micros: 50000}, now)
	assert.False(t, ok, "leading silence is ignored")

	seg.Feed(Sample{Kind: KindPulse, Micros: 9000}, now)
	seg.Feed(Sample{Kind: KindSpace, Micros: 2250}, now)
	seg.Feed(Sample{Kind: KindPulse, Micros: 560}, now)
	f, ok := seg.Feed(Sample{Kind: KindSpace, Micros: 96000}, now)
	require.True(t, ok)
	assert.Equal(t, []ir.Symbol{ir.Mark(9000, 2250), {Duration0: 560, Level0: 1}}, f.Burst.Symbols)

	_, ok = seg.Flush()
	assert.False(t, ok)
}

func TestReceiver_MockLearnSequence(t *testing.T) {
	opener := NewMockOpener(nil)
	opener.PressDelay = 150 * time.Millisecond
	rx, err := opener.OpenReceiver(fastLearnConfig())
	require.NoError(t, err)
	defer rx.Stop()

	events := collect(t, rx)
	require.Len(t, events, 6)
	assert.Equal(t, ir.PhaseReady, events[0].Phase)
	for i := 1; i <= 4; i++ {
		ev := events[i]
		assert.Equal(t, ir.Phase(i), ev.Phase)
		assert.Equal(t, 1, ev.SubStep)
		require.Len(t, ev.Bursts, 1)
		assert.Len(t, ev.Bursts[0].Symbols, 34)
		assert.Zero(t, ev.Bursts[0].Gap)
	}
	assert.Equal(t, ir.PhaseEnd, events[5].Phase)
}

func TestReceiver_GroupsBurstsIntoPress(t *testing.T) {
	cfg := fastLearnConfig()
	cfg.Count = 2
	cfg.Timeout = 400 * time.Millisecond

	var steps []scriptStep
	for _, smp := range NECSamples(MockOnCode) {
		steps = append(steps, scriptStep{sample: smp})
	}
	// A repeat frame shortly after the first one belongs to the same press.
	steps = append(steps,
		scriptStep{delay: 20 * time.Millisecond, sample: Sample{Kind: KindPulse, Micros: 9000}},
		scriptStep{sample: Sample{Kind: KindSpace, Micros: 2250}},
		scriptStep{sample: Sample{Kind: KindPulse, Micros: 560}},
		scriptStep{sample: Sample{Kind: KindTimeout}},
	)

	rx := newReceiver(cfg, newScriptReader(steps), nil)
	defer rx.Stop()
	events := collect(t, rx)

	require.Len(t, events, 4)
	assert.Equal(t, ir.Phase(1), events[1].Phase)
	assert.Equal(t, 1, events[1].SubStep)
	assert.Equal(t, ir.Phase(1), events[2].Phase)
	assert.Equal(t, 2, events[2].SubStep)
	require.Len(t, events[2].Bursts, 2)
	assert.Greater(t, events[2].Bursts[1].Gap, uint32(0))
	// Only one press arrived before the deadline.
	assert.Equal(t, ir.PhaseFail, events[3].Phase)
}

func TestReceiver_StopClosesEvents(t *testing.T) {
	rx := newReceiver(fastLearnConfig(), newScriptReader(nil), nil)
	ev := <-rx.Events()
	assert.Equal(t, ir.PhaseReady, ev.Phase)

	require.NoError(t, rx.Stop())
	require.NoError(t, rx.Stop())
	for range rx.Events() {
	}
}

func TestMockBackend_LearnAndReplay(t *testing.T) {
	store := ir.NewStore(t.TempDir())
	opener := NewMockOpener(nil)
	opener.PressDelay = 150 * time.Millisecond

	session := ir.NewSession(fastLearnConfig(), opener, store, nil, nil)
	done := make(chan ir.Result, 1)
	require.NoError(t, session.Start(func(r ir.Result) { done <- r }))

	var res ir.Result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("learn did not finish")
	}
	require.True(t, res.OK, "err: %v", res.Err)
	assert.True(t, res.OnValid)
	assert.True(t, res.OffValid)

	tx := NewMockTransmitter(nil)
	p := ir.NewPipeline(ir.DefaultTransmitConfig(), tx, store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	require.True(t, p.Send(ir.SlotOff))
	p.Shutdown()
	<-p.Done()

	sent := tx.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, 38000, sent[0].Carrier.FrequencyHz)
	// Leader pair plus 32 bits and a stop pulse.
	assert.Len(t, sent[0].Pulses, 67)
	assert.Equal(t, uint32(9000), sent[0].Pulses[0])
}
