package irio

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/kavach/pkg/ir"
)

// SampleReader yields mode2 samples from a capture device. ReadSample
// blocks; Close must unblock it.
type SampleReader interface {
	ReadSample() (Sample, error)
	io.Closer
}

// receiver turns a sample stream into learn events. Bursts closer than the
// press gap make up one press (one step, sub-steps counting up); a longer
// silence starts the next step. After the configured number of presses the
// receiver reports PhaseEnd, and PhaseFail when the session times out.
type receiver struct {
	cfg    ir.LearnConfig
	src    SampleReader
	logger *slog.Logger
	now    func() time.Time

	events   chan ir.Event
	stop     chan struct{}
	stopOnce sync.Once
}

var _ ir.Receiver = (*receiver)(nil)

type timedSample struct {
	Sample
	at time.Time
}

func newReceiver(cfg ir.LearnConfig, src SampleReader, logger *slog.Logger) *receiver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &receiver{
		cfg:    cfg,
		src:    src,
		logger: logger,
		now:    time.Now,
		events: make(chan ir.Event, 8),
		stop:   make(chan struct{}),
	}
	samples := make(chan timedSample, 64)
	go r.read(samples)
	go r.run(samples)
	return r
}

func (r *receiver) Events() <-chan ir.Event {
	return r.events
}

// Stop ends capture. It does not wait for the capture goroutines.
func (r *receiver) Stop() error {
	var err error
	r.stopOnce.Do(func() {
		close(r.stop)
		err = r.src.Close()
	})
	return err
}

func (r *receiver) read(out chan<- timedSample) {
	defer close(out)
	for {
		smp, err := r.src.ReadSample()
		if err != nil {
			select {
			case <-r.stop:
			default:
				if !errors.Is(err, io.EOF) {
					r.logger.Warn("ir capture read failed", "error", err)
				}
			}
			return
		}
		if smp.Kind == KindOther {
			continue
		}
		select {
		case out <- timedSample{Sample: smp, at: r.now()}:
		case <-r.stop:
			return
		}
	}
}

func (r *receiver) emit(ev ir.Event) bool {
	select {
	case r.events <- ev:
		return true
	case <-r.stop:
		return false
	}
}

func (r *receiver) run(samples <-chan timedSample) {
	defer close(r.events)

	seg := NewSegmenter(r.cfg.FrameGap, r.cfg.ResolutionHz)
	deadline := time.NewTimer(r.cfg.Timeout)
	defer deadline.Stop()

	// frame fires when the device stays silent without a timeout sample;
	// press fires once the current press has gone quiet.
	frame := time.NewTimer(time.Hour)
	frame.Stop()
	press := time.NewTimer(time.Hour)
	press.Stop()
	defer frame.Stop()
	defer press.Stop()

	var (
		step       int
		subStep    int
		pressOpen  bool
		lastEnd    time.Time
		stepBursts []ir.RawBurst
	)

	if !r.emit(ir.Event{Phase: ir.PhaseReady}) {
		return
	}

	onFrame := func(f Frame) bool {
		if !pressOpen {
			if step >= r.cfg.Count {
				return true
			}
			step++
			subStep = 0
			stepBursts = nil
			pressOpen = true
			f.Burst.Gap = 0
		} else if gap := f.Start.Sub(lastEnd); gap > 0 {
			f.Burst.Gap = uint32(gap / time.Microsecond)
		}
		lastEnd = f.End
		subStep++
		stepBursts = append(stepBursts, f.Burst)
		press.Reset(r.cfg.PressGap)

		r.logger.Debug("ir burst",
			"step", step,
			"sub_step", subStep,
			"symbols", len(f.Burst.Symbols),
			"gap_us", f.Burst.Gap,
		)
		return r.emit(ir.Event{
			Phase:   ir.Phase(step),
			SubStep: subStep,
			Bursts:  ir.CloneBursts(stepBursts),
		})
	}

	for {
		select {
		case <-r.stop:
			return

		case <-deadline.C:
			r.logger.Warn("ir learn timed out", "presses", step)
			r.emit(ir.Event{Phase: ir.PhaseFail})
			return

		case smp, ok := <-samples:
			if !ok {
				r.emit(ir.Event{Phase: ir.PhaseFail})
				return
			}
			if f, done := seg.Feed(smp.Sample, smp.at); done {
				frame.Stop()
				if !onFrame(f) {
					return
				}
			} else if seg.Open() {
				frame.Reset(r.cfg.FrameGap)
			}

		case <-frame.C:
			if f, done := seg.Flush(); done {
				if !onFrame(f) {
					return
				}
			}

		case <-press.C:
			if seg.Open() {
				press.Reset(r.cfg.PressGap)
				continue
			}
			pressOpen = false
			if step >= r.cfg.Count {
				r.emit(ir.Event{Phase: ir.PhaseEnd})
				return
			}
		}
	}
}
