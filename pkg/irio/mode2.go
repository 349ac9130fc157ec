package irio

import (
	"time"

	"github.com/teslashibe/kavach/pkg/ir"
)

// LIRC mode2 sample encoding: the top byte is the sample type and the low
// 24 bits carry the value in microseconds.
const (
	mode2Space     = 0x00000000
	mode2Pulse     = 0x01000000
	mode2Frequency = 0x02000000
	mode2Timeout   = 0x03000000
	mode2Overflow  = 0x04000000
	mode2TypeMask  = 0xFF000000
	mode2ValueMask = 0x00FFFFFF
)

// SampleKind classifies a mode2 sample.
type SampleKind int

const (
	KindSpace SampleKind = iota
	KindPulse
	KindTimeout
	KindOther
)

// Sample is one decoded mode2 value.
type Sample struct {
	Kind   SampleKind
	Micros uint32
}

// DecodeMode2 decodes a raw mode2 word. Overflow is reported as a timeout
// so the current burst is closed.
func DecodeMode2(w uint32) Sample {
	v := w & mode2ValueMask
	switch w & mode2TypeMask {
	case mode2Space:
		return Sample{Kind: KindSpace, Micros: v}
	case mode2Pulse:
		return Sample{Kind: KindPulse, Micros: v}
	case mode2Timeout, mode2Overflow:
		return Sample{Kind: KindTimeout, Micros: v}
	default:
		return Sample{Kind: KindOther, Micros: v}
	}
}

// EncodeMode2 is the inverse of DecodeMode2 for pulses, spaces and timeouts.
func EncodeMode2(s Sample) uint32 {
	v := s.Micros & mode2ValueMask
	switch s.Kind {
	case KindPulse:
		return mode2Pulse | v
	case KindTimeout:
		return mode2Timeout | v
	case KindOther:
		return mode2Frequency | v
	default:
		return mode2Space | v
	}
}

// EncodePulses converts symbols into the alternating pulse/space list a
// LIRC transmitter accepts: microseconds, starting and ending with a pulse.
// Adjacent halves of the same level are merged and zero-length halves
// dropped.
func EncodePulses(symbols []ir.Symbol, resolutionHz int) []uint32 {
	if resolutionHz <= 0 {
		resolutionHz = ir.ResolutionHz
	}
	out := make([]uint32, 0, len(symbols)*2)
	add := func(level uint8, ticks uint16) {
		if ticks == 0 {
			return
		}
		us := uint32(uint64(ticks) * 1_000_000 / uint64(resolutionHz))
		pulse := level == 1
		if len(out) == 0 {
			if pulse {
				out = append(out, us)
			}
			return
		}
		lastIsPulse := len(out)%2 == 1
		if pulse == lastIsPulse {
			out[len(out)-1] += us
		} else {
			out = append(out, us)
		}
	}
	for _, s := range symbols {
		add(s.Level0, s.Duration0)
		add(s.Level1, s.Duration1)
	}
	if n := len(out); n > 0 && n%2 == 0 {
		out = out[:n-1]
	}
	return out
}

// Frame is a completed burst with its wall-clock span.
type Frame struct {
	Burst ir.RawBurst
	Start time.Time
	End   time.Time
}

// Segmenter assembles mode2 samples into bursts. A space of at least the
// frame gap, or a timeout sample, ends the current burst.
type Segmenter struct {
	frameGap     uint32
	resolutionHz int

	symbols   []ir.Symbol
	pulse     uint32
	havePulse bool
	start     time.Time
	total     uint64
}

// NewSegmenter creates a segmenter producing symbols at resolutionHz.
func NewSegmenter(frameGap time.Duration, resolutionHz int) *Segmenter {
	if resolutionHz <= 0 {
		resolutionHz = ir.ResolutionHz
	}
	return &Segmenter{
		frameGap:     uint32(frameGap / time.Microsecond),
		resolutionHz: resolutionHz,
	}
}

// Open reports whether a burst is being assembled.
func (s *Segmenter) Open() bool {
	return s.havePulse || len(s.symbols) > 0
}

// Feed consumes one sample received at now. It returns a frame when the
// sample completes a burst.
func (s *Segmenter) Feed(smp Sample, now time.Time) (Frame, bool) {
	switch smp.Kind {
	case KindPulse:
		if !s.Open() {
			s.start = now.Add(-time.Duration(smp.Micros) * time.Microsecond)
			s.total = 0
		}
		if s.havePulse {
			s.pulse += smp.Micros
		} else {
			s.pulse = smp.Micros
			s.havePulse = true
		}
	case KindSpace:
		if !s.Open() {
			return Frame{}, false
		}
		if smp.Micros >= s.frameGap {
			return s.close()
		}
		if s.havePulse {
			s.symbols = append(s.symbols, ir.Mark(s.ticks(s.pulse), s.ticks(smp.Micros)))
			s.total += uint64(s.pulse) + uint64(smp.Micros)
			s.havePulse = false
		} else if n := len(s.symbols); n > 0 {
			last := &s.symbols[n-1]
			last.Duration1 = clampTicks(uint32(last.Duration1) + uint32(s.ticks(smp.Micros)))
			s.total += uint64(smp.Micros)
		}
	case KindTimeout:
		return s.close()
	}
	return Frame{}, false
}

// Flush closes the current burst, if any.
func (s *Segmenter) Flush() (Frame, bool) {
	return s.close()
}

func (s *Segmenter) close() (Frame, bool) {
	if s.havePulse {
		s.symbols = append(s.symbols, ir.Symbol{Duration0: s.ticks(s.pulse), Level0: 1})
		s.total += uint64(s.pulse)
		s.havePulse = false
	}
	if len(s.symbols) == 0 {
		return Frame{}, false
	}
	f := Frame{
		Burst: ir.RawBurst{Symbols: s.symbols},
		Start: s.start,
		End:   s.start.Add(time.Duration(s.total) * time.Microsecond),
	}
	s.symbols = nil
	s.total = 0
	return f, true
}

func (s *Segmenter) ticks(us uint32) uint16 {
	return clampTicks(uint32(uint64(us) * uint64(s.resolutionHz) / 1_000_000))
}

func clampTicks(t uint32) uint16 {
	if t > ir.MaxDuration {
		return ir.MaxDuration
	}
	return uint16(t)
}
