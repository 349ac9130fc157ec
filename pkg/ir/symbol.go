// Package ir learns, stores and replays infrared remote-control codes.
//
// Timings are modelled as RMT-style symbol words: two (duration, level)
// halves packed into 32 bits, with durations counted in ticks of a fixed
// resolution (1 MHz, so one tick is one microsecond). A button press on a
// remote produces one or more bursts of symbols separated by gaps.
//
// The package owns three pieces:
//   - the Command Store codec that persists learned bursts per Slot
//   - the learn Session that turns receiver events into stored commands
//   - the transmit Pipeline that replays stored commands on a carrier
//
// Hardware access lives behind the Receiver and Transmitter interfaces,
// implemented by package irio.
package ir

import (
	"fmt"
	"time"
)

// ResolutionHz is the tick rate of symbol durations.
const ResolutionHz = 1_000_000

const (
	durationMask = 0x7FFF
	// MaxDuration is the largest duration a symbol half can hold.
	MaxDuration = durationMask
)

// Symbol is one pair of (level, duration) halves.
type Symbol struct {
	Duration0 uint16
	Level0    uint8
	Duration1 uint16
	Level1    uint8
}

// Word packs the symbol into its 32-bit wire form:
// bits 0-14 duration0, bit 15 level0, bits 16-30 duration1, bit 31 level1.
func (s Symbol) Word() uint32 {
	return uint32(s.Duration0&durationMask) |
		uint32(s.Level0&1)<<15 |
		uint32(s.Duration1&durationMask)<<16 |
		uint32(s.Level1&1)<<31
}

// SymbolFromWord unpacks a 32-bit symbol word.
func SymbolFromWord(w uint32) Symbol {
	return Symbol{
		Duration0: uint16(w & durationMask),
		Level0:    uint8(w>>15) & 1,
		Duration1: uint16((w >> 16) & durationMask),
		Level1:    uint8(w>>31) & 1,
	}
}

// Mark builds the common symbol shape of a high half followed by a low half.
func Mark(high, low uint16) Symbol {
	return Symbol{Duration0: high, Level0: 1, Duration1: low, Level1: 0}
}

// RawBurst is a contiguous run of symbols plus the time since the previous
// burst ended.
type RawBurst struct {
	Symbols []Symbol
	// Gap is in microseconds.
	Gap uint32
}

// GapDuration returns Gap as a time.Duration.
func (b RawBurst) GapDuration() time.Duration {
	return time.Duration(b.Gap) * time.Microsecond
}

// Clone returns a deep copy of the burst.
func (b RawBurst) Clone() RawBurst {
	syms := make([]Symbol, len(b.Symbols))
	copy(syms, b.Symbols)
	return RawBurst{Symbols: syms, Gap: b.Gap}
}

// Duration returns the on-air length of the burst in ticks.
func (b RawBurst) Duration() uint64 {
	var total uint64
	for _, s := range b.Symbols {
		total += uint64(s.Duration0) + uint64(s.Duration1)
	}
	return total
}

// CloneBursts deep-copies a burst list.
func CloneBursts(bursts []RawBurst) []RawBurst {
	if bursts == nil {
		return nil
	}
	out := make([]RawBurst, len(bursts))
	for i, b := range bursts {
		out[i] = b.Clone()
	}
	return out
}

// Slot names one of the two learned commands.
type Slot int

const (
	SlotOn Slot = iota
	SlotOff
)

// String returns "on" or "off".
func (s Slot) String() string {
	switch s {
	case SlotOn:
		return "on"
	case SlotOff:
		return "off"
	default:
		return fmt.Sprintf("slot(%d)", int(s))
	}
}

// ParseSlot accepts "on" or "off".
func ParseSlot(s string) (Slot, error) {
	switch s {
	case "on", "ON", "On":
		return SlotOn, nil
	case "off", "OFF", "Off":
		return SlotOff, nil
	default:
		return 0, fmt.Errorf("ir: unknown slot %q", s)
	}
}

// SlotForStep maps a learn step to its slot: odd steps capture ON, even
// steps capture OFF.
func SlotForStep(step int) Slot {
	if step%2 == 1 {
		return SlotOn
	}
	return SlotOff
}
