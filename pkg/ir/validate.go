package ir

import "fmt"

// Tolerance bounds how far a repetition may stray from the mean.
type Tolerance struct {
	// Ratio is the allowed relative deviation, e.g. 0.25 for 25%.
	Ratio float64 `yaml:"ratio" json:"ratio"`
	// Min is the allowed absolute deviation in ticks when Ratio gives less.
	Min uint16 `yaml:"min_ticks" json:"min_ticks"`
}

// DefaultTolerance returns 25% with a 100 tick floor.
func DefaultTolerance() Tolerance {
	return Tolerance{Ratio: 0.25, Min: 100}
}

func (t Tolerance) allows(value, mean uint32) bool {
	limit := uint32(float64(mean) * t.Ratio)
	if limit < uint32(t.Min) {
		limit = uint32(t.Min)
	}
	if value > mean {
		return value-mean <= limit
	}
	return mean-value <= limit
}

// Repetition is the ordered bursts captured for one press of a button.
type Repetition []RawBurst

// Capture collects the repetitions learned for one slot.
type Capture struct {
	Reps []Repetition
}

// Empty reports whether no burst has been captured.
func (c *Capture) Empty() bool {
	for _, r := range c.Reps {
		if len(r) > 0 {
			return false
		}
	}
	return true
}

// Append adds a copy of b. A new repetition is opened when newRep is set or
// none exists yet.
func (c *Capture) Append(b RawBurst, newRep bool) {
	if newRep || len(c.Reps) == 0 {
		c.Reps = append(c.Reps, nil)
	}
	last := len(c.Reps) - 1
	c.Reps[last] = append(c.Reps[last], b.Clone())
}

// Reset drops every repetition.
func (c *Capture) Reset() {
	c.Reps = nil
}

// Last returns the most recent non-empty repetition.
func (c *Capture) Last() Repetition {
	for i := len(c.Reps) - 1; i >= 0; i-- {
		if len(c.Reps[i]) > 0 {
			return c.Reps[i]
		}
	}
	return nil
}

// ValidateSlot checks that every repetition agrees in burst count, symbol
// counts and durations, and returns the per-position average.
func ValidateSlot(reps []Repetition, tol Tolerance) ([]RawBurst, error) {
	var nonEmpty []Repetition
	for _, r := range reps {
		if len(r) > 0 {
			nonEmpty = append(nonEmpty, r)
		}
	}
	if len(nonEmpty) == 0 {
		return nil, ErrEmptySlot
	}

	ref := nonEmpty[0]
	for i, r := range nonEmpty[1:] {
		if len(r) != len(ref) {
			return nil, fmt.Errorf("%w: repetition %d has %d bursts, want %d",
				ErrBurstCountMismatch, i+1, len(r), len(ref))
		}
		for j := range r {
			if len(r[j].Symbols) != len(ref[j].Symbols) {
				return nil, fmt.Errorf("%w: repetition %d burst %d has %d symbols, want %d",
					ErrSymbolCountMismatch, i+1, j, len(r[j].Symbols), len(ref[j].Symbols))
			}
		}
	}

	n := uint32(len(nonEmpty))
	merged := make([]RawBurst, len(ref))
	for j := range ref {
		var gapSum uint64
		for _, r := range nonEmpty {
			gapSum += uint64(r[j].Gap)
		}

		syms := make([]Symbol, len(ref[j].Symbols))
		for k := range syms {
			var d0, d1 uint32
			for _, r := range nonEmpty {
				d0 += uint32(r[j].Symbols[k].Duration0)
				d1 += uint32(r[j].Symbols[k].Duration1)
			}
			mean0, mean1 := d0/n, d1/n
			for ri, r := range nonEmpty {
				s := r[j].Symbols[k]
				if !tol.allows(uint32(s.Duration0), mean0) || !tol.allows(uint32(s.Duration1), mean1) {
					return nil, fmt.Errorf("%w: repetition %d burst %d symbol %d",
						ErrDurationOutOfTolerance, ri, j, k)
				}
			}
			syms[k] = Symbol{
				Duration0: uint16(mean0),
				Level0:    ref[j].Symbols[k].Level0,
				Duration1: uint16(mean1),
				Level1:    ref[j].Symbols[k].Level1,
			}
		}
		merged[j] = RawBurst{Symbols: syms, Gap: uint32(gapSum / uint64(n))}
	}
	return merged, nil
}

// Resolve returns the bursts to persist for a capture: the validated
// average when validation passes, otherwise the last repetition as
// captured. valid reports which one was chosen.
func (c *Capture) Resolve(tol Tolerance) (bursts []RawBurst, valid bool, err error) {
	merged, err := ValidateSlot(c.Reps, tol)
	if err == nil {
		return merged, true, nil
	}
	return CloneBursts(c.Last()), false, err
}
