package ir

import "errors"

// Sentinel errors.
var (
	// ErrSessionActive is returned when a learn session is started while
	// another one is running.
	ErrSessionActive = errors.New("ir: learn session already active")
	// ErrCancelled reports a learn session stopped before completion.
	ErrCancelled = errors.New("ir: learn session cancelled")
	// ErrLearnFailed reports a session that ended without usable captures.
	ErrLearnFailed = errors.New("ir: learn failed")

	// ErrNoCommand means no stored command could be read.
	ErrNoCommand = errors.New("ir: no stored command")
	// ErrTooManyBursts means a command does not fit the one-byte count.
	ErrTooManyBursts = errors.New("ir: too many bursts")
	// ErrEmptyBurst means a burst carries no symbols.
	ErrEmptyBurst = errors.New("ir: empty burst")
	// ErrTooManySymbols means a burst is longer than MaxSymbols.
	ErrTooManySymbols = errors.New("ir: too many symbols in burst")

	ErrEmptySlot              = errors.New("ir: slot has no repetitions")
	ErrBurstCountMismatch     = errors.New("ir: repetitions differ in burst count")
	ErrSymbolCountMismatch    = errors.New("ir: repetitions differ in symbol count")
	ErrDurationOutOfTolerance = errors.New("ir: symbol duration out of tolerance")

	// ErrQueueFull is returned when the transmit queue cannot take a request.
	ErrQueueFull = errors.New("ir: transmit queue full")
)
