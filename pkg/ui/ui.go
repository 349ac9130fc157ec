// Package ui defines the display contract shared by the dispatcher, the IR
// learn session and the dashboard that renders it.
package ui

// Light is the state of the status indicator.
type Light int

const (
	LightIdle Light = iota
	LightListening
	LightCommandOK
	LightAlert
)

// String returns the lowercase light name used in JSON and logs.
func (l Light) String() string {
	switch l {
	case LightIdle:
		return "idle"
	case LightListening:
		return "listening"
	case LightCommandOK:
		return "command_ok"
	case LightAlert:
		return "alert"
	default:
		return "unknown"
	}
}

// Color returns the RGB color of the light.
func (l Light) Color() uint32 {
	switch l {
	case LightListening:
		return 0x69F0AE
	case LightCommandOK:
		return 0x40C4FF
	case LightAlert:
		return 0xFF5252
	default:
		return 0x78909C
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l Light) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// StatusStyle selects how a status line is rendered.
type StatusStyle int

const (
	StyleNormal StatusStyle = iota
	StyleSuccess
	StyleWarning
)

// Notifier is the subset of the display that may be driven from any
// goroutine. Updates are deferred and applied by the display's own loop.
type Notifier interface {
	SetStatusAsync(text string, style StatusStyle)
	SetLightAsync(l Light)
}

// Display is the full UI surface.
type Display interface {
	Notifier

	// SetStatus, SetLight and SetVoiceMode apply immediately.
	SetStatus(text string)
	SetLight(l Light)
	SetVoiceMode(on bool)

	// WakePrompt is the idle status text.
	WakePrompt() string

	TriggerAlertFlash()
	TriggerGasLeakAlert()
	TriggerIntruderAlert()
}

// Nop discards every update.
type Nop struct{}

func (Nop) SetStatusAsync(string, StatusStyle) {}
func (Nop) SetLightAsync(Light)                {}
func (Nop) SetStatus(string)                   {}
func (Nop) SetLight(Light)                     {}
func (Nop) SetVoiceMode(bool)                  {}
func (Nop) WakePrompt() string                 { return "" }
func (Nop) TriggerAlertFlash()                 {}
func (Nop) TriggerGasLeakAlert()               {}
func (Nop) TriggerIntruderAlert()              {}

var _ Display = Nop{}
