// Package voice turns recognizer output into assistant events.
//
// A recognizer reports three things: the wake word was heard, the listening
// window timed out, or a command phrase was matched. Each command has a
// stable ID and a spoken phrase; the dispatcher keys its fan-out table on
// the ID and shows the phrase on screen.
//
// # Sources
//
// LineSource reads one event per line from any io.Reader, which covers a
// recognizer process writing to a pipe as well as a FIFO or stdin during
// bench testing:
//
//	wake
//	turn on the light
//	light_off
//	timeout
//
// Lines are matched against phrases and command names case-insensitively.
// Text that matches nothing becomes an unknown command carrying the text.
//
// # Echo suppression
//
// The device hears its own confirmations. Set LineSource.Muted to a
// function such as playback.Player.IsPlaying and lines arriving while it
// reports true are dropped.
package voice
