package voice

import "strings"

// CommandID identifies a recognised command.
type CommandID int

const (
	CmdUnknown CommandID = iota
	CmdHelpAlert
	CmdCallFamily
	CmdHelp
	CmdLightOn
	CmdLightOff
	CmdFanOn
	CmdFanOff
	CmdACOn
	CmdACOff
	CmdPlay
	CmdPause
	CmdNext
	CmdSetRed
	CmdSetGreen
	CmdSetBlue
	CmdCustomizeColor
)

var commandNames = map[CommandID]string{
	CmdUnknown:        "unknown",
	CmdHelpAlert:      "help_alert",
	CmdCallFamily:     "call_family",
	CmdHelp:           "help",
	CmdLightOn:        "light_on",
	CmdLightOff:       "light_off",
	CmdFanOn:          "fan_on",
	CmdFanOff:         "fan_off",
	CmdACOn:           "ac_on",
	CmdACOff:          "ac_off",
	CmdPlay:           "play",
	CmdPause:          "pause",
	CmdNext:           "next",
	CmdSetRed:         "set_red",
	CmdSetGreen:       "set_green",
	CmdSetBlue:        "set_blue",
	CmdCustomizeColor: "customize_color",
}

// String returns the snake_case command name.
func (c CommandID) String() string {
	if n, ok := commandNames[c]; ok {
		return n
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (c CommandID) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// ParseCommand looks up a command by its snake_case name.
func ParseCommand(name string) (CommandID, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for id, n := range commandNames {
		if n == name && id != CmdUnknown {
			return id, true
		}
	}
	return CmdUnknown, false
}

// Command is a recognised command and the phrase that triggered it.
type Command struct {
	ID     CommandID `json:"id"`
	Phrase string    `json:"phrase"`
}

// Commands is the phrase table, one entry per command.
var Commands = []Command{
	{CmdHelpAlert, "Help me"},
	{CmdCallFamily, "Call my family"},
	{CmdHelp, "What can you do"},
	{CmdLightOn, "Turn on the light"},
	{CmdLightOff, "Turn off the light"},
	{CmdFanOn, "Turn on the fan"},
	{CmdFanOff, "Turn off the fan"},
	{CmdACOn, "Turn on the Air"},
	{CmdACOff, "Turn off the Air"},
	{CmdPlay, "Play music"},
	{CmdPause, "Pause music"},
	{CmdNext, "Next song"},
	{CmdSetRed, "Set to red"},
	{CmdSetGreen, "Set to green"},
	{CmdSetBlue, "Set to blue"},
	{CmdCustomizeColor, "Customize color"},
}

// Lookup returns the table entry for id.
func Lookup(id CommandID) (Command, bool) {
	for _, c := range Commands {
		if c.ID == id {
			return c, true
		}
	}
	return Command{ID: CmdUnknown}, false
}

// Match resolves recognizer text to a command, first by phrase and then
// by name. Unmatched text returns an unknown command with that text.
func Match(text string) (Command, bool) {
	text = strings.TrimSpace(text)
	for _, c := range Commands {
		if strings.EqualFold(c.Phrase, text) {
			return c, true
		}
	}
	if id, ok := ParseCommand(text); ok {
		return Lookup(id)
	}
	return Command{ID: CmdUnknown, Phrase: text}, false
}
