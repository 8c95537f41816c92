package engine

// Command is the closed sum type of user-issued actions the command-parser
// collaborator produces and the engine consumes, per spec.md §6. Like
// irc.Message, it is sealed by an unexported marker method, so the set of
// cases a type switch over Command in the engine's dispatch has to cover
// is closed (spec.md §9, "Sum type over inheritance"). The Go compiler
// does not check that such a switch covers all of them.
//
// Grounded on the teacher's commandSet/action shapes (commands.go,
// irc/states.go's action type): spec.md names the outward-facing verbs,
// the teacher shows the idiomatic small-struct-per-verb layout.
type Command interface {
	isCommand()
}

type cmdBase struct{}

func (cmdBase) isCommand() {}

// Connect requests the engine (re)connect to its configured server.
type Connect struct{ cmdBase }

// Exit requests the engine shut down cleanly (QUIT then close).
type Exit struct {
	cmdBase
	Reason string
}

// Help requests the command-parser collaborator print usage; the engine
// never interprets it, but spec.md §6 lists it in the command surface so
// the ADT stays closed over every verb the parser may hand the engine.
type Help struct {
	cmdBase
	Command string // "" for general help.
}

// Join requests the engine join one or more channels.
type Join struct {
	cmdBase
	Channels []string
	Keys     []string
	NoSwitch bool
}

// Kick requests a KICK of nick from channel.
type Kick struct {
	cmdBase
	Channel string
	Nick    string
	Reason  string
}

// Mode requests a MODE change or query on target.
type Mode struct {
	cmdBase
	Target     string
	ModeString string
	Args       []string
}

// Msg sends text to one or more explicit targets.
type Msg struct {
	cmdBase
	Targets []string
	Text    string
}

// MsgCurrent sends text to the focused channel, per spec.md §4.5 ("/msg to
// 'current channel' resolves through focused_channel()"). Absence of a
// focused channel is a user-visible error, never a fallback.
type MsgCurrent struct {
	cmdBase
	Text string
}

// Nick requests a nickname change.
type Nick struct {
	cmdBase
	Nick string
}

// Notice sends a NOTICE to one or more explicit targets.
type Notice struct {
	cmdBase
	Targets []string
	Text    string
}

// Part requests the engine leave one or more channels.
type Part struct {
	cmdBase
	Channels []string
	Reason   string
}

// Quit requests a clean disconnect with an optional reason.
type Quit struct {
	cmdBase
	Reason string
}

// Typing requests an outbound typing-notification state change toward
// target, per SPEC_FULL.md §12's "+typing" client-tag supplemental
// feature: Active true announces composing (subject to the engine's
// 3-second re-announce throttle), false announces the composer stopped.
type Typing struct {
	cmdBase
	Target string
	Active bool
}
