package irc

// Privmsg is "PRIVMSG <targets> :<text>". Targets is split on ',' from
// the wire's single target parameter; spec.md §8 requires the engine to
// emit one display line per target.
type Privmsg struct {
	rawMessage
	Targets []string
	Text    string
}

// Notice is "NOTICE <targets> :<text>".
type Notice struct {
	rawMessage
	Targets []string
	Text    string
}

// TagMsg is "TAGMSG <targets>", carrying no text body — only tags, used
// by the "+typing" client-tag typing-notification extension (spec.md §12
// supplemental feature, grounded on the teacher's irc/typing.go).
type TagMsg struct {
	rawMessage
	Targets []string
}

// NewTagMsg builds an outbound TagMsg carrying tags, e.g. a "+typing"
// client tag. Message's own fields are unexported so callers outside this
// package (the engine) can't set them on a literal directly.
func NewTagMsg(targets []string, tags Tags) TagMsg {
	return TagMsg{rawMessage: rawMessage{tags: tags}, Targets: targets}
}

// Ping is "PING :<token>".
type Ping struct {
	rawMessage
	Token string
}

// Pong is "PONG [<server>] :<token>".
type Pong struct {
	rawMessage
	Server string
	Token  string
}

// ErrorMsg is the server's "ERROR :<reason>", which terminates the
// connection.
type ErrorMsg struct {
	rawMessage
	Reason string
}
