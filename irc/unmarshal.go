package irc

import "strings"

// Unmarshal parses one wire line (without its trailing CR/LF) into a
// Message. Unknown commands and structurally malformed lines become
// Unsupported rather than an error, per spec.md §4.1's permissive
// grammar, and so does a line whose prefix fails Prefix.IsValid; a line
// that tokenizes but has a parameter that fails to convert becomes
// ParseError. A known command with fewer parameters than it requires also
// becomes Unsupported, except PASS and NICK, whose missing parameter is
// reported as a ParseError.
func Unmarshal(line string) Message {
	raw := line
	rest := line

	var tags Tags
	if strings.HasPrefix(rest, "@") {
		sp := strings.IndexByte(rest, ' ')
		if sp < 0 {
			return unsupported(raw, nil, nil, "", nil)
		}
		tags = parseTags(rest[1:sp])
		rest = strings.TrimLeft(rest[sp+1:], " ")
	}

	var prefix *Prefix
	if strings.HasPrefix(rest, ":") {
		sp := strings.IndexByte(rest, ' ')
		if sp < 0 {
			return unsupported(raw, tags, nil, "", nil)
		}
		prefix = ParsePrefix(rest[1:sp])
		if !prefix.IsValid() {
			return unsupported(raw, tags, nil, "", nil)
		}
		rest = strings.TrimLeft(rest[sp+1:], " ")
	}

	if rest == "" {
		return unsupported(raw, tags, prefix, "", nil)
	}

	command, paramStr := rest, ""
	if sp := strings.IndexByte(rest, ' '); sp >= 0 {
		command = rest[:sp]
		paramStr = strings.TrimLeft(rest[sp+1:], " ")
	}
	command = strings.ToUpper(command)

	params := splitParams(paramStr)

	ctx := &parseContext{raw: raw, tags: tags, prefix: prefix, command: command, params: params}
	msg := dispatch(ctx)
	if msg == nil {
		return unsupported(raw, tags, prefix, command, params)
	}
	if len(ctx.errorParameters) > 0 {
		return ParseError{
			rawMessage: rawMessage{raw: raw, tags: tags, prefix: prefix},
			Command:    command,
			Names:      ctx.errorParameters,
			Reason:     "one or more parameters could not be parsed",
		}
	}
	return msg
}

// splitParams splits a params string into middle parameters plus, if a
// trailing ":"-prefixed argument is present, a final trailing parameter
// that may itself contain spaces.
func splitParams(s string) []string {
	if s == "" {
		return nil
	}

	var params []string
	for {
		if strings.HasPrefix(s, ":") {
			params = append(params, s[1:])
			return params
		}
		sp := strings.IndexByte(s, ' ')
		if sp < 0 {
			params = append(params, s)
			return params
		}
		params = append(params, s[:sp])
		s = strings.TrimLeft(s[sp+1:], " ")
		if s == "" {
			return params
		}
	}
}

func unsupported(raw string, tags Tags, prefix *Prefix, command string, params []string) Message {
	return Unsupported{
		rawMessage: rawMessage{raw: raw, tags: tags, prefix: prefix},
		Command:    command,
		Params:     params,
	}
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// dispatch selects and runs the per-command builder. It returns nil for
// commands this package does not recognize, letting the caller fall back
// to Unsupported.
func dispatch(ctx *parseContext) Message {
	if isNumeric(ctx.command) {
		return dispatchNumeric(ctx)
	}

	switch ctx.command {
	case "CAP":
		return dispatchCap(ctx)
	case "PASS":
		a, _ := plan(ctx.params, []extractor{{"password", 1, 1}})
		return Pass{rawMessage: base(ctx), Password: one(ctx, a, "password")}
	case "NICK":
		a, _ := plan(ctx.params, []extractor{{"nickname", 1, 1}})
		return Nick{rawMessage: base(ctx), Nickname: one(ctx, a, "nickname")}
	case "USER":
		a, ok := plan(ctx.params, []extractor{
			{"user", 1, 1}, {"mode", 1, 1}, {"unused", 1, 1}, {"realname", 1, 1},
		})
		if !ok {
			return nil
		}
		return User{
			rawMessage: base(ctx),
			User:       one(ctx, a, "user"),
			Mode:       one(ctx, a, "mode"),
			Realname:   one(ctx, a, "realname"),
		}
	case "OPER":
		a, ok := plan(ctx.params, []extractor{{"name", 1, 1}, {"password", 1, 1}})
		if !ok {
			return nil
		}
		return Oper{rawMessage: base(ctx), Name: one(ctx, a, "name"), Password: one(ctx, a, "password")}
	case "QUIT":
		a, _ := plan(ctx.params, []extractor{{"reason", 0, 1}})
		return Quit{rawMessage: base(ctx), Reason: optional(ctx, a, "reason", "")}
	case "AUTHENTICATE":
		a, ok := plan(ctx.params, []extractor{{"payload", 1, 1}})
		if !ok {
			return nil
		}
		return Authenticate{rawMessage: base(ctx), Payload: one(ctx, a, "payload")}
	case "JOIN":
		if ifIndexEquals(ctx.params, 0, "0") && len(ctx.params) == 1 {
			return JoinZero{rawMessage: base(ctx)}
		}
		a, ok := plan(ctx.params, []extractor{{"channels", 1, 1}, {"keys", 0, 1}})
		if !ok {
			return nil
		}
		return Join{
			rawMessage: base(ctx),
			Channels:   splitComma(one(ctx, a, "channels")),
			Keys:       splitComma(optional(ctx, a, "keys", "")),
		}
	case "PART":
		a, ok := plan(ctx.params, []extractor{{"channels", 1, 1}, {"reason", 0, 1}})
		if !ok {
			return nil
		}
		return Part{
			rawMessage: base(ctx),
			Channels:   splitComma(one(ctx, a, "channels")),
			Reason:     optional(ctx, a, "reason", ""),
		}
	case "KICK":
		a, ok := plan(ctx.params, []extractor{
			{"channel", 1, 1}, {"user", 1, 1}, {"comment", 0, 1},
		})
		if !ok {
			return nil
		}
		return Kick{
			rawMessage: base(ctx),
			Channel:    one(ctx, a, "channel"),
			User:       one(ctx, a, "user"),
			Comment:    optional(ctx, a, "comment", ""),
		}
	case "MODE":
		a, ok := plan(ctx.params, []extractor{
			{"target", 1, 1}, {"modestring", 0, 1}, {"args", 0, -1},
		})
		if !ok {
			return nil
		}
		return Mode{
			rawMessage: base(ctx),
			Target:     one(ctx, a, "target"),
			ModeString: optional(ctx, a, "modestring", ""),
			Args:       rest(a, "args"),
		}
	case "TOPIC":
		a, ok := plan(ctx.params, []extractor{{"channel", 1, 1}, {"topic", 0, 1}})
		if !ok {
			return nil
		}
		return Topic{
			rawMessage: base(ctx),
			Channel:    one(ctx, a, "channel"),
			Topic:      optional(ctx, a, "topic", ""),
			HasTopic:   len(a["topic"]) > 0,
		}
	case "PRIVMSG":
		a, ok := plan(ctx.params, []extractor{{"targets", 1, 1}, {"text", 1, 1}})
		if !ok {
			return nil
		}
		return Privmsg{
			rawMessage: base(ctx),
			Targets:    splitComma(one(ctx, a, "targets")),
			Text:       one(ctx, a, "text"),
		}
	case "NOTICE":
		a, ok := plan(ctx.params, []extractor{{"targets", 1, 1}, {"text", 1, 1}})
		if !ok {
			return nil
		}
		return Notice{
			rawMessage: base(ctx),
			Targets:    splitComma(one(ctx, a, "targets")),
			Text:       one(ctx, a, "text"),
		}
	case "TAGMSG":
		a, ok := plan(ctx.params, []extractor{{"targets", 1, 1}})
		if !ok {
			return nil
		}
		return TagMsg{rawMessage: base(ctx), Targets: splitComma(one(ctx, a, "targets"))}
	case "PING":
		a, _ := plan(ctx.params, []extractor{{"token", 0, 1}})
		return Ping{rawMessage: base(ctx), Token: optional(ctx, a, "token", "")}
	case "PONG":
		if len(ctx.params) == 1 {
			// A lone parameter is the token: "PONG :<token>".
			return Pong{rawMessage: base(ctx), Token: ctx.params[0]}
		}
		a, ok := plan(ctx.params, []extractor{{"server", 0, 1}, {"token", 0, 1}})
		if !ok {
			return nil
		}
		return Pong{rawMessage: base(ctx), Server: optional(ctx, a, "server", ""), Token: optional(ctx, a, "token", "")}
	case "ERROR":
		a, _ := plan(ctx.params, []extractor{{"reason", 0, 1}})
		return ErrorMsg{rawMessage: base(ctx), Reason: optional(ctx, a, "reason", "")}
	default:
		return nil
	}
}

func base(ctx *parseContext) rawMessage {
	return rawMessage{raw: ctx.raw, tags: ctx.tags, prefix: ctx.prefix}
}

// dispatchCap implements the two-level CAP dispatch from spec.md §4.1:
// params[0] selects between client-origin subcommands (END, LS, LIST,
// REQ) and the server form, where params[0] is the target nick and
// params[1] is the subcommand.
func dispatchCap(ctx *parseContext) Message {
	if len(ctx.params) == 0 {
		return nil
	}
	switch strings.ToUpper(ctx.params[0]) {
	case "END":
		return CapEnd{rawMessage: base(ctx)}
	case "LS":
		if len(ctx.params) > 1 {
			return CapLS{rawMessage: base(ctx), Version: ctx.params[1]}
		}
		return CapLS{rawMessage: base(ctx)}
	case "LIST":
		return CapListRequest{rawMessage: base(ctx)}
	case "REQ":
		if len(ctx.params) < 2 {
			return nil
		}
		return CapReq{rawMessage: base(ctx), Caps: strings.Fields(ctx.params[1])}
	}

	if len(ctx.params) < 2 {
		return nil
	}
	target := ctx.params[0]
	sub := strings.ToUpper(ctx.params[1])

	switch sub {
	case "LS":
		caps, more, ok := capListWithContinuation(ctx.params[2:])
		if !ok {
			return nil
		}
		return CapLSReply{rawMessage: base(ctx), Target: target, More: more, Caps: caps}
	case "LIST":
		caps, more, ok := capListWithContinuation(ctx.params[2:])
		if !ok {
			return nil
		}
		return CapListReply{rawMessage: base(ctx), Target: target, More: more, Caps: caps}
	case "ACK":
		if len(ctx.params) < 3 {
			return nil
		}
		return CapAck{rawMessage: base(ctx), Target: target, Caps: strings.Fields(ctx.params[2])}
	case "NAK":
		if len(ctx.params) < 3 {
			return nil
		}
		return CapNak{rawMessage: base(ctx), Target: target, Caps: strings.Fields(ctx.params[2])}
	case "NEW":
		if len(ctx.params) < 3 {
			return nil
		}
		return CapNew{rawMessage: base(ctx), Target: target, Caps: parseCapList(ctx.params[2])}
	case "DEL":
		if len(ctx.params) < 3 {
			return nil
		}
		return CapDel{rawMessage: base(ctx), Target: target, Caps: parseCapList(ctx.params[2])}
	default:
		return nil
	}
}

// capListWithContinuation reads the remainder of a CAP LS/LIST reply's
// parameters, per IRCv3's multi-line convention: a literal "*" parameter
// right after the subcommand means more chunks follow, and is itself a
// parameter distinct from the trailing capability list (e.g.
// "CAP * LS * :cap1 cap2" is four wire parameters, not three).
func capListWithContinuation(rest []string) (caps []Cap, more bool, ok bool) {
	if len(rest) == 0 {
		return nil, false, false
	}
	if rest[0] == "*" && len(rest) > 1 {
		return parseCapList(rest[1]), true, true
	}
	return parseCapList(rest[0]), false, true
}

// parseCapList splits a space-separated "name[=value]" capability list.
func parseCapList(s string) []Cap {
	fields := strings.Fields(s)
	caps := make([]Cap, 0, len(fields))
	for _, f := range fields {
		if i := strings.IndexByte(f, '='); i >= 0 {
			caps = append(caps, Cap{Name: f[:i], Value: f[i+1:]})
		} else {
			caps = append(caps, Cap{Name: f})
		}
	}
	return caps
}
