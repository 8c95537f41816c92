package irc

import "strings"

// isupportBareKeys are ISUPPORT tokens that may legally appear with no
// "=value" suffix, so a final bare word like "SAFELIST" (no trailing
// human-readable comment on the line) is still recognized as a token
// rather than mistaken for free text.
var isupportBareKeys = map[string]struct{}{
	"SAFELIST": {}, "EXCEPTS": {}, "INVEX": {},
}

// splitIsupportTrailing implements spec.md §13's resolution of the
// "are supported" ambiguity: every parameter up to, but not including, a
// final parameter is always a token; the final parameter is itself a
// token only if it contains '=' or is a bare key ISUPPORT allows with no
// value, and is otherwise the server's free-text trailing comment.
func splitIsupportTrailing(params []string) (tokens []string, text string) {
	if len(params) == 0 {
		return nil, ""
	}
	last := params[len(params)-1]
	if isIsupportToken(last) {
		return params, ""
	}
	return params[:len(params)-1], last
}

func isIsupportToken(s string) bool {
	if strings.ContainsRune(s, '=') {
		return true
	}
	key := s
	if strings.HasPrefix(key, "-") {
		key = key[1:]
	}
	_, ok := isupportBareKeys[strings.ToUpper(key)]
	return ok
}

// dispatchNumeric builds the dedicated variant for the numeric codes the
// engine's state machine reads typed fields from, falling back to the
// generic Numeric{Code, Params} for the long tail spec.md enumerates, of
// which the engine only reads the Code.
func dispatchNumeric(ctx *parseContext) Message {
	switch ctx.command {
	case RplWelcome:
		a, ok := plan(ctx.params, []extractor{{"nick", 1, 1}, {"text", 0, 1}})
		if !ok {
			return nil
		}
		return Welcome{rawMessage: base(ctx), Nick: one(ctx, a, "nick"), Text: optional(ctx, a, "text", "")}
	case RplYourhost:
		a, ok := plan(ctx.params, []extractor{{"nick", 1, 1}, {"text", 0, 1}})
		if !ok {
			return nil
		}
		return YourHost{rawMessage: base(ctx), Nick: one(ctx, a, "nick"), Text: optional(ctx, a, "text", "")}
	case RplCreated:
		a, ok := plan(ctx.params, []extractor{{"nick", 1, 1}, {"text", 0, 1}})
		if !ok {
			return nil
		}
		return Created{rawMessage: base(ctx), Nick: one(ctx, a, "nick"), Text: optional(ctx, a, "text", "")}
	case RplMyinfo:
		a, ok := plan(ctx.params, []extractor{
			{"nick", 1, 1}, {"server", 0, 1}, {"version", 0, 1},
			{"usermodes", 0, 1}, {"chanmodes", 0, 1},
		})
		if !ok {
			return nil
		}
		return MyInfo{
			rawMessage: base(ctx),
			Nick:       one(ctx, a, "nick"),
			Server:     optional(ctx, a, "server", ""),
			Version:    optional(ctx, a, "version", ""),
			UserModes:  optional(ctx, a, "usermodes", ""),
			ChanModes:  optional(ctx, a, "chanmodes", ""),
		}
	case RplIsupport:
		if len(ctx.params) < 1 {
			ctx.fail("nick")
			return Isupport{rawMessage: base(ctx)}
		}
		nick := ctx.params[0]
		rest := ctx.params[1:]
		tokens, text := splitIsupportTrailing(rest)
		return Isupport{rawMessage: base(ctx), Nick: nick, Tokens: tokens, Text: text}
	case RplNotopic:
		a, ok := plan(ctx.params, []extractor{{"nick", 1, 1}, {"channel", 1, 1}, {"text", 0, 1}})
		if !ok {
			return nil
		}
		return NoTopic{rawMessage: base(ctx), Nick: one(ctx, a, "nick"), Channel: one(ctx, a, "channel"), Text: optional(ctx, a, "text", "")}
	case RplTopic:
		a, ok := plan(ctx.params, []extractor{{"nick", 1, 1}, {"channel", 1, 1}, {"topic", 0, 1}})
		if !ok {
			return nil
		}
		return TopicReply{rawMessage: base(ctx), Nick: one(ctx, a, "nick"), Channel: one(ctx, a, "channel"), Topic: optional(ctx, a, "topic", "")}
	case RplTopicwhotime:
		a, ok := plan(ctx.params, []extractor{
			{"nick", 1, 1}, {"channel", 1, 1}, {"who", 1, 1}, {"setat", 1, 1},
		})
		if !ok {
			return nil
		}
		return TopicWhoTime{
			rawMessage: base(ctx),
			Nick:       one(ctx, a, "nick"),
			Channel:    one(ctx, a, "channel"),
			Who:        one(ctx, a, "who"),
			SetAt:      int64(asInt(ctx, "setat", one(ctx, a, "setat"), 0)),
		}
	case RplNamreply:
		a, ok := plan(ctx.params, []extractor{
			{"nick", 1, 1}, {"symbol", 1, 1}, {"channel", 1, 1}, {"names", 0, 1},
		})
		if !ok {
			return nil
		}
		return NamReply{
			rawMessage: base(ctx),
			Nick:       one(ctx, a, "nick"),
			Symbol:     one(ctx, a, "symbol"),
			Channel:    one(ctx, a, "channel"),
			Names:      strings.Fields(optional(ctx, a, "names", "")),
		}
	case RplEndofnames:
		a, ok := plan(ctx.params, []extractor{{"nick", 1, 1}, {"channel", 1, 1}, {"text", 0, 1}})
		if !ok {
			return nil
		}
		return EndOfNames{rawMessage: base(ctx), Nick: one(ctx, a, "nick"), Channel: one(ctx, a, "channel"), Text: optional(ctx, a, "text", "")}
	case RplWhoreply:
		a, ok := plan(ctx.params, []extractor{
			{"nick", 1, 1}, {"channel", 1, 1}, {"user", 1, 1}, {"host", 1, 1},
			{"server", 1, 1}, {"targetnick", 1, 1}, {"flags", 1, 1}, {"hopsandreal", 0, 1},
		})
		if !ok {
			return nil
		}
		return WhoReply{
			rawMessage:  base(ctx),
			Nick:        one(ctx, a, "nick"),
			Channel:     one(ctx, a, "channel"),
			User:        one(ctx, a, "user"),
			Host:        one(ctx, a, "host"),
			Server:      one(ctx, a, "server"),
			TargetNick:  one(ctx, a, "targetnick"),
			Flags:       one(ctx, a, "flags"),
			HopsAndReal: optional(ctx, a, "hopsandreal", ""),
		}
	case RplWhoisuser:
		a, ok := plan(ctx.params, []extractor{
			{"nick", 1, 1}, {"target", 1, 1}, {"user", 1, 1}, {"host", 1, 1},
			{"star", 0, 1}, {"realname", 0, 1},
		})
		if !ok {
			return nil
		}
		return WhoisUser{
			rawMessage: base(ctx),
			Nick:       one(ctx, a, "nick"),
			Target:     one(ctx, a, "target"),
			User:       one(ctx, a, "user"),
			Host:       one(ctx, a, "host"),
			Realname:   optional(ctx, a, "realname", ""),
		}
	case RplEndofwhois:
		a, ok := plan(ctx.params, []extractor{{"nick", 1, 1}, {"target", 1, 1}, {"text", 0, 1}})
		if !ok {
			return nil
		}
		return EndOfWhois{rawMessage: base(ctx), Nick: one(ctx, a, "nick"), Target: one(ctx, a, "target"), Text: optional(ctx, a, "text", "")}
	case RplList:
		a, ok := plan(ctx.params, []extractor{
			{"nick", 1, 1}, {"channel", 1, 1}, {"visible", 0, 1}, {"topic", 0, 1},
		})
		if !ok {
			return nil
		}
		return ListReply{
			rawMessage: base(ctx),
			Nick:       one(ctx, a, "nick"),
			Channel:    one(ctx, a, "channel"),
			Visible:    optional(ctx, a, "visible", ""),
			Topic:      optional(ctx, a, "topic", ""),
		}
	case RplListend:
		a, ok := plan(ctx.params, []extractor{{"nick", 1, 1}, {"text", 0, 1}})
		if !ok {
			return nil
		}
		return ListEnd{rawMessage: base(ctx), Nick: one(ctx, a, "nick"), Text: optional(ctx, a, "text", "")}
	case RplMotd:
		a, ok := plan(ctx.params, []extractor{{"nick", 1, 1}, {"text", 0, 1}})
		if !ok {
			return nil
		}
		return MotdLine{rawMessage: base(ctx), Nick: one(ctx, a, "nick"), Text: optional(ctx, a, "text", "")}
	case RplMotdstart:
		a, ok := plan(ctx.params, []extractor{{"nick", 1, 1}, {"text", 0, 1}})
		if !ok {
			return nil
		}
		return MotdStart{rawMessage: base(ctx), Nick: one(ctx, a, "nick"), Text: optional(ctx, a, "text", "")}
	case RplEndofmotd:
		a, ok := plan(ctx.params, []extractor{{"nick", 1, 1}, {"text", 0, 1}})
		if !ok {
			return nil
		}
		return EndOfMotd{rawMessage: base(ctx), Nick: one(ctx, a, "nick"), Text: optional(ctx, a, "text", "")}
	default:
		return Numeric{rawMessage: base(ctx), Code: ctx.command, Params: ctx.params}
	}
}
