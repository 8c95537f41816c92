package irc

import "strings"

// Marshal renders msg as a wire line, without a trailing CR/LF. Unsupported
// and ParseError round-trip by emitting their stored raw line verbatim,
// per spec.md §4.2.
func Marshal(msg Message) string {
	switch m := msg.(type) {
	case Unsupported:
		return m.raw
	case ParseError:
		return m.raw

	case CapLS:
		if m.Version != "" {
			return render(m.tags, m.prefix, "CAP", []string{"LS", m.Version}, false)
		}
		return render(m.tags, m.prefix, "CAP", []string{"LS"}, false)
	case CapListRequest:
		return render(m.tags, m.prefix, "CAP", []string{"LIST"}, false)
	case CapReq:
		return render(m.tags, m.prefix, "CAP", []string{"REQ", strings.Join(m.Caps, " ")}, true)
	case CapEnd:
		return render(m.tags, m.prefix, "CAP", []string{"END"}, false)
	case CapLSReply:
		return render(m.tags, m.prefix, "CAP", capContinuationParams(m.Target, "LS", m.Caps, m.More), true)
	case CapListReply:
		return render(m.tags, m.prefix, "CAP", capContinuationParams(m.Target, "LIST", m.Caps, m.More), true)
	case CapAck:
		return render(m.tags, m.prefix, "CAP", []string{m.Target, "ACK", strings.Join(m.Caps, " ")}, true)
	case CapNak:
		return render(m.tags, m.prefix, "CAP", []string{m.Target, "NAK", strings.Join(m.Caps, " ")}, true)
	case CapNew:
		return render(m.tags, m.prefix, "CAP", []string{m.Target, "NEW", renderCapList(m.Caps)}, true)
	case CapDel:
		return render(m.tags, m.prefix, "CAP", []string{m.Target, "DEL", renderCapList(m.Caps)}, true)

	case Pass:
		return render(m.tags, m.prefix, "PASS", []string{m.Password}, false)
	case Nick:
		return render(m.tags, m.prefix, "NICK", []string{m.Nickname}, false)
	case User:
		return render(m.tags, m.prefix, "USER", []string{m.User, m.Mode, "*", m.Realname}, true)
	case Oper:
		return render(m.tags, m.prefix, "OPER", []string{m.Name, m.Password}, false)
	case Quit:
		return render(m.tags, m.prefix, "QUIT", []string{m.Reason}, true)
	case Authenticate:
		return render(m.tags, m.prefix, "AUTHENTICATE", []string{m.Payload}, false)

	case JoinZero:
		return render(m.tags, m.prefix, "JOIN", []string{"0"}, false)
	case Join:
		params := []string{strings.Join(m.Channels, ",")}
		if len(m.Keys) > 0 {
			params = append(params, strings.Join(m.Keys, ","))
		}
		return render(m.tags, m.prefix, "JOIN", params, false)
	case Part:
		params := []string{strings.Join(m.Channels, ",")}
		if m.Reason != "" {
			params = append(params, m.Reason)
		}
		return render(m.tags, m.prefix, "PART", params, len(params) > 1)
	case Kick:
		params := []string{m.Channel, m.User}
		if m.Comment != "" {
			params = append(params, m.Comment)
		}
		return render(m.tags, m.prefix, "KICK", params, len(params) > 2)
	case Mode:
		params := []string{m.Target}
		if m.ModeString != "" {
			params = append(params, m.ModeString)
		}
		params = append(params, m.Args...)
		return render(m.tags, m.prefix, "MODE", params, false)
	case Topic:
		params := []string{m.Channel}
		if m.HasTopic {
			params = append(params, m.Topic)
		}
		return render(m.tags, m.prefix, "TOPIC", params, m.HasTopic)

	case Privmsg:
		return render(m.tags, m.prefix, "PRIVMSG", []string{strings.Join(m.Targets, ","), m.Text}, true)
	case Notice:
		return render(m.tags, m.prefix, "NOTICE", []string{strings.Join(m.Targets, ","), m.Text}, true)
	case TagMsg:
		return render(m.tags, m.prefix, "TAGMSG", []string{strings.Join(m.Targets, ",")}, false)
	case Ping:
		return render(m.tags, m.prefix, "PING", []string{m.Token}, true)
	case Pong:
		params := []string{}
		if m.Server != "" {
			params = append(params, m.Server)
		}
		params = append(params, m.Token)
		return render(m.tags, m.prefix, "PONG", params, true)
	case ErrorMsg:
		return render(m.tags, m.prefix, "ERROR", []string{m.Reason}, true)

	default:
		return m.Raw()
	}
}

// renderCapList renders a []Cap back into "name[=value] ..." form.
func renderCapList(caps []Cap) string {
	parts := make([]string, 0, len(caps))
	for _, c := range caps {
		if c.Value != "" {
			parts = append(parts, c.Name+"="+c.Value)
		} else {
			parts = append(parts, c.Name)
		}
	}
	return strings.Join(parts, " ")
}

// capContinuationParams assembles a CAP LS/LIST reply's parameter list,
// inserting the IRCv3 "*" continuation marker as its own parameter (per
// capListWithContinuation's unmarshal-side counterpart) rather than as
// part of the trailing capability list.
func capContinuationParams(target, sub string, caps []Cap, more bool) []string {
	params := []string{target, sub}
	if more {
		params = append(params, "*")
	}
	return append(params, renderCapList(caps))
}

// render assembles "@tags :prefix COMMAND p1 p2 :trailing", the inverse of
// the unmarshaller's tokenizer. When forceTrailing is true the last
// parameter is always rendered with a leading ':', even if it contains no
// spaces and is non-empty; otherwise a last parameter is only rendered as
// trailing when it contains a space, starts with ':', or is empty, mirroring
// the teacher's Message.String.
func render(tags Tags, prefix *Prefix, command string, params []string, forceTrailing bool) string {
	var sb strings.Builder

	if len(tags) > 0 {
		sb.WriteString(renderTags(tags))
		sb.WriteByte(' ')
	}

	if prefix != nil {
		sb.WriteByte(':')
		sb.WriteString(prefix.String())
		sb.WriteByte(' ')
	}

	sb.WriteString(command)

	for i, p := range params {
		last := i == len(params)-1
		sb.WriteByte(' ')
		if last && (forceTrailing || p == "" || strings.HasPrefix(p, ":") || strings.ContainsRune(p, ' ')) {
			sb.WriteByte(':')
		}
		sb.WriteString(p)
	}

	return sb.String()
}
