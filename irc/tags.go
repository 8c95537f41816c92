package irc

import "strings"

// tagEscape returns the value of '\c' given c, per the message-tags
// specification.
func tagEscape(c rune) rune {
	switch c {
	case ':':
		return ';'
	case 's':
		return ' '
	case 'r':
		return '\r'
	case 'n':
		return '\n'
	default:
		return c
	}
}

// unescapeTagValue removes escapes from escaped and replaces them with
// their meaningful values. A trailing lone backslash passes through
// unchanged, and an unknown "\X" escape becomes "\X" per spec.md §4.1.
func unescapeTagValue(escaped string) string {
	var sb strings.Builder
	sb.Grow(len(escaped))

	runes := []rune(escaped)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if c != '\\' {
			sb.WriteRune(c)
			continue
		}
		if i+1 == len(runes) {
			// trailing lone backslash: passes through.
			sb.WriteRune('\\')
			break
		}
		i++
		switch runes[i] {
		case ':', 's', 'r', 'n', '\\':
			sb.WriteRune(tagEscape(runes[i]))
		default:
			// unknown escape: kept as written, backslash included.
			sb.WriteRune('\\')
			sb.WriteRune(runes[i])
		}
	}

	return sb.String()
}

// escapeTagValue is the inverse of unescapeTagValue.
func escapeTagValue(unescaped string) string {
	var sb strings.Builder
	sb.Grow(len(unescaped))

	for _, c := range unescaped {
		switch c {
		case ';':
			sb.WriteString(`\:`)
		case ' ':
			sb.WriteString(`\s`)
		case '\r':
			sb.WriteString(`\r`)
		case '\n':
			sb.WriteString(`\n`)
		case '\\':
			sb.WriteString(`\\`)
		default:
			sb.WriteRune(c)
		}
	}

	return sb.String()
}

// parseTags parses the tag-list portion of a line (without the leading
// '@'), returning a tag-name to unescaped-value mapping. The order in
// which the tags appeared on the wire is not kept.
func parseTags(s string) Tags {
	tags := Tags{}

	for _, item := range strings.Split(s, ";") {
		if item == "" {
			continue
		}

		kv := strings.SplitN(item, "=", 2)
		if len(kv) < 2 {
			tags[kv[0]] = ""
		} else {
			tags[kv[0]] = unescapeTagValue(kv[1])
		}
	}

	return tags
}

// renderTags renders tags in "@k1=v1;k2=v2" form (without a trailing
// space). The iteration order of a Go map is not stable, which is fine:
// spec.md only requires the tag *set* to round-trip, not byte-for-byte
// ordering.
func renderTags(tags Tags) string {
	if len(tags) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteByte('@')
	first := true
	for k, v := range tags {
		if !first {
			sb.WriteByte(';')
		}
		first = false
		sb.WriteString(k)
		if v != "" {
			sb.WriteByte('=')
			sb.WriteString(escapeTagValue(v))
		}
	}
	return sb.String()
}
