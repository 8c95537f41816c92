package irc

import "strings"

// Casemapping identifies the normalization rule a server uses to compare
// nicknames and channel names for equality.
type Casemapping int

const (
	// CasemapRFC1459Value is the implicit default before a server
	// advertises CASEMAPPING: RFC-1459 with no explicit ISUPPORT token.
	CasemapRFC1459Value Casemapping = iota
	CasemapASCIIValue
	CasemapRFC1459StrictValue
	CasemapRFC7613Value
)

// ParseCasemapping maps an ISUPPORT CASEMAPPING value to a Casemapping, or
// reports ok=false for an unrecognized value.
func ParseCasemapping(s string) (cm Casemapping, ok bool) {
	switch s {
	case "ascii":
		return CasemapASCIIValue, true
	case "rfc1459":
		return CasemapRFC1459Value, true
	case "rfc1459-strict":
		return CasemapRFC1459StrictValue, true
	case "rfc7613":
		return CasemapRFC7613Value, true
	default:
		return CasemapRFC1459Value, false
	}
}

func (cm Casemapping) String() string {
	switch cm {
	case CasemapASCIIValue:
		return "ascii"
	case CasemapRFC1459StrictValue:
		return "rfc1459-strict"
	case CasemapRFC7613Value:
		return "rfc7613"
	default:
		return "rfc1459"
	}
}

// Fold normalizes name according to cm, for use as a map lookup key.
// Display strings are never derived from the folded form.
func (cm Casemapping) Fold(name string) string {
	switch cm {
	case CasemapASCIIValue:
		return CasemapASCII(name)
	case CasemapRFC1459StrictValue:
		return CasemapRFC1459Strict(name)
	case CasemapRFC7613Value:
		// rfc7613 (PRECIS) case-folding is locale-independent Unicode
		// lowercasing; we approximate it with strings.ToLower, which is
		// correct for the ASCII-range identifiers real networks use.
		return strings.ToLower(name)
	default:
		return CasemapRFC1459(name)
	}
}

// CasemapASCII is the canonical representation of name under the ascii
// casemapping.
func CasemapASCII(name string) string {
	var sb strings.Builder
	sb.Grow(len(name))
	for _, r := range name {
		if 'A' <= r && r <= 'Z' {
			r += 'a' - 'A'
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// CasemapRFC1459 is the canonical representation of name under the
// rfc-1459 casemapping (ascii folding, plus {}|^ as the lowercase
// counterparts of []\~).
func CasemapRFC1459(name string) string {
	return foldRFC1459(name, true)
}

// CasemapRFC1459Strict is rfc1459 without the non-standard '~'→'^'
// mapping that some implementations (including the original RFC-1459
// casemapping before later revisions) omit.
func CasemapRFC1459Strict(name string) string {
	return foldRFC1459(name, false)
}

func foldRFC1459(name string, foldTilde bool) string {
	var sb strings.Builder
	sb.Grow(len(name))
	for _, r := range name {
		switch {
		case 'A' <= r && r <= 'Z':
			r += 'a' - 'A'
		case r == '[':
			r = '{'
		case r == ']':
			r = '}'
		case r == '\\':
			r = '|'
		case foldTilde && r == '~':
			r = '^'
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
