package irc

import (
	"regexp"
	"strconv"
	"strings"
)

// Parameters is the typed view of the server's ISUPPORT (005) advertisement,
// per spec.md §3.2. Unset integer fields default to "unlimited"
// (unlimitedValue); unset string/char/set fields default to their zero
// value or the documented ISUPPORT default.
type Parameters struct {
	AwayLen int

	// Casemapping is write-once: the first non-default assignment is
	// permanent (spec.md §3.3 invariant 6). casemappingSet records whether
	// that assignment has happened yet.
	Casemapping    Casemapping
	casemappingSet bool

	ChanLimit map[byte]int
	ChanModes [4]map[byte]struct{} // A, B, C, D categories.

	ChannelLen int

	// ChanTypes defaults to {'#', '&'} per spec.md §3.2.
	ChanTypes map[byte]struct{}

	// Excepts/Invex: HasExcepts/HasInvex false means "none" (server sent
	// "-EXCEPTS"/"-INVEX" or never advertised it without a default).
	Excepts    byte
	HasExcepts bool
	Invex      byte
	HasInvex   bool

	// ExtBan: HasExtBan false means not advertised.
	ExtBanPrefix byte
	ExtBanModes  map[byte]struct{}
	HasExtBan    bool

	HostLen int
	KickLen int

	MaxList map[byte]int

	MaxTargets int
	Modes      int
	Network    string
	NickLen    int

	// Prefixes preserves server order: iterate PrefixOrder for priority,
	// highest first, per spec.md's PREFIX glossary entry.
	Prefixes    map[byte]byte // mode letter -> prefix char
	PrefixOrder []byte        // mode letters, in server-advertised order

	SafeList bool
	Silence  int

	StatusMsg map[byte]struct{}

	TargMax map[string]int

	TopicLen int
	UserLen  int
}

// unlimitedValue stands in for "no limit advertised" on integer fields,
// matching spec.md §3.2's "Absent values default to unlimited".
const unlimitedValue = int(^uint(0) >> 1)

// NewParameters returns a Parameters with every field at its documented
// default: unlimited integers, ChanTypes = {#, &}, Excepts/Invex absent,
// Casemapping unset (assume rfc1459 until a server sets it, per spec.md
// §3.3 invariant 6).
func NewParameters() *Parameters {
	return &Parameters{
		AwayLen:     unlimitedValue,
		Casemapping: CasemapRFC1459Value,
		ChanLimit:   map[byte]int{},
		ChanModes:   [4]map[byte]struct{}{{}, {}, {}, {}},
		ChannelLen:  unlimitedValue,
		ChanTypes:   map[byte]struct{}{'#': {}, '&': {}},
		Excepts:     'e',
		Invex:       'I',
		HostLen:     unlimitedValue,
		KickLen:     unlimitedValue,
		MaxList:     map[byte]int{},
		MaxTargets:  unlimitedValue,
		Modes:       unlimitedValue,
		NickLen:     unlimitedValue,
		Prefixes:    map[byte]byte{'o': '@', 'v': '+'},
		PrefixOrder: []byte{'o', 'v'},
		Silence:     unlimitedValue,
		StatusMsg:   map[byte]struct{}{},
		TargMax:     map[string]int{},
		TopicLen:    unlimitedValue,
		UserLen:     unlimitedValue,
	}
}

var prefixRegexp = regexp.MustCompile(`^\(([A-Za-z]+)\)(\S+)$`)

// ApplyISupportToken feeds one "KEY[=VALUE]" or "-KEY" token from a 005
// numeric into p, per spec.md §4.4. Malformed values are swallowed with
// the token simply not taking effect, matching the teacher's
// updateFeatures (irc/states.go), which never propagates a parse error
// for a single 005 token.
func (p *Parameters) ApplyISupportToken(token string) {
	if token == "" {
		return
	}

	reset := false
	key := token
	value := ""
	if strings.HasPrefix(key, "-") {
		reset = true
		key = key[1:]
	}
	if i := strings.IndexByte(key, '='); i >= 0 {
		value = key[i+1:]
		key = key[:i]
	}
	key = strings.ToUpper(key)

	switch key {
	case "AWAYLEN":
		p.applyInt(&p.AwayLen, value, reset)
	case "CASEMAPPING":
		if reset {
			p.setCasemapping(CasemapRFC1459Value)
			return
		}
		if cm, ok := ParseCasemapping(value); ok {
			p.setCasemapping(cm)
		}
	case "CHANLIMIT":
		if reset {
			p.ChanLimit = map[byte]int{}
			return
		}
		for _, part := range strings.Split(value, ",") {
			prefixes, n, ok := splitPrefixesColonInt(part)
			if !ok {
				continue
			}
			for i := 0; i < len(prefixes); i++ {
				p.ChanLimit[prefixes[i]] = n
			}
		}
	case "CHANMODES":
		if reset {
			p.ChanModes = [4]map[byte]struct{}{{}, {}, {}, {}}
			return
		}
		cats := strings.SplitN(value, ",", 4)
		for i := 0; i < 4 && i < len(cats); i++ {
			set := map[byte]struct{}{}
			for j := 0; j < len(cats[i]); j++ {
				set[cats[i][j]] = struct{}{}
			}
			p.ChanModes[i] = set
		}
	case "CHANNELLEN":
		p.applyInt(&p.ChannelLen, value, reset)
	case "CHANTYPES":
		if reset {
			p.ChanTypes = map[byte]struct{}{}
			return
		}
		set := map[byte]struct{}{}
		for i := 0; i < len(value); i++ {
			set[value[i]] = struct{}{}
		}
		p.ChanTypes = set
	case "EXCEPTS":
		if reset {
			p.HasExcepts = false
			return
		}
		p.HasExcepts = true
		if value != "" {
			p.Excepts = value[0]
		} else {
			p.Excepts = 'e'
		}
	case "INVEX":
		if reset {
			p.HasInvex = false
			return
		}
		p.HasInvex = true
		if value != "" {
			p.Invex = value[0]
		} else {
			p.Invex = 'I'
		}
	case "EXTBAN":
		if reset {
			p.HasExtBan = false
			return
		}
		i := strings.IndexByte(value, ',')
		if i < 0 {
			return
		}
		prefix := value[:i]
		modes := value[i+1:]
		if prefix == "" {
			return
		}
		set := map[byte]struct{}{}
		for j := 0; j < len(modes); j++ {
			set[modes[j]] = struct{}{}
		}
		p.ExtBanPrefix = prefix[0]
		p.ExtBanModes = set
		p.HasExtBan = true
	case "HOSTLEN":
		p.applyInt(&p.HostLen, value, reset)
	case "KICKLEN":
		p.applyInt(&p.KickLen, value, reset)
	case "MAXLIST":
		if reset {
			p.MaxList = map[byte]int{}
			return
		}
		for _, part := range strings.Split(value, ",") {
			prefixes, n, ok := splitPrefixesColonInt(part)
			if !ok {
				continue
			}
			for i := 0; i < len(prefixes); i++ {
				p.MaxList[prefixes[i]] = n
			}
		}
	case "MAXTARGETS":
		p.applyInt(&p.MaxTargets, value, reset)
	case "MODES":
		p.applyInt(&p.Modes, value, reset)
	case "NETWORK":
		if reset {
			p.Network = ""
			return
		}
		p.Network = value
	case "NICKLEN":
		p.applyInt(&p.NickLen, value, reset)
	case "PREFIX":
		if reset {
			p.Prefixes = map[byte]byte{}
			p.PrefixOrder = nil
			return
		}
		m := prefixRegexp.FindStringSubmatch(value)
		if m == nil || len(m[1]) != len(m[2]) {
			// Rejected: existing PREFIX retained, per spec.md §8's
			// boundary behavior on unequal-length PREFIX.
			return
		}
		modes, prefixes := m[1], m[2]
		order := make([]byte, len(modes))
		table := make(map[byte]byte, len(modes))
		for i := 0; i < len(modes); i++ {
			order[i] = modes[i]
			table[modes[i]] = prefixes[i]
		}
		p.Prefixes = table
		p.PrefixOrder = order
	case "SAFELIST":
		p.SafeList = !reset
	case "SILENCE":
		p.applyInt(&p.Silence, value, reset)
	case "STATUSMSG":
		if reset {
			p.StatusMsg = map[byte]struct{}{}
			return
		}
		set := map[byte]struct{}{}
		for i := 0; i < len(value); i++ {
			set[value[i]] = struct{}{}
		}
		p.StatusMsg = set
	case "TARGMAX":
		if reset {
			p.TargMax = map[string]int{}
			return
		}
		for _, part := range strings.Split(value, ",") {
			kv := strings.SplitN(part, ":", 2)
			if len(kv) != 2 || kv[0] == "" {
				continue
			}
			if kv[1] == "" {
				p.TargMax[kv[0]] = unlimitedValue
				continue
			}
			n, err := strconv.Atoi(kv[1])
			if err != nil {
				continue
			}
			p.TargMax[kv[0]] = n
		}
	case "TOPICLEN":
		p.applyInt(&p.TopicLen, value, reset)
	case "USERLEN":
		p.applyInt(&p.UserLen, value, reset)
	default:
		// Unknown token: ignored, and not logged.
	}
}

// setCasemapping enforces spec.md §3.3 invariant 6: the first non-default
// assignment is permanent; every later attempt, including a reset, is
// rejected but non-fatal.
func (p *Parameters) setCasemapping(cm Casemapping) {
	if p.casemappingSet {
		return
	}
	p.Casemapping = cm
	p.casemappingSet = true
}

func (p *Parameters) applyInt(field *int, value string, reset bool) {
	if reset {
		*field = unlimitedValue
		return
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return
	}
	*field = n
}

// splitPrefixesColonInt splits a "prefixes[:N]" CHANLIMIT/MAXLIST entry.
func splitPrefixesColonInt(part string) (prefixes string, n int, ok bool) {
	i := strings.IndexByte(part, ':')
	if i < 0 {
		return part, unlimitedValue, part != ""
	}
	prefixes = part[:i]
	if prefixes == "" {
		return "", 0, false
	}
	if part[i+1:] == "" {
		return prefixes, unlimitedValue, true
	}
	v, err := strconv.Atoi(part[i+1:])
	if err != nil {
		return "", 0, false
	}
	return prefixes, v, true
}

// IsChannel reports whether name begins with a configured channel-type
// sigil.
func (p *Parameters) IsChannel(name string) bool {
	if name == "" {
		return false
	}
	_, ok := p.ChanTypes[name[0]]
	return ok
}

// DecodeNamesPrefix splits a NAMES token like "@nick" into its leading
// PREFIX characters (translated back to mode letters) and the bare
// nickname, per spec.md §4.5's 353 handling.
func (p *Parameters) DecodeNamesPrefix(token string) (modes []byte, nick string) {
	i := 0
	for i < len(token) {
		letter, ok := p.modeForPrefixChar(token[i])
		if !ok {
			break
		}
		modes = append(modes, letter)
		i++
	}
	return modes, token[i:]
}

func (p *Parameters) modeForPrefixChar(c byte) (byte, bool) {
	for letter, prefix := range p.Prefixes {
		if prefix == c {
			return letter, true
		}
	}
	return 0, false
}
