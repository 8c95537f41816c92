package irc

import "strconv"

// extractor declares how a single logical field of a command consumes
// wire parameters: its name (for error reporting), and the inclusive
// range of positional parameters it may claim. max == -1 marks a greedy
// tail extractor that claims every parameter still unclaimed once every
// other extractor's minimum has been satisfied.
type extractor struct {
	name string
	min  int
	max  int
}

// parseContext accumulates the result of tokenizing one wire line and is
// threaded through every command builder. errorParameters records the
// name of every extractor that failed to convert its slice; a non-empty
// set after a command builder runs causes the dispatcher to downgrade
// the result to a ParseError.
type parseContext struct {
	raw     string
	tags    Tags
	prefix  *Prefix
	command string
	params  []string

	errorParameters []string
}

func (ctx *parseContext) fail(name string) {
	ctx.errorParameters = append(ctx.errorParameters, name)
}

// plan distributes ctx.params across extractors. It first reserves each
// extractor's minimum, in declaration order, then hands any remaining
// parameters to extractors whose max exceeds their min (greedy tails
// included), again in declaration order. It returns a name-to-slice
// assignment, or ok=false if the minimums could not all be satisfied
// (the NotEnoughParameters case from spec.md §4.1).
func plan(params []string, extractors []extractor) (map[string][]string, bool) {
	total := len(params)
	take := make([]int, len(extractors))

	need := 0
	for i, e := range extractors {
		take[i] = e.min
		need += e.min
	}
	if need > total {
		return nil, false
	}

	extra := total - need
	for i, e := range extractors {
		if extra == 0 {
			break
		}
		room := e.max - e.min
		if e.max == -1 {
			room = extra
		}
		if room <= 0 {
			continue
		}
		give := room
		if give > extra {
			give = extra
		}
		take[i] += give
		extra -= give
	}

	assigned := make(map[string][]string, len(extractors))
	cursor := 0
	for i, e := range extractors {
		assigned[e.name] = params[cursor : cursor+take[i]]
		cursor += take[i]
	}

	return assigned, true
}

// one returns the single parameter assigned to a min=max=1 extractor, or
// "" with a recorded failure if none was assigned (should not happen
// once plan has succeeded, but guards against extractor misuse).
func one(ctx *parseContext, assigned map[string][]string, name string) string {
	s := assigned[name]
	if len(s) == 0 {
		ctx.fail(name)
		return ""
	}
	return s[0]
}

// optional returns the single parameter assigned to a min=0,max=1
// extractor, or def if it was not provided.
func optional(ctx *parseContext, assigned map[string][]string, name, def string) string {
	s := assigned[name]
	if len(s) == 0 {
		return def
	}
	return s[0]
}

// rest returns every parameter assigned to a greedy tail extractor.
func rest(assigned map[string][]string, name string) []string {
	return assigned[name]
}

// asInt converts s to an int, recording a failure against name and
// returning def on malformed input.
func asInt(ctx *parseContext, name, s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		ctx.fail(name)
		return def
	}
	return n
}

// ifIndexEquals reports whether params has at least i+1 elements and
// params[i] equals lit, case-sensitively. Used for dispatch decisions
// like "JOIN 0" vs. a normal JOIN.
func ifIndexEquals(params []string, i int, lit string) bool {
	return i < len(params) && params[i] == lit
}

// ifIndex reports whether params has at least i+1 elements and
// predicate(params[i]) holds.
func ifIndex(params []string, i int, predicate func(string) bool) bool {
	return i < len(params) && predicate(params[i])
}
