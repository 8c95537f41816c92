package engine

import (
	"hash/fnv"
	"strings"
	"time"

	"git.sr.ht/~progval/ircengine/ui"
	"github.com/gdamore/tcell/v2"
	"mvdan.cc/xurls/v2"
)

// Display is the external collaborator the engine reports to, per spec.md
// §6 ("Display callback"). The engine never renders a full screen; it
// only produces ui.StyledString lines and status/prompt updates for
// whatever UI is wired in. Grounded on the teacher's app.go
// formatMessage/win.AddLine call sites, generalized from a concrete *App
// receiver to an interface so the engine has no terminal-rendering
// dependency (spec.md §1).
type Display interface {
	Println(t time.Time, sender, receiver string, text ui.StyledString)
	SetStatus(text ui.StyledString)
	SetPrompt(text ui.StyledString)
}

// urlMatcher detects links inside message bodies for MessageEvent.URLs,
// per SPEC_FULL.md §12's URL-span supplemental feature (grounded in the
// teacher's declared-but-unwired mvdan.cc/xurls/v2 dependency).
var urlMatcher = xurls.Strict()

// URLSpan is a byte range within MessageEvent.Text identifying a detected
// URL, for the Display collaborator to render as a link.
type URLSpan struct {
	Start, End int
}

// MessageEvent is the engine's report of one PRIVMSG/NOTICE delivery to
// one target, after comma-target fan-out (spec.md §8: "PRIVMSG with
// multiple comma-separated targets emits one display line per target")
// and CTCP ACTION unwrapping (SPEC_FULL.md §12).
type MessageEvent struct {
	Time     time.Time
	Sender   string
	Target   string
	IsNotice bool
	IsAction bool
	Text     string
	URLs     []URLSpan
}

// actionPrefix and actionSuffix frame a CTCP ACTION per SPEC_FULL.md §12,
// grounded on the teacher's commandDoMe ("\x01ACTION %s\x01").
const (
	actionPrefix = "\x01ACTION "
	actionSuffix = "\x01"
)

// wrapAction frames text as a CTCP ACTION, the outbound half of
// SPEC_FULL.md §12's unwrapping, matching commandDoMe's construction.
func wrapAction(text string) string {
	return actionPrefix + text + actionSuffix
}

// unwrapAction strips CTCP ACTION framing from content, reporting whether
// it was present.
func unwrapAction(content string) (text string, isAction bool) {
	if strings.HasPrefix(content, actionPrefix) && strings.HasSuffix(content, actionSuffix) {
		return content[len(actionPrefix) : len(content)-len(actionSuffix)], true
	}
	return content, false
}

// newMessageEvent builds a MessageEvent for one target, unwrapping any
// CTCP ACTION framing and scanning the resulting text for URL spans.
func newMessageEvent(at time.Time, sender, target, text string, isNotice bool) MessageEvent {
	text, isAction := unwrapAction(text)
	ev := MessageEvent{
		Time:     at,
		Sender:   sender,
		Target:   target,
		IsNotice: isNotice,
		IsAction: isAction,
		Text:     text,
	}
	for _, loc := range urlMatcher.FindAllStringIndex(text, -1) {
		ev.URLs = append(ev.URLs, URLSpan{Start: loc[0], End: loc[1]})
	}
	return ev
}

// identColor hashes an identity (nick) to one of the 15 mIRC foreground
// colors, per the teacher's window.go identColor, so the same nick is
// always drawn in the same color.
func identColor(ident string) tcell.Color {
	h := fnv.New32()
	_, _ = h.Write([]byte(ident))
	return tcell.Color((h.Sum32()%15)+1) + tcell.ColorValid
}

// render turns a MessageEvent into the StyledString the Display
// collaborator prints, per the teacher's app.go formatMessage: the
// sender is colorized by identColor and the body is parsed for mIRC
// formatting codes by ui.IRCString, so bold/color/underline bytes a peer
// sent never reach the Display collaborator as raw control bytes.
func (ev MessageEvent) render() ui.StyledString {
	var sb ui.StyledStringBuilder
	color := identColor(ev.Sender)
	switch {
	case ev.IsAction:
		sb.SetStyle(tcell.StyleDefault.Foreground(color))
		sb.WriteString("* " + ev.Sender + " ")
		sb.SetStyle(tcell.StyleDefault)
		sb.WriteStyledString(ui.IRCString(ev.Text))
	case ev.IsNotice:
		sb.SetStyle(tcell.StyleDefault.Foreground(color))
		sb.WriteString("-" + ev.Sender + "- ")
		sb.SetStyle(tcell.StyleDefault)
		sb.WriteStyledString(ui.IRCString(ev.Text))
	default:
		sb.WriteString("<")
		sb.SetStyle(tcell.StyleDefault.Foreground(color))
		sb.WriteString(ev.Sender)
		sb.SetStyle(tcell.StyleDefault)
		sb.WriteString("> ")
		sb.WriteStyledString(ui.IRCString(ev.Text))
	}
	for _, u := range ev.URLs {
		sb.AddStyle(u.Start, tcell.StyleDefault.Underline(true))
		sb.AddStyle(u.End, tcell.StyleDefault)
	}
	return sb.StyledString()
}

// displayRaw formats a line that bypassed typed parsing, per spec.md §4.5:
// "Unsupported/ParseError -> display the raw line (prefixed '» ' or
// '(PARSE ERROR)')".
func displayRaw(d Display, prefix, line string) {
	d.Println(time.Now(), "", "", ui.PlainSprintf("%s%s", prefix, line))
}
