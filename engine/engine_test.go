package engine

import (
	"strings"
	"sync"
	"testing"
	"time"

	"git.sr.ht/~progval/ircengine/ui"
)

// fakeConn is a synchronous, in-memory Connection double: Start is a no-op
// and inbound lines are delivered by tests calling deliver, which invokes
// every registered ingress handler just as TCPConnection's readLoop would.
type fakeConn struct {
	mu       sync.Mutex
	ingress  []func(string)
	shutdown []func(error)
	sent     []string
	closed   bool
}

func (f *fakeConn) Start() {}

func (f *fakeConn) Offer(line string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.sent = append(f.sent, line)
	return true
}

func (f *fakeConn) AddIngressHandler(fn func(line string)) {
	f.ingress = append(f.ingress, fn)
}

func (f *fakeConn) AddShutdownHandler(fn func(err error)) {
	f.shutdown = append(f.shutdown, fn)
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	already := f.closed
	f.closed = true
	handlers := append([]func(error){}, f.shutdown...)
	f.mu.Unlock()
	if !already {
		for _, h := range handlers {
			h(nil)
		}
	}
	return nil
}

func (f *fakeConn) deliver(lines ...string) {
	for _, line := range lines {
		for _, h := range f.ingress {
			h(line)
		}
	}
}

func (f *fakeConn) sentLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.sent...)
}

// fakeDisplay records every line rendered to it, for assertions.
type fakeDisplay struct {
	mu       sync.Mutex
	lines    []string
	statuses []string
}

func (d *fakeDisplay) Println(t time.Time, sender, receiver string, text ui.StyledString) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lines = append(d.lines, text.String())
}

func (d *fakeDisplay) SetStatus(text ui.StyledString) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statuses = append(d.statuses, text.String())
}

func (d *fakeDisplay) SetPrompt(text ui.StyledString) {}

func (d *fakeDisplay) allLines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string{}, d.lines...)
}

// barrier blocks until every task enqueued before it has run, giving tests
// a deterministic point to assert state from outside the worker goroutine.
func barrier(t *testing.T, e *Engine) {
	t.Helper()
	done := make(chan struct{})
	e.enqueue(func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("barrier timed out: worker goroutine appears stuck")
	}
}

func newTestEngine(fc *fakeConn, fd *fakeDisplay) *Engine {
	return New(Options{
		Nickname: "tester",
		Dial:     func() (Connection, error) { return fc, nil },
		Display:  fd,
	})
}

func containsLine(lines []string, prefix string) bool {
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			return true
		}
	}
	return false
}

func TestEngineRegistrationWithNoCapabilities(t *testing.T) {
	fc := &fakeConn{}
	fd := &fakeDisplay{}
	e := newTestEngine(fc, fd)
	e.Start()
	barrier(t, e)

	sent := fc.sentLines()
	if !containsLine(sent, "CAP LS 302") {
		t.Fatalf("expected CAP LS 302 among %v", sent)
	}
	if !containsLine(sent, "NICK tester") {
		t.Fatalf("expected NICK tester among %v", sent)
	}
	if !containsLine(sent, "USER tester 0 * :tester") {
		t.Fatalf("expected USER line among %v", sent)
	}

	fc.deliver(
		":srv CAP * LS :",
		":srv 001 tester :welcome",
	)
	barrier(t, e)

	sent = fc.sentLines()
	if !containsLine(sent, "CAP END") {
		t.Fatalf("expected CAP END once LS advertised nothing, got %v", sent)
	}
	if e.State() != StateRegistered {
		t.Fatalf("expected StateRegistered, got %v", e.State())
	}
}

func TestEngineCapNegotiationWithSplitLS(t *testing.T) {
	fc := &fakeConn{}
	fd := &fakeDisplay{}
	e := newTestEngine(fc, fd)
	e.Start()
	barrier(t, e)

	fc.deliver(
		":srv CAP * LS * :server-time",
		":srv CAP * LS :echo-message",
	)
	barrier(t, e)

	sent := fc.sentLines()
	if !containsLine(sent, "CAP REQ") {
		t.Fatalf("expected a CAP REQ after the final LS chunk, got %v", sent)
	}
	var reqLine string
	for _, l := range sent {
		if strings.HasPrefix(l, "CAP REQ") {
			reqLine = l
		}
	}
	if !strings.Contains(reqLine, "server-time") || !strings.Contains(reqLine, "echo-message") {
		t.Fatalf("expected both caps accumulated across chunks in CAP REQ, got %q", reqLine)
	}

	fc.deliver(":srv CAP tester ACK :server-time echo-message")
	barrier(t, e)

	sent = fc.sentLines()
	if !containsLine(sent, "CAP END") {
		t.Fatalf("expected CAP END once every requested cap was ACKed, got %v", sent)
	}

	fc.deliver(":srv 001 tester :welcome")
	barrier(t, e)
	if e.State() != StateRegistered {
		t.Fatalf("expected StateRegistered after 001, got %v", e.State())
	}
	if !e.session.Caps.IsActive("server-time") {
		t.Errorf("expected server-time to be active after ACK")
	}
}

func TestEngineNamesWithPrefixes(t *testing.T) {
	fc := &fakeConn{}
	fd := &fakeDisplay{}
	e := newTestEngine(fc, fd)
	e.Start()
	barrier(t, e)

	fc.deliver(
		":srv CAP * LS :",
		":srv 001 tester :welcome",
		":srv 005 tester PREFIX=(ov)@+ :are supported",
		":srv 353 tester = #chan :@alice +bob carol",
	)
	barrier(t, e)

	ch, ok := e.session.FindChannel("#chan")
	if !ok {
		t.Fatalf("expected #chan to exist after NAMES")
	}
	alice, ok := ch.Members[e.session.Casemap.Fold("alice")]
	if !ok || !alice.Has('o') {
		t.Errorf("expected alice to hold 'o', got %+v (ok=%v)", alice, ok)
	}
	bob, ok := ch.Members[e.session.Casemap.Fold("bob")]
	if !ok || !bob.Has('v') {
		t.Errorf("expected bob to hold 'v', got %+v (ok=%v)", bob, ok)
	}
	carol, ok := ch.Members[e.session.Casemap.Fold("carol")]
	if !ok || len(carol) != 0 {
		t.Errorf("expected carol to hold no modes, got %+v (ok=%v)", carol, ok)
	}
}

func TestEngineNickCollisionReregisters(t *testing.T) {
	fc := &fakeConn{}
	fd := &fakeDisplay{}
	e := newTestEngine(fc, fd)
	e.Start()
	barrier(t, e)

	fc.deliver(":srv CAP * LS :")
	barrier(t, e)

	// 433 (ERR_NICKNAMEINUSE) has no dedicated type; it surfaces as the
	// Numeric escape hatch and has no state-machine effect of its own, so
	// the engine just keeps waiting at Connected until a new NICK succeeds.
	fc.deliver(":srv 433 * tester :Nickname is already in use")
	if e.State() != StateConnected {
		t.Fatalf("expected to remain Connected after a nick collision, got %v", e.State())
	}

	e.Submit(Nick{Nick: "tester2"})
	barrier(t, e)

	sent := fc.sentLines()
	if !containsLine(sent, "NICK tester2") {
		t.Fatalf("expected a re-sent NICK after collision, got %v", sent)
	}

	fc.deliver(":srv 001 tester2 :welcome")
	barrier(t, e)
	if e.State() != StateRegistered {
		t.Fatalf("expected StateRegistered after 001 on the retried nick, got %v", e.State())
	}
	if e.session.Me() == nil || e.session.Me().Nick != "tester2" {
		t.Errorf("expected Me().Nick = tester2, got %+v", e.session.Me())
	}
}

func TestEngineIdleGC(t *testing.T) {
	fc := &fakeConn{}
	fd := &fakeDisplay{}
	e := newTestEngine(fc, fd)
	e.Start()
	barrier(t, e)

	fc.deliver(
		":srv CAP * LS :",
		":srv 001 tester :welcome",
		":other!u@h PRIVMSG tester :hi",
	)
	barrier(t, e)

	if _, ok := e.session.FindUser("other"); !ok {
		t.Fatalf("expected 'other' to be touched by the PRIVMSG")
	}

	e.session.GC(time.Now().Add(time.Hour))
	if _, ok := e.session.FindUser("other"); ok {
		t.Errorf("expected 'other' to be GC'd once idle past the cutoff")
	}
	if e.session.Me() == nil {
		t.Errorf("the local user must never be GC'd")
	}
}

func TestEnginePingPong(t *testing.T) {
	fc := &fakeConn{}
	fd := &fakeDisplay{}
	e := newTestEngine(fc, fd)
	e.Start()
	barrier(t, e)

	fc.deliver("PING :abc123")
	barrier(t, e)

	sent := fc.sentLines()
	if !containsLine(sent, "PONG :abc123") {
		t.Fatalf("expected PONG :abc123 among %v", sent)
	}
}

func TestEngineMsgCurrentWithNoFocusedChannel(t *testing.T) {
	fc := &fakeConn{}
	fd := &fakeDisplay{}
	e := newTestEngine(fc, fd)
	e.Start()
	barrier(t, e)

	fc.deliver(
		":srv CAP * LS :",
		":srv 001 tester :welcome",
	)
	barrier(t, e)

	e.Submit(MsgCurrent{Text: "hello"})
	barrier(t, e)

	lines := fd.allLines()
	if !containsLine(lines, "(ERROR) "+ErrNoCurrentChannel.Error()) {
		t.Errorf("expected a displayed no-current-channel error, got %v", lines)
	}
}

func TestEngineTypingActiveThrottledThenDone(t *testing.T) {
	fc := &fakeConn{}
	fd := &fakeDisplay{}
	e := newTestEngine(fc, fd)
	e.Start()
	barrier(t, e)

	fc.deliver(
		":srv CAP * LS :message-tags",
		":srv 001 tester :welcome",
	)
	barrier(t, e)

	sent := fc.sentLines()
	if !containsLine(sent, "CAP REQ") {
		t.Fatalf("expected a CAP REQ for message-tags, got %v", sent)
	}

	fc.deliver(":srv CAP tester ACK :message-tags")
	barrier(t, e)
	if !e.session.Caps.IsActive("message-tags") {
		t.Fatalf("expected message-tags to be active")
	}

	e.Submit(Typing{Target: "#chan", Active: true})
	barrier(t, e)

	sent = fc.sentLines()
	if !containsLine(sent, "@+typing=active TAGMSG #chan") {
		t.Fatalf("expected a +typing=active TAGMSG among %v", sent)
	}
	before := len(sent)

	// A second Active=true within the throttle window must not re-send.
	e.Submit(Typing{Target: "#chan", Active: true})
	barrier(t, e)
	if len(fc.sentLines()) != before {
		t.Errorf("expected throttled re-announce to be suppressed")
	}

	e.Submit(Typing{Target: "#chan", Active: false})
	barrier(t, e)
	sent = fc.sentLines()
	if !containsLine(sent, "@+typing=done TAGMSG #chan") {
		t.Fatalf("expected a +typing=done TAGMSG among %v", sent)
	}
}

func TestEngineInboundTypingTracksAndClearsOnDone(t *testing.T) {
	fc := &fakeConn{}
	fd := &fakeDisplay{}
	e := newTestEngine(fc, fd)
	e.Start()
	barrier(t, e)

	fc.deliver(
		":srv CAP * LS :",
		":srv 001 tester :welcome",
	)
	barrier(t, e)

	fc.deliver("@+typing=active :alice!u@h TAGMSG #chan")
	barrier(t, e)

	if users := e.TypingUsers("#chan"); len(users) != 1 || users[0] != "alice" {
		t.Fatalf("expected alice typing in #chan, got %v", users)
	}

	fc.deliver("@+typing=done :alice!u@h TAGMSG #chan")
	barrier(t, e)
	if users := e.TypingUsers("#chan"); len(users) != 0 {
		t.Errorf("expected no one typing after done, got %v", users)
	}
}

func TestEngineTypingClearedOnPart(t *testing.T) {
	fc := &fakeConn{}
	fd := &fakeDisplay{}
	e := newTestEngine(fc, fd)
	e.Start()
	barrier(t, e)

	fc.deliver(
		":srv CAP * LS :",
		":srv 001 tester :welcome",
		":alice!u@h JOIN #chan",
		"@+typing=active :alice!u@h TAGMSG #chan",
	)
	barrier(t, e)
	if users := e.TypingUsers("#chan"); len(users) != 1 {
		t.Fatalf("expected alice typing in #chan, got %v", users)
	}

	fc.deliver(":alice!u@h PART #chan :bye")
	barrier(t, e)
	if users := e.TypingUsers("#chan"); len(users) != 0 {
		t.Errorf("expected typing state cleared on PART, got %v", users)
	}
}

type stubSASL struct {
	mech     string
	response string
	err      error
}

func (s *stubSASL) Handshake() (mech string) { return s.mech }
func (s *stubSASL) Respond(challenge string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func TestEngineSASLHandshakeDefersCapEnd(t *testing.T) {
	fc := &fakeConn{}
	fd := &fakeDisplay{}
	e := New(Options{
		Nickname: "tester",
		Dial:     func() (Connection, error) { return fc, nil },
		Display:  fd,
		SASL:     &stubSASL{mech: "PLAIN", response: "abc123"},
	})
	e.Start()
	barrier(t, e)

	fc.deliver(":srv CAP * LS :sasl")
	barrier(t, e)

	fc.deliver(":srv CAP tester ACK :sasl")
	barrier(t, e)

	sent := fc.sentLines()
	if !containsLine(sent, "AUTHENTICATE PLAIN") {
		t.Fatalf("expected AUTHENTICATE PLAIN among %v", sent)
	}
	if containsLine(sent, "CAP END") {
		t.Fatalf("CAP END must wait for the SASL handshake to conclude, got %v", sent)
	}

	fc.deliver("AUTHENTICATE +")
	barrier(t, e)

	sent = fc.sentLines()
	if !containsLine(sent, "AUTHENTICATE abc123") {
		t.Fatalf("expected the SASL response among %v", sent)
	}

	fc.deliver(":srv 903 tester :SASL authentication successful")
	barrier(t, e)

	sent = fc.sentLines()
	if !containsLine(sent, "CAP END") {
		t.Fatalf("expected CAP END once SASL succeeded, got %v", sent)
	}
}

func TestEngineDisconnectResetsSession(t *testing.T) {
	fc := &fakeConn{}
	fd := &fakeDisplay{}
	e := newTestEngine(fc, fd)
	e.Start()
	barrier(t, e)

	fc.deliver(
		":srv CAP * LS :",
		":srv 001 tester :welcome",
	)
	barrier(t, e)

	if e.State() != StateRegistered {
		t.Fatalf("setup failed: expected StateRegistered, got %v", e.State())
	}

	fc.Close()
	barrier(t, e)

	if e.State() != StateDisconnected {
		t.Fatalf("expected StateDisconnected after the connection shuts down, got %v", e.State())
	}
	if e.session != nil {
		t.Errorf("expected session to be cleared on disconnect")
	}
}

func TestEngineQuitCommandSendsQuitButStaysOpen(t *testing.T) {
	fc := &fakeConn{}
	fd := &fakeDisplay{}
	e := newTestEngine(fc, fd)
	e.Start()
	barrier(t, e)

	fc.deliver(
		":srv CAP * LS :",
		":srv 001 tester :welcome",
	)
	barrier(t, e)

	e.Submit(Quit{Reason: "bye"})
	barrier(t, e)

	if !containsLine(fc.sentLines(), "QUIT :bye") {
		t.Fatalf("expected QUIT :bye among %v", fc.sentLines())
	}
	if e.State() == StateClosed {
		t.Errorf("Quit should not close the engine outright, unlike Exit")
	}
}

func TestEngineExitCommandSendsQuitAndCloses(t *testing.T) {
	fc := &fakeConn{}
	fd := &fakeDisplay{}
	e := newTestEngine(fc, fd)
	e.Start()
	barrier(t, e)

	fc.deliver(
		":srv CAP * LS :",
		":srv 001 tester :welcome",
	)
	barrier(t, e)

	e.Submit(Exit{Reason: "done"})
	// The worker stops once the engine is closed, so wait on Done() rather
	// than on a barrier task that would never run.
	select {
	case <-e.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done() did not close once the engine reached StateClosed")
	}

	if !containsLine(fc.sentLines(), "QUIT :done") {
		t.Fatalf("expected QUIT :done among %v", fc.sentLines())
	}
	if e.State() != StateClosed {
		t.Errorf("expected Exit to close the engine, got %v", e.State())
	}
}

func TestEngineJoinFocusesOnSelfEcho(t *testing.T) {
	fc := &fakeConn{}
	fd := &fakeDisplay{}
	e := newTestEngine(fc, fd)
	e.Start()
	barrier(t, e)

	fc.deliver(
		":srv CAP * LS :",
		":srv 001 tester :welcome",
	)
	barrier(t, e)

	e.Submit(Join{Channels: []string{"#one"}})
	barrier(t, e)
	fc.deliver(":tester!u@h JOIN #one")
	barrier(t, e)

	ch, ok := e.session.FocusedChannel()
	if !ok || ch != "#one" {
		t.Fatalf("expected #one focused after self-JOIN, got %q (ok=%v)", ch, ok)
	}

	e.Submit(Join{Channels: []string{"#two"}, NoSwitch: true})
	barrier(t, e)
	fc.deliver(":tester!u@h JOIN #two")
	barrier(t, e)

	ch, ok = e.session.FocusedChannel()
	if !ok || ch != "#one" {
		t.Fatalf("expected #one to remain focused after a NoSwitch join of #two, got %q (ok=%v)", ch, ok)
	}

	e.Submit(MsgCurrent{Text: "hi"})
	barrier(t, e)
	if !containsLine(fc.sentLines(), "PRIVMSG #one :hi") {
		t.Fatalf("expected MsgCurrent to resolve to the focused #one, got %v", fc.sentLines())
	}
}

func TestEngineJoinFocusNotMovedByOthersJoining(t *testing.T) {
	fc := &fakeConn{}
	fd := &fakeDisplay{}
	e := newTestEngine(fc, fd)
	e.Start()
	barrier(t, e)

	fc.deliver(
		":srv CAP * LS :",
		":srv 001 tester :welcome",
	)
	barrier(t, e)

	e.Submit(Join{Channels: []string{"#one"}})
	barrier(t, e)
	fc.deliver(":tester!u@h JOIN #one")
	barrier(t, e)

	fc.deliver(":alice!u@h JOIN #one")
	barrier(t, e)

	ch, ok := e.session.FocusedChannel()
	if !ok || ch != "#one" {
		t.Fatalf("expected focus unaffected by another user's JOIN, got %q (ok=%v)", ch, ok)
	}
}

func TestEngineCapLSIgnoresUnknownCapabilities(t *testing.T) {
	fc := &fakeConn{}
	fd := &fakeDisplay{}
	e := newTestEngine(fc, fd)
	e.Start()
	barrier(t, e)

	fc.deliver(":srv CAP * LS :server-time batch draft/chathistory")
	barrier(t, e)

	sent := fc.sentLines()
	var reqLine string
	for _, l := range sent {
		if strings.HasPrefix(l, "CAP REQ") {
			reqLine = l
		}
	}
	if !strings.Contains(reqLine, "server-time") {
		t.Fatalf("expected the known server-time capability requested, got %q", reqLine)
	}
	if strings.Contains(reqLine, "batch") || strings.Contains(reqLine, "chathistory") {
		t.Fatalf("expected unknown capabilities to be ignored, got %q", reqLine)
	}

	fc.deliver(":srv CAP tester ACK :server-time")
	fc.deliver(":srv 001 tester :welcome")
	barrier(t, e)

	if !e.session.Caps.IsActive("server-time") {
		t.Errorf("expected server-time active after ACK")
	}
	if e.session.Caps.IsActive("batch") {
		t.Errorf("expected batch to never become active: it was never requested")
	}
}
