// Package engine implements the protocol engine's single-writer event
// loop: the state machine that owns connection lifecycle, IRCv3
// capability negotiation, registration, and dispatch of inbound wire
// messages and outbound user commands against an irc.State, per spec.md
// §4.5. Grounded on the teacher's irc/states.go Session.run (the select
// over acts/msgs channels), generalized into the explicit six-state
// machine spec.md names.
package engine

import (
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"git.sr.ht/~progval/ircengine/irc"
	"git.sr.ht/~progval/ircengine/ui"
)

// State is one of the engine's lifecycle states, per spec.md §4.5.
type State int32

const (
	StateNew State = iota
	StateInitializing
	StateDisconnected
	StateConnecting
	StateConnected
	StateRegistered
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateInitializing:
		return "initializing"
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateRegistered:
		return "registered"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrNoCurrentChannel is returned when MsgCurrent is dispatched with no
// focused channel, per spec.md §9's open-question resolution: never a
// fallback to any other buffer.
var ErrNoCurrentChannel = errors.New("engine: no current channel")

// ErrRegistrationFailed is the fatal error spec.md §4.5 names for a CAS
// failure on Connected->Registered.
var ErrRegistrationFailed = errors.New("engine: registration state invariant violated")

// Dialer opens a fresh Connection, e.g. engine.DialTCP bound to a fixed
// address, or a test double.
type Dialer func() (Connection, error)

const gcInterval = 5 * time.Minute
const gcIdleThreshold = 5 * time.Minute

// Options configures a new Engine, per SPEC_FULL.md §14's reference
// harness: everything protocol-relevant (nick/user/real/password) plus
// the Dialer and Display collaborators.
type Options struct {
	Nickname string // "auto" triggers GenerateNickname, per spec.md §6.
	Username string
	Realname string
	Password string

	Dial    Dialer
	Display Display

	Logger *log.Logger

	// SASL is the optional SASL hand-off point (SPEC_FULL.md §12 item 5).
	// Nil by default: the engine then never sends AUTHENTICATE and "sasl"
	// is requested only incidentally, like any other capability CAP LS
	// advertises.
	SASL SASLClient
}

// Engine is the single-writer scheduler of spec.md §4.5/§5: a dedicated
// worker goroutine owns all session-state mutation, reached only through
// task closures enqueued from three sources (inbound lines, user
// commands, the periodic GC tick).
type Engine struct {
	opts Options

	state int32 // atomic State

	tasks    chan func()
	workerID uint64

	conn    Connection
	session *irc.State

	capEndSent  bool
	saslPending bool

	typing         *typingTracker
	outboundTyping map[string]time.Time

	// noSwitchJoins holds the casemapped names of channels joined with
	// Join.NoSwitch set, consulted once by handleJoin on the matching
	// self-JOIN echo so focus isn't moved there, per spec.md §4.3
	// focus_channel.
	noSwitchJoins map[string]struct{}

	closeCh chan struct{}
}

// New constructs an Engine in State New. Call Start to begin operation.
func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Engine{
		opts:          opts,
		state:         int32(StateNew),
		tasks:         make(chan func(), 256),
		noSwitchJoins: make(map[string]struct{}),
		closeCh:       make(chan struct{}),
	}
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() State {
	return State(atomic.LoadInt32(&e.state))
}

func (e *Engine) cas(from, to State) bool {
	return atomic.CompareAndSwapInt32(&e.state, int32(from), int32(to))
}

// Start transitions New->Initializing->Disconnected, launches the worker
// goroutine, and enqueues an initial connect, per spec.md §4.5.
func (e *Engine) Start() {
	if !e.cas(StateNew, StateInitializing) {
		return
	}
	e.cas(StateInitializing, StateDisconnected)

	go e.runWorker()
	e.Submit(Connect{})
	e.scheduleGC()
}

// Submit enqueues a user command for processing on the worker goroutine,
// per spec.md §4.5/§5: user commands race with inbound messages strictly
// by enqueue order.
func (e *Engine) Submit(cmd Command) {
	e.enqueue(func() { e.handleCommand(cmd) })
}

func (e *Engine) enqueue(task func()) {
	select {
	case e.tasks <- task:
	case <-e.closeCh:
	}
}

// Done returns a channel that's closed once the engine reaches the
// terminal Closed state, letting callers block until Exit/Close has
// finished tearing the connection down.
func (e *Engine) Done() <-chan struct{} {
	return e.closeCh
}

// Close transitions the engine to the terminal Closed state, per spec.md
// §4.5: the worker stops and the socket is closed. Idempotent.
func (e *Engine) Close() {
	prev := e.State()
	if prev == StateClosed {
		return
	}
	atomic.StoreInt32(&e.state, int32(StateClosed))
	close(e.closeCh)
	if e.conn != nil {
		_ = e.conn.Close()
	}
}

func (e *Engine) runWorker() {
	e.workerID = irc.NewGoroutineID()

	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case task, ok := <-e.tasks:
			if !ok {
				return
			}
			e.guarded(func() { task() })
		case <-ticker.C:
			e.guarded(e.runGC)
		case <-e.closeCh:
			return
		}
		if e.State() == StateClosed {
			return
		}
	}
}

// guarded wraps a single dispatched task in spec.md §7's propagation
// policy: "The engine wraps every dispatched task in a guard that logs
// exceptions without crashing the worker."
func (e *Engine) guarded(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.opts.Logger.Printf("engine: recovered panic in task: %v", r)
		}
	}()
	if e.session != nil {
		e.session.Guard.Enter(e.workerID)
	}
	fn()
}

func (e *Engine) scheduleGC() {}

func (e *Engine) runGC() {
	if e.session == nil {
		return
	}
	e.session.GC(time.Now().Add(-gcIdleThreshold))
}

// handleCommand dispatches one outward Command, per spec.md §6's command
// surface. Each maps to a constructed irc.Message rendered by irc.Marshal
// and offered to the connection, except Connect/Exit which drive the
// connection lifecycle directly.
func (e *Engine) handleCommand(cmd Command) {
	switch c := cmd.(type) {
	case Connect:
		e.connect()
	case Exit:
		e.quitAndClose(c.Reason)
	case Quit:
		// Unlike Exit, Quit only disconnects: it sends QUIT and lets the
		// server's connection teardown drive the normal
		// Connected/Registered->Disconnected transition (spec.md §4.5), so
		// a subsequent Connect command can re-establish the session.
		if e.conn != nil {
			e.send(irc.Quit{Reason: c.Reason})
		}
	case Join:
		e.send(irc.Join{Channels: c.Channels, Keys: c.Keys})
		if c.NoSwitch {
			// Focus happens once the server confirms with its own JOIN
			// echo (handleJoin), not here: spec.md §4.3 requires channel
			// membership to exist before focus_channel can succeed. Record
			// which channels to skip focusing when that echo arrives.
			for _, ch := range c.Channels {
				e.noSwitchJoins[e.foldChannel(ch)] = struct{}{}
			}
		}
	case Part:
		e.send(irc.Part{Channels: c.Channels, Reason: c.Reason})
	case Kick:
		e.send(irc.Kick{Channel: c.Channel, User: c.Nick, Comment: c.Reason})
	case Mode:
		e.send(irc.Mode{Target: c.Target, ModeString: c.ModeString, Args: c.Args})
	case Nick:
		e.send(irc.Nick{Nickname: c.Nick})
	case Msg:
		e.sendPrivmsg(c.Targets, c.Text)
	case Notice:
		e.sendNotice(c.Targets, c.Text)
	case MsgCurrent:
		if e.session == nil {
			e.displayError(ErrNoCurrentChannel)
			return
		}
		ch, ok := e.session.FocusedChannel()
		if !ok {
			e.displayError(ErrNoCurrentChannel)
			return
		}
		e.sendPrivmsg([]string{ch}, c.Text)
	case Typing:
		e.sendTyping(c.Target, c.Active)
	case Help:
		// No protocol effect; the command-parser collaborator renders
		// help text itself.
	default:
		e.opts.Logger.Printf("engine: unhandled command %T", cmd)
	}
}

func (e *Engine) sendPrivmsg(targets []string, text string) {
	e.send(irc.Privmsg{Targets: targets, Text: text})
	if e.session != nil && !e.session.Caps.IsActive("echo-message") {
		me := e.session.Me()
		nick := ""
		if me != nil {
			nick = me.Nick
		}
		for _, t := range targets {
			e.displayMessage(newMessageEvent(time.Now(), nick, t, text, false))
		}
	}
}

func (e *Engine) sendNotice(targets []string, text string) {
	e.send(irc.Notice{Targets: targets, Text: text})
}

// sendTyping implements the outbound half of SPEC_FULL.md §12's
// "+typing" client tag: active notifications are throttled to one per
// typingThrottle per target, matching the teacher's typingStamps
// de-dupe; a "done" is always sent immediately and clears the throttle
// so the next keystroke re-announces "active" right away.
func (e *Engine) sendTyping(target string, active bool) {
	if e.session == nil || !e.session.Caps.IsActive("message-tags") {
		return
	}
	if active {
		if last, seen := e.outboundTyping[target]; seen && time.Since(last) < typingThrottle {
			return
		}
		e.outboundTyping[target] = time.Now()
		e.send(irc.NewTagMsg([]string{target}, irc.Tags{"+typing": "active"}))
		return
	}
	delete(e.outboundTyping, target)
	e.send(irc.NewTagMsg([]string{target}, irc.Tags{"+typing": "done"}))
}

// TypingUsers returns who is currently marked as typing toward target,
// in no particular order. Safe to call from any goroutine.
func (e *Engine) TypingUsers(target string) []string {
	if e.typing == nil {
		return nil
	}
	return e.typing.users(target)
}

// connect dials a fresh Connection and installs a fresh irc.State, per
// spec.md §4.5's Disconnected->Connecting->Connected transition.
func (e *Engine) connect() {
	if !e.cas(StateDisconnected, StateConnecting) {
		return
	}
	conn, err := e.opts.Dial()
	if err != nil {
		e.opts.Logger.Printf("engine: connect failed: %v", err)
		e.cas(StateConnecting, StateDisconnected)
		return
	}

	e.conn = conn
	e.session = irc.NewState()
	e.capEndSent = false
	e.saslPending = false
	e.typing = newTypingTracker()
	e.outboundTyping = make(map[string]time.Time)

	conn.AddIngressHandler(func(line string) {
		e.enqueue(func() { e.handleLine(line) })
	})
	conn.AddShutdownHandler(func(err error) {
		e.enqueue(func() { e.handleDisconnect(err) })
	})

	if !e.cas(StateConnecting, StateConnected) {
		_ = conn.Close()
		return
	}

	conn.Start()
	e.startRegistration()
}

// startRegistration sends CAP LS, optional PASS, NICK, USER, per spec.md
// §4.5's registration protocol step 1.
func (e *Engine) startRegistration() {
	nick := GenerateNickname(e.opts.Nickname)
	user := e.opts.Username
	if user == "" {
		user = nick
	}
	real := e.opts.Realname
	if real == "" {
		real = nick
	}

	e.send(irc.CapLS{Version: "302"})
	if e.opts.Password != "" {
		e.send(irc.Pass{Password: e.opts.Password})
	}
	e.send(irc.Nick{Nickname: nick})
	e.send(irc.User{User: user, Mode: "0", Realname: real})
}

// handleDisconnect transitions to Disconnected and clears session state,
// per spec.md §4.5/§7 (transport errors are "recoverable with state
// reset"). Any non-Closed state transitions; from Closed, this is a no-op.
func (e *Engine) handleDisconnect(err error) {
	for {
		cur := e.State()
		if cur == StateClosed {
			return
		}
		if e.cas(cur, StateDisconnected) {
			break
		}
	}
	e.session = nil
	e.conn = nil
	if e.typing != nil {
		e.typing.stop()
		e.typing = nil
	}
	e.outboundTyping = nil
	if err != nil {
		e.opts.Logger.Printf("engine: connection lost: %v", err)
	}
}

func (e *Engine) quitAndClose(reason string) {
	if e.conn != nil {
		e.send(irc.Quit{Reason: reason})
	}
	e.Close()
}

// send marshals msg and offers it to the connection, ignoring a full or
// closed outbound queue (the connection's own shutdown handler will fire
// and the engine will observe it on its next task).
func (e *Engine) send(msg irc.Message) {
	if e.conn == nil {
		return
	}
	e.conn.Offer(irc.Marshal(msg))
}

func (e *Engine) displayError(err error) {
	if e.opts.Display == nil {
		return
	}
	displayRaw(e.opts.Display, "(ERROR) ", err.Error())
}

func (e *Engine) displayMessage(ev MessageEvent) {
	if e.opts.Display == nil {
		return
	}
	e.opts.Display.Println(ev.Time, ev.Sender, ev.Target, ev.render())
}

// handleLine unmarshals one inbound wire line and dispatches it, per
// spec.md §4.5. Unsolicited CAP messages while not Connected/Registered
// are logged and dropped; state-mutating server messages are ignored
// unless Registered, per spec.md §4.5.
func (e *Engine) handleLine(line string) {
	msg := irc.Unmarshal(line)

	switch m := msg.(type) {
	case irc.Unsupported:
		e.displayUnsupported(m)
		return
	case irc.ParseError:
		e.displayParseError(m)
		return
	}

	switch e.State() {
	case StateConnected, StateRegistered:
	default:
		if isCapMessage(msg) {
			e.opts.Logger.Printf("engine: dropping unsolicited CAP message while %s", e.State())
		}
		return
	}

	e.dispatch(msg)
}

func isCapMessage(msg irc.Message) bool {
	switch msg.(type) {
	case irc.CapLSReply, irc.CapListReply, irc.CapAck, irc.CapNak, irc.CapNew, irc.CapDel:
		return true
	default:
		return false
	}
}

func (e *Engine) displayUnsupported(m irc.Unsupported) {
	if e.opts.Display == nil {
		return
	}
	displayRaw(e.opts.Display, "» ", m.Raw())
}

func (e *Engine) displayParseError(m irc.ParseError) {
	if e.opts.Display == nil {
		return
	}
	displayRaw(e.opts.Display, "(PARSE ERROR) ", m.Raw())
}

// dispatch routes a successfully-parsed Message by variant, per spec.md
// §4.5's message-handling table. State-mutating messages are ignored
// unless Registered (PING/CAP/numerics leading up to registration are
// the exceptions, handled explicitly).
func (e *Engine) dispatch(msg irc.Message) {
	switch m := msg.(type) {
	case irc.Ping:
		e.send(irc.Pong{Token: m.Token})

	case irc.CapLSReply:
		e.handleCapLS(m)
	case irc.CapListReply:
		// Informational only; no state machine transition hangs off LIST.
	case irc.CapAck:
		e.handleCapAck(m)
	case irc.CapNak:
		e.handleCapNak(m)
	case irc.CapNew:
		e.handleCapNew(m)
	case irc.CapDel:
		e.handleCapDel(m)

	case irc.Welcome:
		e.handleWelcome(m)
	case irc.Isupport:
		if e.session != nil {
			e.session.ApplyISupport(m.Tokens)
		}
	case irc.NamReply:
		e.handleNamReply(m)

	case irc.Authenticate:
		e.handleAuthenticate(m)
	case irc.Numeric:
		e.handleSaslNumeric(m)

	default:
		if e.State() != StateRegistered {
			return
		}
		e.dispatchRegistered(msg)
	}
}

func (e *Engine) dispatchRegistered(msg irc.Message) {
	switch m := msg.(type) {
	case irc.Join:
		e.handleJoin(m)
	case irc.Part:
		e.handlePart(m)
	case irc.Kick:
		if e.session != nil {
			e.session.DeleteChannelMember(m.Channel, m.User)
		}
		if e.typing != nil {
			e.typing.clear(m.Channel, m.User)
		}
		e.displayNotice(fmt.Sprintf("%s was kicked from %s (%s)", m.User, m.Channel, m.Comment))
	case irc.Nick:
		e.handleNick(m)
	case irc.Quit:
		if m.Prefix() != nil {
			if e.session != nil {
				e.session.Quit(m.Prefix().Name)
			}
			if e.typing != nil {
				e.typing.removeUser(m.Prefix().Name)
			}
			e.displayNotice(fmt.Sprintf("%s has quit (%s)", m.Prefix().Name, m.Reason))
		}
	case irc.Privmsg:
		e.handlePrivmsg(m)
	case irc.Notice:
		e.handleNotice(m)
	case irc.ErrorMsg:
		e.displayError(fmt.Errorf("server error: %s", m.Reason))
	case irc.TagMsg:
		e.handleTagMsg(m)
	}
}

// handleAuthenticate drives the SASL handshake hand-off point, per
// SPEC_FULL.md §12 item 5: a server challenge is handed to
// Options.SASL.Respond, whose answer (or an abort "*" on error) is sent
// right back. A nil Options.SASL means this codepath is unreachable,
// since "sasl" would never have been ACKed without triggering it.
func (e *Engine) handleAuthenticate(m irc.Authenticate) {
	if e.opts.SASL == nil {
		return
	}
	res, err := e.opts.SASL.Respond(m.Payload)
	if err != nil {
		e.send(irc.Authenticate{Payload: "*"})
		return
	}
	e.send(irc.Authenticate{Payload: res})
}

// handleSaslNumeric watches the handful of 9xx replies that conclude a
// SASL handshake (success or failure alike), clearing saslPending so a
// CAP END deferred by handleCapAck can finally go out.
func (e *Engine) handleSaslNumeric(m irc.Numeric) {
	switch m.Code {
	case irc.RplLoggedin, irc.RplSaslsuccess,
		irc.ErrNicklocked, irc.ErrSaslfail, irc.ErrSasltoolong, irc.ErrSaslaborted, irc.ErrSaslalready, irc.RplSaslmechs:
		e.saslPending = false
		e.sendCapEndIfNeeded()
	}
}

// handleTagMsg updates the typing tracker from an inbound "+typing"
// client tag, per SPEC_FULL.md §12 item 3. TAGMSGs without that tag (or
// without a source prefix) are ignored.
func (e *Engine) handleTagMsg(m irc.TagMsg) {
	if e.typing == nil || m.Prefix() == nil {
		return
	}
	val, ok := m.Tags()["+typing"]
	if !ok {
		return
	}
	name := m.Prefix().Name
	for _, target := range m.Targets {
		switch val {
		case "active", "paused":
			e.typing.markActive(target, name)
		case "done":
			e.typing.markDone(target, name)
		}
	}
}

func (e *Engine) displayNotice(text string) {
	if e.opts.Display == nil {
		return
	}
	displayRaw(e.opts.Display, "» ", text)
}

func (e *Engine) handleJoin(m irc.Join) {
	if e.session == nil {
		return
	}
	nick := ""
	if m.Prefix() != nil {
		nick = m.Prefix().Name
	}
	me := e.session.Me()
	isSelf := me != nil && nick == me.Nick
	for _, ch := range m.Channels {
		prev, hadFocus := "", false
		if isSelf {
			prev, hadFocus = e.session.FocusedChannel()
		}
		e.session.AddChannelMember(ch, nick)
		e.displayNotice(fmt.Sprintf("%s joined %s", nick, ch))
		if !isSelf {
			continue
		}
		cf := e.foldChannel(ch)
		if _, noSwitch := e.noSwitchJoins[cf]; noSwitch {
			delete(e.noSwitchJoins, cf)
			if hadFocus {
				// AddChannelMember appended ch to the local user's channel
				// order, which makes it focused; put the previous focus back.
				e.session.FocusChannel(prev)
			}
			continue
		}
		e.session.FocusChannel(ch)
	}
}

// foldChannel casemaps a channel name using the session's active
// casemapping, or returns it unchanged before registration.
func (e *Engine) foldChannel(name string) string {
	if e.session == nil {
		return name
	}
	return e.session.Casemap.Fold(name)
}

func (e *Engine) handlePart(m irc.Part) {
	if e.session == nil {
		return
	}
	nick := ""
	if m.Prefix() != nil {
		nick = m.Prefix().Name
	}
	for _, ch := range m.Channels {
		e.session.DeleteChannelMember(ch, nick)
		if e.typing != nil {
			e.typing.clear(ch, nick)
		}
		e.displayNotice(fmt.Sprintf("%s left %s (%s)", nick, ch, m.Reason))
	}
}

func (e *Engine) handleNick(m irc.Nick) {
	if e.session == nil || m.Prefix() == nil {
		return
	}
	old := m.Prefix().Name
	e.session.ChangeNickname(old, m.Nickname)
	e.displayNotice(fmt.Sprintf("%s is now known as %s", old, m.Nickname))
}

// messageTime resolves spec.md §4.5's "Message time" rule: use the
// active server-time tag if present and parseable, else the local clock.
func (e *Engine) messageTime(msg irc.Message) time.Time {
	if e.session != nil && e.session.Caps.IsActive("server-time") {
		if ts, ok := msg.Tags()["time"]; ok {
			if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
				return t
			}
		}
	}
	return time.Now()
}

func (e *Engine) handlePrivmsg(m irc.Privmsg) {
	sender := ""
	if m.Prefix() != nil {
		sender = m.Prefix().Name
	}
	if e.session != nil {
		e.session.Touch(sender)
	}
	at := e.messageTime(m)
	for _, t := range m.Targets {
		e.displayMessage(newMessageEvent(at, sender, t, m.Text, false))
	}
}

func (e *Engine) handleNotice(m irc.Notice) {
	sender := ""
	if m.Prefix() != nil {
		sender = m.Prefix().Name
	}
	if e.session != nil {
		e.session.Touch(sender)
	}
	at := e.messageTime(m)
	for _, t := range m.Targets {
		e.displayMessage(newMessageEvent(at, sender, t, m.Text, true))
	}
}

func (e *Engine) handleNamReply(m irc.NamReply) {
	if e.session == nil {
		return
	}
	for _, token := range m.Names {
		modes, nick := e.session.Parameters.DecodeNamesPrefix(token)
		e.session.AddChannelMember(m.Channel, nick, modes...)
	}
}

// handleWelcome implements spec.md §4.5's "001 -> set me = client; CAS to
// Registered", including the fatal-error path on CAS failure.
func (e *Engine) handleWelcome(m irc.Welcome) {
	if e.session == nil {
		return
	}
	e.session.SetMe(m.Nick)
	if !e.cas(StateConnected, StateRegistered) {
		e.opts.Logger.Printf("engine: %v", ErrRegistrationFailed)
		if e.conn != nil {
			_ = e.conn.Close()
		}
		return
	}
	if e.opts.Display != nil {
		e.opts.Display.SetStatus(ui.PlainSprintf("registered as %s", m.Nick))
	}
}

// knownCapabilities is the set of IRCv3 capabilities this engine acts on,
// grounded on the teacher's irc/states.go SupportedCapabilities, trimmed
// to the ones this engine actually implements. handleCapLS/handleCapNew
// add only these to the server-advertised set, per spec.md §4.5 step 2:
// "Add each known capability; ignore unknown names".
var knownCapabilities = map[string]struct{}{
	"echo-message": {},
	"message-tags": {},
	"server-time":  {},
	"sasl":         {},
}

// handleCapLS implements spec.md §4.5 step 2: multi-line LS accumulation,
// then CAP REQ for everything advertised and known, or CAP END if
// nothing was.
func (e *Engine) handleCapLS(m irc.CapLSReply) {
	if e.session == nil {
		return
	}
	caps := e.session.Caps
	if !caps.Receiving() {
		caps.ClearServer()
		caps.StartReceiving()
	}
	for _, c := range m.Caps {
		if _, known := knownCapabilities[c.Name]; !known {
			continue
		}
		caps.AddServer(c.Name, c.Value)
	}
	if m.More {
		return
	}
	caps.StopReceiving()
	e.requestAdvertisedOrEnd()
}

func (e *Engine) requestAdvertisedOrEnd() {
	names := e.session.Caps.ServerNames()
	if len(names) == 0 {
		e.sendCapEndIfNeeded()
		return
	}
	for _, n := range names {
		e.session.Caps.AddRequested(n)
	}
	e.send(irc.CapReq{Caps: names})
}

func (e *Engine) handleCapAck(m irc.CapAck) {
	if e.session == nil {
		return
	}
	for _, name := range m.Caps {
		e.session.Caps.Enable(name)
		if name == "sasl" && e.opts.SASL != nil {
			e.saslPending = true
			e.send(irc.Authenticate{Payload: e.opts.SASL.Handshake()})
		}
	}
	if e.session.Caps.RequestedCount() == 0 && !e.saslPending {
		e.sendCapEndIfNeeded()
	}
}

func (e *Engine) handleCapNak(m irc.CapNak) {
	if e.session == nil {
		return
	}
	for _, name := range m.Caps {
		e.session.Caps.RemoveRequested(name)
	}
	if e.session.Caps.RequestedCount() == 0 {
		e.sendCapEndIfNeeded()
	}
}

// handleCapNew implements spec.md §4.5 step 6 (post-registration):
// advertise, then request whatever isn't already active.
func (e *Engine) handleCapNew(m irc.CapNew) {
	if e.session == nil {
		return
	}
	var toRequest []string
	for _, c := range m.Caps {
		if _, known := knownCapabilities[c.Name]; !known {
			continue
		}
		e.session.Caps.AddServer(c.Name, c.Value)
		if !e.session.Caps.IsActive(c.Name) {
			toRequest = append(toRequest, c.Name)
		}
	}
	if len(toRequest) == 0 {
		return
	}
	for _, n := range toRequest {
		e.session.Caps.AddRequested(n)
	}
	e.send(irc.CapReq{Caps: toRequest})
}

func (e *Engine) handleCapDel(m irc.CapDel) {
	if e.session == nil {
		return
	}
	for _, c := range m.Caps {
		e.session.Caps.RemoveServer(c.Name)
	}
}

// sendCapEndIfNeeded sends CAP END exactly once, only while still
// Connected (not yet Registered), per spec.md §4.5 step 5.
func (e *Engine) sendCapEndIfNeeded() {
	if e.capEndSent {
		return
	}
	if e.State() != StateConnected {
		return
	}
	e.capEndSent = true
	e.send(irc.CapEnd{})
}
