package irc

import "time"

// Membership is the set of per-user channel mode characters a user holds
// in one channel (e.g. {'o', 'v'} for an op who also has voice), per
// spec.md §3.2.
type Membership map[byte]struct{}

// Has reports whether m contains mode.
func (m Membership) Has(mode byte) bool {
	_, ok := m[mode]
	return ok
}

// KnownUser is a known user: display nickname, last-touched instant, the
// set of channels they are visible in (insertion-ordered so "focused"
// channel semantics can be built on top), and flags the server has told
// us about on that user directly (e.g. "+i"). Named KnownUser rather than
// User to stay distinct from the USER registration message (message_session.go).
type KnownUser struct {
	Nick       string
	LastTouch  time.Time
	Channels   []string // insertion order; casemapped keys into State.channels.
	channelIdx map[string]int
	Modes      map[byte]struct{}
}

func newKnownUser(nick string) *KnownUser {
	return &KnownUser{Nick: nick, channelIdx: map[string]int{}, Modes: map[byte]struct{}{}}
}

func (u *KnownUser) addChannel(channelCf string) {
	if _, ok := u.channelIdx[channelCf]; ok {
		return
	}
	u.channelIdx[channelCf] = len(u.Channels)
	u.Channels = append(u.Channels, channelCf)
}

func (u *KnownUser) removeChannel(channelCf string) {
	i, ok := u.channelIdx[channelCf]
	if !ok {
		return
	}
	u.Channels = append(u.Channels[:i], u.Channels[i+1:]...)
	delete(u.channelIdx, channelCf)
	for cf, idx := range u.channelIdx {
		if idx > i {
			u.channelIdx[cf] = idx - 1
		}
	}
}

// focus moves channelCf to the tail of u.Channels, the ordered-focus
// semantics spec.md §9 describes ("Ordered channel focus"). Fails (returns
// false) if the user is not a member of channelCf.
func (u *KnownUser) focus(channelCf string) bool {
	i, ok := u.channelIdx[channelCf]
	if !ok {
		return false
	}
	if i == len(u.Channels)-1 {
		return true
	}
	u.Channels = append(u.Channels[:i], u.Channels[i+1:]...)
	for cf, idx := range u.channelIdx {
		if idx > i {
			u.channelIdx[cf] = idx - 1
		}
	}
	u.channelIdx[channelCf] = len(u.Channels)
	u.Channels = append(u.Channels, channelCf)
	return true
}

// focused returns the last-focused channel (casemapped key), or "" if the
// user is on no channels.
func (u *KnownUser) focused() string {
	if len(u.Channels) == 0 {
		return ""
	}
	return u.Channels[len(u.Channels)-1]
}

// Channel is a joined channel: display name, members, per-mode lists (e.g.
// bans), per-mode single-value settings (e.g. a channel key), and the
// channel's own mode-flag set (e.g. "+nt"), per spec.md §3.2.
type Channel struct {
	Name    string
	Members map[string]Membership // casemapped nick -> membership.

	// Lists are per-mode-letter accumulations (type A modes, e.g. 'b' for
	// bans): the set of masks currently set for that mode.
	Lists map[byte]map[string]struct{}
	// Settings are per-mode-letter single values (type B/C modes, e.g.
	// 'k' for a channel key, 'l' for a limit).
	Settings map[byte]string
	// Modes is the channel's own flag set (type D modes with no argument,
	// e.g. 'n', 't').
	Modes map[byte]struct{}
}

func newChannel(name string) *Channel {
	return &Channel{
		Name:     name,
		Members:  map[string]Membership{},
		Lists:    map[byte]map[string]struct{}{},
		Settings: map[byte]string{},
		Modes:    map[byte]struct{}{},
	}
}

// Capabilities tracks IRCv3 capability negotiation state, per spec.md
// §3.2/§4.5: a server-advertised set with values, a requested set awaiting
// ACK/NAK, an active (ACKed) set, and the "receiving" multi-line-LS flag.
type Capabilities struct {
	server    map[string]string
	requested map[string]struct{}
	active    map[string]string
	receiving bool
}

func newCapabilities() *Capabilities {
	return &Capabilities{
		server:    map[string]string{},
		requested: map[string]struct{}{},
		active:    map[string]string{},
	}
}

// ServerNames returns every currently server-advertised capability name,
// in no particular order.
func (c *Capabilities) ServerNames() []string {
	names := make([]string, 0, len(c.server))
	for n := range c.server {
		names = append(names, n)
	}
	return names
}

func (c *Capabilities) AddServer(name, value string) { c.server[name] = value }
func (c *Capabilities) RemoveServer(name string) {
	delete(c.server, name)
	delete(c.active, name)
	delete(c.requested, name)
}
func (c *Capabilities) ServerValue(name string) (string, bool) { v, ok := c.server[name]; return v, ok }
func (c *Capabilities) IsServerAdvertised(name string) bool    { _, ok := c.server[name]; return ok }

func (c *Capabilities) AddRequested(name string)    { c.requested[name] = struct{}{} }
func (c *Capabilities) RemoveRequested(name string) { delete(c.requested, name) }
func (c *Capabilities) IsRequested(name string) bool {
	_, ok := c.requested[name]
	return ok
}
func (c *Capabilities) RequestedCount() int { return len(c.requested) }

// Enable promotes name from server to active, using the server-provided
// value. No-op (stays inactive) if name was never server-advertised, per
// spec.md §8's round-trip property.
func (c *Capabilities) Enable(name string) {
	v, ok := c.server[name]
	if !ok {
		return
	}
	c.active[name] = v
	delete(c.requested, name)
}

func (c *Capabilities) Disable(name string) { delete(c.active, name) }

// IsActive reports whether name is active. It does not look at the
// capability's value; ActiveValue returns that.
func (c *Capabilities) IsActive(name string) bool {
	_, ok := c.active[name]
	return ok
}

func (c *Capabilities) ActiveValue(name string) (string, bool) { v, ok := c.active[name]; return v, ok }

func (c *Capabilities) ClearActive() { c.active = map[string]string{} }
func (c *Capabilities) ClearServer() { c.server = map[string]string{} }

func (c *Capabilities) Receiving() bool      { return c.receiving }
func (c *Capabilities) StartReceiving() bool { was := c.receiving; c.receiving = true; return was }
func (c *Capabilities) StopReceiving()       { c.receiving = false }

// State is the in-memory session store: users, channels, memberships,
// server parameters, capability negotiation state and the local user's
// identity, per spec.md §3.2. State methods do not check which goroutine
// calls them. The engine calls Guard.Enter with its worker's id before
// each task it runs; Guard panics only when Enter is given an id other
// than the one it is bound to.
type State struct {
	Guard      StateGuard
	Casemap    Casemapping
	Parameters *Parameters
	Caps       *Capabilities

	meCf string // "" before 001.

	users    map[string]*KnownUser // casemapped nick -> user.
	channels map[string]*Channel   // casemapped name -> channel.
}

// NewState returns a freshly initialized State, created when the TCP
// connection succeeds per spec.md §3.4.
func NewState() *State {
	params := NewParameters()
	return &State{
		Casemap:    params.Casemapping,
		Parameters: params,
		Caps:       newCapabilities(),
		users:      map[string]*KnownUser{},
		channels:   map[string]*Channel{},
	}
}

func (s *State) fold(name string) string { return s.Parameters.Casemapping.Fold(name) }

// syncCasemap keeps State.Casemap mirroring Parameters.Casemapping, so
// that lookups always consult the currently-active mapping (spec.md §9:
// "Normalization is consulted per lookup; do not cache normalized names").
func (s *State) syncCasemap() { s.Casemap = s.Parameters.Casemapping }

// ApplyISupport feeds a batch of 005 tokens to Parameters and refreshes
// the active casemapping, per spec.md §4.5 ("005 -> feed each token to
// ISUPPORT parser").
func (s *State) ApplyISupport(tokens []string) {
	for _, t := range tokens {
		s.Parameters.ApplyISupportToken(t)
	}
	s.syncCasemap()
}

// FindUser looks up a user by nickname using the active casemapping.
func (s *State) FindUser(nick string) (*KnownUser, bool) {
	u, ok := s.users[s.fold(nick)]
	return u, ok
}

// FindChannel looks up a channel by name using the active casemapping.
func (s *State) FindChannel(name string) (*Channel, bool) {
	c, ok := s.channels[s.fold(name)]
	return c, ok
}

// Me returns the local user, or nil before registration (001).
func (s *State) Me() *KnownUser {
	if s.meCf == "" {
		return nil
	}
	return s.users[s.meCf]
}

// getOrCreateUser returns the existing user for nick, or creates one,
// touching it either way.
func (s *State) getOrCreateUser(nick string) *KnownUser {
	cf := s.fold(nick)
	u, ok := s.users[cf]
	if !ok {
		u = newKnownUser(nick)
		s.users[cf] = u
	}
	u.LastTouch = time.Now()
	return u
}

func (s *State) getOrCreateChannel(name string) *Channel {
	cf := s.fold(name)
	c, ok := s.channels[cf]
	if !ok {
		c = newChannel(name)
		s.channels[cf] = c
	}
	return c
}

// SetMe sets the local user's nickname, creating the user entry if
// absent, per spec.md §4.3 set_me.
func (s *State) SetMe(nick string) {
	u := s.getOrCreateUser(nick)
	s.meCf = s.fold(nick)
	u.Nick = nick
}

// AddChannelMember creates-or-gets both the channel and the user, and
// records the given membership modes for that user in that channel, per
// spec.md §4.3 add_channel_member. Invariant 2 (bidirectional membership)
// is maintained by construction: both sides are updated together.
func (s *State) AddChannelMember(channelName, nick string, modes ...byte) {
	c := s.getOrCreateChannel(channelName)
	u := s.getOrCreateUser(nick)
	cf := s.fold(channelName)

	mship, ok := c.Members[s.fold(nick)]
	if !ok {
		mship = Membership{}
	}
	for _, m := range modes {
		mship[m] = struct{}{}
	}
	c.Members[s.fold(nick)] = mship
	u.addChannel(cf)
}

// AddChannelMemberModes adds mode characters to an existing membership.
// No-op if the user is not a member of the channel.
func (s *State) AddChannelMemberModes(channelName, nick string, modes ...byte) {
	c, ok := s.FindChannel(channelName)
	if !ok {
		return
	}
	mship, ok := c.Members[s.fold(nick)]
	if !ok {
		return
	}
	for _, m := range modes {
		mship[m] = struct{}{}
	}
}

// DeleteChannelMemberModes removes mode characters from an existing
// membership.
func (s *State) DeleteChannelMemberModes(channelName, nick string, modes ...byte) {
	c, ok := s.FindChannel(channelName)
	if !ok {
		return
	}
	mship, ok := c.Members[s.fold(nick)]
	if !ok {
		return
	}
	for _, m := range modes {
		delete(mship, m)
	}
}

// DeleteChannelMember removes a user's membership from a channel. Per
// spec.md invariant 3, a channel with zero members afterward is deleted.
func (s *State) DeleteChannelMember(channelName, nick string) {
	cf := s.fold(channelName)
	c, ok := s.channels[cf]
	if !ok {
		return
	}
	nickCf := s.fold(nick)
	delete(c.Members, nickCf)
	if u, ok := s.users[nickCf]; ok {
		u.removeChannel(cf)
	}
	if len(c.Members) == 0 {
		delete(s.channels, cf)
	}
}

// ChangeNickname moves a user's index entry from old to new, per spec.md
// §4.3 change_nickname. It is a no-op when the casemapped keys are equal
// (a pure-display-casing rename is still applied to the display name, but
// no reindexing happens since the key is unchanged). Updates Me if the
// renamed user is the local user, and re-keys channel membership maps.
func (s *State) ChangeNickname(old, new string) {
	oldCf := s.fold(old)
	newCf := s.fold(new)

	u, ok := s.users[oldCf]
	if !ok {
		u = newKnownUser(new)
	}
	u.Nick = new

	if oldCf == newCf {
		s.users[oldCf] = u
		return
	}

	for _, channelCf := range u.Channels {
		if c, ok := s.channels[channelCf]; ok {
			if mship, ok := c.Members[oldCf]; ok {
				delete(c.Members, oldCf)
				c.Members[newCf] = mship
			}
		}
	}

	delete(s.users, oldCf)
	s.users[newCf] = u

	if s.meCf == oldCf {
		s.meCf = newCf
	}
}

// Quit removes a user from every channel they were in (deleting any that
// become empty) and from the user map, per spec.md §4.3 quit. A quit for
// the local user is skipped: a reconnect will rebuild state from scratch.
func (s *State) Quit(nick string) {
	cf := s.fold(nick)
	if cf == s.meCf {
		return
	}
	u, ok := s.users[cf]
	if !ok {
		return
	}
	for _, channelCf := range append([]string(nil), u.Channels...) {
		if c, ok := s.channels[channelCf]; ok {
			delete(c.Members, cf)
			if len(c.Members) == 0 {
				delete(s.channels, channelCf)
			}
		}
	}
	delete(s.users, cf)
}

// Touch refreshes a user's last-touched instant, creating the user if
// absent, per spec.md §4.3 touch.
func (s *State) Touch(nick string) {
	s.getOrCreateUser(nick)
}

// GC removes users that are not Me, are in zero channels, and were last
// touched before cutoff, per spec.md §4.3 gc and §3.4.
func (s *State) GC(cutoff time.Time) {
	for cf, u := range s.users {
		if cf == s.meCf {
			continue
		}
		if len(u.Channels) != 0 {
			continue
		}
		if !u.LastTouch.Before(cutoff) {
			continue
		}
		delete(s.users, cf)
	}
}

// FocusChannel moves channelName to the tail of the local user's ordered
// channel set, per spec.md §4.3 focus_channel. Returns false if the local
// user is not a member (or not yet registered).
func (s *State) FocusChannel(channelName string) bool {
	me := s.Me()
	if me == nil {
		return false
	}
	return me.focus(s.fold(channelName))
}

// FocusedChannel returns the display name of the local user's
// most-recently-focused channel, or "" if they are on no channels, per
// spec.md §4.3 focused_channel / §9's open question resolution (no
// fallback).
func (s *State) FocusedChannel() (string, bool) {
	me := s.Me()
	if me == nil {
		return "", false
	}
	cf := me.focused()
	if cf == "" {
		return "", false
	}
	c, ok := s.channels[cf]
	if !ok {
		return "", false
	}
	return c.Name, true
}
