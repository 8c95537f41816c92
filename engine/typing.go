package engine

import (
	"sync"
	"time"
)

// typingTimeout is how long a peer's "active"/"paused" typing state is
// honored absent an explicit "done", mirroring the teacher's
// irc/typing.go Typings 6-second timeout.
const typingTimeout = 6 * time.Second

// typingThrottle is the minimum interval between two outbound "active"
// typing notifications to the same target, mirroring the teacher's
// irc/states.go typingStamps 3-second de-dupe window.
const typingThrottle = 3 * time.Second

// typingKey identifies one user typing toward one target.
type typingKey struct {
	target string
	name   string
}

// typingTracker is the inbound half of SPEC_FULL.md §12's typing-
// notification feature: who is currently typing toward which target,
// expiring an entry typingTimeout after its last "active"/"paused"
// unless refreshed or cleared by a "done". Grounded on the teacher's
// irc/typing.go Typings (a target+name map with a timeout goroutine per
// entry) generalized from its single shared timeout channel to one timer
// per entry, since the engine has no equivalent of Typings.Stops() loop
// to poll.
type typingTracker struct {
	mu     sync.Mutex
	active map[typingKey]struct{}
	timers map[typingKey]*time.Timer
}

func newTypingTracker() *typingTracker {
	return &typingTracker{
		active: make(map[typingKey]struct{}),
		timers: make(map[typingKey]*time.Timer),
	}
}

// markActive records target/name as typing (or still-paused-but-typing)
// and (re)arms its staleness timer.
func (t *typingTracker) markActive(target, name string) {
	key := typingKey{target, name}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active[key] = struct{}{}
	if timer, ok := t.timers[key]; ok {
		timer.Stop()
	}
	t.timers[key] = time.AfterFunc(typingTimeout, func() { t.clear(target, name) })
}

// markDone removes target/name from the typing set immediately, per an
// explicit "+typing=done" TAGMSG.
func (t *typingTracker) markDone(target, name string) {
	t.clear(target, name)
}

func (t *typingTracker) clear(target, name string) {
	key := typingKey{target, name}
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.timers[key]; ok {
		timer.Stop()
		delete(t.timers, key)
	}
	delete(t.active, key)
}

// users returns who is currently marked as typing toward target, in no
// particular order.
func (t *typingTracker) users(target string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var names []string
	for k := range t.active {
		if k.target == target {
			names = append(names, k.name)
		}
	}
	return names
}

// removeUser clears every target name is tracked as typing toward, for
// QUIT cleanup (PART and KICK clear one target with clear), mirroring the
// teacher's typings.Done call sites
// in irc/states.go.
func (t *typingTracker) removeUser(name string) {
	t.mu.Lock()
	var keys []typingKey
	for k := range t.active {
		if k.name == name {
			keys = append(keys, k)
		}
	}
	t.mu.Unlock()
	for _, k := range keys {
		t.clear(k.target, k.name)
	}
}

// stop cancels every pending timer, e.g. on disconnect, so no stale timer
// fires against a tracker the engine has already discarded.
func (t *typingTracker) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, timer := range t.timers {
		timer.Stop()
	}
	t.timers = make(map[typingKey]*time.Timer)
	t.active = make(map[typingKey]struct{})
}
