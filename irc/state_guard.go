package irc

import (
	"fmt"
	"sync/atomic"
)

// StateGuard is a runtime single-writer assertion, per spec.md §3.3
// invariant 7 and §9's "Thread-affine state" design note. The teacher
// enforces this implicitly — only Session.run's goroutine touches session
// fields (irc/states.go) — rather than with an explicit checked cell; this
// type makes that invariant observable and testable instead of merely
// convention.
//
// A StateGuard binds to the first id passed to Enter and panics if Enter
// is later called with any other id, mirroring the teacher's
// existing atomic.Value-backed running flag (irc/states.go's
// Session.running) in its choice of primitive.
type StateGuard struct {
	owner atomic.Value // goroutineID
}

// goroutineID identifies the calling goroutine well enough to distinguish
// "the same worker" from "some other goroutine" across repeated Enter
// calls; it does not need to be a real OS thread id, only stable for the
// lifetime of one goroutine and distinct across concurrently live ones.
// It is a counter value handed out by NewGoroutineID, which the caller
// keeps and passes to every Enter.
type goroutineID = uint64

// Bind records id as the sole goroutine allowed to call Enter from now on.
// Calling Bind again with a different id re-binds.
func (g *StateGuard) Bind(id goroutineID) {
	g.owner.Store(id)
}

// Enter panics if id does not match the bound owner. A StateGuard with no
// owner bound yet accepts any id and binds to it, so the first caller
// establishes ownership without a separate Bind call.
func (g *StateGuard) Enter(id goroutineID) {
	if cur, ok := g.owner.Load().(goroutineID); ok {
		if cur != id {
			panic(fmt.Sprintf("irc: state accessed from goroutine %d, owned by %d", id, cur))
		}
		return
	}
	g.owner.Store(id)
}

var goroutineIDCounter uint64

// NewGoroutineID hands out a fresh id for a worker goroutine to bind a
// StateGuard with, e.g. once at the top of the engine's run loop. It has
// no relation to the Go runtime's internal goroutine ids; it only needs to
// be distinct per concurrently-live worker.
func NewGoroutineID() goroutineID {
	return atomic.AddUint64(&goroutineIDCounter, 1)
}
