package bridge

import (
	"fmt"
	"sync"

	"modernc.org/libc"

	"github.com/tomyedwab/sqlbridge/native"
)

// Handle is an opaque token for a native connection or statement. The zero
// Handle means closed or unprepared. Tokens carry a generation, so a copy
// kept past Close or Finalize never resolves again.
type Handle uint64

func (h Handle) slot() int          { return int(uint32(h)) - 1 }
func (h Handle) generation() uint32 { return uint32(h >> 32) }

func (h Handle) String() string {
	if h == 0 {
		return "closed"
	}
	return fmt.Sprintf("%d.%d", h.slot(), h.generation())
}

type slotKind uint8

const (
	kindFree slotKind = iota
	kindConn
	kindStmt
)

// stepState tracks where a statement is in its step cycle.
type stepState uint8

const (
	statePrepared stepState = iota
	stateHasRow
	stateDone
)

type slot struct {
	kind slotKind
	gen  uint32
	tls  *libc.TLS
	db   native.DB
	stmt native.Stmt

	// statements
	conn  Handle
	state stepState

	// connections
	execDepth int
}

// arena owns every live slot. The mutex protects the table itself; the
// native objects behind the slots are not made safe for concurrent use.
type arena struct {
	mu    sync.Mutex
	slots []slot
	free  []int
}

func (a *arena) alloc(s slot) Handle {
	a.mu.Lock()
	defer a.mu.Unlock()

	var i int
	if n := len(a.free); n > 0 {
		i = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, slot{})
		i = len(a.slots) - 1
	}
	s.gen = a.slots[i].gen + 1
	a.slots[i] = s
	return Handle(uint64(s.gen)<<32 | uint64(i+1))
}

// get returns a copy of the live slot behind h.
func (a *arena) get(h Handle, kind slotKind) (slot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.lookup(h, kind)
	if s == nil {
		return slot{}, false
	}
	return *s, true
}

// update runs fn on the live slot behind h while holding the arena lock.
func (a *arena) update(h Handle, kind slotKind, fn func(*slot)) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.lookup(h, kind)
	if s == nil {
		return false
	}
	fn(s)
	return true
}

func (a *arena) release(h Handle, kind slotKind) (slot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.lookup(h, kind)
	if s == nil {
		return slot{}, false
	}
	old := *s
	*s = slot{gen: s.gen}
	a.free = append(a.free, h.slot())
	return old, true
}

func (a *arena) lookup(h Handle, kind slotKind) *slot {
	i := h.slot()
	if h == 0 || i < 0 || i >= len(a.slots) {
		return nil
	}
	s := &a.slots[i]
	if s.kind != kind || s.gen != h.generation() {
		return nil
	}
	return s
}

// live lists the handles of one kind that are still allocated.
func (a *arena) live(kind slotKind) []Handle {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []Handle
	for i, s := range a.slots {
		if s.kind == kind {
			out = append(out, Handle(uint64(s.gen)<<32|uint64(i+1)))
		}
	}
	return out
}
