package evaluator

import "sort"

// stackSlot is one arena entry. A closed slot keeps its name until it is
// reused so that stale references can still be reported by name.
type stackSlot struct {
	name    string
	values  []Value
	gen     uint32
	seq     uint64
	private bool
	live    bool
}

func (s *stackSlot) push(v Value) {
	s.values = append(s.values, v)
}

func (s *stackSlot) pop() (Value, bool) {
	if len(s.values) == 0 {
		return nil, false
	}
	v := s.values[len(s.values)-1]
	s.values = s.values[:len(s.values)-1]
	return v, true
}

func (s *stackSlot) reverse() {
	for i, j := 0, len(s.values)-1; i < j; i, j = i+1, j-1 {
		s.values[i], s.values[j] = s.values[j], s.values[i]
	}
}

// arena stores the stacks of a run. Closed slots go on a free list and
// are reused under a new generation, so a Handle to a closed stack never
// resolves to its successor.
type arena struct {
	slots  []*stackSlot
	free   []int
	seq    uint64
	byName map[string]Handle

	// names of closed user stacks whose slot was reused
	closed map[Handle]string
}

func newArena() *arena {
	return &arena{
		byName: make(map[string]Handle),
		closed: make(map[Handle]string),
	}
}

func (a *arena) create(name string, private bool) Handle {
	a.seq++
	var h Handle
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		s := a.slots[idx]
		if !s.private {
			a.closed[Handle{Index: idx, Gen: s.gen}] = s.name
		}
		s.gen++
		s.name, s.private, s.seq, s.live = name, private, a.seq, true
		h = Handle{Index: idx, Gen: s.gen}
	} else {
		h = Handle{Index: len(a.slots)}
		a.slots = append(a.slots, &stackSlot{name: name, private: private, seq: a.seq, live: true})
	}
	a.byName[name] = h
	return h
}

func (a *arena) slot(h Handle) (*stackSlot, bool) {
	if h.Index < 0 || h.Index >= len(a.slots) {
		return nil, false
	}
	s := a.slots[h.Index]
	if s.gen != h.Gen {
		return nil, false
	}
	return s, true
}

// get returns the live slot for h.
func (a *arena) get(h Handle) (*stackSlot, bool) {
	s, ok := a.slot(h)
	if !ok || !s.live {
		return nil, false
	}
	return s, true
}

func (a *arena) lookup(name string) (Handle, bool) {
	h, ok := a.byName[name]
	return h, ok
}

func (a *arena) name(h Handle) string {
	if s, ok := a.slot(h); ok {
		return s.name
	}
	if name, ok := a.closed[h]; ok {
		return name
	}
	return "?"
}

func (a *arena) close(h Handle) {
	s := a.slots[h.Index]
	s.live = false
	s.values = nil
	delete(a.byName, s.name)
	a.free = append(a.free, h.Index)
}

// live returns the handles of open stacks in creation order.
func (a *arena) live() []Handle {
	var out []Handle
	for i, s := range a.slots {
		if s.live {
			out = append(out, Handle{Index: i, Gen: s.gen})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return a.slots[out[i].Index].seq < a.slots[out[j].Index].seq
	})
	return out
}

// size is the number of slots, live or free.
func (a *arena) size() int { return len(a.slots) }
