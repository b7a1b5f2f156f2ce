package evaluator

// Env is one scope frame of variable bindings. Procedure calls push a
// child frame and discard it on return; lookup walks outward through the
// caller's frames, so bindings are dynamically scoped.
type Env struct {
	bindings map[string]Value
	parent   *Env
}

// NewEnv creates a new frame with an optional parent.
func NewEnv(parent *Env) *Env {
	return &Env{
		bindings: make(map[string]Value),
		parent:   parent,
	}
}

// Child creates a new frame whose parent is this frame.
func (e *Env) Child() *Env {
	return NewEnv(e)
}

// Get looks up a variable by name, innermost frame first.
func (e *Env) Get(name string) (Value, bool) {
	if val, ok := e.bindings[name]; ok {
		return val, true
	}
	if e.parent != nil {
		return e.parent.Get(name)
	}
	return nil, false
}

// Set binds a variable in this frame.
func (e *Env) Set(name string, val Value) {
	e.bindings[name] = val
}

// Delete removes the innermost binding of name and reports whether one
// existed.
func (e *Env) Delete(name string) bool {
	for f := e; f != nil; f = f.parent {
		if _, ok := f.bindings[name]; ok {
			delete(f.bindings, name)
			return true
		}
	}
	return false
}

// Depth is the number of frames from e to the global frame, inclusive.
func (e *Env) Depth() int {
	n := 0
	for f := e; f != nil; f = f.parent {
		n++
	}
	return n
}
