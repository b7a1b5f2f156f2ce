// Package evaluator implements the stk runtime: a tree-walking evaluator
// over named stacks.
package evaluator

import "strconv"

// Value is the interface for all stack values.
// The sealed marker restricts implementations to this package.
type Value interface {
	stkvalue() // sealed marker
}

// Int is an unsigned byte value.
type Int struct {
	V byte
}

func (Int) stkvalue() {}

// Handle identifies a stack in the arena. Slots of closed stacks are
// reused; Gen distinguishes a slot's successive stacks. The zero Handle
// is main.
type Handle struct {
	Index int
	Gen   uint32
}

// StackRef aliases a named stack. Copies of a StackRef alias the same
// stack.
type StackRef struct {
	Handle Handle
}

func (StackRef) stkvalue() {}

// NewInt creates an Int value.
func NewInt(v byte) Value {
	return Int{V: v}
}

// Bool converts a comparison result to Int(1) or Int(0).
func Bool(b bool) Value {
	if b {
		return Int{V: 1}
	}
	return Int{V: 0}
}

// FormatValue renders v the way `print` does, without the newline.
// Stack names are resolved through m.
func (m *Machine) FormatValue(v Value) string {
	switch val := v.(type) {
	case Int:
		return strconv.Itoa(int(val.V))
	case StackRef:
		return "<stack " + m.stacks.name(val.Handle) + ">"
	}
	return "<invalid>"
}
