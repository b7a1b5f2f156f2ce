// Package ast defines the stk Instruction Tree node types.
package ast

// Pos is the source location of an instruction.
type Pos struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

// Instr is the interface implemented by all Instruction Tree nodes.
type Instr interface {
	Kind() string
	Position() Pos
	instrNode() // sealed marker
}

// OpCode identifies a primitive instruction that carries no payload.
// The value is the keyword or operator used in source.
type OpCode string

const (
	OpPop        OpCode = "pop"
	OpDup        OpCode = "dup"
	OpSwap       OpCode = "swap"
	OpPrint      OpCode = "print"
	OpPrintASCII OpCode = "print_ascii"
	OpAdd        OpCode = "+"
	OpSub        OpCode = "-"
	OpMul        OpCode = "*"
	OpDiv        OpCode = "/"
	OpEq         OpCode = "="
	OpLt         OpCode = "<"
	OpGt         OpCode = ">"
	OpExit       OpCode = "exit"
	OpSwitch     OpCode = "switch"
	OpClose      OpCode = "close"
	OpThis       OpCode = "this"
	OpStacks     OpCode = "stacks"
	OpStackSize  OpCode = "stack_size"
	OpStackRev   OpCode = "stack_rev"
)

var opKinds = map[OpCode]string{
	OpPop:        "Pop",
	OpDup:        "Duplicate",
	OpSwap:       "Swap",
	OpPrint:      "Print",
	OpPrintASCII: "PrintASCII",
	OpAdd:        "Add",
	OpSub:        "Subtract",
	OpMul:        "Multiply",
	OpDiv:        "Divide",
	OpEq:         "Equal",
	OpLt:         "LessThan",
	OpGt:         "GreaterThan",
	OpExit:       "Exit",
	OpSwitch:     "SwitchToTop",
	OpClose:      "Close",
	OpThis:       "ThisStack",
	OpStacks:     "ListStacks",
	OpStackSize:  "StackDepth",
	OpStackRev:   "ReverseStack",
}

// Valid reports whether c is a known primitive.
func (c OpCode) Valid() bool {
	_, ok := opKinds[c]
	return ok
}

// --- Primitives ---

type Push struct {
	Pos   Pos
	Value byte
}

func (n *Push) Kind() string  { return "Push" }
func (n *Push) Position() Pos { return n.Pos }
func (n *Push) instrNode()    {}

// Op is a payload-free primitive (arithmetic, stack manipulation, output,
// stack switching).
type Op struct {
	Pos  Pos
	Code OpCode
}

func (n *Op) Kind() string {
	if k, ok := opKinds[n.Code]; ok {
		return k
	}
	return "Op(" + string(n.Code) + ")"
}
func (n *Op) Position() Pos { return n.Pos }
func (n *Op) instrNode()    {}

// --- Control flow ---

type If struct {
	Pos  Pos
	Then []Instr
	Else []Instr
}

func (n *If) Kind() string  { return "If" }
func (n *If) Position() Pos { return n.Pos }
func (n *If) instrNode()    {}

type While struct {
	Pos  Pos
	Cond []Instr
	Body []Instr
}

func (n *While) Kind() string  { return "While" }
func (n *While) Position() Pos { return n.Pos }
func (n *While) instrNode()    {}

// --- Names ---

type VarDeclare struct {
	Pos  Pos
	Name string
	Init []Instr
}

func (n *VarDeclare) Kind() string  { return "VarDeclare" }
func (n *VarDeclare) Position() Pos { return n.Pos }
func (n *VarDeclare) instrNode()    {}

type Drop struct {
	Pos  Pos
	Name string
}

func (n *Drop) Kind() string  { return "Drop" }
func (n *Drop) Position() Pos { return n.Pos }
func (n *Drop) instrNode()    {}

// Identifier references a variable, procedure or macro by name.
type Identifier struct {
	Pos  Pos
	Name string
}

func (n *Identifier) Kind() string  { return "Identifier" }
func (n *Identifier) Position() Pos { return n.Pos }
func (n *Identifier) instrNode()    {}

type ProcedureDeclare struct {
	Pos     Pos
	Name    string
	Params  []string
	Body    []Instr
	Returns bool
}

func (n *ProcedureDeclare) Kind() string  { return "ProcedureDeclare" }
func (n *ProcedureDeclare) Position() Pos { return n.Pos }
func (n *ProcedureDeclare) instrNode()    {}

type Macro struct {
	Pos  Pos
	Name string
	Body []Instr
}

func (n *Macro) Kind() string  { return "Macro" }
func (n *Macro) Position() Pos { return n.Pos }
func (n *Macro) instrNode()    {}

// --- Stacks ---

// Spawn creates a named stack. A private spawn gets a unique suffix
// appended to Name at run time.
type Spawn struct {
	Pos     Pos
	Name    string
	Private bool
}

func (n *Spawn) Kind() string  { return "Spawn" }
func (n *Spawn) Position() Pos { return n.Pos }
func (n *Spawn) instrNode()    {}

type StackOf struct {
	Pos  Pos
	Name string
}

func (n *StackOf) Kind() string  { return "StackOf" }
func (n *StackOf) Position() Pos { return n.Pos }
func (n *StackOf) instrNode()    {}

// StringLiteral holds the desugared push sequence of a "..." literal.
// Text is the decoded literal, kept for re-serialization.
type StringLiteral struct {
	Pos  Pos
	Text string
	Body []Instr
}

func (n *StringLiteral) Kind() string  { return "StringLiteral" }
func (n *StringLiteral) Position() Pos { return n.Pos }
func (n *StringLiteral) instrNode()    {}

// --- Imports ---

// Import is an imported file spliced into the tree. Path is the path as
// written after `using`; File is the resolved file name.
type Import struct {
	Pos  Pos
	Path string
	File string
	Body []Instr
}

func (n *Import) Kind() string  { return "Import" }
func (n *Import) Position() Pos { return n.Pos }
func (n *Import) instrNode()    {}

// --- Program ---

type Program struct {
	File string
	Body []Instr
}

// Children returns the nested instruction sequences owned by n, in source
// order. Leaf instructions return nil.
func Children(n Instr) [][]Instr {
	switch x := n.(type) {
	case *If:
		return [][]Instr{x.Then, x.Else}
	case *While:
		return [][]Instr{x.Cond, x.Body}
	case *VarDeclare:
		return [][]Instr{x.Init}
	case *ProcedureDeclare:
		return [][]Instr{x.Body}
	case *Macro:
		return [][]Instr{x.Body}
	case *StringLiteral:
		return [][]Instr{x.Body}
	case *Import:
		return [][]Instr{x.Body}
	}
	return nil
}

// Walk visits every instruction in pre-order. If fn returns false the
// children of that instruction are skipped.
func Walk(instrs []Instr, fn func(Instr) bool) {
	for _, in := range instrs {
		if !fn(in) {
			continue
		}
		for _, seq := range Children(in) {
			Walk(seq, fn)
		}
	}
}
