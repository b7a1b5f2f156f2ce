package evaluator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/thomasrohde/stk/pkg/ast"
	"github.com/thomasrohde/stk/pkg/diagnostics"
	"github.com/thomasrohde/stk/pkg/lexer"
)

var log = commonlog.GetLogger("stk.evaluator")

// TraceEventType identifies the type of a trace event.
type TraceEventType string

const (
	TraceRunStart    TraceEventType = "run_start"
	TraceRunEnd      TraceEventType = "run_end"
	TraceCallStart   TraceEventType = "call_start"
	TraceCallEnd     TraceEventType = "call_end"
	TraceSpawn       TraceEventType = "spawn"
	TraceClose       TraceEventType = "close"
	TraceSwitch      TraceEventType = "switch"
	TraceImportStart TraceEventType = "import_start"
	TraceImportEnd   TraceEventType = "import_end"
)

// TraceEvent represents a single trace event emitted during execution.
type TraceEvent struct {
	Timestamp string            `json:"ts"`
	RunID     string            `json:"runId"`
	Event     TraceEventType    `json:"event"`
	Pos       *ast.Pos          `json:"pos,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
}

// ExecOptions configures program execution.
type ExecOptions struct {
	Stdout io.Writer
	Limits Limits
	Trace  func(event TraceEvent)
	RunID  string
}

// ExecResult holds the machine state after a program execution.
type ExecResult struct {
	Snapshot Snapshot
}

// RuntimeError is a fatal error raised while evaluating a program.
type RuntimeError struct {
	Code    string
	Message string
	Pos     *ast.Pos
}

func (e *RuntimeError) Error() string {
	return e.Message
}

// Diagnostic converts the error to a diagnostic for reporting.
func (e *RuntimeError) Diagnostic() diagnostics.Diagnostic {
	return diagnostics.MakeDiag(e.Code, e.Message, e.Pos, "")
}

// ExitError is returned when a program executes `exit`. It ends the run
// without being a failure.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

var mainHandle = Handle{}

// Machine is the runtime state of one program: the stack arena, the
// active stack, declared names, scope frames and procedures. A Machine
// may run several programs in turn; state carries over between them.
type Machine struct {
	ctx     context.Context
	opts    ExecOptions
	out     io.Writer
	stacks  *arena
	active  Handle
	names   *Registry
	globals *Env
	env     *Env
	procs   map[string]*ast.ProcedureDeclare
	macros  map[string]*ast.Macro
	tracker BudgetTracker
}

// NewMachine creates a machine holding only the empty main stack.
func NewMachine(opts ExecOptions) *Machine {
	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}
	globals := NewEnv(nil)
	m := &Machine{
		ctx:     context.Background(),
		opts:    opts,
		out:     out,
		stacks:  newArena(),
		names:   NewRegistry(),
		globals: globals,
		env:     globals,
		procs:   make(map[string]*ast.ProcedureDeclare),
		macros:  make(map[string]*ast.Macro),
	}
	_ = m.names.Declare(lexer.MainStack, NameStack)
	m.active = m.stacks.create(lexer.MainStack, false)
	return m
}

// Execute runs a program on a fresh machine.
func Execute(ctx context.Context, program *ast.Program, opts ExecOptions) (*ExecResult, error) {
	m := NewMachine(opts)
	err := m.Run(ctx, program)
	return &ExecResult{Snapshot: m.Snapshot()}, err
}

// Run evaluates program. It returns nil on normal completion, *ExitError
// when the program executes `exit`, and *RuntimeError on a fatal error.
func (m *Machine) Run(ctx context.Context, program *ast.Program) error {
	if m.opts.Limits.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.Limits.Timeout)
		defer cancel()
	}
	m.ctx = ctx
	m.tracker = BudgetTracker{}

	pos := ast.Pos{File: program.File}
	m.emit(TraceRunStart, pos, nil)

	err := m.execBlock(program.Body)

	var data map[string]string
	var exit *ExitError
	var rtErr *RuntimeError
	switch {
	case errors.As(err, &exit):
		data = map[string]string{"exit": strconv.Itoa(exit.Code)}
	case errors.As(err, &rtErr):
		data = map[string]string{"error": rtErr.Code}
	}
	m.emit(TraceRunEnd, pos, data)
	return err
}

func (m *Machine) emit(event TraceEventType, pos ast.Pos, data map[string]string) {
	if m.opts.Trace == nil {
		return
	}
	m.opts.Trace(TraceEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		RunID:     m.opts.RunID,
		Event:     event,
		Pos:       &pos,
		Data:      data,
	})
}

func fail(pos ast.Pos, code, format string, args ...any) error {
	return &RuntimeError{Code: code, Message: fmt.Sprintf(format, args...), Pos: &pos}
}

func (m *Machine) step(pos ast.Pos) error {
	m.tracker.Steps++
	if max := m.opts.Limits.MaxSteps; max > 0 && m.tracker.Steps > max {
		return fail(pos, diagnostics.EBudget, "step budget exceeded (max %d)", max)
	}
	return nil
}

func (m *Machine) checkContext(pos ast.Pos) error {
	err := m.ctx.Err()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && m.opts.Limits.Timeout > 0 {
		return fail(pos, diagnostics.EBudget, "time budget exceeded (%s)", m.opts.Limits.Timeout)
	}
	return fail(pos, diagnostics.EBudget, "execution interrupted: %v", err)
}

func (m *Machine) enter(pos ast.Pos) error {
	if err := m.checkContext(pos); err != nil {
		return err
	}
	if max := m.opts.Limits.maxDepth(); m.tracker.Depth >= max {
		return fail(pos, diagnostics.EBudget, "call depth exceeded (max %d)", max)
	}
	m.tracker.Depth++
	return nil
}

func (m *Machine) leave() {
	m.tracker.Depth--
}

// --- stack access ---

func (m *Machine) current() *stackSlot {
	s, _ := m.stacks.get(m.active)
	return s
}

func (m *Machine) push(v Value) {
	m.current().push(v)
}

func (m *Machine) pop(pos ast.Pos) (Value, error) {
	s := m.current()
	v, ok := s.pop()
	if !ok {
		return nil, fail(pos, diagnostics.EStackUnderflow, "cannot pop from empty stack '%s'", s.name)
	}
	return v, nil
}

func (m *Machine) popRef(pos ast.Pos, op string) (StackRef, error) {
	v, err := m.pop(pos)
	if err != nil {
		return StackRef{}, err
	}
	ref, ok := v.(StackRef)
	if !ok {
		return StackRef{}, fail(pos, diagnostics.ETypeMismatch, "'%s' expects a stack reference, got a number", op)
	}
	return ref, nil
}

func (m *Machine) popBool(pos ast.Pos, construct string) (bool, error) {
	v, err := m.pop(pos)
	if err != nil {
		return false, err
	}
	n, ok := v.(Int)
	if !ok {
		return false, fail(pos, diagnostics.EInvalidBoolean, "'%s' expects 0 or 1, got a stack reference", construct)
	}
	switch n.V {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, fail(pos, diagnostics.EInvalidBoolean, "'%s' expects 0 or 1, got %d", construct, n.V)
}

// popOperands pops the two operands of a binary operator. first was on
// top of the stack.
func (m *Machine) popOperands(pos ast.Pos, op ast.OpCode) (first, second byte, err error) {
	a, err := m.pop(pos)
	if err != nil {
		return 0, 0, err
	}
	b, err := m.pop(pos)
	if err != nil {
		return 0, 0, err
	}
	fa, ok1 := a.(Int)
	fb, ok2 := b.(Int)
	if !ok1 || !ok2 {
		return 0, 0, fail(pos, diagnostics.ETypeMismatch, "'%s' expects two numbers, got a stack reference", op)
	}
	return fa.V, fb.V, nil
}

func (m *Machine) write(pos ast.Pos, s string) error {
	if _, err := io.WriteString(m.out, s); err != nil {
		return fail(pos, diagnostics.EIO, "write failed: %v", err)
	}
	return nil
}

// --- evaluation ---

func (m *Machine) execBlock(instrs []ast.Instr) error {
	for _, in := range instrs {
		if err := m.exec(in); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) exec(in ast.Instr) error {
	pos := in.Position()
	if err := m.step(pos); err != nil {
		return err
	}

	switch n := in.(type) {
	case *ast.Push:
		m.push(Int{V: n.Value})

	case *ast.Op:
		return m.execOp(n)

	case *ast.If:
		cond, err := m.popBool(pos, "if")
		if err != nil {
			return err
		}
		if cond {
			return m.execBlock(n.Then)
		}
		return m.execBlock(n.Else)

	case *ast.While:
		for {
			if err := m.checkContext(pos); err != nil {
				return err
			}
			if err := m.execBlock(n.Cond); err != nil {
				return err
			}
			cond, err := m.popBool(pos, "while")
			if err != nil {
				return err
			}
			if !cond {
				return nil
			}
			if err := m.execBlock(n.Body); err != nil {
				return err
			}
		}

	case *ast.VarDeclare:
		if err := m.names.Declare(n.Name, NameVariable); err != nil {
			return fail(pos, diagnostics.ENameCollision, "%s", err)
		}
		if err := m.execBlock(n.Init); err != nil {
			return err
		}
		v, err := m.pop(pos)
		if err != nil {
			return err
		}
		m.env.Set(n.Name, v)

	case *ast.Drop:
		if k, ok := m.names.Lookup(n.Name); ok && k != NameVariable {
			return fail(pos, diagnostics.ENameCollision, "cannot drop %s '%s': only variables can be dropped", k, n.Name)
		}
		if !m.env.Delete(n.Name) {
			return fail(pos, diagnostics.EUnknownIdent, "variable '%s' is not bound", n.Name)
		}

	case *ast.Identifier:
		return m.execIdentifier(n)

	case *ast.ProcedureDeclare:
		return m.declareProcedure(n)

	case *ast.Macro:
		if lexer.IsReserved(n.Name) {
			return fail(pos, diagnostics.ENameCollision, "cannot declare a macro named '%s': the name is reserved", n.Name)
		}
		if err := m.names.Declare(n.Name, NameProcedure); err != nil {
			return fail(pos, diagnostics.ENameCollision, "%s", err)
		}
		m.macros[n.Name] = n

	case *ast.Spawn:
		_, err := m.spawn(pos, n.Name, n.Private)
		return err

	case *ast.StackOf:
		h, ok := m.stacks.lookup(n.Name)
		if !ok {
			return fail(pos, diagnostics.EMissingStack, "stack '%s' does not exist", n.Name)
		}
		m.push(StackRef{Handle: h})

	case *ast.StringLiteral:
		from := m.active
		if err := m.execBlock(n.Body); err != nil {
			return err
		}
		// The reference ends up on main even when the literal is
		// evaluated on another stack, such as a procedure's private one.
		if from != mainHandle {
			if s, ok := m.stacks.get(from); ok {
				if v, ok := s.pop(); ok {
					main, _ := m.stacks.get(mainHandle)
					main.push(v)
				}
			}
		}

	case *ast.Import:
		log.Debugf("running import %s", n.File)
		m.emit(TraceImportStart, pos, map[string]string{"file": n.File})
		if err := m.execBlock(n.Body); err != nil {
			return err
		}
		m.emit(TraceImportEnd, pos, map[string]string{"file": n.File})

	default:
		return fail(pos, diagnostics.EParse, "cannot evaluate %s", in.Kind())
	}
	return nil
}

func (m *Machine) execOp(n *ast.Op) error {
	pos := n.Pos

	switch n.Code {
	case ast.OpPop:
		_, err := m.pop(pos)
		return err

	case ast.OpDup:
		v, err := m.pop(pos)
		if err != nil {
			return err
		}
		m.push(v)
		m.push(v)

	case ast.OpSwap:
		a, err := m.pop(pos)
		if err != nil {
			return err
		}
		b, err := m.pop(pos)
		if err != nil {
			return err
		}
		m.push(a)
		m.push(b)

	case ast.OpPrint:
		v, err := m.pop(pos)
		if err != nil {
			return err
		}
		return m.write(pos, m.FormatValue(v)+"\n")

	case ast.OpPrintASCII:
		v, err := m.pop(pos)
		if err != nil {
			return err
		}
		c, ok := v.(Int)
		if !ok {
			return fail(pos, diagnostics.ETypeMismatch, "'print_ascii' expects a number, got a stack reference")
		}
		return m.write(pos, string([]byte{c.V}))

	case ast.OpAdd, ast.OpSub, ast.OpMul, ast.OpDiv, ast.OpEq, ast.OpLt, ast.OpGt:
		first, second, err := m.popOperands(pos, n.Code)
		if err != nil {
			return err
		}
		var result Value
		switch n.Code {
		case ast.OpAdd:
			result = Int{V: second + first}
		case ast.OpSub:
			result = Int{V: second - first}
		case ast.OpMul:
			result = Int{V: second * first}
		case ast.OpDiv:
			if first == 0 {
				return fail(pos, diagnostics.EDivideByZero, "division by zero")
			}
			result = Int{V: second / first}
		case ast.OpEq:
			result = Bool(second == first)
		case ast.OpLt:
			result = Bool(second < first)
		case ast.OpGt:
			result = Bool(second > first)
		}
		m.push(result)

	case ast.OpExit:
		v, err := m.pop(pos)
		if err != nil {
			return err
		}
		code, ok := v.(Int)
		if !ok {
			return fail(pos, diagnostics.ETypeMismatch, "'exit' expects a number, got a stack reference")
		}
		return &ExitError{Code: int(code.V)}

	case ast.OpSwitch:
		ref, err := m.popRef(pos, "switch")
		if err != nil {
			return err
		}
		if _, ok := m.stacks.get(ref.Handle); !ok {
			return fail(pos, diagnostics.EMissingStack, "stack '%s' no longer exists", m.stacks.name(ref.Handle))
		}
		m.active = ref.Handle
		m.emit(TraceSwitch, pos, map[string]string{"stack": m.stacks.name(ref.Handle)})

	case ast.OpClose:
		ref, err := m.popRef(pos, "close")
		if err != nil {
			return err
		}
		return m.closeStack(pos, ref.Handle)

	case ast.OpThis:
		m.push(StackRef{Handle: m.active})

	case ast.OpStacks:
		out := "Stacks:\n"
		for _, h := range m.stacks.live() {
			out += "  " + m.stacks.name(h) + "\n"
		}
		return m.write(pos, out)

	case ast.OpStackSize:
		m.push(Int{V: byte(len(m.current().values) % 256)})

	case ast.OpStackRev:
		m.current().reverse()

	default:
		return fail(pos, diagnostics.EParse, "unknown operation '%s'", n.Code)
	}
	return nil
}

func (m *Machine) execIdentifier(n *ast.Identifier) error {
	if v, ok := m.env.Get(n.Name); ok {
		m.push(v)
		return nil
	}
	if p, ok := m.procs[n.Name]; ok {
		return m.call(p, n.Pos)
	}
	if mac, ok := m.macros[n.Name]; ok {
		if err := m.enter(n.Pos); err != nil {
			return err
		}
		defer m.leave()
		return m.execBlock(mac.Body)
	}
	if k, ok := m.names.Lookup(n.Name); ok && k == NameVariable {
		return fail(n.Pos, diagnostics.EUnknownIdent, "variable '%s' is not bound", n.Name)
	}
	return fail(n.Pos, diagnostics.EUnknownIdent, "unknown identifier '%s'", n.Name)
}

func (m *Machine) declareProcedure(n *ast.ProcedureDeclare) error {
	pos := n.Pos
	if lexer.IsReserved(n.Name) {
		return fail(pos, diagnostics.ENameCollision, "cannot declare a procedure named '%s': the name is reserved", n.Name)
	}
	seen := make(map[string]bool, len(n.Params))
	for _, p := range n.Params {
		if lexer.IsReserved(p) {
			return fail(pos, diagnostics.ENameCollision, "parameter '%s' of procedure '%s' is a reserved name", p, n.Name)
		}
		if seen[p] {
			return fail(pos, diagnostics.ENameCollision, "procedure '%s' declares parameter '%s' twice", n.Name, p)
		}
		seen[p] = true
		if k, ok := m.names.Lookup(p); ok && k != NameVariable {
			return fail(pos, diagnostics.ENameCollision, "%s with name '%s' already exists", k, p)
		}
	}
	if err := m.names.Declare(n.Name, NameProcedure); err != nil {
		return fail(pos, diagnostics.ENameCollision, "%s", err)
	}
	m.procs[n.Name] = n
	return nil
}

// call runs a procedure: arguments are popped from the active stack in
// parameter order and bound in a fresh frame, and the body runs on a
// private stack. Afterwards main is the active stack. For a returning
// procedure the top of whatever stack is active when the body ends is
// moved to main.
func (m *Machine) call(p *ast.ProcedureDeclare, pos ast.Pos) error {
	if err := m.enter(pos); err != nil {
		return err
	}
	defer m.leave()

	args := make([]Value, len(p.Params))
	for i := range p.Params {
		v, err := m.pop(pos)
		if err != nil {
			return err
		}
		args[i] = v
	}

	caller := m.env
	frame := caller.Child()
	for i, name := range p.Params {
		if err := m.names.Declare(name, NameVariable); err != nil {
			return fail(pos, diagnostics.ENameCollision, "%s", err)
		}
		frame.Set(name, args[i])
	}
	m.env = frame
	defer func() { m.env = caller }()

	h, err := m.spawn(pos, p.Name+"_", true)
	if err != nil {
		return err
	}
	// the spawned ref is consumed by the switch into the private stack
	if _, err := m.pop(pos); err != nil {
		return err
	}
	m.active = h

	log.Debugf("call %s on %s", p.Name, m.stacks.name(h))
	m.emit(TraceCallStart, pos, map[string]string{"proc": p.Name, "stack": m.stacks.name(h)})

	if err := m.execBlock(p.Body); err != nil {
		return err
	}

	var ret Value
	if p.Returns {
		if ret, err = m.pop(pos); err != nil {
			return err
		}
	}

	m.active = mainHandle
	if _, ok := m.stacks.get(h); ok {
		if err := m.closeStack(pos, h); err != nil {
			return err
		}
	}
	if p.Returns {
		m.push(ret)
	}

	m.emit(TraceCallEnd, pos, map[string]string{"proc": p.Name})
	return nil
}

// spawn creates a stack and pushes a reference to it onto the active
// stack. Private stacks get a unique suffix and are not entered in the
// name registry, so closing them releases everything they held.
func (m *Machine) spawn(pos ast.Pos, name string, private bool) (Handle, error) {
	if private {
		name += uuid.New().String()
	} else {
		if lexer.IsReserved(name) {
			return Handle{}, fail(pos, diagnostics.ENameCollision, "cannot spawn a stack named '%s': the name is reserved", name)
		}
		if _, taken := m.stacks.lookup(name); taken {
			return Handle{}, fail(pos, diagnostics.ENameCollision, "%s with name '%s' already exists", NameStack, name)
		}
		if err := m.names.Declare(name, NameStack); err != nil {
			return Handle{}, fail(pos, diagnostics.ENameCollision, "%s", err)
		}
	}
	h := m.stacks.create(name, private)
	m.push(StackRef{Handle: h})
	log.Debugf("spawn %s", name)
	m.emit(TraceSpawn, pos, map[string]string{"stack": name})
	return h, nil
}

func (m *Machine) closeStack(pos ast.Pos, h Handle) error {
	if h == mainHandle {
		return fail(pos, diagnostics.EIllegalClose, "cannot close the main stack")
	}
	if h == m.active {
		return fail(pos, diagnostics.EIllegalClose, "cannot close the active stack '%s'", m.stacks.name(h))
	}
	if _, ok := m.stacks.get(h); !ok {
		return fail(pos, diagnostics.EMissingStack, "stack '%s' is already closed", m.stacks.name(h))
	}
	name := m.stacks.name(h)
	m.stacks.close(h)
	log.Debugf("close %s", name)
	m.emit(TraceClose, pos, map[string]string{"stack": name})
	return nil
}

// Unwind makes main the active stack again after a failed run, so an
// interactive session can continue. Private stacks of interrupted calls
// stay live.
func (m *Machine) Unwind() {
	m.active = mainHandle
	m.env = m.globals
	m.tracker = BudgetTracker{}
}

// ActiveStack returns the name of the active stack.
func (m *Machine) ActiveStack() string {
	return m.stacks.name(m.active)
}
