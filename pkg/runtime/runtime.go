// Package runtime provides the top-level stk runtime orchestrator.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/thomasrohde/stk/pkg/ast"
	"github.com/thomasrohde/stk/pkg/config"
	"github.com/thomasrohde/stk/pkg/diagnostics"
	"github.com/thomasrohde/stk/pkg/evaluator"
	"github.com/thomasrohde/stk/pkg/formatter"
	"github.com/thomasrohde/stk/pkg/image"
	"github.com/thomasrohde/stk/pkg/lexer"
	"github.com/thomasrohde/stk/pkg/parser"
	"github.com/thomasrohde/stk/pkg/validator"
)

var log = commonlog.GetLogger("stk.runtime")

// Result holds the outcome of a program execution.
type Result struct {
	// ExitCode is the status passed to `exit`, or 0 on normal completion.
	ExitCode int
	Snapshot evaluator.Snapshot
}

// Runtime wires together all stk components for program execution.
type Runtime struct {
	stdout io.Writer
	loader lexer.Loader
	limits evaluator.Limits
	trace  func(event evaluator.TraceEvent)
	runID  string

	searchPaths []string
}

// Option is a functional option for configuring the Runtime.
type Option func(*Runtime)

// WithStdout sets the writer that receives program output.
func WithStdout(w io.Writer) Option {
	return func(rt *Runtime) {
		rt.stdout = w
	}
}

// WithLoader sets the loader used to resolve `using` imports.
func WithLoader(l lexer.Loader) Option {
	return func(rt *Runtime) {
		rt.loader = l
	}
}

// WithLimits sets the execution limits.
func WithLimits(l evaluator.Limits) Option {
	return func(rt *Runtime) {
		rt.limits = l
	}
}

// WithTrace sets the trace callback.
func WithTrace(fn func(event evaluator.TraceEvent)) Option {
	return func(rt *Runtime) {
		rt.trace = fn
	}
}

// WithRunID sets the run ID for trace events.
func WithRunID(id string) Option {
	return func(rt *Runtime) {
		rt.runID = id
	}
}

// WithConfig applies the limits and import search paths of a configuration.
// The timeout is ignored if it does not parse; config.LoadFile rejects such
// files. Search paths extend a file-system loader, whichever option set it,
// and are ignored by other loaders.
func WithConfig(c *config.Config) Option {
	return func(rt *Runtime) {
		if limits, err := c.Limits(); err == nil {
			rt.limits = limits
		}
		rt.searchPaths = c.SearchPaths()
	}
}

// New creates a new Runtime with the given options.
// By default output goes to os.Stdout and imports resolve relative to the
// importing file.
func New(opts ...Option) *Runtime {
	rt := &Runtime{
		stdout: os.Stdout,
		loader: lexer.FileLoader{},
		limits: evaluator.Limits{MaxDepth: evaluator.DefaultMaxDepth},
		runID:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	if fl, ok := rt.loader.(lexer.FileLoader); ok && len(rt.searchPaths) > 0 {
		paths := append([]string{}, fl.SearchPaths...)
		fl.SearchPaths = append(paths, rt.searchPaths...)
		rt.loader = fl
	}
	return rt
}

// Run scans, parses, and executes a stk program.
func (rt *Runtime) Run(ctx context.Context, source, filename string) (*Result, error) {
	program, err := rt.parse(source, filename)
	if err != nil {
		return nil, err
	}
	return rt.RunProgram(ctx, program)
}

// RunProgram executes an already parsed program, such as a decoded image.
// A program that executes `exit` is not an error; its status is returned
// in Result.ExitCode.
func (rt *Runtime) RunProgram(ctx context.Context, program *ast.Program) (*Result, error) {
	log.Debugf("run %s (%s)", program.File, rt.runID)
	res, err := evaluator.Execute(ctx, program, rt.execOptions())
	result := &Result{Snapshot: res.Snapshot}
	var exit *evaluator.ExitError
	if errors.As(err, &exit) {
		result.ExitCode = exit.Code
		return result, nil
	}
	return result, err
}

// Check scans, parses, and validates a program without executing it.
func (rt *Runtime) Check(source, filename string) []diagnostics.Diagnostic {
	program, diags := parser.ParseSource(source, filename, rt.loader)
	if len(diags) > 0 {
		return diags
	}
	return validator.Validate(program)
}

// Format parses and formats a program.
func (rt *Runtime) Format(source, filename string) (string, error) {
	program, err := rt.parse(source, filename)
	if err != nil {
		return "", err
	}
	return formatter.Format(program), nil
}

// Build parses a program and encodes it as a tree image.
func (rt *Runtime) Build(source, filename string) ([]byte, error) {
	program, err := rt.parse(source, filename)
	if err != nil {
		return nil, err
	}
	return image.Encode(program)
}

func (rt *Runtime) parse(source, filename string) (*ast.Program, error) {
	program, diags := parser.ParseSource(source, filename, rt.loader)
	if len(diags) > 0 {
		return nil, &DiagnosticError{Diagnostics: diags}
	}
	return program, nil
}

func (rt *Runtime) execOptions() evaluator.ExecOptions {
	return evaluator.ExecOptions{
		Stdout: rt.stdout,
		Limits: rt.limits,
		Trace:  rt.trace,
		RunID:  rt.runID,
	}
}

// Session evaluates successive inputs on one machine, so stacks,
// variables and procedures persist between them.
type Session struct {
	rt      *Runtime
	machine *evaluator.Machine
	inputs  int
}

// NewSession starts a session with an empty machine.
func (rt *Runtime) NewSession() *Session {
	return &Session{rt: rt, machine: evaluator.NewMachine(rt.execOptions())}
}

// Eval parses and runs one input. Parse failures are returned as
// *DiagnosticError and leave the machine untouched. After a runtime error
// main becomes the active stack again.
func (s *Session) Eval(ctx context.Context, source string) error {
	s.inputs++
	name := fmt.Sprintf("<input %d>", s.inputs)
	program, err := s.rt.parse(source, name)
	if err != nil {
		return err
	}
	err = s.machine.Run(ctx, program)
	var rtErr *evaluator.RuntimeError
	if errors.As(err, &rtErr) {
		s.machine.Unwind()
	}
	return err
}

// Snapshot returns the current machine state.
func (s *Session) Snapshot() evaluator.Snapshot {
	return s.machine.Snapshot()
}

// DiagnosticError wraps diagnostics as an error.
type DiagnosticError struct {
	Diagnostics []diagnostics.Diagnostic
}

func (e *DiagnosticError) Error() string {
	msgs := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		msgs[i] = fmt.Sprintf("%s: %s", d.Code, d.Message)
	}
	return strings.Join(msgs, "; ")
}
