package parser_test

import (
	"strings"
	"testing"

	"github.com/thomasrohde/stk/pkg/ast"
	"github.com/thomasrohde/stk/pkg/diagnostics"
	"github.com/thomasrohde/stk/pkg/lexer"
	"github.com/thomasrohde/stk/pkg/parser"
)

// helper: parse source and assert no diagnostics
func mustParse(t *testing.T, source string) *ast.Program {
	t.Helper()
	prog, diags := parser.ParseSource(source, "test.stk", nil)
	if len(diags) > 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if prog == nil {
		t.Fatal("expected non-nil program")
	}
	return prog
}

// helper: parse source and assert exactly one diagnostic with the given code
func mustFail(t *testing.T, source, code string) diagnostics.Diagnostic {
	t.Helper()
	prog, diags := parser.ParseSource(source, "test.stk", nil)
	if prog != nil {
		t.Fatal("expected parse to fail, but it succeeded")
	}
	if len(diags) != 1 {
		t.Fatalf("expected exactly 1 diagnostic, got %d: %v", len(diags), diags)
	}
	if diags[0].Code != code {
		t.Fatalf("expected %s, got %s (%s)", code, diags[0].Code, diags[0].Message)
	}
	return diags[0]
}

// helper: parse source expected to hold a single instruction
func single(t *testing.T, source string) ast.Instr {
	t.Helper()
	prog := mustParse(t, source)
	if len(prog.Body) != 1 {
		t.Fatalf("expected 1 instruction, got %d", len(prog.Body))
	}
	return prog.Body[0]
}

func kinds(instrs []ast.Instr) []string {
	out := make([]string, len(instrs))
	for i, in := range instrs {
		out[i] = in.Kind()
	}
	return out
}

func assertKinds(t *testing.T, got []ast.Instr, want ...string) {
	t.Helper()
	k := kinds(got)
	if strings.Join(k, " ") != strings.Join(want, " ") {
		t.Errorf("got kinds %v, want %v", k, want)
	}
}

// ---------------------------------------------------------------------------
// Primitives
// ---------------------------------------------------------------------------

func TestEmptyProgram(t *testing.T) {
	prog := mustParse(t, "")
	if len(prog.Body) != 0 {
		t.Errorf("expected empty body, got %d", len(prog.Body))
	}
	if prog.File != "test.stk" {
		t.Errorf("expected file test.stk, got %q", prog.File)
	}
}

func TestPrimitiveSequence(t *testing.T) {
	prog := mustParse(t, "1 2 + 3 * print pop dup swap print_ascii - / = < > exit")
	assertKinds(t, prog.Body,
		"Push", "Push", "Add", "Push", "Multiply", "Print", "Pop", "Duplicate", "Swap",
		"PrintASCII", "Subtract", "Divide", "Equal", "LessThan", "GreaterThan", "Exit")
}

func TestStackInstructions(t *testing.T) {
	prog := mustParse(t, "spawn s switch stack main switch this stacks stack_size stack_rev close")
	assertKinds(t, prog.Body,
		"Spawn", "SwitchToTop", "StackOf", "SwitchToTop", "ThisStack", "ListStacks",
		"StackDepth", "ReverseStack", "Close")

	sp := prog.Body[0].(*ast.Spawn)
	if sp.Name != "s" || sp.Private {
		t.Errorf("unexpected spawn %+v", sp)
	}
	if so := prog.Body[2].(*ast.StackOf); so.Name != "main" {
		t.Errorf("expected stack main, got %q", so.Name)
	}
}

func TestPushValue(t *testing.T) {
	p, ok := single(t, "push 200").(*ast.Push)
	if !ok {
		t.Fatal("expected Push")
	}
	if p.Value != 200 {
		t.Errorf("expected 200, got %d", p.Value)
	}
}

// ---------------------------------------------------------------------------
// Blocks
// ---------------------------------------------------------------------------

func TestIfWithoutElse(t *testing.T) {
	n, ok := single(t, "if 1 print end").(*ast.If)
	if !ok {
		t.Fatal("expected If")
	}
	assertKinds(t, n.Then, "Push", "Print")
	if len(n.Else) != 0 {
		t.Errorf("expected empty else, got %d", len(n.Else))
	}
}

func TestIfElse(t *testing.T) {
	n := single(t, "if 1 else 2 3 end").(*ast.If)
	assertKinds(t, n.Then, "Push")
	assertKinds(t, n.Else, "Push", "Push")
}

func TestWhile(t *testing.T) {
	n := single(t, "while dup 0 > do 1 - end").(*ast.While)
	assertKinds(t, n.Cond, "Duplicate", "Push", "GreaterThan")
	assertKinds(t, n.Body, "Push", "Subtract")
}

func TestVarDeclare(t *testing.T) {
	n := single(t, "@x 5 3 + def").(*ast.VarDeclare)
	if n.Name != "x" {
		t.Errorf("expected name x, got %q", n.Name)
	}
	assertKinds(t, n.Init, "Push", "Push", "Add")
}

func TestMacro(t *testing.T) {
	n := single(t, "macro twice dup + end").(*ast.Macro)
	if n.Name != "twice" {
		t.Errorf("expected name twice, got %q", n.Name)
	}
	assertKinds(t, n.Body, "Duplicate", "Add")
}

func TestDrop(t *testing.T) {
	n := single(t, "drop x").(*ast.Drop)
	if n.Name != "x" {
		t.Errorf("expected x, got %q", n.Name)
	}
}

func TestProcedureForms(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		params  []string
		returns bool
		body    []string
	}{
		{"proc no params", "proc hello do 1 print end", nil, false, []string{"Push", "Print"}},
		{"proc with params", "proc add in a b do a b + print end", []string{"a", "b"}, false, []string{"Identifier", "Identifier", "Add", "Print"}},
		{"fn returns", "fn sq in n do n n * end", []string{"n"}, true, []string{"Identifier", "Identifier", "Multiply"}},
		{"in with no params", "fn one in do 1 end", nil, true, []string{"Push"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, ok := single(t, tt.source).(*ast.ProcedureDeclare)
			if !ok {
				t.Fatal("expected ProcedureDeclare")
			}
			if strings.Join(n.Params, ",") != strings.Join(tt.params, ",") {
				t.Errorf("params: got %v, want %v", n.Params, tt.params)
			}
			if n.Returns != tt.returns {
				t.Errorf("returns: got %v, want %v", n.Returns, tt.returns)
			}
			assertKinds(t, n.Body, tt.body...)
		})
	}
}

func TestDeepNesting(t *testing.T) {
	src := `
while 1 do
  if 0 else
    proc f do
      @v 1 def
      while 0 do end
    end
  end
end`
	w := single(t, src).(*ast.While)
	ifNode := w.Body[0].(*ast.If)
	proc := ifNode.Else[0].(*ast.ProcedureDeclare)
	assertKinds(t, proc.Body, "VarDeclare", "While")
}

func TestPositions(t *testing.T) {
	prog := mustParse(t, "1\n\nif\n  2\nend")
	if got := prog.Body[0].Position().Line; got != 1 {
		t.Errorf("push line: got %d", got)
	}
	n := prog.Body[1].(*ast.If)
	if n.Pos.Line != 3 || n.Pos.File != "test.stk" {
		t.Errorf("if position: got %+v", n.Pos)
	}
	if got := n.Then[0].Position().Line; got != 4 {
		t.Errorf("nested push line: got %d", got)
	}
}

// ---------------------------------------------------------------------------
// Strings and imports
// ---------------------------------------------------------------------------

func TestStringLiteral(t *testing.T) {
	n, ok := single(t, `"Hi"`).(*ast.StringLiteral)
	if !ok {
		t.Fatal("expected StringLiteral")
	}
	if n.Text != "Hi" {
		t.Errorf("expected text Hi, got %q", n.Text)
	}
	assertKinds(t, n.Body, "Spawn", "Duplicate", "SwitchToTop", "Push", "Push", "StackOf", "SwitchToTop")
	if !n.Body[0].(*ast.Spawn).Private {
		t.Error("expected private spawn")
	}
}

func TestImportSplicing(t *testing.T) {
	loader := lexer.MapLoader{
		"lib.stk":  "macro twice dup + end\nusing util",
		"util.stk": "proc hello do 1 print end",
	}
	prog, diags := parser.ParseSource("using lib\n2 twice print", "main.stk", loader)
	if len(diags) > 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	assertKinds(t, prog.Body, "Import", "Push", "Identifier", "Print")

	imp := prog.Body[0].(*ast.Import)
	if imp.Path != "lib" || imp.File != "lib.stk" {
		t.Errorf("unexpected import %q -> %q", imp.Path, imp.File)
	}
	assertKinds(t, imp.Body, "Macro", "Import")
	nested := imp.Body[1].(*ast.Import)
	assertKinds(t, nested.Body, "ProcedureDeclare")
	if nested.Body[0].Position().File != "util.stk" {
		t.Errorf("expected nested position in util.stk, got %q", nested.Body[0].Position().File)
	}
}

func TestImportParseErrorReportsImportedFile(t *testing.T) {
	loader := lexer.MapLoader{"lib.stk": "1\nend"}
	_, diags := parser.ParseSource("using lib", "main.stk", loader)
	if len(diags) != 1 {
		t.Fatalf("expected 1 diagnostic, got %v", diags)
	}
	if diags[0].Pos == nil || diags[0].Pos.File != "lib.stk" || diags[0].Pos.Line != 2 {
		t.Errorf("expected lib.stk:2, got %+v", diags[0].Pos)
	}
}

func TestLexErrorBecomesDiagnostic(t *testing.T) {
	mustFail(t, "1 300", diagnostics.ELex)
	mustFail(t, "using lib", diagnostics.EImport)
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

func TestUnresolvedBlocks(t *testing.T) {
	tests := []struct {
		name       string
		source     string
		incomplete bool
	}{
		{"bare end", "1 end", false},
		{"bare else", "else", false},
		{"bare do", "do", false},
		{"bare def", "def", false},
		{"unclosed if", "if 1", true},
		{"unclosed else", "if 1 else 2", true},
		{"while without do", "while 1", true},
		{"while without end", "while 1 do 2", true},
		{"unclosed var", "@x 1", true},
		{"unclosed macro", "macro m 1", true},
		{"unclosed proc", "proc f do 1", true},
		{"proc header cut off", "proc f in a b", true},
		{"do inside if", "if 1 do end", false},
		{"def inside while cond", "while def end", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := mustFail(t, tt.source, diagnostics.EUnresolvedBlock)
			_, diags := parser.ParseSource(tt.source, "test.stk", nil)
			if got := parser.IsIncomplete(diags); got != tt.incomplete {
				t.Errorf("IsIncomplete = %v, want %v (%s)", got, tt.incomplete, d.Message)
			}
		})
	}
}

func TestUnclosedBlockPointsAtOpener(t *testing.T) {
	d := mustFail(t, "1\n2\nwhile 1 do\n  3\n", diagnostics.EUnresolvedBlock)
	if d.Pos == nil || d.Pos.Line != 3 {
		t.Errorf("expected opener line 3, got %+v", d.Pos)
	}
	if d.Hint != parser.HintUnclosed {
		t.Errorf("expected hint %q, got %q", parser.HintUnclosed, d.Hint)
	}
}

func TestMalformedProcedureHeaders(t *testing.T) {
	tests := []struct {
		name   string
		source string
		msg    string
	}{
		{"missing name", "proc do end", "expects an identifier as its name"},
		{"number name", "proc 5 do end", "expects an identifier as its name"},
		{"keyword param", "proc f in a if do end", "expects an identifier as a parameter"},
		{"no in or do", "proc f 1 end", "expects 'in' or 'do'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := mustFail(t, tt.source, diagnostics.EParse)
			if !strings.Contains(d.Message, tt.msg) {
				t.Errorf("expected message containing %q, got %q", tt.msg, d.Message)
			}
		})
	}
}

func TestStrayIn(t *testing.T) {
	mustFail(t, "1 in", diagnostics.EParse)
}

func TestReservedVariableName(t *testing.T) {
	for _, src := range []string{"@if 1 def", "@main 1 def", "@stacks def"} {
		t.Run(src, func(t *testing.T) {
			mustFail(t, src, diagnostics.ENameCollision)
		})
	}
}

func TestParseStopsAtFirstError(t *testing.T) {
	_, diags := parser.ParseSource("end end end", "test.stk", nil)
	if len(diags) != 1 {
		t.Errorf("expected a single diagnostic, got %d", len(diags))
	}
}
