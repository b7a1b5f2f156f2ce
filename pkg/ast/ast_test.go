package ast_test

import (
	"testing"

	"github.com/thomasrohde/stk/pkg/ast"
)

func TestNodeKinds(t *testing.T) {
	nodes := []ast.Instr{
		&ast.Push{Value: 42},
		&ast.Op{Code: ast.OpSub},
		&ast.Op{Code: ast.OpSwitch},
		&ast.If{},
		&ast.While{},
		&ast.VarDeclare{Name: "x"},
		&ast.Identifier{Name: "x"},
		&ast.Spawn{Name: "s"},
		&ast.StringLiteral{Text: "hi"},
		&ast.ProcedureDeclare{Name: "p"},
		&ast.Import{Path: "lib.stk"},
	}

	expected := []string{
		"Push", "Subtract", "SwitchToTop", "If", "While",
		"VarDeclare", "Identifier", "Spawn", "StringLiteral", "ProcedureDeclare", "Import",
	}

	for i, node := range nodes {
		if got := node.Kind(); got != expected[i] {
			t.Errorf("node %d: got Kind() = %q, want %q", i, got, expected[i])
		}
	}
}

func TestWalkVisitsNestedSequences(t *testing.T) {
	tree := []ast.Instr{
		&ast.While{
			Cond: []ast.Instr{&ast.Push{Value: 1}},
			Body: []ast.Instr{
				&ast.If{
					Then: []ast.Instr{&ast.Op{Code: ast.OpPrint}},
					Else: []ast.Instr{&ast.Identifier{Name: "f"}},
				},
			},
		},
	}

	var kinds []string
	ast.Walk(tree, func(n ast.Instr) bool {
		kinds = append(kinds, n.Kind())
		return true
	})

	want := []string{"While", "Push", "If", "Print", "Identifier"}
	if len(kinds) != len(want) {
		t.Fatalf("got %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("visit %d: got %s, want %s", i, kinds[i], want[i])
		}
	}
}

func TestWalkSkipsChildren(t *testing.T) {
	tree := []ast.Instr{
		&ast.Macro{Name: "m", Body: []ast.Instr{&ast.Push{Value: 1}}},
	}
	count := 0
	ast.Walk(tree, func(n ast.Instr) bool {
		count++
		return false
	})
	if count != 1 {
		t.Errorf("got %d visits, want 1", count)
	}
}

func TestEqualShapeIgnoresPositions(t *testing.T) {
	a := []ast.Instr{&ast.If{
		Pos:  ast.Pos{File: "a.stk", Line: 1},
		Then: []ast.Instr{&ast.Push{Pos: ast.Pos{Line: 2}, Value: 3}},
	}}
	b := []ast.Instr{&ast.If{
		Pos:  ast.Pos{File: "b.stk", Line: 9},
		Then: []ast.Instr{&ast.Push{Pos: ast.Pos{Line: 10}, Value: 3}},
	}}
	if !ast.EqualShape(a, b) {
		t.Error("expected equal shapes")
	}
}

func TestEqualShapeDetectsDifferences(t *testing.T) {
	tests := []struct {
		name string
		a, b ast.Instr
	}{
		{"push value", &ast.Push{Value: 1}, &ast.Push{Value: 2}},
		{"op code", &ast.Op{Code: ast.OpAdd}, &ast.Op{Code: ast.OpSub}},
		{"kind", &ast.Push{Value: 1}, &ast.Identifier{Name: "x"}},
		{"params", &ast.ProcedureDeclare{Name: "p", Params: []string{"a"}}, &ast.ProcedureDeclare{Name: "p", Params: []string{"b"}}},
		{"returns", &ast.ProcedureDeclare{Name: "p"}, &ast.ProcedureDeclare{Name: "p", Returns: true}},
		{"branch", &ast.If{Then: []ast.Instr{&ast.Push{}}}, &ast.If{Else: []ast.Instr{&ast.Push{}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if ast.EqualShape([]ast.Instr{tt.a}, []ast.Instr{tt.b}) {
				t.Error("expected shapes to differ")
			}
		})
	}
}

func TestOpCodeValid(t *testing.T) {
	for _, c := range []ast.OpCode{ast.OpPop, ast.OpPrintASCII, ast.OpDiv, ast.OpStackRev} {
		if !c.Valid() {
			t.Errorf("%q should be valid", c)
		}
	}
	for _, c := range []ast.OpCode{"", "teleport", "Pop", "spawn"} {
		if c.Valid() {
			t.Errorf("%q should not be valid", c)
		}
	}
}
