// Package validator implements static checks over stk Instruction Trees.
// It reports name problems that would otherwise only surface at run time.
package validator

import (
	"fmt"

	"github.com/thomasrohde/stk/pkg/ast"
	"github.com/thomasrohde/stk/pkg/diagnostics"
	"github.com/thomasrohde/stk/pkg/lexer"
)

type kind string

const (
	kindVariable  kind = "variable"
	kindProcedure kind = "procedure"
	kindStack     kind = "stack"
)

type decl struct {
	kind kind
	pos  ast.Pos
}

type validator struct {
	diags   []diagnostics.Diagnostic
	decls   map[string]decl
	stackOf []*ast.StackOf
}

// Validate checks a program and returns all diagnostics found.
func Validate(program *ast.Program) []diagnostics.Diagnostic {
	v := &validator{
		decls: map[string]decl{lexer.MainStack: {kind: kindStack}},
	}
	ast.Walk(program.Body, v.visit)

	for _, ref := range v.stackOf {
		if d, ok := v.decls[ref.Name]; !ok || d.kind != kindStack {
			v.addDiag(diagnostics.EMissingStack, fmt.Sprintf("stack '%s' is never spawned", ref.Name), ref.Pos)
		}
	}
	return v.diags
}

func (v *validator) addDiag(code, msg string, pos ast.Pos) {
	v.diags = append(v.diags, diagnostics.MakeDiag(code, msg, &pos, ""))
}

func (v *validator) visit(in ast.Instr) bool {
	switch n := in.(type) {
	case *ast.VarDeclare:
		v.declare(n.Name, kindVariable, n.Pos)

	case *ast.Macro:
		if v.checkReserved("macro", n.Name, n.Pos) {
			v.declare(n.Name, kindProcedure, n.Pos)
		}

	case *ast.ProcedureDeclare:
		if v.checkReserved("procedure", n.Name, n.Pos) {
			v.declare(n.Name, kindProcedure, n.Pos)
		}
		seen := make(map[string]bool, len(n.Params))
		for _, p := range n.Params {
			if !v.checkReserved("parameter", p, n.Pos) {
				continue
			}
			if seen[p] {
				v.addDiag(diagnostics.ENameCollision,
					fmt.Sprintf("procedure '%s' declares parameter '%s' twice", n.Name, p), n.Pos)
				continue
			}
			seen[p] = true
			v.declare(p, kindVariable, n.Pos)
		}

	case *ast.Spawn:
		if n.Private {
			return true
		}
		if v.checkReserved("stack", n.Name, n.Pos) {
			v.declare(n.Name, kindStack, n.Pos)
		}

	case *ast.StackOf:
		v.stackOf = append(v.stackOf, n)
	}
	return true
}

func (v *validator) checkReserved(what, name string, pos ast.Pos) bool {
	if lexer.IsReserved(name) {
		v.addDiag(diagnostics.ENameCollision, fmt.Sprintf("%s name '%s' is reserved", what, name), pos)
		return false
	}
	return true
}

func (v *validator) declare(name string, k kind, pos ast.Pos) {
	prev, ok := v.decls[name]
	if !ok {
		v.decls[name] = decl{kind: k, pos: pos}
		return
	}
	switch {
	case prev.kind != k:
		v.addDiag(diagnostics.ENameCollision,
			fmt.Sprintf("'%s' is used as a %s and a %s", name, prev.kind, k), pos)
	case k == kindProcedure:
		v.addDiag(diagnostics.ENameCollision,
			fmt.Sprintf("procedure '%s' is declared more than once (first at line %d)", name, prev.pos.Line), pos)
	case k == kindStack:
		v.addDiag(diagnostics.ENameCollision,
			fmt.Sprintf("stack '%s' is spawned more than once", name), pos)
	}
}
