// Package formatter implements the stk source code formatter.
package formatter

import (
	"strconv"
	"strings"

	"github.com/thomasrohde/stk/pkg/ast"
)

const indent = "  "

// Format pretty-prints an Instruction Tree back to source code. Runs of
// simple instructions share a line; every block opens its own line and
// its body is indented.
func Format(program *ast.Program) string {
	lines := formatSeq(program.Body, 0)
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// HasComments reports whether source contains `//` comments outside of
// string literals. Formatting drops comments.
func HasComments(source string) bool {
	inString := false
	for i := 0; i < len(source); i++ {
		switch c := source[i]; {
		case inString && c == '\\':
			i++
		case c == '"':
			inString = !inString
		case c == '\n':
			inString = false
		case !inString && c == '/' && i+1 < len(source) && source[i+1] == '/':
			return true
		}
	}
	return false
}

func formatSeq(instrs []ast.Instr, depth int) []string {
	prefix := strings.Repeat(indent, depth)
	var lines []string
	var words []string

	flush := func() {
		if len(words) > 0 {
			lines = append(lines, prefix+strings.Join(words, " "))
			words = nil
		}
	}

	for _, in := range instrs {
		if w, ok := leaf(in); ok {
			words = append(words, w)
			continue
		}
		flush()
		lines = append(lines, formatBlock(in, depth)...)
	}
	flush()
	return lines
}

// leaf returns the source text of an instruction that fits on a line with
// its neighbours.
func leaf(in ast.Instr) (string, bool) {
	switch n := in.(type) {
	case *ast.Push:
		return strconv.Itoa(int(n.Value)), true
	case *ast.Op:
		return string(n.Code), true
	case *ast.Identifier:
		return n.Name, true
	case *ast.Drop:
		return "drop " + n.Name, true
	case *ast.Spawn:
		return "spawn " + n.Name, true
	case *ast.StackOf:
		return "stack " + n.Name, true
	case *ast.StringLiteral:
		return quote(n.Text), true
	case *ast.VarDeclare:
		if allLeaves(n.Init) {
			return joinWords("@"+n.Name, n.Init, "def"), true
		}
	}
	return "", false
}

func allLeaves(instrs []ast.Instr) bool {
	for _, in := range instrs {
		if _, ok := leaf(in); !ok {
			return false
		}
	}
	return true
}

func joinWords(head string, instrs []ast.Instr, tail string) string {
	words := []string{head}
	for _, in := range instrs {
		w, _ := leaf(in)
		words = append(words, w)
	}
	if tail != "" {
		words = append(words, tail)
	}
	return strings.Join(words, " ")
}

func formatBlock(in ast.Instr, depth int) []string {
	prefix := strings.Repeat(indent, depth)
	var lines []string

	switch n := in.(type) {
	case *ast.If:
		lines = append(lines, prefix+"if")
		lines = append(lines, formatSeq(n.Then, depth+1)...)
		if len(n.Else) > 0 {
			lines = append(lines, prefix+"else")
			lines = append(lines, formatSeq(n.Else, depth+1)...)
		}
		lines = append(lines, prefix+"end")

	case *ast.While:
		if allLeaves(n.Cond) {
			lines = append(lines, prefix+joinWords("while", n.Cond, "do"))
		} else {
			lines = append(lines, prefix+"while")
			lines = append(lines, formatSeq(n.Cond, depth+1)...)
			lines = append(lines, prefix+"do")
		}
		lines = append(lines, formatSeq(n.Body, depth+1)...)
		lines = append(lines, prefix+"end")

	case *ast.VarDeclare:
		lines = append(lines, prefix+"@"+n.Name)
		lines = append(lines, formatSeq(n.Init, depth+1)...)
		lines = append(lines, prefix+"def")

	case *ast.Macro:
		lines = append(lines, prefix+"macro "+n.Name)
		lines = append(lines, formatSeq(n.Body, depth+1)...)
		lines = append(lines, prefix+"end")

	case *ast.ProcedureDeclare:
		head := "proc "
		if n.Returns {
			head = "fn "
		}
		head += n.Name
		if len(n.Params) > 0 {
			head += " in " + strings.Join(n.Params, " ")
		}
		lines = append(lines, prefix+head+" do")
		lines = append(lines, formatSeq(n.Body, depth+1)...)
		lines = append(lines, prefix+"end")

	case *ast.Import:
		path := n.Path
		if strings.ContainsAny(path, " \t") {
			path = `"` + path + `"`
		}
		lines = append(lines, prefix+"using "+path)
	}

	return lines
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
