// Package parser implements the stk structural parser: it turns the flat
// token stream into the Instruction Tree.
package parser

import (
	"errors"
	"fmt"

	"github.com/thomasrohde/stk/pkg/ast"
	"github.com/thomasrohde/stk/pkg/diagnostics"
	"github.com/thomasrohde/stk/pkg/lexer"
)

// HintUnclosed is attached to the diagnostic produced when the token
// stream ends inside a block.
const HintUnclosed = "block opened here is never closed"

var simpleOps = map[lexer.TokenType]ast.OpCode{
	lexer.TokPop:        ast.OpPop,
	lexer.TokDup:        ast.OpDup,
	lexer.TokSwap:       ast.OpSwap,
	lexer.TokPrint:      ast.OpPrint,
	lexer.TokPrintASCII: ast.OpPrintASCII,
	lexer.TokAdd:        ast.OpAdd,
	lexer.TokSub:        ast.OpSub,
	lexer.TokMul:        ast.OpMul,
	lexer.TokDiv:        ast.OpDiv,
	lexer.TokEq:         ast.OpEq,
	lexer.TokLt:         ast.OpLt,
	lexer.TokGt:         ast.OpGt,
	lexer.TokExit:       ast.OpExit,
	lexer.TokSwitch:     ast.OpSwitch,
	lexer.TokClose:      ast.OpClose,
	lexer.TokThis:       ast.OpThis,
	lexer.TokStacks:     ast.OpStacks,
	lexer.TokStackSize:  ast.OpStackSize,
	lexer.TokStackRev:   ast.OpStackRev,
}

// terminators close a block; outside their opener they are unresolved.
var terminators = map[lexer.TokenType]bool{
	lexer.TokElse: true,
	lexer.TokEnd:  true,
	lexer.TokDo:   true,
	lexer.TokDef:  true,
}

type parser struct {
	tokens []lexer.Token
	pos    int
}

// parseError carries the single diagnostic that stops a parse.
type parseError struct {
	diag diagnostics.Diagnostic
}

func (e *parseError) Error() string { return e.diag.Message }

func fail(code string, pos ast.Pos, hint, format string, args ...any) error {
	return &parseError{diag: diagnostics.MakeDiag(code, fmt.Sprintf(format, args...), &pos, hint)}
}

// Parse builds the Instruction Tree from a token stream. Parsing stops at
// the first error, which is returned as the only diagnostic.
func Parse(tokens []lexer.Token, filename string) (*ast.Program, []diagnostics.Diagnostic) {
	p := &parser{tokens: tokens}
	body, _, err := p.parseSeq("", ast.Pos{}, nil)
	if err != nil {
		var pe *parseError
		if errors.As(err, &pe) {
			return nil, []diagnostics.Diagnostic{pe.diag}
		}
		return nil, []diagnostics.Diagnostic{diagnostics.MakeDiag(diagnostics.EParse, err.Error(), nil, "")}
	}
	return &ast.Program{File: filename, Body: body}, nil
}

// ParseSource tokenizes source, resolving imports through loader, and
// parses the result.
func ParseSource(source, filename string, loader lexer.Loader) (*ast.Program, []diagnostics.Diagnostic) {
	tokens, err := lexer.Tokenize(source, filename, loader)
	if err != nil {
		var le *lexer.LexError
		if errors.As(err, &le) {
			return nil, []diagnostics.Diagnostic{le.Diag}
		}
		return nil, []diagnostics.Diagnostic{diagnostics.MakeDiag(diagnostics.ELex, err.Error(), nil, "")}
	}
	return Parse(tokens, filename)
}

// IsIncomplete reports whether diags describe input that ended inside an
// open block, so more input could complete it.
func IsIncomplete(diags []diagnostics.Diagnostic) bool {
	return len(diags) == 1 &&
		diags[0].Code == diagnostics.EUnresolvedBlock &&
		diags[0].Hint == HintUnclosed
}

func (p *parser) atEnd() bool {
	return p.pos >= len(p.tokens)
}

func (p *parser) advance() lexer.Token {
	tok := p.tokens[p.pos]
	p.pos++
	return tok
}

// parseSeq consumes instructions until one of stops is reached and returns
// them with the terminating token. An empty stops parses to end of input.
// opener names the enclosing construct for error messages.
func (p *parser) parseSeq(opener string, openPos ast.Pos, stops []lexer.TokenType) ([]ast.Instr, lexer.Token, error) {
	var out []ast.Instr
	for !p.atEnd() {
		tok := p.tokens[p.pos]
		for _, s := range stops {
			if tok.Type == s {
				p.pos++
				return out, tok, nil
			}
		}
		if terminators[tok.Type] {
			if opener == "" {
				return nil, tok, fail(diagnostics.EUnresolvedBlock, tok.Pos, "",
					"'%s' without a matching block opener", tok.Type)
			}
			return nil, tok, fail(diagnostics.EUnresolvedBlock, tok.Pos, "",
				"unexpected '%s' inside %s, expected %s", tok.Type, opener, expected(stops))
		}
		in, err := p.parseInstr()
		if err != nil {
			return nil, tok, err
		}
		out = append(out, in)
	}
	if opener != "" {
		return nil, lexer.Token{}, fail(diagnostics.EUnresolvedBlock, openPos, HintUnclosed,
			"%s is never closed, expected %s", opener, expected(stops))
	}
	return out, lexer.Token{}, nil
}

func expected(stops []lexer.TokenType) string {
	s := ""
	for i, t := range stops {
		if i > 0 {
			s += " or "
		}
		s += "'" + t.String() + "'"
	}
	return s
}

func (p *parser) parseInstr() (ast.Instr, error) {
	tok := p.advance()
	pos := tok.Pos

	if code, ok := simpleOps[tok.Type]; ok {
		return &ast.Op{Pos: pos, Code: code}, nil
	}

	switch tok.Type {
	case lexer.TokPush:
		return &ast.Push{Pos: pos, Value: tok.Value}, nil

	case lexer.TokIdent:
		return &ast.Identifier{Pos: pos, Name: tok.Name}, nil

	case lexer.TokDrop:
		return &ast.Drop{Pos: pos, Name: tok.Name}, nil

	case lexer.TokSpawn:
		return &ast.Spawn{Pos: pos, Name: tok.Name, Private: tok.Private}, nil

	case lexer.TokStack:
		return &ast.StackOf{Pos: pos, Name: tok.Name}, nil

	case lexer.TokIf:
		then, term, err := p.parseSeq("if", pos, []lexer.TokenType{lexer.TokElse, lexer.TokEnd})
		if err != nil {
			return nil, err
		}
		node := &ast.If{Pos: pos, Then: then}
		if term.Type == lexer.TokElse {
			node.Else, _, err = p.parseSeq("if", pos, []lexer.TokenType{lexer.TokEnd})
			if err != nil {
				return nil, err
			}
		}
		return node, nil

	case lexer.TokWhile:
		cond, _, err := p.parseSeq("while", pos, []lexer.TokenType{lexer.TokDo})
		if err != nil {
			return nil, err
		}
		body, _, err := p.parseSeq("while", pos, []lexer.TokenType{lexer.TokEnd})
		if err != nil {
			return nil, err
		}
		return &ast.While{Pos: pos, Cond: cond, Body: body}, nil

	case lexer.TokVarDeclare:
		if lexer.IsReserved(tok.Name) {
			return nil, fail(diagnostics.ENameCollision, pos, "",
				"cannot declare a variable named '%s': the name is reserved", tok.Name)
		}
		init, _, err := p.parseSeq(fmt.Sprintf("variable '%s'", tok.Name), pos, []lexer.TokenType{lexer.TokDef})
		if err != nil {
			return nil, err
		}
		return &ast.VarDeclare{Pos: pos, Name: tok.Name, Init: init}, nil

	case lexer.TokMacro:
		body, _, err := p.parseSeq(fmt.Sprintf("macro '%s'", tok.Name), pos, []lexer.TokenType{lexer.TokEnd})
		if err != nil {
			return nil, err
		}
		return &ast.Macro{Pos: pos, Name: tok.Name, Body: body}, nil

	case lexer.TokProc, lexer.TokFn:
		return p.parseProcedure(tok)

	case lexer.TokString:
		sub := &parser{tokens: tok.Nested}
		body, _, err := sub.parseSeq("", pos, nil)
		if err != nil {
			return nil, err
		}
		return &ast.StringLiteral{Pos: pos, Text: tok.Name, Body: body}, nil

	case lexer.TokImport:
		sub := &parser{tokens: tok.Nested}
		body, _, err := sub.parseSeq("", pos, nil)
		if err != nil {
			return nil, err
		}
		return &ast.Import{Pos: pos, Path: tok.Name, File: tok.File, Body: body}, nil

	case lexer.TokIn:
		return nil, fail(diagnostics.EParse, pos, "", "'in' is only valid in a procedure header")
	}

	return nil, fail(diagnostics.EParse, pos, "", "unexpected token '%s'", tok.Type)
}

// parseProcedure parses `proc|fn NAME (in PARAM* do | do) BODY end`.
func (p *parser) parseProcedure(start lexer.Token) (ast.Instr, error) {
	pos := start.Pos
	if p.atEnd() {
		return nil, fail(diagnostics.EUnresolvedBlock, pos, HintUnclosed, "procedure is never closed, expected a name")
	}
	nameTok := p.advance()
	if nameTok.Type != lexer.TokIdent {
		return nil, fail(diagnostics.EParse, nameTok.Pos, "",
			"procedure expects an identifier as its name, got '%s'", nameTok.Type)
	}
	name := nameTok.Name
	label := fmt.Sprintf("procedure '%s'", name)

	var params []string
	if p.atEnd() {
		return nil, fail(diagnostics.EUnresolvedBlock, pos, HintUnclosed, "%s is never closed, expected 'in' or 'do'", label)
	}
	switch hdr := p.advance(); hdr.Type {
	case lexer.TokDo:
	case lexer.TokIn:
		for {
			if p.atEnd() {
				return nil, fail(diagnostics.EUnresolvedBlock, pos, HintUnclosed, "%s is never closed, expected 'do'", label)
			}
			tok := p.advance()
			if tok.Type == lexer.TokDo {
				break
			}
			if tok.Type != lexer.TokIdent {
				return nil, fail(diagnostics.EParse, tok.Pos, "",
					"%s expects an identifier as a parameter, got '%s'", label, tok.Type)
			}
			params = append(params, tok.Name)
		}
	default:
		return nil, fail(diagnostics.EParse, hdr.Pos, "",
			"%s expects 'in' or 'do' after its name, got '%s'", label, hdr.Type)
	}

	body, _, err := p.parseSeq(label, pos, []lexer.TokenType{lexer.TokEnd})
	if err != nil {
		return nil, err
	}
	return &ast.ProcedureDeclare{
		Pos:     pos,
		Name:    name,
		Params:  params,
		Body:    body,
		Returns: start.Type == lexer.TokFn,
	}, nil
}
