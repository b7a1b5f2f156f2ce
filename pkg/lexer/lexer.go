// Package lexer implements the stk tokenizer.
package lexer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/thomasrohde/stk/pkg/ast"
	"github.com/thomasrohde/stk/pkg/diagnostics"
)

var log = commonlog.GetLogger("stk.lexer")

// MainStack is the name of the stack that always exists.
const MainStack = "main"

// TokenType identifies the type of a lexer token.
type TokenType int

const (
	// Stack primitives
	TokPush TokenType = iota
	TokPop
	TokDup
	TokSwap
	TokPrint
	TokPrintASCII

	// Arithmetic and comparison
	TokAdd
	TokSub
	TokMul
	TokDiv
	TokEq
	TokLt
	TokGt

	// Block keywords
	TokIf
	TokElse
	TokWhile
	TokDo
	TokEnd
	TokDef
	TokMacro
	TokProc
	TokFn
	TokIn

	// Names
	TokVarDeclare // @name
	TokIdent
	TokDrop

	// Stacks
	TokSpawn
	TokSwitch
	TokClose
	TokStack
	TokThis
	TokStacks
	TokStackSize
	TokStackRev

	// Other
	TokExit
	TokString
	TokImport
)

// Token represents a single lexer token.
//
// Value is the literal of a push. Name holds the identifier or declared
// name, the import path as written, or the decoded text of a string
// literal. Nested is set for string literals (the desugared push
// sequence) and imports (the imported file's tokens).
type Token struct {
	Type    TokenType
	Value   byte
	Name    string
	Private bool
	Nested  []Token
	File    string
	Pos     ast.Pos
}

var keywords = map[string]TokenType{
	"push":        TokPush,
	"pop":         TokPop,
	"dup":         TokDup,
	"swap":        TokSwap,
	"print":       TokPrint,
	"print_ascii": TokPrintASCII,
	"if":          TokIf,
	"else":        TokElse,
	"while":       TokWhile,
	"do":          TokDo,
	"end":         TokEnd,
	"def":         TokDef,
	"macro":       TokMacro,
	"proc":        TokProc,
	"fn":          TokFn,
	"in":          TokIn,
	"drop":        TokDrop,
	"spawn":       TokSpawn,
	"switch":      TokSwitch,
	"close":       TokClose,
	"stack":       TokStack,
	"this":        TokThis,
	"stacks":      TokStacks,
	"stack_size":  TokStackSize,
	"stack_rev":   TokStackRev,
	"exit":        TokExit,
	"using":       TokImport,
}

// IsReserved reports whether name is a keyword or the main stack and so
// cannot be declared as a variable, procedure, macro, parameter or stack.
func IsReserved(name string) bool {
	if name == MainStack {
		return true
	}
	_, ok := keywords[name]
	return ok
}

// Keywords returns the reserved words in no particular order.
func Keywords() []string {
	out := make([]string, 0, len(keywords))
	for k := range keywords {
		out = append(out, k)
	}
	return out
}

var symbolNames = map[TokenType]string{
	TokPush:       "number",
	TokAdd:        "+",
	TokSub:        "-",
	TokMul:        "*",
	TokDiv:        "/",
	TokEq:         "=",
	TokLt:         "<",
	TokGt:         ">",
	TokVarDeclare: "@name",
	TokIdent:      "identifier",
	TokString:     "string",
	TokImport:     "using",
}

// String returns the source spelling of a token type.
func (t TokenType) String() string {
	if s, ok := symbolNames[t]; ok {
		return s
	}
	for word, typ := range keywords {
		if typ == t && word != "push" && word != "using" {
			return word
		}
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// takesName lists keywords whose operand name is read by the scanner.
var takesName = map[TokenType]bool{
	TokSpawn: true,
	TokStack: true,
	TokMacro: true,
	TokDrop:  true,
}

type scanner struct {
	source   string
	filename string
	pos      int
	line     int
	loader   Loader
	chain    []string
}

func newScanner(source, filename string, loader Loader, chain []string) *scanner {
	return &scanner{
		source:   source,
		filename: filename,
		pos:      0,
		line:     1,
		loader:   loader,
		chain:    chain,
	}
}

func (s *scanner) atEnd() bool {
	return s.pos >= len(s.source)
}

func (s *scanner) peek() byte {
	if s.atEnd() {
		return 0
	}
	return s.source[s.pos]
}

func (s *scanner) peekAt(offset int) byte {
	p := s.pos + offset
	if p >= len(s.source) {
		return 0
	}
	return s.source[p]
}

func (s *scanner) advance() byte {
	ch := s.source[s.pos]
	s.pos++
	if ch == '\n' {
		s.line++
	}
	return ch
}

func (s *scanner) here() ast.Pos {
	return ast.Pos{File: s.filename, Line: s.line}
}

func (s *scanner) skipWhitespaceAndComments() {
	for !s.atEnd() {
		ch := s.peek()
		if isSpace(ch) {
			s.advance()
		} else if ch == '/' && s.peekAt(1) == '/' {
			for !s.atEnd() && s.peek() != '\n' {
				s.advance()
			}
		} else {
			break
		}
	}
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n'
}

func isAlpha(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isAlphaNumeric(ch byte) bool {
	return isAlpha(ch) || isDigit(ch)
}

func (s *scanner) scanWord() string {
	start := s.pos
	for !s.atEnd() && isAlphaNumeric(s.peek()) {
		s.advance()
	}
	return s.source[start:s.pos]
}

func (s *scanner) scanNumber() (Token, error) {
	pos := s.here()
	start := s.pos
	for !s.atEnd() && isDigit(s.peek()) {
		s.advance()
	}
	text := s.source[start:s.pos]
	if isAlpha(s.peek()) {
		return Token{}, s.lexError(pos, diagnostics.ELex, fmt.Sprintf("malformed number '%s%c'", text, s.peek()))
	}
	n, err := strconv.ParseUint(text, 10, 8)
	if err != nil {
		return Token{}, s.lexError(pos, diagnostics.ELex, fmt.Sprintf("number %s is out of range 0..255", text))
	}
	return Token{Type: TokPush, Value: byte(n), Pos: pos}, nil
}

func (s *scanner) scanString() (Token, error) {
	pos := s.here()
	s.advance() // consume opening "

	var buf strings.Builder
	for !s.atEnd() {
		ch := s.advance()
		switch ch {
		case '"':
			return desugarString(buf.String(), pos), nil
		case '\\':
			if s.atEnd() {
				return Token{}, s.lexError(pos, diagnostics.ELex, "unterminated string escape")
			}
			esc := s.advance()
			switch esc {
			case 'n':
				buf.WriteByte('\n')
			case 't':
				buf.WriteByte('\t')
			case '\\':
				buf.WriteByte('\\')
			case '"':
				buf.WriteByte('"')
			default:
				return Token{}, s.lexError(pos, diagnostics.ELex, fmt.Sprintf("invalid escape character: \\%c", esc))
			}
		default:
			buf.WriteByte(ch)
		}
	}
	return Token{}, s.lexError(pos, diagnostics.ELex, "unterminated string literal")
}

// desugarString expands a string literal into the push sequence that
// builds its character stack: spawn a private stack, keep a reference to
// it on the current stack, switch in, push every byte, switch back to
// main.
func desugarString(text string, pos ast.Pos) Token {
	nested := []Token{
		{Type: TokSpawn, Name: literalStackName(text), Private: true, Pos: pos},
		{Type: TokDup, Pos: pos},
		{Type: TokSwitch, Pos: pos},
	}
	for i := 0; i < len(text); i++ {
		nested = append(nested, Token{Type: TokPush, Value: text[i], Pos: pos})
	}
	nested = append(nested,
		Token{Type: TokStack, Name: MainStack, Pos: pos},
		Token{Type: TokSwitch, Pos: pos},
	)
	return Token{Type: TokString, Name: text, Nested: nested, Pos: pos}
}

// literalStackName derives a readable stack name from the first three
// words of a literal: their letters, each followed by '_'.
func literalStackName(text string) string {
	var b strings.Builder
	words := strings.Fields(text)
	if len(words) > 3 {
		words = words[:3]
	}
	for _, w := range words {
		for i := 0; i < len(w); i++ {
			if (w[i] >= 'a' && w[i] <= 'z') || (w[i] >= 'A' && w[i] <= 'Z') {
				b.WriteByte(w[i])
			}
		}
		b.WriteByte('_')
	}
	if b.Len() == 0 {
		return "str_"
	}
	return b.String()
}

func (s *scanner) scanOperandName(keyword string, pos ast.Pos) (string, error) {
	s.skipWhitespaceAndComments()
	if !isAlpha(s.peek()) {
		return "", s.lexError(pos, diagnostics.ELex, fmt.Sprintf("expected a name after '%s'", keyword))
	}
	return s.scanWord(), nil
}

func (s *scanner) scanImport(pos ast.Pos) (Token, error) {
	for !s.atEnd() && (s.peek() == ' ' || s.peek() == '\t') {
		s.advance()
	}
	var path string
	if s.peek() == '"' {
		s.advance()
		start := s.pos
		for !s.atEnd() && s.peek() != '"' && s.peek() != '\n' {
			s.advance()
		}
		if s.peek() != '"' {
			return Token{}, s.lexError(pos, diagnostics.ELex, "unterminated import path")
		}
		path = s.source[start:s.pos]
		s.advance()
	} else {
		start := s.pos
		for !s.atEnd() && !isSpace(s.peek()) {
			s.advance()
		}
		path = s.source[start:s.pos]
	}
	if path == "" {
		return Token{}, s.lexError(pos, diagnostics.ELex, "expected a path after 'using'")
	}

	if s.loader == nil {
		return Token{}, s.lexError(pos, diagnostics.EImport, fmt.Sprintf("cannot import '%s': no loader configured", path))
	}
	resolved, source, err := s.loader.Load(s.filename, path)
	if err != nil {
		return Token{}, s.lexError(pos, diagnostics.EImport, fmt.Sprintf("cannot import '%s': %v", path, err))
	}
	for _, f := range s.chain {
		if f == resolved {
			cycle := strings.Join(append(append([]string{}, s.chain...), resolved), " -> ")
			return Token{}, s.lexError(pos, diagnostics.EImport, fmt.Sprintf("import cycle: %s", cycle))
		}
	}
	log.Debugf("using %s resolved to %s", path, resolved)

	chain := append(append([]string{}, s.chain...), resolved)
	nested, err := tokenize(source, resolved, s.loader, chain)
	if err != nil {
		return Token{}, err
	}
	return Token{Type: TokImport, Name: path, File: resolved, Nested: nested, Pos: pos}, nil
}

func (s *scanner) lexError(pos ast.Pos, code, msg string) error {
	diag := diagnostics.MakeDiag(code, msg, &pos, "")
	return &LexError{Diag: diag}
}

// LexError wraps a diagnostic for lex errors.
type LexError struct {
	Diag diagnostics.Diagnostic
}

func (e *LexError) Error() string {
	return e.Diag.Message
}

// nextToken returns the next token; ok is false at end of input.
func (s *scanner) nextToken() (tok Token, ok bool, err error) {
	s.skipWhitespaceAndComments()
	if s.atEnd() {
		return Token{}, false, nil
	}

	ch := s.peek()
	pos := s.here()

	switch ch {
	case '+':
		s.advance()
		return Token{Type: TokAdd, Pos: pos}, true, nil
	case '-':
		s.advance()
		return Token{Type: TokSub, Pos: pos}, true, nil
	case '*':
		s.advance()
		return Token{Type: TokMul, Pos: pos}, true, nil
	case '/':
		s.advance()
		return Token{Type: TokDiv, Pos: pos}, true, nil
	case '=':
		s.advance()
		return Token{Type: TokEq, Pos: pos}, true, nil
	case '<':
		s.advance()
		return Token{Type: TokLt, Pos: pos}, true, nil
	case '>':
		s.advance()
		return Token{Type: TokGt, Pos: pos}, true, nil
	case '"':
		tok, err := s.scanString()
		return tok, err == nil, err
	case '@':
		s.advance()
		if !isAlpha(s.peek()) {
			return Token{}, false, s.lexError(pos, diagnostics.ELex, "expected a variable name after '@'")
		}
		return Token{Type: TokVarDeclare, Name: s.scanWord(), Pos: pos}, true, nil
	}

	if isDigit(ch) {
		tok, err := s.scanNumber()
		return tok, err == nil, err
	}

	if isAlpha(ch) {
		word := s.scanWord()
		typ, isKeyword := keywords[word]
		if !isKeyword {
			return Token{Type: TokIdent, Name: word, Pos: pos}, true, nil
		}
		switch {
		case typ == TokPush:
			s.skipWhitespaceAndComments()
			if !isDigit(s.peek()) {
				return Token{}, false, s.lexError(pos, diagnostics.ELex, "expected a number after 'push'")
			}
			tok, err := s.scanNumber()
			tok.Pos = pos
			return tok, err == nil, err
		case typ == TokImport:
			tok, err := s.scanImport(pos)
			return tok, err == nil, err
		case takesName[typ]:
			name, err := s.scanOperandName(word, pos)
			if err != nil {
				return Token{}, false, err
			}
			return Token{Type: typ, Name: name, Pos: pos}, true, nil
		}
		return Token{Type: typ, Name: word, Pos: pos}, true, nil
	}

	s.advance()
	return Token{}, false, s.lexError(pos, diagnostics.ELex, fmt.Sprintf("unexpected character '%c'", ch))
}

// Tokenize breaks source code into a slice of tokens. Imports are resolved
// through loader and their tokens nested in the import token; a nil loader
// makes every `using` an error.
func Tokenize(source, filename string, loader Loader) ([]Token, error) {
	return tokenize(source, filename, loader, []string{filename})
}

func tokenize(source, filename string, loader Loader, chain []string) ([]Token, error) {
	s := newScanner(source, filename, loader, chain)
	var tokens []Token

	for {
		tok, ok, err := s.nextToken()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		tokens = append(tokens, tok)
	}

	return tokens, nil
}
