// Package diagnostics defines stk diagnostic types for lex/parse/runtime errors.
package diagnostics

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/thomasrohde/stk/pkg/ast"
)

// Diagnostic code constants.
const (
	ELex             = "E_LEX"
	EParse           = "E_PARSE"
	EImport          = "E_IMPORT"
	ENameCollision   = "E_NAME_COLLISION"
	EStackUnderflow  = "E_STACK_UNDERFLOW"
	ETypeMismatch    = "E_TYPE_MISMATCH"
	EInvalidBoolean  = "E_INVALID_BOOLEAN"
	EUnresolvedBlock = "E_UNRESOLVED_BLOCK"
	EMissingStack    = "E_MISSING_STACK"
	EIllegalClose    = "E_ILLEGAL_CLOSE"
	EUnknownIdent    = "E_UNKNOWN_IDENTIFIER"
	EDivideByZero    = "E_DIVIDE_BY_ZERO"
	EBudget          = "E_BUDGET"
	EIO              = "E_IO"
	EImage           = "E_IMAGE"
)

// Diagnostic represents a lex, parse, validation, or runtime diagnostic.
type Diagnostic struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Pos     *ast.Pos `json:"pos,omitempty"`
	Hint    string   `json:"hint,omitempty"`
}

// MakeDiag creates a new Diagnostic.
func MakeDiag(code, message string, pos *ast.Pos, hint string) Diagnostic {
	return Diagnostic{
		Code:    code,
		Message: message,
		Pos:     pos,
		Hint:    hint,
	}
}

// FormatDiagnostic formats a single diagnostic for display.
// The pretty form is "{file}:{line} error: {message}".
func FormatDiagnostic(d Diagnostic, pretty bool) string {
	if !pretty {
		b, _ := json.Marshal(d)
		return string(b)
	}
	loc := "<unknown>"
	if d.Pos != nil {
		loc = fmt.Sprintf("%s:%d", d.Pos.File, d.Pos.Line)
	}
	out := fmt.Sprintf("%s error: %s", loc, d.Message)
	if d.Hint != "" {
		out += fmt.Sprintf("\n  hint: %s", d.Hint)
	}
	return out
}

// FormatDiagnostics formats a slice of diagnostics for display.
func FormatDiagnostics(diags []Diagnostic, pretty bool) string {
	if !pretty {
		b, _ := json.Marshal(diags)
		return string(b)
	}
	parts := make([]string, len(diags))
	for i, d := range diags {
		parts[i] = FormatDiagnostic(d, true)
	}
	return strings.Join(parts, "\n")
}
