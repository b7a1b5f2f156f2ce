// Package help holds the built-in stk language reference shown by `stk help`.
package help

import (
	"fmt"
	"sort"
	"strings"
)

// QUICKREF is printed by `stk help` with no topic.
const QUICKREF = `stk v0.1 quick reference

Values are bytes (0..255) or stack references. Every operation works on the
active stack; the program starts on "main".

  1 2 + print          push, add, print "3"
  - / < > =            second operand is below the first: "7 2 -" is 5
  dup swap pop         stack primitives
  print print_ascii    print a number line, or one character
  @x 5 def  x          declare a variable, push its value
  if ... else ... end  pops 0 or 1
  while ... do ... end re-evaluates the condition before each pass
  proc name in a b do ... end    procedure with parameters
  fn name do ... end             like proc, returns one value to main
  macro name ... end             inline expansion
  spawn s  stack s  switch  close  this  stacks  stack_size  stack_rev
  "text"               pushes a reference to a stack of character codes
  using lib            splice lib.stk into the program
  exit                 stop with the popped status

Topics: syntax, values, stacks, procedures, flow, imports, budget, diagnostics, examples
Run "stk help <topic>" for details; prefixes work ("stk help proc").
`

// TopicList is the ordered list of topic names.
var TopicList = []string{
	"syntax",
	"values",
	"stacks",
	"procedures",
	"flow",
	"imports",
	"budget",
	"diagnostics",
	"examples",
}

// Topics maps topic names to their reference text.
var Topics = map[string]string{
	"syntax": `SYNTAX

Tokens are separated by whitespace. "//" starts a comment that runs to the
end of the line.

  0..255        push a number (also "push N")
  "..."         string literal; escapes \n \t \\ \"
  @name ... def variable declaration; the block leaves one value to bind
  name          variable, procedure or macro reference
  drop name     remove the innermost binding of a variable

Keywords cannot be used as names, and neither can "main".
`,

	"values": `VALUES

There are two kinds of value:

  number     a byte; arithmetic wraps modulo 256
  stack ref  an alias for a named stack; copying it never copies the stack

print shows a reference as <stack NAME>. Arithmetic, comparison,
print_ascii and exit reject references with E_TYPE_MISMATCH.
`,

	"stacks": `STACKS

  spawn s     create stack s and push a reference to it
  stack s     push a reference to the live stack s
  this        push a reference to the active stack
  switch      pop a reference and make that stack active
  close       pop a reference and delete the stack it names
  stacks      list live stacks in creation order
  stack_size  push the depth of the active stack (mod 256)
  stack_rev   reverse the active stack in place

"main" always exists and cannot be closed. The active stack cannot be
closed either. A closed stack's name stays taken for the rest of the run.
`,

	"procedures": `PROCEDURES

  proc add in a b do a b + print end
  fn sq in n do n n * end
  macro twice dup + end

Calling a procedure pops one argument per parameter, in declaration order,
and binds them for the duration of the call. The body runs on a fresh
private stack which is closed afterwards; main is active when the call
returns. A fn also moves the top value of the stack active at the end of
its body onto main.

Macros have no parameters or private stack; their body runs inline on the
active stack.
`,

	"flow": `CONTROL FLOW

  cond if then-part else else-part end
  while cond do body end

if pops one value that must be 0 or 1 (E_INVALID_BOOLEAN otherwise).
while runs cond, pops a boolean, runs body while it is 1, and runs cond
again after every pass.

  exit   pop a number and stop the program with it as exit status
`,

	"imports": `IMPORTS

  using lib
  using "my lib.stk"

The file is found relative to the importing file, then through the
[imports] paths of stk.toml. ".stk" is added when the path has no
extension. The imported program runs inline and shares all state with
the importer. Import cycles are rejected with E_IMPORT.
`,

	"budget": `BUDGET

stk.toml may limit a run:

  [run]
  max_depth = 1000   nested procedure calls and macro expansions
  max_steps = 0      executed instructions (0 = unlimited)
  timeout = "5s"     wall-clock time (empty = unlimited)

Exceeding a limit stops the run with E_BUDGET.
`,

	"diagnostics": `DIAGNOSTICS

  E_LEX                 unreadable token
  E_PARSE               malformed procedure header or misplaced keyword
  E_UNRESOLVED_BLOCK    block never closed, or a terminator without opener
  E_IMPORT              import cannot be loaded, or an import cycle
  E_NAME_COLLISION      name already used under another kind
  E_STACK_UNDERFLOW     pop from an empty stack
  E_TYPE_MISMATCH       wrong value kind for an operation
  E_INVALID_BOOLEAN     if/while popped something other than 0 or 1
  E_MISSING_STACK       stack does not exist or was closed
  E_ILLEGAL_CLOSE       closing main or the active stack
  E_UNKNOWN_IDENTIFIER  name is not bound
  E_DIVIDE_BY_ZERO      division by zero
  E_BUDGET              a run limit was exceeded
  E_IO                  output or file error
  E_IMAGE               corrupt or incompatible .stkt image

Errors print as "file:line error: message"; use --json for JSON.
`,

	"examples": `EXAMPLES

Countdown:

  5 while dup 0 > do dup print 1 - end pop

Print a string (characters are pushed first to last, so reverse them):

  "Hi" switch stack_rev
  while stack_size 0 > do print_ascii end
  stack main switch

Recursion:

  fn fact in n do
    n 1 < if 1 else n 1 - fact n * end
  end
  5 fact print
`,
}

// MatchTopic finds a topic by exact name or unique prefix.
func MatchTopic(query string) (name, content string, err error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if c, ok := Topics[query]; ok {
		return query, c, nil
	}

	var matches []string
	for _, t := range TopicList {
		if strings.HasPrefix(t, query) {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 0:
		return "", "", fmt.Errorf("unknown help topic '%s'", query)
	case 1:
		return matches[0], Topics[matches[0]], nil
	}
	sort.Strings(matches)
	return "", "", fmt.Errorf("ambiguous help topic '%s': %s", query, strings.Join(matches, ", "))
}
