package lexer

import (
	"testing"
)

// FuzzTokenize feeds random inputs to the lexer to catch panics.
// The lexer should never panic; invalid input is reported as an error.
func FuzzTokenize(f *testing.F) {
	seeds := []string{
		// Primitives
		`1 2 + print`,
		`push 255 pop dup swap print_ascii`,
		`+ - * / = < >`,
		// Blocks
		`if 1 else 2 end`,
		`while dup do 1 - end`,
		`def @x 5 end x print drop x`,
		`macro twice dup + end`,
		`proc add in a b do a b + end`,
		`fn sq in n do n n * end`,
		// Stacks
		`spawn s switch stack main switch this stacks stack_size stack_rev close`,
		// Strings
		`"hello" "with\nescape" "quote\""`,
		`"unterminated`,
		`"bad\escape"`,
		// Imports
		`using lib`,
		`using "quoted path"`,
		`using`,
		// Comments
		`// comment only`,
		`1 // trailing`,
		// Edge cases
		``,
		`   `,
		"\t\n\r",
		`@`,
		`@#$^&`,
		`256`,
		`12abc`,
		`spawn`,
	}

	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, input string) {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("Tokenize panicked on input %q: %v", input, r)
				}
			}()
			Tokenize(input, "fuzz.stk", MapLoader{"lib.stk": "1 print"})
		}()
	})
}
