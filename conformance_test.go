package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/thomasrohde/stk/internal/testutil"
	"github.com/thomasrohde/stk/pkg/diagnostics"
	"github.com/thomasrohde/stk/pkg/evaluator"
	"github.com/thomasrohde/stk/pkg/lexer"
	"github.com/thomasrohde/stk/pkg/runtime"
)

func TestConformance(t *testing.T) {
	cases, err := testutil.LoadAll(testutil.ScenariosDir)
	if err != nil {
		t.Fatalf("failed to load scenarios: %v", err)
	}
	if len(cases) == 0 {
		t.Fatal("no scenarios found")
	}

	for _, lc := range cases {
		lc := lc
		t.Run(lc.ID(), func(t *testing.T) {
			if lc.Case.Skip != "" {
				t.Skip(lc.Case.Skip)
			}

			var stdout bytes.Buffer
			opts := []runtime.Option{
				runtime.WithStdout(&stdout),
				runtime.WithLoader(lexer.MapLoader(lc.Sources())),
				runtime.WithRunID("conformance"),
			}
			if l := lc.Case.Limits; l != nil {
				opts = append(opts, runtime.WithLimits(evaluator.Limits{MaxSteps: l.MaxSteps, MaxDepth: l.MaxDepth}))
			}
			rt := runtime.New(opts...)

			switch lc.Case.Cmd {
			case "", "run":
				runScenario(t, rt, lc.Case, &stdout)
			case "check":
				checkScenario(t, rt, lc.Case)
			case "fmt":
				fmtScenario(t, rt, lc.Case)
			default:
				t.Fatalf("unsupported command: %s", lc.Case.Cmd)
			}
		})
	}
}

func runScenario(t *testing.T, rt *runtime.Runtime, c testutil.Case, stdout *bytes.Buffer) {
	t.Helper()

	result, err := rt.Run(context.Background(), c.Source, testutil.MainFile)
	checkError(t, firstDiagnostic(err), c.Expect.Error)

	if c.Expect.Stdout != nil && stdout.String() != *c.Expect.Stdout {
		t.Errorf("stdout:\n  got:  %q\n  want: %q", stdout.String(), *c.Expect.Stdout)
	}
	if result == nil {
		if c.Expect.Active != "" || c.Expect.Stacks != nil || c.Expect.Variables != nil {
			t.Errorf("no machine state to check (error: %v)", err)
		}
		return
	}
	if result.ExitCode != c.Expect.ExitCode {
		t.Errorf("exit code: got %d, want %d", result.ExitCode, c.Expect.ExitCode)
	}
	checkSnapshot(t, result.Snapshot, c.Expect)
}

func checkScenario(t *testing.T, rt *runtime.Runtime, c testutil.Case) {
	t.Helper()

	diags := rt.Check(c.Source, testutil.MainFile)
	var first *diagnostics.Diagnostic
	if len(diags) > 0 {
		first = &diags[0]
	}
	checkError(t, first, c.Expect.Error)
}

func fmtScenario(t *testing.T, rt *runtime.Runtime, c testutil.Case) {
	t.Helper()

	out, err := rt.Format(c.Source, testutil.MainFile)
	checkError(t, firstDiagnostic(err), c.Expect.Error)
	if c.Expect.Formatted != nil && out != *c.Expect.Formatted {
		t.Errorf("formatted:\n  got:  %q\n  want: %q", out, *c.Expect.Formatted)
	}
}

// firstDiagnostic extracts the reported diagnostic from a run error.
func firstDiagnostic(err error) *diagnostics.Diagnostic {
	if err == nil {
		return nil
	}
	var diagErr *runtime.DiagnosticError
	if errors.As(err, &diagErr) && len(diagErr.Diagnostics) > 0 {
		return &diagErr.Diagnostics[0]
	}
	var rtErr *evaluator.RuntimeError
	if errors.As(err, &rtErr) {
		d := rtErr.Diagnostic()
		return &d
	}
	d := diagnostics.MakeDiag("E_UNEXPECTED", err.Error(), nil, "")
	return &d
}

func checkError(t *testing.T, got *diagnostics.Diagnostic, want *testutil.ExpectedError) {
	t.Helper()

	switch {
	case got == nil && want == nil:
		return
	case got == nil:
		t.Errorf("expected %s, got no error", want.Code)
		return
	case want == nil:
		t.Errorf("unexpected error: %s", diagnostics.FormatDiagnostic(*got, true))
		return
	}

	if got.Code != want.Code {
		t.Errorf("error code: got %s, want %s (%s)", got.Code, want.Code, got.Message)
	}
	if want.Contains != "" && !strings.Contains(got.Message, want.Contains) {
		t.Errorf("error message %q does not contain %q", got.Message, want.Contains)
	}
	if want.Line != 0 || want.File != "" {
		if got.Pos == nil {
			t.Errorf("expected a position, got none")
			return
		}
		if want.Line != 0 && got.Pos.Line != want.Line {
			t.Errorf("error line: got %d, want %d", got.Pos.Line, want.Line)
		}
		if want.File != "" && got.Pos.File != want.File {
			t.Errorf("error file: got %s, want %s", got.Pos.File, want.File)
		}
	}
}

func checkSnapshot(t *testing.T, snap evaluator.Snapshot, want testutil.Expectation) {
	t.Helper()

	if want.Active != "" && snap.Active != want.Active {
		t.Errorf("active stack: got %s, want %s", snap.Active, want.Active)
	}
	for name, values := range want.Stacks {
		got, ok := snap.Stack(name)
		if !ok {
			t.Errorf("stack %s is not live", name)
			continue
		}
		if fmt.Sprint(numbers(got)) != fmt.Sprint(values) {
			t.Errorf("stack %s: got %v, want %v", name, got, values)
		}
	}
	for name, value := range want.Variables {
		got, ok := snap.Variables[name]
		if !ok {
			t.Errorf("variable %s is not bound", name)
			continue
		}
		if n, ok := got.(int); !ok || n != value {
			t.Errorf("variable %s: got %v, want %d", name, got, value)
		}
	}
}

// numbers renders stack references as -1 so they never equal a byte.
func numbers(values []any) []int {
	out := make([]int, len(values))
	for i, v := range values {
		if n, ok := v.(int); ok {
			out[i] = n
		} else {
			out[i] = -1
		}
	}
	return out
}
