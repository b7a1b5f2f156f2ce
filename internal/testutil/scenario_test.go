package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadAll(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b.yaml"), `
name: second
files:
  lib.stk: "macro one 1 end"
cases:
  - name: uses lib
    source: using lib one print
    files:
      extra.stk: "2"
    expect:
      stdout: "1\n"
`)
	writeFile(t, filepath.Join(root, "nested", "a.yaml"), `
name: first
cases:
  - name: fails
    source: pop
    limits:
      max_steps: 10
    expect:
      error:
        code: E_STACK_UNDERFLOW
        line: 1
  - name: formats
    cmd: fmt
    source: "1   2"
    expect:
      formatted: "1 2\n"
`)
	writeFile(t, filepath.Join(root, "notes.txt"), "ignored")

	cases, err := LoadAll(root)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(cases) != 3 {
		t.Fatalf("expected 3 cases, got %d", len(cases))
	}

	// ordered by path: b.yaml before nested/a.yaml
	if cases[0].ID() != "second/uses lib" {
		t.Errorf("first case = %q", cases[0].ID())
	}
	if *cases[0].Case.Expect.Stdout != "1\n" {
		t.Errorf("stdout = %q", *cases[0].Case.Expect.Stdout)
	}
	src := cases[0].Sources()
	if src["lib.stk"] == "" || src["extra.stk"] != "2" {
		t.Errorf("sources = %v", src)
	}

	fails := cases[1].Case
	if fails.Expect.Error == nil || fails.Expect.Error.Code != "E_STACK_UNDERFLOW" || fails.Expect.Error.Line != 1 {
		t.Errorf("error expectation = %+v", fails.Expect.Error)
	}
	if fails.Limits == nil || fails.Limits.MaxSteps != 10 {
		t.Errorf("limits = %+v", fails.Limits)
	}
	if cases[1].File != filepath.Join("nested", "a.yaml") {
		t.Errorf("file = %q", cases[1].File)
	}
	if cases[2].Case.Cmd != "fmt" || *cases[2].Case.Expect.Formatted != "1 2\n" {
		t.Errorf("fmt case = %+v", cases[2].Case)
	}
	if cases[0].Case.Expect.Formatted != nil {
		t.Error("unset expectation should stay nil")
	}
}

func TestLoadSuiteErrors(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unnamed case", "cases:\n  - source: pop\n", "case without a name"},
		{"duplicate case", "cases:\n  - name: a\n  - name: a\n", `duplicate case "a"`},
		{"bad yaml", "cases: [", "bad yaml.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(root, tt.name+".yaml")
			writeFile(t, path, tt.content)
			_, err := LoadSuite(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadSuiteDefaultsName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.yaml")
	writeFile(t, path, "cases:\n  - name: x\n    source: \"1\"\n")
	s, err := LoadSuite(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.Name != "plain.yaml" {
		t.Errorf("name = %q", s.Name)
	}
}
