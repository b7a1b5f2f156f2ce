// Package testutil provides shared test helpers for stk Go tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// ScenariosDir is the scenario directory relative to the module root.
const ScenariosDir = "testdata/scenarios"

// MainFile is the file name scenario programs run under.
const MainFile = "main.stk"

// Suite is one YAML scenario file.
type Suite struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	// Files are importable sources shared by every case in the suite.
	Files map[string]string `yaml:"files,omitempty"`
	Cases []Case            `yaml:"cases"`
}

// Case is a single scenario.
type Case struct {
	Name string `yaml:"name"`
	// Cmd is run (the default), check or fmt.
	Cmd    string            `yaml:"cmd,omitempty"`
	Source string            `yaml:"source"`
	Files  map[string]string `yaml:"files,omitempty"`
	Limits *Limits           `yaml:"limits,omitempty"`
	Skip   string            `yaml:"skip,omitempty"`
	Expect Expectation       `yaml:"expect"`
}

// Limits mirrors the [run] table of stk.toml.
type Limits struct {
	MaxSteps int64 `yaml:"max_steps,omitempty"`
	MaxDepth int   `yaml:"max_depth,omitempty"`
}

// Expectation describes the expected outcome of a case. Unset fields are
// not checked.
type Expectation struct {
	Stdout    *string          `yaml:"stdout,omitempty"`
	ExitCode  int              `yaml:"exit_code,omitempty"`
	Error     *ExpectedError   `yaml:"error,omitempty"`
	Active    string           `yaml:"active,omitempty"`
	Stacks    map[string][]int `yaml:"stacks,omitempty"`
	Variables map[string]int   `yaml:"variables,omitempty"`
	Formatted *string          `yaml:"formatted,omitempty"`
}

// ExpectedError matches the first diagnostic of a failed case.
type ExpectedError struct {
	Code     string `yaml:"code"`
	Line     int    `yaml:"line,omitempty"`
	File     string `yaml:"file,omitempty"`
	Contains string `yaml:"contains,omitempty"`
}

// LoadedCase is a case together with the suite and file it came from.
type LoadedCase struct {
	File  string
	Suite *Suite
	Case  Case
}

// ID returns a name suitable for t.Run.
func (lc LoadedCase) ID() string {
	return lc.Suite.Name + "/" + lc.Case.Name
}

// Sources returns the importable files visible to the case; case files
// override suite files of the same name.
func (lc LoadedCase) Sources() map[string]string {
	files := make(map[string]string, len(lc.Suite.Files)+len(lc.Case.Files))
	for name, src := range lc.Suite.Files {
		files[name] = src
	}
	for name, src := range lc.Case.Files {
		files[name] = src
	}
	return files
}

// LoadSuite parses a single YAML scenario file.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = filepath.Base(path)
	}
	seen := make(map[string]bool, len(s.Cases))
	for _, c := range s.Cases {
		if c.Name == "" {
			return nil, fmt.Errorf("%s: case without a name", path)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("%s: duplicate case %q", path, c.Name)
		}
		seen[c.Name] = true
	}
	return &s, nil
}

// LoadAll loads every .yaml file under root, ordered by path.
func LoadAll(root string) ([]LoadedCase, error) {
	var paths []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".yaml" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var loaded []LoadedCase
	for _, path := range paths {
		suite, err := LoadSuite(path)
		if err != nil {
			return nil, err
		}
		rel, _ := filepath.Rel(root, path)
		for _, c := range suite.Cases {
			loaded = append(loaded, LoadedCase{File: rel, Suite: suite, Case: c})
		}
	}
	return loaded, nil
}
