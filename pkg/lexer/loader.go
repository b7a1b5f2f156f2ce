package lexer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// SourceExt is the file extension of stk source files.
const SourceExt = ".stk"

// Loader resolves the path of a `using` import relative to the importing
// file and returns the resolved name and the file contents.
type Loader interface {
	Load(from, importPath string) (resolved string, source string, err error)
}

// FileLoader loads imports from the file system. Paths are tried relative
// to the importing file first, then relative to each search path. A path
// without an extension also matches the same name with SourceExt.
type FileLoader struct {
	SearchPaths []string
}

// Load implements Loader.
func (l FileLoader) Load(from, importPath string) (string, string, error) {
	var candidates []string
	if filepath.IsAbs(importPath) {
		candidates = []string{importPath}
	} else {
		candidates = append(candidates, filepath.Join(filepath.Dir(from), importPath))
		for _, dir := range l.SearchPaths {
			candidates = append(candidates, filepath.Join(dir, importPath))
		}
	}

	for _, c := range candidates {
		for _, name := range withSourceExt(c, filepath.Ext) {
			data, err := os.ReadFile(name)
			if err == nil {
				return filepath.Clean(name), string(data), nil
			}
			if !errors.Is(err, fs.ErrNotExist) {
				return "", "", fmt.Errorf("read %s: %w", name, err)
			}
		}
	}
	return "", "", fmt.Errorf("file not found (searched %s)", strings.Join(candidates, ", "))
}

// MapLoader serves imports from memory, keyed by slash-separated file name.
// It is used by tests and interactive sessions.
type MapLoader map[string]string

// Load implements Loader.
func (m MapLoader) Load(from, importPath string) (string, string, error) {
	candidates := []string{path.Join(path.Dir(from), importPath), path.Clean(importPath)}
	for _, c := range candidates {
		for _, name := range withSourceExt(c, path.Ext) {
			if src, ok := m[name]; ok {
				return name, src, nil
			}
		}
	}
	return "", "", fmt.Errorf("file not found")
}

func withSourceExt(name string, ext func(string) string) []string {
	if ext(name) == "" {
		return []string{name, name + SourceExt}
	}
	return []string{name}
}
