// Package config handles stk.toml configuration.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"

	"github.com/thomasrohde/stk/pkg/evaluator"
)

var log = commonlog.GetLogger("stk.config")

// FileName is the name of the project configuration file.
const FileName = "stk.toml"

// Config represents an stk.toml configuration.
type Config struct {
	Run     Run     `toml:"run"`
	Imports Imports `toml:"imports"`
	Log     Log     `toml:"log"`
	Output  Output  `toml:"output"`

	// Path is the file the configuration was loaded from; empty for defaults.
	Path string `toml:"-"`
	// Dir is the directory containing Path.
	Dir string `toml:"-"`
}

// Run configures execution limits.
type Run struct {
	MaxDepth int    `toml:"max_depth"`
	MaxSteps int64  `toml:"max_steps"`
	Timeout  string `toml:"timeout"`
}

// Imports configures `using` resolution.
type Imports struct {
	Paths []string `toml:"paths"`
}

// Log configures the diagnostic logger.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Output configures how results and diagnostics are printed.
type Output struct {
	JSON bool `toml:"json"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Run: Run{MaxDepth: evaluator.DefaultMaxDepth},
	}
}

// LoadFile parses a configuration file. Keys missing from the file keep
// their default values.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	for _, key := range md.Undecoded() {
		log.Warningf("%s: unknown key %s", path, key.String())
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	c.Path = abs
	c.Dir = filepath.Dir(abs)

	if _, err := c.Limits(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find an stk.toml file, then loads
// and returns it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// UserPath returns the per-user configuration file path.
func UserPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "stk", "config.toml"), nil
}

// Discover loads the effective configuration for a script in dir.
// Precedence: project stk.toml (walking up from dir) → user config → defaults.
func Discover(dir string) (*Config, error) {
	c, err := FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	if c != nil {
		log.Debugf("using project config %s", c.Path)
		return c, nil
	}

	if userPath, err := UserPath(); err == nil {
		if _, statErr := os.Stat(userPath); statErr == nil {
			log.Debugf("using user config %s", userPath)
			return LoadFile(userPath)
		}
	}

	log.Debug("no config file found, using defaults")
	return Default(), nil
}

// SearchPaths returns the import search paths, resolved against the
// directory of the configuration file.
func (c *Config) SearchPaths() []string {
	var paths []string
	for _, p := range c.Imports.Paths {
		if !filepath.IsAbs(p) && c.Dir != "" {
			p = filepath.Join(c.Dir, p)
		}
		paths = append(paths, p)
	}
	return paths
}

// Limits converts the [run] table to evaluator limits.
func (c *Config) Limits() (evaluator.Limits, error) {
	limits := evaluator.Limits{
		MaxSteps: c.Run.MaxSteps,
		MaxDepth: c.Run.MaxDepth,
	}
	if c.Run.Timeout != "" {
		d, err := time.ParseDuration(c.Run.Timeout)
		if err != nil {
			return limits, fmt.Errorf("invalid run.timeout %q: %w", c.Run.Timeout, err)
		}
		limits.Timeout = d
	}
	return limits, nil
}

// Encode writes c as TOML.
func Encode(w io.Writer, c *Config) error {
	return toml.NewEncoder(w).Encode(c)
}
