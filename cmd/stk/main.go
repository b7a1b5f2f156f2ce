// Command stk is the stk language CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/thomasrohde/stk/pkg/config"
	"github.com/thomasrohde/stk/pkg/diagnostics"
	"github.com/thomasrohde/stk/pkg/evaluator"
	"github.com/thomasrohde/stk/pkg/formatter"
	"github.com/thomasrohde/stk/pkg/help"
	"github.com/thomasrohde/stk/pkg/image"
	"github.com/thomasrohde/stk/pkg/runtime"
)

var log = commonlog.GetLogger("stk.cli")

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: stk <command> [options]")
		fmt.Fprintln(os.Stderr, "commands: run, check, fmt, build, repl, trace, help, config")
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "run":
		os.Exit(cmdRun(os.Args[2:]))
	case "check":
		os.Exit(cmdCheck(os.Args[2:]))
	case "fmt":
		os.Exit(cmdFmt(os.Args[2:]))
	case "build":
		os.Exit(cmdBuild(os.Args[2:]))
	case "repl":
		os.Exit(cmdRepl(os.Args[2:]))
	case "trace":
		os.Exit(cmdTrace(os.Args[2:]))
	case "help", "--help", "-h":
		os.Exit(cmdHelp(os.Args[2:]))
	case "config":
		os.Exit(cmdConfig(os.Args[2:]))
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		os.Exit(1)
	}
}

func cmdRun(args []string) int {
	var file string
	jsonOutput := false
	dumpState := false
	tracePath := ""
	verbosity := 0

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--json":
			jsonOutput = true
		case "--dump-state":
			dumpState = true
		case "--trace":
			if i+1 < len(args) {
				i++
				tracePath = args[i]
			}
		case "-v", "--verbose":
			verbosity++
		case "-vv":
			verbosity += 2
		default:
			if args[i] == "-" || !strings.HasPrefix(args[i], "-") {
				file = args[i]
			}
		}
	}

	if file == "" {
		fmt.Fprintln(os.Stderr, "usage: stk run <file|-> [--json] [--dump-state] [--trace <file>] [-v]")
		return 1
	}

	cfg, code := loadConfig(file, jsonOutput)
	if code != 0 {
		return code
	}
	jsonOutput = jsonOutput || cfg.Output.JSON
	configureLogging(cfg, verbosity)

	opts := []runtime.Option{runtime.WithConfig(cfg)}
	if tracePath != "" {
		tw, err := newTraceWriter(tracePath)
		if err != nil {
			printDiags([]diagnostics.Diagnostic{ioDiag(err)}, jsonOutput)
			return 1
		}
		defer tw.Close()
		opts = append(opts, runtime.WithTrace(tw.Write))
	}
	rt := runtime.New(opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var result *runtime.Result
	var err error
	if filepath.Ext(file) == image.Ext {
		result, err = runImage(ctx, rt, file)
	} else {
		source, filename, code := readSource(file, jsonOutput)
		if code != 0 {
			return code
		}
		result, err = rt.Run(ctx, source, filename)
	}

	if dumpState && result != nil {
		if data, jerr := evaluator.SnapshotToJSON(result.Snapshot); jerr == nil {
			fmt.Fprintln(os.Stderr, string(data))
		}
	}
	if err != nil {
		printDiags(diagnosticsFor(err), jsonOutput)
		return 1
	}
	return result.ExitCode
}

func runImage(ctx context.Context, rt *runtime.Runtime, file string) (*runtime.Result, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("cannot read file: %s", file)
	}
	program, err := image.Decode(data)
	if err != nil {
		return nil, err
	}
	log.Debugf("loaded image %s (%d top-level instructions)", file, len(program.Body))
	return rt.RunProgram(ctx, program)
}

func cmdCheck(args []string) int {
	var file string
	jsonOutput := false

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--json":
			jsonOutput = true
		default:
			if args[i] == "-" || !strings.HasPrefix(args[i], "-") {
				file = args[i]
			}
		}
	}

	if file == "" {
		fmt.Fprintln(os.Stderr, "usage: stk check <file> [--json]")
		return 1
	}

	cfg, code := loadConfig(file, jsonOutput)
	if code != 0 {
		return code
	}
	jsonOutput = jsonOutput || cfg.Output.JSON
	configureLogging(cfg, 0)

	source, filename, code := readSource(file, jsonOutput)
	if code != 0 {
		return code
	}

	rt := runtime.New(runtime.WithConfig(cfg))
	diags := rt.Check(source, filename)
	if len(diags) > 0 {
		printDiags(diags, jsonOutput)
		return 2
	}

	if jsonOutput {
		fmt.Println("[]")
	} else {
		fmt.Println("No errors found.")
	}
	return 0
}

func cmdFmt(args []string) int {
	var file string
	write := false

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--write":
			write = true
		default:
			if !strings.HasPrefix(args[i], "-") {
				file = args[i]
			}
		}
	}

	if file == "" {
		fmt.Fprintln(os.Stderr, "usage: stk fmt <file> [--write]")
		return 1
	}

	cfg, code := loadConfig(file, false)
	if code != 0 {
		return code
	}
	configureLogging(cfg, 0)

	source, filename, code := readSource(file, false)
	if code != 0 {
		return code
	}

	rt := runtime.New(runtime.WithConfig(cfg))
	formatted, err := rt.Format(source, filename)
	if err != nil {
		printDiags(diagnosticsFor(err), false)
		return 2
	}

	if formatter.HasComments(source) {
		fmt.Fprintln(os.Stderr, "warning: comments are not preserved by the formatter")
	}

	if write {
		if err := os.WriteFile(file, []byte(formatted), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "error writing file: %s\n", err)
			return 1
		}
	} else {
		fmt.Print(formatted)
	}
	return 0
}

func cmdBuild(args []string) int {
	var file, out string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-o", "--output":
			if i+1 < len(args) {
				i++
				out = args[i]
			}
		default:
			if !strings.HasPrefix(args[i], "-") {
				file = args[i]
			}
		}
	}

	if file == "" {
		fmt.Fprintln(os.Stderr, "usage: stk build <file> [-o out.stkt]")
		return 1
	}
	if out == "" {
		out = strings.TrimSuffix(file, filepath.Ext(file)) + image.Ext
	}

	cfg, code := loadConfig(file, false)
	if code != 0 {
		return code
	}
	configureLogging(cfg, 0)

	source, filename, code := readSource(file, false)
	if code != 0 {
		return code
	}

	rt := runtime.New(runtime.WithConfig(cfg))
	data, err := rt.Build(source, filename)
	if err != nil {
		printDiags(diagnosticsFor(err), false)
		return 2
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing file: %s\n", err)
		return 1
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d bytes)\n", out, len(data))
	return 0
}

func cmdHelp(args []string) int {
	topic := ""
	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") {
			topic = arg
		}
	}

	if topic == "" {
		fmt.Print(help.QUICKREF)
		return 0
	}

	_, content, err := help.MatchTopic(topic)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\nAvailable topics: %s\n", err, strings.Join(help.TopicList, ", "))
		return 1
	}
	fmt.Print(content)
	return 0
}

func cmdConfig(_ []string) int {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		return 1
	}
	cfg, err := config.Discover(cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		return 1
	}

	if cfg.Path != "" {
		fmt.Printf("# %s\n", cfg.Path)
	} else {
		fmt.Println("# defaults (no stk.toml found)")
	}
	if err := config.Encode(os.Stdout, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		return 1
	}
	return 0
}

// loadConfig discovers the configuration for the script at file.
func loadConfig(file string, jsonOutput bool) (*config.Config, int) {
	dir := "."
	if file != "-" {
		dir = filepath.Dir(file)
	}
	cfg, err := config.Discover(dir)
	if err != nil {
		printDiags([]diagnostics.Diagnostic{ioDiag(err)}, jsonOutput)
		return nil, 1
	}
	return cfg, 0
}

func configureLogging(cfg *config.Config, verbosity int) {
	var path *string
	if cfg.Log.File != "" {
		path = &cfg.Log.File
	}
	commonlog.Configure(cfg.Log.Verbosity+verbosity, path)
}

func readSource(file string, jsonOutput bool) (string, string, int) {
	if file == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error reading stdin: %s\n", err)
			return "", "", 1
		}
		return string(data), "<stdin>", 0
	}

	source, err := os.ReadFile(file)
	if err != nil {
		diag := diagnostics.MakeDiag(diagnostics.EIO, fmt.Sprintf("cannot read file: %s", file), nil, "")
		printDiags([]diagnostics.Diagnostic{diag}, jsonOutput)
		return "", "", 1
	}
	return string(source), file, 0
}

// diagnosticsFor converts any error returned by the runtime into
// diagnostics for display.
func diagnosticsFor(err error) []diagnostics.Diagnostic {
	var diagErr *runtime.DiagnosticError
	if errors.As(err, &diagErr) {
		return diagErr.Diagnostics
	}
	var rtErr *evaluator.RuntimeError
	if errors.As(err, &rtErr) {
		return []diagnostics.Diagnostic{rtErr.Diagnostic()}
	}
	var imgErr *image.Error
	if errors.As(err, &imgErr) {
		return []diagnostics.Diagnostic{imgErr.Diagnostic()}
	}
	return []diagnostics.Diagnostic{ioDiag(err)}
}

func ioDiag(err error) diagnostics.Diagnostic {
	return diagnostics.MakeDiag(diagnostics.EIO, err.Error(), nil, "")
}

func printDiags(diags []diagnostics.Diagnostic, jsonOutput bool) {
	fmt.Fprintln(os.Stderr, diagnostics.FormatDiagnostics(diags, !jsonOutput))
}
