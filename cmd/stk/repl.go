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

	"github.com/peterh/liner"

	"github.com/thomasrohde/stk/pkg/evaluator"
	"github.com/thomasrohde/stk/pkg/lexer"
	"github.com/thomasrohde/stk/pkg/parser"
	"github.com/thomasrohde/stk/pkg/runtime"
)

const (
	historyFile = ".stk_history"
	promptMain  = "stk> "
	promptCont  = "...> "
)

const replBanner = `stk REPL. Blocks may span lines.
Commands: :stacks  :vars  :help  :quit`

func cmdRepl(args []string) int {
	verbosity := 0
	for _, arg := range args {
		if arg == "-v" || arg == "--verbose" {
			verbosity++
		}
	}

	cfg, code := loadConfig(".", false)
	if code != 0 {
		return code
	}
	configureLogging(cfg, verbosity)

	fmt.Println(replBanner)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	loader := lexer.FileLoader{SearchPaths: cfg.SearchPaths()}
	session := runtime.New(runtime.WithConfig(cfg)).NewSession()

	for {
		src, ok := readBlock(ln, loader)
		if !ok {
			fmt.Println()
			return 0
		}
		trimmed := strings.TrimSpace(src)
		if trimmed == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(src, "\n", " "))

		if strings.HasPrefix(trimmed, ":") {
			if quit := replCommand(session, trimmed); quit {
				return 0
			}
			continue
		}

		// Ctrl-C while a program runs interrupts it rather than the REPL.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		err := session.Eval(ctx, src)
		stop()

		var exit *evaluator.ExitError
		if errors.As(err, &exit) {
			return exit.Code
		}
		if err != nil {
			printDiags(diagnosticsFor(err), false)
		}
	}
}

// readBlock reads lines until they form a complete program or a
// definite syntax error.
func readBlock(ln *liner.State, loader lexer.Loader) (string, bool) {
	var b strings.Builder

	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			b.Reset()
			continue
		}
		if err != nil {
			return "", false
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if strings.HasPrefix(strings.TrimSpace(src), ":") {
			return src, true
		}
		if _, diags := parser.ParseSource(src, "<input>", loader); parser.IsIncomplete(diags) {
			continue
		}
		return src, true
	}
}

func replCommand(session *runtime.Session, cmd string) (quit bool) {
	switch strings.ToLower(cmd) {
	case ":quit", ":q", ":exit":
		return true
	case ":stacks":
		snap := session.Snapshot()
		for _, st := range snap.Stacks {
			marker := " "
			if st.Name == snap.Active {
				marker = "*"
			}
			fmt.Printf("%s %s %v\n", marker, st.Name, st.Values)
		}
	case ":vars":
		snap := session.Snapshot()
		for _, name := range snap.VariableNames() {
			fmt.Printf("  %s = %v\n", name, snap.Variables[name])
		}
	case ":help":
		fmt.Println(replBanner)
		fmt.Println(`Run "stk help" for the language reference.`)
	default:
		fmt.Println("unknown command. Type :quit to exit.")
	}
	return false
}
