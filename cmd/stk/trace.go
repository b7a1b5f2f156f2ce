package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/thomasrohde/stk/pkg/diagnostics"
	"github.com/thomasrohde/stk/pkg/evaluator"
)

// traceWriter writes trace events as JSON lines.
type traceWriter struct {
	f   *os.File
	buf *bufio.Writer
	enc *json.Encoder
}

func newTraceWriter(path string) (*traceWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("cannot create trace file %s: %w", path, err)
	}
	buf := bufio.NewWriter(f)
	return &traceWriter{f: f, buf: buf, enc: json.NewEncoder(buf)}, nil
}

func (w *traceWriter) Write(e evaluator.TraceEvent) {
	if err := w.enc.Encode(e); err != nil {
		log.Warningf("trace write failed: %s", err)
	}
}

func (w *traceWriter) Close() error {
	if err := w.buf.Flush(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// TraceSummary aggregates a JSON-lines trace.
type TraceSummary struct {
	RunID       string         `json:"runId"`
	TotalEvents int            `json:"totalEvents"`
	Calls       int            `json:"calls"`
	CallsByProc map[string]int `json:"callsByProc"`
	Spawns      int            `json:"spawns"`
	Closes      int            `json:"closes"`
	Switches    int            `json:"switches"`
	Imports     []string       `json:"imports,omitempty"`
	Exit        *int           `json:"exit,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartTime   string         `json:"startTime,omitempty"`
	EndTime     string         `json:"endTime,omitempty"`
	DurationMs  float64        `json:"durationMs"`
}

func cmdTrace(args []string) int {
	var file string
	textOutput := false

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--json":
			textOutput = false
		case "--text":
			textOutput = true
		default:
			if !strings.HasPrefix(args[i], "-") {
				file = args[i]
			}
		}
	}

	if file == "" {
		fmt.Fprintln(os.Stderr, "usage: stk trace <file.jsonl> [--json|--text]")
		return 1
	}

	f, err := os.Open(file)
	if err != nil {
		diag := diagnostics.MakeDiag(diagnostics.EIO, fmt.Sprintf("cannot read file: %s", file), nil, "")
		printDiags([]diagnostics.Diagnostic{diag}, true)
		return 1
	}
	defer f.Close()

	summary := computeTraceSummary(f)

	if textOutput {
		printTraceSummaryText(os.Stdout, summary)
	} else {
		b, _ := json.Marshal(summary)
		fmt.Println(string(b))
	}
	return 0
}

func computeTraceSummary(r io.Reader) *TraceSummary {
	summary := &TraceSummary{
		CallsByProc: make(map[string]int),
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var event evaluator.TraceEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue // skip invalid lines
		}

		summary.TotalEvents++
		if summary.RunID == "" {
			summary.RunID = event.RunID
		}

		switch event.Event {
		case evaluator.TraceRunStart:
			if summary.StartTime == "" {
				summary.StartTime = event.Timestamp
			}
		case evaluator.TraceRunEnd:
			summary.EndTime = event.Timestamp
			if code, ok := event.Data["exit"]; ok {
				if n, err := strconv.Atoi(code); err == nil {
					summary.Exit = &n
				}
			}
			summary.Error = event.Data["error"]
		case evaluator.TraceCallStart:
			summary.Calls++
			if name := event.Data["proc"]; name != "" {
				summary.CallsByProc[name]++
			}
		case evaluator.TraceSpawn:
			summary.Spawns++
		case evaluator.TraceClose:
			summary.Closes++
		case evaluator.TraceSwitch:
			summary.Switches++
		case evaluator.TraceImportStart:
			summary.Imports = append(summary.Imports, event.Data["file"])
		}
	}

	if summary.StartTime != "" && summary.EndTime != "" {
		start, err1 := time.Parse(time.RFC3339Nano, summary.StartTime)
		end, err2 := time.Parse(time.RFC3339Nano, summary.EndTime)
		if err1 == nil && err2 == nil {
			summary.DurationMs = float64(end.Sub(start).Milliseconds())
		}
	}

	return summary
}

func printTraceSummaryText(w io.Writer, s *TraceSummary) {
	fmt.Fprintf(w, "Run: %s\n", s.RunID)
	fmt.Fprintf(w, "Events: %d\n", s.TotalEvents)
	fmt.Fprintf(w, "Calls: %d\n", s.Calls)

	names := make([]string, 0, len(s.CallsByProc))
	for name := range s.CallsByProc {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s: %d\n", name, s.CallsByProc[name])
	}

	fmt.Fprintf(w, "Stacks: %d spawned, %d closed, %d switches\n", s.Spawns, s.Closes, s.Switches)
	if len(s.Imports) > 0 {
		fmt.Fprintf(w, "Imports: %s\n", strings.Join(s.Imports, ", "))
	}
	switch {
	case s.Error != "":
		fmt.Fprintf(w, "Result: %s\n", s.Error)
	case s.Exit != nil:
		fmt.Fprintf(w, "Result: exit %d\n", *s.Exit)
	default:
		fmt.Fprintln(w, "Result: ok")
	}
	if s.DurationMs > 0 {
		fmt.Fprintf(w, "Duration: %.0fms\n", s.DurationMs)
	}
}
