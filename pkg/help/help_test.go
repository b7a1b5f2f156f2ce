package help

import (
	"strings"
	"testing"
)

func TestQUICKREFNonEmpty(t *testing.T) {
	if len(QUICKREF) == 0 {
		t.Fatal("QUICKREF is empty")
	}
}

func TestQUICKREFContainsVersion(t *testing.T) {
	if !strings.Contains(QUICKREF, "v0.1") {
		t.Error("QUICKREF does not contain version string v0.1")
	}
}

func TestQUICKREFListsTopics(t *testing.T) {
	for _, topic := range TopicList {
		if !strings.Contains(QUICKREF, topic) {
			t.Errorf("QUICKREF does not mention topic %q", topic)
		}
	}
}

func TestTopicListMatchesTopics(t *testing.T) {
	for _, name := range TopicList {
		if _, ok := Topics[name]; !ok {
			t.Errorf("TopicList entry %q not in Topics map", name)
		}
	}
	if len(Topics) != len(TopicList) {
		t.Errorf("expected %d topics, got %d", len(TopicList), len(Topics))
	}
}

func TestTopicsNonEmpty(t *testing.T) {
	for name, content := range Topics {
		if len(content) == 0 {
			t.Errorf("topic %q has empty content", name)
		}
	}
}

func TestDiagnosticsTopicListsCodes(t *testing.T) {
	for _, code := range []string{"E_PARSE", "E_NAME_COLLISION", "E_STACK_UNDERFLOW", "E_BUDGET", "E_IMAGE"} {
		if !strings.Contains(Topics["diagnostics"], code) {
			t.Errorf("diagnostics topic does not mention %s", code)
		}
	}
}

func TestMatchTopic(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"syntax", "syntax"},
		{"diag", "diagnostics"},
		{"ex", "examples"},
		{"proc", "procedures"},
		{"  Stacks ", "stacks"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			name, content, err := MatchTopic(tt.query)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if name != tt.want {
				t.Errorf("expected %q, got %q", tt.want, name)
			}
			if content == "" {
				t.Error("expected non-empty content")
			}
		})
	}
}

func TestMatchTopicUnknown(t *testing.T) {
	_, _, err := MatchTopic("nonexistent")
	if err == nil || !strings.Contains(err.Error(), "unknown help topic") {
		t.Errorf("expected unknown topic error, got %v", err)
	}
}

func TestMatchTopicAmbiguous(t *testing.T) {
	// "s" prefixes both syntax and stacks
	_, _, err := MatchTopic("s")
	if err == nil || !strings.Contains(err.Error(), "ambiguous") {
		t.Fatalf("expected ambiguous topic error, got %v", err)
	}
	if !strings.Contains(err.Error(), "stacks, syntax") {
		t.Errorf("expected sorted candidates, got %v", err)
	}
}

func TestMatchTopicAllExact(t *testing.T) {
	for _, topic := range TopicList {
		name, content, err := MatchTopic(topic)
		if err != nil {
			t.Errorf("MatchTopic(%q) error: %v", topic, err)
			continue
		}
		if name != topic {
			t.Errorf("MatchTopic(%q) returned name %q", topic, name)
		}
		if content == "" {
			t.Errorf("MatchTopic(%q) returned empty content", topic)
		}
	}
}
