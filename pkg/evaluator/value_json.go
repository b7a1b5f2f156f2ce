package evaluator

import (
	"encoding/json"
	"sort"
)

// StackState is the contents of one live stack, bottom first.
type StackState struct {
	Name   string `json:"name"`
	Values []any  `json:"values"`
}

// Snapshot is a serializable view of machine state. Numbers are plain
// integers and stack references are rendered as {"stack": NAME}.
type Snapshot struct {
	Active    string         `json:"active"`
	Stacks    []StackState   `json:"stacks"`
	Variables map[string]any `json:"variables"`
}

// Snapshot captures the live stacks, the active stack, and the global
// variables.
func (m *Machine) Snapshot() Snapshot {
	snap := Snapshot{
		Active:    m.ActiveStack(),
		Stacks:    []StackState{},
		Variables: make(map[string]any),
	}
	for _, h := range m.stacks.live() {
		slot, _ := m.stacks.get(h)
		values := make([]any, len(slot.values))
		for i, v := range slot.values {
			values[i] = m.valueToRaw(v)
		}
		snap.Stacks = append(snap.Stacks, StackState{Name: slot.name, Values: values})
	}
	for name, v := range m.globals.bindings {
		snap.Variables[name] = m.valueToRaw(v)
	}
	return snap
}

func (m *Machine) valueToRaw(v Value) any {
	switch val := v.(type) {
	case Int:
		return int(val.V)
	case StackRef:
		return map[string]string{"stack": m.stacks.name(val.Handle)}
	}
	return nil
}

// Stack returns the values of the named live stack, bottom first.
func (s Snapshot) Stack(name string) ([]any, bool) {
	for _, st := range s.Stacks {
		if st.Name == name {
			return st.Values, true
		}
	}
	return nil, false
}

// VariableNames returns the global variable names in sorted order.
func (s Snapshot) VariableNames() []string {
	names := make([]string, 0, len(s.Variables))
	for name := range s.Variables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SnapshotToJSON marshals a snapshot as indented JSON. Map keys are
// emitted in sorted order.
func SnapshotToJSON(s Snapshot) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}
