package evaluator

import "fmt"

// NameKind is the kind a name is registered under.
type NameKind int

const (
	NameVariable NameKind = iota + 1
	NameProcedure
	NameStack
)

func (k NameKind) String() string {
	switch k {
	case NameVariable:
		return "Variable"
	case NameProcedure:
		return "Procedure"
	case NameStack:
		return "Stack"
	}
	return fmt.Sprintf("NameKind(%d)", int(k))
}

// Registry records the kind of every declared name. Entries are never
// removed, so a closed stack's name stays taken for the rest of the run.
type Registry struct {
	kinds map[string]NameKind
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]NameKind)}
}

// Declare registers name under kind. Redeclaring a Variable is allowed;
// any other redeclaration, or a declaration under a different kind, fails.
func (r *Registry) Declare(name string, kind NameKind) error {
	existing, ok := r.kinds[name]
	if ok && (existing != kind || kind != NameVariable) {
		return fmt.Errorf("%s with name '%s' already exists", existing, name)
	}
	r.kinds[name] = kind
	return nil
}

// Lookup returns the kind name is registered under.
func (r *Registry) Lookup(name string) (NameKind, bool) {
	k, ok := r.kinds[name]
	return k, ok
}
