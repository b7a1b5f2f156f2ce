package ast

// EqualShape reports whether two instruction sequences have the same tree
// structure and payloads. Source positions and resolved import file names
// are ignored.
func EqualShape(a, b []Instr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !equalInstr(a[i], b[i]) {
			return false
		}
	}
	return true
}

func equalInstr(a, b Instr) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case *Push:
		return x.Value == b.(*Push).Value
	case *Op:
		return x.Code == b.(*Op).Code
	case *VarDeclare:
		if x.Name != b.(*VarDeclare).Name {
			return false
		}
	case *Drop:
		return x.Name == b.(*Drop).Name
	case *Identifier:
		return x.Name == b.(*Identifier).Name
	case *ProcedureDeclare:
		y := b.(*ProcedureDeclare)
		if x.Name != y.Name || x.Returns != y.Returns || !equalStrings(x.Params, y.Params) {
			return false
		}
	case *Macro:
		if x.Name != b.(*Macro).Name {
			return false
		}
	case *Spawn:
		y := b.(*Spawn)
		return x.Name == y.Name && x.Private == y.Private
	case *StackOf:
		return x.Name == b.(*StackOf).Name
	case *StringLiteral:
		if x.Text != b.(*StringLiteral).Text {
			return false
		}
	case *Import:
		if x.Path != b.(*Import).Path {
			return false
		}
	}
	ac, bc := Children(a), Children(b)
	if len(ac) != len(bc) {
		return false
	}
	for i := range ac {
		if !EqualShape(ac[i], bc[i]) {
			return false
		}
	}
	return true
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
