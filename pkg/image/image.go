// Package image serializes Instruction Trees to CBOR tree images (.stkt).
//
// An image holds a fully parsed program with its imports already spliced in,
// so it can be evaluated without its source files.
package image

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/thomasrohde/stk/pkg/ast"
	"github.com/thomasrohde/stk/pkg/diagnostics"
)

// Ext is the file extension used for tree images.
const Ext = ".stkt"

// Magic identifies a tree image.
const Magic = "stkt"

// Version is the image format version written by Encode.
const Version = 1

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	encMode = em

	// Every block level costs two CBOR levels (node map and child array),
	// so the default limit of 32 rejects moderately nested programs.
	dm, err := cbor.DecOptions{MaxNestedLevels: 65535}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR dec mode: %v", err))
	}
	decMode = dm
}

// Error reports a malformed or incompatible image.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

// Diagnostic converts the error to an E_IMAGE diagnostic.
func (e *Error) Diagnostic() diagnostics.Diagnostic {
	return diagnostics.MakeDiag(diagnostics.EImage, e.Message, nil, "")
}

func fail(format string, args ...any) error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

// file is the on-disk layout. Source file names are interned in Files and
// referenced by index from each node.
type file struct {
	Magic   string   `cbor:"magic"`
	Version int      `cbor:"version"`
	Main    int      `cbor:"main"`
	Files   []string `cbor:"files"`
	Body    []node   `cbor:"body"`
}

type node struct {
	Kind    string   `cbor:"k"`
	File    int      `cbor:"f"`
	Line    int      `cbor:"l"`
	Value   byte     `cbor:"v,omitempty"`
	Op      string   `cbor:"op,omitempty"`
	Name    string   `cbor:"n,omitempty"`
	Params  []string `cbor:"ps,omitempty"`
	Text    string   `cbor:"t,omitempty"`
	Path    string   `cbor:"p,omitempty"`
	Private bool     `cbor:"priv,omitempty"`
	Returns bool     `cbor:"ret,omitempty"`
	A       []node   `cbor:"a,omitempty"`
	B       []node   `cbor:"b,omitempty"`
}

type encoder struct {
	files map[string]int
	out   *file
}

func (e *encoder) fileIndex(name string) int {
	if i, ok := e.files[name]; ok {
		return i
	}
	i := len(e.out.Files)
	e.files[name] = i
	e.out.Files = append(e.out.Files, name)
	return i
}

// Encode serializes a program to image bytes.
func Encode(prog *ast.Program) ([]byte, error) {
	e := &encoder{files: map[string]int{}, out: &file{Magic: Magic, Version: Version}}
	e.out.Main = e.fileIndex(prog.File)
	body, err := e.seq(prog.Body)
	if err != nil {
		return nil, err
	}
	e.out.Body = body
	return encMode.Marshal(e.out)
}

func (e *encoder) seq(instrs []ast.Instr) ([]node, error) {
	if len(instrs) == 0 {
		return nil, nil
	}
	out := make([]node, 0, len(instrs))
	for _, in := range instrs {
		n, err := e.node(in)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (e *encoder) node(in ast.Instr) (node, error) {
	pos := in.Position()
	n := node{Kind: in.Kind(), File: e.fileIndex(pos.File), Line: pos.Line}
	var err error
	switch x := in.(type) {
	case *ast.Push:
		n.Value = x.Value
	case *ast.Op:
		n.Kind = "Op"
		n.Op = string(x.Code)
	case *ast.If:
		if n.A, err = e.seq(x.Then); err == nil {
			n.B, err = e.seq(x.Else)
		}
	case *ast.While:
		if n.A, err = e.seq(x.Cond); err == nil {
			n.B, err = e.seq(x.Body)
		}
	case *ast.VarDeclare:
		n.Name = x.Name
		n.A, err = e.seq(x.Init)
	case *ast.Drop:
		n.Name = x.Name
	case *ast.Identifier:
		n.Name = x.Name
	case *ast.ProcedureDeclare:
		n.Name = x.Name
		n.Params = x.Params
		n.Returns = x.Returns
		n.A, err = e.seq(x.Body)
	case *ast.Macro:
		n.Name = x.Name
		n.A, err = e.seq(x.Body)
	case *ast.Spawn:
		n.Name = x.Name
		n.Private = x.Private
	case *ast.StackOf:
		n.Name = x.Name
	case *ast.StringLiteral:
		n.Text = x.Text
		n.A, err = e.seq(x.Body)
	case *ast.Import:
		n.Path = x.Path
		n.Name = x.File
		n.A, err = e.seq(x.Body)
	default:
		return n, fail("cannot encode %s instruction", in.Kind())
	}
	return n, err
}

// Decode parses image bytes back into a program.
func Decode(data []byte) (*ast.Program, error) {
	var f file
	if err := decMode.Unmarshal(data, &f); err != nil {
		return nil, fail("not a tree image: %v", err)
	}
	if f.Magic != Magic {
		return nil, fail("not a tree image: bad magic %q", f.Magic)
	}
	if f.Version != Version {
		return nil, fail("unsupported image version %d (expected %d)", f.Version, Version)
	}
	d := &decoder{files: f.Files}
	main, err := d.file(f.Main)
	if err != nil {
		return nil, err
	}
	body, err := d.seq(f.Body)
	if err != nil {
		return nil, err
	}
	return &ast.Program{File: main, Body: body}, nil
}

type decoder struct {
	files []string
}

func (d *decoder) file(i int) (string, error) {
	if i < 0 || i >= len(d.files) {
		return "", fail("file index %d out of range", i)
	}
	return d.files[i], nil
}

func (d *decoder) seq(nodes []node) ([]ast.Instr, error) {
	if len(nodes) == 0 {
		return nil, nil
	}
	out := make([]ast.Instr, 0, len(nodes))
	for i := range nodes {
		in, err := d.node(&nodes[i])
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, nil
}

func (d *decoder) node(n *node) (ast.Instr, error) {
	name, err := d.file(n.File)
	if err != nil {
		return nil, err
	}
	pos := ast.Pos{File: name, Line: n.Line}

	a, err := d.seq(n.A)
	if err != nil {
		return nil, err
	}
	b, err := d.seq(n.B)
	if err != nil {
		return nil, err
	}

	switch n.Kind {
	case "Push":
		return &ast.Push{Pos: pos, Value: n.Value}, nil
	case "Op":
		if n.Op == "" {
			return nil, fail("%s:%d: operation without a code", pos.File, pos.Line)
		}
		if !ast.OpCode(n.Op).Valid() {
			return nil, fail("%s:%d: unknown operation %q", pos.File, pos.Line, n.Op)
		}
		return &ast.Op{Pos: pos, Code: ast.OpCode(n.Op)}, nil
	case "If":
		return &ast.If{Pos: pos, Then: a, Else: b}, nil
	case "While":
		return &ast.While{Pos: pos, Cond: a, Body: b}, nil
	case "VarDeclare":
		return &ast.VarDeclare{Pos: pos, Name: n.Name, Init: a}, nil
	case "Drop":
		return &ast.Drop{Pos: pos, Name: n.Name}, nil
	case "Identifier":
		return &ast.Identifier{Pos: pos, Name: n.Name}, nil
	case "ProcedureDeclare":
		return &ast.ProcedureDeclare{Pos: pos, Name: n.Name, Params: n.Params, Body: a, Returns: n.Returns}, nil
	case "Macro":
		return &ast.Macro{Pos: pos, Name: n.Name, Body: a}, nil
	case "Spawn":
		return &ast.Spawn{Pos: pos, Name: n.Name, Private: n.Private}, nil
	case "StackOf":
		return &ast.StackOf{Pos: pos, Name: n.Name}, nil
	case "StringLiteral":
		return &ast.StringLiteral{Pos: pos, Text: n.Text, Body: a}, nil
	case "Import":
		return &ast.Import{Pos: pos, Path: n.Path, File: n.Name, Body: a}, nil
	}
	return nil, fail("%s:%d: unknown instruction kind %q", pos.File, pos.Line, n.Kind)
}
