package ir

import (
	"fmt"

	"tlog.app/go/tlog/tlwire"

	"github.com/vusec/canonptrs-prelim/compiler/tp"
)

type (
	// Value is anything an instruction operand can refer to: the
	// result of another instruction, a function parameter, a module
	// global, a function reference, or an integer constant.
	Value interface {
		Name() string
		Type() tp.Type
	}

	// Def is a Value that tracks its users. Constants are not Defs:
	// a Const is owned by the single operand holding it.
	Def interface {
		Value

		Users() []*Instr
		addUser(u *Instr)
		delUser(u *Instr)
	}

	Linkage int

	Attrs int

	Module struct {
		Name string

		Funcs   []*Func
		Globals []*Global
	}

	Func struct {
		Name    string
		Linkage Linkage
		Attrs   Attrs

		In  []*Param
		Out tp.Type // nil for void

		Blocks []*Block

		nextID int
	}

	Param struct {
		name string
		typ  tp.Type

		Fn *Func

		users userList
	}

	Global struct {
		name string
		Elem tp.Type

		users userList
	}

	// FuncRef makes a Func usable as a call/invoke target operand.
	FuncRef struct {
		F *Func

		users userList
	}

	Const struct {
		Typ tp.Type
		Val int64
	}

	userList []*Instr
)

const (
	External Linkage = iota
	Internal
	AvailableExternally
)

const (
	// AttrCanonPtr opts a function in to pointer tagging. It is set
	// by the frontend driver, not by this code.
	AttrCanonPtr Attrs = 1 << iota

	// AttrNoSanitize forces the instrumentation to skip the function
	// even when AttrCanonPtr is set.
	AttrNoSanitize
)

func (l Linkage) String() string {
	switch l {
	case External:
		return "external"
	case Internal:
		return "internal"
	case AvailableExternally:
		return "available_externally"
	default:
		return fmt.Sprintf("linkage(%d)", int(l))
	}
}

func (a Attrs) Has(x Attrs) bool { return a&x == x }

func (a Attrs) String() (s string) {
	if a.Has(AttrCanonPtr) {
		s += " #canonptr"
	}

	if a.Has(AttrNoSanitize) {
		s += " #nosanitize"
	}

	if s == "" {
		return s
	}

	return s[1:]
}

func (a Attrs) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	if a == 0 {
		return e.AppendNil(b)
	}

	return e.AppendString(b, a.String())
}

func (m *Module) Func(name string) *Func {
	for _, f := range m.Funcs {
		if f.Name == name {
			return f
		}
	}

	return nil
}

func (m *Module) Global(name string) *Global {
	for _, g := range m.Globals {
		if g.name == name {
			return g
		}
	}

	return nil
}

func NewGlobal(name string, elem tp.Type) *Global {
	return &Global{name: name, Elem: elem}
}

func (f *Func) IsDecl() bool { return len(f.Blocks) == 0 }

// Empty reports a logically empty body: no blocks at all, or a single
// block holding nothing but the terminator.
func (f *Func) Empty() bool {
	if len(f.Blocks) == 0 {
		return true
	}

	return len(f.Blocks) == 1 && len(f.Blocks[0].Code) <= 1
}

func (f *Func) Entry() *Block {
	if len(f.Blocks) == 0 {
		return nil
	}

	return f.Blocks[0]
}

func (f *Func) Sig() tp.Func {
	s := tp.Func{}

	for _, p := range f.In {
		s.In = append(s.In, p.typ)
	}

	if f.Out != nil {
		s.Out = []tp.Type{f.Out}
	}

	return s
}

func (f *Func) AddParam(name string, typ tp.Type) *Param {
	p := &Param{name: name, typ: typ, Fn: f}
	f.In = append(f.In, p)

	return p
}

func (f *Func) NewBlock(name string) *Block {
	b := f.NewBlockDetached(name)
	f.Blocks = append(f.Blocks, b)

	return b
}

// NewBlockDetached creates a block that is not yet in the block list.
// The parser uses it for labels referenced before their definition.
func (f *Func) NewBlockDetached(name string) *Block {
	return &Block{ID: f.id(), Name: name, Fn: f}
}

func (f *Func) AttachBlock(b *Block) {
	f.Blocks = append(f.Blocks, b)
}

// NewBlockBefore creates a block placed just before x in the block
// list, as edge splitting wants.
func (f *Func) NewBlockBefore(x *Block, name string) *Block {
	b := &Block{ID: f.id(), Name: name, Fn: f}

	for i, y := range f.Blocks {
		if y != x {
			continue
		}

		f.Blocks = append(f.Blocks, nil)
		copy(f.Blocks[i+1:], f.Blocks[i:])
		f.Blocks[i] = b

		return b
	}

	panic(fmt.Sprintf("block %v is not in func %v", x.Name, f.Name))
}

func (f *Func) id() int {
	id := f.nextID
	f.nextID++

	return id
}

func (p *Param) Name() string  { return p.name }
func (p *Param) Type() tp.Type { return p.typ }

func (g *Global) Name() string  { return g.name }
func (g *Global) Type() tp.Type { return tp.Ptr{X: g.Elem} }

func (r *FuncRef) Name() string  { return r.F.Name }
func (r *FuncRef) Type() tp.Type { return tp.Ptr{X: r.F.Sig()} }

func (c *Const) Name() string  { return fmt.Sprintf("%d", c.Val) }
func (c *Const) Type() tp.Type { return c.Typ }

func I64(v int64) *Const { return &Const{Typ: tp.I64, Val: v} }

func (p *Param) Users() []*Instr   { return p.users }
func (g *Global) Users() []*Instr  { return g.users }
func (r *FuncRef) Users() []*Instr { return r.users }

func (p *Param) addUser(u *Instr)   { p.users.add(u) }
func (g *Global) addUser(u *Instr)  { g.users.add(u) }
func (r *FuncRef) addUser(u *Instr) { r.users.add(u) }

func (p *Param) delUser(u *Instr)   { p.users.del(u) }
func (g *Global) delUser(u *Instr)  { g.users.del(u) }
func (r *FuncRef) delUser(u *Instr) { r.users.del(u) }

func (l *userList) add(u *Instr) { *l = append(*l, u) }

// del removes one occurrence. A user holding the value in several
// operands appears in the list once per operand.
func (l *userList) del(u *Instr) {
	for i, x := range *l {
		if x != u {
			continue
		}

		*l = append((*l)[:i], (*l)[i+1:]...)

		return
	}
}

func addUse(v Value, u *Instr) {
	if d, ok := v.(Def); ok {
		d.addUser(u)
	}
}

func delUse(v Value, u *Instr) {
	if d, ok := v.(Def); ok {
		d.delUser(u)
	}
}
