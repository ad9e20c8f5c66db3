package ir

import (
	"github.com/vusec/canonptrs-prelim/compiler/tp"
)

type (
	// Builder inserts instructions at a (block, position) cursor,
	// advancing past each one.
	Builder struct {
		Blk *Block
		Pos int
	}
)

func NewBuilder(blk *Block, pos int) *Builder {
	return &Builder{Blk: blk, Pos: pos}
}

func (b *Builder) Insert(x *Instr) *Instr {
	b.Blk.Insert(b.Pos, x)
	b.Pos++

	return x
}

// bin emits a binary instruction, folding to a constant when both
// operands are compile-time known.
func (b *Builder) bin(op Op, name string, x, y Value) Value {
	cx, okx := x.(*Const)
	cy, oky := y.(*Const)

	if okx && oky {
		return &Const{Typ: cx.Typ, Val: foldBin(op, cx.Val, cy.Val)}
	}

	return b.Insert(b.Blk.Fn.NewInstr(op, name, x.Type(), x, y))
}

func foldBin(op Op, x, y int64) int64 {
	switch op {
	case Add:
		return x + y
	case Sub:
		return x - y
	case Mul:
		return x * y
	case And:
		return x & y
	case Shl:
		return x << uint64(y)
	case LShr:
		return int64(uint64(x) >> uint64(y))
	default:
		panic(op)
	}
}

func (b *Builder) Add(name string, x, y Value) Value  { return b.bin(Add, name, x, y) }
func (b *Builder) Sub(name string, x, y Value) Value  { return b.bin(Sub, name, x, y) }
func (b *Builder) Mul(name string, x, y Value) Value  { return b.bin(Mul, name, x, y) }
func (b *Builder) And(name string, x, y Value) Value  { return b.bin(And, name, x, y) }
func (b *Builder) Shl(name string, x, y Value) Value  { return b.bin(Shl, name, x, y) }
func (b *Builder) LShr(name string, x, y Value) Value { return b.bin(LShr, name, x, y) }

func (b *Builder) Neg(name string, x Value) Value {
	if c, ok := x.(*Const); ok {
		return &Const{Typ: c.Typ, Val: -c.Val}
	}

	return b.Insert(b.Blk.Fn.NewInstr(Neg, name, x.Type(), x))
}

// SExt sign-extends x to 64 bit. Constants already carry their value
// sign-extended; values that are 64 bit wide pass through.
func (b *Builder) SExt(name string, x Value) Value {
	if c, ok := x.(*Const); ok {
		return &Const{Typ: tp.I64, Val: c.Val}
	}

	if t, ok := x.Type().(tp.Int); ok && t.Bits == 64 {
		return x
	}

	return b.Insert(b.Blk.Fn.NewInstr(SExt, name, tp.I64, x))
}

func (b *Builder) PtrToInt(name string, x Value) *Instr {
	return b.Insert(b.Blk.Fn.NewInstr(PtrToInt, name, tp.I64, x))
}

func (b *Builder) IntToPtr(name string, x Value, typ tp.Type) *Instr {
	return b.Insert(b.Blk.Fn.NewInstr(IntToPtr, name, typ, x))
}
