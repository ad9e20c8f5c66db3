package tp

import (
	"fmt"
	"strings"
)

type (
	Type interface {
		Size() int
		Align() int
		String() string
	}

	Func struct {
		In  []Type
		Out []Type
	}

	Int struct {
		Bits   int16
		Signed bool
	}

	Ptr struct {
		X Type
	}

	Array struct {
		X   Type
		Len int
	}

	Vector struct {
		X   Type
		Len int
	}

	Struct struct {
		Fields []StructField
	}

	StructField struct {
		Name   string
		Offset int64
		Type   Type
	}
)

// Pointers are fixed 64 bit. The tag layout in the canonptr pass
// depends on it.
const PtrSize = 8

var (
	I1  = Int{Bits: 1}
	I8  = Int{Bits: 8, Signed: true}
	I16 = Int{Bits: 16, Signed: true}
	I32 = Int{Bits: 32, Signed: true}
	I64 = Int{Bits: 64, Signed: true}
)

func (x Int) Size() int {
	if x.Bits <= 8 {
		return 1
	}

	return int(x.Bits) / 8
}

func (x Ptr) Size() int    { return PtrSize }
func (x Func) Size() int   { return PtrSize }
func (x Array) Size() int  { return x.X.Size() * x.Len }
func (x Vector) Size() int { return x.X.Size() * x.Len }

func (x Struct) Size() int {
	if len(x.Fields) == 0 {
		return 0
	}

	l := x.Fields[len(x.Fields)-1]
	s := l.Offset + int64(l.Type.Size())

	return int(align(s, int64(x.Align())))
}

func (x Int) Align() int    { return x.Size() }
func (x Ptr) Align() int    { return PtrSize }
func (x Func) Align() int   { return PtrSize }
func (x Array) Align() int  { return x.X.Align() }
func (x Vector) Align() int { return x.X.Align() }

func (x Struct) Align() (a int) {
	a = 1

	for _, f := range x.Fields {
		if fa := f.Type.Align(); fa > a {
			a = fa
		}
	}

	return a
}

// MakeStruct lays the fields out sequentially with natural alignment
// and computes their offsets.
func MakeStruct(fields ...StructField) Struct {
	var off int64

	for i := range fields {
		off = align(off, int64(fields[i].Type.Align()))
		fields[i].Offset = off
		off += int64(fields[i].Type.Size())
	}

	return Struct{Fields: fields}
}

func align(x, a int64) int64 {
	return (x + a - 1) &^ (a - 1)
}

// Elem is the type one index term steps into: the element of an array
// or vector, the field type of a struct.
func Elem(x Type, field int) Type {
	switch x := x.(type) {
	case Array:
		return x.X
	case Vector:
		return x.X
	case Struct:
		return x.Fields[field].Type
	default:
		return nil
	}
}

func Equal(a, b Type) bool {
	switch a := a.(type) {
	case Int:
		b, ok := b.(Int)
		return ok && a.Bits == b.Bits
	case Ptr:
		b, ok := b.(Ptr)
		return ok && Equal(a.X, b.X)
	case Array:
		b, ok := b.(Array)
		return ok && a.Len == b.Len && Equal(a.X, b.X)
	case Vector:
		b, ok := b.(Vector)
		return ok && a.Len == b.Len && Equal(a.X, b.X)
	case Struct:
		b, ok := b.(Struct)
		if !ok || len(a.Fields) != len(b.Fields) {
			return false
		}

		for i := range a.Fields {
			if !Equal(a.Fields[i].Type, b.Fields[i].Type) {
				return false
			}
		}

		return true
	case Func:
		b, ok := b.(Func)
		if !ok || len(a.In) != len(b.In) || len(a.Out) != len(b.Out) {
			return false
		}

		for i := range a.In {
			if !Equal(a.In[i], b.In[i]) {
				return false
			}
		}

		for i := range a.Out {
			if !Equal(a.Out[i], b.Out[i]) {
				return false
			}
		}

		return true
	default:
		return false
	}
}

func (x Int) String() string    { return fmt.Sprintf("i%d", x.Bits) }
func (x Ptr) String() string    { return x.X.String() + "*" }
func (x Array) String() string  { return fmt.Sprintf("[%d x %v]", x.Len, x.X) }
func (x Vector) String() string { return fmt.Sprintf("<%d x %v>", x.Len, x.X) }

func (x Struct) String() string {
	var b strings.Builder

	b.WriteByte('{')

	for i, f := range x.Fields {
		if i != 0 {
			b.WriteString(", ")
		}

		b.WriteString(f.Type.String())
	}

	b.WriteByte('}')

	return b.String()
}

func (x Func) String() string {
	var b strings.Builder

	b.WriteString("func(")

	for i, t := range x.In {
		if i != 0 {
			b.WriteString(", ")
		}

		b.WriteString(t.String())
	}

	b.WriteByte(')')

	for _, t := range x.Out {
		b.WriteByte(' ')
		b.WriteString(t.String())
	}

	return b.String()
}
