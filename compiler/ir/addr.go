package ir

import (
	"tlog.app/go/errors"

	"github.com/vusec/canonptrs-prelim/compiler/tp"
)

// Addr instructions compute "base plus indices": Args[0] is the base
// pointer, Args[1:] are the index terms, Elem is the type the first
// index steps over. Each later index walks one level into Elem.

func (i *Instr) Base() Value      { return i.Args[0] }
func (i *Instr) Indices() []Value { return i.Args[1:] }

// AllZeroIndices reports whether the computed address is numerically
// the base pointer.
func (i *Instr) AllZeroIndices() bool {
	for _, x := range i.Indices() {
		c, ok := x.(*Const)
		if !ok || c.Val != 0 {
			return false
		}
	}

	return true
}

// ConstOffset folds the full byte offset into a signed 64-bit
// constant. ok is false if any index is not compile-time known.
func (i *Instr) ConstOffset() (off int64, ok bool) {
	terms, konst := i.Strides()
	if len(terms) != 0 {
		return 0, false
	}

	return konst, true
}

// Strides lists one (index, byte stride) term per dynamic step plus
// the accumulated constant part. The first index steps over Elem as a
// whole; each later index walks one level into the current type: a
// struct index contributes the field offset, an array or vector index
// contributes index times element size.
func (i *Instr) Strides() (terms []Stride, konst int64) {
	cur := i.Elem

	for j, x := range i.Indices() {
		var size int64

		if j == 0 {
			size = int64(cur.Size())
		} else {
			switch t := cur.(type) {
			case tp.Struct:
				f := x.(*Const) // struct indices are constant, checked by Verify
				konst += t.Fields[f.Val].Offset
				cur = t.Fields[f.Val].Type

				continue
			case tp.Array:
				cur = t.X
			case tp.Vector:
				cur = t.X
			}

			size = int64(cur.Size())
		}

		if c, isConst := x.(*Const); isConst {
			konst += c.Val * size
		} else {
			terms = append(terms, Stride{Index: x, Size: size})
		}
	}

	return terms, konst
}

type Stride struct {
	Index Value
	Size  int64
}

// AddrType computes the result type of an address computation.
func AddrType(elem tp.Type, base Value, idxs []Value) (tp.Type, error) {
	bt := base.Type()

	lanes := 0

	if v, ok := bt.(tp.Vector); ok {
		lanes = v.Len
		bt = v.X
	}

	pt, ok := bt.(tp.Ptr)
	if !ok {
		return nil, errors.New("addr base is %v, not a pointer", bt)
	}

	if !tp.Equal(pt.X, elem) {
		return nil, errors.New("addr element type %v does not match base %v", elem, pt)
	}

	if len(idxs) == 0 {
		return nil, errors.New("addr needs at least one index")
	}

	cur := elem

	for _, x := range idxs[1:] {
		switch t := cur.(type) {
		case tp.Struct:
			c, ok := x.(*Const)
			if !ok {
				return nil, errors.New("struct index is not a constant")
			}

			if c.Val < 0 || int(c.Val) >= len(t.Fields) {
				return nil, errors.New("struct index %d out of range (%d fields)", c.Val, len(t.Fields))
			}

			cur = t.Fields[c.Val].Type
		case tp.Array:
			cur = t.X
		case tp.Vector:
			cur = t.X
		default:
			return nil, errors.New("cannot index into %v", cur)
		}
	}

	var r tp.Type = tp.Ptr{X: cur}

	if lanes != 0 {
		r = tp.Vector{X: r, Len: lanes}
	}

	return r, nil
}
