package ir

import (
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/vusec/canonptrs-prelim/compiler/set"
	"github.com/vusec/canonptrs-prelim/compiler/tp"
)

// Verify checks the structural invariants the instrumentation relies
// on: exactly one terminator per block and it comes last, phi operands
// in 1:1 correspondence with predecessor blocks, and use lists that
// mirror the operand edges. It fails on the first violation.
func Verify(m *Module) (err error) {
	for _, f := range m.Funcs {
		err = VerifyFunc(f)
		if err != nil {
			return errors.Wrap(err, "func %v", f.Name)
		}
	}

	return nil
}

func VerifyFunc(f *Func) (err error) {
	if f.IsDecl() {
		return nil
	}

	ids := set.MakeBitmap(f.nextID)
	blocks := map[*Block]struct{}{}

	for _, b := range f.Blocks {
		if ids.IsSet(b.ID) {
			return errors.New("duplicated id %d (block %v)", b.ID, b.Name)
		}

		ids.Set(b.ID)
		blocks[b] = struct{}{}
	}

	if len(f.Entry().Preds()) != 0 {
		return errors.New("entry block %v has predecessors", f.Entry().Name)
	}

	for _, b := range f.Blocks {
		err = verifyBlock(f, b, blocks, &ids)
		if err != nil {
			return errors.Wrap(err, "block %v", b.Name)
		}
	}

	for _, b := range f.Blocks {
		for _, x := range b.Code {
			err = verifyUses(x)
			if err != nil {
				return errors.Wrap(err, "block %v", b.Name)
			}
		}
	}

	for _, p := range f.In {
		err = verifyUserEdges(p)
		if err != nil {
			return err
		}
	}

	tlog.V("verify").Printw("func verified", "name", f.Name, "defs", ids.Size(), "ids", ids)

	return nil
}

func verifyBlock(f *Func, b *Block, blocks map[*Block]struct{}, ids *set.Bitmap) (err error) {
	if b.Fn != f {
		return errors.New("block belongs to func %v", b.Fn.Name)
	}

	if len(b.Code) == 0 {
		return errors.New("empty block")
	}

	if b.Term() == nil {
		return errors.New("no terminator")
	}

	phis := true

	for j, x := range b.Code {
		if ids.IsSet(x.ID) {
			return errors.New("duplicated id %d (%v)", x.ID, x)
		}

		ids.Set(x.ID)

		if x.Blk != b {
			return errors.New("%v: block link broken", x)
		}

		if x.Op.IsTerm() && j != len(b.Code)-1 {
			return errors.New("%v: terminator %v in the middle of the block", x, x.Op)
		}

		if x.Op == Phi && !phis {
			return errors.New("%v: phi after a non-phi instruction", x)
		}

		if x.Op != Phi {
			phis = false
		}

		for k, a := range x.Args {
			if a == nil {
				return errors.New("%v: arg %d is nil", x, k)
			}

			if ai, ok := a.(*Instr); ok && ai.Blk.Fn != f {
				return errors.New("%v: arg %d defined in func %v", x, k, ai.Blk.Fn.Name)
			}

			if p, ok := a.(*Param); ok && p.Fn != f {
				return errors.New("%v: arg %d is a param of func %v", x, k, p.Fn.Name)
			}
		}

		for _, s := range []*Block{x.To, x.Alt} {
			if s == nil {
				continue
			}

			if _, ok := blocks[s]; !ok {
				return errors.New("%v: target %v is not in the function", x, s.Name)
			}
		}

		err = verifyInstr(x)
		if err != nil {
			return errors.Wrap(err, "%v", x)
		}
	}

	return nil
}

func verifyInstr(x *Instr) (err error) {
	switch x.Op {
	case Phi:
		if len(x.Incoming) != len(x.Args) {
			return errors.New("%d incoming blocks for %d args", len(x.Incoming), len(x.Args))
		}

		preds := x.Blk.Preds()
		if len(preds) != len(x.Incoming) {
			return errors.New("%d incoming blocks, block has %d predecessors", len(x.Incoming), len(preds))
		}

		left := make(map[*Block]int, len(preds))

		for _, p := range preds {
			left[p]++
		}

		for _, in := range x.Incoming {
			if left[in] == 0 {
				return errors.New("incoming block %v is not a predecessor", in.Name)
			}

			left[in]--
		}
	case Addr:
		typ, err := AddrType(x.Elem, x.Base(), x.Indices())
		if err != nil {
			return err
		}

		if !tp.Equal(typ, x.typ) {
			return errors.New("result type is %v, computed %v", x.typ, typ)
		}
	case Br:
		if x.To == nil {
			return errors.New("no branch target")
		}
	case CondBr, Invoke:
		if x.To == nil || x.Alt == nil {
			return errors.New("missing branch target")
		}
	}

	return nil
}

// verifyUses checks every operand edge of x is mirrored in the
// definition's user list, with matching multiplicity.
func verifyUses(x *Instr) (err error) {
	cnt := map[Def]int{}

	for _, a := range x.Args {
		if d, ok := a.(Def); ok {
			cnt[d]++
		}
	}

	for d, want := range cnt {
		got := 0

		for _, u := range d.Users() {
			if u == x {
				got++
			}
		}

		if got != want {
			return errors.New("%v: %d operand edges to %%%v, %d user edges back", x, want, d.Name(), got)
		}
	}

	return verifyUserEdges(x)
}

// verifyUserEdges checks every user list entry is backed by a real
// operand edge.
func verifyUserEdges(d Def) error {
	for _, u := range d.Users() {
		n := 0

		for _, a := range u.Args {
			if a == d {
				n++
			}
		}

		if n == 0 {
			return errors.New("%%%v: user %v holds no operand edge back", d.Name(), u)
		}
	}

	return nil
}
