package canonptr

import (
	"context"
	"strings"

	"tlog.app/go/errors"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"

	"github.com/vusec/canonptrs-prelim/compiler/ir"
	"github.com/vusec/canonptrs-prelim/compiler/tp"
)

// The pass rewrites every eligible address computation so that the
// byte offset it applies is also folded, shifted, into the high bits
// of the produced pointer. Whether a particular pointer participates
// is decided at run time by its own enable bit: a canonical pointer
// passes through unchanged, so instrumented and plain code can
// exchange pointers freely. The dereference-time check that reads the
// tag back lives in the runtime, not here.

// RuntimePrefix marks this pass's own helper functions. They are
// never instrumented.
const RuntimePrefix = "__canonptr_"

// Tagged pointer layout: bits 0-47 carry the canonical address and
// are never touched, bit 48 selects whether the pointer is tagged,
// bits 49-63 hold the shifted offset.
const (
	EnableBit = 48
	TagShift  = 49
)

// Name prefixes of virtual dispatch machinery. Tagging a vtable
// access breaks dispatch and guards nothing user-reachable, so these
// are excluded. The match is by naming convention only, it is not a
// semantic check.
const (
	vtablePrefix     = "vtable"
	vbaseOffsPrefix  = "vbase.offset"
	vtableDataPrefix = "_ZTV"
)

type (
	Pass struct{}
)

func New() *Pass {
	return &Pass{}
}

func (p *Pass) RunModule(ctx context.Context, m *ir.Module) (err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "canonptr: run module", "name", m.Name)
	defer tr.Finish("err", &err)

	for _, f := range m.Funcs {
		if !p.shouldInstrument(f) {
			tr.V("skip_func").Printw("skip func", "name", f.Name, "attrs", f.Attrs)
			continue
		}

		err = p.runFunc(ctx, f)
		if err != nil {
			return errors.Wrap(err, "func %v", f.Name)
		}
	}

	return nil
}

// shouldInstrument applies the function level rules in order, first
// failing rule wins.
func (p *Pass) shouldInstrument(f *ir.Func) bool {
	if f.IsDecl() {
		return false
	}

	if f.Empty() {
		return false
	}

	if f.Linkage == ir.AvailableExternally {
		return false
	}

	if strings.HasPrefix(f.Name, RuntimePrefix) {
		return false
	}

	if f.Attrs.Has(ir.AttrNoSanitize) {
		return false
	}

	return f.Attrs.Has(ir.AttrCanonPtr)
}

// isVtableAddr classifies g as a virtual dispatch table access by the
// names involved.
func isVtableAddr(g *ir.Instr) bool {
	base := g.Base()

	if strings.HasPrefix(base.Name(), vtablePrefix) {
		return true
	}

	if idxs := g.Indices(); len(idxs) == 1 {
		if strings.HasPrefix(idxs[0].Name(), vbaseOffsPrefix) {
			return true
		}
	}

	if gv, ok := base.(*ir.Global); ok {
		if strings.HasPrefix(gv.Name(), vtableDataPrefix) {
			return true
		}
	}

	return false
}

func (p *Pass) runFunc(ctx context.Context, f *ir.Func) (err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "canonptr: instrument func", "name", f.Name)
	defer tr.Finish("err", &err)

	// Snapshot first: the rewrite inserts instructions into the
	// blocks being iterated.
	var addrs []*ir.Instr

	for _, b := range f.Blocks {
		for _, x := range b.Code {
			if x.Op == ir.Addr {
				addrs = append(addrs, x)
			}
		}
	}

	for _, g := range addrs {
		// numerically the base pointer, nothing to encode
		if g.AllZeroIndices() {
			tr.V("skip_addr").Printw("skip zero offset", "addr", g)
			continue
		}

		if isVtableAddr(g) {
			tr.V("skip_addr").Printw("skip vtable access", "addr", g)
			continue
		}

		// no per-lane encoding for vector results
		if _, vec := g.Type().(tp.Vector); vec {
			tr.V("skip_addr").Printw("skip vector result", "addr", g)
			continue
		}

		err = p.rewrite(ctx, g)
		if err != nil {
			return errors.Wrap(err, "%v", g)
		}
	}

	return nil
}

// rewrite emits the conditional encoding sequence right after g and
// moves every prior consumer of g over to the encoded pointer.
func (p *Pass) rewrite(ctx context.Context, g *ir.Instr) (err error) {
	tr := tlog.SpanFromContext(ctx)

	// Snapshot the consumers before building anything: the sequence
	// itself consumes g and must keep doing so.
	users := append([]*ir.Instr{}, g.Users()...)

	blk, pos, err := insertAfter(g)
	if err != nil {
		return errors.Wrap(err, "insertion point")
	}

	pfx := ""
	if g.Named() {
		pfx = g.Name() + "."
	}

	name := func(suffix string) string {
		if pfx == "" {
			return ""
		}

		return pfx + suffix
	}

	b := ir.NewBuilder(blk, pos)

	ptrInt := b.PtrToInt(name("int"), g)

	upper := b.LShr(name("upperbits"), ptrInt, ir.I64(EnableBit))
	sel := b.And(name("enable.sel"), upper, ir.I64(1))
	// all ones when the enable bit is set, all zeros otherwise
	mask := b.Neg(name("enable.bit"), sel)

	diff := emitOffset(b, g)

	shifted := b.Shl(name("shifted"), diff, ir.I64(TagShift))
	addOff := b.And("", shifted, mask)
	sum := b.Add(name("added"), ptrInt, addOff)
	newPtr := b.IntToPtr(name("newptr"), sum, g.Type())

	for _, u := range users {
		u.ReplaceUsesOfWith(g, newPtr)
	}

	tr.V("addr").Printw("rewrote addr", "addr", g, "newptr", newPtr, "users", len(users), "block", blk.Name, "from", loc.Callers(1, 2))

	return nil
}
