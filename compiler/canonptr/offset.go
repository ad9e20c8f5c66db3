package canonptr

import (
	"github.com/vusec/canonptrs-prelim/compiler/ir"
)

// emitOffset produces the byte displacement g applies to its base, as
// a value equal to what the address computation itself adds. Fully
// constant computations fold to a single immediate; otherwise one
// multiply per dynamic index is synthesized and everything is summed
// in 64-bit, matching the sign extension the address arithmetic uses.
func emitOffset(b *ir.Builder, g *ir.Instr) ir.Value {
	if off, ok := g.ConstOffset(); ok {
		return ir.I64(off)
	}

	terms, konst := g.Strides()

	var sum ir.Value

	for _, t := range terms {
		idx := b.SExt("", t.Index)
		m := b.Mul("", idx, ir.I64(t.Size))

		if sum == nil {
			sum = m
		} else {
			sum = b.Add("", sum, m)
		}
	}

	if sum == nil {
		return ir.I64(konst)
	}

	if konst != 0 {
		sum = b.Add("", sum, ir.I64(konst))
	}

	return sum
}
