package canonptr

import (
	"fmt"

	"tlog.app/go/errors"

	"github.com/vusec/canonptrs-prelim/compiler/ir"
)

// insertAfter resolves the (block, position) pair where instructions
// depending on v may be inserted so that they dominate every prior
// use of v.
func insertAfter(v ir.Value) (blk *ir.Block, pos int, err error) {
	switch v := v.(type) {
	case *ir.Instr:
		if v.Op == ir.Invoke {
			return splitInvokeEdge(v)
		}

		if v.Op.IsTerm() {
			return nil, 0, errors.New("no insertion point after terminator %v", v.Op)
		}

		if v.Op == ir.Phi {
			return v.Blk, v.Blk.FirstNonPhi(), nil
		}

		pos = v.Blk.Index(v)
		if pos < 0 {
			return nil, 0, errors.New("%v is not in its block", v)
		}

		return v.Blk, pos + 1, nil
	case *ir.Param:
		entry := v.Fn.Entry()
		if entry == nil {
			return nil, 0, errors.New("param of a declaration")
		}

		return entry, entry.FirstNonPhi(), nil
	default:
		return nil, 0, errors.New("no insertion point after %T", v)
	}
}

// splitInvokeEdge makes room after an exception-aware call: nothing
// can follow it in its own block, and the normal destination may have
// other predecessors. A fresh block is spliced into the normal edge,
// holding only a jump, and the destination's phis are repointed at
// it. Insertion happens at the head of that block.
func splitInvokeEdge(inv *ir.Instr) (*ir.Block, int, error) {
	f := inv.Blk.Fn
	dst := inv.To

	nb := f.NewBlockBefore(dst, fmt.Sprintf("invoke.cont.%d", inv.ID))

	br := f.NewInstr(ir.Br, "", nil)
	br.To = dst
	nb.Append(br)

	inv.To = nb

	dst.RetargetIncoming(inv.Blk, nb)

	return nb, 0, nil
}
