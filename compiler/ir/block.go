package ir

type (
	Block struct {
		ID   int
		Name string

		Fn *Func

		// Code is the ordered instruction list. The last instruction
		// is the block's only terminator.
		Code []*Instr
	}
)

func (b *Block) Term() *Instr {
	if len(b.Code) == 0 {
		return nil
	}

	if t := b.Code[len(b.Code)-1]; t.Op.IsTerm() {
		return t
	}

	return nil
}

func (b *Block) Succs() []*Block {
	t := b.Term()
	if t == nil {
		return nil
	}

	switch t.Op {
	case Br:
		return []*Block{t.To}
	case CondBr, Invoke:
		return []*Block{t.To, t.Alt}
	default:
		return nil
	}
}

// Preds is computed by scanning the function. Block membership in the
// CFG is defined by terminators only, so there is no stored list to
// fall out of sync.
func (b *Block) Preds() []*Block {
	var p []*Block

	for _, x := range b.Fn.Blocks {
		for _, s := range x.Succs() {
			if s == b {
				p = append(p, x)
			}
		}
	}

	return p
}

// FirstNonPhi is the first position a non-phi instruction may be
// inserted at.
func (b *Block) FirstNonPhi() int {
	for i, x := range b.Code {
		if x.Op != Phi {
			return i
		}
	}

	return len(b.Code)
}

// Index returns the position of x in the block, -1 if absent.
func (b *Block) Index(x *Instr) int {
	for i, y := range b.Code {
		if y == x {
			return i
		}
	}

	return -1
}

// Insert places x at position pos, shifting the tail.
func (b *Block) Insert(pos int, x *Instr) {
	b.Code = append(b.Code, nil)
	copy(b.Code[pos+1:], b.Code[pos:])
	b.Code[pos] = x

	x.Blk = b
}

// Append places x at the end of the block.
func (b *Block) Append(x *Instr) {
	b.Code = append(b.Code, x)
	x.Blk = b
}

// Phis returns the leading phi instructions.
func (b *Block) Phis() []*Instr {
	return b.Code[:b.FirstNonPhi()]
}

// RetargetIncoming rewrites phi bookkeeping after an edge retarget:
// every incoming edge recorded as coming from old now comes from new.
func (b *Block) RetargetIncoming(old, new *Block) {
	for _, p := range b.Phis() {
		for i, in := range p.Incoming {
			if in == old {
				p.Incoming[i] = new
			}
		}
	}
}
