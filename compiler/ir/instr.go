package ir

import (
	"fmt"

	"github.com/vusec/canonptrs-prelim/compiler/tp"
)

type (
	Op int

	// Instr is a single SSA instruction. It implements Value: other
	// instructions refer to its result through their Args.
	Instr struct {
		ID int
		Op Op

		// name of the result. Empty for unnamed results, which print
		// as %<ID>.
		name string
		typ  tp.Type // nil for void results

		Args []Value

		Blk *Block

		// Elem is the source element type of Addr: the type the first
		// index steps over.
		Elem tp.Type

		// Incoming pairs Phi args with the predecessor blocks they
		// come from, index for index.
		Incoming []*Block

		// To is the target of Br, the taken target of CondBr, and the
		// normal destination of Invoke. Alt is the not-taken target of
		// CondBr and the unwind destination of Invoke.
		To, Alt *Block

		users userList
	}
)

const (
	Invalid Op = iota

	Add
	Sub
	Mul
	Neg
	And
	Shl
	LShr
	SExt

	Load
	Store

	Addr
	PtrToInt
	IntToPtr

	Phi
	Call

	Br
	CondBr
	Ret
	Invoke

	opCount
)

var opNames = [opCount]string{
	Invalid:  "invalid",
	Add:      "add",
	Sub:      "sub",
	Mul:      "mul",
	Neg:      "neg",
	And:      "and",
	Shl:      "shl",
	LShr:     "lshr",
	SExt:     "sext",
	Load:     "load",
	Store:    "store",
	Addr:     "addr",
	PtrToInt: "ptrtoint",
	IntToPtr: "inttoptr",
	Phi:      "phi",
	Call:     "call",
	Br:       "br",
	CondBr:   "condbr",
	Ret:      "ret",
	Invoke:   "invoke",
}

func (op Op) String() string {
	if op < 0 || op >= opCount {
		return fmt.Sprintf("op(%d)", int(op))
	}

	return opNames[op]
}

func (op Op) IsTerm() bool {
	switch op {
	case Br, CondBr, Ret, Invoke:
		return true
	default:
		return false
	}
}

func (i *Instr) Name() string {
	if i.name == "" {
		return fmt.Sprintf("%d", i.ID)
	}

	return i.name
}

func (i *Instr) Type() tp.Type { return i.typ }

// Named reports whether the result carries a real name, as opposed to
// the %<ID> fallback.
func (i *Instr) Named() bool { return i.name != "" }

func (i *Instr) Users() []*Instr  { return i.users }
func (i *Instr) addUser(u *Instr) { i.users.add(u) }
func (i *Instr) delUser(u *Instr) { i.users.del(u) }

func (i *Instr) String() string {
	return "%" + i.Name()
}

// AddArg appends an operand and registers the use edge.
func (i *Instr) AddArg(v Value) {
	i.Args = append(i.Args, v)
	addUse(v, i)
}

func (i *Instr) SetArg(j int, v Value) {
	delUse(i.Args[j], i)
	i.Args[j] = v
	addUse(v, i)
}

// ReplaceUsesOfWith redirects every operand of i that refers to old
// so that it refers to new instead.
func (i *Instr) ReplaceUsesOfWith(old, new Value) {
	for j, a := range i.Args {
		if a == old {
			i.SetArg(j, new)
		}
	}
}

// NewInstr makes a detached instruction. It is not a member of any
// block until inserted; use edges to its args are live immediately.
func (f *Func) NewInstr(op Op, name string, typ tp.Type, args ...Value) *Instr {
	i := &Instr{
		ID:   f.id(),
		Op:   op,
		name: name,
		typ:  typ,
	}

	for _, a := range args {
		i.AddArg(a)
	}

	return i
}
