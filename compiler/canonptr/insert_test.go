package canonptr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vusec/canonptrs-prelim/compiler/ir"
)

func TestInsertAfterInstr(t *testing.T) {
	m := parseMod(t, `func @f(i64* %p) i64 {
entry:
	%a = load %p
	%b = add %a, i64 1
	ret %b
}
`)

	entry := m.Func("f").Entry()

	blk, pos, err := insertAfter(entry.Code[0])
	require.NoError(t, err)
	assert.Same(t, entry, blk)
	assert.Equal(t, 1, pos)

	_, _, err = insertAfter(entry.Term())
	assert.Error(t, err)
}

func TestInsertAfterPhiAndParam(t *testing.T) {
	m := parseMod(t, `func @f(i64 %n, i1 %c) i64 {
entry:
	br %c, one, two
one:
	br join
two:
	br join
join:
	%v = phi i64 [%n, one], [i64 7, two]
	%w = phi i64 [i64 1, one], [%n, two]
	ret %v
}
`)

	f := m.Func("f")
	join := f.Blocks[3]

	blk, pos, err := insertAfter(join.Code[0])
	require.NoError(t, err)
	assert.Same(t, join, blk)
	assert.Equal(t, 2, pos, "past the whole phi group")

	blk, pos, err = insertAfter(f.In[0])
	require.NoError(t, err)
	assert.Same(t, f.Entry(), blk)
	assert.Equal(t, 0, pos)
}

func TestSplitInvokeEdge(t *testing.T) {
	m := parseMod(t, `decl func @mayfail() i64*

func @h(i64* %p, i1 %c) i64* {
entry:
	br %c, work, out
work:
	%r = invoke @mayfail() to out unwind fail
fail:
	ret %p
out:
	%v = phi i64* [%p, entry], [%r, work]
	ret %v
}
`)

	f := m.Func("h")
	work := f.Blocks[1]
	inv := work.Term()
	require.Equal(t, ir.Invoke, inv.Op)

	out := inv.To

	blk, pos, err := insertAfter(inv)
	require.NoError(t, err)
	assert.Equal(t, 0, pos)

	assert.Same(t, blk, inv.To, "normal edge goes through the new block")
	assert.NotSame(t, out, blk)

	br := blk.Term()
	require.Equal(t, ir.Br, br.Op)
	assert.Same(t, out, br.To)

	phi := out.Code[0]
	require.Equal(t, ir.Phi, phi.Op)
	assert.Contains(t, phi.Incoming, blk, "phi follows the retargeted edge")
	assert.NotContains(t, phi.Incoming, work)

	require.NoError(t, ir.Verify(m))
}
