package format

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vusec/canonptrs-prelim/compiler/ir"
	"github.com/vusec/canonptrs-prelim/compiler/tp"
)

func TestFormatFunc(t *testing.T) {
	f := &ir.Func{Name: "f", Attrs: ir.AttrCanonPtr, Out: tp.I64}
	p := f.AddParam("p", tp.Ptr{X: tp.I64})

	b := f.NewBlock("entry")

	g := f.NewInstr(ir.Addr, "q", tp.Ptr{X: tp.I64}, p, ir.I64(3))
	g.Elem = tp.I64
	b.Append(g)

	l := f.NewInstr(ir.Load, "v", tp.I64, g)
	b.Append(l)

	b.Append(f.NewInstr(ir.Ret, "", nil, l))

	out, err := Format(context.Background(), nil, f)
	require.NoError(t, err)

	assert.Equal(t, `func @f(i64* %p) i64 #canonptr {
entry:
	%q = addr i64, %p, i64 3
	%v = load %q
	ret %v
}
`, string(out))
}

func TestFormatUnnamed(t *testing.T) {
	f := &ir.Func{Name: "f"}
	p := f.AddParam("n", tp.I64)

	b := f.NewBlock("entry")

	x := f.NewInstr(ir.Mul, "", tp.I64, p, ir.I64(8))
	b.Append(x)

	b.Append(f.NewInstr(ir.Ret, "", nil, x))

	out, err := Format(context.Background(), nil, b)
	require.NoError(t, err)

	want := "entry:\n\t%" + x.Name() + " = mul %n, i64 8\n\tret %" + x.Name() + "\n"
	assert.Equal(t, want, string(out))
}
