package canonptr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vusec/canonptrs-prelim/compiler/ir"
	"github.com/vusec/canonptrs-prelim/compiler/parse"
	"github.com/vusec/canonptrs-prelim/compiler/tp"
)

func parseMod(t *testing.T, text string) *ir.Module {
	t.Helper()

	m, err := parse.Module(context.Background(), "test", []byte(text))
	require.NoError(t, err)
	require.NoError(t, ir.Verify(m))

	return m
}

func instrument(t *testing.T, text string) *ir.Module {
	t.Helper()

	m := parseMod(t, text)

	require.NoError(t, New().RunModule(context.Background(), m))
	require.NoError(t, ir.Verify(m))

	return m
}

// eval runs a function over plain uint64 machine arithmetic. It
// models exactly what the emitted instructions do to pointer bits; no
// memory is modeled.
func eval(t *testing.T, f *ir.Func, args map[string]uint64) uint64 {
	t.Helper()

	env := map[ir.Value]uint64{}

	for _, p := range f.In {
		v, ok := args[p.Name()]
		require.True(t, ok, "missing argument %%%v", p.Name())
		env[p] = v
	}

	get := func(v ir.Value) uint64 {
		if c, ok := v.(*ir.Const); ok {
			return uint64(c.Val)
		}

		x, ok := env[v]
		require.True(t, ok, "%%%v evaluated before its definition", v.Name())

		return x
	}

	sext := func(v uint64, typ tp.Type) int64 {
		bits := int(typ.(tp.Int).Bits)
		if bits == 64 {
			return int64(v)
		}

		sh := 64 - bits

		return int64(v) << sh >> sh
	}

	blk := f.Entry()

	var prev *ir.Block

	for steps := 0; steps < 1000; steps++ {
		var next *ir.Block

		for _, x := range blk.Code {
			switch x.Op {
			case ir.Addr:
				terms, konst := x.Strides()
				off := konst

				for _, tm := range terms {
					off += sext(get(tm.Index), tm.Index.Type()) * tm.Size
				}

				env[x] = get(x.Base()) + uint64(off)
			case ir.PtrToInt, ir.IntToPtr:
				env[x] = get(x.Args[0])
			case ir.SExt:
				env[x] = uint64(sext(get(x.Args[0]), x.Args[0].Type()))
			case ir.Add:
				env[x] = get(x.Args[0]) + get(x.Args[1])
			case ir.Sub:
				env[x] = get(x.Args[0]) - get(x.Args[1])
			case ir.Mul:
				env[x] = get(x.Args[0]) * get(x.Args[1])
			case ir.And:
				env[x] = get(x.Args[0]) & get(x.Args[1])
			case ir.Shl:
				env[x] = get(x.Args[0]) << (get(x.Args[1]) & 63)
			case ir.LShr:
				env[x] = get(x.Args[0]) >> (get(x.Args[1]) & 63)
			case ir.Neg:
				env[x] = -get(x.Args[0])
			case ir.Load:
				env[x] = get(x.Args[0])
			case ir.Store:
			case ir.Phi:
				for i, in := range x.Incoming {
					if in == prev {
						env[x] = get(x.Args[i])
					}
				}
			case ir.Br:
				next = x.To
			case ir.CondBr:
				if get(x.Args[0])&1 != 0 {
					next = x.To
				} else {
					next = x.Alt
				}
			case ir.Ret:
				if len(x.Args) == 0 {
					return 0
				}

				return get(x.Args[0])
			default:
				t.Fatalf("cannot evaluate %v", x.Op)
			}
		}

		prev, blk = blk, next
	}

	t.Fatal("function did not return")

	return 0
}

const lowMask = uint64(1)<<EnableBit - 1

const constAddr = `func @f(i64* %p) i64* #canonptr {
entry:
	%q = addr i64, %p, i64 3
	ret %q
}
`

func TestTagEnabled(t *testing.T) {
	m := instrument(t, constAddr)
	f := m.Func("f")

	base := uint64(1)<<EnableBit | 0x1000

	got := eval(t, f, map[string]uint64{"p": base})
	want := base + 24 + 24<<TagShift

	assert.Equal(t, want, got)
	assert.Equal(t, (base+24)&lowMask, got&lowMask, "tagging never touches the low 48 bits")
}

func TestCanonicalUnchanged(t *testing.T) {
	m := instrument(t, constAddr)
	f := m.Func("f")

	for _, base := range []uint64{0x1000, 0x7fff_ffff_0000, 1} {
		got := eval(t, f, map[string]uint64{"p": base})
		assert.Equal(t, base+24, got, "base %#x", base)
	}
}

func TestDynamicOffset(t *testing.T) {
	const text = `func @f(i64* %p, i64 %n) i64* #canonptr {
entry:
	%q = addr i64, %p, %n
	ret %q
}
`

	m := instrument(t, text)
	f := m.Func("f")

	base := uint64(1)<<EnableBit | 0x2000

	got := eval(t, f, map[string]uint64{"p": base, "n": 5})
	assert.Equal(t, base+40+40<<TagShift, got)

	got = eval(t, f, map[string]uint64{"p": 0x2000, "n": 5})
	assert.Equal(t, uint64(0x2000+40), got)
}

func TestNarrowIndexSignExtends(t *testing.T) {
	const text = `func @f(i64* %p, i32 %n) i64* #canonptr {
entry:
	%q = addr i64, %p, %n
	ret %q
}
`

	m := instrument(t, text)
	f := m.Func("f")

	base := uint64(1)<<EnableBit | 0x4000
	n := uint64(0xffff_ffff) // -1 as i32

	off := uint64(0xfffffffffffffff8) // -8

	got := eval(t, f, map[string]uint64{"p": base, "n": n})
	assert.Equal(t, base+off+off<<TagShift, got)
}

func TestStructWalkOffset(t *testing.T) {
	const text = `func @f({i64, i32, i64}* %p, i64 %n) i64* #canonptr {
entry:
	%q = addr {i64, i32, i64}, %p, %n, i64 2
	ret %q
}
`

	m := instrument(t, text)
	f := m.Func("f")

	base := uint64(1)<<EnableBit | 0x8000

	got := eval(t, f, map[string]uint64{"p": base, "n": 2})
	off := uint64(2*24 + 16)
	assert.Equal(t, base+off+off<<TagShift, got)
}

func TestWideOffsetWraps(t *testing.T) {
	// An offset of 1<<15 shifts entirely out of the word: the tag
	// region holds only 15 bits and larger displacements wrap away
	// silently. Pinned here on purpose, not endorsed.
	const text = `func @f(i64* %p) i64* #canonptr {
entry:
	%q = addr i64, %p, i64 4096
	ret %q
}
`

	m := instrument(t, text)
	f := m.Func("f")

	base := uint64(1)<<EnableBit | 0x1000

	got := eval(t, f, map[string]uint64{"p": base})
	assert.Equal(t, base+32768, got)
}

func countOp(f *ir.Func, op ir.Op) (n int) {
	for _, b := range f.Blocks {
		for _, x := range b.Code {
			if x.Op == op {
				n++
			}
		}
	}

	return n
}

func TestZeroOffsetElided(t *testing.T) {
	const text = `func @f([4 x i64]* %p) i64* #canonptr {
entry:
	%q = addr [4 x i64], %p, i64 0, i64 0
	ret %q
}
`

	m := instrument(t, text)
	f := m.Func("f")

	assert.Equal(t, 0, countOp(f, ir.PtrToInt))

	q := f.Entry().Code[0]
	ret := f.Entry().Term()
	assert.Same(t, q, ret.Args[0], "consumers keep the original result")
}

func TestVtableExcluded(t *testing.T) {
	for _, tc := range []struct {
		name string
		text string
	}{
		{"base name", `func @f(i64** %vtable.ptr) i64** #canonptr {
entry:
	%q = addr i64*, %vtable.ptr, i64 1
	ret %q
}
`},
		{"vbase offset index", `func @f(i64* %p, i64 %vbase.offset.v) i64* #canonptr {
entry:
	%q = addr i64, %p, %vbase.offset.v
	ret %q
}
`},
		{"vtable global", `global @_ZTV3Foo {i64, i64}

func @f() i64* #canonptr {
entry:
	%q = addr {i64, i64}, @_ZTV3Foo, i64 0, i64 1
	ret %q
}
`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m := instrument(t, tc.text)
			assert.Equal(t, 0, countOp(m.Func("f"), ir.PtrToInt))
		})
	}
}

func TestVectorResultSkipped(t *testing.T) {
	const text = `func @f(<2 x i64*> %ps, i64 %n) <2 x i64*> #canonptr {
entry:
	%qs = addr i64, %ps, %n
	ret %qs
}
`

	m := instrument(t, text)
	assert.Equal(t, 0, countOp(m.Func("f"), ir.PtrToInt))
}

func TestUseClosure(t *testing.T) {
	const text = `func @f(i64* %p, i64 %n) i64 #canonptr {
entry:
	%q = addr i64, %p, i64 3
	%a = load %q
	store %a, %q
	ret %a
}
`

	m := instrument(t, text)
	f := m.Func("f")

	q := f.Entry().Code[0]
	require.Equal(t, ir.Addr, q.Op)

	users := q.Users()
	require.Len(t, users, 1, "only the encoding sequence keeps using the original result")
	assert.Equal(t, ir.PtrToInt, users[0].Op)

	for _, u := range users[0].Users() {
		assert.NotEqual(t, ir.Load, u.Op)
	}
}

func TestShouldInstrument(t *testing.T) {
	const text = `decl func @d(i64) i64

func @plain(i64* %p) #canonptr {
entry:
	ret
}

func @ok(i64* %p) i64* #canonptr {
entry:
	%q = addr i64, %p, i64 1
	ret %q
}

func @unmarked(i64* %p) i64* {
entry:
	%q = addr i64, %p, i64 1
	ret %q
}

func @optout(i64* %p) i64* #canonptr #nosanitize {
entry:
	%q = addr i64, %p, i64 1
	ret %q
}

func @inlined(i64* %p) i64* available_externally #canonptr {
entry:
	%q = addr i64, %p, i64 1
	ret %q
}

func @__canonptr_remap(i64* %p) i64* #canonptr {
entry:
	%q = addr i64, %p, i64 1
	ret %q
}
`

	m := parseMod(t, text)
	p := New()

	want := map[string]bool{
		"d":                false,
		"plain":            false, // logically empty body
		"ok":               true,
		"unmarked":         false,
		"optout":           false,
		"inlined":          false,
		"__canonptr_remap": false,
	}

	for name, w := range want {
		f := m.Func(name)
		require.NotNil(t, f, name)
		assert.Equal(t, w, p.shouldInstrument(f), name)
	}

	require.NoError(t, p.RunModule(context.Background(), m))
	require.NoError(t, ir.Verify(m))

	assert.Equal(t, 1, countOp(m.Func("ok"), ir.PtrToInt))
	assert.Equal(t, 0, countOp(m.Func("unmarked"), ir.PtrToInt))
	assert.Equal(t, 0, countOp(m.Func("__canonptr_remap"), ir.PtrToInt))
}
