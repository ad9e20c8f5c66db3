package tp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSizes(t *testing.T) {
	assert.Equal(t, 1, I1.Size())
	assert.Equal(t, 1, I8.Size())
	assert.Equal(t, 4, I32.Size())
	assert.Equal(t, 8, I64.Size())

	assert.Equal(t, 8, Ptr{X: I8}.Size())
	assert.Equal(t, 32, Array{X: I64, Len: 4}.Size())
	assert.Equal(t, 16, Vector{X: I32, Len: 4}.Size())
}

func TestStructLayout(t *testing.T) {
	s := MakeStruct(
		StructField{Name: "a", Type: I64},
		StructField{Name: "b", Type: I32},
		StructField{Name: "c", Type: I64},
	)

	assert.Equal(t, int64(0), s.Fields[0].Offset)
	assert.Equal(t, int64(8), s.Fields[1].Offset)
	assert.Equal(t, int64(16), s.Fields[2].Offset, "c is aligned past the padding after b")

	assert.Equal(t, 24, s.Size())
	assert.Equal(t, 8, s.Align())
}

func TestPackedTail(t *testing.T) {
	s := MakeStruct(
		StructField{Name: "a", Type: I32},
		StructField{Name: "b", Type: I8},
	)

	assert.Equal(t, int64(4), s.Fields[1].Offset)
	assert.Equal(t, 8, s.Size(), "size is rounded up to the alignment")
}

func TestString(t *testing.T) {
	assert.Equal(t, "i64", I64.String())
	assert.Equal(t, "i64*", Ptr{X: I64}.String())
	assert.Equal(t, "[4 x i64]*", Ptr{X: Array{X: I64, Len: 4}}.String())
	assert.Equal(t, "<2 x i64*>", Vector{X: Ptr{X: I64}, Len: 2}.String())
	assert.Equal(t, "{i64, i32}", MakeStruct(StructField{Type: I64}, StructField{Type: I32}).String())
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(Ptr{X: I64}, Ptr{X: I64}))
	assert.False(t, Equal(Ptr{X: I64}, Ptr{X: I32}))
	assert.True(t, Equal(Array{X: I8, Len: 3}, Array{X: I8, Len: 3}))
	assert.False(t, Equal(Array{X: I8, Len: 3}, Vector{X: I8, Len: 3}))
}
