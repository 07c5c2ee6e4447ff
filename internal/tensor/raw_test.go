package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawTensorAsFloat32ZeroCopy(t *testing.T) {
	raw, err := NewRaw(Shape{3, 2}, Float32, CPU)
	require.NoError(t, err)
	data := raw.AsFloat32()
	require.Len(t, data, 6)

	data[0] = 42
	assert.Equal(t, float32(42), raw.AsFloat32()[0], "AsFloat32 should return zero-copy slice")
	assert.Equal(t, 24, raw.ByteSize())
}

func TestRawTensorInvalidShape(t *testing.T) {
	_, err := NewRaw(Shape{2, 0}, Float32, CPU)
	assert.Error(t, err)
}

func TestFromFloat32LengthMismatch(t *testing.T) {
	_, err := FromFloat32([]float32{1, 2, 3}, Shape{2, 2})
	assert.Error(t, err)
}

func TestRawTensorCloneIsDeep(t *testing.T) {
	a, err := FromFloat32([]float32{1, 2}, Shape{2})
	require.NoError(t, err)
	b := a.Clone()
	b.AsFloat32()[0] = 7
	assert.Equal(t, float32(1), a.AsFloat32()[0])
	assert.True(t, a.Shape().Equal(b.Shape()))
}

func TestRawTensorCopyFrom(t *testing.T) {
	dst := Zeros(Shape{2})
	src, _ := FromFloat32([]float32{3, 4}, Shape{2})
	require.NoError(t, dst.CopyFrom(src))
	assert.Equal(t, []float32{3, 4}, dst.AsFloat32())

	other := Zeros(Shape{3})
	assert.Error(t, dst.CopyFrom(other))
}

func TestShapeHelpers(t *testing.T) {
	s := Shape{2, 3}
	assert.Equal(t, 6, s.NumElements())
	assert.Equal(t, 1, Shape{}.NumElements())
	assert.Equal(t, "(4, 2, 3)", s.Prepend(4).String())
	assert.Equal(t, "(2, 3)", s.String(), "Prepend must not alias the receiver")
}

func TestDeviceAndDTypeParsing(t *testing.T) {
	for d := CPU; d <= WebGPU; d++ {
		got, ok := ParseDevice(d.String())
		assert.True(t, ok)
		assert.Equal(t, d, got)
	}
	_, ok := ParseDevice("TPU")
	assert.False(t, ok)

	dt, ok := ParseDataType("float16")
	assert.True(t, ok)
	assert.Equal(t, Float16, dt)
	assert.Equal(t, 2, dt.Size())
}
