package tensor

import (
	"fmt"
	"unsafe"
)

// RawTensor is the low-level tensor representation: a shaped, typed byte
// buffer. Parameters, gradients and learner state are all RawTensors.
type RawTensor struct {
	data   []byte
	shape  Shape
	dtype  DataType
	device Device
}

// NewRaw creates a new RawTensor with the given shape and type.
// Memory is allocated and zeroed.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	return &RawTensor{
		data:   make([]byte, shape.NumElements()*dtype.Size()),
		shape:  shape.Clone(),
		dtype:  dtype,
		device: device,
	}, nil
}

// Zeros returns a zeroed float32 CPU tensor. It panics on an invalid shape,
// which callers only build from already validated shapes.
func Zeros(shape Shape) *RawTensor {
	raw, err := NewRaw(shape, Float32, CPU)
	if err != nil {
		panic(err)
	}
	return raw
}

// FromFloat32 creates a float32 CPU tensor holding a copy of data.
func FromFloat32(data []float32, shape Shape) (*RawTensor, error) {
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("data length %d does not match shape %s (%d elements)",
			len(data), shape, shape.NumElements())
	}
	raw, err := NewRaw(shape, Float32, CPU)
	if err != nil {
		return nil, err
	}
	copy(raw.AsFloat32(), data)
	return raw, nil
}

// FromBytes wraps an already encoded buffer. The buffer is not copied.
func FromBytes(data []byte, shape Shape, dtype DataType) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if want := shape.NumElements() * dtype.Size(); len(data) != want {
		return nil, fmt.Errorf("buffer holds %d bytes, shape %s of %s needs %d", len(data), shape, dtype, want)
	}
	return &RawTensor{data: data, shape: shape.Clone(), dtype: dtype, device: CPU}, nil
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// Device returns the tensor's compute device.
func (r *RawTensor) Device() Device {
	return r.device
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (r *RawTensor) ByteSize() int {
	return r.NumElements() * r.dtype.Size()
}

// Data returns the raw byte slice.
// WARNING: Direct access to underlying memory. Use with caution.
func (r *RawTensor) Data() []byte {
	return r.data
}

// AsFloat32 interprets the data as []float32.
// Panics if the tensor's dtype is not Float32.
func (r *RawTensor) AsFloat32() []float32 {
	if r.dtype != Float32 {
		panic(fmt.Sprintf("tensor dtype is %s, not float32", r.dtype))
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds checked by NumElements()
	return unsafe.Slice((*float32)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// Clone returns a deep copy with its own buffer.
func (r *RawTensor) Clone() *RawTensor {
	data := make([]byte, len(r.data))
	copy(data, r.data)
	return &RawTensor{
		data:   data,
		shape:  r.shape.Clone(),
		dtype:  r.dtype,
		device: r.device,
	}
}

// CopyFrom overwrites r's contents with src's. Shapes and dtypes must match.
func (r *RawTensor) CopyFrom(src *RawTensor) error {
	if !r.shape.Equal(src.shape) || r.dtype != src.dtype {
		return fmt.Errorf("cannot copy %s%s into %s%s", src.dtype, src.shape, r.dtype, r.shape)
	}
	copy(r.data, src.data)
	return nil
}
