// Copyright 2025 The CNTK Trainer Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/naresrac/CNTK/internal/tensor"
)

// Shape is a tensor shape; an empty Shape is a scalar.
type Shape = tensor.Shape

// DataType identifies the element type.
type DataType = tensor.DataType

// Device is where tensor memory lives.
type Device = tensor.Device

// RawTensor is a typed, shaped byte buffer.
type RawTensor = tensor.RawTensor

// Data types.
const (
	Float32 = tensor.Float32
	Float16 = tensor.Float16
)

// CPU is the host memory device.
const CPU = tensor.CPU

// Zeros creates a float32 tensor of zeros.
func Zeros(shape Shape) *RawTensor { return tensor.Zeros(shape) }

// FromFloat32 copies data into a new float32 tensor.
func FromFloat32(data []float32, shape Shape) (*RawTensor, error) {
	return tensor.FromFloat32(data, shape)
}
