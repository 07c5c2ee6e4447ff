// Copyright 2025 The CNTK Trainer Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the dense tensors that hold parameter values,
// gradients and learner state.
//
// Tensors are row-major byte buffers tagged with a shape and a data type.
// Parameters are float32; float16 only appears in half-precision
// checkpoints.
//
//	w, _ := tensor.FromFloat32([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
//	fmt.Println(w.Shape(), w.DType(), w.AsFloat32())
package tensor
