package checkpoint

import (
	"fmt"
	"sort"
	"strings"

	"github.com/naresrac/CNTK/internal/tensor"
)

// Validation limits.
const (
	MaxHeaderSize    = 64 * 1024 * 1024
	MaxTensorCount   = 100_000
	MaxTensorNameLen = 1024
)

// validateTensorName rejects empty, oversized and path-like names.
func validateTensorName(name string) error {
	switch {
	case name == "":
		return &ValidationError{Type: "invalid_name", Details: "empty tensor name"}
	case len(name) > MaxTensorNameLen:
		return &ValidationError{Type: "name_too_long", Tensor: name,
			Details: fmt.Sprintf("length %d > max %d", len(name), MaxTensorNameLen)}
	case strings.Contains(name, ".."), strings.ContainsAny(name, "/\\\x00"):
		return &ValidationError{Type: "invalid_name", Tensor: name, Details: "contains a path element or null byte"}
	}
	return nil
}

// validateTensorTable checks names, dtypes, sizes and that the tensors tile
// the data section without overlap or gaps past its end.
func validateTensorTable(tensors []TensorMeta, dataSize int64) error {
	if len(tensors) > MaxTensorCount {
		return &ValidationError{Type: "too_many_tensors",
			Details: fmt.Sprintf("got %d, max %d", len(tensors), MaxTensorCount)}
	}
	names := make(map[string]bool, len(tensors))
	for _, t := range tensors {
		if err := validateTensorName(t.Name); err != nil {
			return err
		}
		if names[t.Name] {
			return &ValidationError{Type: "duplicate_tensor", Tensor: t.Name, Details: "listed twice"}
		}
		names[t.Name] = true
		dtype, ok := tensor.ParseDataType(t.DType)
		if !ok {
			return &ValidationError{Type: "invalid_dtype", Tensor: t.Name, Details: fmt.Sprintf("unknown dtype %q", t.DType)}
		}
		shape := tensor.Shape(t.Shape)
		if err := shape.Validate(); err != nil {
			return &ValidationError{Type: "invalid_shape", Tensor: t.Name, Details: err.Error()}
		}
		want, ok := byteSize(shape, dtype.Size(), dataSize)
		if !ok {
			return &ValidationError{Type: "invalid_shape", Tensor: t.Name,
				Details: fmt.Sprintf("shape %v of %s does not fit in data_size %d", t.Shape, t.DType, dataSize)}
		}
		if t.Size != want {
			return &ValidationError{Type: "size_mismatch", Tensor: t.Name,
				Details: fmt.Sprintf("size %d, shape %v of %s needs %d", t.Size, t.Shape, t.DType, want)}
		}
	}

	sorted := make([]TensorMeta, len(tensors))
	copy(sorted, tensors)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })
	for i, t := range sorted {
		if t.Offset < 0 || t.Size < 0 {
			return &ValidationError{Type: "negative_offset", Tensor: t.Name,
				Details: fmt.Sprintf("offset=%d, size=%d", t.Offset, t.Size)}
		}
		if t.Offset+t.Size > dataSize {
			return &ValidationError{Type: "out_of_bounds", Tensor: t.Name,
				Details: fmt.Sprintf("offset %d + size %d > data_size %d", t.Offset, t.Size, dataSize)}
		}
		if i < len(sorted)-1 {
			next := sorted[i+1]
			if t.Offset+t.Size > next.Offset {
				return &ValidationError{Type: "offset_overlap", Tensor: t.Name, Tensor2: next.Name,
					Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap",
						t.Offset, t.Offset+t.Size, next.Offset, next.Offset+next.Size)}
			}
		}
	}
	return nil
}

// byteSize returns the byte size of shape with elemSize-byte elements, false
// if it exceeds limit. Dimensions must already be positive.
func byteSize(shape tensor.Shape, elemSize int, limit int64) (int64, bool) {
	size := int64(elemSize)
	if size > limit {
		return 0, false
	}
	for _, dim := range shape {
		if int64(dim) > limit/size {
			return 0, false
		}
		size *= int64(dim)
	}
	return size, true
}

// validateReferences checks that parameter and learner entries name tensors
// present in the table.
func validateReferences(h *Header) error {
	names := make(map[string]bool, len(h.Tensors))
	for _, t := range h.Tensors {
		names[t.Name] = true
	}
	for _, p := range h.Parameters {
		if !names[p.Tensor] {
			return &ValidationError{Type: "missing_tensor", Tensor: p.Tensor,
				Details: fmt.Sprintf("referenced by parameter %q", p.Name)}
		}
	}
	for i, l := range h.Learners {
		if l.Kind == "" {
			return &ValidationError{Type: "invalid_learner", Details: fmt.Sprintf("learner #%d has no kind", i)}
		}
		for key, name := range l.Tensors {
			if !names[name] {
				return &ValidationError{Type: "missing_tensor", Tensor: name,
					Details: fmt.Sprintf("referenced by learner #%d state %q", i, key)}
			}
		}
	}
	return nil
}
