// Package tensor provides the value container shared by the trainer, its
// learners and the checkpoint codec.
//
// It implements no arithmetic; compute is the job of the engine
// behind the trainer. A RawTensor is a shaped, typed byte buffer living on a
// device.
package tensor

// DataType represents runtime type information for tensors.
type DataType int

// Supported data types for tensors.
const (
	Float32 DataType = iota
	// Float16 is a storage-only type used for compact checkpoint exports.
	Float16
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32:
		return 4
	case Float16:
		return 2
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float16:
		return "float16"
	default:
		return "unknown"
	}
}

// ParseDataType converts the String form back into a DataType.
func ParseDataType(s string) (DataType, bool) {
	switch s {
	case "float32":
		return Float32, true
	case "float16":
		return Float16, true
	default:
		return 0, false
	}
}
