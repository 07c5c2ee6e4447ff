package checkpoint

import (
	"time"

	"github.com/naresrac/CNTK/internal/learner"
	"github.com/naresrac/CNTK/internal/tensor"
)

// Format constants.
const (
	MagicBytes      = "CKPT"
	FormatVersion   = 1
	Alignment       = 64 // tensor data starts on a 64-byte boundary
	FixedHeaderSize = 64
	ChecksumSize    = 32
	ChecksumOffset  = 0x20
)

// Flags.
const (
	FlagHasLearners   uint32 = 1 << 0
	FlagHalfPrecision uint32 = 1 << 1 // parameter tensors stored as float16
	FlagHasMetadata   uint32 = 1 << 2
)

// Header is the JSON header of a checkpoint file.
type Header struct {
	FormatVersion int               `json:"format_version"`
	RunID         string            `json:"run_id"`
	CreatedAt     time.Time         `json:"created_at"`
	Tensors       []TensorMeta      `json:"tensors"`
	Parameters    []ParameterMeta   `json:"parameters"`
	Learners      []LearnerMeta     `json:"learners"`
	Progress      Progress          `json:"progress"`
	Metadata      map[string]string `json:"metadata,omitempty"`

	// Filled from the fixed header on read.
	Flags    uint32             `json:"-"`
	DataSize int64              `json:"-"`
	Checksum [ChecksumSize]byte `json:"-"`
}

// TensorMeta locates one tensor in the data section.
type TensorMeta struct {
	Name   string `json:"name"`
	DType  string `json:"dtype"`
	Shape  []int  `json:"shape"`
	Offset int64  `json:"offset"` // bytes from the start of the data section
	Size   int64  `json:"size"`
}

// ParameterMeta ties a model parameter, by position and name, to its tensor.
type ParameterMeta struct {
	Name   string `json:"name"`
	Tensor string `json:"tensor"`
}

// LearnerMeta is the serialized form of a learner.State; Tensors maps state
// keys to tensor names.
type LearnerMeta struct {
	Kind     string            `json:"kind"`
	Counters map[string]int64  `json:"counters"`
	Tensors  map[string]string `json:"tensors"`
}

// Progress holds trainer counters.
type Progress struct {
	SamplesSeen int64 `json:"samples_seen"`
	Minibatches int64 `json:"minibatches"`
}

// Parameter is one model parameter value in a Snapshot.
type Parameter struct {
	Name  string
	Value *tensor.RawTensor
}

// Snapshot is the in-memory content of a checkpoint. Parameter and learner
// order is the trainer's order. Loaded tensors are always float32.
type Snapshot struct {
	RunID      string
	CreatedAt  time.Time
	Parameters []Parameter
	Learners   []learner.State
	Progress   Progress
	Metadata   map[string]string
}
