package checkpoint

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/naresrac/CNTK/internal/tensor"
	"github.com/x448/float16"
	"k8s.io/klog/v2"
)

// SaveOption configures Save.
type SaveOption func(*saveOptions)

type saveOptions struct {
	halfPrecision bool
}

// WithHalfPrecisionParameters stores parameter values as float16. The export
// is lossy; learner state is always stored as float32.
func WithHalfPrecisionParameters() SaveOption {
	return func(o *saveOptions) { o.halfPrecision = true }
}

// encoder accumulates the tensor table and the data section.
type encoder struct {
	header Header
	data   bytes.Buffer
}

func (e *encoder) add(name string, raw *tensor.RawTensor) {
	data := raw.Data()
	e.header.Tensors = append(e.header.Tensors, TensorMeta{
		Name:   name,
		DType:  raw.DType().String(),
		Shape:  slices.Clone([]int(raw.Shape())),
		Offset: int64(e.data.Len()),
		Size:   int64(len(data)),
	})
	e.data.Write(data)
}

// Encode serializes snap into the checkpoint byte layout.
func Encode(snap *Snapshot, opts ...SaveOption) ([]byte, error) {
	var o saveOptions
	for _, opt := range opts {
		opt(&o)
	}

	e := &encoder{header: Header{
		FormatVersion: FormatVersion,
		RunID:         snap.RunID,
		CreatedAt:     snap.CreatedAt,
		Parameters:    make([]ParameterMeta, 0, len(snap.Parameters)),
		Learners:      make([]LearnerMeta, 0, len(snap.Learners)),
		Progress:      snap.Progress,
		Metadata:      snap.Metadata,
	}}
	if e.header.RunID == "" {
		e.header.RunID = uuid.NewString()
	}
	if e.header.CreatedAt.IsZero() {
		e.header.CreatedAt = time.Now().UTC()
	}

	for i, p := range snap.Parameters {
		if p.Value == nil {
			return nil, fmt.Errorf("parameter #%d (%s) has no value", i, p.Name)
		}
		name := fmt.Sprintf("param.%d", i)
		value := p.Value
		if o.halfPrecision {
			value = toFloat16(value)
		}
		e.add(name, value)
		e.header.Parameters = append(e.header.Parameters, ParameterMeta{Name: p.Name, Tensor: name})
	}

	for i, state := range snap.Learners {
		meta := LearnerMeta{
			Kind:     state.Kind,
			Counters: state.Counters,
			Tensors:  make(map[string]string, len(state.Tensors)),
		}
		keys := make([]string, 0, len(state.Tensors))
		for key := range state.Tensors {
			keys = append(keys, key)
		}
		slices.Sort(keys)
		for _, key := range keys {
			name := fmt.Sprintf("learner.%d.%s", i, key)
			e.add(name, state.Tensors[key])
			meta.Tensors[key] = name
		}
		e.header.Learners = append(e.header.Learners, meta)
	}

	if err := validateTensorTable(e.header.Tensors, int64(e.data.Len())); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}

	headerJSON, err := json.Marshal(&e.header)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal header: %w", err)
	}
	if len(headerJSON) > MaxHeaderSize {
		return nil, ErrHeaderTooLarge
	}

	var flags uint32
	if len(snap.Learners) > 0 {
		flags |= FlagHasLearners
	}
	if o.halfPrecision {
		flags |= FlagHalfPrecision
	}
	if len(snap.Metadata) > 0 {
		flags |= FlagHasMetadata
	}

	data := e.data.Bytes()
	checksum := sha256.Sum256(data)

	fixed := make([]byte, FixedHeaderSize)
	copy(fixed[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(fixed[8:12], flags)
	binary.LittleEndian.PutUint64(fixed[16:24], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixed[24:32], uint64(len(data)))
	copy(fixed[ChecksumOffset:ChecksumOffset+ChecksumSize], checksum[:])

	pos := int64(FixedHeaderSize + len(headerJSON))
	padding := padTo(pos)

	out := make([]byte, 0, pos+padding+int64(len(data)))
	out = append(out, fixed...)
	out = append(out, headerJSON...)
	out = append(out, make([]byte, padding)...)
	out = append(out, data...)
	return out, nil
}

// Save writes snap to path. The file is written under a temporary name in
// the same directory, synced and renamed, so path either keeps its previous
// content or holds the complete new checkpoint.
func Save(path string, snap *Snapshot, opts ...SaveOption) error {
	buf, err := Encode(snap, opts...)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return ioErrorf(err, "creating temporary file in %s", dir)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(buf); err != nil {
		return ioErrorf(err, "writing %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		return ioErrorf(err, "syncing %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return ioErrorf(err, "closing %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return ioErrorf(err, "renaming %s to %s", tmpName, path)
	}
	committed = true
	klog.V(1).Infof("saved checkpoint %s (%s, %d parameters, %d learners)",
		path, humanize.Bytes(uint64(len(buf))), len(snap.Parameters), len(snap.Learners))
	return nil
}

func padTo(pos int64) int64 {
	return (Alignment - pos%Alignment) % Alignment
}

func toFloat16(raw *tensor.RawTensor) *tensor.RawTensor {
	src := raw.AsFloat32()
	buf := make([]byte, 2*len(src))
	for i, v := range src {
		binary.LittleEndian.PutUint16(buf[2*i:], float16.Fromfloat32(v).Bits())
	}
	out, err := tensor.FromBytes(buf, raw.Shape(), tensor.Float16)
	if err != nil {
		panic(err) // the shape came from a valid tensor
	}
	return out
}

func toFloat32(raw *tensor.RawTensor) *tensor.RawTensor {
	if raw.DType() == tensor.Float32 {
		return raw
	}
	data := raw.Data()
	out := tensor.Zeros(raw.Shape())
	dst := out.AsFloat32()
	for i := range dst {
		dst[i] = float16.Frombits(binary.LittleEndian.Uint16(data[2*i:])).Float32()
	}
	return out
}
