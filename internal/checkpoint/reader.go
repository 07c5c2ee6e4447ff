package checkpoint

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/naresrac/CNTK/internal/learner"
	"github.com/naresrac/CNTK/internal/tensor"
	"k8s.io/klog/v2"
)

// fixedHeader is the decoded 64-byte prefix.
type fixedHeader struct {
	flags      uint32
	headerSize uint64
	dataSize   uint64
	checksum   [ChecksumSize]byte
}

func parseFixedHeader(b []byte) (*fixedHeader, error) {
	if len(b) < FixedHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes, fixed header needs %d", ErrTruncated, len(b), FixedHeaderSize)
	}
	if string(b[0:4]) != MagicBytes {
		return nil, ErrInvalidMagic
	}
	if v := binary.LittleEndian.Uint32(b[4:8]); v != FormatVersion {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, v, FormatVersion)
	}
	h := &fixedHeader{
		flags:      binary.LittleEndian.Uint32(b[8:12]),
		headerSize: binary.LittleEndian.Uint64(b[16:24]),
		dataSize:   binary.LittleEndian.Uint64(b[24:32]),
	}
	copy(h.checksum[:], b[ChecksumOffset:ChecksumOffset+ChecksumSize])
	if h.headerSize > MaxHeaderSize {
		return nil, ErrHeaderTooLarge
	}
	if h.dataSize > 1<<50 {
		return nil, fmt.Errorf("%w: data size %d", ErrCorrupt, h.dataSize)
	}
	return h, nil
}

func parseHeader(fixed *fixedHeader, headerJSON []byte) (*Header, error) {
	var h Header
	if err := json.Unmarshal(headerJSON, &h); err != nil {
		return nil, fmt.Errorf("%w: header JSON: %w", ErrCorrupt, err)
	}
	if h.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: header declares version %d", ErrUnsupportedVersion, h.FormatVersion)
	}
	h.Flags = fixed.flags
	h.DataSize = int64(fixed.dataSize)
	h.Checksum = fixed.checksum
	if err := validateTensorTable(h.Tensors, h.DataSize); err != nil {
		return nil, err
	}
	if err := validateReferences(&h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Decode parses a complete checkpoint held in memory.
func Decode(buf []byte) (*Snapshot, error) {
	fixed, err := parseFixedHeader(buf)
	if err != nil {
		return nil, err
	}
	headerEnd := int64(FixedHeaderSize) + int64(fixed.headerSize)
	dataStart := headerEnd + padTo(headerEnd)
	want := dataStart + int64(fixed.dataSize)
	switch {
	case int64(len(buf)) < want:
		return nil, fmt.Errorf("%w: %d bytes, expected %d", ErrTruncated, len(buf), want)
	case int64(len(buf)) > want:
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, int64(len(buf))-want)
	}
	header, err := parseHeader(fixed, buf[FixedHeaderSize:headerEnd])
	if err != nil {
		return nil, err
	}
	data := buf[dataStart:]
	if sha256.Sum256(data) != fixed.checksum {
		return nil, ErrChecksumMismatch
	}
	return buildSnapshot(header, data)
}

// Load reads and fully verifies the checkpoint at path.
func Load(path string) (*Snapshot, error) {
	//nolint:gosec // G304: checkpoint paths are chosen by the user
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, ioErrorf(err, "reading %s", path)
	}
	snap, err := Decode(buf)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	klog.V(1).Infof("loaded checkpoint %s (run %s, %d samples seen)", path, snap.RunID, snap.Progress.SamplesSeen)
	return snap, nil
}

// Inspect reads only the fixed and JSON headers of the checkpoint at path.
// The data section is neither read nor checksummed.
func Inspect(path string) (*Header, error) {
	//nolint:gosec // G304: checkpoint paths are chosen by the user
	f, err := os.Open(path)
	if err != nil {
		return nil, ioErrorf(err, "opening %s", path)
	}
	defer func() { _ = f.Close() }()

	prefix := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(f, prefix); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: reading fixed header of %s", ErrTruncated, path)
		}
		return nil, ioErrorf(err, "reading %s", path)
	}
	fixed, err := parseFixedHeader(prefix)
	if err != nil {
		return nil, err
	}
	headerJSON := make([]byte, fixed.headerSize)
	if _, err := io.ReadFull(f, headerJSON); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: reading header of %s", ErrTruncated, path)
		}
		return nil, ioErrorf(err, "reading %s", path)
	}
	return parseHeader(fixed, headerJSON)
}

func buildSnapshot(h *Header, data []byte) (*Snapshot, error) {
	tensors := make(map[string]*tensor.RawTensor, len(h.Tensors))
	for _, meta := range h.Tensors {
		dtype, _ := tensor.ParseDataType(meta.DType)
		raw, err := tensor.FromBytes(bytes.Clone(data[meta.Offset:meta.Offset+meta.Size]), tensor.Shape(meta.Shape), dtype)
		if err != nil {
			return nil, &ValidationError{Type: "invalid_tensor", Tensor: meta.Name, Details: err.Error()}
		}
		tensors[meta.Name] = toFloat32(raw)
	}

	snap := &Snapshot{
		RunID:      h.RunID,
		CreatedAt:  h.CreatedAt,
		Parameters: make([]Parameter, len(h.Parameters)),
		Learners:   make([]learner.State, len(h.Learners)),
		Progress:   h.Progress,
		Metadata:   h.Metadata,
	}
	for i, p := range h.Parameters {
		snap.Parameters[i] = Parameter{Name: p.Name, Value: tensors[p.Tensor]}
	}
	for i, l := range h.Learners {
		state := learner.State{
			Kind:     l.Kind,
			Counters: l.Counters,
			Tensors:  make(map[string]*tensor.RawTensor, len(l.Tensors)),
		}
		if state.Counters == nil {
			state.Counters = map[string]int64{}
		}
		for key, name := range l.Tensors {
			state.Tensors[key] = tensors[name]
		}
		snap.Learners[i] = state
	}
	return snap, nil
}
