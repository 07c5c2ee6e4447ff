package checkpoint_test

import (
	"crypto/sha256"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/naresrac/CNTK/internal/checkpoint"
	"github.com/naresrac/CNTK/internal/learner"
	"github.com/naresrac/CNTK/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raw(t *testing.T, shape tensor.Shape, values ...float32) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.FromFloat32(values, shape)
	require.NoError(t, err)
	return r
}

func sampleSnapshot(t *testing.T) *checkpoint.Snapshot {
	return &checkpoint.Snapshot{
		Parameters: []checkpoint.Parameter{
			{Name: "W", Value: raw(t, tensor.Shape{2, 2}, 0.1, -0.2, 0.3, 1e-7)},
			{Name: "b", Value: raw(t, tensor.Shape{2}, 5, -5)},
		},
		Learners: []learner.State{{
			Kind:     "momentum_sgd",
			Counters: map[string]int64{"samples_seen": 40, "updates": 2},
			Tensors:  map[string]*tensor.RawTensor{"velocity.0": raw(t, tensor.Shape{2, 2}, 1, 2, 3, 4)},
		}},
		Progress: checkpoint.Progress{SamplesSeen: 40, Minibatches: 2},
		Metadata: map[string]string{"model": "dense"},
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.ckpt")
	snap := sampleSnapshot(t)
	require.NoError(t, checkpoint.Save(path, snap))

	got, err := checkpoint.Load(path)
	require.NoError(t, err)
	require.Len(t, got.Parameters, 2)
	assert.Equal(t, "W", got.Parameters[0].Name)
	assert.Equal(t, snap.Parameters[0].Value.Data(), got.Parameters[0].Value.Data(), "parameters must be bit-exact")
	assert.Equal(t, tensor.Shape{2}, got.Parameters[1].Value.Shape())
	require.Len(t, got.Learners, 1)
	assert.Equal(t, "momentum_sgd", got.Learners[0].Kind)
	assert.Equal(t, int64(40), got.Learners[0].Counters["samples_seen"])
	assert.Equal(t, []float32{1, 2, 3, 4}, got.Learners[0].Tensors["velocity.0"].AsFloat32())
	assert.Equal(t, checkpoint.Progress{SamplesSeen: 40, Minibatches: 2}, got.Progress)
	assert.Equal(t, "dense", got.Metadata["model"])
	assert.NotEmpty(t, got.RunID)
}

func TestSave_DataIsAligned(t *testing.T) {
	buf, err := checkpoint.Encode(sampleSnapshot(t))
	require.NoError(t, err)
	headerSize := binary.LittleEndian.Uint64(buf[16:24])
	dataSize := binary.LittleEndian.Uint64(buf[24:32])
	dataStart := uint64(len(buf)) - dataSize
	assert.Zero(t, dataStart%checkpoint.Alignment)
	assert.GreaterOrEqual(t, dataStart, uint64(checkpoint.FixedHeaderSize)+headerSize)
	assert.Equal(t, checkpoint.MagicBytes, string(buf[:4]))
}

func TestLoad_Corruption(t *testing.T) {
	good, err := checkpoint.Encode(sampleSnapshot(t))
	require.NoError(t, err)

	cases := map[string]struct {
		mutate func([]byte) []byte
		want   error
	}{
		"truncated data": {
			mutate: func(b []byte) []byte { return b[:len(b)-3] },
			want:   checkpoint.ErrTruncated,
		},
		"truncated header": {
			mutate: func(b []byte) []byte { return b[:20] },
			want:   checkpoint.ErrTruncated,
		},
		"flipped data byte": {
			mutate: func(b []byte) []byte { b[len(b)-1] ^= 0xFF; return b },
			want:   checkpoint.ErrChecksumMismatch,
		},
		"bad magic": {
			mutate: func(b []byte) []byte { copy(b, "NOPE"); return b },
			want:   checkpoint.ErrInvalidMagic,
		},
		"future version": {
			mutate: func(b []byte) []byte { binary.LittleEndian.PutUint32(b[4:8], 99); return b },
			want:   checkpoint.ErrUnsupportedVersion,
		},
		"trailing garbage": {
			mutate: func(b []byte) []byte { return append(b, 0) },
			want:   checkpoint.ErrCorrupt,
		},
		"broken JSON": {
			mutate: func(b []byte) []byte { b[checkpoint.FixedHeaderSize] = '['; return b },
			want:   checkpoint.ErrCorrupt,
		},
		"shape overflows element count": {
			mutate: func([]byte) []byte {
				return forgeCheckpoint(`{"format_version":1,`+
					`"tensors":[{"name":"param.0","dtype":"float16","shape":[4611686018427387904,4],"offset":0,"size":0}],`+
					`"parameters":[{"name":"w","tensor":"param.0"}]}`, nil)
			},
			want: checkpoint.ErrCorrupt,
		},
		"shape larger than data": {
			mutate: func([]byte) []byte {
				return forgeCheckpoint(`{"format_version":1,`+
					`"tensors":[{"name":"param.0","dtype":"float32","shape":[1000,1000],"offset":0,"size":4000000}],`+
					`"parameters":[{"name":"w","tensor":"param.0"}]}`, make([]byte, 8))
			},
			want: checkpoint.ErrCorrupt,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			buf := tc.mutate(append([]byte(nil), good...))
			path := filepath.Join(t.TempDir(), "bad.ckpt")
			require.NoError(t, os.WriteFile(path, buf, 0o600))

			_, err := checkpoint.Load(path)
			require.ErrorIs(t, err, tc.want)
			require.ErrorIs(t, err, checkpoint.ErrCorrupt)
		})
	}
}

// forgeCheckpoint assembles a file around an arbitrary JSON header with a
// valid fixed header and checksum.
func forgeCheckpoint(headerJSON string, data []byte) []byte {
	fixed := make([]byte, checkpoint.FixedHeaderSize)
	copy(fixed, checkpoint.MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], checkpoint.FormatVersion)
	binary.LittleEndian.PutUint64(fixed[16:24], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixed[24:32], uint64(len(data)))
	sum := sha256.Sum256(data)
	copy(fixed[checkpoint.ChecksumOffset:], sum[:])

	buf := append(fixed, headerJSON...)
	if rem := len(buf) % checkpoint.Alignment; rem != 0 {
		buf = append(buf, make([]byte, checkpoint.Alignment-rem)...)
	}
	return append(buf, data...)
}

func TestLoad_InvalidShapeIsValidationError(t *testing.T) {
	buf := forgeCheckpoint(`{"format_version":1,`+
		`"tensors":[{"name":"param.0","dtype":"float16","shape":[4611686018427387904,4],"offset":0,"size":0}],`+
		`"parameters":[{"name":"w","tensor":"param.0"}]}`, nil)
	_, err := checkpoint.Decode(buf)
	var verr *checkpoint.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "invalid_shape", verr.Type)
	assert.Equal(t, "param.0", verr.Tensor)
}

func TestLoad_MissingFileIsIO(t *testing.T) {
	_, err := checkpoint.Load(filepath.Join(t.TempDir(), "absent.ckpt"))
	require.ErrorIs(t, err, checkpoint.ErrIO)
	require.NotErrorIs(t, err, checkpoint.ErrCorrupt)
}

func TestSave_UnwritableDirIsIO(t *testing.T) {
	err := checkpoint.Save(filepath.Join(t.TempDir(), "missing", "x.ckpt"), sampleSnapshot(t))
	require.ErrorIs(t, err, checkpoint.ErrIO)
}

func TestSave_ReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.ckpt")
	snap := sampleSnapshot(t)
	require.NoError(t, checkpoint.Save(path, snap))
	snap.Progress.SamplesSeen = 80
	require.NoError(t, checkpoint.Save(path, snap))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
	got, err := checkpoint.Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(80), got.Progress.SamplesSeen)
}

func TestSave_HalfPrecisionParameters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "half.ckpt")
	snap := sampleSnapshot(t)
	require.NoError(t, checkpoint.Save(path, snap, checkpoint.WithHalfPrecisionParameters()))

	header, err := checkpoint.Inspect(path)
	require.NoError(t, err)
	assert.NotZero(t, header.Flags&checkpoint.FlagHalfPrecision)
	for _, meta := range header.Tensors {
		if meta.Name == "learner.0.velocity.0" {
			assert.Equal(t, "float32", meta.DType)
		} else {
			assert.Equal(t, "float16", meta.DType, meta.Name)
		}
	}

	got, err := checkpoint.Load(path)
	require.NoError(t, err)
	assert.Equal(t, tensor.Float32, got.Parameters[0].Value.DType())
	assert.InDeltaSlice(t, snap.Parameters[0].Value.AsFloat32(), got.Parameters[0].Value.AsFloat32(), 1e-3)
	assert.Equal(t, []float32{5, -5}, got.Parameters[1].Value.AsFloat32())
}

func TestInspect_ReadsHeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.ckpt")
	require.NoError(t, checkpoint.Save(path, sampleSnapshot(t)))

	// A corrupted data section does not affect Inspect.
	buf, err := os.ReadFile(path)
	require.NoError(t, err)
	buf[len(buf)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, buf, 0o600))

	header, err := checkpoint.Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.FormatVersion, header.FormatVersion)
	assert.Len(t, header.Tensors, 3)
	assert.Equal(t, []checkpoint.ParameterMeta{{Name: "W", Tensor: "param.0"}, {Name: "b", Tensor: "param.1"}}, header.Parameters)
	assert.Equal(t, int64(40), header.Progress.SamplesSeen)
}

func TestValidationError_Message(t *testing.T) {
	err := &checkpoint.ValidationError{Type: "offset_overlap", Tensor: "a", Tensor2: "b", Details: "x"}
	assert.Equal(t, `offset_overlap: tensors "a" and "b": x`, err.Error())
	assert.ErrorIs(t, err, checkpoint.ErrCorrupt)
}

func TestRotator_KeepsLastN(t *testing.T) {
	r, err := checkpoint.NewRotator(filepath.Join(t.TempDir(), "ckpts"), 2)
	require.NoError(t, err)

	_, ok, err := r.Latest()
	require.NoError(t, err)
	assert.False(t, ok)

	snap := sampleSnapshot(t)
	for _, step := range []int64{5, 10, 20, 30} {
		_, err := r.Save(step, snap)
		require.NoError(t, err)
	}
	entries, err := r.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(20), entries[0].Step)
	assert.Equal(t, int64(30), entries[1].Step)

	latest, ok, err := r.Latest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, r.Path(30), latest.Path)
}

func TestRotator_SaveKeepsFreshFileOverLeftovers(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ckpts")
	r, err := checkpoint.NewRotator(dir, 3)
	require.NoError(t, err)

	// Leftovers from an earlier, longer run in the same directory.
	snap := sampleSnapshot(t)
	for _, step := range []int64{10, 200, 250, 300} {
		require.NoError(t, checkpoint.Save(r.Path(step), snap))
	}

	path, err := r.Save(50, snap)
	require.NoError(t, err)
	assert.FileExists(t, path)

	entries, err := r.List()
	require.NoError(t, err)
	steps := make([]int64, len(entries))
	for i, e := range entries {
		steps[i] = e.Step
	}
	assert.Equal(t, []int64{10, 50}, steps)

	latest, ok, err := r.Latest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, path, latest.Path)
}
