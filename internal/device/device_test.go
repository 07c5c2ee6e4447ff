package device

import (
	"testing"

	"github.com/naresrac/CNTK/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultDev = nil
	frozen = false
}

func TestDefaultFreezesOnFirstUse(t *testing.T) {
	resetDefault()
	require.True(t, TrySetDefault(GPU(1)))
	assert.Equal(t, GPU(1), UseDefault())
	assert.False(t, TrySetDefault(CPU()), "default must be frozen after use")
	assert.Equal(t, GPU(1), UseDefault())
	resetDefault()
	assert.Equal(t, CPU(), UseDefault())
}

func TestResolve(t *testing.T) {
	resetDefault()
	d, err := Resolve(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, CPU(), d)

	gpu := GPU(0)
	_, err = Resolve(&gpu, []Descriptor{CPU()})
	assert.ErrorIs(t, err, ErrDevice)

	d, err = Resolve(&gpu, []Descriptor{CPU(), GPU(0)})
	require.NoError(t, err)
	assert.Equal(t, gpu, d)
}

func TestParse(t *testing.T) {
	d, err := Parse("CUDA:2")
	require.NoError(t, err)
	assert.Equal(t, Descriptor{Kind: tensor.CUDA, ID: 2}, d)
	assert.Equal(t, "CUDA:2", d.String())

	d, err = Parse("CPU")
	require.NoError(t, err)
	assert.Equal(t, CPU(), d)

	d, err = Parse("cpu")
	require.NoError(t, err)
	assert.Equal(t, CPU(), d)

	d, err = Parse("gpu:1")
	require.NoError(t, err)
	assert.Equal(t, GPU(1), d)

	for _, bad := range []string{"TPU", "CUDA:x", "CUDA:-1", "CPU:3"} {
		_, err := Parse(bad)
		assert.ErrorIs(t, err, ErrDevice, bad)
	}
}

func TestCPUInfo(t *testing.T) {
	info := CPUInfo()
	assert.GreaterOrEqual(t, info.LogicalCores, 0)
}
