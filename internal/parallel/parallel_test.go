package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFor(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 8}

	var counter int64
	seen := make([]int32, 1000)
	For(len(seen), func(i int) {
		atomic.AddInt64(&counter, 1)
		atomic.AddInt32(&seen[i], 1)
	}, cfg)

	if counter != int64(len(seen)) {
		t.Errorf("Expected %d, got %d", len(seen), counter)
	}
	for i, s := range seen {
		if s != 1 {
			t.Errorf("index %d visited %d times", i, s)
		}
	}
}

func TestFor_Sequential(t *testing.T) {
	var counter int64
	For(100, func(_ int) { counter++ }, Sequential())
	if counter != 100 {
		t.Errorf("Expected 100, got %d", counter)
	}
}

func TestFor_Empty(t *testing.T) {
	For(0, func(int) { t.Fatal("must not be called") }, DefaultConfig())
}

func TestFor_PanicPropagates(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1}
	require.PanicsWithValue(t, "boom", func() {
		For(16, func(i int) {
			if i == 11 {
				panic("boom")
			}
		}, cfg)
	})
}

func TestSum_DeterministicAcrossConfigs(t *testing.T) {
	f := func(i int) float64 { return float64(i) * 0.5 }
	par := Config{Enabled: true, NumWorkers: 3, MinChunkSize: 4}

	want := Sum(101, f, Sequential())
	assert.Equal(t, 2525.0, want)
	for range 5 {
		assert.InDelta(t, want, Sum(101, f, par), 1e-9)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Positive(t, cfg.NumWorkers)
	assert.Equal(t, cfg.NumWorkers > 1, cfg.Enabled)
}

func BenchmarkSum(b *testing.B) {
	cfg := DefaultConfig()
	f := func(i int) float64 { return float64(i) }
	b.Run("parallel", func(b *testing.B) {
		for b.Loop() {
			Sum(100000, f, cfg)
		}
	})
	b.Run("sequential", func(b *testing.B) {
		for b.Loop() {
			Sum(100000, f, Sequential())
		}
	})
}
