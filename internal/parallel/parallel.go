// Package parallel splits index ranges across goroutines for the CPU engine.
package parallel

import (
	"runtime"
	"sync"

	"github.com/naresrac/CNTK/internal/device"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig sizes the pool from the host's physical cores, falling back
// to runtime.NumCPU when they cannot be detected.
func DefaultConfig() Config {
	n := device.CPUInfo().PhysicalCores
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 16,
	}
}

// Sequential returns a Config that runs everything on the calling goroutine.
func Sequential() Config { return Config{} }

// chunks returns the [start, end) ranges For and Sum work on.
func (cfg Config) chunks(n int) [][2]int {
	if n <= 0 {
		return nil
	}
	if !cfg.Enabled || cfg.NumWorkers <= 1 || n < cfg.MinChunkSize {
		return [][2]int{{0, n}}
	}
	size := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize, 1)
	var out [][2]int
	for start := 0; start < n; start += size {
		out = append(out, [2]int{start, min(start+size, n)})
	}
	return out
}

// run executes body over each chunk. A panic in any worker is re-raised on
// the calling goroutine after all workers finish.
func run(ranges [][2]int, body func(chunk, start, end int)) {
	if len(ranges) == 1 {
		body(0, ranges[0][0], ranges[0][1])
		return
	}
	var (
		wg        sync.WaitGroup
		panicOnce sync.Once
		recovered any
	)
	for c, r := range ranges {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					panicOnce.Do(func() { recovered = p })
				}
			}()
			body(c, r[0], r[1])
		}()
	}
	wg.Wait()
	if recovered != nil {
		panic(recovered)
	}
}

// For executes f(i) for i in [0, n).
func For(n int, f func(i int), cfg Config) {
	run(cfg.chunks(n), func(_, start, end int) {
		for i := start; i < end; i++ {
			f(i)
		}
	})
}

// Sum returns the sum of f over [0, n). Partial sums are combined in chunk
// order, so the result only depends on cfg, never on scheduling.
func Sum(n int, f func(i int) float64, cfg Config) float64 {
	ranges := cfg.chunks(n)
	partials := make([]float64, len(ranges))
	run(ranges, func(c, start, end int) {
		var s float64
		for i := start; i < end; i++ {
			s += f(i)
		}
		partials[c] = s
	})
	var total float64
	for _, p := range partials {
		total += p
	}
	return total
}
