// Package limit provides bounded-concurrency gates for the export pipeline.
//
// Two independent pools exist: a CPU pool (thumbnail encode, HTML chunk
// rendering) and an I/O pool (file copies into the sidecar tree). Mixing the
// two under one cap either under-utilizes the disk or starves the CPU, so
// each is sized and overridable separately.
package limit

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Limiter is a FIFO bounded-concurrency gate. At most Size callers execute
// their closure concurrently; excess callers queue in arrival order and are
// released as permits free up. The limiter returns no result of its own, it
// purely sequences the caller's closure.
type Limiter struct {
	sem  *semaphore.Weighted
	size int
}

// New creates a Limiter admitting at most n concurrent closures.
// n must be positive.
func New(n int) *Limiter {
	if n < 1 {
		panic(fmt.Sprintf("limit: non-positive size %d", n))
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(n)), size: n}
}

// Size returns the permit count.
func (l *Limiter) Size() int { return l.size }

// Do runs fn once a permit is available. The permit is released on every
// exit path. Failure in fn propagates to the caller unchanged. If ctx is
// cancelled while waiting for a permit, fn never runs and the context error
// is returned.
func (l *Limiter) Do(ctx context.Context, fn func() error) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)
	return fn()
}

// TryDo runs fn immediately if a permit is free and reports whether it ran.
func (l *Limiter) TryDo(fn func() error) (bool, error) {
	if !l.sem.TryAcquire(1) {
		return false, nil
	}
	defer l.sem.Release(1)
	return true, fn()
}

// Pools holds the two pipeline-wide limiter pools.
type Pools struct {
	CPU *Limiter
	IO  *Limiter
}

// Pool sizing bounds. Overrides bypass the clamp but are still required to
// be positive.
const (
	minCPU = 2
	maxCPU = 16
	minIO  = 2
	maxIO  = 32
)

// NewPools derives both pools from available parallelism. A positive
// cpuOverride or ioOverride pins the respective pool size exactly;
// zero means auto.
func NewPools(cpuOverride, ioOverride int) Pools {
	par := runtime.GOMAXPROCS(0)

	cpu := cpuOverride
	if cpu <= 0 {
		cpu = clamp(par, minCPU, maxCPU)
	}

	io := ioOverride
	if io <= 0 {
		// I/O work tolerates more in-flight units than cores.
		io = clamp(par*2, minIO, maxIO)
	}

	return Pools{CPU: New(cpu), IO: New(io)}
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
