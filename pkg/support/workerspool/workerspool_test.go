// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package workerspool

import (
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestForEach(t *testing.T) {
	for _, parallelism := range []int{-1, 0, 1, 3} {
		pool := New().SetMaxParallelism(parallelism)
		var running, maxRunning atomic.Int32
		done := make([]bool, 20)
		pool.ForEach(len(done), func(ii int) {
			current := running.Add(1)
			for {
				previous := maxRunning.Load()
				if current <= previous || maxRunning.CompareAndSwap(previous, current) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			runtime.Gosched()
			done[ii] = true
			running.Add(-1)
		})
		for ii, d := range done {
			assert.True(t, d, "parallelism=%d, task #%d", parallelism, ii)
		}
		switch {
		case parallelism == 0:
			assert.Equal(t, int32(1), maxRunning.Load())
		case parallelism > 0:
			assert.LessOrEqual(t, int(maxRunning.Load()), parallelism)
		}
	}
}

func TestWaitToStartInline(t *testing.T) {
	pool := New().SetMaxParallelism(0)
	assert.Equal(t, 0, pool.MaxParallelism())
	var ran bool
	pool.WaitToStart(func() { ran = true })
	assert.True(t, ran)
	assert.Equal(t, runtime.NumCPU(), New().MaxParallelism())
}
