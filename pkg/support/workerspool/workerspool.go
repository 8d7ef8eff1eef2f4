// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool limits the number of goroutines running independent tasks, like the finite
// difference estimates of each parameter of a network.
package workerspool

import (
	"runtime"
	"sync"
)

// Pool of workers. The zero value is not usable, create it with New.
type Pool struct {
	// maxParallelism is the limit of tasks running at the same time. 0 disables parallelism and
	// negative values make it unlimited.
	maxParallelism int

	mu         sync.Mutex
	cond       sync.Cond // Signaled whenever numRunning is decreased.
	numRunning int
}

// New returns a new Pool of workers with the default parallelism (runtime.NumCPU()).
func New() *Pool {
	w := &Pool{maxParallelism: runtime.NumCPU()}
	w.cond = sync.Cond{L: &w.mu}
	return w
}

// MaxParallelism returns the limit of tasks running at the same time.
// If 0 parallelism is disabled, if negative it is unlimited.
func (w *Pool) MaxParallelism() int {
	return w.maxParallelism
}

// SetMaxParallelism sets the limit of tasks running at the same time. It returns the pool itself,
// so calls can be chained.
//
// It should only be changed while no tasks are running.
func (w *Pool) SetMaxParallelism(maxParallelism int) *Pool {
	w.maxParallelism = maxParallelism
	return w
}

// lockedIsFull must be called with w.mu acquired.
func (w *Pool) lockedIsFull() bool {
	return w.maxParallelism >= 0 && w.numRunning >= w.maxParallelism
}

// WaitToStart waits until there is a worker available and runs task in its own goroutine.
//
// If parallelism is disabled, it runs the task inline and returns when it is finished.
func (w *Pool) WaitToStart(task func()) {
	if w.maxParallelism < 0 {
		go task()
		return
	} else if w.maxParallelism == 0 {
		task()
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.lockedIsFull() {
		w.cond.Wait()
	}
	w.numRunning++
	go func() {
		defer func() {
			w.mu.Lock()
			w.numRunning--
			w.cond.Signal()
			w.mu.Unlock()
		}()
		task()
	}()
}

// ForEach runs fn(ii) for ii in [0, n) using the pool's workers, and returns when all of them finished.
func (w *Pool) ForEach(n int, fn func(ii int)) {
	var wg sync.WaitGroup
	wg.Add(n)
	for ii := range n {
		w.WaitToStart(func() {
			defer wg.Done()
			fn(ii)
		})
	}
	wg.Wait()
}
