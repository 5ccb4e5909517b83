// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package checkpoint injects checkpoint markers into a running pipeline
// and binds the (operator_identity, epoch) -> blob side channel that
// stateful operators use to save and restore across restarts.
//
// The teacher injects its own checkpoints off a single ticker goroutine
// guarded by a context (internal/memorystore.Checkpointing); Injector
// generalizes that into a component owned by one running pipeline that
// additionally supports row-count and on-demand boundaries alongside the
// time-based one.
package checkpoint

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tenzir/pipeline-core/pkg/tenzir/op"
)

// Injector produces monotonically increasing checkpoint markers for one
// pipeline's source operator at configured boundaries.
type Injector struct {
	pipelineID string
	nextID     atomic.Uint64

	interval time.Duration
	rowCap   int64

	rowsSinceLast atomic.Int64
	demand        chan struct{}
}

// NewInjector configures a checkpoint injector. interval <= 0 disables
// the time-based boundary; rowCap <= 0 disables the row-count boundary.
func NewInjector(pipelineID string, interval time.Duration, rowCap int64) *Injector {
	return &Injector{
		pipelineID: pipelineID,
		interval:   interval,
		rowCap:     rowCap,
		demand:     make(chan struct{}, 1),
	}
}

// RequestCheckpoint asks the injector to emit a marker at the next
// opportunity, satisfying the "on operator demand" boundary kind.
func (in *Injector) RequestCheckpoint() {
	select {
	case in.demand <- struct{}{}:
	default:
	}
}

// ObserveRows lets the source report how many rows it just emitted, so
// the injector can honor the row-count boundary.
func (in *Injector) ObserveRows(n int64) {
	if in.rowCap <= 0 {
		return
	}
	in.rowsSinceLast.Add(n)
}

// Due reports whether a marker should be injected now: on-demand request,
// row-count threshold crossed, or (checked by the caller's own ticker)
// the time interval elapsed. Due resets the row counter when it fires
// due to the row-count boundary.
func (in *Injector) Due() bool {
	select {
	case <-in.demand:
		return true
	default:
	}
	if in.rowCap > 0 && in.rowsSinceLast.Load() >= in.rowCap {
		in.rowsSinceLast.Store(0)
		return true
	}
	return false
}

// Next allocates the next marker, pairing a fresh id with the epoch that
// is now closing.
func (in *Injector) Next() op.Message {
	id := in.nextID.Add(1)
	return op.CheckpointMessage(id, id-1)
}

// Run drives Due() off a ticker for the interval boundary and delivers
// markers on out until ctx is cancelled, mirroring the teacher's
// ticker-plus-context loop (internal/memorystore.Checkpointing).
func (in *Injector) Run(ctx context.Context, out chan<- op.Message) {
	var tick <-chan time.Time
	if in.interval > 0 {
		ticker := time.NewTicker(in.interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	poll := time.NewTicker(50 * time.Millisecond)
	defer poll.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			select {
			case out <- in.Next():
			case <-ctx.Done():
				return
			}
		case <-poll.C:
			if in.Due() {
				select {
				case out <- in.Next():
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// Barrier implements fan-in marker alignment for operators with multiple
// input streams (only `fork` today, spec'd as "waits until each input
// has delivered the current marker before emitting the marker
// downstream"). Each input registers arrivals by epoch; Wait blocks until
// every registered input has reported the given epoch.
type Barrier struct {
	mu       sync.Mutex
	cond     *sync.Cond
	inputs   int
	arrived  map[uint64]int
}

func NewBarrier(inputs int) *Barrier {
	b := &Barrier{inputs: inputs, arrived: make(map[uint64]int)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Arrive records that one input delivered the marker for epoch and
// wakes any waiter whose epoch is now satisfied.
func (b *Barrier) Arrive(epoch uint64) {
	b.mu.Lock()
	b.arrived[epoch]++
	b.cond.Broadcast()
	b.mu.Unlock()
}

// Wait blocks until every input has delivered epoch, or ctx is done. A
// watcher goroutine rebroadcasts on ctx cancellation so the waiter below
// never blocks past ctx's lifetime.
func (b *Barrier) Wait(ctx context.Context, epoch uint64) bool {
	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			b.cond.Broadcast()
			b.mu.Unlock()
		case <-stopWatch:
		}
	}()

	b.mu.Lock()
	defer b.mu.Unlock()
	for b.arrived[epoch] < b.inputs {
		if ctx.Err() != nil {
			return false
		}
		b.cond.Wait()
	}
	delete(b.arrived, epoch)
	return true
}
