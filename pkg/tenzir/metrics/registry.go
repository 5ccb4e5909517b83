// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics holds the process-wide buffer-stats registry and its
// 1 Hz snapshot/export cycle. Every running pipeline registers one cell
// per stage buffer; a scheduled job snapshots live cells once a second,
// prunes dead ones, and forwards the result both as an internal
// `tenzir.metrics.operator_buffers` record batch and as Prometheus
// gauges.
package metrics

import (
	"sync"
	"time"
)

// Stats is one stage buffer's live depth, the same shape forwarded into
// the operator_buffers schema.
type Stats struct {
	PipelineID string
	OperatorID string
	Bytes      int64
	Events     int64
}

type cell struct {
	pipelineID string
	operatorID string
	bytes      int64
	events     int64
	alive      func() bool
}

// Registry is the process-wide, mutex-guarded map of live buffer cells
//. It
// mirrors the teacher's MemoryStore access discipline (short RLock/Lock
// sections, no I/O under the lock) without reusing its tree shape, since
// here the keyspace is flat: one cell per (pipeline, operator) pair.
type Registry struct {
	mu    sync.Mutex
	cells map[string]*cell
}

func NewRegistry() *Registry {
	return &Registry{cells: make(map[string]*cell)}
}

// Register adds a cell for pipelineID/operatorID whose depth the caller
// updates via the returned update function, and whose liveness the
// caller reports via alive (typically a stage's "not yet torn down"
// flag). A dead cell is pruned on the next Snapshot.
func (r *Registry) Register(pipelineID, operatorID string, alive func() bool) func(events, bytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pipelineID + "/" + operatorID
	c := &cell{pipelineID: pipelineID, operatorID: operatorID, alive: alive}
	r.cells[key] = c
	return func(events, bytes int64) {
		r.mu.Lock()
		c.events, c.bytes = events, bytes
		r.mu.Unlock()
	}
}

// Snapshot copies out all currently-alive cells and removes dead ones,
// exactly the "polls the registry once per second, snapshots non-expired
// entries ... expired entries are pruned during snapshot" contract.
func (r *Registry) Snapshot() []Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Stats, 0, len(r.cells))
	for key, c := range r.cells {
		if c.alive != nil && !c.alive() {
			delete(r.cells, key)
			continue
		}
		out = append(out, Stats{
			PipelineID: c.pipelineID,
			OperatorID: c.operatorID,
			Bytes:      c.bytes,
			Events:     c.events,
		})
	}
	return out
}

// Sample is one emitted row of the tenzir.metrics.operator_buffers
// schema: {timestamp, pipeline_id, bytes, events}.
type Sample struct {
	Timestamp  time.Time
	PipelineID string
	OperatorID string
	Bytes      int64
	Events     int64
}

func toSamples(now time.Time, stats []Stats) []Sample {
	samples := make([]Sample, len(stats))
	for i, s := range stats {
		samples[i] = Sample{Timestamp: now, PipelineID: s.PipelineID, OperatorID: s.OperatorID, Bytes: s.Bytes, Events: s.Events}
	}
	return samples
}
