// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package batch implements the columnar record batch and byte chunk that
// travel between operators: an immutable, reference-counted
// chunk of bytes for loaders/parsers/printers/savers, and a columnar
// record batch builder/accessor for the typed side of the pipeline.
package batch

import "sync/atomic"

// Chunk is an immutable, reference-counted contiguous byte buffer (spec
// §3.2/§3.7). A Chunk may carry a Deleter invoked exactly once, when the
// last reference is released, mirroring the teacher's buffer-pool reuse
// pattern in internal/memorystore/buffer.go but for raw bytes instead of
// float samples.
type Chunk struct {
	data    []byte
	deleter func()
	refs    *int32
}

// NewChunk wraps data as a chunk with one initial reference. deleter may be
// nil.
func NewChunk(data []byte, deleter func()) *Chunk {
	refs := int32(1)
	return &Chunk{data: data, deleter: deleter, refs: &refs}
}

// Bytes returns the chunk's contents. The slice must not be mutated or
// retained past Release.
func (c *Chunk) Bytes() []byte {
	if c == nil {
		return nil
	}
	return c.data
}

func (c *Chunk) Len() int {
	if c == nil {
		return 0
	}
	return len(c.data)
}

// Retain increments the reference count and returns c, allowing a chunk to
// be shared across stages without copying.
func (c *Chunk) Retain() *Chunk {
	if c == nil {
		return nil
	}
	atomic.AddInt32(c.refs, 1)
	return c
}

// Release decrements the reference count, invoking the deleter once it
// reaches zero.
func (c *Chunk) Release() {
	if c == nil {
		return
	}
	if atomic.AddInt32(c.refs, -1) == 0 && c.deleter != nil {
		c.deleter()
	}
}

// Slice returns a new chunk sharing the same deleter/refcount, viewing
// data[from:to]. Slicing is zero-copy.
func (c *Chunk) Slice(from, to int) *Chunk {
	atomic.AddInt32(c.refs, 1)
	return &Chunk{data: c.data[from:to], deleter: c.deleter, refs: c.refs}
}
