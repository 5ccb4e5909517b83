// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package codec implements the parser/printer contracts of spec §6.3:
// parsers turn a lazy byte_chunk sequence into a lazy record_batch
// sequence (buffering across chunk boundaries to realign on record
// boundaries), printers do the reverse. Concrete codecs cover three
// formats: line-delimited JSON, InfluxDB line protocol, and Avro
// object-container files, the latter reusing the same
// goavro dependency the teacher already uses for its own checkpoint and
// metric encoding (internal/memorystore/avroCheckpoint.go).
package codec

import (
	"context"

	"github.com/tenzir/pipeline-core/pkg/tenzir/batch"
)

// Ctrl is the parser/printer side-channel for diagnostics and
// cooperative cancellation, the `ctrl` argument of spec §6.3.
type Ctrl struct {
	Context context.Context
	Warn    func(format string, args ...any)
}

// ByteChunks is a lazy pull-based sequence of raw bytes, the input shape
// every Parser consumes.
type ByteChunks interface {
	Next(ctx context.Context) (chunk []byte, ok bool, err error)
}

// Batches is a lazy pull-based sequence of record batches, the output
// shape every Parser produces and every Printer consumes.
type Batches interface {
	Next(ctx context.Context) (b *batch.Batch, ok bool, err error)
}

// Parser turns a byte_chunk sequence into a record_batch sequence (spec
// §6.3). schemaName names the record type assigned to parsed rows.
type Parser interface {
	Parse(input ByteChunks, schemaName string, ctrl Ctrl) Batches
}

// Printer turns a record_batch sequence into a byte_chunk sequence.
type Printer interface {
	Print(input Batches, ctrl Ctrl) ByteChunks
}

// sliceByteChunks adapts an in-memory slice of chunks to ByteChunks, the
// shape loaders typically hand to a parser once I/O has already happened.
type sliceByteChunks struct {
	chunks [][]byte
	idx    int
}

func NewSliceByteChunks(chunks [][]byte) ByteChunks { return &sliceByteChunks{chunks: chunks} }

func (s *sliceByteChunks) Next(ctx context.Context) ([]byte, bool, error) {
	if s.idx >= len(s.chunks) {
		return nil, false, nil
	}
	c := s.chunks[s.idx]
	s.idx++
	return c, true, nil
}

// funcBatches adapts a plain pull function to Batches.
type funcBatches struct {
	next func(ctx context.Context) (*batch.Batch, bool, error)
}

func (f funcBatches) Next(ctx context.Context) (*batch.Batch, bool, error) { return f.next(ctx) }

// funcByteChunks adapts a plain pull function to ByteChunks.
type funcByteChunks struct {
	next func(ctx context.Context) ([]byte, bool, error)
}

func (f funcByteChunks) Next(ctx context.Context) ([]byte, bool, error) { return f.next(ctx) }
