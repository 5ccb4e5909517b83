// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package op defines the operator capability: a small, fixed
// trait-object interface every pipeline stage implements. Tenzir's
// original runs operators as actors; here an Operator is an owned Go
// value the scheduler (pkg/tenzir/exec) drives through a pull protocol,
// matching the "generator objects composed by the scheduler" guidance of
// spec §9.
package op

import (
	"context"

	"github.com/tenzir/pipeline-core/pkg/tenzir/diag"
)

// ElementKind is one of the three message payload shapes named in spec
// §3.5/GLOSSARY.
type ElementKind int

const (
	Void ElementKind = iota
	ByteChunk
	RecordBatch
)

func (k ElementKind) String() string {
	switch k {
	case Void:
		return "void"
	case ByteChunk:
		return "byte_chunk"
	case RecordBatch:
		return "record_batch"
	default:
		return "unknown"
	}
}

// Signature declares the flags an operator plugin advertises (spec
// §4.3): which of source/transformation/sink roles it can fill, and the
// concrete input/output element kinds for transformations.
type Signature struct {
	Source         bool
	Transformation bool
	Sink           bool
	// Input/Output are meaningful for Transformation operators; sources
	// fix Input to Void, sinks fix Output to Void.
	Input  ElementKind
	Output ElementKind
}

// Location constrains where an operator instance may run.
type Location int

const (
	Anywhere Location = iota
	Local
	Remote
)

// Order is the ordering contract an operator promises/requires (spec
// §4.5 "Ordering").
type Order int

const (
	OrderUnspecified Order = iota
	Ordered
	Unordered
)

// TypeClashError is returned by InferType when an operator cannot accept
// the given input element kind (spec error kind `type_clash`, §7).
type TypeClashError struct {
	Operator string
	Input    ElementKind
}

func (e *TypeClashError) Error() string {
	return "type_clash: operator " + e.Operator + " cannot accept input kind " + e.Input.String()
}

// OptimizeResult is what Operator.Optimize returns to the composer (spec
// §4.4 step 3). DoNotOptimize (Halt == true, Replacement == nil, no
// residual filter) tells the composer to stop pushdown at this operator.
type OptimizeResult struct {
	// Halt is true when this operator cannot forward the filter/order any
	// further (spec: "Operators that cannot forward filters ... return
	// do_not_optimize, which halts pushdown at that point").
	Halt bool
	// ResidualFilter is the filter expression (if any) that remains to be
	// applied by the operator itself, typically because it could push
	// down only part of the predicate.
	ResidualFilter string
	// RequestedOrder is the order this operator now requires from its
	// upstream neighbor.
	RequestedOrder Order
	// Replacement, when non-nil, substitutes for this operator in the
	// optimized pipeline.
	Replacement Operator
}

func DoNotOptimize() OptimizeResult { return OptimizeResult{Halt: true} }

// CheckpointStore is the narrow persistence surface a stateful operator
// uses to save and restore its local state across checkpoint marker
// boundaries (spec §4.6, §6.7's "(operator_identity, epoch) -> blob"
// binding). checkpoint.Store implements this interface; it is declared
// here rather than imported, since pkg/tenzir/checkpoint itself depends
// on op.Message.
type CheckpointStore interface {
	Put(identity string, epoch uint64, blob []byte) error
	Get(identity string) (blob []byte, epoch uint64, ok bool, err error)
}

// Context carries the session-scoped resources an operator needs in
// Open: the diagnostic session, the pipeline ID, the stop signal, the
// checkpoint store, and cancellation (spec §4.3 `instantiate(input_stream, ctx)`, §4.5, §5).
type Context struct {
	context.Context
	Session    *diag.Session
	PipelineID string

	// StopRequested reports whether the runtime has asked this operator's
	// pipeline to drain gracefully (spec §4.5 "Cancellation ... upstream
	// via a stop signal", §4.6 "Stop after checkpoint"). A source that
	// observes true should emit data only until its next checkpoint
	// marker and then cease producing data while still forwarding
	// markers; nil means the runtime never wires stop (e.g. a
	// sub-pipeline composed directly for tests).
	StopRequested func() bool

	// Store and Identity together let a stateful operator serialize its
	// state on a checkpoint marker and restore it before entering its
	// data loop (spec §4.6 "Operator duties on receiving a marker",
	// "Recovery"). Store is nil when the runtime has no checkpoint
	// directory configured; Identity is stable across restarts for the
	// same operator position within the same pipeline ID.
	Store    CheckpointStore
	Identity string
}

// Operator is the fixed capability set every pipeline stage implements.
// Open receives the upstream Stream (the runtime opens operators
// right-to-left, spec §4.5) and returns a Stream of its own.
type Operator interface {
	Name() string
	Signature() Signature
	InferType(input ElementKind) (ElementKind, error)
	// Open performs the operator's setup I/O; the composer type-checks
	// (InferType) and optimizes before any Open call, so no I/O happens
	// before composition succeeds.
	Open(ctx *Context, upstream Stream) (Stream, error)
	Location() Location
	// Internal is true for operators that must not appear in user
	// diagnostics, e.g. ones synthesized by the optimizer.
	Internal() bool
	Optimize(filter string, order Order) OptimizeResult
	// IdleAfter, when ok is true, replaces the runtime's stall timeout for
	// this operator (d in seconds): the runtime raises a stall warning once
	// the stage has produced nothing for that long.
	IdleAfter() (d float64, ok bool)
}

// Stream is a lazy pull-based sequence of messages: a
// minimal analogue of the "lazy input/output sequence" mentioned in
// spec §4.3's Instantiate contract. Concrete scheduling lives in
// pkg/tenzir/exec; Stream is the narrow interface operators compose
// against so op stays dependency-free of the scheduler's internals.
type Stream interface {
	// Next blocks (respecting ctx) until the next message is available,
	// or returns ok=false once the stream is exhausted.
	Next(ctx context.Context) (msg any, ok bool, err error)
}
